// Package attach writes attachment content from retrieved records to a
// local directory tree.
package attach

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/bscott/mailfetch/internal/model"
)

// Options controls where attachments land. With ClassifyByDate each
// record's attachments go to an MM-DD subfolder named after its date.
type Options struct {
	OutputDir      string
	ClassifyByDate bool
}

// DirectoryError means the output directory could not be created. Nothing
// was written.
type DirectoryError struct {
	Path string
	Err  error
}

func (e *DirectoryError) Error() string {
	return fmt.Sprintf("failed to create output directory %s: %v", e.Path, e.Err)
}

func (e *DirectoryError) Unwrap() error { return e.Err }

// WriteError reports one attachment that could not be saved.
type WriteError struct {
	Path     string
	Filename string
	SeqNum   uint32
	Err      error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("failed to write attachment %q of message %d to %s: %v", e.Filename, e.SeqNum, e.Path, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

type WrittenFile struct {
	Path   string `json:"path"`
	SeqNum uint32 `json:"seq_num"`
	UID    uint32 `json:"uid"`
	Size   int64  `json:"size"`
}

type Report struct {
	Written []WrittenFile `json:"written"`
	Failed  []*WriteError `json:"-"`
}

type Writer struct {
	logger *slog.Logger
	now    func() time.Time
}

func NewWriter(logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{logger: logger, now: time.Now}
}

// Write saves every attachment of every record. A failure on one file is
// logged and recorded in the report; the remaining files are still
// written. The returned error joins the per-file failures, or is a
// *DirectoryError when the output directory itself is unusable.
func (w *Writer) Write(records []*model.Record, opts Options) (*Report, error) {
	outDir := opts.OutputDir
	if outDir == "" {
		outDir = "."
	}
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return nil, &DirectoryError{Path: outDir, Err: err}
	}

	report := &Report{}
	used := make(map[string]bool)

	for _, rec := range records {
		if rec == nil || !rec.HasAttachments() {
			continue
		}

		targetDir := outDir
		if opts.ClassifyByDate {
			targetDir = filepath.Join(outDir, w.dateFolder(rec))
			if err := os.MkdirAll(targetDir, 0755); err != nil {
				for _, att := range rec.Attachments {
					w.fail(report, &WriteError{Path: targetDir, Filename: att.Filename, SeqNum: rec.Identity.SeqNum, Err: err})
				}
				continue
			}
		}

		for _, att := range rec.Attachments {
			name := w.resolveName(rec, att)
			path := uniquePath(used, filepath.Join(targetDir, name))

			if err := os.WriteFile(path, att.Content, 0644); err != nil {
				w.fail(report, &WriteError{Path: path, Filename: name, SeqNum: rec.Identity.SeqNum, Err: err})
				continue
			}

			used[path] = true
			report.Written = append(report.Written, WrittenFile{
				Path:   path,
				SeqNum: rec.Identity.SeqNum,
				UID:    rec.Identity.UID,
				Size:   int64(len(att.Content)),
			})
			w.logger.Debug("attachment saved", "path", path, "seq", rec.Identity.SeqNum, "bytes", len(att.Content))
		}
	}

	if len(report.Failed) == 0 {
		return report, nil
	}
	errs := make([]error, len(report.Failed))
	for i, e := range report.Failed {
		errs[i] = e
	}
	return report, errors.Join(errs...)
}

func (w *Writer) fail(report *Report, err *WriteError) {
	w.logger.Warn("skipping attachment", "seq", err.SeqNum, "filename", err.Filename, "path", err.Path, "err", err.Err)
	report.Failed = append(report.Failed, err)
}

// dateFolder names the MM-DD subfolder for rec, using today for records
// without a date.
func (w *Writer) dateFolder(rec *model.Record) string {
	d := rec.Date
	if d.IsZero() {
		d = w.now()
	}
	return d.Format("01-02")
}

func (w *Writer) resolveName(rec *model.Record, att model.Attachment) string {
	name := att.Filename
	if name == "" || name == "/" {
		name = fmt.Sprintf("attachment_%d_%d", rec.Identity.UID, w.now().UnixMilli())
	}
	return Sanitize(name)
}

// uniquePath returns path, or path with _1, _2, ... before the extension
// when an earlier attachment in the same batch already took it. The base
// is shortened so the suffixed name stays within MaxFilenameLength.
func uniquePath(used map[string]bool, path string) string {
	if !used[path] {
		return path
	}
	dir, name := filepath.Split(path)
	ext := filepath.Ext(name)
	if utf8.RuneCountInString(ext) >= MaxFilenameLength/2 {
		ext = ""
	}
	base := []rune(strings.TrimSuffix(name, ext))
	for n := 1; ; n++ {
		suffix := fmt.Sprintf("_%d", n)
		keep := MaxFilenameLength - len(suffix) - utf8.RuneCountInString(ext)
		if keep > len(base) {
			keep = len(base)
		}
		candidate := dir + string(base[:keep]) + suffix + ext
		if !used[candidate] {
			return candidate
		}
	}
}
