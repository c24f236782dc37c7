// Package archive keeps a raw copy of retrieved messages in an mbox file
// or a maildir.
package archive

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/emersion/go-maildir"
	"github.com/emersion/go-mbox"
	"github.com/emersion/go-message/mail"

	"github.com/bscott/mailfetch/internal/model"
)

const (
	FormatMbox    = "mbox"
	FormatMaildir = "maildir"
)

// Archive stores raw messages. Close must be called once all records have
// been added.
type Archive interface {
	Add(rec *model.Record) error
	Close() error
}

// Open returns the archive for format at path, creating it if needed.
func Open(format, path string) (Archive, error) {
	if path == "" {
		return nil, errors.New("archive path is empty")
	}
	switch format {
	case FormatMbox:
		return OpenMbox(path)
	case FormatMaildir:
		return OpenMaildir(path)
	}
	return nil, fmt.Errorf("unknown archive format %q (use mbox or maildir)", format)
}

// Store adds every record to a. A record that cannot be stored is logged
// and skipped; the returned error joins those failures.
func Store(a Archive, records []*model.Record, logger *slog.Logger) (int, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var errs []error
	added := 0
	for _, rec := range records {
		if rec == nil {
			continue
		}
		if err := a.Add(rec); err != nil {
			logger.Warn("failed to archive message", "seq", rec.Identity.SeqNum, "err", err)
			errs = append(errs, fmt.Errorf("message %d: %w", rec.Identity.SeqNum, err))
			continue
		}
		added++
	}
	return added, errors.Join(errs...)
}

// MboxArchive appends messages to a single mbox file.
type MboxArchive struct {
	file   *os.File
	writer *mbox.Writer
	now    func() time.Time
}

func OpenMbox(path string) (*MboxArchive, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create archive directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open mbox %s: %w", path, err)
	}
	return &MboxArchive{file: f, writer: mbox.NewWriter(f), now: time.Now}, nil
}

// Add writes rec with a From_ line built from its sender and date.
func (a *MboxArchive) Add(rec *model.Record) error {
	if len(rec.Raw) == 0 {
		return errors.New("record has no raw message")
	}

	date := rec.Date
	if date.IsZero() {
		date = a.now()
	}

	w, err := a.writer.CreateMessage(envelopeSender(rec.From), date)
	if err != nil {
		return fmt.Errorf("failed to start mbox message: %w", err)
	}
	if _, err := w.Write(rec.Raw); err != nil {
		return fmt.Errorf("failed to write mbox message: %w", err)
	}
	return nil
}

func (a *MboxArchive) Close() error {
	werr := a.writer.Close()
	ferr := a.file.Close()
	if werr != nil {
		return fmt.Errorf("failed to finish mbox: %w", werr)
	}
	return ferr
}

// envelopeSender extracts the bare address for the From_ line.
func envelopeSender(from string) string {
	if from == "" || from == model.NotAvailable {
		return "MAILER-DAEMON"
	}
	addr, err := mail.ParseAddress(from)
	if err != nil || addr.Address == "" {
		return "MAILER-DAEMON"
	}
	return addr.Address
}

// MaildirArchive delivers each message into the new/ folder of a maildir.
type MaildirArchive struct {
	dir maildir.Dir
}

func OpenMaildir(path string) (*MaildirArchive, error) {
	dir := maildir.Dir(path)

	if _, err := os.Stat(filepath.Join(path, "cur")); os.IsNotExist(err) {
		if err := os.MkdirAll(path, 0700); err != nil {
			return nil, fmt.Errorf("failed to create maildir: %w", err)
		}
		if err := dir.Init(); err != nil {
			return nil, fmt.Errorf("failed to initialise maildir: %w", err)
		}
	}

	return &MaildirArchive{dir: dir}, nil
}

func (a *MaildirArchive) Add(rec *model.Record) error {
	if len(rec.Raw) == 0 {
		return errors.New("record has no raw message")
	}

	delivery, err := maildir.NewDelivery(string(a.dir))
	if err != nil {
		return fmt.Errorf("failed to start delivery: %w", err)
	}
	if _, err := io.Copy(delivery, bytes.NewReader(rec.Raw)); err != nil {
		_ = delivery.Abort()
		return fmt.Errorf("failed to write delivery: %w", err)
	}
	return delivery.Close()
}

func (a *MaildirArchive) Close() error {
	return nil
}
