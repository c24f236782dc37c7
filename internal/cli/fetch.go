package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/bscott/mailfetch/internal/archive"
	"github.com/bscott/mailfetch/internal/attach"
	"github.com/bscott/mailfetch/internal/collector"
	"github.com/bscott/mailfetch/internal/config"
	"github.com/bscott/mailfetch/internal/mailparse"
	"github.com/bscott/mailfetch/internal/model"
	"github.com/bscott/mailfetch/internal/search"
	"github.com/bscott/mailfetch/internal/transport"
)

// retrieval is a fully resolved set of retrieval flags.
type retrieval struct {
	folder  string
	filter  search.Filter
	timeout time.Duration
	opts    collector.Options
}

func (f *RetrievalFlags) resolve(cfg *config.Config) (*retrieval, error) {
	r := &retrieval{
		folder:  f.Folder,
		timeout: f.Timeout,
		opts: collector.Options{
			Workers:      f.Workers,
			AllowPartial: f.AllowPartial,
		},
	}

	if r.folder == "" {
		r.folder = cfg.Defaults.Folder
	}

	rangeValue := f.Range
	if rangeValue == "" {
		rangeValue = cfg.Defaults.Range
	}
	tr, err := search.ParseTimeRange(rangeValue)
	if err != nil {
		return nil, err
	}
	r.filter.Range = tr

	switch {
	case f.Limit == 0:
		r.filter.Limit = cfg.Defaults.Limit
	case f.Limit > 0:
		r.filter.Limit = f.Limit
	}

	if r.timeout <= 0 {
		r.timeout = cfg.Defaults.Timeout
	}
	if r.timeout <= 0 {
		r.timeout = config.DefaultTimeout
	}

	if f.Structure {
		r.opts.Discovery = collector.DiscoverStructure
	} else if r.opts.Discovery, err = collector.ParseDiscovery(cfg.Defaults.Discovery); err != nil {
		return nil, err
	}

	if r.opts.Workers <= 0 {
		r.opts.Workers = cfg.Defaults.Workers
	}

	return r, nil
}

// retrieve runs one collector fetch inside its own session. A timeout or
// interrupt is reported as a warning and the partial result is returned
// without error.
func retrieve(ctx *Context, r *retrieval) (*collector.Result, bool, error) {
	if err := ctx.requireAccount(); err != nil {
		return nil, false, err
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	runCtx, cancel := context.WithTimeout(sigCtx, r.timeout)
	defer cancel()

	ctx.Formatter.Verbosef("Fetching from %s (range %s, limit %d)...", r.folder, r.filter.Range, r.filter.Limit)

	var result *collector.Result
	err := collector.WithSession(runCtx, ctx.Dial(ctx.Config, ctx.Logger), func(t transport.Transport) error {
		var err error
		result, err = collector.New(t, mailparse.New(), r.opts, ctx.Logger).Fetch(runCtx, r.folder, r.filter)
		return err
	})

	var timeoutErr *collector.TimeoutError
	if errors.As(err, &timeoutErr) && result != nil {
		ctx.Formatter.PrintWarning(fmt.Sprintf("%v; showing partial results", timeoutErr))
		return result, true, nil
	}
	if err != nil {
		return nil, false, err
	}
	return result, false, nil
}

func (c *Context) reportIncomplete(result *collector.Result) {
	for _, f := range result.Failures {
		c.Formatter.PrintWarning(f.Error())
	}
	if len(result.Incomplete) > 0 {
		c.Formatter.PrintWarning(fmt.Sprintf("%d messages never completed: %v", len(result.Incomplete), result.Incomplete))
	}
}

// recordView adds the formatted date the record itself does not marshal.
type recordView struct {
	*model.Record
	Date string `json:"date"`
}

func recordViews(records []*model.Record) []recordView {
	views := make([]recordView, len(records))
	for i, r := range records {
		views[i] = recordView{Record: r, Date: r.DateString(time.RFC3339)}
	}
	return views
}

func errorStrings(errs []error) []string {
	if len(errs) == 0 {
		return nil
	}
	out := make([]string, len(errs))
	for i, err := range errs {
		out[i] = err.Error()
	}
	return out
}

func (c *FetchCmd) Run(ctx *Context) error {
	r, err := c.resolve(ctx.Config)
	if err != nil {
		return err
	}

	result, partial, err := retrieve(ctx, r)
	if err != nil {
		return err
	}

	if ctx.Formatter.JSON {
		return ctx.Formatter.PrintJSON(map[string]interface{}{
			"folder":     r.folder,
			"count":      len(result.Records),
			"partial":    partial,
			"records":    recordViews(result.Records),
			"failures":   errorStrings(result.Failures),
			"incomplete": result.Incomplete,
		})
	}

	ctx.reportIncomplete(result)
	ctx.Formatter.PrintRecords(result.Records)
	return nil
}

func (c *SaveCmd) Run(ctx *Context) error {
	r, err := c.resolve(ctx.Config)
	if err != nil {
		return err
	}

	opts := attach.Options{
		OutputDir:      c.Out,
		ClassifyByDate: c.ClassifyByDate || ctx.Config.Output.ClassifyByDate,
	}
	if opts.OutputDir == "" {
		opts.OutputDir = ctx.Config.Output.Dir
	}

	archiveFormat, archivePath := c.Archive, c.ArchivePath
	if archiveFormat == "" {
		archiveFormat = ctx.Config.Output.Archive
	}
	if archivePath == "" {
		archivePath = ctx.Config.Output.ArchivePath
	}

	result, partial, err := retrieve(ctx, r)
	if err != nil {
		return err
	}

	report, err := attach.NewWriter(ctx.Logger).Write(result.Records, opts)
	var dirErr *attach.DirectoryError
	if errors.As(err, &dirErr) {
		return err
	}

	var writeFailures []string
	for _, f := range report.Failed {
		writeFailures = append(writeFailures, f.Error())
	}

	archived := 0
	var archiveErr error
	if archiveFormat != "" {
		archived, archiveErr = storeArchive(ctx, archiveFormat, archivePath, result.Records)
		if archiveErr != nil && archived == 0 && len(result.Records) > 0 {
			return archiveErr
		}
	}

	if ctx.Formatter.JSON {
		resp := map[string]interface{}{
			"folder":         r.folder,
			"messages":       len(result.Records),
			"partial":        partial,
			"output_dir":     opts.OutputDir,
			"written":        report.Written,
			"write_failures": writeFailures,
			"failures":       errorStrings(result.Failures),
			"incomplete":     result.Incomplete,
		}
		if archiveFormat != "" {
			resp["archive"] = map[string]interface{}{
				"format":   archiveFormat,
				"path":     archivePath,
				"archived": archived,
			}
			if archiveErr != nil {
				resp["archive_error"] = archiveErr.Error()
			}
		}
		return ctx.Formatter.PrintJSON(resp)
	}

	ctx.reportIncomplete(result)
	for _, f := range writeFailures {
		ctx.Formatter.PrintWarning(f)
	}
	if archiveErr != nil {
		ctx.Formatter.PrintWarning(archiveErr.Error())
	}

	if len(report.Written) > 0 && !ctx.Formatter.Quiet {
		table := ctx.Formatter.NewTable("SEQ", "SIZE", "PATH")
		for _, w := range report.Written {
			table.AddRow(fmt.Sprint(w.SeqNum), formatSize(w.Size), w.Path)
		}
		table.Flush()
		fmt.Fprintln(ctx.Formatter.Writer)
	}

	ctx.Formatter.PrintSuccess(fmt.Sprintf("Saved %d attachments from %d messages to %s",
		len(report.Written), len(result.Records), opts.OutputDir))
	if archiveFormat != "" && archived > 0 {
		ctx.Formatter.PrintSuccess(fmt.Sprintf("Archived %d messages to %s (%s)", archived, archivePath, archiveFormat))
	}
	return nil
}

func storeArchive(ctx *Context, format, path string, records []*model.Record) (int, error) {
	a, err := archive.Open(format, path)
	if err != nil {
		return 0, err
	}

	added, storeErr := archive.Store(a, records, ctx.Logger)
	if err := a.Close(); err != nil && storeErr == nil {
		storeErr = err
	}
	return added, storeErr
}

func formatSize(size int64) string {
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}
	div, exp := int64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(size)/float64(div), "KMGTPE"[exp])
}
