// Package collector retrieves messages from a folder and assembles them
// into records, joining the attribute and body events a fetch delivers in
// arbitrary order.
package collector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/bscott/mailfetch/internal/mailparse"
	"github.com/bscott/mailfetch/internal/model"
	"github.com/bscott/mailfetch/internal/search"
	"github.com/bscott/mailfetch/internal/structure"
	"github.com/bscott/mailfetch/internal/transport"
)

// DefaultWorkers is the parse worker count used when Options.Workers is unset.
const DefaultWorkers = 4

// Discovery selects where attachments come from.
type Discovery string

const (
	// DiscoverParsed takes attachments from the parsed message.
	DiscoverParsed Discovery = "parsed"
	// DiscoverStructure walks the server-reported body structure and
	// extracts each attachment section from the raw message.
	DiscoverStructure Discovery = "structure"
)

// ParseDiscovery maps a config or flag value to a Discovery. Empty means
// DiscoverParsed.
func ParseDiscovery(s string) (Discovery, error) {
	switch Discovery(s) {
	case "", DiscoverParsed:
		return DiscoverParsed, nil
	case DiscoverStructure:
		return DiscoverStructure, nil
	}
	return "", fmt.Errorf("invalid discovery mode %q (use parsed or structure)", s)
}

// Parser decodes raw messages and extracts body sections by part ID.
type Parser interface {
	Parse(raw []byte) (*mailparse.Message, error)
	Section(raw []byte, partID string) ([]byte, error)
}

// Options tunes a Collector.
type Options struct {
	Discovery    Discovery
	Workers      int
	AllowPartial bool
}

// Result holds the records of one fetch in ascending sequence order.
// Failures lists item-level errors (*ParseError, and *transport.FetchError
// when partial results are allowed). Incomplete lists requested messages
// that never resolved before the stream ended.
type Result struct {
	Records    []*model.Record
	Failures   []error
	Incomplete []uint32
}

// Collector runs fetches over one transport.
type Collector struct {
	transport transport.Transport
	parser    Parser
	opts      Options
	logger    *slog.Logger
	now       func() time.Time
}

func New(t transport.Transport, p Parser, opts Options, logger *slog.Logger) *Collector {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.Discovery == "" {
		opts.Discovery = DiscoverParsed
	}
	return &Collector{transport: t, parser: p, opts: opts, logger: logger, now: time.Now}
}

type parseResult struct {
	seq uint32
	raw []byte
	msg *mailparse.Message
	err error
}

// Fetch opens folder read-only, searches it with filter and retrieves the
// matching messages. When ctx expires first, the records completed so far
// are returned along with a *TimeoutError.
func (c *Collector) Fetch(ctx context.Context, folder string, filter search.Filter) (*Result, error) {
	log := c.logger.With("run", uuid.NewString(), "folder", folder)

	if _, err := c.transport.OpenFolder(ctx, folder, true); err != nil {
		var openErr *transport.FolderOpenError
		if errors.As(err, &openErr) {
			return nil, err
		}
		return nil, &transport.FolderOpenError{Folder: folder, Err: err}
	}

	query, err := search.BuildAt(filter, c.now())
	if err != nil {
		return nil, err
	}

	ids, err := c.transport.Search(ctx, query)
	if err != nil {
		var searchErr *transport.SearchError
		if errors.As(err, &searchErr) {
			return nil, err
		}
		return nil, &transport.SearchError{Query: query.String(), Err: err}
	}
	log.Debug("search complete", "query", query.String(), "matches", len(ids))

	if len(ids) == 0 {
		return &Result{}, nil
	}
	ids = lastN(ids, filter.Limit)

	stream, err := c.transport.Fetch(ctx, ids, transport.FetchOptions{Body: true, Structure: true})
	if err != nil {
		var fetchErr *transport.FetchError
		if errors.As(err, &fetchErr) {
			return nil, err
		}
		return nil, &transport.FetchError{Err: err}
	}
	defer stream.Close()

	return c.collect(ctx, log, ids, stream)
}

// collect runs the event loop. It alone mutates the join; parse workers
// report back over a channel buffered to the request size, so they never
// block once the loop has returned.
func (c *Collector) collect(ctx context.Context, log *slog.Logger, ids []uint32, stream transport.Stream) (*Result, error) {
	j := newJoin(ids)
	results := make(chan parseResult, j.expected())
	sem := make(chan struct{}, c.opts.Workers)
	events := stream.Events()
	res := &Result{}
	inflight := 0
	ended := false

	for !j.done() && !(ended && inflight == 0) {
		select {
		case <-ctx.Done():
			pending := j.pending()
			log.Warn("fetch deadline reached", "settled", j.settled, "pending", len(pending))
			res.Records = c.records(log, j)
			return res, &TimeoutError{Settled: j.settled, Pending: pending, Err: ctx.Err()}

		case ev, ok := <-events:
			if !ok {
				ended, events = true, nil
				continue
			}
			switch e := ev.(type) {
			case *transport.AttributesEvent:
				if !j.identify(e.SeqNum, e.UID, e.Structure) {
					log.Debug("ignoring attributes", "seq", e.SeqNum)
				}
			case *transport.BodyEvent:
				if !j.receive(e.SeqNum) {
					log.Debug("ignoring body", "seq", e.SeqNum)
					continue
				}
				inflight++
				go c.parse(sem, results, e.SeqNum, e.Body)
			case *transport.EndEvent:
				ended, events = true, nil
			case *transport.ErrorEvent:
				fetchErr := &transport.FetchError{Err: e.Err}
				if !c.opts.AllowPartial {
					return nil, fetchErr
				}
				log.Warn("fetch failed, keeping partial result", "err", e.Err)
				res.Failures = append(res.Failures, fetchErr)
				ended, events = true, nil
			}

		case r := <-results:
			inflight--
			if r.err != nil {
				log.Warn("failed to parse message", "seq", r.seq, "err", r.err)
				res.Failures = append(res.Failures, &ParseError{SeqNum: r.seq, Err: r.err})
				j.fail(r.seq)
				continue
			}
			j.parsed(r.seq, r.raw, r.msg)
		}
	}

	res.Incomplete = j.pending()
	for _, seq := range res.Incomplete {
		log.Warn("incomplete message", "seq", seq)
	}
	res.Records = c.records(log, j)
	log.Debug("fetch complete", "records", len(res.Records), "failures", len(res.Failures))
	return res, nil
}

func (c *Collector) parse(sem chan struct{}, out chan<- parseResult, seq uint32, raw []byte) {
	sem <- struct{}{}
	defer func() { <-sem }()

	msg, err := c.parser.Parse(raw)
	out <- parseResult{seq: seq, raw: raw, msg: msg, err: err}
}

func (c *Collector) records(log *slog.Logger, j *join) []*model.Record {
	entries := j.completed()
	records := make([]*model.Record, 0, len(entries))
	for _, e := range entries {
		records = append(records, c.record(log, e))
	}
	sort.Slice(records, func(a, b int) bool {
		return records[a].Identity.SeqNum < records[b].Identity.SeqNum
	})
	return records
}

func (c *Collector) record(log *slog.Logger, e *entry) *model.Record {
	msg := e.msg
	rec := &model.Record{
		Identity:    model.Identity{SeqNum: e.seq, UID: e.uid},
		Headers:     msg.Headers,
		Subject:     orNA(msg.Subject),
		From:        orNA(msg.From),
		To:          orNA(msg.To),
		Date:        msg.Date,
		Text:        msg.Text,
		HTML:        msg.HTML,
		Attachments: msg.Attachments,
		Raw:         e.raw,
	}

	if c.opts.Discovery == DiscoverStructure {
		if e.structure == nil {
			log.Debug("no body structure, using parsed attachments", "seq", e.seq)
			return rec
		}
		rec.Attachments = c.sections(log, e)
	}
	return rec
}

// sections resolves the attachments found in the body structure against
// the raw message. A section that cannot be extracted keeps its
// descriptor without content. Size stays the server-reported part size;
// the decoded length is used only when the server reported none.
func (c *Collector) sections(log *slog.Logger, e *entry) []model.Attachment {
	atts := structure.Attachments(e.structure)
	for i := range atts {
		content, err := c.parser.Section(e.raw, atts[i].PartID)
		if err != nil {
			log.Warn("attachment section unavailable", "seq", e.seq, "part", atts[i].PartID, "err", err)
			continue
		}
		atts[i].Content = content
		if atts[i].Size == 0 {
			atts[i].Size = int64(len(content))
		}
	}
	return atts
}

// lastN keeps the n highest sequence numbers, the most recent messages.
func lastN(ids []uint32, n int) []uint32 {
	sorted := append([]uint32(nil), ids...)
	sort.Slice(sorted, func(a, b int) bool { return sorted[a] < sorted[b] })
	if n <= 0 || n >= len(sorted) {
		return sorted
	}
	return sorted[len(sorted)-n:]
}

func orNA(s string) string {
	if s == "" {
		return model.NotAvailable
	}
	return s
}
