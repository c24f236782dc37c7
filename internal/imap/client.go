package imap

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"

	"github.com/bscott/mailfetch/internal/config"
	"github.com/bscott/mailfetch/internal/search"
	"github.com/bscott/mailfetch/internal/transport"
)

// Session is a transport.Transport over one IMAP connection. Commands are
// serialised; a fetch keeps the connection busy until its response has
// been fully consumed.
type Session struct {
	config   *config.Config
	logger   *slog.Logger
	password func() (string, error)

	mu       sync.Mutex
	client   *imapclient.Client
	selected string

	op sync.Mutex
}

var _ transport.Transport = (*Session)(nil)

func NewSession(cfg *config.Config, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		config:   cfg,
		logger:   logger,
		password: cfg.GetPassword,
	}
}

func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client != nil {
		return transport.ErrAlreadyConnected
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	password, err := s.password()
	if err != nil {
		return fmt.Errorf("failed to get password: %w", err)
	}

	imapCfg := s.config.IMAP
	addr := fmt.Sprintf("%s:%d", imapCfg.Host, imapCfg.Port)
	options := &imapclient.Options{
		TLSConfig: &tls.Config{
			InsecureSkipVerify: imapCfg.InsecureSkipVerify,
			ServerName:         imapCfg.Host,
		},
	}

	var client *imapclient.Client
	switch imapCfg.Security {
	case config.SecurityStartTLS:
		client, err = imapclient.DialStartTLS(addr, options)
	case config.SecurityNone:
		client, err = imapclient.DialInsecure(addr, options)
	default:
		client, err = imapclient.DialTLS(addr, options)
	}
	if err != nil {
		return fmt.Errorf("failed to connect to IMAP server: %w", err)
	}

	if err := waitCtx(ctx, client, client.Login(imapCfg.Email, password).Wait); err != nil {
		client.Close()
		return fmt.Errorf("IMAP login failed: %w", err)
	}

	s.logger.Debug("connected", "addr", addr, "security", imapCfg.Security)
	s.client = client
	return nil
}

// Disconnect logs out and closes the connection. It skips the logout when
// a fetch is still draining, so closing also unblocks that fetch.
func (s *Session) Disconnect() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client == nil {
		return nil
	}
	client := s.client
	s.client = nil
	s.selected = ""

	if s.op.TryLock() {
		if err := client.Logout().Wait(); err != nil {
			s.logger.Debug("logout failed", "err", err)
		}
		s.op.Unlock()
	}
	return client.Close()
}

func (s *Session) conn() (*imapclient.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client == nil {
		return nil, transport.ErrNotConnected
	}
	return s.client, nil
}

// wait runs fn, a blocking command wait, bounded by ctx. When ctx ends
// first the connection is closed and dropped from the session.
func (s *Session) wait(ctx context.Context, client *imapclient.Client, fn func() error) error {
	err := waitCtx(ctx, client, fn)
	if err != nil && ctx.Err() != nil {
		s.mu.Lock()
		if s.client == client {
			s.client = nil
			s.selected = ""
		}
		s.mu.Unlock()
		s.logger.Debug("connection closed after deadline", "err", ctx.Err())
	}
	return err
}

// waitCtx returns fn's result, or ctx.Err() after closing client when ctx
// ends first. Closing fails the pending command, which releases fn.
func waitCtx(ctx context.Context, client *imapclient.Client, fn func() error) error {
	done := make(chan error, 1)
	go func() { done <- fn() }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		client.Close()
		return ctx.Err()
	}
}

func (s *Session) ListFolders(ctx context.Context) ([]transport.Folder, error) {
	s.op.Lock()
	defer s.op.Unlock()

	client, err := s.conn()
	if err != nil {
		return nil, err
	}

	var mailboxes []*imap.ListData
	err = s.wait(ctx, client, func() error {
		var err error
		mailboxes, err = client.List("", "*", nil).Collect()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list mailboxes: %w", err)
	}

	result := make([]transport.Folder, 0, len(mailboxes))
	for _, mb := range mailboxes {
		folder := transport.Folder{
			Name:       mb.Mailbox,
			Attributes: make([]string, 0, len(mb.Attrs)),
		}
		if mb.Delim != 0 {
			folder.Delimiter = string(mb.Delim)
		}
		for _, attr := range mb.Attrs {
			folder.Attributes = append(folder.Attributes, string(attr))
		}
		result = append(result, folder)
	}

	return result, nil
}

func (s *Session) OpenFolder(ctx context.Context, name string, readOnly bool) (*transport.FolderStatus, error) {
	s.op.Lock()
	defer s.op.Unlock()

	client, err := s.conn()
	if err != nil {
		return nil, &transport.FolderOpenError{Folder: name, Err: err}
	}

	var selected *imap.SelectData
	err = s.wait(ctx, client, func() error {
		var err error
		selected, err = client.Select(name, &imap.SelectOptions{ReadOnly: readOnly}).Wait()
		return err
	})
	if err != nil {
		return nil, &transport.FolderOpenError{Folder: name, Err: err}
	}

	s.mu.Lock()
	s.selected = name
	s.mu.Unlock()

	return &transport.FolderStatus{
		Name:     name,
		Messages: selected.NumMessages,
		ReadOnly: readOnly,
	}, nil
}

func (s *Session) Search(ctx context.Context, query search.Query) ([]uint32, error) {
	s.op.Lock()
	defer s.op.Unlock()

	client, err := s.conn()
	if err != nil {
		return nil, &transport.SearchError{Query: query.String(), Err: err}
	}

	criteria, err := criteriaFromQuery(query)
	if err != nil {
		return nil, &transport.SearchError{Query: query.String(), Err: err}
	}

	var data *imap.SearchData
	err = s.wait(ctx, client, func() error {
		var err error
		data, err = client.Search(criteria, nil).Wait()
		return err
	})
	if err != nil {
		return nil, &transport.SearchError{Query: query.String(), Err: err}
	}

	return data.AllSeqNums(), nil
}

// Fetch starts retrieving ids and returns the event stream. The body is
// fetched with PEEK, so messages are not marked as seen.
func (s *Session) Fetch(ctx context.Context, ids []uint32, opts transport.FetchOptions) (transport.Stream, error) {
	s.op.Lock()

	client, err := s.conn()
	if err != nil {
		s.op.Unlock()
		return nil, &transport.FetchError{Err: err}
	}

	fetchOptions := &imap.FetchOptions{UID: true}
	if opts.Structure {
		fetchOptions.BodyStructure = &imap.FetchItemBodyStructure{Extended: true}
	}
	if opts.Body {
		fetchOptions.BodySection = []*imap.FetchItemBodySection{{Peek: true}}
	}

	cmd := client.Fetch(imap.SeqSetNum(ids...), fetchOptions)

	ctx, cancel := context.WithCancel(ctx)
	st := &stream{
		events: make(chan transport.Event, 16),
		cancel: cancel,
	}
	go func() {
		defer s.op.Unlock()
		st.run(ctx, cmd, s.logger)
	}()
	return st, nil
}

// stream adapts an imapclient.FetchCommand to transport.Stream. One
// goroutine reads the command in delivery order.
type stream struct {
	events chan transport.Event
	cancel context.CancelFunc
	once   sync.Once
}

func (st *stream) Events() <-chan transport.Event {
	return st.events
}

// Close stops delivery. The remaining response is drained in the
// background before the session accepts another command.
func (st *stream) Close() error {
	st.once.Do(st.cancel)
	return nil
}

func (st *stream) emit(ctx context.Context, ev transport.Event) bool {
	select {
	case st.events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

func (st *stream) run(ctx context.Context, cmd *imapclient.FetchCommand, logger *slog.Logger) {
	defer close(st.events)

	for {
		msg := cmd.Next()
		if msg == nil {
			break
		}

		attrs := &transport.AttributesEvent{SeqNum: msg.SeqNum}
		for {
			item := msg.Next()
			if item == nil {
				break
			}

			switch data := item.(type) {
			case imapclient.FetchItemDataUID:
				attrs.UID = uint32(data.UID)
			case imapclient.FetchItemDataBodyStructure:
				attrs.Structure = convertStructure(data.BodyStructure)
			case imapclient.FetchItemDataBodySection:
				if data.Literal == nil {
					logger.Warn("server returned no message body", "seq", msg.SeqNum)
					continue
				}
				body, err := io.ReadAll(data.Literal)
				if err != nil {
					logger.Warn("failed to read message body", "seq", msg.SeqNum, "err", err)
					continue
				}
				if !st.emit(ctx, &transport.BodyEvent{SeqNum: msg.SeqNum, Body: body}) {
					st.drain(cmd, logger)
					return
				}
			}
		}

		if !st.emit(ctx, attrs) {
			st.drain(cmd, logger)
			return
		}
	}

	if err := cmd.Close(); err != nil {
		st.emit(ctx, &transport.ErrorEvent{Err: err})
		return
	}
	st.emit(ctx, &transport.EndEvent{})
}

func (st *stream) drain(cmd *imapclient.FetchCommand, logger *slog.Logger) {
	if err := cmd.Close(); err != nil {
		logger.Debug("fetch closed early", "err", err)
	}
}
