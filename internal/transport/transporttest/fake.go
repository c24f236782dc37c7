// Package transporttest provides a scriptable transport.Transport for tests.
package transporttest

import (
	"context"
	"errors"
	"sync"

	"github.com/bscott/mailfetch/internal/search"
	"github.com/bscott/mailfetch/internal/transport"
)

// Fake is a transport.Transport whose methods delegate to the matching
// Func field. Unset fields succeed with zero values, except FetchFunc,
// which fails.
type Fake struct {
	ConnectFunc     func(ctx context.Context) error
	DisconnectFunc  func() error
	ListFoldersFunc func(ctx context.Context) ([]transport.Folder, error)
	OpenFolderFunc  func(ctx context.Context, name string, readOnly bool) (*transport.FolderStatus, error)
	SearchFunc      func(ctx context.Context, query search.Query) ([]uint32, error)
	FetchFunc       func(ctx context.Context, ids []uint32, opts transport.FetchOptions) (transport.Stream, error)

	mu    sync.Mutex
	calls []string
}

var _ transport.Transport = (*Fake)(nil)

// Calls returns the names of the methods invoked so far, in order.
func (f *Fake) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *Fake) record(name string) {
	f.mu.Lock()
	f.calls = append(f.calls, name)
	f.mu.Unlock()
}

func (f *Fake) Connect(ctx context.Context) error {
	f.record("Connect")
	if f.ConnectFunc != nil {
		return f.ConnectFunc(ctx)
	}
	return nil
}

func (f *Fake) Disconnect() error {
	f.record("Disconnect")
	if f.DisconnectFunc != nil {
		return f.DisconnectFunc()
	}
	return nil
}

func (f *Fake) ListFolders(ctx context.Context) ([]transport.Folder, error) {
	f.record("ListFolders")
	if f.ListFoldersFunc != nil {
		return f.ListFoldersFunc(ctx)
	}
	return nil, nil
}

func (f *Fake) OpenFolder(ctx context.Context, name string, readOnly bool) (*transport.FolderStatus, error) {
	f.record("OpenFolder")
	if f.OpenFolderFunc != nil {
		return f.OpenFolderFunc(ctx, name, readOnly)
	}
	return &transport.FolderStatus{Name: name, ReadOnly: readOnly}, nil
}

func (f *Fake) Search(ctx context.Context, query search.Query) ([]uint32, error) {
	f.record("Search")
	if f.SearchFunc != nil {
		return f.SearchFunc(ctx, query)
	}
	return nil, nil
}

func (f *Fake) Fetch(ctx context.Context, ids []uint32, opts transport.FetchOptions) (transport.Stream, error) {
	f.record("Fetch")
	if f.FetchFunc != nil {
		return f.FetchFunc(ctx, ids, opts)
	}
	return nil, errors.New("FETCH not implemented")
}

// Stream replays a fixed list of events. The channel is never closed, so a
// script without an EndEvent or ErrorEvent behaves like a server that
// stops responding.
type Stream struct {
	ch chan transport.Event

	mu     sync.Mutex
	closes int
}

var _ transport.Stream = (*Stream)(nil)

func NewStream(events ...transport.Event) *Stream {
	ch := make(chan transport.Event, len(events))
	for _, ev := range events {
		ch <- ev
	}
	return &Stream{ch: ch}
}

func (s *Stream) Events() <-chan transport.Event {
	return s.ch
}

func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closes++
	return nil
}

// Closes reports how many times Close was called.
func (s *Stream) Closes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closes
}
