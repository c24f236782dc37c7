// Package transport defines the mail-store session the collector talks to
// and the events a fetch delivers.
package transport

import (
	"context"
	"errors"
	"fmt"

	"github.com/bscott/mailfetch/internal/search"
	"github.com/bscott/mailfetch/internal/structure"
)

var (
	ErrAlreadyConnected = errors.New("session already connected")
	ErrNotConnected     = errors.New("not connected")
)

// Transport is a stateful mail-store session. One folder is selected at
// a time; Disconnect on a session that never connected is a no-op.
type Transport interface {
	Connect(ctx context.Context) error
	Disconnect() error
	ListFolders(ctx context.Context) ([]Folder, error)
	OpenFolder(ctx context.Context, name string, readOnly bool) (*FolderStatus, error)
	Search(ctx context.Context, query search.Query) ([]uint32, error)
	Fetch(ctx context.Context, ids []uint32, opts FetchOptions) (Stream, error)
}

type Folder struct {
	Name       string   `json:"name"`
	Delimiter  string   `json:"delimiter"`
	Attributes []string `json:"attributes,omitempty"`
}

type FolderStatus struct {
	Name     string `json:"name"`
	Messages uint32 `json:"messages"`
	ReadOnly bool   `json:"read_only"`
}

// FetchOptions selects what a fetch delivers for each message.
type FetchOptions struct {
	Body      bool
	Structure bool
}

// Event is one item of a fetch stream: *AttributesEvent, *BodyEvent,
// *EndEvent or *ErrorEvent.
type Event interface {
	isEvent()
}

// AttributesEvent carries a message's UID and, when requested, its body
// structure.
type AttributesEvent struct {
	SeqNum    uint32
	UID       uint32
	Structure structure.Part
}

// BodyEvent carries the complete raw bytes of a message.
type BodyEvent struct {
	SeqNum uint32
	Body   []byte
}

// EndEvent marks the end of the stream. No events follow it.
type EndEvent struct{}

// ErrorEvent reports a failure of the fetch as a whole. No events follow it.
type ErrorEvent struct {
	Err error
}

func (*AttributesEvent) isEvent() {}
func (*BodyEvent) isEvent()       {}
func (*EndEvent) isEvent()        {}
func (*ErrorEvent) isEvent()      {}

// Stream delivers the events of one fetch. Attribute and body events of
// different messages may interleave in any order. Close deregisters the
// listener and must be called exactly once; it is safe to call before the
// stream has ended.
type Stream interface {
	Events() <-chan Event
	Close() error
}

// FolderOpenError is returned when a folder cannot be selected.
type FolderOpenError struct {
	Folder string
	Err    error
}

func (e *FolderOpenError) Error() string {
	return fmt.Sprintf("failed to open folder %s: %v", e.Folder, e.Err)
}

func (e *FolderOpenError) Unwrap() error { return e.Err }

// SearchError is returned when the store rejects or fails a search.
type SearchError struct {
	Query string
	Err   error
}

func (e *SearchError) Error() string {
	return fmt.Sprintf("search %q failed: %v", e.Query, e.Err)
}

func (e *SearchError) Unwrap() error { return e.Err }

// FetchError is returned when a fetch cannot be started or fails midway.
type FetchError struct {
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch failed: %v", e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }
