package imap

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/bscott/mailfetch/internal/config"
	"github.com/bscott/mailfetch/internal/search"
	"github.com/bscott/mailfetch/internal/transport"
)

// scriptedServer accepts one plaintext IMAP connection and returns a
// session logged in to it. LOGIN, CAPABILITY and LOGOUT are answered here;
// every other command goes to respond with its tag and upper-cased verb.
// A respond that writes nothing leaves the command pending.
func scriptedServer(t *testing.T, respond func(w io.Writer, tag, verb string)) *Session {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		fmt.Fprint(conn, "* OK [CAPABILITY IMAP4rev1] ready\r\n")
		r := bufio.NewReader(conn)
		for {
			line, err := r.ReadString('\n')
			if err != nil {
				return
			}
			tag, rest, _ := strings.Cut(strings.TrimRight(line, "\r\n"), " ")
			verb, _, _ := strings.Cut(rest, " ")
			switch verb = strings.ToUpper(verb); verb {
			case "LOGIN":
				fmt.Fprintf(conn, "%s OK [CAPABILITY IMAP4rev1] logged in\r\n", tag)
			case "CAPABILITY":
				fmt.Fprintf(conn, "* CAPABILITY IMAP4rev1\r\n%s OK done\r\n", tag)
			case "LOGOUT":
				fmt.Fprintf(conn, "* BYE\r\n%s OK bye\r\n", tag)
				return
			default:
				respond(conn, tag, verb)
			}
		}
	}()

	_, port, _ := net.SplitHostPort(ln.Addr().String())
	cfg := config.DefaultConfig()
	cfg.IMAP.Host = "127.0.0.1"
	cfg.IMAP.Port, _ = strconv.Atoi(port)
	cfg.IMAP.Security = config.SecurityNone
	cfg.IMAP.Email = "user@example.com"

	s := NewSession(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.password = func() (string, error) { return "secret", nil }

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Connect(ctx); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(func() { s.Disconnect() })
	return s
}

func collectEvents(t *testing.T, st transport.Stream) []transport.Event {
	t.Helper()
	var events []transport.Event
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-st.Events():
			if !ok {
				return events
			}
			events = append(events, ev)
		case <-timeout:
			t.Fatalf("stream did not close, got %d events", len(events))
		}
	}
}

func TestFetchStreamSkipsNilBody(t *testing.T) {
	s := scriptedServer(t, func(w io.Writer, tag, verb string) {
		if verb != "FETCH" {
			fmt.Fprintf(w, "%s OK done\r\n", tag)
			return
		}
		fmt.Fprint(w, "* 1 FETCH (UID 5 BODY[] NIL)\r\n")
		fmt.Fprint(w, "* 2 FETCH (UID 6 BODY[] {5}\r\nhello)\r\n")
		fmt.Fprintf(w, "%s OK fetch done\r\n", tag)
	})

	st, err := s.Fetch(context.Background(), []uint32{1, 2}, transport.FetchOptions{Body: true})
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	defer st.Close()

	bodies := make(map[uint32]string)
	uids := make(map[uint32]uint32)
	ended := false
	for _, ev := range collectEvents(t, st) {
		switch e := ev.(type) {
		case *transport.BodyEvent:
			bodies[e.SeqNum] = string(e.Body)
		case *transport.AttributesEvent:
			uids[e.SeqNum] = e.UID
		case *transport.EndEvent:
			ended = true
		case *transport.ErrorEvent:
			t.Errorf("unexpected error event: %v", e.Err)
		}
	}

	if _, ok := bodies[1]; ok {
		t.Error("message 1 has no body and should not produce a body event")
	}
	if bodies[2] != "hello" {
		t.Errorf("body of message 2 = %q, want %q", bodies[2], "hello")
	}
	if uids[1] != 5 || uids[2] != 6 {
		t.Errorf("uids = %v", uids)
	}
	if !ended {
		t.Error("expected an end event")
	}
}

func TestCommandsHonorDeadline(t *testing.T) {
	stall := func(w io.Writer, tag, verb string) {}

	tests := []struct {
		name  string
		run   func(ctx context.Context, s *Session) error
		check func(err error) bool
	}{
		{
			name: "open folder",
			run: func(ctx context.Context, s *Session) error {
				_, err := s.OpenFolder(ctx, "INBOX", true)
				return err
			},
			check: func(err error) bool {
				var openErr *transport.FolderOpenError
				return errors.As(err, &openErr)
			},
		},
		{
			name: "search",
			run: func(ctx context.Context, s *Session) error {
				_, err := s.Search(ctx, search.Query{{Key: "ALL"}})
				return err
			},
			check: func(err error) bool {
				var searchErr *transport.SearchError
				return errors.As(err, &searchErr)
			},
		},
		{
			name: "list folders",
			run: func(ctx context.Context, s *Session) error {
				_, err := s.ListFolders(ctx)
				return err
			},
			check: func(err error) bool { return err != nil },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := scriptedServer(t, stall)

			ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
			defer cancel()

			done := make(chan error, 1)
			go func() { done <- tt.run(ctx, s) }()

			select {
			case err := <-done:
				if !errors.Is(err, context.DeadlineExceeded) || !tt.check(err) {
					t.Errorf("error = %v, want a typed error wrapping the deadline", err)
				}
			case <-time.After(3 * time.Second):
				t.Fatal("command still blocked after the deadline expired")
			}

			if _, err := s.ListFolders(context.Background()); !errors.Is(err, transport.ErrNotConnected) {
				t.Errorf("session should be disconnected after the deadline, got %v", err)
			}
		})
	}
}
