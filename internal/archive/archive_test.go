package archive

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/emersion/go-mbox"

	"github.com/bscott/mailfetch/internal/model"
)

func testRecord(seq uint32, subject string) *model.Record {
	return &model.Record{
		Identity: model.Identity{SeqNum: seq, UID: seq},
		From:     "Alice <alice@example.com>",
		Subject:  subject,
		Date:     time.Date(2024, time.March, 5, 10, 0, 0, 0, time.UTC),
		Raw:      []byte("From: alice@example.com\r\nSubject: " + subject + "\r\n\r\nbody\r\n"),
	}
}

func TestMboxArchive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "archive", "fetched.mbox")

	a, err := Open(FormatMbox, path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	added, err := Store(a, []*model.Record{testRecord(1, "first"), testRecord(2, "second")}, nil)
	if err != nil {
		t.Fatalf("Store() error = %v", err)
	}
	if added != 2 {
		t.Errorf("added = %d, want 2", added)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("failed to open mbox: %v", err)
	}
	defer f.Close()

	r := mbox.NewReader(f)
	var subjects []string
	for {
		msg, err := r.NextMessage()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("NextMessage() error = %v", err)
		}
		data, err := io.ReadAll(msg)
		if err != nil {
			t.Fatalf("failed to read message: %v", err)
		}
		subjects = append(subjects, string(data))
	}

	if len(subjects) != 2 {
		t.Fatalf("mbox holds %d messages, want 2", len(subjects))
	}
	if !strings.Contains(subjects[0], "Subject: first") || !strings.Contains(subjects[1], "Subject: second") {
		t.Errorf("unexpected mbox contents: %q", subjects)
	}

	raw, _ := os.ReadFile(path)
	if !strings.HasPrefix(string(raw), "From alice@example.com ") {
		t.Errorf("mbox should start with the sender's From_ line, got %q", strings.SplitN(string(raw), "\n", 2)[0])
	}
}

func TestMaildirArchive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Maildir")

	a, err := Open(FormatMaildir, path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer a.Close()

	for _, sub := range []string{"cur", "new", "tmp"} {
		if _, err := os.Stat(filepath.Join(path, sub)); err != nil {
			t.Errorf("maildir is missing %s: %v", sub, err)
		}
	}

	if _, err := Store(a, []*model.Record{testRecord(1, "first"), testRecord(2, "second")}, nil); err != nil {
		t.Fatalf("Store() error = %v", err)
	}

	entries, err := os.ReadDir(filepath.Join(path, "new"))
	if err != nil {
		t.Fatalf("failed to read new/: %v", err)
	}
	if len(entries) != 2 {
		t.Errorf("new/ holds %d messages, want 2", len(entries))
	}

	// Reopening an existing maildir must not fail.
	if _, err := OpenMaildir(path); err != nil {
		t.Errorf("OpenMaildir() on existing dir error = %v", err)
	}
}

func TestStoreSkipsFailures(t *testing.T) {
	a, err := Open(FormatMaildir, filepath.Join(t.TempDir(), "md"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	empty := &model.Record{Identity: model.Identity{SeqNum: 7}}
	added, err := Store(a, []*model.Record{empty, testRecord(8, "ok")}, nil)
	if err == nil || !strings.Contains(err.Error(), "message 7") {
		t.Errorf("Store() error = %v, want failure for message 7", err)
	}
	if added != 1 {
		t.Errorf("added = %d, want 1", added)
	}
}

func TestOpenErrors(t *testing.T) {
	if _, err := Open("zip", filepath.Join(t.TempDir(), "x")); err == nil {
		t.Error("expected error for unknown format")
	}
	if _, err := Open(FormatMbox, ""); err == nil {
		t.Error("expected error for empty path")
	}
}

func TestEnvelopeSender(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Alice <alice@example.com>", "alice@example.com"},
		{"bob@example.com", "bob@example.com"},
		{model.NotAvailable, "MAILER-DAEMON"},
		{"", "MAILER-DAEMON"},
		{"not an address", "MAILER-DAEMON"},
	}

	for _, tt := range tests {
		if got := envelopeSender(tt.input); got != tt.expected {
			t.Errorf("envelopeSender(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}
