package cli

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/bscott/mailfetch/internal/transport"
	"github.com/bscott/mailfetch/internal/transport/transporttest"
)

func folderFake() *transporttest.Fake {
	return &transporttest.Fake{
		ListFoldersFunc: func(ctx context.Context) ([]transport.Folder, error) {
			return []transport.Folder{
				{Name: "Archive", Delimiter: "/"},
				{Name: "Work/Reports", Delimiter: "/", Attributes: []string{"\\HasNoChildren"}},
				{Name: "INBOX", Delimiter: "/"},
			}, nil
		},
	}
}

func TestFoldersCmdTree(t *testing.T) {
	fake := folderFake()
	ctx, out, _ := testContext(fake, false)

	if err := (&FoldersCmd{}).Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	want := "INBOX\nArchive\nWork\n  Reports\n"
	if out.String() != want {
		t.Errorf("output = %q, want %q", out.String(), want)
	}

	calls := fake.Calls()
	if len(calls) != 3 || calls[1] != "ListFolders" || calls[2] != "Disconnect" {
		t.Errorf("calls = %v", calls)
	}
}

func TestFoldersCmdFlat(t *testing.T) {
	ctx, out, _ := testContext(folderFake(), false)

	if err := (&FoldersCmd{Flat: true}).Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	want := "Folders (3):\n\n  Archive\n  Work/Reports [HasNoChildren]\n  INBOX\n"
	if out.String() != want {
		t.Errorf("output = %q, want %q", out.String(), want)
	}
}

func TestFoldersCmdJSON(t *testing.T) {
	ctx, out, _ := testContext(folderFake(), true)

	if err := (&FoldersCmd{}).Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	var result struct {
		Count   int                     `json:"count"`
		Folders []*transport.FolderNode `json:"folders"`
	}
	if err := json.Unmarshal(out.Bytes(), &result); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}

	if result.Count != 3 || len(result.Folders) != 3 {
		t.Fatalf("result = %+v", result)
	}
	work := result.Folders[2]
	if work.Name != "Work" || work.Folder != nil || len(work.Children) != 1 || work.Children[0].Path != "Work/Reports" {
		t.Errorf("Work node = %+v", work)
	}
}

func TestFoldersCmdErrors(t *testing.T) {
	t.Run("not configured", func(t *testing.T) {
		ctx, _, _ := testContext(&transporttest.Fake{}, false)
		ctx.Config.IMAP.Host = ""
		if err := (&FoldersCmd{}).Run(ctx); err == nil {
			t.Error("expected error when not configured")
		}
	})

	t.Run("list failure", func(t *testing.T) {
		fake := &transporttest.Fake{
			ListFoldersFunc: func(ctx context.Context) ([]transport.Folder, error) {
				return nil, errors.New("LIST failed")
			},
		}
		ctx, _, _ := testContext(fake, false)
		if err := (&FoldersCmd{}).Run(ctx); err == nil {
			t.Error("expected error")
		}
	})
}

func TestFormatAttributes(t *testing.T) {
	tests := []struct {
		name     string
		attrs    []string
		expected string
	}{
		{"empty", []string{}, ""},
		{"single attribute", []string{"\\HasChildren"}, "HasChildren"},
		{"multiple attributes", []string{"\\HasChildren", "\\Drafts"}, "HasChildren, Drafts"},
		{"no backslash", []string{"Custom"}, "Custom"},
		{"mixed", []string{"\\Noselect", "Custom"}, "Noselect, Custom"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := formatAttributes(tt.attrs); got != tt.expected {
				t.Errorf("formatAttributes(%v) = %q, want %q", tt.attrs, got, tt.expected)
			}
		})
	}
}
