package logging

import (
	"bytes"
	"log/slog"
	"os"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"chatty", slog.LevelInfo},
	}

	for _, tt := range tests {
		if got := ParseLevel(tt.input); got != tt.expected {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.expected)
		}
	}
}

func TestNewLevels(t *testing.T) {
	tests := []struct {
		name      string
		opts      Options
		wantDebug bool
		wantWarn  bool
	}{
		{"info default", Options{}, false, true},
		{"debug level", Options{Level: "debug"}, true, true},
		{"verbose overrides", Options{Level: "error", Verbose: true}, true, true},
		{"quiet", Options{Level: "debug", Quiet: true}, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			tt.opts.Output = &buf

			logger, cleanup, err := New(tt.opts)
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}
			defer cleanup()

			logger.Debug("debug line")
			logger.Warn("warn line", "seq", 3)

			out := buf.String()
			if got := strings.Contains(out, "debug line"); got != tt.wantDebug {
				t.Errorf("debug logged = %v, want %v\n%s", got, tt.wantDebug, out)
			}
			if got := strings.Contains(out, "warn line"); got != tt.wantWarn {
				t.Errorf("warn logged = %v, want %v\n%s", got, tt.wantWarn, out)
			}
		})
	}
}

func TestNewWithLogDir(t *testing.T) {
	dir := t.TempDir()
	var buf bytes.Buffer

	logger, cleanup, err := New(Options{Dir: dir, Output: &buf})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	logger.Info("written twice")
	if err := cleanup(); err != nil {
		t.Fatalf("cleanup() error = %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil || len(entries) != 1 {
		t.Fatalf("expected one log file, got %v (err %v)", entries, err)
	}
	if !strings.HasPrefix(entries[0].Name(), "mailfetch-") {
		t.Errorf("log file name = %q", entries[0].Name())
	}

	data, _ := os.ReadFile(dir + "/" + entries[0].Name())
	if !strings.Contains(string(data), "written twice") {
		t.Error("log file should contain the message")
	}
	if !strings.Contains(buf.String(), "written twice") {
		t.Error("output should contain the message")
	}
}
