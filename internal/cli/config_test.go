package cli

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/zalando/go-keyring"

	"github.com/bscott/mailfetch/internal/config"
	"github.com/bscott/mailfetch/internal/output"
	"github.com/bscott/mailfetch/internal/transport/transporttest"
)

func TestConfigShowCmdRunWithoutConfig(t *testing.T) {
	cmd := &ConfigShowCmd{}

	ctx := &Context{
		Config:    nil,
		Formatter: output.New(false, false, false, true),
		Globals:   &Globals{},
	}

	if err := cmd.Run(ctx); err == nil {
		t.Error("expected error when config is nil")
	}
}

func TestConfigShowCmdRunJSON(t *testing.T) {
	keyring.MockInit()

	ctx, out, _ := testContext(&transporttest.Fake{}, true)
	ctx.Config.IMAP.Port = 1143

	if err := (&ConfigShowCmd{}).Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	var result map[string]map[string]interface{}
	if err := json.Unmarshal(out.Bytes(), &result); err != nil {
		t.Fatalf("invalid JSON output: %v", err)
	}

	if result["imap"]["email"] != "user@example.com" {
		t.Errorf("email = %v", result["imap"]["email"])
	}
	if result["imap"]["port"] != float64(1143) {
		t.Errorf("port = %v", result["imap"]["port"])
	}
	if result["defaults"]["timeout"] != "2m0s" {
		t.Errorf("timeout = %v", result["defaults"]["timeout"])
	}
	if _, ok := result["output"]; !ok {
		t.Error("expected output section")
	}
}

func TestConfigShowCmdRunText(t *testing.T) {
	keyring.MockInit()

	ctx, out, _ := testContext(&transporttest.Fake{}, false)
	if err := ctx.Config.SetPassword("secret"); err != nil {
		t.Fatal(err)
	}

	if err := (&ConfigShowCmd{}).Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	text := out.String()
	for _, want := range []string{"Host:     imap.example.com", "Folder:    INBOX", "stored in keyring"} {
		if !strings.Contains(text, want) {
			t.Errorf("output missing %q:\n%s", want, text)
		}
	}
	if strings.Contains(text, "secret") {
		t.Error("password must not be shown")
	}
}

func TestConfigSetCmdRun(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")

	tests := []struct {
		key     string
		value   string
		checker func(*config.Config) bool
	}{
		{"imap.host", "192.168.1.1", func(c *config.Config) bool { return c.IMAP.Host == "192.168.1.1" }},
		{"imap.port", "143", func(c *config.Config) bool { return c.IMAP.Port == 143 }},
		{"imap.security", "starttls", func(c *config.Config) bool { return c.IMAP.Security == config.SecurityStartTLS }},
		{"defaults.range", "last7days", func(c *config.Config) bool { return c.Defaults.Range == "last7days" }},
		{"defaults.limit", "50", func(c *config.Config) bool { return c.Defaults.Limit == 50 }},
		{"output.archive", "maildir", func(c *config.Config) bool { return c.Output.Archive == "maildir" }},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			ctx, _, _ := testContext(&transporttest.Fake{}, false)
			ctx.Formatter.Quiet = true
			ctx.Globals.Config = configPath

			cmd := &ConfigSetCmd{Key: tt.key, Value: tt.value}
			if err := cmd.Run(ctx); err != nil {
				t.Fatalf("Run() error = %v", err)
			}

			if !tt.checker(ctx.Config) {
				t.Errorf("config value not set correctly for %s", tt.key)
			}

			saved, err := config.Load(configPath)
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if !tt.checker(saved) {
				t.Errorf("saved config does not hold %s", tt.key)
			}
		})
	}
}

func TestConfigSetCmdRunInvalid(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"no dot", "invalid", "x"},
		{"too many dots", "a.b.c", "x"},
		{"unknown section", "bridge.email", "x"},
		{"unknown imap key", "imap.unknown", "x"},
		{"invalid port", "imap.port", "not-a-number"},
		{"invalid range", "defaults.range", "fortnight"},
		{"invalid format", "defaults.format", "xml"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, _, _ := testContext(&transporttest.Fake{}, false)
			ctx.Globals.Config = filepath.Join(t.TempDir(), "config.yaml")

			cmd := &ConfigSetCmd{Key: tt.key, Value: tt.value}
			if err := cmd.Run(ctx); err == nil {
				t.Errorf("expected error for %s=%s", tt.key, tt.value)
			}
		})
	}
}

func TestConfigSetCmdCreatesDefaultConfig(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")

	ctx := &Context{
		Config:    nil,
		Formatter: output.New(false, false, true, true),
		Globals:   &Globals{Config: configPath},
	}

	cmd := &ConfigSetCmd{Key: "imap.email", Value: "test@example.com"}
	if err := cmd.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if ctx.Config == nil {
		t.Fatal("expected config to be created")
	}
	if ctx.Config.IMAP.Email != "test@example.com" {
		t.Error("email not set in newly created config")
	}
}

func TestConfigValidateCmd(t *testing.T) {
	t.Run("without config", func(t *testing.T) {
		ctx := &Context{
			Config:    nil,
			Formatter: output.New(false, false, false, true),
			Globals:   &Globals{},
		}
		if err := (&ConfigValidateCmd{}).Run(ctx); err == nil {
			t.Error("expected error when config is nil")
		}
	})

	t.Run("invalid values", func(t *testing.T) {
		fake := &transporttest.Fake{}
		ctx, _, _ := testContext(fake, false)
		ctx.Config.IMAP.Host = ""
		ctx.Config.Defaults.Workers = 0

		err := (&ConfigValidateCmd{}).Run(ctx)
		if err == nil || !strings.Contains(err.Error(), "imap.host") || !strings.Contains(err.Error(), "defaults.workers") {
			t.Errorf("Run() error = %v", err)
		}
		if len(fake.Calls()) != 0 {
			t.Error("should not connect with an invalid config")
		}
	})

	t.Run("login failure", func(t *testing.T) {
		fake := &transporttest.Fake{
			ConnectFunc: func(ctx context.Context) error { return errors.New("authentication failed") },
		}
		ctx, _, _ := testContext(fake, false)

		err := (&ConfigValidateCmd{}).Run(ctx)
		if err == nil || !strings.Contains(err.Error(), "authentication failed") {
			t.Errorf("Run() error = %v", err)
		}
	})

	t.Run("success", func(t *testing.T) {
		fake := &transporttest.Fake{}
		ctx, out, _ := testContext(fake, true)

		if err := (&ConfigValidateCmd{}).Run(ctx); err != nil {
			t.Fatalf("Run() error = %v", err)
		}

		var result output.JSONResponse
		if err := json.Unmarshal(out.Bytes(), &result); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		data, _ := result.Data.(map[string]interface{})
		if !result.Success || data["host"] != "imap.example.com" {
			t.Errorf("result = %+v", result)
		}
		if strings.Join(fake.Calls(), ",") != "Connect,Disconnect" {
			t.Errorf("calls = %v", fake.Calls())
		}
	})
}

func TestConfigDoctorUnreachableServer(t *testing.T) {
	keyring.MockInit()

	fake := &transporttest.Fake{}
	ctx, out, _ := testContext(fake, true)
	ctx.Globals.Config = filepath.Join(t.TempDir(), "missing.yaml")
	ctx.Config.IMAP.Host = "127.0.0.1"
	ctx.Config.IMAP.Port = 1
	ctx.Config.Output.Dir = filepath.Join(t.TempDir(), "attachments")
	if err := ctx.Config.SetPassword("secret"); err != nil {
		t.Fatal(err)
	}

	if err := (&ConfigDoctorCmd{}).Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	var result struct {
		Checks  []checkResult `json:"checks"`
		Healthy bool          `json:"healthy"`
	}
	if err := json.Unmarshal(out.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse JSON output: %v", err)
	}

	if result.Healthy {
		t.Error("doctor should report unhealthy")
	}

	want := map[string]string{
		"Config file exists":        "fail",
		"Config valid":              "ok",
		"Password in keyring":       "ok",
		"IMAP port reachable":       "fail",
		"IMAP login succeeds":       "fail",
		"Output directory writable": "ok",
	}
	for _, c := range result.Checks {
		status, ok := want[c.Name]
		if !ok {
			t.Errorf("unexpected check %q", c.Name)
			continue
		}
		if c.Status != status {
			t.Errorf("%s: status = %q (%s), want %q", c.Name, c.Status, c.Message, status)
		}
		if c.Name == "IMAP login succeeds" && c.Message != "cannot test - server not reachable" {
			t.Errorf("login message = %q", c.Message)
		}
		delete(want, c.Name)
	}
	if len(want) != 0 {
		t.Errorf("missing checks: %v", want)
	}

	if len(fake.Calls()) != 0 {
		t.Errorf("login should not be attempted, calls = %v", fake.Calls())
	}
}

func TestCheckWritable(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "out")
	if err := checkWritable(dir); err != nil {
		t.Errorf("checkWritable() error = %v", err)
	}

	entries, _ := filepath.Glob(filepath.Join(dir, "*"))
	if len(entries) != 0 {
		t.Errorf("probe file should be removed, found %v", entries)
	}
}
