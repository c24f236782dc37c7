package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/term"

	"github.com/bscott/mailfetch/internal/config"
	"github.com/bscott/mailfetch/internal/search"
)

func (c *ConfigInitCmd) Run(ctx *Context) error {
	fmt.Println("mailfetch Configuration Wizard")
	fmt.Println("==============================")
	fmt.Println()
	fmt.Println("This wizard will help you configure mailfetch to read from an IMAP server.")
	fmt.Println()

	reader := bufio.NewReader(os.Stdin)
	cfg := config.DefaultConfig()

	prompt := func(label, def string) string {
		if def != "" {
			fmt.Printf("%s [%s]: ", label, def)
		} else {
			fmt.Printf("%s: ", label)
		}
		value, _ := reader.ReadString('\n')
		value = strings.TrimSpace(value)
		if value == "" {
			return def
		}
		return value
	}

	cfg.IMAP.Host = prompt("IMAP host", "")
	if cfg.IMAP.Host == "" {
		return fmt.Errorf("IMAP host is required")
	}

	portStr := prompt("IMAP port", strconv.Itoa(config.DefaultIMAPPort))
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > 65535 {
		return fmt.Errorf("invalid IMAP port: %s", portStr)
	}
	cfg.IMAP.Port = port

	if err := cfg.Set("imap.security", prompt("Security (tls, starttls, none)", config.SecurityTLS)); err != nil {
		return err
	}

	cfg.IMAP.Email = prompt("Login (email address)", "")
	if cfg.IMAP.Email == "" {
		return fmt.Errorf("login is required")
	}

	cfg.Output.Dir = prompt("Attachment directory", cfg.Output.Dir)

	fmt.Println()
	fmt.Print("IMAP password: ")

	passwordBytes, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return fmt.Errorf("failed to read password: %w", err)
	}
	password := string(passwordBytes)
	if password == "" {
		return fmt.Errorf("password is required")
	}

	configPath := ctx.Globals.Config
	if configPath == "" {
		configPath, err = config.ConfigPath()
		if err != nil {
			return err
		}
	}

	if err := cfg.Save(configPath); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	if err := cfg.SetPassword(password); err != nil {
		return fmt.Errorf("failed to store password in keyring: %w", err)
	}

	fmt.Println()
	fmt.Printf("Configuration saved to %s\n", configPath)
	fmt.Println("Password stored securely in system keyring.")
	fmt.Println()
	fmt.Println("Test your connection with: mailfetch config validate")

	return nil
}

func (c *ConfigShowCmd) Run(ctx *Context) error {
	if ctx.Config == nil {
		return fmt.Errorf("no configuration found - run 'mailfetch config init' first")
	}
	cfg := ctx.Config
	w := ctx.Formatter.Writer

	if ctx.Formatter.JSON {
		return ctx.Formatter.PrintJSON(map[string]interface{}{
			"imap": map[string]interface{}{
				"host":                 cfg.IMAP.Host,
				"port":                 cfg.IMAP.Port,
				"email":                cfg.IMAP.Email,
				"security":             cfg.IMAP.Security,
				"insecure_skip_verify": cfg.IMAP.InsecureSkipVerify,
			},
			"defaults": map[string]interface{}{
				"folder":    cfg.Defaults.Folder,
				"range":     cfg.Defaults.Range,
				"limit":     cfg.Defaults.Limit,
				"timeout":   cfg.Defaults.Timeout.String(),
				"discovery": cfg.Defaults.Discovery,
				"workers":   cfg.Defaults.Workers,
				"format":    cfg.Defaults.Format,
			},
			"output": map[string]interface{}{
				"dir":              cfg.Output.Dir,
				"classify_by_date": cfg.Output.ClassifyByDate,
				"archive":          cfg.Output.Archive,
				"archive_path":     cfg.Output.ArchivePath,
			},
			"log": map[string]interface{}{
				"level": cfg.Log.Level,
				"dir":   cfg.Log.Dir,
			},
		})
	}

	configPath := ctx.Globals.Config
	if configPath == "" {
		configPath, _ = config.ConfigPath()
	}
	fmt.Fprintf(w, "Configuration file: %s\n\n", configPath)

	fmt.Fprintln(w, ctx.Formatter.InfoText("IMAP Settings:"))
	fmt.Fprintf(w, "  Host:     %s\n", cfg.IMAP.Host)
	fmt.Fprintf(w, "  Port:     %d\n", cfg.IMAP.Port)
	fmt.Fprintf(w, "  Email:    %s\n", cfg.IMAP.Email)
	fmt.Fprintf(w, "  Security: %s\n", cfg.IMAP.Security)
	if cfg.IMAP.InsecureSkipVerify {
		fmt.Fprintf(w, "  %s\n", ctx.Formatter.WarningText("Certificate verification disabled"))
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, ctx.Formatter.InfoText("Defaults:"))
	fmt.Fprintf(w, "  Folder:    %s\n", cfg.Defaults.Folder)
	fmt.Fprintf(w, "  Range:     %s\n", cfg.Defaults.Range)
	fmt.Fprintf(w, "  Limit:     %d\n", cfg.Defaults.Limit)
	fmt.Fprintf(w, "  Timeout:   %s\n", cfg.Defaults.Timeout)
	fmt.Fprintf(w, "  Discovery: %s\n", cfg.Defaults.Discovery)
	fmt.Fprintf(w, "  Workers:   %d\n", cfg.Defaults.Workers)
	fmt.Fprintf(w, "  Format:    %s\n", cfg.Defaults.Format)

	fmt.Fprintln(w)
	fmt.Fprintln(w, ctx.Formatter.InfoText("Output:"))
	fmt.Fprintf(w, "  Directory:        %s\n", cfg.Output.Dir)
	fmt.Fprintf(w, "  Classify by date: %t\n", cfg.Output.ClassifyByDate)
	if cfg.Output.Archive != "" {
		fmt.Fprintf(w, "  Archive:          %s (%s)\n", cfg.Output.ArchivePath, cfg.Output.Archive)
	}

	_, err := cfg.GetPassword()
	fmt.Fprintln(w)
	if err != nil {
		fmt.Fprintln(w, "Password: not set (run 'mailfetch config init' to set)")
	} else {
		fmt.Fprintln(w, "Password: ********** (stored in keyring)")
	}

	return nil
}

func (c *ConfigSetCmd) Run(ctx *Context) error {
	if ctx.Config == nil {
		ctx.Config = config.DefaultConfig()
	}

	if c.Key == "defaults.range" {
		if _, err := search.ParseTimeRange(c.Value); err != nil {
			return err
		}
	}

	if err := ctx.Config.Set(c.Key, c.Value); err != nil {
		return err
	}

	if err := ctx.Config.Save(ctx.Globals.Config); err != nil {
		return err
	}

	ctx.Formatter.PrintSuccess(fmt.Sprintf("Set %s = %s", c.Key, c.Value))
	return nil
}

func (c *ConfigValidateCmd) Run(ctx *Context) error {
	if ctx.Config == nil {
		return fmt.Errorf("no configuration found - run 'mailfetch config init' first")
	}

	if err := ctx.Config.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	runCtx, cancel := context.WithTimeout(context.Background(), ctx.timeout())
	defer cancel()

	t := ctx.Dial(ctx.Config, ctx.Logger)
	if err := t.Connect(runCtx); err != nil {
		return fmt.Errorf("connection failed: %w", err)
	}
	if err := t.Disconnect(); err != nil {
		ctx.Logger.Debug("disconnect failed", "err", err)
	}

	if ctx.Formatter.JSON {
		return ctx.Formatter.Success(map[string]interface{}{
			"host":    ctx.Config.IMAP.Host,
			"email":   ctx.Config.IMAP.Email,
			"message": fmt.Sprintf("Successfully connected and authenticated to %s", ctx.Config.IMAP.Host),
		})
	}

	ctx.Formatter.PrintSuccess(fmt.Sprintf("Connection successful! Logged in to %s as %s.", ctx.Config.IMAP.Host, ctx.Config.IMAP.Email))
	return nil
}

type checkResult struct {
	Name    string `json:"name"`
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

func (c *ConfigDoctorCmd) Run(ctx *Context) error {
	var results []checkResult

	check := func(name string, err error, okMessage string) bool {
		r := checkResult{Name: name, Status: "ok", Message: okMessage}
		if err != nil {
			r.Status = "fail"
			r.Message = err.Error()
		}
		results = append(results, r)

		if !ctx.Formatter.JSON {
			prefix := ctx.Formatter.SuccessText("[OK]")
			if err != nil {
				prefix = ctx.Formatter.ErrorText("[FAIL]")
			}
			if r.Message != "" {
				fmt.Fprintf(ctx.Formatter.Writer, "%s %s - %s\n", prefix, name, r.Message)
			} else {
				fmt.Fprintf(ctx.Formatter.Writer, "%s %s\n", prefix, name)
			}
		}
		return err == nil
	}

	cfg := ctx.Config
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	// Config file
	configPath := ctx.Globals.Config
	var pathErr error
	if configPath == "" {
		configPath, pathErr = config.ConfigPath()
	}
	if pathErr == nil {
		if _, err := os.Stat(configPath); err != nil {
			pathErr = fmt.Errorf("not found at %s", configPath)
		}
	}
	check("Config file exists", pathErr, "")

	// Values
	check("Config valid", cfg.Validate(), "")

	// Password
	passwordErr := errors.New("cannot check - email not configured")
	if cfg.IMAP.Email != "" {
		_, passwordErr = cfg.GetPassword()
	}
	check("Password in keyring", passwordErr, "")

	// Network
	imapAddr := net.JoinHostPort(cfg.IMAP.Host, strconv.Itoa(cfg.IMAP.Port))
	var reachErr error
	if cfg.IMAP.Host == "" {
		reachErr = errors.New("cannot check - host not configured")
	} else if conn, err := net.DialTimeout("tcp", imapAddr, 5*time.Second); err != nil {
		reachErr = fmt.Errorf("cannot connect to %s", imapAddr)
	} else {
		conn.Close()
	}
	reachable := check("IMAP port reachable", reachErr, imapAddr)

	// Login
	loginErr := errors.New("cannot test - server not reachable")
	if reachable && passwordErr == nil {
		runCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		t := ctx.Dial(cfg, ctx.Logger)
		loginErr = t.Connect(runCtx)
		if loginErr == nil {
			t.Disconnect()
		}
		cancel()
	} else if reachable {
		loginErr = errors.New("cannot test - password not available")
	}
	check("IMAP login succeeds", loginErr, "")

	// Output directory
	check("Output directory writable", checkWritable(cfg.Output.Dir), cfg.Output.Dir)

	if ctx.Formatter.JSON {
		allOk := true
		for _, r := range results {
			if r.Status == "fail" {
				allOk = false
				break
			}
		}
		return ctx.Formatter.PrintJSON(map[string]interface{}{
			"checks":  results,
			"healthy": allOk,
		})
	}

	return nil
}

// checkWritable creates dir if needed and probes it with a temp file.
func checkWritable(dir string) error {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, ".mailfetch-probe-*")
	if err != nil {
		return err
	}
	name := f.Name()
	f.Close()
	return os.Remove(name)
}
