package cli

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"golang.org/x/term"

	"github.com/bscott/mailfetch/internal/config"
	"github.com/bscott/mailfetch/internal/imap"
	"github.com/bscott/mailfetch/internal/logging"
	"github.com/bscott/mailfetch/internal/output"
	"github.com/bscott/mailfetch/internal/transport"
)

var Version = "0.1.0"

type Globals struct {
	JSON     bool   `help:"Output as JSON" name:"json"`
	HelpJSON bool   `help:"Output command help as JSON (AI agent mode)" name:"help-json"`
	Config   string `help:"Path to config file" short:"c" type:"path"`
	Verbose  bool   `help:"Verbose output" short:"v"`
	Quiet    bool   `help:"Suppress non-essential output" short:"q"`
	NoColor  bool   `help:"Disable colored output" name:"no-color"`
}

type CLI struct {
	Globals

	Fetch   FetchCmd   `cmd:"" help:"Retrieve messages from a folder"`
	Save    SaveCmd    `cmd:"" help:"Retrieve messages and save their attachments"`
	Folders FoldersCmd `cmd:"" help:"List folders as a tree"`
	Config  ConfigCmd  `cmd:"" help:"Configuration management"`
	Version VersionCmd `cmd:"" help:"Show version information"`
}

// Dialer creates the transport a command talks to.
type Dialer func(cfg *config.Config, logger *slog.Logger) transport.Transport

type Context struct {
	Config    *config.Config
	Formatter *output.Formatter
	Globals   *Globals
	Logger    *slog.Logger
	Dial      Dialer

	closeLog func() error
}

func NewContext(globals *Globals) (*Context, error) {
	noColor := globals.NoColor || os.Getenv("NO_COLOR") != "" || !term.IsTerminal(int(os.Stdout.Fd()))
	formatter := output.New(globals.JSON, globals.Verbose, globals.Quiet, noColor)

	cfg, err := config.Load(globals.Config)
	if err != nil {
		formatter.PrintWarning(fmt.Sprintf("%v, using defaults", err))
		cfg = config.DefaultConfig()
	}
	if cfg.Defaults.Format == "json" {
		formatter.JSON = true
	}

	logger, closeLog, err := logging.New(logging.Options{
		Level:   cfg.Log.Level,
		Dir:     cfg.Log.Dir,
		Verbose: globals.Verbose,
		Quiet:   globals.Quiet,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to set up logging: %w", err)
	}

	return &Context{
		Config:    cfg,
		Formatter: formatter,
		Globals:   globals,
		Logger:    logger,
		Dial: func(cfg *config.Config, logger *slog.Logger) transport.Transport {
			return imap.NewSession(cfg, logger)
		},
		closeLog: closeLog,
	}, nil
}

// Close releases the log file, if any.
func (c *Context) Close() error {
	if c.closeLog == nil {
		return nil
	}
	return c.closeLog()
}

func (c *Context) requireAccount() error {
	if c.Config.IMAP.Host == "" || c.Config.IMAP.Email == "" {
		return fmt.Errorf("not configured - run 'mailfetch config init' first")
	}
	return nil
}

func (c *Context) timeout() time.Duration {
	if c.Config.Defaults.Timeout > 0 {
		return c.Config.Defaults.Timeout
	}
	return config.DefaultTimeout
}

// RetrievalFlags are shared by fetch and save. Zero values fall back to
// the configured defaults.
type RetrievalFlags struct {
	Folder       string        `help:"Folder to read (default from config)" short:"f"`
	Range        string        `help:"Time range: none, today, yesterday, thisWeek, last7days, thisMonth, lastMonth" short:"r"`
	Limit        int           `help:"Keep only the newest N matches (0 = config default, -1 = all)" short:"n"`
	Timeout      time.Duration `help:"Give up and return what has arrived after this long"`
	Structure    bool          `help:"Discover attachments from the server body structure"`
	AllowPartial bool          `help:"Keep going when the fetch reports an error" name:"allow-partial"`
	Workers      int           `help:"Concurrent parse workers"`
}

type FetchCmd struct {
	RetrievalFlags
}

type SaveCmd struct {
	RetrievalFlags

	Out            string `help:"Output directory (default from config)" short:"o" type:"path"`
	ClassifyByDate bool   `help:"Put attachments in MM-DD subfolders" name:"classify-by-date"`
	Archive        string `help:"Also store raw messages: mbox or maildir"`
	ArchivePath    string `help:"Archive file or directory" name:"archive-path" type:"path"`
}

type FoldersCmd struct {
	Flat bool `help:"List folder names without building a tree"`
}

// ConfigCmd handles configuration management
type ConfigCmd struct {
	Init     ConfigInitCmd     `cmd:"" help:"Interactive setup wizard"`
	Show     ConfigShowCmd     `cmd:"" help:"Display current configuration"`
	Set      ConfigSetCmd      `cmd:"" help:"Set a configuration value"`
	Validate ConfigValidateCmd `cmd:"" help:"Check the configuration and test the IMAP login"`
	Doctor   ConfigDoctorCmd   `cmd:"" help:"Diagnose configuration issues"`
}

type ConfigInitCmd struct{}

type ConfigShowCmd struct{}

type ConfigSetCmd struct {
	Key   string `arg:"" help:"Configuration key (e.g., imap.host, defaults.limit)"`
	Value string `arg:"" help:"Value to set"`
}

type ConfigValidateCmd struct{}

type ConfigDoctorCmd struct{}

// VersionCmd shows version information
type VersionCmd struct{}
