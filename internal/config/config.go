package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/zalando/go-keyring"
	"gopkg.in/yaml.v3"
)

const (
	AppName         = "mailfetch"
	DefaultIMAPPort = 993
	DefaultTimeout  = 2 * time.Minute
	DefaultWorkers  = 4
)

// Connection security modes.
const (
	SecurityTLS      = "tls"
	SecurityStartTLS = "starttls"
	SecurityNone     = "none"
)

type IMAPConfig struct {
	Host               string `yaml:"host"`
	Port               int    `yaml:"port"`
	Email              string `yaml:"email"`
	Security           string `yaml:"security"`
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify"`
}

type DefaultsConfig struct {
	Folder    string        `yaml:"folder"`
	Range     string        `yaml:"range"`
	Limit     int           `yaml:"limit"`
	Timeout   time.Duration `yaml:"timeout"`
	Discovery string        `yaml:"discovery"`
	Workers   int           `yaml:"workers"`
	Format    string        `yaml:"format"`
}

type OutputConfig struct {
	Dir            string `yaml:"dir"`
	ClassifyByDate bool   `yaml:"classify_by_date"`
	// Archive is "", "mbox" or "maildir".
	Archive     string `yaml:"archive"`
	ArchivePath string `yaml:"archive_path"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	Dir   string `yaml:"dir"`
}

type Config struct {
	IMAP     IMAPConfig     `yaml:"imap"`
	Defaults DefaultsConfig `yaml:"defaults"`
	Output   OutputConfig   `yaml:"output"`
	Log      LogConfig      `yaml:"log"`
}

func DefaultConfig() *Config {
	return &Config{
		IMAP: IMAPConfig{
			Port:     DefaultIMAPPort,
			Security: SecurityTLS,
		},
		Defaults: DefaultsConfig{
			Folder:    "INBOX",
			Range:     "none",
			Limit:     20,
			Timeout:   DefaultTimeout,
			Discovery: "parsed",
			Workers:   DefaultWorkers,
			Format:    "text",
		},
		Output: OutputConfig{
			Dir: "attachments",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

func ConfigDir() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to get config directory: %w", err)
	}
	return filepath.Join(configDir, AppName), nil
}

func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// Load reads the config file at path, or the default location when path
// is empty. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		var err error
		path, err = ConfigPath()
		if err != nil {
			return nil, err
		}
	}

	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return cfg, nil
}

func (c *Config) Save(path string) error {
	if path == "" {
		var err error
		path, err = ConfigPath()
		if err != nil {
			return err
		}
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// Validate checks the values that cannot be caught while decoding.
func (c *Config) Validate() error {
	var errs []error

	if c.IMAP.Host == "" {
		errs = append(errs, errors.New("imap.host is not set"))
	}
	if c.IMAP.Port <= 0 || c.IMAP.Port > 65535 {
		errs = append(errs, fmt.Errorf("imap.port %d is out of range", c.IMAP.Port))
	}
	if c.IMAP.Email == "" {
		errs = append(errs, errors.New("imap.email is not set"))
	}
	switch c.IMAP.Security {
	case SecurityTLS, SecurityStartTLS, SecurityNone:
	default:
		errs = append(errs, fmt.Errorf("imap.security must be tls, starttls or none, got %q", c.IMAP.Security))
	}
	if c.Defaults.Timeout <= 0 {
		errs = append(errs, errors.New("defaults.timeout must be positive"))
	}
	if c.Defaults.Workers <= 0 {
		errs = append(errs, errors.New("defaults.workers must be positive"))
	}
	switch c.Defaults.Discovery {
	case "parsed", "structure":
	default:
		errs = append(errs, fmt.Errorf("defaults.discovery must be parsed or structure, got %q", c.Defaults.Discovery))
	}
	switch c.Output.Archive {
	case "", "mbox", "maildir":
	default:
		errs = append(errs, fmt.Errorf("output.archive must be mbox or maildir, got %q", c.Output.Archive))
	}
	if c.Output.Archive != "" && c.Output.ArchivePath == "" {
		errs = append(errs, errors.New("output.archive_path is required when output.archive is set"))
	}

	return errors.Join(errs...)
}

// Set assigns a single value addressed as section.key, e.g. imap.host or
// defaults.limit.
func (c *Config) Set(key, value string) error {
	parts := strings.Split(key, ".")
	if len(parts) != 2 {
		return fmt.Errorf("invalid key format - use section.key (e.g., imap.host, defaults.limit)")
	}

	section, name := parts[0], parts[1]

	switch section {
	case "imap":
		switch name {
		case "host":
			c.IMAP.Host = value
		case "port":
			port, err := strconv.Atoi(value)
			if err != nil || port <= 0 || port > 65535 {
				return fmt.Errorf("invalid port value: %s", value)
			}
			c.IMAP.Port = port
		case "email":
			c.IMAP.Email = value
		case "security":
			switch value {
			case SecurityTLS, SecurityStartTLS, SecurityNone:
				c.IMAP.Security = value
			default:
				return fmt.Errorf("security must be 'tls', 'starttls' or 'none'")
			}
		case "insecure_skip_verify":
			b, err := strconv.ParseBool(value)
			if err != nil {
				return fmt.Errorf("invalid boolean value: %s", value)
			}
			c.IMAP.InsecureSkipVerify = b
		default:
			return fmt.Errorf("unknown imap key: %s", name)
		}
	case "defaults":
		switch name {
		case "folder":
			c.Defaults.Folder = value
		case "range":
			c.Defaults.Range = value
		case "limit":
			limit, err := strconv.Atoi(value)
			if err != nil {
				return fmt.Errorf("invalid limit value: %s", value)
			}
			c.Defaults.Limit = limit
		case "timeout":
			d, err := time.ParseDuration(value)
			if err != nil || d <= 0 {
				return fmt.Errorf("invalid timeout value: %s", value)
			}
			c.Defaults.Timeout = d
		case "discovery":
			if value != "parsed" && value != "structure" {
				return fmt.Errorf("discovery must be 'parsed' or 'structure'")
			}
			c.Defaults.Discovery = value
		case "workers":
			n, err := strconv.Atoi(value)
			if err != nil || n <= 0 {
				return fmt.Errorf("invalid workers value: %s", value)
			}
			c.Defaults.Workers = n
		case "format":
			if value != "text" && value != "json" {
				return fmt.Errorf("format must be 'text' or 'json'")
			}
			c.Defaults.Format = value
		default:
			return fmt.Errorf("unknown defaults key: %s", name)
		}
	case "output":
		switch name {
		case "dir":
			c.Output.Dir = value
		case "classify_by_date":
			b, err := strconv.ParseBool(value)
			if err != nil {
				return fmt.Errorf("invalid boolean value: %s", value)
			}
			c.Output.ClassifyByDate = b
		case "archive":
			if value != "" && value != "mbox" && value != "maildir" {
				return fmt.Errorf("archive must be 'mbox', 'maildir' or empty")
			}
			c.Output.Archive = value
		case "archive_path":
			c.Output.ArchivePath = value
		default:
			return fmt.Errorf("unknown output key: %s", name)
		}
	case "log":
		switch name {
		case "level":
			switch strings.ToLower(value) {
			case "debug", "info", "warn", "error":
				c.Log.Level = strings.ToLower(value)
			default:
				return fmt.Errorf("level must be debug, info, warn or error")
			}
		case "dir":
			c.Log.Dir = value
		default:
			return fmt.Errorf("unknown log key: %s", name)
		}
	default:
		return fmt.Errorf("unknown section: %s (use 'imap', 'defaults', 'output' or 'log')", section)
	}

	return nil
}

func (c *Config) SetPassword(password string) error {
	if c.IMAP.Email == "" {
		return errors.New("email must be set before storing password")
	}
	return keyring.Set(AppName, c.IMAP.Email, password)
}

func (c *Config) GetPassword() (string, error) {
	if c.IMAP.Email == "" {
		return "", errors.New("email not configured")
	}
	password, err := keyring.Get(AppName, c.IMAP.Email)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", fmt.Errorf("password not found in keyring - run 'mailfetch config init' to set it")
		}
		return "", fmt.Errorf("failed to get password from keyring: %w", err)
	}
	return password, nil
}

func DeletePassword(email string) error {
	return keyring.Delete(AppName, email)
}

func Exists() bool {
	path, err := ConfigPath()
	if err != nil {
		return false
	}
	_, err = os.Stat(path)
	return err == nil
}
