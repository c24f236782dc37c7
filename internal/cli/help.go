package cli

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"time"
	"unicode"
)

type HelpSchema struct {
	Name        string          `json:"name"`
	Version     string          `json:"version"`
	Description string          `json:"description"`
	Commands    []CommandSchema `json:"commands"`
	GlobalFlags []FlagSchema    `json:"global_flags"`
}

type CommandSchema struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Flags       []FlagSchema    `json:"flags,omitempty"`
	Args        []ArgSchema     `json:"args,omitempty"`
	Subcommands []CommandSchema `json:"subcommands,omitempty"`
	Examples    []string        `json:"examples,omitempty"`
}

type FlagSchema struct {
	Name        string `json:"name"`
	Short       string `json:"short,omitempty"`
	Type        string `json:"type"`
	Default     string `json:"default,omitempty"`
	Required    bool   `json:"required,omitempty"`
	Description string `json:"description"`
}

type ArgSchema struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Required    bool   `json:"required"`
	Description string `json:"description"`
}

const description = "Retrieve IMAP messages and extract their attachments"

func GenerateHelpJSON(cli *CLI) ([]byte, error) {
	schema := HelpSchema{
		Name:        "mailfetch",
		Version:     Version,
		Description: description,
		GlobalFlags: extractGlobalFlags(),
		Commands:    extractCommands(cli),
	}

	return json.MarshalIndent(schema, "", "  ")
}

func extractGlobalFlags() []FlagSchema {
	return []FlagSchema{
		{Name: "--json", Type: "bool", Description: "Output as JSON (applies to all commands)"},
		{Name: "--help-json", Type: "bool", Description: "Output command help as JSON (AI agent mode)"},
		{Name: "--config", Short: "-c", Type: "string", Description: "Path to config file"},
		{Name: "--verbose", Short: "-v", Type: "bool", Description: "Verbose output"},
		{Name: "--quiet", Short: "-q", Type: "bool", Description: "Suppress non-essential output"},
		{Name: "--no-color", Type: "bool", Description: "Disable colored output"},
	}
}

func extractCommands(cli *CLI) []CommandSchema {
	retrievalFlags := extractFieldsFromStruct(reflect.TypeOf(cli.Fetch.RetrievalFlags))

	return []CommandSchema{
		{
			Name:        "fetch",
			Description: "Retrieve messages from a folder and list them",
			Flags:       retrievalFlags,
			Examples: []string{
				"mailfetch fetch",
				"mailfetch fetch -f Archive -r thisWeek -n 50",
				"mailfetch fetch --range today --timeout 30s --json",
			},
		},
		{
			Name:        "save",
			Description: "Retrieve messages and save their attachments to disk",
			Flags:       append(append([]FlagSchema(nil), retrievalFlags...), extractFieldsFromStruct(reflect.TypeOf(cli.Save))...),
			Examples: []string{
				"mailfetch save -r yesterday -o ./attachments",
				"mailfetch save --classify-by-date --structure",
				"mailfetch save --archive mbox --archive-path ./fetched.mbox",
			},
		},
		{
			Name:        "folders",
			Description: "List folders as a tree",
			Flags:       extractFieldsFromStruct(reflect.TypeOf(cli.Folders)),
			Examples:    []string{"mailfetch folders", "mailfetch folders --flat --json"},
		},
		extractConfigCommands(),
		{
			Name:        "version",
			Description: "Show version information",
			Examples:    []string{"mailfetch version", "mailfetch version --json"},
		},
	}
}

func extractConfigCommands() CommandSchema {
	return CommandSchema{
		Name:        "config",
		Description: "Configuration management",
		Subcommands: []CommandSchema{
			{
				Name:        "config init",
				Description: "Interactive setup wizard for the IMAP connection",
				Examples:    []string{"mailfetch config init"},
			},
			{
				Name:        "config show",
				Description: "Display current configuration",
				Examples:    []string{"mailfetch config show", "mailfetch config show --json"},
			},
			{
				Name:        "config set",
				Description: "Set a configuration value",
				Args: []ArgSchema{
					{Name: "key", Type: "string", Required: true, Description: "Configuration key (e.g., imap.host, defaults.limit)"},
					{Name: "value", Type: "string", Required: true, Description: "Value to set"},
				},
				Examples: []string{
					"mailfetch config set defaults.limit 50",
					"mailfetch config set defaults.range thisWeek",
					"mailfetch config set output.archive maildir",
				},
			},
			{
				Name:        "config validate",
				Description: "Check the configuration and test the IMAP login",
				Examples:    []string{"mailfetch config validate"},
			},
			{
				Name:        "config doctor",
				Description: "Diagnose configuration issues",
				Examples:    []string{"mailfetch config doctor", "mailfetch config doctor --json"},
			},
		},
	}
}

// extractFieldsFromStruct reads flag information from the kong tags of a
// command struct. Embedded structs and commands are skipped.
func extractFieldsFromStruct(t reflect.Type) []FlagSchema {
	var flags []FlagSchema

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)

		if field.Anonymous {
			continue
		}
		if _, isCmd := field.Tag.Lookup("cmd"); isCmd {
			continue
		}

		helpTag := field.Tag.Get("help")
		if helpTag == "" {
			continue
		}

		flagName := "--" + kebab(field.Name)
		if nameTag := field.Tag.Get("name"); nameTag != "" {
			flagName = "--" + nameTag
		}
		_, required := field.Tag.Lookup("required")

		flag := FlagSchema{
			Name:        flagName,
			Type:        getTypeString(field.Type),
			Description: helpTag,
			Default:     field.Tag.Get("default"),
			Required:    required,
		}

		if shortTag := field.Tag.Get("short"); shortTag != "" {
			flag.Short = "-" + shortTag
		}

		flags = append(flags, flag)
	}

	return flags
}

var durationType = reflect.TypeOf(time.Duration(0))

func getTypeString(t reflect.Type) string {
	if t == durationType {
		return "duration"
	}
	switch t.Kind() {
	case reflect.String:
		return "string"
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return "int"
	case reflect.Bool:
		return "bool"
	case reflect.Slice:
		return "[]" + getTypeString(t.Elem())
	default:
		return t.String()
	}
}

// kebab turns a Go field name into kong's default flag name.
func kebab(name string) string {
	var b strings.Builder
	for i, r := range name {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('-')
			}
			r = unicode.ToLower(r)
		}
		b.WriteRune(r)
	}
	return b.String()
}

func PrintHelpJSON(cli *CLI) error {
	data, err := GenerateHelpJSON(cli)
	if err != nil {
		return fmt.Errorf("failed to generate help JSON: %w", err)
	}
	fmt.Println(string(data))
	return nil
}
