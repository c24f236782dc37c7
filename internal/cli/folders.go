package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/bscott/mailfetch/internal/collector"
	"github.com/bscott/mailfetch/internal/transport"
)

func (c *FoldersCmd) Run(ctx *Context) error {
	if err := ctx.requireAccount(); err != nil {
		return err
	}

	runCtx, cancel := context.WithTimeout(context.Background(), ctx.timeout())
	defer cancel()

	ctx.Formatter.Verbosef("Listing folders...")

	var folders []transport.Folder
	err := collector.WithSession(runCtx, ctx.Dial(ctx.Config, ctx.Logger), func(t transport.Transport) error {
		var err error
		folders, err = t.ListFolders(runCtx)
		return err
	})
	if err != nil {
		return err
	}

	if c.Flat {
		if ctx.Formatter.JSON {
			return ctx.Formatter.PrintJSON(map[string]interface{}{
				"count":   len(folders),
				"folders": folders,
			})
		}
		if len(folders) == 0 {
			fmt.Fprintln(ctx.Formatter.Writer, "No folders found.")
			return nil
		}
		fmt.Fprintf(ctx.Formatter.Writer, "Folders (%d):\n\n", len(folders))
		for _, f := range folders {
			attrs := ""
			if len(f.Attributes) > 0 {
				attrs = fmt.Sprintf(" [%s]", formatAttributes(f.Attributes))
			}
			fmt.Fprintf(ctx.Formatter.Writer, "  %s%s\n", f.Name, attrs)
		}
		return nil
	}

	tree := transport.BuildTree(folders)
	if ctx.Formatter.JSON {
		return ctx.Formatter.PrintJSON(map[string]interface{}{
			"count":   len(folders),
			"folders": tree,
		})
	}

	if len(tree) == 0 {
		fmt.Fprintln(ctx.Formatter.Writer, "No folders found.")
		return nil
	}
	ctx.Formatter.PrintFolderTree(tree)
	return nil
}

func formatAttributes(attrs []string) string {
	if len(attrs) == 0 {
		return ""
	}

	cleaned := make([]string, len(attrs))
	for i, attr := range attrs {
		cleaned[i] = strings.TrimPrefix(attr, "\\")
	}
	return strings.Join(cleaned, ", ")
}
