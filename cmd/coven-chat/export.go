// ABOUTME: Transcript export to standalone HTML via markdown rendering
// ABOUTME: Also implements the top-level history listing command

package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"html/template"
	"os"

	"github.com/yuin/goldmark"

	"github.com/2389/coven-chat/internal/store"
	"github.com/2389/coven-chat/internal/wire"
)

var transcriptTemplate = template.Must(template.New("transcript").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
  body { font-family: sans-serif; max-width: 48rem; margin: 2rem auto; padding: 0 1rem; }
  .message { margin: 1rem 0; padding: 0.75rem 1rem; border-radius: 0.5rem; }
  .user { background: #eef4ff; }
  .assistant { background: #f4f4f4; }
  .system { background: #fff8e6; }
  .role { font-size: 0.8rem; color: #666; text-transform: uppercase; margin-bottom: 0.25rem; }
</style>
</head>
<body>
<h1>{{.Title}}</h1>
{{range .Messages}}<div class="message {{.Role}}">
<div class="role">{{.Role}}</div>
{{.Body}}
</div>
{{end}}</body>
</html>
`))

type renderedMessage struct {
	Role string
	Body template.HTML
}

// exportMessages writes the given transcript to path as standalone HTML.
// Message text is rendered as markdown.
func exportMessages(msgs []wire.Message, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating export file: %w", err)
	}
	defer f.Close()

	rendered := make([]renderedMessage, 0, len(msgs))
	for _, m := range msgs {
		var htmlBuf bytes.Buffer
		if err := goldmark.Convert([]byte(m.Text()), &htmlBuf); err != nil {
			return fmt.Errorf("rendering message %s: %w", m.ID, err)
		}
		rendered = append(rendered, renderedMessage{
			Role: string(m.Role),
			Body: template.HTML(htmlBuf.String()),
		})
	}

	data := struct {
		Title    string
		Messages []renderedMessage
	}{
		Title:    "Conversation transcript",
		Messages: rendered,
	}

	if err := transcriptTemplate.Execute(f, data); err != nil {
		return fmt.Errorf("writing transcript: %w", err)
	}

	fmt.Printf("Exported %d messages to %s\n", len(msgs), path)
	return nil
}

// runExport exports an archived conversation to HTML without connecting.
func runExport(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	out := fs.String("out", "", "output HTML file (required)")
	key := fs.String("conversation", "", "conversation key (defaults to the configured one)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *out == "" {
		return fmt.Errorf("--out is required")
	}

	cfg, _, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if !cfg.Archive.Enabled {
		return fmt.Errorf("archive is not enabled in config")
	}
	if *key == "" {
		*key = cfg.History.Conversation
	}

	logger := setupLogger(cfg.Logging)
	archive, err := store.Open(cfg.Archive.Path, logger)
	if err != nil {
		return fmt.Errorf("opening archive: %w", err)
	}
	defer archive.Close()

	msgs, err := archive.Snapshot(ctx, *key)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("no archived conversation %q", *key)
		}
		return fmt.Errorf("reading snapshot: %w", err)
	}

	return exportMessages(msgs, *out)
}

// runHistory lists archived conversations without connecting.
func runHistory(ctx context.Context) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if !cfg.Archive.Enabled {
		return fmt.Errorf("archive is not enabled in config")
	}

	logger := setupLogger(cfg.Logging)
	archive, err := store.Open(cfg.Archive.Path, logger)
	if err != nil {
		return fmt.Errorf("opening archive: %w", err)
	}
	defer archive.Close()

	return printHistory(ctx, archive)
}
