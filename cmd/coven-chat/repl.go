// ABOUTME: Interactive chat session: dial, render streamed replies, read input
// ABOUTME: Slash commands cover clear, cancel, export, rpc, and history

package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/2389/coven-chat/internal/auth"
	"github.com/2389/coven-chat/internal/chat"
	"github.com/2389/coven-chat/internal/conversation"
	"github.com/2389/coven-chat/internal/store"
	"github.com/2389/coven-chat/internal/transport"
	"github.com/2389/coven-chat/internal/wire"
)

func runChat(ctx context.Context) error {
	// Print banner
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, configPath, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	logger := setupLogger(cfg.Logging)

	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	green.Print("    ▶ ")
	fmt.Printf("Config:    %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("Gateway:   %s\n", cfg.Gateway.URL)

	token, err := auth.Load(cfg.Auth.TokenPath)
	switch {
	case errors.Is(err, auth.ErrNoToken):
		gray.Print("    ▶ ")
		fmt.Println("Auth:      none (set COVEN_TOKEN to authenticate)")
	case err != nil:
		return fmt.Errorf("loading token: %w", err)
	default:
		subject := "token configured"
		if info, ierr := auth.Inspect(token); ierr == nil && info.Subject != "" {
			subject = info.Subject
			if info.Expired() {
				yellow.Print("    ▶ ")
				fmt.Println("Auth:      token expired, the gateway may reject it")
			}
		}
		green.Print("    ▶ ")
		fmt.Printf("Auth:      %s\n", subject)
	}

	if cfg.Archive.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("Archive:   %s\n", cfg.Archive.Path)
	}
	fmt.Println()

	conn, err := transport.Dial(ctx, cfg.Gateway.URL, transport.Options{
		Header:           auth.Header(token),
		HandshakeTimeout: cfg.Gateway.HandshakeTimeout,
		Logger:           logger,
	})
	if err != nil {
		return fmt.Errorf("connecting to gateway: %w", err)
	}

	var archive *store.Archive
	opts := chat.Options{
		Transport:        conn,
		RequestURL:       cfg.Gateway.RequestURL,
		Conversation:     cfg.History.Conversation,
		Logger:           logger,
		DisableBootstrap: cfg.History.DisableBootstrap,
	}
	if cfg.Archive.Enabled {
		archive, err = store.Open(cfg.Archive.Path, logger)
		if err != nil {
			return fmt.Errorf("opening archive: %w", err)
		}
		defer archive.Close()
		opts.Archive = archive
	}

	client := chat.New(opts)
	client.Start(ctx)
	defer client.Close()

	go renderUpdates(ctx, client)

	return repl(ctx, client, archive)
}

// renderUpdates prints streamed replies as they land in the conversation.
func renderUpdates(ctx context.Context, client *chat.Client) {
	updates, _ := client.Subscribe(ctx)
	green := color.New(color.FgGreen)
	gray := color.New(color.FgHiBlack)

	for u := range updates {
		switch u.Kind {
		case conversation.UpdateStart:
			green.Print("\ncoven> ")
		case conversation.UpdateDelta:
			fmt.Print(u.Delta)
		case conversation.UpdateFinish:
			fmt.Println()
		case conversation.UpdateReset:
			gray.Println("\n(history cleared)")
		case conversation.UpdateReplace:
			gray.Println("\n(history replaced)")
		}
	}
}

func repl(ctx context.Context, client *chat.Client, archive *store.Archive) error {
	cyan := color.New(color.FgCyan)
	gray := color.New(color.FgHiBlack)
	red := color.New(color.FgRed)

	gray.Println("Type a message and press enter. /help lists commands.")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		cyan.Print("you> ")
		if !scanner.Scan() {
			fmt.Println()
			return scanner.Err()
		}
		if ctx.Err() != nil {
			return nil
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			quit, err := handleCommand(ctx, client, archive, line)
			if err != nil {
				red.Printf("error: %v\n", err)
			}
			if quit {
				return nil
			}
			continue
		}

		if err := client.SendText(ctx, line); err != nil {
			red.Printf("error: %v\n", err)
			continue
		}
		waitForReply(ctx, client)
		if client.Status() == chat.StatusError {
			if err := client.LastError(); err != nil {
				red.Printf("error: %v\n", err)
			}
		}
	}
}

// waitForReply blocks until the active stream settles or ctx ends.
func waitForReply(ctx context.Context, client *chat.Client) {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if client.Status() != chat.StatusStreaming {
				return
			}
		}
	}
}

func printCommands() {
	fmt.Println("Commands:")
	fmt.Println("  /messages        Show the conversation so far")
	fmt.Println("  /clear           Clear the shared conversation")
	fmt.Println("  /cancel          Cancel the in-flight reply")
	fmt.Println("  /status          Show engine status")
	fmt.Println("  /history         List archived conversations")
	fmt.Println("  /export FILE     Export this conversation to HTML")
	fmt.Println("  /rpc METHOD ...  Call a gateway method (args as JSON)")
	fmt.Println("  /quit            Exit")
}

func handleCommand(ctx context.Context, client *chat.Client, archive *store.Archive, line string) (bool, error) {
	fields := strings.Fields(line)
	cmd, args := fields[0], fields[1:]

	switch cmd {
	case "/help":
		printCommands()
	case "/quit", "/exit":
		return true, nil
	case "/clear":
		return false, client.ClearHistory()
	case "/cancel":
		client.CancelActive()
	case "/status":
		fmt.Printf("status: %s\n", client.Status())
		if err := client.LastError(); err != nil {
			fmt.Printf("last error: %v\n", err)
		}
	case "/messages":
		printTranscript(client.Messages())
	case "/history":
		if archive == nil {
			return false, fmt.Errorf("archive is not enabled in config")
		}
		return false, printHistory(ctx, archive)
	case "/export":
		if len(args) != 1 {
			return false, fmt.Errorf("usage: /export FILE")
		}
		return false, exportMessages(client.Messages(), args[0])
	case "/rpc":
		if len(args) == 0 {
			return false, fmt.Errorf("usage: /rpc METHOD [JSON_ARG...]")
		}
		return false, callRPC(ctx, client, args[0], args[1:])
	default:
		return false, fmt.Errorf("unknown command %s (try /help)", cmd)
	}
	return false, nil
}

func printTranscript(msgs []wire.Message) {
	if len(msgs) == 0 {
		fmt.Println("(no messages)")
		return
	}

	cyan := color.New(color.FgCyan)
	green := color.New(color.FgGreen)
	gray := color.New(color.FgHiBlack)

	for _, m := range msgs {
		switch m.Role {
		case wire.RoleUser:
			cyan.Print("you> ")
		case wire.RoleAssistant:
			green.Print("coven> ")
		default:
			gray.Printf("%s> ", m.Role)
		}
		fmt.Println(m.Text())
	}
}

func printHistory(ctx context.Context, archive *store.Archive) error {
	infos, err := archive.Conversations(ctx)
	if err != nil {
		return fmt.Errorf("listing conversations: %w", err)
	}
	if len(infos) == 0 {
		fmt.Println("(no archived conversations)")
		return nil
	}

	for _, info := range infos {
		fmt.Printf("%-24s %4d messages  updated %s\n",
			info.Key, info.Messages, info.UpdatedAt.Local().Format("2006-01-02 15:04"))
	}
	return nil
}

func callRPC(ctx context.Context, client *chat.Client, method string, rawArgs []string) error {
	args := make([]any, 0, len(rawArgs))
	for _, a := range rawArgs {
		if json.Valid([]byte(a)) {
			args = append(args, json.RawMessage(a))
		} else {
			// Bare words go through as strings.
			args = append(args, a)
		}
	}

	cctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	result, err := client.Call(cctx, method, args...)
	if err != nil {
		return err
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, result, "", "  "); err != nil {
		fmt.Println(string(result))
		return nil
	}
	fmt.Println(pretty.String())
	return nil
}
