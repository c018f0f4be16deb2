// ABOUTME: Interactive config file creation for first-time setup
// ABOUTME: Writes chat.yaml to the default coven config location

package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/2389/coven-chat/internal/config"
)

// getDataPath returns the path to the coven data directory.
// Priority: XDG_DATA_HOME/coven > ~/.local/share/coven
func getDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data" // fallback
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "coven")
}

func runInit() error {
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("coven-chat configuration setup")
	fmt.Println("==============================")
	fmt.Println()

	defaultConfigPath, err := config.DefaultPath()
	if err != nil {
		return err
	}
	defaultArchivePath := filepath.Join(getDataPath(), "chat.db")

	outputFile := prompt(reader, "Config file path", defaultConfigPath)

	if _, err := os.Stat(outputFile); err == nil {
		overwrite := prompt(reader, "File exists. Overwrite?", "no")
		if strings.ToLower(overwrite) != "yes" && strings.ToLower(overwrite) != "y" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	fmt.Println("\n--- Gateway Configuration ---")
	gatewayURL := prompt(reader, "Gateway websocket URL", "ws://localhost:8080/chat")
	requestURL := prompt(reader, "Chat request path", "/api/chat")

	fmt.Println("\n--- History Configuration ---")
	conversation := prompt(reader, "Conversation key", "default")

	fmt.Println("\n--- Archive Configuration ---")
	enableArchive := prompt(reader, "Archive transcripts locally?", "no")
	archiveEnabled := strings.ToLower(enableArchive) == "yes" || strings.ToLower(enableArchive) == "y"
	archivePath := ""
	if archiveEnabled {
		archivePath = prompt(reader, "Archive database path", defaultArchivePath)
	}

	fmt.Println("\n--- Logging Configuration ---")
	logLevel := prompt(reader, "Log level (debug/info/warn/error)", "info")
	logFormat := prompt(reader, "Log format (text/json)", "text")

	var cfg strings.Builder
	cfg.WriteString("# coven-chat configuration\n")
	cfg.WriteString("# Generated by coven-chat init\n\n")

	cfg.WriteString("gateway:\n")
	cfg.WriteString(fmt.Sprintf("  url: \"%s\"\n", gatewayURL))
	cfg.WriteString(fmt.Sprintf("  request_url: \"%s\"\n", requestURL))
	cfg.WriteString("  handshake_timeout: \"10s\"\n")
	cfg.WriteString("\n")

	cfg.WriteString("history:\n")
	cfg.WriteString(fmt.Sprintf("  conversation: \"%s\"\n", conversation))
	cfg.WriteString("\n")

	cfg.WriteString("archive:\n")
	cfg.WriteString(fmt.Sprintf("  enabled: %t\n", archiveEnabled))
	if archiveEnabled {
		cfg.WriteString(fmt.Sprintf("  path: \"%s\"\n", archivePath))
	}
	cfg.WriteString("\n")

	cfg.WriteString("logging:\n")
	cfg.WriteString(fmt.Sprintf("  level: \"%s\"\n", logLevel))
	cfg.WriteString(fmt.Sprintf("  format: \"%s\"\n", logFormat))

	configDir := filepath.Dir(outputFile)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	if err := os.WriteFile(outputFile, []byte(cfg.String()), 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	fmt.Printf("\nConfig written to %s\n", outputFile)
	fmt.Println("\nTo start chatting:")
	fmt.Printf("  coven-chat\n")

	return nil
}

func prompt(reader *bufio.Reader, question, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", question, defaultVal)
	} else {
		fmt.Printf("%s: ", question)
	}

	input, err := reader.ReadString('\n')
	if err != nil {
		// On EOF or error, return default
		fmt.Println()
		return defaultVal
	}
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultVal
	}
	return input
}
