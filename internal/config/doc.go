// Package config handles configuration loading for coven-chat.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable
// expansion. The package provides validation and sensible defaults.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from COVEN_CHAT_CONFIG environment variable
//  2. ~/.config/coven/chat.yaml
//
// A missing file is not an error for callers that fall back to Default().
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	auth:
//	  token_path: "${COVEN_TOKEN_FILE}"
//
// Syntax: ${VAR_NAME}
//
// # Configuration Sections
//
// Gateway connection:
//
//	gateway:
//	  url: "wss://gateway.example.com/chat"
//	  request_url: "/api/chat"
//	  handshake_timeout: "10s"
//
// Authentication:
//
//	auth:
//	  token_path: "~/.config/coven/token"   # COVEN_TOKEN env wins
//
// History:
//
//	history:
//	  conversation: "default"
//	  disable_bootstrap: false
//
// Transcript archive:
//
//	archive:
//	  enabled: true
//	  path: "~/.local/share/coven/chat.db"
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
// # Validation
//
// Load() validates:
//
//   - Gateway URL presence
//   - Logging level and format values
//   - Archive path presence when the archive is enabled
//   - Duration format validity
package config
