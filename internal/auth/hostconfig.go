package auth

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
)

// HostConfig updates the MCP host application's configuration file after a
// token refresh, so a host that passes tokens through server environment
// variables picks up the rotated pair on its next launch. All failures are
// reported to the caller, who treats them as best-effort.
type HostConfig struct {
	path       string
	serverName string
	logger     *slog.Logger
}

// NewHostConfig creates a notifier targeting the named server entry in the
// host configuration at the platform default location.
func NewHostConfig(serverName string, logger *slog.Logger) (*HostConfig, error) {
	path, err := hostConfigPath()
	if err != nil {
		return nil, err
	}
	return NewHostConfigAt(path, serverName, logger), nil
}

// NewHostConfigAt creates a notifier with an explicit config path (tests).
func NewHostConfigAt(path, serverName string, logger *slog.Logger) *HostConfig {
	if logger == nil {
		logger = slog.Default()
	}
	return &HostConfig{path: path, serverName: serverName, logger: logger}
}

// hostConfigPath returns the Claude Desktop configuration location for the
// current platform.
func hostConfigPath() (string, error) {
	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to locate home directory: %w", err)
		}
		return filepath.Join(home, "Library", "Application Support", "Claude", "claude_desktop_config.json"), nil
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			return "", fmt.Errorf("APPDATA is not set")
		}
		return filepath.Join(appData, "Claude", "claude_desktop_config.json"), nil
	default:
		configDir, err := os.UserConfigDir()
		if err != nil {
			return "", fmt.Errorf("failed to locate user config directory: %w", err)
		}
		return filepath.Join(configDir, "Claude", "claude_desktop_config.json"), nil
	}
}

// TokensUpdated rewrites the env block of this server's entry with the new
// token pair. Entries for other servers and unrelated keys in the file are
// preserved verbatim. A missing file or missing server entry is not an
// error: there is simply nothing to update.
func (h *HostConfig) TokensUpdated(rec *Record) error {
	data, err := os.ReadFile(h.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read host config: %w", err)
	}

	var cfg map[string]json.RawMessage
	if err := json.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("failed to parse host config: %w", err)
	}

	raw, ok := cfg["mcpServers"]
	if !ok {
		return nil
	}
	var servers map[string]map[string]json.RawMessage
	if err := json.Unmarshal(raw, &servers); err != nil {
		return fmt.Errorf("failed to parse mcpServers block: %w", err)
	}
	entry, ok := servers[h.serverName]
	if !ok {
		return nil
	}

	env := map[string]string{}
	if rawEnv, ok := entry["env"]; ok {
		if err := json.Unmarshal(rawEnv, &env); err != nil {
			return fmt.Errorf("failed to parse server env block: %w", err)
		}
	}
	env[EnvAccessToken] = rec.AccessToken
	env[EnvRefreshToken] = rec.RefreshToken

	encEnv, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to encode server env block: %w", err)
	}
	entry["env"] = encEnv
	servers[h.serverName] = entry

	encServers, err := json.Marshal(servers)
	if err != nil {
		return fmt.Errorf("failed to encode mcpServers block: %w", err)
	}
	cfg["mcpServers"] = encServers

	out, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode host config: %w", err)
	}
	if err := os.WriteFile(h.path, out, 0600); err != nil {
		return fmt.Errorf("failed to write host config: %w", err)
	}

	h.logger.Info("updated host config with rotated tokens",
		slog.String("path", h.path), slog.String("server", h.serverName))
	return nil
}
