// Package config loads process settings from defaults and environment
// variables. Variables use the MSTODO_ prefix with double underscores for
// nesting (e.g. MSTODO_METRICS__ENABLED → metrics.enabled).
package config

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/v2"
)

// envPrefix is stripped from environment variables during config loading.
const envPrefix = "MSTODO_"

// Metrics configures the optional Prometheus endpoint.
type Metrics struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr"`
}

// Settings is the full process configuration.
type Settings struct {
	// Client identity for refresh-token exchanges and interactive sign-in.
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	TenantID     string `json:"tenant_id"`

	// Ambient token pair. When set, it wins over any stored credentials.
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`

	// ServerName is the entry name under mcpServers in the host config.
	ServerName string `json:"server_name"`

	// TokenFile overrides the canonical credential file location.
	TokenFile string `json:"token_file"`

	// BaseURL overrides the Graph To Do endpoint.
	BaseURL string `json:"base_url"`

	LogFormat string `json:"log_format"` // "text" or "json"
	Debug     bool   `json:"debug"`

	// ReadOnly controls whether write tools are registered. The --yolo
	// flag on serve overrides it to false.
	ReadOnly bool `json:"read_only"`

	Metrics Metrics `json:"metrics"`
}

// defaults are the baseline values before the environment is applied.
func defaults() map[string]interface{} {
	return map[string]interface{}{
		"tenant_id":       "common",
		"server_name":     "mstodo",
		"log_format":      "text",
		"debug":           false,
		"read_only":       true,
		"metrics.enabled": false,
		"metrics.addr":    ":9090",
	}
}

// Load builds Settings from defaults overlaid with MSTODO_ environment
// variables.
func Load() (*Settings, error) {
	return load(nil)
}

// load accepts an environ function for tests; nil means the real process
// environment.
func load(environFunc func() []string) (*Settings, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	envProvider := env.Provider(".", env.Opt{
		Prefix: envPrefix,
		TransformFunc: func(key, value string) (string, any) {
			stripped := strings.TrimPrefix(key, envPrefix)
			nested := strings.ToLower(strings.ReplaceAll(stripped, "__", "."))
			return nested, value
		},
		EnvironFunc: environFunc,
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("loading environment variables: %w", err)
	}

	settings := &Settings{}
	if err := k.UnmarshalWithConf("", settings, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	return settings, nil
}
