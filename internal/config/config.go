// Package config defines and loads the daemon configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// Config is the full configuration tree.
type Config struct {
	Agent     AgentConfig      `mapstructure:"agent" json:"agent"`
	Providers []ProviderConfig `mapstructure:"providers" json:"providers"`
	Storage   StorageConfig    `mapstructure:"storage" json:"storage"`
	Skills    SkillsConfig     `mapstructure:"skills" json:"skills"`
	Workspace WorkspaceConfig  `mapstructure:"workspace" json:"workspace"`
	Channels  ChannelsConfig   `mapstructure:"channels" json:"channels"`
	Subagents SubagentsConfig  `mapstructure:"subagents" json:"subagents"`
	Cron      []CronConfig     `mapstructure:"cron" json:"cron"`
	Log       LogConfig        `mapstructure:"log" json:"log"`
}

// AgentConfig controls the agent loop.
type AgentConfig struct {
	SystemPrompt  string `mapstructure:"system_prompt" json:"system_prompt"`
	MaxRounds     int    `mapstructure:"max_rounds" json:"max_rounds"`
	HistoryWindow int    `mapstructure:"history_window" json:"history_window"`
}

// ProviderConfig is one backend in pool order.
type ProviderConfig struct {
	// Kind is "anthropic" or "openai"; openai covers any compatible
	// endpoint via base_url.
	Kind      string `mapstructure:"kind" json:"kind"`
	Name      string `mapstructure:"name" json:"name"`
	APIKey    string `mapstructure:"api_key" json:"api_key"`
	BaseURL   string `mapstructure:"base_url" json:"base_url"`
	Model     string `mapstructure:"model" json:"model"`
	MaxTokens int64  `mapstructure:"max_tokens" json:"max_tokens"`
}

// StorageConfig locates the history database.
type StorageConfig struct {
	Path string `mapstructure:"path" json:"path"`
}

// SkillsConfig locates the skills directory.
type SkillsConfig struct {
	Dir   string `mapstructure:"dir" json:"dir"`
	Watch bool   `mapstructure:"watch" json:"watch"`
}

// WorkspaceConfig locates the directory file tools operate in.
type WorkspaceConfig struct {
	Dir string `mapstructure:"dir" json:"dir"`
}

// ChannelsConfig enables message transports.
type ChannelsConfig struct {
	Terminal  TerminalConfig  `mapstructure:"terminal" json:"terminal"`
	WebSocket WebSocketConfig `mapstructure:"websocket" json:"websocket"`
}

// TerminalConfig controls the interactive REPL channel.
type TerminalConfig struct {
	Enabled bool   `mapstructure:"enabled" json:"enabled"`
	Sender  string `mapstructure:"sender" json:"sender"`
}

// WebSocketConfig controls the chat-room channel.
type WebSocketConfig struct {
	Enabled bool     `mapstructure:"enabled" json:"enabled"`
	Addr    string   `mapstructure:"addr" json:"addr"`
	Path    string   `mapstructure:"path" json:"path"`
	Tokens  []string `mapstructure:"tokens" json:"tokens"`
}

// SubagentsConfig defines spawnable worker profiles.
type SubagentsConfig struct {
	MaxRounds int             `mapstructure:"max_rounds" json:"max_rounds"`
	Profiles  []ProfileConfig `mapstructure:"profiles" json:"profiles"`
}

// ProfileConfig is one named worker profile. Providers, when set, replaces
// the main pool for workers of this profile, letting cheap tasks run on a
// cheaper tier.
type ProfileConfig struct {
	Name         string           `mapstructure:"name" json:"name"`
	SystemPrompt string           `mapstructure:"system_prompt" json:"system_prompt"`
	Tools        []string         `mapstructure:"tools" json:"tools"`
	Providers    []ProviderConfig `mapstructure:"providers" json:"providers"`
}

// CronConfig is one scheduled prompt. Providers, when set, replaces the
// main pool for this entry's invocations.
type CronConfig struct {
	Name      string           `mapstructure:"name" json:"name"`
	Schedule  string           `mapstructure:"schedule" json:"schedule"`
	Prompt    string           `mapstructure:"prompt" json:"prompt"`
	Providers []ProviderConfig `mapstructure:"providers" json:"providers"`
}

// LogConfig controls logging.
type LogConfig struct {
	Level   string `mapstructure:"level" json:"level"`
	File    string `mapstructure:"file" json:"file"`
	Console bool   `mapstructure:"console" json:"console"`
	Pretty  bool   `mapstructure:"pretty" json:"pretty"`
}

// DefaultConfig returns the baseline configuration.
func DefaultConfig() *Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	base := filepath.Join(home, ".squidbot")

	return &Config{
		Agent: AgentConfig{
			SystemPrompt:  "You are squidbot, a personal assistant.",
			MaxRounds:     10,
			HistoryWindow: 50,
		},
		Storage: StorageConfig{
			Path: filepath.Join(base, "history.db"),
		},
		Skills: SkillsConfig{
			Dir:   filepath.Join(base, "skills"),
			Watch: true,
		},
		Workspace: WorkspaceConfig{
			Dir: filepath.Join(base, "workspace"),
		},
		Channels: ChannelsConfig{
			Terminal: TerminalConfig{Enabled: true, Sender: "owner"},
			WebSocket: WebSocketConfig{
				Addr: "127.0.0.1:8790",
				Path: "/ws",
			},
		},
		Subagents: SubagentsConfig{
			MaxRounds: 10,
		},
		Log: LogConfig{
			Level:   "info",
			Console: true,
			Pretty:  true,
		},
	}
}

// Validate checks the configuration for launch.
func (c *Config) Validate() error {
	if len(c.Providers) == 0 {
		return fmt.Errorf("at least one provider is required")
	}
	if err := validateProviders(c.Providers, "providers"); err != nil {
		return err
	}
	if c.Agent.MaxRounds <= 0 {
		return fmt.Errorf("agent.max_rounds must be positive")
	}
	if c.Agent.HistoryWindow <= 0 {
		return fmt.Errorf("agent.history_window must be positive")
	}
	if c.Storage.Path == "" {
		return fmt.Errorf("storage.path is required")
	}

	seen := make(map[string]bool)
	for _, profile := range c.Subagents.Profiles {
		if profile.Name == "" {
			return fmt.Errorf("subagent profile name is required")
		}
		if seen[profile.Name] {
			return fmt.Errorf("duplicate subagent profile: %s", profile.Name)
		}
		seen[profile.Name] = true
		if err := validateProviders(profile.Providers, "profile "+profile.Name); err != nil {
			return err
		}
	}

	for _, entry := range c.Cron {
		if err := validateProviders(entry.Providers, "cron entry "+entry.Name); err != nil {
			return err
		}
	}
	return nil
}

// validateProviders checks one provider list; override lists may be empty.
func validateProviders(list []ProviderConfig, scope string) error {
	for i, p := range list {
		if p.Kind != "anthropic" && p.Kind != "openai" {
			return fmt.Errorf("%s: provider %d: unknown kind %q", scope, i, p.Kind)
		}
		if p.Model == "" {
			return fmt.Errorf("%s: provider %d: model is required", scope, i)
		}
	}
	return nil
}
