// Package config handles Mafuyu configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./config.yaml, ~/.config/mafuyu/config.yaml, /etc/mafuyu/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "mafuyu", "config.yaml"))
	}

	paths = append(paths, "/etc/mafuyu/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all Mafuyu configuration.
type Config struct {
	Listen      ListenConfig     `yaml:"listen"`
	Models      ModelsConfig     `yaml:"models"`
	Anthropic   AnthropicConfig  `yaml:"anthropic"`
	Search      SearchConfig     `yaml:"search"`
	Workspace   WorkspaceConfig  `yaml:"workspace"`
	PythonExec  PythonExecConfig `yaml:"python_exec"`
	Delegate    DelegateConfig   `yaml:"delegate"`
	Bridge      BridgeConfig     `yaml:"bridge"`
	Session     SessionConfig    `yaml:"session"`
	DataDir     string           `yaml:"data_dir"`
	PersonaFile string           `yaml:"persona_file"`
	FewshotFile string           `yaml:"fewshot_file"`
	LogLevel    string           `yaml:"log_level"`
}

// ListenConfig defines the HTTP API server settings.
type ListenConfig struct {
	Address string `yaml:"address"` // Bind address (default: "" = all interfaces)
	Port    int    `yaml:"port"`
}

// ModelsConfig defines completion backend settings.
type ModelsConfig struct {
	Default   string `yaml:"default"`
	Provider  string `yaml:"provider"` // ollama, anthropic
	OllamaURL string `yaml:"ollama_url"`
}

// AnthropicConfig defines Anthropic API settings.
type AnthropicConfig struct {
	APIKey string `yaml:"api_key"`
}

// SearchConfig defines web search provider settings.
type SearchConfig struct {
	Primary  string `yaml:"primary"` // searxng, brave
	SearXNG  string `yaml:"searxng_url"`
	BraveKey string `yaml:"brave_api_key"`
}

// WorkspaceConfig defines the agent's workspace for file operations.
// All file tool paths are relative to Path; empty disables file tools.
type WorkspaceConfig struct {
	Path string `yaml:"path"`
}

// PythonExecConfig defines python snippet execution. Disabled by default.
type PythonExecConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Python     string `yaml:"python"` // interpreter binary (default: python3)
	TimeoutSec int    `yaml:"timeout_sec"`
}

// DelegateConfig defines the external coding-agent bridge.
type DelegateConfig struct {
	Enabled      bool   `yaml:"enabled"`
	Command      string `yaml:"command"` // coding CLI invocation (e.g. "codex -a never")
	WorkDir      string `yaml:"work_dir"`
	LogTailLines int    `yaml:"log_tail_lines"`
}

// BridgeConfig defines the websocket chat-gateway front-end.
type BridgeConfig struct {
	Enabled          bool       `yaml:"enabled"`
	URL              string     `yaml:"url"`   // gateway websocket URL
	Token            string     `yaml:"token"` // gateway auth token
	AllowedDMUser    string     `yaml:"allowed_dm_user"`
	FreeChatChannels []string   `yaml:"free_chat_channels"`
	RateLimit        int        `yaml:"rate_limit"` // messages per sender per minute; 0 = unlimited
	Idle             IdleConfig `yaml:"idle"`
}

// IdleConfig controls autonomous idle speech.
type IdleConfig struct {
	Enabled        bool `yaml:"enabled"`
	IntervalMin    int  `yaml:"interval_min"`     // how often to consider speaking (default 20)
	MinGapMin      int  `yaml:"min_gap_min"`      // stay quiet this long after the last exchange (default 60)
	QuietStartHour int  `yaml:"quiet_start_hour"` // inclusive (default 0)
	QuietEndHour   int  `yaml:"quiet_end_hour"`   // exclusive (default 7)
}

// SessionConfig bounds the reasoning loop.
type SessionConfig struct {
	MaxTurns           int `yaml:"max_turns"`             // backend calls per exchange (default 3)
	ToolResultMaxChars int `yaml:"tool_result_max_chars"` // payload cap (default 2000)
	HistoryWindow      int `yaml:"history_window"`        // turns kept verbatim (default 40)
	MemoryHits         int `yaml:"memory_hits"`           // memory records injected per exchange (default 3)
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Default returns a default configuration.
func Default() *Config {
	return &Config{
		Listen: ListenConfig{Port: 8080},
		Models: ModelsConfig{
			Default:   "gemma3:12b",
			Provider:  "ollama",
			OllamaURL: "http://localhost:11434",
		},
		Search: SearchConfig{Primary: "searxng"},
		PythonExec: PythonExecConfig{
			Python:     "python3",
			TimeoutSec: 30,
		},
		Delegate: DelegateConfig{
			Command:      "codex -a never",
			LogTailLines: 80,
		},
		Bridge: BridgeConfig{
			Idle: IdleConfig{
				IntervalMin:    20,
				MinGapMin:      60,
				QuietStartHour: 0,
				QuietEndHour:   7,
			},
		},
		Session: SessionConfig{
			MaxTurns:           3,
			ToolResultMaxChars: 2000,
			HistoryWindow:      40,
			MemoryHits:         3,
		},
		DataDir: "data",
	}
}
