// Package config holds the llmws configuration surface: the ~/.llmws
// config file, the environment provider, and per-call settings resolution.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/agusx1211/llmws/pkg/wire"
)

// Environment variables consumed by target resolution and discovery.
const (
	EnvServers  = "LLMWS_SERVERS"  // comma-separated endpoint list
	EnvServer   = "LLMWS_SERVER"   // single endpoint fallback
	EnvDiscover = "LLMWS_DISCOVER" // "1"/"true" enables mDNS discovery
)

// ServerEntry is one configured server endpoint. In JSON it is either a bare
// URL string or an object carrying the URL plus declared capability tags.
type ServerEntry struct {
	URL          string   `json:"url"`
	Capabilities []string `json:"capabilities,omitempty"`
}

// UnmarshalJSON accepts both the string and the object form.
func (e *ServerEntry) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		return json.Unmarshal(data, &e.URL)
	}
	type plain ServerEntry
	return json.Unmarshal(data, (*plain)(e))
}

// Tuning holds the per-call knobs a model block or the deployment defaults
// may set. Zero or nil fields defer to the next configuration layer down.
type Tuning struct {
	ConnectTimeoutMS int                    `json:"connect_timeout_ms,omitempty"` // socket open deadline
	ReadTimeoutMS    int                    `json:"read_timeout_ms,omitempty"`    // idle deadline between frames
	IncludeHistory   *bool                  `json:"include_history,omitempty"`    // prepend transcript window
	HistoryTurns     *int                   `json:"history_turns,omitempty"`      // max history entries
	HistoryChars     *int                   `json:"history_chars,omitempty"`      // max history characters
	SilentSentinel   string                 `json:"silent_sentinel,omitempty"`    // assistant no-reply marker
	Generation       *wire.GenerationConfig `json:"generation,omitempty"`         // generation knob overrides
}

// ModelConfig is the parameter block for one logical model.
type ModelConfig struct {
	Name               string        `json:"name"`
	Servers            []ServerEntry `json:"servers,omitempty"`             // ordered endpoint candidates
	Server             string        `json:"server,omitempty"`              // single-endpoint shorthand
	PreferCapabilities []string      `json:"prefer_capabilities,omitempty"` // tags used to rank endpoints
	SystemPrompt       string        `json:"system_prompt,omitempty"`       // default system prompt
	Tuning
}

// Defaults is the deployment-wide defaults block, overridden per model.
type Defaults struct {
	Servers  []ServerEntry `json:"servers,omitempty"`
	Server   string        `json:"server,omitempty"`
	Discover bool          `json:"discover,omitempty"` // probe the LAN for servers
	Tuning
}

// MemoryConfig selects and tunes the memory-search backend used for prompt
// snippet injection. An empty Kind disables injection.
type MemoryConfig struct {
	Kind        string `json:"kind,omitempty"` // "http-search" is the only wired kind
	URL         string `json:"url,omitempty"`
	TimeoutMS   int    `json:"timeout_ms,omitempty"`
	MaxSnippets int    `json:"max_snippets,omitempty"`
	CharBudget  int    `json:"char_budget,omitempty"`
}

// Config holds user-level preferences stored in ~/.llmws/config.json.
type Config struct {
	Models   []ModelConfig `json:"models,omitempty"`
	Defaults Defaults      `json:"defaults,omitempty"`
	Memory   MemoryConfig  `json:"memory,omitempty"`
}

// Dir returns the llmws config directory (~/.llmws), creating it if needed.
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.TempDir()
	}
	dir := filepath.Join(home, ".llmws")
	os.MkdirAll(dir, 0755)
	return dir
}

// Path returns the full path to ~/.llmws/config.json.
func Path() string {
	return filepath.Join(Dir(), "config.json")
}

// TranscriptsDir returns ~/.llmws/transcripts, creating it if needed.
func TranscriptsDir() string {
	dir := filepath.Join(Dir(), "transcripts")
	os.MkdirAll(dir, 0755)
	return dir
}

// TranscriptPath returns the transcript file path for a named conversation.
func TranscriptPath(conversation string) string {
	return filepath.Join(TranscriptsDir(), conversation+".jsonl")
}

// Load reads ~/.llmws/config.json, returning an empty config if the file is absent.
func Load() (*Config, error) {
	return LoadPath(Path())
}

// LoadPath reads a config file from an explicit path. A missing file is not
// an error; malformed JSON is.
func LoadPath(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, err
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return &cfg, nil
}

// Save writes the config to ~/.llmws/config.json.
func Save(cfg *Config) error {
	if cfg == nil {
		cfg = &Config{}
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(Path(), data, 0644)
}

// FindModel returns a pointer to a model block by name (case-insensitive),
// or nil if not found. A missing block is normal: such models resolve purely
// from defaults, environment, and the built-in endpoint.
func (c *Config) FindModel(name string) *ModelConfig {
	for i := range c.Models {
		if strings.EqualFold(c.Models[i].Name, name) {
			return &c.Models[i]
		}
	}
	return nil
}

// AddModel appends a model block. Returns an error if the name already exists.
func (c *Config) AddModel(m ModelConfig) error {
	for _, existing := range c.Models {
		if strings.EqualFold(existing.Name, m.Name) {
			return errors.New("model already exists: " + m.Name)
		}
	}
	c.Models = append(c.Models, m)
	return nil
}

// RemoveModel removes a model block by name (case-insensitive).
func (c *Config) RemoveModel(name string) {
	out := c.Models[:0]
	for _, m := range c.Models {
		if !strings.EqualFold(m.Name, name) {
			out = append(out, m)
		}
	}
	c.Models = out
}
