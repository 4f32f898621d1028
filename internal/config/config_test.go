package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/agusx1211/llmws/pkg/wire"
)

func TestLoadPathMissingFile(t *testing.T) {
	cfg, err := LoadPath(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatalf("LoadPath() error = %v", err)
	}
	if len(cfg.Models) != 0 {
		t.Errorf("Models = %v, want empty", cfg.Models)
	}
}

func TestLoadPathMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := LoadPath(path); err == nil {
		t.Fatal("LoadPath() expected error for malformed JSON")
	}
}

func TestLoadPathFull(t *testing.T) {
	raw := `{
		"models": [
			{
				"name": "qwen-vl",
				"servers": ["ws://10.0.0.1:8765", {"url": "ws://10.0.0.2:8765", "capabilities": ["Vision", "chat"]}],
				"prefer_capabilities": ["vision"],
				"read_timeout_ms": 30000,
				"generation": {"maxNewTokens": 512, "temperature": 0.2}
			}
		],
		"defaults": {"server": "ws://127.0.0.1:9000", "history_turns": 8},
		"memory": {"kind": "http-search", "url": "http://127.0.0.1:8400/search"}
	}`
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(raw), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := LoadPath(path)
	if err != nil {
		t.Fatalf("LoadPath() error = %v", err)
	}

	m := cfg.FindModel("QWEN-VL")
	if m == nil {
		t.Fatal("FindModel() case-insensitive lookup failed")
	}
	if len(m.Servers) != 2 {
		t.Fatalf("Servers = %d entries, want 2", len(m.Servers))
	}
	if m.Servers[0].URL != "ws://10.0.0.1:8765" || len(m.Servers[0].Capabilities) != 0 {
		t.Errorf("string entry = %+v", m.Servers[0])
	}
	if m.Servers[1].URL != "ws://10.0.0.2:8765" || len(m.Servers[1].Capabilities) != 2 {
		t.Errorf("object entry = %+v", m.Servers[1])
	}
	if m.Generation == nil || m.Generation.MaxNewTokens == nil || *m.Generation.MaxNewTokens != 512 {
		t.Errorf("camelCase generation knob not parsed: %+v", m.Generation)
	}
	if cfg.Defaults.Server != "ws://127.0.0.1:9000" {
		t.Errorf("Defaults.Server = %q", cfg.Defaults.Server)
	}
	if cfg.Memory.Kind != "http-search" {
		t.Errorf("Memory.Kind = %q", cfg.Memory.Kind)
	}
}

func TestServerEntryForms(t *testing.T) {
	var list []ServerEntry
	in := `["ws://a:1", {"url":"ws://b:2","capabilities":["vision"]}]`
	if err := json.Unmarshal([]byte(in), &list); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if list[0].URL != "ws://a:1" {
		t.Errorf("list[0] = %+v", list[0])
	}
	if list[1].URL != "ws://b:2" || list[1].Capabilities[0] != "vision" {
		t.Errorf("list[1] = %+v", list[1])
	}
}

func TestResolveSettingsLayering(t *testing.T) {
	turns := 4
	include := false
	def := Defaults{Tuning: Tuning{
		ReadTimeoutMS: 5000,
		HistoryTurns:  &turns,
	}}
	model := &ModelConfig{Tuning: Tuning{
		ConnectTimeoutMS: 1500,
		IncludeHistory:   &include,
	}}

	s := ResolveSettings(model, def)
	if s.ConnectTimeout != 1500*time.Millisecond {
		t.Errorf("ConnectTimeout = %v, want 1.5s", s.ConnectTimeout)
	}
	if s.ReadTimeout != 5*time.Second {
		t.Errorf("ReadTimeout = %v, want 5s", s.ReadTimeout)
	}
	if s.IncludeHistory {
		t.Error("IncludeHistory = true, want model override false")
	}
	if s.HistoryTurns != 4 {
		t.Errorf("HistoryTurns = %d, want 4", s.HistoryTurns)
	}
	if s.HistoryChars != defaultHistoryChars {
		t.Errorf("HistoryChars = %d, want builtin %d", s.HistoryChars, defaultHistoryChars)
	}
	if s.SilentSentinel != DefaultSilentSentinel {
		t.Errorf("SilentSentinel = %q, want builtin", s.SilentSentinel)
	}
}

func TestResolveSettingsNilModel(t *testing.T) {
	s := ResolveSettings(nil, Defaults{})
	if s.ConnectTimeout != defaultConnectTimeout || s.ReadTimeout != defaultReadTimeout {
		t.Errorf("timeouts = %v/%v, want builtins", s.ConnectTimeout, s.ReadTimeout)
	}
	if !s.IncludeHistory {
		t.Error("IncludeHistory should default to true")
	}
	if s.Generation != nil {
		t.Errorf("Generation = %+v, want nil", s.Generation)
	}
}

func TestResolveSettingsGenerationMerge(t *testing.T) {
	maxDef, maxModel := 128, 512
	temp := 0.3
	def := Defaults{Tuning: Tuning{Generation: &wire.GenerationConfig{MaxNewTokens: &maxDef, Temperature: &temp}}}
	model := &ModelConfig{Tuning: Tuning{Generation: &wire.GenerationConfig{MaxNewTokens: &maxModel}}}

	s := ResolveSettings(model, def)
	if s.Generation == nil || *s.Generation.MaxNewTokens != 512 {
		t.Fatalf("Generation.MaxNewTokens = %+v, want model's 512", s.Generation)
	}
	if s.Generation.Temperature == nil || *s.Generation.Temperature != 0.3 {
		t.Errorf("Temperature = %v, want inherited 0.3", s.Generation.Temperature)
	}
}

func TestMapEnv(t *testing.T) {
	env := MapEnv{EnvServer: "ws://x:1"}
	if got := env.Getenv(EnvServer); got != "ws://x:1" {
		t.Errorf("Getenv() = %q", got)
	}
	if got := env.Getenv(EnvServers); got != "" {
		t.Errorf("Getenv(absent) = %q, want empty", got)
	}
}
