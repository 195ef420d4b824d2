package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/lruibin/voxread/internal/synth"
)

func TestLoad_MergesDefaultsAndEnv(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "voxread.json")
	data := `{
		"logging": {"level": "debug"},
		"tts": {"provider": "dashscope", "voice": "longxiaochun"},
		"pipeline": {"max_concurrent": 8}
	}`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("LOG_LEVEL", "warn")
	t.Setenv("DASHSCOPE_API_KEY", "dash-key")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Logging.Level != "warn" {
		t.Fatalf("expected LOG_LEVEL to override config, got %q", cfg.Logging.Level)
	}
	if cfg.TTS.Provider != synth.ProviderDashScope {
		t.Fatalf("expected provider from file, got %q", cfg.TTS.Provider)
	}
	if cfg.TTS.Voice != "longxiaochun" {
		t.Fatalf("expected voice from file, got %q", cfg.TTS.Voice)
	}
	if cfg.TTS.APIKey != "dash-key" {
		t.Fatalf("expected api key from env")
	}
	if cfg.Pipeline.MaxConcurrent != 8 {
		t.Fatalf("expected max_concurrent 8, got %d", cfg.Pipeline.MaxConcurrent)
	}
	// 未覆盖的字段保留默认值
	if cfg.Pipeline.FastPathSegments != 2 {
		t.Fatalf("expected default fast_path_segments, got %d", cfg.Pipeline.FastPathSegments)
	}
	if cfg.TTS.SampleRate != 22050 {
		t.Fatalf("expected default sample rate, got %d", cfg.TTS.SampleRate)
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Host != "localhost" || cfg.Server.Port != 8000 {
		t.Fatalf("expected default server, got %s:%d", cfg.Server.Host, cfg.Server.Port)
	}
}

func TestApplyEnv_ServerOverride(t *testing.T) {
	t.Setenv("VOXREAD_SERVER", "tts.lan:9880")

	cfg := DefaultConfig()
	cfg.ApplyEnv()

	if cfg.Server.Host != "tts.lan" || cfg.Server.Port != 9880 {
		t.Fatalf("expected server override, got %s:%d", cfg.Server.Host, cfg.Server.Port)
	}
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TTS.Provider = "espeak"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected invalid provider error")
	}

	cfg = DefaultConfig()
	cfg.Pipeline.MaxConcurrent = 0
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected invalid max_concurrent error")
	}
}

func TestValidateKeys(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TTS.Provider = synth.ProviderDashScope
	if err := cfg.ValidateKeys(); err == nil {
		t.Fatalf("expected error when api key is missing")
	}

	cfg.TTS.APIKey = "key"
	if err := cfg.ValidateKeys(); err != nil {
		t.Fatalf("unexpected key validation error: %v", err)
	}

	// 本地 provider 不需要密钥
	cfg = DefaultConfig()
	if err := cfg.ValidateKeys(); err != nil {
		t.Fatalf("unexpected error for indextts provider: %v", err)
	}
}

func TestEndpoint(t *testing.T) {
	cfg := DefaultConfig()
	if got := cfg.Endpoint(); got != "http://localhost:8000" {
		t.Fatalf("expected endpoint from server config, got %q", got)
	}

	cfg.TTS.Endpoint = "http://10.0.0.2:9880"
	if got := cfg.Endpoint(); got != "http://10.0.0.2:9880" {
		t.Fatalf("expected explicit endpoint, got %q", got)
	}
}
