package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/lruibin/voxread/internal/pipeline"
	"github.com/lruibin/voxread/internal/synth"
)

const DefaultPath = "config/voxread.json"

type AppConfig struct {
	Logging  LoggingConfig   `json:"logging"`
	Server   ServerConfig    `json:"server"`
	TTS      TTSConfig       `json:"tts"`
	Pipeline pipeline.Config `json:"pipeline"`
}

type LoggingConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

// ServerConfig 本地 IndexTTS 服务地址
// TTS.Endpoint 为空时由 Host/Port 拼出
type ServerConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

type TTSConfig struct {
	Provider       string `json:"provider"`
	Endpoint       string `json:"endpoint"`
	RefAudio       string `json:"ref_audio"`
	APIKey         string `json:"api_key"`
	Workspace      string `json:"workspace"`
	Model          string `json:"model"`
	Voice          string `json:"voice"`
	Format         string `json:"format"`
	SampleRate     int    `json:"sample_rate"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

func DefaultConfig() *AppConfig {
	return &AppConfig{
		Logging: LoggingConfig{},
		Server: ServerConfig{
			Host: "localhost",
			Port: 8000,
		},
		TTS: TTSConfig{
			Provider:       synth.ProviderIndexTTS,
			Model:          "cosyvoice-v3-flash",
			Voice:          "longanyang",
			Format:         "pcm",
			SampleRate:     22050,
			TimeoutSeconds: 60,
		},
		Pipeline: *pipeline.DefaultConfig(),
	}
}

func Load(path string) (*AppConfig, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		path = DefaultPath
	}

	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg.ApplyEnv()
			return cfg, cfg.Validate()
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.ApplyEnv()
	return cfg, cfg.Validate()
}

func (c *AppConfig) ApplyEnv() {
	if level := strings.TrimSpace(os.Getenv("LOG_LEVEL")); level != "" {
		c.Logging.Level = level
	}
	if format := strings.TrimSpace(os.Getenv("LOG_FORMAT")); format != "" {
		c.Logging.Format = format
	}

	if dash := strings.TrimSpace(os.Getenv("DASHSCOPE_API_KEY")); dash != "" {
		c.TTS.APIKey = dash
	}

	if server := strings.TrimSpace(os.Getenv("VOXREAD_SERVER")); server != "" {
		if host, port, err := net.SplitHostPort(server); err == nil {
			c.Server.Host = host
			if p, err := strconv.Atoi(port); err == nil {
				c.Server.Port = p
			}
		} else {
			c.Server.Host = server
		}
	}
}

func (c *AppConfig) Validate() error {
	switch c.TTS.Provider {
	case synth.ProviderIndexTTS, synth.ProviderDashScope:
	default:
		return fmt.Errorf("invalid tts provider: %s", c.TTS.Provider)
	}

	if c.TTS.SampleRate <= 0 {
		return errors.New("tts.sample_rate must be positive")
	}
	if c.TTS.TimeoutSeconds < 0 {
		return errors.New("tts.timeout_seconds must be non-negative")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return errors.New("server.port must be in 1..65535")
	}
	if c.Pipeline.FastPathSegments < 0 {
		return errors.New("pipeline.fast_path_segments must be non-negative")
	}
	if c.Pipeline.MaxConcurrent <= 0 {
		return errors.New("pipeline.max_concurrent must be positive")
	}
	if c.Pipeline.MinSegmentRunes < 1 {
		return errors.New("pipeline.min_segment_runes must be at least 1")
	}

	return nil
}

// ValidateKeys 检查所选 provider 需要的密钥是否就位
func (c *AppConfig) ValidateKeys() error {
	if c.TTS.Provider == synth.ProviderDashScope && strings.TrimSpace(c.TTS.APIKey) == "" {
		return errors.New("tts api_key is required for dashscope provider")
	}
	return nil
}

// Endpoint 返回合成服务地址，未显式配置时由 server.host/port 拼出
func (c *AppConfig) Endpoint() string {
	if ep := strings.TrimSpace(c.TTS.Endpoint); ep != "" {
		return ep
	}
	if c.TTS.Provider == synth.ProviderIndexTTS {
		return fmt.Sprintf("http://%s:%d", c.Server.Host, c.Server.Port)
	}
	return ""
}
