package synth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	ProviderIndexTTS  = "indextts"
	ProviderDashScope = "dashscope"
)

type Config struct {
	Provider   string
	Endpoint   string
	RefAudio   string
	APIKey     string
	Workspace  string
	Model      string
	Voice      string
	Format     string
	SampleRate int
	Timeout    time.Duration
}

// Audio 一次合成调用返回的编码音频
type Audio struct {
	Data       []byte
	Format     string
	SampleRate int
	Channels   int
}

// Client 无状态的合成客户端，每个分段一次请求-响应
type Client interface {
	Synthesize(ctx context.Context, text string) (*Audio, error)
}

var (
	ErrTransient  = errors.New("synth transient error")
	ErrAuth       = errors.New("synth auth error")
	ErrBadRequest = errors.New("synth bad request")
)

func New(cfg Config) (Client, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", ProviderIndexTTS:
		return NewIndexTTSClient(cfg), nil
	case ProviderDashScope:
		return NewDashScopeClient(cfg), nil
	default:
		return nil, fmt.Errorf("unknown synth provider: %s", cfg.Provider)
	}
}
