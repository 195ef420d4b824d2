package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/lruibin/voxread/internal/audio"
	"github.com/lruibin/voxread/internal/synth"
)

// mockSynthClient 模拟合成客户端
// 每个分段返回单采样 PCM，采样值为分段首字符，便于断言播放顺序
type mockSynthClient struct {
	mu     sync.Mutex
	delays map[string]time.Duration
	fails  map[string]bool
	calls  []string
}

func newMockSynthClient() *mockSynthClient {
	return &mockSynthClient{
		delays: make(map[string]time.Duration),
		fails:  make(map[string]bool),
	}
}

func (c *mockSynthClient) setDelay(text string, d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.delays[text] = d
}

func (c *mockSynthClient) setFail(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fails[text] = true
}

func (c *mockSynthClient) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}

func (c *mockSynthClient) callsSnapshot() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.calls))
	copy(out, c.calls)
	return out
}

func (c *mockSynthClient) Synthesize(ctx context.Context, text string) (*synth.Audio, error) {
	c.mu.Lock()
	delay := c.delays[text]
	fail := c.fails[text]
	c.calls = append(c.calls, text)
	c.mu.Unlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	if fail {
		return nil, errors.New("mock synthesis failure")
	}

	runes := []rune(text)
	sample := uint16(runes[0])
	return &synth.Audio{
		Data:       []byte{byte(sample), byte(sample >> 8)},
		Format:     "pcm",
		SampleRate: 8000,
		Channels:   1,
	}, nil
}

// mockDevice 模拟播放设备，记录播放的采样值
type mockDevice struct {
	mu        sync.Mutex
	played    []int16
	playDelay time.Duration
	failOn    int16
	closed    bool
}

func newMockDevice() *mockDevice {
	return &mockDevice{}
}

func (d *mockDevice) Play(ctx context.Context, pcm *audio.PCM) error {
	if d.playDelay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(d.playDelay):
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failOn != 0 && len(pcm.Samples) > 0 && pcm.Samples[0] == d.failOn {
		return errors.New("mock playback failure")
	}
	d.played = append(d.played, pcm.Samples...)
	return nil
}

func (d *mockDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

func (d *mockDevice) playedSamples() []int16 {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]int16, len(d.played))
	copy(out, d.played)
	return out
}
