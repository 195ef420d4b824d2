package synth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/lruibin/voxread/internal/logging"
)

const (
	defaultIndexTTSEndpoint = "http://localhost:8000"
	retryBackoff            = 300 * time.Millisecond
)

// IndexTTSClient 通过 HTTP 表单调用 IndexTTS 服务的 /tts 接口
type IndexTTSClient struct {
	endpoint string
	http     *http.Client
}

func NewIndexTTSClient(cfg Config) *IndexTTSClient {
	endpoint := strings.TrimRight(strings.TrimSpace(cfg.Endpoint), "/")
	if endpoint == "" {
		endpoint = defaultIndexTTSEndpoint
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &IndexTTSClient{
		endpoint: endpoint,
		http:     &http.Client{Timeout: timeout},
	}
}

func (c *IndexTTSClient) Synthesize(ctx context.Context, text string) (*Audio, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: empty text", ErrBadRequest)
	}

	data, err := c.postTTS(ctx, text)
	if err != nil {
		if !isRetryableSynthError(err) {
			return nil, err
		}
		logging.Warnf("IndexTTSClient: transient error, retrying: %v", err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(retryBackoff):
		}
		data, err = c.postTTS(ctx, text)
		if err != nil {
			return nil, err
		}
	}

	return &Audio{Data: data, Format: "wav"}, nil
}

func (c *IndexTTSClient) postTTS(ctx context.Context, text string) ([]byte, error) {
	form := url.Values{}
	form.Set("text", text)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/tts",
		strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, mapIndexTTSError(resp.StatusCode, strings.TrimSpace(string(body)))
	}

	return io.ReadAll(resp.Body)
}

// ChangeReferenceAudio 切换服务端的参考音频
func (c *IndexTTSClient) ChangeReferenceAudio(ctx context.Context, path string) error {
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("%w: empty reference audio path", ErrBadRequest)
	}

	endpoint := c.endpoint + "/change_ref_audio?file_path=" + url.QueryEscape(path)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return mapIndexTTSError(resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var result struct {
		Status  string `json:"status"`
		Message string `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("parse change_ref_audio response: %w", err)
	}
	if result.Status != "success" {
		return fmt.Errorf("change_ref_audio failed: %s", result.Message)
	}

	logging.Infof("IndexTTSClient: reference audio changed to %s", path)
	return nil
}

func mapIndexTTSError(status int, body string) error {
	if body == "" {
		body = http.StatusText(status)
	}
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fmt.Errorf("%w: status %d: %s", ErrAuth, status, body)
	case status >= 400 && status < 500:
		return fmt.Errorf("%w: status %d: %s", ErrBadRequest, status, body)
	default:
		return fmt.Errorf("%w: status %d: %s", ErrTransient, status, body)
	}
}

func isRetryableSynthError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, ErrTransient) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return false
}
