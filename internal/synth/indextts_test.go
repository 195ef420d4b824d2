package synth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

// TestIndexTTSSynthesize 测试正常合成请求
func TestIndexTTSSynthesize(t *testing.T) {
	wantAudio := []byte("RIFF-fake-wav-bytes")

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/tts" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method: %s", r.Method)
		}
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		if got := r.PostFormValue("text"); got != "你好。" {
			t.Errorf("unexpected text: %q", got)
		}
		w.Header().Set("Content-Type", "audio/wav")
		_, _ = w.Write(wantAudio)
	}))
	defer server.Close()

	client := NewIndexTTSClient(Config{Endpoint: server.URL})
	audio, err := client.Synthesize(context.Background(), "你好。")
	if err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}
	if string(audio.Data) != string(wantAudio) {
		t.Errorf("unexpected audio data: %q", audio.Data)
	}
	if audio.Format != "wav" {
		t.Errorf("expected format wav, got %s", audio.Format)
	}
}

// TestIndexTTSEmptyText 测试空文本直接报错，不发请求
func TestIndexTTSEmptyText(t *testing.T) {
	client := NewIndexTTSClient(Config{Endpoint: "http://127.0.0.1:1"})
	_, err := client.Synthesize(context.Background(), "   ")
	if !errors.Is(err, ErrBadRequest) {
		t.Fatalf("expected ErrBadRequest, got %v", err)
	}
}

// TestIndexTTSErrorMapping 测试 HTTP 状态码到错误分类的映射
func TestIndexTTSErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   error
	}{
		{name: "参数错误", status: http.StatusBadRequest, want: ErrBadRequest},
		{name: "未授权", status: http.StatusUnauthorized, want: ErrAuth},
		{name: "服务端错误", status: http.StatusInternalServerError, want: ErrTransient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "boom", tt.status)
			}))
			defer server.Close()

			client := NewIndexTTSClient(Config{Endpoint: server.URL, Timeout: 2 * time.Second})
			_, err := client.Synthesize(context.Background(), "text.")
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

// TestIndexTTSRetryOnTransient 测试瞬时错误重试一次
func TestIndexTTSRetryOnTransient(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("audio"))
	}))
	defer server.Close()

	client := NewIndexTTSClient(Config{Endpoint: server.URL})
	audio, err := client.Synthesize(context.Background(), "text.")
	if err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if string(audio.Data) != "audio" {
		t.Errorf("unexpected audio data: %q", audio.Data)
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Errorf("expected 2 calls, got %d", got)
	}
}

// TestIndexTTSChangeReferenceAudio 测试切换参考音频
func TestIndexTTSChangeReferenceAudio(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/change_ref_audio" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("file_path"); got != "voices/alto.wav" {
			t.Errorf("unexpected file_path: %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"success","message":"ok"}`))
	}))
	defer server.Close()

	client := NewIndexTTSClient(Config{Endpoint: server.URL})
	if err := client.ChangeReferenceAudio(context.Background(), "voices/alto.wav"); err != nil {
		t.Fatalf("ChangeReferenceAudio failed: %v", err)
	}
}

// TestIndexTTSContextCancellation 测试 context 取消后不再重试
func TestIndexTTSContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		_, _ = w.Write([]byte("audio"))
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	client := NewIndexTTSClient(Config{Endpoint: server.URL})
	start := time.Now()
	_, err := client.Synthesize(ctx, "text.")
	if err == nil {
		t.Fatal("expected error from cancelled context")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("cancellation took too long: %v", elapsed)
	}
}

// TestIndexTTSBackoffRespectsContext 测试重试退避期间 context 取消立即返回
func TestIndexTTSBackoffRespectsContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "busy", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	client := NewIndexTTSClient(Config{Endpoint: server.URL})
	start := time.Now()
	_, err := client.Synthesize(ctx, "text.")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected context deadline error, got %v", err)
	}
	// 退避是 300ms，取消必须在退避完成前生效
	if elapsed := time.Since(start); elapsed >= retryBackoff {
		t.Errorf("expected cancellation during backoff, took %v", elapsed)
	}
}

// TestNewFactory 测试客户端工厂
func TestNewFactory(t *testing.T) {
	tests := []struct {
		name     string
		provider string
		wantErr  bool
	}{
		{name: "默认 indextts", provider: ""},
		{name: "显式 indextts", provider: "indextts"},
		{name: "dashscope", provider: "dashscope"},
		{name: "未知 provider", provider: "espeak", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := New(Config{Provider: tt.provider})
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if client == nil {
				t.Fatal("expected client")
			}
		})
	}
}
