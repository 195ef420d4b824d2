package synth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lruibin/voxread/internal/logging"
)

const defaultDashScopeEndpoint = "wss://dashscope.aliyuncs.com/api-ws/v1/inference"

// DashScopeClient 通过 DashScope 双工 websocket 协议合成单个分段。
// 每次 Synthesize 建立一个任务：run-task → continue-task → finish-task，
// 收集全部二进制音频帧后一次性返回。
type DashScopeClient struct {
	cfg Config
}

func NewDashScopeClient(cfg Config) *DashScopeClient {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		cfg.Endpoint = defaultDashScopeEndpoint
	}
	if cfg.Model == "" {
		cfg.Model = "cosyvoice-v3-flash"
	}
	if cfg.Voice == "" {
		cfg.Voice = "longanyang"
	}
	if cfg.Format == "" {
		cfg.Format = "pcm"
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 22050
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &DashScopeClient{cfg: cfg}
}

func (c *DashScopeClient) Synthesize(ctx context.Context, text string) (*Audio, error) {
	if strings.TrimSpace(c.cfg.APIKey) == "" {
		return nil, fmt.Errorf("%w: api key is required", ErrAuth)
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: empty text", ErrBadRequest)
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	conn, err := c.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	// ctx 取消时关闭连接，解除 ReadMessage 的阻塞
	watchDone := make(chan struct{})
	defer close(watchDone)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-watchDone:
		}
	}()

	taskID := newTaskID()
	if err := c.writeJSON(conn, c.runTaskMessage(taskID)); err != nil {
		return nil, err
	}
	if err := c.awaitTaskStarted(ctx, conn); err != nil {
		return nil, err
	}
	if err := c.writeJSON(conn, c.continueTaskMessage(taskID, text)); err != nil {
		return nil, err
	}
	if err := c.writeJSON(conn, c.finishTaskMessage(taskID)); err != nil {
		return nil, err
	}

	data, err := c.collectAudio(ctx, conn)
	if err != nil {
		return nil, err
	}

	return &Audio{
		Data:       data,
		Format:     c.cfg.Format,
		SampleRate: c.cfg.SampleRate,
		Channels:   1,
	}, nil
}

func (c *DashScopeClient) connect(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{}
	header.Set("Authorization", fmt.Sprintf("bearer %s", c.cfg.APIKey))
	if strings.TrimSpace(c.cfg.Workspace) != "" {
		header.Set("X-DashScope-WorkSpace", strings.TrimSpace(c.cfg.Workspace))
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.cfg.Endpoint, header)
	return conn, err
}

func (c *DashScopeClient) awaitTaskStarted(ctx context.Context, conn *websocket.Conn) error {
	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			return wrapConnError(ctx, err)
		}
		if messageType != websocket.TextMessage {
			continue
		}
		var event eventMessage
		if err := json.Unmarshal(data, &event); err != nil {
			return err
		}
		switch event.Header.Event {
		case "task-started":
			return nil
		case "task-failed":
			return mapDashScopeError(event.Header.ErrorCode, event.Header.ErrorMessage)
		}
	}
}

func (c *DashScopeClient) collectAudio(ctx context.Context, conn *websocket.Conn) ([]byte, error) {
	var audio []byte
	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			return nil, wrapConnError(ctx, err)
		}
		switch messageType {
		case websocket.BinaryMessage:
			audio = append(audio, data...)
		case websocket.TextMessage:
			var event eventMessage
			if err := json.Unmarshal(data, &event); err != nil {
				return nil, err
			}
			switch event.Header.Event {
			case "task-finished":
				return audio, nil
			case "task-failed":
				return nil, mapDashScopeError(event.Header.ErrorCode, event.Header.ErrorMessage)
			}
		}
	}
}

func (c *DashScopeClient) writeJSON(conn *websocket.Conn, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}

func (c *DashScopeClient) runTaskMessage(taskID string) taskMessage {
	return taskMessage{
		Header: taskHeader{
			Action:    "run-task",
			TaskID:    taskID,
			Streaming: "duplex",
		},
		Payload: taskPayload{
			TaskGroup: "audio",
			Task:      "tts",
			Function:  "SpeechSynthesizer",
			Model:     c.cfg.Model,
			Parameters: map[string]any{
				"text_type":   "PlainText",
				"voice":       c.cfg.Voice,
				"format":      c.cfg.Format,
				"sample_rate": c.cfg.SampleRate,
			},
			Input: map[string]any{},
		},
	}
}

func (c *DashScopeClient) continueTaskMessage(taskID, text string) taskMessage {
	return taskMessage{
		Header: taskHeader{
			Action:    "continue-task",
			TaskID:    taskID,
			Streaming: "duplex",
		},
		Payload: taskPayload{
			Input: map[string]any{
				"text": text,
			},
		},
	}
}

func (c *DashScopeClient) finishTaskMessage(taskID string) taskMessage {
	return taskMessage{
		Header: taskHeader{
			Action:    "finish-task",
			TaskID:    taskID,
			Streaming: "duplex",
		},
		Payload: taskPayload{
			Input: map[string]any{},
		},
	}
}

func wrapConnError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

type taskMessage struct {
	Header  taskHeader  `json:"header"`
	Payload taskPayload `json:"payload"`
}

type taskHeader struct {
	Action       string `json:"action,omitempty"`
	TaskID       string `json:"task_id,omitempty"`
	Streaming    string `json:"streaming,omitempty"`
	Event        string `json:"event,omitempty"`
	ErrorCode    string `json:"error_code,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}

type taskPayload struct {
	TaskGroup  string         `json:"task_group,omitempty"`
	Task       string         `json:"task,omitempty"`
	Function   string         `json:"function,omitempty"`
	Model      string         `json:"model,omitempty"`
	Parameters map[string]any `json:"parameters,omitempty"`
	Input      map[string]any `json:"input"`
}

type eventMessage struct {
	Header taskHeader `json:"header"`
}

func mapDashScopeError(code, message string) error {
	logging.Errorf("DashScopeClient: task failed: code=%s, message=%s", code, message)
	lower := strings.ToLower(code + " " + message)
	switch {
	case strings.Contains(lower, "unauthorized"), strings.Contains(lower, "authentication"):
		return fmt.Errorf("%w: %s", ErrAuth, message)
	case strings.Contains(lower, "invalidparameter"), strings.Contains(lower, "bad request"):
		return fmt.Errorf("%w: %s", ErrBadRequest, message)
	case strings.Contains(lower, "timeout"), strings.Contains(lower, "tempor"):
		return fmt.Errorf("%w: %s", ErrTransient, message)
	}
	if message == "" {
		message = "dashscope task failed"
	}
	return errors.New(message)
}

func newTaskID() string {
	var bytes [16]byte
	if _, err := rand.Read(bytes[:]); err != nil {
		return "fallback-task-id"
	}
	return hex.EncodeToString(bytes[:])
}
