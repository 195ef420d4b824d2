package pipeline

import (
	"context"
	"errors"
)

// ErrNoSegments 提交的文本切分后没有任何可朗读的分段
var ErrNoSegments = errors.New("pipeline: no speakable segments")

// Pipeline 朗读管道
// 负责文本切分、并发合成、按序重排、串行播放
// 新提交会打断并替换当前的朗读任务
type Pipeline interface {
	// SubmitText 提交一段文本开始朗读（打断当前朗读）
	// 切分结果为空时返回 ErrNoSegments
	SubmitText(text string) error

	// Reset 中断所有任务（丢弃未播放的音频、停止当前播放）
	Reset() error

	// Start 启动 Pipeline
	Start(ctx context.Context) error

	// Stop 停止 Pipeline
	Stop() error

	// Stats 获取统计信息（用于调试和监控）
	Stats() Stats
}

// Stats Pipeline 统计信息
type Stats struct {
	TotalSegments int   // 总切分分段数
	TotalPlayed   int   // 总播放完成数
	TotalFailed   int   // 总失败数（合成或播放）
	TotalResets   int   // 总中断次数
	Epoch         int64 // 当前 epoch
	IsPlaying     bool  // 是否正在播放
}

// Config Pipeline 配置
type Config struct {
	// FastPathSegments 同步合成的前置分段数
	// 前 N 个分段在提交调用上依次同步合成，保证首句尽快出声
	// 默认: 2
	FastPathSegments int `json:"fast_path_segments"`

	// MaxConcurrent 最大并发合成数
	// 控制同时调用合成服务的数量，避免过多并发
	// 默认: 4
	MaxConcurrent int `json:"max_concurrent"`

	// MinSegmentRunes 分段最小字符数
	// 不足该长度的分段与后续分段合并
	// 默认: 20
	MinSegmentRunes int `json:"min_segment_runes"`

	// SkipFailed 合成失败时是否跳过该分段继续播放后续分段
	// 默认 false：失败分段之后的分段不会播放
	SkipFailed bool `json:"skip_failed"`
}

// DefaultConfig 默认 Pipeline 配置
func DefaultConfig() *Config {
	return &Config{
		FastPathSegments: 2,
		MaxConcurrent:    4,
		MinSegmentRunes:  20,
	}
}
