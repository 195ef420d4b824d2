package pipeline

import (
	"sync"

	"github.com/lruibin/voxread/internal/synth"
)

// result 单个分段的合成结果
type result struct {
	seq   int
	epoch int64
	audio *synth.Audio // nil 表示失败占位（SkipFailed 策略）
	err   error
}

// reorderBuffer 重排缓冲
// 乱序到达的合成结果按 seq 连续释放，epoch 不匹配的结果直接丢弃
type reorderBuffer struct {
	mu       sync.Mutex
	epoch    int64
	expected int // 下一个要释放的序号
	pending  map[int]*result
}

func newReorderBuffer() *reorderBuffer {
	return &reorderBuffer{
		expected: 1,
		pending:  make(map[int]*result),
	}
}

// Rearm 切换到新 epoch，丢弃所有等待中的结果
func (b *reorderBuffer) Rearm(epoch int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.epoch = epoch
	b.expected = 1
	b.pending = make(map[int]*result)
}

// Submit 提交一个结果，返回此刻可以按序释放的连续结果
// 调用方负责在锁外把释放结果送入播放队列
func (b *reorderBuffer) Submit(item *result) []*result {
	b.mu.Lock()
	defer b.mu.Unlock()

	if item.epoch != b.epoch {
		// 过期 epoch，对应的提交已被 Reset 放弃
		return nil
	}
	if item.seq < b.expected {
		// 已释放过的序号，重复投递
		return nil
	}
	if _, ok := b.pending[item.seq]; ok {
		return nil
	}
	b.pending[item.seq] = item

	var released []*result
	for {
		next, ok := b.pending[b.expected]
		if !ok {
			// 下一个序号还没完成，等待
			break
		}
		delete(b.pending, b.expected)
		b.expected++
		released = append(released, next)
	}
	return released
}
