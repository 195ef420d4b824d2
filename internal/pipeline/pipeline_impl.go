package pipeline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/lruibin/voxread/internal/audio"
	"github.com/lruibin/voxread/internal/logging"
	"github.com/lruibin/voxread/internal/synth"
	"github.com/lruibin/voxread/internal/text"
)

// playQueueSize 已释放待播放结果的缓冲上限
// 超出则阻塞投递方，等待播放器消费
const playQueueSize = 8

// pipelineImpl Pipeline 实现
type pipelineImpl struct {
	config    *Config
	client    synth.Client
	device    audio.Device
	segmenter *text.Segmenter

	// 重排与播放队列
	reorder   *reorderBuffer
	playQueue chan *result

	// 并发控制
	sem chan struct{}

	// deliverMu 串行化重排释放到播放队列的投递，保证释放顺序
	deliverMu sync.Mutex

	// epoch 控制：Reset 推进 epoch 并取消 epochCtx，旧任务自行丢弃
	epoch       int64
	epochCtx    context.Context
	epochCancel context.CancelFunc

	// 状态
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	mu         sync.Mutex
	resetMu    sync.Mutex // 防止并发 Reset 调用
	started    bool
	playingSeq int

	// 统计
	totalSegments int64
	totalPlayed   int64
	totalFailed   int64
	totalResets   int64
}

// New 创建新的 Pipeline
func New(client synth.Client, device audio.Device, config *Config) Pipeline {
	if config == nil {
		config = DefaultConfig()
	}
	if config.FastPathSegments < 0 {
		config.FastPathSegments = 0
	}
	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = 1
	}

	return &pipelineImpl{
		config:    config,
		client:    client,
		device:    device,
		segmenter: text.NewSegmenter(config.MinSegmentRunes),
		reorder:   newReorderBuffer(),
		playQueue: make(chan *result, playQueueSize),
		sem:       make(chan struct{}, config.MaxConcurrent),
	}
}

func (p *pipelineImpl) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return errors.New("Pipeline: already started")
	}

	p.ctx, p.cancel = context.WithCancel(ctx)
	p.epochCtx, p.epochCancel = context.WithCancel(p.ctx)
	p.started = true

	// 播放器是常驻 goroutine，Reset 不会重启它
	p.wg.Add(1)
	go p.player()

	logging.Infof("Pipeline: started (fastPath=%d, maxConcurrent=%d, minSegmentRunes=%d, skipFailed=%v)",
		p.config.FastPathSegments, p.config.MaxConcurrent, p.config.MinSegmentRunes, p.config.SkipFailed)
	return nil
}

func (p *pipelineImpl) Stop() error {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return nil
	}

	logging.Infof("Pipeline: stopping...")

	if p.epochCancel != nil {
		p.epochCancel()
	}
	if p.cancel != nil {
		p.cancel()
	}
	p.mu.Unlock()

	p.wg.Wait()
	p.drainPlayQueue()

	p.mu.Lock()
	p.started = false
	p.mu.Unlock()

	logging.Infof("Pipeline: stopped")
	return nil
}

func (p *pipelineImpl) SubmitText(input string) error {
	segments := p.segmenter.Split(input)
	if len(segments) == 0 {
		return ErrNoSegments
	}

	// 新提交打断并替换当前任务。epoch 切换和捕获在同一个临界区内完成，
	// 并发提交各自拿到独立的 epoch，不会共用序号
	p.resetMu.Lock()
	epoch, ectx, err := p.reset()
	p.resetMu.Unlock()
	if err != nil {
		return err
	}

	submission := logging.StartSubmission()
	atomic.AddInt64(&p.totalSegments, int64(len(segments)))
	logging.Infof("Pipeline: submission %d split into %d segments", submission, len(segments))

	// 前置分段在调用方同步合成，保证首句尽快出声
	fast := p.config.FastPathSegments
	if fast > len(segments) {
		fast = len(segments)
	}
	for _, seg := range segments[:fast] {
		if ectx.Err() != nil {
			return nil
		}
		p.synthesizeSegment(ectx, epoch, seg)
	}

	// 剩余分段并发合成（受 semaphore 限制）
	for _, seg := range segments[fast:] {
		p.wg.Add(1)
		go func(seg text.Segment) {
			defer p.wg.Done()

			select {
			case <-ectx.Done():
				return
			case p.sem <- struct{}{}:
				defer func() { <-p.sem }()
			}

			p.synthesizeSegment(ectx, epoch, seg)
		}(seg)
	}

	return nil
}

func (p *pipelineImpl) Reset() error {
	// 使用独立的互斥锁防止并发 Reset 调用
	p.resetMu.Lock()
	defer p.resetMu.Unlock()

	_, _, err := p.reset()
	return err
}

// reset 执行一次 epoch 切换，返回新的 epoch 及其 context。
// 调用方必须持有 resetMu
func (p *pipelineImpl) reset() (int64, context.Context, error) {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return 0, nil, errors.New("Pipeline: not started")
	}

	// 1. 推进 epoch，旧任务的结果从此全部失效
	epoch := atomic.AddInt64(&p.epoch, 1)

	// 2. 取消旧 epoch context（中止当前播放和在途合成）
	if p.epochCancel != nil {
		p.epochCancel()
	}
	p.epochCtx, p.epochCancel = context.WithCancel(p.ctx)
	ectx := p.epochCtx
	p.mu.Unlock()

	// 3. 重排缓冲切换到新 epoch
	p.reorder.Rearm(epoch)

	// 4. 清空播放队列（漏网的旧结果由播放器按 epoch 丢弃）
	p.drainPlayQueue()

	atomic.AddInt64(&p.totalResets, 1)
	logging.Debugf("Pipeline: reset to epoch %d", epoch)
	return epoch, ectx, nil
}

func (p *pipelineImpl) Stats() Stats {
	p.mu.Lock()
	isPlaying := p.playingSeq != 0
	p.mu.Unlock()

	return Stats{
		TotalSegments: int(atomic.LoadInt64(&p.totalSegments)),
		TotalPlayed:   int(atomic.LoadInt64(&p.totalPlayed)),
		TotalFailed:   int(atomic.LoadInt64(&p.totalFailed)),
		TotalResets:   int(atomic.LoadInt64(&p.totalResets)),
		Epoch:         atomic.LoadInt64(&p.epoch),
		IsPlaying:     isPlaying,
	}
}

// synthesizeSegment 合成单个分段并投递到重排缓冲
func (p *pipelineImpl) synthesizeSegment(ctx context.Context, epoch int64, seg text.Segment) {
	audioResp, err := p.client.Synthesize(ctx, seg.Text)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		atomic.AddInt64(&p.totalFailed, 1)
		logging.Errorf("Pipeline: [seq-%d] synthesis error: %v", seg.Seq, err)
		if !p.config.SkipFailed {
			// 不投递，失败分段之后的分段保持等待
			return
		}
		// 投递失败占位，让顺序越过该分段
		p.deliver(ctx, &result{seq: seg.Seq, epoch: epoch, err: err})
		return
	}

	p.deliver(ctx, &result{seq: seg.Seq, epoch: epoch, audio: audioResp})
}

// deliver 把结果交给重排缓冲，并把释放的连续结果按序送入播放队列
func (p *pipelineImpl) deliver(ctx context.Context, item *result) {
	p.deliverMu.Lock()
	defer p.deliverMu.Unlock()

	for _, r := range p.reorder.Submit(item) {
		select {
		case <-ctx.Done():
			return
		case p.playQueue <- r:
		}
	}
}

// player 播放器 goroutine
// 串行消费已按序释放的结果，一次只渲染一段
func (p *pipelineImpl) player() {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			return
		case item := <-p.playQueue:
			p.playItem(item)
		}
	}
}

// playItem 渲染单个结果
func (p *pipelineImpl) playItem(item *result) {
	p.mu.Lock()
	ectx := p.epochCtx
	p.mu.Unlock()

	if item.epoch != atomic.LoadInt64(&p.epoch) {
		logging.Debugf("Pipeline: [seq-%d] dropping stale result (epoch %d)", item.seq, item.epoch)
		return
	}
	if item.audio == nil {
		// 失败占位，跳过播放，顺序已前移
		return
	}

	pcm, err := audio.Decode(item.audio.Data, item.audio.Format, item.audio.SampleRate, item.audio.Channels)
	if err != nil {
		atomic.AddInt64(&p.totalFailed, 1)
		logging.Errorf("Pipeline: [seq-%d] decode error: %v", item.seq, err)
		return
	}

	p.mu.Lock()
	p.playingSeq = item.seq
	p.mu.Unlock()

	err = p.device.Play(ectx, pcm)

	p.mu.Lock()
	p.playingSeq = 0
	p.mu.Unlock()

	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		atomic.AddInt64(&p.totalFailed, 1)
		logging.Errorf("Pipeline: [seq-%d] playback error: %v", item.seq, err)
		return
	}

	atomic.AddInt64(&p.totalPlayed, 1)
	logging.Debugf("Pipeline: [seq-%d] played (%v)", item.seq, pcm.Duration())
}

func (p *pipelineImpl) drainPlayQueue() {
	for {
		select {
		case <-p.playQueue:
		default:
			return
		}
	}
}
