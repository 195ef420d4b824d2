package audio

import "context"

// Device 音频输出设备。Play 阻塞到整段渲染完成，ctx 取消时立即中止。
// 设备由 Player 独占，调用方保证 Play 串行
type Device interface {
	Play(ctx context.Context, pcm *PCM) error
	Close() error
}
