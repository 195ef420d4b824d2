package audio

import (
	"context"
	"errors"

	"github.com/gordonklaus/portaudio"

	"github.com/lruibin/voxread/internal/logging"
)

const defaultFramesPerBuffer = 1024

// PortAudioDevice 通过 PortAudio 默认输出设备渲染 PCM。
// Note: PortAudio should be initialized by the caller (portaudio.Initialize)
// before the first Play and terminated once on shutdown.
type PortAudioDevice struct {
	framesPerBuffer int
}

func NewPortAudioDevice() *PortAudioDevice {
	return &PortAudioDevice{framesPerBuffer: defaultFramesPerBuffer}
}

func (d *PortAudioDevice) Play(ctx context.Context, pcm *PCM) error {
	if pcm == nil || len(pcm.Samples) == 0 {
		return errors.New("no samples to play")
	}

	channels := pcm.Channels
	if channels <= 0 {
		channels = 1
	}

	buf := make([]int16, d.framesPerBuffer*channels)
	stream, err := portaudio.OpenDefaultStream(0, channels, float64(pcm.SampleRate), d.framesPerBuffer, &buf)
	if err != nil {
		return err
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return err
	}

	for offset := 0; offset < len(pcm.Samples); offset += len(buf) {
		select {
		case <-ctx.Done():
			_ = stream.Abort()
			return ctx.Err()
		default:
		}

		n := copy(buf, pcm.Samples[offset:])
		for i := n; i < len(buf); i++ {
			buf[i] = 0
		}
		if err := stream.Write(); err != nil {
			_ = stream.Abort()
			return err
		}
	}

	if err := stream.Stop(); err != nil {
		logging.Warnf("PortAudioDevice: stop stream: %v", err)
	}
	return nil
}

func (d *PortAudioDevice) Close() error {
	return nil
}
