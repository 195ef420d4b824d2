package audio

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/go-audio/wav"
)

// PCM 解码后的音频样本，16-bit 小端
type PCM struct {
	Samples    []int16
	SampleRate int
	Channels   int
}

// Duration 估算播放时长
func (p *PCM) Duration() time.Duration {
	if p.SampleRate <= 0 || p.Channels <= 0 || len(p.Samples) == 0 {
		return 0
	}
	frames := len(p.Samples) / p.Channels
	return time.Duration(frames) * time.Second / time.Duration(p.SampleRate)
}

// Decode 把合成服务返回的编码音频解码为 PCM。
// wav 格式从容器读取采样率；pcm 格式按给定采样率和声道数解释
func Decode(data []byte, format string, sampleRate, channels int) (*PCM, error) {
	switch format {
	case "wav", "":
		return DecodeWAV(data)
	case "pcm":
		return DecodePCM16(data, sampleRate, channels)
	default:
		return nil, fmt.Errorf("unsupported audio format: %s", format)
	}
}

func DecodeWAV(data []byte) (*PCM, error) {
	if len(data) == 0 {
		return nil, errors.New("empty wav data")
	}

	decoder := wav.NewDecoder(bytes.NewReader(data))
	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("decode wav: %w", err)
	}
	if buf == nil || buf.Format == nil || len(buf.Data) == 0 {
		return nil, errors.New("wav contains no samples")
	}

	shift := uint(0)
	if buf.SourceBitDepth > 16 {
		shift = uint(buf.SourceBitDepth - 16)
	}

	samples := make([]int16, len(buf.Data))
	for i, v := range buf.Data {
		samples[i] = int16(v >> shift)
	}

	return &PCM{
		Samples:    samples,
		SampleRate: buf.Format.SampleRate,
		Channels:   buf.Format.NumChannels,
	}, nil
}

func DecodePCM16(data []byte, sampleRate, channels int) (*PCM, error) {
	if len(data) == 0 {
		return nil, errors.New("empty pcm data")
	}
	if len(data)%2 != 0 {
		return nil, errors.New("pcm data is not 16-bit aligned")
	}
	if sampleRate <= 0 {
		return nil, errors.New("pcm sample rate must be positive")
	}
	if channels <= 0 {
		channels = 1
	}

	samples := make([]int16, len(data)/2)
	for i := range samples {
		samples[i] = int16(data[2*i]) | int16(data[2*i+1])<<8
	}

	return &PCM{Samples: samples, SampleRate: sampleRate, Channels: channels}, nil
}
