package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/gordonklaus/portaudio"

	"github.com/lruibin/voxread/internal/audio"
	"github.com/lruibin/voxread/internal/config"
	"github.com/lruibin/voxread/internal/logging"
	"github.com/lruibin/voxread/internal/synth"
)

// synthcheck 合成诊断工具：合成一段文本，播放或写入文件
func main() {
	inputText := flag.String("text", "今天天气怎么样？", "Text to synthesize")
	configPath := flag.String("config", config.DefaultPath, "config file path")
	provider := flag.String("provider", "", "Synth provider (indextts/dashscope, overrides config)")
	endpoint := flag.String("endpoint", "", "Synth endpoint (overrides config)")
	refAudio := flag.String("ref-audio", "", "Switch reference audio before synthesis (indextts only)")
	output := flag.String("output", "", "Write raw audio to file instead of playing")
	flag.Parse()

	if err := logging.InitFromEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer logging.Sync()
	logging.SetTraceID(logging.NewTraceID())

	appConfig, err := config.Load(*configPath)
	if err != nil {
		logging.Fatalf("Failed to load config: %v", err)
	}
	if *provider != "" {
		appConfig.TTS.Provider = *provider
	}
	if *endpoint != "" {
		appConfig.TTS.Endpoint = *endpoint
	}
	if err := appConfig.ValidateKeys(); err != nil {
		logging.Fatalf("Invalid config: %v", err)
	}

	client, err := synth.New(synth.Config{
		Provider:   appConfig.TTS.Provider,
		Endpoint:   appConfig.Endpoint(),
		APIKey:     appConfig.TTS.APIKey,
		Workspace:  appConfig.TTS.Workspace,
		Model:      appConfig.TTS.Model,
		Voice:      appConfig.TTS.Voice,
		Format:     appConfig.TTS.Format,
		SampleRate: appConfig.TTS.SampleRate,
		Timeout:    time.Duration(appConfig.TTS.TimeoutSeconds) * time.Second,
	})
	if err != nil {
		logging.Fatalf("Failed to create synth client: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if ref := strings.TrimSpace(*refAudio); ref != "" {
		indexClient, ok := client.(*synth.IndexTTSClient)
		if !ok {
			logging.Fatalf("ref-audio is only supported by the indextts provider")
		}
		if err := indexClient.ChangeReferenceAudio(ctx, ref); err != nil {
			logging.Fatalf("Failed to switch reference audio: %v", err)
		}
		logging.Infof("Reference audio switched to %s", ref)
	}

	start := time.Now()
	result, err := client.Synthesize(ctx, *inputText)
	if err != nil {
		logging.Fatalf("Synthesis failed: %v", err)
	}
	logging.Infof("Synthesized %d bytes (%s, %d Hz) in %v",
		len(result.Data), result.Format, result.SampleRate, time.Since(start))

	if *output != "" {
		if err := os.WriteFile(*output, result.Data, 0o644); err != nil {
			logging.Fatalf("Failed to write output: %v", err)
		}
		logging.Infof("Audio written to %s", *output)
		return
	}

	pcm, err := audio.Decode(result.Data, result.Format, result.SampleRate, result.Channels)
	if err != nil {
		logging.Fatalf("Failed to decode audio: %v", err)
	}

	if err := portaudio.Initialize(); err != nil {
		logging.Fatalf("Failed to initialize PortAudio: %v", err)
	}
	defer portaudio.Terminate()

	device := audio.NewPortAudioDevice()
	defer device.Close()

	logging.Infof("Playing %v of audio...", pcm.Duration())
	if err := device.Play(ctx, pcm); err != nil {
		logging.Fatalf("Playback failed: %v", err)
	}
	logging.Infof("Done")
}
