package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/atotto/clipboard"
	"github.com/gordonklaus/portaudio"

	"github.com/lruibin/voxread/internal/audio"
	"github.com/lruibin/voxread/internal/config"
	"github.com/lruibin/voxread/internal/logging"
	"github.com/lruibin/voxread/internal/pipeline"
	"github.com/lruibin/voxread/internal/synth"
)

func main() {
	configPath := flag.String("config", config.DefaultPath, "config file path")
	host := flag.String("host", "", "IndexTTS server host (overrides config)")
	port := flag.Int("port", 0, "IndexTTS server port (overrides config)")
	refAudio := flag.String("ref-audio", "", "reference audio to switch to on startup")
	flag.Parse()

	appConfig, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *host != "" {
		appConfig.Server.Host = *host
	}
	if *port != 0 {
		appConfig.Server.Port = *port
	}
	if *refAudio != "" {
		appConfig.TTS.RefAudio = *refAudio
	}
	if err := appConfig.ValidateKeys(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
		os.Exit(1)
	}

	if err := logging.Init(logging.Config{
		Level:  appConfig.Logging.Level,
		Format: appConfig.Logging.Format,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer logging.Sync()

	logging.SetTraceID(logging.NewTraceID())

	logging.Infof("========================================")
	logging.Infof("        VoxRead Starting...             ")
	logging.Infof("========================================")

	logging.Infof("Creating synth client (provider=%s, endpoint=%s)...",
		appConfig.TTS.Provider, appConfig.Endpoint())
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

	if appConfig.TTS.RefAudio != "" {
		indexClient, ok := client.(*synth.IndexTTSClient)
		if !ok {
			logging.Fatalf("ref_audio is only supported by the indextts provider")
		}
		logging.Infof("Switching reference audio to %s...", appConfig.TTS.RefAudio)
		if err := indexClient.ChangeReferenceAudio(context.Background(), appConfig.TTS.RefAudio); err != nil {
			logging.Fatalf("Failed to switch reference audio: %v", err)
		}
	}

	logging.Infof("Initializing PortAudio...")
	if err := portaudio.Initialize(); err != nil {
		logging.Fatalf("Failed to initialize PortAudio: %v", err)
	}
	defer portaudio.Terminate()

	device := audio.NewPortAudioDevice()
	defer device.Close()

	pipe := pipeline.New(client, device, &appConfig.Pipeline)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := pipe.Start(ctx); err != nil {
		logging.Fatalf("Failed to start pipeline: %v", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Infof("Received signal %v, shutting down...", sig)
		cancel()
	}()

	fmt.Println("VoxRead ready. Type text to read aloud.")
	fmt.Println("Commands: paste | reset | stats | exit")

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

loop:
	for {
		fmt.Print("> ")
		select {
		case <-ctx.Done():
			break loop
		case line, ok := <-lines:
			if !ok {
				break loop
			}
			if done := handleLine(pipe, line); done {
				break loop
			}
		}
	}

	logging.Infof("Stopping pipeline...")
	if err := pipe.Stop(); err != nil {
		logging.Errorf("Failed to stop pipeline: %v", err)
	}

	stats := pipe.Stats()
	logging.Infof("Session summary: %d segments, %d played, %d failed, %d resets",
		stats.TotalSegments, stats.TotalPlayed, stats.TotalFailed, stats.TotalResets)
	logging.Infof("VoxRead stopped")
}

// handleLine 处理一行输入，返回 true 表示退出
func handleLine(pipe pipeline.Pipeline, line string) bool {
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "":
		return false
	case "exit", "quit":
		return true
	case "reset":
		if err := pipe.Reset(); err != nil {
			fmt.Printf("reset failed: %v\n", err)
		}
		return false
	case "stats":
		stats := pipe.Stats()
		fmt.Printf("segments=%d played=%d failed=%d resets=%d playing=%v\n",
			stats.TotalSegments, stats.TotalPlayed, stats.TotalFailed, stats.TotalResets, stats.IsPlaying)
		return false
	case "paste":
		text, err := clipboard.ReadAll()
		if err != nil {
			fmt.Printf("clipboard read failed: %v\n", err)
			return false
		}
		submit(pipe, text)
		return false
	default:
		submit(pipe, line)
		return false
	}
}

func submit(pipe pipeline.Pipeline, input string) {
	if err := pipe.SubmitText(input); err != nil {
		if errors.Is(err, pipeline.ErrNoSegments) {
			fmt.Println("nothing to read")
			return
		}
		fmt.Printf("submit failed: %v\n", err)
	}
}
