package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"

	"github.com/gordonklaus/portaudio"

	"github.com/cueword/cueword/audio"
	"github.com/cueword/cueword/config"
	"github.com/cueword/cueword/detect"
	"github.com/cueword/cueword/stt"
)

func main() {
	filePath := flag.String("file", "", "replay an MP3 file instead of capturing from the microphone")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	client, err := buildClient(cfg)
	if err != nil {
		log.Fatalf("Failed to create STT client: %v", err)
	}
	defer client.Close()

	sampleRate := cfg.SampleRate
	var producers detect.ProducerFactory
	if *filePath != "" {
		producer, err := audio.NewFileProducer(*filePath, cfg.FramesPerBuffer)
		if err != nil {
			log.Fatalf("Failed to open audio file: %v", err)
		}
		sampleRate = producer.SampleRate()
		producers = func() audio.Producer { return producer }
	} else {
		if err := portaudio.Initialize(); err != nil {
			log.Fatalf("Failed to initialize PortAudio: %v", err)
		}
		defer portaudio.Terminate()

		producers = func() audio.Producer {
			return audio.NewRecorder(audio.RecorderConfig{
				SampleRate:      cfg.SampleRate,
				FramesPerBuffer: cfg.FramesPerBuffer,
			})
		}
	}

	observer := &stdoutObserver{done: make(chan struct{})}

	detector, err := detect.New(detect.Config{
		SessionID:   cfg.SessionID,
		SampleRate:  sampleRate,
		Language:    cfg.Language,
		Classifiers: cfg.Classifiers,
	}, client, producers, observer)
	if err != nil {
		log.Fatalf("Failed to create detector: %v", err)
	}
	defer detector.Close()

	fmt.Printf("Listening for one utterance (provider: %s, language: %s). Press Ctrl-C to stop.\n",
		cfg.Provider, cfg.Language)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)

	detector.Start(nil)

	select {
	case <-sig:
		fmt.Println("\nStopping...")
		detector.Stop()
		<-observer.done
	case <-observer.done:
	}

	fmt.Printf("Session finished (cause: %s)\n", detector.Cause())
}

func buildClient(cfg *config.Config) (stt.Client, error) {
	switch cfg.Provider {
	case "yandex":
		if cfg.IamToken == "" || cfg.FolderID == "" {
			return nil, fmt.Errorf("IAM_TOKEN and FOLDER_ID must be set for the yandex provider")
		}
		return stt.NewYandexClient(stt.YandexConfig{
			IamToken: cfg.IamToken,
			FolderID: cfg.FolderID,
		})
	case "deepgram":
		return stt.NewDeepgramClient(stt.DeepgramConfig{
			APIKey:      cfg.DeepgramAPIKey,
			SmartFormat: true,
		})
	default:
		return nil, fmt.Errorf("unknown provider %q (expected yandex or deepgram)", cfg.Provider)
	}
}

// stdoutObserver prints recognition progress and signals completion of
// the detection attempt.
type stdoutObserver struct {
	done chan struct{}
}

func (o *stdoutObserver) OnStart(sessionID string) {
	fmt.Printf("Session %s: stream open\n", sessionID)
}

func (o *stdoutObserver) OnResponse(sessionID string, resp *stt.Response) {
	if resp.Transcript != "" {
		marker := "partial"
		if resp.Final {
			marker = "final"
		}
		fmt.Printf("  [%s] %s\n", marker, resp.Transcript)
	}
}

func (o *stdoutObserver) OnResponseIntent(sessionID string, resp *stt.Response) {
	fmt.Printf("Intent: %s\n", detect.IntentString(resp))
}

func (o *stdoutObserver) OnResponseEndOfUtterance(sessionID string, resp *stt.Response) {
	fmt.Println("End of utterance.")
}

func (o *stdoutObserver) OnError(sessionID string, err error) {
	fmt.Printf("Error: %v\n", err)
	close(o.done)
}

func (o *stdoutObserver) OnComplete(sessionID string) {
	close(o.done)
}
