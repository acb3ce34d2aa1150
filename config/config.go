package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/cueword/cueword/audio"
)

// Config holds the runtime configuration resolved from the environment.
type Config struct {
	// Provider selects the speech backend: "yandex" or "deepgram".
	Provider string

	// Yandex SpeechKit credentials.
	IamToken string
	FolderID string

	// Deepgram credentials.
	DeepgramAPIKey string

	Language        string
	SampleRate      int
	FramesPerBuffer int

	// Classifiers lists the intent classifier names activated on the
	// recognition stream (Yandex only).
	Classifiers []string

	// SessionID pins a fixed session identifier across detection
	// attempts. Empty means a fresh identifier per attempt.
	SessionID string
}

// Load resolves configuration from a .env file (optional) and the
// process environment.
func Load() (*Config, error) {
	// A missing .env file is fine; the environment may carry everything.
	_ = godotenv.Load()

	return &Config{
		Provider:        getString("PROVIDER", "yandex"),
		IamToken:        os.Getenv("IAM_TOKEN"),
		FolderID:        os.Getenv("FOLDER_ID"),
		DeepgramAPIKey:  os.Getenv("DEEPGRAM_API_KEY"),
		Language:        getString("LANGUAGE", "en-US"),
		SampleRate:      getInt("SAMPLE_RATE", audio.DefaultSampleRate),
		FramesPerBuffer: getInt("FRAMES_PER_BUFFER", audio.DefaultFramesPerBuffer),
		Classifiers:     getList("CLASSIFIERS"),
		SessionID:       os.Getenv("SESSION_ID"),
	}, nil
}

func getString(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func getInt(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}

func getList(key string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return nil
	}
	var items []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			items = append(items, part)
		}
	}
	return items
}
