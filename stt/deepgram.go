package stt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
)

const defaultDeepgramBaseURL = "https://api.deepgram.com/v1"

// DeepgramConfig configures the Deepgram websocket client.
type DeepgramConfig struct {
	APIKey      string
	APIBaseURL  string
	Model       string
	SmartFormat bool
}

// DeepgramClient speaks the Deepgram live transcription API over a
// websocket. This backend yields no intent names; recognition ends at
// the utterance boundary.
type DeepgramClient struct {
	config DeepgramConfig
}

// NewDeepgramClient validates the configuration. No connection is made
// until a stream performs its handshake.
func NewDeepgramClient(config DeepgramConfig) (*DeepgramClient, error) {
	if strings.TrimSpace(config.APIKey) == "" {
		return nil, errors.New("DEEPGRAM_API_KEY is not configured")
	}
	if config.APIBaseURL == "" {
		config.APIBaseURL = defaultDeepgramBaseURL
	}
	if config.Model == "" {
		config.Model = "nova-2"
	}
	return &DeepgramClient{config: config}, nil
}

func (c *DeepgramClient) Close() error {
	return nil
}

// Open returns a lazy stream; the websocket is dialed by SendConfig,
// which carries the handshake in the connection's query parameters.
func (c *DeepgramClient) Open(ctx context.Context) (Stream, error) {
	return &deepgramStream{client: c, ctx: ctx}, nil
}

type deepgramStream struct {
	client *DeepgramClient
	ctx    context.Context

	conn *websocket.Conn

	sendMu        sync.Mutex
	sendClosed    bool
	closeSendOnce sync.Once
}

func (s *deepgramStream) SendConfig(config StreamConfig) error {
	wsURL, err := buildListenURL(s.client.config, config)
	if err != nil {
		return err
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+s.client.config.APIKey)

	conn, _, err := websocket.DefaultDialer.DialContext(s.ctx, wsURL, headers)
	if err != nil {
		return fmt.Errorf("failed to connect to Deepgram websocket: %w", err)
	}
	s.conn = conn
	return nil
}

func (s *deepgramStream) SendAudio(frame []byte) error {
	if len(frame) == 0 {
		return nil
	}

	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	if s.sendClosed {
		return errors.New("audio stream is already closed")
	}
	if err := s.conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		return fmt.Errorf("failed to send audio: %w", err)
	}
	return nil
}

func (s *deepgramStream) CloseSend() error {
	var err error
	s.closeSendOnce.Do(func() {
		s.sendMu.Lock()
		defer s.sendMu.Unlock()
		s.sendClosed = true
		if s.conn == nil {
			return
		}
		if writeErr := s.conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"CloseStream"}`)); writeErr != nil {
			err = fmt.Errorf("failed to close stream: %w", writeErr)
		}
	})
	return err
}

func (s *deepgramStream) Recv() (*Response, error) {
	for {
		_, payload, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived,
			) {
				s.conn.Close()
				return nil, io.EOF
			}
			return nil, fmt.Errorf("failed to read provider event: %w", err)
		}

		var raw deepgramResponse
		if err := json.Unmarshal(payload, &raw); err != nil {
			continue
		}

		if strings.EqualFold(raw.Type, "Error") {
			message := strings.TrimSpace(raw.Message)
			if message == "" {
				message = "deepgram returned an unknown error"
			}
			return nil, errors.New(message)
		}

		resp, ok := mapDeepgramResponse(raw)
		if !ok {
			continue
		}
		return resp, nil
	}
}

type deepgramResponse struct {
	Type        string `json:"type"`
	Message     string `json:"message"`
	IsFinal     bool   `json:"is_final"`
	SpeechFinal bool   `json:"speech_final"`

	Channel struct {
		Alternatives []struct {
			Transcript string `json:"transcript"`
		} `json:"alternatives"`
	} `json:"channel"`
}

// mapDeepgramResponse normalizes one message; ok is false for events
// that carry nothing the session layer cares about.
func mapDeepgramResponse(raw deepgramResponse) (*Response, bool) {
	if strings.EqualFold(raw.Type, "UtteranceEnd") {
		return &Response{EndOfUtterance: true}, true
	}

	transcript := ""
	if len(raw.Channel.Alternatives) > 0 {
		transcript = strings.TrimSpace(raw.Channel.Alternatives[0].Transcript)
	}
	if transcript == "" && !raw.SpeechFinal {
		return nil, false
	}

	return &Response{
		Transcript:     transcript,
		Final:          raw.IsFinal || raw.SpeechFinal,
		EndOfUtterance: raw.SpeechFinal,
	}, true
}

func buildListenURL(clientConfig DeepgramConfig, streamConfig StreamConfig) (string, error) {
	base := strings.TrimSpace(clientConfig.APIBaseURL)
	if base == "" {
		base = defaultDeepgramBaseURL
	}

	if strings.HasPrefix(base, "https://") {
		base = "wss://" + strings.TrimPrefix(base, "https://")
	} else if strings.HasPrefix(base, "http://") {
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	base = strings.TrimRight(base, "/")

	listenURL, err := url.Parse(base + "/listen")
	if err != nil {
		return "", fmt.Errorf("invalid Deepgram API base URL: %w", err)
	}

	encoding := string(streamConfig.Encoding)
	if encoding == "" {
		encoding = string(EncodingLinear16PCM)
	}
	sampleRate := streamConfig.SampleRateHertz
	if sampleRate <= 0 {
		sampleRate = 16000
	}

	query := listenURL.Query()
	query.Set("model", clientConfig.Model)
	query.Set("encoding", encoding)
	query.Set("sample_rate", fmt.Sprintf("%d", sampleRate))
	query.Set("channels", "1")
	query.Set("interim_results", "true")
	query.Set("smart_format", fmt.Sprintf("%t", clientConfig.SmartFormat))
	if streamConfig.Language != "" {
		query.Set("language", streamConfig.Language)
	}
	if streamConfig.SessionID != "" {
		query.Set("tag", streamConfig.SessionID)
	}
	listenURL.RawQuery = query.Encode()
	return listenURL.String(), nil
}
