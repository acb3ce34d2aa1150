package stt

import "context"

// Encoding identifies the wire format of audio frames.
type Encoding string

// EncodingLinear16PCM is raw 16-bit little-endian PCM, the only
// encoding the capture side produces.
const EncodingLinear16PCM Encoding = "linear16"

// StreamConfig is the handshake carried by the first message on every
// stream, strictly before any audio.
type StreamConfig struct {
	SessionID       string
	Encoding        Encoding
	SampleRateHertz int
	Language        string
	SingleUtterance bool
	Classifiers     []string
}

// Response is one inbound recognition event, normalized across
// backends.
type Response struct {
	// Intent is the recognized intent name, empty for transcript-only
	// events.
	Intent string

	// Transcript is the best-alternative text, possibly partial.
	Transcript string

	// Final marks the transcript as no longer subject to revision.
	Final bool

	// EndOfUtterance marks the single-utterance boundary.
	EndOfUtterance bool

	// SessionUUID is the server-assigned stream identifier, when the
	// backend reports one.
	SessionUUID string
}

// Client opens recognition streams against one backend. It is safe to
// reuse across sequential streams and is closed exactly once.
type Client interface {
	Open(ctx context.Context) (Stream, error)
	Close() error
}

// Stream is one duplex recognition channel.
type Stream interface {
	// SendConfig performs the handshake. Must be called exactly once,
	// before any SendAudio.
	SendConfig(config StreamConfig) error

	// SendAudio forwards one LINEAR16 frame.
	SendAudio(frame []byte) error

	// Recv blocks for the next inbound event. Returns io.EOF once the
	// server has completed the stream.
	Recv() (*Response, error)

	// CloseSend half-closes the stream after the last frame. Idempotent.
	CloseSend() error
}
