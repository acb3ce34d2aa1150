package audio

// Capture defaults tuned for speech recognition rather than playback.
const (
	DefaultSampleRate      = 16000
	DefaultFramesPerBuffer = 1024
)

// Receiver accepts capture events. All three callbacks run on the
// producer's capture goroutine: exactly one Started/Stopped pair per
// Start, zero or more OnFrame calls in between.
type Receiver interface {
	// OnRecordingStarted is called once capture is running.
	OnRecordingStarted()

	// OnFrame delivers one frame of LINEAR16 little-endian mono audio.
	// The slice is freshly allocated per frame and is not reused by
	// the producer after the call returns.
	OnFrame(frame []byte)

	// OnRecordingStopped is called after the last frame, once capture
	// has fully wound down.
	OnRecordingStopped()
}

// Producer is a live audio source. Start spawns the capture goroutine;
// RequestStop asks it to wind down cooperatively.
type Producer interface {
	// AddReceiver registers a receiver for capture events. Must be
	// called before Start.
	AddReceiver(receiver Receiver)

	// Start begins capture. Returns an error if the underlying source
	// cannot be opened.
	Start() error

	// RequestStop asks the capture goroutine to stop. Idempotent; the
	// stop is acknowledged asynchronously via OnRecordingStopped.
	RequestStop()

	// StopRequested reports whether RequestStop has been called.
	StopRequested() bool
}
