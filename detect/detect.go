// Package detect coordinates a live audio producer and a duplex
// recognition stream for one spoken utterance at a time: capture starts,
// the stream performs its handshake before any audio is sent, frames are
// forwarded in order once the stream is ready, and the first terminal
// signal (intent, utterance boundary, caller stop, or transport error)
// drives both sides to a released state exactly once.
package detect

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cueword/cueword/audio"
	"github.com/cueword/cueword/logging"
	"github.com/cueword/cueword/stt"
)

// State is the session lifecycle state.
type State string

const (
	StateIdle        State = "idle"
	StateStarting    State = "starting"
	StateStreaming   State = "streaming"
	StateTerminating State = "terminating"
)

// TerminationCause is the classified reason a session was torn down.
// At most one cause is recorded per session; the first signal wins.
type TerminationCause string

const (
	CauseNone             TerminationCause = ""
	CauseIntentRecognized TerminationCause = "intent_recognized"
	CauseEndOfUtterance   TerminationCause = "end_of_utterance"
	CauseCallerStop       TerminationCause = "caller_stop"
	CauseTransportError   TerminationCause = "transport_error"
	CauseCompleted        TerminationCause = "completed"
)

// Config holds the per-detector recognition settings.
type Config struct {
	// SessionID pins a fixed session identifier. Empty means a fresh
	// UUID per detection attempt.
	SessionID string

	SampleRate  int
	Language    string
	Classifiers []string
}

// ProducerFactory builds a fresh audio producer for each session.
type ProducerFactory func() audio.Producer

// Detector runs one detection session at a time against a recognition
// client. The client is detector-scoped: it is reused across sequential
// sessions and released once by Close.
type Detector struct {
	config    Config
	client    stt.Client
	producers ProducerFactory
	observer  Observer
	log       zerolog.Logger

	mu        sync.Mutex
	cond      *sync.Cond
	sess      *session
	lastCause TerminationCause
	closed    bool

	counters counters
}

// session holds the two ownership slots of one detection attempt. Both
// slots and the cause are guarded by the detector mutex; the stream
// slot is populated asynchronously once the handshake has been sent.
type session struct {
	id       string
	state    State
	producer audio.Producer
	stream   stt.Stream
	cause    TerminationCause
	ctx      context.Context
	cancel   context.CancelFunc
}

// New creates a detector. Configuration problems are reported here;
// once constructed, failures surface only through the observer.
func New(config Config, client stt.Client, producers ProducerFactory, observer Observer) (*Detector, error) {
	if client == nil {
		return nil, errors.New("stt client is required")
	}
	if producers == nil {
		return nil, errors.New("producer factory is required")
	}
	if observer == nil {
		return nil, errors.New("observer is required")
	}
	if config.Language == "" {
		return nil, errors.New("language is required")
	}
	if config.SampleRate <= 0 {
		config.SampleRate = audio.DefaultSampleRate
	}

	d := &Detector{
		config:    config,
		client:    client,
		producers: producers,
		observer:  observer,
		log:       logging.GetDefaultLogger().With().Str("component", "detect").Logger(),
	}
	d.cond = sync.NewCond(&d.mu)
	return d, nil
}

// Start begins a detection session. Fire-and-forget: a call while a
// session is active or after Close is a logged no-op. The optional init
// hook customizes the producer before capture begins.
func (d *Detector) Start(init func(audio.Producer)) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		d.log.Warn().Msg("detector is closed")
		return
	}
	if d.sess != nil {
		d.mu.Unlock()
		d.log.Debug().Msg("audio capture is already running")
		return
	}

	sessionID := d.config.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	ctx, cancel := context.WithCancel(context.Background())
	sess := &session{
		id:       sessionID,
		state:    StateStarting,
		producer: d.producers(),
		ctx:      ctx,
		cancel:   cancel,
	}
	d.sess = sess
	d.mu.Unlock()

	sess.producer.AddReceiver(&bridge{d: d, sess: sess})
	if init != nil {
		init(sess.producer)
	}

	if err := sess.producer.Start(); err != nil {
		d.mu.Lock()
		d.sess = nil
		d.mu.Unlock()
		cancel()
		d.log.Error().Err(err).Str("session", sessionID).Msg("failed to start audio capture")
		d.observer.OnError(sessionID, fmt.Errorf("failed to start audio capture: %w", err))
		return
	}

	// A Stop that landed while capture was starting must not be lost.
	d.mu.Lock()
	if sess.cause != CauseNone && sess.producer != nil && !sess.producer.StopRequested() {
		sess.producer.RequestStop()
	}
	d.mu.Unlock()

	d.log.Info().Str("session", sessionID).Msg("session started")
}

// Stop requests termination of the active session. Records the
// caller_stop cause unless another cause won first; always asks the
// producer to stop. No-op when idle.
func (d *Detector) Stop() {
	d.mu.Lock()
	sess := d.sess
	if sess == nil {
		d.mu.Unlock()
		d.log.Debug().Msg("no active session to stop")
		return
	}
	recorded := d.recordCauseLocked(sess, CauseCallerStop)
	if sess.producer != nil && !sess.producer.StopRequested() {
		sess.producer.RequestStop()
	}
	d.mu.Unlock()
	if recorded {
		d.log.Info().Str("session", sess.id).Msg("stop requested by caller")
	}
}

// Close stops any active session and releases the recognition client.
// The detector cannot start sessions afterwards.
func (d *Detector) Close() error {
	d.Stop()
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.mu.Unlock()
	return d.client.Close()
}

// State returns the current session lifecycle state.
func (d *Detector) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.sess == nil {
		return StateIdle
	}
	return d.sess.state
}

// Cause returns the most recently recorded termination cause, readable
// after teardown.
func (d *Detector) Cause() TerminationCause {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastCause
}

// Metrics returns a snapshot of the frame counters.
func (d *Detector) Metrics() Metrics {
	return d.counters.snapshot()
}

// recordCause records the session's termination cause if none has been
// recorded yet, and wakes any forwarder blocked on stream readiness.
func (d *Detector) recordCause(sess *session, cause TerminationCause) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.recordCauseLocked(sess, cause)
}

func (d *Detector) recordCauseLocked(sess *session, cause TerminationCause) bool {
	if sess.cause != CauseNone {
		return false
	}
	sess.cause = cause
	if d.sess == sess {
		sess.state = StateTerminating
		d.lastCause = cause
	} else if d.sess == nil {
		d.lastCause = cause
	}
	d.cond.Broadcast()
	return true
}

// requestProducerStop asks the session's producer to stop. Idempotent:
// a cleared slot or an already stop-requested producer is a no-op.
func (d *Detector) requestProducerStop(sess *session) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if sess.producer != nil && !sess.producer.StopRequested() {
		sess.producer.RequestStop()
	}
}

// runStream opens the recognition stream, performs the handshake,
// publishes the stream slot, and interprets inbound events until the
// stream ends. Runs on its own goroutine, one per session.
func (d *Detector) runStream(sess *session) {
	defer sess.cancel()

	stream, err := d.client.Open(sess.ctx)
	if err != nil {
		d.failStream(sess, fmt.Errorf("failed to open recognition stream: %w", err))
		return
	}

	d.mu.Lock()
	stale := d.sess != sess
	d.mu.Unlock()
	if stale {
		// The session was torn down while the stream was opening;
		// nobody else will half-close it.
		_ = stream.CloseSend()
		return
	}

	d.observer.OnStart(sess.id)

	// The first message carries only the session configuration.
	handshake := stt.StreamConfig{
		SessionID:       sess.id,
		Encoding:        stt.EncodingLinear16PCM,
		SampleRateHertz: d.config.SampleRate,
		Language:        d.config.Language,
		SingleUtterance: true,
		Classifiers:     d.config.Classifiers,
	}
	if err := stream.SendConfig(handshake); err != nil {
		_ = stream.CloseSend()
		d.failStream(sess, fmt.Errorf("handshake failed: %w", err))
		return
	}

	d.mu.Lock()
	if d.sess != sess {
		d.mu.Unlock()
		_ = stream.CloseSend()
		return
	}
	sess.stream = stream
	if sess.cause == CauseNone {
		sess.state = StateStreaming
	}
	d.cond.Broadcast()
	d.mu.Unlock()
	d.log.Debug().Str("session", sess.id).Msg("recognition stream ready")

	d.receiveLoop(sess, stream)
}

// failStream surfaces a stream setup failure as a transport error,
// unless another cause already terminated the session.
func (d *Detector) failStream(sess *session, err error) {
	if d.recordCause(sess, CauseTransportError) {
		d.requestProducerStop(sess)
		d.log.Error().Err(err).Str("session", sess.id).Msg("recognition stream failed")
		d.observer.OnError(sess.id, err)
		return
	}
	d.log.Debug().Err(err).Str("session", sess.id).Msg("stream setup failed after termination")
}

// receiveLoop classifies inbound events: a non-empty intent or an
// utterance boundary terminates the session and stops the producer;
// anything else is an intermediate result.
func (d *Detector) receiveLoop(sess *session, stream stt.Stream) {
	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			// Stream completion on its own does not stop the producer;
			// by now a stop should already have happened.
			d.recordCause(sess, CauseCompleted)
			d.observer.OnComplete(sess.id)
			return
		}
		if err != nil {
			if d.recordCause(sess, CauseTransportError) {
				d.requestProducerStop(sess)
				d.log.Error().Err(err).Str("session", sess.id).Msg("recognition stream error")
				d.observer.OnError(sess.id, err)
			} else {
				d.log.Debug().Err(err).Str("session", sess.id).Msg("stream closed after termination")
			}
			return
		}

		d.observer.OnResponse(sess.id, resp)

		switch {
		case resp.Intent != "":
			if d.recordCause(sess, CauseIntentRecognized) {
				d.requestProducerStop(sess)
				d.log.Info().Str("session", sess.id).Str("intent", resp.Intent).Msg("intent recognized")
				d.observer.OnResponseIntent(sess.id, resp)
			}
		case resp.EndOfUtterance:
			if d.recordCause(sess, CauseEndOfUtterance) {
				d.requestProducerStop(sess)
				d.log.Info().Str("session", sess.id).Msg("end of utterance")
				d.observer.OnResponseEndOfUtterance(sess.id, resp)
			}
		}
	}
}

// bridge forwards one session's capture events into the detector. All
// three callbacks run on the producer's capture goroutine.
type bridge struct {
	d    *Detector
	sess *session
}

func (b *bridge) OnRecordingStarted() {
	b.d.log.Debug().Str("session", b.sess.id).Msg("audio capture started")
	go b.d.runStream(b.sess)
}

// OnFrame forwards one frame to the stream, blocking while the stream
// is not yet ready. Frames arriving after termination are dropped; a
// single failed send is logged and does not terminate the session.
func (b *bridge) OnFrame(frame []byte) {
	d := b.d
	sess := b.sess

	d.mu.Lock()
	for sess.cause == CauseNone && sess.stream == nil {
		d.cond.Wait()
	}
	if sess.cause != CauseNone {
		d.mu.Unlock()
		d.counters.framesDropped.Add(1)
		d.log.Debug().Str("session", sess.id).Msg("frame dropped after termination")
		return
	}
	err := sess.stream.SendAudio(frame)
	d.mu.Unlock()

	if err != nil {
		d.counters.sendFailures.Add(1)
		d.log.Error().Err(err).Str("session", sess.id).Msg("failed to forward audio frame")
		return
	}
	d.counters.framesForwarded.Add(1)
	d.counters.bytesForwarded.Add(uint64(len(frame)))
}

// OnRecordingStopped acknowledges the producer's stop: the stream's
// send side is half-closed and both slots are cleared, returning the
// detector to idle. Runs strictly after the producer's last OnFrame.
func (b *bridge) OnRecordingStopped() {
	d := b.d
	sess := b.sess

	d.mu.Lock()
	if sess.stream != nil {
		if err := sess.stream.CloseSend(); err != nil {
			d.log.Error().Err(err).Str("session", sess.id).Msg("failed to close stream send side")
		}
	}
	sess.stream = nil
	sess.producer = nil
	cause := sess.cause
	if d.sess == sess {
		d.sess = nil
	}
	d.mu.Unlock()
	d.log.Info().Str("session", sess.id).Str("cause", string(cause)).Msg("session ended")
}
