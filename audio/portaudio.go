package audio

import (
	"encoding/binary"
	"fmt"
	"sync/atomic"

	"github.com/gordonklaus/portaudio"
	"github.com/rs/zerolog"

	"github.com/cueword/cueword/logging"
)

// RecorderConfig configures microphone capture.
type RecorderConfig struct {
	SampleRate      int
	FramesPerBuffer int
}

// Recorder captures LINEAR16 mono audio from the default input device.
// The caller is responsible for portaudio.Initialize/Terminate.
type Recorder struct {
	config    RecorderConfig
	receivers []Receiver
	buffer    []int16
	stop      atomic.Bool
	log       zerolog.Logger
}

// NewRecorder creates a microphone recorder. Zero config fields fall
// back to the package defaults.
func NewRecorder(config RecorderConfig) *Recorder {
	if config.SampleRate <= 0 {
		config.SampleRate = DefaultSampleRate
	}
	if config.FramesPerBuffer <= 0 {
		config.FramesPerBuffer = DefaultFramesPerBuffer
	}
	return &Recorder{
		config: config,
		buffer: make([]int16, config.FramesPerBuffer),
		log:    logging.GetDefaultLogger().With().Str("component", "recorder").Logger(),
	}
}

func (r *Recorder) AddReceiver(receiver Receiver) {
	r.receivers = append(r.receivers, receiver)
}

// Start opens the default input stream and spawns the capture goroutine.
func (r *Recorder) Start() error {
	stream, err := portaudio.OpenDefaultStream(
		1, // input channels
		0, // output channels
		float64(r.config.SampleRate),
		r.config.FramesPerBuffer,
		r.buffer,
	)
	if err != nil {
		return fmt.Errorf("failed to open audio stream: %w", err)
	}

	if err := stream.Start(); err != nil {
		stream.Close()
		return fmt.Errorf("failed to start audio stream: %w", err)
	}

	// A stop requested before or during Start must survive it; the
	// capture loop then winds down on its first iteration.
	go r.run(stream)
	return nil
}

func (r *Recorder) RequestStop() {
	r.stop.Store(true)
}

func (r *Recorder) StopRequested() bool {
	return r.stop.Load()
}

func (r *Recorder) run(stream *portaudio.Stream) {
	for _, receiver := range r.receivers {
		receiver.OnRecordingStarted()
	}

	for !r.stop.Load() {
		if err := stream.Read(); err != nil {
			r.log.Error().Err(err).Msg("error reading audio")
			continue
		}
		frame := samplesToBytes(r.buffer)
		for _, receiver := range r.receivers {
			receiver.OnFrame(frame)
		}
	}

	if err := stream.Stop(); err != nil {
		r.log.Error().Err(err).Msg("error stopping audio stream")
	}
	if err := stream.Close(); err != nil {
		r.log.Error().Err(err).Msg("error closing audio stream")
	}

	for _, receiver := range r.receivers {
		receiver.OnRecordingStopped()
	}
}

// samplesToBytes converts int16 samples to LINEAR16 little-endian bytes.
func samplesToBytes(samples []int16) []byte {
	frame := make([]byte, 2*len(samples))
	for i, sample := range samples {
		binary.LittleEndian.PutUint16(frame[2*i:], uint16(sample))
	}
	return frame
}
