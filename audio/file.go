package audio

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"time"

	"github.com/hajimehoshi/go-mp3"
	"github.com/rs/zerolog"

	"github.com/cueword/cueword/logging"
)

// FileProducer replays an MP3 file as if it were a live LINEAR16 mono
// source, pacing frames at real time. It exists for demos and for
// driving a detector without audio hardware.
type FileProducer struct {
	file            *os.File
	decoder         *mp3.Decoder
	framesPerBuffer int
	receivers       []Receiver
	stop            atomic.Bool
	log             zerolog.Logger
}

// NewFileProducer opens the MP3 file and prepares the decoder. The
// produced sample rate is the file's own; query it via SampleRate to
// configure the recognition stream.
func NewFileProducer(path string, framesPerBuffer int) (*FileProducer, error) {
	if framesPerBuffer <= 0 {
		framesPerBuffer = DefaultFramesPerBuffer
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open audio file: %w", err)
	}

	decoder, err := mp3.NewDecoder(file)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to decode audio file: %w", err)
	}

	return &FileProducer{
		file:            file,
		decoder:         decoder,
		framesPerBuffer: framesPerBuffer,
		log:             logging.GetDefaultLogger().With().Str("component", "file-producer").Logger(),
	}, nil
}

// SampleRate returns the decoded sample rate in Hz.
func (p *FileProducer) SampleRate() int {
	return p.decoder.SampleRate()
}

func (p *FileProducer) AddReceiver(receiver Receiver) {
	p.receivers = append(p.receivers, receiver)
}

func (p *FileProducer) Start() error {
	// A stop requested before Start must survive it; the replay loop
	// then winds down on its first iteration.
	go p.run()
	return nil
}

func (p *FileProducer) RequestStop() {
	p.stop.Store(true)
}

func (p *FileProducer) StopRequested() bool {
	return p.stop.Load()
}

func (p *FileProducer) run() {
	defer p.file.Close()

	for _, receiver := range p.receivers {
		receiver.OnRecordingStarted()
	}

	frameDuration := time.Duration(p.framesPerBuffer) * time.Second / time.Duration(p.decoder.SampleRate())
	ticker := time.NewTicker(frameDuration)
	defer ticker.Stop()

	// go-mp3 emits 16-bit little-endian stereo; one mono frame of
	// framesPerBuffer samples consumes twice as many stereo bytes.
	stereo := make([]byte, p.framesPerBuffer*4)

	for !p.stop.Load() {
		n, err := io.ReadFull(p.decoder, stereo)
		if n > 0 {
			frame := downmixStereo(stereo[:n-n%4])
			if len(frame) > 0 {
				for _, receiver := range p.receivers {
					receiver.OnFrame(frame)
				}
			}
		}
		if err != nil {
			if err != io.EOF && err != io.ErrUnexpectedEOF {
				p.log.Error().Err(err).Msg("error decoding audio file")
			}
			break
		}
		<-ticker.C
	}

	for _, receiver := range p.receivers {
		receiver.OnRecordingStopped()
	}
}

// downmixStereo averages interleaved 16-bit LE stereo samples into a
// LINEAR16 mono frame. Input length must be a multiple of 4.
func downmixStereo(stereo []byte) []byte {
	mono := make([]byte, len(stereo)/2)
	for i := 0; i+3 < len(stereo); i += 4 {
		left := int16(binary.LittleEndian.Uint16(stereo[i:]))
		right := int16(binary.LittleEndian.Uint16(stereo[i+2:]))
		mixed := int16((int32(left) + int32(right)) / 2)
		binary.LittleEndian.PutUint16(mono[i/2:], uint16(mixed))
	}
	return mono
}
