// Package audio is the control plane for recording and playback: it owns at
// most one session of each kind and reports outcomes as status codes for
// callers across a foreign-function boundary.
package audio

import (
	"errors"
	"fmt"
	"sync"

	"voice-recorder/internal/audio/capture"
	"voice-recorder/internal/audio/config"
	"voice-recorder/internal/audio/decoder"
	"voice-recorder/internal/audio/encoder"
	"voice-recorder/internal/audio/pipeline"
	"voice-recorder/internal/audio/playback"
	"voice-recorder/internal/audio/sink"

	"github.com/rs/zerolog"
)

// StartRecording status codes.
const (
	RecordOK                = 0
	RecordAlreadyActive     = -1
	RecordOutputFailed      = -2
	RecordEncoderFailed     = -3
	RecordDeviceInitFailed  = -4
	RecordDeviceStartFailed = -5
)

// StartPlaying status codes.
const (
	PlayOK                = 0
	PlayOpenFailed        = -1
	PlayDeviceInitFailed  = -2
	PlayDeviceStartFailed = -3
)

var ErrAlreadyActive = errors.New("recording already active")

type Engine struct {
	cfg        config.AudioConfig
	log        zerolog.Logger
	newSource  pipeline.SourceFactory
	newSink    pipeline.SinkFactory
	openStream pipeline.StreamOpener

	mu  sync.Mutex
	rec *pipeline.CaptureSession
	ply *pipeline.PlaybackSession
}

type Option func(*Engine)

func WithSourceFactory(f pipeline.SourceFactory) Option {
	return func(e *Engine) { e.newSource = f }
}

func WithSinkFactory(f pipeline.SinkFactory) Option {
	return func(e *Engine) { e.newSink = f }
}

func WithStreamOpener(f pipeline.StreamOpener) Option {
	return func(e *Engine) { e.openStream = f }
}

// NewEngine returns an idle engine recording with cfg. Devices default to
// the system's default capture and playback devices.
func NewEngine(cfg config.AudioConfig, log zerolog.Logger, opts ...Option) *Engine {
	e := &Engine{
		cfg:        cfg,
		log:        log.With().Str("component", "audio").Logger(),
		newSource:  pipeline.MalgoSource,
		newSink:    pipeline.MalgoSink,
		openStream: pipeline.OpenStream,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Record starts recording to path. It fails with ErrAlreadyActive while a
// recording that has not stopped exists; that recording is left untouched.
func (e *Engine) Record(path string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.rec != nil {
		select {
		case <-e.rec.Done():
			// aborted from its callback; the slot is free again
			e.rec = nil
		default:
			return fmt.Errorf("%w: %s", ErrAlreadyActive, e.rec.Path())
		}
	}
	s, err := pipeline.StartCapture(path, e.cfg, e.newSource, e.log)
	if err != nil {
		e.log.Error().Err(err).Str("path", path).Msg("Failed to start recording")
		return err
	}
	e.rec = s
	return nil
}

func (e *Engine) StartRecording(path string) int {
	return RecordStatus(e.Record(path))
}

// StopRecording finalizes and closes the current recording. It is a no-op
// when nothing is recording.
func (e *Engine) StopRecording() error {
	e.mu.Lock()
	s := e.rec
	e.rec = nil
	e.mu.Unlock()
	if s == nil {
		return nil
	}
	return s.Stop()
}

// Recording reports whether a recording session is running.
func (e *Engine) Recording() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.rec == nil {
		return false
	}
	select {
	case <-e.rec.Done():
		return false
	default:
		return true
	}
}

// Play starts playing path, stopping any playback already running.
func (e *Engine) Play(path string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ply != nil {
		if err := e.ply.Stop(); err != nil {
			e.log.Warn().Err(err).Msg("Previous playback did not stop cleanly")
		}
		e.ply = nil
	}
	s, err := pipeline.StartPlayback(path, e.openStream, e.newSink, e.log)
	if err != nil {
		e.log.Error().Err(err).Str("path", path).Msg("Failed to start playback")
		return err
	}
	e.ply = s
	return nil
}

func (e *Engine) StartPlaying(path string) int {
	return PlayStatus(e.Play(path))
}

// StopPlaying releases the playback device. It is a no-op when nothing is
// playing.
func (e *Engine) StopPlaying() error {
	e.mu.Lock()
	s := e.ply
	e.ply = nil
	e.mu.Unlock()
	if s == nil {
		return nil
	}
	return s.Stop()
}

// IsPlaying is true from a successful StartPlaying until StopPlaying or the
// end of the stream.
func (e *Engine) IsPlaying() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ply != nil && e.ply.Playing()
}

// PlaybackDone returns a channel closed when the current playback ends, or
// nil when nothing is playing.
func (e *Engine) PlaybackDone() <-chan struct{} {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ply == nil {
		return nil
	}
	return e.ply.Done()
}

// Close stops both sessions.
func (e *Engine) Close() error {
	return errors.Join(e.StopRecording(), e.StopPlaying())
}

func RecordStatus(err error) int {
	switch {
	case err == nil:
		return RecordOK
	case errors.Is(err, ErrAlreadyActive):
		return RecordAlreadyActive
	case errors.Is(err, encoder.ErrEncoderInit):
		return RecordEncoderFailed
	case errors.Is(err, capture.ErrDeviceInit):
		return RecordDeviceInitFailed
	case errors.Is(err, capture.ErrDeviceStart):
		return RecordDeviceStartFailed
	case errors.Is(err, sink.ErrSinkOpen):
		return RecordOutputFailed
	}
	return RecordOutputFailed
}

func PlayStatus(err error) int {
	switch {
	case err == nil:
		return PlayOK
	case errors.Is(err, playback.ErrDeviceInit):
		return PlayDeviceInitFailed
	case errors.Is(err, playback.ErrDeviceStart):
		return PlayDeviceStartFailed
	case errors.Is(err, decoder.ErrDecoderOpen):
		return PlayOpenFailed
	}
	return PlayOpenFailed
}
