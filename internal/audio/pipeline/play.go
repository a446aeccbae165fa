package pipeline

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"voice-recorder/internal/audio/decoder"
	"voice-recorder/internal/audio/playback"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// PlaybackSession streams one decoded file to one playback device. The device
// pulls frames from the decoder on its own thread.
type PlaybackSession struct {
	log      zerolog.Logger
	dec      decoder.Stream
	sink     playback.Sink
	channels int

	playing atomic.Bool
	frames  atomic.Int64
	ended   chan struct{}
	endOnce sync.Once
	readErr atomic.Pointer[error]
	done    chan struct{}
	stopMu  sync.Mutex
	stopped bool
}

// StartPlayback opens path and starts a device at the file's rate and channel
// count. Errors wrap decoder.ErrDecoderOpen, playback.ErrDeviceInit or
// playback.ErrDeviceStart. Nothing is left open on failure.
func StartPlayback(path string, open StreamOpener, newSink SinkFactory, log zerolog.Logger) (*PlaybackSession, error) {
	id := uuid.New()
	log = log.With().Str("session", id.String()).Str("path", path).Logger()

	dec, err := open(path)
	if err != nil {
		return nil, err
	}
	out, err := newSink(uint32(dec.SampleRate()), uint16(dec.Channels()), log)
	if err != nil {
		_ = dec.Close()
		return nil, err
	}

	s := &PlaybackSession{
		log:      log,
		dec:      dec,
		sink:     out,
		channels: dec.Channels(),
		ended:    make(chan struct{}),
		done:     make(chan struct{}),
	}
	s.playing.Store(true)
	if err := out.Start(s.onPull); err != nil {
		s.playing.Store(false)
		out.Close()
		_ = dec.Close()
		return nil, err
	}

	go s.watch()
	log.Info().
		Int("sample_rate", dec.SampleRate()).
		Int("channels", dec.Channels()).
		Msg("Playback started")
	return s, nil
}

// Playing reports whether the stream still has frames to deliver and the
// session has not been stopped.
func (s *PlaybackSession) Playing() bool { return s.playing.Load() }

// Done is closed once the device has been released.
func (s *PlaybackSession) Done() <-chan struct{} { return s.done }

// Err returns the read error that ended the stream early, if any.
func (s *PlaybackSession) Err() error {
	if e := s.readErr.Load(); e != nil {
		return *e
	}
	return nil
}

func (s *PlaybackSession) onPull(out []float32, frames int) int {
	if !s.playing.Load() {
		return 0
	}
	n := 0
	for n < frames {
		got, err := s.dec.ReadFrames(out[n*s.channels : frames*s.channels])
		n += got
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.readErr.Store(&err)
			}
			s.end()
			break
		}
		if got == 0 {
			s.end()
			break
		}
	}
	s.frames.Add(int64(n))
	return n
}

// end runs on the device thread; the device is released by watch.
func (s *PlaybackSession) end() {
	s.playing.Store(false)
	s.endOnce.Do(func() { close(s.ended) })
}

func (s *PlaybackSession) watch() {
	select {
	case <-s.ended:
		if err := s.Err(); err != nil {
			s.log.Error().Err(err).Msg("Playback read failed")
		}
		_ = s.Stop()
	case <-s.done:
	}
}

// Stop releases the device and the decoder. It is safe to call more than once.
func (s *PlaybackSession) Stop() error {
	s.stopMu.Lock()
	defer s.stopMu.Unlock()
	if s.stopped {
		return nil
	}
	s.stopped = true
	s.playing.Store(false)
	defer close(s.done)

	var errs []error
	if err := s.sink.Stop(); err != nil {
		errs = append(errs, fmt.Errorf("stop device: %w", err))
	}
	s.sink.Close()
	if err := s.dec.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close decoder: %w", err))
	}
	s.log.Info().Int64("frames", s.frames.Load()).Msg("Playback stopped")
	return errors.Join(errs...)
}
