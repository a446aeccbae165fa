package pipeline

import (
	"errors"
	"fmt"
	"iter"
	"os"
	"sync"
	"sync/atomic"

	"voice-recorder/internal/audio/capture"
	"voice-recorder/internal/audio/config"
	"voice-recorder/internal/audio/encoder"
	"voice-recorder/internal/audio/ogg"
	"voice-recorder/internal/audio/sink"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// CaptureSession records one capture device into one Ogg Opus file. Every
// device callback pushes its block through encoder, packetizer and writer
// before returning.
type CaptureSession struct {
	path   string
	log    zerolog.Logger
	source capture.Source
	enc    encoder.Encoder
	stream *ogg.Stream
	file   *sink.FileWriter
	out    sink.PageWriter

	frames atomic.Int64
	pages  atomic.Int64

	fatal     atomic.Pointer[error]
	failed    chan struct{}
	failOnce  sync.Once
	done      chan struct{}
	stopMu    sync.Mutex
	stopped   bool
	stopError error
}

// StartCapture opens path, writes the stream headers and starts the device.
// Errors wrap sink.ErrSinkOpen, encoder.ErrEncoderInit, capture.ErrDeviceInit
// or capture.ErrDeviceStart. Nothing is left open on failure.
func StartCapture(path string, cfg config.AudioConfig, newSource SourceFactory, log zerolog.Logger) (*CaptureSession, error) {
	id := uuid.New()
	log = log.With().Str("session", id.String()).Str("path", path).Logger()

	file, err := sink.Create(path)
	if err != nil {
		return nil, err
	}
	discard := func() {
		_ = file.Close()
		_ = os.Remove(path)
	}

	enc, err := encoder.NewOpusEncoder(cfg)
	if err != nil {
		discard()
		return nil, err
	}

	stream := ogg.NewStream(ogg.NewSerial(), ogg.Options{
		MaxPageBytes:    cfg.PageMaxBytes,
		MaxPageDuration: cfg.PageMaxDuration,
	})
	s := &CaptureSession{
		path:   path,
		log:    log,
		enc:    enc,
		stream: stream,
		file:   file,
		out:    file,
		failed: make(chan struct{}),
		done:   make(chan struct{}),
	}

	// each header is flushed on its own so OpusHead sits alone on the first page
	for _, h := range enc.HeaderPackets() {
		if err := s.stream.PacketIn(ogg.Packet{Data: h}); err != nil {
			discard()
			return nil, fmt.Errorf("%w: %v", sink.ErrSinkOpen, err)
		}
		if err := s.writePages(s.stream.Flush()); err != nil {
			discard()
			return nil, fmt.Errorf("%w: writing headers: %v", sink.ErrSinkOpen, err)
		}
	}

	source, err := newSource(cfg, log)
	if err != nil {
		discard()
		return nil, err
	}
	s.source = source

	if cfg.WriteQueue > 0 {
		s.out = sink.NewQueuedWriter(file, cfg.WriteQueue, log)
	}

	if err := source.Start(s.onBlock); err != nil {
		source.Close()
		_ = s.out.Close()
		discard()
		return nil, err
	}

	go s.watch()
	log.Info().
		Uint32("serial", s.stream.Serial()).
		Int("queue", cfg.WriteQueue).
		Str("codec", cfg.MimeType).
		Float64("quality", cfg.Quality).
		Msg("Recording started")
	return s, nil
}

func (s *CaptureSession) Path() string { return s.path }

// Frames returns how many frames per channel were captured so far.
func (s *CaptureSession) Frames() int64 { return s.frames.Load() }

// Done is closed once the session has stopped, gracefully or not.
func (s *CaptureSession) Done() <-chan struct{} { return s.done }

// Err returns the error that aborted the session, if any.
func (s *CaptureSession) Err() error {
	if e := s.fatal.Load(); e != nil {
		return *e
	}
	return nil
}

func (s *CaptureSession) onBlock(pcm []float32, frames int) {
	if s.fatal.Load() != nil {
		return
	}
	if err := s.push(pcm); err != nil {
		s.fail(err)
		return
	}
	s.frames.Add(int64(frames))
}

func (s *CaptureSession) push(pcm []float32) error {
	if err := s.enc.Submit(pcm); err != nil {
		return fmt.Errorf("submit: %w", err)
	}
	return s.drain()
}

func (s *CaptureSession) drain() error {
	for pkt, err := range s.enc.Drain() {
		if err != nil {
			return err
		}
		if err := s.stream.PacketIn(ogg.Packet{Data: pkt.Data, Granule: pkt.Granule, EOS: pkt.Last}); err != nil {
			return fmt.Errorf("packet in: %w", err)
		}
		if err := s.writePages(s.stream.PageOut()); err != nil {
			return err
		}
	}
	return nil
}

func (s *CaptureSession) writePages(pages iter.Seq[ogg.Page]) error {
	for p := range pages {
		if err := s.out.WritePage(p); err != nil {
			return fmt.Errorf("write page %d: %w", p.Sequence(), err)
		}
		s.pages.Add(1)
	}
	return nil
}

// fail runs on the device thread; teardown happens in watch.
func (s *CaptureSession) fail(err error) {
	s.failOnce.Do(func() {
		s.fatal.Store(&err)
		close(s.failed)
	})
}

func (s *CaptureSession) watch() {
	select {
	case <-s.failed:
		s.log.Error().Err(s.Err()).Msg("Recording aborted")
		_ = s.stop(false)
	case <-s.done:
	}
}

// Stop stops the device, flushes the encoder and the packetizer and closes
// the file. It is safe to call more than once.
func (s *CaptureSession) Stop() error {
	return s.stop(true)
}

func (s *CaptureSession) stop(graceful bool) error {
	s.stopMu.Lock()
	defer s.stopMu.Unlock()
	if s.stopped {
		return s.stopError
	}
	s.stopped = true
	defer close(s.done)

	var errs []error
	if err := s.source.Stop(); err != nil {
		errs = append(errs, fmt.Errorf("stop device: %w", err))
	}
	// no callback runs past this point
	if fatal := s.Err(); fatal != nil {
		errs = append(errs, fatal)
	} else if graceful {
		if err := s.finish(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := s.out.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close writer: %w", err))
	}
	if err := s.file.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close file: %w", err))
	}
	s.source.Close()

	s.stopError = errors.Join(errs...)
	s.log.Info().
		Int64("frames", s.frames.Load()).
		Int64("pages", s.pages.Load()).
		Int64("bytes", s.file.Written()).
		AnErr("error", s.stopError).
		Msg("Recording stopped")
	return s.stopError
}

func (s *CaptureSession) finish() error {
	if err := s.enc.Finalize(); err != nil {
		return fmt.Errorf("finalize: %w", err)
	}
	if err := s.drain(); err != nil {
		return err
	}
	return s.writePages(s.stream.Flush())
}
