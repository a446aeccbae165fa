package decoder

import (
	"errors"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"voice-recorder/internal/audio/convert"

	"github.com/tosone/minimp3"
)

const (
	mp3ChunkBytes = 1152 * 2 * 2 // one stereo layer III frame of int16
	mp3Prefetch   = 16           // chunks decoded ahead of playback
)

// mp3Stall is how long the stream waits for a decoded chunk once the whole
// file has been read before treating the rest as undecodable.
var mp3Stall = 200 * time.Millisecond

// eofReader records when the wrapped reader is exhausted.
type eofReader struct {
	r    io.Reader
	done atomic.Bool
}

func (e *eofReader) Read(p []byte) (int, error) {
	n, err := e.r.Read(p)
	if err != nil {
		e.done.Store(true)
	}
	return n, err
}

// mp3Stream decodes an MP3 file while it plays. A goroutine pulls int16 PCM
// from minimp3 into a bounded queue so ReadFrames never decodes a whole file.
type mp3Stream struct {
	f        *os.File
	src      *eofReader
	dec      *minimp3.Decoder
	rate     int
	channels int

	chunks  chan []byte
	quit    chan struct{}
	closing sync.Once
	pending []byte // int16 bytes not yet returned
	eof     bool
}

func newMP3Stream(f *os.File) (*mp3Stream, error) {
	src := &eofReader{r: f}
	dec, err := minimp3.NewDecoder(src)
	if err != nil {
		return nil, err
	}
	s := &mp3Stream{
		f:      f,
		src:    src,
		dec:    dec,
		chunks: make(chan []byte, mp3Prefetch),
		quit:   make(chan struct{}),
	}
	go s.pump()

	// the first decoded frame carries the stream format
	first, ok := s.next()
	if !ok || dec.SampleRate == 0 || dec.Channels == 0 {
		s.shutdown()
		return nil, errors.New("no mpeg audio frames")
	}
	s.rate, s.channels = dec.SampleRate, dec.Channels
	s.pending = first
	return s, nil
}

func (s *mp3Stream) pump() {
	defer close(s.chunks)
	for {
		buf := make([]byte, mp3ChunkBytes)
		n, err := s.dec.Read(buf)
		if n > 0 {
			select {
			case s.chunks <- buf[:n]:
			case <-s.quit:
				return
			}
		}
		if err != nil {
			return
		}
	}
}

// next returns the following decoded chunk. After the input is exhausted a
// decoder that stops producing output is closed, which ends the stream.
func (s *mp3Stream) next() ([]byte, bool) {
	timer := time.NewTimer(mp3Stall)
	defer timer.Stop()
	for {
		select {
		case c, ok := <-s.chunks:
			return c, ok
		case <-timer.C:
			if s.src.done.Load() {
				s.dec.Close()
			}
			timer.Reset(mp3Stall)
		}
	}
}

func (s *mp3Stream) SampleRate() int { return s.rate }
func (s *mp3Stream) Channels() int   { return s.channels }

func (s *mp3Stream) ReadFrames(dst []float32) (int, error) {
	frameBytes := 2 * s.channels
	want := len(dst) / s.channels
	n := 0
	for n < want {
		if len(s.pending) < frameBytes {
			if s.eof {
				break
			}
			c, ok := s.next()
			if !ok {
				s.eof = true
				break
			}
			s.pending = append(s.pending, c...)
			continue
		}
		frames := min(want-n, len(s.pending)/frameBytes)
		convert.Int16BytesToFloat32Into(dst[n*s.channels:(n+frames)*s.channels], s.pending[:frames*frameBytes])
		s.pending = s.pending[frames*frameBytes:]
		n += frames
	}
	if n == 0 && s.eof {
		return 0, io.EOF
	}
	return n, nil
}

func (s *mp3Stream) shutdown() {
	s.closing.Do(func() {
		close(s.quit)
		s.dec.Close()
	})
}

func (s *mp3Stream) Close() error {
	s.shutdown()
	return s.f.Close()
}
