package decoder

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/mewkiz/flac"
)

// flacStream decodes a FLAC file one frame at a time.
type flacStream struct {
	f        *os.File
	stream   *flac.Stream
	channels int
	scale    float32
	buf      []float32 // decoded, not yet returned
	pcm      []float32
	eof      bool
}

func isFLAC(magic []byte) bool {
	return len(magic) >= 4 && string(magic[:4]) == "fLaC"
}

func newFLACStream(f *os.File) (*flacStream, error) {
	stream, err := flac.New(bufio.NewReader(f))
	if err != nil {
		return nil, err
	}
	info := stream.Info
	if info == nil || info.NChannels == 0 || info.SampleRate == 0 {
		return nil, errors.New("missing STREAMINFO")
	}
	if info.BitsPerSample < 4 || info.BitsPerSample > 32 {
		return nil, fmt.Errorf("unsupported bit depth %d", info.BitsPerSample)
	}
	return &flacStream{
		f:        f,
		stream:   stream,
		channels: int(info.NChannels),
		scale:    1 / float32(int64(1)<<(info.BitsPerSample-1)),
	}, nil
}

func (s *flacStream) SampleRate() int { return int(s.stream.Info.SampleRate) }
func (s *flacStream) Channels() int   { return s.channels }

func (s *flacStream) ReadFrames(dst []float32) (int, error) {
	ch := s.channels
	want := len(dst) / ch
	n := 0
	for n < want {
		if len(s.buf) == 0 {
			if s.eof {
				break
			}
			if err := s.fill(); err != nil {
				if errors.Is(err, io.EOF) {
					s.eof = true
					break
				}
				return n, err
			}
			continue
		}
		c := copy(dst[n*ch:want*ch], s.buf)
		s.buf = s.buf[c:]
		n += c / ch
	}
	if n == 0 && s.eof {
		return 0, io.EOF
	}
	return n, nil
}

// fill decodes the next frame and interleaves its subframes.
func (s *flacStream) fill() error {
	fr, err := s.stream.ParseNext()
	if err != nil {
		return err
	}
	if len(fr.Subframes) != s.channels {
		return fmt.Errorf("frame with %d channels in a %d channel stream", len(fr.Subframes), s.channels)
	}
	frames := int(fr.BlockSize)
	if cap(s.pcm) < frames*s.channels {
		s.pcm = make([]float32, frames*s.channels)
	}
	pcm := s.pcm[:frames*s.channels]
	for c, sub := range fr.Subframes {
		for i := 0; i < frames && i < len(sub.Samples); i++ {
			pcm[i*s.channels+c] = float32(sub.Samples[i]) * s.scale
		}
	}
	s.buf = pcm
	return nil
}

func (s *flacStream) Close() error {
	return s.f.Close()
}
