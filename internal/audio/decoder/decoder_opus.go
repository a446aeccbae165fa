package decoder

import (
	"errors"
	"fmt"
	"io"
	"os"

	"voice-recorder/internal/audio/codec"
	"voice-recorder/internal/audio/ogg"

	"gopkg.in/hraban/opus.v2"
)

const maxFrameSize = 5760 // 120 ms at 48kHz, the longest opus packet

// opusStream decodes an Ogg Opus file packet by packet, discarding the
// pre-skip at the start and trimming the end to the final granule.
type opusStream struct {
	f    *os.File
	r    *ogg.Reader
	dec  *opus.Decoder
	head codec.OpusHead
	tags codec.OpusTags

	pcm     []float32
	buf     []float32 // decoded, not yet returned
	skip    int
	decoded int64
	eof     bool
}

func newOpusStream(f *os.File) (*opusStream, error) {
	r := ogg.NewReader(f)
	p, err := r.NextPacket()
	if err != nil {
		return nil, err
	}
	head, err := codec.ParseOpusHead(p.Data)
	if err != nil {
		return nil, err
	}
	p, err = r.NextPacket()
	if err != nil {
		return nil, err
	}
	tags, err := codec.ParseOpusTags(p.Data)
	if err != nil {
		return nil, err
	}

	dec, err := opus.NewDecoder(codec.GranuleRate, head.Channels)
	if err != nil {
		return nil, fmt.Errorf("failed to create opus decoder: %w", err)
	}
	return &opusStream{
		f:    f,
		r:    r,
		dec:  dec,
		head: head,
		tags: tags,
		pcm:  make([]float32, maxFrameSize*head.Channels),
		skip: head.PreSkip,
	}, nil
}

func (s *opusStream) SampleRate() int { return codec.GranuleRate }
func (s *opusStream) Channels() int   { return s.head.Channels }

// Comments returns the user comments of the OpusTags header.
func (s *opusStream) Comments() []string { return s.tags.Comments }

func (s *opusStream) ReadFrames(dst []float32) (int, error) {
	ch := s.head.Channels
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

func (s *opusStream) fill() error {
	pkt, err := s.r.NextPacket()
	if err != nil {
		return err
	}
	if pkt.EOS {
		s.eof = true
	}
	if len(pkt.Data) == 0 {
		return nil
	}

	ch := s.head.Channels
	frames, err := s.dec.DecodeFloat32(pkt.Data, s.pcm)
	if err != nil {
		return fmt.Errorf("failed to decode packet: %w", err)
	}
	start := s.decoded
	s.decoded += int64(frames)
	out := s.pcm[:frames*ch]

	if pkt.EOS && pkt.Granule >= 0 && s.decoded > pkt.Granule {
		keep := max(pkt.Granule-start, 0)
		out = out[:keep*int64(ch)]
	}
	if s.skip > 0 {
		d := min(s.skip, len(out)/ch)
		out = out[d*ch:]
		s.skip -= d
	}
	s.buf = out
	return nil
}

func (s *opusStream) Close() error {
	return s.f.Close()
}
