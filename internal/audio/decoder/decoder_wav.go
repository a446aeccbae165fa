package decoder

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"voice-recorder/internal/audio/convert"
)

const (
	wavFormatPCM        = 1
	wavFormatFloat      = 3
	wavFormatExtensible = 0xfffe
)

// wavFormat is the part of the "fmt " chunk the reader needs.
type wavFormat struct {
	AudioFormat   uint16
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
}

// wavStream reads a RIFF/WAVE file frame by frame from its data chunk.
type wavStream struct {
	f         *os.File
	r         *bufio.Reader
	format    wavFormat
	remaining int64 // bytes left in the data chunk, -1 when unknown
	raw       []byte
}

func isWAV(magic []byte) bool {
	return len(magic) >= 12 && string(magic[:4]) == "RIFF" && string(magic[8:12]) == "WAVE"
}

func newWAVStream(f *os.File) (*wavStream, error) {
	r := bufio.NewReader(f)
	var riff [12]byte
	if _, err := io.ReadFull(r, riff[:]); err != nil {
		return nil, fmt.Errorf("reading RIFF header: %w", err)
	}
	if !isWAV(riff[:]) {
		return nil, errors.New("missing RIFF/WAVE header")
	}

	var (
		format  wavFormat
		haveFmt bool
	)
	for {
		var hdr [8]byte
		if _, err := io.ReadFull(r, hdr[:]); err != nil {
			return nil, fmt.Errorf("no data chunk: %w", err)
		}
		id := string(hdr[:4])
		size := int64(binary.LittleEndian.Uint32(hdr[4:]))

		switch id {
		case "fmt ":
			if size < 16 {
				return nil, fmt.Errorf("fmt chunk of %d bytes", size)
			}
			body := make([]byte, size+size&1)
			if _, err := io.ReadFull(r, body); err != nil {
				return nil, fmt.Errorf("reading fmt chunk: %w", err)
			}
			format = wavFormat{
				AudioFormat:   binary.LittleEndian.Uint16(body[0:]),
				NumChannels:   binary.LittleEndian.Uint16(body[2:]),
				SampleRate:    binary.LittleEndian.Uint32(body[4:]),
				ByteRate:      binary.LittleEndian.Uint32(body[8:]),
				BlockAlign:    binary.LittleEndian.Uint16(body[12:]),
				BitsPerSample: binary.LittleEndian.Uint16(body[14:]),
			}
			// the real format code leads the extensible sub-format GUID
			if format.AudioFormat == wavFormatExtensible && size >= 40 {
				format.AudioFormat = binary.LittleEndian.Uint16(body[24:])
			}
			if err := format.validate(); err != nil {
				return nil, err
			}
			haveFmt = true
		case "data":
			if !haveFmt {
				return nil, errors.New("data chunk before fmt chunk")
			}
			remaining := size
			// streamed writers leave the size unset
			if size == 0 || size == math.MaxUint32 {
				remaining = -1
			}
			return &wavStream{f: f, r: r, format: format, remaining: remaining}, nil
		default:
			if _, err := r.Discard(int(size + size&1)); err != nil {
				return nil, fmt.Errorf("skipping %q chunk: %w", id, err)
			}
		}
	}
}

func (w wavFormat) validate() error {
	if w.NumChannels == 0 || w.NumChannels > 8 {
		return fmt.Errorf("unsupported channel count %d", w.NumChannels)
	}
	if w.SampleRate == 0 {
		return errors.New("sample rate 0")
	}
	switch {
	case w.AudioFormat == wavFormatPCM && (w.BitsPerSample == 8 || w.BitsPerSample == 16 || w.BitsPerSample == 24 || w.BitsPerSample == 32):
	case w.AudioFormat == wavFormatFloat && (w.BitsPerSample == 32 || w.BitsPerSample == 64):
	default:
		return fmt.Errorf("unsupported format %d with %d bits", w.AudioFormat, w.BitsPerSample)
	}
	if int(w.BlockAlign) != int(w.NumChannels)*int(w.BitsPerSample)/8 {
		return fmt.Errorf("block align %d does not match %d channels of %d bits", w.BlockAlign, w.NumChannels, w.BitsPerSample)
	}
	return nil
}

func (s *wavStream) SampleRate() int { return int(s.format.SampleRate) }
func (s *wavStream) Channels() int   { return int(s.format.NumChannels) }

func (s *wavStream) ReadFrames(dst []float32) (int, error) {
	ch := int(s.format.NumChannels)
	block := int(s.format.BlockAlign)
	want := len(dst) / ch
	if s.remaining >= 0 {
		want = min(want, int(s.remaining/int64(block)))
	}
	if want == 0 {
		if len(dst) < ch {
			return 0, nil
		}
		return 0, io.EOF
	}

	need := want * block
	if cap(s.raw) < need {
		s.raw = make([]byte, need)
	}
	raw := s.raw[:need]
	got, err := io.ReadFull(s.r, raw)
	frames := got / block
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return 0, err
	}
	if frames == 0 {
		s.remaining = 0
		return 0, io.EOF
	}
	if s.remaining >= 0 {
		s.remaining -= int64(frames * block)
	}
	if got < need {
		// truncated file, end after the last whole frame
		s.remaining = 0
	}
	s.decode(dst[:frames*ch], raw[:frames*block])
	return frames, nil
}

func (s *wavStream) decode(dst []float32, raw []byte) {
	switch {
	case s.format.AudioFormat == wavFormatFloat && s.format.BitsPerSample == 32:
		convert.BytesToFloat32Into(dst, raw)
	case s.format.AudioFormat == wavFormatFloat:
		for i := range dst {
			dst[i] = float32(math.Float64frombits(binary.LittleEndian.Uint64(raw[i*8:])))
		}
	case s.format.BitsPerSample == 16:
		convert.Int16BytesToFloat32Into(dst, raw)
	case s.format.BitsPerSample == 8:
		for i := range dst {
			dst[i] = (float32(raw[i]) - 128) / 128
		}
	case s.format.BitsPerSample == 24:
		for i := range dst {
			v := int32(raw[i*3]) | int32(raw[i*3+1])<<8 | int32(int8(raw[i*3+2]))<<16
			dst[i] = float32(v) / (1 << 23)
		}
	case s.format.BitsPerSample == 32:
		for i := range dst {
			dst[i] = float32(int32(binary.LittleEndian.Uint32(raw[i*4:]))) / (1 << 31)
		}
	}
}

func (s *wavStream) Close() error {
	return s.f.Close()
}
