package decoder

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
)

var ErrDecoderOpen = errors.New("decoder open failed")

// Stream reproduces interleaved float32 PCM from a file.
type Stream interface {
	SampleRate() int
	Channels() int
	// ReadFrames fills dst with whole frames and returns how many were read.
	// It returns 0 and io.EOF at end of stream.
	ReadFrames(dst []float32) (int, error)
	Close() error
}

// Open sniffs the file at path and returns a decoder for it. Ogg Opus, WAV,
// FLAC and MP3 are recognised; anything else fails with ErrDecoderOpen.
func Open(path string) (Stream, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecoderOpen, err)
	}

	magic := make([]byte, 12)
	n, _ := io.ReadFull(f, magic)
	magic = magic[:n]
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: %v", ErrDecoderOpen, err)
	}

	var s Stream
	switch {
	case bytes.HasPrefix(magic, []byte("OggS")):
		s, err = newOpusStream(f)
	case isWAV(magic):
		s, err = newWAVStream(f)
	case isFLAC(magic):
		s, err = newFLACStream(f)
	case isMP3(magic):
		s, err = newMP3Stream(f)
	default:
		f.Close()
		return nil, fmt.Errorf("%w: %s: unrecognised format", ErrDecoderOpen, path)
	}
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: %s: %v", ErrDecoderOpen, path, err)
	}
	return s, nil
}

func isMP3(magic []byte) bool {
	if bytes.HasPrefix(magic, []byte("ID3")) {
		return true
	}
	// mpeg audio frame sync
	return len(magic) >= 2 && magic[0] == 0xff && magic[1]&0xe0 == 0xe0
}
