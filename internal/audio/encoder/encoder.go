package encoder

import (
	"errors"
	"iter"
)

var (
	ErrEncoderInit   = errors.New("encoder init failed")
	ErrNotDrained    = errors.New("encoder has undrained packets")
	ErrFlushed       = errors.New("encoder already flushed")
	ErrUninitialized = errors.New("encoder not initialized")
)

type State int

const (
	Uninitialized State = iota
	Analyzing
	Flushed
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Analyzing:
		return "analyzing"
	case Flushed:
		return "flushed"
	}
	return "unknown"
}

// Packet is one encoded unit. Granule is the stream position (48kHz samples,
// pre-skip included) after the packet is decoded.
type Packet struct {
	Data    []byte
	Granule int64
	Last    bool
}

// Encoder is a stateful streaming encoder. Drain must be run to exhaustion
// after every Submit and once more after Finalize.
type Encoder interface {
	HeaderPackets() [][]byte
	Submit(pcm []float32) error
	Drain() iter.Seq2[Packet, error]
	Finalize() error
	State() State
}
