// Package codec holds the Ogg Opus identification and comment headers (RFC 7845).
package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	opusHeadMagic = "OpusHead"
	opusTagsMagic = "OpusTags"
	opusHeadLen   = 19

	// GranuleRate is the clock of Ogg Opus granule positions regardless of input rate.
	GranuleRate = 48000
)

var ErrBadHeader = errors.New("invalid opus header")

// OpusHead is the identification header. Only channel mapping family 0
// (mono/stereo) is produced and accepted.
type OpusHead struct {
	Channels   int
	PreSkip    int
	InputRate  int
	OutputGain int16
}

func (h OpusHead) Marshal() []byte {
	b := make([]byte, opusHeadLen)
	copy(b, opusHeadMagic)
	b[8] = 1
	b[9] = byte(h.Channels)
	binary.LittleEndian.PutUint16(b[10:], uint16(h.PreSkip))
	binary.LittleEndian.PutUint32(b[12:], uint32(h.InputRate))
	binary.LittleEndian.PutUint16(b[16:], uint16(h.OutputGain))
	b[18] = 0
	return b
}

func IsOpusHead(b []byte) bool {
	return len(b) >= 8 && string(b[:8]) == opusHeadMagic
}

func ParseOpusHead(b []byte) (OpusHead, error) {
	if len(b) < opusHeadLen || !IsOpusHead(b) {
		return OpusHead{}, fmt.Errorf("%w: not an OpusHead packet", ErrBadHeader)
	}
	if b[8]>>4 != 0 {
		return OpusHead{}, fmt.Errorf("%w: unsupported version %d", ErrBadHeader, b[8])
	}
	h := OpusHead{
		Channels:   int(b[9]),
		PreSkip:    int(binary.LittleEndian.Uint16(b[10:])),
		InputRate:  int(binary.LittleEndian.Uint32(b[12:])),
		OutputGain: int16(binary.LittleEndian.Uint16(b[16:])),
	}
	if b[18] != 0 {
		return OpusHead{}, fmt.Errorf("%w: channel mapping family %d", ErrBadHeader, b[18])
	}
	if h.Channels < 1 || h.Channels > 2 {
		return OpusHead{}, fmt.Errorf("%w: %d channels", ErrBadHeader, h.Channels)
	}
	return h, nil
}

// OpusTags is the comment header. Comments are FIELD=value strings.
type OpusTags struct {
	Vendor   string
	Comments []string
}

func (t OpusTags) Marshal() []byte {
	size := 8 + 4 + len(t.Vendor) + 4
	for _, c := range t.Comments {
		size += 4 + len(c)
	}
	b := make([]byte, 0, size)
	b = append(b, opusTagsMagic...)
	b = binary.LittleEndian.AppendUint32(b, uint32(len(t.Vendor)))
	b = append(b, t.Vendor...)
	b = binary.LittleEndian.AppendUint32(b, uint32(len(t.Comments)))
	for _, c := range t.Comments {
		b = binary.LittleEndian.AppendUint32(b, uint32(len(c)))
		b = append(b, c...)
	}
	return b
}

func ParseOpusTags(b []byte) (OpusTags, error) {
	if len(b) < 16 || string(b[:8]) != opusTagsMagic {
		return OpusTags{}, fmt.Errorf("%w: not an OpusTags packet", ErrBadHeader)
	}
	rest := b[8:]
	next := func() (string, bool) {
		if len(rest) < 4 {
			return "", false
		}
		n := binary.LittleEndian.Uint32(rest)
		if uint64(n) > uint64(len(rest)-4) {
			return "", false
		}
		s := string(rest[4 : 4+n])
		rest = rest[4+n:]
		return s, true
	}
	var t OpusTags
	var ok bool
	if t.Vendor, ok = next(); !ok || len(rest) < 4 {
		return OpusTags{}, fmt.Errorf("%w: truncated vendor string", ErrBadHeader)
	}
	count := binary.LittleEndian.Uint32(rest)
	rest = rest[4:]
	for i := uint32(0); i < count; i++ {
		c, ok := next()
		if !ok {
			return OpusTags{}, fmt.Errorf("%w: truncated comment %d", ErrBadHeader, i)
		}
		t.Comments = append(t.Comments, c)
	}
	return t, nil
}
