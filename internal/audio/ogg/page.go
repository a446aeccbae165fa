// Package ogg packs codec packets into Ogg pages (RFC 3533) and reads them back.
package ogg

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/rand/v2"
)

const (
	capturePattern = "OggS"
	headerSize     = 27
	maxLacing      = 255

	FlagContinued = 0x01
	FlagBOS       = 0x02
	FlagEOS       = 0x04
)

var (
	ErrCorruptPage = errors.New("corrupt ogg page")
	ErrBadChecksum = errors.New("ogg page checksum mismatch")
)

// Packet is one codec packet. Granule is the stream position after the packet,
// or -1 when the packet does not define one.
type Packet struct {
	Data    []byte
	Granule int64
	EOS     bool
}

// Page is a self-contained Ogg page. Header includes the segment table.
type Page struct {
	Header []byte
	Body   []byte
}

// NewSerial draws a random stream serial number.
func NewSerial() uint32 {
	return rand.Uint32()
}

func (p Page) Flags() byte      { return p.Header[5] }
func (p Page) BOS() bool        { return p.Flags()&FlagBOS != 0 }
func (p Page) EOS() bool        { return p.Flags()&FlagEOS != 0 }
func (p Page) Continued() bool  { return p.Flags()&FlagContinued != 0 }
func (p Page) Granule() int64   { return int64(binary.LittleEndian.Uint64(p.Header[6:])) }
func (p Page) Serial() uint32   { return binary.LittleEndian.Uint32(p.Header[14:]) }
func (p Page) Sequence() uint32 { return binary.LittleEndian.Uint32(p.Header[18:]) }
func (p Page) Checksum() uint32 { return binary.LittleEndian.Uint32(p.Header[22:]) }
func (p Page) Segments() []byte { return p.Header[headerSize:] }
func (p Page) Len() int         { return len(p.Header) + len(p.Body) }

// Bytes returns header and body as one contiguous slice.
func (p Page) Bytes() []byte {
	b := make([]byte, 0, p.Len())
	b = append(b, p.Header...)
	return append(b, p.Body...)
}

func buildPage(flags byte, granule int64, serial, seq uint32, lacing, body []byte) Page {
	h := make([]byte, headerSize+len(lacing))
	copy(h, capturePattern)
	h[4] = 0
	h[5] = flags
	binary.LittleEndian.PutUint64(h[6:], uint64(granule))
	binary.LittleEndian.PutUint32(h[14:], serial)
	binary.LittleEndian.PutUint32(h[18:], seq)
	h[26] = byte(len(lacing))
	copy(h[headerSize:], lacing)

	b := make([]byte, len(body))
	copy(b, body)

	crc := updateChecksum(0, h)
	crc = updateChecksum(crc, b)
	binary.LittleEndian.PutUint32(h[22:], crc)
	return Page{Header: h, Body: b}
}

// ParsePage parses one page from the start of buf and returns it with the
// number of bytes consumed.
func ParsePage(buf []byte) (Page, int, error) {
	if len(buf) < headerSize {
		return Page{}, 0, fmt.Errorf("%w: short header (%d bytes)", ErrCorruptPage, len(buf))
	}
	if string(buf[:4]) != capturePattern {
		return Page{}, 0, fmt.Errorf("%w: missing capture pattern", ErrCorruptPage)
	}
	if buf[4] != 0 {
		return Page{}, 0, fmt.Errorf("%w: unsupported version %d", ErrCorruptPage, buf[4])
	}
	hlen := headerSize + int(buf[26])
	if len(buf) < hlen {
		return Page{}, 0, fmt.Errorf("%w: short segment table", ErrCorruptPage)
	}
	blen := 0
	for _, l := range buf[headerSize:hlen] {
		blen += int(l)
	}
	if len(buf) < hlen+blen {
		return Page{}, 0, fmt.Errorf("%w: short body", ErrCorruptPage)
	}
	p := Page{Header: buf[:hlen:hlen], Body: buf[hlen : hlen+blen : hlen+blen]}
	if err := p.verify(); err != nil {
		return Page{}, 0, err
	}
	return p, hlen + blen, nil
}

func (p Page) verify() error {
	want := p.Checksum()
	var zero [4]byte
	crc := updateChecksum(0, p.Header[:22])
	crc = updateChecksum(crc, zero[:])
	crc = updateChecksum(crc, p.Header[26:])
	crc = updateChecksum(crc, p.Body)
	if crc != want {
		return fmt.Errorf("%w: page %d: got %08x want %08x", ErrBadChecksum, p.Sequence(), crc, want)
	}
	return nil
}
