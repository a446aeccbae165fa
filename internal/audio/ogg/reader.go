package ogg

import (
	"bufio"
	"errors"
	"fmt"
	"io"
)

// Reader demultiplexes the first logical bitstream of an Ogg file into
// packets. Pages of other serials are skipped.
type Reader struct {
	br      *bufio.Reader
	serial  uint32
	seq     uint32
	started bool
	eos     bool

	partial []byte
	packets []Packet
}

func NewReader(r io.Reader) *Reader {
	return &Reader{br: bufio.NewReader(r)}
}

// Serial returns the serial of the stream being read, valid after the first page.
func (r *Reader) Serial() uint32 { return r.serial }

// ReadPage reads and verifies the next page. It returns io.EOF at a clean page boundary.
func (r *Reader) ReadPage() (Page, error) {
	hdr := make([]byte, headerSize, headerSize+maxLacing)
	if _, err := io.ReadFull(r.br, hdr); err != nil {
		if errors.Is(err, io.EOF) {
			return Page{}, io.EOF
		}
		return Page{}, fmt.Errorf("%w: %v", ErrCorruptPage, err)
	}
	if string(hdr[:4]) != capturePattern {
		return Page{}, fmt.Errorf("%w: missing capture pattern", ErrCorruptPage)
	}
	segs := make([]byte, hdr[26])
	if _, err := io.ReadFull(r.br, segs); err != nil {
		return Page{}, fmt.Errorf("%w: segment table: %v", ErrCorruptPage, err)
	}
	blen := 0
	for _, l := range segs {
		blen += int(l)
	}
	buf := make([]byte, 0, len(hdr)+len(segs)+blen)
	buf = append(append(buf, hdr...), segs...)
	buf = buf[:len(buf)+blen]
	if _, err := io.ReadFull(r.br, buf[len(hdr)+len(segs):]); err != nil {
		return Page{}, fmt.Errorf("%w: body: %v", ErrCorruptPage, err)
	}
	p, _, err := ParsePage(buf)
	return p, err
}

// NextPacket returns the next complete packet. The packet ending on a page
// carries that page's granule; others carry -1. It returns io.EOF after the
// EOS packet or at the end of input.
func (r *Reader) NextPacket() (Packet, error) {
	for len(r.packets) == 0 {
		if r.eos {
			return Packet{}, io.EOF
		}
		p, err := r.ReadPage()
		if errors.Is(err, io.EOF) {
			if len(r.partial) > 0 {
				return Packet{}, fmt.Errorf("%w: stream ends inside a packet", ErrCorruptPage)
			}
			return Packet{}, io.EOF
		}
		if err != nil {
			return Packet{}, err
		}
		if err := r.addPage(p); err != nil {
			return Packet{}, err
		}
	}
	pkt := r.packets[0]
	r.packets = r.packets[1:]
	return pkt, nil
}

func (r *Reader) addPage(p Page) error {
	if !r.started {
		if !p.BOS() {
			return fmt.Errorf("%w: first page is not a beginning of stream", ErrCorruptPage)
		}
		r.serial = p.Serial()
		r.seq = p.Sequence()
		r.started = true
	} else if p.Serial() != r.serial {
		return nil
	}
	if p.Sequence() != r.seq {
		return fmt.Errorf("%w: page sequence %d, expected %d", ErrCorruptPage, p.Sequence(), r.seq)
	}
	r.seq++

	if p.Continued() != (len(r.partial) > 0) {
		return fmt.Errorf("%w: continuation mismatch on page %d", ErrCorruptPage, p.Sequence())
	}

	first := len(r.packets)
	off := 0
	for _, l := range p.Segments() {
		r.partial = append(r.partial, p.Body[off:off+int(l)]...)
		off += int(l)
		if l < maxLacing {
			data := r.partial
			if data == nil {
				data = []byte{}
			}
			r.packets = append(r.packets, Packet{Data: data, Granule: -1})
			r.partial = nil
		}
	}
	if len(r.packets) > first {
		last := &r.packets[len(r.packets)-1]
		last.Granule = p.Granule()
		if p.EOS() {
			last.EOS = true
			r.eos = true
		}
	}
	return nil
}
