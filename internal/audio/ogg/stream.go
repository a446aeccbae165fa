package ogg

import (
	"errors"
	"iter"
)

var ErrStreamEnded = errors.New("ogg stream already ended")

const (
	DefaultMaxPageBytes    = 4096
	DefaultMaxPageDuration = 48000
)

type Options struct {
	MaxPageBytes    int   // pending body size that makes a page ready
	MaxPageDuration int64 // pending granule span that makes a page ready, 0 disables
}

// Stream packs packets of one logical bitstream into pages. Pages are only
// produced when pulled through PageOut or Flush.
type Stream struct {
	serial uint32
	opts   Options
	seq    uint32

	lacing   []byte
	granules []int64 // granule per lacing value, set on the value that ends a packet
	ends     []bool
	body     []byte

	continued   bool // first pending lacing value continues a packet from the previous page
	started     bool
	eos         bool
	done        bool
	lastGranule int64
}

// NewStream opens a logical bitstream identified by serial.
func NewStream(serial uint32, opts Options) *Stream {
	if opts.MaxPageBytes <= 0 {
		opts.MaxPageBytes = DefaultMaxPageBytes
	}
	return &Stream{serial: serial, opts: opts}
}

func (s *Stream) Serial() uint32 { return s.serial }

// Ended reports whether the page carrying the EOS packet has been emitted.
func (s *Stream) Ended() bool { return s.done }

// PacketIn queues a packet. A packet with EOS set must be the last one.
func (s *Stream) PacketIn(p Packet) error {
	if s.eos {
		return ErrStreamEnded
	}
	full := len(p.Data) / maxLacing
	for i := 0; i < full; i++ {
		s.lacing = append(s.lacing, maxLacing)
		s.granules = append(s.granules, -1)
		s.ends = append(s.ends, false)
	}
	s.lacing = append(s.lacing, byte(len(p.Data)%maxLacing))
	s.granules = append(s.granules, p.Granule)
	s.ends = append(s.ends, true)
	s.body = append(s.body, p.Data...)
	s.eos = p.EOS
	return nil
}

// PageOut yields the pages that crossed the size or duration threshold.
func (s *Stream) PageOut() iter.Seq[Page] {
	return s.pages(false)
}

// Flush yields every pending packet as pages regardless of thresholds.
func (s *Stream) Flush() iter.Seq[Page] {
	return s.pages(true)
}

func (s *Stream) pages(force bool) iter.Seq[Page] {
	return func(yield func(Page) bool) {
		for {
			p, ok := s.pageOut(force)
			if !ok || !yield(p) {
				return
			}
		}
	}
}

func (s *Stream) ready() bool {
	if s.eos || len(s.lacing) >= maxLacing || len(s.body) >= s.opts.MaxPageBytes {
		return true
	}
	if s.opts.MaxPageDuration <= 0 {
		return false
	}
	for i := len(s.granules) - 1; i >= 0; i-- {
		if s.ends[i] && s.granules[i] >= 0 {
			return s.granules[i]-s.lastGranule >= s.opts.MaxPageDuration
		}
	}
	return false
}

func (s *Stream) pageOut(force bool) (Page, bool) {
	if s.done || len(s.lacing) == 0 {
		return Page{}, false
	}
	if !force && !s.ready() {
		return Page{}, false
	}

	n, size := 0, 0
	granule := int64(-1)
	for n < len(s.lacing) && n < maxLacing {
		size += int(s.lacing[n])
		if s.ends[n] && s.granules[n] >= 0 {
			granule = s.granules[n]
		}
		n++
		if !force && size >= s.opts.MaxPageBytes {
			break
		}
	}

	var flags byte
	if !s.started {
		flags |= FlagBOS
	}
	if s.continued {
		flags |= FlagContinued
	}
	last := n == len(s.lacing)
	if s.eos && last {
		flags |= FlagEOS
	}

	page := buildPage(flags, granule, s.serial, s.seq, s.lacing[:n], s.body[:size])

	s.continued = s.lacing[n-1] == maxLacing
	s.lacing = append(s.lacing[:0], s.lacing[n:]...)
	s.granules = append(s.granules[:0], s.granules[n:]...)
	s.ends = append(s.ends[:0], s.ends[n:]...)
	s.body = append(s.body[:0], s.body[size:]...)

	s.seq++
	s.started = true
	if granule >= 0 {
		s.lastGranule = granule
	}
	if flags&FlagEOS != 0 {
		s.done = true
	}
	return page, true
}
