package encoder

import (
	"fmt"
	"iter"
	"math"

	"voice-recorder/internal/audio/codec"
	"voice-recorder/internal/audio/config"
	"voice-recorder/internal/audio/convert"

	"gopkg.in/hraban/opus.v2"
)

const maxPacketSize = 4000 // max opus packet size

// QualityToBitrate maps a quality target in [config.QualityMin, config.QualityMax]
// to an opus VBR bitrate for a stereo stream; mono gets half.
func QualityToBitrate(quality float64, channels int) int {
	bitrate := 48000 + int(quality*200000)
	return bitrate * channels / 2
}

// OpusEncoder encodes interleaved float PCM into Opus packets. The zero value
// is Uninitialized and rejects input; use NewOpusEncoder.
type OpusEncoder struct {
	enc        *opus.Encoder
	sampleRate int
	channels   int
	frameSize  int   // samples per channel per packet, e.g. 960 for 20ms @48k
	scale      int64 // granules per input frame
	preSkip    int64
	comments   []string

	state      State
	finalizing bool
	pending    []float32 // interleaved samples not yet analysed
	window     []float32
	out        []byte

	inputFrames   int64
	encodedFrames int64
}

// NewOpusEncoder initializes the encoder. It fails with ErrEncoderInit for an
// unsupported channel count, sample rate, frame size or quality target.
func NewOpusEncoder(cfg config.AudioConfig) (*OpusEncoder, error) {
	sampleRate, channels, frameSize := int(cfg.SampleRate), int(cfg.Channels), cfg.FrameSamples
	if channels < 1 || channels > 2 {
		return nil, fmt.Errorf("%w: unsupported channel count %d", ErrEncoderInit, channels)
	}
	if !convert.IsSampleRateValid(sampleRate) {
		return nil, fmt.Errorf("%w: unsupported sample rate %d", ErrEncoderInit, sampleRate)
	}
	if !convert.IsFrameSizeValid(sampleRate, frameSize) {
		return nil, fmt.Errorf("%w: invalid frame size %d for %dHz", ErrEncoderInit, frameSize, sampleRate)
	}
	if math.IsNaN(cfg.Quality) || cfg.Quality < config.QualityMin || cfg.Quality > config.QualityMax {
		return nil, fmt.Errorf("%w: quality %v outside [%v, %v]", ErrEncoderInit, cfg.Quality, config.QualityMin, config.QualityMax)
	}

	enc, err := opus.NewEncoder(sampleRate, channels, opus.AppAudio)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncoderInit, err)
	}
	if err := enc.SetBitrate(QualityToBitrate(cfg.Quality, channels)); err != nil {
		return nil, fmt.Errorf("%w: failed to set bitrate: %v", ErrEncoderInit, err)
	}
	if err := enc.SetComplexity(10); err != nil {
		return nil, fmt.Errorf("%w: failed to set complexity: %v", ErrEncoderInit, err)
	}

	return &OpusEncoder{
		enc:        enc,
		sampleRate: sampleRate,
		channels:   channels,
		frameSize:  frameSize,
		scale:      int64(codec.GranuleRate / sampleRate),
		preSkip:    config.PreSkipOpus,
		comments:   cfg.Comments,
		state:      Analyzing,
		pending:    make([]float32, 0, frameSize*channels*2),
		window:     make([]float32, frameSize*channels),
		out:        make([]byte, maxPacketSize),
	}, nil
}

func (e *OpusEncoder) State() State { return e.state }

// HeaderPackets returns the identification and comment headers, in stream order.
func (e *OpusEncoder) HeaderPackets() [][]byte {
	if e.state == Uninitialized {
		return nil
	}
	head := codec.OpusHead{
		Channels:  e.channels,
		PreSkip:   int(e.preSkip),
		InputRate: e.sampleRate,
	}
	tags := codec.OpusTags{Vendor: opus.Version(), Comments: e.comments}
	return [][]byte{head.Marshal(), tags.Marshal()}
}

// Submit appends one interleaved PCM block to the analysis buffer.
func (e *OpusEncoder) Submit(pcm []float32) error {
	if e.state == Uninitialized {
		return ErrUninitialized
	}
	if e.state != Analyzing || e.finalizing {
		return ErrFlushed
	}
	if len(pcm)%e.channels != 0 {
		return fmt.Errorf("pcm block of %d samples is not a whole number of %d-channel frames", len(pcm), e.channels)
	}
	if len(e.pending) >= e.frameSize*e.channels {
		return ErrNotDrained
	}
	e.pending = append(e.pending, pcm...)
	e.inputFrames += int64(len(pcm) / e.channels)
	return nil
}

// Finalize marks the end of input. The following Drain pads the last window
// and yields the final packet.
func (e *OpusEncoder) Finalize() error {
	if e.state == Uninitialized {
		return ErrUninitialized
	}
	if e.state != Analyzing || e.finalizing {
		return ErrFlushed
	}
	if len(e.pending) >= e.frameSize*e.channels {
		return ErrNotDrained
	}
	e.finalizing = true
	return nil
}

// Drain encodes every complete analysis window. After Finalize it also pads
// the remainder with silence until the encoder delay is covered, marks the
// last packet and moves the encoder to Flushed.
func (e *OpusEncoder) Drain() iter.Seq2[Packet, error] {
	return func(yield func(Packet, error) bool) {
		if e.state == Uninitialized {
			return
		}
		stride := e.frameSize * e.channels
		off := 0
		defer func() {
			e.pending = append(e.pending[:0], e.pending[off:]...)
		}()

		for len(e.pending)-off >= stride {
			pkt, err := e.encode(e.pending[off : off+stride])
			off += stride
			if !yield(pkt, err) || err != nil {
				return
			}
		}
		if !e.finalizing || e.state == Flushed {
			return
		}

		end := e.preSkip + e.inputFrames*e.scale
		for e.encodedFrames*e.scale < end {
			n := copy(e.window, e.pending[off:])
			clear(e.window[n:])
			off += n

			pkt, err := e.encode(e.window)
			if err == nil && e.encodedFrames*e.scale >= end {
				pkt.Granule = end
				pkt.Last = true
				e.state = Flushed
			}
			if !yield(pkt, err) || err != nil {
				return
			}
		}
	}
}

func (e *OpusEncoder) encode(frame []float32) (Packet, error) {
	n, err := e.enc.EncodeFloat32(frame, e.out)
	if err != nil {
		return Packet{}, fmt.Errorf("failed to encode pcm: %w", err)
	}
	e.encodedFrames += int64(e.frameSize)

	data := make([]byte, n)
	copy(data, e.out[:n])
	return Packet{Data: data, Granule: e.encodedFrames * e.scale}, nil
}
