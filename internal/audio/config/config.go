package config

import (
	"github.com/pion/webrtc/v4"
)

type AudioConfigType string

func (ac AudioConfigType) String() string {
	return string(ac)
}

const (
	SampleRateOpus   = 48000 // opus always runs its granule clock at 48000
	FrameSamplesOpus = 960   // samples 20 ms at 48kHz for opus
	ChannelsOpus     = 2

	// QualityOpus is the default target quality, range [QualityMin, QualityMax].
	QualityOpus = 0.4
	QualityMin  = -0.1
	QualityMax  = 1.0

	// PreSkipOpus is the libopus encoder lookahead at 48kHz (AppAudio).
	PreSkipOpus = 312

	WriteQueuePages = 64   // pages buffered between capture callback and file writer
	PageMaxBytes    = 4096 // body size that makes a page ready
	PageMaxDuration = 48000

	// CallbackMillis sizes the device callback scratch. Longer callbacks are
	// handled in pieces of this length.
	CallbackMillis = 100

	AudioCodecOpus AudioConfigType = "opus"

	VendorComment = "ENCODER=voice-recorder"
)

type AudioConfig struct {
	SampleRate   uint32
	FrameSamples int // analysis window, frames per channel
	Channels     uint16
	Quality      float64
	Comments     []string // OpusTags user comments, FIELD=value
	Type         AudioConfigType
	MimeType     string

	WriteQueue      int // pages, 0 writes synchronously from the callback
	PageMaxBytes    int
	PageMaxDuration int64 // in 48kHz granules
}

// NewOpusConfig creates the recording config: stereo 48kHz float capture encoded as Ogg Opus.
func NewOpusConfig() AudioConfig {
	return AudioConfig{
		SampleRate:      SampleRateOpus,
		FrameSamples:    FrameSamplesOpus,
		Channels:        ChannelsOpus,
		Quality:         QualityOpus,
		Comments:        []string{VendorComment},
		Type:            AudioCodecOpus,
		MimeType:        webrtc.MimeTypeOpus,
		WriteQueue:      WriteQueuePages,
		PageMaxBytes:    PageMaxBytes,
		PageMaxDuration: PageMaxDuration,
	}
}

// CallbackFrames returns how many frames a device callback converts at once:
// CallbackMillis worth of audio, and never less than minFrames.
func CallbackFrames(sampleRate uint32, minFrames int) int {
	return max(minFrames, int(sampleRate)*CallbackMillis/1000, 1)
}
