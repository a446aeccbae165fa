// Package pipeline wires devices, codecs and files into recording and
// playback sessions.
package pipeline

import (
	"voice-recorder/internal/audio/capture"
	"voice-recorder/internal/audio/config"
	"voice-recorder/internal/audio/decoder"
	"voice-recorder/internal/audio/playback"

	"github.com/rs/zerolog"
)

// SourceFactory opens a capture device for cfg.
type SourceFactory func(cfg config.AudioConfig, log zerolog.Logger) (capture.Source, error)

// SinkFactory opens a playback device at the stream's rate and channel count.
type SinkFactory func(sampleRate uint32, channels uint16, log zerolog.Logger) (playback.Sink, error)

// StreamOpener opens a file for decoding.
type StreamOpener func(path string) (decoder.Stream, error)

func MalgoSource(cfg config.AudioConfig, log zerolog.Logger) (capture.Source, error) {
	return capture.NewMalgoCapture(cfg, log)
}

func MalgoSink(sampleRate uint32, channels uint16, log zerolog.Logger) (playback.Sink, error) {
	return playback.NewMalgoPlayback(sampleRate, channels, log)
}

func OpenStream(path string) (decoder.Stream, error) {
	return decoder.Open(path)
}
