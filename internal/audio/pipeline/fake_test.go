package pipeline

import (
	"errors"
	"sync"

	"voice-recorder/internal/audio/capture"
	"voice-recorder/internal/audio/config"
	"voice-recorder/internal/audio/playback"

	"github.com/rs/zerolog"
)

// fakeSource runs callbacks on the caller's goroutine through Push.
type fakeSource struct {
	mu       sync.Mutex
	onBlock  capture.BlockFunc
	channels int
	startErr error
	stops    int
	closes   int
}

func (f *fakeSource) Start(onBlock capture.BlockFunc) error {
	if f.startErr != nil {
		return f.startErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onBlock = onBlock
	return nil
}

func (f *fakeSource) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onBlock = nil
	f.stops++
	return nil
}

func (f *fakeSource) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
}

// Push delivers one block as the device thread would. It reports false once
// the device is stopped.
func (f *fakeSource) Push(pcm []float32) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.onBlock == nil {
		return false
	}
	f.onBlock(pcm, len(pcm)/f.channels)
	return true
}

type sourceFactory struct {
	mu      sync.Mutex
	opened  []*fakeSource
	initErr error
	start   error
}

func (sf *sourceFactory) New(cfg config.AudioConfig, _ zerolog.Logger) (capture.Source, error) {
	if sf.initErr != nil {
		return nil, sf.initErr
	}
	sf.mu.Lock()
	defer sf.mu.Unlock()
	src := &fakeSource{channels: int(cfg.Channels), startErr: sf.start}
	sf.opened = append(sf.opened, src)
	return src, nil
}

func (sf *sourceFactory) last() *fakeSource {
	sf.mu.Lock()
	defer sf.mu.Unlock()
	return sf.opened[len(sf.opened)-1]
}

// fakeSink pulls frames on the caller's goroutine through Pull.
type fakeSink struct {
	mu         sync.Mutex
	onPull     playback.PullFunc
	sampleRate uint32
	channels   int
	startErr   error
	stopped    bool
	closed     bool
}

func (f *fakeSink) Start(onPull playback.PullFunc) error {
	if f.startErr != nil {
		return f.startErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onPull = onPull
	return nil
}

func (f *fakeSink) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onPull = nil
	f.stopped = true
	return nil
}

func (f *fakeSink) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

// Pull requests frames as the device thread would and returns how many the
// session wrote.
func (f *fakeSink) Pull(frames int) ([]float32, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]float32, frames*f.channels)
	if f.onPull == nil {
		return out, 0
	}
	return out, f.onPull(out, frames)
}

func (f *fakeSink) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

type sinkFactory struct {
	mu      sync.Mutex
	opened  []*fakeSink
	initErr error
	start   error
}

func (sf *sinkFactory) New(sampleRate uint32, channels uint16, _ zerolog.Logger) (playback.Sink, error) {
	if sf.initErr != nil {
		return nil, sf.initErr
	}
	sf.mu.Lock()
	defer sf.mu.Unlock()
	s := &fakeSink{sampleRate: sampleRate, channels: int(channels), startErr: sf.start}
	sf.opened = append(sf.opened, s)
	return s, nil
}

func (sf *sinkFactory) last() *fakeSink {
	sf.mu.Lock()
	defer sf.mu.Unlock()
	return sf.opened[len(sf.opened)-1]
}

var errBackend = errors.New("backend unavailable")
