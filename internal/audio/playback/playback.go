package playback

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"voice-recorder/internal/audio/config"
	"voice-recorder/internal/audio/convert"

	"github.com/gen2brain/malgo"
	"github.com/rs/zerolog"
)

var (
	ErrDeviceInit  = errors.New("playback device init failed")
	ErrDeviceStart = errors.New("playback device start failed")
)

// PullFunc fills out with up to frames interleaved frames and returns how many
// it wrote. Returning fewer than frames means the stream is exhausted.
type PullFunc func(out []float32, frames int) int

// Sink is a playback device that pulls blocks on its own thread.
type Sink interface {
	Start(onPull PullFunc) error
	// Stop returns once no callback is running.
	Stop() error
	Close()
}

type MalgoPlayback struct {
	ctx      *malgo.AllocatedContext
	device   *malgo.Device
	channels int
	log      zerolog.Logger

	onPull  atomic.Pointer[PullFunc]
	scratch []float32

	mu      sync.Mutex
	started bool
}

// NewMalgoPlayback opens the default playback device for float32 output. The
// device runs at the stream's own rate and channel count.
func NewMalgoPlayback(sampleRate uint32, channels uint16, log zerolog.Logger) (*MalgoPlayback, error) {
	log = log.With().Str("device", "playback").Logger()
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(msg string) {
		log.Debug().Str("backend", msg).Msg("malgo context message")
	})
	if err != nil {
		return nil, fmt.Errorf("%w: context: %v", ErrDeviceInit, err)
	}

	mp := &MalgoPlayback{
		ctx:      ctx,
		channels: int(channels),
		log:      log,
		scratch:  newScratch(sampleRate, int(channels)),
	}

	playCfg := malgo.DefaultDeviceConfig(malgo.Playback)
	playCfg.Playback.Format = malgo.FormatF32
	playCfg.Playback.Channels = uint32(channels)
	playCfg.SampleRate = sampleRate

	if runtime.GOOS == "linux" {
		playCfg.Alsa.NoMMap = 1
	}

	device, err := malgo.InitDevice(ctx.Context, playCfg, malgo.DeviceCallbacks{Data: mp.onData})
	if err != nil {
		mp.Close()
		return nil, fmt.Errorf("%w: %v", ErrDeviceInit, err)
	}
	mp.device = device
	return mp, nil
}

func newScratch(sampleRate uint32, channels int) []float32 {
	return make([]float32, config.CallbackFrames(sampleRate, 0)*channels)
}

// onData runs on the device thread and never allocates. A period longer than
// the scratch buffer is pulled in several pieces; once the stream comes up
// short the rest of the period is silence.
func (mp *MalgoPlayback) onData(output, _ []byte, frameCount uint32) {
	fn := mp.onPull.Load()
	if fn == nil {
		clear(output)
		return
	}
	chunk := len(mp.scratch) / mp.channels
	frameBytes := mp.channels * 4
	out := output[:min(len(output), int(frameCount)*frameBytes)]
	for len(out) >= frameBytes {
		frames := min(chunk, len(out)/frameBytes)
		pcm := mp.scratch[:frames*mp.channels]
		written := min(max((*fn)(pcm, frames), 0), frames)
		clear(pcm[written*mp.channels:])
		n := convert.Float32ToBytesInto(out, pcm)
		out = out[n:]
		if written < frames {
			break
		}
	}
	// silence after the last frame of the stream
	clear(out)
}

// Start registers onPull and begins streaming.
func (mp *MalgoPlayback) Start(onPull PullFunc) error {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	if mp.started {
		return fmt.Errorf("%w: already started", ErrDeviceStart)
	}
	mp.onPull.Store(&onPull)
	if err := mp.device.Start(); err != nil {
		mp.onPull.Store(nil)
		return fmt.Errorf("%w: %v", ErrDeviceStart, err)
	}
	mp.started = true
	mp.log.Info().Msg("Playback device started")
	return nil
}

func (mp *MalgoPlayback) Stop() error {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	if !mp.started {
		return nil
	}
	mp.started = false
	err := mp.device.Stop()
	mp.onPull.Store(nil)
	mp.log.Info().Msg("Playback device stopped")
	return err
}

func (mp *MalgoPlayback) Close() {
	if mp.device != nil {
		mp.device.Uninit()
		mp.device = nil
	}
	if mp.ctx != nil {
		_ = mp.ctx.Uninit()
		mp.ctx.Free()
		mp.ctx = nil
	}
}
