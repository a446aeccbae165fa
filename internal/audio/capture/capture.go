package capture

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
	ErrDeviceInit  = errors.New("capture device init failed")
	ErrDeviceStart = errors.New("capture device start failed")
)

// BlockFunc receives one block of interleaved float32 samples. pcm is only
// valid for the duration of the call.
type BlockFunc func(pcm []float32, frames int)

// Source is a live capture device that pushes blocks on its own thread.
type Source interface {
	Start(onBlock BlockFunc) error
	// Stop returns once no callback is running.
	Stop() error
	Close()
}

type MalgoCapture struct {
	ctx      *malgo.AllocatedContext
	device   *malgo.Device
	channels int
	log      zerolog.Logger

	onBlock atomic.Pointer[BlockFunc]
	scratch []float32

	mu      sync.Mutex
	started bool
}

// NewMalgoCapture opens the default capture device for float32 input at the
// configured rate and channel count. The device is not started.
func NewMalgoCapture(audiocfg config.AudioConfig, log zerolog.Logger) (*MalgoCapture, error) {
	log = log.With().Str("device", "capture").Logger()
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(msg string) {
		log.Debug().Str("backend", msg).Msg("malgo context message")
	})
	if err != nil {
		return nil, fmt.Errorf("%w: context: %v", ErrDeviceInit, err)
	}

	mc := &MalgoCapture{
		ctx:      ctx,
		channels: int(audiocfg.Channels),
		log:      log,
		scratch:  newScratch(audiocfg.SampleRate, audiocfg.FrameSamples, int(audiocfg.Channels)),
	}

	capCfg := malgo.DefaultDeviceConfig(malgo.Capture)
	capCfg.Capture.Format = malgo.FormatF32
	capCfg.Capture.Channels = uint32(audiocfg.Channels)
	capCfg.SampleRate = audiocfg.SampleRate
	// a hint, backends may pick another period
	capCfg.PeriodSizeInFrames = uint32(audiocfg.FrameSamples)

	// alsa specific settings for linux
	if runtime.GOOS == "linux" {
		capCfg.Alsa.NoMMap = 1
	}

	device, err := malgo.InitDevice(ctx.Context, capCfg, malgo.DeviceCallbacks{Data: mc.onData})
	if err != nil {
		mc.Close()
		return nil, fmt.Errorf("%w: %v", ErrDeviceInit, err)
	}
	mc.device = device
	return mc, nil
}

func newScratch(sampleRate uint32, minFrames, channels int) []float32 {
	return make([]float32, config.CallbackFrames(sampleRate, minFrames)*channels)
}

// onData runs on the device thread and never allocates. A period longer than
// the scratch buffer is delivered as several consecutive blocks.
func (mc *MalgoCapture) onData(_, input []byte, frameCount uint32) {
	fn := mc.onBlock.Load()
	if fn == nil {
		return
	}
	input = input[:min(len(input), int(frameCount)*mc.channels*4)]
	for len(input) > 0 {
		got := convert.BytesToFloat32Into(mc.scratch, input)
		frames := got / mc.channels
		if frames == 0 {
			return
		}
		(*fn)(mc.scratch[:frames*mc.channels], frames)
		input = input[frames*mc.channels*4:]
	}
}

// Start registers onBlock and begins streaming.
func (mc *MalgoCapture) Start(onBlock BlockFunc) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	if mc.started {
		return fmt.Errorf("%w: already started", ErrDeviceStart)
	}
	mc.onBlock.Store(&onBlock)
	if err := mc.device.Start(); err != nil {
		mc.onBlock.Store(nil)
		return fmt.Errorf("%w: %v", ErrDeviceStart, err)
	}
	mc.started = true
	mc.log.Info().Msg("Capture device started")
	return nil
}

func (mc *MalgoCapture) Stop() error {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	if !mc.started {
		return nil
	}
	mc.started = false
	err := mc.device.Stop()
	mc.onBlock.Store(nil)
	mc.log.Info().Msg("Capture device stopped")
	return err
}

func (mc *MalgoCapture) Close() {
	if mc.device != nil {
		mc.device.Uninit()
		mc.device = nil
	}
	if mc.ctx != nil {
		_ = mc.ctx.Uninit()
		mc.ctx.Free()
		mc.ctx = nil
	}
}
