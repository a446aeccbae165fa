package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	audiocfg "voice-recorder/internal/audio/config"
	"voice-recorder/pkg/system"
)

// Config is the process configuration, read from the environment.
type Config struct {
	LogLevel string
	LogFile  string
	Audio    audiocfg.AudioConfig
}

var ErrInvalid = errors.New("invalid configuration")

// Load reads envFile (if present) and then the environment. Unset variables
// keep the recording defaults.
func Load(envFile string) (Config, error) {
	if envFile != "" {
		if err := system.LoadEnv(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("loading %s: %w", envFile, err)
		}
	}

	cfg := Config{
		LogLevel: os.Getenv("LOG_LEVEL"),
		LogFile:  os.Getenv("LOG_FILE"),
		Audio:    audiocfg.NewOpusConfig(),
	}

	if v, ok := lookup("RECORD_QUALITY"); ok {
		q, err := strconv.ParseFloat(v, 64)
		if err != nil || q < audiocfg.QualityMin || q > audiocfg.QualityMax {
			return Config{}, fmt.Errorf("%w: RECORD_QUALITY=%q must be in [%v, %v]", ErrInvalid, v, audiocfg.QualityMin, audiocfg.QualityMax)
		}
		cfg.Audio.Quality = q
	}
	if v, ok := lookup("WRITE_QUEUE_PAGES"); ok {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return Config{}, fmt.Errorf("%w: WRITE_QUEUE_PAGES=%q", ErrInvalid, v)
		}
		cfg.Audio.WriteQueue = n
	}
	if v, ok := lookup("PAGE_MAX_BYTES"); ok {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return Config{}, fmt.Errorf("%w: PAGE_MAX_BYTES=%q", ErrInvalid, v)
		}
		cfg.Audio.PageMaxBytes = n
	}
	return cfg, nil
}

func lookup(key string) (string, bool) {
	v := strings.TrimSpace(os.Getenv(key))
	return v, v != ""
}
