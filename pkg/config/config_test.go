package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	audiocfg "voice-recorder/internal/audio/config"
)

func clearEnv(t *testing.T) {
	for _, k := range []string{"LOG_LEVEL", "LOG_FILE", "RECORD_QUALITY", "WRITE_QUEUE_PAGES", "PAGE_MAX_BYTES"} {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Audio.Quality != audiocfg.QualityOpus {
		t.Errorf("quality = %v, want %v", cfg.Audio.Quality, audiocfg.QualityOpus)
	}
	if cfg.Audio.WriteQueue != audiocfg.WriteQueuePages {
		t.Errorf("write queue = %d, want %d", cfg.Audio.WriteQueue, audiocfg.WriteQueuePages)
	}
	if cfg.Audio.SampleRate != 48000 || cfg.Audio.Channels != 2 {
		t.Errorf("format = %d Hz x %d, want 48000 Hz x 2", cfg.Audio.SampleRate, cfg.Audio.Channels)
	}
}

func TestLoadFromEnvFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), ".env")
	data := "LOG_LEVEL=debug\nRECORD_QUALITY=0.8\nWRITE_QUEUE_PAGES=0\nPAGE_MAX_BYTES=8192\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	// empty values count as unset for the loader
	for _, k := range []string{"LOG_LEVEL", "RECORD_QUALITY", "WRITE_QUEUE_PAGES", "PAGE_MAX_BYTES"} {
		os.Unsetenv(k)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("log level = %q", cfg.LogLevel)
	}
	if cfg.Audio.Quality != 0.8 {
		t.Errorf("quality = %v", cfg.Audio.Quality)
	}
	if cfg.Audio.WriteQueue != 0 {
		t.Errorf("write queue = %d", cfg.Audio.WriteQueue)
	}
	if cfg.Audio.PageMaxBytes != 8192 {
		t.Errorf("page max bytes = %d", cfg.Audio.PageMaxBytes)
	}
}

func TestLoadMissingEnvFileIsFine(t *testing.T) {
	clearEnv(t)
	t.Chdir(t.TempDir())
	if _, err := Load("no-such.env"); err != nil {
		t.Fatalf("Load: %v", err)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	tests := map[string]string{
		"RECORD_QUALITY":    "1.5",
		"WRITE_QUEUE_PAGES": "-3",
		"PAGE_MAX_BYTES":    "lots",
	}
	for key, value := range tests {
		t.Run(key, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(key, value)
			_, err := Load("")
			if !errors.Is(err, ErrInvalid) {
				t.Fatalf("Load with %s=%s: err = %v, want ErrInvalid", key, value, err)
			}
		})
	}
}
