package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"voice-recorder/internal/audio"
	"voice-recorder/pkg/interface/desktop"

	"github.com/spf13/cobra"
)

type recordOptions struct {
	Duration time.Duration
	Quality  float64
}

func newRecordCommand(root *rootOptions) *cobra.Command {
	opts := &recordOptions{}
	cmd := &cobra.Command{
		Use:   "record <path>",
		Short: "Record the default capture device to an Ogg Opus file",
		Example: `  voice-recorder record take.opus
  voice-recorder record take.opus --duration 10s --quality 0.8`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("quality") {
				root.cfg.Audio.Quality = opts.Quality
			}
			return runRecord(cmd.Context(), root, opts, args[0])
		},
	}
	flags := cmd.Flags()
	flags.DurationVarP(&opts.Duration, "duration", "d", 0, "Stop after this long (default: until interrupted)")
	flags.Float64VarP(&opts.Quality, "quality", "q", 0, "Encoder quality in [-0.1, 1.0] (overrides RECORD_QUALITY)")
	return cmd
}

func runRecord(ctx context.Context, root *rootOptions, opts *recordOptions, path string) error {
	engine := root.engine()
	if code := engine.StartRecording(path); code != audio.RecordOK {
		return fmt.Errorf("start_recording(%q) returned %d", path, code)
	}
	fmt.Fprintf(os.Stderr, "Recording to %s, press Ctrl+C to stop\n", path)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	if opts.Duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Duration)
		defer cancel()
	}
	<-ctx.Done()

	return engine.StopRecording()
}

func newPlayCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "play <path>",
		Short:   "Play an Ogg Opus or MP3 file on the default playback device",
		Example: `  voice-recorder play take.opus`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlay(cmd.Context(), root, args[0])
		},
	}
}

func runPlay(ctx context.Context, root *rootOptions, path string) error {
	engine := root.engine()
	if code := engine.StartPlaying(path); code != audio.PlayOK {
		return fmt.Errorf("start_playing(%q) returned %d", path, code)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	select {
	case <-engine.PlaybackDone():
	case <-ctx.Done():
	}
	return engine.StopPlaying()
}

func newShellCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Interactive menu for recording and playback",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			engine := root.engine()
			defer engine.Close()
			di, err := desktop.NewDesktopInterface(engine, cmd.InOrStdin(), cmd.OutOrStdout(), root.log)
			if err != nil {
				return err
			}
			di.StartDesktopInterface()
			return nil
		},
	}
}
