package main

import (
	"fmt"
	"os"

	"voice-recorder/internal/audio"
	"voice-recorder/pkg/config"
	"voice-recorder/pkg/logger"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	EnvFile string
	cfg     config.Config
	log     zerolog.Logger
}

func (o *rootOptions) engine() *audio.Engine {
	return audio.NewEngine(o.cfg.Audio, o.log)
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "voice-recorder",
		Short:         "Record the microphone to Ogg Opus and play audio files",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.EnvFile)
			if err != nil {
				return err
			}
			opts.cfg = cfg
			opts.log = logger.Init(cfg.LogLevel, cfg.LogFile)
			return nil
		},
	}
	cmd.PersistentFlags().StringVar(&opts.EnvFile, "env", ".env", "Environment file to load before reading configuration")

	cmd.AddCommand(
		newRecordCommand(opts),
		newPlayCommand(opts),
		newShellCommand(opts),
	)
	return cmd
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
