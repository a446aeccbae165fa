package desktop

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"
)

// Recorder is the control surface the menu drives.
type Recorder interface {
	StartRecording(path string) int
	StopRecording() error
	StartPlaying(path string) int
	StopPlaying() error
	IsPlaying() bool
	Recording() bool
}

type DesktopInterface struct {
	rec Recorder
	in  *bufio.Reader
	out io.Writer
	log zerolog.Logger
}

func NewDesktopInterface(rec Recorder, in io.Reader, out io.Writer, log zerolog.Logger) (*DesktopInterface, error) {
	if rec == nil || in == nil || out == nil {
		return nil, fmt.Errorf("desktop interface needs a recorder, an input and an output")
	}
	return &DesktopInterface{
		rec: rec,
		in:  bufio.NewReader(in),
		out: out,
		log: log,
	}, nil
}

const menu = `Menu:
1. Start recording
2. Stop recording
3. Play file
4. Stop playing
5. Status
6. Exit`

// StartDesktopInterface runs the menu until Exit or end of input.
func (di *DesktopInterface) StartDesktopInterface() {
	fmt.Fprintln(di.out, "Voice recorder")
	fmt.Fprintln(di.out, menu)
	for {
		fmt.Fprint(di.out, "Enter choice: ")
		choice, ok := di.readLine()
		if !ok {
			di.shutdown()
			return
		}

		switch choice {
		case "1":
			path, ok := di.ask("Output file: ")
			if !ok {
				di.shutdown()
				return
			}
			code := di.rec.StartRecording(path)
			fmt.Fprintf(di.out, "start_recording(%q) = %d\n", path, code)
		case "2":
			if err := di.rec.StopRecording(); err != nil {
				fmt.Fprintf(di.out, "Recording closed with error: %v\n", err)
			} else {
				fmt.Fprintln(di.out, "Recording stopped")
			}
		case "3":
			path, ok := di.ask("File to play: ")
			if !ok {
				di.shutdown()
				return
			}
			code := di.rec.StartPlaying(path)
			fmt.Fprintf(di.out, "start_playing(%q) = %d\n", path, code)
		case "4":
			if err := di.rec.StopPlaying(); err != nil {
				fmt.Fprintf(di.out, "Playback closed with error: %v\n", err)
			} else {
				fmt.Fprintln(di.out, "Playback stopped")
			}
		case "5":
			fmt.Fprintf(di.out, "recording=%t playing=%t\n", di.rec.Recording(), di.rec.IsPlaying())
		case "6":
			fmt.Fprintln(di.out, "Exiting...")
			di.shutdown()
			return
		case "":
		default:
			fmt.Fprintln(di.out, "Invalid choice, please try again.")
			fmt.Fprintln(di.out, menu)
		}
	}
}

func (di *DesktopInterface) ask(prompt string) (string, bool) {
	fmt.Fprint(di.out, prompt)
	return di.readLine()
}

func (di *DesktopInterface) readLine() (string, bool) {
	line, err := di.in.ReadString('\n')
	line = strings.TrimSpace(line)
	if err != nil && line == "" {
		return "", false
	}
	return line, true
}

// shutdown finalizes a running recording so the file stays playable.
func (di *DesktopInterface) shutdown() {
	if err := di.rec.StopRecording(); err != nil {
		di.log.Error().Err(err).Msg("Failed to close recording")
	}
	if err := di.rec.StopPlaying(); err != nil {
		di.log.Error().Err(err).Msg("Failed to stop playback")
	}
}
