package desktop

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRecorder struct {
	calls     []string
	recording bool
	playing   bool
}

func (f *fakeRecorder) StartRecording(path string) int {
	f.calls = append(f.calls, "record "+path)
	if f.recording {
		return -1
	}
	f.recording = true
	return 0
}

func (f *fakeRecorder) StopRecording() error {
	f.calls = append(f.calls, "stop record")
	f.recording = false
	return nil
}

func (f *fakeRecorder) StartPlaying(path string) int {
	f.calls = append(f.calls, "play "+path)
	f.playing = true
	return 0
}

func (f *fakeRecorder) StopPlaying() error {
	f.calls = append(f.calls, "stop play")
	f.playing = false
	return nil
}

func (f *fakeRecorder) IsPlaying() bool { return f.playing }
func (f *fakeRecorder) Recording() bool { return f.recording }

func run(t *testing.T, input string) (*fakeRecorder, string) {
	t.Helper()
	rec := &fakeRecorder{}
	var out bytes.Buffer
	di, err := NewDesktopInterface(rec, strings.NewReader(input), &out, zerolog.Nop())
	require.NoError(t, err)
	di.StartDesktopInterface()
	return rec, out.String()
}

func TestMenuDrivesRecorder(t *testing.T) {
	rec, out := run(t, "1\ntake.opus\n1\nagain.opus\n5\n2\n3\ntake.opus\n4\n6\n")
	assert.Equal(t, []string{
		"record take.opus",
		"record again.opus",
		"stop record",
		"play take.opus",
		"stop play",
		"stop record",
		"stop play",
	}, rec.calls)
	assert.Contains(t, out, `start_recording("again.opus") = -1`)
	assert.Contains(t, out, "recording=true playing=false")
}

func TestMenuStopsRecordingAtEndOfInput(t *testing.T) {
	rec, out := run(t, "1\nlast.opus\n9\n")
	assert.False(t, rec.recording)
	assert.Contains(t, out, "Invalid choice")
}

func TestNewDesktopInterfaceRequiresRecorder(t *testing.T) {
	_, err := NewDesktopInterface(nil, strings.NewReader(""), &bytes.Buffer{}, zerolog.Nop())
	assert.Error(t, err)
}
