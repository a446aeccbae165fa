package decoder

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"voice-recorder/internal/audio/config"
	"voice-recorder/internal/audio/encoder"
	"voice-recorder/internal/audio/ogg"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sine(frames int, freq, amp float64) []float32 {
	pcm := make([]float32, frames*2)
	for i := 0; i < frames; i++ {
		v := float32(amp * math.Sin(2*math.Pi*freq*float64(i)/48000))
		pcm[2*i], pcm[2*i+1] = v, v
	}
	return pcm
}

// encodeFile writes pcm as an Ogg Opus file in blocks of blockFrames.
func encodeFile(t *testing.T, pcm []float32, blockFrames int) string {
	t.Helper()
	enc, err := encoder.NewOpusEncoder(config.NewOpusConfig())
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "take.opus")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	s := ogg.NewStream(ogg.NewSerial(), ogg.Options{})
	write := func(pages func(func(ogg.Page) bool)) {
		for p := range pages {
			_, err := f.Write(p.Bytes())
			require.NoError(t, err)
		}
	}
	for _, h := range enc.HeaderPackets() {
		require.NoError(t, s.PacketIn(ogg.Packet{Data: h}))
		write(s.Flush())
	}
	packetIn := func() {
		for pkt, err := range enc.Drain() {
			require.NoError(t, err)
			require.NoError(t, s.PacketIn(ogg.Packet{Data: pkt.Data, Granule: pkt.Granule, EOS: pkt.Last}))
			write(s.PageOut())
		}
	}
	for off := 0; off < len(pcm); off += blockFrames * 2 {
		require.NoError(t, enc.Submit(pcm[off:min(off+blockFrames*2, len(pcm))]))
		packetIn()
	}
	require.NoError(t, enc.Finalize())
	packetIn()
	write(s.Flush())
	return path
}

func readAll(t *testing.T, s Stream, chunk int) []float32 {
	t.Helper()
	var out []float32
	buf := make([]float32, chunk*s.Channels())
	for {
		n, err := s.ReadFrames(buf)
		if errors.Is(err, io.EOF) {
			require.Zero(t, n)
			return out
		}
		require.NoError(t, err)
		require.NotZero(t, n)
		out = append(out, buf[:n*s.Channels()]...)
	}
}

func rms(pcm []float32) float64 {
	var sum float64
	for _, v := range pcm {
		sum += float64(v) * float64(v)
	}
	return math.Sqrt(sum / float64(len(pcm)))
}

func TestOpenMissingFile(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing.dat"))
	assert.ErrorIs(t, err, ErrDecoderOpen)
}

func TestOpenUnrecognisedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("definitely not audio"), 0o644))
	_, err := Open(path)
	assert.ErrorIs(t, err, ErrDecoderOpen)

	empty := filepath.Join(t.TempDir(), "empty")
	require.NoError(t, os.WriteFile(empty, nil, 0o644))
	_, err = Open(empty)
	assert.ErrorIs(t, err, ErrDecoderOpen)
}

func TestOpenTruncatedOgg(t *testing.T) {
	full := encodeFile(t, sine(4800, 440, 0.5), 480)
	data, err := os.ReadFile(full)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "cut.opus")
	require.NoError(t, os.WriteFile(path, data[:40], 0o644))
	_, err = Open(path)
	assert.ErrorIs(t, err, ErrDecoderOpen)
}

func TestDecodedDurationMatchesInput(t *testing.T) {
	for _, frames := range []int{0, 480, 4800, 12345} {
		path := encodeFile(t, sine(frames, 440, 0.5), 480)
		s, err := Open(path)
		require.NoError(t, err)
		assert.Equal(t, 48000, s.SampleRate())
		assert.Equal(t, 2, s.Channels())

		out := readAll(t, s, 333)
		assert.Equal(t, frames, len(out)/2, "input of %d frames", frames)
		require.NoError(t, s.Close())
	}
}

func TestRoundTripAmplitudeEnvelope(t *testing.T) {
	src := sine(48000, 440, 0.5)
	path := encodeFile(t, src, 480)
	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	out := readAll(t, s, 480)
	require.Len(t, out, len(src))

	// compare 100 ms windows, skipping the first one where the codec settles
	const win = 4800 * 2
	for off := win; off+win <= len(src); off += win {
		want := rms(src[off : off+win])
		got := rms(out[off : off+win])
		assert.InDelta(t, want, got, want*0.2, "window at %d", off/2)
	}
}

func TestReadFramesAfterEOF(t *testing.T) {
	s, err := Open(encodeFile(t, sine(960, 440, 0.5), 960))
	require.NoError(t, err)
	defer s.Close()

	readAll(t, s, 4096)
	n, err := s.ReadFrames(make([]float32, 64))
	assert.Zero(t, n)
	assert.ErrorIs(t, err, io.EOF)
}

func TestOpusStreamComments(t *testing.T) {
	s, err := Open(encodeFile(t, nil, 480))
	require.NoError(t, err)
	defer s.Close()
	st, ok := s.(*opusStream)
	require.True(t, ok)
	assert.Equal(t, []string{config.VendorComment}, st.Comments())
}

func TestIsMP3(t *testing.T) {
	assert.True(t, isMP3([]byte("ID3\x04")))
	assert.True(t, isMP3([]byte{0xff, 0xfb, 0x90, 0x00}))
	assert.False(t, isMP3([]byte("OggS")))
	assert.False(t, isMP3(nil))
}

func TestSniffers(t *testing.T) {
	assert.True(t, isWAV([]byte("RIFF\x24\x00\x00\x00WAVE")))
	assert.False(t, isWAV([]byte("RIFF\x24\x00\x00\x00AVI ")))
	assert.False(t, isWAV([]byte("RIFF")))
	assert.True(t, isFLAC([]byte("fLaC\x00")))
	assert.False(t, isFLAC([]byte("OggS")))
}

// wavHeader is the canonical 44 byte header: RIFF, one fmt chunk, data.
type wavHeader struct {
	ChunkID       [4]byte
	ChunkSize     uint32
	Format        [4]byte
	Subchunk1ID   [4]byte
	Subchunk1Size uint32
	AudioFormat   uint16
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
}

// writeWAV writes a WAV file with the given extra chunks between fmt and data.
func writeWAV(t *testing.T, format, channels, bits uint16, rate uint32, data []byte, extra ...[]byte) string {
	t.Helper()
	var buf bytes.Buffer
	block := channels * bits / 8
	h := wavHeader{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: 16,
		AudioFormat:   format,
		NumChannels:   channels,
		SampleRate:    rate,
		ByteRate:      rate * uint32(block),
		BlockAlign:    block,
		BitsPerSample: bits,
	}
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, h))
	for _, c := range extra {
		buf.Write(c)
	}
	buf.WriteString("data")
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, uint32(len(data))))
	buf.Write(data)

	out := buf.Bytes()
	binary.LittleEndian.PutUint32(out[4:], uint32(len(out)-8))
	path := filepath.Join(t.TempDir(), "clip.wav")
	require.NoError(t, os.WriteFile(path, out, 0o644))
	return path
}

func TestWAVPCM16Stereo(t *testing.T) {
	var data bytes.Buffer
	samples := []int16{0, 0, 16384, -16384, 32767, -32768, 8192, 8192, -8192, 0}
	require.NoError(t, binary.Write(&data, binary.LittleEndian, samples))
	list := append([]byte("LIST\x03\x00\x00\x00abc"), 0) // odd chunk with pad byte
	path := writeWAV(t, 1, 2, 16, 44100, data.Bytes(), list)

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()
	assert.Equal(t, 44100, s.SampleRate())
	assert.Equal(t, 2, s.Channels())

	out := readAll(t, s, 2)
	require.Len(t, out, len(samples))
	for i, v := range samples {
		assert.InDelta(t, float64(v)/32768, out[i], 1e-6, "sample %d", i)
	}
}

func TestWAVFloatAnd24Bit(t *testing.T) {
	t.Run("float32", func(t *testing.T) {
		var data bytes.Buffer
		want := []float32{0.5, -0.25, 1, 0}
		require.NoError(t, binary.Write(&data, binary.LittleEndian, want))
		s, err := Open(writeWAV(t, 3, 1, 32, 48000, data.Bytes()))
		require.NoError(t, err)
		defer s.Close()
		assert.Equal(t, want, readAll(t, s, 3))
	})
	t.Run("pcm24", func(t *testing.T) {
		data := []byte{0x00, 0x00, 0x40, 0x00, 0x00, 0xc0, 0xff, 0xff, 0x7f}
		s, err := Open(writeWAV(t, 1, 1, 24, 22050, data))
		require.NoError(t, err)
		defer s.Close()
		out := readAll(t, s, 8)
		require.Len(t, out, 3)
		assert.InDelta(t, 0.5, out[0], 1e-6)
		assert.InDelta(t, -0.5, out[1], 1e-6)
		assert.InDelta(t, 1, out[2], 1e-6)
	})
}

func TestWAVTruncatedDataEndsOnWholeFrame(t *testing.T) {
	var data bytes.Buffer
	require.NoError(t, binary.Write(&data, binary.LittleEndian, []int16{100, 200, 300, 400, 500, 600}))
	path := writeWAV(t, 1, 2, 16, 8000, data.Bytes())
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	// drop the last sample so the final frame is incomplete
	require.NoError(t, os.WriteFile(path, raw[:len(raw)-2], 0o644))

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()
	assert.Len(t, readAll(t, s, 16), 4)
}

func TestWAVRejectsUnsupportedFormats(t *testing.T) {
	tests := map[string]string{
		"adpcm":       writeWAV(t, 2, 1, 4, 8000, []byte{1, 2, 3, 4}),
		"no channels": writeWAV(t, 1, 0, 16, 8000, nil),
		"float16":     writeWAV(t, 3, 1, 16, 8000, []byte{0, 0}),
	}
	for name, path := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Open(path)
			assert.ErrorIs(t, err, ErrDecoderOpen)
		})
	}

	path := filepath.Join(t.TempDir(), "nodata.wav")
	require.NoError(t, os.WriteFile(path, []byte("RIFF\x04\x00\x00\x00WAVE"), 0o644))
	_, err := Open(path)
	assert.ErrorIs(t, err, ErrDecoderOpen)
}

func TestOpenTruncatedFLAC(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cut.flac")
	require.NoError(t, os.WriteFile(path, []byte("fLaC\x80\x00\x00\x22\x10"), 0o644))
	_, err := Open(path)
	assert.ErrorIs(t, err, ErrDecoderOpen)
}

func TestOpenMP3WithoutFramesFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "junk.mp3")
	junk := append([]byte("ID3"), bytes.Repeat([]byte{0x13, 0x37}, 2048)...)
	require.NoError(t, os.WriteFile(path, junk, 0o644))

	done := make(chan error, 1)
	go func() {
		_, err := Open(path)
		done <- err
	}()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrDecoderOpen)
	case <-time.After(10 * time.Second):
		t.Fatal("opening an undecodable mp3 did not return")
	}
}
