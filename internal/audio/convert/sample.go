package convert

import (
	"encoding/binary"
	"math"
)

// BytesToFloat32 safely converts []byte to []float32 using binary encoding
func BytesToFloat32(src []byte) []float32 {
	dst := make([]float32, len(src)/4)
	BytesToFloat32Into(dst, src)
	return dst
}

// BytesToFloat32Into decodes little endian float32 samples from src into dst
// and returns the number of samples written. Trailing bytes are ignored.
func BytesToFloat32Into(dst []float32, src []byte) int {
	n := min(len(dst), len(src)/4)
	for i := 0; i < n; i++ {
		dst[i] = math.Float32frombits(binary.LittleEndian.Uint32(src[i*4:]))
	}
	return n
}

// Int16BytesToFloat32 converts little endian int16 PCM bytes to float32 samples.
func Int16BytesToFloat32(src []byte) []float32 {
	dst := make([]float32, len(src)/2)
	Int16BytesToFloat32Into(dst, src)
	return dst
}

// Int16BytesToFloat32Into decodes little endian int16 samples from src into
// dst and returns the number of samples written.
func Int16BytesToFloat32Into(dst []float32, src []byte) int {
	n := min(len(dst), len(src)/2)
	for i := 0; i < n; i++ {
		dst[i] = float32(int16(binary.LittleEndian.Uint16(src[i*2:]))) / 32768.0
	}
	return n
}

func Float32ToBytes(data []float32) []byte {
	buf := make([]byte, len(data)*4)
	Float32ToBytesInto(buf, data)
	return buf
}

// Float32ToBytesInto writes samples as little endian float32 into dst and
// returns the number of bytes written.
func Float32ToBytesInto(dst []byte, data []float32) int {
	n := min(len(data), len(dst)/4)
	for i := 0; i < n; i++ {
		binary.LittleEndian.PutUint32(dst[i*4:], math.Float32bits(data[i]))
	}
	return n * 4
}
