package pcm

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

const (
	// L16Mono16K represents audio/L16; rate=16000; channels=1
	L16Mono16K Format = iota
	// L16Mono24K represents audio/L16; rate=24000; channels=1
	L16Mono24K
	// L16Mono48K represents audio/L16; rate=48000; channels=1
	L16Mono48K
)

// Format is a signed 16-bit little-endian mono PCM layout.
type Format int

// FormatForRate returns the format with the given sample rate.
func FormatForRate(rate int) (Format, error) {
	switch rate {
	case 16000:
		return L16Mono16K, nil
	case 24000:
		return L16Mono24K, nil
	case 48000:
		return L16Mono48K, nil
	}
	return 0, fmt.Errorf("pcm: unsupported sample rate %d", rate)
}

// SampleRate returns the sample rate in Hz.
func (f Format) SampleRate() int {
	switch f {
	case L16Mono16K:
		return 16000
	case L16Mono24K:
		return 24000
	case L16Mono48K:
		return 48000
	}
	panic("pcm: invalid audio type")
}

// Channels is always 1.
func (f Format) Channels() int { return 1 }

// Depth is always 16 bits.
func (f Format) Depth() int { return 16 }

// BytesRate returns the number of bytes per second of audio.
func (f Format) BytesRate() int {
	return f.SampleRate() * f.Channels() * f.Depth() / 8
}

// SamplesInDuration returns the number of samples covering d.
func (f Format) SamplesInDuration(d time.Duration) int64 {
	return int64(time.Duration(f.SampleRate()) * d / time.Second)
}

// BytesInDuration returns the number of bytes covering d.
func (f Format) BytesInDuration(d time.Duration) int64 {
	return f.SamplesInDuration(d) * int64(f.Depth()/8)
}

// SamplesDuration returns how long n samples play for.
func (f Format) SamplesDuration(n int) time.Duration {
	return time.Duration(n) * time.Second / time.Duration(f.SampleRate())
}

// Duration returns how long the given number of bytes play for.
func (f Format) Duration(bytes int64) time.Duration {
	return f.SamplesDuration(int(bytes / int64(f.Depth()/8)))
}

func (f Format) String() string {
	return fmt.Sprintf("audio/L16; rate=%d; channels=1", f.SampleRate())
}

// Encode writes samples as little-endian bytes.
func Encode(samples []int16) []byte {
	b := make([]byte, 2*len(samples))
	for i, s := range samples {
		binary.LittleEndian.PutUint16(b[2*i:], uint16(s))
	}
	return b
}

// Decode reads little-endian samples. A trailing odd byte is ignored.
func Decode(b []byte) []int16 {
	s := make([]int16, len(b)/2)
	for i := range s {
		s[i] = int16(binary.LittleEndian.Uint16(b[2*i:]))
	}
	return s
}

// Normalize maps samples to [-1, 1).
func Normalize(samples []int16) []float32 {
	out := make([]float32, len(samples))
	for i, s := range samples {
		out[i] = float32(s) / 32768
	}
	return out
}

// RMS returns the root mean square of normalized samples.
func RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}
