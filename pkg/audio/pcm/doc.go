// Package pcm describes signed 16-bit mono PCM audio and converts between
// raw little-endian bytes, int16 samples, normalized float32 samples and
// RIFF/WAVE containers.
//
//	f := pcm.L16Mono16K
//	n := f.SamplesInDuration(500 * time.Millisecond) // 8000
//	wav := pcm.WAV(f, samples)
package pcm
