package pcm

import (
	"bytes"
	"errors"
	"slices"
	"testing"
	"time"
)

func TestFormatMath(t *testing.T) {
	f := L16Mono16K
	if got := f.SamplesInDuration(500 * time.Millisecond); got != 8000 {
		t.Errorf("SamplesInDuration(500ms) = %d, want 8000", got)
	}
	if got := f.BytesInDuration(20 * time.Millisecond); got != 640 {
		t.Errorf("BytesInDuration(20ms) = %d, want 640", got)
	}
	if got := f.Duration(32000); got != time.Second {
		t.Errorf("Duration(32000) = %v, want 1s", got)
	}
	if got := L16Mono24K.BytesRate(); got != 48000 {
		t.Errorf("BytesRate = %d, want 48000", got)
	}
	if got := f.String(); got != "audio/L16; rate=16000; channels=1" {
		t.Errorf("String = %q", got)
	}
}

func TestFormatForRate(t *testing.T) {
	f, err := FormatForRate(24000)
	if err != nil || f != L16Mono24K {
		t.Fatalf("FormatForRate(24000) = %v, %v", f, err)
	}
	if _, err := FormatForRate(44100); err == nil {
		t.Fatal("FormatForRate(44100) succeeded")
	}
}

func TestEncodeDecode(t *testing.T) {
	in := []int16{0, 1, -1, 32767, -32768}
	if got := Decode(Encode(in)); !slices.Equal(got, in) {
		t.Fatalf("Decode(Encode) = %v, want %v", got, in)
	}
	if got := Decode([]byte{1, 0, 9}); !slices.Equal(got, []int16{1}) {
		t.Fatalf("odd trailing byte: %v", got)
	}
}

func TestNormalizeAndRMS(t *testing.T) {
	n := Normalize([]int16{16384, -16384})
	if n[0] != 0.5 || n[1] != -0.5 {
		t.Fatalf("Normalize = %v", n)
	}
	if got := RMS(n); got != 0.5 {
		t.Fatalf("RMS = %v, want 0.5", got)
	}
	if RMS(nil) != 0 {
		t.Fatal("RMS(nil) != 0")
	}
}

func TestWAV(t *testing.T) {
	samples := []int16{1, 2, 3, 4}
	data := WAV(L16Mono16K, samples)
	if len(data) != 44+8 {
		t.Fatalf("len = %d, want 52", len(data))
	}
	r := bytes.NewReader(data)
	f, err := ReadWAVHeader(r)
	if err != nil {
		t.Fatalf("ReadWAVHeader: %v", err)
	}
	if f != L16Mono16K {
		t.Fatalf("format = %v", f)
	}
	rest := make([]byte, r.Len())
	r.Read(rest)
	if got := Decode(rest); !slices.Equal(got, samples) {
		t.Fatalf("payload = %v", got)
	}
}

func TestReadWAVHeaderRejects(t *testing.T) {
	if _, err := ReadWAVHeader(bytes.NewReader([]byte("RIFF\x00\x00\x00\x00AVI "))); !errors.Is(err, ErrNotWAV) {
		t.Fatalf("AVI = %v, want ErrNotWAV", err)
	}
	stereo := WAV(L16Mono16K, nil)
	stereo[22] = 2
	if _, err := ReadWAVHeader(bytes.NewReader(stereo)); !errors.Is(err, ErrNotWAV) {
		t.Fatalf("stereo = %v, want ErrNotWAV", err)
	}
}
