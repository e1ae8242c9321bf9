package pcm

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
)

// ErrNotWAV is returned when a stream does not carry a PCM RIFF/WAVE header.
var ErrNotWAV = errors.New("pcm: not a 16-bit PCM wav stream")

// WAV wraps samples in a canonical 44-byte RIFF/WAVE header.
func WAV(f Format, samples []int16) []byte {
	data := Encode(samples)
	var buf bytes.Buffer
	buf.Grow(44 + len(data))
	w := func(v any) { _ = binary.Write(&buf, binary.LittleEndian, v) }

	buf.WriteString("RIFF")
	w(uint32(36 + len(data)))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	w(uint32(16))
	w(uint16(1))
	w(uint16(f.Channels()))
	w(uint32(f.SampleRate()))
	w(uint32(f.BytesRate()))
	w(uint16(f.Channels() * f.Depth() / 8))
	w(uint16(f.Depth()))
	buf.WriteString("data")
	w(uint32(len(data)))
	buf.Write(data)
	return buf.Bytes()
}

// ReadWAVHeader consumes a RIFF/WAVE header from r up to the start of the
// data chunk and returns the format it describes.
func ReadWAVHeader(r io.Reader) (Format, error) {
	var riff [12]byte
	if _, err := io.ReadFull(r, riff[:]); err != nil {
		return 0, err
	}
	if string(riff[0:4]) != "RIFF" || string(riff[8:12]) != "WAVE" {
		return 0, ErrNotWAV
	}
	var (
		format  Format
		seenFmt bool
	)
	for {
		var hdr [8]byte
		if _, err := io.ReadFull(r, hdr[:]); err != nil {
			return 0, err
		}
		size := int64(binary.LittleEndian.Uint32(hdr[4:]))
		switch string(hdr[0:4]) {
		case "fmt ":
			body := make([]byte, size)
			if _, err := io.ReadFull(r, body); err != nil {
				return 0, err
			}
			if len(body) < 16 {
				return 0, ErrNotWAV
			}
			tag := binary.LittleEndian.Uint16(body[0:])
			channels := binary.LittleEndian.Uint16(body[2:])
			rate := binary.LittleEndian.Uint32(body[4:])
			bits := binary.LittleEndian.Uint16(body[14:])
			if tag != 1 || channels != 1 || bits != 16 {
				return 0, ErrNotWAV
			}
			f, err := FormatForRate(int(rate))
			if err != nil {
				return 0, err
			}
			format, seenFmt = f, true
		case "data":
			if !seenFmt {
				return 0, ErrNotWAV
			}
			return format, nil
		default:
			if _, err := io.CopyN(io.Discard, r, size+size%2); err != nil {
				return 0, err
			}
		}
	}
}
