package audio

import (
	"encoding/binary"
	"fmt"
	"io"
)

// DecodeWAV parses a 16-bit PCM RIFF/WAVE stream into a mono Buffer.
// Stereo input is downmixed by averaging channels.
func DecodeWAV(r io.Reader) (Buffer, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return Buffer{}, fmt.Errorf("read wav: %w", err)
	}
	if len(raw) < 12 || string(raw[0:4]) != "RIFF" || string(raw[8:12]) != "WAVE" {
		return Buffer{}, fmt.Errorf("not a RIFF/WAVE stream")
	}

	var (
		channels   int
		sampleRate int
		bits       int
		data       []byte
		haveFmt    bool
	)
	for off := 12; off+8 <= len(raw); {
		id := string(raw[off : off+4])
		size := int(binary.LittleEndian.Uint32(raw[off+4 : off+8]))
		body := off + 8
		if size < 0 || body+size > len(raw) {
			return Buffer{}, fmt.Errorf("truncated %q chunk", id)
		}
		switch id {
		case "fmt ":
			if size < 16 {
				return Buffer{}, fmt.Errorf("short fmt chunk")
			}
			format := int(binary.LittleEndian.Uint16(raw[body : body+2]))
			channels = int(binary.LittleEndian.Uint16(raw[body+2 : body+4]))
			sampleRate = int(binary.LittleEndian.Uint32(raw[body+4 : body+8]))
			bits = int(binary.LittleEndian.Uint16(raw[body+14 : body+16]))
			if format != 1 {
				return Buffer{}, fmt.Errorf("unsupported wav format %d (want PCM)", format)
			}
			haveFmt = true
		case "data":
			data = raw[body : body+size]
		}
		// chunks are word-aligned
		off = body + size + size%2
	}
	if !haveFmt {
		return Buffer{}, fmt.Errorf("missing fmt chunk")
	}
	if data == nil {
		return Buffer{}, fmt.Errorf("missing data chunk")
	}
	if bits != 16 {
		return Buffer{}, fmt.Errorf("unsupported bit depth %d (want 16)", bits)
	}
	if channels != 1 && channels != 2 {
		return Buffer{}, fmt.Errorf("unsupported channel count %d", channels)
	}

	frames := len(data) / (2 * channels)
	samples := make([]float32, frames)
	for i := 0; i < frames; i++ {
		if channels == 1 {
			s := int16(binary.LittleEndian.Uint16(data[i*2 : i*2+2]))
			samples[i] = float32(s) / 32768.0
			continue
		}
		l := int16(binary.LittleEndian.Uint16(data[i*4 : i*4+2]))
		r := int16(binary.LittleEndian.Uint16(data[i*4+2 : i*4+4]))
		samples[i] = float32(int32(l)+int32(r)) / 2 / 32768.0
	}
	return Buffer{Samples: samples, SampleRate: sampleRate}, nil
}

// EncodeWAV writes the buffer as a 16-bit PCM mono RIFF/WAVE stream.
func (b Buffer) EncodeWAV(w io.Writer) error {
	if b.SampleRate <= 0 {
		return fmt.Errorf("invalid sample rate %d", b.SampleRate)
	}
	dataLen := len(b.Samples) * 2
	hdr := make([]byte, 44)
	copy(hdr[0:4], "RIFF")
	binary.LittleEndian.PutUint32(hdr[4:8], uint32(36+dataLen))
	copy(hdr[8:12], "WAVE")
	copy(hdr[12:16], "fmt ")
	binary.LittleEndian.PutUint32(hdr[16:20], 16)
	binary.LittleEndian.PutUint16(hdr[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(hdr[22:24], 1) // mono
	binary.LittleEndian.PutUint32(hdr[24:28], uint32(b.SampleRate))
	binary.LittleEndian.PutUint32(hdr[28:32], uint32(b.SampleRate*2)) // byte rate
	binary.LittleEndian.PutUint16(hdr[32:34], 2)                      // block align
	binary.LittleEndian.PutUint16(hdr[34:36], 16)                     // bits
	copy(hdr[36:40], "data")
	binary.LittleEndian.PutUint32(hdr[40:44], uint32(dataLen))
	if _, err := w.Write(hdr); err != nil {
		return err
	}

	buf := make([]byte, dataLen)
	for i, s := range b.Samples {
		v := s
		if v > 1 {
			v = 1
		} else if v < -1 {
			v = -1
		}
		binary.LittleEndian.PutUint16(buf[i*2:i*2+2], uint16(int16(v*32767)))
	}
	_, err := w.Write(buf)
	return err
}
