package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const wavHeaderSize = 44

// ErrNotWAV is returned by [DecodeWAV] when the input is not a RIFF/WAVE
// container.
var ErrNotWAV = errors.New("audio: not a RIFF/WAVE container")

// EncodeWAV wraps PCM16 data in a canonical 44-byte RIFF/WAVE header.
func EncodeWAV(pcm []byte, f Format) []byte {
	ch := max(f.Channels, 1)
	blockAlign := ch * 2
	buf := make([]byte, wavHeaderSize+len(pcm))

	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+len(pcm)))
	copy(buf[8:12], "WAVE")

	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(buf[22:24], uint16(ch))
	binary.LittleEndian.PutUint32(buf[24:28], uint32(f.SampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(f.SampleRate*blockAlign))
	binary.LittleEndian.PutUint16(buf[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(buf[34:36], 16)

	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(len(pcm)))
	copy(buf[44:], pcm)
	return buf
}

// DecodeWAV walks the RIFF chunks of wav and returns the PCM payload of the
// data chunk together with the format from the fmt chunk. Only 16-bit PCM is
// accepted. The returned slice aliases wav.
func DecodeWAV(wav []byte) ([]byte, Format, error) {
	if len(wav) < 12 || string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" {
		return nil, Format{}, ErrNotWAV
	}

	var (
		f        Format
		foundFmt bool
	)
	for off := 12; off+8 <= len(wav); {
		id := string(wav[off : off+4])
		size := int(binary.LittleEndian.Uint32(wav[off+4 : off+8]))
		body := off + 8

		switch id {
		case "fmt ":
			if size < 16 || body+16 > len(wav) {
				return nil, Format{}, errors.New("audio: truncated fmt chunk")
			}
			tag := binary.LittleEndian.Uint16(wav[body:])
			bits := binary.LittleEndian.Uint16(wav[body+14:])
			// 0xFFFE is WAVE_FORMAT_EXTENSIBLE, which ffmpeg emits for plain PCM too.
			if (tag != 1 && tag != 0xFFFE) || bits != 16 {
				return nil, Format{}, fmt.Errorf("audio: unsupported WAV encoding (format %d, %d bits)", tag, bits)
			}
			f.Channels = int(binary.LittleEndian.Uint16(wav[body+2:]))
			f.SampleRate = int(binary.LittleEndian.Uint32(wav[body+4:]))
			foundFmt = true
		case "data":
			if !foundFmt {
				return nil, Format{}, errors.New("audio: data chunk before fmt chunk")
			}
			end := min(body+size, len(wav))
			return wav[body:end], f, nil
		}

		off = body + size
		if size%2 != 0 {
			off++
		}
	}
	return nil, Format{}, errors.New("audio: missing data chunk")
}

// StripWAVHeader returns the PCM payload when b is a WAV container and b
// unchanged otherwise. Services that are asked for raw LINEAR16 sometimes
// still prepend a RIFF header.
func StripWAVHeader(b []byte) []byte {
	pcm, _, err := DecodeWAV(b)
	if err != nil {
		return b
	}
	return pcm
}
