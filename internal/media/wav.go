package media

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"path/filepath"
	"strings"
)

const wavHeaderSize = 44

// WAVFormat describes linear PCM audio.
type WAVFormat struct {
	SampleRate    int
	Channels      int
	BitsPerSample int
}

// WrapPCMAsWAV prefixes little-endian PCM samples with a canonical 44 byte WAV header.
func WrapPCMAsWAV(pcm []byte, format WAVFormat) []byte {
	dataSize := len(pcm)
	byteRate := format.SampleRate * format.Channels * format.BitsPerSample / 8
	blockAlign := format.Channels * format.BitsPerSample / 8

	wav := make([]byte, wavHeaderSize+dataSize)

	copy(wav[0:4], "RIFF")
	binary.LittleEndian.PutUint32(wav[4:8], uint32(36+dataSize))
	copy(wav[8:12], "WAVE")

	copy(wav[12:16], "fmt ")
	binary.LittleEndian.PutUint32(wav[16:20], 16)
	binary.LittleEndian.PutUint16(wav[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(wav[22:24], uint16(format.Channels))
	binary.LittleEndian.PutUint32(wav[24:28], uint32(format.SampleRate))
	binary.LittleEndian.PutUint32(wav[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(wav[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(wav[34:36], uint16(format.BitsPerSample))

	copy(wav[36:40], "data")
	binary.LittleEndian.PutUint32(wav[40:44], uint32(dataSize))
	copy(wav[44:], pcm)

	return wav
}

// ParseWAV walks the RIFF chunks and returns the PCM format and sample bytes.
// Only uncompressed PCM is accepted.
func ParseWAV(data []byte) (WAVFormat, []byte, error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return WAVFormat{}, nil, fmt.Errorf("%w: not a RIFF/WAVE stream", ErrUnsupportedAudio)
	}

	var (
		format    WAVFormat
		sawFormat bool
	)
	offset := 12
	for offset+8 <= len(data) {
		id := string(data[offset : offset+4])
		size := int(binary.LittleEndian.Uint32(data[offset+4 : offset+8]))
		body := offset + 8
		if size < 0 || body+size > len(data) {
			// Streaming encoders leave the data size unset; take what is there.
			size = len(data) - body
		}

		switch id {
		case "fmt ":
			if size < 16 {
				return WAVFormat{}, nil, fmt.Errorf("%w: short fmt chunk", ErrUnsupportedAudio)
			}
			if tag := binary.LittleEndian.Uint16(data[body : body+2]); tag != 1 {
				return WAVFormat{}, nil, fmt.Errorf("%w: wav format tag %d", ErrUnsupportedAudio, tag)
			}
			format = WAVFormat{
				Channels:      int(binary.LittleEndian.Uint16(data[body+2 : body+4])),
				SampleRate:    int(binary.LittleEndian.Uint32(data[body+4 : body+8])),
				BitsPerSample: int(binary.LittleEndian.Uint16(data[body+14 : body+16])),
			}
			sawFormat = true
		case "data":
			if !sawFormat {
				return WAVFormat{}, nil, fmt.Errorf("%w: data chunk before fmt chunk", ErrUnsupportedAudio)
			}
			return format, data[body : body+size], nil
		}

		offset = body + size
		if size%2 == 1 {
			offset++
		}
	}

	return WAVFormat{}, nil, fmt.Errorf("%w: no data chunk", ErrUnsupportedAudio)
}

// SniffMIME guesses the container of an encoded audio blob from its magic bytes.
func SniffMIME(data []byte) string {
	switch {
	case len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WAVE":
		return "audio/wav"
	case bytes.HasPrefix(data, []byte("OggS")):
		return "audio/ogg"
	case bytes.HasPrefix(data, []byte{0x1A, 0x45, 0xDF, 0xA3}):
		return "audio/webm"
	case bytes.HasPrefix(data, []byte("ID3")), len(data) >= 2 && data[0] == 0xFF && data[1]&0xE0 == 0xE0:
		return "audio/mpeg"
	case len(data) >= 8 && string(data[4:8]) == "ftyp":
		return "audio/mp4"
	default:
		return "application/octet-stream"
	}
}

// MIMEFromFilename maps an audio file extension to its MIME type.
func MIMEFromFilename(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".mp3":
		return "audio/mpeg"
	case ".wav":
		return "audio/wav"
	case ".webm":
		return "audio/webm"
	case ".ogg", ".oga":
		return "audio/ogg"
	case ".m4a", ".mp4":
		return "audio/mp4"
	case ".aac":
		return "audio/aac"
	default:
		return ""
	}
}

// ExtensionForMIME is the inverse of MIMEFromFilename, defaulting to ".bin".
func ExtensionForMIME(mime string) string {
	switch mime {
	case "audio/mpeg":
		return ".mp3"
	case "audio/wav":
		return ".wav"
	case "audio/webm":
		return ".webm"
	case "audio/ogg":
		return ".ogg"
	case "audio/mp4":
		return ".m4a"
	case "audio/aac":
		return ".aac"
	default:
		return ".bin"
	}
}
