// Package audio implements the WAV/PCM decode-encode and resampling
// pipeline: normalizing whatever bytes a TTS provider hands back (a
// full WAV container, an Ogg Opus stream, or raw 16-bit PCM) into f32
// samples in [-1, 1], resampling to 16 kHz mono, and writing the
// final 16-bit PCM WAV ElfRadio stores per task.
package audio

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/VK7KSM/ElfRadio/internal/elfradio"
	"github.com/youpy/go-wav"
)

// DecodedAudio is a normalized PCM buffer: f32 samples in [-1, 1] at
// the container's original sample rate, downmixed to mono by
// averaging channels (TTS providers are expected to return mono, but
// this keeps the decoder honest if one doesn't).
type DecodedAudio struct {
	Samples    []float32
	SampleRate int
}

// DecodeWAV parses a RIFF/WAVE container and normalizes its samples
// to f32. Supports 8/16/32-bit signed integer PCM (format code 1) and
// 32-bit IEEE float (format code 3); 24-bit is explicitly rejected.
// Parsed by hand rather than through youpy/go-wav's Reader because
// that library's Sample API does not expose the format-code and
// bit-depth distinctions this validation needs; go-wav handles the
// fixed-format encode path below instead.
func DecodeWAV(data []byte) (DecodedAudio, error) {
	if len(data) < 44 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return DecodedAudio{}, elfradio.NewAiError(elfradio.AiErrAudioDecoding, "not a RIFF/WAVE container", nil)
	}

	var (
		audioFormat   uint16
		numChannels   uint16
		sampleRate    uint32
		bitsPerSample uint16
		dataBytes     []byte
		haveFmt       bool
	)

	offset := 12
	for offset+8 <= len(data) {
		chunkID := string(data[offset : offset+4])
		chunkSize := int(binary.LittleEndian.Uint32(data[offset+4 : offset+8]))
		body := offset + 8
		if body+chunkSize > len(data) {
			break
		}
		switch chunkID {
		case "fmt ":
			if chunkSize < 16 {
				return DecodedAudio{}, elfradio.NewAiError(elfradio.AiErrAudioDecoding, "fmt chunk too short", nil)
			}
			audioFormat = binary.LittleEndian.Uint16(data[body : body+2])
			numChannels = binary.LittleEndian.Uint16(data[body+2 : body+4])
			sampleRate = binary.LittleEndian.Uint32(data[body+4 : body+8])
			bitsPerSample = binary.LittleEndian.Uint16(data[body+14 : body+16])
			haveFmt = true
		case "data":
			dataBytes = data[body : body+chunkSize]
		}
		offset = body + chunkSize
		if chunkSize%2 == 1 {
			offset++ // chunks are word-aligned
		}
	}

	if !haveFmt || dataBytes == nil {
		return DecodedAudio{}, elfradio.NewAiError(elfradio.AiErrAudioDecoding, "missing fmt or data chunk", nil)
	}
	if numChannels == 0 {
		return DecodedAudio{}, elfradio.NewAiError(elfradio.AiErrAudioDecoding, "zero channels", nil)
	}

	samples, err := normalizePCM(dataBytes, audioFormat, bitsPerSample)
	if err != nil {
		return DecodedAudio{}, err
	}
	mono := downmix(samples, int(numChannels))
	return DecodedAudio{Samples: mono, SampleRate: int(sampleRate)}, nil
}

func normalizePCM(data []byte, audioFormat, bits uint16) ([]float32, error) {
	switch {
	case audioFormat == 1 && bits == 8:
		out := make([]float32, len(data))
		for i, b := range data {
			out[i] = (float32(b) - 128) / 128
		}
		return out, nil
	case audioFormat == 1 && bits == 16:
		if len(data)%2 != 0 {
			return nil, elfradio.NewAiError(elfradio.AiErrAudioDecoding, "odd-length 16-bit PCM", nil)
		}
		out := make([]float32, len(data)/2)
		for i := range out {
			v := int16(binary.LittleEndian.Uint16(data[i*2:]))
			out[i] = float32(v) / 32768
		}
		return out, nil
	case audioFormat == 1 && bits == 24:
		return nil, elfradio.NewAiError(elfradio.AiErrAudioDecoding, "24-bit PCM is not supported", nil)
	case audioFormat == 1 && bits == 32:
		if len(data)%4 != 0 {
			return nil, elfradio.NewAiError(elfradio.AiErrAudioDecoding, "odd-length 32-bit PCM", nil)
		}
		out := make([]float32, len(data)/4)
		for i := range out {
			v := int32(binary.LittleEndian.Uint32(data[i*4:]))
			out[i] = float32(v) / 2147483648
		}
		return out, nil
	case audioFormat == 3 && bits == 32:
		if len(data)%4 != 0 {
			return nil, elfradio.NewAiError(elfradio.AiErrAudioDecoding, "odd-length float32 PCM", nil)
		}
		out := make([]float32, len(data)/4)
		for i := range out {
			bits := binary.LittleEndian.Uint32(data[i*4:])
			out[i] = math.Float32frombits(bits)
		}
		return out, nil
	default:
		return nil, elfradio.NewAiError(elfradio.AiErrAudioDecoding,
			fmt.Sprintf("unsupported wav format (code=%d, bits=%d)", audioFormat, bits), nil)
	}
}

func downmix(samples []float32, channels int) []float32 {
	if channels <= 1 {
		return samples
	}
	frames := len(samples) / channels
	out := make([]float32, frames)
	for i := 0; i < frames; i++ {
		var sum float32
		for c := 0; c < channels; c++ {
			sum += samples[i*channels+c]
		}
		out[i] = sum / float32(channels)
	}
	return out
}

// DecodeRawPCM16 reinterprets raw 16-bit little-endian mono samples
// (the wire format of the providers that skip the WAV container) as
// f32. An odd-length payload is rejected as an AudioDecodingError.
func DecodeRawPCM16(data []byte) ([]float32, error) {
	if len(data)%2 != 0 {
		return nil, elfradio.NewAiError(elfradio.AiErrAudioDecoding, "odd-length raw PCM16 payload", nil)
	}
	out := make([]float32, len(data)/2)
	for i := range out {
		v := int16(binary.LittleEndian.Uint16(data[i*2:]))
		out[i] = float32(v) / 32768
	}
	return out, nil
}

// EncodeWAV16Mono writes samples as a 16 kHz(-tagged) mono 16-bit PCM
// WAV container, via youpy/go-wav's Writer — a clean fit here since
// the output shape is always the same fixed format.
func EncodeWAV16Mono(samples []float32, sampleRate int) ([]byte, error) {
	buf := &byteSliceWriter{}
	w := wav.NewWriter(buf, uint32(len(samples)), 1, uint32(sampleRate), 16)
	wavSamples := make([]wav.Sample, len(samples))
	for i, s := range samples {
		v := clampToInt16(s)
		wavSamples[i] = wav.Sample{Values: [2]int{int(v), int(v)}}
	}
	if err := w.WriteSamples(wavSamples); err != nil {
		return nil, elfradio.NewAiError(elfradio.AiErrAudioDecoding, "encode wav", err)
	}
	return buf.data, nil
}

func clampToInt16(s float32) int16 {
	if s > 1 {
		s = 1
	}
	if s < -1 {
		s = -1
	}
	return int16(s * 32767)
}

// byteSliceWriter is a minimal io.Writer accumulating into a slice,
// since go-wav's Writer only needs io.Writer and we want the bytes in
// memory before handing them to os.WriteFile.
type byteSliceWriter struct{ data []byte }

func (w *byteSliceWriter) Write(p []byte) (int, error) {
	w.data = append(w.data, p...)
	return len(p), nil
}
