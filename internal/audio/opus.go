package audio

import (
	"bytes"
	"io"

	"github.com/VK7KSM/ElfRadio/internal/elfradio"
	"github.com/hraban/opus"
)

// oggOpusRate is the decode rate libopus produces for Ogg Opus
// streams regardless of the encoder's input rate.
const oggOpusRate = 48000

// DecodeOggOpus decodes an Ogg-encapsulated Opus stream (returned by
// some OpenAI-compatible TTS voices) to mono f32 at 48 kHz, ready for
// the 16 kHz resample pass.
func DecodeOggOpus(data []byte) (DecodedAudio, error) {
	stream, err := opus.NewStream(bytes.NewReader(data))
	if err != nil {
		return DecodedAudio{}, elfradio.NewAiError(elfradio.AiErrAudioDecoding, "open ogg opus stream", err)
	}
	defer stream.Close()

	var samples []float32
	buf := make([]float32, 16384)
	for {
		n, err := stream.ReadFloat32(buf)
		if err == io.EOF {
			break
		}
		if err != nil {
			return DecodedAudio{}, elfradio.NewAiError(elfradio.AiErrAudioDecoding, "read ogg opus stream", err)
		}
		samples = append(samples, buf[:n]...)
	}
	return DecodedAudio{Samples: samples, SampleRate: oggOpusRate}, nil
}
