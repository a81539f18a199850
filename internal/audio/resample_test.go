package audio

import "testing"

func TestResampleTo16kHz_NoOpAtTargetRate(t *testing.T) {
	in := []float32{0.1, -0.2, 0.3, -0.4, 0.5}
	out := ResampleTo16kHz(in, 16000)
	if len(out) != len(in) {
		t.Fatalf("expected no-op length %d, got %d", len(in), len(out))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Fatalf("sample %d changed: %v -> %v", i, in[i], out[i])
		}
	}
}

func TestResampleTo16kHz_EmptyInput(t *testing.T) {
	out := ResampleTo16kHz(nil, 8000)
	if len(out) != 0 {
		t.Fatalf("expected empty output, got %d samples", len(out))
	}
}

func TestResampleTo16kHz_UpsamplesRoughlyToExpectedLength(t *testing.T) {
	in := make([]float32, 8000) // 1 second at 8kHz
	for i := range in {
		in[i] = 0.5
	}
	out := ResampleTo16kHz(in, 8000)
	// Expect roughly 16000 output samples (1 second at 16kHz); allow
	// generous tolerance since the sinc kernel's edge handling trims a
	// half-kernel-width of samples at each boundary.
	if len(out) < 15000 || len(out) > 17000 {
		t.Fatalf("expected ~16000 output samples, got %d", len(out))
	}
}

func TestDecodeRawPCM16_RejectsOddLength(t *testing.T) {
	_, err := DecodeRawPCM16([]byte{0x01, 0x02, 0x03})
	if err == nil {
		t.Fatal("expected error for odd-length payload")
	}
}

func TestDecodeRawPCM16_RoundTrip(t *testing.T) {
	samples, err := DecodeRawPCM16([]byte{0x00, 0x40, 0x00, 0xC0})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(samples) != 2 {
		t.Fatalf("expected 2 samples, got %d", len(samples))
	}
}

func TestEncodeDecodeWAV_RoundTrip(t *testing.T) {
	in := []float32{0, 0.25, -0.25, 0.5, -0.5, 0.9999}
	data, err := EncodeWAV16Mono(in, 16000)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	decoded, err := DecodeWAV(data)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if decoded.SampleRate != 16000 {
		t.Fatalf("expected 16000Hz, got %d", decoded.SampleRate)
	}
	if len(decoded.Samples) != len(in) {
		t.Fatalf("expected %d samples, got %d", len(in), len(decoded.Samples))
	}
	const eps = 1.0 / 32768 * 2 // within 16-bit quantisation
	for i, want := range in {
		got := decoded.Samples[i]
		diff := got - want
		if diff < 0 {
			diff = -diff
		}
		if float64(diff) > float64(eps) {
			t.Fatalf("sample %d: want %v got %v (diff %v)", i, want, got, diff)
		}
	}
}

func TestDecodeWAV_Rejects24Bit(t *testing.T) {
	// Hand-build a minimal RIFF/WAVE header advertising 24-bit PCM.
	header := []byte{
		'R', 'I', 'F', 'F', 0, 0, 0, 0, 'W', 'A', 'V', 'E',
		'f', 'm', 't', ' ', 16, 0, 0, 0,
		1, 0, // PCM
		1, 0, // mono
		0x80, 0x3e, 0, 0, // 16000
		0, 0, 0, 0, // byte rate (unused)
		3, 0, // block align (unused)
		24, 0, // bits per sample
		'd', 'a', 't', 'a', 3, 0, 0, 0,
		0, 0, 0,
	}
	_, err := DecodeWAV(header)
	if err == nil {
		t.Fatal("expected error decoding 24-bit WAV")
	}
}
