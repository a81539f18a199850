package audio

import "math"

// Windowed-sinc resampler: fixed-input interpolation with 128 taps,
// 128x kernel oversampling, a Blackman-Harris window, and a cutoff at
// 0.95 of Nyquist. Input is processed in 1024-frame chunks, with at
// most 10 flush rounds to drain the tail.
const (
	sincTaps       = 128
	sincOversample = 128
	sincCutoff     = 0.95
	chunkFrames    = 1024
	maxFlushRounds = 10
)

// sincKernelTable[phase] holds a taps-long windowed-sinc kernel for
// the given fractional sub-sample phase, phase in [0, sincOversample).
var sincKernelTable = buildSincKernel()

func buildSincKernel() [][]float64 {
	table := make([][]float64, sincOversample)
	half := sincTaps / 2
	for phase := 0; phase < sincOversample; phase++ {
		frac := float64(phase) / float64(sincOversample)
		row := make([]float64, sincTaps)
		var sum float64
		for t := 0; t < sincTaps; t++ {
			x := float64(t-half) + frac
			row[t] = sincCutoff * sinc(sincCutoff*x) * blackmanHarris(t, frac, sincTaps)
			sum += row[t]
		}
		if sum != 0 {
			for t := range row {
				row[t] /= sum
			}
		}
		table[phase] = row
	}
	return table
}

func sinc(x float64) float64 {
	if x == 0 {
		return 1
	}
	px := math.Pi * x
	return math.Sin(px) / px
}

// blackmanHarris windows tap t (of taps total, with an extra frac
// shift) onto [0, 1] before evaluating the four-term window.
func blackmanHarris(t int, frac float64, taps int) float64 {
	const (
		a0 = 0.35875
		a1 = 0.48829
		a2 = 0.14128
		a3 = 0.01168
	)
	n := (float64(t) + frac) / float64(taps-1)
	if n < 0 {
		n = 0
	}
	if n > 1 {
		n = 1
	}
	return a0 - a1*math.Cos(2*math.Pi*n) + a2*math.Cos(4*math.Pi*n) - a3*math.Cos(6*math.Pi*n)
}

// SincResampler converts a stream of f32 samples from one fixed input
// rate to one fixed output rate. Input is fed incrementally via
// Process; Flush drains the tail once no more input is coming,
// zero-padding so the kernel window can still reach the last few real
// samples.
type SincResampler struct {
	ratio   float64 // inputRate / outputRate
	buf     []float32
	pos     float64 // fractional read position into buf
	flushed bool
}

// NewSincResampler builds a resampler converting fromRate to toRate.
func NewSincResampler(fromRate, toRate int) *SincResampler {
	return &SincResampler{ratio: float64(fromRate) / float64(toRate)}
}

// Process feeds a chunk of input samples (any length, though callers
// chunk at 1024 frames) and returns every output sample that can be
// produced from the buffered input so far.
func (r *SincResampler) Process(input []float32) []float32 {
	r.buf = append(r.buf, input...)
	return r.emit()
}

// Flush pads the remaining buffered input with half a kernel width of
// zeros and drains what it can. Call repeatedly (callers cap this at
// maxFlushRounds) until it returns zero samples.
func (r *SincResampler) Flush() []float32 {
	if !r.flushed {
		r.buf = append(r.buf, make([]float32, sincTaps/2)...)
		r.flushed = true
	}
	return r.emit()
}

func (r *SincResampler) emit() []float32 {
	half := sincTaps / 2
	var out []float32
	for {
		center := int(math.Floor(r.pos))
		frac := r.pos - float64(center)
		if center-half < 0 || center+half >= len(r.buf) {
			break
		}
		phase := int(frac * sincOversample)
		if phase >= sincOversample {
			phase = sincOversample - 1
		}
		kernel := sincKernelTable[phase]
		var acc float64
		for t := 0; t < sincTaps; t++ {
			acc += float64(r.buf[center-half+t]) * kernel[t]
		}
		out = append(out, float32(acc))
		r.pos += r.ratio
	}

	// Trim the consumed prefix, keeping enough history for the next
	// window to still reach back half a kernel width.
	trim := int(math.Floor(r.pos)) - half
	if trim > 0 {
		if trim > len(r.buf) {
			trim = len(r.buf)
		}
		r.buf = r.buf[trim:]
		r.pos -= float64(trim)
	}
	return out
}

// ResampleTo16kHz resamples a full buffer from sourceRate to 16 kHz,
// feeding 1024-frame chunks and then flushing the tail for up to 10
// rounds. A buffer already at 16 kHz is copied through unchanged.
func ResampleTo16kHz(samples []float32, sourceRate int) []float32 {
	const target = 16000
	if sourceRate == target || len(samples) == 0 {
		out := make([]float32, len(samples))
		copy(out, samples)
		return out
	}

	r := NewSincResampler(sourceRate, target)
	var out []float32
	for start := 0; start < len(samples); start += chunkFrames {
		end := start + chunkFrames
		if end > len(samples) {
			end = len(samples)
		}
		out = append(out, r.Process(samples[start:end])...)
	}
	for i := 0; i < maxFlushRounds; i++ {
		flushed := r.Flush()
		if len(flushed) == 0 {
			break
		}
		out = append(out, flushed...)
	}
	return out
}
