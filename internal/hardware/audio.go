package hardware

import (
	"fmt"
	"math"
	"sync"

	"github.com/gen2brain/malgo"
)

// CaptureFrame is one block of f32 samples handed from the malgo
// capture callback to internal/audioin's message loop.
type CaptureFrame struct {
	Samples []float32
	RMS     float32
}

// AudioIO owns the malgo context and the capture/playback devices
// built from it, shaped around channels: capture pushes CaptureFrame
// onto a channel for internal/audioin to consume, and playback pulls
// f32 samples pushed onto a channel by internal/txqueue.
type AudioIO struct {
	ctx *malgo.AllocatedContext

	mu             sync.Mutex
	captureDevice  *malgo.Device
	playbackDevice *malgo.Device

	CaptureCh  chan CaptureFrame
	PlaybackCh chan []float32
}

// NewAudioIO initializes the malgo context. logCb receives backend
// diagnostic messages; pass a no-op for silence.
func NewAudioIO(logCb func(string)) (*AudioIO, error) {
	if logCb == nil {
		logCb = func(string) {}
	}
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, logCb)
	if err != nil {
		return nil, fmt.Errorf("init audio context: %w", err)
	}
	return &AudioIO{
		ctx:        ctx,
		CaptureCh:  make(chan CaptureFrame, 64),
		PlaybackCh: make(chan []float32, 64),
	}, nil
}

// Close tears down both devices (if running) and the backend context.
func (a *AudioIO) Close() error {
	a.StopCapture()
	a.StopPlayback()
	return a.ctx.Uninit()
}

// StartCapture opens the capture device at sampleRate mono 16-bit PCM
// (malgo delivers raw bytes; each callback is converted to f32 and
// pushed onto CaptureCh) matching the 16kHz mono input ElfRadio's VAD
// and STT pipeline expect.
func (a *AudioIO) StartCapture(deviceName string, sampleRate int) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.captureDevice != nil {
		return fmt.Errorf("capture already running")
	}

	cfg := malgo.DefaultDeviceConfig(malgo.Capture)
	cfg.Capture.Format = malgo.FormatS16
	cfg.Capture.Channels = 1
	cfg.SampleRate = uint32(sampleRate)
	cfg.Alsa.NoMMap = 1

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, input []byte, frameCount uint32) {
			samples := pcm16BytesToFloat32(input)
			var sum float64
			for _, s := range samples {
				sum += float64(s) * float64(s)
			}
			rms := float32(0)
			if len(samples) > 0 {
				rms = float32(math.Sqrt(sum / float64(len(samples))))
			}
			select {
			case a.CaptureCh <- CaptureFrame{Samples: samples, RMS: rms}:
			default:
				// Drop the frame rather than block the device callback;
				// the audio-in processor is expected to keep up.
			}
		},
	}

	device, err := malgo.InitDevice(a.ctx.Context, cfg, callbacks)
	if err != nil {
		return fmt.Errorf("init capture device: %w", err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		return fmt.Errorf("start capture device: %w", err)
	}
	a.captureDevice = device
	return nil
}

// StopCapture tears down the capture device if running.
func (a *AudioIO) StopCapture() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.captureDevice != nil {
		a.captureDevice.Uninit()
		a.captureDevice = nil
	}
}

// PlayOnce opens the playback device, streams samples (f32, mono) to
// it via the callback, and blocks until all samples have been
// submitted to the device. internal/txqueue performs the PTT pre/post
// delay sleeps around the hand-off to cmd/elfradio's playback loop;
// PlayOnce itself only paces submission to the device's own pull rate.
func (a *AudioIO) PlayOnce(deviceName string, sampleRate int, samples []float32) error {
	a.mu.Lock()
	if a.playbackDevice != nil {
		a.mu.Unlock()
		return fmt.Errorf("playback already running")
	}
	a.mu.Unlock()

	pcm := float32ToPCM16Bytes(samples)
	position := 0
	done := make(chan struct{})

	cfg := malgo.DefaultDeviceConfig(malgo.Playback)
	cfg.Playback.Format = malgo.FormatS16
	cfg.Playback.Channels = 1
	cfg.SampleRate = uint32(sampleRate)
	cfg.Alsa.NoMMap = 1

	callbacks := malgo.DeviceCallbacks{
		Data: func(output, _ []byte, frameCount uint32) {
			remaining := len(pcm) - position
			n := len(output)
			if n > remaining {
				n = remaining
			}
			if n > 0 {
				copy(output, pcm[position:position+n])
				position += n
			}
			for i := n; i < len(output); i++ {
				output[i] = 0
			}
			if position >= len(pcm) {
				select {
				case <-done:
				default:
					close(done)
				}
			}
		},
	}

	device, err := malgo.InitDevice(a.ctx.Context, cfg, callbacks)
	if err != nil {
		return fmt.Errorf("init playback device: %w", err)
	}
	a.mu.Lock()
	a.playbackDevice = device
	a.mu.Unlock()
	defer a.StopPlayback()

	if err := device.Start(); err != nil {
		return fmt.Errorf("start playback device: %w", err)
	}
	<-done
	return nil
}

// StopPlayback tears down the playback device if running.
func (a *AudioIO) StopPlayback() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.playbackDevice != nil {
		a.playbackDevice.Uninit()
		a.playbackDevice = nil
	}
}

func pcm16BytesToFloat32(data []byte) []float32 {
	out := make([]float32, len(data)/2)
	for i := range out {
		v := int16(uint16(data[i*2]) | uint16(data[i*2+1])<<8)
		out[i] = float32(v) / 32768
	}
	return out
}

func float32ToPCM16Bytes(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		if s > 1 {
			s = 1
		}
		if s < -1 {
			s = -1
		}
		v := int16(s * 32767)
		out[i*2] = byte(v)
		out[i*2+1] = byte(v >> 8)
	}
	return out
}
