// Package audioin implements the audio input / STT pipeline: a
// message loop consuming captured audio frames, gating them through
// VAD into speech segments, and dispatching each finalized segment to
// the configured speech-to-text backend without blocking the capture
// path.
package audioin

import (
	"context"
	"strings"
	"time"

	"github.com/VK7KSM/ElfRadio/internal/bus"
	"github.com/VK7KSM/ElfRadio/internal/elfradio"
	"github.com/VK7KSM/ElfRadio/internal/logger"
	"github.com/VK7KSM/ElfRadio/internal/status"
	"github.com/VK7KSM/ElfRadio/internal/store"
	"go.uber.org/zap"
)

// MessageKind discriminates the capture-driver message union.
type MessageKind string

const (
	MessageData  MessageKind = "Data"
	MessageRms   MessageKind = "Rms"
	MessageError MessageKind = "Error"
)

// Message is one event from the capture driver: a block of samples, a
// VU-meter level, or a driver error.
type Message struct {
	Kind    MessageKind
	Samples []float32
	RMS     float32
	Err     string
}

const sttTimeout = 30 * time.Second

// Processor consumes capture messages and produces transcripts.
type Processor struct {
	state *elfradio.AppState
	store *store.Store
	bus   *bus.Bus
	vad   *VAD
	in    <-chan Message

	// OnRms receives every RMS message unconditionally (the UI VU
	// meter path); nil means discard.
	OnRms func(float32)

	pending  []float32
	segment  []float32
	inSpeech bool
}

// NewProcessor builds a Processor reading from in. store may be nil.
func NewProcessor(state *elfradio.AppState, st *store.Store, b *bus.Bus, in <-chan Message) *Processor {
	return &Processor{
		state: state,
		store: st,
		bus:   b,
		vad:   NewVAD(1),
		in:    in,
	}
}

// Run consumes messages until shutdown. STT requests run on their own
// goroutines and are not joined on shutdown; their results may be
// dropped.
func (p *Processor) Run(ctx context.Context) {
	for {
		select {
		case <-p.state.ShutdownCh:
			return
		case <-ctx.Done():
			return
		case msg, ok := <-p.in:
			if !ok {
				return
			}
			p.handle(ctx, msg)
		}
	}
}

func (p *Processor) handle(ctx context.Context, msg Message) {
	switch msg.Kind {
	case MessageRms:
		// Never gated by task status.
		if p.OnRms != nil {
			p.OnRms(msg.RMS)
		}

	case MessageError:
		logger.L().Error("audio capture error", zap.String("error", msg.Err))

	case MessageData:
		task, ok := p.state.ActiveTaskInfo()
		if !ok {
			logger.L().Debug("discarding captured audio: no active task", zap.Int("samples", len(msg.Samples)))
			return
		}
		p.ingest(ctx, task, msg.Samples)
	}
}

// ingest feeds samples into the 10 ms frame assembler and tracks
// speech segment boundaries.
func (p *Processor) ingest(ctx context.Context, task elfradio.TaskInfo, samples []float32) {
	p.pending = append(p.pending, samples...)

	for len(p.pending) >= VadFrameSamples {
		frame := p.pending[:VadFrameSamples]
		p.pending = p.pending[VadFrameSamples:]

		changed, speaking := p.vad.ProcessChunk(floatToPCM16(frame))
		switch {
		case changed && speaking:
			p.inSpeech = true
			p.segment = append(p.segment[:0], frame...)
		case changed && !speaking:
			p.inSpeech = false
			segment := make([]float32, len(p.segment))
			copy(segment, p.segment)
			p.segment = p.segment[:0]
			p.dispatchSTT(ctx, task, segment)
		case p.inSpeech:
			p.segment = append(p.segment, frame...)
		}
	}
}

// dispatchSTT serializes a finalized segment to 16-bit LE PCM and
// fires the STT request on its own goroutine so the capture loop never
// blocks on a network call. The aux slot is preferred; the primary
// slot is the legacy fallback.
func (p *Processor) dispatchSTT(ctx context.Context, task elfradio.TaskInfo, segment []float32) {
	if len(segment) == 0 {
		return
	}
	pcm := pcm16Bytes(segment)
	params := p.sttParams()

	go func() {
		reqCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sttTimeout)
		defer cancel()

		transcript, err := p.recognize(reqCtx, pcm, params)
		if err != nil {
			p.bus.PublishStatus(bus.Service(elfradio.StatusUpdateStt, status.Derive(err, status.KindSTT)))
			logger.L().Warn("stt request failed", zap.String("task_id", task.ID), zap.Error(err))
			return
		}
		p.bus.PublishStatus(bus.Service(elfradio.StatusUpdateStt, elfradio.ServiceStatusOk))

		if transcript == "" {
			return
		}
		entry := elfradio.NewLogEntry(task.ID, elfradio.LogDirectionIncoming, elfradio.LogContentText, transcript)
		store.WriteLogEntry(p.store, task.TaskDir, entry)
		p.bus.PublishLog(entry)

		if phrase := p.state.Config.Security.StopPhrase; phrase != "" &&
			strings.Contains(strings.ToLower(transcript), strings.ToLower(phrase)) {
			alert := elfradio.NewLogEntry(task.ID, elfradio.LogDirectionInternal, elfradio.LogContentStatus,
				"Stop phrase detected on input audio")
			store.WriteLogEntry(p.store, task.TaskDir, alert)
			p.bus.PublishLog(alert)
			logger.L().Warn("stop phrase detected", zap.String("task_id", task.ID))
		}
	}()
}

func (p *Processor) recognize(ctx context.Context, pcm []byte, params elfradio.SttParams) (string, error) {
	if aux := p.state.AuxClient(); aux != nil {
		return aux.SpeechToText(ctx, pcm, params)
	}
	if primary := p.state.AiClient(); primary != nil {
		return primary.SpeechToText(ctx, pcm, params)
	}
	return "", elfradio.NewAiError(elfradio.AiErrProviderNotSpecified, "no stt client configured", nil)
}

func (p *Processor) sttParams() elfradio.SttParams {
	lang := p.state.Config.AI.STTLanguage
	if lang == "" {
		lang = "en-US"
	}
	return elfradio.SttParams{
		LanguageCode: lang,
		SampleRate:   VadSampleRate,
		AudioFormat:  "LINEAR16",
	}
}

func floatToPCM16(samples []float32) []int16 {
	out := make([]int16, len(samples))
	for i, s := range samples {
		if s > 1 {
			s = 1
		}
		if s < -1 {
			s = -1
		}
		out[i] = int16(s * 32767)
	}
	return out
}

func pcm16Bytes(samples []float32) []byte {
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
