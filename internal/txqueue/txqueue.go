// Package txqueue implements the transmit queue processor: a
// single-consumer loop that drains prioritised TxItems, synthesizes
// voice for text items, and keys the radio around hardware playback
// for voice items. Playback is handed off through a buffered channel
// the audio device drains (internal/hardware).
package txqueue

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/VK7KSM/ElfRadio/internal/audio"
	"github.com/VK7KSM/ElfRadio/internal/bus"
	"github.com/VK7KSM/ElfRadio/internal/config"
	"github.com/VK7KSM/ElfRadio/internal/elfradio"
	"github.com/VK7KSM/ElfRadio/internal/hardware"
	"github.com/VK7KSM/ElfRadio/internal/logger"
	"github.com/VK7KSM/ElfRadio/internal/status"
	"github.com/VK7KSM/ElfRadio/internal/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/text/language"
)

// ErrorKind is the TX pipeline error taxonomy.
type ErrorKind string

const (
	ErrNoActiveTask         ErrorKind = "NoActiveTask"
	ErrAiNotConfigured      ErrorKind = "AiNotConfigured"
	ErrAuxNotConfigured     ErrorKind = "AuxServiceNotConfigured"
	ErrAiRequestFailed      ErrorKind = "AiRequestFailed"
	ErrAudioDecode          ErrorKind = "AudioDecodeError"
	ErrAudio                ErrorKind = "AudioError"
	ErrAudioChannelClosed   ErrorKind = "AudioChannelClosed"
	ErrPttPortNotConfigured ErrorKind = "PttPortNotConfigured"
	ErrPttSignalParse       ErrorKind = "PttSignalParseError"
	ErrPtt                  ErrorKind = "PttError"
	ErrQueueSend            ErrorKind = "TxQueueSendError"
)

// Error is the typed error the TX pipeline surfaces to API handlers.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return string(e.Kind) + ": " + e.Err.Error()
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Keyer is the PTT surface the processor drives; hardware.PTT is the
// real implementation, tests substitute a recorder.
type Keyer interface {
	Key() error
	Unkey() error
	Close() error
}

// KeyerOpener opens a Keyer for the configured port and signal line.
type KeyerOpener func(port string, signal hardware.PttSignal) (Keyer, error)

func defaultKeyerOpener(port string, signal hardware.PttSignal) (Keyer, error) {
	ptt, err := hardware.Open(port, signal)
	if err != nil {
		return nil, err
	}
	return ptt, nil
}

const (
	playbackRate = 16000
	// minPlaybackEstimate is the floor on the conservative playback
	// sleep, so a zero-length buffer still holds PTT long enough for
	// the relay to settle.
	minPlaybackEstimate = 50 * time.Millisecond
)

// Processor is the single consumer of AppState.TxQueue.
type Processor struct {
	state    *elfradio.AppState
	store    *store.Store
	bus      *bus.Bus
	audioOut chan<- []float32

	openKeyer KeyerOpener
	sleep     func(time.Duration)
}

// NewProcessor wires the processor to the shared state, persistence,
// bus, and the playback channel internal/hardware drains. store may be
// nil (degraded mode, file-only logging).
func NewProcessor(state *elfradio.AppState, st *store.Store, b *bus.Bus, audioOut chan<- []float32) *Processor {
	return &Processor{
		state:     state,
		store:     st,
		bus:       b,
		audioOut:  audioOut,
		openKeyer: defaultKeyerOpener,
		sleep:     time.Sleep,
	}
}

// Enqueue submits an item without blocking. A full queue is reported
// as a TxQueueSendError rather than stalling the caller.
func (p *Processor) Enqueue(item elfradio.TxItem) error {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.QueuedAt.IsZero() {
		item.QueuedAt = time.Now()
	}
	select {
	case p.state.TxQueue <- item:
		return nil
	default:
		return &Error{Kind: ErrQueueSend, Err: fmt.Errorf("tx queue full")}
	}
}

// QueueTextForTransmission synthesizes text through the auxiliary TTS
// slot and enqueues the result as a GeneratedVoice item (priority 5).
// Requires an active task. On TTS failure the derived TtsStatusUpdate
// is published before the error is returned.
func (p *Processor) QueueTextForTransmission(ctx context.Context, text string) error {
	task, ok := p.state.ActiveTaskInfo()
	if !ok {
		return &Error{Kind: ErrNoActiveTask, Err: fmt.Errorf("no task is running")}
	}

	p.writeTaskLog(task, elfradio.NewLogEntry(task.ID, elfradio.LogDirectionOutgoing, elfradio.LogContentText, text))

	aux := p.state.AuxClient()
	if aux == nil {
		p.bus.PublishStatus(bus.Service(elfradio.StatusUpdateTts, elfradio.ServiceStatusWarning))
		return &Error{Kind: ErrAuxNotConfigured, Err: fmt.Errorf("no aux service configured for tts")}
	}

	params := DeriveTtsParams(p.state.Config)
	raw, err := aux.TextToSpeech(ctx, text, params)
	if err != nil {
		p.bus.PublishStatus(bus.Service(elfradio.StatusUpdateTts, status.Derive(err, status.KindTTS)))
		return &Error{Kind: ErrAiRequestFailed, Err: err}
	}
	p.bus.PublishStatus(bus.Service(elfradio.StatusUpdateTts, elfradio.ServiceStatusOk))

	samples, wavName, err := p.normalizeTtsAudio(raw, task.TaskDir)
	if err != nil {
		return err
	}

	p.writeTaskLog(task, elfradio.NewLogEntry(task.ID, elfradio.LogDirectionOutgoing, elfradio.LogContentAudio, wavName))

	return p.Enqueue(elfradio.TxItem{
		ID:       uuid.NewString(),
		Kind:     elfradio.TxItemGeneratedVoice,
		Priority: elfradio.GeneratedVoicePriority,
		Audio:    samples,
	})
}

// normalizeTtsAudio turns whatever bytes a TTS provider returned into
// 16 kHz mono f32 samples, saving the processed WAV (and, for raw PCM
// input, a diagnostic .pcm copy) into taskDir. Returns the samples and
// the saved WAV's filename.
func (p *Processor) normalizeTtsAudio(raw []byte, taskDir string) ([]float32, string, error) {
	var (
		samples []float32
		rate    int
	)
	switch {
	case len(raw) >= 12 && string(raw[0:4]) == "RIFF":
		decoded, err := audio.DecodeWAV(raw)
		if err != nil {
			return nil, "", &Error{Kind: ErrAudioDecode, Err: err}
		}
		samples, rate = decoded.Samples, decoded.SampleRate

	case len(raw) >= 4 && string(raw[0:4]) == "OggS":
		decoded, err := audio.DecodeOggOpus(raw)
		if err != nil {
			return nil, "", &Error{Kind: ErrAudioDecode, Err: err}
		}
		samples, rate = decoded.Samples, decoded.SampleRate

	default:
		// Raw 16-bit LE mono 16 kHz PCM, the Aliyun NLS wire format.
		// Keep an undecoded archive copy for diagnostics.
		pcmName := fmt.Sprintf("raw_aliyun_tts_%s.pcm", uuid.NewString())
		if err := audio.SaveRawPCMArchive(taskDir, pcmName, raw); err != nil {
			logger.L().Warn("save raw pcm archive failed", zap.Error(err))
		}
		decoded, err := audio.DecodeRawPCM16(raw)
		if err != nil {
			return nil, "", &Error{Kind: ErrAudio, Err: err}
		}
		samples, rate = decoded, playbackRate
	}

	samples = audio.ResampleTo16kHz(samples, rate)

	wavName := fmt.Sprintf("processed_tts_%s.wav", uuid.NewString())
	wavBytes, err := audio.EncodeWAV16Mono(samples, playbackRate)
	if err != nil {
		return nil, "", &Error{Kind: ErrAudio, Err: err}
	}
	if err := audio.SaveRawPCMArchive(taskDir, wavName, wavBytes); err != nil {
		return nil, "", &Error{Kind: ErrAudio, Err: err}
	}
	return samples, wavName, nil
}

// Run drains the TX queue until shutdown. Per-item failures are logged
// and the loop continues with the next item.
func (p *Processor) Run(ctx context.Context) {
	for {
		select {
		case <-p.state.ShutdownCh:
			return
		case <-ctx.Done():
			return
		case item := <-p.state.TxQueue:
			p.handleItem(ctx, item)
			// Enforced quiet gap between consecutive transmissions so
			// other stations can break in.
			if gap := p.state.Config.Timing.TxIntervalSeconds; gap > 0 && item.Kind == elfradio.TxItemGeneratedVoice {
				p.sleep(time.Duration(gap * float64(time.Second)))
			}
		}
	}
}

func (p *Processor) handleItem(ctx context.Context, item elfradio.TxItem) {
	task, ok := p.state.ActiveTaskInfo()
	if !ok {
		logger.L().Warn("dropping tx item: no active task", zap.String("item_id", item.ID))
		return
	}

	if !p.tryBeginTransmit() {
		logger.L().Warn("dropping tx item: transmission already in progress", zap.String("item_id", item.ID))
		return
	}
	defer p.state.SetTransmitting(false)

	var err error
	switch item.Kind {
	case elfradio.TxItemManualText, elfradio.TxItemAiReply:
		err = p.synthesizePrimary(ctx, item)
	case elfradio.TxItemGeneratedVoice:
		err = p.transmit(task, item)
	case elfradio.TxItemManualVoice:
		err = &Error{Kind: ErrAudio, Err: fmt.Errorf("manual voice items are not supported")}
	default:
		err = &Error{Kind: ErrAudio, Err: fmt.Errorf("unknown tx item kind %q", item.Kind)}
	}
	if err != nil {
		logger.L().Error("tx item failed", zap.String("item_id", item.ID), zap.String("kind", string(item.Kind)), zap.Error(err))
	}
}

func (p *Processor) tryBeginTransmit() bool {
	p.state.TransmittingMu.Lock()
	defer p.state.TransmittingMu.Unlock()
	if p.state.IsTransmitting {
		return false
	}
	p.state.IsTransmitting = true
	return true
}

// synthesizePrimary turns a pre-TTS text item into a GeneratedVoice
// item via the primary client's TTS capability and re-enqueues it with
// the same id and priority.
func (p *Processor) synthesizePrimary(ctx context.Context, item elfradio.TxItem) error {
	primary := p.state.AiClient()
	if primary == nil {
		p.bus.PublishStatus(bus.Service(elfradio.StatusUpdateTts, elfradio.ServiceStatusWarning))
		return &Error{Kind: ErrAiNotConfigured, Err: fmt.Errorf("no primary ai client for tts")}
	}

	raw, err := primary.TextToSpeech(ctx, item.Text, DeriveTtsParams(p.state.Config))
	if err != nil {
		p.bus.PublishStatus(bus.Service(elfradio.StatusUpdateTts, status.Derive(err, status.KindTTS)))
		return &Error{Kind: ErrAiRequestFailed, Err: err}
	}
	p.bus.PublishStatus(bus.Service(elfradio.StatusUpdateTts, elfradio.ServiceStatusOk))

	decoded, err := audio.DecodeWAV(raw)
	if err != nil {
		return &Error{Kind: ErrAudioDecode, Err: err}
	}
	samples := audio.ResampleTo16kHz(decoded.Samples, decoded.SampleRate)

	return p.Enqueue(elfradio.TxItem{
		ID:       item.ID,
		Kind:     elfradio.TxItemGeneratedVoice,
		Priority: item.Priority,
		Audio:    samples,
	})
}

// transmit executes the PTT-gated playback sequence for a
// GeneratedVoice item, or the equivalent timed sleep in simulation
// mode. The finished log line is written regardless of outcome; any
// hardware error is surfaced afterwards.
func (p *Processor) transmit(task elfradio.TaskInfo, item elfradio.TxItem) error {
	p.writeTaskLog(task, elfradio.NewLogEntry(task.ID, elfradio.LogDirectionOutgoing, elfradio.LogContentStatus,
		fmt.Sprintf("Transmission started (Item ID: %s)", item.ID)))

	pre := time.Duration(p.state.Config.Hardware.PttPreDelayMs) * time.Millisecond
	post := time.Duration(p.state.Config.Hardware.PttPostDelayMs) * time.Millisecond
	samples := item.Audio
	if st := p.state.Config.SignalTone; st.Enabled && st.DurationMs > 0 {
		samples = append(signalTone(st.FrequencyHz, st.DurationMs), samples...)
	}
	if maxTx := p.state.Config.Timing.MaxTxSeconds; maxTx > 0 {
		if limit := int(maxTx * playbackRate); len(samples) > limit {
			logger.L().Warn("truncating over-long transmission",
				zap.String("item_id", item.ID),
				zap.Float64("max_tx_seconds", maxTx))
			samples = samples[:limit]
		}
	}
	item.Audio = samples
	playback := time.Duration(float64(len(samples)) / playbackRate * float64(time.Second))
	if playback < minPlaybackEstimate {
		playback = minPlaybackEstimate
	}

	var txErr error
	if task.IsSimulation {
		p.sleep(pre + playback + post)
	} else {
		txErr = p.transmitReal(item, pre, playback, post)
	}

	suffix := ""
	if task.IsSimulation {
		suffix = " (Simulated)"
	}
	p.writeTaskLog(task, elfradio.NewLogEntry(task.ID, elfradio.LogDirectionOutgoing, elfradio.LogContentStatus,
		fmt.Sprintf("Transmission finished (Item ID: %s)%s", item.ID, suffix)))

	return txErr
}

func (p *Processor) transmitReal(item elfradio.TxItem, pre, playback, post time.Duration) error {
	hw := p.state.Config.Hardware
	if hw.PttPort == "" {
		return &Error{Kind: ErrPttPortNotConfigured, Err: fmt.Errorf("hardware.ptt_port is not set")}
	}
	signal, err := hardware.ParsePttSignal(string(hw.PttSignal))
	if err != nil {
		return &Error{Kind: ErrPttSignalParse, Err: err}
	}

	keyer, err := p.openKeyer(hw.PttPort, signal)
	if err != nil {
		return &Error{Kind: ErrPtt, Err: err}
	}
	defer keyer.Close()

	if err := keyer.Key(); err != nil {
		// Deactivation is still attempted so the line is never left
		// half-keyed.
		_ = keyer.Unkey()
		return &Error{Kind: ErrPtt, Err: err}
	}

	p.sleep(pre)

	var sendErr error
	select {
	case p.audioOut <- item.Audio:
	case <-p.state.ShutdownCh:
		sendErr = &Error{Kind: ErrAudioChannelClosed, Err: fmt.Errorf("shutdown while pushing audio")}
	}
	if sendErr == nil {
		p.sleep(playback)
	}

	// The line drops as soon as playback ends; the post-delay is quiet
	// time with PTT already released.
	if err := keyer.Unkey(); err != nil {
		if sendErr == nil {
			sendErr = &Error{Kind: ErrPtt, Err: err}
		}
	}
	p.sleep(post)
	return sendErr
}

// writeTaskLog performs the dual write (events.jsonl then DB, each
// best-effort) and broadcasts the entry to connected clients.
func (p *Processor) writeTaskLog(task elfradio.TaskInfo, entry elfradio.LogEntry) {
	store.WriteLogEntry(p.store, task.TaskDir, entry)
	p.bus.PublishLog(entry)
}

// DeriveTtsParams resolves the (language, voice) pair for the active
// aux provider. For Google the language is the leading two
// hyphen-separated tokens of the configured voice name, validated as a
// BCP 47 tag, falling back to the configured STT language and finally
// "en-US". Aliyun is pinned to voice "Aiyue" / "zh-CN".
func DeriveTtsParams(cfg *config.ConfigSnapshot) elfradio.TtsParams {
	switch cfg.Aux.Provider {
	case config.AuxProviderAliyun:
		return elfradio.TtsParams{VoiceID: "Aiyue", LanguageCode: "zh-CN"}
	case config.AuxProviderGoogle:
		voice := cfg.Aux.Google.TTSVoice
		lang := languageFromVoice(voice)
		if lang == "" {
			lang = cfg.AI.STTLanguage
		}
		if lang == "" {
			lang = "en-US"
		}
		return elfradio.TtsParams{VoiceID: voice, LanguageCode: lang}
	default:
		return elfradio.TtsParams{LanguageCode: "en-US"}
	}
}

// signalTone renders the configured attention tone at the playback
// rate, faded over the first and last 5 ms to avoid key clicks.
func signalTone(freqHz float64, durationMs int) []float32 {
	n := durationMs * playbackRate / 1000
	fade := playbackRate / 200
	out := make([]float32, n)
	for i := range out {
		s := 0.4 * math.Sin(2*math.Pi*freqHz*float64(i)/playbackRate)
		if i < fade {
			s *= float64(i) / float64(fade)
		}
		if n-i < fade {
			s *= float64(n-i) / float64(fade)
		}
		out[i] = float32(s)
	}
	return out
}

// languageFromVoice extracts "en-US" from a Google voice name like
// "en-US-Wavenet-D", returning "" when the leading tokens do not form
// a parseable language tag.
func languageFromVoice(voice string) string {
	parts := strings.Split(voice, "-")
	if len(parts) < 2 {
		return ""
	}
	tag := parts[0] + "-" + parts[1]
	if _, err := language.Parse(tag); err != nil {
		return ""
	}
	return tag
}
