package txqueue

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/VK7KSM/ElfRadio/internal/audio"
	"github.com/VK7KSM/ElfRadio/internal/bus"
	"github.com/VK7KSM/ElfRadio/internal/config"
	"github.com/VK7KSM/ElfRadio/internal/elfradio"
	"github.com/VK7KSM/ElfRadio/internal/hardware"
)

// eventRecorder captures the ordered key/sleep/push sequence a
// transmission produces, shared between the fake keyer and the
// injected sleep function.
type eventRecorder struct {
	mu     sync.Mutex
	events []string
}

func (r *eventRecorder) add(e string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *eventRecorder) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

type fakeKeyer struct{ rec *eventRecorder }

func (k *fakeKeyer) Key() error   { k.rec.add("key"); return nil }
func (k *fakeKeyer) Unkey() error { k.rec.add("unkey"); return nil }
func (k *fakeKeyer) Close() error { return nil }

type fakeAux struct {
	ttsResponse []byte
	ttsErr      error
}

func (f *fakeAux) Translate(context.Context, string, string, string) (string, error) {
	return "", nil
}

func (f *fakeAux) TextToSpeech(context.Context, string, elfradio.TtsParams) ([]byte, error) {
	return f.ttsResponse, f.ttsErr
}

func (f *fakeAux) SpeechToText(context.Context, []byte, elfradio.SttParams) (string, error) {
	return "", nil
}

func newTestProcessor(t *testing.T, cfg *config.ConfigSnapshot) (*Processor, *elfradio.AppState, *bus.Bus, chan []float32) {
	t.Helper()
	if cfg == nil {
		cfg = &config.ConfigSnapshot{}
	}
	state := elfradio.NewAppState(cfg)
	b := bus.New()
	out := make(chan []float32, 4)
	p := NewProcessor(state, nil, b, out)
	return p, state, b, out
}

func activateTask(t *testing.T, state *elfradio.AppState, mode elfradio.TaskMode) elfradio.TaskInfo {
	t.Helper()
	info := elfradio.TaskInfo{
		ID:           "task-1",
		Name:         "test",
		Mode:         mode,
		StartTime:    time.Now(),
		TaskDir:      t.TempDir(),
		IsSimulation: mode == elfradio.TaskModeSimulatedQsoPractice,
	}
	state.SetActiveTask(&info)
	return info
}

func TestTransmit_RealMode_PttSequence(t *testing.T) {
	cfg := &config.ConfigSnapshot{
		Hardware: config.HardwareSettings{
			PttPort:        "/dev/fake0",
			PttSignal:      config.PttSignalRTS,
			PttPreDelayMs:  100,
			PttPostDelayMs: 50,
		},
	}
	p, state, _, out := newTestProcessor(t, cfg)
	task := activateTask(t, state, elfradio.TaskModeGeneralCommunication)

	rec := &eventRecorder{}
	p.openKeyer = func(port string, signal hardware.PttSignal) (Keyer, error) {
		if port != "/dev/fake0" || signal != hardware.PttSignalRTS {
			t.Fatalf("unexpected keyer open: port=%s signal=%s", port, signal)
		}
		return &fakeKeyer{rec: rec}, nil
	}
	p.sleep = func(d time.Duration) { rec.add("sleep:" + d.String()) }

	item := elfradio.TxItem{ID: "item-1", Kind: elfradio.TxItemGeneratedVoice, Audio: make([]float32, 16000)}
	if err := p.transmit(task, item); err != nil {
		t.Fatalf("transmit failed: %v", err)
	}

	// The audio push lands between the pre-delay and the playback
	// sleep; the buffered channel receives it synchronously.
	select {
	case samples := <-out:
		if len(samples) != 16000 {
			t.Fatalf("pushed %d samples, want 16000", len(samples))
		}
	default:
		t.Fatal("expected audio on the output channel")
	}

	want := []string{"key", "sleep:100ms", "sleep:1s", "unkey", "sleep:50ms"}
	got := rec.all()
	if len(got) != len(want) {
		t.Fatalf("event sequence %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("event[%d] = %q, want %q (full: %v)", i, got[i], want[i], got)
		}
	}

	entries := readEvents(t, task.TaskDir)
	if len(entries) != 2 {
		t.Fatalf("expected started/finished log pair, got %d entries", len(entries))
	}
	if !strings.Contains(entries[0].Content, "Transmission started (Item ID: item-1)") {
		t.Fatalf("unexpected first entry: %q", entries[0].Content)
	}
	if !strings.Contains(entries[1].Content, "Transmission finished (Item ID: item-1)") ||
		strings.Contains(entries[1].Content, "Simulated") {
		t.Fatalf("unexpected second entry: %q", entries[1].Content)
	}
}

func TestTransmit_SimulationMode_NoHardware(t *testing.T) {
	cfg := &config.ConfigSnapshot{
		Hardware: config.HardwareSettings{
			PttPort:        "/dev/fake0",
			PttSignal:      config.PttSignalRTS,
			PttPreDelayMs:  100,
			PttPostDelayMs: 50,
		},
	}
	p, state, _, out := newTestProcessor(t, cfg)
	task := activateTask(t, state, elfradio.TaskModeSimulatedQsoPractice)

	p.openKeyer = func(string, hardware.PttSignal) (Keyer, error) {
		t.Fatal("simulation mode must not open the ptt port")
		return nil, nil
	}
	var slept time.Duration
	p.sleep = func(d time.Duration) { slept += d }

	item := elfradio.TxItem{ID: "item-2", Kind: elfradio.TxItemGeneratedVoice, Audio: make([]float32, 16000)}
	if err := p.transmit(task, item); err != nil {
		t.Fatalf("transmit failed: %v", err)
	}

	// pre (100ms) + playback (1s) + post (50ms)
	if want := 1150 * time.Millisecond; slept != want {
		t.Fatalf("slept %v, want %v", slept, want)
	}
	select {
	case <-out:
		t.Fatal("simulation mode must not push audio to the output channel")
	default:
	}

	entries := readEvents(t, task.TaskDir)
	if len(entries) != 2 || !strings.Contains(entries[1].Content, "(Simulated)") {
		t.Fatalf("expected a (Simulated) finished entry, got %+v", entries)
	}
}

func TestTransmit_RealMode_MissingPort(t *testing.T) {
	p, state, _, _ := newTestProcessor(t, &config.ConfigSnapshot{})
	task := activateTask(t, state, elfradio.TaskModeGeneralCommunication)
	p.sleep = func(time.Duration) {}

	err := p.transmit(task, elfradio.TxItem{ID: "item-3", Kind: elfradio.TxItemGeneratedVoice})
	var txErr *Error
	if !asTxError(err, &txErr) || txErr.Kind != ErrPttPortNotConfigured {
		t.Fatalf("expected PttPortNotConfigured, got %v", err)
	}

	// The finished entry is written even when keying failed.
	entries := readEvents(t, task.TaskDir)
	if len(entries) != 2 {
		t.Fatalf("expected started/finished pair despite error, got %d entries", len(entries))
	}
}

func TestQueueTextForTransmission_HappyPath(t *testing.T) {
	cfg := &config.ConfigSnapshot{
		Aux: config.AuxSettings{
			Provider: config.AuxProviderGoogle,
			Google:   config.GoogleAuxConfig{TTSVoice: "en-US-Wavenet-D"},
		},
	}
	p, state, b, _ := newTestProcessor(t, cfg)
	task := activateTask(t, state, elfradio.TaskModeSimulatedQsoPractice)

	wavBytes, err := audio.EncodeWAV16Mono(make([]float32, 1600), 16000)
	if err != nil {
		t.Fatalf("build test wav: %v", err)
	}
	state.SetAuxClient(&fakeAux{ttsResponse: wavBytes})

	if err := p.QueueTextForTransmission(context.Background(), "hello"); err != nil {
		t.Fatalf("QueueTextForTransmission failed: %v", err)
	}

	// Outgoing/Text then Outgoing/Audio in insertion order.
	entries := readEvents(t, task.TaskDir)
	if len(entries) != 2 {
		t.Fatalf("expected 2 log entries, got %d", len(entries))
	}
	if entries[0].ContentType != elfradio.LogContentText || entries[0].Content != "hello" {
		t.Fatalf("unexpected first entry: %+v", entries[0])
	}
	if entries[1].ContentType != elfradio.LogContentAudio || !strings.HasPrefix(entries[1].Content, "processed_tts_") {
		t.Fatalf("unexpected second entry: %+v", entries[1])
	}

	// The processed WAV exists in task_dir.
	if _, err := os.Stat(filepath.Join(task.TaskDir, entries[1].Content)); err != nil {
		t.Fatalf("processed wav missing: %v", err)
	}

	// A GeneratedVoice item with priority 5 was enqueued.
	select {
	case item := <-state.TxQueue:
		if item.Kind != elfradio.TxItemGeneratedVoice || item.Priority != elfradio.GeneratedVoicePriority {
			t.Fatalf("unexpected enqueued item: %+v", item)
		}
		if len(item.Audio) == 0 {
			t.Fatal("enqueued item carries no audio")
		}
	default:
		t.Fatal("expected an item on the tx queue")
	}

	// TtsStatusUpdate(Ok) was published.
	select {
	case msg := <-b.StatusCh:
		if msg.Kind != elfradio.StatusUpdateTts || msg.Service != elfradio.ServiceStatusOk {
			t.Fatalf("unexpected status update: %+v", msg)
		}
	default:
		t.Fatal("expected a tts status update on the bus")
	}
}

func TestQueueTextForTransmission_NoTask(t *testing.T) {
	p, _, _, _ := newTestProcessor(t, nil)

	err := p.QueueTextForTransmission(context.Background(), "hello")
	var txErr *Error
	if !asTxError(err, &txErr) || txErr.Kind != ErrNoActiveTask {
		t.Fatalf("expected NoActiveTask, got %v", err)
	}
}

func TestQueueTextForTransmission_TtsFailure(t *testing.T) {
	cfg := &config.ConfigSnapshot{Aux: config.AuxSettings{Provider: config.AuxProviderGoogle}}
	p, state, b, _ := newTestProcessor(t, cfg)
	activateTask(t, state, elfradio.TaskModeSimulatedQsoPractice)
	state.SetAuxClient(&fakeAux{ttsErr: elfradio.NewAiApiError(429, "rate limited")})

	err := p.QueueTextForTransmission(context.Background(), "hello")
	var txErr *Error
	if !asTxError(err, &txErr) || txErr.Kind != ErrAiRequestFailed {
		t.Fatalf("expected AiRequestFailed, got %v", err)
	}

	select {
	case msg := <-b.StatusCh:
		if msg.Kind != elfradio.StatusUpdateTts || msg.Service != elfradio.ServiceStatusWarning {
			t.Fatalf("expected TtsStatusUpdate(Warning) for a 429, got %+v", msg)
		}
	default:
		t.Fatal("expected a status update on the bus")
	}
}

func TestDeriveTtsParams(t *testing.T) {
	cases := []struct {
		name      string
		cfg       config.ConfigSnapshot
		wantLang  string
		wantVoice string
	}{
		{
			name: "google voice prefix",
			cfg: config.ConfigSnapshot{Aux: config.AuxSettings{
				Provider: config.AuxProviderGoogle,
				Google:   config.GoogleAuxConfig{TTSVoice: "en-US-Wavenet-D"},
			}},
			wantLang:  "en-US",
			wantVoice: "en-US-Wavenet-D",
		},
		{
			name: "google fallback to stt language",
			cfg: config.ConfigSnapshot{
				AI:  config.AiSettings{STTLanguage: "de-DE"},
				Aux: config.AuxSettings{Provider: config.AuxProviderGoogle},
			},
			wantLang: "de-DE",
		},
		{
			name:      "aliyun pinned",
			cfg:       config.ConfigSnapshot{Aux: config.AuxSettings{Provider: config.AuxProviderAliyun}},
			wantLang:  "zh-CN",
			wantVoice: "Aiyue",
		},
		{
			name:     "unspecified provider",
			cfg:      config.ConfigSnapshot{},
			wantLang: "en-US",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := DeriveTtsParams(&tc.cfg)
			if got.LanguageCode != tc.wantLang || got.VoiceID != tc.wantVoice {
				t.Fatalf("got (%q, %q), want (%q, %q)", got.LanguageCode, got.VoiceID, tc.wantLang, tc.wantVoice)
			}
		})
	}
}

func TestSortTxItems_PriorityOrder(t *testing.T) {
	items := []elfradio.TxItem{
		{ID: "c", Priority: 9},
		{ID: "a", Priority: 1},
		{ID: "b", Priority: 5},
		{ID: "a2", Priority: 1},
	}
	elfradio.SortTxItems(items)

	wantIDs := []string{"a", "a2", "b", "c"}
	for i, want := range wantIDs {
		if items[i].ID != want {
			t.Fatalf("items[%d].ID = %s, want %s", i, items[i].ID, want)
		}
	}
}

func readEvents(t *testing.T, taskDir string) []elfradio.LogEntry {
	t.Helper()
	f, err := os.Open(filepath.Join(taskDir, "events.jsonl"))
	if err != nil {
		t.Fatalf("open events.jsonl: %v", err)
	}
	defer f.Close()

	var entries []elfradio.LogEntry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var e elfradio.LogEntry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			t.Fatalf("parse log line: %v", err)
		}
		entries = append(entries, e)
	}
	return entries
}

func asTxError(err error, target **Error) bool {
	if err == nil {
		return false
	}
	if e, ok := err.(*Error); ok {
		*target = e
		return true
	}
	return false
}
