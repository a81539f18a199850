package elfradio

import (
	"context"
	"sync"

	"github.com/VK7KSM/ElfRadio/internal/config"
)

// AiClient is the primary chat/TTS/STT interface backing a task, as
// selected by the active config (OpenAI-compatible, Gemini-via-compat,
// or StepFun for TTS). Implementations live under
// internal/aiclient/provider/*.
type AiClient interface {
	ChatCompletion(ctx context.Context, messages []ChatMessage, params ChatParams) (string, error)
	TextToSpeech(ctx context.Context, text string, params TtsParams) ([]byte, error)
	SpeechToText(ctx context.Context, audio []byte, params SttParams) (string, error)
}

// AuxServiceClient backs the secondary translate/TTS/STT slot (Google,
// Aliyun, or Tencent).
type AuxServiceClient interface {
	Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error)
	TextToSpeech(ctx context.Context, text string, params TtsParams) ([]byte, error)
	SpeechToText(ctx context.Context, audio []byte, params SttParams) (string, error)
}

// ChatMessage is one turn of a chat completion request.
type ChatMessage struct {
	Role    string
	Content string
}

// ChatParams tunes a chat completion call.
type ChatParams struct {
	Model          string
	Temperature    float32
	TopP           float32
	MaxTokens      int
	TimeoutSeconds int
}

// TtsParams tunes a text-to-speech call.
type TtsParams struct {
	VoiceID      string
	LanguageCode string
	Speed        float32
	Volume       float32
	OutputFormat string
}

// SttParams tunes a speech-to-text call.
type SttParams struct {
	Model        string
	LanguageCode string
	SampleRate   int
	AudioFormat  string
}

// AppState is the single shared instance every component reads from
// and writes to. Locking follows one rule throughout: each field (or
// tightly related group of fields) owns exactly one mutex, and no
// goroutine holds more than one of these locks at a time except where
// noted.
type AppState struct {
	Config *config.ConfigSnapshot

	// TaskMu guards Status and Active together: a task transition
	// (Idle -> Running -> Stopping -> Idle) touches both atomically.
	TaskMu sync.Mutex
	Status TaskStatus
	Active *TaskInfo

	// IsTransmitting is a simple boolean latch toggled around PTT
	// keying; it does not need to be held alongside TaskMu.
	TransmittingMu sync.Mutex
	IsTransmitting bool

	// AI/aux client slots are read far more often (every STT/TTS/chat
	// call) than written (only on config reload), so each gets its own
	// RWMutex rather than sharing TaskMu.
	aiClientMu sync.RWMutex
	aiClient   AiClient

	auxClientMu sync.RWMutex
	auxClient   AuxServiceClient

	// TxQueue is the buffered channel (capacity 256) internal/txqueue
	// drains; queue_* operations send into it directly.
	TxQueue chan TxItem

	// Clients is the set of connected websocket fan-out targets,
	// keyed by an opaque connection id.
	ClientsMu sync.RWMutex
	Clients   map[string]chan WebSocketMessage

	// ShutdownCh is closed exactly once, at process shutdown; every
	// cooperative goroutine selects on it alongside its primary input.
	ShutdownCh   chan struct{}
	shutdownOnce sync.Once

	UserUUID string
}

// NewAppState builds an AppState ready for a cold start: no task
// active, no AI clients configured, an open shutdown channel.
func NewAppState(cfg *config.ConfigSnapshot) *AppState {
	return &AppState{
		Config:     cfg,
		Status:     TaskStatusIdle,
		TxQueue:    make(chan TxItem, 256),
		Clients:    make(map[string]chan WebSocketMessage),
		ShutdownCh: make(chan struct{}),
		UserUUID:   cfg.UserUUID,
	}
}

// Shutdown closes ShutdownCh, waking every cooperative goroutine
// selecting on it. Safe to call more than once.
func (s *AppState) Shutdown() {
	s.shutdownOnce.Do(func() {
		close(s.ShutdownCh)
	})
}

// AiClient returns the current primary client, or nil if none is
// configured.
func (s *AppState) AiClient() AiClient {
	s.aiClientMu.RLock()
	defer s.aiClientMu.RUnlock()
	return s.aiClient
}

// SetAiClient replaces the primary client, e.g. after a config reload.
func (s *AppState) SetAiClient(c AiClient) {
	s.aiClientMu.Lock()
	defer s.aiClientMu.Unlock()
	s.aiClient = c
}

// AuxClient returns the current aux client, or nil if none is
// configured.
func (s *AppState) AuxClient() AuxServiceClient {
	s.auxClientMu.RLock()
	defer s.auxClientMu.RUnlock()
	return s.auxClient
}

// SetAuxClient replaces the aux client.
func (s *AppState) SetAuxClient(c AuxServiceClient) {
	s.auxClientMu.Lock()
	defer s.auxClientMu.Unlock()
	s.auxClient = c
}

// ActiveTaskInfo returns a copy of the active task, and whether one is
// running.
func (s *AppState) ActiveTaskInfo() (TaskInfo, bool) {
	s.TaskMu.Lock()
	defer s.TaskMu.Unlock()
	if s.Active == nil {
		return TaskInfo{}, false
	}
	return *s.Active, true
}

// SetActiveTask records info as the running task and marks the status
// Running. Passing nil clears the active task and marks Idle.
func (s *AppState) SetActiveTask(info *TaskInfo) {
	s.TaskMu.Lock()
	defer s.TaskMu.Unlock()
	s.Active = info
	if info == nil {
		s.Status = TaskStatusIdle
	} else {
		s.Status = TaskStatusRunning
	}
}

// TaskStatusNow returns the current task status.
func (s *AppState) TaskStatusNow() TaskStatus {
	s.TaskMu.Lock()
	defer s.TaskMu.Unlock()
	return s.Status
}

// SetTaskStatus updates the status without touching Active; used for
// the Running -> Stopping transition ahead of teardown.
func (s *AppState) SetTaskStatus(status TaskStatus) {
	s.TaskMu.Lock()
	defer s.TaskMu.Unlock()
	s.Status = status
}

// SetTransmitting toggles the PTT latch.
func (s *AppState) SetTransmitting(v bool) {
	s.TransmittingMu.Lock()
	defer s.TransmittingMu.Unlock()
	s.IsTransmitting = v
}

// Transmitting reports the current PTT latch state.
func (s *AppState) Transmitting() bool {
	s.TransmittingMu.Lock()
	defer s.TransmittingMu.Unlock()
	return s.IsTransmitting
}

// AddClient registers a fan-out channel under id.
func (s *AppState) AddClient(id string, ch chan WebSocketMessage) {
	s.ClientsMu.Lock()
	defer s.ClientsMu.Unlock()
	s.Clients[id] = ch
}

// RemoveClient drops a fan-out channel, closing it.
func (s *AppState) RemoveClient(id string) {
	s.ClientsMu.Lock()
	defer s.ClientsMu.Unlock()
	if ch, ok := s.Clients[id]; ok {
		close(ch)
		delete(s.Clients, id)
	}
}

// Broadcast fans msg out to every connected client, dropping it for
// any client whose buffer is full rather than blocking the caller.
func (s *AppState) Broadcast(msg WebSocketMessage) {
	s.ClientsMu.RLock()
	defer s.ClientsMu.RUnlock()
	for _, ch := range s.Clients {
		select {
		case ch <- msg:
		default:
		}
	}
}
