// Package elfradio holds the domain types shared across every
// component: task lifecycle, the transmit queue, log entries, and
// the websocket status messages pushed to connected frontends.
package elfradio

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/google/uuid"
)

// TaskStatus is the lifecycle state of the single active task.
type TaskStatus string

const (
	TaskStatusIdle     TaskStatus = "Idle"
	TaskStatusRunning  TaskStatus = "Running"
	TaskStatusStopping TaskStatus = "Stopping"
)

// TaskMode selects the operating profile for a task: which AI slots
// get exercised and how incoming audio is interpreted.
type TaskMode string

const (
	TaskModeGeneralCommunication   TaskMode = "GeneralCommunication"
	TaskModeAirbandListening       TaskMode = "AirbandListening"
	TaskModeSatelliteCommunication TaskMode = "SatelliteCommunication"
	TaskModeEmergencyCommunication TaskMode = "EmergencyCommunication"
	TaskModeMeshtasticGateway      TaskMode = "MeshtasticGateway"
	TaskModeSimulatedQsoPractice   TaskMode = "SimulatedQsoPractice"
)

// TaskInfo describes the currently running task.
type TaskInfo struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Mode         TaskMode  `json:"mode"`
	StartTime    time.Time `json:"start_time"`
	TaskDir      string    `json:"task_dir"`
	IsSimulation bool      `json:"is_simulation"`
}

// TxItemKind discriminates the TxItem sum type.
type TxItemKind string

const (
	TxItemManualText     TxItemKind = "ManualText"
	TxItemManualVoice    TxItemKind = "ManualVoice"
	TxItemAiReply        TxItemKind = "AiReply"
	TxItemGeneratedVoice TxItemKind = "GeneratedVoice"
)

// TxItem is a unit of work queued for transmission. Priority is
// ascending (SortTxItems puts lower values first); the TX queue itself
// is FIFO and does not reorder items by priority.
// Every item carries a unique ID so the transmission started/finished
// log pair can be correlated back to the originating request. Audio is
// populated only for GeneratedVoice items (16 kHz mono f32, ready to
// key up); AudioPath only for ManualVoice.
type TxItem struct {
	ID        string     `json:"id"`
	Kind      TxItemKind `json:"kind"`
	Priority  int        `json:"priority"`
	Text      string     `json:"text,omitempty"`
	AudioPath string     `json:"audio_path,omitempty"`
	Audio     []float32  `json:"-"`
	QueuedAt  time.Time  `json:"queued_at"`
}

// GeneratedVoicePriority is the fixed priority assigned to voice
// synthesized from a queued text item.
const GeneratedVoicePriority = 5

// SortTxItems orders items by ascending priority, keeping arrival
// order within a priority level. The TX queue itself is FIFO and does
// not call it.
func SortTxItems(items []TxItem) {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Priority < items[j].Priority
	})
}

// LogDirection is the direction of a LogEntry relative to the radio.
type LogDirection string

const (
	LogDirectionIncoming LogDirection = "Incoming"
	LogDirectionOutgoing LogDirection = "Outgoing"
	LogDirectionInternal LogDirection = "Internal"
)

// LogContentType classifies what LogEntry.Content holds.
type LogContentType string

const (
	LogContentText   LogContentType = "Text"
	LogContentAudio  LogContentType = "Audio"
	LogContentStatus LogContentType = "Status"
)

// LogEntry is one line of a task's communication log, mirrored to
// both the relational store and the task's events.jsonl file.
type LogEntry struct {
	ID          string         `json:"id"`
	TaskID      string         `json:"task_id"`
	Timestamp   time.Time      `json:"timestamp"`
	Direction   LogDirection   `json:"direction"`
	ContentType LogContentType `json:"content_type"`
	Content     string         `json:"content"`
}

// NewLogEntry stamps a LogEntry with a fresh id and the current time.
func NewLogEntry(taskID string, direction LogDirection, contentType LogContentType, content string) LogEntry {
	return LogEntry{
		ID:          uuid.NewString(),
		TaskID:      taskID,
		Timestamp:   time.Now(),
		Direction:   direction,
		ContentType: contentType,
		Content:     content,
	}
}

// ServiceStatus is the health of one backing service (an AI slot, the
// SDR, the radio link, ...).
type ServiceStatus string

const (
	ServiceStatusOk      ServiceStatus = "Ok"
	ServiceStatusWarning ServiceStatus = "Warning"
	ServiceStatusError   ServiceStatus = "Error"
)

// ConnectionStatus is the reachability of a network-facing dependency.
type ConnectionStatus string

const (
	ConnectionConnected    ConnectionStatus = "Connected"
	ConnectionDisconnected ConnectionStatus = "Disconnected"
	ConnectionChecking     ConnectionStatus = "Checking"
	ConnectionError        ConnectionStatus = "Error"
	ConnectionUnknown      ConnectionStatus = "Unknown"
)

// StatusUpdateKind discriminates the StatusUpdate sum type pushed to
// clients over the websocket fan-out.
type StatusUpdateKind string

const (
	StatusUpdateLog                 StatusUpdateKind = "Log"
	StatusUpdateLlm                 StatusUpdateKind = "LlmStatusUpdate"
	StatusUpdateStt                 StatusUpdateKind = "SttStatusUpdate"
	StatusUpdateTts                 StatusUpdateKind = "TtsStatusUpdate"
	StatusUpdateTranslate           StatusUpdateKind = "TranslateStatusUpdate"
	StatusUpdateSdr                 StatusUpdateKind = "SdrStatusUpdate"
	StatusUpdateRadio               StatusUpdateKind = "RadioStatusUpdate"
	StatusUpdateNetworkConnectivity StatusUpdateKind = "NetworkConnectivityUpdate"
	StatusUpdateUserUuid            StatusUpdateKind = "UserUuidUpdate"
)

// WebSocketMessage is the envelope fanned out to every connected
// client. Exactly one of the optional fields is populated, matching
// Kind.
type WebSocketMessage struct {
	Kind             StatusUpdateKind
	Log              *LogEntry
	Service          ServiceStatus
	ConnectionStatus ConnectionStatus
	UserUUID         string
}

// MarshalJSON emits the wire frame `{"type": <TAG>, "payload": ...}`:
// the LogEntry object for Log, the bare status string for service and
// connectivity updates, and the uuid string (or null when unset) for
// UserUuidUpdate.
func (m WebSocketMessage) MarshalJSON() ([]byte, error) {
	var payload any
	switch m.Kind {
	case StatusUpdateLog:
		payload = m.Log
	case StatusUpdateLlm, StatusUpdateStt, StatusUpdateTts, StatusUpdateTranslate:
		payload = m.Service
	case StatusUpdateSdr, StatusUpdateRadio, StatusUpdateNetworkConnectivity:
		payload = m.ConnectionStatus
	case StatusUpdateUserUuid:
		if m.UserUUID != "" {
			payload = m.UserUUID
		}
	}
	return json.Marshal(struct {
		Type    StatusUpdateKind `json:"type"`
		Payload any              `json:"payload"`
	}{Type: m.Kind, Payload: payload})
}

// AiErrorKind is the taxonomy of failures an AI/aux client call can
// produce; internal/status maps each kind to a ServiceStatus.
type AiErrorKind string

const (
	AiErrAuthentication       AiErrorKind = "AuthenticationError"
	AiErrApi                  AiErrorKind = "ApiError"
	AiErrRequest              AiErrorKind = "RequestError"
	AiErrResponseParse        AiErrorKind = "ResponseParseError"
	AiErrConfig               AiErrorKind = "Config"
	AiErrClient               AiErrorKind = "ClientError"
	AiErrNotSupported         AiErrorKind = "NotSupported"
	AiErrInvalidInput         AiErrorKind = "InvalidInput"
	AiErrProviderNotSpecified AiErrorKind = "ProviderNotSpecified"
	AiErrAudioDecoding        AiErrorKind = "AudioDecodingError"
)

// AiError is the error type returned by every aiclient provider.
type AiError struct {
	Kind       AiErrorKind
	StatusCode int
	Message    string
	Err        error
}

func (e *AiError) Error() string {
	if e.StatusCode != 0 {
		return string(e.Kind) + ": " + e.Message
	}
	if e.Err != nil {
		return string(e.Kind) + ": " + e.Message + ": " + e.Err.Error()
	}
	return string(e.Kind) + ": " + e.Message
}

func (e *AiError) Unwrap() error { return e.Err }

// NewAiError builds an AiError of the given kind.
func NewAiError(kind AiErrorKind, message string, err error) *AiError {
	return &AiError{Kind: kind, Message: message, Err: err}
}

// NewAiApiError builds an ApiError-kind AiError carrying the upstream
// HTTP status code.
func NewAiApiError(statusCode int, message string) *AiError {
	return &AiError{Kind: AiErrApi, StatusCode: statusCode, Message: message}
}
