package apiserver

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/VK7KSM/ElfRadio/internal/audio"
	"github.com/VK7KSM/ElfRadio/internal/bus"
	"github.com/VK7KSM/ElfRadio/internal/config"
	"github.com/VK7KSM/ElfRadio/internal/elfradio"
	"github.com/VK7KSM/ElfRadio/internal/fanout"
	"github.com/VK7KSM/ElfRadio/internal/store"
	"github.com/VK7KSM/ElfRadio/internal/task"
	"github.com/VK7KSM/ElfRadio/internal/txqueue"
	"github.com/stretchr/testify/require"
)

type fakeAux struct {
	ttsResponse  []byte
	ttsErr       error
	translated   string
	translateErr error
}

func (f *fakeAux) Translate(context.Context, string, string, string) (string, error) {
	return f.translated, f.translateErr
}

func (f *fakeAux) TextToSpeech(context.Context, string, elfradio.TtsParams) ([]byte, error) {
	return f.ttsResponse, f.ttsErr
}

func (f *fakeAux) SpeechToText(context.Context, []byte, elfradio.SttParams) (string, error) {
	return "", nil
}

func newTestServer(t *testing.T) (*Server, *elfradio.AppState, *bus.Bus) {
	t.Helper()
	state := elfradio.NewAppState(&config.ConfigSnapshot{
		Aux: config.AuxSettings{
			Provider: config.AuxProviderGoogle,
			Google:   config.GoogleAuxConfig{TTSVoice: "en-US-Wavenet-D"},
		},
	})
	b := bus.New()

	st, err := store.Open("sqlite", "file:"+filepath.Join(t.TempDir(), "test.db")+"?_foreign_keys=on")
	require.NoError(t, err)

	tm := task.NewManager(state, st, b, t.TempDir())
	tx := txqueue.NewProcessor(state, st, b, make(chan []float32, 4))
	f := fanout.New(state, b)
	return New(state, st, b, f, tm, tx), state, b
}

func doJSON(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	s, _, _ := newTestServer(t)
	w := doJSON(t, s, http.MethodGet, "/api/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "Idle")
}

func TestSendText_NoTask_ServiceUnavailable(t *testing.T) {
	s, _, _ := newTestServer(t)

	w := doJSON(t, s, http.MethodPost, "/api/send_text", map[string]string{"text": "hello"})
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	require.Contains(t, w.Body.String(), "error")
}

func TestStartTask_Conflict(t *testing.T) {
	s, _, _ := newTestServer(t)

	w := doJSON(t, s, http.MethodPost, "/api/start_task", map[string]string{"mode": "GeneralCommunication"})
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, s, http.MethodPost, "/api/start_task", map[string]string{"mode": "AirbandListening"})
	require.Equal(t, http.StatusConflict, w.Code)
}

func TestStartTask_UnknownMode(t *testing.T) {
	s, _, _ := newTestServer(t)
	w := doJSON(t, s, http.MethodPost, "/api/start_task", map[string]string{"mode": "Nonsense"})
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStartSendStopExport(t *testing.T) {
	s, state, _ := newTestServer(t)

	wavBytes, err := audio.EncodeWAV16Mono(make([]float32, 1600), 16000)
	require.NoError(t, err)
	state.SetAuxClient(&fakeAux{ttsResponse: wavBytes})

	w := doJSON(t, s, http.MethodPost, "/api/start_task", map[string]string{"mode": "GeneralCommunication"})
	require.Equal(t, http.StatusOK, w.Code)
	var started struct {
		TaskID string `json:"task_id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &started))

	w = doJSON(t, s, http.MethodPost, "/api/send_text", map[string]string{"text": "73"})
	require.Equal(t, http.StatusAccepted, w.Code)

	w = doJSON(t, s, http.MethodPost, "/api/stop_task", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, s, http.MethodGet, "/api/tasks/"+started.TaskID+"/export", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "application/zip", w.Header().Get("Content-Type"))

	zr, err := zip.NewReader(bytes.NewReader(w.Body.Bytes()), int64(w.Body.Len()))
	require.NoError(t, err)

	var sawEvents bool
	for _, file := range zr.File {
		if file.Name != "events.jsonl" {
			continue
		}
		sawEvents = true
		rc, err := file.Open()
		require.NoError(t, err)
		var buf bytes.Buffer
		_, err = buf.ReadFrom(rc)
		require.NoError(t, err)
		rc.Close()

		lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
		require.GreaterOrEqual(t, len(lines), 2)
		for _, line := range lines {
			var entry elfradio.LogEntry
			require.NoError(t, json.Unmarshal([]byte(line), &entry))
		}
	}
	require.True(t, sawEvents, "export archive must contain events.jsonl")
}

func TestStopTask_WhenIdle_Conflict(t *testing.T) {
	s, _, _ := newTestServer(t)
	w := doJSON(t, s, http.MethodPost, "/api/stop_task", nil)
	require.Equal(t, http.StatusConflict, w.Code)
}

func TestTestTranslate_Upstream429(t *testing.T) {
	s, state, b := newTestServer(t)
	state.SetAuxClient(&fakeAux{translateErr: elfradio.NewAiApiError(429, "rate limited")})

	w := doJSON(t, s, http.MethodPost, "/api/test/translate", map[string]string{"text": "hello"})
	require.Equal(t, http.StatusBadGateway, w.Code)

	// The derived Warning is published on the status channel.
	select {
	case msg := <-b.StatusCh:
		require.Equal(t, elfradio.StatusUpdateTranslate, msg.Kind)
		require.Equal(t, elfradio.ServiceStatusWarning, msg.Service)
	default:
		t.Fatal("expected a translate status update")
	}

	// And one Internal/Status entry naming the level and status code.
	select {
	case entry := <-b.LogCh:
		require.Equal(t, elfradio.LogDirectionInternal, entry.Direction)
		require.Equal(t, elfradio.LogContentStatus, entry.ContentType)
		require.Contains(t, entry.Content, "Warning")
		require.Contains(t, entry.Content, "429")
	default:
		t.Fatal("expected a status log entry")
	}
}

func TestTestTranslate_NoClient(t *testing.T) {
	s, _, b := newTestServer(t)

	w := doJSON(t, s, http.MethodPost, "/api/test/translate", nil)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)

	select {
	case msg := <-b.StatusCh:
		require.Equal(t, elfradio.ServiceStatusWarning, msg.Service)
	default:
		t.Fatal("expected a translate status update")
	}
}

func TestGetConfig_Redacted(t *testing.T) {
	s, _, _ := newTestServer(t)

	w := doJSON(t, s, http.MethodGet, "/api/config", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &decoded))
	require.NotContains(t, w.Body.String(), "api_key")
	require.NotContains(t, w.Body.String(), "secret")
}
