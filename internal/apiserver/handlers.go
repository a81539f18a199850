package apiserver

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/VK7KSM/ElfRadio/internal/bus"
	"github.com/VK7KSM/ElfRadio/internal/config"
	"github.com/VK7KSM/ElfRadio/internal/elfradio"
	"github.com/VK7KSM/ElfRadio/internal/status"
	"github.com/VK7KSM/ElfRadio/internal/task"
	"github.com/VK7KSM/ElfRadio/internal/txqueue"
	"github.com/gin-gonic/gin"
)

type startTaskRequest struct {
	Mode elfradio.TaskMode `json:"mode" binding:"required"`
}

func (s *Server) startTask(c *gin.Context) {
	var req startTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "mode is required"})
		return
	}
	switch req.Mode {
	case elfradio.TaskModeGeneralCommunication, elfradio.TaskModeAirbandListening,
		elfradio.TaskModeSatelliteCommunication, elfradio.TaskModeEmergencyCommunication,
		elfradio.TaskModeMeshtasticGateway, elfradio.TaskModeSimulatedQsoPractice:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unknown task mode %q", req.Mode)})
		return
	}

	info, err := s.tasks.Start(req.Mode)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"task_id": info.ID, "task_dir": info.TaskDir, "name": info.Name})
}

func (s *Server) stopTask(c *gin.Context) {
	if err := s.tasks.Stop(); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "stopped"})
}

type sendTextRequest struct {
	Text string `json:"text" binding:"required"`
}

func (s *Server) sendText(c *gin.Context) {
	var req sendTextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "text is required"})
		return
	}
	if err := s.tx.QueueTextForTransmission(c.Request.Context(), req.Text); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "queued"})
}

func (s *Server) getConfig(c *gin.Context) {
	c.JSON(http.StatusOK, s.state.Config.Redacted())
}

func (s *Server) updateConfig(c *gin.Context) {
	var values map[string]any
	if err := c.ShouldBindJSON(&values); err != nil || len(values) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "expected a non-empty object of config values"})
		return
	}
	if err := config.SaveUserValues(s.state.Config.UserConfigPath(), values); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "saved", "note": "restart or reload to apply"})
}

type testRequest struct {
	Text string `json:"text"`
}

// The /api/test/* handlers perform a one-shot call on the relevant
// slot and publish the same derived status the production paths do:
// they exist to drive the status channel, not to bypass it.

func (s *Server) testLLM(c *gin.Context) {
	var req testRequest
	_ = c.ShouldBindJSON(&req)
	if req.Text == "" {
		req.Text = "ElfRadio connectivity test. Reply with a short acknowledgement."
	}

	client := s.state.AiClient()
	if client == nil {
		s.publishTestOutcome(status.KindLLM, elfradio.NewAiError(elfradio.AiErrProviderNotSpecified, "no primary ai client", nil))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no primary AI client configured"})
		return
	}

	reply, err := client.ChatCompletion(c.Request.Context(), []elfradio.ChatMessage{
		{Role: "user", Content: req.Text},
	}, elfradio.ChatParams{})
	s.publishTestOutcome(status.KindLLM, err)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reply": reply})
}

func (s *Server) testTTS(c *gin.Context) {
	var req testRequest
	_ = c.ShouldBindJSON(&req)
	if req.Text == "" {
		req.Text = "ElfRadio test transmission."
	}

	client := s.state.AuxClient()
	if client == nil {
		s.publishTestOutcome(status.KindTTS, elfradio.NewAiError(elfradio.AiErrProviderNotSpecified, "no aux client", nil))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no aux service configured"})
		return
	}

	audio, err := client.TextToSpeech(c.Request.Context(), req.Text, txqueue.DeriveTtsParams(s.state.Config))
	s.publishTestOutcome(status.KindTTS, err)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"audio_bytes": len(audio)})
}

func (s *Server) testSTT(c *gin.Context) {
	client := s.state.AuxClient()
	if client == nil {
		s.publishTestOutcome(status.KindSTT, elfradio.NewAiError(elfradio.AiErrProviderNotSpecified, "no aux client", nil))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no aux service configured"})
		return
	}

	// One second of silence: upstreams return an empty transcript, not
	// an error, which still exercises auth and transport.
	silence := make([]byte, 32000)
	transcript, err := client.SpeechToText(c.Request.Context(), silence, elfradio.SttParams{
		LanguageCode: s.state.Config.AI.STTLanguage,
		SampleRate:   16000,
		AudioFormat:  "LINEAR16",
	})
	s.publishTestOutcome(status.KindSTT, err)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transcript": transcript})
}

func (s *Server) testTranslate(c *gin.Context) {
	var req testRequest
	_ = c.ShouldBindJSON(&req)
	if req.Text == "" {
		req.Text = "Hello from ElfRadio."
	}

	client := s.state.AuxClient()
	if client == nil {
		s.publishTestOutcome(status.KindTranslate, elfradio.NewAiError(elfradio.AiErrProviderNotSpecified, "no aux client", nil))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no aux service configured"})
		return
	}

	translated, err := client.Translate(c.Request.Context(), req.Text, "", "zh-CN")
	s.publishTestOutcome(status.KindTranslate, err)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"translated": translated})
}

// publishTestOutcome emits the derived status for a test call, and on
// failure also writes an Internal/Status log entry naming the derived
// level and the upstream HTTP status when one exists.
func (s *Server) publishTestOutcome(kind status.ServiceKind, err error) {
	derived := status.Derive(err, kind)
	s.bus.PublishStatus(bus.Service(status.UpdateKindFor(kind), derived))
	if err == nil {
		return
	}

	content := fmt.Sprintf("%s service status: %s", kind, derived)
	var aiErr *elfradio.AiError
	if errors.As(err, &aiErr) && aiErr.StatusCode != 0 {
		content = fmt.Sprintf("%s service status: %s (HTTP %d)", kind, derived, aiErr.StatusCode)
	}
	s.bus.PublishLog(elfradio.NewLogEntry("", elfradio.LogDirectionInternal, elfradio.LogContentStatus, content))
}

// writeError maps internal error taxonomies onto the compact HTTP
// status + {"error": ...} body contract: 401 authentication, 502
// upstream, 503 provider-not-configured / no-task, 400 invalid input,
// 409 conflicts.
func (s *Server) writeError(c *gin.Context, err error) {
	var (
		taskErr *task.Error
		txErr   *txqueue.Error
		aiErr   *elfradio.AiError
	)
	switch {
	case errors.As(err, &taskErr):
		switch taskErr.Kind {
		case task.ErrAlreadyRunning, task.ErrNotRunning:
			c.JSON(http.StatusConflict, gin.H{"error": taskErr.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": taskErr.Error()})
		}

	case errors.As(err, &txErr):
		switch txErr.Kind {
		case txqueue.ErrNoActiveTask, txqueue.ErrAiNotConfigured, txqueue.ErrAuxNotConfigured:
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": txErr.Error()})
		case txqueue.ErrAiRequestFailed:
			if errors.As(txErr.Err, &aiErr) {
				s.writeAiError(c, aiErr)
				return
			}
			c.JSON(http.StatusBadGateway, gin.H{"error": txErr.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": txErr.Error()})
		}

	case errors.As(err, &aiErr):
		s.writeAiError(c, aiErr)

	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func (s *Server) writeAiError(c *gin.Context, aiErr *elfradio.AiError) {
	switch aiErr.Kind {
	case elfradio.AiErrAuthentication:
		c.JSON(http.StatusUnauthorized, gin.H{"error": aiErr.Error()})
	case elfradio.AiErrApi, elfradio.AiErrRequest, elfradio.AiErrResponseParse:
		c.JSON(http.StatusBadGateway, gin.H{"error": aiErr.Error()})
	case elfradio.AiErrProviderNotSpecified, elfradio.AiErrConfig:
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": aiErr.Error()})
	case elfradio.AiErrInvalidInput:
		c.JSON(http.StatusBadRequest, gin.H{"error": aiErr.Error()})
	case elfradio.AiErrNotSupported:
		c.JSON(http.StatusNotImplemented, gin.H{"error": aiErr.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": aiErr.Error()})
	}
}
