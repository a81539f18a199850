// Package stepfun implements the TTS-only primary AiClient backing
// the AiProviderStepFunTTS selection: a plain REST call to
// api.stepfun.com/v1/audio/speech. Chat completion and transcription
// are unsupported by this provider and return NotSupported.
package stepfun

import (
	"context"
	"time"

	"github.com/VK7KSM/ElfRadio/internal/elfradio"
	"github.com/go-resty/resty/v2"
)

const speechEndpoint = "https://api.stepfun.com/v1/audio/speech"

// Client implements elfradio.AiClient, supporting only TextToSpeech.
type Client struct {
	http   *resty.Client
	apiKey string
	voice  string
}

// New builds a Client. Returns a Config-kind AiError if apiKey is
// empty so the factory can demote it to a warning.
func New(apiKey, voice string) (*Client, error) {
	if apiKey == "" {
		return nil, elfradio.NewAiError(elfradio.AiErrConfig, "stepfun api key not configured", nil)
	}
	if voice == "" {
		voice = "cixingnansheng"
	}
	return &Client{
		http:   resty.New().SetTimeout(30 * time.Second),
		apiKey: apiKey,
		voice:  voice,
	}, nil
}

// ChatCompletion is unsupported by the StepFun TTS-only adapter.
func (c *Client) ChatCompletion(context.Context, []elfradio.ChatMessage, elfradio.ChatParams) (string, error) {
	return "", elfradio.NewAiError(elfradio.AiErrNotSupported, "stepfun provider is tts-only", nil)
}

// TextToSpeech calls StepFun's audio/speech endpoint and returns the
// raw audio bytes (a WAV container).
func (c *Client) TextToSpeech(ctx context.Context, text string, params elfradio.TtsParams) ([]byte, error) {
	if text == "" {
		return nil, elfradio.NewAiError(elfradio.AiErrInvalidInput, "empty text", nil)
	}
	voice := c.voice
	if params.VoiceID != "" {
		voice = params.VoiceID
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(c.apiKey).
		SetBody(map[string]any{
			"model":           "step-tts-mini",
			"input":           text,
			"voice":           voice,
			"response_format": "wav",
		}).
		Post(speechEndpoint)
	if err != nil {
		return nil, elfradio.NewAiError(elfradio.AiErrRequest, "stepfun tts request failed", err)
	}
	if resp.IsError() {
		return nil, elfradio.NewAiApiError(resp.StatusCode(), string(resp.Body()))
	}
	return resp.Body(), nil
}

// SpeechToText is unsupported by the StepFun TTS-only adapter.
func (c *Client) SpeechToText(context.Context, []byte, elfradio.SttParams) (string, error) {
	return "", elfradio.NewAiError(elfradio.AiErrNotSupported, "stepfun provider is tts-only", nil)
}
