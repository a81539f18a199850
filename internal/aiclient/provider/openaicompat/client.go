// Package openaicompat implements the primary AiClient against any
// OpenAI-compatible REST API (chat completions, speech synthesis,
// and Whisper-style transcription). It backs both the
// AiProviderOpenAICompatible and AiProviderGoogleGemini config
// selections, the latter through Gemini's OpenAI-compatibility
// endpoint. No tool-calling loop, no streaming, no chat history —
// each call is a single request/response turn.
package openaicompat

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/VK7KSM/ElfRadio/internal/elfradio"
	"github.com/sashabaranov/go-openai"
)

// Client implements elfradio.AiClient against an OpenAI-compatible
// base URL.
type Client struct {
	client       *openai.Client
	defaultModel string
}

// New builds a Client. baseURL may point at OpenAI itself, any
// OpenAI-compatible gateway, or Gemini's
// generativelanguage.googleapis.com/v1beta/openai/ endpoint.
func New(apiKey, baseURL, defaultModel string) (*Client, error) {
	if apiKey == "" {
		return nil, elfradio.NewAiError(elfradio.AiErrConfig, "api key not configured", nil)
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &Client{client: openai.NewClientWithConfig(cfg), defaultModel: defaultModel}, nil
}

// ChatCompletion sends a single-turn (or pre-built multi-turn)
// completion request and returns the assistant's text.
func (c *Client) ChatCompletion(ctx context.Context, messages []elfradio.ChatMessage, params elfradio.ChatParams) (string, error) {
	model := params.Model
	if model == "" {
		model = c.defaultModel
	}
	req := openai.ChatCompletionRequest{
		Model:       model,
		Messages:    toOpenAIMessages(messages),
		Temperature: params.Temperature,
		TopP:        params.TopP,
	}
	if params.MaxTokens > 0 {
		req.MaxTokens = params.MaxTokens
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", translateErr(err)
	}
	if len(resp.Choices) == 0 {
		return "", elfradio.NewAiError(elfradio.AiErrResponseParse, "no choices in chat completion response", nil)
	}
	return resp.Choices[0].Message.Content, nil
}

// TextToSpeech synthesizes text via the OpenAI-compatible speech
// endpoint and returns the raw (WAV or similar container) bytes.
func (c *Client) TextToSpeech(ctx context.Context, text string, params elfradio.TtsParams) ([]byte, error) {
	if text == "" {
		return nil, elfradio.NewAiError(elfradio.AiErrInvalidInput, "empty text", nil)
	}
	voice := openai.VoiceAlloy
	if params.VoiceID != "" {
		voice = openai.SpeechVoice(params.VoiceID)
	}
	req := openai.CreateSpeechRequest{
		Model:          openai.TTSModel1,
		Input:          text,
		Voice:          voice,
		ResponseFormat: openai.SpeechResponseFormatWav,
	}
	resp, err := c.client.CreateSpeech(ctx, req)
	if err != nil {
		return nil, translateErr(err)
	}
	defer resp.Close()
	data, err := io.ReadAll(resp)
	if err != nil {
		return nil, elfradio.NewAiError(elfradio.AiErrResponseParse, "read speech response", err)
	}
	return data, nil
}

// SpeechToText transcribes audio bytes (expected WAV/LINEAR16) using
// the Whisper-compatible transcription endpoint.
func (c *Client) SpeechToText(ctx context.Context, audio []byte, params elfradio.SttParams) (string, error) {
	if len(audio) == 0 {
		return "", nil
	}
	req := openai.AudioRequest{
		Model:    openai.Whisper1,
		Reader:   bytes.NewReader(audio),
		FilePath: "segment.wav",
		Language: params.LanguageCode,
	}
	resp, err := c.client.CreateTranscription(ctx, req)
	if err != nil {
		return "", translateErr(err)
	}
	return resp.Text, nil
}

func toOpenAIMessages(in []elfradio.ChatMessage) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, len(in))
	for i, m := range in {
		out[i] = openai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
	}
	return out
}

// translateErr maps go-openai's APIError into the shared AiError
// taxonomy, so internal/status.Derive can classify it uniformly
// across every provider adapter.
func translateErr(err error) error {
	var apiErr *openai.APIError
	if asAPIError(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case 401, 403:
			return elfradio.NewAiError(elfradio.AiErrAuthentication, apiErr.Message, err)
		default:
			return elfradio.NewAiApiError(apiErr.HTTPStatusCode, apiErr.Message)
		}
	}
	return elfradio.NewAiError(elfradio.AiErrRequest, fmt.Sprintf("openai-compatible request failed: %v", err), err)
}

func asAPIError(err error, target **openai.APIError) bool {
	if apiErr, ok := err.(*openai.APIError); ok {
		*target = apiErr
		return true
	}
	return false
}
