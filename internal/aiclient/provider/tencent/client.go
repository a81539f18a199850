// Package tencent implements the auxiliary AuxServiceClient against
// Tencent Cloud's speech SDK, the third selectable aux backend.
// Translate is unsupported; this provider fills the aux TTS/STT half
// of the slot only. Synthesis uses the SDK's listener-driven
// synthesizer and recognition its flash (one-shot) recognizer, which
// fits ElfRadio's already-VAD-segmented audio better than the
// realtime websocket recognizer.
package tencent

import (
	"context"
	"strconv"

	"github.com/VK7KSM/ElfRadio/internal/elfradio"
	"github.com/tencentcloud/tencentcloud-speech-sdk-go/asr"
	"github.com/tencentcloud/tencentcloud-speech-sdk-go/common"
	"github.com/tencentcloud/tencentcloud-speech-sdk-go/tts"
)

const (
	defaultAsrEngine = "16k_zh"
	defaultTtsVoice  = 1005
)

// Client implements elfradio.AuxServiceClient against Tencent Cloud.
type Client struct {
	appID   string
	appID64 int64
	cred    *common.Credential
}

// New builds a Client from the Tencent Cloud API triple.
func New(appID, secretID, secretKey string) (*Client, error) {
	if appID == "" || secretID == "" || secretKey == "" {
		return nil, elfradio.NewAiError(elfradio.AiErrConfig, "tencent aux provider requires app_id/secret_id/secret_key", nil)
	}
	appID64, err := strconv.ParseInt(appID, 10, 64)
	if err != nil {
		return nil, elfradio.NewAiError(elfradio.AiErrConfig, "tencent app_id must be numeric", err)
	}
	return &Client{
		appID:   appID,
		appID64: appID64,
		cred:    common.NewCredential(secretID, secretKey),
	}, nil
}

// Translate is not offered by the Tencent speech SDK; callers get
// NotSupported rather than a silent fallback.
func (c *Client) Translate(context.Context, string, string, string) (string, error) {
	return "", elfradio.NewAiError(elfradio.AiErrNotSupported, "tencent aux provider does not support translate", nil)
}

// ttsCollector accumulates streamed synthesis chunks into one PCM
// buffer; the synthesizer invokes its callbacks sequentially.
type ttsCollector struct {
	data []byte
	err  error
}

func (l *ttsCollector) OnMessage(resp *tts.SpeechSynthesisResponse) {
	l.data = append(l.data, resp.Data...)
}

func (l *ttsCollector) OnComplete(*tts.SpeechSynthesisResponse) {}

func (l *ttsCollector) OnCancel(*tts.SpeechSynthesisResponse) {}

func (l *ttsCollector) OnFail(_ *tts.SpeechSynthesisResponse, err error) {
	l.err = err
}

// TextToSpeech synthesizes via the streaming synthesizer, collecting
// the chunks into raw 16-bit PCM (no WAV container) at 16 kHz mono.
func (c *Client) TextToSpeech(ctx context.Context, text string, params elfradio.TtsParams) ([]byte, error) {
	if text == "" {
		return nil, elfradio.NewAiError(elfradio.AiErrInvalidInput, "empty text", nil)
	}

	collector := &ttsCollector{}
	synthesizer := tts.NewSpeechSynthesizer(c.appID64, c.cred, collector)
	synthesizer.VoiceType = defaultTtsVoice
	synthesizer.SampleRate = 16000
	synthesizer.Codec = "pcm"

	if err := synthesizer.Synthesis(text); err != nil {
		return nil, elfradio.NewAiError(elfradio.AiErrRequest, "tencent tts request failed", err)
	}
	if err := synthesizer.Wait(); err != nil {
		return nil, elfradio.NewAiError(elfradio.AiErrRequest, "tencent tts stream failed", err)
	}
	if collector.err != nil {
		return nil, elfradio.NewAiError(elfradio.AiErrRequest, "tencent tts synthesis failed", collector.err)
	}
	return collector.data, nil
}

// SpeechToText transcribes a short clip via the SDK's flash (one-shot)
// recognizer.
func (c *Client) SpeechToText(ctx context.Context, audioBytes []byte, params elfradio.SttParams) (string, error) {
	if len(audioBytes) == 0 {
		return "", nil
	}
	engine := defaultAsrEngine
	if params.LanguageCode != "" {
		engine = params.LanguageCode
	}

	recognizer := asr.NewFlashRecognizer(c.appID, c.cred)
	req := new(asr.FlashRecognitionRequest)
	req.EngineType = engine
	req.VoiceFormat = "pcm"

	resp, err := recognizer.Recognize(req, audioBytes)
	if err != nil {
		return "", elfradio.NewAiError(elfradio.AiErrRequest, "tencent asr request failed", err)
	}
	if resp == nil || len(resp.FlashResult) == 0 {
		return "", nil
	}
	return resp.FlashResult[0].Text, nil
}
