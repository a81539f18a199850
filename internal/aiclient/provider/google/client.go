// Package google implements the auxiliary AuxServiceClient against
// Google Cloud: Translate v2 over plain REST with API-key auth, and
// Cloud Text-to-Speech / Cloud Speech-to-Text via their respective Go
// client libraries.
package google

import (
	"context"
	"time"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	texttospeech "cloud.google.com/go/texttospeech/apiv1"
	"cloud.google.com/go/texttospeech/apiv1/texttospeechpb"
	"github.com/VK7KSM/ElfRadio/internal/elfradio"
	"github.com/go-resty/resty/v2"
	"google.golang.org/api/option"
)

const translateEndpoint = "https://translation.googleapis.com/language/translate/v2"

// Client implements elfradio.AuxServiceClient against Google Cloud.
type Client struct {
	apiKey    string
	http      *resty.Client
	ttsClient *texttospeech.Client
	sttClient *speech.Client
}

// New builds a Client. credentialsFile authenticates the TTS/STT
// client libraries (service account JSON); apiKey authenticates the
// plain REST Translate v2 call as a query parameter.
func New(ctx context.Context, credentialsFile, apiKey string) (*Client, error) {
	if credentialsFile == "" && apiKey == "" {
		return nil, elfradio.NewAiError(elfradio.AiErrConfig, "google aux provider requires credentials_file or api_key", nil)
	}

	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	ttsClient, err := texttospeech.NewClient(ctx, opts...)
	if err != nil {
		return nil, elfradio.NewAiError(elfradio.AiErrClient, "init google texttospeech client", err)
	}
	sttClient, err := speech.NewClient(ctx, opts...)
	if err != nil {
		return nil, elfradio.NewAiError(elfradio.AiErrClient, "init google speech client", err)
	}

	return &Client{
		apiKey:    apiKey,
		http:      resty.New().SetTimeout(30 * time.Second),
		ttsClient: ttsClient,
		sttClient: sttClient,
	}, nil
}

// Translate calls Google Translate v2 via plain REST with the API key
// as a query parameter.
func (c *Client) Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error) {
	if text == "" {
		return "", nil
	}
	if c.apiKey == "" {
		return "", elfradio.NewAiError(elfradio.AiErrConfig, "google translate requires api_key", nil)
	}

	req := c.http.R().SetContext(ctx).SetQueryParams(map[string]string{
		"key":    c.apiKey,
		"q":      text,
		"target": targetLang,
	})
	if sourceLang != "" {
		req.SetQueryParam("source", sourceLang)
	}

	var body struct {
		Data struct {
			Translations []struct {
				TranslatedText string `json:"translatedText"`
			} `json:"translations"`
		} `json:"data"`
	}
	resp, err := req.SetResult(&body).Post(translateEndpoint)
	if err != nil {
		return "", elfradio.NewAiError(elfradio.AiErrRequest, "google translate request failed", err)
	}
	if resp.IsError() {
		return "", elfradio.NewAiApiError(resp.StatusCode(), string(resp.Body()))
	}
	if len(body.Data.Translations) == 0 {
		return "", elfradio.NewAiError(elfradio.AiErrResponseParse, "no translations in response", nil)
	}
	return body.Data.Translations[0].TranslatedText, nil
}

// TextToSpeech synthesizes via Cloud Text-to-Speech. Voice/language
// derivation is owned by internal/txqueue; params arrive already
// resolved here.
func (c *Client) TextToSpeech(ctx context.Context, text string, params elfradio.TtsParams) ([]byte, error) {
	if text == "" {
		return nil, elfradio.NewAiError(elfradio.AiErrInvalidInput, "empty text", nil)
	}
	resp, err := c.ttsClient.SynthesizeSpeech(ctx, &texttospeechpb.SynthesizeSpeechRequest{
		Input: &texttospeechpb.SynthesisInput{InputSource: &texttospeechpb.SynthesisInput_Text{Text: text}},
		Voice: &texttospeechpb.VoiceSelectionParams{
			LanguageCode: params.LanguageCode,
			Name:         params.VoiceID,
		},
		AudioConfig: &texttospeechpb.AudioConfig{
			AudioEncoding: texttospeechpb.AudioEncoding_LINEAR16,
		},
	})
	if err != nil {
		return nil, elfradio.NewAiError(elfradio.AiErrRequest, "google tts request failed", err)
	}
	return resp.AudioContent, nil
}

// SpeechToText transcribes via Cloud Speech-to-Text's synchronous
// Recognize call.
func (c *Client) SpeechToText(ctx context.Context, audio []byte, params elfradio.SttParams) (string, error) {
	if len(audio) == 0 {
		return "", nil
	}
	resp, err := c.sttClient.Recognize(ctx, &speechpb.RecognizeRequest{
		Config: &speechpb.RecognitionConfig{
			Encoding:        speechpb.RecognitionConfig_LINEAR16,
			SampleRateHertz: int32(params.SampleRate),
			LanguageCode:    params.LanguageCode,
		},
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: audio},
		},
	})
	if err != nil {
		return "", elfradio.NewAiError(elfradio.AiErrRequest, "google stt request failed", err)
	}
	if len(resp.Results) == 0 || len(resp.Results[0].Alternatives) == 0 {
		return "", nil
	}
	return resp.Results[0].Alternatives[0].Transcript, nil
}
