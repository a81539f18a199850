// Package aliyun implements the auxiliary AuxServiceClient backing
// the AuxProviderAliyun selection: RPC-signed requests to
// mt.aliyuncs.com for translate through the Alibaba Cloud OpenAPI
// client, and NLS (nls-gateway-ap-southeast-1.aliyuncs.com) for
// TTS/STT behind a cached AccessToken obtained via CreateToken. The
// token mutex is held across the refresh call so concurrent callers
// cannot stampede the token service. The NLS meta endpoint predates
// the OpenAPI gateway, so its CreateToken call keeps the explicit
// HMAC-SHA1 query signature.
package aliyun

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/VK7KSM/ElfRadio/internal/audio"
	"github.com/VK7KSM/ElfRadio/internal/elfradio"
	openapi "github.com/alibabacloud-go/darabonba-openapi/v2/client"
	teaUtil "github.com/alibabacloud-go/tea-utils/v2/service"
	"github.com/alibabacloud-go/tea/tea"
	credential "github.com/aliyun/credentials-go/credentials"
	"github.com/go-resty/resty/v2"
)

const (
	nlsEndpoint = "https://nls-gateway-ap-southeast-1.aliyuncs.com"
	ttsVoice    = "Aiyue"
)

// Client implements elfradio.AuxServiceClient against Aliyun.
type Client struct {
	mt          *openapi.Client
	accessKeyID string
	secret      string
	appKey      string
	http        *resty.Client

	tokenMu     sync.Mutex
	token       string
	tokenExpiry time.Time
}

// New builds a Client from the access key pair configured for the
// Aliyun aux provider.
func New(accessKeyID, accessKeySecret, appKey string) (*Client, error) {
	if accessKeyID == "" || accessKeySecret == "" {
		return nil, elfradio.NewAiError(elfradio.AiErrConfig, "aliyun aux provider requires access_key_id/access_key_secret", nil)
	}
	cred, err := credential.NewCredential(&credential.Config{
		Type:            tea.String("access_key"),
		AccessKeyId:     &accessKeyID,
		AccessKeySecret: &accessKeySecret,
	})
	if err != nil {
		return nil, elfradio.NewAiError(elfradio.AiErrClient, "init aliyun credential", err)
	}
	mt, err := openapi.NewClient(&openapi.Config{
		Credential: cred,
		Endpoint:   tea.String("mt.aliyuncs.com"),
	})
	if err != nil {
		return nil, elfradio.NewAiError(elfradio.AiErrClient, "init aliyun mt client", err)
	}
	return &Client{
		mt:          mt,
		accessKeyID: accessKeyID,
		secret:      accessKeySecret,
		appKey:      appKey,
		http:        resty.New().SetTimeout(30 * time.Second),
	}, nil
}

// Translate sends a TranslateGeneral RPC to mt.aliyuncs.com through
// the OpenAPI client, which handles the request signing.
func (c *Client) Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error) {
	if text == "" {
		return "", nil
	}
	if sourceLang == "" {
		sourceLang = "auto"
	}

	params := &openapi.Params{
		Action:      tea.String("TranslateGeneral"),
		Version:     tea.String("2018-10-12"),
		Protocol:    tea.String("HTTPS"),
		Pathname:    tea.String("/"),
		Method:      tea.String("POST"),
		AuthType:    tea.String("AK"),
		Style:       tea.String("RPC"),
		ReqBodyType: tea.String("formData"),
		BodyType:    tea.String("json"),
	}
	request := &openapi.OpenApiRequest{Body: map[string]interface{}{
		"FormatType":     "text",
		"SourceLanguage": sourceLang,
		"TargetLanguage": targetLang,
		"SourceText":     text,
		"Scene":          "general",
	}}

	resp, err := c.mt.CallApi(params, request, &teaUtil.RuntimeOptions{})
	if err != nil {
		return "", translateSDKErr(err)
	}

	body, _ := resp["body"].(map[string]interface{})
	data, _ := body["Data"].(map[string]interface{})
	translated, _ := data["Translated"].(string)
	if translated == "" {
		return "", elfradio.NewAiError(elfradio.AiErrResponseParse, "aliyun translate returned no text", nil)
	}
	return translated, nil
}

// translateSDKErr maps a tea SDK error into the shared taxonomy.
func translateSDKErr(err error) error {
	if sdkErr, ok := err.(*tea.SDKError); ok {
		code := 0
		if sdkErr.StatusCode != nil {
			code = *sdkErr.StatusCode
		}
		msg := ""
		if sdkErr.Message != nil {
			msg = *sdkErr.Message
		}
		switch code {
		case 401, 403:
			return elfradio.NewAiError(elfradio.AiErrAuthentication, msg, err)
		case 0:
			return elfradio.NewAiError(elfradio.AiErrRequest, "aliyun translate request failed: "+msg, err)
		default:
			return elfradio.NewAiApiError(code, msg)
		}
	}
	return elfradio.NewAiError(elfradio.AiErrRequest, "aliyun translate request failed", err)
}

// TextToSpeech calls the NLS TTS REST endpoint, fixed to the "Aiyue"
// Mandarin voice. The returned bytes are raw 16-bit LE mono 16kHz
// PCM, not a WAV container (internal/txqueue's raw-PCM decode path
// handles this).
func (c *Client) TextToSpeech(ctx context.Context, text string, _ elfradio.TtsParams) ([]byte, error) {
	if text == "" {
		return nil, elfradio.NewAiError(elfradio.AiErrInvalidInput, "empty text", nil)
	}
	token, err := c.ensureToken(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.R().SetContext(ctx).
		SetQueryParams(map[string]string{
			"appkey":      c.appKey,
			"token":       token,
			"text":        text,
			"format":      "pcm",
			"sample_rate": "16000",
			"voice":       ttsVoice,
		}).
		Get(nlsEndpoint + "/stream/v1/tts")
	if err != nil {
		return nil, elfradio.NewAiError(elfradio.AiErrRequest, "aliyun tts request failed", err)
	}
	if resp.IsError() {
		return nil, elfradio.NewAiApiError(resp.StatusCode(), string(resp.Body()))
	}
	return resp.Body(), nil
}

// SpeechToText calls the NLS one-shot (short audio) STT REST endpoint.
func (c *Client) SpeechToText(ctx context.Context, audioBytes []byte, params elfradio.SttParams) (string, error) {
	if len(audioBytes) == 0 {
		return "", nil
	}
	token, err := c.ensureToken(ctx)
	if err != nil {
		return "", err
	}

	resp, err := c.http.R().SetContext(ctx).
		SetQueryParams(map[string]string{
			"appkey": c.appKey,
			"token":  token,
		}).
		SetHeader("Content-Type", "application/octet-stream").
		SetBody(audioBytes).
		Post(nlsEndpoint + "/stream/v1/asr")
	if err != nil {
		return "", elfradio.NewAiError(elfradio.AiErrRequest, "aliyun stt request failed", err)
	}
	if resp.IsError() {
		return "", elfradio.NewAiApiError(resp.StatusCode(), string(resp.Body()))
	}

	var body struct {
		Result string `json:"result"`
	}
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		return "", elfradio.NewAiError(elfradio.AiErrResponseParse, "parse aliyun stt response", err)
	}
	return body.Result, nil
}

// ensureToken returns a cached NLS AccessToken, refreshing it under a
// mutex held across the CreateToken call once it's within 5 minutes
// of expiry.
func (c *Client) ensureToken(ctx context.Context) (string, error) {
	c.tokenMu.Lock()
	defer c.tokenMu.Unlock()

	if c.token != "" && time.Until(c.tokenExpiry) > 5*time.Minute {
		return c.token, nil
	}

	params := map[string]string{
		"Action":           "CreateToken",
		"Version":          "2019-02-28",
		"AccessKeyId":      c.accessKeyID,
		"SignatureMethod":  "HMAC-SHA1",
		"Timestamp":        time.Now().UTC().Format("2006-01-02T15:04:05Z"),
		"SignatureVersion": "1.0",
		"SignatureNonce":   nonce(),
		"Format":           "JSON",
	}
	signed := sign(params, c.secret)

	var body struct {
		Token struct {
			ID         string `json:"Id"`
			ExpireTime int64  `json:"ExpireTime"`
		} `json:"Token"`
	}
	resp, err := c.http.R().SetContext(ctx).SetQueryParams(signed).SetResult(&body).
		Get("https://nls-meta.cn-shanghai.aliyuncs.com/")
	if err != nil {
		return "", elfradio.NewAiError(elfradio.AiErrRequest, "aliyun create token failed", err)
	}
	if resp.IsError() || body.Token.ID == "" {
		return "", elfradio.NewAiApiError(resp.StatusCode(), "aliyun CreateToken returned no token")
	}

	c.token = body.Token.ID
	c.tokenExpiry = time.Unix(body.Token.ExpireTime, 0)
	return c.token, nil
}

// sign implements Aliyun's RPC request-signing scheme: percent-encode
// every parameter, sort by key, join as a canonical query string, and
// HMAC-SHA1 "GET&%2F&<encoded-query>" with the secret + "&".
func sign(params map[string]string, secret string) map[string]string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var canonical strings.Builder
	for i, k := range keys {
		if i > 0 {
			canonical.WriteByte('&')
		}
		canonical.WriteString(percentEncode(k))
		canonical.WriteByte('=')
		canonical.WriteString(percentEncode(params[k]))
	}

	stringToSign := "GET&%2F&" + percentEncode(canonical.String())
	mac := hmac.New(sha1.New, []byte(secret+"&"))
	mac.Write([]byte(stringToSign))
	signature := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	out := make(map[string]string, len(params)+1)
	for k, v := range params {
		out[k] = v
	}
	out["Signature"] = signature
	return out
}

func percentEncode(s string) string {
	encoded := url.QueryEscape(s)
	encoded = strings.ReplaceAll(encoded, "+", "%20")
	encoded = strings.ReplaceAll(encoded, "*", "%2A")
	encoded = strings.ReplaceAll(encoded, "%7E", "~")
	return encoded
}

func nonce() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return fmt.Sprintf("%x", b)
}

// SaveRawPCMArchive writes a raw PCM diagnostic copy next to the
// processed WAV for this provider's container-less TTS responses.
func SaveRawPCMArchive(taskDir, filename string, raw []byte) error {
	return audio.SaveRawPCMArchive(taskDir, filename, raw)
}
