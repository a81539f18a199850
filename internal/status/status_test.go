package status

import (
	"errors"
	"testing"

	"github.com/VK7KSM/ElfRadio/internal/elfradio"
)

func TestDerive(t *testing.T) {
	cases := []struct {
		name string
		err  error
		kind ServiceKind
		want elfradio.ServiceStatus
	}{
		{"nil is ok", nil, KindLLM, elfradio.ServiceStatusOk},
		{"authentication", elfradio.NewAiError(elfradio.AiErrAuthentication, "bad key", nil), KindLLM, elfradio.ServiceStatusWarning},
		{"api 401", elfradio.NewAiApiError(401, "unauthorized"), KindLLM, elfradio.ServiceStatusWarning},
		{"api 403", elfradio.NewAiApiError(403, "forbidden"), KindTTS, elfradio.ServiceStatusWarning},
		{"api 429", elfradio.NewAiApiError(429, "rate limited"), KindTranslate, elfradio.ServiceStatusWarning},
		{"api 500", elfradio.NewAiApiError(500, "server error"), KindSTT, elfradio.ServiceStatusError},
		{"api 503", elfradio.NewAiApiError(503, "unavailable"), KindLLM, elfradio.ServiceStatusError},
		{"request error", elfradio.NewAiError(elfradio.AiErrRequest, "timeout", nil), KindSTT, elfradio.ServiceStatusError},
		{"parse error", elfradio.NewAiError(elfradio.AiErrResponseParse, "bad json", nil), KindTTS, elfradio.ServiceStatusError},
		{"client error", elfradio.NewAiError(elfradio.AiErrClient, "init", nil), KindLLM, elfradio.ServiceStatusError},
		{"unconfigured aux is expected", elfradio.NewAiError(elfradio.AiErrProviderNotSpecified, "", nil), KindTranslate, elfradio.ServiceStatusWarning},
		{"unconfigured llm is not", elfradio.NewAiError(elfradio.AiErrProviderNotSpecified, "", nil), KindLLM, elfradio.ServiceStatusError},
		{"config error aux", elfradio.NewAiError(elfradio.AiErrConfig, "", nil), KindTTS, elfradio.ServiceStatusWarning},
		{"config error llm", elfradio.NewAiError(elfradio.AiErrConfig, "", nil), KindLLM, elfradio.ServiceStatusError},
		{"invalid input is caller fault", elfradio.NewAiError(elfradio.AiErrInvalidInput, "empty text", nil), KindTTS, elfradio.ServiceStatusOk},
		{"unknown error kind", elfradio.NewAiError(elfradio.AiErrNotSupported, "", nil), KindLLM, elfradio.ServiceStatusError},
		{"non-ai error", errors.New("plain"), KindLLM, elfradio.ServiceStatusError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Derive(tc.err, tc.kind); got != tc.want {
				t.Fatalf("Derive(%v, %s) = %s, want %s", tc.err, tc.kind, got, tc.want)
			}
		})
	}
}

func TestUpdateKindFor(t *testing.T) {
	pairs := map[ServiceKind]elfradio.StatusUpdateKind{
		KindLLM:       elfradio.StatusUpdateLlm,
		KindTTS:       elfradio.StatusUpdateTts,
		KindSTT:       elfradio.StatusUpdateStt,
		KindTranslate: elfradio.StatusUpdateTranslate,
	}
	for kind, want := range pairs {
		if got := UpdateKindFor(kind); got != want {
			t.Fatalf("UpdateKindFor(%s) = %s, want %s", kind, got, want)
		}
	}
}
