// Package status implements the error-to-health mapping table as a
// pure function, kept in one place rather than duplicated per
// provider adapter.
package status

import (
	"github.com/VK7KSM/ElfRadio/internal/elfradio"
)

// ServiceKind names the call site a derivation applies to, needed
// because the same AiErrorKind maps differently depending on whether
// it came from the LLM slot (unconfigured is an Error) or an
// aux/translate call (unconfigured is expected, so only a Warning).
type ServiceKind string

const (
	KindLLM       ServiceKind = "llm"
	KindTTS       ServiceKind = "tts"
	KindSTT       ServiceKind = "stt"
	KindTranslate ServiceKind = "translate"
)

// Derive maps a call outcome to the ServiceStatus that should be
// published for it. err == nil always derives Ok. Auth failures and
// rate limits are Warnings (retryable operator problems); transport
// and server-side failures are Errors; invalid input is the caller's
// fault and leaves the service Ok.
func Derive(err error, kind ServiceKind) elfradio.ServiceStatus {
	if err == nil {
		return elfradio.ServiceStatusOk
	}

	aiErr, ok := err.(*elfradio.AiError)
	if !ok {
		return elfradio.ServiceStatusError
	}

	switch aiErr.Kind {
	case elfradio.AiErrAuthentication:
		return elfradio.ServiceStatusWarning
	case elfradio.AiErrApi:
		switch {
		case aiErr.StatusCode == 401 || aiErr.StatusCode == 403 || aiErr.StatusCode == 429:
			return elfradio.ServiceStatusWarning
		case aiErr.StatusCode >= 500 && aiErr.StatusCode <= 599:
			return elfradio.ServiceStatusError
		default:
			return elfradio.ServiceStatusError
		}
	case elfradio.AiErrRequest, elfradio.AiErrClient, elfradio.AiErrResponseParse:
		return elfradio.ServiceStatusError
	case elfradio.AiErrProviderNotSpecified, elfradio.AiErrConfig:
		if kind == KindLLM {
			return elfradio.ServiceStatusError
		}
		return elfradio.ServiceStatusWarning
	case elfradio.AiErrInvalidInput:
		return elfradio.ServiceStatusOk
	default:
		return elfradio.ServiceStatusError
	}
}

// UpdateKindFor maps a ServiceKind to the WebSocketMessage Kind that
// carries its health.
func UpdateKindFor(kind ServiceKind) elfradio.StatusUpdateKind {
	switch kind {
	case KindLLM:
		return elfradio.StatusUpdateLlm
	case KindTTS:
		return elfradio.StatusUpdateTts
	case KindSTT:
		return elfradio.StatusUpdateStt
	case KindTranslate:
		return elfradio.StatusUpdateTranslate
	default:
		return elfradio.StatusUpdateLlm
	}
}
