// Package aiclient builds the primary AiClient and secondary
// AuxServiceClient from a resolved ConfigSnapshot's provider
// selections. A missing provider selection or a missing required
// subfield is a Warning (the task can still run, just without that
// slot); an unexpected construction error (a malformed credentials
// file, a client library failure) is an Error.
package aiclient

import (
	"context"
	"fmt"

	"github.com/VK7KSM/ElfRadio/internal/aiclient/provider/aliyun"
	"github.com/VK7KSM/ElfRadio/internal/aiclient/provider/google"
	"github.com/VK7KSM/ElfRadio/internal/aiclient/provider/openaicompat"
	"github.com/VK7KSM/ElfRadio/internal/aiclient/provider/stepfun"
	"github.com/VK7KSM/ElfRadio/internal/aiclient/provider/tencent"
	"github.com/VK7KSM/ElfRadio/internal/config"
	"github.com/VK7KSM/ElfRadio/internal/elfradio"
)

// BuildResult records a slot build's outcome alongside the status
// level internal/status should report for it, since "not configured"
// and "failed to configure" are distinguishable outcomes a caller may
// want to log differently even though both leave the slot nil.
type BuildResult struct {
	Warning string // non-empty if the slot is unset but not erroneous
}

// BuildAiClient constructs the primary AiClient selected by cfg.AI.Provider.
// A nil client with a non-empty BuildResult.Warning means "no provider
// selected or required subfield missing"; a non-nil error means an
// unexpected construction failure.
func BuildAiClient(cfg *config.ConfigSnapshot) (elfradio.AiClient, BuildResult, error) {
	switch cfg.AI.Provider {
	case "":
		return nil, BuildResult{Warning: "no primary AI provider selected"}, nil

	case config.AiProviderOpenAICompatible:
		c := cfg.AI.OpenAICompatible
		if c.APIKey == "" {
			return nil, BuildResult{Warning: "openai_compatible provider selected but api_key is empty"}, nil
		}
		client, err := openaicompat.New(c.APIKey, c.BaseURL, c.Model)
		if warning, hardErr := classify(err); hardErr != nil || warning != "" {
			return nil, BuildResult{Warning: warning}, hardErr
		}
		return client, BuildResult{}, nil

	case config.AiProviderGoogleGemini:
		c := cfg.AI.GoogleGemini
		if c.APIKey == "" {
			return nil, BuildResult{Warning: "google_gemini provider selected but api_key is empty"}, nil
		}
		// Gemini is reached through its OpenAI-compatible endpoint.
		client, err := openaicompat.New(c.APIKey, "https://generativelanguage.googleapis.com/v1beta/openai/", c.Model)
		if warning, hardErr := classify(err); hardErr != nil || warning != "" {
			return nil, BuildResult{Warning: warning}, hardErr
		}
		return client, BuildResult{}, nil

	case config.AiProviderStepFunTTS:
		c := cfg.AI.StepFunTTS
		if c.APIKey == "" {
			return nil, BuildResult{Warning: "stepfun_tts provider selected but api_key is empty"}, nil
		}
		client, err := stepfun.New(c.APIKey, c.Voice)
		if warning, hardErr := classify(err); hardErr != nil || warning != "" {
			return nil, BuildResult{Warning: warning}, hardErr
		}
		return client, BuildResult{}, nil

	default:
		return nil, BuildResult{Warning: fmt.Sprintf("unknown ai provider %q", cfg.AI.Provider)}, nil
	}
}

// BuildAuxClient constructs the secondary AuxServiceClient selected by
// cfg.Aux.Provider, following the same three-class contract as
// BuildAiClient.
func BuildAuxClient(ctx context.Context, cfg *config.ConfigSnapshot) (elfradio.AuxServiceClient, BuildResult, error) {
	switch cfg.Aux.Provider {
	case "":
		return nil, BuildResult{Warning: "no aux provider selected"}, nil

	case config.AuxProviderGoogle:
		c := cfg.Aux.Google
		if c.CredentialsFile == "" && c.APIKey == "" {
			return nil, BuildResult{Warning: "google aux provider selected but credentials_file and api_key are both empty"}, nil
		}
		client, err := google.New(ctx, c.CredentialsFile, c.APIKey)
		if warning, hardErr := classify(err); hardErr != nil || warning != "" {
			return nil, BuildResult{Warning: warning}, hardErr
		}
		return client, BuildResult{}, nil

	case config.AuxProviderAliyun:
		c := cfg.Aux.Aliyun
		if c.AccessKeyID == "" || c.AccessKeySecret == "" {
			return nil, BuildResult{Warning: "aliyun aux provider selected but access_key_id/access_key_secret is empty"}, nil
		}
		client, err := aliyun.New(c.AccessKeyID, c.AccessKeySecret, c.AppKey)
		if warning, hardErr := classify(err); hardErr != nil || warning != "" {
			return nil, BuildResult{Warning: warning}, hardErr
		}
		return client, BuildResult{}, nil

	case config.AuxProviderTencent:
		c := cfg.Aux.Tencent
		if c.SecretID == "" || c.SecretKey == "" {
			return nil, BuildResult{Warning: "tencent aux provider selected but secret_id/secret_key is empty"}, nil
		}
		client, err := tencent.New(c.AppID, c.SecretID, c.SecretKey)
		if warning, hardErr := classify(err); hardErr != nil || warning != "" {
			return nil, BuildResult{Warning: warning}, hardErr
		}
		return client, BuildResult{}, nil

	default:
		return nil, BuildResult{Warning: fmt.Sprintf("unknown aux provider %q", cfg.Aux.Provider)}, nil
	}
}

// classify splits a provider constructor's error into the
// warning/hard-error halves of the three-class contract: a Config-kind
// AiError demotes to a warning message (the slot just isn't usable
// yet); anything else is a real construction failure.
func classify(err error) (warning string, hardErr error) {
	if err == nil {
		return "", nil
	}
	if aiErr, ok := err.(*elfradio.AiError); ok && aiErr.Kind == elfradio.AiErrConfig {
		return aiErr.Message, nil
	}
	return "", err
}
