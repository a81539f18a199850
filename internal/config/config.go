// Package config loads ElfRadio's layered configuration: an embedded
// default.toml, overridden by a user TOML file in the OS config
// directory, overridden in turn by ELFRADIO_-prefixed environment
// variables, highest precedence last.
package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/google/uuid"
	"github.com/spf13/viper"
)

//go:embed default.toml
var defaultConfigTOML []byte

// AiProvider selects the primary AI backend for a task.
type AiProvider string

const (
	AiProviderOpenAICompatible AiProvider = "openai_compatible"
	AiProviderGoogleGemini     AiProvider = "google_gemini"
	AiProviderStepFunTTS       AiProvider = "stepfun_tts"
)

// AuxProvider selects the secondary translate/TTS/STT backend.
type AuxProvider string

const (
	AuxProviderGoogle  AuxProvider = "google"
	AuxProviderAliyun  AuxProvider = "aliyun"
	AuxProviderTencent AuxProvider = "tencent"
)

// PttSignal selects which serial control line keys the transmitter.
// Comparisons against this value must be case-insensitive; "rts" and
// "dtr" lowercase are the canonical forms.
type PttSignal string

const (
	PttSignalRTS PttSignal = "rts"
	PttSignalDTR PttSignal = "dtr"
)

// OpenAICompatibleConfig configures the primary OpenAI-compatible
// client, also used to reach Gemini's OpenAI-compat endpoint.
type OpenAICompatibleConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
	Model   string `mapstructure:"model"`
}

// StepFunConfig configures the StepFun TTS-only primary backend.
type StepFunConfig struct {
	APIKey string `mapstructure:"api_key"`
	Voice  string `mapstructure:"voice"`
}

// GoogleGeminiConfig points the primary client at Gemini's
// OpenAI-compatible endpoint.
type GoogleGeminiConfig struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
}

// AiSettings selects and configures the primary AI provider.
type AiSettings struct {
	Provider         AiProvider             `mapstructure:"provider"`
	OpenAICompatible OpenAICompatibleConfig `mapstructure:"openai_compatible"`
	GoogleGemini     GoogleGeminiConfig     `mapstructure:"google_gemini"`
	StepFunTTS       StepFunConfig          `mapstructure:"stepfun_tts"`
	STTLanguage      string                 `mapstructure:"stt_language"`
}

// GoogleAuxConfig configures the Google aux client (Cloud Speech,
// Cloud Text-to-Speech, Translate v2 REST).
type GoogleAuxConfig struct {
	CredentialsFile string `mapstructure:"credentials_file"`
	APIKey          string `mapstructure:"api_key"`
	ProjectID       string `mapstructure:"project_id"`
	TTSVoice        string `mapstructure:"tts_voice"`
}

// AliyunAuxConfig configures the Aliyun NLS aux client.
type AliyunAuxConfig struct {
	AccessKeyID     string `mapstructure:"access_key_id"`
	AccessKeySecret string `mapstructure:"access_key_secret"`
	AppKey          string `mapstructure:"app_key"`
	Endpoint        string `mapstructure:"endpoint"`
	WorkspaceID     string `mapstructure:"workspace_id"`
}

// TencentAuxConfig configures the Tencent Cloud aux speech client,
// the third selectable aux backend.
type TencentAuxConfig struct {
	AppID     string `mapstructure:"app_id"`
	SecretID  string `mapstructure:"secret_id"`
	SecretKey string `mapstructure:"secret_key"`
}

// AuxSettings selects and configures the secondary AI provider.
type AuxSettings struct {
	Provider AuxProvider      `mapstructure:"provider"`
	Google   GoogleAuxConfig  `mapstructure:"google"`
	Aliyun   AliyunAuxConfig  `mapstructure:"aliyun"`
	Tencent  TencentAuxConfig `mapstructure:"tencent"`
}

// TimingSettings bounds transmission pacing beyond the PTT delays:
// how long the transmitter may stay keyed, the enforced gap between
// consecutive transmissions, and the SSTV frame ceiling.
type TimingSettings struct {
	TxHoldSeconds     float64 `mapstructure:"tx_hold_seconds"`
	TxIntervalSeconds float64 `mapstructure:"tx_interval_seconds"`
	MaxTxSeconds      float64 `mapstructure:"max_tx_seconds"`
	MaxSstvSeconds    float64 `mapstructure:"max_sstv_seconds"`
}

// EtiquetteSettings carries the operator's on-air identity habits.
type EtiquetteSettings struct {
	OperatorNickname          string `mapstructure:"operator_nickname"`
	AddressingIntervalMinutes int    `mapstructure:"addressing_interval_minutes"`
}

// SecuritySettings holds the spoken stop-phrase. When it appears in an
// input transcript (case-insensitive), an Internal/Status alert entry
// is written to the task log; the task and the TX queue keep running.
type SecuritySettings struct {
	StopPhrase string `mapstructure:"stop_phrase"`
}

// SignalToneSettings shapes the attention tone prepended to
// transmissions when enabled.
type SignalToneSettings struct {
	Enabled     bool    `mapstructure:"enabled"`
	FrequencyHz float64 `mapstructure:"frequency_hz"`
	DurationMs  int     `mapstructure:"duration_ms"`
}

// SstvSettings selects the default SSTV mode for image exchanges.
type SstvSettings struct {
	DefaultMode string `mapstructure:"default_mode"`
}

// HardwareSettings configures PTT keying and audio device selection.
type HardwareSettings struct {
	PttPort         string    `mapstructure:"ptt_port"`
	PttSignal       PttSignal `mapstructure:"ptt_signal"`
	PttPreDelayMs   int       `mapstructure:"ptt_pre_delay_ms"`
	PttPostDelayMs  int       `mapstructure:"ptt_post_delay_ms"`
	InputDevice     string    `mapstructure:"input_device"`
	OutputDevice    string    `mapstructure:"output_device"`
	InputSampleRate int       `mapstructure:"input_sample_rate"`
}

// ServerSettings configures the HTTP/WebSocket API surface.
type ServerSettings struct {
	Addr string `mapstructure:"addr"`
}

// DatabaseSettings configures the relational store.
type DatabaseSettings struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

// LogSettings configures zap + lumberjack log rotation.
type LogSettings struct {
	Level      string `mapstructure:"level"`
	Filename   string `mapstructure:"filename"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxAge     int    `mapstructure:"max_age"`
	MaxBackups int    `mapstructure:"max_backups"`
	Daily      bool   `mapstructure:"daily"`
}

// NetworkMonitorSettings configures the periodic connectivity probe.
type NetworkMonitorSettings struct {
	IntervalSeconds int    `mapstructure:"interval_seconds"`
	CronSchedule    string `mapstructure:"cron_schedule"`
}

// ConfigSnapshot is the fully resolved configuration for one process
// run. It is loaded once at startup (Load) and held read-only
// thereafter; a config reload replaces the pointer in AppState.Config
// rather than mutating fields in place.
type ConfigSnapshot struct {
	AppName    string `mapstructure:"app_name"`
	UILanguage string `mapstructure:"ui_language"`

	AI             AiSettings             `mapstructure:"ai"`
	Aux            AuxSettings            `mapstructure:"aux"`
	Hardware       HardwareSettings       `mapstructure:"hardware"`
	Timing         TimingSettings         `mapstructure:"timing"`
	Etiquette      EtiquetteSettings      `mapstructure:"etiquette"`
	Security       SecuritySettings       `mapstructure:"security"`
	SignalTone     SignalToneSettings     `mapstructure:"signal_tone"`
	Sstv           SstvSettings           `mapstructure:"sstv"`
	Server         ServerSettings         `mapstructure:"server"`
	Database       DatabaseSettings       `mapstructure:"database"`
	Log            LogSettings            `mapstructure:"log"`
	NetworkMonitor NetworkMonitorSettings `mapstructure:"network_monitor"`
	TaskRoot       string                 `mapstructure:"task_root"`
	UserUUID       string                 `mapstructure:"user_uuid"`

	userConfigPath string
}

// FrontendConfig is the API-safe projection of ConfigSnapshot returned
// by GET /api/config: every field that looks like a credential is
// redacted to a boolean "is it set" flag instead of its value.
type FrontendConfig struct {
	AIProvider      AiProvider  `json:"ai_provider"`
	AIConfigured    bool        `json:"ai_configured"`
	AuxProvider     AuxProvider `json:"aux_provider"`
	AuxConfigured   bool        `json:"aux_configured"`
	PttPort         string      `json:"ptt_port"`
	PttSignal       PttSignal   `json:"ptt_signal"`
	InputSampleRate int         `json:"input_sample_rate"`
	ServerAddr      string      `json:"server_addr"`
	UserUUID        string      `json:"user_uuid"`
}

// Redacted strips every credential-shaped field from the snapshot,
// leaving only what the frontend needs to render settings and confirm
// that a provider is configured.
func (c *ConfigSnapshot) Redacted() FrontendConfig {
	aiConfigured := false
	switch c.AI.Provider {
	case AiProviderOpenAICompatible:
		aiConfigured = c.AI.OpenAICompatible.APIKey != ""
	case AiProviderGoogleGemini:
		aiConfigured = c.AI.GoogleGemini.APIKey != ""
	case AiProviderStepFunTTS:
		aiConfigured = c.AI.StepFunTTS.APIKey != ""
	}

	auxConfigured := false
	switch c.Aux.Provider {
	case AuxProviderGoogle:
		auxConfigured = c.Aux.Google.CredentialsFile != ""
	case AuxProviderAliyun:
		auxConfigured = c.Aux.Aliyun.AccessKeyID != ""
	case AuxProviderTencent:
		auxConfigured = c.Aux.Tencent.SecretID != ""
	}

	return FrontendConfig{
		AIProvider:      c.AI.Provider,
		AIConfigured:    aiConfigured,
		AuxProvider:     c.Aux.Provider,
		AuxConfigured:   auxConfigured,
		PttPort:         c.Hardware.PttPort,
		PttSignal:       c.Hardware.PttSignal,
		InputSampleRate: c.Hardware.InputSampleRate,
		ServerAddr:      c.Server.Addr,
		UserUUID:        c.UserUUID,
	}
}

// userConfigDir returns the OS-appropriate per-user config directory
// for ElfRadio, e.g. ~/.config/elfradio on Linux via os.UserConfigDir.
func userConfigDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "elfradio"), nil
}

// Load builds the layered configuration: embedded default.toml, then
// the user's elfradio.toml (created from the embedded default on
// first run), then ELFRADIO_-prefixed environment variables with "__"
// as the nested-key separator, highest precedence.
func Load() (*ConfigSnapshot, error) {
	dir, err := userConfigDir()
	if err != nil {
		return nil, fmt.Errorf("resolve user config dir: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create user config dir: %w", err)
	}
	userPath := filepath.Join(dir, "elfradio.toml")

	if _, err := os.Stat(userPath); os.IsNotExist(err) {
		if err := os.WriteFile(userPath, defaultConfigTOML, 0o644); err != nil {
			return nil, fmt.Errorf("seed user config: %w", err)
		}
	}

	v := viper.New()
	v.SetConfigType("toml")
	if err := v.ReadConfig(strings.NewReader(string(defaultConfigTOML))); err != nil {
		return nil, fmt.Errorf("parse embedded default config: %w", err)
	}

	userViper := viper.New()
	userViper.SetConfigFile(userPath)
	userViper.SetConfigType("toml")
	if err := userViper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("parse user config %s: %w", userPath, err)
	}
	// Merge into the config layer (not Set, whose override layer would
	// outrank the environment variables below).
	if err := v.MergeConfigMap(userViper.AllSettings()); err != nil {
		return nil, fmt.Errorf("merge user config %s: %w", userPath, err)
	}

	v.SetEnvPrefix("ELFRADIO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "__"))
	v.AutomaticEnv()

	var cfg ConfigSnapshot
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.userConfigPath = userPath

	if cfg.UserUUID == "" {
		cfg.UserUUID = uuid.NewString()
		if err := SaveUserValues(userPath, map[string]any{"user_uuid": cfg.UserUUID}); err != nil {
			return nil, fmt.Errorf("persist generated user_uuid: %w", err)
		}
	}

	return &cfg, nil
}

// DefaultSnapshot builds a snapshot from the embedded default.toml
// alone, for the startup fallback path when the user config layer is
// unreadable: the process logs a warning and proceeds on in-memory
// defaults rather than refusing to start.
func DefaultSnapshot() (*ConfigSnapshot, error) {
	v := viper.New()
	v.SetConfigType("toml")
	if err := v.ReadConfig(strings.NewReader(string(defaultConfigTOML))); err != nil {
		return nil, fmt.Errorf("parse embedded default config: %w", err)
	}
	var cfg ConfigSnapshot
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal default config: %w", err)
	}
	if cfg.UserUUID == "" {
		cfg.UserUUID = uuid.NewString()
	}
	return &cfg, nil
}

// SaveUserValues patches flat top-level keys into the user's TOML
// file, merging with whatever the file already holds. Nested keys are
// not supported.
func SaveUserValues(userPath string, values map[string]any) error {
	existing := map[string]any{}
	if data, err := os.ReadFile(userPath); err == nil {
		_ = toml.Unmarshal(data, &existing)
	}
	for k, v := range values {
		existing[k] = v
	}

	f, err := os.Create(userPath)
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(existing)
}

// UserConfigPath exposes where the user's TOML file lives, for
// callers that want to patch additional values post-load.
func (c *ConfigSnapshot) UserConfigPath() string {
	return c.userConfigPath
}
