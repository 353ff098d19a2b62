package config

import (
	"errors"
	"fmt"
	"time"
)

type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Auth        AuthConfig        `mapstructure:"auth"`
	Dialogue    DialogueConfig    `mapstructure:"dialogue"`
	Recognition RecognitionConfig `mapstructure:"recognition"`
	Synthesis   SynthesisConfig   `mapstructure:"synthesis"`
	Session     SessionConfig     `mapstructure:"session"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
	// DeviceSecret is accepted from any serial number when set
	DeviceSecret string             `mapstructure:"device_secret"`
	Devices      []DeviceCredential `mapstructure:"devices"`
	TokenTTL     time.Duration      `mapstructure:"token_ttl"`
}

type DeviceCredential struct {
	SerialNumber string `mapstructure:"serial_number"`
	SecretKey    string `mapstructure:"secret_key"`
}

type DialogueConfig struct {
	Provider   string        `mapstructure:"provider"`
	BaseURL    string        `mapstructure:"base_url"`
	BotID      string        `mapstructure:"bot_id"`
	Timeout    time.Duration `mapstructure:"timeout"`
	SocksProxy string        `mapstructure:"socks_proxy"`
	Gemini     GeminiConfig  `mapstructure:"gemini"`
}

type GeminiConfig struct {
	APIKey          string  `mapstructure:"api_key"`
	Model           string  `mapstructure:"model"`
	Temperature     float32 `mapstructure:"temperature"`
	MaxOutputTokens int     `mapstructure:"max_output_tokens"`
}

type RecognitionConfig struct {
	Engine     string   `mapstructure:"engine"`
	Locale     string   `mapstructure:"locale"`
	Languages  []string `mapstructure:"languages"`
	SampleRate int      `mapstructure:"sample_rate"`
	Encoding   string   `mapstructure:"encoding"`

	// ListenTimeout bounds a mock listen operation that receives no input
	ListenTimeout time.Duration `mapstructure:"listen_timeout"`
}

type SynthesisConfig struct {
	Engine        string           `mapstructure:"engine"`
	Language      string           `mapstructure:"language"`
	Country       string           `mapstructure:"country"`
	DefaultLocale string           `mapstructure:"default_locale"`
	ElevenLabs    ElevenLabsConfig `mapstructure:"elevenlabs"`
}

type ElevenLabsConfig struct {
	APIKey       string        `mapstructure:"api_key"`
	BaseURL      string        `mapstructure:"base_url"`
	VoiceID      string        `mapstructure:"voice_id"`
	ModelID      string        `mapstructure:"model_id"`
	OutputFormat string        `mapstructure:"output_format"`
	ChunkSize    int           `mapstructure:"chunk_size"`
	Stability    float64       `mapstructure:"stability"`
	Clarity      float64       `mapstructure:"clarity"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

type SessionConfig struct {
	ReopenOnQuestion   bool          `mapstructure:"reopen_on_question"`
	ActionTimeout      time.Duration `mapstructure:"action_timeout"`
	ConnectivityCheck  bool          `mapstructure:"connectivity_check"`
	ConnectivityTarget string        `mapstructure:"connectivity_target"`
	JournalCapacity    int           `mapstructure:"journal_capacity"`
}

type LoggingConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

const (
	ProviderPandorabots = "pandorabots"
	ProviderGemini      = "gemini"
	ProviderMock        = "mock"

	EngineGoogle     = "google"
	EngineElevenLabs = "elevenlabs"
	EngineMock       = "mock"
)

// Validate checks the settings the server cannot start without
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("auth.jwt_secret is required"))
	}
	for i, d := range c.Auth.Devices {
		if d.SerialNumber == "" || d.SecretKey == "" {
			errs = append(errs, fmt.Errorf("auth.devices[%d] needs serial_number and secret_key", i))
		}
	}

	switch c.Dialogue.Provider {
	case ProviderPandorabots, ProviderMock:
	case ProviderGemini:
		if c.Dialogue.Gemini.APIKey == "" {
			errs = append(errs, errors.New("dialogue.gemini.api_key is required for the gemini provider"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown dialogue.provider %q", c.Dialogue.Provider))
	}

	switch c.Recognition.Engine {
	case EngineGoogle, EngineMock:
	default:
		errs = append(errs, fmt.Errorf("unknown recognition.engine %q", c.Recognition.Engine))
	}
	if c.Recognition.Locale == "" {
		errs = append(errs, errors.New("recognition.locale is required"))
	}

	switch c.Synthesis.Engine {
	case EngineMock:
	case EngineElevenLabs:
		if c.Synthesis.ElevenLabs.APIKey == "" {
			errs = append(errs, errors.New("synthesis.elevenlabs.api_key is required for the elevenlabs engine"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown synthesis.engine %q", c.Synthesis.Engine))
	}
	if c.Synthesis.Language == "" {
		errs = append(errs, errors.New("synthesis.language is required"))
	}

	return errors.Join(errs...)
}
