package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Load reads .env (if envFile exists), then config.yaml or configFile, then
// the environment. Variables are prefixed ASSISTANT_ with dots replaced by
// underscores, e.g. ASSISTANT_DIALOGUE_PROVIDER.
func Load(configFile, envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load env file: %w", err)
		}
	}

	v := viper.New()
	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("ASSISTANT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Allow common env vars without the prefix
	v.BindEnv("server.port", "PORT", "ASSISTANT_SERVER_PORT")
	v.BindEnv("auth.jwt_secret", "JWT_SECRET", "ASSISTANT_AUTH_JWT_SECRET")
	v.BindEnv("dialogue.gemini.api_key", "GEMINI_API_KEY", "ASSISTANT_DIALOGUE_GEMINI_API_KEY")
	v.BindEnv("synthesis.elevenlabs.api_key", "ELEVENLABS_API_KEY", "ASSISTANT_SYNTHESIS_ELEVENLABS_API_KEY")
	v.BindEnv("logging.level", "LOG_LEVEL", "ASSISTANT_LOGGING_LEVEL")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || configFile != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.Session.ConnectivityTarget == "" {
		cfg.Session.ConnectivityTarget = connectivityTarget(cfg.Dialogue)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.device_secret", "")
	v.SetDefault("auth.token_ttl", "24h")

	v.SetDefault("dialogue.provider", ProviderPandorabots)
	v.SetDefault("dialogue.base_url", "qa.pandorabots.com")
	v.SetDefault("dialogue.bot_id", "drwallace/speechtekbot")
	v.SetDefault("dialogue.timeout", "60s")
	v.SetDefault("dialogue.socks_proxy", "")
	v.SetDefault("dialogue.gemini.api_key", "")
	v.SetDefault("dialogue.gemini.model", "gemini-2.0-flash")

	v.SetDefault("recognition.engine", EngineMock)
	v.SetDefault("recognition.locale", "en-US")
	v.SetDefault("recognition.languages", []string{"en-US", "en-GB", "es-ES", "fr-FR", "de-DE"})
	v.SetDefault("recognition.sample_rate", 16000)
	v.SetDefault("recognition.encoding", "LINEAR16")
	v.SetDefault("recognition.listen_timeout", "8s")

	v.SetDefault("synthesis.engine", EngineMock)
	v.SetDefault("synthesis.language", "EN")
	v.SetDefault("synthesis.country", "")
	v.SetDefault("synthesis.default_locale", "en-US")
	v.SetDefault("synthesis.elevenlabs.api_key", "")

	v.SetDefault("session.reopen_on_question", true)
	v.SetDefault("session.action_timeout", "10s")
	v.SetDefault("session.connectivity_check", true)
	v.SetDefault("session.connectivity_target", "")
	v.SetDefault("session.journal_capacity", 100)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.development", false)
}

// geminiHost is the endpoint the genai client talks to
const geminiHost = "generativelanguage.googleapis.com:443"

// connectivityTarget is the address checked before listening: the host of
// the active dialogue provider, or nothing for the offline mock.
func connectivityTarget(d DialogueConfig) string {
	switch d.Provider {
	case ProviderGemini:
		return geminiHost
	case ProviderPandorabots:
		return hostPort(d.BaseURL)
	default:
		return ""
	}
}

// hostPort turns a dialogue base URL into a dialable host:port address.
// The port follows the scheme, https when there is none.
func hostPort(baseURL string) string {
	port := "443"
	host := baseURL
	if scheme, rest, ok := strings.Cut(host, "://"); ok {
		host = rest
		if strings.EqualFold(scheme, "http") {
			port = "80"
		}
	}
	host, _, _ = strings.Cut(host, "/")
	if host == "" {
		return ""
	}
	if _, _, err := net.SplitHostPort(host); err == nil {
		return host
	}
	return net.JoinHostPort(host, port)
}
