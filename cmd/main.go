package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	flag "github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/zoraidacallejas/talk-to-your-assistant/adapters/device"
	"github.com/zoraidacallejas/talk-to-your-assistant/adapters/dialogue"
	"github.com/zoraidacallejas/talk-to-your-assistant/adapters/network"
	"github.com/zoraidacallejas/talk-to-your-assistant/adapters/speech"
	"github.com/zoraidacallejas/talk-to-your-assistant/adapters/stt"
	"github.com/zoraidacallejas/talk-to-your-assistant/adapters/tts"
	"github.com/zoraidacallejas/talk-to-your-assistant/config"
	"github.com/zoraidacallejas/talk-to-your-assistant/domain/entities"
	"github.com/zoraidacallejas/talk-to-your-assistant/domain/repositories"
	"github.com/zoraidacallejas/talk-to-your-assistant/internal/api"
	"github.com/zoraidacallejas/talk-to-your-assistant/internal/auth"
	"github.com/zoraidacallejas/talk-to-your-assistant/internal/directive"
	"github.com/zoraidacallejas/talk-to-your-assistant/internal/turn"
	"github.com/zoraidacallejas/talk-to-your-assistant/internal/websocket"
	"github.com/zoraidacallejas/talk-to-your-assistant/usecase"
)

const serviceName = "talk-to-your-assistant"

// recognizer is what the server needs from a recognition engine: the
// engine itself and a way to feed it device audio
type recognizer interface {
	repositories.RecognitionEngine
	repositories.AudioInput
}

func main() {
	configFile := flag.String("config", "", "path to the config file (default ./config.yaml or ./configs/config.yaml)")
	envFile := flag.String("env-file", ".env", "path to a .env file loaded before the config")
	flag.Parse()

	cfg, err := config.Load(*configFile, *envFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("Server failed", zap.Error(err))
	}
	logger.Info("Server exited")
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	// Initialize adapters
	dialogueClient, err := newDialogue(ctx, cfg.Dialogue, logger)
	if err != nil {
		return fmt.Errorf("dialogue: %w", err)
	}

	recognition, err := newRecognizer(ctx, cfg.Recognition, logger)
	if err != nil {
		return fmt.Errorf("recognition: %w", err)
	}
	if closer, ok := recognition.(io.Closer); ok {
		defer closer.Close()
	}
	transcripts, _ := recognition.(repositories.TranscriptInput)

	state := device.NewState(logger)
	hub := websocket.NewHub(recognition, transcripts, state, logger)

	synthesis, err := newSynthesizer(cfg.Synthesis, hub, logger)
	if err != nil {
		return fmt.Errorf("synthesis: %w", err)
	}
	defer synthesis.Shutdown()

	var connectivity repositories.ConnectivityChecker
	if cfg.Session.ConnectivityCheck && cfg.Session.ConnectivityTarget != "" {
		probe, err := network.NewProbe(cfg.Session.ConnectivityTarget, 0, cfg.Dialogue.SocksProxy, logger)
		if err != nil {
			return fmt.Errorf("connectivity probe: %w", err)
		}
		connectivity = probe
	}

	// Initialize usecase services
	locale := entities.Locale{Language: cfg.Synthesis.Language, Country: cfg.Synthesis.Country}.Normalize()
	voice := usecase.NewVoice(synthesis, locale, logger)

	actions := device.NewActions(state, hub, logger)
	dispatcher := directive.NewDispatcher(voice, directive.Handlers{
		Maps:       actions,
		Search:     actions,
		Apps:       actions,
		Battery:    actions,
		Directions: actions,
		Location:   actions,
	}, cfg.Session.ActionTimeout, logger)

	journal := turn.NewJournal(cfg.Session.JournalCapacity, logger)
	session := usecase.NewVoiceSession(usecase.VoiceSessionConfig{
		RecognitionLocale: cfg.Recognition.Locale,
		ReopenOnQuestion:  cfg.Session.ReopenOnQuestion,
	}, recognition, synthesis, dialogueClient, connectivity, dispatcher, voice, journal, logger)
	hub.SetTurnStarter(session)

	registry := device.NewRegistry(cfg.Auth.DeviceSecret)
	for _, d := range cfg.Auth.Devices {
		if err := registry.RegisterDeviceSecret(d.SerialNumber, d.SecretKey); err != nil {
			return fmt.Errorf("device %s: %w", d.SerialNumber, err)
		}
	}
	tokens, err := auth.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	if err != nil {
		return err
	}

	// Background loops
	go hub.Run(ctx)
	sessionDone := make(chan error, 1)
	go func() { sessionDone <- session.Run(ctx) }()
	forwarder := websocket.NewEventForwarder(journal.EventChannel(), hub, logger)
	forwarder.Start()
	defer forwarder.Stop()

	// Create Echo instance
	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	api.InitRoutes(e, api.Dependencies{
		Hub:     hub,
		Voice:   session,
		Turns:   journal,
		Devices: registry,
		Tokens:  tokens,
		Service: serviceName,
	}, logger)

	// Graceful shutdown
	serverErr := make(chan error, 1)
	go func() {
		if err := e.Start(":" + strconv.Itoa(cfg.Server.Port)); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	logger.Info("Server started",
		zap.Int("port", cfg.Server.Port),
		zap.String("dialogue", cfg.Dialogue.Provider),
		zap.String("recognition", cfg.Recognition.Engine),
		zap.String("synthesis", cfg.Synthesis.Engine))

	select {
	case <-ctx.Done():
	case err := <-serverErr:
		return err
	case err := <-sessionDone:
		if !errors.Is(err, context.Canceled) {
			return fmt.Errorf("voice session stopped: %w", err)
		}
	}

	logger.Info("Server is shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	return e.Shutdown(shutdownCtx)
}

func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid logging.level: %w", err)
	}

	zapConfig := zap.NewProductionConfig()
	if cfg.Development {
		zapConfig = zap.NewDevelopmentConfig()
	}
	zapConfig.Level = zap.NewAtomicLevelAt(level)
	return zapConfig.Build()
}

func newDialogue(ctx context.Context, cfg config.DialogueConfig, logger *zap.Logger) (repositories.DialogueClient, error) {
	switch cfg.Provider {
	case config.ProviderGemini:
		return dialogue.NewGeminiDialogue(ctx, dialogue.GeminiConfig{
			APIKey:          cfg.Gemini.APIKey,
			Model:           cfg.Gemini.Model,
			Temperature:     cfg.Gemini.Temperature,
			MaxOutputTokens: cfg.Gemini.MaxOutputTokens,
			Timeout:         cfg.Timeout,
		}, logger)
	case config.ProviderMock:
		logger.Warn("Using mock dialogue service")
		return dialogue.NewMockDialogue(), nil
	default:
		return dialogue.NewPandorabotsClient(dialogue.PandorabotsConfig{
			BaseURL:    cfg.BaseURL,
			BotID:      cfg.BotID,
			Timeout:    cfg.Timeout,
			SocksProxy: cfg.SocksProxy,
		}, logger)
	}
}

func newRecognizer(ctx context.Context, cfg config.RecognitionConfig, logger *zap.Logger) (recognizer, error) {
	if cfg.Engine == config.EngineGoogle {
		return stt.NewGoogleRecognizer(ctx, stt.GoogleConfig{
			Languages:  cfg.Languages,
			Preference: cfg.Locale,
			SampleRate: cfg.SampleRate,
			Encoding:   cfg.Encoding,
		}, logger)
	}
	logger.Warn("Using mock speech recognizer")
	return speech.NewMockRecognizer(cfg.Languages, cfg.ListenTimeout, logger), nil
}

func newSynthesizer(cfg config.SynthesisConfig, sink repositories.AudioSink, logger *zap.Logger) (repositories.SynthesisEngine, error) {
	defaultLocale := entities.ParseLocale(cfg.DefaultLocale)
	if cfg.Engine == config.EngineElevenLabs {
		return tts.NewElevenLabsSynthesizer(tts.ElevenLabsConfig{
			APIKey:        cfg.ElevenLabs.APIKey,
			APIBaseURL:    cfg.ElevenLabs.BaseURL,
			VoiceID:       cfg.ElevenLabs.VoiceID,
			ModelID:       cfg.ElevenLabs.ModelID,
			OutputFormat:  cfg.ElevenLabs.OutputFormat,
			ChunkSize:     cfg.ElevenLabs.ChunkSize,
			Stability:     cfg.ElevenLabs.Stability,
			Clarity:       cfg.ElevenLabs.Clarity,
			Timeout:       cfg.ElevenLabs.Timeout,
			DefaultLocale: defaultLocale,
		}, sink, logger)
	}
	logger.Warn("Using mock speech synthesizer")
	return speech.NewMockSynthesizer(defaultLocale, sink, logger), nil
}
