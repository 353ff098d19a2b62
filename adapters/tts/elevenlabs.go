package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/zoraidacallejas/talk-to-your-assistant/adapters/network"
	"github.com/zoraidacallejas/talk-to-your-assistant/domain/entities"
	"github.com/zoraidacallejas/talk-to-your-assistant/domain/repositories"
)

const (
	defaultAPIBaseURL   = "https://api.elevenlabs.io/v1"
	defaultVoiceID      = "21m00Tcm4TlvDq8ikWAM"   // Rachel voice
	defaultChunkSize    = 1024                     // Size of audio chunks to stream
	defaultOutputFormat = "pcm_24000"              // PCM format for real-time applications
	defaultModelID      = "eleven_multilingual_v2" // Default model ID
	defaultStability    = 0.5                      // Default voice stability
	defaultClarity      = 0.75                     // Default voice clarity/similarity_boost
	defaultTimeout      = 60 * time.Second
	eventBuffer         = 32
)

// ErrShutdown is returned by Speak once the synthesizer has been shut down
var ErrShutdown = errors.New("synthesizer is shut down")

// ElevenLabsConfig holds configuration for the ElevenLabs synthesizer.
// Only APIKey is required, everything else falls back to a default.
type ElevenLabsConfig struct {
	APIKey        string
	APIBaseURL    string
	VoiceID       string
	ModelID       string
	OutputFormat  string
	ChunkSize     int
	Stability     float64
	Clarity       float64
	Timeout       time.Duration
	DefaultLocale entities.Locale
}

// ElevenLabsVoiceSettings represents voice settings for Eleven Labs API
type ElevenLabsVoiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style,omitempty"`
	UseSpeakerBoost bool    `json:"use_speaker_boost,omitempty"`
}

// ElevenLabsRequest represents the request payload for Eleven Labs TTS API
type ElevenLabsRequest struct {
	Text                   string                  `json:"text"`
	ModelID                string                  `json:"model_id"`
	LanguageCode           string                  `json:"language_code,omitempty"`
	VoiceSettings          ElevenLabsVoiceSettings `json:"voice_settings"`
	ApplyTextNormalization string                  `json:"apply_text_normalization,omitempty"`
}

// ValidateElevenLabsConfig validates the ElevenLabsConfig
func ValidateElevenLabsConfig(config ElevenLabsConfig) error {
	if config.APIKey == "" {
		return fmt.Errorf("eleven labs API key is required")
	}

	if config.Stability != 0 && (config.Stability < 0 || config.Stability > 1) {
		return fmt.Errorf("stability must be between 0 and 1, got %f", config.Stability)
	}

	if config.Clarity != 0 && (config.Clarity < 0 || config.Clarity > 1) {
		return fmt.Errorf("clarity must be between 0 and 1, got %f", config.Clarity)
	}

	if config.ChunkSize < 0 {
		return fmt.Errorf("chunk size must be positive, got %d", config.ChunkSize)
	}

	return nil
}

// ElevenLabsSynthesizer implements SynthesisEngine with the ElevenLabs
// streaming API. Utterances are played one at a time by a single worker and
// their audio is forwarded to an AudioSink.
type ElevenLabsSynthesizer struct {
	apiKey        string
	apiBaseURL    string
	voiceID       string
	modelID       string
	outputFormat  string
	chunkSize     int
	stability     float64
	clarity       float64
	defaultLocale entities.Locale
	httpClient    *http.Client
	sink          repositories.AudioSink
	logger        *zap.Logger

	queue  *Queue
	events chan repositories.SynthesisEvent
}

// NewElevenLabsSynthesizer creates the synthesizer and starts its worker
func NewElevenLabsSynthesizer(config ElevenLabsConfig, sink repositories.AudioSink, logger *zap.Logger) (*ElevenLabsSynthesizer, error) {
	if err := ValidateElevenLabsConfig(config); err != nil {
		return nil, err
	}

	apiBaseURL := config.APIBaseURL
	if apiBaseURL == "" {
		apiBaseURL = defaultAPIBaseURL
		logger.Info("Using default API base URL", zap.String("apiBaseURL", apiBaseURL))
	}

	voiceID := config.VoiceID
	if voiceID == "" {
		voiceID = defaultVoiceID
		logger.Info("Using default voice ID", zap.String("voiceID", voiceID))
	}

	modelID := config.ModelID
	if modelID == "" {
		modelID = defaultModelID
		logger.Info("Using default model ID", zap.String("modelID", modelID))
	}

	outputFormat := config.OutputFormat
	if outputFormat == "" {
		outputFormat = defaultOutputFormat
		logger.Info("Using default output format", zap.String("outputFormat", outputFormat))
	}

	chunkSize := config.ChunkSize
	if chunkSize == 0 {
		chunkSize = defaultChunkSize
		logger.Info("Using default chunk size", zap.Int("chunkSize", chunkSize))
	}

	stability := config.Stability
	if stability == 0 {
		stability = defaultStability
		logger.Info("Using default stability", zap.Float64("stability", stability))
	}

	clarity := config.Clarity
	if clarity == 0 {
		clarity = defaultClarity
		logger.Info("Using default clarity", zap.Float64("clarity", clarity))
	}

	timeout := config.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}

	locale := config.DefaultLocale.Normalize()
	if locale.IsZero() {
		locale = entities.Locale{Language: "en", Country: "US"}
		logger.Info("Using default locale", zap.String("locale", locale.String()))
	}

	httpClient, err := network.NewHTTPClient(timeout, "")
	if err != nil {
		return nil, err
	}

	s := &ElevenLabsSynthesizer{
		apiKey:        config.APIKey,
		apiBaseURL:    strings.TrimRight(apiBaseURL, "/"),
		voiceID:       voiceID,
		modelID:       modelID,
		outputFormat:  outputFormat,
		chunkSize:     chunkSize,
		stability:     stability,
		clarity:       clarity,
		defaultLocale: locale,
		httpClient:    httpClient,
		sink:          sink,
		logger:        logger,
		events:        make(chan repositories.SynthesisEvent, eventBuffer),
	}
	s.queue = NewQueue(s.play, s.emit, logger)
	go s.queue.Run()

	return s, nil
}

// Speak queues an utterance. QueueFlush drops anything pending and
// interrupts the utterance being played.
func (s *ElevenLabsSynthesizer) Speak(ctx context.Context, utterance entities.Utterance) error {
	if strings.TrimSpace(utterance.Text) == "" {
		return fmt.Errorf("text cannot be empty")
	}
	return s.queue.Push(utterance)
}

// Stop interrupts playback and drops the queue
func (s *ElevenLabsSynthesizer) Stop() error {
	s.queue.Clear()
	return nil
}

// Shutdown stops the worker; later calls to Speak fail
func (s *ElevenLabsSynthesizer) Shutdown() error {
	s.queue.Close()
	return nil
}

// IsLanguageAvailable reports support of the multilingual model for a locale
func (s *ElevenLabsSynthesizer) IsLanguageAvailable(locale entities.Locale) repositories.Availability {
	return Availability(locale)
}

// DefaultLocale returns the configured voice locale
func (s *ElevenLabsSynthesizer) DefaultLocale() entities.Locale {
	return s.defaultLocale
}

// Events delivers utterance lifecycle events
func (s *ElevenLabsSynthesizer) Events() <-chan repositories.SynthesisEvent {
	return s.events
}

func (s *ElevenLabsSynthesizer) emit(ev repositories.SynthesisEvent) {
	select {
	case s.events <- ev:
	case <-s.queue.Done():
	}
}

// play synthesizes one utterance and streams it to the sink
func (s *ElevenLabsSynthesizer) play(ctx context.Context, utterance entities.Utterance) error {
	s.logger.Info("Converting text to speech",
		zap.String("text", utterance.Text),
		zap.String("utteranceID", string(utterance.ID)),
		zap.String("voiceID", s.voiceID),
		zap.String("modelID", s.modelID))

	request := ElevenLabsRequest{
		Text:                   utterance.Text,
		ModelID:                s.modelID,
		LanguageCode:           strings.ToLower(utterance.LanguageCode),
		ApplyTextNormalization: "auto",
		VoiceSettings: ElevenLabsVoiceSettings{
			Stability:       s.stability,
			SimilarityBoost: s.clarity,
			UseSpeakerBoost: true,
		},
	}

	requestBody, err := json.Marshal(request)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/text-to-speech/%s/stream?output_format=%s&enable_logging=false",
		s.apiBaseURL, s.voiceID, s.outputFormat)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(requestBody))
	if err != nil {
		return fmt.Errorf("failed to create HTTP request: %w", err)
	}

	// PCM output requires the audio/pcm accept header
	acceptHeader := "audio/mpeg"
	if strings.HasPrefix(s.outputFormat, "pcm") {
		acceptHeader = "audio/pcm"
	}
	httpReq.Header.Set("Accept", acceptHeader)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("xi-api-key", s.apiKey)

	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to execute HTTP request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errorBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("API returned error %d: %s", resp.StatusCode, strings.TrimSpace(string(errorBody)))
	}

	buffer := make([]byte, s.chunkSize)
	totalBytes := 0
	chunkCount := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, err := resp.Body.Read(buffer)
		if n > 0 {
			totalBytes += n
			chunkCount++

			chunk := make([]byte, n)
			copy(chunk, buffer[:n])
			if s.sink != nil {
				if sinkErr := s.sink.WriteAudio(utterance.ID, chunk); sinkErr != nil {
					return fmt.Errorf("failed to write audio chunk: %w", sinkErr)
				}
			}
		}

		if err == io.EOF {
			s.logger.Info("Finished streaming audio data",
				zap.Int("totalChunks", chunkCount),
				zap.Int("totalBytes", totalBytes))
			return nil
		}
		if err != nil {
			return fmt.Errorf("error reading response body: %w", err)
		}
	}
}

var _ repositories.SynthesisEngine = (*ElevenLabsSynthesizer)(nil)
