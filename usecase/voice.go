package usecase

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/zoraidacallejas/talk-to-your-assistant/domain/entities"
	"github.com/zoraidacallejas/talk-to-your-assistant/domain/repositories"
	"github.com/zoraidacallejas/talk-to-your-assistant/internal/metrics"
)

// Voice turns text into utterances for a synthesis engine, resolving the
// locale on every call
type Voice struct {
	engine    repositories.SynthesisEngine
	locale    entities.Locale
	logger    *zap.Logger
	mu        sync.RWMutex
	observers []func(entities.Utterance)
}

// NewVoice creates a voice speaking in locale when the engine allows it
func NewVoice(engine repositories.SynthesisEngine, locale entities.Locale, logger *zap.Logger) *Voice {
	return &Voice{
		engine: engine,
		locale: locale,
		logger: logger,
	}
}

// Observe registers fn to be called with every utterance submitted to the engine
func (v *Voice) Observe(fn func(entities.Utterance)) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.observers = append(v.observers, fn)
}

// Speak submits text to the engine. Locale fallbacks are logged, not returned.
func (v *Voice) Speak(ctx context.Context, text string, id entities.UtteranceID, mode entities.QueueMode) error {
	resolved, err := ResolveSynthesisLocale(v.engine, v.locale)
	if err != nil {
		var fallback *LocaleFallbackError
		if errors.As(err, &fallback) {
			metrics.LocaleFallbacksTotal.WithLabelValues(fallback.Level).Inc()
		}
		v.logger.Warn("Synthesis locale fallback", zap.Error(err))
	}

	utterance := entities.Utterance{
		Text:         text,
		LanguageCode: resolved.Language,
		CountryCode:  resolved.Country,
		ID:           id,
		QueueMode:    mode,
	}
	if err := v.engine.Speak(ctx, utterance); err != nil {
		return err
	}

	v.mu.RLock()
	observers := v.observers
	v.mu.RUnlock()
	for _, fn := range observers {
		fn(utterance)
	}
	return nil
}
