package usecase

import (
	"fmt"

	"github.com/zoraidacallejas/talk-to-your-assistant/domain/entities"
	"github.com/zoraidacallejas/talk-to-your-assistant/domain/repositories"
)

// Fallback levels
const (
	FallbackLanguage = "language"
	FallbackDefault  = "default"
)

// LocaleFallbackError reports that synthesis could not use the requested
// locale as is. It is recoverable: Resolved is always usable.
type LocaleFallbackError struct {
	Requested entities.Locale
	Resolved  entities.Locale
	Level     string
	Reason    string
}

func (e *LocaleFallbackError) Error() string {
	return fmt.Sprintf("%s (requested %q, using %q)", e.Reason, e.Requested.String(), e.Resolved.String())
}

// LanguageChecker is the part of a synthesis engine needed to resolve locales
type LanguageChecker interface {
	IsLanguageAvailable(locale entities.Locale) repositories.Availability
	DefaultLocale() entities.Locale
}

// ResolveSynthesisLocale tries language and country, then the language alone,
// then the engine default. It never fails; a non-nil error is always a
// *LocaleFallbackError describing the fallback taken.
func ResolveSynthesisLocale(engine LanguageChecker, requested entities.Locale) (entities.Locale, error) {
	requested = requested.Normalize()

	fallback := func(level, reason string, resolved entities.Locale) (entities.Locale, error) {
		return resolved, &LocaleFallbackError{
			Requested: requested,
			Resolved:  resolved,
			Level:     level,
			Reason:    reason,
		}
	}

	if requested.IsZero() {
		return fallback(FallbackDefault, "language code was not provided, using default locale", engine.DefaultLocale())
	}

	if requested.Country != "" {
		if engine.IsLanguageAvailable(requested) == repositories.LangCountryAvailable {
			return requested, nil
		}
		langOnly := requested.LanguageOnly()
		if engine.IsLanguageAvailable(langOnly) >= repositories.LangAvailable {
			return fallback(FallbackLanguage, "country code not supported, using language only", langOnly)
		}
		return fallback(FallbackDefault, "language or country code not supported, using default locale", engine.DefaultLocale())
	}

	if engine.IsLanguageAvailable(requested) >= repositories.LangAvailable {
		return requested, nil
	}
	return fallback(FallbackDefault, "language code not supported, using default locale", engine.DefaultLocale())
}
