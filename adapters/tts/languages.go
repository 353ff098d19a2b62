package tts

import (
	"github.com/zoraidacallejas/talk-to-your-assistant/domain/entities"
	"github.com/zoraidacallejas/talk-to-your-assistant/domain/repositories"
)

// languages spoken by the multilingual model, with the accents its stock
// voices cover. An empty country list means any country is accepted at
// language level only.
var languages = map[string][]string{
	"ar":  {"SA", "AE"},
	"bg":  nil,
	"cs":  nil,
	"da":  nil,
	"de":  {"DE", "AT", "CH"},
	"el":  nil,
	"en":  {"US", "GB", "AU", "CA", "IE", "IN"},
	"es":  {"ES", "MX", "US"},
	"fi":  nil,
	"fil": {"PH"},
	"fr":  {"FR", "CA"},
	"hi":  {"IN"},
	"hr":  nil,
	"id":  {"ID"},
	"it":  {"IT"},
	"ja":  {"JP"},
	"ko":  {"KR"},
	"ms":  {"MY"},
	"nl":  {"NL"},
	"pl":  {"PL"},
	"pt":  {"BR", "PT"},
	"ro":  nil,
	"ru":  {"RU"},
	"sk":  nil,
	"sv":  {"SE"},
	"ta":  {"IN"},
	"tr":  {"TR"},
	"uk":  {"UA"},
	"zh":  {"CN", "TW"},
}

// Availability reports how well the multilingual voices support a locale
func Availability(locale entities.Locale) repositories.Availability {
	locale = locale.Normalize()
	countries, ok := languages[locale.Language]
	if !ok {
		return repositories.LangUnsupported
	}
	if locale.Country == "" {
		return repositories.LangAvailable
	}
	for _, country := range countries {
		if country == locale.Country {
			return repositories.LangCountryAvailable
		}
	}
	return repositories.LangAvailable
}
