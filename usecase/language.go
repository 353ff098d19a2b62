package usecase

import (
	"fmt"

	"golang.org/x/text/language"

	"github.com/zoraidacallejas/talk-to-your-assistant/domain"
)

// MatchLanguage picks the recognition language that best serves the requested
// locale among the ones the engine supports. An engine that does not report
// its languages gets the requested locale unchanged.
func MatchLanguage(requested string, supported []string) (string, error) {
	if len(supported) == 0 {
		return requested, nil
	}

	want, err := language.Parse(requested)
	if err != nil {
		return "", fmt.Errorf("%w: %q: %v", domain.ErrUnsupportedLanguage, requested, err)
	}

	tags := make([]language.Tag, 0, len(supported))
	index := make([]int, 0, len(supported))
	for i, s := range supported {
		tag, err := language.Parse(s)
		if err != nil {
			continue
		}
		tags = append(tags, tag)
		index = append(index, i)
	}
	if len(tags) == 0 {
		return "", fmt.Errorf("%w: %q", domain.ErrUnsupportedLanguage, requested)
	}

	_, i, confidence := language.NewMatcher(tags).Match(want)
	if confidence == language.No {
		return "", fmt.Errorf("%w: %q", domain.ErrUnsupportedLanguage, requested)
	}
	return supported[index[i]], nil
}
