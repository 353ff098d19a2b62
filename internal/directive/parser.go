// Package directive extracts machine-actionable instructions embedded in
// dialogue replies and routes them to the device action handlers.
//
// A reply carries at most one block delimited by <oob> and </oob>. The block
// payload is a small markup document whose recognised elements are map (with
// an optional nested myloc), search, launch, battery and directions (with
// nested from and to). Everything outside the block is spoken.
package directive

import (
	"bytes"
	"regexp"
	"strings"

	"golang.org/x/net/html"

	"github.com/zoraidacallejas/talk-to-your-assistant/domain/entities"
)

const (
	openMarker  = "<oob>"
	closeMarker = "</oob>"
)

var blockPattern = regexp.MustCompile(`(?s)` + regexp.QuoteMeta(openMarker) + `(.*?)` + regexp.QuoteMeta(closeMarker))

// Parse splits a raw reply into the text to speak and the embedded directives.
func Parse(reply string) entities.ParsedReply {
	loc := blockPattern.FindStringSubmatchIndex(reply)
	if loc == nil {
		return entities.ParsedReply{
			SpokenText: StripMarkup(reply),
			Offset:     -1,
		}
	}

	block := reply[loc[0]:loc[1]]
	payload := reply[loc[2]:loc[3]]
	parsed := entities.ParsedReply{
		Block:      block,
		Payload:    payload,
		Directives: Classify(payload),
	}

	before, after, found := strings.Cut(reply, block)
	if !found {
		parsed.SpokenText = reply
		parsed.Offset = -1
		return parsed
	}
	parsed.SpokenText = before + after
	parsed.Offset = len(before)
	return parsed
}

// Reassemble puts the block back where Parse found it.
func Reassemble(p entities.ParsedReply) string {
	if !p.HasDirective() || p.Offset < 0 || p.Offset > len(p.SpokenText) {
		return p.SpokenText
	}
	return p.SpokenText[:p.Offset] + p.Block + p.SpokenText[p.Offset:]
}

// StripMarkup removes complete tags and returns the remaining text. A '<'
// that never reaches a matching '>' is kept as text.
func StripMarkup(s string) string {
	z := html.NewTokenizer(strings.NewReader(s))
	var b strings.Builder
	for {
		switch z.Next() {
		case html.ErrorToken:
			// Raw holds the unterminated tag the input ended in, if any
			b.Write(z.Raw())
			return strings.TrimSpace(b.String())
		case html.TextToken:
			b.Write(z.Text())
		case html.CommentToken, html.DoctypeToken:
			if raw := z.Raw(); !bytes.HasSuffix(raw, []byte(">")) {
				b.Write(raw)
			}
		}
	}
}

type element struct {
	present bool
	open    bool
	text    strings.Builder
}

func (e *element) value() string {
	return strings.TrimSpace(e.text.String())
}

var recognised = []string{"map", "myloc", "search", "launch", "battery", "directions", "from", "to"}

// Classify reads the directives out of a block payload in dispatch order.
// Only the first occurrence of each element counts. Unclosed elements are
// tolerated and run until the end of the payload.
func Classify(payload string) []entities.Directive {
	elements := make(map[string]*element, len(recognised))
	for _, name := range recognised {
		elements[name] = &element{}
	}
	mylocInMap := false

	z := html.NewTokenizer(strings.NewReader(payload))
tokens:
	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			break tokens
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			el, ok := elements[string(name)]
			if !ok || el.present {
				continue
			}
			el.present = true
			el.open = tt == html.StartTagToken
			if string(name) == "myloc" && elements["map"].open {
				mylocInMap = true
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			if el, ok := elements[string(name)]; ok {
				el.open = false
			}
		case html.TextToken:
			text := z.Text()
			for _, el := range elements {
				if el.open {
					el.text.Write(text)
				}
			}
		}
	}

	var directives []entities.Directive
	for _, kind := range entities.DirectiveOrder {
		if !elements[string(kind)].present {
			continue
		}
		switch kind {
		case entities.DirectiveMap:
			if mylocInMap {
				directives = append(directives, entities.MapDirective{
					Place:             elements["myloc"].value(),
					UseDeviceLocation: true,
				})
			} else {
				directives = append(directives, entities.MapDirective{Place: elements["map"].value()})
			}
		case entities.DirectiveSearch:
			directives = append(directives, entities.SearchDirective{Query: elements["search"].value()})
		case entities.DirectiveLaunch:
			directives = append(directives, entities.LaunchDirective{AppName: elements["launch"].value()})
		case entities.DirectiveBattery:
			directives = append(directives, entities.BatteryDirective{})
		case entities.DirectiveDirections:
			d := entities.DirectionsDirective{
				From: elements["from"].value(),
				To:   elements["to"].value(),
			}
			if !elements["to"].present && !elements["from"].present {
				d.To = elements["directions"].value()
			}
			directives = append(directives, d)
		}
	}
	return directives
}
