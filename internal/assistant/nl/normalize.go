// Package nl implements deterministic input normalization for the assistant.
//
// The normalizer sits in front of conversation-state matching and model
// invocation. Its job is purely textual: strip hesitation fillers, fold case,
// trim punctuation, and collapse the many ways users say yes or no into two
// canonical tokens. No model is involved; the same input always produces the
// same output.
package nl

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Canonical tokens produced for recognised affirmation/negation utterances.
const (
	CanonicalYes = "sí"
	CanonicalNo  = "no"
)

// fillerPrefixes are hesitation markers stripped from the start of a message,
// longest first so multi-word fillers win over their prefixes.
var fillerPrefixes = []string{
	"bueno pues",
	"a ver",
	"o sea",
	"bueno",
	"pues",
	"este",
	"ehm",
	"emm",
	"mmm",
	"eh",
	"em",
}

// affirmations is the closed set of utterances mapped to CanonicalYes.
var affirmations = map[string]bool{
	"sí":           true,
	"si":           true,
	"sip":          true,
	"simón":        true,
	"claro":        true,
	"claro que sí": true,
	"claro que si": true,
	"ok":           true,
	"okay":         true,
	"vale":         true,
	"dale":         true,
	"va":           true,
	"sale":         true,
	"por supuesto": true,
	"afirmativo":   true,
	"yes":          true,
	"confirmo":     true,
	"confirmar":    true,
	"adelante":     true,
	"hazlo":        true,
	"de acuerdo":   true,
	"correcto":     true,
	"está bien":    true,
	"esta bien":    true,
	"perfecto":     true,
	"así es":       true,
	"asi es":       true,
}

// negations is the closed set of utterances mapped to CanonicalNo.
var negations = map[string]bool{
	"no":         true,
	"nel":        true,
	"nop":        true,
	"nope":       true,
	"para nada":  true,
	"negativo":   true,
	"mejor no":   true,
	"así no":     true,
	"asi no":     true,
	"no gracias": true,
}

// cancellations are bare phrases that always abort an active dialogue,
// independent of its state.
var cancellations = map[string]bool{
	"cancela":    true,
	"cancelar":   true,
	"cancélalo":  true,
	"cancelalo":  true,
	"olvídalo":   true,
	"olvidalo":   true,
	"déjalo":     true,
	"dejalo":     true,
	"ya no":      true,
	"detente":    true,
	"alto":       true,
	"olvida eso": true,
}

// Normalize canonicalizes raw user input. It never fails; empty input yields
// empty output. The transformation is, in order: whitespace trim, case fold,
// leading-filler removal, leading/trailing punctuation strip, and mapping of
// recognised affirmation/negation utterances to their canonical token.
func Normalize(raw string) string {
	text := strings.ToLower(strings.TrimSpace(raw))
	if text == "" {
		return ""
	}

	text = stripFillers(text)
	text = trimPunct(text)

	if affirmations[text] {
		return CanonicalYes
	}
	if negations[text] {
		return CanonicalNo
	}
	return text
}

// IsAffirmation reports whether normalized is the canonical yes token.
func IsAffirmation(normalized string) bool {
	return normalized == CanonicalYes
}

// IsNegation reports whether normalized is the canonical no token.
func IsNegation(normalized string) bool {
	return normalized == CanonicalNo
}

// IsCancellation reports whether normalized is a bare cancellation phrase.
// Cancellation always wins over slot-filling, whatever the dialogue state.
func IsCancellation(normalized string) bool {
	return cancellations[normalized]
}

// stripFillers removes leading filler patterns repeatedly. A filler only
// counts when followed by a word boundary, so "estela" is not mangled by the
// "este" filler.
func stripFillers(text string) string {
	for {
		stripped := false
		for _, f := range fillerPrefixes {
			if !strings.HasPrefix(text, f) {
				continue
			}
			rest := text[len(f):]
			if rest != "" {
				r, _ := utf8.DecodeRuneInString(rest)
				if !isBoundary(r) {
					continue
				}
			}
			text = strings.TrimLeft(rest, " ,.…")
			stripped = true
			break
		}
		if !stripped {
			return text
		}
	}
}

// isBoundary reports whether r terminates a filler word.
func isBoundary(r rune) bool {
	return unicode.IsSpace(r) || unicode.IsPunct(r)
}

// trimPunct strips leading and trailing punctuation and surrounding space.
// Interior punctuation is preserved so URLs, IDs, and amounts survive.
func trimPunct(text string) string {
	return strings.TrimSpace(strings.TrimFunc(text, func(r rune) bool {
		return unicode.IsPunct(r) || unicode.IsSymbol(r)
	}))
}
