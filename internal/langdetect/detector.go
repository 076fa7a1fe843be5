// Package langdetect is a small heuristic classifier for the three languages
// the conversation layer cares about. It looks for common cue words and
// returns ("unknown", 0) when nothing matches; the evidence-merge policy in
// the inbound pipeline decides what to do with weak signals.
package langdetect

import (
	"regexp"
	"strings"
)

const Unknown = "unknown"

var (
	esPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(^|\W)s[ií](\W|$)`),
		regexp.MustCompile(`(^|\W)gracias(\W|$)`),
		regexp.MustCompile(`(^|\W)hola(\W|$)`),
	}
	ptPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(^|\W)sim(\W|$)`),
		regexp.MustCompile(`(^|\W)obrigado(\W|$)`),
		regexp.MustCompile(`(^|\W)olá(\W|$)`),
	}
	enPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(^|\W)yes(\W|$)`),
		regexp.MustCompile(`(^|\W)hello(\W|$)`),
		regexp.MustCompile(`(^|\W)thanks(\W|$)`),
	}
)

// Detect classifies a message body as es, pt, en or unknown with a
// confidence score. Spanish and Portuguese cues are stronger signals than
// the English ones, which also show up in mixed-language traffic.
func Detect(text string) (lang string, confidence float64) {
	if strings.TrimSpace(text) == "" {
		return Unknown, 0
	}
	lower := strings.ToLower(strings.TrimSpace(text))

	if matchAny(esPatterns, lower) {
		return "es", 0.9
	}
	if matchAny(ptPatterns, lower) {
		return "pt", 0.9
	}
	if matchAny(enPatterns, lower) {
		return "en", 0.8
	}
	return Unknown, 0
}

func matchAny(patterns []*regexp.Regexp, s string) bool {
	for _, p := range patterns {
		if p.MatchString(s) {
			return true
		}
	}
	return false
}
