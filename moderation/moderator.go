// Package moderation masks content that must not travel through project
// chat: off-platform contact details (emails, phone numbers) and a
// configurable word list (payment steering, abuse). The negotiation
// record stays readable; only the offending spans are replaced.
package moderation

import (
	"regexp"
	"strings"
	"unicode"

	goahocorasick "github.com/anknown/ahocorasick"
)

var (
	emailPattern = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
	// Seven or more digits allowing separators: long enough to skip
	// prices and dimensions, short enough to catch phone numbers.
	phonePattern = regexp.MustCompile(`\+?\d[\d\s().\-]{6,}\d`)
)

const (
	foundEmail = "EMAIL"
	foundPhone = "PHONE"
)

type Moderator struct {
	matcher  *goahocorasick.Machine
	maskChar rune
}

type TextMapping struct {
	Normalized []rune
	OrigIdx    []int
}

// NewModerator initializes the Aho-Corasick automaton with a normalized version
// of the provided word list.
func NewModerator(words []string, maskChar rune) (Moderator, error) {
	patterns := make([][]rune, len(words))
	for i, word := range words {
		patterns[i] = normalizeRunes([]rune(word))
	}

	m := new(goahocorasick.Machine)
	if err := m.Build(patterns); err != nil {
		return Moderator{}, err
	}
	return Moderator{matcher: m, maskChar: maskChar}, nil
}

// Censor masks forbidden spans and reports what was found. Word matches
// are resolved on a normalized view of the text (case, separators and
// digit substitutions folded away) while the replacement happens on the
// original runes, preserving spacing.
func (m *Moderator) Censor(original string) (string, []string) {
	masked, found := m.maskContactDetails(original)

	mapping := m.normalize(masked)
	if len(mapping.Normalized) == 0 {
		return masked, found
	}

	origRunes := []rune(masked)
	spans := m.matcher.MultiPatternSearch(mapping.Normalized, false)
	for _, span := range spans {
		normStart := span.Pos
		normEnd := normStart + len(span.Word)

		if normStart < 0 || normEnd > len(mapping.OrigIdx) {
			continue
		}

		origStart := mapping.OrigIdx[normStart]
		lastCharOrigIdx := mapping.OrigIdx[normEnd-1]
		origEnd := lastCharOrigIdx + 1

		for i := origStart; i < origEnd; i++ {
			origRunes[i] = m.maskChar
		}
		found = append(found, string(span.Word))
	}

	return string(origRunes), found
}

// maskContactDetails replaces email addresses and phone numbers rune by
// rune, keeping the message length stable.
func (m *Moderator) maskContactDetails(original string) (string, []string) {
	var found []string
	masked := emailPattern.ReplaceAllStringFunc(original, func(s string) string {
		found = append(found, foundEmail)
		return strings.Repeat(string(m.maskChar), len([]rune(s)))
	})
	masked = phonePattern.ReplaceAllStringFunc(masked, func(s string) string {
		found = append(found, foundPhone)
		return strings.Repeat(string(m.maskChar), len([]rune(s)))
	})
	return masked, found
}

// normalize transforms the input string into a searchable format and tracks
// original rune positions.
func (m *Moderator) normalize(input string) TextMapping {
	origRunes := []rune(input)
	norm := make([]rune, 0, len(origRunes))
	origIdx := make([]int, 0, len(origRunes))

	for i, r := range origRunes {
		clean := simplifyRune(r)
		if isNoise(clean) {
			continue
		}
		norm = append(norm, unicode.ToLower(clean))
		origIdx = append(origIdx, i)
	}
	return TextMapping{Normalized: norm, OrigIdx: origIdx}
}

func normalizeRunes(input []rune) []rune {
	out := make([]rune, 0, len(input))
	for _, r := range input {
		clean := simplifyRune(r)
		if isNoise(clean) {
			continue
		}
		out = append(out, unicode.ToLower(clean))
	}
	return out
}

// simplifyRune folds the usual digit and symbol substitutions back to
// the letters they imitate.
func simplifyRune(r rune) rune {
	switch r {
	case '0':
		return 'o'
	case '1', '!':
		return 'i'
	case '3':
		return 'e'
	case '4', '@':
		return 'a'
	case '5', '$':
		return 's'
	case '7':
		return 't'
	default:
		return r
	}
}

func isNoise(r rune) bool {
	return unicode.IsSpace(r) || r == '.' || r == '-' || r == '_' || r == '*'
}
