package matching

import (
	"regexp"
	"strings"
	"unicode"

	"guildhall/internal/constants"

	"github.com/agnivade/levenshtein"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// NormalizeName lower-cases, trims surrounding whitespace and strips
// diacritics ("Zatañña" -> "zatanna"). Returns "" for empty input and never
// fails.
func NormalizeName(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return ""
	}

	stripMarks := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(stripMarks, s)
	if err != nil {
		return s
	}
	return out
}

var (
	noteLabelPattern   = regexp.MustCompile(`(?i)\b(?:discord|disc|dc|main)\s*:\s*(\S+)`)
	noteMentionPattern = regexp.MustCompile(`@([A-Za-z0-9._\-]+)`)
	noteAltOfPattern   = regexp.MustCompile(`(?i)\balt\s+of\s+(\S+)`)

	trailingPunct = ".,;:!?)]}\"'"
)

// ExtractDiscordHints scans free note text for identity hints: a
// "Discord:"/"DC:"/"Disc:"/"Main:" label, an @mention, or "alt of <name>".
// Candidates are returned with trailing punctuation stripped, deduplicated on
// their normalized form, in a deterministic pattern order. Text with no
// recognizable pattern yields nil.
func ExtractDiscordHints(note string) []string {
	if strings.TrimSpace(note) == "" {
		return nil
	}

	var hints []string
	seen := make(map[string]struct{})

	collect := func(matches [][]string) {
		for _, m := range matches {
			candidate := strings.TrimRight(m[1], trailingPunct)
			if candidate == "" {
				continue
			}
			key := NormalizeName(candidate)
			if key == "" {
				continue
			}
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			hints = append(hints, candidate)
		}
	}

	collect(noteLabelPattern.FindAllStringSubmatch(note, -1))
	collect(noteMentionPattern.FindAllStringSubmatch(note, -1))
	collect(noteAltOfPattern.FindAllStringSubmatch(note, -1))

	return hints
}

// FuzzyMatchScore scores the similarity of two names in [0,1]: 1.0 for
// case-insensitive equality, 0.0 when either side is empty, the length ratio
// when one name is a prefix or suffix of the other, and a normalized
// edit-distance similarity otherwise. Never fails.
func FuzzyMatchScore(a, b string) float64 {
	na, nb := NormalizeName(a), NormalizeName(b)
	if na == "" || nb == "" {
		return 0
	}
	if na == nb {
		return 1
	}

	shorter, longer := na, nb
	if len(shorter) > len(longer) {
		shorter, longer = longer, shorter
	}
	if strings.HasPrefix(longer, shorter) || strings.HasSuffix(longer, shorter) {
		return float64(len(shorter)) / float64(len(longer))
	}

	dist := levenshtein.ComputeDistance(na, nb)
	maxLen := len(na)
	if len(nb) > maxLen {
		maxLen = len(nb)
	}
	score := 1 - float64(dist)/float64(maxLen)
	if score < 0 {
		return 0
	}
	return score
}

// FuzzySimilar reports whether two names score above the close-name
// threshold.
func FuzzySimilar(a, b string) bool {
	return FuzzyMatchScore(a, b) >= constants.FuzzySimilarThreshold
}
