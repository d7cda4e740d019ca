package matching

import (
	"strings"
	"unicode"

	"guildhall/internal/constants"
	"guildhall/internal/domain"
)

// MatchTier labels how a Discord candidate was found.
type MatchTier string

const (
	TierExactUsername     MatchTier = "exact_username"
	TierExactDisplay      MatchTier = "exact_display"
	TierWordInDisplay     MatchTier = "word_in_display"
	TierSubstringUsername MatchTier = "substring_username"
	TierSubstringDisplay  MatchTier = "substring_display"
	TierNone              MatchTier = "none"
)

// ResolveDiscordCandidate finds the Discord member a normalized key refers
// to, trying tiers in strict priority order: exact username, exact display
// name, whitespace/hyphen-delimited display-name token, then substring
// containment in username and display name. The first hit wins even if a
// lower tier would match a different member. Substring tiers require
// len(key) >= 3. Returns nil and TierNone when nothing matches.
func ResolveDiscordCandidate(key string, members []domain.DiscordMember) (*domain.DiscordMember, MatchTier) {
	if key == "" || len(members) == 0 {
		return nil, TierNone
	}

	for i := range members {
		if NormalizeName(members[i].Username) == key {
			return &members[i], TierExactUsername
		}
	}
	for i := range members {
		if NormalizeName(members[i].DisplayName) == key {
			return &members[i], TierExactDisplay
		}
	}
	for i := range members {
		for _, word := range displayWords(members[i].DisplayName) {
			if word == key {
				return &members[i], TierWordInDisplay
			}
		}
	}

	if len(key) < constants.MinSubstringKeyLen {
		return nil, TierNone
	}

	for i := range members {
		if strings.Contains(NormalizeName(members[i].Username), key) {
			return &members[i], TierSubstringUsername
		}
	}
	for i := range members {
		if strings.Contains(NormalizeName(members[i].DisplayName), key) {
			return &members[i], TierSubstringDisplay
		}
	}

	return nil, TierNone
}

func displayWords(displayName string) []string {
	normalized := NormalizeName(displayName)
	if normalized == "" {
		return nil
	}
	return strings.FieldsFunc(normalized, func(r rune) bool {
		return unicode.IsSpace(r) || r == '-'
	})
}
