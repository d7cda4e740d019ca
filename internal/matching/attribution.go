package matching

import (
	"guildhall/internal/domain"
)

// Attribute maps how a match was found to the provenance and confidence
// stamped on the resulting links. Note-derived evidence keeps the note_key
// provenance even on weak tiers; a note hint with no Discord candidate at all
// becomes a low-confidence stub.
func Attribute(tier MatchTier, fromNote bool) (domain.LinkSource, domain.Confidence) {
	if fromNote {
		switch tier {
		case TierExactUsername, TierExactDisplay:
			return domain.LinkSourceNoteKey, domain.ConfidenceHigh
		case TierNone:
			return domain.LinkSourceNoteKeyStub, domain.ConfidenceLow
		default:
			return domain.LinkSourceNoteKey, domain.ConfidenceMedium
		}
	}

	switch tier {
	case TierExactUsername, TierExactDisplay:
		return domain.LinkSourceExactName, domain.ConfidenceHigh
	case TierNone:
		return domain.LinkSourceUnknown, domain.ConfidenceUnknown
	default:
		return domain.LinkSourceFuzzyName, domain.ConfidenceMedium
	}
}
