package matching

import (
	"testing"

	"guildhall/internal/domain"

	"github.com/stretchr/testify/assert"
)

func TestAttribute(t *testing.T) {
	tests := []struct {
		name           string
		tier           MatchTier
		fromNote       bool
		wantSource     domain.LinkSource
		wantConfidence domain.Confidence
	}{
		{"note exact username", TierExactUsername, true, domain.LinkSourceNoteKey, domain.ConfidenceHigh},
		{"note exact display", TierExactDisplay, true, domain.LinkSourceNoteKey, domain.ConfidenceHigh},
		{"note word in display", TierWordInDisplay, true, domain.LinkSourceNoteKey, domain.ConfidenceMedium},
		{"note substring username", TierSubstringUsername, true, domain.LinkSourceNoteKey, domain.ConfidenceMedium},
		{"note substring display", TierSubstringDisplay, true, domain.LinkSourceNoteKey, domain.ConfidenceMedium},
		{"note no candidate becomes stub", TierNone, true, domain.LinkSourceNoteKeyStub, domain.ConfidenceLow},
		{"name exact username", TierExactUsername, false, domain.LinkSourceExactName, domain.ConfidenceHigh},
		{"name exact display", TierExactDisplay, false, domain.LinkSourceExactName, domain.ConfidenceHigh},
		{"name word in display", TierWordInDisplay, false, domain.LinkSourceFuzzyName, domain.ConfidenceMedium},
		{"name substring username", TierSubstringUsername, false, domain.LinkSourceFuzzyName, domain.ConfidenceMedium},
		{"name substring display", TierSubstringDisplay, false, domain.LinkSourceFuzzyName, domain.ConfidenceMedium},
		{"name no candidate", TierNone, false, domain.LinkSourceUnknown, domain.ConfidenceUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			source, confidence := Attribute(tt.tier, tt.fromNote)
			assert.Equal(t, tt.wantSource, source)
			assert.Equal(t, tt.wantConfidence, confidence)
		})
	}
}
