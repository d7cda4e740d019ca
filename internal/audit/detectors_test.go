package audit

import (
	"context"
	"testing"
	"time"

	"guildhall/internal/domain"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strRef(s string) *string { return &s }

func presentMember(id, username, displayName string, personID *string) domain.DiscordMember {
	return domain.DiscordMember{DiscordID: id, Username: username, DisplayName: displayName, IsPresent: true, PersonID: personID}
}

func TestDetectNoteMismatches(t *testing.T) {
	t.Run("note resolves to a different member than the linked one", func(t *testing.T) {
		store := newMemStore()
		store.addChar(domain.WowCharacter{ID: 1, Name: "Somealt", GuildNote: "DC: rocket", PersonID: strRef("p1")})
		store.addMember(presentMember("d-elrek", "elrek", "Elrek", strRef("p1")))
		store.addMember(presentMember("d-rocket", "rocket", "Rocket", nil))

		created, err := NewChecker(store, zerolog.Nop()).DetectNoteMismatches(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, created)

		open := store.openIssues(domain.IssueNoteMismatch)
		require.Len(t, open, 1)
		assert.Equal(t, "char:1", open[0].SubjectKey)
		assert.Equal(t, domain.SeverityError, open[0].Severity)
		assert.Contains(t, open[0].Payload, "d-rocket")
		assert.Contains(t, open[0].Payload, "d-elrek")
	})

	t.Run("rerun refreshes instead of duplicating", func(t *testing.T) {
		store := newMemStore()
		store.addChar(domain.WowCharacter{ID: 1, Name: "Somealt", GuildNote: "DC: rocket", PersonID: strRef("p1")})
		store.addMember(presentMember("d-elrek", "elrek", "Elrek", strRef("p1")))
		store.addMember(presentMember("d-rocket", "rocket", "Rocket", nil))

		checker := NewChecker(store, zerolog.Nop())
		created, err := checker.DetectNoteMismatches(context.Background())
		require.NoError(t, err)
		require.Equal(t, 1, created)

		created, err = checker.DetectNoteMismatches(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 0, created)
		assert.Len(t, store.openIssues(domain.IssueNoteMismatch), 1)
	})

	t.Run("no issue cases", func(t *testing.T) {
		store := newMemStore()
		// Note agrees with the actual link.
		store.addChar(domain.WowCharacter{ID: 1, Name: "Goodalt", GuildNote: "DC: elrek", PersonID: strRef("p1")})
		// Hint resolves to nobody on Discord.
		store.addChar(domain.WowCharacter{ID: 2, Name: "Ghostalt", GuildNote: "DC: ghost", PersonID: strRef("p1")})
		// Unlinked character.
		store.addChar(domain.WowCharacter{ID: 3, Name: "Newalt", GuildNote: "DC: rocket"})
		// No note at all.
		store.addChar(domain.WowCharacter{ID: 4, Name: "Plainalt", PersonID: strRef("p1")})
		store.addMember(presentMember("d-elrek", "elrek", "Elrek", strRef("p1")))
		store.addMember(presentMember("d-rocket", "rocket", "Rocket", nil))

		created, err := NewChecker(store, zerolog.Nop()).DetectNoteMismatches(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 0, created)
		assert.Empty(t, store.openIssues(domain.IssueNoteMismatch))
	})

	t.Run("removed characters are skipped", func(t *testing.T) {
		store := newMemStore()
		removed := time.Now()
		store.addChar(domain.WowCharacter{ID: 1, Name: "Oldalt", GuildNote: "DC: rocket", PersonID: strRef("p1"), RemovedAt: &removed})
		store.addMember(presentMember("d-elrek", "elrek", "Elrek", strRef("p1")))
		store.addMember(presentMember("d-rocket", "rocket", "Rocket", nil))

		created, err := NewChecker(store, zerolog.Nop()).DetectNoteMismatches(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 0, created)
	})
}

func TestDetectLinkNoteContradictions(t *testing.T) {
	t.Run("note names someone other than the linked member", func(t *testing.T) {
		store := newMemStore()
		store.addChar(domain.WowCharacter{ID: 1, Name: "Mitoalt", GuildNote: "DC: mito", PersonID: strRef("p1")})
		store.addMember(presentMember("d-elrek", "elrek", "Elrek", strRef("p1")))

		created, err := NewChecker(store, zerolog.Nop()).DetectLinkNoteContradictions(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, created)

		open := store.openIssues(domain.IssueLinkContradictsNote)
		require.Len(t, open, 1)
		assert.Equal(t, "char:1", open[0].SubjectKey)
	})

	t.Run("exempt when key matches the linked member", func(t *testing.T) {
		store := newMemStore()
		// Exact username.
		store.addChar(domain.WowCharacter{ID: 1, Name: "Alt1", GuildNote: "DC: elrek", PersonID: strRef("p1")})
		// Token of a compound display name.
		store.addChar(domain.WowCharacter{ID: 2, Name: "Alt2", GuildNote: "DC: trog", PersonID: strRef("p2")})
		// Substring of the username.
		store.addChar(domain.WowCharacter{ID: 3, Name: "Alt3", GuildNote: "DC: rock", PersonID: strRef("p3")})
		store.addMember(presentMember("d1", "elrek", "Elrek", strRef("p1")))
		store.addMember(presentMember("d2", "shadowmain", "trog/shadow", strRef("p2")))
		store.addMember(presentMember("d3", "rocketeer", "", strRef("p3")))

		created, err := NewChecker(store, zerolog.Nop()).DetectLinkNoteContradictions(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 0, created)
	})

	t.Run("exempt when key is a registered alias of the person", func(t *testing.T) {
		store := newMemStore()
		store.addChar(domain.WowCharacter{ID: 1, Name: "Mitoalt", GuildNote: "DC: mito", PersonID: strRef("p1")})
		store.addMember(presentMember("d-elrek", "elrek", "Elrek", strRef("p1")))
		store.addAlias("p1", "mito")

		created, err := NewChecker(store, zerolog.Nop()).DetectLinkNoteContradictions(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 0, created)
	})

	t.Run("exempt when the latest link is a confirmed manual override", func(t *testing.T) {
		store := newMemStore()
		store.addChar(domain.WowCharacter{ID: 1, Name: "Mitoalt", GuildNote: "DC: mito", PersonID: strRef("p1")})
		store.addMember(presentMember("d-elrek", "elrek", "Elrek", strRef("p1")))
		store.addCharLink(1, domain.LinkSourceManual, domain.ConfidenceConfirmed)

		created, err := NewChecker(store, zerolog.Nop()).DetectLinkNoteContradictions(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 0, created)
	})

	t.Run("unconfirmed manual link is not exempt", func(t *testing.T) {
		store := newMemStore()
		store.addChar(domain.WowCharacter{ID: 1, Name: "Mitoalt", GuildNote: "DC: mito", PersonID: strRef("p1")})
		store.addMember(presentMember("d-elrek", "elrek", "Elrek", strRef("p1")))
		store.addCharLink(1, domain.LinkSourceManual, domain.ConfidenceHigh)

		created, err := NewChecker(store, zerolog.Nop()).DetectLinkNoteContradictions(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, created)
	})
}

func TestDetectDuplicateDiscordLinks(t *testing.T) {
	t.Run("one issue per claimant", func(t *testing.T) {
		store := newMemStore()
		store.claims["d1"] = []string{"p2", "p1"}
		store.claims["d2"] = []string{"p3"}

		created, err := NewChecker(store, zerolog.Nop()).DetectDuplicateDiscordLinks(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 2, created)

		open := store.openIssues(domain.IssueDuplicateDiscord)
		require.Len(t, open, 2)
		assert.Equal(t, "member:d1:player:p1", open[0].SubjectKey)
		assert.Equal(t, "member:d1:player:p2", open[1].SubjectKey)
		for _, issue := range open {
			assert.Equal(t, domain.SeverityError, issue.Severity)
		}
	})

	t.Run("rerun creates nothing new", func(t *testing.T) {
		store := newMemStore()
		store.claims["d1"] = []string{"p1", "p2"}

		checker := NewChecker(store, zerolog.Nop())
		created, err := checker.DetectDuplicateDiscordLinks(context.Background())
		require.NoError(t, err)
		require.Equal(t, 2, created)

		created, err = checker.DetectDuplicateDiscordLinks(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 0, created)
		assert.Len(t, store.openIssues(domain.IssueDuplicateDiscord), 2)
	})

	t.Run("single claimant is fine", func(t *testing.T) {
		store := newMemStore()
		store.claims["d1"] = []string{"p1"}

		created, err := NewChecker(store, zerolog.Nop()).DetectDuplicateDiscordLinks(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 0, created)
	})
}

func TestDetectStaleDiscordLinks(t *testing.T) {
	store := newMemStore()
	gone := presentMember("d1", "rocket", "Rocket", strRef("p1"))
	gone.IsPresent = false
	store.addMember(gone)
	store.addMember(presentMember("d2", "elrek", "Elrek", strRef("p2")))
	absentUnlinked := presentMember("d3", "mito", "Mito", nil)
	absentUnlinked.IsPresent = false
	store.addMember(absentUnlinked)

	created, err := NewChecker(store, zerolog.Nop()).DetectStaleDiscordLinks(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, created)

	open := store.openIssues(domain.IssueStaleDiscord)
	require.Len(t, open, 1)
	assert.Equal(t, "member:d1", open[0].SubjectKey)
	assert.Equal(t, domain.SeverityInfo, open[0].Severity)
}
