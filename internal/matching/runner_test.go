package matching

import (
	"context"
	"testing"
	"time"

	"guildhall/internal/domain"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunnerLinksNameMatchAndConverges(t *testing.T) {
	store := newMemStore()
	store.addChar(domain.WowCharacter{ID: 1, Name: "Shodoom"})
	store.addMember(member("d1", "shodoom", "Shodoom"))

	summary, err := NewRunner(store, 0, zerolog.Nop()).Run(context.Background(), nil)
	require.NoError(t, err)

	// Pass 1 links, pass 2 finds nothing left and converges.
	assert.Equal(t, 2, summary.Passes)
	assert.True(t, summary.Converged)
	assert.Equal(t, 1, summary.PlayersCreated)
	assert.Equal(t, 1, summary.CharsLinked)
	assert.Equal(t, 1, summary.DiscordLinked)
	assert.Equal(t, 0, summary.StubsCreated)

	require.NotNil(t, store.chars[1].PersonID)
	require.NotNil(t, store.members["d1"].PersonID)
	assert.Equal(t, *store.chars[1].PersonID, *store.members["d1"].PersonID)
}

func TestRunnerSecondRunIsNoOp(t *testing.T) {
	store := newMemStore()
	store.addChar(domain.WowCharacter{ID: 1, Name: "Shodoom"})
	store.addChar(domain.WowCharacter{ID: 2, Name: "Somealt", GuildNote: "Discord: Rocket"})
	store.addMember(member("d1", "shodoom", "Shodoom"))
	store.addMember(member("d2", "rocket", "Rocket"))

	runner := NewRunner(store, 0, zerolog.Nop())
	first, err := runner.Run(context.Background(), nil)
	require.NoError(t, err)
	require.Equal(t, 2, first.CharsLinked)

	second, err := runner.Run(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, 1, second.Passes)
	assert.True(t, second.Converged)
	assert.Equal(t, 0, second.PlayersCreated)
	assert.Equal(t, 0, second.CharsLinked)
	assert.Equal(t, 0, second.DiscordLinked)
	assert.Equal(t, 0, second.StubsCreated)
}

func TestRunnerStubDoesNotLoop(t *testing.T) {
	store := newMemStore()
	store.addChar(domain.WowCharacter{ID: 1, Name: "Ghostalt", GuildNote: "alt of Ghost"})

	summary, err := NewRunner(store, 0, zerolog.Nop()).Run(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Passes)
	assert.True(t, summary.Converged)
	assert.Equal(t, 1, summary.StubsCreated)
	assert.Equal(t, 0, summary.CharsLinked)
	require.NotNil(t, store.chars[1].PersonID, "the stub still owns the character")
}

func TestRunnerHitsPassCap(t *testing.T) {
	store := newMemStore()
	store.addChar(domain.WowCharacter{ID: 1, Name: "Shodoom"})
	store.addMember(member("d1", "shodoom", "Shodoom"))

	summary, err := NewRunner(store, 1, zerolog.Nop()).Run(context.Background(), nil)
	require.NoError(t, err)

	// Pass 1 changed things and the cap denies the confirming pass. This is
	// normal termination, not an error.
	assert.Equal(t, 1, summary.Passes)
	assert.False(t, summary.Converged)
	assert.Equal(t, 1, summary.CharsLinked)
}

func TestRunnerIgnoresRemovedAndAbsent(t *testing.T) {
	store := newMemStore()
	removedAt := time.Now()
	store.addChar(domain.WowCharacter{ID: 1, Name: "Shodoom", RemovedAt: &removedAt})
	store.addChar(domain.WowCharacter{ID: 2, Name: "Rocket"})
	gone := member("d2", "rocket", "Rocket")
	gone.IsPresent = false
	store.addMember(member("d1", "shodoom", "Shodoom"))
	store.addMember(gone)

	summary, err := NewRunner(store, 0, zerolog.Nop()).Run(context.Background(), nil)
	require.NoError(t, err)

	assert.True(t, summary.Converged)
	assert.Equal(t, 0, summary.CharsLinked)
	assert.Equal(t, 0, summary.DiscordLinked)
	assert.Nil(t, store.chars[1].PersonID)
	assert.Nil(t, store.chars[2].PersonID)
}

func TestRunnerHonorsMinRankLevel(t *testing.T) {
	store := newMemStore()
	store.addChar(domain.WowCharacter{ID: 1, Name: "Shodoom", RankLevel: 1})
	store.addChar(domain.WowCharacter{ID: 2, Name: "Rocket", RankLevel: 5})
	store.addMember(member("d1", "shodoom", "Shodoom"))
	store.addMember(member("d2", "rocket", "Rocket"))

	minRank := 3
	summary, err := NewRunner(store, 0, zerolog.Nop()).Run(context.Background(), &minRank)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.CharsLinked)
	assert.Nil(t, store.chars[1].PersonID)
	assert.NotNil(t, store.chars[2].PersonID)
}
