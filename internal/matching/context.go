package matching

import (
	"context"
	"sort"

	"guildhall/internal/domain"
)

// Store is the persistence surface the matching engine needs. Implemented by
// the repository layer; injected, never looked up globally.
type Store interface {
	// Reads. UnlinkedCharacters excludes soft-deleted characters and, when
	// minRankLevel is set, characters below that rank.
	UnlinkedCharacters(ctx context.Context, minRankLevel *int) ([]domain.WowCharacter, error)
	PresentMembers(ctx context.Context) ([]domain.DiscordMember, error)
	LinkedPersonByMember(ctx context.Context) (map[string]string, error)
	// LookupAlias returns the player id registered for an alias, or "" when
	// the alias is unknown.
	LookupAlias(ctx context.Context, alias string) (string, error)

	// Writes, valid only inside InTx.
	CreatePlayer(ctx context.Context, displayName string, stub bool) (*domain.Player, error)
	AssignCharacterPerson(ctx context.Context, characterID int64, personID string) error
	AssignMemberPerson(ctx context.Context, discordID, personID string) error
	RecordLink(ctx context.Context, link domain.IdentityLink) (*domain.IdentityLink, error)
	RegisterAlias(ctx context.Context, playerID, alias string) error
	UpgradeLinkConfidence(ctx context.Context, personID string, from, to domain.Confidence) error

	// InTx runs fn against a transaction-scoped store. All mutations of one
	// rule pass go through a single transaction so a mid-pass failure leaves
	// no partial links.
	InTx(ctx context.Context, fn func(Store) error) error
}

// NoteGroup is the set of unlinked characters whose notes yield the same
// normalized hint.
type NoteGroup struct {
	Key   string
	Hint  string
	Chars []domain.WowCharacter
}

// Context is the in-memory snapshot every rule in a pass consumes. Building
// it is read-only and idempotent; the runner rebuilds it fresh each pass.
type Context struct {
	MinRankLevel   *int
	Members        []domain.DiscordMember
	PersonByMember map[string]string
	NoteGroups     []NoteGroup
	NoHintChars    []domain.WowCharacter
}

// BuildContext loads the current snapshot of unlinked characters, present
// Discord members and the member->person cache, and buckets characters by
// note hint. Note groups are sorted by key for deterministic rule order.
func BuildContext(ctx context.Context, store Store, minRankLevel *int) (*Context, error) {
	chars, err := store.UnlinkedCharacters(ctx, minRankLevel)
	if err != nil {
		return nil, err
	}
	members, err := store.PresentMembers(ctx)
	if err != nil {
		return nil, err
	}
	personByMember, err := store.LinkedPersonByMember(ctx)
	if err != nil {
		return nil, err
	}

	mc := &Context{
		MinRankLevel:   minRankLevel,
		Members:        members,
		PersonByMember: personByMember,
	}

	groups := make(map[string]*NoteGroup)
	for _, char := range chars {
		if char.Removed() || char.PersonID != nil {
			continue
		}
		hint := NoteHint(char)
		if hint == "" {
			mc.NoHintChars = append(mc.NoHintChars, char)
			continue
		}
		key := NormalizeName(hint)
		group, ok := groups[key]
		if !ok {
			group = &NoteGroup{Key: key, Hint: hint}
			groups[key] = group
		}
		group.Chars = append(group.Chars, char)
	}

	for _, group := range groups {
		mc.NoteGroups = append(mc.NoteGroups, *group)
	}
	sort.Slice(mc.NoteGroups, func(i, j int) bool {
		return mc.NoteGroups[i].Key < mc.NoteGroups[j].Key
	})

	return mc, nil
}

// NoteHint returns the identity hint a character's notes carry, or "".
// Prefers the officer note over the guild note; officer notes are
// admin-maintained and more reliable.
func NoteHint(char domain.WowCharacter) string {
	if hints := ExtractDiscordHints(char.OfficerNote); len(hints) > 0 {
		return hints[0]
	}
	if hints := ExtractDiscordHints(char.GuildNote); len(hints) > 0 {
		return hints[0]
	}
	return ""
}
