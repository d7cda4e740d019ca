package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"guildhall/internal/constants"
	"guildhall/internal/domain"
	"guildhall/internal/matching"

	"github.com/rs/zerolog"
)

// Store is the persistence surface the drift detectors need.
type Store interface {
	// ActiveCharacters excludes soft-deleted characters.
	ActiveCharacters(ctx context.Context) ([]domain.WowCharacter, error)
	CharacterByID(ctx context.Context, id int64) (*domain.WowCharacter, error)
	AllMembers(ctx context.Context) ([]domain.DiscordMember, error)
	MemberByID(ctx context.Context, discordID string) (*domain.DiscordMember, error)
	// MemberLinkedToPerson returns the Discord member currently claimed by a
	// person, or nil when the person has no Discord link.
	MemberLinkedToPerson(ctx context.Context, personID string) (*domain.DiscordMember, error)
	// PersonsByDiscordMember maps each Discord member id to the distinct
	// persons the identity-link trail has attached to it.
	PersonsByDiscordMember(ctx context.Context) (map[string][]string, error)
	IsAlias(ctx context.Context, playerID, alias string) (bool, error)
	LatestCharacterLink(ctx context.Context, characterID int64) (*domain.IdentityLink, error)

	UnresolvedIssue(ctx context.Context, issueType domain.IssueType, subjectKey string) (*domain.AuditIssue, error)
	UnresolvedIssues(ctx context.Context, issueType domain.IssueType) ([]domain.AuditIssue, error)
	CreateIssue(ctx context.Context, issue domain.AuditIssue) (*domain.AuditIssue, error)
	TouchIssue(ctx context.Context, id, payload string) error
	ResolveIssue(ctx context.Context, id string) error
}

type noteIssuePayload struct {
	CharacterID       int64  `json:"character_id"`
	CharacterName     string `json:"character_name"`
	NoteKey           string `json:"note_key"`
	PersonID          string `json:"person_id"`
	LinkedDiscordID   string `json:"linked_discord_id,omitempty"`
	ResolvedDiscordID string `json:"resolved_discord_id,omitempty"`
}

type duplicateIssuePayload struct {
	DiscordMemberID string `json:"discord_member_id"`
	PersonID        string `json:"person_id"`
	ClaimantCount   int    `json:"claimant_count"`
}

type staleIssuePayload struct {
	DiscordMemberID string `json:"discord_member_id"`
	Username        string `json:"username"`
	PersonID        string `json:"person_id"`
}

// Checker hosts the independent drift detectors. Each detector returns the
// count of newly created issues; updates to already-open issues are absorbed
// silently.
type Checker struct {
	store  Store
	logger zerolog.Logger
}

func NewChecker(store Store, logger zerolog.Logger) *Checker {
	return &Checker{store: store, logger: logger}
}

// DetectNoteMismatches flags characters whose note hint resolves to a
// Discord member different from the one actually linked to the character's
// person.
func (c *Checker) DetectNoteMismatches(ctx context.Context) (int, error) {
	chars, present, err := c.loadLinkedCharsAndPresent(ctx)
	if err != nil {
		return 0, err
	}

	created := 0
	for _, char := range chars {
		payload, holds, err := c.noteMismatchHolds(ctx, char, present)
		if err != nil {
			return created, err
		}
		if !holds {
			continue
		}

		isNew, err := c.upsertIssue(ctx, domain.IssueNoteMismatch, domain.SeverityError,
			fmt.Sprintf("char:%d", char.ID), payload)
		if err != nil {
			return created, err
		}
		if isNew {
			created++
		}
	}

	return created, nil
}

// noteMismatchHolds checks the note-mismatch condition for one character.
func (c *Checker) noteMismatchHolds(ctx context.Context, char domain.WowCharacter, present []domain.DiscordMember) (noteIssuePayload, bool, error) {
	var payload noteIssuePayload

	if char.Removed() || char.PersonID == nil {
		return payload, false, nil
	}
	hint := matching.NoteHint(char)
	if hint == "" {
		return payload, false, nil
	}
	key := matching.NormalizeName(hint)

	resolved, _ := matching.ResolveDiscordCandidate(key, present)
	if resolved == nil {
		return payload, false, nil
	}

	linked, err := c.store.MemberLinkedToPerson(ctx, *char.PersonID)
	if err != nil {
		return payload, false, fmt.Errorf("failed to load linked member for person %s: %w", *char.PersonID, err)
	}
	if linked == nil || linked.DiscordID == resolved.DiscordID {
		return payload, false, nil
	}

	payload = noteIssuePayload{
		CharacterID:       char.ID,
		CharacterName:     char.Name,
		NoteKey:           key,
		PersonID:          *char.PersonID,
		LinkedDiscordID:   linked.DiscordID,
		ResolvedDiscordID: resolved.DiscordID,
	}
	return payload, true, nil
}

// DetectLinkNoteContradictions flags characters whose existing link's person
// does not match what the note implies. Exempt when the note key matches the
// linked member's username or display name, when the key is a registered
// alias of the person, or when the link is an explicit officer override
// (manual + confirmed).
func (c *Checker) DetectLinkNoteContradictions(ctx context.Context) (int, error) {
	chars, _, err := c.loadLinkedCharsAndPresent(ctx)
	if err != nil {
		return 0, err
	}

	created := 0
	for _, char := range chars {
		payload, holds, err := c.linkContradictionHolds(ctx, char)
		if err != nil {
			return created, err
		}
		if !holds {
			continue
		}

		isNew, err := c.upsertIssue(ctx, domain.IssueLinkContradictsNote, domain.SeverityError,
			fmt.Sprintf("char:%d", char.ID), payload)
		if err != nil {
			return created, err
		}
		if isNew {
			created++
		}
	}

	return created, nil
}

// linkContradictionHolds checks the link-contradicts-note condition for one
// character.
func (c *Checker) linkContradictionHolds(ctx context.Context, char domain.WowCharacter) (noteIssuePayload, bool, error) {
	var payload noteIssuePayload

	if char.Removed() || char.PersonID == nil {
		return payload, false, nil
	}
	hint := matching.NoteHint(char)
	if hint == "" {
		return payload, false, nil
	}
	key := matching.NormalizeName(hint)

	linked, err := c.store.MemberLinkedToPerson(ctx, *char.PersonID)
	if err != nil {
		return payload, false, fmt.Errorf("failed to load linked member for person %s: %w", *char.PersonID, err)
	}
	if linked != nil && keyMatchesMember(key, linked) {
		return payload, false, nil
	}

	isAlias, err := c.store.IsAlias(ctx, *char.PersonID, key)
	if err != nil {
		return payload, false, fmt.Errorf("failed to check alias %q: %w", key, err)
	}
	if isAlias {
		return payload, false, nil
	}

	link, err := c.store.LatestCharacterLink(ctx, char.ID)
	if err != nil {
		return payload, false, fmt.Errorf("failed to load link for character %d: %w", char.ID, err)
	}
	if link != nil && link.LinkSource == domain.LinkSourceManual && link.Confidence == domain.ConfidenceConfirmed {
		return payload, false, nil
	}

	payload = noteIssuePayload{
		CharacterID:   char.ID,
		CharacterName: char.Name,
		NoteKey:       key,
		PersonID:      *char.PersonID,
	}
	if linked != nil {
		payload.LinkedDiscordID = linked.DiscordID
	}
	return payload, true, nil
}

// DetectDuplicateDiscordLinks flags every person claiming a Discord member
// that more than one person has been linked to.
func (c *Checker) DetectDuplicateDiscordLinks(ctx context.Context) (int, error) {
	byMember, err := c.store.PersonsByDiscordMember(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load discord link claims: %w", err)
	}

	memberIDs := make([]string, 0, len(byMember))
	for id := range byMember {
		memberIDs = append(memberIDs, id)
	}
	sort.Strings(memberIDs)

	created := 0
	for _, memberID := range memberIDs {
		persons := byMember[memberID]
		if len(persons) < 2 {
			continue
		}
		sort.Strings(persons)

		for _, personID := range persons {
			isNew, err := c.upsertIssue(ctx, domain.IssueDuplicateDiscord, domain.SeverityError,
				fmt.Sprintf("member:%s:player:%s", memberID, personID),
				duplicateIssuePayload{
					DiscordMemberID: memberID,
					PersonID:        personID,
					ClaimantCount:   len(persons),
				})
			if err != nil {
				return created, err
			}
			if isNew {
				created++
			}
		}
	}

	return created, nil
}

// DetectStaleDiscordLinks flags persons whose linked Discord member has left
// the guild.
func (c *Checker) DetectStaleDiscordLinks(ctx context.Context) (int, error) {
	members, err := c.store.AllMembers(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load discord members: %w", err)
	}

	created := 0
	for _, member := range members {
		if member.IsPresent || member.PersonID == nil {
			continue
		}

		isNew, err := c.upsertIssue(ctx, domain.IssueStaleDiscord, domain.SeverityInfo,
			fmt.Sprintf("member:%s", member.DiscordID),
			staleIssuePayload{
				DiscordMemberID: member.DiscordID,
				Username:        member.Username,
				PersonID:        *member.PersonID,
			})
		if err != nil {
			return created, err
		}
		if isNew {
			created++
		}
	}

	return created, nil
}

// upsertIssue creates a new issue or refreshes the open one for the same
// (type, subject). Only creations count toward detector totals.
func (c *Checker) upsertIssue(ctx context.Context, issueType domain.IssueType, severity domain.Severity, subjectKey string, payload any) (bool, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return false, fmt.Errorf("failed to marshal issue payload: %w", err)
	}

	existing, err := c.store.UnresolvedIssue(ctx, issueType, subjectKey)
	if err != nil {
		return false, fmt.Errorf("failed to look up issue %s/%s: %w", issueType, subjectKey, err)
	}
	if existing != nil {
		if err := c.store.TouchIssue(ctx, existing.ID, string(body)); err != nil {
			return false, fmt.Errorf("failed to refresh issue %s: %w", existing.ID, err)
		}
		return false, nil
	}

	if _, err := c.store.CreateIssue(ctx, domain.AuditIssue{
		IssueType:  issueType,
		Severity:   severity,
		SubjectKey: subjectKey,
		Payload:    string(body),
	}); err != nil {
		return false, fmt.Errorf("failed to create issue %s/%s: %w", issueType, subjectKey, err)
	}

	c.logger.Info().
		Str("issue_type", string(issueType)).
		Str("severity", string(severity)).
		Str("subject", subjectKey).
		Msg("audit issue recorded")
	return true, nil
}

func (c *Checker) loadLinkedCharsAndPresent(ctx context.Context) ([]domain.WowCharacter, []domain.DiscordMember, error) {
	chars, err := c.store.ActiveCharacters(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load characters: %w", err)
	}
	members, err := c.store.AllMembers(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load discord members: %w", err)
	}

	linked := chars[:0:0]
	for _, char := range chars {
		if !char.Removed() && char.PersonID != nil {
			linked = append(linked, char)
		}
	}
	present := make([]domain.DiscordMember, 0, len(members))
	for _, m := range members {
		if m.IsPresent {
			present = append(present, m)
		}
	}
	return linked, present, nil
}

// keyMatchesMember checks a note key against a member's names: exact match,
// token match (split on any non-alphanumeric, so "trog" matches
// "trog/shadow"), or substring containment with the usual length floor.
func keyMatchesMember(key string, member *domain.DiscordMember) bool {
	username := matching.NormalizeName(member.Username)
	display := matching.NormalizeName(member.DisplayName)

	if key == username || (display != "" && key == display) {
		return true
	}
	for _, token := range nameTokens(username) {
		if token == key {
			return true
		}
	}
	for _, token := range nameTokens(display) {
		if token == key {
			return true
		}
	}
	if len(key) >= constants.MinSubstringKeyLen {
		if strings.Contains(username, key) || (display != "" && strings.Contains(display, key)) {
			return true
		}
	}
	return false
}

func nameTokens(s string) []string {
	if s == "" {
		return nil
	}
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
