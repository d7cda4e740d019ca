package matching

import (
	"context"
	"fmt"
	"sort"

	"guildhall/internal/domain"
)

// Rule is one ordered matching strategy. Rules read the shared pass context
// and mutate state only through the transaction-scoped store they are given.
type Rule interface {
	Name() string
	Order() int
	LinkSource() domain.LinkSource
	Description() string
	Run(ctx context.Context, store Store, mc *Context) (*RuleResult, error)
}

// RuleResult summarizes one rule invocation. Stub creation and skips are
// recorded but deliberately excluded from ChangedAnything so a stub written
// on pass N does not trigger pass N+1 forever.
type RuleResult struct {
	RuleName       string   `json:"rule_name"`
	PlayersCreated int      `json:"players_created"`
	CharsLinked    int      `json:"chars_linked"`
	DiscordLinked  int      `json:"discord_linked"`
	StubsCreated   int      `json:"stubs_created"`
	Skipped        int      `json:"skipped"`
	Details        []string `json:"details,omitempty"`
}

// ChangedAnything is the convergence signal for the runner.
func (r *RuleResult) ChangedAnything() bool {
	return r.PlayersCreated+r.CharsLinked+r.DiscordLinked > 0
}

// Rules returns the static rule registry sorted by run order.
func Rules() []Rule {
	rules := []Rule{
		&NoteGroupRule{},
		&NameMatchRule{},
	}
	sort.SliceStable(rules, func(i, j int) bool {
		return rules[i].Order() < rules[j].Order()
	})
	return rules
}

// NoteGroupRule links every character sharing a note hint, plus the Discord
// member the hint resolves to, to one player. A hint with no Discord
// candidate still produces a stub player so the group isn't reprocessed
// empty-handed on every pass.
type NoteGroupRule struct{}

func (r *NoteGroupRule) Name() string                  { return "note_group" }
func (r *NoteGroupRule) Order() int                    { return 10 }
func (r *NoteGroupRule) LinkSource() domain.LinkSource { return domain.LinkSourceNoteKey }
func (r *NoteGroupRule) Description() string {
	return "links characters grouped by note hint to the Discord member the hint resolves to"
}

func (r *NoteGroupRule) Run(ctx context.Context, store Store, mc *Context) (*RuleResult, error) {
	res := &RuleResult{RuleName: r.Name()}

	for _, group := range mc.NoteGroups {
		member, tier := ResolveDiscordCandidate(group.Key, mc.Members)
		source, confidence := Attribute(tier, true)

		aliasPerson, err := store.LookupAlias(ctx, group.Key)
		if err != nil {
			return nil, fmt.Errorf("failed to look up alias %q: %w", group.Key, err)
		}

		if member == nil {
			if err := r.linkStubGroup(ctx, store, group, aliasPerson, res); err != nil {
				return nil, err
			}
			continue
		}

		personID := mc.PersonByMember[member.DiscordID]
		if personID == "" {
			wasStub := aliasPerson != ""
			if wasStub {
				personID = aliasPerson
			} else {
				player, err := store.CreatePlayer(ctx, memberDisplayName(member), false)
				if err != nil {
					return nil, fmt.Errorf("failed to create player for %q: %w", group.Key, err)
				}
				personID = player.ID
				res.PlayersCreated++
			}

			if err := store.AssignMemberPerson(ctx, member.DiscordID, personID); err != nil {
				return nil, fmt.Errorf("failed to assign member %s: %w", member.DiscordID, err)
			}
			if _, err := store.RecordLink(ctx, domain.IdentityLink{
				PersonID:        personID,
				DiscordMemberID: &member.DiscordID,
				LinkSource:      source,
				Confidence:      confidence,
			}); err != nil {
				return nil, fmt.Errorf("failed to record discord link: %w", err)
			}
			mc.PersonByMember[member.DiscordID] = personID
			res.DiscordLinked++

			if wasStub {
				// The stub's evidence just got a real Discord link behind it.
				if err := store.UpgradeLinkConfidence(ctx, personID, domain.ConfidenceLow, domain.ConfidenceMedium); err != nil {
					return nil, fmt.Errorf("failed to upgrade link confidence: %w", err)
				}
			}
		}

		if err := store.RegisterAlias(ctx, personID, group.Key); err != nil {
			return nil, fmt.Errorf("failed to register alias %q: %w", group.Key, err)
		}

		for _, char := range group.Chars {
			if err := linkCharacter(ctx, store, char, personID, source, confidence); err != nil {
				return nil, err
			}
			res.CharsLinked++
		}

		res.Details = append(res.Details, fmt.Sprintf(
			"note key %q -> member %s (%s): %d character(s)", group.Key, member.Username, tier, len(group.Chars)))
	}

	return res, nil
}

// linkStubGroup records the group against a stub player. None of this counts
// toward ChangedAnything: stubs must not keep the runner looping.
func (r *NoteGroupRule) linkStubGroup(ctx context.Context, store Store, group NoteGroup, aliasPerson string, res *RuleResult) error {
	personID := aliasPerson
	if personID == "" {
		player, err := store.CreatePlayer(ctx, group.Hint, true)
		if err != nil {
			return fmt.Errorf("failed to create stub player for %q: %w", group.Key, err)
		}
		personID = player.ID
		if err := store.RegisterAlias(ctx, personID, group.Key); err != nil {
			return fmt.Errorf("failed to register stub alias %q: %w", group.Key, err)
		}
		res.StubsCreated++
	}

	for _, char := range group.Chars {
		if err := linkCharacter(ctx, store, char, personID, domain.LinkSourceNoteKeyStub, domain.ConfidenceLow); err != nil {
			return err
		}
	}

	res.Details = append(res.Details, fmt.Sprintf(
		"note key %q has no Discord candidate: stub player %s holds %d character(s)", group.Key, personID, len(group.Chars)))
	return nil
}

// NameMatchRule tries a direct character-name match against Discord
// usernames and display names. It runs after NoteGroupRule and only sees
// characters that carried no note hint.
type NameMatchRule struct{}

func (r *NameMatchRule) Name() string                  { return "name_match" }
func (r *NameMatchRule) Order() int                    { return 20 }
func (r *NameMatchRule) LinkSource() domain.LinkSource { return domain.LinkSourceExactName }
func (r *NameMatchRule) Description() string {
	return "links no-note characters whose name matches a Discord username or display name"
}

func (r *NameMatchRule) Run(ctx context.Context, store Store, mc *Context) (*RuleResult, error) {
	res := &RuleResult{RuleName: r.Name()}

	for _, char := range mc.NoHintChars {
		key := NormalizeName(char.Name)
		member, tier := ResolveDiscordCandidate(key, mc.Members)
		if member == nil {
			res.Skipped++
			if name, score := bestFuzzyCandidate(key, mc.Members); name != "" {
				res.Details = append(res.Details, fmt.Sprintf(
					"%s: no tier match, closest Discord name %q scores %.2f", char.Name, name, score))
			}
			continue
		}

		source, confidence := Attribute(tier, false)

		personID := mc.PersonByMember[member.DiscordID]
		if personID == "" {
			player, err := store.CreatePlayer(ctx, memberDisplayName(member), false)
			if err != nil {
				return nil, fmt.Errorf("failed to create player for %q: %w", char.Name, err)
			}
			personID = player.ID
			res.PlayersCreated++

			if err := store.AssignMemberPerson(ctx, member.DiscordID, personID); err != nil {
				return nil, fmt.Errorf("failed to assign member %s: %w", member.DiscordID, err)
			}
			if _, err := store.RecordLink(ctx, domain.IdentityLink{
				PersonID:        personID,
				DiscordMemberID: &member.DiscordID,
				LinkSource:      source,
				Confidence:      confidence,
			}); err != nil {
				return nil, fmt.Errorf("failed to record discord link: %w", err)
			}
			mc.PersonByMember[member.DiscordID] = personID
			res.DiscordLinked++
		}

		if err := linkCharacter(ctx, store, char, personID, source, confidence); err != nil {
			return nil, err
		}
		res.CharsLinked++

		res.Details = append(res.Details, fmt.Sprintf(
			"%s -> member %s (%s)", char.Name, member.Username, tier))
	}

	return res, nil
}

func linkCharacter(ctx context.Context, store Store, char domain.WowCharacter, personID string, source domain.LinkSource, confidence domain.Confidence) error {
	if err := store.AssignCharacterPerson(ctx, char.ID, personID); err != nil {
		return fmt.Errorf("failed to assign character %s: %w", char.Name, err)
	}
	charID := char.ID
	if _, err := store.RecordLink(ctx, domain.IdentityLink{
		PersonID:       personID,
		WowCharacterID: &charID,
		LinkSource:     source,
		Confidence:     confidence,
	}); err != nil {
		return fmt.Errorf("failed to record character link for %s: %w", char.Name, err)
	}
	return nil
}

func memberDisplayName(member *domain.DiscordMember) string {
	if member.DisplayName != "" {
		return member.DisplayName
	}
	return member.Username
}

// bestFuzzyCandidate surfaces near-misses for operator review; it never
// links.
func bestFuzzyCandidate(key string, members []domain.DiscordMember) (string, float64) {
	var bestName string
	var bestScore float64
	for i := range members {
		for _, candidate := range []string{members[i].Username, members[i].DisplayName} {
			if score := FuzzyMatchScore(key, candidate); score > bestScore {
				bestScore = score
				bestName = candidate
			}
		}
	}
	if !FuzzySimilar(key, bestName) {
		return "", 0
	}
	return bestName, bestScore
}
