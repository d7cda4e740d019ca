package matching

import (
	"context"
	"fmt"
	"sort"

	"guildhall/internal/domain"
)

// memStore is an in-memory Store for rule and runner tests. It mirrors the
// repository contracts: unlinked-character filtering, alias lookup on the
// normalized form, assigning a member clears the player's stub flag.
type memStore struct {
	chars   map[int64]*domain.WowCharacter
	members map[string]*domain.DiscordMember
	players map[string]*domain.Player
	links   []domain.IdentityLink
	aliases map[string]string

	playerSeq int
	linkSeq   int
}

func newMemStore() *memStore {
	return &memStore{
		chars:   make(map[int64]*domain.WowCharacter),
		members: make(map[string]*domain.DiscordMember),
		players: make(map[string]*domain.Player),
		aliases: make(map[string]string),
	}
}

func (s *memStore) addChar(char domain.WowCharacter) {
	c := char
	s.chars[c.ID] = &c
}

func (s *memStore) addMember(m domain.DiscordMember) {
	mm := m
	s.members[mm.DiscordID] = &mm
}

func (s *memStore) UnlinkedCharacters(_ context.Context, minRankLevel *int) ([]domain.WowCharacter, error) {
	var out []domain.WowCharacter
	for _, c := range s.chars {
		if c.Removed() || c.PersonID != nil {
			continue
		}
		if minRankLevel != nil && c.RankLevel < *minRankLevel {
			continue
		}
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memStore) PresentMembers(_ context.Context) ([]domain.DiscordMember, error) {
	var out []domain.DiscordMember
	for _, m := range s.members {
		if m.IsPresent {
			out = append(out, *m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DiscordID < out[j].DiscordID })
	return out, nil
}

func (s *memStore) LinkedPersonByMember(_ context.Context) (map[string]string, error) {
	out := make(map[string]string)
	for _, m := range s.members {
		if m.PersonID != nil {
			out[m.DiscordID] = *m.PersonID
		}
	}
	return out, nil
}

func (s *memStore) LookupAlias(_ context.Context, alias string) (string, error) {
	return s.aliases[NormalizeName(alias)], nil
}

func (s *memStore) CreatePlayer(_ context.Context, displayName string, stub bool) (*domain.Player, error) {
	s.playerSeq++
	p := &domain.Player{
		ID:          fmt.Sprintf("player-%d", s.playerSeq),
		DisplayName: displayName,
		IsStub:      stub,
	}
	s.players[p.ID] = p
	return p, nil
}

func (s *memStore) AssignCharacterPerson(_ context.Context, characterID int64, personID string) error {
	c, ok := s.chars[characterID]
	if !ok {
		return fmt.Errorf("character %d not found", characterID)
	}
	c.PersonID = &personID
	return nil
}

func (s *memStore) AssignMemberPerson(_ context.Context, discordID, personID string) error {
	m, ok := s.members[discordID]
	if !ok {
		return fmt.Errorf("member %s not found", discordID)
	}
	m.PersonID = &personID
	if p, ok := s.players[personID]; ok {
		p.IsStub = false
	}
	return nil
}

func (s *memStore) RecordLink(_ context.Context, link domain.IdentityLink) (*domain.IdentityLink, error) {
	s.linkSeq++
	link.ID = fmt.Sprintf("link-%d", s.linkSeq)
	s.links = append(s.links, link)
	return &link, nil
}

func (s *memStore) RegisterAlias(_ context.Context, playerID, alias string) error {
	key := NormalizeName(alias)
	if _, ok := s.aliases[key]; !ok {
		s.aliases[key] = playerID
	}
	return nil
}

func (s *memStore) UpgradeLinkConfidence(_ context.Context, personID string, from, to domain.Confidence) error {
	for i := range s.links {
		if s.links[i].PersonID == personID && s.links[i].Confidence == from {
			s.links[i].Confidence = to
		}
	}
	return nil
}

func (s *memStore) InTx(_ context.Context, fn func(Store) error) error {
	return fn(s)
}

func (s *memStore) linksFor(personID string) []domain.IdentityLink {
	var out []domain.IdentityLink
	for _, l := range s.links {
		if l.PersonID == personID {
			out = append(out, l)
		}
	}
	return out
}
