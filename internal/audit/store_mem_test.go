package audit

import (
	"context"
	"fmt"
	"sort"

	"guildhall/internal/domain"
	"guildhall/internal/matching"
)

// memStore is an in-memory audit Store for detector and scanner tests.
type memStore struct {
	chars     map[int64]*domain.WowCharacter
	members   map[string]*domain.DiscordMember
	claims    map[string][]string
	aliases   map[string]map[string]bool
	charLinks map[int64][]domain.IdentityLink
	issues    []*domain.AuditIssue

	issueSeq int
}

func newMemStore() *memStore {
	return &memStore{
		chars:     make(map[int64]*domain.WowCharacter),
		members:   make(map[string]*domain.DiscordMember),
		claims:    make(map[string][]string),
		aliases:   make(map[string]map[string]bool),
		charLinks: make(map[int64][]domain.IdentityLink),
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

func (s *memStore) addAlias(playerID, alias string) {
	key := matching.NormalizeName(alias)
	if s.aliases[playerID] == nil {
		s.aliases[playerID] = make(map[string]bool)
	}
	s.aliases[playerID][key] = true
}

func (s *memStore) addCharLink(charID int64, source domain.LinkSource, confidence domain.Confidence) {
	s.charLinks[charID] = append(s.charLinks[charID], domain.IdentityLink{
		WowCharacterID: &charID,
		LinkSource:     source,
		Confidence:     confidence,
	})
}

func (s *memStore) openIssues(issueType domain.IssueType) []*domain.AuditIssue {
	var out []*domain.AuditIssue
	for _, issue := range s.issues {
		if !issue.Resolved && issue.IssueType == issueType {
			out = append(out, issue)
		}
	}
	return out
}

func (s *memStore) ActiveCharacters(_ context.Context) ([]domain.WowCharacter, error) {
	var out []domain.WowCharacter
	for _, c := range s.chars {
		if !c.Removed() {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memStore) CharacterByID(_ context.Context, id int64) (*domain.WowCharacter, error) {
	c, ok := s.chars[id]
	if !ok {
		return nil, nil
	}
	cc := *c
	return &cc, nil
}

func (s *memStore) AllMembers(_ context.Context) ([]domain.DiscordMember, error) {
	var out []domain.DiscordMember
	for _, m := range s.members {
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DiscordID < out[j].DiscordID })
	return out, nil
}

func (s *memStore) MemberByID(_ context.Context, discordID string) (*domain.DiscordMember, error) {
	m, ok := s.members[discordID]
	if !ok {
		return nil, nil
	}
	mm := *m
	return &mm, nil
}

func (s *memStore) MemberLinkedToPerson(_ context.Context, personID string) (*domain.DiscordMember, error) {
	for _, m := range s.members {
		if m.PersonID != nil && *m.PersonID == personID {
			mm := *m
			return &mm, nil
		}
	}
	return nil, nil
}

func (s *memStore) PersonsByDiscordMember(_ context.Context) (map[string][]string, error) {
	out := make(map[string][]string, len(s.claims))
	for id, persons := range s.claims {
		out[id] = append([]string(nil), persons...)
	}
	return out, nil
}

func (s *memStore) IsAlias(_ context.Context, playerID, alias string) (bool, error) {
	return s.aliases[playerID][matching.NormalizeName(alias)], nil
}

func (s *memStore) LatestCharacterLink(_ context.Context, characterID int64) (*domain.IdentityLink, error) {
	links := s.charLinks[characterID]
	if len(links) == 0 {
		return nil, nil
	}
	link := links[len(links)-1]
	return &link, nil
}

func (s *memStore) UnresolvedIssue(_ context.Context, issueType domain.IssueType, subjectKey string) (*domain.AuditIssue, error) {
	for _, issue := range s.issues {
		if !issue.Resolved && issue.IssueType == issueType && issue.SubjectKey == subjectKey {
			ii := *issue
			return &ii, nil
		}
	}
	return nil, nil
}

func (s *memStore) UnresolvedIssues(_ context.Context, issueType domain.IssueType) ([]domain.AuditIssue, error) {
	var out []domain.AuditIssue
	for _, issue := range s.openIssues(issueType) {
		out = append(out, *issue)
	}
	return out, nil
}

func (s *memStore) CreateIssue(_ context.Context, issue domain.AuditIssue) (*domain.AuditIssue, error) {
	s.issueSeq++
	issue.ID = fmt.Sprintf("issue-%d", s.issueSeq)
	stored := issue
	s.issues = append(s.issues, &stored)
	return &issue, nil
}

func (s *memStore) TouchIssue(_ context.Context, id, payload string) error {
	for _, issue := range s.issues {
		if issue.ID == id {
			issue.Payload = payload
			return nil
		}
	}
	return fmt.Errorf("issue %s not found", id)
}

func (s *memStore) ResolveIssue(_ context.Context, id string) error {
	for _, issue := range s.issues {
		if issue.ID == id {
			issue.Resolved = true
			return nil
		}
	}
	return fmt.Errorf("issue %s not found", id)
}
