package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"guildhall/internal/domain"

	"github.com/rs/zerolog"
)

// DetectorStats is one detector's slice of a drift scan.
type DetectorStats struct {
	Detected  int `json:"detected"`
	Mitigated int `json:"mitigated"`
}

// DriftSummary is the result of a full drift scan.
type DriftSummary struct {
	NoteMismatch        DetectorStats `json:"note_mismatch"`
	LinkContradictsNote DetectorStats `json:"link_contradicts_note"`
	DuplicateDiscord    DetectorStats `json:"duplicate_discord"`
	StaleDiscord        DetectorStats `json:"stale_discord"`
	TotalNew            int           `json:"total_new"`
	AutoMitigated       int           `json:"auto_mitigated"`
}

// Scanner runs every drift detector plus the auto-mitigation pass. Detectors
// never short-circuit each other; mitigation runs regardless of what the
// detectors found.
type Scanner struct {
	store   Store
	checker *Checker
	logger  zerolog.Logger
}

func NewScanner(store Store, logger zerolog.Logger) *Scanner {
	return &Scanner{
		store:   store,
		checker: NewChecker(store, logger),
		logger:  logger,
	}
}

// Run executes all four detectors and then resolves the open issues whose
// contradiction no longer holds against current data.
func (s *Scanner) Run(ctx context.Context) (*DriftSummary, error) {
	summary := &DriftSummary{}

	var err error
	if summary.NoteMismatch.Detected, err = s.checker.DetectNoteMismatches(ctx); err != nil {
		return nil, fmt.Errorf("note mismatch detector failed: %w", err)
	}
	if summary.LinkContradictsNote.Detected, err = s.checker.DetectLinkNoteContradictions(ctx); err != nil {
		return nil, fmt.Errorf("link contradiction detector failed: %w", err)
	}
	if summary.DuplicateDiscord.Detected, err = s.checker.DetectDuplicateDiscordLinks(ctx); err != nil {
		return nil, fmt.Errorf("duplicate link detector failed: %w", err)
	}
	if summary.StaleDiscord.Detected, err = s.checker.DetectStaleDiscordLinks(ctx); err != nil {
		return nil, fmt.Errorf("stale link detector failed: %w", err)
	}

	summary.TotalNew = summary.NoteMismatch.Detected +
		summary.LinkContradictsNote.Detected +
		summary.DuplicateDiscord.Detected +
		summary.StaleDiscord.Detected

	mitigated, err := s.mitigate(ctx)
	if err != nil {
		return nil, fmt.Errorf("auto-mitigation failed: %w", err)
	}
	summary.NoteMismatch.Mitigated = mitigated[domain.IssueNoteMismatch]
	summary.LinkContradictsNote.Mitigated = mitigated[domain.IssueLinkContradictsNote]
	summary.DuplicateDiscord.Mitigated = mitigated[domain.IssueDuplicateDiscord]
	summary.StaleDiscord.Mitigated = mitigated[domain.IssueStaleDiscord]
	for _, n := range mitigated {
		summary.AutoMitigated += n
	}

	s.logger.Info().
		Int("total_new", summary.TotalNew).
		Int("auto_mitigated", summary.AutoMitigated).
		Msg("drift scan finished")

	return summary, nil
}

// mitigate re-verifies every open issue and resolves the ones whose
// condition has cleared (note edited, member returned, link corrected).
// Issues that still hold are left for an officer.
func (s *Scanner) mitigate(ctx context.Context) (map[domain.IssueType]int, error) {
	mitigated := make(map[domain.IssueType]int)

	issueTypes := []domain.IssueType{
		domain.IssueNoteMismatch,
		domain.IssueLinkContradictsNote,
		domain.IssueDuplicateDiscord,
		domain.IssueStaleDiscord,
	}

	for _, issueType := range issueTypes {
		issues, err := s.store.UnresolvedIssues(ctx, issueType)
		if err != nil {
			return nil, fmt.Errorf("failed to list open %s issues: %w", issueType, err)
		}

		for _, issue := range issues {
			holds, err := s.issueStillHolds(ctx, issue)
			if err != nil {
				return nil, err
			}
			if holds {
				continue
			}

			if err := s.store.ResolveIssue(ctx, issue.ID); err != nil {
				return nil, fmt.Errorf("failed to resolve issue %s: %w", issue.ID, err)
			}
			mitigated[issueType]++

			s.logger.Info().
				Str("issue_type", string(issueType)).
				Str("subject", issue.SubjectKey).
				Msg("audit issue auto-resolved")
		}
	}

	return mitigated, nil
}

func (s *Scanner) issueStillHolds(ctx context.Context, issue domain.AuditIssue) (bool, error) {
	switch issue.IssueType {
	case domain.IssueNoteMismatch, domain.IssueLinkContradictsNote:
		var payload noteIssuePayload
		if err := json.Unmarshal([]byte(issue.Payload), &payload); err != nil {
			// Unparseable payloads are never auto-resolved.
			return true, nil
		}
		char, err := s.store.CharacterByID(ctx, payload.CharacterID)
		if err != nil {
			return true, fmt.Errorf("failed to load character %d: %w", payload.CharacterID, err)
		}
		if char == nil {
			return false, nil
		}
		if issue.IssueType == domain.IssueNoteMismatch {
			_, present, err := s.checker.loadLinkedCharsAndPresent(ctx)
			if err != nil {
				return true, err
			}
			_, holds, err := s.checker.noteMismatchHolds(ctx, *char, present)
			return holds, err
		}
		_, holds, err := s.checker.linkContradictionHolds(ctx, *char)
		return holds, err

	case domain.IssueDuplicateDiscord:
		var payload duplicateIssuePayload
		if err := json.Unmarshal([]byte(issue.Payload), &payload); err != nil {
			return true, nil
		}
		byMember, err := s.store.PersonsByDiscordMember(ctx)
		if err != nil {
			return true, fmt.Errorf("failed to load discord link claims: %w", err)
		}
		return len(byMember[payload.DiscordMemberID]) > 1, nil

	case domain.IssueStaleDiscord:
		var payload staleIssuePayload
		if err := json.Unmarshal([]byte(issue.Payload), &payload); err != nil {
			return true, nil
		}
		member, err := s.store.MemberByID(ctx, payload.DiscordMemberID)
		if err != nil {
			return true, fmt.Errorf("failed to load member %s: %w", payload.DiscordMemberID, err)
		}
		if member == nil || member.PersonID == nil {
			return false, nil
		}
		return !member.IsPresent, nil

	default:
		return true, nil
	}
}
