package domain

import (
	"time"
)

// Player is the canonical identity a human maps to. Owns zero or more
// characters and at most one active Discord-member link. Created only as a
// side effect of a successful match, never standalone.
type Player struct {
	ID          string
	DisplayName string
	IsStub      bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// WowCharacter is an in-game character record, written by the external
// game-data sync. The matching engine mutates PersonID only.
type WowCharacter struct {
	ID          int64
	Name        string
	Realm       string
	RankLevel   int
	GuildNote   string
	OfficerNote string
	PersonID    *string
	RemovedAt   *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Removed reports whether the character has been soft-deleted. Removed
// characters are excluded from all matching and audits.
func (c WowCharacter) Removed() bool {
	return c.RemovedAt != nil
}

// DiscordMember is a Discord guild member record. IsPresent flips to false
// once they leave the guild; absent members are never match targets but
// remain a basis for stale-link detection.
type DiscordMember struct {
	DiscordID   string
	Username    string
	DisplayName string
	IsPresent   bool
	PersonID    *string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// IdentityLink is an append-only audit trail row: one row per entity-side of
// every match. Never deleted.
type IdentityLink struct {
	ID              string
	PersonID        string
	WowCharacterID  *int64
	DiscordMemberID *string
	LinkSource      LinkSource
	Confidence      Confidence
	IsConfirmed     bool
	CreatedAt       time.Time
}

// PlayerNoteAlias maps (player_id, alias) pairs so a shorthand in a note can
// be recognized as referring to a known player even when it matches no live
// Discord account.
type PlayerNoteAlias struct {
	ID        int64
	PlayerID  string
	Alias     string
	CreatedAt time.Time
}

// AuditIssue is a problem record upserted by drift detectors. An unresolved
// issue of a given (issue_type, subject_key) pair is never duplicated.
type AuditIssue struct {
	ID         string
	IssueType  IssueType
	Severity   Severity
	SubjectKey string
	Payload    string
	Resolved   bool
	ResolvedAt *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// LinkSource is the provenance tag for how a link was established.
type LinkSource string

const (
	LinkSourceNoteKey     LinkSource = "note_key"
	LinkSourceNoteKeyStub LinkSource = "note_key_stub"
	LinkSourceExactName   LinkSource = "exact_name"
	LinkSourceFuzzyName   LinkSource = "fuzzy_name"
	LinkSourceManual      LinkSource = "manual"
	LinkSourceMigrated    LinkSource = "migrated"
	LinkSourceOnboarding  LinkSource = "onboarding"
	LinkSourceAutoRelink  LinkSource = "auto_relink"
	LinkSourceUnknown     LinkSource = "unknown"
)

// Confidence is the strength of evidence behind a link.
type Confidence string

const (
	ConfidenceHigh      Confidence = "high"
	ConfidenceMedium    Confidence = "medium"
	ConfidenceLow       Confidence = "low"
	ConfidenceConfirmed Confidence = "confirmed"
	ConfidenceUnknown   Confidence = "unknown"
)

// IssueType identifies a drift detector's contradiction pattern.
type IssueType string

const (
	IssueNoteMismatch        IssueType = "note_mismatch"
	IssueLinkContradictsNote IssueType = "link_contradicts_note"
	IssueDuplicateDiscord    IssueType = "duplicate_discord_link"
	IssueStaleDiscord        IssueType = "stale_discord_link"
)

// Severity of an audit issue.
type Severity string

const (
	SeverityError Severity = "error"
	SeverityInfo  Severity = "info"
)
