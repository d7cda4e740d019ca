package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"guildhall/internal/domain"
	"guildhall/internal/matching"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
)

// DBTX is the subset of database/sql shared by *sql.DB and *sql.Tx, so every
// repository works both standalone and inside a transaction.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type scanner interface {
	Scan(dest ...any) error
}

// Store aggregates the per-entity repositories and implements the matching
// and audit store interfaces. The zero transaction boundary lives here:
// InTx hands callers a transaction-scoped clone.
type Store struct {
	db     *sql.DB
	logger zerolog.Logger

	Characters *CharacterRepository
	Members    *MemberRepository
	Players    *PlayerRepository
	Links      *IdentityLinkRepository
	Aliases    *AliasRepository
	Issues     *IssueRepository
}

func NewStore(db *sql.DB, logger zerolog.Logger) *Store {
	return &Store{
		db:         db,
		logger:     logger,
		Characters: NewCharacterRepository(db, logger),
		Members:    NewMemberRepository(db, logger),
		Players:    NewPlayerRepository(db, logger),
		Links:      NewIdentityLinkRepository(db, logger),
		Aliases:    NewAliasRepository(db, logger),
		Issues:     NewIssueRepository(db, logger),
	}
}

// InTx runs fn against a clone of the store whose repositories share one
// transaction. A fn error rolls everything back so a failed matching pass
// leaves no partial links.
func (s *Store) InTx(ctx context.Context, fn func(matching.Store) error) error {
	if s.db == nil {
		return fmt.Errorf("store is already transaction-scoped")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	txStore := &Store{
		logger:     s.logger,
		Characters: s.Characters.withTx(tx),
		Members:    s.Members.withTx(tx),
		Players:    s.Players.withTx(tx),
		Links:      s.Links.withTx(tx),
		Aliases:    s.Aliases.withTx(tx),
		Issues:     s.Issues.withTx(tx),
	}

	if err := fn(txStore); err != nil {
		return err
	}
	return tx.Commit()
}

// matching.Store

func (s *Store) UnlinkedCharacters(ctx context.Context, minRankLevel *int) ([]domain.WowCharacter, error) {
	return s.Characters.Unlinked(ctx, minRankLevel)
}

func (s *Store) PresentMembers(ctx context.Context) ([]domain.DiscordMember, error) {
	return s.Members.Present(ctx)
}

func (s *Store) LinkedPersonByMember(ctx context.Context) (map[string]string, error) {
	return s.Members.LinkedPersonByMember(ctx)
}

func (s *Store) LookupAlias(ctx context.Context, alias string) (string, error) {
	return s.Aliases.Lookup(ctx, alias)
}

func (s *Store) CreatePlayer(ctx context.Context, displayName string, stub bool) (*domain.Player, error) {
	return s.Players.Create(ctx, displayName, stub)
}

func (s *Store) AssignCharacterPerson(ctx context.Context, characterID int64, personID string) error {
	return s.Characters.AssignPerson(ctx, characterID, personID)
}

func (s *Store) AssignMemberPerson(ctx context.Context, discordID, personID string) error {
	if err := s.Members.AssignPerson(ctx, discordID, personID); err != nil {
		return err
	}
	// The person now has a real Discord identity behind it.
	return s.Players.ClearStub(ctx, personID)
}

func (s *Store) RecordLink(ctx context.Context, link domain.IdentityLink) (*domain.IdentityLink, error) {
	return s.Links.Record(ctx, link)
}

func (s *Store) RegisterAlias(ctx context.Context, playerID, alias string) error {
	return s.Aliases.Register(ctx, playerID, alias)
}

func (s *Store) UpgradeLinkConfidence(ctx context.Context, personID string, from, to domain.Confidence) error {
	return s.Links.UpgradeConfidence(ctx, personID, from, to)
}

// audit.Store

func (s *Store) ActiveCharacters(ctx context.Context) ([]domain.WowCharacter, error) {
	return s.Characters.Active(ctx)
}

func (s *Store) CharacterByID(ctx context.Context, id int64) (*domain.WowCharacter, error) {
	return s.Characters.ByID(ctx, id)
}

func (s *Store) AllMembers(ctx context.Context) ([]domain.DiscordMember, error) {
	return s.Members.All(ctx)
}

func (s *Store) MemberByID(ctx context.Context, discordID string) (*domain.DiscordMember, error) {
	return s.Members.ByID(ctx, discordID)
}

func (s *Store) MemberLinkedToPerson(ctx context.Context, personID string) (*domain.DiscordMember, error) {
	return s.Members.LinkedToPerson(ctx, personID)
}

func (s *Store) PersonsByDiscordMember(ctx context.Context) (map[string][]string, error) {
	return s.Links.PersonsByDiscordMember(ctx)
}

func (s *Store) IsAlias(ctx context.Context, playerID, alias string) (bool, error) {
	return s.Aliases.IsAlias(ctx, playerID, alias)
}

func (s *Store) LatestCharacterLink(ctx context.Context, characterID int64) (*domain.IdentityLink, error) {
	return s.Links.LatestForCharacter(ctx, characterID)
}

func (s *Store) UnresolvedIssue(ctx context.Context, issueType domain.IssueType, subjectKey string) (*domain.AuditIssue, error) {
	return s.Issues.Unresolved(ctx, issueType, subjectKey)
}

func (s *Store) UnresolvedIssues(ctx context.Context, issueType domain.IssueType) ([]domain.AuditIssue, error) {
	return s.Issues.UnresolvedByType(ctx, issueType)
}

func (s *Store) CreateIssue(ctx context.Context, issue domain.AuditIssue) (*domain.AuditIssue, error) {
	return s.Issues.Create(ctx, issue)
}

func (s *Store) TouchIssue(ctx context.Context, id, payload string) error {
	return s.Issues.Touch(ctx, id, payload)
}

func (s *Store) ResolveIssue(ctx context.Context, id string) error {
	return s.Issues.Resolve(ctx, id)
}

// RecordMatchingRun persists a run summary row for operator history.
func (s *Store) RecordMatchingRun(ctx context.Context, summary *matching.MatchSummary) error {
	id, err := gonanoid.New()
	if err != nil {
		return fmt.Errorf("failed to generate run id: %w", err)
	}

	_, err = s.dbtx().ExecContext(ctx, `INSERT INTO matching_runs
		(id, passes, converged, players_created, chars_linked, discord_linked, stubs_created, skipped, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, summary.Passes, summary.Converged,
		summary.Totals.PlayersCreated, summary.Totals.CharsLinked, summary.Totals.DiscordLinked,
		summary.Totals.StubsCreated, summary.Totals.Skipped, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to record matching run: %w", err)
	}
	return nil
}

func (s *Store) dbtx() DBTX {
	if s.db != nil {
		return s.db
	}
	return s.Characters.db
}
