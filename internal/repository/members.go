package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"guildhall/internal/domain"

	"github.com/rs/zerolog"
)

type MemberRepository struct {
	db     DBTX
	logger zerolog.Logger
}

func NewMemberRepository(db DBTX, logger zerolog.Logger) *MemberRepository {
	return &MemberRepository{db: db, logger: logger}
}

func (r *MemberRepository) withTx(tx DBTX) *MemberRepository {
	return &MemberRepository{db: tx, logger: r.logger}
}

const memberColumns = `discord_id, username, display_name, is_present, person_id, created_at, updated_at`

// Present returns members currently in the guild.
func (r *MemberRepository) Present(ctx context.Context) ([]domain.DiscordMember, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+memberColumns+`
		FROM discord_members
		WHERE is_present = 1
		ORDER BY discord_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query present members: %w", err)
	}
	defer rows.Close()

	return scanMembers(rows)
}

// All returns every member record, departed ones included.
func (r *MemberRepository) All(ctx context.Context) ([]domain.DiscordMember, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+memberColumns+`
		FROM discord_members
		ORDER BY discord_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query members: %w", err)
	}
	defer rows.Close()

	return scanMembers(rows)
}

// ByID returns one member, or nil when it does not exist.
func (r *MemberRepository) ByID(ctx context.Context, discordID string) (*domain.DiscordMember, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+memberColumns+`
		FROM discord_members WHERE discord_id = ?`, discordID)

	member, err := scanMember(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get member %s: %w", discordID, err)
	}
	return member, nil
}

// LinkedPersonByMember returns the member -> person cache for members that
// already carry a link.
func (r *MemberRepository) LinkedPersonByMember(ctx context.Context) (map[string]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT discord_id, person_id
		FROM discord_members
		WHERE person_id IS NOT NULL`)
	if err != nil {
		return nil, fmt.Errorf("failed to query linked members: %w", err)
	}
	defer rows.Close()

	result := make(map[string]string)
	for rows.Next() {
		var discordID, personID string
		if err := rows.Scan(&discordID, &personID); err != nil {
			return nil, fmt.Errorf("failed to scan linked member: %w", err)
		}
		result[discordID] = personID
	}
	return result, rows.Err()
}

// LinkedToPerson returns the member a person currently claims, or nil.
func (r *MemberRepository) LinkedToPerson(ctx context.Context, personID string) (*domain.DiscordMember, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+memberColumns+`
		FROM discord_members WHERE person_id = ?`, personID)

	member, err := scanMember(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get member for person %s: %w", personID, err)
	}
	return member, nil
}

// AssignPerson links a member to a person.
func (r *MemberRepository) AssignPerson(ctx context.Context, discordID, personID string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE discord_members
		SET person_id = ?, updated_at = ?
		WHERE discord_id = ?`, personID, time.Now().UTC(), discordID)
	if err != nil {
		return fmt.Errorf("failed to assign member %s to person %s: %w", discordID, personID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("member %s not found", discordID)
	}
	return nil
}

// Upsert writes a member record from the Discord sync. person_id is owned by
// the matching engine and never touched here.
func (r *MemberRepository) Upsert(ctx context.Context, member *domain.DiscordMember) error {
	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `INSERT INTO discord_members
		(discord_id, username, display_name, is_present, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (discord_id) DO UPDATE SET
			username = excluded.username,
			display_name = excluded.display_name,
			is_present = excluded.is_present,
			updated_at = excluded.updated_at`,
		member.DiscordID, member.Username, member.DisplayName, member.IsPresent, now, now)
	if err != nil {
		return fmt.Errorf("failed to upsert member %s: %w", member.DiscordID, err)
	}
	return nil
}

// MarkAbsentExcept flips is_present off for every member not in presentIDs
// and returns how many flipped. Links are left in place for the stale-link
// detector.
func (r *MemberRepository) MarkAbsentExcept(ctx context.Context, presentIDs []string) (int64, error) {
	query := `UPDATE discord_members SET is_present = 0, updated_at = ? WHERE is_present = 1`
	args := []any{time.Now().UTC()}
	if len(presentIDs) > 0 {
		query += ` AND discord_id NOT IN (?` + strings.Repeat(", ?", len(presentIDs)-1) + `)`
		for _, id := range presentIDs {
			args = append(args, id)
		}
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to mark absent members: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count absent members: %w", err)
	}
	return n, nil
}

func scanMembers(rows *sql.Rows) ([]domain.DiscordMember, error) {
	var members []domain.DiscordMember
	for rows.Next() {
		member, err := scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		members = append(members, *member)
	}
	return members, rows.Err()
}

func scanMember(row scanner) (*domain.DiscordMember, error) {
	var member domain.DiscordMember
	var personID sql.NullString

	err := row.Scan(&member.DiscordID, &member.Username, &member.DisplayName,
		&member.IsPresent, &personID, &member.CreatedAt, &member.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if personID.Valid {
		member.PersonID = &personID.String
	}
	return &member, nil
}
