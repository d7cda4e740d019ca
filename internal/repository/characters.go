package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"guildhall/internal/domain"

	"github.com/rs/zerolog"
)

type CharacterRepository struct {
	db     DBTX
	logger zerolog.Logger
}

func NewCharacterRepository(db DBTX, logger zerolog.Logger) *CharacterRepository {
	return &CharacterRepository{db: db, logger: logger}
}

func (r *CharacterRepository) withTx(tx DBTX) *CharacterRepository {
	return &CharacterRepository{db: tx, logger: r.logger}
}

const characterColumns = `id, name, realm, rank_level, guild_note, officer_note, person_id, removed_at, created_at, updated_at`

// Unlinked returns live characters with no owner, optionally restricted to
// ranks at or above minRankLevel.
func (r *CharacterRepository) Unlinked(ctx context.Context, minRankLevel *int) ([]domain.WowCharacter, error) {
	query := `SELECT ` + characterColumns + `
		FROM wow_characters
		WHERE removed_at IS NULL AND person_id IS NULL`
	args := []any{}
	if minRankLevel != nil {
		query += ` AND rank_level >= ?`
		args = append(args, *minRankLevel)
	}
	query += ` ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query unlinked characters: %w", err)
	}
	defer rows.Close()

	return scanCharacters(rows)
}

// Active returns all live characters, linked or not.
func (r *CharacterRepository) Active(ctx context.Context) ([]domain.WowCharacter, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+characterColumns+`
		FROM wow_characters
		WHERE removed_at IS NULL
		ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query active characters: %w", err)
	}
	defer rows.Close()

	return scanCharacters(rows)
}

// ByID returns one character, or nil when it does not exist.
func (r *CharacterRepository) ByID(ctx context.Context, id int64) (*domain.WowCharacter, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+characterColumns+`
		FROM wow_characters WHERE id = ?`, id)

	char, err := scanCharacter(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get character %d: %w", id, err)
	}
	return char, nil
}

// AssignPerson sets the character's owner. The matching engine mutates this
// field and nothing else.
func (r *CharacterRepository) AssignPerson(ctx context.Context, id int64, personID string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE wow_characters
		SET person_id = ?, updated_at = ?
		WHERE id = ? AND removed_at IS NULL`, personID, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to assign character %d to person %s: %w", id, personID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("character %d not found or removed", id)
	}
	return nil
}

// Upsert writes a character record; used by the game-data sync boundary and
// test fixtures.
func (r *CharacterRepository) Upsert(ctx context.Context, char *domain.WowCharacter) error {
	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `INSERT INTO wow_characters
		(name, realm, rank_level, guild_note, officer_note, person_id, removed_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (name, realm) DO UPDATE SET
			rank_level = excluded.rank_level,
			guild_note = excluded.guild_note,
			officer_note = excluded.officer_note,
			removed_at = excluded.removed_at,
			updated_at = excluded.updated_at`,
		char.Name, char.Realm, char.RankLevel, char.GuildNote, char.OfficerNote,
		char.PersonID, char.RemovedAt, now, now)
	if err != nil {
		return fmt.Errorf("failed to upsert character %s-%s: %w", char.Name, char.Realm, err)
	}
	return nil
}

func scanCharacters(rows *sql.Rows) ([]domain.WowCharacter, error) {
	var chars []domain.WowCharacter
	for rows.Next() {
		char, err := scanCharacter(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan character: %w", err)
		}
		chars = append(chars, *char)
	}
	return chars, rows.Err()
}

func scanCharacter(row scanner) (*domain.WowCharacter, error) {
	var char domain.WowCharacter
	var personID sql.NullString
	var removedAt sql.NullTime

	err := row.Scan(&char.ID, &char.Name, &char.Realm, &char.RankLevel,
		&char.GuildNote, &char.OfficerNote, &personID, &removedAt,
		&char.CreatedAt, &char.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if personID.Valid {
		char.PersonID = &personID.String
	}
	if removedAt.Valid {
		char.RemovedAt = &removedAt.Time
	}
	return &char, nil
}
