package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"guildhall/internal/domain"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
)

// IdentityLinkRepository owns the append-only link audit trail. Rows are
// never updated except for the confidence-upgrade path, and never deleted.
type IdentityLinkRepository struct {
	db     DBTX
	logger zerolog.Logger
}

func NewIdentityLinkRepository(db DBTX, logger zerolog.Logger) *IdentityLinkRepository {
	return &IdentityLinkRepository{db: db, logger: logger}
}

func (r *IdentityLinkRepository) withTx(tx DBTX) *IdentityLinkRepository {
	return &IdentityLinkRepository{db: tx, logger: r.logger}
}

// Record appends one link row, generating an id when the caller left it
// empty.
func (r *IdentityLinkRepository) Record(ctx context.Context, link domain.IdentityLink) (*domain.IdentityLink, error) {
	if link.ID == "" {
		id, err := gonanoid.New()
		if err != nil {
			return nil, fmt.Errorf("failed to generate link id: %w", err)
		}
		link.ID = id
	}
	if link.LinkSource == "" {
		link.LinkSource = domain.LinkSourceUnknown
	}
	if link.Confidence == "" {
		link.Confidence = domain.ConfidenceUnknown
	}
	if link.CreatedAt.IsZero() {
		link.CreatedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx, `INSERT INTO identity_links
		(id, person_id, wow_character_id, discord_member_id, link_source, confidence, is_confirmed, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		link.ID, link.PersonID, link.WowCharacterID, link.DiscordMemberID,
		link.LinkSource, link.Confidence, link.IsConfirmed, link.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to record identity link: %w", err)
	}
	return &link, nil
}

// PersonsByDiscordMember maps each Discord member to the distinct persons
// the link trail has attached to it.
func (r *IdentityLinkRepository) PersonsByDiscordMember(ctx context.Context) (map[string][]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT DISTINCT discord_member_id, person_id
		FROM identity_links
		WHERE discord_member_id IS NOT NULL`)
	if err != nil {
		return nil, fmt.Errorf("failed to query discord link claims: %w", err)
	}
	defer rows.Close()

	result := make(map[string][]string)
	for rows.Next() {
		var memberID, personID string
		if err := rows.Scan(&memberID, &personID); err != nil {
			return nil, fmt.Errorf("failed to scan link claim: %w", err)
		}
		result[memberID] = append(result[memberID], personID)
	}
	return result, rows.Err()
}

// LatestForCharacter returns the most recent link row for a character, or
// nil when it was never linked.
func (r *IdentityLinkRepository) LatestForCharacter(ctx context.Context, characterID int64) (*domain.IdentityLink, error) {
	row := r.db.QueryRowContext(ctx, `SELECT id, person_id, wow_character_id, discord_member_id,
			link_source, confidence, is_confirmed, created_at
		FROM identity_links
		WHERE wow_character_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT 1`, characterID)

	var link domain.IdentityLink
	var charID sql.NullInt64
	var memberID sql.NullString
	err := row.Scan(&link.ID, &link.PersonID, &charID, &memberID,
		&link.LinkSource, &link.Confidence, &link.IsConfirmed, &link.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get link for character %d: %w", characterID, err)
	}
	if charID.Valid {
		link.WowCharacterID = &charID.Int64
	}
	if memberID.Valid {
		link.DiscordMemberID = &memberID.String
	}
	return &link, nil
}

// UpgradeConfidence bumps every link of a person from one confidence level
// to another. Used for the low -> medium promotion when a stub person gains
// a real Discord link; never called to downgrade.
func (r *IdentityLinkRepository) UpgradeConfidence(ctx context.Context, personID string, from, to domain.Confidence) error {
	res, err := r.db.ExecContext(ctx, `UPDATE identity_links
		SET confidence = ?
		WHERE person_id = ? AND confidence = ?`, to, personID, from)
	if err != nil {
		return fmt.Errorf("failed to upgrade link confidence for person %s: %w", personID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		r.logger.Debug().
			Str("person_id", personID).
			Str("from", string(from)).
			Str("to", string(to)).
			Int64("links", n).
			Msg("link confidence upgraded")
	}
	return nil
}
