package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// AliasRepository is the persistent (player, alias) registry. Seeded by
// backfill, grown by every successful note-key match.
type AliasRepository struct {
	db     DBTX
	logger zerolog.Logger
}

func NewAliasRepository(db DBTX, logger zerolog.Logger) *AliasRepository {
	return &AliasRepository{db: db, logger: logger}
}

func (r *AliasRepository) withTx(tx DBTX) *AliasRepository {
	return &AliasRepository{db: tx, logger: r.logger}
}

// Lookup returns the player an alias is registered to, or "" when unknown.
func (r *AliasRepository) Lookup(ctx context.Context, alias string) (string, error) {
	var playerID string
	err := r.db.QueryRowContext(ctx, `SELECT player_id FROM player_note_aliases
		WHERE alias = ?
		ORDER BY created_at
		LIMIT 1`, alias).Scan(&playerID)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to look up alias %q: %w", alias, err)
	}
	return playerID, nil
}

// Register records an alias for a player. Re-registering is a no-op.
func (r *AliasRepository) Register(ctx context.Context, playerID, alias string) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO player_note_aliases (player_id, alias, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT (player_id, alias) DO NOTHING`, playerID, alias, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to register alias %q for player %s: %w", alias, playerID, err)
	}
	return nil
}

// IsAlias reports whether an alias is registered for a specific player.
func (r *AliasRepository) IsAlias(ctx context.Context, playerID, alias string) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx, `SELECT 1 FROM player_note_aliases
		WHERE player_id = ? AND alias = ?`, playerID, alias).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check alias %q for player %s: %w", alias, playerID, err)
	}
	return true, nil
}
