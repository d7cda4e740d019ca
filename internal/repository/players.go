package repository

import (
	"context"
	"fmt"
	"time"

	"guildhall/internal/domain"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
)

type PlayerRepository struct {
	db     DBTX
	logger zerolog.Logger
}

func NewPlayerRepository(db DBTX, logger zerolog.Logger) *PlayerRepository {
	return &PlayerRepository{db: db, logger: logger}
}

func (r *PlayerRepository) withTx(tx DBTX) *PlayerRepository {
	return &PlayerRepository{db: tx, logger: r.logger}
}

// Create inserts a new player. Stub players carry note evidence only, no
// confirmed Discord link yet.
func (r *PlayerRepository) Create(ctx context.Context, displayName string, stub bool) (*domain.Player, error) {
	id, err := gonanoid.New()
	if err != nil {
		return nil, fmt.Errorf("failed to generate player id: %w", err)
	}

	now := time.Now().UTC()
	player := &domain.Player{
		ID:          id,
		DisplayName: displayName,
		IsStub:      stub,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	_, err = r.db.ExecContext(ctx, `INSERT INTO players
		(id, display_name, is_stub, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)`,
		player.ID, player.DisplayName, player.IsStub, player.CreatedAt, player.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create player %q: %w", displayName, err)
	}

	r.logger.Debug().Str("player_id", player.ID).Str("display_name", displayName).Bool("stub", stub).Msg("player created")
	return player, nil
}

// DisplayNames returns player id -> display name for the roster view.
func (r *PlayerRepository) DisplayNames(ctx context.Context) (map[string]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, display_name FROM players`)
	if err != nil {
		return nil, fmt.Errorf("failed to query players: %w", err)
	}
	defer rows.Close()

	names := make(map[string]string)
	for rows.Next() {
		var id, name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, fmt.Errorf("failed to scan player: %w", err)
		}
		names[id] = name
	}
	return names, rows.Err()
}

// ClearStub marks a player as no longer stub-only.
func (r *PlayerRepository) ClearStub(ctx context.Context, playerID string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE players
		SET is_stub = 0, updated_at = ?
		WHERE id = ?`, time.Now().UTC(), playerID)
	if err != nil {
		return fmt.Errorf("failed to clear stub flag for player %s: %w", playerID, err)
	}
	return nil
}
