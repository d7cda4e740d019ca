package service

import (
	"context"

	"guildhall/internal/constants"
	"guildhall/internal/repository"

	"github.com/rs/zerolog"
)

// RosterEntry is one character row on the roster page, with its resolved
// player identity when one exists.
type RosterEntry struct {
	CharacterID int64  `json:"character_id"`
	Name        string `json:"name"`
	Realm       string `json:"realm"`
	RankLevel   int    `json:"rank_level"`
	PlayerID    string `json:"player_id,omitempty"`
	PlayerName  string `json:"player_name,omitempty"`
}

type RosterService struct {
	store  *repository.Store
	logger zerolog.Logger
}

func NewRosterService(store *repository.Store, logger zerolog.Logger) *RosterService {
	return &RosterService{store: store, logger: logger}
}

// List returns the live roster with link status.
func (s *RosterService) List(ctx context.Context) ([]RosterEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.DatabaseTimeout)
	defer cancel()

	chars, err := s.store.Characters.Active(ctx)
	if err != nil {
		return nil, err
	}
	names, err := s.store.Players.DisplayNames(ctx)
	if err != nil {
		return nil, err
	}

	entries := make([]RosterEntry, 0, len(chars))
	for _, char := range chars {
		entry := RosterEntry{
			CharacterID: char.ID,
			Name:        char.Name,
			Realm:       char.Realm,
			RankLevel:   char.RankLevel,
		}
		if char.PersonID != nil {
			entry.PlayerID = *char.PersonID
			entry.PlayerName = names[*char.PersonID]
		}
		entries = append(entries, entry)
	}

	s.logger.Debug().Int("count", len(entries)).Msg("roster listed")
	return entries, nil
}
