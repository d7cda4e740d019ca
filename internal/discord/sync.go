package discord

import (
	"context"
	"fmt"

	"guildhall/internal/config"
	"guildhall/internal/constants"
	"guildhall/internal/domain"
	"guildhall/internal/repository"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"
)

// SyncStats summarizes one membership sync.
type SyncStats struct {
	Upserted     int   `json:"upserted"`
	MarkedAbsent int64 `json:"marked_absent"`
}

// Syncer keeps discord_members current against the live guild: upserts
// everyone present and flips is_present off for members who left. It never
// touches person links; departures are surfaced by the stale-link detector
// instead.
type Syncer struct {
	cfg    *config.Config
	store  *repository.Store
	logger zerolog.Logger
}

func NewSyncer(cfg *config.Config, store *repository.Store, logger zerolog.Logger) *Syncer {
	return &Syncer{cfg: cfg, store: store, logger: logger}
}

// Enabled reports whether bot credentials are configured.
func (s *Syncer) Enabled() bool {
	return s.cfg.DiscordToken != "" && s.cfg.DiscordGuildID != ""
}

// Sync pages through the guild's member list over the Discord REST API and
// reconciles the local table.
func (s *Syncer) Sync(ctx context.Context) (*SyncStats, error) {
	if !s.Enabled() {
		return nil, fmt.Errorf("discord sync is not configured")
	}

	session, err := discordgo.New("Bot " + s.cfg.DiscordToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}

	stats := &SyncStats{}
	var presentIDs []string

	after := ""
	for {
		members, err := session.GuildMembers(s.cfg.DiscordGuildID, after, constants.DiscordSyncPageSize, discordgo.WithContext(ctx))
		if err != nil {
			return nil, fmt.Errorf("failed to fetch guild members: %w", err)
		}
		if len(members) == 0 {
			break
		}

		for _, m := range members {
			if m.User == nil || m.User.Bot {
				continue
			}
			record := &domain.DiscordMember{
				DiscordID:   m.User.ID,
				Username:    m.User.Username,
				DisplayName: memberDisplayName(m),
				IsPresent:   true,
			}
			if err := s.store.Members.Upsert(ctx, record); err != nil {
				return nil, err
			}
			presentIDs = append(presentIDs, m.User.ID)
			stats.Upserted++
		}

		after = members[len(members)-1].User.ID
		if len(members) < constants.DiscordSyncPageSize {
			break
		}
	}

	absent, err := s.store.Members.MarkAbsentExcept(ctx, presentIDs)
	if err != nil {
		return nil, err
	}
	stats.MarkedAbsent = absent

	s.logger.Info().
		Int("upserted", stats.Upserted).
		Int64("marked_absent", stats.MarkedAbsent).
		Msg("discord member sync finished")

	return stats, nil
}

// memberDisplayName mirrors what Discord renders: server nick, then global
// display name, then username.
func memberDisplayName(m *discordgo.Member) string {
	if m.Nick != "" {
		return m.Nick
	}
	if m.User.GlobalName != "" {
		return m.User.GlobalName
	}
	return m.User.Username
}
