package service

import (
	"context"
	"time"

	"guildhall/internal/audit"
	"guildhall/internal/config"
	"guildhall/internal/constants"
	"guildhall/internal/domain"
	"guildhall/internal/matching"
	"guildhall/internal/repository"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// IdentityService is the application's entry point to the matching pipeline
// and the drift auditor. The store and logger come in by injection; nothing
// here reaches for ambient globals.
type IdentityService struct {
	store   *repository.Store
	runner  *matching.Runner
	scanner *audit.Scanner
	logger  zerolog.Logger
}

func NewIdentityService(store *repository.Store, cfg *config.Config, logger zerolog.Logger) *IdentityService {
	return &IdentityService{
		store:   store,
		runner:  matching.NewRunner(store, cfg.MaxPasses, logger),
		scanner: audit.NewScanner(store, logger),
		logger:  logger,
	}
}

// RunMatching performs the full note/name matching pipeline. Matching runs
// are single-flight jobs; the caller makes sure it is not invoked
// re-entrantly against the same data.
func (s *IdentityService) RunMatching(ctx context.Context, minRankLevel *int) (*matching.MatchSummary, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.MatchingRunTimeout)
	defer cancel()

	event := s.logger.Info()
	if minRankLevel != nil {
		event = event.Int("min_rank_level", *minRankLevel)
	}
	event.Msg("starting matching run")

	summary, err := s.runner.Run(ctx, minRankLevel)
	if err != nil {
		s.logger.Error().Err(err).Msg("matching run failed")
		return nil, err
	}

	g := new(errgroup.Group)
	g.Go(func() error {
		time.Sleep(constants.LastRunRecordDelay)
		recordCtx, recordCancel := context.WithTimeout(context.Background(), constants.DatabaseTimeout)
		defer recordCancel()
		return s.store.RecordMatchingRun(recordCtx, summary)
	})
	go func() {
		if err := g.Wait(); err != nil {
			s.logger.Warn().Err(err).Msg("failed to record matching run")
		}
	}()

	return summary, nil
}

// RunDriftScan performs the full audit pass: all detectors plus
// auto-mitigation.
func (s *IdentityService) RunDriftScan(ctx context.Context) (*audit.DriftSummary, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.RequestTimeout)
	defer cancel()

	s.logger.Info().Msg("starting drift scan")

	summary, err := s.scanner.Run(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("drift scan failed")
		return nil, err
	}
	return summary, nil
}

// OpenIssues lists unresolved audit issues for the admin surface.
func (s *IdentityService) OpenIssues(ctx context.Context) ([]domain.AuditIssue, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.DatabaseTimeout)
	defer cancel()

	return s.store.Issues.ListOpen(ctx)
}
