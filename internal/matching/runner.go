package matching

import (
	"context"
	"fmt"

	"guildhall/internal/constants"

	"github.com/rs/zerolog"
)

// PassResult is one rule invocation in the flat run log.
type PassResult struct {
	Pass   int        `json:"pass"`
	Rule   string     `json:"rule"`
	Result RuleResult `json:"result"`
}

// Totals sums RuleResult fields across every rule invocation of a run.
type Totals struct {
	PlayersCreated int `json:"players_created"`
	CharsLinked    int `json:"chars_linked"`
	DiscordLinked  int `json:"discord_linked"`
	StubsCreated   int `json:"stubs_created"`
	Skipped        int `json:"skipped"`
}

func (t *Totals) add(r *RuleResult) {
	t.PlayersCreated += r.PlayersCreated
	t.CharsLinked += r.CharsLinked
	t.DiscordLinked += r.DiscordLinked
	t.StubsCreated += r.StubsCreated
	t.Skipped += r.Skipped
}

// MatchSummary is the structured result of a full matching run. The totals
// are repeated as flattened top-level keys for callers that predate the
// nested form.
type MatchSummary struct {
	Passes    int          `json:"passes"`
	Converged bool         `json:"converged"`
	Results   []PassResult `json:"results"`
	Totals    Totals       `json:"totals"`

	PlayersCreated int `json:"players_created"`
	CharsLinked    int `json:"chars_linked"`
	DiscordLinked  int `json:"discord_linked"`
	StubsCreated   int `json:"stubs_created"`
	Skipped        int `json:"skipped"`
}

// Runner drives all registered rules across repeated passes until a pass
// changes nothing or the pass cap is reached.
type Runner struct {
	store     Store
	rules     []Rule
	maxPasses int
	logger    zerolog.Logger
}

func NewRunner(store Store, maxPasses int, logger zerolog.Logger) *Runner {
	if maxPasses <= 0 {
		maxPasses = constants.DefaultMaxPasses
	}
	return &Runner{
		store:     store,
		rules:     Rules(),
		maxPasses: maxPasses,
		logger:    logger,
	}
}

// Run executes rule passes to a fixed point. The context is rebuilt fresh
// each pass because earlier rules' mutations shrink later rules' candidate
// pools; each pass's mutations run inside one store transaction. Hitting the
// pass cap is normal termination, reported as Converged=false so the caller
// knows the data set may want manual attention.
func (r *Runner) Run(ctx context.Context, minRankLevel *int) (*MatchSummary, error) {
	summary := &MatchSummary{}

	for pass := 1; pass <= r.maxPasses; pass++ {
		mc, err := BuildContext(ctx, r.store, minRankLevel)
		if err != nil {
			return nil, fmt.Errorf("failed to build matching context: %w", err)
		}

		changed := false
		err = r.store.InTx(ctx, func(tx Store) error {
			for _, rule := range r.rules {
				res, err := rule.Run(ctx, tx, mc)
				if err != nil {
					return fmt.Errorf("rule %s failed: %w", rule.Name(), err)
				}

				summary.Results = append(summary.Results, PassResult{Pass: pass, Rule: rule.Name(), Result: *res})
				summary.Totals.add(res)
				if res.ChangedAnything() {
					changed = true
				}

				r.logger.Debug().
					Int("pass", pass).
					Str("rule", rule.Name()).
					Int("players_created", res.PlayersCreated).
					Int("chars_linked", res.CharsLinked).
					Int("discord_linked", res.DiscordLinked).
					Int("stubs_created", res.StubsCreated).
					Int("skipped", res.Skipped).
					Msg("rule finished")
			}
			return nil
		})
		if err != nil {
			return nil, err
		}

		summary.Passes = pass
		if !changed {
			summary.Converged = true
			break
		}
	}

	summary.PlayersCreated = summary.Totals.PlayersCreated
	summary.CharsLinked = summary.Totals.CharsLinked
	summary.DiscordLinked = summary.Totals.DiscordLinked
	summary.StubsCreated = summary.Totals.StubsCreated
	summary.Skipped = summary.Totals.Skipped

	r.logger.Info().
		Int("passes", summary.Passes).
		Bool("converged", summary.Converged).
		Int("players_created", summary.PlayersCreated).
		Int("chars_linked", summary.CharsLinked).
		Int("discord_linked", summary.DiscordLinked).
		Int("stubs_created", summary.StubsCreated).
		Int("skipped", summary.Skipped).
		Msg("matching run finished")

	return summary, nil
}
