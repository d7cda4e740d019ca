package constants

import "time"

const (
	ExternalAPITimeout = 10 * time.Second
	DatabaseTimeout    = 5 * time.Second
	RequestTimeout     = 30 * time.Second
	MatchingRunTimeout = 60 * time.Second
)

const (
	DBMaxOpenConns    = 100
	DBMaxIdleConns    = 10
	DBConnMaxLifetime = 1 * time.Hour
	DBMaxIdleTime     = 10 * time.Minute
	DBBatchSize       = 100
)

const (
	// DefaultMaxPasses caps the matching fixed-point loop. Hitting the cap is
	// a normal termination, reported as converged=false.
	DefaultMaxPasses = 5

	// MinSubstringKeyLen is the floor below which substring match tiers are
	// not attempted. Keys shorter than this are too likely to be embedded
	// coincidentally in an unrelated name.
	MinSubstringKeyLen = 3

	// FuzzySimilarThreshold and FuzzyDifferentThreshold bound the normalized
	// edit-distance score: visually close names land above the first,
	// unrelated names below the second.
	FuzzySimilarThreshold   = 0.7
	FuzzyDifferentThreshold = 0.4
)

const (
	ShutdownTimeout    = 5 * time.Second
	LastRunRecordDelay = 2 * time.Second
)

const (
	DiscordSyncPageSize = 1000
	RaidEventLimit      = 10
)
