package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"go.uber.org/fx"
)

type Config struct {
	DBPath     string
	ServerPort string
	LogLevel   string

	// Matching knobs.
	MaxPasses int

	// Discord bot credentials; member sync is disabled when the token is
	// empty.
	DiscordToken   string
	DiscordGuildID string

	// Raid-Helper API; event listing is disabled when the key is empty.
	RaidHelperAPIKey   string
	RaidHelperServerID string
}

func Load(logger zerolog.Logger) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logger.Debug().Msg(".env file not found, using environment variables or defaults")
	}

	cfg := &Config{
		DBPath:             getEnv("DB_PATH", "guildhall.db"),
		ServerPort:         getEnv("SERVER_PORT", "8080"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		MaxPasses:          getEnvInt("MATCHING_MAX_PASSES", 5),
		DiscordToken:       getEnv("DISCORD_BOT_TOKEN", ""),
		DiscordGuildID:     getEnv("DISCORD_GUILD_ID", ""),
		RaidHelperAPIKey:   getEnv("RAIDHELPER_API_KEY", ""),
		RaidHelperServerID: getEnv("RAIDHELPER_SERVER_ID", ""),
	}

	logger.Info().
		Str("db_path", cfg.DBPath).
		Str("server_port", cfg.ServerPort).
		Str("log_level", cfg.LogLevel).
		Int("max_passes", cfg.MaxPasses).
		Bool("discord_sync_enabled", cfg.DiscordToken != "").
		Bool("raidhelper_enabled", cfg.RaidHelperAPIKey != "").
		Msg("configuration loaded")

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}

var Module = fx.Provide(Load)
