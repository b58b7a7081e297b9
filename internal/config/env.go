package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const (
	EnvToken  = "DISCORD_TOKEN"
	EnvEmpty  = "EMPTY"
	EnvConfig = "BOT_CONFIG"
)

var ErrMissingToken = errors.New("missing DISCORD_TOKEN in environment or .env file")

// LoadDotEnv loads KEY=VALUE pairs from the given files (default ".env")
// into the process environment. Variables already set are kept and missing
// files are ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// PathFromEnv returns BOT_CONFIG or the default config path.
func PathFromEnv(getenv func(string) string) string {
	if p := strings.TrimSpace(getenv(EnvConfig)); p != "" {
		return p
	}
	return DefaultPath
}

// ApplyEnv overlays DISCORD_TOKEN and EMPTY onto cfg. EMPTY accepts the
// strconv.ParseBool forms; true means the accounts are claimed.
func ApplyEnv(cfg *Config, getenv func(string) string) error {
	if tok := strings.TrimSpace(getenv(EnvToken)); tok != "" {
		cfg.Discord.Token = tok
	}
	if raw := strings.TrimSpace(getenv(EnvEmpty)); raw != "" {
		claimed, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("%s: invalid boolean %q", EnvEmpty, raw)
		}
		cfg.Responder.AccountsAvailable = boolPtr(!claimed)
	}
	return nil
}
