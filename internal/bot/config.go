package bot

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/example/sogretobot/internal/database"
	"github.com/example/sogretobot/internal/practice"
	"github.com/example/sogretobot/internal/scheduler"
)

// DefaultPracticesFile is where the content document is looked up
const DefaultPracticesFile = "data/practices.json"

// Config represents the configuration for the bot
type Config struct {
	Token       string
	DatabaseURL string
	// PracticesFile is the JSON or YAML content document
	PracticesFile string
	AdminUserIDs  map[int64]bool

	SchedulerEnabled bool
	ReminderInterval time.Duration
	AutoProceedDelay time.Duration
	PostponeFor      time.Duration

	WatchContent bool
	LogLevel     string
}

// DefaultConfig returns the default bot configuration
func DefaultConfig() *Config {
	return &Config{
		DatabaseURL:      database.DefaultDSN,
		PracticesFile:    DefaultPracticesFile,
		AdminUserIDs:     make(map[int64]bool),
		SchedulerEnabled: true,
		ReminderInterval: scheduler.DefaultInterval,
		PostponeFor:      practice.DefaultPostponeFor,
		WatchContent:     true,
		LogLevel:         "info",
	}
}

// LoadConfig reads the given .env files (".env" when none are named)
// and then the environment. A missing .env file is not an error.
func LoadConfig(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", f, err)
		}
	}

	cfg := DefaultConfig()
	cfg.Token = os.Getenv("TELEGRAM_BOT_TOKEN")
	cfg.DatabaseURL = getEnv("DATABASE_URL", cfg.DatabaseURL)
	cfg.PracticesFile = getEnv("PRACTICES_FILE", cfg.PracticesFile)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.SchedulerEnabled = os.Getenv("ENABLE_SCHEDULER") != "false"
	cfg.WatchContent = os.Getenv("WATCH_CONTENT") != "false"

	if ids := os.Getenv("ADMIN_USER_IDS"); ids != "" {
		for _, idStr := range strings.Split(ids, ",") {
			idStr = strings.TrimSpace(idStr)
			if idStr == "" {
				continue
			}
			id, err := strconv.ParseInt(idStr, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid admin user ID %q: %w", idStr, err)
			}
			cfg.AdminUserIDs[id] = true
		}
	}

	var err error
	if cfg.ReminderInterval, err = getDuration("REMINDER_INTERVAL", cfg.ReminderInterval); err != nil {
		return nil, err
	}
	if cfg.AutoProceedDelay, err = getDuration("AUTO_PROCEED_DELAY", cfg.AutoProceedDelay); err != nil {
		return nil, err
	}
	if cfg.PostponeFor, err = getDuration("POSTPONE_DURATION", cfg.PostponeFor); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the settings needed to talk to Telegram
func (c *Config) Validate() error {
	if c.Token == "" {
		return fmt.Errorf("TELEGRAM_BOT_TOKEN environment variable is not set")
	}
	if c.PracticesFile == "" {
		return fmt.Errorf("PRACTICES_FILE must not be empty")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s %q: expected a positive duration such as 90m", key, v)
	}
	return d, nil
}
