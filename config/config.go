// Package config loads environment variables and provides a typed Config used across the bot.
// It applies defaults so the binary can run locally with only a platform token set.
// Use ValidatePlatform before connecting to a chat platform.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/onnwee/shooting-star/db"
	"github.com/onnwee/shooting-star/schedule"
)

// Platform names.
const (
	PlatformDiscord = "discord"
	PlatformTwitch  = "twitch"
)

// Schedule store kinds.
const (
	StoreFile = "file"
	StoreDB   = "db"
)

// DefaultWords is the word pool used when neither WORDS nor WORDS_FILE is set.
var DefaultWords = []string{"rawr", "scylla", "object", "slime", "ithaca"}

type Config struct {
	Platform string
	// ChannelIDs are the channels stars are posted to. On Twitch these are room ids.
	ChannelIDs []int64
	OwnerID    int64

	// Discord
	DiscordToken string

	// Twitch
	TwitchBotUsername string
	TwitchOAuthToken  string
	TwitchChannels    []string

	// Database
	DBDsn string

	// Schedule
	ScheduleStore string
	SchedulePath  string
	EventsPerDay  int
	Location      *time.Location
	Words         []string

	// Game
	CatchWindow  time.Duration
	TickInterval time.Duration
	Reward       int64
	StarImage    string

	// HTTP
	HTTPAddr   string
	AdminToken string
}

type wordFile struct {
	Words []string `yaml:"words"`
}

// Load reads environment variables and applies defaults. Platform credentials are not
// checked here; call ValidatePlatform when the chat connection is required.
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.Platform = strings.ToLower(strings.TrimSpace(os.Getenv("PLATFORM")))
	if cfg.Platform == "" {
		cfg.Platform = PlatformDiscord
	}

	ids, err := parseIDs(os.Getenv("CHANNEL_IDS"))
	if err != nil {
		return nil, fmt.Errorf("invalid CHANNEL_IDS: %w", err)
	}
	cfg.ChannelIDs = ids

	if v := strings.TrimSpace(os.Getenv("OWNER_ID")); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid OWNER_ID: %w", err)
		}
		cfg.OwnerID = id
	}

	cfg.DiscordToken = os.Getenv("DISCORD_TOKEN")
	cfg.TwitchBotUsername = os.Getenv("TWITCH_BOT_USERNAME")
	cfg.TwitchOAuthToken = os.Getenv("TWITCH_OAUTH_TOKEN")
	cfg.TwitchChannels = splitList(os.Getenv("TWITCH_CHANNELS"))

	cfg.DBDsn = os.Getenv("DB_DSN")
	if cfg.DBDsn == "" {
		cfg.DBDsn = db.DefaultDSN
	}

	cfg.ScheduleStore = strings.ToLower(os.Getenv("SCHEDULE_STORE"))
	switch cfg.ScheduleStore {
	case "":
		cfg.ScheduleStore = StoreFile
	case StoreFile, StoreDB:
	default:
		return nil, fmt.Errorf("invalid SCHEDULE_STORE %q (want file or db)", cfg.ScheduleStore)
	}
	cfg.SchedulePath = os.Getenv("SCHEDULE_PATH")
	if cfg.SchedulePath == "" {
		cfg.SchedulePath = schedule.DefaultPath
	}

	if cfg.EventsPerDay, err = intEnv("EVENTS_PER_DAY", schedule.DefaultEventsPerDay); err != nil {
		return nil, err
	}
	if cfg.EventsPerDay < 1 || cfg.EventsPerDay > 24 {
		return nil, fmt.Errorf("invalid EVENTS_PER_DAY %d (want 1-24)", cfg.EventsPerDay)
	}

	tz := os.Getenv("TIMEZONE")
	if tz == "" {
		tz = "UTC"
	}
	if cfg.Location, err = time.LoadLocation(tz); err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE: %w", err)
	}

	if cfg.Words, err = loadWords(); err != nil {
		return nil, err
	}

	if cfg.CatchWindow, err = durationEnv("CATCH_WINDOW", 60*time.Second); err != nil {
		return nil, err
	}
	if cfg.TickInterval, err = durationEnv("TICK_INTERVAL", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.TickInterval >= time.Minute {
		return nil, fmt.Errorf("invalid TICK_INTERVAL %s (must be under a minute)", cfg.TickInterval)
	}
	reward, err := intEnv("REWARD", 130)
	if err != nil {
		return nil, err
	}
	if reward <= 0 {
		return nil, fmt.Errorf("invalid REWARD %d (must be positive)", reward)
	}
	cfg.Reward = int64(reward)
	cfg.StarImage = os.Getenv("STAR_IMAGE")

	cfg.HTTPAddr = os.Getenv("HTTP_ADDR")
	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = ":8080"
	}
	cfg.AdminToken = os.Getenv("ADMIN_TOKEN")

	return cfg, nil
}

// ValidatePlatform checks the credentials the selected platform needs.
func (c *Config) ValidatePlatform() error {
	switch c.Platform {
	case PlatformDiscord:
		if c.DiscordToken == "" {
			return fmt.Errorf("missing discord env: require DISCORD_TOKEN")
		}
	case PlatformTwitch:
		if c.TwitchBotUsername == "" || c.TwitchOAuthToken == "" || len(c.TwitchChannels) == 0 {
			return fmt.Errorf("missing twitch env: require TWITCH_BOT_USERNAME, TWITCH_OAUTH_TOKEN, TWITCH_CHANNELS")
		}
	default:
		return fmt.Errorf("unknown PLATFORM %q (want discord or twitch)", c.Platform)
	}
	return nil
}

func loadWords() ([]string, error) {
	if path := os.Getenv("WORDS_FILE"); path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read WORDS_FILE: %w", err)
		}
		var wf wordFile
		if err := yaml.Unmarshal(b, &wf); err != nil {
			return nil, fmt.Errorf("parse WORDS_FILE: %w", err)
		}
		words := dedupe(wf.Words)
		if len(words) == 0 {
			return nil, fmt.Errorf("WORDS_FILE %s has no words", path)
		}
		return words, nil
	}
	if words := dedupe(splitList(os.Getenv("WORDS"))); len(words) > 0 {
		return words, nil
	}
	return append([]string(nil), DefaultWords...), nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// dedupe drops blanks and case-insensitive duplicates, keeping first occurrences.
func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	var out []string
	for _, w := range in {
		w = strings.TrimSpace(w)
		k := strings.ToLower(w)
		if w == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, w)
	}
	return out
}

func parseIDs(s string) ([]int64, error) {
	var ids []int64
	for _, part := range splitList(s) {
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%q: %w", part, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func intEnv(key string, def int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid %s: must be positive", key)
	}
	return d, nil
}
