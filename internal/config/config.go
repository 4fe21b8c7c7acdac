package config

import (
	"encoding/json"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

type Config struct {
	Mirror MirrorConfig
	Slack  SlackConfig
	HTTP   HTTPConfig
	Debug  bool
	Level  string
}

type MirrorConfig struct {
	Channel    string
	Capacity   int
	Store      string
	SQLitePath string
}

type SlackConfig struct {
	BotToken      string
	BotTokenFile  string
	SigningSecret string
}

type HTTPConfig struct {
	Listen      string
	CORSOrigins []string
}

const (
	defaultCapacity   = 10
	defaultStore      = "memory"
	defaultSQLitePath = "mirror.db"
	defaultListen     = ":8080"
)

func Load() Config {
	cfg := Config{}

	cfg.Mirror.Channel = strings.TrimSpace(os.Getenv("MIRROR_CHANNEL"))
	cfg.Mirror.Capacity = readInt("MIRROR_CAPACITY", defaultCapacity)

	store := strings.ToLower(strings.TrimSpace(os.Getenv("MIRROR_STORE")))
	if store == "" {
		store = defaultStore
	}
	cfg.Mirror.Store = store

	cfg.Mirror.SQLitePath = strings.TrimSpace(os.Getenv("MIRROR_SQLITE_PATH"))
	if cfg.Mirror.SQLitePath == "" {
		cfg.Mirror.SQLitePath = defaultSQLitePath
	}

	cfg.Slack.BotToken = strings.TrimSpace(os.Getenv("SLACK_BOT_TOKEN"))
	cfg.Slack.BotTokenFile = strings.TrimSpace(os.Getenv("SLACK_BOT_TOKEN_FILE"))
	cfg.Slack.SigningSecret = strings.TrimSpace(os.Getenv("SLACK_SIGNING_SECRET"))

	cfg.HTTP.Listen = strings.TrimSpace(os.Getenv("MIRROR_LISTEN"))
	if cfg.HTTP.Listen == "" {
		// PORT is what the original deployment used.
		if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
			cfg.HTTP.Listen = ":" + strings.TrimPrefix(port, ":")
		}
	}
	if cfg.HTTP.Listen == "" {
		cfg.HTTP.Listen = defaultListen
	}

	cfg.HTTP.CORSOrigins = splitList(os.Getenv("MIRROR_CORS_ORIGINS"))

	cfg.Debug = readBool("DEBUG", false)
	cfg.Level = strings.TrimSpace(os.Getenv("LOG_LEVEL"))

	return cfg
}

func splitList(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.FieldsFunc(raw, func(r rune) bool {
		switch r {
		case ',', ';', ' ', '\t', '\n':
			return true
		}
		return false
	})
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func readInt(name string, def int) int {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	if n <= 0 {
		return def
	}
	return n
}

func readBool(name string, def bool) bool {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return def
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return def
	}
	return v
}

// Capacity returns the configured message store capacity with the
// default applied.
func (c Config) Capacity() int {
	if c.Mirror.Capacity <= 0 {
		return defaultCapacity
	}
	return c.Mirror.Capacity
}

// UsesSQLite reports whether the persistent store backend is selected.
func (c Config) UsesSQLite() bool {
	return strings.EqualFold(strings.TrimSpace(c.Mirror.Store), "sqlite")
}

// SlogLevel maps LOG_LEVEL (and the DEBUG shortcut) to a slog level.
func (c Config) SlogLevel() slog.Level {
	switch strings.ToUpper(strings.TrimSpace(c.Level)) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	case "INFO":
		return slog.LevelInfo
	}
	if c.Debug {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

type Summary struct {
	Channel    string `json:"channel"`
	Capacity   int    `json:"capacity"`
	Store      string `json:"store"`
	SQLitePath string `json:"sqlite_path,omitempty"`
	Listen     string `json:"listen"`
	BotToken   string `json:"bot_token,omitempty"`
	TokenFile  string `json:"token_file,omitempty"`
	Signing    string `json:"signing_secret,omitempty"`
	CORS       int    `json:"cors_origins"`
	Debug      bool   `json:"debug"`
}

func (c Config) Summary() Summary {
	return Summary{
		Channel:    c.Mirror.Channel,
		Capacity:   c.Capacity(),
		Store:      c.Mirror.Store,
		SQLitePath: c.Mirror.SQLitePath,
		Listen:     c.HTTP.Listen,
		BotToken:   redactString(c.Slack.BotToken),
		TokenFile:  c.Slack.BotTokenFile,
		Signing:    redactString(c.Slack.SigningSecret),
		CORS:       len(c.HTTP.CORSOrigins),
		Debug:      c.Debug,
	}
}

func (c Config) SummaryJSON() []byte {
	summary := struct {
		Config Summary `json:"config_summary"`
	}{Config: c.Summary()}
	data, _ := json.Marshal(summary)
	return data
}

func (c Config) Redacted() map[string]any {
	return map[string]any{
		"mirror": map[string]any{
			"channel":     c.Mirror.Channel,
			"capacity":    c.Capacity(),
			"store":       c.Mirror.Store,
			"sqlite_path": c.Mirror.SQLitePath,
		},
		"slack": map[string]any{
			"bot_token":      redactString(c.Slack.BotToken),
			"bot_token_file": c.Slack.BotTokenFile,
			"signing_secret": redactString(c.Slack.SigningSecret),
		},
		"http": map[string]any{
			"listen":       c.HTTP.Listen,
			"cors_origins": append([]string(nil), c.HTTP.CORSOrigins...),
		},
		"debug":     c.Debug,
		"log_level": c.Level,
	}
}

func (c Config) RedactedJSON() []byte {
	data, _ := json.MarshalIndent(c.Redacted(), "", "  ")
	return data
}

func redactString(value string) string {
	if strings.TrimSpace(value) == "" {
		return ""
	}
	return "***REDACTED*** (len=" + strconv.Itoa(len(value)) + ")"
}
