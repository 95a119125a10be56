// Package config loads runtime settings from the environment and the static
// lookup tables (municipalities, achievements, counters, admin roster) from a
// YAML file. The tables are read-only after load and injected into the
// engines, keeping the core testable without a real deployment roster.
package config

import (
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	BotToken    string `env:"MUNIPOINTS_BOT_TOKEN"`
	APIBaseURL  string `env:"MUNIPOINTS_API_URL" envDefault:"https://api.telegram.org"`
	DBPath      string `env:"MUNIPOINTS_DB_PATH" envDefault:"munipoints.db"`
	CatalogPath string `env:"MUNIPOINTS_CATALOG_PATH" envDefault:"tasks.csv"`
	AuditPath   string `env:"MUNIPOINTS_AUDIT_PATH" envDefault:"campaign_results.csv"`
	TablesPath  string `env:"MUNIPOINTS_TABLES_PATH" envDefault:"tables.yaml"`
	LogLevel    string `env:"MUNIPOINTS_LOG_LEVEL" envDefault:"info"`

	// S3-compatible backup target; backups are disabled when unset.
	BackupEndpoint  string `env:"MUNIPOINTS_BACKUP_ENDPOINT"`
	BackupBucket    string `env:"MUNIPOINTS_BACKUP_BUCKET"`
	BackupRegion    string `env:"MUNIPOINTS_BACKUP_REGION" envDefault:"auto"`
	BackupAccessKey string `env:"MUNIPOINTS_BACKUP_ACCESS_KEY"`
	BackupSecretKey string `env:"MUNIPOINTS_BACKUP_SECRET_KEY"`
	BackupKeep      int    `env:"MUNIPOINTS_BACKUP_KEEP" envDefault:"7"`
}

// Load reads an optional .env file and parses the environment.
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// AchievementInfo describes one unlockable badge.
type AchievementInfo struct {
	Emoji     string `yaml:"emoji"`
	StickerID string `yaml:"sticker_id"`
	Message   string `yaml:"message"`
}

// CounterInfo describes a counter kind: its display name and the thresholds
// at which achievements become unlockable.
type CounterInfo struct {
	Name       string         `yaml:"name"`
	Thresholds map[int]string `yaml:"thresholds"`
}

// Tables holds the static lookup tables.
type Tables struct {
	AdminIDs     []int64                    `yaml:"admins"`
	Cities       map[string]string          `yaml:"cities"` // name -> emoji
	Achievements map[string]AchievementInfo `yaml:"achievements"`
	Counters     map[string]CounterInfo     `yaml:"counters"`
}

// LoadTables parses the YAML lookup tables at path.
func LoadTables(path string) (*Tables, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tables: %w", err)
	}
	var t Tables
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parse tables: %w", err)
	}
	if len(t.Cities) == 0 {
		return nil, fmt.Errorf("parse tables: no municipalities configured")
	}
	return &t, nil
}

// IsAdmin reports whether the id is on the administrator roster.
func (t *Tables) IsAdmin(id int64) bool {
	for _, a := range t.AdminIDs {
		if a == id {
			return true
		}
	}
	return false
}

// ValidCity reports whether name is a configured municipality.
func (t *Tables) ValidCity(name string) bool {
	_, ok := t.Cities[name]
	return ok
}

// CityEmoji returns the emoji for a municipality, with a generic fallback.
func (t *Tables) CityEmoji(name string) string {
	if e, ok := t.Cities[name]; ok {
		return e
	}
	return "🏙️"
}

// AchievementEmoji returns the badge emoji, with a generic fallback.
func (t *Tables) AchievementEmoji(id string) string {
	if a, ok := t.Achievements[id]; ok && a.Emoji != "" {
		return a.Emoji
	}
	return "🏆"
}

// AchievementMessage returns the unlock congratulation text.
func (t *Tables) AchievementMessage(id string) string {
	if a, ok := t.Achievements[id]; ok && a.Message != "" {
		return a.Message
	}
	return fmt.Sprintf("🎉 Congratulations! You earned the achievement: %s", id)
}

// CounterName returns the display name for a counter kind, falling back to
// the raw kind.
func (t *Tables) CounterName(kind string) string {
	if c, ok := t.Counters[kind]; ok && c.Name != "" {
		return c.Name
	}
	return kind
}
