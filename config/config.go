// Package config loads process configuration from flags, EXEF_-prefixed
// environment variables, and an optional YAML file, in that precedence,
// following the teacher's cli/root.go viper wiring.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config is the fully resolved process configuration.
type Config struct {
	ListenAddr string

	DatabaseURL string
	CORSOrigins []string

	JWTSecret    string
	JWTAlgorithm string

	// SourceSecretKey, when set, is used to encrypt credential fields
	// (password, secret, client_secret, api_key, token) inside a data
	// source's config blob before it is persisted. Empty disables
	// encryption, which is only acceptable for local/dev use.
	SourceSecretKey string

	UseEntityDB          bool
	EntityDBDir          string
	EntityDBPathTemplate string
	EntityDBURLTemplate  string

	RemoteSyncURL       string
	SyncIntervalMinutes int

	SMTPHost        string
	SMTPPort        int
	SMTPUser        string
	SMTPPassword    string
	SMTPTLS         bool
	SMTPFromAddress string

	RedisURL string

	LogLevel  string
	LogFormat string
}

// Defaults returns a Config populated with the same style of sensible
// defaults as the teacher's LoadServerConfig/LoadDatabaseConfig helpers,
// adapted to this domain.
func Defaults() Config {
	return Config{
		ListenAddr:           ":8080",
		DatabaseURL:          "./data/exef.db",
		CORSOrigins:          []string{"*"},
		JWTAlgorithm:         "HS256",
		UseEntityDB:          false,
		EntityDBDir:          "./data/entities",
		EntityDBPathTemplate: "{nip}.db",
		EntityDBURLTemplate:  "sqlite:///./data/entities/{nip}.db",
		SyncIntervalMinutes:  60,
		SMTPPort:             587,
		SMTPTLS:              true,
		RedisURL:             "redis://localhost:6379/0",
		LogLevel:             "info",
		LogFormat:            "text",
	}
}

// Load reads configuration from viper, which by the time this is called has
// already had flags bound and SetEnvPrefix("EXEF")/AutomaticEnv applied by
// cli.RootCmd's init/initConfig.
func Load() Config {
	c := Defaults()

	if v := viper.GetString("listen_addr"); v != "" {
		c.ListenAddr = v
	}
	if v := viper.GetString("database_url"); v != "" {
		c.DatabaseURL = v
	}
	if v := viper.GetString("cors_origins"); v != "" {
		c.CORSOrigins = splitAndTrim(v)
	}
	if v := viper.GetString("jwt_secret"); v != "" {
		c.JWTSecret = v
	}
	if v := viper.GetString("jwt_algorithm"); v != "" {
		c.JWTAlgorithm = v
	}
	if v := viper.GetString("source_secret_key"); v != "" {
		c.SourceSecretKey = v
	}
	if viper.IsSet("use_entity_db") {
		c.UseEntityDB = viper.GetBool("use_entity_db")
	}
	if v := viper.GetString("entity_db_dir"); v != "" {
		c.EntityDBDir = v
	}
	if v := viper.GetString("entity_db_path_template"); v != "" {
		c.EntityDBPathTemplate = v
	}
	if v := viper.GetString("entity_db_url_template"); v != "" {
		c.EntityDBURLTemplate = v
	}
	if v := viper.GetString("remote_sync_url"); v != "" {
		c.RemoteSyncURL = v
	}
	if viper.IsSet("sync_interval_minutes") {
		c.SyncIntervalMinutes = viper.GetInt("sync_interval_minutes")
	}
	if v := viper.GetString("smtp_host"); v != "" {
		c.SMTPHost = v
	}
	if viper.IsSet("smtp_port") {
		c.SMTPPort = viper.GetInt("smtp_port")
	}
	if v := viper.GetString("smtp_user"); v != "" {
		c.SMTPUser = v
	}
	if v := viper.GetString("smtp_password"); v != "" {
		c.SMTPPassword = v
	}
	if viper.IsSet("smtp_tls") {
		c.SMTPTLS = viper.GetBool("smtp_tls")
	}
	if v := viper.GetString("smtp_from_address"); v != "" {
		c.SMTPFromAddress = v
	}
	if v := viper.GetString("redis_url"); v != "" {
		c.RedisURL = v
	}
	if v := viper.GetString("log_level"); v != "" {
		c.LogLevel = v
	}
	if v := viper.GetString("log_format"); v != "" {
		c.LogFormat = v
	}

	return c
}

func splitAndTrim(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// EntityDBPath renders the per-entity SQLite file path for a given NIP.
func (c Config) EntityDBPath(nip string) string {
	name := strings.ReplaceAll(c.EntityDBPathTemplate, "{nip}", nip)
	return fmt.Sprintf("%s%c%s", strings.TrimRight(c.EntityDBDir, "/"), os.PathSeparator, name)
}
