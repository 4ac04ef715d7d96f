package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/legalops/caseledger/internal/db"
)

// Config is the full server configuration.
type Config struct {
	Database db.Config
	HTTP     HTTPConfig
	Export   ExportConfig
}

// HTTPConfig holds the HTTP listener settings.
type HTTPConfig struct {
	Addr           string
	AllowedOrigins []string
}

// ExportConfig holds audit-export settings.
type ExportConfig struct {
	Directory  string
	JobTimeout time.Duration
}

// Load reads config.yaml from the given path, with environment overrides.
func Load(configPath string) (Config, error) {
	// Start with defaults
	cfg := Config{
		Database: db.DefaultConfig(),
		HTTP: HTTPConfig{
			Addr:           ":8080",
			AllowedOrigins: []string{"http://localhost:3000"},
		},
		Export: ExportConfig{
			Directory:  "./exports",
			JobTimeout: 10 * time.Minute,
		},
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AutomaticEnv()              // allow environment overrides
	v.SetEnvPrefix("CASELEDGER")  // map env vars like CASELEDGER_DATABASE_HOST

	// Map nested keys to flat env vars
	v.BindEnv("database.host")
	v.BindEnv("database.port")
	v.BindEnv("database.user")
	v.BindEnv("database.password")
	v.BindEnv("database.dbname")
	v.BindEnv("database.sslmode")
	v.BindEnv("http.addr")
	v.BindEnv("export.directory")

	if err := v.ReadInConfig(); err != nil {
		// Config file not found? Just log it, use defaults + env
		fmt.Println("No config.yaml found, using defaults and env vars")
	} else {
		fmt.Println("Loaded config.yaml")
	}

	// Override defaults if values exist
	if v.IsSet("database.host") {
		cfg.Database.Host = v.GetString("database.host")
	}
	if v.IsSet("database.port") {
		cfg.Database.Port = v.GetInt("database.port")
	}
	if v.IsSet("database.user") {
		cfg.Database.User = v.GetString("database.user")
	}
	if v.IsSet("database.password") {
		cfg.Database.Password = v.GetString("database.password")
	}
	if v.IsSet("database.dbname") {
		cfg.Database.DBName = v.GetString("database.dbname")
	}
	if v.IsSet("database.sslmode") {
		cfg.Database.SSLMode = v.GetString("database.sslmode")
	}
	if v.IsSet("http.addr") {
		cfg.HTTP.Addr = v.GetString("http.addr")
	}
	if v.IsSet("http.allowed_origins") {
		cfg.HTTP.AllowedOrigins = v.GetStringSlice("http.allowed_origins")
	}
	if v.IsSet("export.directory") {
		cfg.Export.Directory = v.GetString("export.directory")
	}
	if v.IsSet("export.job_timeout") {
		cfg.Export.JobTimeout = v.GetDuration("export.job_timeout")
	}

	return cfg, nil
}
