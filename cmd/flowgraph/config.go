package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Config holds flowgraph CLI configuration.
// Priority: env vars > settings.json > defaults. Command-line flags are
// applied on top by the caller.
type Config struct {
	DBPath      string `json:"db_path"     validate:"required"`
	LogLevel    string `json:"log_level"   validate:"oneof=debug info warn error"`
	LogFormat   string `json:"log_format"  validate:"oneof=text json"`
	Locale      string `json:"locale"      validate:"oneof=en es"`
	Concurrency int    `json:"concurrency" validate:"gte=0,lte=1024"`
}

func defaultConfig() Config {
	return Config{
		DBPath:    filepath.Join(flowgraphDir(), "flowgraph.db"),
		LogLevel:  "info",
		LogFormat: "text",
		Locale:    "en",
	}
}

func flowgraphDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".flowgraph"
	}
	return filepath.Join(home, ".flowgraph")
}

func settingsPath() string {
	return filepath.Join(flowgraphDir(), "settings.json")
}

// loadConfig layers settings.json and FLOWGRAPH_* variables over the
// defaults. A missing settings file is not an error; a malformed one is.
func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()

	if data, err := os.ReadFile(path); err == nil {
		if err := json.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return cfg, fmt.Errorf("read %s: %w", path, err)
	}

	if v := os.Getenv("FLOWGRAPH_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("FLOWGRAPH_LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}
	if v := os.Getenv("FLOWGRAPH_LOG_FORMAT"); v != "" {
		cfg.LogFormat = strings.ToLower(v)
	}
	if v := os.Getenv("FLOWGRAPH_LOCALE"); v != "" {
		cfg.Locale = strings.ToLower(v)
	}
	if v := os.Getenv("FLOWGRAPH_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Concurrency = n
		}
	}
	return cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints and reports every violation at once.
func (c Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s: failed %q (value %v)", fe.Field(), fe.Tag(), fe.Value()))
	}
	return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
}

// dsn turns DBPath into a libSQL data source name.
func (c Config) dsn() string {
	if strings.HasPrefix(c.DBPath, "file:") || strings.Contains(c.DBPath, "://") {
		return c.DBPath
	}
	return "file:" + c.DBPath
}
