package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// File is the YAML configuration consumed by the demo server. Lifetimes are
// duration strings ("1h", "30s"); the literal "none" makes a token lifetime
// unlimited.
type File struct {
	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`

	Log struct {
		Env   string `yaml:"env"`
		Level string `yaml:"level"`
	} `yaml:"log"`

	Engine struct {
		Grants                []string `yaml:"grants"`
		ClientIDPattern       string   `yaml:"client_id_pattern"`
		AccessTokenTTL        string   `yaml:"access_token_ttl"`
		RefreshTokenTTL       string   `yaml:"refresh_token_ttl"`
		AuthCodeTTL           string   `yaml:"auth_code_ttl"`
		ContinueAfterResponse bool     `yaml:"continue_after_response"`
	} `yaml:"engine"`

	Storage struct {
		// Driver: "memory", "postgres" or "redis".
		Driver string `yaml:"driver"`
		DSN    string `yaml:"dsn"`
		Redis  struct {
			Addr string `yaml:"addr"`
			DB   int    `yaml:"db"`
		} `yaml:"redis"`
	} `yaml:"storage"`
}

// Load reads and parses a YAML config file.
func Load(path string) (*File, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f File
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	if f.Server.Addr == "" {
		f.Server.Addr = ":8080"
	}
	if f.Storage.Driver == "" {
		f.Storage.Driver = "memory"
	}
	return &f, nil
}

// EngineConfig converts the file's engine block into a validated Config,
// applying defaults for anything left unset.
func (f *File) EngineConfig() (*Config, error) {
	cfg := Default()
	if len(f.Engine.Grants) > 0 {
		cfg.Grants = f.Engine.Grants
	}
	if p := strings.TrimSpace(f.Engine.ClientIDPattern); p != "" {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("config: client_id_pattern: %w", err)
		}
		cfg.ClientIDRegex = re
	}

	var err error
	if cfg.AccessTokenLifetime, err = parseLifetime(f.Engine.AccessTokenTTL, cfg.AccessTokenLifetime); err != nil {
		return nil, fmt.Errorf("config: access_token_ttl: %w", err)
	}
	if cfg.RefreshTokenLifetime, err = parseLifetime(f.Engine.RefreshTokenTTL, cfg.RefreshTokenLifetime); err != nil {
		return nil, fmt.Errorf("config: refresh_token_ttl: %w", err)
	}
	if v := strings.TrimSpace(f.Engine.AuthCodeTTL); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("config: auth_code_ttl: %w", err)
		}
		cfg.AuthCodeLifetime = d
	}
	cfg.ContinueAfterResponse = f.Engine.ContinueAfterResponse

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// parseLifetime maps "" to the default, "none" to nil (never expires) and
// anything else through time.ParseDuration.
func parseLifetime(v string, def *time.Duration) (*time.Duration, error) {
	v = strings.TrimSpace(v)
	switch v {
	case "":
		return def, nil
	case "none", "null":
		return nil, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return nil, err
	}
	return &d, nil
}
