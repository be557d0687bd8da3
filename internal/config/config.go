// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads configuration from config.yaml and environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// OrganizationConfig holds one organization's ERP API credentials.
type OrganizationConfig struct {
	Alias          string
	OrganizationID string
	ERPBaseURL     string
	TokenURL       string
	ClientID       string
	ClientSecret   string
}

// Config holds all configuration for the linking service.
type Config struct {
	Organizations []OrganizationConfig

	// Postgres (automation rule store)
	DatabaseURL string

	// Redis
	RedisURL      string
	LinksQueue    string
	UnmatchedList string

	// Intake webhook server
	IntakePort  int
	IntakeToken string

	// Automations REST API
	APIPort int

	// Relink sweeper
	SweepInterval time.Duration
	SweepBatch    int

	// Evaluation
	MaxLinkAttempts        int
	ScanAttachmentsForRefs bool
}

// rawConfig mirrors the YAML structure for unmarshalling.
type rawConfig struct {
	Organizations []struct {
		Alias          string `yaml:"alias"`
		OrganizationID string `yaml:"organization_id"`
		ERP            struct {
			BaseURL      string `yaml:"base_url"`
			TokenURL     string `yaml:"token_url"`
			ClientID     string `yaml:"client_id"`
			ClientSecret string `yaml:"client_secret"`
		} `yaml:"erp"`
	} `yaml:"organizations"`
	Redis struct {
		URL    string `yaml:"url"`
		Queues struct {
			Links     string `yaml:"links"`
			Unmatched string `yaml:"unmatched"`
		} `yaml:"queues"`
	} `yaml:"redis"`
}

// Load reads configuration from config.yaml (with env var expansion) and
// environment variables for non-YAML settings.
func Load() (*Config, error) {
	configPath := envOrDefault("CONFIG_PATH", "/app/config/config.yaml")

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("read config file %s: %w", configPath, err)
	}

	// Expand ${VAR} references in the YAML
	expanded := os.ExpandEnv(string(data))

	var raw rawConfig
	if err := yaml.Unmarshal([]byte(expanded), &raw); err != nil {
		return nil, fmt.Errorf("parse config YAML: %w", err)
	}

	cfg := &Config{
		DatabaseURL:            envOrDefault("DATABASE_URL", "postgres://localhost:5432/linking"),
		RedisURL:               firstNonEmpty(raw.Redis.URL, envOrDefault("REDIS_URL", "redis://localhost:6379/0")),
		LinksQueue:             firstNonEmpty(raw.Redis.Queues.Links, envOrDefault("LINKS_QUEUE", "links")),
		UnmatchedList:          firstNonEmpty(raw.Redis.Queues.Unmatched, envOrDefault("UNMATCHED_LIST", "links:unmatched")),
		IntakePort:             envOrDefaultInt("INTAKE_PORT", 8081),
		IntakeToken:            os.Getenv("INTAKE_TOKEN"),
		APIPort:                envOrDefaultInt("API_PORT", 8080),
		SweepInterval:          envOrDefaultDuration("SWEEP_INTERVAL", 10*time.Minute),
		SweepBatch:             envOrDefaultInt("SWEEP_BATCH", 50),
		MaxLinkAttempts:        envOrDefaultInt("MAX_LINK_ATTEMPTS", 12),
		ScanAttachmentsForRefs: envOrDefaultBool("SCAN_ATTACHMENTS_FOR_REFS", false),
	}

	// Build organization configs
	for _, o := range raw.Organizations {
		oc := OrganizationConfig{
			Alias:          o.Alias,
			OrganizationID: o.OrganizationID,
			ERPBaseURL:     o.ERP.BaseURL,
			TokenURL:       o.ERP.TokenURL,
			ClientID:       o.ERP.ClientID,
			ClientSecret:   o.ERP.ClientSecret,
		}

		// Validate required fields
		if oc.OrganizationID == "" || oc.ERPBaseURL == "" || oc.ClientID == "" || oc.ClientSecret == "" {
			// Skip organizations with incomplete entries (commented out in YAML)
			continue
		}

		if oc.Alias == "" {
			oc.Alias = oc.OrganizationID
		}

		if oc.TokenURL == "" {
			oc.TokenURL = strings.TrimSuffix(oc.ERPBaseURL, "/") + "/oauth/token"
		}

		cfg.Organizations = append(cfg.Organizations, oc)
	}

	if len(cfg.Organizations) == 0 {
		return nil, fmt.Errorf("no organizations configured — check config.yaml and environment variables")
	}

	if cfg.IntakeToken == "" {
		return nil, fmt.Errorf("INTAKE_TOKEN is required — the intake webhook refuses unauthenticated deliveries")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrDefaultInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envOrDefaultBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envOrDefaultDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
