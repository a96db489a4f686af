// Copyright (C) 2025 Lanternworks OSS (dev@lanternworks.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package config loads engine settings from the workspace's .drydock
// directory with environment overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/lanternworks/drydock/pkg/logging"
	"github.com/lanternworks/drydock/verify"
)

// Config is the full engine configuration.
type Config struct {
	// ListenAddr is the HTTP bind address for serve mode.
	ListenAddr string `yaml:"listenAddr"`

	// RuntimePort is the local llama-server port.
	RuntimePort int `yaml:"runtimePort"`

	// Model names the model the local runtime serves.
	Model string `yaml:"model"`

	// MaxPatchLines bounds a single incoming patch.
	MaxPatchLines int `yaml:"maxPatchLines"`

	// MaxRepairAttempts bounds the auto-repair loop.
	MaxRepairAttempts int `yaml:"maxRepairAttempts"`

	// Stages are the ordered verification checks. Empty means verification
	// is skipped entirely.
	Stages []verify.Stage `yaml:"stages"`

	// Logging configures the process logger.
	Logging logging.Config `yaml:"logging"`
}

// Default returns the baseline configuration for a workspace root.
func Default(root string) Config {
	return Config{
		ListenAddr:        "127.0.0.1:8099",
		RuntimePort:       8080,
		MaxPatchLines:     5000,
		MaxRepairAttempts: verify.DefaultMaxRepairAttempts,
		Logging: logging.Config{
			Level:    "info",
			Format:   "text",
			FilePath: filepath.Join(root, ".drydock", "logs", "drydock.log"),
		},
	}
}

// Load reads .drydock/config.yaml under root, falling back to defaults when
// the file is absent, then applies environment overrides.
//
// # Description
//
// Environment variables win over file values: DRYDOCK_LISTEN_ADDR,
// DRYDOCK_RUNTIME_PORT, DRYDOCK_MODEL, DRYDOCK_MAX_REPAIR_ATTEMPTS, and
// DRYDOCK_LOG_LEVEL.
func Load(root string) (Config, error) {
	cfg := Default(root)

	path := filepath.Join(root, ".drydock", "config.yaml")
	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return cfg, fmt.Errorf("read %s: %w", path, err)
	}

	applyEnv(&cfg)

	if cfg.MaxRepairAttempts <= 0 {
		cfg.MaxRepairAttempts = verify.DefaultMaxRepairAttempts
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("DRYDOCK_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("DRYDOCK_RUNTIME_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.RuntimePort = port
		}
	}
	if v := os.Getenv("DRYDOCK_MODEL"); v != "" {
		cfg.Model = v
	}
	if v := os.Getenv("DRYDOCK_MAX_REPAIR_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxRepairAttempts = n
		}
	}
	if v := os.Getenv("DRYDOCK_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}
