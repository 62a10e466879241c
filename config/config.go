// Copyright (c) 2024 The BitFS developers
// Use of this source code is governed by the Open BSV License v5
// that can be found in the LICENSE file.

// Package config loads and validates cryptree block service configuration.
//
// The file format is one "key = value" pair per line; blank lines and lines
// starting with '#' are ignored, unknown keys are skipped.
package config

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Backend names accepted by Config.Backend.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendBolt   = "bolt"
	BackendBadger = "badger"
	BackendHTTP   = "http"
)

// Config holds the settings for opening a block store and serving it.
type Config struct {
	DataDir    string   `yaml:"datadir"`
	Backend    string   `yaml:"backend"`
	Endpoints  []string `yaml:"endpoints"`
	Discovery  string   `yaml:"discovery"`
	DNSSEC     string   `yaml:"dnssec"`
	ListenAddr string   `yaml:"listen"`
	LogLevel   string   `yaml:"loglevel"`
	LogFile    string   `yaml:"logfile"`
	KeyVersion uint8    `yaml:"keyversion"`
}

// DefaultDataDir returns ~/.cryptree, or ./.cryptree if the home directory
// cannot be determined.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".cryptree"
	}
	return filepath.Join(home, ".cryptree")
}

// DefaultConfig returns the configuration used when no file overrides it.
func DefaultConfig() Config {
	return Config{
		DataDir:    DefaultDataDir(),
		Backend:    BackendBolt,
		ListenAddr: ":8470",
		LogLevel:   "info",
		KeyVersion: 1,
	}
}

// ConfigPath returns the configuration file path inside dataDir.
func ConfigPath(dataDir string) string {
	return filepath.Join(filepath.Clean(dataDir), "config")
}

// LoadConfig reads a key=value configuration file on top of DefaultConfig.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return cfg, fmt.Errorf("config: open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, err := parseKeyValue(line)
		if err != nil {
			return cfg, fmt.Errorf("%w: line %d: %q", err, lineNo, line)
		}
		if err := apply(&cfg, key, value); err != nil {
			return cfg, fmt.Errorf("%w: line %d", err, lineNo)
		}
	}
	if err := scanner.Err(); err != nil {
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}
	return cfg, nil
}

// parseKeyValue splits a line on the first '='.
func parseKeyValue(line string) (string, string, error) {
	key, value, ok := strings.Cut(line, "=")
	if !ok {
		return "", "", ErrInvalidConfigLine
	}
	key = strings.ToLower(strings.TrimSpace(key))
	if key == "" {
		return "", "", ErrInvalidConfigLine
	}
	return key, strings.TrimSpace(value), nil
}

func apply(cfg *Config, key, value string) error {
	switch key {
	case "datadir":
		cfg.DataDir = value
	case "backend":
		cfg.Backend = strings.ToLower(value)
	case "endpoints":
		cfg.Endpoints = splitList(value)
	case "discovery":
		cfg.Discovery = value
	case "dnssec":
		cfg.DNSSEC = value
	case "listen":
		cfg.ListenAddr = value
	case "loglevel":
		cfg.LogLevel = value
	case "logfile":
		cfg.LogFile = value
	case "keyversion":
		v, err := strconv.ParseUint(value, 10, 8)
		if err != nil {
			return fmt.Errorf("%w: %q", ErrInvalidKeyVersion, value)
		}
		cfg.KeyVersion = uint8(v)
	}
	return nil
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// SaveConfig writes cfg in key=value form, creating parent directories.
func SaveConfig(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("config: create directory: %w", err)
	}

	var b strings.Builder
	b.WriteString("# Cryptree Configuration\n")
	fmt.Fprintf(&b, "datadir = %s\n", cfg.DataDir)
	fmt.Fprintf(&b, "backend = %s\n", cfg.Backend)
	fmt.Fprintf(&b, "endpoints = %s\n", strings.Join(cfg.Endpoints, ","))
	fmt.Fprintf(&b, "discovery = %s\n", cfg.Discovery)
	fmt.Fprintf(&b, "dnssec = %s\n", cfg.DNSSEC)
	fmt.Fprintf(&b, "listen = %s\n", cfg.ListenAddr)
	fmt.Fprintf(&b, "loglevel = %s\n", cfg.LogLevel)
	fmt.Fprintf(&b, "logfile = %s\n", cfg.LogFile)
	fmt.Fprintf(&b, "keyversion = %d\n", cfg.KeyVersion)

	if err := os.WriteFile(path, []byte(b.String()), 0600); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}
