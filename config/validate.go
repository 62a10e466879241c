// Copyright (c) 2024 The BitFS developers
// Use of this source code is governed by the Open BSV License v5
// that can be found in the LICENSE file.

package config

import (
	"fmt"
	"net"
	"strings"
)

// validLogLevels lists the accepted log level strings.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validBackends = map[string]bool{
	BackendMemory: true,
	BackendFile:   true,
	BackendBolt:   true,
	BackendBadger: true,
	BackendHTTP:   true,
}

// ValidateConfig checks that all configuration values are within acceptable
// ranges and returns the first error encountered, or nil if valid.
func ValidateConfig(cfg Config) error {
	if cfg.DataDir == "" {
		return ErrEmptyDataDir
	}

	if !validBackends[cfg.Backend] {
		return fmt.Errorf("%w: %q", ErrInvalidBackend, cfg.Backend)
	}

	if cfg.Backend == BackendHTTP && len(cfg.Endpoints) == 0 && cfg.Discovery == "" {
		return ErrNoEndpoints
	}

	if cfg.DNSSEC != "" {
		if err := validateAddr(cfg.DNSSEC); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidDNSSEC, err)
		}
	}

	if err := validateAddr(cfg.ListenAddr); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidListenAddr, err)
	}

	if !validLogLevels[strings.ToLower(cfg.LogLevel)] {
		return ErrInvalidLogLevel
	}

	return nil
}

// validateAddr checks that addr is a valid host:port address.
func validateAddr(addr string) error {
	_, _, err := net.SplitHostPort(addr)
	return err
}
