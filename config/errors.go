// Copyright (c) 2024 The BitFS developers
// Use of this source code is governed by the Open BSV License v5
// that can be found in the LICENSE file.

package config

import "errors"

var (
	// ErrInvalidBackend indicates the store backend name is not recognized.
	ErrInvalidBackend = errors.New("config: invalid backend (must be \"memory\", \"file\", \"bolt\", \"badger\", or \"http\")")

	// ErrNoEndpoints indicates the http backend has neither endpoints nor a discovery domain.
	ErrNoEndpoints = errors.New("config: http backend needs endpoints or a discovery domain")

	// ErrInvalidDNSSEC indicates the DNSSEC upstream resolver is not a host:port address.
	ErrInvalidDNSSEC = errors.New("config: invalid dnssec upstream")

	// ErrInvalidListenAddr indicates the listen address is malformed.
	ErrInvalidListenAddr = errors.New("config: invalid listen address")

	// ErrInvalidLogLevel indicates the log level is not recognized.
	ErrInvalidLogLevel = errors.New("config: invalid log level (must be \"debug\", \"info\", \"warn\", or \"error\")")

	// ErrEmptyDataDir indicates the data directory path is empty.
	ErrEmptyDataDir = errors.New("config: data directory must not be empty")

	// ErrConfigNotFound indicates the configuration file does not exist.
	ErrConfigNotFound = errors.New("config: configuration file not found")

	// ErrInvalidConfigLine indicates a line in the config file is malformed.
	ErrInvalidConfigLine = errors.New("config: invalid configuration line")

	// ErrInvalidKeyVersion indicates keyversion is not an integer in 0..255.
	ErrInvalidKeyVersion = errors.New("config: invalid key version")

	// ErrInvalidYAML indicates a YAML configuration file could not be decoded.
	ErrInvalidYAML = errors.New("config: invalid YAML")
)
