// Copyright (c) 2024 The BitFS developers
// Use of this source code is governed by the Open BSV License v5
// that can be found in the LICENSE file.

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadYAMLConfig reads a YAML configuration file on top of DefaultConfig.
// Keys are the same as the key=value format; endpoints is a list.
func LoadYAMLConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, fmt.Errorf("%w: %w", ErrInvalidYAML, err)
	}
	cfg.Backend = strings.ToLower(cfg.Backend)
	return cfg, nil
}

// Load picks the parser from the file extension: .yaml/.yml use YAML,
// anything else the key=value format.
func Load(path string) (Config, error) {
	if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
		return LoadYAMLConfig(path)
	}
	return LoadConfig(path)
}
