// Licensed to the Apache Software Foundation (ASF) under one
// or more contributor license agreements.  See the NOTICE file
// distributed with this work for additional information
// regarding copyright ownership.  The ASF licenses this file
// to you under the Apache License, Version 2.0 (the
// "License"); you may not use this file except in compliance
// with the License.  You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing,
// software distributed under the License is distributed on an
// "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
// KIND, either express or implied.  See the License for the
// specific language governing permissions and limitations
// under the License.

// Package config reads the optional YAML file holding named scan
// profiles for the dsfilter command.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	cfgFile = ".dsfilter.yaml"
	homeEnv = "DSFILTER_HOME"

	DefaultProfile     = "default"
	DefaultConcurrency = 4
)

var (
	ErrInvalidConfig   = errors.New("invalid configuration")
	ErrProfileNotFound = errors.New("profile not found")
)

var (
	Partitionings = []string{"none", "hive", "directory"}
	Outputs       = []string{"text", "json"}
	Evaluators    = []string{"tree", "substrait"}
)

type Config struct {
	DefaultProfile string                   `yaml:"default-profile"`
	Profiles       map[string]ProfileConfig `yaml:"profile"`
	Concurrency    int                      `yaml:"concurrency"`
}

// ProfileConfig holds the scan settings of a named profile. Zero values
// mean "not set" and leave the command line defaults in place.
type ProfileConfig struct {
	Partitioning     string   `yaml:"partitioning"`
	PartitionFields  []string `yaml:"partition-fields"`
	BatchSize        int64    `yaml:"batch-size"`
	Concurrency      int      `yaml:"concurrency"`
	Output           string   `yaml:"output"`
	Evaluator        string   `yaml:"evaluator"`
	AllowUnsafeCasts bool     `yaml:"allow-unsafe-casts"`
}

// Validate rejects values no scan can be configured with.
func (p ProfileConfig) Validate() error {
	var errs []error
	oneOf := func(key, value string, allowed []string) {
		if value != "" && !slices.Contains(allowed, strings.ToLower(value)) {
			errs = append(errs, fmt.Errorf("%s %q is not one of %s",
				key, value, strings.Join(allowed, "/")))
		}
	}

	oneOf("partitioning", p.Partitioning, Partitionings)
	oneOf("output", p.Output, Outputs)
	oneOf("evaluator", p.Evaluator, Evaluators)
	if p.BatchSize < 0 {
		errs = append(errs, fmt.Errorf("batch-size %d is negative", p.BatchSize))
	}
	if p.Concurrency < 0 {
		errs = append(errs, fmt.Errorf("concurrency %d is negative", p.Concurrency))
	}
	if len(p.PartitionFields) > 0 && p.Partitioning != "" && !strings.EqualFold(p.Partitioning, "directory") {
		errs = append(errs, fmt.Errorf("partition-fields cannot be used with %s partitioning", p.Partitioning))
	}

	return errors.Join(errs...)
}

// Path resolves where the configuration lives: explicit when set, then
// $DSFILTER_HOME and finally the home directory. It returns "" when none
// of them can be determined.
func Path(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if dir := os.Getenv(homeEnv); dir != "" {
		return filepath.Join(dir, cfgFile)
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	return filepath.Join(homeDir, cfgFile)
}

// Load reads the configuration found by Path(explicit). A missing file is
// not an error and yields an empty configuration, an unreadable or
// malformed one is.
func Load(explicit string) (Config, error) {
	var cfg Config

	if path := Path(explicit); path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return Config{}, err
		default:
			if cfg, err = Parse(data); err != nil {
				return Config{}, fmt.Errorf("%s: %w", path, err)
			}
		}
	}

	if cfg.DefaultProfile == "" {
		cfg.DefaultProfile = DefaultProfile
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}

	return cfg, nil
}

// Parse decodes and validates a configuration file.
func Parse(data []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	for name, p := range cfg.Profiles {
		if err := p.Validate(); err != nil {
			return Config{}, fmt.Errorf("%w: profile %s: %w", ErrInvalidConfig, name, err)
		}
	}

	return cfg, nil
}

// Profile returns the named profile, the default one when name is empty.
// The default profile may be absent, a profile asked for by name may not.
// A profile without a concurrency inherits the top level one.
func (c Config) Profile(name string) (ProfileConfig, error) {
	lookup := name
	if lookup == "" {
		lookup = c.DefaultProfile
	}

	p, ok := c.Profiles[lookup]
	if !ok && name != "" {
		return ProfileConfig{}, fmt.Errorf("%w: %s", ErrProfileNotFound, name)
	}

	if p.Concurrency == 0 {
		p.Concurrency = c.Concurrency
	}

	return p, nil
}
