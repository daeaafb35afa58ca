// Licensed to LinDB under one or more contributor
// license agreements. See the NOTICE file distributed with
// this work for additional information regarding copyright
// ownership. LinDB licenses this file to you under
// the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing,
// software distributed under the License is distributed on an
// "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
// KIND, either express or implied.  See the License for the
// specific language governing permissions and limitations
// under the License.

// Package config loads runtimectl's TOML configuration: the pool and
// scheduler settings an operator tunes without a rebuild.
package config

import (
	"runtime"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
)

// ErrInvalidConfig wraps every validation failure raised by Validate.
var ErrInvalidConfig = errors.New("config: invalid configuration")

// Duration wraps time.Duration with TOML-friendly text (un)marshaling,
// so operators write "unused_lifetime = \"250ms\"" instead of a raw
// nanosecond count.
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler for the BurntSushi
// TOML decoder.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return errors.Wrap(err, "config: invalid duration")
	}
	d.Duration = parsed
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Pool configures one ElasticExecutor.
type Pool struct {
	Name           string   `toml:"name"`
	MinWorkers     int      `toml:"min_workers"`
	MaxWorkers     int      `toml:"max_workers"`
	MaxQueueSize   int      `toml:"max_queue_size"`
	UnusedLifetime Duration `toml:"unused_lifetime"`
	CacheWorkers   bool     `toml:"cache_workers"`
}

// Scheduler configures the TimerScheduler's dispatch thread name; the
// handles it drives are built and configured programmatically, not
// via TOML.
type Scheduler struct {
	Name string `toml:"name"`
}

// Logging configures pkg/logger.
type Logging struct {
	Dir        string `toml:"dir"`
	Level      string `toml:"level"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
	Compress   bool   `toml:"compress"`
}

// Runtime is the top-level document runtimectl reads at startup.
type Runtime struct {
	Pools     []Pool    `toml:"pool"`
	Scheduler Scheduler `toml:"scheduler"`
	Logging   Logging   `toml:"logging"`
}

// Default returns a Runtime with the same defaults ElasticExecutor and
// TimerScheduler apply when left unconfigured.
func Default() Runtime {
	maxWorkers := runtime.GOMAXPROCS(0) - 1
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	return Runtime{
		Pools: []Pool{{
			Name:           "default",
			MinWorkers:     0,
			MaxWorkers:     maxWorkers,
			MaxQueueSize:   -1,
			UnusedLifetime: Duration{100 * time.Millisecond},
		}},
		Scheduler: Scheduler{Name: "timer"},
		Logging:   Logging{Level: "info"},
	}
}

// LoadFile decodes and validates path.
func LoadFile(path string) (Runtime, error) {
	var rt Runtime
	if _, err := toml.DecodeFile(path, &rt); err != nil {
		return Runtime{}, errors.Wrap(err, "config: decode failed")
	}
	if err := rt.Validate(); err != nil {
		return Runtime{}, err
	}
	return rt, nil
}

// Validate enforces the same range invariants ElasticExecutor.SetRange
// and SetUnusedLifetime enforce at runtime, so bad configuration is
// rejected at startup instead of surfacing as a spawn panic later.
func (rt Runtime) Validate() error {
	names := map[string]bool{}
	for _, p := range rt.Pools {
		if p.Name == "" {
			return errors.Wrap(ErrInvalidConfig, "pool name must not be empty")
		}
		if names[p.Name] {
			return errors.Wrapf(ErrInvalidConfig, "duplicate pool name %q", p.Name)
		}
		names[p.Name] = true

		if p.MinWorkers < 0 || p.MaxWorkers < 0 || p.MinWorkers > p.MaxWorkers {
			return errors.Wrapf(ErrInvalidConfig, "pool %q: min_workers/max_workers out of range", p.Name)
		}
		if p.UnusedLifetime.Duration < 0 {
			return errors.Wrapf(ErrInvalidConfig, "pool %q: unused_lifetime must be >= 0", p.Name)
		}
	}
	return nil
}
