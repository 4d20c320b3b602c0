/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Mode selects the class of devices the dashboard manages.
type Mode string

const (
	ModeSwitch    Mode = "SWITCH"
	ModeEncryptor Mode = "ENCRYPTOR"
)

const (
	defaultMaxMissedProbes = 3
	minMaxMissedProbes     = 1
	maxMaxMissedProbes     = 10
)

var (
	ErrInvalidMode       = errors.New("mode must be SWITCH or ENCRYPTOR")
	ErrMissingServerAddr = errors.New("server_address is required")
	ErrInvalidDuration   = errors.New("invalid duration")
)

// AppConfig is a read-only snapshot of the dashboard settings. Snapshots are
// refreshed periodically by the config provider; holders never mutate one.
type AppConfig struct {
	ServerAddress   string `json:"server_address"`
	Mode            Mode   `json:"mode"`
	MaxMissedProbes int    `json:"max_missed_probes"`
}

// Normalize applies defaults and bounds so that every snapshot handed out
// resolves to a usable configuration: MaxMissedProbes always lands in 1-10
// (default 3) and the server address carries an http scheme.
func (c *AppConfig) Normalize() {
	if c.MaxMissedProbes == 0 {
		c.MaxMissedProbes = defaultMaxMissedProbes
	}

	if c.MaxMissedProbes < minMaxMissedProbes {
		c.MaxMissedProbes = minMaxMissedProbes
	}

	if c.MaxMissedProbes > maxMaxMissedProbes {
		c.MaxMissedProbes = maxMaxMissedProbes
	}

	if c.ServerAddress != "" && !strings.HasPrefix(c.ServerAddress, "http") {
		c.ServerAddress = "http://" + c.ServerAddress
	}
}

// Validate rejects snapshots that cannot drive the engine.
func (c *AppConfig) Validate() error {
	if c.ServerAddress == "" {
		return ErrMissingServerAddr
	}

	if c.Mode != ModeSwitch && c.Mode != ModeEncryptor {
		return fmt.Errorf("%w: got %q", ErrInvalidMode, c.Mode)
	}

	return nil
}

// Duration is a wrapper around time.Duration for JSON unmarshaling.
type Duration time.Duration

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v interface{}
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}

	switch value := v.(type) {
	case float64:
		*d = Duration(time.Duration(value))
	case string:
		tmp, err := time.ParseDuration(value)
		if err != nil {
			return err
		}

		*d = Duration(tmp)
	default:
		return ErrInvalidDuration
	}

	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}
