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

package config

import (
	"errors"
	"time"

	"github.com/shoham-z/netmon/pkg/logger"
	"github.com/shoham-z/netmon/pkg/models"
)

const (
	defaultProbeInterval   = 15 * time.Second
	defaultResyncInterval  = 30 * time.Second
	defaultRefreshInterval = 60 * time.Second
)

var errMissingVarsFile = errors.New("vars_file is required")

// Config is the static daemon configuration loaded once at startup. The
// runtime vars file it points at is re-read by the Provider while running.
type Config struct {
	VarsFile        string          `json:"vars_file"`
	CachePath       string          `json:"cache_path"`
	ListenAddr      string          `json:"listen_addr"`
	ProbeInterval   models.Duration `json:"probe_interval"`
	ResyncInterval  models.Duration `json:"resync_interval"`
	RefreshInterval models.Duration `json:"refresh_interval"`
	Logging         *logger.Config  `json:"logging,omitempty"`
}

// Validate implements Validator and applies interval defaults.
func (c *Config) Validate() error {
	if c.VarsFile == "" {
		return errMissingVarsFile
	}

	if c.ProbeInterval == 0 {
		c.ProbeInterval = models.Duration(defaultProbeInterval)
	}

	if c.ResyncInterval == 0 {
		c.ResyncInterval = models.Duration(defaultResyncInterval)
	}

	if c.RefreshInterval == 0 {
		c.RefreshInterval = models.Duration(defaultRefreshInterval)
	}

	return nil
}
