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
	"context"
	"sync"
	"time"

	"github.com/shoham-z/netmon/pkg/logger"
	"github.com/shoham-z/netmon/pkg/models"
)

// Provider hands out immutable AppConfig snapshots and refreshes them from
// the vars file on a fixed cadence. A failed refresh keeps the previous
// snapshot so the engine keeps running on the last good settings.
type Provider struct {
	path     string
	interval time.Duration
	loader   *FileLoader
	logger   logger.Logger

	mu      sync.RWMutex
	current models.AppConfig

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewProvider loads the vars file once and fails if the initial snapshot is
// unusable. The original app refused to start on a broken vars file.
func NewProvider(ctx context.Context, path string, interval time.Duration, log logger.Logger) (*Provider, error) {
	p := &Provider{
		path:     path,
		interval: interval,
		loader:   &FileLoader{},
		logger:   log,
		done:     make(chan struct{}),
	}

	cfg, err := p.load(ctx)
	if err != nil {
		return nil, err
	}

	p.current = cfg

	return p, nil
}

func (p *Provider) load(ctx context.Context) (models.AppConfig, error) {
	var cfg models.AppConfig

	if err := p.loader.Load(ctx, p.path, &cfg); err != nil {
		return models.AppConfig{}, err
	}

	cfg.Normalize()

	if err := cfg.Validate(); err != nil {
		return models.AppConfig{}, err
	}

	return cfg, nil
}

// Get returns the latest good snapshot.
func (p *Provider) Get() models.AppConfig {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return p.current
}

// MaxMissedProbes returns the live debounce threshold. The liveness tracker
// reads this on every probe result so threshold changes apply without a
// restart.
func (p *Provider) MaxMissedProbes() int {
	return p.Get().MaxMissedProbes
}

// Start launches the periodic refresh loop.
func (p *Provider) Start(ctx context.Context) {
	p.wg.Add(1)

	go func() {
		defer p.wg.Done()

		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-p.done:
				return
			case <-ticker.C:
				p.refresh(ctx)
			}
		}
	}()
}

func (p *Provider) refresh(ctx context.Context) {
	cfg, err := p.load(ctx)
	if err != nil {
		p.logger.Warn().Err(err).Str("path", p.path).Msg("Vars refresh failed, keeping previous snapshot")
		return
	}

	p.mu.Lock()
	changed := cfg != p.current
	p.current = cfg
	p.mu.Unlock()

	if changed {
		p.logger.Info().
			Str("server_address", cfg.ServerAddress).
			Str("mode", string(cfg.Mode)).
			Int("max_missed_probes", cfg.MaxMissedProbes).
			Msg("Vars updated")
	}
}

// Stop terminates the refresh loop.
func (p *Provider) Stop() {
	p.closeOnce.Do(func() { close(p.done) })
	p.wg.Wait()
}
