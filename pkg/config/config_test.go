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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shoham-z/netmon/pkg/logger"
	"github.com/shoham-z/netmon/pkg/models"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestLoadAndValidate(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "netmon.json", `{
		"vars_file": "/etc/netmon/vars.json",
		"cache_path": "/var/lib/netmon/cache.db",
		"listen_addr": "127.0.0.1:8090",
		"probe_interval": "5s"
	}`)

	var cfg Config

	require.NoError(t, LoadAndValidate(context.Background(), path, &cfg))
	assert.Equal(t, "/etc/netmon/vars.json", cfg.VarsFile)
	assert.Equal(t, models.Duration(5*time.Second), cfg.ProbeInterval)
	assert.Equal(t, models.Duration(30*time.Second), cfg.ResyncInterval, "resync defaults to 30s")
	assert.Equal(t, models.Duration(60*time.Second), cfg.RefreshInterval, "refresh defaults to 60s")
}

func TestLoadAndValidateRejectsMissingVarsFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "netmon.json", `{"cache_path": "x"}`)

	var cfg Config

	assert.Error(t, LoadAndValidate(context.Background(), path, &cfg))
}

func TestFileLoaderMissingFile(t *testing.T) {
	var cfg Config

	err := (&FileLoader{}).Load(context.Background(), "/nonexistent/netmon.json", &cfg)
	assert.Error(t, err)
}

func TestProviderInitialLoad(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "vars.json", `{
		"server_address": "192.168.1.10:8080",
		"mode": "SWITCH"
	}`)

	p, err := NewProvider(context.Background(), path, time.Minute, logger.NewTestLogger())
	require.NoError(t, err)

	cfg := p.Get()
	assert.Equal(t, "http://192.168.1.10:8080", cfg.ServerAddress)
	assert.Equal(t, models.ModeSwitch, cfg.Mode)
	assert.Equal(t, 3, p.MaxMissedProbes(), "threshold defaults to 3 when the vars file omits it")
}

func TestProviderInitialLoadFails(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "vars.json", `{"server_address": "x:1", "mode": "ROUTER"}`)

	_, err := NewProvider(context.Background(), path, time.Minute, logger.NewTestLogger())
	assert.Error(t, err)
}

func TestProviderRefreshKeepsPreviousSnapshotOnError(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "vars.json", `{
		"server_address": "http://192.168.1.10:8080",
		"mode": "SWITCH",
		"max_missed_probes": 5
	}`)

	p, err := NewProvider(context.Background(), path, time.Minute, logger.NewTestLogger())
	require.NoError(t, err)
	require.Equal(t, 5, p.MaxMissedProbes())

	require.NoError(t, os.WriteFile(path, []byte(`{broken`), 0o600))
	p.refresh(context.Background())
	assert.Equal(t, 5, p.MaxMissedProbes(), "broken vars file must not clobber the last good snapshot")

	writeFile(t, dir, "vars.json", `{
		"server_address": "http://192.168.1.10:8080",
		"mode": "SWITCH",
		"max_missed_probes": 2
	}`)
	p.refresh(context.Background())
	assert.Equal(t, 2, p.MaxMissedProbes(), "a valid rewrite takes effect on the next refresh")
}
