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

package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/shoham-z/netmon/pkg/api"
	"github.com/shoham-z/netmon/pkg/cache"
	"github.com/shoham-z/netmon/pkg/config"
	"github.com/shoham-z/netmon/pkg/directory"
	"github.com/shoham-z/netmon/pkg/liveness"
	"github.com/shoham-z/netmon/pkg/logger"
	"github.com/shoham-z/netmon/pkg/models"
	"github.com/shoham-z/netmon/pkg/notify"
	"github.com/shoham-z/netmon/pkg/probe"
	"github.com/shoham-z/netmon/pkg/registry"
	"github.com/shoham-z/netmon/pkg/scheduler"
)

const probeTimeout = 1 * time.Second

var errFailedToLoadConfig = fmt.Errorf("failed to load config")

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	configPath := flag.String("config", "/etc/netmon/netmon.json", "Path to netmon config file")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var cfg config.Config
	if err := config.LoadAndValidate(ctx, *configPath, &cfg); err != nil {
		return fmt.Errorf("%w: %w", errFailedToLoadConfig, err)
	}

	logConfig := cfg.Logging
	if logConfig == nil {
		logConfig = logger.DefaultConfig()
	}

	rootLogger, err := logger.New(logConfig)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	// Runtime vars: server address, mode and debounce threshold, re-read
	// while running.
	provider, err := config.NewProvider(ctx, cfg.VarsFile, time.Duration(cfg.RefreshInterval), rootLogger.WithComponent("config"))
	if err != nil {
		return fmt.Errorf("failed to load vars: %w", err)
	}

	store, err := cache.Open(ctx, cfg.CachePath)
	if err != nil {
		return fmt.Errorf("failed to open cache: %w", err)
	}
	defer store.Close()

	client := directory.NewClient(func() string {
		return provider.Get().ServerAddress
	}, rootLogger.WithComponent("directory"))

	reg := registry.New(client, store, rootLogger.WithComponent("registry"))
	tracker := liveness.NewTracker(provider, rootLogger.WithComponent("liveness"))

	sink := notify.NewSink(store, reg, rootLogger.WithComponent("notify"))
	if err := sink.Load(ctx); err != nil {
		rootLogger.Warn().Err(err).Msg("Starting with an empty notification log")
	}

	prober := probe.NewICMPProber(probeTimeout, rootLogger.WithComponent("probe"))
	sched := scheduler.New(reg, prober, tracker, sink, time.Duration(cfg.ProbeInterval), nil,
		rootLogger.WithComponent("scheduler"))

	// A registry change kicks an immediate probe pass and drops liveness
	// state for removed devices.
	reg.SetOnChange(func(devices []models.Device) {
		keep := make(map[int64]struct{}, len(devices))
		for _, d := range devices {
			keep[d.ID] = struct{}{}
		}

		tracker.Prune(keep)
		sched.Kick()
	})

	server := api.NewServer(reg, sink, sched, tracker, provider, rootLogger.WithComponent("api"))
	sink.SetPublisher(server.Publish)

	// Remote load first; a failure falls back to the cached list and the
	// resync loop keeps retrying.
	if err := reg.Load(ctx); err != nil {
		rootLogger.Warn().Err(err).Msg("Initial device load failed, starting empty")
	}

	provider.Start(ctx)
	reg.Start(ctx, time.Duration(cfg.ResyncInterval))

	go func() {
		if err := sched.Start(ctx); err != nil && ctx.Err() == nil {
			rootLogger.Error().Err(err).Msg("Probe scheduler stopped")
		}
	}()

	serveErr := make(chan error, 1)

	go func() {
		serveErr <- server.Start(cfg.ListenAddr)
	}()

	select {
	case <-ctx.Done():
		rootLogger.Info().Msg("Shutting down")
	case err := <-serveErr:
		if err != nil {
			rootLogger.Error().Err(err).Msg("API server failed")
		}
	}

	sched.Stop()
	reg.Stop()
	provider.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return server.Shutdown(shutdownCtx)
}
