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

// Package registry owns the canonical device list. It reconciles the remote
// directory with the local cache: reads fall back to the cache when the
// directory is offline, mutations are rejected outright so the local list
// never silently diverges from the server of record.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shoham-z/netmon/pkg/directory"
	"github.com/shoham-z/netmon/pkg/logger"
	"github.com/shoham-z/netmon/pkg/models"
)

//go:generate mockgen -destination=mock_registry.go -package=registry github.com/shoham-z/netmon/pkg/registry DirectoryClient,CacheStore

var (
	ErrServerOffline = errors.New("server is offline")
	ErrEmptyCache    = errors.New("directory unreachable and cache is empty")
	ErrUnknownDevice = errors.New("unknown device")
)

// DirectoryClient is the remote directory surface the registry consumes.
type DirectoryClient interface {
	List(ctx context.Context) ([]models.Device, error)
	Create(ctx context.Context, address, name string) error
	Update(ctx context.Context, id int64, address, name string) error
	Delete(ctx context.Context, address string) error
}

// CacheStore is the durable fallback for the device list.
type CacheStore interface {
	LoadDevices(ctx context.Context) ([]models.Device, error)
	SaveDevices(ctx context.Context, devices []models.Device) error
}

// Registry is the single source of truth for the device set.
type Registry struct {
	directory DirectoryClient
	cache     CacheStore
	logger    logger.Logger

	mu       sync.RWMutex
	devices  []models.Device
	online   bool
	selected string

	onChange func(devices []models.Device)

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

func New(dir DirectoryClient, cache CacheStore, log logger.Logger) *Registry {
	return &Registry{
		directory: dir,
		cache:     cache,
		logger:    log,
		done:      make(chan struct{}),
	}
}

// SetOnChange registers a callback invoked with the new device list after
// every successful list replacement or mutation. The callback runs outside
// the registry lock.
func (r *Registry) SetOnChange(fn func(devices []models.Device)) {
	r.onChange = fn
}

// Load replaces the in-memory list from the remote directory, falling back
// to the cache when the directory is unreachable. Only a successful remote
// list flips the registry online.
func (r *Registry) Load(ctx context.Context) error {
	devices, err := r.directory.List(ctx)
	if err == nil {
		r.replaceList(devices, true)
		r.persist(ctx, devices)
		r.notifyChange(devices)

		return nil
	}

	r.setOnline(false)
	r.logger.Warn().Err(err).Msg("Directory list failed, falling back to cache")

	cached, cacheErr := r.cache.LoadDevices(ctx)
	if cacheErr != nil {
		return fmt.Errorf("%w: %w", ErrEmptyCache, cacheErr)
	}

	if len(cached) == 0 {
		// Nothing cached either: leave the current list as-is and surface
		// the original failure.
		return fmt.Errorf("%w: %w", ErrEmptyCache, err)
	}

	r.replaceList(cached, false)
	r.notifyChange(cached)
	r.logger.Info().Int("devices", len(cached)).Msg("Serving device list from cache")

	return nil
}

// Add registers a new device with the remote directory. Mutations are
// rejected while offline so the local list cannot diverge from the server.
func (r *Registry) Add(ctx context.Context, address, name string) (models.Device, error) {
	if err := models.ValidateAddress(address); err != nil {
		return models.Device{}, err
	}

	if err := models.ValidateName(name); err != nil {
		return models.Device{}, err
	}

	if !r.Online() {
		return models.Device{}, ErrServerOffline
	}

	if err := r.directory.Create(ctx, address, name); err != nil {
		r.noteMutationFailure(err)
		return models.Device{}, err
	}

	r.mu.Lock()

	device := models.Device{ID: r.nextIDLocked(), Name: name, Address: address}
	r.devices = append(r.devices, device)
	devices := snapshot(r.devices)

	r.mu.Unlock()

	r.persist(ctx, devices)
	r.notifyChange(devices)

	return device, nil
}

// Edit replaces the matching device's fields in place. When the edited
// device is the current selection, the selection follows the new address.
func (r *Registry) Edit(ctx context.Context, id int64, newAddress, newName string) error {
	if err := models.ValidateAddress(newAddress); err != nil {
		return err
	}

	if err := models.ValidateName(newName); err != nil {
		return err
	}

	if !r.Online() {
		return ErrServerOffline
	}

	if err := r.directory.Update(ctx, id, newAddress, newName); err != nil {
		r.noteMutationFailure(err)
		return err
	}

	r.mu.Lock()

	var previousAddress string

	for i := range r.devices {
		if r.devices[i].ID == id {
			previousAddress = r.devices[i].Address
			r.devices[i].Address = newAddress
			r.devices[i].Name = newName

			break
		}
	}

	// Selection is tracked by address; keep the user's focus on the device
	// they edited.
	if previousAddress != "" && r.selected == previousAddress {
		r.selected = newAddress
	}

	devices := snapshot(r.devices)

	r.mu.Unlock()

	r.persist(ctx, devices)
	r.notifyChange(devices)

	return nil
}

// Delete removes the device matching the address.
func (r *Registry) Delete(ctx context.Context, address string) error {
	if !r.Online() {
		return ErrServerOffline
	}

	if err := r.directory.Delete(ctx, address); err != nil {
		r.noteMutationFailure(err)
		return err
	}

	r.mu.Lock()

	kept := r.devices[:0]

	for _, d := range r.devices {
		if d.Address != address {
			kept = append(kept, d)
		}
	}

	r.devices = kept

	if r.selected == address {
		r.selected = ""
	}

	devices := snapshot(r.devices)

	r.mu.Unlock()

	r.persist(ctx, devices)
	r.notifyChange(devices)

	return nil
}

// Devices returns a snapshot of the current list.
func (r *Registry) Devices() []models.Device {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return snapshot(r.devices)
}

// Device looks up a device by id.
func (r *Registry) Device(id int64) (models.Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, d := range r.devices {
		if d.ID == id {
			return d, nil
		}
	}

	return models.Device{}, fmt.Errorf("%w: id %d", ErrUnknownDevice, id)
}

// DeviceByAddress looks up a device by address. Probe results are matched
// this way, so a late result for a changed address is dropped.
func (r *Registry) DeviceByAddress(address string) (models.Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, d := range r.devices {
		if d.Address == address {
			return d, nil
		}
	}

	return models.Device{}, fmt.Errorf("%w: address %s", ErrUnknownDevice, address)
}

// Online reports whether the last directory contact succeeded.
func (r *Registry) Online() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.online
}

// Select toggles the selected address: selecting the current selection
// clears it.
func (r *Registry) Select(address string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.selected == address {
		r.selected = ""
		return
	}

	r.selected = address
}

// Selected returns the currently selected address, or empty.
func (r *Registry) Selected() string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.selected
}

// Start runs the periodic resync loop. Resync is the only path that can
// flip the registry from offline back to online.
func (r *Registry) Start(ctx context.Context, interval time.Duration) {
	r.wg.Add(1)

	go func() {
		defer r.wg.Done()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-r.done:
				return
			case <-ticker.C:
				if err := r.Load(ctx); err != nil {
					r.logger.Warn().Err(err).Msg("Resync failed")
				}
			}
		}
	}()
}

// Stop terminates the resync loop.
func (r *Registry) Stop() {
	r.closeOnce.Do(func() { close(r.done) })
	r.wg.Wait()
}

func (r *Registry) replaceList(devices []models.Device, online bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.devices = snapshot(devices)
	r.online = online
}

func (r *Registry) setOnline(online bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.online = online
}

// noteMutationFailure flips the registry offline on connectivity failures.
// Server responses (4xx/5xx) prove the directory is alive, so those keep
// the registry online.
func (r *Registry) noteMutationFailure(err error) {
	if directory.IsConnectivity(err) {
		r.setOnline(false)
	}
}

// persist write-throughs the list to cache. A cache fault does not roll
// back the in-memory state; the list stays authoritative for this session.
func (r *Registry) persist(ctx context.Context, devices []models.Device) {
	if err := r.cache.SaveDevices(ctx, devices); err != nil {
		r.logger.Error().Err(err).Msg("Failed to write device list to cache")
	}
}

func (r *Registry) notifyChange(devices []models.Device) {
	if r.onChange != nil {
		r.onChange(devices)
	}
}

func (r *Registry) nextIDLocked() int64 {
	var maxID int64

	for _, d := range r.devices {
		if d.ID > maxID {
			maxID = d.ID
		}
	}

	return maxID + 1
}

func snapshot(devices []models.Device) []models.Device {
	out := make([]models.Device, len(devices))
	copy(out, devices)

	return out
}
