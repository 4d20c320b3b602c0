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

// Package notify turns transition events into the persisted, user-facing
// notification log. Deduplication is structural: the liveness tracker only
// reports genuine state changes, so every accepted event becomes exactly one
// notification.
package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shoham-z/netmon/pkg/logger"
	"github.com/shoham-z/netmon/pkg/models"
)

// NotificationStore persists the notification log.
type NotificationStore interface {
	LoadNotifications(ctx context.Context) ([]models.Notification, error)
	SaveNotifications(ctx context.Context, notifications []models.Notification) error
}

// DeviceLookup resolves device identity for message rendering. The sink
// reads id, name and address by reference; it owns nothing of the device.
type DeviceLookup interface {
	Device(id int64) (models.Device, error)
}

// Sink owns the in-memory notification log, newest-first.
type Sink struct {
	store   NotificationStore
	devices DeviceLookup
	logger  logger.Logger
	now     func() time.Time

	// publish, when set, fans each accepted notification out to live
	// dashboard connections.
	publish func(notification models.Notification)

	mu            sync.RWMutex
	notifications []models.Notification
}

func NewSink(store NotificationStore, devices DeviceLookup, log logger.Logger) *Sink {
	return &Sink{
		store:   store,
		devices: devices,
		logger:  log,
		now:     time.Now,
	}
}

// SetPublisher registers the live fan-out hook.
func (s *Sink) SetPublisher(fn func(notification models.Notification)) {
	s.publish = fn
}

// Load restores the persisted log, typically once at startup.
func (s *Sink) Load(ctx context.Context) error {
	notifications, err := s.store.LoadNotifications(ctx)
	if err != nil {
		return fmt.Errorf("load notification log: %w", err)
	}

	s.mu.Lock()
	s.notifications = notifications
	s.mu.Unlock()

	return nil
}

// OnTransition converts one transition event into a notification and
// prepends it to the log. Events for devices that vanished from the
// registry are dropped.
func (s *Sink) OnTransition(ctx context.Context, event models.TransitionEvent) {
	device, err := s.devices.Device(event.DeviceID)
	if err != nil {
		s.logger.Debug().Int64("device_id", event.DeviceID).Msg("Dropping transition for unknown device")
		return
	}

	var (
		message  string
		severity models.Severity
	)

	if event.Direction == models.DirectionUp {
		message = fmt.Sprintf("%s is up. Address is %s", device.Name, device.Address)
		severity = models.SeverityGreen
	} else {
		message = fmt.Sprintf("%s is down. Address is %s", device.Name, device.Address)
		severity = models.SeverityRed
	}

	notification := models.Notification{
		ID:        uuid.NewString(),
		DeviceID:  device.ID,
		Message:   message,
		Timestamp: s.now().Format(time.RFC3339),
		Severity:  severity,
	}

	s.mu.Lock()
	s.notifications = append([]models.Notification{notification}, s.notifications...)
	log := s.snapshotLocked()
	s.mu.Unlock()

	s.persist(ctx, log)

	s.logger.Info().
		Str("notification_id", notification.ID).
		Int64("device_id", device.ID).
		Str("message", message).
		Msg("Notification raised")

	if s.publish != nil {
		s.publish(notification)
	}
}

// Notifications returns a snapshot of the log, newest-first.
func (s *Sink) Notifications() []models.Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.snapshotLocked()
}

// Clear removes a single notification by id.
func (s *Sink) Clear(ctx context.Context, id string) {
	s.mu.Lock()

	kept := s.notifications[:0]

	for _, n := range s.notifications {
		if n.ID != id {
			kept = append(kept, n)
		}
	}

	s.notifications = kept
	log := s.snapshotLocked()

	s.mu.Unlock()

	s.persist(ctx, log)
}

// ClearAll empties the log.
func (s *Sink) ClearAll(ctx context.Context) {
	s.mu.Lock()
	s.notifications = nil
	s.mu.Unlock()

	s.persist(ctx, nil)
}

// persist write-throughs the log. A cache fault is surfaced in the log
// output only; the in-memory log stays authoritative for this session.
func (s *Sink) persist(ctx context.Context, log []models.Notification) {
	if err := s.store.SaveNotifications(ctx, log); err != nil {
		s.logger.Error().Err(err).Msg("Failed to persist notification log")
	}
}

func (s *Sink) snapshotLocked() []models.Notification {
	out := make([]models.Notification, len(s.notifications))
	copy(out, s.notifications)

	return out
}
