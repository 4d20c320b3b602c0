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

// Package cache is the durable local fallback for the device list and the
// notification log. It backs the dashboard when the remote directory is
// unreachable, so reads must succeed even on an empty database.
package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/shoham-z/netmon/pkg/models"
)

// Store persists the device list and notification log in SQLite.
type Store struct {
	db *sql.DB
}

// Open creates or opens the cache database at path and applies migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &Store{db: db}

	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return s, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}

	return s.db.Close()
}

// LoadDevices returns the cached device list in saved order. An empty cache
// yields an empty slice, not an error.
func (s *Store) LoadDevices(ctx context.Context) ([]models.Device, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, ip FROM devices ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("load devices: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var devices []models.Device

	for rows.Next() {
		var d models.Device

		if err := rows.Scan(&d.ID, &d.Name, &d.Address); err != nil {
			return nil, fmt.Errorf("scan device: %w", err)
		}

		devices = append(devices, d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load devices: %w", err)
	}

	return devices, nil
}

// SaveDevices replaces the cached device list atomically.
func (s *Store) SaveDevices(ctx context.Context, devices []models.Device) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM devices`); err != nil {
			return fmt.Errorf("clear devices: %w", err)
		}

		for i, d := range devices {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO devices(id, name, ip, position) VALUES (?, ?, ?, ?)`,
				d.ID, d.Name, d.Address, i)
			if err != nil {
				return fmt.Errorf("insert device %d: %w", d.ID, err)
			}
		}

		return nil
	})
}

// LoadNotifications returns the notification log in saved order, which the
// sink maintains newest-first.
func (s *Store) LoadNotifications(ctx context.Context) ([]models.Notification, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, device_id, message, timestamp, color FROM notifications ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("load notifications: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var notifications []models.Notification

	for rows.Next() {
		var n models.Notification

		if err := rows.Scan(&n.ID, &n.DeviceID, &n.Message, &n.Timestamp, &n.Severity); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}

		notifications = append(notifications, n)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load notifications: %w", err)
	}

	return notifications, nil
}

// SaveNotifications replaces the persisted notification log atomically.
func (s *Store) SaveNotifications(ctx context.Context, notifications []models.Notification) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM notifications`); err != nil {
			return fmt.Errorf("clear notifications: %w", err)
		}

		for i, n := range notifications {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO notifications(id, device_id, message, timestamp, color, position) VALUES (?, ?, ?, ?, ?, ?)`,
				n.ID, n.DeviceID, n.Message, n.Timestamp, string(n.Severity), i)
			if err != nil {
				return fmt.Errorf("insert notification %s: %w", n.ID, err)
			}
		}

		return nil
	})
}

func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return fmt.Errorf("%w (rollback: %w)", err, rbErr)
		}

		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	return nil
}
