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

// Package directory implements the REST client for the remote device
// directory. The directory may be unreachable at any time; callers decide
// how to degrade.
package directory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shoham-z/netmon/pkg/logger"
	"github.com/shoham-z/netmon/pkg/models"
)

const (
	defaultRequestTimeout = 10 * time.Second

	listPath   = "/api/getAll"
	createPath = "/api/add"
	updatePath = "/api/edit"
	deletePath = "/api/delete"
)

// Client talks to the remote directory. The base URL is resolved per call
// so a vars refresh pointing at a new server takes effect immediately.
type Client struct {
	baseURL    func() string
	httpClient *http.Client
	logger     logger.Logger
}

// NewClient creates a directory client. baseURL is invoked on every request.
func NewClient(baseURL func() string, log logger.Logger) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: defaultRequestTimeout},
		logger:     log,
	}
}

// List fetches every device record.
func (c *Client) List(ctx context.Context) ([]models.Device, error) {
	var devices []models.Device

	if err := c.do(ctx, http.MethodGet, listPath, nil, &devices); err != nil {
		return nil, err
	}

	return devices, nil
}

// Create registers a new device record.
func (c *Client) Create(ctx context.Context, address, name string) error {
	body := map[string]string{"ip": address, "name": name}

	return c.do(ctx, http.MethodPost, createPath, body, nil)
}

// Update replaces the address and name of an existing record.
func (c *Client) Update(ctx context.Context, id int64, address, name string) error {
	body := map[string]interface{}{"id": id, "ip": address, "name": name}

	return c.do(ctx, http.MethodPut, updatePath, body, nil)
}

// Delete removes the record matching the address.
func (c *Client) Delete(ctx context.Context, address string) error {
	body := map[string]string{"ip": address}

	return c.do(ctx, http.MethodDelete, deletePath, body, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader

	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}

		reader = bytes.NewReader(data)
	}

	url := c.baseURL() + path

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Network-level failure: no response, no status. The registry
		// treats this as the directory being offline.
		return fmt.Errorf("directory unreachable: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return c.statusError(resp)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}

func (c *Client) statusError(resp *http.Response) error {
	var payload struct {
		Error string `json:"error"`
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err == nil {
		_ = json.Unmarshal(data, &payload)
	}

	c.logger.Debug().
		Int("status", resp.StatusCode).
		Str("message", payload.Error).
		Msg("Directory request rejected")

	return &StatusError{Status: resp.StatusCode, Message: payload.Error}
}
