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

package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shoham-z/netmon/pkg/directory"
	"github.com/shoham-z/netmon/pkg/logger"
	"github.com/shoham-z/netmon/pkg/models"
	"github.com/shoham-z/netmon/pkg/registry"
)

type fakeDevices struct {
	devices  []models.Device
	online   bool
	selected string

	addErr    error
	editErr   error
	deleteErr error

	added   []models.Device
	edited  []int64
	deleted []string
}

func (f *fakeDevices) Devices() []models.Device { return f.devices }

func (f *fakeDevices) Add(_ context.Context, address, name string) (models.Device, error) {
	if f.addErr != nil {
		return models.Device{}, f.addErr
	}

	device := models.Device{ID: int64(len(f.devices) + 1), Name: name, Address: address}
	f.added = append(f.added, device)

	return device, nil
}

func (f *fakeDevices) Edit(_ context.Context, id int64, _, _ string) error {
	if f.editErr != nil {
		return f.editErr
	}

	f.edited = append(f.edited, id)

	return nil
}

func (f *fakeDevices) Delete(_ context.Context, address string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}

	f.deleted = append(f.deleted, address)

	return nil
}

func (f *fakeDevices) Select(address string) { f.selected = address }
func (f *fakeDevices) Selected() string      { return f.selected }
func (f *fakeDevices) Online() bool          { return f.online }

type fakeNotifications struct {
	notifications []models.Notification
	cleared       []string
	clearedAll    bool
}

func (f *fakeNotifications) Notifications() []models.Notification { return f.notifications }

func (f *fakeNotifications) Clear(_ context.Context, id string) {
	f.cleared = append(f.cleared, id)
}

func (f *fakeNotifications) ClearAll(context.Context) { f.clearedAll = true }

type fakeProbes struct {
	probed  []string
	all     bool
	success bool
}

func (f *fakeProbes) ProbeNow(_ context.Context, address string, _ bool) bool {
	f.probed = append(f.probed, address)
	return f.success
}

func (f *fakeProbes) ProbeAll(context.Context, bool) { f.all = true }

type fakeReachability struct {
	down map[int64]bool
}

func (f *fakeReachability) IsReachable(deviceID int64) bool { return !f.down[deviceID] }

type fakeConfig struct {
	cfg models.AppConfig
}

func (f *fakeConfig) Get() models.AppConfig { return f.cfg }

type testHarness struct {
	server        *Server
	ts            *httptest.Server
	devices       *fakeDevices
	notifications *fakeNotifications
	probes        *fakeProbes
	reachability  *fakeReachability
}

func newHarness(t *testing.T) *testHarness {
	t.Helper()

	h := &testHarness{
		devices: &fakeDevices{
			online: true,
			devices: []models.Device{
				{ID: 1, Name: "core-sw", Address: "10.0.0.5"},
				{ID: 2, Name: "nas1", Address: "192.168.1.50"},
			},
		},
		notifications: &fakeNotifications{},
		probes:        &fakeProbes{success: true},
		reachability:  &fakeReachability{down: map[int64]bool{2: true}},
	}

	cfg := &fakeConfig{cfg: models.AppConfig{Mode: models.ModeSwitch, MaxMissedProbes: 3}}
	h.server = NewServer(h.devices, h.notifications, h.probes, h.reachability, cfg, logger.NewTestLogger())
	h.ts = httptest.NewServer(h.server.Router())

	t.Cleanup(h.ts.Close)

	return h
}

func (h *testHarness) do(t *testing.T, method, path, body string) *http.Response {
	t.Helper()

	req, err := http.NewRequest(method, h.ts.URL+path, strings.NewReader(body))
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)

	t.Cleanup(func() { _ = resp.Body.Close() })

	return resp
}

func TestGetDevices(t *testing.T) {
	h := newHarness(t)

	resp := h.do(t, http.MethodGet, "/api/devices", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var devices []models.Device
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&devices))
	require.Len(t, devices, 2)
	assert.Equal(t, "core-sw", devices[0].Name)
}

func TestAddDevice(t *testing.T) {
	h := newHarness(t)

	resp := h.do(t, http.MethodPost, "/api/devices", `{"name":"fw1","ip":"10.0.0.1"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var device models.Device
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&device))
	assert.Equal(t, "fw1", device.Name)
	assert.Equal(t, "10.0.0.1", device.Address)
	require.Len(t, h.devices.added, 1)
}

func TestAddDeviceValidationError(t *testing.T) {
	h := newHarness(t)
	h.devices.addErr = models.ErrInvalidAddress

	resp := h.do(t, http.MethodPost, "/api/devices", `{"name":"fw1","ip":"999.1.1.1"}`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var body errorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, directory.MsgInvalidIP, body.Message)
}

func TestAddDeviceWhileOffline(t *testing.T) {
	h := newHarness(t)
	h.devices.addErr = registry.ErrServerOffline

	resp := h.do(t, http.MethodPost, "/api/devices", `{"name":"fw1","ip":"10.0.0.1"}`)
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	var body errorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, directory.MsgConnectivity, body.Message)
}

func TestAddDeviceDirectoryConflict(t *testing.T) {
	h := newHarness(t)
	h.devices.addErr = &directory.StatusError{Status: http.StatusConflict, Message: "UNIQUE constraint failed: devices.ip"}

	resp := h.do(t, http.MethodPost, "/api/devices", `{"name":"fw1","ip":"10.0.0.5"}`)
	require.Equal(t, http.StatusConflict, resp.StatusCode)

	var body errorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, directory.MsgDuplicate, body.Message)
}

func TestAddDeviceConnectivityFailure(t *testing.T) {
	h := newHarness(t)
	h.devices.addErr = errors.New("directory unreachable: dial tcp: connection refused")

	resp := h.do(t, http.MethodPost, "/api/devices", `{"name":"fw1","ip":"10.0.0.1"}`)
	require.Equal(t, http.StatusBadGateway, resp.StatusCode)

	var body errorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, directory.MsgConnectivity, body.Message)
}

func TestEditDevice(t *testing.T) {
	h := newHarness(t)

	resp := h.do(t, http.MethodPut, "/api/devices/1", `{"name":"core-sw2","ip":"10.0.0.6"}`)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, []int64{1}, h.devices.edited)
}

func TestEditDeviceBadID(t *testing.T) {
	h := newHarness(t)

	resp := h.do(t, http.MethodPut, "/api/devices/nope", `{"name":"x","ip":"10.0.0.6"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestDeleteDevice(t *testing.T) {
	h := newHarness(t)

	resp := h.do(t, http.MethodDelete, "/api/devices/10.0.0.5", "")
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, []string{"10.0.0.5"}, h.devices.deleted)
}

func TestSelectDevice(t *testing.T) {
	h := newHarness(t)

	resp := h.do(t, http.MethodPost, "/api/devices/10.0.0.5/select", "")
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "10.0.0.5", h.devices.selected)
}

func TestNotificationEndpoints(t *testing.T) {
	h := newHarness(t)
	h.notifications.notifications = []models.Notification{
		{ID: "n1", DeviceID: 1, Message: "core-sw is down. Address is 10.0.0.5", Severity: models.SeverityRed},
	}

	resp := h.do(t, http.MethodGet, "/api/notifications", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var notifications []models.Notification
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&notifications))
	require.Len(t, notifications, 1)

	resp = h.do(t, http.MethodDelete, "/api/notifications/n1", "")
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, []string{"n1"}, h.notifications.cleared)

	resp = h.do(t, http.MethodDelete, "/api/notifications", "")
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.True(t, h.notifications.clearedAll)
}

func TestProbeSingleDevice(t *testing.T) {
	h := newHarness(t)

	resp := h.do(t, http.MethodPost, "/api/probe", `{"ip":"10.0.0.5","visible":true}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body probeResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.True(t, body.Success)
	assert.Equal(t, []string{"10.0.0.5"}, h.probes.probed)
}

func TestProbeBroadcast(t *testing.T) {
	h := newHarness(t)

	resp := h.do(t, http.MethodPost, "/api/probe", `{"visible":true}`)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.True(t, h.probes.all)
	assert.Empty(t, h.probes.probed)
}

func TestStatusReportsReachability(t *testing.T) {
	h := newHarness(t)
	h.devices.selected = "10.0.0.5"

	resp := h.do(t, http.MethodGet, "/api/status", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var status statusResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))

	assert.True(t, status.Online)
	assert.Equal(t, models.ModeSwitch, status.Mode)
	assert.Equal(t, 3, status.MaxMissedProbes)
	require.Len(t, status.Devices, 2)
	assert.True(t, status.Devices[0].Reachable)
	assert.True(t, status.Devices[0].Selected)
	assert.False(t, status.Devices[1].Reachable)
	assert.False(t, status.Devices[1].Selected)
}

func TestStreamReceivesPublishedNotifications(t *testing.T) {
	h := newHarness(t)

	wsURL := "ws" + strings.TrimPrefix(h.ts.URL, "http") + "/api/stream"

	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)

	defer func() {
		_ = conn.Close()

		if resp != nil {
			_ = resp.Body.Close()
		}
	}()

	notification := models.Notification{
		ID:       "n1",
		DeviceID: 1,
		Message:  "core-sw is down. Address is 10.0.0.5",
		Severity: models.SeverityRed,
	}

	// Dial returns on the handshake response; give the handler a moment to
	// register the client before broadcasting.
	time.Sleep(100 * time.Millisecond)

	h.server.Publish(notification)

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var msg StreamMessage
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "notification", msg.Type)
	require.NotNil(t, msg.Notification)
	assert.Equal(t, "n1", msg.Notification.ID)
	assert.Equal(t, "core-sw is down. Address is 10.0.0.5", msg.Notification.Message)
}

func TestHubDropsSlowClients(t *testing.T) {
	hub := NewHub(logger.NewTestLogger())

	client := &streamClient{send: make(chan StreamMessage, 1)}
	require.True(t, hub.register(client))

	hub.Broadcast(models.Notification{ID: "a"})
	hub.Broadcast(models.Notification{ID: "b"}) // queue full: client dropped

	hub.mu.Lock()
	defer hub.mu.Unlock()
	assert.Empty(t, hub.clients)
}

func TestHubCloseRejectsNewClients(t *testing.T) {
	hub := NewHub(logger.NewTestLogger())
	hub.Close()

	assert.False(t, hub.register(&streamClient{send: make(chan StreamMessage, 1)}))
}
