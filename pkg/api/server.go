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

// Package api provides the HTTP API server for the dashboard frontend. It
// proxies registry operations, serves the notification log, triggers
// on-demand probes and streams live notifications over WebSocket. It is the
// engine's outward surface, not a re-implementation of the remote directory
// contract.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/shoham-z/netmon/pkg/directory"
	"github.com/shoham-z/netmon/pkg/logger"
	"github.com/shoham-z/netmon/pkg/models"
	"github.com/shoham-z/netmon/pkg/registry"
)

const (
	defaultReadTimeout  = 10 * time.Second
	defaultWriteTimeout = 10 * time.Second
	defaultIdleTimeout  = 60 * time.Second

	shutdownTimeout = 5 * time.Second
)

// DeviceService is the registry surface the API consumes.
type DeviceService interface {
	Devices() []models.Device
	Add(ctx context.Context, address, name string) (models.Device, error)
	Edit(ctx context.Context, id int64, address, name string) error
	Delete(ctx context.Context, address string) error
	Select(address string)
	Selected() string
	Online() bool
}

// NotificationService serves and clears the notification log.
type NotificationService interface {
	Notifications() []models.Notification
	Clear(ctx context.Context, id string)
	ClearAll(ctx context.Context)
}

// ProbeService triggers probes outside the steady schedule.
type ProbeService interface {
	ProbeNow(ctx context.Context, address string, visible bool) bool
	ProbeAll(ctx context.Context, visible bool)
}

// ReachabilitySource reports per-device reachability for status responses.
type ReachabilitySource interface {
	IsReachable(deviceID int64) bool
}

// ConfigSource exposes the current runtime variables snapshot.
type ConfigSource interface {
	Get() models.AppConfig
}

// Server is the engine's HTTP and WebSocket surface.
type Server struct {
	devices       DeviceService
	notifications NotificationService
	probes        ProbeService
	reachability  ReachabilitySource
	config        ConfigSource
	logger        logger.Logger

	router *mux.Router
	hub    *Hub

	httpSrv *http.Server
}

func NewServer(devices DeviceService, notifications NotificationService, probes ProbeService,
	reachability ReachabilitySource, config ConfigSource, log logger.Logger) *Server {
	s := &Server{
		devices:       devices,
		notifications: notifications,
		probes:        probes,
		reachability:  reachability,
		config:        config,
		logger:        log,
		router:        mux.NewRouter(),
		hub:           NewHub(log),
	}

	s.setupRoutes()

	return s
}

// Router exposes the handler for tests and embedding.
func (s *Server) Router() http.Handler {
	return s.router
}

// Publish pushes one notification to every connected stream client.
func (s *Server) Publish(notification models.Notification) {
	s.hub.Broadcast(notification)
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/api/devices", s.getDevices).Methods("GET")
	s.router.HandleFunc("/api/devices", s.addDevice).Methods("POST")
	s.router.HandleFunc("/api/devices/{id}", s.editDevice).Methods("PUT")
	s.router.HandleFunc("/api/devices/{address}", s.deleteDevice).Methods("DELETE")
	s.router.HandleFunc("/api/devices/{address}/select", s.selectDevice).Methods("POST")
	s.router.HandleFunc("/api/notifications", s.getNotifications).Methods("GET")
	s.router.HandleFunc("/api/notifications", s.clearAllNotifications).Methods("DELETE")
	s.router.HandleFunc("/api/notifications/{id}", s.clearNotification).Methods("DELETE")
	s.router.HandleFunc("/api/probe", s.probe).Methods("POST")
	s.router.HandleFunc("/api/status", s.getStatus).Methods("GET")
	s.router.HandleFunc("/api/stream", s.handleStream).Methods("GET")
}

// Start serves the API until the listener fails or Shutdown is called.
func (s *Server) Start(addr string) error {
	s.httpSrv = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  defaultReadTimeout,
		WriteTimeout: defaultWriteTimeout,
		IdleTimeout:  defaultIdleTimeout,
	}

	s.logger.Info().Str("addr", addr).Msg("Starting API server")

	if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

// Shutdown drains in-flight requests and closes stream connections.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.Close()

	if s.httpSrv == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	return s.httpSrv.Shutdown(ctx)
}

type deviceRequest struct {
	Name    string `json:"name"`
	Address string `json:"ip"`
}

type probeRequest struct {
	Address string `json:"ip"`
	Visible bool   `json:"visible"`
}

type probeResponse struct {
	Address string `json:"ip,omitempty"`
	Success bool   `json:"success"`
}

type deviceStatus struct {
	models.Device
	Reachable bool `json:"reachable"`
	Selected  bool `json:"selected"`
}

type statusResponse struct {
	Online          bool           `json:"online"`
	Mode            models.Mode    `json:"mode"`
	MaxMissedProbes int            `json:"max_missed_probes"`
	Devices         []deviceStatus `json:"devices"`
}

func (s *Server) getDevices(w http.ResponseWriter, _ *http.Request) {
	writeJSONResponse(w, s.devices.Devices(), s.logger)
}

func (s *Server) addDevice(w http.ResponseWriter, r *http.Request) {
	var req deviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, directory.MsgBadInput, http.StatusBadRequest)
		return
	}

	device, err := s.devices.Add(r.Context(), req.Address, req.Name)
	if err != nil {
		s.writeClassifiedError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)

	if err := json.NewEncoder(w).Encode(device); err != nil {
		s.logger.Error().Err(err).Msg("Failed to encode response")
	}
}

func (s *Server) editDevice(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeError(w, directory.MsgBadInput, http.StatusBadRequest)
		return
	}

	var req deviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, directory.MsgBadInput, http.StatusBadRequest)
		return
	}

	if err := s.devices.Edit(r.Context(), id, req.Address, req.Name); err != nil {
		s.writeClassifiedError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) deleteDevice(w http.ResponseWriter, r *http.Request) {
	if err := s.devices.Delete(r.Context(), mux.Vars(r)["address"]); err != nil {
		s.writeClassifiedError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) selectDevice(w http.ResponseWriter, r *http.Request) {
	s.devices.Select(mux.Vars(r)["address"])
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) getNotifications(w http.ResponseWriter, _ *http.Request) {
	writeJSONResponse(w, s.notifications.Notifications(), s.logger)
}

func (s *Server) clearAllNotifications(w http.ResponseWriter, r *http.Request) {
	s.notifications.ClearAll(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) clearNotification(w http.ResponseWriter, r *http.Request) {
	s.notifications.Clear(r.Context(), mux.Vars(r)["id"])
	w.WriteHeader(http.StatusNoContent)
}

// probe triggers an on-demand probe. An empty address fans out to every
// registered device.
func (s *Server) probe(w http.ResponseWriter, r *http.Request) {
	var req probeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, directory.MsgBadInput, http.StatusBadRequest)
		return
	}

	if req.Address == "" {
		s.probes.ProbeAll(r.Context(), req.Visible)
		w.WriteHeader(http.StatusAccepted)

		return
	}

	success := s.probes.ProbeNow(r.Context(), req.Address, req.Visible)
	writeJSONResponse(w, probeResponse{Address: req.Address, Success: success}, s.logger)
}

func (s *Server) getStatus(w http.ResponseWriter, _ *http.Request) {
	cfg := s.config.Get()
	selected := s.devices.Selected()
	devices := s.devices.Devices()

	statuses := make([]deviceStatus, 0, len(devices))
	for _, d := range devices {
		statuses = append(statuses, deviceStatus{
			Device:    d,
			Reachable: s.reachability.IsReachable(d.ID),
			Selected:  d.Address == selected,
		})
	}

	writeJSONResponse(w, statusResponse{
		Online:          s.devices.Online(),
		Mode:            cfg.Mode,
		MaxMissedProbes: cfg.MaxMissedProbes,
		Devices:         statuses,
	}, s.logger)
}

// writeClassifiedError maps engine errors to the human-readable categories
// the frontend shows verbatim.
func (s *Server) writeClassifiedError(w http.ResponseWriter, err error) {
	status, message := classify(err)

	s.logger.Debug().Err(err).Int("status", status).Msg("Request failed")

	writeError(w, message, status)
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, models.ErrInvalidAddress):
		return http.StatusBadRequest, directory.MsgInvalidIP
	case errors.Is(err, models.ErrInvalidName):
		return http.StatusBadRequest, directory.MsgEmptyName
	case errors.Is(err, registry.ErrServerOffline):
		return http.StatusServiceUnavailable, directory.MsgConnectivity
	case errors.Is(err, registry.ErrUnknownDevice):
		return http.StatusNotFound, directory.MsgNotFound
	}

	var statusErr *directory.StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Status, directory.Classify(err)
	}

	// Transport-level failure talking to the directory.
	return http.StatusBadGateway, directory.Classify(err)
}

type errorResponse struct {
	Message string `json:"error"`
	Status  int    `json:"status"`
}

func writeJSONResponse(w http.ResponseWriter, data interface{}, log logger.Logger) {
	w.Header().Set("Content-Type", "application/json")

	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

func writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(errorResponse{Message: message, Status: statusCode}); err != nil {
		http.Error(w, "Failed to encode error response", http.StatusInternalServerError)
	}
}
