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

package models

// Severity is the display color of a notification.
type Severity string

const (
	SeverityWhite  Severity = "white"
	SeverityRed    Severity = "red"
	SeverityYellow Severity = "yellow"
	SeverityGreen  Severity = "green"
)

// Notification is one entry of the append-only, newest-first event log.
type Notification struct {
	ID        string   `json:"id"`
	DeviceID  int64    `json:"deviceId"`
	Message   string   `json:"message"`
	Timestamp string   `json:"timestamp"`
	Severity  Severity `json:"color"`
}

// Direction is a reachability transition direction.
type Direction string

const (
	DirectionUp   Direction = "UP"
	DirectionDown Direction = "DOWN"
)

// TransitionEvent is produced by the liveness tracker on a genuine state
// change and consumed exactly once by the notification sink.
type TransitionEvent struct {
	DeviceID  int64
	Direction Direction
}
