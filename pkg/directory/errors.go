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

package directory

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// StatusError is an HTTP-shaped directory error: the server responded, with
// a status code and optionally a message body.
type StatusError struct {
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("directory returned status %d", e.Status)
	}

	return fmt.Sprintf("directory returned status %d: %s", e.Status, e.Message)
}

// Human-readable categories. Every mutation path, local validation
// included, surfaces these identically.
const (
	MsgMissingFields = "Some required information is missing. Please check that all fields are filled correctly."
	MsgInvalidIP     = "The IP address you entered is not valid. Please enter a valid IP address (e.g., 192.168.1.1)."
	MsgEmptyName     = "The name cannot be empty. Please enter a name for this device."
	MsgBadInput      = "The information you provided is not valid. Please check your input and try again."
	MsgNotFound      = "The device you are trying to modify was not found. It may have been deleted by another user."
	MsgDuplicate     = "A device with this IP address already exists. Please use a different IP address."
	MsgConflict      = "This action conflicts with existing data. The device may already exist."
	MsgServerFault   = "The server encountered an unexpected error. Please try again later."
	MsgFallback      = "An unexpected error occurred. Please try again."
	MsgConnectivity  = "Unable to connect to the server. Please check your connection and try again."
)

// Classify maps a directory error to a human-readable category string. It is
// a pure function of (status, message substring); errors without a response
// are reported as connectivity failures.
func Classify(err error) string {
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		return MsgConnectivity
	}

	switch statusErr.Status {
	case http.StatusBadRequest:
		switch {
		case strings.Contains(statusErr.Message, "Missing required fields"):
			return MsgMissingFields
		case strings.Contains(statusErr.Message, "Invalid IPv4 address"):
			return MsgInvalidIP
		case strings.Contains(statusErr.Message, "Name cannot be empty"):
			return MsgEmptyName
		default:
			return MsgBadInput
		}
	case http.StatusNotFound:
		return MsgNotFound
	case http.StatusConflict:
		if strings.Contains(statusErr.Message, "UNIQUE constraint") {
			return MsgDuplicate
		}

		return MsgConflict
	case http.StatusInternalServerError:
		return MsgServerFault
	default:
		if statusErr.Message != "" {
			return statusErr.Message
		}

		return MsgFallback
	}
}

// IsConnectivity reports whether err is a network-level failure rather than
// a server response. Connectivity failures flip the registry offline.
func IsConnectivity(err error) bool {
	var statusErr *StatusError
	return err != nil && !errors.As(err, &statusErr)
}
