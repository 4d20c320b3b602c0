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

// Package models defines the shared data types of the liveness engine.
package models

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const maxDeviceNameLength = 50

var (
	ErrInvalidAddress = errors.New("invalid IPv4 address")
	ErrInvalidName    = errors.New("device name must be 1-50 characters")
)

// Device is a monitored network endpoint. The registry is the sole owner;
// other components read id and name by reference only.
// The JSON field names match the remote directory's wire format.
type Device struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Address string `json:"ip"`
}

// Validate checks the name and address constraints enforced before any
// mutation reaches the remote directory.
func (d *Device) Validate() error {
	if err := ValidateName(d.Name); err != nil {
		return err
	}

	return ValidateAddress(d.Address)
}

// ValidateName requires a non-empty name of at most 50 characters.
func ValidateName(name string) error {
	if name == "" || len(name) > maxDeviceNameLength {
		return ErrInvalidName
	}

	return nil
}

// ValidateAddress requires a dotted-quad IPv4 address with each octet 0-255.
func ValidateAddress(address string) error {
	octets := strings.Split(address, ".")
	if len(octets) != 4 {
		return fmt.Errorf("%w: %q", ErrInvalidAddress, address)
	}

	for _, octet := range octets {
		if octet == "" || len(octet) > 3 {
			return fmt.Errorf("%w: %q", ErrInvalidAddress, address)
		}

		n, err := strconv.Atoi(octet)
		if err != nil || n < 0 || n > 255 {
			return fmt.Errorf("%w: %q", ErrInvalidAddress, address)
		}
	}

	return nil
}
