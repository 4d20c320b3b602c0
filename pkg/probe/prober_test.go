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

package probe

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/shoham-z/netmon/pkg/logger"
)

func TestProbeRejectsNonIPv4Addresses(t *testing.T) {
	p := NewICMPProber(100*time.Millisecond, logger.NewTestLogger())

	assert.False(t, p.Probe(context.Background(), "not-an-ip"))
	assert.False(t, p.Probe(context.Background(), ""))
	assert.False(t, p.Probe(context.Background(), "2001:db8::1"), "IPv6 targets are out of scope")
}

func TestProberFunc(t *testing.T) {
	var got string

	p := ProberFunc(func(_ context.Context, address string) bool {
		got = address
		return true
	})

	assert.True(t, p.Probe(context.Background(), "10.0.0.5"))
	assert.Equal(t, "10.0.0.5", got)
}
