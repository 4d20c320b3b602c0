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

// Package probe checks device reachability with ICMP echo requests. A probe
// never errors: every transport failure is an unreachable result.
package probe

import (
	"context"
	"net"
	"os"
	"time"

	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"

	"github.com/shoham-z/netmon/pkg/logger"
)

const (
	defaultTimeout = 1 * time.Second
	maxReplySize   = 1500
	identifierMod  = 65536

	protocolICMP = 1
)

// Prober reports whether a device address answered a reachability check.
type Prober interface {
	Probe(ctx context.Context, address string) bool
}

// ProberFunc adapts a function to the Prober interface.
type ProberFunc func(ctx context.Context, address string) bool

func (f ProberFunc) Probe(ctx context.Context, address string) bool {
	return f(ctx, address)
}

// ICMPProber sends one echo request per probe. It prefers a raw ICMP socket
// and falls back to an unprivileged udp4 datagram socket when raw sockets
// are denied.
type ICMPProber struct {
	timeout    time.Duration
	identifier int
	logger     logger.Logger
}

var _ Prober = (*ICMPProber)(nil)

func NewICMPProber(timeout time.Duration, log logger.Logger) *ICMPProber {
	if timeout == 0 {
		timeout = defaultTimeout
	}

	return &ICMPProber{
		timeout:    timeout,
		identifier: int(time.Now().UnixNano() % identifierMod),
		logger:     log,
	}
}

// Probe sends an echo request and waits for the matching reply.
func (p *ICMPProber) Probe(ctx context.Context, address string) bool {
	ip := net.ParseIP(address)
	if ip == nil || ip.To4() == nil {
		return false
	}

	conn, privileged, err := listen()
	if err != nil {
		p.logger.Warn().Err(err).Msg("Failed to open ICMP socket")
		return false
	}
	defer func() { _ = conn.Close() }()

	msg := icmp.Message{
		Type: ipv4.ICMPTypeEcho,
		Body: &icmp.Echo{
			ID:   p.identifier,
			Seq:  1,
			Data: []byte("netmon"),
		},
	}

	data, err := msg.Marshal(nil)
	if err != nil {
		return false
	}

	var dst net.Addr = &net.IPAddr{IP: ip}
	if !privileged {
		dst = &net.UDPAddr{IP: ip}
	}

	if _, err := conn.WriteTo(data, dst); err != nil {
		return false
	}

	deadline := time.Now().Add(p.timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}

	if err := conn.SetReadDeadline(deadline); err != nil {
		return false
	}

	reply := make([]byte, maxReplySize)

	for {
		n, peer, err := conn.ReadFrom(reply)
		if err != nil {
			return false
		}

		if !peerMatches(peer, ip, privileged) {
			continue
		}

		parsed, err := icmp.ParseMessage(protocolICMP, reply[:n])
		if err != nil {
			continue
		}

		if parsed.Type != ipv4.ICMPTypeEchoReply {
			continue
		}

		if echo, ok := parsed.Body.(*icmp.Echo); ok {
			// Unprivileged sockets rewrite the identifier, so only match
			// it on raw sockets.
			if privileged && echo.ID != p.identifier {
				continue
			}

			return true
		}
	}
}

func listen() (conn *icmp.PacketConn, privileged bool, err error) {
	conn, err = icmp.ListenPacket("ip4:icmp", "0.0.0.0")
	if err == nil {
		return conn, true, nil
	}

	if !os.IsPermission(err) {
		return nil, false, err
	}

	conn, err = icmp.ListenPacket("udp4", "0.0.0.0")
	if err != nil {
		return nil, false, err
	}

	return conn, false, nil
}

func peerMatches(peer net.Addr, ip net.IP, privileged bool) bool {
	switch addr := peer.(type) {
	case *net.IPAddr:
		return addr.IP.Equal(ip)
	case *net.UDPAddr:
		return addr.IP.Equal(ip)
	default:
		return !privileged
	}
}
