// SPDX-FileCopyrightText: Copyright 2025 Wilford Authors
// SPDX-License-Identifier: Apache-2.0

package mailer

import (
	"errors"
	"fmt"
	"net"
	"time"
)

// probeAddr is the address of example.com, run by IANA so very stable. Some
// relays (GMail among them) reject connections from IPv6 sources, so we probe
// for a local IPv4 address that can reach the internet.
const probeAddr = "93.184.215.14:80"

const probeTimeout = 3 * time.Second

// localIPv4 returns a local IPv4 address with internet connectivity.
func localIPv4() (net.IP, error) {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return nil, fmt.Errorf("listing interface addresses: %w", err)
	}

	for _, addr := range addrs {
		ipNet, ok := addr.(*net.IPNet)
		if !ok {
			continue
		}
		ip := ipNet.IP.To4()
		if ip == nil || ip.IsLoopback() || ip.IsLinkLocalUnicast() {
			continue
		}

		// The address alone does not tell us whether it can reach the
		// internet, so try an actual connection.
		dialer := net.Dialer{
			Timeout:   probeTimeout,
			LocalAddr: &net.TCPAddr{IP: ip},
		}
		conn, err := dialer.Dial("tcp4", probeAddr)
		if err != nil {
			continue
		}
		_ = conn.Close()
		return ip, nil
	}
	return nil, errors.New("no connectable local IPv4 address found")
}
