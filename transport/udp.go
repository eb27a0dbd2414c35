/*
Copyright (c) ptpcore authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package transport is a host-side UDP binding for the event (319)
// and general (320) PTP ports, handing raw bytes to a coordinator.Port
// and feeding back transmit timestamps through a hostclock adapter's
// RecordTxTimestamp. It is not part of the Hardware Access Contract
// itself (hwclock.Interface is transport-agnostic); it is one way to
// satisfy it over plain UDP multicast, grounded on
// ptp/sptp/client/connection.go's socket setup.
package transport

import (
	"fmt"
	"net"
	"time"

	"golang.org/x/sys/unix"

	"github.com/openptp/ptpcore/timestamp"

	ptp "github.com/openptp/ptpcore/ptp/protocol"
)

// PrimaryMulticastGroup is the IEEE 1588 default PTP-primary multicast
// address (224.0.1.129, Annex E.3).
var PrimaryMulticastGroup = net.ParseIP("224.0.1.129")

// Conn is a single UDP socket bound to one of the two well-known PTP
// ports, with timestamping enabled on send and receive.
type Conn struct {
	fd   int
	port int
}

// Listen opens and binds a UDP socket on port, joins group on iface,
// and enables hardware timestamping if hw is true and the interface
// supports it, falling back to software timestamping otherwise.
func Listen(iface *net.Interface, group net.IP, port int, hw bool) (*Conn, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_DGRAM, unix.IPPROTO_UDP)
	if err != nil {
		return nil, fmt.Errorf("creating socket: %w", err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEPORT, 1); err != nil {
		return nil, fmt.Errorf("setting SO_REUSEPORT: %w", err)
	}
	if err := unix.Bind(fd, timestamp.IPToSockaddr(net.IPv4zero, port)); err != nil {
		return nil, fmt.Errorf("binding port %d: %w", port, err)
	}
	mreq := &unix.IPMreqn{}
	if iface != nil {
		mreq.Ifindex = int32(iface.Index)
	}
	copy(mreq.Multiaddr[:], group.To4())
	if err := unix.SetsockoptIPMreqn(fd, unix.IPPROTO_IP, unix.IP_ADD_MEMBERSHIP, mreq); err != nil {
		return nil, fmt.Errorf("joining multicast group %s on port %d: %w", group, port, err)
	}

	if hw {
		if err := timestamp.EnableHWTimestamps(fd, iface); err == nil {
			return &Conn{fd: fd, port: port}, nil
		}
	}
	if err := timestamp.EnableSWTimestamps(fd); err != nil {
		return nil, fmt.Errorf("enabling software timestamps on port %d: %w", port, err)
	}
	return &Conn{fd: fd, port: port}, nil
}

// SendTo transmits b to addr and returns its transmit timestamp, read
// back from the socket's error queue.
func (c *Conn) SendTo(b []byte, addr net.IP) (ptp.Timestamp, error) {
	if err := unix.Sendto(c.fd, b, 0, timestamp.IPToSockaddr(addr, c.port)); err != nil {
		return ptp.Timestamp{}, fmt.Errorf("sendto port %d: %w", c.port, err)
	}
	txTime, _, err := timestamp.ReadTXtimestamp(c.fd)
	if err != nil {
		return ptp.Timestamp{}, fmt.Errorf("reading tx timestamp on port %d: %w", c.port, err)
	}
	return toPTPTimestamp(txTime), nil
}

// ReadPacket blocks for the next datagram on the socket, returning its
// payload and receive timestamp.
func (c *Conn) ReadPacket() ([]byte, ptp.Timestamp, error) {
	buf, _, rxTime, err := timestamp.ReadPacketWithRXTimestamp(c.fd)
	if err != nil {
		return nil, ptp.Timestamp{}, fmt.Errorf("reading packet on port %d: %w", c.port, err)
	}
	return buf, toPTPTimestamp(rxTime), nil
}

// Close releases the underlying socket.
func (c *Conn) Close() error {
	return unix.Close(c.fd)
}

func toPTPTimestamp(t time.Time) ptp.Timestamp {
	return ptp.Timestamp{
		Seconds:     ptp.NewPTPSeconds(t),
		Nanoseconds: uint32(t.Nanosecond()),
	}
}
