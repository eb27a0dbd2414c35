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

package main

import (
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/openptp/ptpcore/config"
	"github.com/openptp/ptpcore/coordinator"
	"github.com/openptp/ptpcore/hostclock"
	"github.com/openptp/ptpcore/hwclock"
	"github.com/openptp/ptpcore/observability"
	ptp "github.com/openptp/ptpcore/ptp/protocol"
	"github.com/openptp/ptpcore/transport"
)

// tickInterval is how often Tick runs; it only needs to be finer than
// the shortest configured logXXXInterval, not tied to any wire rate.
const tickInterval = 100 * time.Millisecond

// statusInterval is how often the terminal status table refreshes.
const statusInterval = 5 * time.Second

// daemon owns the sockets, the coordinator.Port, and the observability
// surfaces for one running port.
type daemon struct {
	port     *coordinator.Port
	event    *transport.Conn
	general  *transport.Conn
	router   *router
	counters *observability.Counters
	exporter *observability.Exporter

	dest net.IP
}

func newDaemon(cfg *config.Config, iface *net.Interface, dest net.IP, hw bool) (*daemon, error) {
	if dest == nil {
		dest = transport.PrimaryMulticastGroup
	}

	eventConn, err := transport.Listen(iface, transport.PrimaryMulticastGroup, ptp.PortEvent, hw)
	if err != nil {
		return nil, fmt.Errorf("opening event port: %w", err)
	}
	generalConn, err := transport.Listen(iface, transport.PrimaryMulticastGroup, ptp.PortGeneral, hw)
	if err != nil {
		eventConn.Close()
		return nil, fmt.Errorf("opening general port: %w", err)
	}

	rtr := newRouter(eventConn, generalConn, dest)
	sys := hostclock.NewSystem(rtr)
	rtr.sys = sys

	counters := &observability.Counters{}
	metricsPort := 9273
	if cfg.MetricsListenAddr != "" {
		if _, portStr, err := net.SplitHostPort(cfg.MetricsListenAddr); err == nil {
			if p, err := strconv.Atoi(portStr); err == nil && p != 0 {
				metricsPort = p
			}
		}
	}
	exporter := observability.NewExporter(counters, metricsPort)

	callbacks := hwclock.EventCallbacks{
		OnStateChange: logStateTransition,
		OnFault: func(description string) {
			log.Warningf("port fault: %s", description)
		},
	}

	port := coordinator.NewPort(cfg.DataSet(), sys, callbacks, cfg.CoordinatorConfig())

	return &daemon{
		port:     port,
		event:    eventConn,
		general:  generalConn,
		router:   rtr,
		counters: counters,
		exporter: exporter,
		dest:     dest,
	}, nil
}

// inboundMessage is one datagram handed from a recvLoop goroutine to
// the single goroutine that owns the Port, preserving the
// ProcessMessage/Tick non-reentrancy invariant: both are only ever
// called from Run's select loop, never concurrently from the socket
// readers themselves.
type inboundMessage struct {
	buf []byte
	rx  ptp.Timestamp
}

// Run starts the port and blocks, pumping ingress packets from both
// sockets and driving Tick on a fixed cadence, until interrupted.
func (d *daemon) Run() error {
	d.port.Start()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 2)
	inbound := make(chan inboundMessage, 64)
	go d.recvLoop(d.event, inbound, errCh)
	go d.recvLoop(d.general, inbound, errCh)

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	status := time.NewTicker(statusInterval)
	defer status.Stop()

	for {
		select {
		case <-sigCh:
			log.Info("shutting down")
			return nil
		case err := <-errCh:
			return err
		case msg := <-inbound:
			if err := d.port.ProcessMessage(msg.buf, msg.rx, time.Now()); err != nil {
				log.Debugf("dropping message: %v", err)
			}
		case now := <-ticker.C:
			d.port.Tick(now)
			d.syncObservability()
		case <-status.C:
			printStatus(d.port.SM.State(), d.counters.Snapshot())
		}
	}
}

// recvLoop only reads from the socket and hands datagrams off; it
// never touches the Port directly.
func (d *daemon) recvLoop(conn *transport.Conn, inbound chan<- inboundMessage, errCh chan<- error) {
	for {
		buf, rxTime, err := conn.ReadPacket()
		if err != nil {
			errCh <- fmt.Errorf("receive loop: %w", err)
			return
		}
		inbound <- inboundMessage{buf: buf, rx: rxTime}
	}
}

func (d *daemon) syncObservability() {
	locked := d.port.SM.State() == ptp.PortStateSlave
	offsetNs := d.port.Data.Current.OffsetFromMaster.Nanoseconds()
	meanPathDelayNs := d.port.Data.Current.MeanPathDelay.Nanoseconds()
	d.counters.Sync(d.port.Counters, locked, offsetNs, meanPathDelayNs)
}

func (d *daemon) Close() {
	d.event.Close()
	d.general.Close()
}
