package network

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/banshee-data/laptime.report/internal/monitoring"
	"github.com/banshee-data/laptime.report/internal/timeutil"
)

// PacketStatsInterface provides packet statistics management
type PacketStatsInterface interface {
	AddPacket(bytes int)
	AddDropped()
	LogStats()
}

// FrameHandler consumes one received datagram. The slice is only valid for
// the duration of the call.
type FrameHandler interface {
	HandleFrame(frame []byte) error
}

// UDPListener receives telemetry datagrams over UDP and hands them to a
// FrameHandler, optionally relaying each one to a second address.
type UDPListener struct {
	address       string
	rcvBuf        int
	logInterval   time.Duration
	connMu        sync.RWMutex // Protects conn field
	conn          UDPSocket
	stats         PacketStatsInterface
	forwarder     *PacketForwarder
	handler       FrameHandler
	socketFactory UDPSocketFactory
	clock         timeutil.Clock
}

// UDPListenerConfig contains configuration options for the UDP listener
type UDPListenerConfig struct {
	Address       string
	RcvBuf        int
	LogInterval   time.Duration
	Stats         PacketStatsInterface
	Forwarder     *PacketForwarder
	Handler       FrameHandler
	SocketFactory UDPSocketFactory // Optional: factory for creating UDP sockets (for testing)
	Clock         timeutil.Clock   // Optional: drives stats logging
}

// NewUDPListener creates a new UDP listener with the provided configuration
func NewUDPListener(config UDPListenerConfig) *UDPListener {
	var stats PacketStatsInterface
	if config.Stats != nil {
		stats = config.Stats
	} else {
		stats = &noopStats{}
	}

	logInterval := config.LogInterval
	if logInterval == 0 {
		logInterval = time.Minute
	}

	socketFactory := config.SocketFactory
	if socketFactory == nil {
		socketFactory = NewRealUDPSocketFactory()
	}

	clock := config.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}

	return &UDPListener{
		address:       config.Address,
		rcvBuf:        config.RcvBuf,
		logInterval:   logInterval,
		stats:         stats,
		forwarder:     config.Forwarder,
		handler:       config.Handler,
		socketFactory: socketFactory,
		clock:         clock,
	}
}

// noopStats is a PacketStatsInterface implementation that does nothing.
type noopStats struct{}

func (n *noopStats) AddPacket(bytes int) {}
func (n *noopStats) AddDropped()         {}
func (n *noopStats) LogStats()           {}

// Start listens for datagrams until ctx is cancelled or the socket is closed.
func (l *UDPListener) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	addr, err := net.ResolveUDPAddr("udp", l.address)
	if err != nil {
		return fmt.Errorf("failed to resolve UDP address: %w", err)
	}

	conn, err := l.socketFactory.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on UDP address: %w", err)
	}
	l.setConn(conn)
	defer conn.Close()

	if l.rcvBuf > 0 {
		if err := conn.SetReadBuffer(l.rcvBuf); err != nil {
			monitoring.Logf("Warning: Failed to set UDP receive buffer size to %d: %v", l.rcvBuf, err)
		}
	}

	monitoring.Logf("UDP listener started on %s with receive buffer %d bytes", l.address, l.rcvBuf)

	if l.forwarder != nil {
		l.forwarder.Start(ctx)
	}

	go l.startStatsLogging(ctx)

	// Dash frames are 331 bytes; leave room for longer future formats.
	buffer := make([]byte, 2048)
	var deadlineErrLogged bool

	for {
		select {
		case <-ctx.Done():
			monitoring.Logf("UDP listener stopping due to context cancellation")
			return ctx.Err()
		default:
			// Set read deadline to allow checking context cancellation
			if err := conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond)); err != nil {
				if !deadlineErrLogged {
					monitoring.Logf("failed to set read deadline: %v", err)
					deadlineErrLogged = true
				}
			}

			n, addr, err := conn.ReadFromUDP(buffer)
			if err != nil {
				if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
					continue
				}
				if ctx.Err() != nil {
					return ctx.Err()
				}
				if errors.Is(err, net.ErrClosed) {
					return nil
				}
				monitoring.Logf("UDP read error: %v", err)
				continue
			}

			if err := l.handlePacket(buffer[:n]); err != nil {
				monitoring.Logf("Error handling packet from %v: %v", addr, err)
			}
		}
	}
}

// startStatsLogging periodically logs packet statistics
func (l *UDPListener) startStatsLogging(ctx context.Context) {
	// Report shortly after startup, then on the configured interval.
	select {
	case <-ctx.Done():
		return
	case <-l.clock.After(2 * time.Second):
		l.stats.LogStats()
	}

	ticker := l.clock.NewTicker(l.logInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			l.stats.LogStats()
		}
	}
}

// handlePacket processes a single received datagram
func (l *UDPListener) handlePacket(packet []byte) error {
	l.stats.AddPacket(len(packet))

	if l.forwarder != nil {
		l.forwarder.ForwardAsync(packet)
	}

	if l.handler == nil {
		return nil
	}
	return l.handler.HandleFrame(packet)
}

func (l *UDPListener) setConn(conn UDPSocket) {
	l.connMu.Lock()
	defer l.connMu.Unlock()
	l.conn = conn
}

// LocalAddr returns the bound address once Start has opened the socket.
func (l *UDPListener) LocalAddr() net.Addr {
	l.connMu.RLock()
	defer l.connMu.RUnlock()
	if l.conn == nil {
		return nil
	}
	return l.conn.LocalAddr()
}

// Close closes the UDP listener and releases resources
func (l *UDPListener) Close() error {
	l.connMu.RLock()
	defer l.connMu.RUnlock()
	if l.conn != nil {
		return l.conn.Close()
	}
	return nil
}
