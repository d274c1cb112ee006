// Package syslog implements the UDP/TCP syslog listener source from C6:
// one process-wide server per (protocol, port), parsing each received line
// through C1 and handing it to the buffer.
package syslog

import (
	"bufio"
	"context"
	"net"
	"strconv"

	"golang.org/x/time/rate"

	"github.com/r3elabs/logwatch/infrastructure/logging"
	"github.com/r3elabs/logwatch/ingest/parsers"
	"github.com/r3elabs/logwatch/recordmodel"
)

// Sink receives parsed records for buffering (C2).
type Sink interface {
	Add(ctx context.Context, record *recordmodel.LogRecord)
}

// SourceConfig describes one listener: a protocol/port pair and the source
// tag stamped on records it produces. MaxLinesPerSecond caps the accepted
// line rate, protecting the shared buffer from one misbehaving sender; 0
// disables the limiter.
type SourceConfig struct {
	SourceID          string
	Protocol          string // "udp" or "tcp"
	Port              int
	MaxLinesPerSecond float64
}

const udpReceiveBufferSize = 4096

// Listener runs UDP and/or TCP syslog servers for one configured source.
type Listener struct {
	cfg     SourceConfig
	sink    Sink
	chain   *parsers.Chain
	logger  *logging.Logger
	limiter *rate.Limiter

	udpConn net.PacketConn
	tcpLis  net.Listener
	stopCh  chan struct{}
}

// New creates a Listener. Call Start to bind and begin serving.
func New(cfg SourceConfig, sink Sink, logger *logging.Logger) *Listener {
	l := &Listener{cfg: cfg, sink: sink, chain: parsers.DefaultChain(), logger: logger, stopCh: make(chan struct{})}
	if cfg.MaxLinesPerSecond > 0 {
		l.limiter = rate.NewLimiter(rate.Limit(cfg.MaxLinesPerSecond), int(cfg.MaxLinesPerSecond))
	}
	return l
}

// Start binds the configured protocol/port and begins serving. Listeners
// stop gracefully when ctx is canceled or Stop is called (§4.6).
func (l *Listener) Start(ctx context.Context) error {
	addr := portAddr(l.cfg.Port)
	switch l.cfg.Protocol {
	case "udp":
		conn, err := net.ListenPacket("udp", addr)
		if err != nil {
			return err
		}
		l.udpConn = conn
		go l.serveUDP(ctx)
	default: // "tcp"
		lis, err := net.Listen("tcp", addr)
		if err != nil {
			return err
		}
		l.tcpLis = lis
		go l.serveTCP(ctx)
	}
	go func() {
		<-ctx.Done()
		l.Stop()
	}()
	return nil
}

func portAddr(port int) string {
	if port <= 0 {
		port = 514
	}
	return ":" + strconv.Itoa(port)
}

func (l *Listener) serveUDP(ctx context.Context) {
	buf := make([]byte, udpReceiveBufferSize)
	for {
		select {
		case <-l.stopCh:
			return
		default:
		}
		n, _, err := l.udpConn.ReadFrom(buf)
		if err != nil {
			return
		}
		l.handleLine(ctx, string(buf[:n]))
	}
}

func (l *Listener) serveTCP(ctx context.Context) {
	for {
		conn, err := l.tcpLis.Accept()
		if err != nil {
			return
		}
		go l.handleTCPConn(ctx, conn)
	}
}

func (l *Listener) handleTCPConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		select {
		case <-l.stopCh:
			return
		default:
		}
		l.handleLine(ctx, scanner.Text())
	}
}

func (l *Listener) handleLine(ctx context.Context, line string) {
	if line == "" {
		return
	}
	if l.limiter != nil && !l.limiter.Allow() {
		return
	}
	rec := l.chain.Parse(line, l.cfg.SourceID)
	if l.sink != nil {
		l.sink.Add(ctx, rec)
	}
}

// Stop closes the listener's sockets.
func (l *Listener) Stop() {
	select {
	case <-l.stopCh:
		return
	default:
		close(l.stopCh)
	}
	if l.udpConn != nil {
		l.udpConn.Close()
	}
	if l.tcpLis != nil {
		l.tcpLis.Close()
	}
}
