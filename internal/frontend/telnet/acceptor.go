// Package telnet accepts raw TCP clients that exchange one frame per line.
package telnet

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/scrabble/internal/config"
)

// SessionHandler processes a connected client until it disconnects or ctx ends.
type SessionHandler interface {
	HandleSession(ctx context.Context, conn *Conn) error
}

// Acceptor listens for TCP connections and dispatches each one to a
// SessionHandler. At most cfg.MaxConnections sessions run at once; clients
// beyond the cap are closed on accept.
type Acceptor struct {
	cfg     config.TelnetConfig
	handler SessionHandler
	logger  *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	listener net.Listener
	running  bool

	active  atomic.Int64
	refused atomic.Uint64
}

// NewAcceptor creates an acceptor with the given configuration.
//
// Precondition: cfg must have a valid port; handler and logger must be non-nil.
// Postcondition: Returns an Acceptor ready to be started with ListenAndServe.
func NewAcceptor(cfg config.TelnetConfig, handler SessionHandler, logger *zap.Logger) *Acceptor {
	ctx, cancel := context.WithCancel(context.Background())
	return &Acceptor{
		cfg:     cfg,
		handler: handler,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// ListenAndServe accepts connections until Stop is called.
//
// Precondition: The acceptor must not already be running.
// Postcondition: The listener is closed when this method returns.
func (a *Acceptor) ListenAndServe() error {
	start := time.Now()

	listener, err := net.Listen("tcp", a.cfg.Addr())
	if err != nil {
		return fmt.Errorf("listening on %s: %w", a.cfg.Addr(), err)
	}

	a.mu.Lock()
	a.listener = listener
	a.running = true
	a.mu.Unlock()

	a.logger.Info("telnet acceptor listening",
		zap.String("addr", listener.Addr().String()),
		zap.Int("max_connections", a.cfg.MaxConnections),
		zap.Duration("startup", time.Since(start)),
	)

	for {
		conn, err := listener.Accept()
		if err != nil {
			if a.ctx.Err() != nil {
				return nil
			}
			a.logger.Error("accepting connection", zap.Error(err))
			continue
		}
		if !a.admit() {
			a.refuse(conn)
			continue
		}

		a.wg.Add(1)
		go a.serve(conn)
	}
}

// admit reserves a session slot.
func (a *Acceptor) admit() bool {
	limit := int64(a.cfg.MaxConnections)
	for {
		n := a.active.Load()
		if limit > 0 && n >= limit {
			return false
		}
		if a.active.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

func (a *Acceptor) refuse(raw net.Conn) {
	a.refused.Add(1)
	a.logger.Warn("connection refused",
		zap.String("remote_addr", raw.RemoteAddr().String()),
		zap.Int("max_connections", a.cfg.MaxConnections),
	)
	raw.Close()
}

func (a *Acceptor) serve(raw net.Conn) {
	defer a.wg.Done()
	defer a.active.Add(-1)
	start := time.Now()

	conn := NewConn(raw, a.cfg.ReadTimeout, a.cfg.WriteTimeout)
	defer conn.Close()
	logger := a.logger.With(zap.String("remote_addr", raw.RemoteAddr().String()))
	logger.Info("client connected", zap.Int64("active", a.active.Load()))

	ctx, cancel := context.WithCancel(a.ctx)
	defer cancel()
	err := a.handler.HandleSession(ctx, conn)

	stats := conn.Stats()
	fields := []zap.Field{
		zap.Uint64("frames_in", stats.FramesIn),
		zap.Uint64("frames_out", stats.FramesOut),
		zap.Uint64("bytes_in", stats.BytesIn),
		zap.Uint64("bytes_out", stats.BytesOut),
		zap.Duration("duration", time.Since(start)),
	}
	if err != nil {
		logger.Debug("session ended", append(fields, zap.Error(err))...)
		return
	}
	logger.Info("session ended cleanly", fields...)
}

// Stop closes the listener, cancels every session and waits for them to finish.
//
// Postcondition: All connections are closed and goroutines have exited.
func (a *Acceptor) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.running {
		return
	}
	a.running = false

	a.cancel()
	if a.listener != nil {
		a.listener.Close()
	}
	a.wg.Wait()

	a.logger.Info("telnet acceptor stopped", zap.Uint64("refused", a.refused.Load()))
}

// Addr returns the actual listening address, or empty string if not yet listening.
func (a *Acceptor) Addr() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.listener != nil {
		return a.listener.Addr().String()
	}
	return ""
}

// IsRunning reports whether the acceptor is accepting connections.
func (a *Acceptor) IsRunning() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.running
}

// Active returns the number of sessions being served.
func (a *Acceptor) Active() int64 {
	return a.active.Load()
}

// Refused returns the number of connections closed because the cap was reached.
func (a *Acceptor) Refused() uint64 {
	return a.refused.Load()
}
