//go:build linux

// Package receiver implements the connection-multiplexing engine of the
// file intake service.
//
// A single goroutine owns everything: the listening socket, the table of
// live clients, and the epoll-backed readiness loop. Each readiness event
// dispatches to the accept handler or to the per-connection read handler;
// handlers run to completion before the next wait, so no lock guards the
// client table or the materialization sequence counter.
//
// A client's stream end (empty read) triggers finalization inline: header
// decode, temp-then-rename materialization, optional journal record and
// optional archive upload. A slow filesystem therefore stalls all
// connections; that trade-off is inherited from the design and accepted.
// No per-connection failure terminates the loop; only a failure of the
// readiness wait itself does.
package receiver

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/fakegit/puffer/internal/logger"
	"github.com/fakegit/puffer/internal/materialize"
	"github.com/fakegit/puffer/internal/netio"
	"github.com/fakegit/puffer/internal/poller"
	"github.com/fakegit/puffer/internal/protocol/intake"
	"github.com/fakegit/puffer/internal/ratelimiter"
	"github.com/fakegit/puffer/pkg/archive"
	"github.com/fakegit/puffer/pkg/journal"
)

// readChunkSize bounds a single read per readiness event. Level-triggered
// epoll re-fires while more data is pending.
const readChunkSize = 64 * 1024

// archiveTimeout bounds the inline S3 upload so one slow archive cannot
// wedge the reactor indefinitely.
const archiveTimeout = 30 * time.Second

// Config configures a Receiver.
type Config struct {
	// Port to listen on. 0 asks the kernel for a free port (tests).
	Port uint16

	// TmpDir stages temporary files; must be unique per receiver process.
	TmpDir string

	// AllowedOrigins is the accept-time allow-list (IP literals or CIDR
	// ranges). Empty means every peer is allowed.
	AllowedOrigins []string

	// AcceptRate/AcceptBurst bound connection admission per second.
	// AcceptRate 0 disables limiting.
	AcceptRate  uint
	AcceptBurst uint

	// Journal, when non-nil, records every completed materialization.
	Journal *journal.Journal

	// Archiver, when non-nil, mirrors every completed file to object
	// storage.
	Archiver *archive.Archiver
}

// Receiver accepts transfer connections and materializes their payloads.
type Receiver struct {
	cfg      Config
	filter   *OriginFilter
	limiter  *ratelimiter.Limiter
	writer   *materialize.Writer
	poll     *poller.Poller
	listener *netio.TCPSocket

	// clients keeps every live connection reachable by id for the
	// duration of its readiness registration; handlers look clients up
	// here instead of capturing pointers, so destruction is centralized.
	clients map[uint64]*client
	nextID  uint64

	// active is read by tests from other goroutines, hence atomic. All
	// writes happen on the loop goroutine.
	active atomic.Int64
}

// New validates config and builds a Receiver. The listening socket is not
// created until Start.
func New(cfg Config) (*Receiver, error) {
	filter, err := NewOriginFilter(cfg.AllowedOrigins)
	if err != nil {
		return nil, err
	}

	return &Receiver{
		cfg:     cfg,
		filter:  filter,
		limiter: ratelimiter.New(cfg.AcceptRate, cfg.AcceptBurst),
		writer:  materialize.NewWriter(cfg.TmpDir),
		clients: make(map[uint64]*client),
	}, nil
}

// Start binds the listening socket and registers it with a fresh poller.
func (r *Receiver) Start() error {
	poll, err := poller.New()
	if err != nil {
		return err
	}

	listener, err := netio.Listen(r.cfg.Port)
	if err != nil {
		poll.Close()
		return err
	}

	if err := poll.Register(listener.FD(), r.handleAccept); err != nil {
		listener.Close()
		poll.Close()
		return err
	}

	r.poll = poll
	r.listener = listener

	port, err := listener.LocalPort()
	if err == nil {
		logger.Info("Listening on port %d (tmp dir %q)", port, r.cfg.TmpDir)
	}
	return nil
}

// Port reports the bound listening port. Valid after Start.
func (r *Receiver) Port() (uint16, error) {
	if r.listener == nil {
		return 0, fmt.Errorf("receiver not started")
	}
	return r.listener.LocalPort()
}

// Run blocks in the readiness loop until the readiness primitive fails.
// The returned error is process-fatal; per-connection failures never
// surface here.
func (r *Receiver) Run() error {
	for {
		if err := r.poll.Poll(); err != nil {
			return err
		}
	}
}

// Close tears down the listening socket, every live client and the
// poller. Run returns with an error shortly after. Close must only be
// called once all in-flight transfers have drained; it does not
// synchronize with a loop that is actively dispatching.
func (r *Receiver) Close() {
	for _, c := range r.clients {
		_ = c.socket.Close()
	}
	r.clients = make(map[uint64]*client)
	r.active.Store(0)

	if r.listener != nil {
		_ = r.listener.Close()
	}
	if r.poll != nil {
		_ = r.poll.Close()
	}
}

// ActiveConnections reports the number of live clients. Safe to call from
// any goroutine.
func (r *Receiver) ActiveConnections() int {
	return int(r.active.Load())
}

// handleAccept admits exactly one pending connection per readiness event.
// Further pending connections surface on subsequent events; there is no
// drain loop.
func (r *Receiver) handleAccept() poller.Action {
	sock, err := r.listener.Accept()
	if err == netio.ErrWouldBlock {
		return poller.Continue
	}
	if err != nil {
		logger.Error("Accept failed: %v", err)
		return poller.Continue
	}

	peer := sock.PeerIP()

	if !r.limiter.Allow() {
		logger.Warn("Rejected connection from %s: accept rate exceeded", peer)
		_ = sock.Close()
		return poller.Continue
	}

	if !r.filter.Allow(peer) {
		logger.Info("Rejected connection from %s: origin not allowed", peer)
		_ = sock.Close()
		return poller.Continue
	}

	id := r.nextID
	r.nextID++

	c := &client{id: id, socket: sock}
	r.clients[id] = c

	// The callback carries only the id; it re-resolves the client through
	// the table on every event, so a destroyed client can never be
	// reached through a stale capture.
	if err := r.poll.Register(sock.FD(), func() poller.Action {
		return r.handleReadable(id)
	}); err != nil {
		logger.Error("Failed to register connection %d: %v", id, err)
		delete(r.clients, id)
		_ = sock.Close()
		return poller.Continue
	}

	r.active.Add(1)
	logger.Info("Accepted connection %d from %s", id, peer)
	return poller.Continue
}

// handleReadable drives one connection through Receiving, Finalizing and
// Closed.
func (r *Receiver) handleReadable(id uint64) poller.Action {
	c, ok := r.clients[id]
	if !ok {
		// Stale event for an already destroyed connection.
		return poller.Cancel
	}

	chunk := make([]byte, readChunkSize)
	n, err := c.socket.Read(chunk)
	if err == netio.ErrWouldBlock {
		return poller.Continue
	}
	if err != nil {
		// Abnormal termination (reset, broken pipe). The stream is
		// incomplete, so nothing is materialized; the client must
		// reconnect and resend.
		logger.Error("Connection %d read failed: %v", id, err)
		r.destroyClient(c)
		return poller.Cancel
	}

	if n > 0 {
		c.buffer = append(c.buffer, chunk[:n]...)
		return poller.Continue
	}

	// Empty read: orderly end of stream, the sole finalization trigger.
	r.finalize(c)
	r.destroyClient(c)
	return poller.Cancel
}

// finalize runs the Finalizing step. Every error is contained here:
// logged, never propagated, never affecting another connection.
func (r *Receiver) finalize(c *client) {
	if len(c.buffer) == 0 {
		logger.Warn("No data received from connection %d", c.id)
		return
	}

	header, headerLen, err := intake.DecodeHeader(c.buffer)
	if err != nil {
		logger.Error("Connection %d: %v", c.id, err)
		return
	}

	payload := c.buffer[headerLen:]
	if err := r.writer.Materialize(header.DstPath, payload); err != nil {
		if errors.Is(err, materialize.ErrEmptyPayload) {
			logger.Warn("Connection %d: empty transfer for %q, no file written", c.id, header.DstPath)
		} else {
			logger.Error("Connection %d: %v", c.id, err)
		}
		return
	}

	logger.Info("Received %d bytes on connection %d and moved to %s", len(payload), c.id, header.DstPath)

	if r.cfg.Journal != nil {
		err := r.cfg.Journal.Append(journal.Entry{
			ConnID:     c.id,
			DstPath:    header.DstPath,
			Bytes:      int64(len(payload)),
			ReceivedAt: time.Now(),
		})
		if err != nil {
			logger.Error("Connection %d: %v", c.id, err)
		}
	}

	if r.cfg.Archiver != nil {
		ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
		if err := r.cfg.Archiver.Store(ctx, header.DstPath, payload); err != nil {
			logger.Error("Connection %d: %v", c.id, err)
		}
		cancel()
	}
}

// destroyClient cancels the readiness registration, closes the socket and
// removes the registry entry. After this no event for the connection can
// dispatch.
func (r *Receiver) destroyClient(c *client) {
	r.poll.Unregister(c.socket.FD())
	_ = c.socket.Close()
	delete(r.clients, c.id)
	r.active.Add(-1)
	logger.Debug("Closed connection %d", c.id)
}
