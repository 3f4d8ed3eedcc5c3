//go:build linux

package receiver

import (
	"github.com/fakegit/puffer/internal/netio"
)

// client is the per-connection state of one accepted transfer.
//
// Lifecycle: created the moment accept succeeds and the origin filter
// approves, mutated only by appending received bytes, destroyed exactly
// once after the end-of-stream materialization step. Clients are never
// pooled or reused.
type client struct {
	// id is process-unique and monotonically increasing; it is the
	// registry key and never reused within a process lifetime.
	id uint64

	// socket is exclusively owned; closed on destruction.
	socket *netio.TCPSocket

	// buffer accumulates every received byte in arrival order until the
	// peer closes its write side. The whole stream is buffered before the
	// header is parsed.
	buffer []byte
}
