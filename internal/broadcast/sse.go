package broadcast

import (
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// ErrClientClosed is returned by writes after the client was closed.
var ErrClientClosed = errors.New("client closed")

// DefaultWriteTimeout bounds a single write to a slow client.
const DefaultWriteTimeout = 10 * time.Second

// SSEClient writes Server-Sent Events to an HTTP response. It must be closed
// before the handler that owns the response returns; writes after that fail
// instead of touching the recycled ResponseWriter.
type SSEClient struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	rc      *http.ResponseController
	timeout time.Duration
	closed  bool
}

// NewSSEClient wraps w. A zero timeout selects DefaultWriteTimeout.
func NewSSEClient(w http.ResponseWriter, timeout time.Duration) *SSEClient {
	if timeout <= 0 {
		timeout = DefaultWriteTimeout
	}
	return &SSEClient{w: w, rc: http.NewResponseController(w), timeout: timeout}
}

// Open writes the event-stream response headers.
func (c *SSEClient) Open() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClientClosed
	}

	h := c.w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	c.w.WriteHeader(http.StatusOK)
	return c.flush()
}

// Send writes one named event.
func (c *SSEClient) Send(name string, data []byte) error {
	return c.write(fmt.Sprintf("event: %s\ndata: %s\n\n", name, data))
}

// Ping writes a comment line, which clients ignore, to detect dead peers.
func (c *SSEClient) Ping() error {
	return c.write(": ping\n\n")
}

// Close marks the client closed. It does not close the connection.
func (c *SSEClient) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

func (c *SSEClient) write(msg string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClientClosed
	}

	// Not every ResponseWriter supports deadlines.
	_ = c.rc.SetWriteDeadline(time.Now().Add(c.timeout))
	if _, err := c.w.Write([]byte(msg)); err != nil {
		c.closed = true
		return err
	}
	if err := c.flush(); err != nil {
		c.closed = true
		return err
	}
	return nil
}

func (c *SSEClient) flush() error {
	if err := c.rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
		return err
	}
	return nil
}
