// Package broadcast fans change events out to every attached streaming client.
package broadcast

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/grovetools/core/logging"
	"github.com/sirupsen/logrus"
)

// ConnectedEvent is sent to each client as soon as it attaches.
const ConnectedEvent = "connected"

const isoMillis = "2006-01-02T15:04:05.000Z07:00"

// Client is one attached streaming connection. Send must return an error
// once the connection can no longer be written to.
type Client interface {
	Send(name string, data []byte) error
}

// Event is a named message. Data is encoded as JSON once per publish.
type Event struct {
	Name string
	Data any
}

// Broadcaster is the registry of attached clients. Delivery is best effort
// and at most once: a client whose send fails is dropped without retry.
type Broadcaster struct {
	log *logrus.Entry
	now func() time.Time

	// pubMu serializes publishing so every client sees events in the same
	// order, with its connected event first.
	pubMu sync.Mutex

	mu      sync.Mutex
	clients map[string]Client
}

// New creates an empty broadcaster.
func New() *Broadcaster {
	return &Broadcaster{
		log:     logging.NewLogger("agconsole.broadcast"),
		now:     time.Now,
		clients: make(map[string]Client),
	}
}

// Attach sends the connected event to c and registers it. A client that
// cannot receive the connected event is not registered. The returned detach
// func removes the client and is safe to call more than once.
func (b *Broadcaster) Attach(c Client) (id string, detach func(), err error) {
	data, err := json.Marshal(map[string]string{
		"timestamp": b.now().UTC().Format(isoMillis),
	})
	if err != nil {
		return "", nil, err
	}

	b.pubMu.Lock()
	defer b.pubMu.Unlock()

	if err := c.Send(ConnectedEvent, data); err != nil {
		return "", nil, err
	}

	id = uuid.NewString()
	b.mu.Lock()
	b.clients[id] = c
	count := len(b.clients)
	b.mu.Unlock()

	b.log.WithFields(logrus.Fields{"client": id, "clients": count}).Debug("Client attached")
	return id, func() { b.remove(id) }, nil
}

// Publish delivers ev to every attached client and returns how many received
// it. Failed clients are removed; the failure is not reported to the caller.
func (b *Broadcaster) Publish(ev Event) int {
	data, err := json.Marshal(ev.Data)
	if err != nil {
		b.log.WithError(err).WithField("event", ev.Name).Warn("Failed to encode event")
		return 0
	}

	b.pubMu.Lock()
	defer b.pubMu.Unlock()

	b.mu.Lock()
	targets := make(map[string]Client, len(b.clients))
	for id, c := range b.clients {
		targets[id] = c
	}
	b.mu.Unlock()

	// Sends run concurrently. A stalled client delays the next publish, not
	// the other clients' copies of this one.
	var (
		wg     sync.WaitGroup
		failMu sync.Mutex
		failed []string
	)
	for id, c := range targets {
		wg.Add(1)
		go func(id string, c Client) {
			defer wg.Done()
			if err := c.Send(ev.Name, data); err != nil {
				b.log.WithError(err).WithField("client", id).Debug("Dropping disconnected client")
				failMu.Lock()
				failed = append(failed, id)
				failMu.Unlock()
			}
		}(id, c)
	}
	wg.Wait()

	for _, id := range failed {
		b.remove(id)
	}
	return len(targets) - len(failed)
}

// Len returns the number of attached clients.
func (b *Broadcaster) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients)
}

func (b *Broadcaster) remove(id string) {
	b.mu.Lock()
	_, ok := b.clients[id]
	delete(b.clients, id)
	b.mu.Unlock()
	if ok {
		b.log.WithField("client", id).Debug("Client detached")
	}
}
