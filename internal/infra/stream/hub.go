// Package stream delivers chat events to clients over Server-Sent Events.
package stream

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"

	"github.com/valis-ai/valis/internal/modules/model"
)

const clientBuffer = 64

// Client is one live SSE connection identified by its handle.
type Client struct {
	Handle string
	ch     chan []byte
	done   chan struct{}
	once   sync.Once
}

func (c *Client) close() { c.once.Do(func() { close(c.done) }) }

// Hub routes events to connections by handle.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	log     *zap.Logger
}

func NewHub(log *zap.Logger) *Hub {
	return &Hub{clients: make(map[string]*Client), log: log}
}

// Register adds a connection. A handle already in use is replaced.
func (h *Hub) Register(handle string) *Client {
	c := &Client{Handle: handle, ch: make(chan []byte, clientBuffer), done: make(chan struct{})}
	h.mu.Lock()
	if old, ok := h.clients[handle]; ok {
		old.close()
	}
	h.clients[handle] = c
	h.mu.Unlock()
	return c
}

func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if cur, ok := h.clients[c.Handle]; ok && cur == c {
		delete(h.clients, c.Handle)
	}
	h.mu.Unlock()
	c.close()
}

// Deliver queues evt for each listed handle. Slow clients with a full buffer
// miss the event rather than block the sender.
func (h *Hub) Deliver(ctx context.Context, handles []string, evt model.Event) error {
	data, err := sonic.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, handle := range handles {
		c, ok := h.clients[handle]
		if !ok {
			continue
		}
		select {
		case c.ch <- data:
		default:
			h.log.Sugar().Debugw("dropping event for slow client", "handle", handle, "type", evt.Type)
		}
	}
	return nil
}

// Serve streams queued events to w until ctx ends or the client is replaced.
// hello is sent first as a "connected" event.
func (h *Hub) Serve(ctx context.Context, w http.ResponseWriter, c *Client, hello any) error {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return fmt.Errorf("streaming not supported")
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	first, err := sonic.Marshal(model.Event{Type: "connected", Data: hello})
	if err != nil {
		return fmt.Errorf("marshal hello: %w", err)
	}
	writeFrame(w, first)
	flusher.Flush()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-c.done:
			return nil
		case data := <-c.ch:
			writeFrame(w, data)
			flusher.Flush()
		}
	}
}

func writeFrame(w http.ResponseWriter, data []byte) {
	// a data line must not contain a newline
	for _, line := range strings.Split(string(data), "\n") {
		fmt.Fprintf(w, "data: %s\n", line) //nolint:errcheck
	}
	fmt.Fprintln(w) //nolint:errcheck
}
