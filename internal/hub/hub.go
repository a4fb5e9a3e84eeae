// Package hub manages WebSocket subscriptions and fan-out broadcasting.
// Clients subscribe to one named channel; state changes are published to
// all subscribers of that channel after the owning transaction commits.
package hub

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

// Channel names. A connection subscribes to exactly one.
const (
	ChannelPrices       = "prices"
	ChannelPositions    = "positions"
	ChannelRFQUpdates   = "rfq_updates"
	ChannelTradeUpdates = "trade_updates"
)

// ErrUnknownChannel is returned for subscription requests to channels the
// hub does not serve.
var ErrUnknownChannel = errors.New("hub: unknown channel")

var channels = map[string]bool{
	ChannelPrices:       true,
	ChannelPositions:    true,
	ChannelRFQUpdates:   true,
	ChannelTradeUpdates: true,
}

// ValidChannel reports whether name is a channel the hub serves.
func ValidChannel(name string) bool { return channels[name] }

// Envelope wraps every published payload with its channel name so clients
// multiplexing several sockets can route messages.
type Envelope struct {
	Channel string          `json:"channel"`
	Data    json.RawMessage `json:"data"`
}

// Conn is the write side of a subscriber connection. *websocket.Conn
// satisfies it; tests use stubs.
type Conn interface {
	WriteJSON(v any) error
	Close() error
}

// Hub tracks subscribers per channel and broadcasts to them. Slow or dead
// connections are dropped on write failure rather than blocking publishers.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string]map[Conn]bool
}

// New creates a hub with all channels registered and no subscribers.
func New() *Hub {
	subs := make(map[string]map[Conn]bool, len(channels))
	for name := range channels {
		subs[name] = make(map[Conn]bool)
	}
	return &Hub{subscribers: subs}
}

// Subscribe registers conn on the named channel.
func (h *Hub) Subscribe(channel string, conn Conn) error {
	if !ValidChannel(channel) {
		return fmt.Errorf("%w: %q", ErrUnknownChannel, channel)
	}
	h.mu.Lock()
	h.subscribers[channel][conn] = true
	h.mu.Unlock()
	return nil
}

// Unsubscribe removes conn from the named channel. Removing a connection
// that is not subscribed is a no-op.
func (h *Hub) Unsubscribe(channel string, conn Conn) {
	if !ValidChannel(channel) {
		return
	}
	h.mu.Lock()
	delete(h.subscribers[channel], conn)
	h.mu.Unlock()
}

// Subscribers returns the current subscriber count for a channel.
func (h *Hub) Subscribers(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers[channel])
}

// Publish sends data to every subscriber of the channel, wrapped in an
// Envelope. Connections whose write fails are closed and unsubscribed.
// Publishing to a channel with no subscribers is a no-op.
func (h *Hub) Publish(channel string, data any) {
	if !ValidChannel(channel) {
		return
	}

	payload, err := json.Marshal(data)
	if err != nil {
		return
	}
	msg := Envelope{Channel: channel, Data: payload}

	// Snapshot under the read lock, write outside it. A slow client must
	// not hold up other subscribers or the publisher.
	h.mu.RLock()
	conns := make([]Conn, 0, len(h.subscribers[channel]))
	for conn := range h.subscribers[channel] {
		conns = append(conns, conn)
	}
	h.mu.RUnlock()

	var failed []Conn
	for _, conn := range conns {
		if err := conn.WriteJSON(msg); err != nil {
			failed = append(failed, conn)
		}
	}

	if len(failed) > 0 {
		h.mu.Lock()
		for _, conn := range failed {
			if h.subscribers[channel][conn] {
				delete(h.subscribers[channel], conn)
				conn.Close()
			}
		}
		h.mu.Unlock()
	}
}
