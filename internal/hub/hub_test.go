package hub

import (
	"encoding/json"
	"errors"
	"testing"
)

// stubConn records written messages and can be made to fail.
type stubConn struct {
	messages []Envelope
	failWith error
	closed   bool
}

func (c *stubConn) WriteJSON(v any) error {
	if c.failWith != nil {
		return c.failWith
	}
	c.messages = append(c.messages, v.(Envelope))
	return nil
}

func (c *stubConn) Close() error {
	c.closed = true
	return nil
}

func TestSubscribeUnknownChannel(t *testing.T) {
	h := New()
	if err := h.Subscribe("orders", &stubConn{}); !errors.Is(err, ErrUnknownChannel) {
		t.Errorf("expected ErrUnknownChannel, got %v", err)
	}
}

func TestPublishDeliversEnvelope(t *testing.T) {
	h := New()
	conn := &stubConn{}
	if err := h.Subscribe(ChannelPrices, conn); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	h.Publish(ChannelPrices, map[string]string{"symbol": "BTC-USD"})

	if len(conn.messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(conn.messages))
	}
	msg := conn.messages[0]
	if msg.Channel != ChannelPrices {
		t.Errorf("channel = %q, want %q", msg.Channel, ChannelPrices)
	}
	var payload map[string]string
	if err := json.Unmarshal(msg.Data, &payload); err != nil {
		t.Fatalf("unmarshal data: %v", err)
	}
	if payload["symbol"] != "BTC-USD" {
		t.Errorf("payload = %v", payload)
	}
}

func TestPublishOnlyReachesOwnChannel(t *testing.T) {
	h := New()
	prices := &stubConn{}
	positions := &stubConn{}
	h.Subscribe(ChannelPrices, prices)
	h.Subscribe(ChannelPositions, positions)

	h.Publish(ChannelPrices, "tick")

	if len(prices.messages) != 1 {
		t.Errorf("prices subscriber got %d messages, want 1", len(prices.messages))
	}
	if len(positions.messages) != 0 {
		t.Errorf("positions subscriber got %d messages, want 0", len(positions.messages))
	}
}

func TestPublishPrunesFailedConnections(t *testing.T) {
	h := New()
	healthy := &stubConn{}
	broken := &stubConn{failWith: errors.New("write: broken pipe")}
	h.Subscribe(ChannelTradeUpdates, healthy)
	h.Subscribe(ChannelTradeUpdates, broken)

	h.Publish(ChannelTradeUpdates, "trade")

	if !broken.closed {
		t.Error("broken connection should be closed")
	}
	if got := h.Subscribers(ChannelTradeUpdates); got != 1 {
		t.Errorf("subscribers = %d, want 1", got)
	}

	// The healthy connection keeps receiving.
	h.Publish(ChannelTradeUpdates, "trade")
	if len(healthy.messages) != 2 {
		t.Errorf("healthy got %d messages, want 2", len(healthy.messages))
	}
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	h := New()
	conn := &stubConn{}
	h.Subscribe(ChannelRFQUpdates, conn)

	h.Unsubscribe(ChannelRFQUpdates, conn)
	h.Unsubscribe(ChannelRFQUpdates, conn)
	h.Unsubscribe("orders", conn)

	if got := h.Subscribers(ChannelRFQUpdates); got != 0 {
		t.Errorf("subscribers = %d, want 0", got)
	}

	h.Publish(ChannelRFQUpdates, "rfq")
	if len(conn.messages) != 0 {
		t.Errorf("unsubscribed conn got %d messages", len(conn.messages))
	}
}

func TestPublishNoSubscribers(t *testing.T) {
	h := New()
	// Must not panic or block.
	h.Publish(ChannelPositions, "snapshot")
	h.Publish("orders", "ignored")
}
