package marketdata

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/otcdesk/desk-engine/internal/hub"
	"github.com/otcdesk/desk-engine/internal/model"
	"github.com/otcdesk/desk-engine/internal/store"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newTestGenerator(st store.Store, h *hub.Hub) *Generator {
	g := New(st, h, 10*time.Millisecond, map[string]decimal.Decimal{
		"BTC-USD": d("52000"),
	})
	g.rng = rand.New(rand.NewSource(1))
	return g
}

func btc(t *testing.T, st store.Store) *model.Instrument {
	t.Helper()
	ins := &model.Instrument{Symbol: "BTC-USD", BaseAsset: "BTC", QuoteAsset: "USD", TickSize: d("0.01"), IsActive: true}
	if err := st.CreateInstrument(context.Background(), ins); err != nil {
		t.Fatalf("create instrument: %v", err)
	}
	return ins
}

func TestNextTickBounds(t *testing.T) {
	st := store.NewMemoryStore()
	g := newTestGenerator(st, hub.New())
	ins := btc(t, st)

	prev := d("52000")
	for i := 0; i < 200; i++ {
		tick := g.nextTick(ins)

		if !tick.Bid.LessThan(tick.Mid) || !tick.Mid.LessThan(tick.Ask) {
			t.Fatalf("bid/mid/ask out of order: %s / %s / %s", tick.Bid, tick.Mid, tick.Ask)
		}
		if tick.SpreadBps.LessThan(d("4")) || tick.SpreadBps.GreaterThan(d("25")) {
			t.Fatalf("spread out of range: %s", tick.SpreadBps)
		}
		if !tick.Mid.IsPositive() {
			t.Fatalf("mid not positive: %s", tick.Mid)
		}

		// Per-tick drift is bounded at ±0.15%.
		ratio := tick.Mid.Div(prev).Sub(d("1")).Abs()
		if ratio.GreaterThan(d("0.0016")) {
			t.Fatalf("drift too large: %s", ratio)
		}
		prev = tick.Mid

		if tick.Venue != "coinbase" && tick.Venue != "kraken" && tick.Venue != "binance" {
			t.Fatalf("unexpected venue %q", tick.Venue)
		}
	}
}

func TestNextTickUnknownSymbolFallsBack(t *testing.T) {
	st := store.NewMemoryStore()
	g := newTestGenerator(st, hub.New())
	ins := &model.Instrument{ID: 99, Symbol: "DOGE-USD"}

	tick := g.nextTick(ins)
	ratio := tick.Mid.Div(d("1000")).Sub(d("1")).Abs()
	if ratio.GreaterThan(d("0.0016")) {
		t.Errorf("expected mid near fallback 1000, got %s", tick.Mid)
	}
}

func TestRollingStats(t *testing.T) {
	g := newTestGenerator(store.NewMemoryStore(), hub.New())

	// A constant price has itself as VWAP and zero volatility.
	var vwap, vol decimal.Decimal
	for i := 0; i < 30; i++ {
		vwap, vol = g.rollingStats(1, d("100"))
	}
	if !vwap.Equal(d("100")) {
		t.Errorf("vwap = %s, want 100", vwap)
	}
	if !vol.IsZero() {
		t.Errorf("vol = %s, want 0", vol)
	}
	if len(g.windows[1]) != windowSize {
		t.Errorf("window size = %d, want %d", len(g.windows[1]), windowSize)
	}

	// A varying price has positive volatility and a VWAP between the
	// extremes.
	g.rollingStats(2, d("100"))
	vwap, vol = g.rollingStats(2, d("110"))
	if !vwap.Equal(d("105")) {
		t.Errorf("vwap = %s, want 105", vwap)
	}
	if !vol.IsPositive() {
		t.Errorf("vol = %s, want > 0", vol)
	}
}

func TestTickPersistsAndBroadcasts(t *testing.T) {
	st := store.NewMemoryStore()
	h := hub.New()
	g := newTestGenerator(st, h)
	ins := btc(t, st)

	conn := &recordingConn{}
	if err := h.Subscribe(hub.ChannelPrices, conn); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	if err := g.tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}

	latest, err := st.LatestPriceTick(context.Background(), ins.ID)
	if err != nil {
		t.Fatalf("latest tick: %v", err)
	}
	if latest.InstrumentSymbol != "BTC-USD" {
		t.Errorf("symbol = %q", latest.InstrumentSymbol)
	}
	if conn.count != 1 {
		t.Errorf("broadcasts = %d, want 1", conn.count)
	}
}

func TestStartStopTerminates(t *testing.T) {
	st := store.NewMemoryStore()
	g := newTestGenerator(st, hub.New())
	btc(t, st)

	g.Start(context.Background())
	time.Sleep(50 * time.Millisecond)

	done := make(chan struct{})
	go func() {
		g.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}

	ticks, err := st.LatestPriceTicks(context.Background())
	if err != nil {
		t.Fatalf("latest ticks: %v", err)
	}
	if len(ticks) == 0 {
		t.Error("expected at least one persisted tick")
	}
}

type recordingConn struct{ count int }

func (c *recordingConn) WriteJSON(any) error { c.count++; return nil }
func (c *recordingConn) Close() error        { return nil }
