// Package marketdata runs the simulated price feed. One background loop
// evolves a per-instrument baseline price, persists a tick per active
// instrument on each interval, and publishes it on the prices channel.
package marketdata

import (
	"context"
	"log/slog"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/otcdesk/desk-engine/internal/hub"
	"github.com/otcdesk/desk-engine/internal/metrics"
	"github.com/otcdesk/desk-engine/internal/model"
	"github.com/otcdesk/desk-engine/internal/store"
)

const (
	maxDrift      = 0.0015 // per-tick multiplicative drift bound
	minSpreadBps  = 4.0
	maxSpreadBps  = 25.0
	priceFloor    = "0.0001"
	priceScale    = 8
	spreadScale   = 4
	volScale      = 6
	windowSize    = 20 // ticks in the rolling VWAP/volatility window
	fallbackPrice = 1000
)

var venues = []string{"coinbase", "kraken", "binance"}

// Generator owns the simulated feed's state: the baseline price and the
// rolling mid window per instrument. Start and Stop bound its lifecycle;
// nothing runs after Stop returns.
type Generator struct {
	store    store.Store
	hub      *hub.Hub
	interval time.Duration
	rng      *rand.Rand

	// baseline mid per symbol, seeded from config.
	mids map[string]decimal.Decimal
	// recent mids per instrument ID for rolling stats.
	windows map[int64][]decimal.Decimal

	cancel context.CancelFunc
	done   sync.WaitGroup
}

// New creates a generator. defaultMids seeds the baseline price per symbol;
// unknown symbols start from a fixed fallback.
func New(st store.Store, h *hub.Hub, interval time.Duration, defaultMids map[string]decimal.Decimal) *Generator {
	mids := make(map[string]decimal.Decimal, len(defaultMids))
	for sym, mid := range defaultMids {
		mids[sym] = mid
	}
	return &Generator{
		store:    st,
		hub:      h,
		interval: interval,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		mids:     mids,
		windows:  make(map[int64][]decimal.Decimal),
	}
}

// Start launches the tick loop. It runs until Stop is called or ctx is
// cancelled.
func (g *Generator) Start(ctx context.Context) {
	ctx, g.cancel = context.WithCancel(ctx)
	g.done.Add(1)
	go g.run(ctx)
	slog.Info("market data generator started", "interval", g.interval)
}

// Stop cancels the loop and waits for the in-flight iteration to finish.
func (g *Generator) Stop() {
	if g.cancel == nil {
		return
	}
	g.cancel()
	g.done.Wait()
	slog.Info("market data generator stopped")
}

func (g *Generator) run(ctx context.Context) {
	defer g.done.Done()
	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// A failed iteration must not kill the feed; log and
			// retry next interval.
			if err := g.tick(ctx); err != nil {
				slog.Warn("tick iteration failed", "err", err)
			}
			metrics.TickIterations.Inc()
		}
	}
}

// tick generates and persists one observation per active instrument.
func (g *Generator) tick(ctx context.Context) error {
	instruments, err := g.store.ListInstruments(ctx, true)
	if err != nil {
		return err
	}

	for _, ins := range instruments {
		t := g.nextTick(&ins)
		if err := g.store.InsertPriceTick(ctx, t); err != nil {
			return err
		}
		g.hub.Publish(hub.ChannelPrices, t)
	}
	return nil
}

// nextTick evolves the instrument's baseline price and derives one
// observation from it.
func (g *Generator) nextTick(ins *model.Instrument) *model.PriceTick {
	base, ok := g.mids[ins.Symbol]
	if !ok {
		base = decimal.NewFromInt(fallbackPrice)
	}

	drift := decimal.NewFromFloat(g.rng.Float64()*2*maxDrift - maxDrift)
	mid := base.Mul(decimal.NewFromInt(1).Add(drift))
	if floor := decimal.RequireFromString(priceFloor); mid.LessThan(floor) {
		mid = floor
	}
	mid = mid.Round(priceScale)
	g.mids[ins.Symbol] = mid

	spreadBps := decimal.NewFromFloat(minSpreadBps + g.rng.Float64()*(maxSpreadBps-minSpreadBps)).Round(spreadScale)
	half := spreadBps.Div(decimal.NewFromInt(20000))
	one := decimal.NewFromInt(1)

	vwap, vol := g.rollingStats(ins.ID, mid)

	return &model.PriceTick{
		InstrumentID:     ins.ID,
		InstrumentSymbol: ins.Symbol,
		Venue:            venues[g.rng.Intn(len(venues))],
		Bid:              mid.Mul(one.Sub(half)).Round(priceScale),
		Ask:              mid.Mul(one.Add(half)).Round(priceScale),
		Mid:              mid,
		SpreadBps:        spreadBps,
		RollingVWAP:      vwap,
		Volatility:       vol,
		TS:               time.Now().UTC(),
	}
}

// rollingStats appends mid to the instrument's window and returns the
// window mean (the VWAP proxy for an evenly sized synthetic flow) and the
// relative standard deviation.
func (g *Generator) rollingStats(instrumentID int64, mid decimal.Decimal) (vwap, vol decimal.Decimal) {
	w := append(g.windows[instrumentID], mid)
	if len(w) > windowSize {
		w = w[len(w)-windowSize:]
	}
	g.windows[instrumentID] = w

	sum := decimal.Zero
	for _, m := range w {
		sum = sum.Add(m)
	}
	n := decimal.NewFromInt(int64(len(w)))
	mean := sum.Div(n)

	variance := decimal.Zero
	for _, m := range w {
		d := m.Sub(mean)
		variance = variance.Add(d.Mul(d))
	}
	variance = variance.Div(n)

	vwap = mean.Round(priceScale)
	if mean.IsZero() {
		return vwap, decimal.Zero
	}
	// decimal has no square root; float64 precision is fine for a
	// display-only volatility estimate.
	stddev := decimal.NewFromFloat(math.Sqrt(variance.InexactFloat64()))
	vol = stddev.Div(mean).Round(volScale)
	return vwap, vol
}
