package broker

import (
	"errors"
	"testing"
	"time"

	"backtestCore/internal/domain"
	"backtestCore/internal/ports"
	"backtestCore/internal/risk"

	"github.com/moznion/go-optional"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const symbol = "ETHUSDT"

var start = time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

func newBroker(t *testing.T, mutate func(c *Config)) *Broker {
	t.Helper()
	cfg := Config{InitialCash: 1_000_000, MaxCarryBars: 2}
	if mutate != nil {
		mutate(&cfg)
	}
	b, err := New(cfg)
	require.NoError(t, err)
	return b
}

func newGate(t *testing.T) *risk.Engine {
	t.Helper()
	cfg := risk.DefaultConfig()
	cfg.AllowShort = true
	cfg.MaxConcurrentPositions = 10
	cfg.FeeReserveBps = 0
	e, err := risk.NewEngine(cfg)
	require.NoError(t, err)
	return e
}

// approve passes order through a permissive risk engine.
func approve(t *testing.T, gate *risk.Engine, order domain.Order) risk.Decision {
	t.Helper()
	account := domain.AccountState{Time: order.Time, Cash: 100_000_000, Equity: 100_000_000}
	d := gate.Evaluate(order, account, nil)
	require.True(t, d.Allows(), "decision %s", d.Reason())
	require.Equal(t, order.Size, d.Order().Size)
	return d
}

func tick(i int, open, high, low, close domain.Price) Tick {
	at := start.Add(time.Duration(i) * time.Hour)
	return Tick{
		Symbol: symbol,
		Index:  i,
		Bar:    domain.Bar{Time: at, Open: open, High: high, Low: low, Close: close, Volume: 1},
		End:    at.Add(time.Hour),
	}
}

func market(side domain.OrderSide, size domain.Units, tk Tick) domain.Order {
	return domain.Order{Symbol: symbol, Side: side, Kind: domain.Market, Size: size, Price: tk.Bar.Open, Time: tk.Bar.Time}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	_, err := New(Config{InitialCash: 1_000, FeeBps: -1})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ports.ErrConfigurationError))

	_, err = New(Config{})
	assert.True(t, errors.Is(err, ports.ErrConfigurationError))
}

func TestApplyRequiresApprovingDecision(t *testing.T) {
	b := newBroker(t, nil)
	gate := newGate(t)
	tk := tick(0, 1_000_000, 1_010_000, 990_000, 1_000_000)

	gate.Halt("test")
	rejected := gate.Evaluate(market(domain.Buy, 10, tk), domain.AccountState{Cash: 1_000_000, Equity: 1_000_000}, nil)
	require.False(t, rejected.Allows())

	for _, d := range []risk.Decision{rejected, {}} {
		trade, err := b.Apply(d, tk)
		assert.True(t, errors.Is(err, ports.ErrOrderNotApproved))
		assert.True(t, trade.IsNone())
	}

	assert.Empty(t, b.Fills())
	assert.Empty(t, b.Positions())
	assert.Equal(t, domain.Cents(1_000_000), b.Account().Cash)
}

func TestApplyRejectsForeignSymbol(t *testing.T) {
	b := newBroker(t, nil)
	tk := tick(0, 1_000_000, 1_010_000, 990_000, 1_000_000)
	order := market(domain.Buy, 10, tk)
	order.Symbol = "BTCUSDT"

	_, err := b.Apply(approve(t, newGate(t), order), tk)
	assert.True(t, errors.Is(err, ports.ErrInvalidRequest))
}

func TestMarketRoundTripWithFeesAndSlippage(t *testing.T) {
	b := newBroker(t, func(c *Config) {
		c.FeeBps = 10
		c.SlippageUnits = 100
	})
	gate := newGate(t)

	t0 := tick(0, 1_000_000, 1_010_000, 990_000, 1_005_000)
	entry := approve(t, gate, market(domain.Buy, 10, t0))
	trade, err := b.Apply(entry, t0)
	require.NoError(t, err)
	assert.True(t, trade.IsNone())

	pos := b.Position(symbol).Unwrap()
	assert.Equal(t, domain.Units(10), pos.Size)
	assert.Equal(t, domain.Price(1_000_100), pos.EntryPrice)
	assert.Equal(t, domain.Cents(999_900), b.Account().Cash)

	t1 := tick(1, 1_100_000, 1_110_000, 1_090_000, 1_100_000)
	exit := approve(t, gate, market(domain.Sell, 10, t1))
	trade, err = b.Apply(exit, t1)
	require.NoError(t, err)
	require.True(t, trade.IsSome())

	tr := trade.Unwrap()
	assert.Equal(t, domain.Buy, tr.Side)
	assert.Equal(t, domain.Price(1_099_900), tr.ExitPrice)
	assert.Equal(t, domain.Cents(210), tr.Fees)
	assert.Equal(t, domain.Cents(9_770), tr.PnL)
	assert.Equal(t, domain.ExitSignal, tr.Reason)
	assert.Equal(t, 1, tr.BarsHeld)
	assert.Equal(t, entry.ID(), tr.DecisionID)
	assert.True(t, tr.ExitTime.After(tr.EntryTime))

	account := b.Account()
	assert.Equal(t, domain.Cents(1_009_770), account.Cash)
	assert.Equal(t, account.Cash, account.Equity)
	assert.Equal(t, 0, account.OpenPositions)

	fills := b.Fills()
	require.Len(t, fills, 2)
	assert.Equal(t, entry.ID(), fills[0].DecisionID)
	assert.Equal(t, exit.ID(), fills[1].DecisionID)
	assert.Equal(t, domain.Cents(100), fills[0].Fee)
}

func TestStopLossGapFillsAtOpen(t *testing.T) {
	b := newBroker(t, nil)
	t0 := tick(0, 1_000_000, 1_010_000, 990_000, 1_000_000)
	order := market(domain.Buy, 10, t0)
	order.StopLoss = optional.Some(domain.Price(950_000))
	_, err := b.Apply(approve(t, newGate(t), order), t0)
	require.NoError(t, err)

	// The entry bar itself is never stop-checked.
	assert.Empty(t, b.CheckStops(tick(0, 1_000_000, 1_010_000, 900_000, 1_000_000)))

	trades := b.CheckStops(tick(1, 900_000, 920_000, 890_000, 910_000))
	require.Len(t, trades, 1)
	assert.Equal(t, domain.ExitStopLoss, trades[0].Reason)
	assert.Equal(t, domain.Price(900_000), trades[0].ExitPrice)
	assert.Equal(t, domain.Cents(-10_000), trades[0].PnL)
	assert.True(t, b.Position(symbol).IsNone())
}

func TestStopWinsOverTakeProfit(t *testing.T) {
	tests := []struct {
		name       string
		bar        Tick
		wantReason domain.ExitReason
		wantPrice  domain.Price
	}{
		{name: "both touched", bar: tick(1, 1_000_000, 1_060_000, 940_000, 1_000_000), wantReason: domain.ExitStopLoss, wantPrice: 950_000},
		{name: "target only", bar: tick(1, 1_000_000, 1_060_000, 990_000, 1_040_000), wantReason: domain.ExitTakeProfit, wantPrice: 1_050_000},
		{name: "target gap", bar: tick(1, 1_070_000, 1_080_000, 1_060_000, 1_070_000), wantReason: domain.ExitTakeProfit, wantPrice: 1_070_000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newBroker(t, nil)
			t0 := tick(0, 1_000_000, 1_010_000, 990_000, 1_000_000)
			order := market(domain.Buy, 10, t0)
			order.StopLoss = optional.Some(domain.Price(950_000))
			order.TakeProfit = optional.Some(domain.Price(1_050_000))
			_, err := b.Apply(approve(t, newGate(t), order), t0)
			require.NoError(t, err)

			trades := b.CheckStops(tt.bar)
			require.Len(t, trades, 1)
			assert.Equal(t, tt.wantReason, trades[0].Reason)
			assert.Equal(t, tt.wantPrice, trades[0].ExitPrice)
		})
	}
}

func TestShortStops(t *testing.T) {
	b := newBroker(t, nil)
	t0 := tick(0, 1_000_000, 1_010_000, 990_000, 1_000_000)
	order := market(domain.Sell, 10, t0)
	order.StopLoss = optional.Some(domain.Price(1_050_000))
	_, err := b.Apply(approve(t, newGate(t), order), t0)
	require.NoError(t, err)

	trades := b.CheckStops(tick(1, 1_040_000, 1_060_000, 1_030_000, 1_050_000))
	require.Len(t, trades, 1)
	assert.Equal(t, domain.Sell, trades[0].Side)
	assert.Equal(t, domain.Price(1_050_000), trades[0].ExitPrice)
	assert.Equal(t, domain.Cents(-5_000), trades[0].PnL)
}

func TestLimitOrderCarryOverAndExpiry(t *testing.T) {
	b := newBroker(t, nil)
	gate := newGate(t)

	t0 := tick(0, 1_000_000, 1_010_000, 960_000, 1_000_000)
	order := domain.Order{Symbol: symbol, Side: domain.Buy, Kind: domain.Limit, Size: 10, Price: 950_000, Time: t0.Bar.Time}
	d := approve(t, gate, order)
	_, err := b.Apply(d, t0)
	require.NoError(t, err)
	assert.True(t, b.Pending(symbol).IsSome())

	assert.Empty(t, b.FillPending(t0))
	assert.Empty(t, b.FillPending(tick(1, 1_000_000, 1_010_000, 970_000, 1_000_000)))
	assert.True(t, b.Pending(symbol).IsSome())

	assert.Empty(t, b.FillPending(tick(2, 1_000_000, 1_010_000, 965_000, 1_000_000)))
	assert.True(t, b.Pending(symbol).IsNone())
	assert.Empty(t, b.Fills())

	dropped := b.Dropped()
	require.Len(t, dropped, 1)
	assert.Equal(t, domain.ReasonOrderExpired, dropped[0].Reason)
	assert.Equal(t, d.ID(), dropped[0].DecisionID)
}

func TestLimitOrderFillsInsideRange(t *testing.T) {
	b := newBroker(t, nil)
	t0 := tick(0, 1_000_000, 1_010_000, 960_000, 1_000_000)
	order := domain.Order{Symbol: symbol, Side: domain.Buy, Kind: domain.Limit, Size: 10, Price: 950_000, Time: t0.Bar.Time}
	_, err := b.Apply(approve(t, newGate(t), order), t0)
	require.NoError(t, err)
	assert.Empty(t, b.FillPending(t0))

	assert.Empty(t, b.FillPending(tick(1, 990_000, 995_000, 940_000, 960_000)))

	pos := b.Position(symbol).Unwrap()
	assert.Equal(t, domain.Price(950_000), pos.EntryPrice)
	assert.Equal(t, 1, pos.EntryIndex)
	assert.True(t, b.Pending(symbol).IsNone())
}

func TestStopEntryFillsWithSlippage(t *testing.T) {
	b := newBroker(t, func(c *Config) { c.SlippageUnits = 50 })
	t0 := tick(0, 1_000_000, 1_060_000, 990_000, 1_040_000)
	order := domain.Order{Symbol: symbol, Side: domain.Buy, Kind: domain.Stop, Size: 10, Price: 1_050_000, Time: t0.Bar.Time}
	_, err := b.Apply(approve(t, newGate(t), order), t0)
	require.NoError(t, err)

	b.FillPending(t0)

	assert.Equal(t, domain.Price(1_050_050), b.Position(symbol).Unwrap().EntryPrice)
}

func TestNewDecisionReplacesPendingOrder(t *testing.T) {
	b := newBroker(t, nil)
	gate := newGate(t)
	t0 := tick(0, 1_000_000, 1_010_000, 990_000, 1_000_000)

	first := domain.Order{Symbol: symbol, Side: domain.Buy, Kind: domain.Limit, Size: 10, Price: 950_000, Time: t0.Bar.Time}
	firstDecision := approve(t, gate, first)
	_, err := b.Apply(firstDecision, t0)
	require.NoError(t, err)

	second := first
	second.Price = 960_000
	_, err = b.Apply(approve(t, gate, second), t0)
	require.NoError(t, err)

	dropped := b.Dropped()
	require.Len(t, dropped, 1)
	assert.Equal(t, domain.ReasonOrderReplaced, dropped[0].Reason)
	assert.Equal(t, firstDecision.ID(), dropped[0].DecisionID)
	assert.Equal(t, domain.Price(960_000), b.Pending(symbol).Unwrap().Price)
}

func TestAddReduceAndFlip(t *testing.T) {
	b := newBroker(t, nil)
	gate := newGate(t)

	t0 := tick(0, 1_000_000, 1_010_000, 990_000, 1_000_000)
	opening := approve(t, gate, market(domain.Buy, 10, t0))
	_, err := b.Apply(opening, t0)
	require.NoError(t, err)

	t1 := tick(1, 1_100_000, 1_110_000, 1_090_000, 1_100_000)
	_, err = b.Apply(approve(t, gate, market(domain.Buy, 10, t1)), t1)
	require.NoError(t, err)
	pos := b.Position(symbol).Unwrap()
	assert.Equal(t, domain.Units(20), pos.Size)
	assert.Equal(t, domain.Price(1_050_000), pos.EntryPrice)

	t2 := tick(2, 1_150_000, 1_160_000, 1_140_000, 1_150_000)
	trade, err := b.Apply(approve(t, gate, market(domain.Sell, 5, t2)), t2)
	require.NoError(t, err)
	assert.True(t, trade.IsNone())
	assert.Equal(t, domain.Units(15), b.Position(symbol).Unwrap().Size)
	assert.Equal(t, domain.Cents(1_005_000), b.Account().Cash)

	t3 := tick(3, 1_000_000, 1_010_000, 990_000, 1_000_000)
	trade, err = b.Apply(approve(t, gate, market(domain.Sell, 25, t3)), t3)
	require.NoError(t, err)
	require.True(t, trade.IsSome())

	tr := trade.Unwrap()
	assert.Equal(t, domain.Units(20), tr.Size)
	assert.Equal(t, domain.Cents(5_000-7_500), tr.PnL)
	assert.Equal(t, opening.ID(), tr.DecisionID)
	assert.Equal(t, 3, tr.BarsHeld)

	flipped := b.Position(symbol).Unwrap()
	assert.Equal(t, domain.Units(-10), flipped.Size)
	assert.Equal(t, domain.Price(1_000_000), flipped.EntryPrice)
	assert.Equal(t, 3, flipped.EntryIndex)
	assert.Equal(t, domain.Cents(1_000_000-2_500), b.Account().Cash)
}

func TestFlipSplitsFee(t *testing.T) {
	b := newBroker(t, func(c *Config) { c.FeeBps = 100 })
	gate := newGate(t)

	t0 := tick(0, 1_000_000, 1_010_000, 990_000, 1_000_000)
	_, err := b.Apply(approve(t, gate, market(domain.Buy, 10, t0)), t0)
	require.NoError(t, err)

	t1 := tick(1, 1_000_000, 1_010_000, 990_000, 1_000_000)
	trade, err := b.Apply(approve(t, gate, market(domain.Sell, 20, t1)), t1)
	require.NoError(t, err)

	// 1% of the $1,000 entry plus half of the 1% fee on the $2,000 flip fill.
	assert.Equal(t, domain.Cents(2_000), trade.Unwrap().Fees)
	assert.Equal(t, domain.Cents(1_000), b.Position(symbol).Unwrap().Fees)
	assert.Equal(t, domain.Cents(1_000_000-3_000), b.Account().Cash)
}

func TestEquityEqualsCashPlusUnrealized(t *testing.T) {
	b := newBroker(t, func(c *Config) { c.FeeBps = 5 })
	t0 := tick(0, 1_000_000, 1_010_000, 990_000, 1_000_000)
	_, err := b.Apply(approve(t, newGate(t), market(domain.Buy, 40, t0)), t0)
	require.NoError(t, err)

	for i, close := range []domain.Price{1_020_000, 970_000, 1_130_000} {
		b.MarkToMarket(symbol, close, start.Add(time.Duration(i+1)*time.Hour))
		account := b.Account()
		assert.Equal(t, account.Cash+account.Unrealized, account.Equity)
		assert.Equal(t, domain.PnL(40, 1_000_000, close), account.Unrealized)
	}
	assert.Equal(t, domain.Cents(1_000_000-200+52_000), b.Account().HighWaterMark)
}

func TestForceCloseAllStampsCloseTime(t *testing.T) {
	b := newBroker(t, nil)
	gate := newGate(t)
	t0 := tick(0, 1_000_000, 1_010_000, 990_000, 1_020_000)
	opening := approve(t, gate, market(domain.Buy, 10, t0))
	_, err := b.Apply(opening, t0)
	require.NoError(t, err)

	trades := b.ForceCloseAll([]Tick{t0}, domain.ExitForcedCloseAtEnd)

	require.Len(t, trades, 1)
	assert.Equal(t, domain.ExitForcedCloseAtEnd, trades[0].Reason)
	assert.Equal(t, domain.Price(1_020_000), trades[0].ExitPrice)
	assert.Equal(t, t0.End, trades[0].ExitTime)
	assert.True(t, trades[0].ExitTime.After(trades[0].EntryTime))

	fills := b.Fills()
	assert.Equal(t, opening.ID(), fills[len(fills)-1].DecisionID)
}

func TestIDsAreDeterministic(t *testing.T) {
	run := func() ([]domain.Fill, []domain.ClosedTrade) {
		b := newBroker(t, nil)
		gate := newGate(t)
		t0 := tick(0, 1_000_000, 1_010_000, 990_000, 1_000_000)
		_, err := b.Apply(approve(t, gate, market(domain.Buy, 10, t0)), t0)
		require.NoError(t, err)
		return b.Fills(), b.ForceCloseAll([]Tick{t0}, domain.ExitForcedCloseAtEnd)
	}

	fillsA, tradesA := run()
	fillsB, tradesB := run()
	assert.Equal(t, fillsA, fillsB)
	assert.Equal(t, tradesA, tradesB)
	assert.NotEqual(t, fillsA[0].ID, tradesA[0].ID)
}

func TestStopOutDropsPendingOrder(t *testing.T) {
	b := newBroker(t, nil)
	gate := newGate(t)

	t0 := tick(0, 1_000_000, 1_010_000, 990_000, 1_000_000)
	entry := market(domain.Buy, 50, t0)
	entry.StopLoss = optional.Some(domain.Price(950_000))
	_, err := b.Apply(approve(t, gate, entry), t0)
	require.NoError(t, err)

	// A limit exit decided against the open long: a pure reduce.
	t1 := tick(1, 1_000_000, 1_010_000, 990_000, 1_000_000)
	exit := domain.Order{Symbol: symbol, Side: domain.Sell, Kind: domain.Limit, Size: 50, Price: 1_100_000, Time: t1.Bar.Time}
	d := gate.Evaluate(exit, b.Account(), b.Positions())
	require.True(t, d.Allows())
	_, err = b.Apply(d, t1)
	require.NoError(t, err)
	assert.Empty(t, b.FillPending(t1))

	// The bar touches both the stop and the limit.
	t2 := tick(2, 1_000_000, 1_150_000, 900_000, 1_000_000)
	stopped := b.CheckStops(t2)
	require.Len(t, stopped, 1)
	assert.Equal(t, domain.ExitStopLoss, stopped[0].Reason)
	assert.Equal(t, domain.Price(950_000), stopped[0].ExitPrice)

	assert.Empty(t, b.FillPending(t2))
	assert.Empty(t, b.Positions())
	assert.True(t, b.Pending(symbol).IsNone())
	assert.Len(t, b.Fills(), 2)

	dropped := b.Dropped()
	require.Len(t, dropped, 1)
	assert.Equal(t, domain.ReasonPositionClosed, dropped[0].Reason)
	assert.Equal(t, d.ID(), dropped[0].DecisionID)
}

func TestDecisionExecutesOnce(t *testing.T) {
	b := newBroker(t, nil)
	t0 := tick(0, 1_000_000, 1_010_000, 990_000, 1_000_000)
	d := approve(t, newGate(t), market(domain.Buy, 10, t0))

	_, err := b.Apply(d, t0)
	require.NoError(t, err)

	t1 := tick(1, 1_000_000, 1_010_000, 990_000, 1_000_000)
	trade, err := b.Apply(d, t1)
	assert.True(t, errors.Is(err, ports.ErrOrderNotApproved))
	assert.True(t, trade.IsNone())

	assert.Len(t, b.Fills(), 1)
	assert.Equal(t, domain.Units(10), b.Position(symbol).Unwrap().Size)
}
