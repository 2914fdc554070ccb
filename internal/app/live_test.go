package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/moznion/go-optional"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"backtestCore/internal/domain"
	"backtestCore/internal/ports"
	"backtestCore/internal/ports/mocks"
)

const (
	liveBalance = domain.Cents(1_000_000)
	liveMark    = domain.Price(20_000_000)
)

var liveNow = time.Date(2024, 1, 1, 5, 30, 0, 0, time.UTC)

func liveConfig() LiveConfig {
	cfg := DefaultLiveConfig()
	cfg.Symbol = "ETHUSDT"
	cfg.Interval = "1h"
	cfg.HistoryBars = 5
	return cfg
}

func newTestExecutor(t *testing.T, cfg LiveConfig) (*LiveExecutor, *mocks.MockExchangeClient, *mockLogger) {
	t.Helper()
	ctrl := gomock.NewController(t)
	exchange := mocks.NewMockExchangeClient(ctrl)
	log := &mockLogger{}
	x, err := NewLiveExecutor(cfg, exchange, log)
	require.NoError(t, err)
	x.now = func() time.Time { return liveNow }
	return x, exchange, log
}

// flat makes the exchange report an idle account any number of times.
func flat(exchange *mocks.MockExchangeClient) {
	exchange.EXPECT().GetAccountBalance(gomock.Any(), "USDT").Return(liveBalance, nil).AnyTimes()
	exchange.EXPECT().GetMarkPrice(gomock.Any(), "ETHUSDT").Return(liveMark, nil).AnyTimes()
}

func longExposure(size int64, entry string) *ports.PositionRisk {
	return &ports.PositionRisk{
		Symbol:      "ETHUSDT",
		PositionAmt: decimal.NewFromInt(size),
		EntryPrice:  decimal.RequireFromString(entry),
	}
}

func filled(id int64, avg string) *ports.OrderResponse {
	resp := &ports.OrderResponse{OrderID: id, Symbol: "ETHUSDT", Status: "FILLED"}
	if avg != "" {
		resp.AvgPrice = decimal.RequireFromString(avg)
	}
	return resp
}

func TestNewLiveExecutorValidation(t *testing.T) {
	ctrl := gomock.NewController(t)
	exchange := mocks.NewMockExchangeClient(ctrl)

	tests := []struct {
		name   string
		modify func(*LiveConfig)
	}{
		{name: "missing symbol", modify: func(c *LiveConfig) { c.Symbol = "" }},
		{name: "unknown interval", modify: func(c *LiveConfig) { c.Interval = "7m" }},
		{name: "short history", modify: func(c *LiveConfig) { c.HistoryBars = 1 }},
		{name: "bad risk limits", modify: func(c *LiveConfig) { c.Risk.MaxConcurrentPositions = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := liveConfig()
			tt.modify(&cfg)
			_, err := NewLiveExecutor(cfg, exchange, &mockLogger{})
			assert.Error(t, err)
		})
	}

	_, err := NewLiveExecutor(liveConfig(), nil, &mockLogger{})
	assert.True(t, errors.Is(err, ports.ErrConfigurationError))
}

func TestRouteFillsDefaults(t *testing.T) {
	x, exchange, log := newTestExecutor(t, liveConfig())
	flat(exchange)
	exchange.EXPECT().GetPositionRisk(gomock.Any(), "ETHUSDT").Return(nil, nil)

	decision, err := x.Route(context.Background(), domain.Order{Side: domain.Buy})
	require.NoError(t, err)

	assert.Equal(t, domain.Approved, decision.Outcome())
	order := decision.Order()
	assert.Equal(t, domain.Market, order.Kind)
	assert.Equal(t, liveMark, order.Price)
	assert.Equal(t, liveNow, order.Time)
	assert.Equal(t, domain.Price(19_600_000), order.StopLoss.Unwrap())
	assert.Equal(t, domain.Price(20_800_000), order.TakeProfit.Unwrap())
	// 1% of equity over a 2% stop distance.
	assert.Equal(t, domain.Units(2), order.Size)
	assert.Contains(t, log.infoMsgs, "Live risk decision")
}

func TestRouteRejections(t *testing.T) {
	t.Run("non-market order", func(t *testing.T) {
		x, _, _ := newTestExecutor(t, liveConfig())
		_, err := x.Route(context.Background(), domain.Order{Side: domain.Buy, Kind: domain.Limit, Size: 1})
		assert.True(t, errors.Is(err, ports.ErrInvalidRequest))
	})

	t.Run("halted", func(t *testing.T) {
		x, exchange, _ := newTestExecutor(t, liveConfig())
		flat(exchange)
		exchange.EXPECT().GetPositionRisk(gomock.Any(), "ETHUSDT").Return(nil, nil)
		x.Risk().Halt("manual")

		decision, err := x.Route(context.Background(), domain.Order{Side: domain.Buy, Size: 1})
		require.NoError(t, err)
		assert.Equal(t, domain.ReasonTradingHalted, decision.Reason())

		// No exchange order may follow a rejection.
		err = x.Submit(context.Background(), decision)
		assert.True(t, errors.Is(err, ports.ErrOrderNotApproved))
	})

	t.Run("no stop available", func(t *testing.T) {
		cfg := liveConfig()
		cfg.Risk.StopLossBps = 0
		x, exchange, _ := newTestExecutor(t, cfg)
		flat(exchange)
		exchange.EXPECT().GetPositionRisk(gomock.Any(), "ETHUSDT").Return(nil, nil)

		decision, err := x.Route(context.Background(), domain.Order{Side: domain.Buy, Size: 1})
		require.NoError(t, err)
		assert.Equal(t, domain.ReasonMissingStopLoss, decision.Reason())
	})

	t.Run("exchange unavailable", func(t *testing.T) {
		x, exchange, _ := newTestExecutor(t, liveConfig())
		exchange.EXPECT().GetAccountBalance(gomock.Any(), "USDT").Return(domain.Cents(0), ports.ErrConnectionFailed)

		_, err := x.Route(context.Background(), domain.Order{Side: domain.Buy, Size: 1})
		assert.True(t, errors.Is(err, ports.ErrConnectionFailed))
	})
}

func TestSubmitOpensWithProtectiveOrders(t *testing.T) {
	x, exchange, _ := newTestExecutor(t, liveConfig())
	flat(exchange)
	exchange.EXPECT().GetPositionRisk(gomock.Any(), "ETHUSDT").Return(nil, nil)

	decision, err := x.Route(context.Background(), domain.Order{Side: domain.Buy})
	require.NoError(t, err)

	gomock.InOrder(
		exchange.EXPECT().PlaceMarketOrder(gomock.Any(), "ETHUSDT", domain.Buy, "2").Return(filled(1, "2001"), nil),
		exchange.EXPECT().PlaceStopMarketOrder(gomock.Any(), "ETHUSDT", domain.Sell, "2", "1960.00").Return(filled(2, ""), nil),
		exchange.EXPECT().PlaceTakeProfitMarketOrder(gomock.Any(), "ETHUSDT", domain.Sell, "2", "2080.00").Return(filled(3, ""), nil),
	)
	require.NoError(t, x.Submit(context.Background(), decision))

	pos := x.trackedPosition()
	require.True(t, pos.IsSome())
	assert.Equal(t, domain.Units(2), pos.Unwrap().Size)
	assert.Equal(t, domain.Price(20_010_000), pos.Unwrap().EntryPrice)
	assert.Equal(t, decision.ID(), pos.Unwrap().DecisionID)
}

func TestSubmitProtectiveOrderFailures(t *testing.T) {
	tests := []struct {
		name   string
		expect func(exchange *mocks.MockExchangeClient)
	}{
		{
			name: "stop loss rejected",
			expect: func(exchange *mocks.MockExchangeClient) {
				gomock.InOrder(
					exchange.EXPECT().PlaceMarketOrder(gomock.Any(), "ETHUSDT", domain.Buy, "2").Return(filled(1, "2000"), nil),
					exchange.EXPECT().PlaceStopMarketOrder(gomock.Any(), "ETHUSDT", domain.Sell, "2", "1960.00").Return(nil, ports.ErrOrderPlacementFailed),
					exchange.EXPECT().PlaceMarketOrder(gomock.Any(), "ETHUSDT", domain.Sell, "2").Return(filled(4, "1999"), nil),
				)
			},
		},
		{
			name: "take profit rejected",
			expect: func(exchange *mocks.MockExchangeClient) {
				gomock.InOrder(
					exchange.EXPECT().PlaceMarketOrder(gomock.Any(), "ETHUSDT", domain.Buy, "2").Return(filled(1, "2000"), nil),
					exchange.EXPECT().PlaceStopMarketOrder(gomock.Any(), "ETHUSDT", domain.Sell, "2", "1960.00").Return(filled(2, ""), nil),
					exchange.EXPECT().PlaceTakeProfitMarketOrder(gomock.Any(), "ETHUSDT", domain.Sell, "2", "2080.00").Return(nil, ports.ErrOrderPlacementFailed),
					exchange.EXPECT().CancelOrder(gomock.Any(), "ETHUSDT", int64(2)).Return(filled(2, ""), nil),
					exchange.EXPECT().PlaceMarketOrder(gomock.Any(), "ETHUSDT", domain.Sell, "2").Return(filled(4, "1999"), nil),
				)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			x, exchange, log := newTestExecutor(t, liveConfig())
			flat(exchange)
			exchange.EXPECT().GetPositionRisk(gomock.Any(), "ETHUSDT").Return(nil, nil)

			decision, err := x.Route(context.Background(), domain.Order{Side: domain.Buy})
			require.NoError(t, err)

			tt.expect(exchange)
			err = x.Submit(context.Background(), decision)
			assert.True(t, errors.Is(err, ports.ErrOrderPlacementFailed))
			assert.True(t, x.trackedPosition().IsNone())
			assert.Contains(t, log.infoMsgs, "emergencyClose: Emergency close order placed successfully")
			assert.Empty(t, log.errorMsgs)
		})
	}
}

func TestSubmitClosesTrackedPosition(t *testing.T) {
	x, exchange, _ := newTestExecutor(t, liveConfig())
	flat(exchange)
	exchange.EXPECT().GetPositionRisk(gomock.Any(), "ETHUSDT").Return(nil, nil)
	exchange.EXPECT().GetPositionRisk(gomock.Any(), "ETHUSDT").Return(longExposure(2, "2001"), nil)

	opening, err := x.Route(context.Background(), domain.Order{Side: domain.Buy})
	require.NoError(t, err)
	exchange.EXPECT().PlaceMarketOrder(gomock.Any(), "ETHUSDT", domain.Buy, "2").Return(filled(1, "2001"), nil)
	exchange.EXPECT().PlaceStopMarketOrder(gomock.Any(), "ETHUSDT", domain.Sell, "2", gomock.Any()).Return(filled(2, ""), nil)
	exchange.EXPECT().PlaceTakeProfitMarketOrder(gomock.Any(), "ETHUSDT", domain.Sell, "2", gomock.Any()).Return(filled(3, ""), nil)
	require.NoError(t, x.Submit(context.Background(), opening))

	closing, err := x.Route(context.Background(), domain.Order{Side: domain.Sell, Size: 2})
	require.NoError(t, err)
	require.True(t, closing.Allows())
	// Reducing orders get no protective orders of their own.
	assert.True(t, closing.Order().StopLoss.IsNone())

	gomock.InOrder(
		exchange.EXPECT().PlaceMarketOrder(gomock.Any(), "ETHUSDT", domain.Sell, "2").Return(filled(5, "2010"), nil),
		exchange.EXPECT().CancelOrder(gomock.Any(), "ETHUSDT", int64(2)).Return(filled(2, ""), nil),
		exchange.EXPECT().CancelOrder(gomock.Any(), "ETHUSDT", int64(3)).Return(nil, ports.ErrOrderNotFound),
	)
	require.NoError(t, x.Submit(context.Background(), closing))

	assert.True(t, x.trackedPosition().IsNone())
	stats := x.Risk().GetStats()
	assert.Equal(t, 1, stats.DailyTrades)
	assert.Equal(t, domain.Cents(1_800), stats.DailyPnL)
	assert.Equal(t, 2, stats.Evaluations)
}

func TestSubmitPartialReduceRecordsOneTrade(t *testing.T) {
	x, exchange, log := newTestExecutor(t, liveConfig())
	flat(exchange)
	gomock.InOrder(
		exchange.EXPECT().GetPositionRisk(gomock.Any(), "ETHUSDT").Return(nil, nil),
		exchange.EXPECT().GetPositionRisk(gomock.Any(), "ETHUSDT").Return(longExposure(2, "2001"), nil),
		exchange.EXPECT().GetPositionRisk(gomock.Any(), "ETHUSDT").Return(longExposure(1, "2001"), nil),
	)

	opening, err := x.Route(context.Background(), domain.Order{Side: domain.Buy})
	require.NoError(t, err)
	exchange.EXPECT().PlaceMarketOrder(gomock.Any(), "ETHUSDT", domain.Buy, "2").Return(filled(1, "2001"), nil)
	exchange.EXPECT().PlaceStopMarketOrder(gomock.Any(), "ETHUSDT", domain.Sell, "2", gomock.Any()).Return(filled(2, ""), nil)
	exchange.EXPECT().PlaceTakeProfitMarketOrder(gomock.Any(), "ETHUSDT", domain.Sell, "2", gomock.Any()).Return(filled(3, ""), nil)
	require.NoError(t, x.Submit(context.Background(), opening))

	first, err := x.Route(context.Background(), domain.Order{Side: domain.Sell, Size: 1})
	require.NoError(t, err)
	exchange.EXPECT().PlaceMarketOrder(gomock.Any(), "ETHUSDT", domain.Sell, "1").Return(filled(5, "2010"), nil)
	require.NoError(t, x.Submit(context.Background(), first))

	// Half the position is still open: nothing is realized for the risk engine yet.
	assert.Equal(t, domain.Units(1), x.trackedPosition().Unwrap().Size)
	assert.Zero(t, x.Risk().GetStats().DailyTrades)
	assert.Contains(t, log.infoMsgs, "reduce: Position reduced")
	assert.NotContains(t, log.infoMsgs, "reduce: Position closed")

	second, err := x.Route(context.Background(), domain.Order{Side: domain.Sell, Size: 1})
	require.NoError(t, err)
	gomock.InOrder(
		exchange.EXPECT().PlaceMarketOrder(gomock.Any(), "ETHUSDT", domain.Sell, "1").Return(filled(6, "1995"), nil),
		exchange.EXPECT().CancelOrder(gomock.Any(), "ETHUSDT", int64(2)).Return(filled(2, ""), nil),
		exchange.EXPECT().CancelOrder(gomock.Any(), "ETHUSDT", int64(3)).Return(filled(3, ""), nil),
	)
	require.NoError(t, x.Submit(context.Background(), second))

	assert.True(t, x.trackedPosition().IsNone())
	stats := x.Risk().GetStats()
	assert.Equal(t, 1, stats.DailyTrades)
	// +$9 on the first unit, -$6 on the second.
	assert.Equal(t, domain.Cents(300), stats.DailyPnL)
	assert.Contains(t, log.infoMsgs, "reduce: Position closed")
}

func TestSubmitDecisionOnce(t *testing.T) {
	x, exchange, _ := newTestExecutor(t, liveConfig())
	flat(exchange)
	exchange.EXPECT().GetPositionRisk(gomock.Any(), "ETHUSDT").Return(nil, nil)

	decision, err := x.Route(context.Background(), domain.Order{Side: domain.Buy})
	require.NoError(t, err)
	exchange.EXPECT().PlaceMarketOrder(gomock.Any(), "ETHUSDT", domain.Buy, "2").Return(filled(1, "2000"), nil).Times(1)
	exchange.EXPECT().PlaceStopMarketOrder(gomock.Any(), "ETHUSDT", domain.Sell, "2", gomock.Any()).Return(filled(2, ""), nil).Times(1)
	exchange.EXPECT().PlaceTakeProfitMarketOrder(gomock.Any(), "ETHUSDT", domain.Sell, "2", gomock.Any()).Return(filled(3, ""), nil).Times(1)
	require.NoError(t, x.Submit(context.Background(), decision))

	err = x.Submit(context.Background(), decision)
	assert.True(t, errors.Is(err, ports.ErrOrderNotApproved))
	assert.Equal(t, domain.Units(2), x.trackedPosition().Unwrap().Size)
}

// scriptedSignal returns the same order on every call and records the windows it saw.
type scriptedSignal struct {
	warmUp  int
	order   optional.Option[domain.Order]
	windows []int
	states  []domain.StrategyState
}

func (s *scriptedSignal) Name() string { return "scripted" }
func (s *scriptedSignal) WarmUp() int  { return s.warmUp }

func (s *scriptedSignal) OnBar(ctx context.Context, window []domain.Bar, state domain.StrategyState) optional.Option[domain.Order] {
	s.windows = append(s.windows, len(window))
	s.states = append(s.states, state)
	return s.order
}

func hourlyBars(n int) []domain.Bar {
	bars := make([]domain.Bar, n)
	for i := range bars {
		bars[i] = domain.Bar{
			Time:   time.Date(2024, 1, 1, i, 0, 0, 0, time.UTC),
			Open:   liveMark,
			High:   liveMark + 10_000,
			Low:    liveMark - 10_000,
			Close:  liveMark,
			Volume: 10,
		}
	}
	return bars
}

func TestCycleDropsFormingBarAndSubmits(t *testing.T) {
	x, exchange, _ := newTestExecutor(t, liveConfig())
	flat(exchange)
	exchange.EXPECT().GetPositionRisk(gomock.Any(), "ETHUSDT").Return(nil, nil).Times(2)
	exchange.EXPECT().
		GetBars(gomock.Any(), "ETHUSDT", "1h", liveNow.Add(-6*time.Hour), liveNow).
		Return(hourlyBars(6), nil)

	exchange.EXPECT().PlaceMarketOrder(gomock.Any(), "ETHUSDT", domain.Buy, "2").Return(filled(1, "2000"), nil)
	exchange.EXPECT().PlaceStopMarketOrder(gomock.Any(), "ETHUSDT", domain.Sell, "2", "1960.00").Return(filled(2, ""), nil)
	exchange.EXPECT().PlaceTakeProfitMarketOrder(gomock.Any(), "ETHUSDT", domain.Sell, "2", "2080.00").Return(filled(3, ""), nil)

	strategy := &scriptedSignal{warmUp: 3, order: optional.Some(domain.Order{Side: domain.Buy})}
	require.NoError(t, x.Cycle(context.Background(), strategy))

	require.Equal(t, []int{5}, strategy.windows)
	state := strategy.states[0]
	assert.True(t, state.Position.IsNone())
	assert.Equal(t, liveBalance, state.Equity)
	assert.Equal(t, 4, state.BarIndex)
	assert.True(t, x.trackedPosition().IsSome())
}

func TestCycleWaitsForWarmUp(t *testing.T) {
	x, exchange, log := newTestExecutor(t, liveConfig())
	exchange.EXPECT().GetBars(gomock.Any(), "ETHUSDT", "1h", gomock.Any(), gomock.Any()).Return(hourlyBars(6), nil)

	strategy := &scriptedSignal{warmUp: 10, order: optional.Some(domain.Order{Side: domain.Buy})}
	require.NoError(t, x.Cycle(context.Background(), strategy))

	assert.Empty(t, strategy.windows)
	assert.Contains(t, log.warnMsgs, "Not enough completed bars for the strategy")
}

func TestCycleWithoutSignal(t *testing.T) {
	x, exchange, _ := newTestExecutor(t, liveConfig())
	flat(exchange)
	exchange.EXPECT().GetPositionRisk(gomock.Any(), "ETHUSDT").Return(nil, nil)
	exchange.EXPECT().GetBars(gomock.Any(), "ETHUSDT", "1h", gomock.Any(), gomock.Any()).Return(hourlyBars(6), nil)

	strategy := &scriptedSignal{warmUp: 3, order: optional.None[domain.Order]()}
	require.NoError(t, x.Cycle(context.Background(), strategy))
	assert.Len(t, strategy.windows, 1)
	assert.Equal(t, 0, x.Risk().GetStats().Evaluations)
}

func TestRunStopsOnCancel(t *testing.T) {
	x, exchange, log := newTestExecutor(t, liveConfig())
	exchange.EXPECT().GetBars(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, ports.ErrTimeout).AnyTimes()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, x.Run(ctx, &scriptedSignal{warmUp: 1}))
	assert.Contains(t, log.errorMsgs, "Live cycle failed")
	assert.Contains(t, log.infoMsgs, "Live executor stopped")
}
