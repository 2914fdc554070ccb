package app

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"backtestCore/internal/adapters/csvfeed"
	"backtestCore/internal/domain"
	"backtestCore/internal/ports"
	"backtestCore/internal/risk"

	"github.com/moznion/go-optional"
	"github.com/oklog/ulid/v2"
)

// LiveConfig holds the settings of the live execution path.
type LiveConfig struct {
	Symbol     string `yaml:"symbol" validate:"required"`
	Interval   string `yaml:"interval" validate:"required"`
	QuoteAsset string `yaml:"quote_asset" validate:"required"`
	// PriceDecimals is the tick precision the exchange accepts for stop prices.
	PriceDecimals int32 `yaml:"price_decimals" validate:"gte=0,lte=4"`
	// HistoryBars is the window handed to the strategy each cycle.
	HistoryBars int         `yaml:"history_bars" validate:"gte=2"`
	Risk        risk.Config `yaml:"risk"`
}

// DefaultLiveConfig requires a stop on every new position.
func DefaultLiveConfig() LiveConfig {
	limits := risk.DefaultConfig()
	limits.RequireStopLoss = true
	limits.StopLossBps = 200
	limits.TakeProfitBps = 400
	return LiveConfig{
		QuoteAsset:    "USDT",
		PriceDecimals: 2,
		HistoryBars:   200,
		Risk:          limits,
	}
}

// livePosition is the exposure the executor opened and the protective orders
// guarding it.
type livePosition struct {
	side         domain.OrderSide
	size         domain.Units
	peak         domain.Units // Largest size reached
	realized     domain.Cents // P&L of the reductions so far
	entryPrice   domain.Price
	entryTime    time.Time
	decisionID   int64
	stopOrderID  int64 // 0 when no stop order rests on the exchange
	profitTarget int64 // take-profit order ID, 0 when none
}

// LiveExecutor routes strategy orders to the exchange. Every order goes
// through the same risk engine as a backtest, and Submit accepts only an
// approving risk.Decision.
type LiveExecutor struct {
	config   LiveConfig
	exchange ports.ExchangeClient
	risk     *risk.Engine
	logger   ports.Logger
	now      func() time.Time

	mu       sync.Mutex // Protects position and executed
	position *livePosition
	executed map[int64]struct{}
}

// NewLiveExecutor validates the configuration and builds the risk engine.
func NewLiveExecutor(config LiveConfig, exchange ports.ExchangeClient, logger ports.Logger) (*LiveExecutor, error) {
	if exchange == nil || logger == nil {
		return nil, ports.NewConfigError("live executor", "exchange and logger are required")
	}
	if err := ports.ValidateConfig("live executor", config); err != nil {
		return nil, err
	}
	if _, err := csvfeed.IntervalStep(config.Interval); err != nil {
		return nil, err
	}
	engine, err := risk.NewEngine(config.Risk)
	if err != nil {
		return nil, err
	}
	return &LiveExecutor{
		config:   config,
		exchange: exchange,
		risk:     engine,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
		executed: make(map[int64]struct{}),
	}, nil
}

// Risk exposes the executor's risk engine, e.g. to trip its kill-switch.
func (x *LiveExecutor) Risk() *risk.Engine {
	return x.risk
}

// snapshot reads the account and the symbol's position from the exchange.
func (x *LiveExecutor) snapshot(ctx context.Context) (domain.AccountState, []domain.Position, domain.Price, error) {
	balance, err := x.exchange.GetAccountBalance(ctx, x.config.QuoteAsset)
	if err != nil {
		return domain.AccountState{}, nil, 0, fmt.Errorf("read balance: %w", err)
	}
	mark, err := x.exchange.GetMarkPrice(ctx, x.config.Symbol)
	if err != nil {
		return domain.AccountState{}, nil, 0, fmt.Errorf("read mark price: %w", err)
	}
	exposure, err := x.exchange.GetPositionRisk(ctx, x.config.Symbol)
	if err != nil {
		return domain.AccountState{}, nil, 0, fmt.Errorf("read position: %w", err)
	}

	account := domain.AccountState{Time: x.now(), Cash: balance}
	var positions []domain.Position
	if exposure != nil {
		// Exposure below one whole unit is invisible to the sizing rules.
		size := domain.Units(exposure.PositionAmt.IntPart())
		if size != 0 {
			positions = append(positions, domain.Position{
				Symbol:     x.config.Symbol,
				Size:       size,
				EntryPrice: domain.PriceFromDecimal(exposure.EntryPrice),
				MarkPrice:  mark,
			})
		}
		account.Unrealized = domain.Cents(exposure.UnRealizedProfit.Shift(2).Round(0).IntPart())
	}
	account.Equity = account.Cash + account.Unrealized
	account.OpenPositions = len(positions)
	return account, positions, mark, nil
}

// Route completes order at the current mark and evaluates it. A rejection is
// returned as a decision, not an error.
func (x *LiveExecutor) Route(ctx context.Context, order domain.Order) (risk.Decision, error) {
	if order.Kind != "" && order.Kind != domain.Market {
		return risk.Decision{}, fmt.Errorf("live %s orders: %w", order.Kind, ports.ErrInvalidRequest)
	}
	account, positions, mark, err := x.snapshot(ctx)
	if err != nil {
		return risk.Decision{}, err
	}

	order.Symbol = x.config.Symbol
	order.Kind = domain.Market
	order.Time = account.Time
	order.Price = mark

	opening := len(positions) == 0 || positions[0].Side() == order.Side
	if opening {
		if order.StopLoss.IsNone() {
			order.StopLoss = x.risk.GetStopLoss(mark, order.Side)
		}
		if order.TakeProfit.IsNone() {
			order.TakeProfit = x.risk.GetTakeProfit(mark, order.Side)
		}
	}
	if order.Size == 0 {
		order.Size = x.risk.GetPositionSize(account.Equity, mark, order.StopLoss)
	}

	decision := x.risk.Evaluate(order, account, positions)
	x.logger.Info(ctx, "Live risk decision", map[string]interface{}{
		"decisionId": decision.ID(),
		"outcome":    string(decision.Outcome()),
		"reason":     string(decision.Reason()),
		"side":       string(order.Side),
		"requested":  int64(decision.RequestedSize()),
		"size":       int64(decision.Order().Size),
		"mark":       mark.String(),
	})
	return decision, nil
}

// Submit executes an approving decision: the reducing part closes the tracked
// position, the rest opens a new one with its protective orders. A decision
// is submitted at most once, even when its exchange orders fail.
func (x *LiveExecutor) Submit(ctx context.Context, decision risk.Decision) error {
	if !decision.Allows() {
		return fmt.Errorf("decision %d (%s): %w", decision.ID(), decision.Reason(), ports.ErrOrderNotApproved)
	}
	order := decision.Order()

	x.mu.Lock()
	defer x.mu.Unlock()

	if _, seen := x.executed[decision.ID()]; seen {
		return fmt.Errorf("decision %d already submitted: %w", decision.ID(), ports.ErrOrderNotApproved)
	}
	x.executed[decision.ID()] = struct{}{}

	remaining := order.Size
	if pos := x.position; pos != nil && pos.side != order.Side {
		reduce := min(remaining, pos.size)
		if err := x.reduce(ctx, reduce, order.Price); err != nil {
			return err
		}
		remaining -= reduce
	}
	if remaining == 0 {
		return nil
	}
	return x.open(ctx, order, remaining, decision.ID())
}

func formatQuantity(size domain.Units) string {
	return strconv.FormatInt(int64(size), 10)
}

func (x *LiveExecutor) formatPrice(p domain.Price) string {
	return p.Decimal().StringFixed(x.config.PriceDecimals)
}

// fillPrice prefers the exchange's average fill over the expected price.
func fillPrice(resp *ports.OrderResponse, expected domain.Price) domain.Price {
	if resp == nil || resp.AvgPrice.IsZero() {
		return expected
	}
	return domain.PriceFromDecimal(resp.AvgPrice)
}

func (x *LiveExecutor) open(ctx context.Context, order domain.Order, size domain.Units, decisionID int64) error {
	op := "open"
	quantity := formatQuantity(size)

	entry, err := x.exchange.PlaceMarketOrder(ctx, x.config.Symbol, order.Side, quantity)
	if err != nil {
		return fmt.Errorf("entry market order failed: %w", err)
	}
	price := fillPrice(entry, order.Price)
	x.logger.Info(ctx, op+": Entry order filled", map[string]interface{}{"orderID": entry.OrderID, "avgPrice": price.String()})

	if pos := x.position; pos != nil {
		// Adding to the position: the close-position protective orders
		// already cover the whole size.
		total := pos.size + size
		pos.entryPrice = domain.Price((int64(pos.entryPrice)*int64(pos.size) + int64(price)*int64(size)) / int64(total))
		pos.size = total
		pos.peak = max(pos.peak, total)
		return nil
	}

	exitSide := order.Side.Opposite()
	var stopID, targetID int64
	if order.StopLoss.IsSome() {
		stop, err := x.exchange.PlaceStopMarketOrder(ctx, x.config.Symbol, exitSide, quantity, x.formatPrice(order.StopLoss.Unwrap()))
		if err != nil {
			// Never leave exposure without its stop.
			x.logger.Warn(ctx, op+": Attempting emergency close due to SL placement failure...")
			if closeErr := x.emergencyClose(ctx, exitSide, quantity); closeErr != nil {
				x.logger.Error(ctx, closeErr, op+": EMERGENCY CLOSE FAILED")
			}
			return fmt.Errorf("stop loss order failed after entry: %w (emergency close attempted)", err)
		}
		stopID = stop.OrderID
	}
	if order.TakeProfit.IsSome() {
		target, err := x.exchange.PlaceTakeProfitMarketOrder(ctx, x.config.Symbol, exitSide, quantity, x.formatPrice(order.TakeProfit.Unwrap()))
		if err != nil {
			x.logger.Warn(ctx, op+": Attempting emergency close due to TP placement failure...")
			if stopID != 0 {
				if cancelErr := x.cancelOrderWarn(ctx, stopID, "SL"); cancelErr != nil {
					x.logger.Error(ctx, cancelErr, op+": Failed to cancel SL order during TP failure cleanup")
				}
			}
			if closeErr := x.emergencyClose(ctx, exitSide, quantity); closeErr != nil {
				x.logger.Error(ctx, closeErr, op+": EMERGENCY CLOSE FAILED after TP failure")
			}
			return fmt.Errorf("take profit order failed after entry: %w (emergency close attempted)", err)
		}
		targetID = target.OrderID
	}

	x.position = &livePosition{
		side:         order.Side,
		size:         size,
		peak:         size,
		entryPrice:   price,
		entryTime:    x.now(),
		decisionID:   decisionID,
		stopOrderID:  stopID,
		profitTarget: targetID,
	}
	x.logger.Info(ctx, op+": Position opened", map[string]interface{}{
		"side":     string(order.Side),
		"size":     int64(size),
		"entry":    price.String(),
		"decision": decisionID,
	})
	return nil
}

// reduce closes size units of the tracked position. The ClosedTrade is
// emitted and reported to the risk engine only when the position reaches zero.
func (x *LiveExecutor) reduce(ctx context.Context, size domain.Units, expected domain.Price) error {
	op := "reduce"
	pos := x.position
	exit, err := x.exchange.PlaceMarketOrder(ctx, x.config.Symbol, pos.side.Opposite(), formatQuantity(size))
	if err != nil {
		// The position stays open; its protective orders still rest on the exchange.
		return fmt.Errorf("closing market order failed: %w", err)
	}
	price := fillPrice(exit, expected)

	pnl := domain.PnL(pos.side.Sign()*size, pos.entryPrice, price)
	pos.realized += pnl
	pos.size -= size
	x.logger.Info(ctx, op+": Position reduced", map[string]interface{}{
		"size":      int64(size),
		"exit":      price.String(),
		"pnl":       pnl.String(),
		"remaining": int64(pos.size),
	})
	if pos.size > 0 {
		return nil
	}

	trade := domain.ClosedTrade{
		ID:         ulid.Make().String(),
		Symbol:     x.config.Symbol,
		Side:       pos.side,
		EntryTime:  pos.entryTime,
		ExitTime:   x.now(),
		EntryPrice: pos.entryPrice,
		ExitPrice:  price,
		Size:       pos.peak,
		PnL:        pos.realized,
		Reason:     domain.ExitSignal,
		DecisionID: pos.decisionID,
	}
	x.risk.RecordTrade(trade)

	if pos.stopOrderID != 0 {
		_ = x.cancelOrderWarn(ctx, pos.stopOrderID, "SL")
	}
	if pos.profitTarget != 0 {
		_ = x.cancelOrderWarn(ctx, pos.profitTarget, "TP")
	}
	x.position = nil
	x.logger.Info(ctx, op+": Position closed", map[string]interface{}{
		"size":     int64(trade.Size),
		"exit":     price.String(),
		"pnl":      trade.PnL.String(),
		"decision": trade.DecisionID,
	})
	return nil
}

// emergencyClose places a market order to close the current exposure.
// Used when SL/TP placement fails after entry.
func (x *LiveExecutor) emergencyClose(ctx context.Context, side domain.OrderSide, quantity string) error {
	op := "emergencyClose"
	x.logger.Warn(ctx, op+": Placing emergency closing order", map[string]interface{}{"side": string(side), "quantity": quantity})
	if _, err := x.exchange.PlaceMarketOrder(ctx, x.config.Symbol, side, quantity); err != nil {
		return fmt.Errorf("emergency close order placement failed: %w", err)
	}
	x.logger.Info(ctx, op+": Emergency close order placed successfully")
	return nil
}

// cancelOrderWarn attempts to cancel an order and logs a warning on failure.
func (x *LiveExecutor) cancelOrderWarn(ctx context.Context, orderID int64, orderType string) error {
	op := "cancelOrderWarn"
	_, err := x.exchange.CancelOrder(ctx, x.config.Symbol, orderID)
	if err != nil {
		// Already filled or cancelled.
		if errors.Is(err, ports.ErrOrderNotFound) {
			x.logger.Warn(ctx, op+": Order not found, likely already filled or cancelled", map[string]interface{}{"orderID": orderID, "type": orderType})
			return nil
		}
		x.logger.Error(ctx, err, op+": Failed to cancel order", map[string]interface{}{"orderID": orderID, "type": orderType})
		return err
	}
	x.logger.Debug(ctx, op+": Order cancelled", map[string]interface{}{"orderID": orderID, "type": orderType})
	return nil
}

// Cycle runs one decision: it fetches the latest completed bars, asks the
// strategy for an order, routes it and submits it when approved.
func (x *LiveExecutor) Cycle(ctx context.Context, strategy ports.Strategy) error {
	step, _ := csvfeed.IntervalStep(x.config.Interval)
	now := x.now()
	bars, err := x.exchange.GetBars(ctx, x.config.Symbol, x.config.Interval, now.Add(-time.Duration(x.config.HistoryBars+1)*step), now)
	if err != nil {
		return err
	}
	// The newest bar is still forming until its close time passes.
	if n := len(bars); n > 0 && bars[n-1].Time.Add(step).After(now) {
		bars = bars[:n-1]
	}
	series, err := csvfeed.BuildSeries(x.config.Symbol, x.config.Interval, bars)
	if err != nil {
		return err
	}
	if err := series.Validate(); err != nil {
		return &ports.DataError{Op: "validate live window", Err: err}
	}
	if series.Len() < strategy.WarmUp() {
		x.logger.Warn(ctx, "Not enough completed bars for the strategy", map[string]interface{}{"bars": series.Len(), "warmUp": strategy.WarmUp()})
		return nil
	}

	account, _, _, err := x.snapshot(ctx)
	if err != nil {
		return err
	}
	state := domain.StrategyState{
		Position: x.trackedPosition(),
		Equity:   account.Equity,
		Cash:     account.Cash,
		BarIndex: series.Len() - 1,
	}
	signal := strategy.OnBar(ctx, series.Bars, state)
	if signal.IsNone() {
		x.logger.Debug(ctx, "No signal this cycle", map[string]interface{}{"bars": series.Len()})
		return nil
	}

	decision, err := x.Route(ctx, signal.Unwrap())
	if err != nil {
		return err
	}
	if !decision.Allows() {
		return nil
	}
	return x.Submit(ctx, decision)
}

func (x *LiveExecutor) trackedPosition() optional.Option[domain.Position] {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.position == nil {
		return optional.None[domain.Position]()
	}
	return optional.Some(domain.Position{
		Symbol:     x.config.Symbol,
		Size:       x.position.side.Sign() * x.position.size,
		EntryPrice: x.position.entryPrice,
		EntryTime:  x.position.entryTime,
		DecisionID: x.position.decisionID,
	})
}

// Run calls Cycle once per interval until ctx is canceled. Cycle errors are
// logged and the loop continues.
func (x *LiveExecutor) Run(ctx context.Context, strategy ports.Strategy) error {
	step, _ := csvfeed.IntervalStep(x.config.Interval)
	x.logger.Info(ctx, "Live executor started", map[string]interface{}{
		"symbol":   x.config.Symbol,
		"interval": x.config.Interval,
		"strategy": strategy.Name(),
	})
	ticker := time.NewTicker(step)
	defer ticker.Stop()

	for {
		if err := x.Cycle(ctx, strategy); err != nil {
			x.logger.Error(ctx, err, "Live cycle failed")
		}
		select {
		case <-ctx.Done():
			x.logger.Info(ctx, "Live executor stopped")
			return nil
		case <-ticker.C:
		}
	}
}
