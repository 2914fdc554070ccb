package backtesting

import (
	"context"
	"fmt"
	"strings"
	"time"

	"backtestCore/internal/broker"
	"backtestCore/internal/domain"
	"backtestCore/internal/ports"
	"backtestCore/internal/risk"
	"backtestCore/internal/strategy/analytics"

	"github.com/google/uuid"
)

// State is the lifecycle stage of an Engine.
type State string

const (
	StateIdle     State = "idle"
	StateRunning  State = "running"
	StateFinished State = "finished"
	StateAborted  State = "aborted"
)

// runNamespace scopes run IDs so equal inputs always map to the same UUID.
var runNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("backtestCore/run"))

// BacktestConfig holds everything a run needs besides the series and strategy.
type BacktestConfig struct {
	Risk       risk.Config      `yaml:"risk"`
	Broker     broker.Config    `yaml:"broker"`
	Metrics    analytics.Config `yaml:"metrics"`
	Parameters string           `yaml:"-"` // Canonical strategy parameters, folded into the run ID
}

// Engine replays one series through a strategy, the risk engine and the
// simulated broker. An Engine runs once; build a new one for every run.
type Engine struct {
	config     BacktestConfig
	strategy   ports.Strategy
	logger     ports.Logger
	risk       *risk.Engine
	broker     *broker.Broker
	calculator *analytics.Calculator

	state     State
	series    domain.Series
	runID     string
	index     int
	decisions []domain.DecisionRecord
	trades    []domain.ClosedTrade
	equity    []domain.AccountState
}

// New validates the configuration and returns an idle engine.
func New(config BacktestConfig, strategy ports.Strategy, logger ports.Logger) (*Engine, error) {
	if strategy == nil {
		return nil, ports.NewConfigError("backtest", "strategy is required")
	}
	if logger == nil {
		return nil, ports.NewConfigError("backtest", "logger is required")
	}
	riskEngine, err := risk.NewEngine(config.Risk)
	if err != nil {
		return nil, err
	}
	b, err := broker.New(config.Broker)
	if err != nil {
		return nil, err
	}
	calculator, err := analytics.NewCalculator(config.Metrics)
	if err != nil {
		return nil, err
	}

	return &Engine{
		config:     config,
		strategy:   strategy,
		logger:     logger,
		risk:       riskEngine,
		broker:     b,
		calculator: calculator,
		state:      StateIdle,
	}, nil
}

// State returns the current lifecycle stage.
func (e *Engine) State() State {
	return e.state
}

// Risk exposes the run's risk engine, e.g. to trip its kill-switch.
func (e *Engine) Risk() *risk.Engine {
	return e.risk
}

// RunID returns the deterministic identifier assigned by Begin.
func (e *Engine) RunID() string {
	return e.runID
}

// Begin validates series and moves the engine to Running. A series that fails
// its integrity checks aborts the run.
func (e *Engine) Begin(series domain.Series) error {
	if e.state != StateIdle {
		return fmt.Errorf("begin in state %s: %w", e.state, ports.ErrInvalidState)
	}
	e.state = StateRunning
	if err := series.Validate(); err != nil {
		e.state = StateAborted
		return &ports.DataError{Op: fmt.Sprintf("validate %s %s series", series.Symbol, series.Interval), Err: err}
	}

	e.series = series
	e.runID = e.computeRunID()
	e.index = min(e.strategy.WarmUp(), series.Len())
	e.logger.Info(context.Background(), "Backtest started", map[string]interface{}{
		"runId":    e.runID,
		"strategy": e.strategy.Name(),
		"symbol":   series.Symbol,
		"interval": series.Interval,
		"bars":     series.Len(),
		"warmUp":   e.strategy.WarmUp(),
	})
	return nil
}

func (e *Engine) computeRunID() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s|%s|%s|%s|%d\n", e.strategy.Name(), e.config.Parameters, e.series.Symbol, e.series.Interval, e.series.Step)
	fmt.Fprintf(&b, "%+v|%+v|%+v\n", e.config.Risk, e.config.Broker, e.config.Metrics)
	for _, bar := range e.series.Bars {
		fmt.Fprintf(&b, "%d,%d,%d,%d,%d,%d,%t\n", bar.Time.Unix(), bar.Open, bar.High, bar.Low, bar.Close, bar.Volume, bar.Gap)
	}
	return uuid.NewSHA1(runNamespace, []byte(b.String())).String()
}

// Step processes the next bar and reports whether the series is exhausted.
func (e *Engine) Step(ctx context.Context) (bool, error) {
	if e.state != StateRunning {
		return false, fmt.Errorf("step in state %s: %w", e.state, ports.ErrInvalidState)
	}
	if e.index >= e.series.Len() {
		return true, nil
	}

	tick := e.tick(e.index)
	symbol := e.series.Symbol

	e.broker.MarkToMarket(symbol, tick.Bar.Open, tick.Bar.Time)
	stopped := e.broker.CheckStops(tick)
	e.record(ctx, stopped)

	// A stop-out takes the bar's one decision.
	if len(stopped) == 0 {
		if err := e.decide(ctx, tick); err != nil {
			e.state = StateAborted
			return false, err
		}
	}

	e.record(ctx, e.broker.FillPending(tick))
	e.broker.MarkToMarket(symbol, tick.Bar.Close, tick.End)
	e.equity = append(e.equity, e.broker.Account())

	e.index++
	return e.index >= e.series.Len(), nil
}

func (e *Engine) decide(ctx context.Context, tick broker.Tick) error {
	account := e.broker.Account()
	state := domain.StrategyState{
		Position: e.broker.Position(tick.Symbol),
		Equity:   account.Equity,
		Cash:     account.Cash,
		BarIndex: tick.Index,
	}

	signal := e.strategy.OnBar(ctx, e.series.Window(tick.Index), state)
	if signal.IsNone() {
		return nil
	}
	order := e.prepare(signal.Unwrap(), tick, state)

	decision := e.risk.Evaluate(order, account, e.broker.Positions())
	e.decisions = append(e.decisions, decision.Record())
	e.logger.Debug(ctx, "Risk decision", map[string]interface{}{
		"decisionId": decision.ID(),
		"outcome":    string(decision.Outcome()),
		"reason":     string(decision.Reason()),
		"side":       string(order.Side),
		"requested":  int64(decision.RequestedSize()),
		"size":       int64(decision.Order().Size),
		"bar":        tick.Index,
	})
	if !decision.Allows() {
		return nil
	}

	trade, err := e.broker.Apply(decision, tick)
	if err != nil {
		return fmt.Errorf("apply decision at bar %d: %w", tick.Index, err)
	}
	if trade.IsSome() {
		e.record(ctx, []domain.ClosedTrade{trade.Unwrap()})
	}
	return nil
}

// prepare completes a strategy order for evaluation: it stamps the symbol and
// bar time, prices market orders at the expected fill, attaches the default
// stops to new exposure and sizes orders that left Size at zero.
func (e *Engine) prepare(order domain.Order, tick broker.Tick, state domain.StrategyState) domain.Order {
	order.Symbol = tick.Symbol
	order.Time = tick.Bar.Time
	if order.Kind == "" {
		order.Kind = domain.Market
	}
	if order.Kind == domain.Market {
		order.Price = e.broker.MarketPrice(order.Side, tick.Bar.Open)
	}

	opening := state.Position.IsNone()
	if !opening {
		pos := state.Position.Unwrap()
		opening = pos.Side() == order.Side
	}
	if opening {
		if order.StopLoss.IsNone() {
			order.StopLoss = e.risk.GetStopLoss(order.Price, order.Side)
		}
		if order.TakeProfit.IsNone() {
			order.TakeProfit = e.risk.GetTakeProfit(order.Price, order.Side)
		}
	}
	if order.Size == 0 && order.Price > 0 {
		order.Size = e.risk.GetPositionSize(state.Equity, order.Price, order.StopLoss)
	}
	return order
}

func (e *Engine) record(ctx context.Context, trades []domain.ClosedTrade) {
	for _, trade := range trades {
		e.trades = append(e.trades, trade)
		e.risk.RecordTrade(trade)
		e.logger.Info(ctx, "Position closed", map[string]interface{}{
			"symbol":   trade.Symbol,
			"side":     string(trade.Side),
			"entry":    trade.EntryPrice.String(),
			"exit":     trade.ExitPrice.String(),
			"size":     int64(trade.Size),
			"pnl":      trade.PnL.String(),
			"reason":   string(trade.Reason),
			"barsHeld": trade.BarsHeld,
		})
	}
}

// tick describes bar i with its close time. The close is the next bar's open
// when the spacing is known, so anything stamped at the close sorts after
// every fill inside the bar.
func (e *Engine) tick(i int) broker.Tick {
	bars := e.series.Bars
	bar := bars[i]

	var end time.Time
	switch {
	case e.series.Step > 0:
		end = bar.Time.Add(e.series.Step)
	case i+1 < len(bars):
		end = bars[i+1].Time
	case i > 0:
		end = bar.Time.Add(bar.Time.Sub(bars[i-1].Time))
	default:
		end = bar.Time.Add(time.Second)
	}
	return broker.Tick{Symbol: e.series.Symbol, Index: i, Bar: bar, End: end}
}

// Finish force-closes what is still open at the last close, computes the
// metrics and returns the result. The series must be exhausted.
func (e *Engine) Finish(ctx context.Context) (*domain.BacktestResult, error) {
	if e.state != StateRunning {
		return nil, fmt.Errorf("finish in state %s: %w", e.state, ports.ErrInvalidState)
	}
	if e.index < e.series.Len() {
		return nil, fmt.Errorf("finish with %d bars left: %w", e.series.Len()-e.index, ports.ErrInvalidState)
	}

	last := e.tick(e.series.Len() - 1)
	e.record(ctx, e.broker.ForceCloseAll([]broker.Tick{last}, domain.ExitForcedCloseAtEnd))
	if n := len(e.equity); n > 0 {
		e.equity[n-1] = e.broker.Account()
	}

	result := &domain.BacktestResult{
		RunID:        e.runID,
		Strategy:     e.strategy.Name(),
		Symbol:       e.series.Symbol,
		Interval:     e.series.Interval,
		StartingCash: e.config.Broker.InitialCash,
		Trades:       e.trades,
		EquityCurve:  e.equity,
		Decisions:    e.decisions,
		Fills:        e.broker.Fills(),
		Dropped:      e.broker.Dropped(),
	}
	result.Metrics = e.calculator.Calculate(result.Trades, result.EquityCurve, result.StartingCash)
	e.state = StateFinished

	e.logger.Info(ctx, "Backtest finished", map[string]interface{}{
		"runId":       e.runID,
		"trades":      result.Metrics.TotalTrades,
		"decisions":   len(result.Decisions),
		"netProfit":   result.Metrics.NetProfit.String(),
		"finalEquity": result.Metrics.FinalEquity.String(),
		"maxDrawdown": result.Metrics.MaxDrawdown.String(),
		"sharpe":      result.Metrics.SharpeRatio,
	})
	return result, nil
}

// Run drives a fresh engine through the whole series. A canceled context
// stops the run between bars and discards it.
func (e *Engine) Run(ctx context.Context, series domain.Series) (*domain.BacktestResult, error) {
	if err := e.Begin(series); err != nil {
		return nil, err
	}
	for {
		if err := ctx.Err(); err != nil {
			e.state = StateAborted
			return nil, fmt.Errorf("backtest %s interrupted: %w", e.runID, ports.ErrContextCanceled)
		}
		done, err := e.Step(ctx)
		if err != nil {
			return nil, err
		}
		if done {
			break
		}
	}
	return e.Finish(ctx)
}

// Backtest builds an engine and runs it over series in one call.
func Backtest(ctx context.Context, strategy ports.Strategy, series domain.Series, config BacktestConfig, logger ports.Logger) (*domain.BacktestResult, error) {
	engine, err := New(config, strategy, logger)
	if err != nil {
		return nil, err
	}
	return engine.Run(ctx, series)
}
