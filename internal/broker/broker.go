package broker

import (
	"fmt"
	"math/rand"
	"sort"
	"time"

	"backtestCore/internal/domain"
	"backtestCore/internal/ports"
	"backtestCore/internal/risk"

	"github.com/moznion/go-optional"
	"github.com/oklog/ulid/v2"
)

// Config holds the simulated execution parameters.
type Config struct {
	InitialCash   domain.Cents `yaml:"initial_cash" validate:"gt=0"`
	FeeBps        int64        `yaml:"fee_bps" validate:"gte=0,lte=1000"`
	SlippageUnits domain.Price `yaml:"slippage_units" validate:"gte=0"` // Added to buys, subtracted from sells
	MaxCarryBars  int          `yaml:"max_carry_bars" validate:"gte=0"` // Bars an unfilled limit/stop order survives
}

// Tick is one bar of one symbol at its position in the series.
type Tick struct {
	Symbol string
	Index  int
	Bar    domain.Bar
	End    time.Time // Close time of the bar; zero means Bar.Time
}

func (t Tick) closeTime() time.Time {
	if t.End.IsZero() {
		return t.Bar.Time
	}
	return t.End
}

type pendingOrder struct {
	order      domain.Order
	decisionID int64
	placed     int
}

// Broker simulates one account: cash, open positions, fees and stops.
// Cash moves only by fees and realized P&L, so equity is always cash plus
// the unrealized P&L of the open positions.
type Broker struct {
	config Config

	cash      domain.Cents
	hwm       domain.Cents
	now       time.Time
	positions map[string]*domain.Position
	pending   map[string]*pendingOrder
	applied   map[int64]struct{} // Decision IDs already executed

	fills   []domain.Fill
	dropped []domain.DroppedOrder
	entropy *ulid.MonotonicEntropy
}

// New creates a broker holding cfg.InitialCash and no positions.
func New(cfg Config) (*Broker, error) {
	if err := ports.ValidateConfig("broker", cfg); err != nil {
		return nil, err
	}
	return &Broker{
		config:    cfg,
		cash:      cfg.InitialCash,
		hwm:       cfg.InitialCash,
		positions: make(map[string]*domain.Position),
		pending:   make(map[string]*pendingOrder),
		applied:   make(map[int64]struct{}),
		entropy:   ulid.Monotonic(rand.New(rand.NewSource(1)), 0),
	}, nil
}

// Apply executes an approving decision against tick. Market orders fill at
// the bar open plus slippage; limit and stop orders are queued and replace any
// order already pending for the symbol. A decision executes at most once.
func (b *Broker) Apply(decision risk.Decision, tick Tick) (optional.Option[domain.ClosedTrade], error) {
	if !decision.Allows() {
		return optional.None[domain.ClosedTrade](), fmt.Errorf("decision %d (%s): %w", decision.ID(), decision.Reason(), ports.ErrOrderNotApproved)
	}
	order := decision.Order()
	if order.Symbol != tick.Symbol {
		return optional.None[domain.ClosedTrade](), fmt.Errorf("order for %s applied to %s bar: %w", order.Symbol, tick.Symbol, ports.ErrInvalidRequest)
	}
	if _, seen := b.applied[decision.ID()]; seen {
		return optional.None[domain.ClosedTrade](), fmt.Errorf("decision %d already executed: %w", decision.ID(), ports.ErrOrderNotApproved)
	}
	b.applied[decision.ID()] = struct{}{}

	if p, ok := b.pending[order.Symbol]; ok {
		b.drop(p, tick.Bar.Time, domain.ReasonOrderReplaced)
	}

	switch order.Kind {
	case domain.Limit, domain.Stop:
		b.pending[order.Symbol] = &pendingOrder{order: order, decisionID: decision.ID(), placed: tick.Index}
		return optional.None[domain.ClosedTrade](), nil
	default:
		price := b.MarketPrice(order.Side, tick.Bar.Open)
		return b.execute(order, decision.ID(), price, tick.Index, tick.Bar.Time, domain.ExitSignal), nil
	}
}

// MarketPrice is the modeled fill for a market order opened at open.
func (b *Broker) MarketPrice(side domain.OrderSide, open domain.Price) domain.Price {
	if side == domain.Buy {
		return open + b.config.SlippageUnits
	}
	return max(open-b.config.SlippageUnits, 1)
}

// FillPending tries the pending order of tick's symbol against the bar range.
// An order still unfilled MaxCarryBars after the bar it was placed on is dropped.
func (b *Broker) FillPending(tick Tick) []domain.ClosedTrade {
	p, ok := b.pending[tick.Symbol]
	if !ok {
		return nil
	}

	price, filled := b.triggerPrice(p.order, tick.Bar)
	if !filled {
		if tick.Index-p.placed >= b.config.MaxCarryBars {
			b.drop(p, tick.Bar.Time, domain.ReasonOrderExpired)
		}
		return nil
	}

	delete(b.pending, tick.Symbol)
	trade := b.execute(p.order, p.decisionID, price, tick.Index, tick.Bar.Time, domain.ExitSignal)
	if trade.IsSome() {
		return []domain.ClosedTrade{trade.Unwrap()}
	}
	return nil
}

func (b *Broker) triggerPrice(order domain.Order, bar domain.Bar) (domain.Price, bool) {
	level := order.Price
	switch {
	case order.Kind == domain.Limit && order.Side == domain.Buy:
		return min(bar.Open, level), bar.Low <= level
	case order.Kind == domain.Limit && order.Side == domain.Sell:
		return max(bar.Open, level), bar.High >= level
	case order.Kind == domain.Stop && order.Side == domain.Buy:
		return max(bar.Open, level) + b.config.SlippageUnits, bar.High >= level
	case order.Kind == domain.Stop && order.Side == domain.Sell:
		return max(min(bar.Open, level)-b.config.SlippageUnits, 1), bar.Low <= level
	}
	return 0, false
}

func (b *Broker) drop(p *pendingOrder, at time.Time, reason domain.ReasonCode) {
	delete(b.pending, p.order.Symbol)
	b.dropped = append(b.dropped, domain.DroppedOrder{
		DecisionID: p.decisionID,
		Time:       at,
		Symbol:     p.order.Symbol,
		Reason:     reason,
	})
}

// CheckStops closes the position of tick's symbol when the bar range touches
// its stop or take-profit. The stop wins when both are touched. A gap through
// the level fills at the open. Positions opened on this bar are not checked.
// An order pending for the symbol was decided against the closed position
// and is dropped with it.
func (b *Broker) CheckStops(tick Tick) []domain.ClosedTrade {
	pos, ok := b.positions[tick.Symbol]
	if !ok || pos.EntryIndex >= tick.Index {
		return nil
	}
	bar := tick.Bar
	long := pos.Size > 0

	var price domain.Price
	var reason domain.ExitReason
	if pos.StopLoss.IsSome() {
		stop := pos.StopLoss.Unwrap()
		if long && bar.Low <= stop {
			price, reason = min(bar.Open, stop), domain.ExitStopLoss
		} else if !long && bar.High >= stop {
			price, reason = max(bar.Open, stop), domain.ExitStopLoss
		}
	}
	if reason == "" && pos.TakeProfit.IsSome() {
		target := pos.TakeProfit.Unwrap()
		if long && bar.High >= target {
			price, reason = max(bar.Open, target), domain.ExitTakeProfit
		} else if !long && bar.Low <= target {
			price, reason = min(bar.Open, target), domain.ExitTakeProfit
		}
	}
	if reason == "" {
		return nil
	}

	trade := b.closePosition(pos, price, tick.Index, bar.Time, reason)
	if p, ok := b.pending[tick.Symbol]; ok {
		b.drop(p, bar.Time, domain.ReasonPositionClosed)
	}
	return []domain.ClosedTrade{trade}
}

// ForceCloseAll closes every listed symbol's position at its bar close.
func (b *Broker) ForceCloseAll(ticks []Tick, reason domain.ExitReason) []domain.ClosedTrade {
	var trades []domain.ClosedTrade
	for _, tick := range ticks {
		if p, ok := b.pending[tick.Symbol]; ok {
			b.drop(p, tick.closeTime(), domain.ReasonOrderExpired)
		}
		pos, ok := b.positions[tick.Symbol]
		if !ok {
			continue
		}
		trades = append(trades, b.closePosition(pos, tick.Bar.Close, tick.Index, tick.closeTime(), reason))
	}
	return trades
}

func (b *Broker) closePosition(pos *domain.Position, price domain.Price, index int, at time.Time, reason domain.ExitReason) domain.ClosedTrade {
	order := domain.Order{
		Symbol: pos.Symbol,
		Side:   pos.Side().Opposite(),
		Kind:   domain.Market,
		Size:   pos.Size.Abs(),
		Time:   at,
	}
	return b.execute(order, pos.DecisionID, price, index, at, reason).Unwrap()
}

// execute books one fill. Adding keeps a size-weighted average entry, reducing
// realizes P&L into cash, and an order larger than the position flips it.
func (b *Broker) execute(order domain.Order, decisionID int64, price domain.Price, index int, at time.Time, reason domain.ExitReason) optional.Option[domain.ClosedTrade] {
	fee := domain.ApplyBps(domain.Notional(order.Size, price), b.config.FeeBps)
	b.cash -= fee
	b.now = at
	b.fills = append(b.fills, domain.Fill{
		ID:         b.newID(at),
		DecisionID: decisionID,
		Time:       at,
		Symbol:     order.Symbol,
		Side:       order.Side,
		Size:       order.Size,
		Price:      price,
		Fee:        fee,
	})

	pos, ok := b.positions[order.Symbol]
	if !ok {
		b.open(order, decisionID, order.Size, price, fee, index, at)
		b.touch()
		return optional.None[domain.ClosedTrade]()
	}

	delta := order.Side.Sign() * order.Size
	if (pos.Size > 0) == (delta > 0) {
		held := pos.Size.Abs()
		pos.EntryPrice = domain.Price((int64(held)*int64(pos.EntryPrice) + int64(order.Size)*int64(price) + int64(held+order.Size)/2) / int64(held+order.Size))
		pos.Size += delta
		pos.PeakSize = max(pos.PeakSize, pos.Size.Abs())
		pos.MarkPrice = price
		pos.Fees += fee
		if order.StopLoss.IsSome() {
			pos.StopLoss = order.StopLoss
		}
		if order.TakeProfit.IsSome() {
			pos.TakeProfit = order.TakeProfit
		}
		b.touch()
		return optional.None[domain.ClosedTrade]()
	}

	reduce := min(order.Size, pos.Size.Abs())
	reduceFee := domain.Cents(int64(fee) * int64(reduce) / int64(order.Size))
	realized := domain.PnL(-order.Side.Sign()*reduce, pos.EntryPrice, price)
	b.cash += realized
	pos.RealizedPnL += realized
	pos.Fees += reduceFee
	pos.Size += order.Side.Sign() * reduce
	pos.MarkPrice = price

	if pos.Size != 0 {
		b.touch()
		return optional.None[domain.ClosedTrade]()
	}

	delete(b.positions, pos.Symbol)
	trade := domain.ClosedTrade{
		ID:         b.newID(at),
		Symbol:     pos.Symbol,
		Side:       order.Side.Opposite(),
		EntryTime:  pos.EntryTime,
		ExitTime:   at,
		EntryPrice: pos.EntryPrice,
		ExitPrice:  price,
		Size:       pos.PeakSize,
		PnL:        pos.RealizedPnL - pos.Fees,
		Fees:       pos.Fees,
		Reason:     reason,
		BarsHeld:   index - pos.EntryIndex,
		DecisionID: pos.DecisionID,
	}
	if rest := order.Size - reduce; rest > 0 {
		b.open(order, decisionID, rest, price, fee-reduceFee, index, at)
	}
	b.touch()
	return optional.Some(trade)
}

func (b *Broker) open(order domain.Order, decisionID int64, size domain.Units, price domain.Price, fee domain.Cents, index int, at time.Time) {
	b.positions[order.Symbol] = &domain.Position{
		Symbol:     order.Symbol,
		Size:       order.Side.Sign() * size,
		EntryPrice: price,
		MarkPrice:  price,
		EntryTime:  at,
		EntryIndex: index,
		PeakSize:   size,
		Fees:       fee,
		StopLoss:   order.StopLoss,
		TakeProfit: order.TakeProfit,
		DecisionID: decisionID,
	}
}

func (b *Broker) newID(at time.Time) string {
	return ulid.MustNew(ulid.Timestamp(at), b.entropy).String()
}

// MarkToMarket revalues the symbol's position at price.
func (b *Broker) MarkToMarket(symbol string, price domain.Price, at time.Time) {
	if pos, ok := b.positions[symbol]; ok {
		pos.MarkPrice = price
	}
	if at.After(b.now) {
		b.now = at
	}
	b.touch()
}

func (b *Broker) touch() {
	if eq := b.equity(); eq > b.hwm {
		b.hwm = eq
	}
}

func (b *Broker) unrealized() domain.Cents {
	var total domain.Cents
	for _, pos := range b.positions {
		total += pos.UnrealizedPnL()
	}
	return total
}

func (b *Broker) equity() domain.Cents {
	return b.cash + b.unrealized()
}

// Account returns the current account snapshot.
func (b *Broker) Account() domain.AccountState {
	unrealized := b.unrealized()
	return domain.AccountState{
		Time:          b.now,
		Cash:          b.cash,
		Unrealized:    unrealized,
		Equity:        b.cash + unrealized,
		HighWaterMark: b.hwm,
		OpenPositions: len(b.positions),
	}
}

// Positions returns copies of the open positions ordered by symbol.
func (b *Broker) Positions() []domain.Position {
	out := make([]domain.Position, 0, len(b.positions))
	for _, pos := range b.positions {
		out = append(out, *pos)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// Position returns a copy of the symbol's open position, if any.
func (b *Broker) Position(symbol string) optional.Option[domain.Position] {
	if pos, ok := b.positions[symbol]; ok {
		return optional.Some(*pos)
	}
	return optional.None[domain.Position]()
}

// Pending returns the order waiting to fill for symbol, if any.
func (b *Broker) Pending(symbol string) optional.Option[domain.Order] {
	if p, ok := b.pending[symbol]; ok {
		return optional.Some(p.order)
	}
	return optional.None[domain.Order]()
}

// Fills returns the fill log in execution order.
func (b *Broker) Fills() []domain.Fill {
	return append([]domain.Fill(nil), b.fills...)
}

// Dropped returns the orders that expired or were replaced before filling.
func (b *Broker) Dropped() []domain.DroppedOrder {
	return append([]domain.DroppedOrder(nil), b.dropped...)
}
