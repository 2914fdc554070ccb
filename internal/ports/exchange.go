package ports

import (
	"context"
	"time"

	"backtestCore/internal/domain"

	"github.com/shopspring/decimal"
)

//go:generate mockgen -destination=./mocks/mock_exchange.go -package=mocks backtestCore/internal/ports ExchangeClient

// OrderResponse represents the essential details returned after placing an order.
type OrderResponse struct {
	OrderID       int64           // Exchange's order ID
	Symbol        string          // Symbol for the order
	ClientOrderID string          // User-defined order ID
	Price         decimal.Decimal // Price of the order (zero for market orders)
	AvgPrice      decimal.Decimal // Average filled price
	OrigQuantity  decimal.Decimal // Original quantity requested
	ExecutedQty   decimal.Decimal // Quantity filled
	Status        string          // Order status (e.g., NEW, FILLED, CANCELED)
	Type          string          // Order type (e.g., MARKET, STOP_MARKET)
	Side          string          // Order side (BUY, SELL)
	Timestamp     time.Time       // Time the order response was generated
}

// PositionRisk represents the exchange's view of an open position.
type PositionRisk struct {
	Symbol           string          // Symbol of the position
	PositionAmt      decimal.Decimal // Signed position amount
	EntryPrice       decimal.Decimal // Average entry price
	MarkPrice        decimal.Decimal // Current mark price
	UnRealizedProfit decimal.Decimal // Unrealized profit/loss
}

// ExchangeClient defines the brokerage operations the live execution path needs.
// Historical data for backtests is fetched through it too, outside the core.
type ExchangeClient interface {
	// Ping checks the connectivity to the exchange API.
	Ping(ctx context.Context) error

	// GetMarkPrice retrieves the current mark price for a given symbol.
	GetMarkPrice(ctx context.Context, symbol string) (domain.Price, error)

	// GetAccountBalance retrieves the wallet balance for an asset (e.g., "USDT").
	GetAccountBalance(ctx context.Context, asset string) (domain.Cents, error)

	// GetPositionRisk retrieves the open position for a symbol.
	// Returns nil if no position exists for the symbol.
	GetPositionRisk(ctx context.Context, symbol string) (*PositionRisk, error)

	// PlaceMarketOrder places a market order.
	PlaceMarketOrder(ctx context.Context, symbol string, side domain.OrderSide, quantity string) (*OrderResponse, error)

	// PlaceStopMarketOrder places a protective stop-market order that closes the position.
	PlaceStopMarketOrder(ctx context.Context, symbol string, side domain.OrderSide, quantity string, stopPrice string) (*OrderResponse, error)

	// PlaceTakeProfitMarketOrder places a take-profit-market order that closes the position.
	PlaceTakeProfitMarketOrder(ctx context.Context, symbol string, side domain.OrderSide, quantity string, stopPrice string) (*OrderResponse, error)

	// CancelOrder cancels an existing open order by its ID.
	CancelOrder(ctx context.Context, symbol string, orderID int64) (*OrderResponse, error)

	// GetBars retrieves historical bars between start and end.
	GetBars(ctx context.Context, symbol, interval string, start, end time.Time) ([]domain.Bar, error)
}
