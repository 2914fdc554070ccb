package binanceclient

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"backtestCore/internal/domain"
	"backtestCore/internal/ports"

	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"
	"github.com/shopspring/decimal"
)

const (
	// Base URLs
	baseURLProduction = "https://fapi.binance.com"
	baseURLTestnet    = "https://testnet.binancefuture.com"

	// maxKlinesPerRequest is the futures klines endpoint page limit.
	maxKlinesPerRequest = 1500
)

// Client implements the ports.ExchangeClient interface using the go-binance library.
type Client struct {
	futuresClient *futures.Client
	logger        ports.Logger
}

// Config holds configuration specific to the Binance client adapter.
type Config struct {
	APIKey     string
	SecretKey  string
	UseTestnet bool
	Logger     ports.Logger
}

// New creates a new Binance client adapter.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, ports.NewConfigError("binance client", "logger is required")
	}
	if cfg.APIKey == "" || cfg.SecretKey == "" {
		// Public endpoints (klines, mark price) still work without keys.
		cfg.Logger.Warn(context.Background(), "APIKey or SecretKey is empty. Client will only work for public endpoints.")
	}

	client := futures.NewClient(cfg.APIKey, cfg.SecretKey)

	// Set BaseURL directly instead of using global futures.UseTestnet
	if cfg.UseTestnet {
		client.BaseURL = baseURLTestnet
		cfg.Logger.Info(context.Background(), "Binance client configured for Testnet", map[string]interface{}{"baseURL": client.BaseURL})
	} else {
		client.BaseURL = baseURLProduction
		cfg.Logger.Info(context.Background(), "Binance client configured for Production", map[string]interface{}{"baseURL": client.BaseURL})
	}

	return &Client{futuresClient: client, logger: cfg.Logger}, nil
}

// apiErrorKinds maps Binance API error codes onto the ports sentinels.
var apiErrorKinds = map[int64]error{
	-1003: ports.ErrRateLimited,
	-1021: ports.ErrTimeout, // Timestamp outside of recvWindow
	-1022: ports.ErrAuthenticationFailed,
	-1101: ports.ErrInvalidRequest,
	-1102: ports.ErrInvalidRequest,
	-1103: ports.ErrInvalidRequest,
	-1104: ports.ErrInvalidRequest,
	-1105: ports.ErrInvalidRequest,
	-1106: ports.ErrInvalidRequest,
	-1111: ports.ErrInvalidRequest,
	-1115: ports.ErrInvalidRequest,
	-1116: ports.ErrInvalidRequest,
	-1117: ports.ErrInvalidRequest,
	-1120: ports.ErrInvalidRequest,
	-1121: ports.ErrInvalidRequest,
	-1125: ports.ErrInvalidRequest,
	-1127: ports.ErrInvalidRequest,
	-1128: ports.ErrInvalidRequest,
	-1130: ports.ErrInvalidRequest,
	-2010: ports.ErrOrderPlacementFailed,
	-2011: ports.ErrOrderCancelFailed,
	-2013: ports.ErrOrderNotFound,
	-2014: ports.ErrInvalidAPIKeys,
	-2015: ports.ErrInvalidAPIKeys,
	-2019: ports.ErrInsufficientFunds,
	-2022: ports.ErrOrderPlacementFailed, // ReduceOnly rejected
	-3005: ports.ErrInsufficientFunds,
	-3041: ports.ErrInsufficientFunds,
	-4003: ports.ErrInvalidRequest,
	-4014: ports.ErrInvalidRequest,
	-4015: ports.ErrInvalidRequest,
	-4044: ports.ErrPositionNotFound,
	-4047: ports.ErrInsufficientFunds,
}

// classify returns the ports sentinel that best describes err.
func classify(err error) error {
	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		if kind, ok := apiErrorKinds[apiErr.Code]; ok {
			return kind
		}
		return ports.ErrUnknown
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return ports.ErrTimeout
	case errors.Is(err, context.Canceled):
		return ports.ErrContextCanceled
	case strings.Contains(err.Error(), "use of closed network connection"),
		strings.Contains(err.Error(), "connection refused"),
		strings.Contains(err.Error(), "connection reset by peer"):
		return ports.ErrConnectionFailed
	}
	return ports.ErrUnknown
}

// handleError translates common Binance API errors into standardized ports errors.
func (c *Client) handleError(ctx context.Context, err error, operation string) error {
	if err == nil {
		return nil
	}

	fields := map[string]interface{}{"operation": operation, "originalError": err.Error()}
	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		fields["apiErrorCode"] = apiErr.Code
		fields["apiErrorMessage"] = apiErr.Message
	}

	c.logger.Error(ctx, err, operation+" failed", fields)
	return fmt.Errorf("%s failed: %w: %w", operation, classify(err), err)
}

// Ping checks the connectivity to the exchange API.
func (c *Client) Ping(ctx context.Context) error {
	op := "Ping"
	if err := c.futuresClient.NewPingService().Do(ctx); err != nil {
		return c.handleError(ctx, err, op)
	}
	c.logger.Debug(ctx, op+" successful")
	return nil
}

// GetMarkPrice retrieves the current mark price for a given symbol.
func (c *Client) GetMarkPrice(ctx context.Context, symbol string) (domain.Price, error) {
	op := "GetMarkPrice"
	tickers, err := c.futuresClient.NewPremiumIndexService().Symbol(symbol).Do(ctx)
	if err != nil {
		return 0, c.handleError(ctx, err, op)
	}
	if len(tickers) == 0 {
		return 0, c.handleError(ctx, fmt.Errorf("no price data returned for symbol %s", symbol), op)
	}

	price, err := domain.ParsePrice(tickers[0].MarkPrice)
	if err != nil {
		return 0, c.handleError(ctx, err, op)
	}
	return price, nil
}

// GetAccountBalance retrieves the wallet balance for a specific asset (e.g., "USDT").
func (c *Client) GetAccountBalance(ctx context.Context, asset string) (domain.Cents, error) {
	op := "GetAccountBalance"
	account, err := c.futuresClient.NewGetAccountService().Do(ctx)
	if err != nil {
		return 0, c.handleError(ctx, err, op)
	}

	for _, bal := range account.Assets {
		if bal.Asset != asset {
			continue
		}
		balance, err := decimal.NewFromString(bal.WalletBalance)
		if err != nil {
			return 0, c.handleError(ctx, fmt.Errorf("could not parse balance '%s' for asset %s: %w", bal.WalletBalance, asset, err), op)
		}
		return domain.Cents(balance.Shift(2).Round(0).IntPart()), nil
	}

	return 0, c.handleError(ctx, fmt.Errorf("asset %s not found in account balance: %w", asset, ports.ErrNotFound), op)
}

// GetPositionRisk retrieves the risk information for a specific position symbol.
func (c *Client) GetPositionRisk(ctx context.Context, symbol string) (*ports.PositionRisk, error) {
	op := "GetPositionRisk"
	positions, err := c.futuresClient.NewGetPositionRiskService().Symbol(symbol).Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}
	if len(positions) == 0 {
		c.logger.Debug(ctx, op+": No position found for symbol", map[string]interface{}{"symbol": symbol})
		return nil, nil // It's valid not to have a position
	}

	// One-way mode: a single position per symbol.
	pos := translatePositionRisk(positions[0])
	if pos.PositionAmt.IsZero() {
		c.logger.Debug(ctx, op+": Position amount is zero for symbol", map[string]interface{}{"symbol": symbol})
		return nil, nil
	}
	return pos, nil
}

// PlaceMarketOrder places a market order.
func (c *Client) PlaceMarketOrder(ctx context.Context, symbol string, side domain.OrderSide, quantity string) (*ports.OrderResponse, error) {
	op := "PlaceMarketOrder"
	order, err := c.futuresClient.NewCreateOrderService().
		Symbol(symbol).
		Side(futures.SideType(side)).
		Type(futures.OrderTypeMarket).
		Quantity(quantity).
		Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	resp := translateOrderResponse(order)
	c.logger.Info(ctx, op+" successful", map[string]interface{}{
		"symbol":   symbol,
		"side":     string(side),
		"quantity": quantity,
		"orderID":  resp.OrderID,
		"avgPrice": resp.AvgPrice.String(),
	})
	return resp, nil
}

// PlaceStopMarketOrder places a stop-market order that closes the position.
func (c *Client) PlaceStopMarketOrder(ctx context.Context, symbol string, side domain.OrderSide, quantity string, stopPrice string) (*ports.OrderResponse, error) {
	return c.placeClosingOrder(ctx, "PlaceStopMarketOrder", futures.OrderTypeStopMarket, symbol, side, quantity, stopPrice)
}

// PlaceTakeProfitMarketOrder places a take-profit-market order that closes the position.
func (c *Client) PlaceTakeProfitMarketOrder(ctx context.Context, symbol string, side domain.OrderSide, quantity string, stopPrice string) (*ports.OrderResponse, error) {
	return c.placeClosingOrder(ctx, "PlaceTakeProfitMarketOrder", futures.OrderTypeTakeProfitMarket, symbol, side, quantity, stopPrice)
}

func (c *Client) placeClosingOrder(ctx context.Context, op string, orderType futures.OrderType, symbol string, side domain.OrderSide, quantity, stopPrice string) (*ports.OrderResponse, error) {
	fields := map[string]interface{}{
		"symbol":    symbol,
		"side":      string(side),
		"quantity":  quantity,
		"stopPrice": stopPrice,
		"type":      string(orderType),
	}
	c.logger.Debug(ctx, op+": Attempting to place order", fields)

	order, err := c.futuresClient.NewCreateOrderService().
		Symbol(symbol).
		Side(futures.SideType(side)).
		Type(orderType).
		StopPrice(stopPrice).
		ClosePosition(true).
		Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	resp := translateOrderResponse(order)
	fields["orderID"] = resp.OrderID
	fields["status"] = resp.Status
	c.logger.Info(ctx, op+" successful", fields)
	return resp, nil
}

// CancelOrder cancels an open order on Binance.
func (c *Client) CancelOrder(ctx context.Context, symbol string, orderID int64) (*ports.OrderResponse, error) {
	op := "CancelOrder"
	c.logger.Debug(ctx, "Attempting to cancel order", map[string]interface{}{"symbol": symbol, "orderID": orderID})

	res, err := c.futuresClient.NewCancelOrderService().
		Symbol(symbol).
		OrderID(orderID).
		Do(ctx)
	if err != nil {
		// -2013 maps to ErrOrderNotFound.
		return nil, c.handleError(ctx, err, op)
	}

	resp := translateOrderResponse(&futures.CreateOrderResponse{
		OrderID:       res.OrderID,
		Symbol:        res.Symbol,
		ClientOrderID: res.ClientOrderID,
		Price:         res.Price,
		OrigQuantity:  res.OrigQuantity,
		Status:        res.Status,
		Type:          res.Type,
		Side:          res.Side,
	})
	c.logger.Info(ctx, op+" successful", map[string]interface{}{"symbol": symbol, "orderID": orderID, "status": resp.Status})
	return resp, nil
}

// GetBars fetches every completed bar for symbol/interval whose open time lies
// in [start, end], paging through the klines endpoint.
func (c *Client) GetBars(ctx context.Context, symbol, interval string, start, end time.Time) ([]domain.Bar, error) {
	op := "GetBars"
	var bars []domain.Bar
	from := start

	for {
		klines, err := c.futuresClient.NewKlinesService().
			Symbol(symbol).
			Interval(interval).
			StartTime(from.UnixMilli()).
			EndTime(end.UnixMilli()).
			Limit(maxKlinesPerRequest).
			Do(ctx)
		if err != nil {
			return nil, c.handleError(ctx, err, op)
		}
		if len(klines) == 0 {
			break
		}
		for _, k := range klines {
			bar, err := translateKline(k)
			if err != nil {
				return nil, c.handleError(ctx, fmt.Errorf("failed to translate historical kline: %w", err), op)
			}
			bars = append(bars, bar)
		}
		last := klines[len(klines)-1]
		from = time.UnixMilli(last.CloseTime + 1)
		if len(klines) < maxKlinesPerRequest || from.After(end) {
			break
		}
	}

	c.logger.Debug(ctx, op+" successful", map[string]interface{}{"symbol": symbol, "interval": interval, "bars": len(bars)})
	return bars, nil
}

// --- Translation Helpers ---

func parseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func translateOrderResponse(order *futures.CreateOrderResponse) *ports.OrderResponse {
	if order == nil {
		return nil
	}
	return &ports.OrderResponse{
		OrderID:       order.OrderID,
		Symbol:        order.Symbol,
		ClientOrderID: order.ClientOrderID,
		Price:         parseDecimal(order.Price),
		AvgPrice:      parseDecimal(order.AvgPrice),
		OrigQuantity:  parseDecimal(order.OrigQuantity),
		ExecutedQty:   parseDecimal(order.ExecutedQuantity),
		Status:        string(order.Status),
		Type:          string(order.Type),
		Side:          string(order.Side),
		Timestamp:     time.UnixMilli(order.UpdateTime).UTC(),
	}
}

func translatePositionRisk(pos *futures.PositionRisk) *ports.PositionRisk {
	return &ports.PositionRisk{
		Symbol:           pos.Symbol,
		PositionAmt:      parseDecimal(pos.PositionAmt),
		EntryPrice:       parseDecimal(pos.EntryPrice),
		MarkPrice:        parseDecimal(pos.MarkPrice),
		UnRealizedProfit: parseDecimal(pos.UnRealizedProfit),
	}
}

// translateKline converts a historical kline into a Bar. Volume keeps whole units.
func translateKline(k *futures.Kline) (domain.Bar, error) {
	if k == nil {
		return domain.Bar{}, errors.New("received nil historical kline")
	}
	var bar domain.Bar
	var err error
	if bar.Open, err = domain.ParsePrice(k.Open); err != nil {
		return domain.Bar{}, err
	}
	if bar.High, err = domain.ParsePrice(k.High); err != nil {
		return domain.Bar{}, err
	}
	if bar.Low, err = domain.ParsePrice(k.Low); err != nil {
		return domain.Bar{}, err
	}
	if bar.Close, err = domain.ParsePrice(k.Close); err != nil {
		return domain.Bar{}, err
	}
	volume, err := decimal.NewFromString(k.Volume)
	if err != nil {
		return domain.Bar{}, fmt.Errorf("parsing volume '%s': %w", k.Volume, err)
	}
	bar.Volume = volume.IntPart()
	bar.Time = time.UnixMilli(k.OpenTime).UTC().Truncate(time.Second)
	return bar, nil
}
