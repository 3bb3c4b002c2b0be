package execution

import (
	"context"
	"fmt"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/shopspring/decimal"

	"github.com/ocho011/ict-2025-sub000/backend/models"
)

// BinanceClient adapts an *futures.Client to the ExchangeClient seam the
// gateway drives. It is the only place in the execution package that knows
// about the wire shape of the Binance USDⓈ-M futures REST API.
type BinanceClient struct {
	client *futures.Client
}

// NewBinanceClient wraps an already-configured futures REST client.
func NewBinanceClient(client *futures.Client) *BinanceClient {
	return &BinanceClient{client: client}
}

func (c *BinanceClient) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	_, err := c.client.NewChangeLeverageService().Symbol(symbol).Leverage(leverage).Do(ctx)
	if err != nil {
		return fmt.Errorf("binance set leverage: %w", err)
	}
	return nil
}

func (c *BinanceClient) SetMarginType(ctx context.Context, symbol string, isolated bool) error {
	marginType := futures.MarginTypeCrossed
	if isolated {
		marginType = futures.MarginTypeIsolated
	}
	err := c.client.NewChangeMarginTypeService().Symbol(symbol).MarginType(marginType).Do(ctx)
	if err != nil {
		return fmt.Errorf("binance set margin type: %w", err)
	}
	return nil
}

func toBinanceSide(side models.OrderSide) futures.SideType {
	if side == models.OrderSideBuy {
		return futures.SideTypeBuy
	}
	return futures.SideTypeSell
}

func toBinanceOrderType(t models.OrderType) futures.OrderType {
	switch t {
	case models.OrderTypeLimit:
		return futures.OrderTypeLimit
	case models.OrderTypeStopMarket:
		return futures.OrderTypeStop
	case models.OrderTypeTakeProfitMarket:
		return futures.OrderTypeTakeProfit
	case models.OrderTypeStopLimit:
		return futures.OrderTypeStop
	case models.OrderTypeTakeProfitLimit:
		return futures.OrderTypeTakeProfit
	case models.OrderTypeTrailingStopMkt:
		return futures.OrderTypeTrailingStopMarket
	default:
		return futures.OrderTypeMarket
	}
}

func fromBinanceOrderStatus(status futures.OrderStatusType) models.OrderStatus {
	switch status {
	case futures.OrderStatusTypeNew:
		return models.OrderStatusNew
	case futures.OrderStatusTypePartiallyFilled:
		return models.OrderStatusPartiallyFilled
	case futures.OrderStatusTypeFilled:
		return models.OrderStatusFilled
	case futures.OrderStatusTypeCanceled:
		return models.OrderStatusCanceled
	case futures.OrderStatusTypeRejected:
		return models.OrderStatusRejected
	case futures.OrderStatusTypeExpired:
		return models.OrderStatusExpired
	default:
		return models.OrderStatusNew
	}
}

// PlaceOrder submits order to the exchange and returns it updated with the
// exchange-assigned ID and fill state.
func (c *BinanceClient) PlaceOrder(ctx context.Context, order models.Order) (models.Order, error) {
	svc := c.client.NewCreateOrderService().
		Symbol(order.Symbol).
		Side(toBinanceSide(order.Side)).
		Type(toBinanceOrderType(order.Type)).
		ReduceOnly(order.ReduceOnly).
		Quantity(order.Quantity.String())

	switch order.Type {
	case models.OrderTypeLimit, models.OrderTypeStopLimit, models.OrderTypeTakeProfitLimit:
		svc = svc.TimeInForce(futures.TimeInForceTypeGTC).Price(order.Price.String())
	}
	if !order.StopPrice.IsZero() {
		svc = svc.StopPrice(order.StopPrice.String())
	}

	resp, err := svc.Do(ctx)
	if err != nil {
		return models.Order{}, fmt.Errorf("binance place order: %w", err)
	}

	filled, _ := decimal.NewFromString(resp.ExecutedQuantity)
	avg, _ := decimal.NewFromString(resp.AvgPrice)
	price, _ := decimal.NewFromString(resp.Price)

	placed := order
	placed.ID = fmt.Sprintf("%d", resp.OrderID)
	placed.Status = fromBinanceOrderStatus(resp.Status)
	placed.FilledQuantity = filled
	placed.AveragePrice = avg
	placed.Price = price
	return placed, nil
}

func (c *BinanceClient) CancelAllOpenOrders(ctx context.Context, symbol string) error {
	err := c.client.NewCancelAllOpenOrdersService().Symbol(symbol).Do(ctx)
	if err != nil {
		return fmt.Errorf("binance cancel all open orders: %w", err)
	}
	return nil
}

func (c *BinanceClient) GetPosition(ctx context.Context, symbol string) (models.Position, error) {
	positions, err := c.GetAllPositions(ctx)
	if err != nil {
		return models.Position{}, err
	}
	for _, p := range positions {
		if p.Symbol == symbol {
			return p, nil
		}
	}
	return models.Position{}, nil
}

func (c *BinanceClient) GetAllPositions(ctx context.Context) ([]models.Position, error) {
	risks, err := c.client.NewGetPositionRiskService().Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("binance get position risk: %w", err)
	}

	out := make([]models.Position, 0, len(risks))
	for _, r := range risks {
		qty, _ := decimal.NewFromString(r.PositionAmt)
		if qty.IsZero() {
			continue
		}
		side := models.PositionLong
		if qty.IsNegative() {
			side = models.PositionShort
			qty = qty.Neg()
		}
		entry, _ := decimal.NewFromString(r.EntryPrice)
		pnl, _ := decimal.NewFromString(r.UnRealizedProfit)
		liq, _ := decimal.NewFromString(r.LiquidationPrice)
		leverage, _ := decimal.NewFromString(r.Leverage)

		out = append(out, models.Position{
			Symbol:        r.Symbol,
			Side:          side,
			EntryPrice:    entry,
			Quantity:      qty,
			Leverage:      int(leverage.IntPart()),
			UnrealizedPnL: pnl,
			LiquidationPx: liq,
		})
	}
	return out, nil
}

func (c *BinanceClient) GetAccountBalance(ctx context.Context) (models.Balance, error) {
	account, err := c.client.NewGetAccountService().Do(ctx)
	if err != nil {
		return models.Balance{}, fmt.Errorf("binance get account: %w", err)
	}

	equity, _ := decimal.NewFromString(account.TotalWalletBalance)
	available, _ := decimal.NewFromString(account.AvailableBalance)

	return models.Balance{
		Asset:         "USDT",
		AvailableCash: available,
		Equity:        equity,
	}, nil
}
