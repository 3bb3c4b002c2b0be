package data

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/ocho011/ict-2025-sub000/backend/models"
)

// ErrNotFound is returned by OrderStore lookups that find no matching row.
var ErrNotFound = errors.New("not found")

// OrderStore persists the order/trade/position history the engine produces,
// so it survives a restart and can be served back out over the API. It is
// not consulted on the hot path: execution.PositionCache and the gateway's
// own bookkeeping are the engine's source of truth while running.
type OrderStore interface {
	SaveOrder(order models.Order) error
	GetOrder(orderID string) (*models.Order, error)
	GetAllOrders() ([]models.Order, error)
	DeleteOrder(orderID string) error

	SavePosition(position models.Position) error
	GetPosition(symbol string) (*models.Position, error)
	GetAllPositions() ([]models.Position, error)

	SaveTrade(trade models.Trade) error
}

// SQLOrderStore implements OrderStore against a DB.
type SQLOrderStore struct {
	db *DB
}

// NewOrderStore constructs a store backed by db.
func NewOrderStore(db *DB) *SQLOrderStore {
	return &SQLOrderStore{db: db}
}

func (s *SQLOrderStore) SaveOrder(order models.Order) error {
	query := `
		INSERT INTO orders (id, symbol, side, type, quantity, price, stop_price, reduce_only, status, filled_quantity, average_price, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			filled_quantity = excluded.filled_quantity,
			average_price = excluded.average_price,
			updated_at = excluded.updated_at
	`
	_, err := s.db.Exec(query,
		order.ID, order.Symbol, order.Side, order.Type,
		order.Quantity.String(), order.Price.String(), order.StopPrice.String(), order.ReduceOnly,
		order.Status, order.FilledQuantity.String(), order.AveragePrice.String(),
		order.CreatedAt, order.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save order: %w", err)
	}
	return nil
}

type orderRow struct {
	ID             string `db:"id"`
	Symbol         string `db:"symbol"`
	Side           string `db:"side"`
	Type           string `db:"type"`
	Quantity       string `db:"quantity"`
	Price          string `db:"price"`
	StopPrice      string `db:"stop_price"`
	ReduceOnly     bool   `db:"reduce_only"`
	Status         string `db:"status"`
	FilledQuantity string `db:"filled_quantity"`
	AveragePrice   string `db:"average_price"`
	CreatedAt      string `db:"created_at"`
	UpdatedAt      string `db:"updated_at"`
}

func (r orderRow) toOrder() (models.Order, error) {
	qty, err := decimalFromString(r.Quantity)
	if err != nil {
		return models.Order{}, err
	}
	price, err := decimalFromString(r.Price)
	if err != nil {
		return models.Order{}, err
	}
	stop, err := decimalFromString(r.StopPrice)
	if err != nil {
		return models.Order{}, err
	}
	filled, err := decimalFromString(r.FilledQuantity)
	if err != nil {
		return models.Order{}, err
	}
	avg, err := decimalFromString(r.AveragePrice)
	if err != nil {
		return models.Order{}, err
	}
	return models.Order{
		ID: r.ID, Symbol: r.Symbol,
		Side: models.OrderSide(r.Side), Type: models.OrderType(r.Type),
		Quantity: qty, Price: price, StopPrice: stop,
		ReduceOnly: r.ReduceOnly, Status: models.OrderStatus(r.Status),
		FilledQuantity: filled, AveragePrice: avg,
	}, nil
}

func (s *SQLOrderStore) GetOrder(orderID string) (*models.Order, error) {
	var row orderRow
	query := `
		SELECT id, symbol, side, type, quantity, price, stop_price, reduce_only, status, filled_quantity, average_price, created_at, updated_at
		FROM orders WHERE id = ?
	`
	if err := s.db.Get(&row, query, orderID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	order, err := row.toOrder()
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (s *SQLOrderStore) GetAllOrders() ([]models.Order, error) {
	var rows []orderRow
	query := `
		SELECT id, symbol, side, type, quantity, price, stop_price, reduce_only, status, filled_quantity, average_price, created_at, updated_at
		FROM orders ORDER BY created_at DESC
	`
	if err := s.db.Select(&rows, query); err != nil {
		return nil, fmt.Errorf("failed to get all orders: %w", err)
	}
	out := make([]models.Order, 0, len(rows))
	for _, r := range rows {
		o, err := r.toOrder()
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, nil
}

func (s *SQLOrderStore) DeleteOrder(orderID string) error {
	if _, err := s.db.Exec(`DELETE FROM orders WHERE id = ?`, orderID); err != nil {
		return fmt.Errorf("failed to delete order: %w", err)
	}
	return nil
}

func (s *SQLOrderStore) SavePosition(position models.Position) error {
	query := `
		INSERT INTO positions (symbol, side, entry_price, quantity, leverage, unrealized_pnl, liquidation_price, entry_time, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(symbol) DO UPDATE SET
			side = excluded.side,
			entry_price = excluded.entry_price,
			quantity = excluded.quantity,
			leverage = excluded.leverage,
			unrealized_pnl = excluded.unrealized_pnl,
			liquidation_price = excluded.liquidation_price,
			updated_at = excluded.updated_at
	`
	_, err := s.db.Exec(query,
		position.Symbol, position.Side, position.EntryPrice.String(), position.Quantity.String(),
		position.Leverage, position.UnrealizedPnL.String(), position.LiquidationPx.String(),
		position.EntryTime, position.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save position: %w", err)
	}
	return nil
}

type positionRow struct {
	Symbol           string `db:"symbol"`
	Side             string `db:"side"`
	EntryPrice       string `db:"entry_price"`
	Quantity         string `db:"quantity"`
	Leverage         int    `db:"leverage"`
	UnrealizedPnL    string `db:"unrealized_pnl"`
	LiquidationPrice string `db:"liquidation_price"`
}

func (r positionRow) toPosition() (models.Position, error) {
	entry, err := decimalFromString(r.EntryPrice)
	if err != nil {
		return models.Position{}, err
	}
	qty, err := decimalFromString(r.Quantity)
	if err != nil {
		return models.Position{}, err
	}
	pnl, err := decimalFromString(r.UnrealizedPnL)
	if err != nil {
		return models.Position{}, err
	}
	liq, err := decimalFromString(r.LiquidationPrice)
	if err != nil {
		return models.Position{}, err
	}
	return models.Position{
		Symbol: r.Symbol, Side: models.PositionSide(r.Side),
		EntryPrice: entry, Quantity: qty, Leverage: r.Leverage,
		UnrealizedPnL: pnl, LiquidationPx: liq,
	}, nil
}

func (s *SQLOrderStore) GetPosition(symbol string) (*models.Position, error) {
	var row positionRow
	query := `SELECT symbol, side, entry_price, quantity, leverage, unrealized_pnl, liquidation_price FROM positions WHERE symbol = ?`
	if err := s.db.Get(&row, query, symbol); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get position: %w", err)
	}
	pos, err := row.toPosition()
	if err != nil {
		return nil, err
	}
	return &pos, nil
}

func (s *SQLOrderStore) GetAllPositions() ([]models.Position, error) {
	var rows []positionRow
	query := `SELECT symbol, side, entry_price, quantity, leverage, unrealized_pnl, liquidation_price FROM positions ORDER BY symbol ASC`
	if err := s.db.Select(&rows, query); err != nil {
		return nil, fmt.Errorf("failed to get all positions: %w", err)
	}
	out := make([]models.Position, 0, len(rows))
	for _, r := range rows {
		p, err := r.toPosition()
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func (s *SQLOrderStore) SaveTrade(trade models.Trade) error {
	query := `
		INSERT OR REPLACE INTO trades (id, order_id, symbol, side, quantity, price, executed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.Exec(query,
		trade.ID, trade.OrderID, trade.Symbol, trade.Side,
		trade.Quantity.String(), trade.Price.String(), trade.ExecutedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save trade: %w", err)
	}
	return nil
}
