package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/vitos/coinbot/internal/domain"
)

// SQLiteStore persists the position row of one product and the trade journal.
// Decimals are stored as TEXT to keep them exact.
type SQLiteStore struct {
	db        *sql.DB
	productID string
}

func NewSQLiteStore(dbPath, productID string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}
	// a single connection serialises writers
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{db: db, productID: productID}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite state %s: %w", dbPath, err)
	}

	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS positions (
			product_id TEXT PRIMARY KEY,
			cost_basis TEXT NOT NULL,
			max_since_buy TEXT NOT NULL,
			min_since_sell TEXT NOT NULL,
			last_sell_value TEXT NOT NULL,
			hold BOOLEAN NOT NULL,
			open_buy_order TEXT,
			open_sell_order TEXT,
			buy_enabled BOOLEAN NOT NULL,
			sell_enabled BOOLEAN NOT NULL,
			balance_base TEXT NOT NULL,
			balance_quote TEXT NOT NULL,
			current_price TEXT NOT NULL,
			updated_at DATETIME NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS trades (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			order_id TEXT NOT NULL,
			product_id TEXT NOT NULL,
			side TEXT NOT NULL,
			filled_size TEXT NOT NULL,
			price TEXT NOT NULL,
			executed_value TEXT NOT NULL,
			profit TEXT NOT NULL,
			created_at DATETIME NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_trades_product ON trades(product_id);`,
	}

	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return fmt.Errorf("failed to exec query %s: %w", q, err)
		}
	}
	return nil
}

// StateStore Implementation

func (s *SQLiteStore) SaveState(ctx context.Context, p *domain.Position) error {
	buyRef, err := encodeRef(p.OpenBuyOrder)
	if err != nil {
		return err
	}
	sellRef, err := encodeRef(p.OpenSellOrder)
	if err != nil {
		return err
	}

	query := `INSERT INTO positions (product_id, cost_basis, max_since_buy, min_since_sell, last_sell_value, hold,
				open_buy_order, open_sell_order, buy_enabled, sell_enabled, balance_base, balance_quote, current_price, updated_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			  ON CONFLICT(product_id) DO UPDATE SET
			  cost_basis=excluded.cost_basis,
			  max_since_buy=excluded.max_since_buy,
			  min_since_sell=excluded.min_since_sell,
			  last_sell_value=excluded.last_sell_value,
			  hold=excluded.hold,
			  open_buy_order=excluded.open_buy_order,
			  open_sell_order=excluded.open_sell_order,
			  buy_enabled=excluded.buy_enabled,
			  sell_enabled=excluded.sell_enabled,
			  balance_base=excluded.balance_base,
			  balance_quote=excluded.balance_quote,
			  current_price=excluded.current_price,
			  updated_at=excluded.updated_at`
	_, err = s.db.ExecContext(ctx, query,
		s.productID, p.CostBasis.String(), p.MaxSinceBuy.String(), p.MinSinceSell.String(), p.LastSellValue.String(), p.Hold,
		buyRef, sellRef, p.BuyEnabled, p.SellEnabled, p.BalanceBase.String(), p.BalanceQuote.String(), p.CurrentPrice.String(),
		p.UpdatedAt.UTC())
	return err
}

func (s *SQLiteStore) LoadState(ctx context.Context) (*domain.Position, error) {
	query := `SELECT cost_basis, max_since_buy, min_since_sell, last_sell_value, hold, open_buy_order, open_sell_order,
				buy_enabled, sell_enabled, balance_base, balance_quote, current_price, updated_at
			  FROM positions WHERE product_id = ?`
	row := s.db.QueryRowContext(ctx, query, s.productID)

	var (
		costBasis, maxSinceBuy, minSinceSell, lastSell string
		base, quote, price                             string
		buyRef, sellRef                                sql.NullString
		p                                              = domain.Position{ProductID: s.productID}
	)
	err := row.Scan(&costBasis, &maxSinceBuy, &minSinceSell, &lastSell, &p.Hold, &buyRef, &sellRef,
		&p.BuyEnabled, &p.SellEnabled, &base, &quote, &price, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrStateNotFound
	}
	if err != nil {
		return nil, err
	}

	fields := []struct {
		name string
		raw  string
		dst  *decimal.Decimal
	}{
		{"cost_basis", costBasis, &p.CostBasis},
		{"max_since_buy", maxSinceBuy, &p.MaxSinceBuy},
		{"min_since_sell", minSinceSell, &p.MinSinceSell},
		{"last_sell_value", lastSell, &p.LastSellValue},
		{"balance_base", base, &p.BalanceBase},
		{"balance_quote", quote, &p.BalanceQuote},
		{"current_price", price, &p.CurrentPrice},
	}
	for _, f := range fields {
		d, err := decimal.NewFromString(f.raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", domain.ErrStateCorrupt, f.name, err)
		}
		*f.dst = d
	}
	if p.OpenBuyOrder, err = decodeRef(buyRef); err != nil {
		return nil, fmt.Errorf("%w: open_buy_order: %v", domain.ErrStateCorrupt, err)
	}
	if p.OpenSellOrder, err = decodeRef(sellRef); err != nil {
		return nil, fmt.Errorf("%w: open_sell_order: %v", domain.ErrStateCorrupt, err)
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStateCorrupt, err)
	}
	return &p, nil
}

func encodeRef(ref *domain.OrderRef) (sql.NullString, error) {
	if ref == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(ref)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func decodeRef(raw sql.NullString) (*domain.OrderRef, error) {
	if !raw.Valid || raw.String == "" {
		return nil, nil
	}
	var ref domain.OrderRef
	if err := json.Unmarshal([]byte(raw.String), &ref); err != nil {
		return nil, err
	}
	return &ref, nil
}

// TradeRepository Implementation

func (s *SQLiteStore) SaveTrade(ctx context.Context, t *domain.Trade) error {
	createdAt := t.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	query := `INSERT INTO trades (order_id, product_id, side, filled_size, price, executed_value, profit, created_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := s.db.ExecContext(ctx, query,
		t.OrderID, t.ProductID, string(t.Side), t.FilledSize.String(), t.Price.String(),
		t.ExecutedValue.String(), t.Profit.String(), createdAt.UTC())
	if err != nil {
		return err
	}
	if id, err := res.LastInsertId(); err == nil {
		t.ID = id
	}
	return nil
}

func (s *SQLiteStore) ListTrades(ctx context.Context, limit int) ([]*domain.Trade, error) {
	query := `SELECT id, order_id, product_id, side, filled_size, price, executed_value, profit, created_at
			  FROM trades ORDER BY id DESC LIMIT ?`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []*domain.Trade
	for rows.Next() {
		var (
			t                                  domain.Trade
			side, size, price, value, profit string
		)
		if err := rows.Scan(&t.ID, &t.OrderID, &t.ProductID, &side, &size, &price, &value, &profit, &t.CreatedAt); err != nil {
			return nil, err
		}
		t.Side = domain.Side(side)
		fields := []struct {
			name string
			raw  string
			dst  *decimal.Decimal
		}{
			{"filled_size", size, &t.FilledSize},
			{"price", price, &t.Price},
			{"executed_value", value, &t.ExecutedValue},
			{"profit", profit, &t.Profit},
		}
		for _, f := range fields {
			d, err := decimal.NewFromString(f.raw)
			if err != nil {
				return nil, fmt.Errorf("trade %d: %s: %w", t.ID, f.name, err)
			}
			*f.dst = d
		}
		trades = append(trades, &t)
	}
	return trades, rows.Err()
}
