// Package journal 把成交记录写入 SQLite，供审计与状态 API 查询。
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/betbot/ordersync/internal/domain"
)

// Record 一条成交记录
type Record struct {
	ID            int64     `json:"id"`
	FillID        string    `json:"fill_id"`
	Symbol        string    `json:"symbol"`
	StrategyID    string    `json:"strategy_id"`
	BrokerOrderID string    `json:"broker_order_id"`
	SerialNumber  int64     `json:"serial_number"`
	Size          int64     `json:"size"`
	Price         string    `json:"price"`
	RemainingSize int64     `json:"remaining_size"`
	Recency       int64     `json:"recency"`
	FilledAt      time.Time `json:"filled_at"`
}

// Journal SQLite 成交记录
type Journal struct {
	db *sql.DB
}

// Open 打开（或创建）成交记录数据库
func Open(path string) (*Journal, error) {
	if path == "" {
		return nil, fmt.Errorf("journal: db path is required")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("mkdir db dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite：单连接更稳定
	db.SetMaxIdleConns(1)

	j := &Journal{db: db}
	if err := j.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return j, nil
}

func (j *Journal) migrate(ctx context.Context) error {
	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`CREATE TABLE IF NOT EXISTS fills (
			id              INTEGER PRIMARY KEY AUTOINCREMENT,
			fill_id         TEXT NOT NULL DEFAULT '',
			symbol          TEXT NOT NULL,
			strategy_id     TEXT NOT NULL DEFAULT '',
			broker_order_id TEXT NOT NULL,
			serial_number   INTEGER NOT NULL DEFAULT 0,
			size            INTEGER NOT NULL,
			price           TEXT NOT NULL,
			remaining_size  INTEGER NOT NULL DEFAULT 0,
			recency         INTEGER NOT NULL DEFAULT 0,
			filled_at       TEXT NOT NULL,
			recorded_at     TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_fills_symbol ON fills(symbol, id);`,
		`CREATE INDEX IF NOT EXISTS idx_fills_strategy ON fills(strategy_id);`,
	}
	for _, stmt := range stmts {
		if _, err := j.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate exec failed: %w", err)
		}
	}
	return nil
}

// Insert 同步写入一批成交
func (j *Journal) Insert(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO fills
		(fill_id, symbol, strategy_id, broker_order_id, serial_number, size, price, remaining_size, recency, filled_at, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now().UTC().Format(time.RFC3339Nano)
	for _, r := range records {
		if _, err := stmt.ExecContext(ctx,
			r.FillID, r.Symbol, r.StrategyID, r.BrokerOrderID, r.SerialNumber,
			r.Size, r.Price, r.RemainingSize, r.Recency,
			r.FilledAt.UTC().Format(time.RFC3339Nano), now,
		); err != nil {
			return fmt.Errorf("insert fill %s: %w", r.BrokerOrderID, err)
		}
	}
	return tx.Commit()
}

// Fills 最近的成交（新的在前）；symbol 为空时返回所有标的
func (j *Journal) Fills(ctx context.Context, symbol string, limit int) ([]Record, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	query := `SELECT id, fill_id, symbol, strategy_id, broker_order_id, serial_number, size, price, remaining_size, recency, filled_at
		FROM fills`
	args := []any{}
	if symbol != "" {
		query += ` WHERE symbol = ?`
		args = append(args, symbol)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Record, 0)
	for rows.Next() {
		var (
			r        Record
			filledAt string
		)
		if err := rows.Scan(&r.ID, &r.FillID, &r.Symbol, &r.StrategyID, &r.BrokerOrderID, &r.SerialNumber,
			&r.Size, &r.Price, &r.RemainingSize, &r.Recency, &filledAt); err != nil {
			return nil, err
		}
		r.FilledAt, _ = time.Parse(time.RFC3339Nano, filledAt)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Close 关闭数据库
func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	return j.db.Close()
}

// RecordFromFill 把券商成交转换为成交记录
func RecordFromFill(fill domain.PhysicalFill, strategyID string) Record {
	filledAt := fill.Time
	if filledAt.IsZero() {
		filledAt = time.Now()
	}
	return Record{
		FillID:        fill.ID,
		Symbol:        fill.Symbol,
		StrategyID:    strategyID,
		BrokerOrderID: fill.BrokerOrderID,
		SerialNumber:  fill.LogicalSerialNumber,
		Size:          fill.Size,
		Price:         fill.Price.String(),
		RemainingSize: fill.RemainingSize,
		Recency:       fill.Recency,
		FilledAt:      filledAt,
	}
}
