package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/ACertainArchangel/trading-bot-framework-sub001/internal/domain"
	"github.com/ACertainArchangel/trading-bot-framework-sub001/internal/ports"
)

// Repository implements the ports.TradeRepository interface using SQLite.
type Repository struct {
	db     *sql.DB
	logger ports.Logger
}

// Config holds configuration for the SQLite repository.
type Config struct {
	DBPath string
	Logger ports.Logger
}

// NewRepository creates a new SQLite repository instance.
func NewRepository(cfg Config) (*Repository, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for SQLite repository")
	}
	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = "./data/trading_bot.db"
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		err = fmt.Errorf("failed to create data directory '%s': %w", filepath.Dir(dbPath), err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// WAL mode for better concurrency
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		err = fmt.Errorf("failed to open database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		err = fmt.Errorf("failed to ping database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// SQLite handles concurrency internally; the Go driver benefits from a
	// single connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	cfg.Logger.Info(context.Background(), "SQLite database connection established", map[string]interface{}{"path": dbPath})

	repo := &Repository{db: db, logger: cfg.Logger}
	if err := repo.initializeSchema(context.Background()); err != nil {
		db.Close()
		err = fmt.Errorf("failed to initialize database schema: %w", err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	return repo, nil
}

func (r *Repository) initializeSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS trades (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		symbol TEXT NOT NULL,
		side TEXT NOT NULL,
		entry_price REAL NOT NULL,
		exit_price REAL NOT NULL,
		size REAL NOT NULL,
		gross_pnl REAL NOT NULL,
		fees REAL NOT NULL,
		net_pnl REAL NOT NULL,
		entry_time TIMESTAMP NOT NULL,
		exit_time TIMESTAMP NOT NULL,
		exit_reason TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_trades_symbol_exit_time ON trades (symbol, exit_time);
	`
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to execute schema initialization: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (r *Repository) Close() error {
	if r.db != nil {
		r.logger.Info(context.Background(), "Closing SQLite database connection")
		return r.db.Close()
	}
	return nil
}

// CreateTrade saves a new trade record and returns its assigned ID.
func (r *Repository) CreateTrade(ctx context.Context, trade *domain.Trade) (int64, error) {
	const query = `
	INSERT INTO trades (symbol, side, entry_price, exit_price, size, gross_pnl, fees, net_pnl, entry_time, exit_time, exit_reason)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	result, err := r.db.ExecContext(ctx, query,
		trade.Symbol, string(trade.Side), trade.EntryPrice, trade.ExitPrice, trade.Size,
		trade.GrossPnL, trade.Fees, trade.NetPnL, trade.EntryTime, trade.ExitTime, string(trade.ExitReason))
	if err != nil {
		return 0, fmt.Errorf("failed to insert trade for symbol %s: %w: %w", trade.Symbol, ports.ErrQueryFailed, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for trade %s: %w", trade.Symbol, err)
	}
	trade.ID = id
	r.logger.Debug(ctx, "Trade recorded", map[string]interface{}{"tradeID": id, "symbol": trade.Symbol, "netPnL": trade.NetPnL})
	return id, nil
}

// FindBySymbol retrieves the most recent trades for a symbol, up to limit.
func (r *Repository) FindBySymbol(ctx context.Context, symbol string, limit int) ([]*domain.Trade, error) {
	const query = `
	SELECT id, symbol, side, entry_price, exit_price, size, gross_pnl, fees, net_pnl, entry_time, exit_time, exit_reason
	FROM trades WHERE symbol = ? ORDER BY exit_time DESC LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades for symbol %s: %w: %w", symbol, ports.ErrQueryFailed, err)
	}
	defer rows.Close()

	var trades []*domain.Trade
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		trades = append(trades, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating trade rows for symbol %s: %w", symbol, err)
	}
	return trades, nil
}

// CountTodayBySymbol counts trades whose entry time falls on the current UTC day.
func (r *Repository) CountTodayBySymbol(ctx context.Context, symbol string) (int, error) {
	const query = `SELECT COUNT(*) FROM trades WHERE symbol = ? AND entry_time >= ?`

	startOfDay := time.Now().UTC().Truncate(24 * time.Hour)
	var count int
	if err := r.db.QueryRowContext(ctx, query, symbol, startOfDay).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count today's trades for symbol %s: %w: %w", symbol, ports.ErrQueryFailed, err)
	}
	return count, nil
}

// GetTotalProfit sums the net P&L of all recorded trades.
func (r *Repository) GetTotalProfit(ctx context.Context) (float64, error) {
	const query = `SELECT COALESCE(SUM(net_pnl), 0) FROM trades`

	var total float64
	if err := r.db.QueryRowContext(ctx, query).Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to sum net P&L: %w: %w", ports.ErrQueryFailed, err)
	}
	return total, nil
}

func scanTrade(rows *sql.Rows) (*domain.Trade, error) {
	var t domain.Trade
	var side, reason string
	if err := rows.Scan(&t.ID, &t.Symbol, &side, &t.EntryPrice, &t.ExitPrice, &t.Size,
		&t.GrossPnL, &t.Fees, &t.NetPnL, &t.EntryTime, &t.ExitTime, &reason); err != nil {
		return nil, fmt.Errorf("failed to scan trade row: %w", err)
	}
	t.Side = domain.PositionSide(side)
	t.ExitReason = domain.ExitReason(reason)
	return &t, nil
}
