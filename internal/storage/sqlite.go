package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/eddiefleurent/positionbook/internal/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS accounts (
	name          TEXT PRIMARY KEY,
	cash          REAL NOT NULL DEFAULT 0,
	account_value REAL,
	as_of         TEXT
);

CREATE TABLE IF NOT EXISTS positions (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	account       TEXT NOT NULL,
	instrument_id TEXT NOT NULL,
	symbol        TEXT NOT NULL,
	asset_class   TEXT NOT NULL,
	quantity      REAL NOT NULL,
	price         REAL NOT NULL DEFAULT 0,
	avg_cost      REAL,
	market_value  REAL NOT NULL DEFAULT 0,
	day_pnl       REAL NOT NULL DEFAULT 0,
	total_pnl     REAL NOT NULL DEFAULT 0,
	underlying    TEXT NOT NULL DEFAULT '',
	expiry        TEXT,
	strike        REAL NOT NULL DEFAULT 0,
	option_right  TEXT NOT NULL DEFAULT '',
	multiplier    REAL NOT NULL DEFAULT 1,
	owner         TEXT NOT NULL DEFAULT '',
	sector        TEXT NOT NULL DEFAULT '',
	strategy_id   TEXT NOT NULL DEFAULT '',
	strategy_name TEXT NOT NULL DEFAULT '',
	entry_date    TEXT,
	UNIQUE (account, instrument_id)
);

CREATE TABLE IF NOT EXISTS nav_snapshots (
	account TEXT NOT NULL,
	date    TEXT NOT NULL,
	nav     REAL NOT NULL,
	bench   REAL,
	PRIMARY KEY (account, date)
);

CREATE TABLE IF NOT EXISTS price_cache (
	symbol TEXT NOT NULL,
	date   TEXT NOT NULL,
	close  REAL NOT NULL,
	PRIMARY KEY (symbol, date)
);
`

const positionColumns = `account, instrument_id, symbol, asset_class, quantity, price, avg_cost,
	market_value, day_pnl, total_pnl, underlying, expiry, strike, option_right, multiplier,
	owner, sector, strategy_id, strategy_name, entry_date`

// SQLiteStorage persists to a SQLite database through the pure Go driver.
type SQLiteStorage struct {
	db   *sql.DB
	path string
}

// NewSQLiteStorage opens (creating if needed) the database at path and
// applies the schema. A "file:" URI is passed through untouched.
func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite storage requires a path")
	}
	if !strings.HasPrefix(path, "file:") {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve database path to absolute: %w", err)
		}
		if err := os.MkdirAll(filepath.Dir(absPath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		path = absPath
	}

	db, err := sql.Open("sqlite", buildConnectionString(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxIdleTime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return &SQLiteStorage{db: db, path: path}, nil
}

func buildConnectionString(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	connStr := path + sep + "_pragma=journal_mode(WAL)"
	connStr += "&_pragma=synchronous(NORMAL)" // Fsync at checkpoints
	connStr += "&_pragma=busy_timeout(5000)"  // Wait for competing writers
	connStr += "&_pragma=foreign_keys(1)"
	return connStr
}

// withTransaction runs fn in a transaction, rolling back on error or panic.
func withTransaction(ctx context.Context, db *sql.DB, fn func(*sql.Tx) error) (err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		} else if err != nil {
			_ = tx.Rollback()
		} else {
			err = tx.Commit()
		}
	}()

	return fn(tx)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPosition(row rowScanner) (models.Position, error) {
	var (
		p                 models.Position
		avgCost           sql.NullFloat64
		expiry, entryDate sql.NullString
		right             string
	)
	err := row.Scan(&p.Account, &p.InstrumentID, &p.Symbol, &p.AssetClass, &p.Quantity, &p.Price, &avgCost,
		&p.MarketValue, &p.DayPnL, &p.TotalPnL, &p.Underlying, &expiry, &p.Strike, &right, &p.Multiplier,
		&p.Owner, &p.Sector, &p.StrategyID, &p.StrategyName, &entryDate)
	if err != nil {
		return models.Position{}, err
	}
	if avgCost.Valid {
		p.AvgCost = models.Float(avgCost.Float64)
	}
	p.Right = models.OptionRight(right)
	p.Expiry = parseNullDate(expiry)
	p.EntryDate = parseNullDate(entryDate)
	return p, nil
}

func positionArgs(p models.Position) []any {
	return []any{p.Account, p.InstrumentID, p.Symbol, string(p.AssetClass), p.Quantity, p.Price, nullFloat(p.AvgCost),
		p.MarketValue, p.DayPnL, p.TotalPnL, p.Underlying, nullDate(p.Expiry), p.Strike, string(p.Right), p.Multiplier,
		p.Owner, p.Sector, p.StrategyID, p.StrategyName, nullDate(p.EntryDate)}
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func nullDate(t time.Time) sql.NullString {
	if t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: t.Format(models.DateLayout), Valid: true}
}

func parseNullDate(s sql.NullString) time.Time {
	if !s.Valid {
		return time.Time{}
	}
	t, err := time.Parse(models.DateLayout, s.String)
	if err != nil {
		return time.Time{}
	}
	return t
}

// dateBounds turns an open-ended range into inclusive string bounds.
func dateBounds(from, to time.Time) (string, string) {
	lo, hi := "0000-01-01", "9999-12-31"
	if !from.IsZero() {
		lo = from.Format(models.DateLayout)
	}
	if !to.IsZero() {
		hi = to.Format(models.DateLayout)
	}
	return lo, hi
}

// Positions returns positions for account, or every account, in insertion order.
func (s *SQLiteStorage) Positions(ctx context.Context, account string) ([]models.Position, error) {
	query := `SELECT ` + positionColumns + ` FROM positions`
	var args []any
	if !models.IsAggregateScope(account) {
		query += ` WHERE account = ?`
		args = append(args, account)
	}
	query += ` ORDER BY account, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query positions: %w", err)
	}
	defer rows.Close()

	var out []models.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan position: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating positions: %w", err)
	}
	return out, nil
}

// ReplacePositions deletes and re-inserts the account's positions in one transaction.
func (s *SQLiteStorage) ReplacePositions(ctx context.Context, account string, positions []models.Position) (bool, error) {
	if err := checkWritable(account); err != nil {
		return false, err
	}

	var replaced bool
	err := withTransaction(ctx, s.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM positions WHERE account = ?`, account)
		if err != nil {
			return fmt.Errorf("failed to clear positions: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil && n > 0 {
			replaced = true
		}

		stmt, err := tx.PrepareContext(ctx, `INSERT INTO positions (`+positionColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("failed to prepare insert: %w", err)
		}
		defer stmt.Close()

		for _, p := range positions {
			p.Account = account
			if _, err := stmt.ExecContext(ctx, positionArgs(p)...); err != nil {
				return fmt.Errorf("failed to insert %s: %w", p.InstrumentID, err)
			}
		}
		return nil
	})
	return replaced, err
}

// UpsertPosition inserts pos or updates the row with the same (account, instrument_id).
func (s *SQLiteStorage) UpsertPosition(ctx context.Context, pos models.Position) error {
	if err := checkWritable(pos.Account); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO positions (`+positionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (account, instrument_id) DO UPDATE SET
			symbol = excluded.symbol, asset_class = excluded.asset_class, quantity = excluded.quantity,
			price = excluded.price, avg_cost = excluded.avg_cost, market_value = excluded.market_value,
			day_pnl = excluded.day_pnl, total_pnl = excluded.total_pnl, underlying = excluded.underlying,
			expiry = excluded.expiry, strike = excluded.strike, option_right = excluded.option_right,
			multiplier = excluded.multiplier, owner = excluded.owner, sector = excluded.sector,
			strategy_id = excluded.strategy_id, strategy_name = excluded.strategy_name,
			entry_date = excluded.entry_date`, positionArgs(pos)...)
	if err != nil {
		return fmt.Errorf("failed to upsert position %s: %w", pos.InstrumentID, err)
	}
	return nil
}

// DeletePosition removes one instrument from account.
func (s *SQLiteStorage) DeletePosition(ctx context.Context, account, instrumentID string) error {
	if err := checkWritable(account); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM positions WHERE account = ? AND instrument_id = ?`, account, instrumentID)
	if err != nil {
		return fmt.Errorf("failed to delete position: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s/%s", ErrPositionNotFound, account, instrumentID)
	}
	return nil
}

func scanAccount(row rowScanner) (models.Account, error) {
	var (
		a     models.Account
		value sql.NullFloat64
		asOf  sql.NullString
	)
	if err := row.Scan(&a.Name, &a.Cash, &value, &asOf); err != nil {
		return models.Account{}, err
	}
	if value.Valid {
		a.AccountValue = models.Float(value.Float64)
	}
	a.AsOf = parseNullDate(asOf)
	return a, nil
}

// Account returns one account.
func (s *SQLiteStorage) Account(ctx context.Context, name string) (*models.Account, error) {
	row := s.db.QueryRowContext(ctx, `SELECT name, cash, account_value, as_of FROM accounts WHERE name = ?`, name)
	a, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load account %s: %w", name, err)
	}
	return &a, nil
}

// Accounts returns every account ordered by name.
func (s *SQLiteStorage) Accounts(ctx context.Context) ([]models.Account, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, cash, account_value, as_of FROM accounts ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query accounts: %w", err)
	}
	defer rows.Close()

	var out []models.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// SaveAccount inserts or replaces an account.
func (s *SQLiteStorage) SaveAccount(ctx context.Context, acct models.Account) error {
	if err := checkWritable(acct.Name); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO accounts (name, cash, account_value, as_of) VALUES (?, ?, ?, ?)
		ON CONFLICT (name) DO UPDATE SET cash = excluded.cash, account_value = excluded.account_value, as_of = excluded.as_of`,
		acct.Name, acct.Cash, nullFloat(acct.AccountValue), nullDate(acct.AsOf))
	if err != nil {
		return fmt.Errorf("failed to save account %s: %w", acct.Name, err)
	}
	return nil
}

// UpsertSnapshot writes one snapshot, replacing the whole row for the same (account, date).
func (s *SQLiteStorage) UpsertSnapshot(ctx context.Context, snap models.NavSnapshot) error {
	if err := checkWritable(snap.Account); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO nav_snapshots (account, date, nav, bench) VALUES (?, ?, ?, ?)
		ON CONFLICT (account, date) DO UPDATE SET nav = excluded.nav, bench = excluded.bench`,
		snap.Account, models.Day(snap.Date).Format(models.DateLayout), snap.NAV, nullFloat(snap.Bench))
	if err != nil {
		return fmt.Errorf("failed to upsert snapshot: %w", err)
	}
	return nil
}

// Snapshots returns snapshots in the closed date range, ascending by date then account.
func (s *SQLiteStorage) Snapshots(ctx context.Context, account string, from, to time.Time) ([]models.NavSnapshot, error) {
	lo, hi := dateBounds(from, to)
	query := `SELECT account, date, nav, bench FROM nav_snapshots WHERE date >= ? AND date <= ?`
	args := []any{lo, hi}
	if !models.IsAggregateScope(account) {
		query += ` AND account = ?`
		args = append(args, account)
	}
	query += ` ORDER BY date, account`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	defer rows.Close()

	var out []models.NavSnapshot
	for rows.Next() {
		var (
			snap  models.NavSnapshot
			date  string
			bench sql.NullFloat64
		)
		if err := rows.Scan(&snap.Account, &date, &snap.NAV, &bench); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		if snap.Date, err = time.Parse(models.DateLayout, date); err != nil {
			return nil, fmt.Errorf("corrupt snapshot date %q: %w", date, err)
		}
		if bench.Valid {
			snap.Bench = models.Float(bench.Float64)
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}

// DeleteSnapshots clears the NAV history of account.
func (s *SQLiteStorage) DeleteSnapshots(ctx context.Context, account string) error {
	if err := checkWritable(account); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM nav_snapshots WHERE account = ?`, account); err != nil {
		return fmt.Errorf("failed to delete snapshots: %w", err)
	}
	return nil
}

// UpsertBenchmarkPrices writes cache rows in one transaction.
func (s *SQLiteStorage) UpsertBenchmarkPrices(ctx context.Context, prices []models.BenchmarkPrice) error {
	return withTransaction(ctx, s.db, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `INSERT INTO price_cache (symbol, date, close) VALUES (?, ?, ?)
			ON CONFLICT (symbol, date) DO UPDATE SET close = excluded.close`)
		if err != nil {
			return fmt.Errorf("failed to prepare price insert: %w", err)
		}
		defer stmt.Close()

		for _, p := range prices {
			if _, err := stmt.ExecContext(ctx, p.Symbol, models.Day(p.Date).Format(models.DateLayout), p.Close); err != nil {
				return fmt.Errorf("failed to insert price %s %s: %w", p.Symbol, p.Date.Format(models.DateLayout), err)
			}
		}
		return nil
	})
}

// BenchmarkPrices returns cached closes for symbol in the closed range, ascending.
func (s *SQLiteStorage) BenchmarkPrices(ctx context.Context, symbol string, from, to time.Time) ([]models.BenchmarkPrice, error) {
	lo, hi := dateBounds(from, to)
	rows, err := s.db.QueryContext(ctx,
		`SELECT date, close FROM price_cache WHERE symbol = ? AND date >= ? AND date <= ? ORDER BY date`, symbol, lo, hi)
	if err != nil {
		return nil, fmt.Errorf("failed to query benchmark prices: %w", err)
	}
	defer rows.Close()

	var out []models.BenchmarkPrice
	for rows.Next() {
		var (
			date string
			p    = models.BenchmarkPrice{Symbol: symbol}
		)
		if err := rows.Scan(&date, &p.Close); err != nil {
			return nil, fmt.Errorf("failed to scan benchmark price: %w", err)
		}
		if p.Date, err = time.Parse(models.DateLayout, date); err != nil {
			return nil, fmt.Errorf("corrupt benchmark date %q: %w", date, err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// DeleteBenchmarkPrices clears the cache for symbol.
func (s *SQLiteStorage) DeleteBenchmarkPrices(ctx context.Context, symbol string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM price_cache WHERE symbol = ?`, symbol); err != nil {
		return fmt.Errorf("failed to delete benchmark prices: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
