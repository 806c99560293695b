package database

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"copytrader/models"
)

// DB represents a database connection
type DB struct {
	*sql.DB
}

// ConnectionParams holds PostgreSQL connection parameters
type ConnectionParams struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// New creates a new database connection
func New(params ConnectionParams) (*DB, error) {
	connStr := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		params.Host, params.Port, params.User, params.Password, params.DBName, params.SSLMode,
	)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		return nil, err
	}

	if err := createTables(db); err != nil {
		return nil, err
	}

	return &DB{db}, nil
}

// createTables creates the necessary tables if they don't exist
func createTables(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS balance_history (
			id BIGSERIAL PRIMARY KEY,
			account TEXT NOT NULL,
			balance DOUBLE PRECISION NOT NULL,
			equity DOUBLE PRECISION,
			recorded_at TIMESTAMPTZ NOT NULL
		)
	`)
	if err != nil {
		return err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS sync_events (
			id BIGSERIAL PRIMARY KEY,
			master TEXT NOT NULL,
			slave TEXT NOT NULL,
			event TEXT NOT NULL,
			symbol TEXT,
			side TEXT,
			qty TEXT,
			detail TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return err
	}

	_, err = db.Exec(`
		CREATE INDEX IF NOT EXISTS balance_history_account_idx
		ON balance_history (account, recorded_at)
	`)

	return err
}

// AddBalanceEntry records a balance snapshot for an account
func (db *DB) AddBalanceEntry(account string, entry models.BalanceEntry) error {
	_, err := db.Exec(`
		INSERT INTO balance_history (account, balance, equity, recorded_at)
		VALUES ($1, $2, $3, $4)
	`, account, entry.Balance, entry.Equity, entry.Timestamp)

	return err
}

// GetBalanceHistory returns balance snapshots for an account since the
// given time, oldest first
func (db *DB) GetBalanceHistory(account string, since time.Time) ([]models.BalanceEntry, error) {
	rows, err := db.Query(`
		SELECT balance, equity, recorded_at
		FROM balance_history
		WHERE account = $1 AND recorded_at >= $2
		ORDER BY recorded_at ASC
	`, account, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []models.BalanceEntry
	for rows.Next() {
		var entry models.BalanceEntry
		var equity sql.NullFloat64

		if err := rows.Scan(&entry.Balance, &equity, &entry.Timestamp); err != nil {
			return nil, err
		}
		if equity.Valid {
			entry.Equity = equity.Float64
		}

		entries = append(entries, entry)
	}

	return entries, rows.Err()
}

// PruneBalanceHistory removes snapshots older than the cutoff
func (db *DB) PruneBalanceHistory(cutoff time.Time) error {
	_, err := db.Exec(`
		DELETE FROM balance_history
		WHERE recorded_at < $1
	`, cutoff)

	return err
}

// SyncEvent is a recorded synchronization action
type SyncEvent struct {
	Master    string
	Slave     string
	Event     string
	Symbol    string
	Side      string
	Qty       string
	Detail    string
	CreatedAt time.Time
}

// AddSyncEvent records a synchronization action for a pair
func (db *DB) AddSyncEvent(event SyncEvent) error {
	_, err := db.Exec(`
		INSERT INTO sync_events (master, slave, event, symbol, side, qty, detail)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, event.Master, event.Slave, event.Event, event.Symbol, event.Side, event.Qty, event.Detail)

	return err
}

// GetRecentSyncEvents returns the latest events for a pair, newest first
func (db *DB) GetRecentSyncEvents(master, slave string, limit int) ([]SyncEvent, error) {
	rows, err := db.Query(`
		SELECT master, slave, event, symbol, side, qty, detail, created_at
		FROM sync_events
		WHERE master = $1 AND slave = $2
		ORDER BY created_at DESC
		LIMIT $3
	`, master, slave, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []SyncEvent
	for rows.Next() {
		var ev SyncEvent
		var symbol, side, qty, detail sql.NullString

		if err := rows.Scan(&ev.Master, &ev.Slave, &ev.Event, &symbol, &side, &qty, &detail, &ev.CreatedAt); err != nil {
			return nil, err
		}
		ev.Symbol = symbol.String
		ev.Side = side.String
		ev.Qty = qty.String
		ev.Detail = detail.String

		events = append(events, ev)
	}

	return events, rows.Err()
}
