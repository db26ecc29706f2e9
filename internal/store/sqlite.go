package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"tradewinds/internal/engine"
)

// SQLiteStore implements Store on a single SQLite file, for single-node
// deploys and local play. Snapshots are JSON documents with a version
// column, same contract as the PostgreSQL store.
type SQLiteStore struct {
	db *sqlx.DB
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS players (
	id      TEXT PRIMARY KEY,
	version INTEGER NOT NULL DEFAULT 0,
	doc     TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS market (
	id      TEXT PRIMARY KEY,
	version INTEGER NOT NULL DEFAULT 0,
	doc     TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS trades (
	id         TEXT PRIMARY KEY,
	player_id  TEXT NOT NULL,
	commodity  TEXT NOT NULL,
	action     TEXT NOT NULL,
	quantity   INTEGER NOT NULL,
	price      REAL NOT NULL,
	fee        REAL NOT NULL,
	day        INTEGER NOT NULL,
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS trades_player_created_idx
	ON trades (player_id, created_at DESC);
CREATE TABLE IF NOT EXISTS events (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	descr      TEXT NOT NULL,
	targets    TEXT NOT NULL,
	effect     REAL NOT NULL,
	scale      REAL NOT NULL,
	day        INTEGER NOT NULL,
	tick       INTEGER NOT NULL,
	created_at TIMESTAMP NOT NULL
);
`

// NewSQLiteStore opens (or creates) the database file and ensures the
// schema exists. WAL keeps the worker's tick writes from blocking API
// reads.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate sqlite schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) CreatePlayer(ctx context.Context, p *engine.Player) error {
	doc, err := json.Marshal(p)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO players (id, version, doc) VALUES (?, ?, ?)`,
		p.ID, p.Version, string(doc))
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: player %s", ErrExists, p.ID)
	}
	return nil
}

func (s *SQLiteStore) LoadPlayer(ctx context.Context, id string) (*engine.Player, error) {
	var row struct {
		Version int64  `db:"version"`
		Doc     string `db:"doc"`
	}
	err := s.db.GetContext(ctx, &row,
		`SELECT version, doc FROM players WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: player %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("load player %s: %w", id, err)
	}

	var p engine.Player
	if err := json.Unmarshal([]byte(row.Doc), &p); err != nil {
		return nil, fmt.Errorf("decode player %s: %w", id, err)
	}
	p.Version = row.Version
	return engine.MigratePlayer(&p), nil
}

func (s *SQLiteStore) SavePlayer(ctx context.Context, p *engine.Player) error {
	doc, err := json.Marshal(p)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE players SET version = version + 1, doc = ?
		 WHERE id = ? AND version = ?`,
		string(doc), p.ID, p.Version)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: player %s at v%d", ErrVersionConflict, p.ID, p.Version)
	}
	p.Version++
	return nil
}

func (s *SQLiteStore) ListPlayers(ctx context.Context) ([]*engine.Player, error) {
	var rows []struct {
		Version int64  `db:"version"`
		Doc     string `db:"doc"`
	}
	if err := s.db.SelectContext(ctx, &rows, `SELECT version, doc FROM players`); err != nil {
		return nil, err
	}

	out := make([]*engine.Player, 0, len(rows))
	for _, row := range rows {
		var p engine.Player
		if err := json.Unmarshal([]byte(row.Doc), &p); err != nil {
			return nil, err
		}
		p.Version = row.Version
		out = append(out, engine.MigratePlayer(&p))
	}
	return out, nil
}

func (s *SQLiteStore) CreateMarket(ctx context.Context, ms *engine.MarketState) error {
	doc, err := json.Marshal(ms)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO market (id, version, doc) VALUES (?, ?, ?)`,
		MarketID, ms.Version, string(doc))
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: market", ErrExists)
	}
	return nil
}

func (s *SQLiteStore) LoadMarket(ctx context.Context) (*engine.MarketState, error) {
	var row struct {
		Version int64  `db:"version"`
		Doc     string `db:"doc"`
	}
	err := s.db.GetContext(ctx, &row,
		`SELECT version, doc FROM market WHERE id = ?`, MarketID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: market", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load market: %w", err)
	}

	var ms engine.MarketState
	if err := json.Unmarshal([]byte(row.Doc), &ms); err != nil {
		return nil, fmt.Errorf("decode market: %w", err)
	}
	ms.Version = row.Version
	return &ms, nil
}

func (s *SQLiteStore) SaveMarket(ctx context.Context, ms *engine.MarketState) error {
	doc, err := json.Marshal(ms)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE market SET version = version + 1, doc = ?
		 WHERE id = ? AND version = ?`,
		string(doc), MarketID, ms.Version)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: market at v%d", ErrVersionConflict, ms.Version)
	}
	ms.Version++
	return nil
}

func (s *SQLiteStore) SaveMarketAndPlayer(ctx context.Context, ms *engine.MarketState, p *engine.Player) error {
	msDoc, err := json.Marshal(ms)
	if err != nil {
		return err
	}
	pDoc, err := json.Marshal(p)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE market SET version = version + 1, doc = ?
		 WHERE id = ? AND version = ?`,
		string(msDoc), MarketID, ms.Version)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: market at v%d", ErrVersionConflict, ms.Version)
	}

	res, err = tx.ExecContext(ctx,
		`UPDATE players SET version = version + 1, doc = ?
		 WHERE id = ? AND version = ?`,
		string(pDoc), p.ID, p.Version)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: player %s at v%d", ErrVersionConflict, p.ID, p.Version)
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	ms.Version++
	p.Version++
	return nil
}

func (s *SQLiteStore) AppendTrade(ctx context.Context, t *TradeRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO trades (id, player_id, commodity, action, quantity, price, fee, day, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.PlayerID, t.Commodity, string(t.Action), t.Quantity,
		t.Price, t.Fee, t.Day, t.CreatedAt)
	return err
}

func (s *SQLiteStore) ListTrades(ctx context.Context, playerID string, limit int) ([]TradeRecord, error) {
	q := `SELECT id, player_id, commodity, action, quantity, price, fee, day, created_at
	      FROM trades`
	var args []any
	if playerID != "" {
		q += ` WHERE player_id = ?`
		args = append(args, playerID)
	}
	q += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TradeRecord
	for rows.Next() {
		var t TradeRecord
		var action string
		if err := rows.Scan(&t.ID, &t.PlayerID, &t.Commodity, &action,
			&t.Quantity, &t.Price, &t.Fee, &t.Day, &t.CreatedAt); err != nil {
			return nil, err
		}
		t.Action = engine.TradeAction(action)
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) AppendEvent(ctx context.Context, e *EventRecord) error {
	targets, err := json.Marshal(e.Targets)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO events (id, name, descr, targets, effect, scale, day, tick, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Name, e.Desc, string(targets), e.Effect, e.Scale,
		e.Day, e.Tick, e.CreatedAt)
	return err
}

func (s *SQLiteStore) ListEvents(ctx context.Context, limit int) ([]EventRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, descr, targets, effect, scale, day, tick, created_at
		 FROM events ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EventRecord
	for rows.Next() {
		var e EventRecord
		var targets string
		if err := rows.Scan(&e.ID, &e.Name, &e.Desc, &targets,
			&e.Effect, &e.Scale, &e.Day, &e.Tick, &e.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(targets), &e.Targets); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
