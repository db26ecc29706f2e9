package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"tradewinds/internal/engine"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// Player and market snapshots are JSONB documents guarded by a version
// column; monetary columns on the logs are NUMERIC for exact precision.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a PostgreSQL-backed store and ensures the
// schema exists.
func NewPostgresStore(ctx context.Context, pool *pgxpool.Pool) (*PostgresStore, error) {
	s := &PostgresStore{pool: pool}
	if err := s.migrate(ctx); err != nil {
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	return s, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS players (
			id      TEXT PRIMARY KEY,
			version BIGINT NOT NULL DEFAULT 0,
			doc     JSONB NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS market (
			id      TEXT PRIMARY KEY,
			version BIGINT NOT NULL DEFAULT 0,
			doc     JSONB NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS trades (
			id         UUID PRIMARY KEY,
			player_id  TEXT NOT NULL,
			commodity  TEXT NOT NULL,
			action     TEXT NOT NULL,
			quantity   BIGINT NOT NULL,
			price      NUMERIC NOT NULL,
			fee        NUMERIC NOT NULL,
			day        INT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS trades_player_created_idx
			ON trades (player_id, created_at DESC)`,
		`CREATE TABLE IF NOT EXISTS events (
			id         UUID PRIMARY KEY,
			name       TEXT NOT NULL,
			descr      TEXT NOT NULL,
			targets    JSONB NOT NULL,
			effect     NUMERIC NOT NULL,
			scale      NUMERIC NOT NULL,
			day        INT NOT NULL,
			tick       INT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *PostgresStore) CreatePlayer(ctx context.Context, p *engine.Player) error {
	doc, err := json.Marshal(p)
	if err != nil {
		return err
	}
	ct, err := s.pool.Exec(ctx,
		`INSERT INTO players (id, version, doc) VALUES ($1, $2, $3)
		 ON CONFLICT (id) DO NOTHING`,
		p.ID, p.Version, doc)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("%w: player %s", ErrExists, p.ID)
	}
	return nil
}

func (s *PostgresStore) LoadPlayer(ctx context.Context, id string) (*engine.Player, error) {
	var version int64
	var doc []byte
	err := s.pool.QueryRow(ctx,
		`SELECT version, doc FROM players WHERE id = $1`, id).
		Scan(&version, &doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: player %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("load player %s: %w", id, err)
	}

	var p engine.Player
	if err := json.Unmarshal(doc, &p); err != nil {
		return nil, fmt.Errorf("decode player %s: %w", id, err)
	}
	p.Version = version
	return engine.MigratePlayer(&p), nil
}

func (s *PostgresStore) SavePlayer(ctx context.Context, p *engine.Player) error {
	doc, err := json.Marshal(p)
	if err != nil {
		return err
	}
	ct, err := s.pool.Exec(ctx,
		`UPDATE players SET version = version + 1, doc = $2
		 WHERE id = $1 AND version = $3`,
		p.ID, doc, p.Version)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("%w: player %s at v%d", ErrVersionConflict, p.ID, p.Version)
	}
	p.Version++
	return nil
}

func (s *PostgresStore) ListPlayers(ctx context.Context) ([]*engine.Player, error) {
	rows, err := s.pool.Query(ctx, `SELECT version, doc FROM players`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*engine.Player
	for rows.Next() {
		var version int64
		var doc []byte
		if err := rows.Scan(&version, &doc); err != nil {
			return nil, err
		}
		var p engine.Player
		if err := json.Unmarshal(doc, &p); err != nil {
			return nil, err
		}
		p.Version = version
		out = append(out, engine.MigratePlayer(&p))
	}
	return out, rows.Err()
}

func (s *PostgresStore) CreateMarket(ctx context.Context, ms *engine.MarketState) error {
	doc, err := json.Marshal(ms)
	if err != nil {
		return err
	}
	ct, err := s.pool.Exec(ctx,
		`INSERT INTO market (id, version, doc) VALUES ($1, $2, $3)
		 ON CONFLICT (id) DO NOTHING`,
		MarketID, ms.Version, doc)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("%w: market", ErrExists)
	}
	return nil
}

func (s *PostgresStore) LoadMarket(ctx context.Context) (*engine.MarketState, error) {
	var version int64
	var doc []byte
	err := s.pool.QueryRow(ctx,
		`SELECT version, doc FROM market WHERE id = $1`, MarketID).
		Scan(&version, &doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: market", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load market: %w", err)
	}

	var ms engine.MarketState
	if err := json.Unmarshal(doc, &ms); err != nil {
		return nil, fmt.Errorf("decode market: %w", err)
	}
	ms.Version = version
	return &ms, nil
}

func (s *PostgresStore) SaveMarket(ctx context.Context, ms *engine.MarketState) error {
	doc, err := json.Marshal(ms)
	if err != nil {
		return err
	}
	ct, err := s.pool.Exec(ctx,
		`UPDATE market SET version = version + 1, doc = $2
		 WHERE id = $1 AND version = $3`,
		MarketID, doc, ms.Version)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("%w: market at v%d", ErrVersionConflict, ms.Version)
	}
	ms.Version++
	return nil
}

func (s *PostgresStore) SaveMarketAndPlayer(ctx context.Context, ms *engine.MarketState, p *engine.Player) error {
	msDoc, err := json.Marshal(ms)
	if err != nil {
		return err
	}
	pDoc, err := json.Marshal(p)
	if err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	ct, err := tx.Exec(ctx,
		`UPDATE market SET version = version + 1, doc = $2
		 WHERE id = $1 AND version = $3`,
		MarketID, msDoc, ms.Version)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("%w: market at v%d", ErrVersionConflict, ms.Version)
	}

	ct, err = tx.Exec(ctx,
		`UPDATE players SET version = version + 1, doc = $2
		 WHERE id = $1 AND version = $3`,
		p.ID, pDoc, p.Version)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("%w: player %s at v%d", ErrVersionConflict, p.ID, p.Version)
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}
	ms.Version++
	p.Version++
	return nil
}

func (s *PostgresStore) AppendTrade(ctx context.Context, t *TradeRecord) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO trades (id, player_id, commodity, action, quantity, price, fee, day, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6::NUMERIC, $7::NUMERIC, $8, $9)`,
		t.ID, t.PlayerID, t.Commodity, string(t.Action), t.Quantity,
		decimal.NewFromFloat(t.Price).String(),
		decimal.NewFromFloat(t.Fee).String(),
		t.Day, t.CreatedAt)
	return err
}

func (s *PostgresStore) ListTrades(ctx context.Context, playerID string, limit int) ([]TradeRecord, error) {
	q := `SELECT id, player_id, commodity, action, quantity,
	             price::TEXT, fee::TEXT, day, created_at
	      FROM trades`
	args := []any{limit}
	if playerID != "" {
		q += ` WHERE player_id = $2`
		args = append(args, playerID)
	}
	q += ` ORDER BY created_at DESC LIMIT $1`

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TradeRecord
	for rows.Next() {
		var t TradeRecord
		var action, priceS, feeS string
		if err := rows.Scan(&t.ID, &t.PlayerID, &t.Commodity, &action,
			&t.Quantity, &priceS, &feeS, &t.Day, &t.CreatedAt); err != nil {
			return nil, err
		}
		t.Action = engine.TradeAction(action)
		if d, err := decimal.NewFromString(priceS); err == nil {
			t.Price, _ = d.Float64()
		}
		if d, err := decimal.NewFromString(feeS); err == nil {
			t.Fee, _ = d.Float64()
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *PostgresStore) AppendEvent(ctx context.Context, e *EventRecord) error {
	targets, err := json.Marshal(e.Targets)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO events (id, name, descr, targets, effect, scale, day, tick, created_at)
		 VALUES ($1, $2, $3, $4, $5::NUMERIC, $6::NUMERIC, $7, $8, $9)`,
		e.ID, e.Name, e.Desc, targets,
		decimal.NewFromFloat(e.Effect).String(),
		decimal.NewFromFloat(e.Scale).String(),
		e.Day, e.Tick, e.CreatedAt)
	return err
}

func (s *PostgresStore) ListEvents(ctx context.Context, limit int) ([]EventRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, descr, targets, effect::TEXT, scale::TEXT, day, tick, created_at
		 FROM events ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EventRecord
	for rows.Next() {
		var e EventRecord
		var targets []byte
		var effectS, scaleS string
		if err := rows.Scan(&e.ID, &e.Name, &e.Desc, &targets,
			&effectS, &scaleS, &e.Day, &e.Tick, &e.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(targets, &e.Targets); err != nil {
			return nil, err
		}
		if d, err := decimal.NewFromString(effectS); err == nil {
			e.Effect, _ = d.Float64()
		}
		if d, err := decimal.NewFromString(scaleS); err == nil {
			e.Scale, _ = d.Float64()
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
