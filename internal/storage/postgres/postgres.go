// internal/storage/postgres/postgres.go
package postgres

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/pumpwatch/internal/domain"
	"github.com/rovshanmuradov/pumpwatch/internal/storage"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const migrationLockID = 101

// Store is a PostgreSQL EventStore.
type Store struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

var _ storage.EventStore = (*Store)(nil)

// NewStore connects to dsn and verifies the connection.
func NewStore(ctx context.Context, dsn string, logger *zap.Logger) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	cfg.MaxConns = 10
	cfg.MaxConnLifetime = time.Hour

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &Store{pool: pool, logger: logger.Named("postgres")}, nil
}

// Migrate applies the embedded schema under an advisory lock.
func (s *Store) Migrate(ctx context.Context) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "SELECT pg_advisory_lock($1)", migrationLockID); err != nil {
		return fmt.Errorf("failed to acquire migration lock: %w", err)
	}
	defer func() {
		if _, err := conn.Exec(context.Background(), "SELECT pg_advisory_unlock($1)", migrationLockID); err != nil {
			s.logger.Warn("Failed to release migration lock", zap.Error(err))
		}
	}()

	files, err := fs.Glob(migrationsFS, "migrations/*.sql")
	if err != nil {
		return fmt.Errorf("list migrations: %w", err)
	}
	sort.Strings(files)

	for _, name := range files {
		sql, err := migrationsFS.ReadFile(name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		if _, err := conn.Exec(ctx, string(sql)); err != nil {
			return fmt.Errorf("failed to run migration %s: %w", name, err)
		}
		s.logger.Debug("Applied migration", zap.String("file", name))
	}
	return nil
}

func (s *Store) SaveToken(ctx context.Context, t domain.NewToken) error {
	if err := storage.Validate(t); err != nil {
		return err
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO tokens (mint, signature, slot, name, symbol, uri, bonding_curve, creator, ts)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (mint) DO NOTHING`,
		t.Mint, t.Signature, int64(t.Slot), t.Name, t.Symbol, t.URI, t.BondingCurve, t.Creator, t.Timestamp.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert token: %w", err)
	}
	return nil
}

func (s *Store) SaveTrade(ctx context.Context, t domain.Trade) error {
	if err := storage.Validate(t); err != nil {
		return err
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO trades (
			signature, mint, slot, side, trader, buyer, seller, price, base_amount, quote_amount,
			base_raw, quote_raw, virtual_sol_reserves, virtual_token_reserves, ts
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (signature) DO NOTHING`,
		t.Signature, t.Mint, int64(t.Slot), string(t.Side), t.Trader, t.Buyer, t.Seller,
		t.PriceInQuote, t.BaseAmount, t.QuoteAmount,
		int64(t.BaseRaw), int64(t.QuoteRaw), int64(t.VirtualSolReserves), int64(t.VirtualTokenReserves),
		t.Timestamp.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert trade: %w", err)
	}
	return nil
}

func (s *Store) RecentTokens(ctx context.Context, q storage.Query) ([]domain.NewToken, error) {
	q = q.Normalize()
	rows, err := s.pool.Query(ctx, `
		SELECT mint, signature, slot, name, symbol, uri, bonding_curve, creator, ts
		FROM tokens
		WHERE ts >= $1
		ORDER BY ts DESC, mint
		LIMIT $2`,
		since(q), q.Limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query recent tokens: %w", err)
	}
	defer rows.Close()

	out := make([]domain.NewToken, 0)
	for rows.Next() {
		var (
			t    domain.NewToken
			slot int64
		)
		if err := rows.Scan(&t.Mint, &t.Signature, &slot, &t.Name, &t.Symbol, &t.URI,
			&t.BondingCurve, &t.Creator, &t.Timestamp); err != nil {
			return nil, fmt.Errorf("scan token: %w", err)
		}
		t.Slot = uint64(slot)
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) RecentTrades(ctx context.Context, mint string, q storage.Query) ([]domain.Trade, error) {
	q = q.Normalize()

	const cols = `signature, mint, slot, side, trader, buyer, seller, price, base_amount, quote_amount,
		base_raw, quote_raw, virtual_sol_reserves, virtual_token_reserves, ts`
	var (
		rows pgx.Rows
		err  error
	)
	if mint == "" {
		rows, err = s.pool.Query(ctx, `SELECT `+cols+` FROM trades
			WHERE ts >= $1 ORDER BY ts DESC, signature LIMIT $2`, since(q), q.Limit)
	} else {
		rows, err = s.pool.Query(ctx, `SELECT `+cols+` FROM trades
			WHERE mint = $1 AND ts >= $2 ORDER BY ts DESC, signature LIMIT $3`, mint, since(q), q.Limit)
	}
	if err != nil {
		return nil, fmt.Errorf("query recent trades: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Trade, 0)
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func scanTrade(rows pgx.Rows) (domain.Trade, error) {
	var (
		t                                  domain.Trade
		side                               string
		slot, baseRaw, quoteRaw, vSol, vTk int64
	)
	err := rows.Scan(&t.Signature, &t.Mint, &slot, &side, &t.Trader, &t.Buyer, &t.Seller,
		&t.PriceInQuote, &t.BaseAmount, &t.QuoteAmount,
		&baseRaw, &quoteRaw, &vSol, &vTk, &t.Timestamp)
	if err != nil {
		return domain.Trade{}, fmt.Errorf("scan trade: %w", err)
	}
	t.Slot = uint64(slot)
	t.Side = domain.Side(side)
	t.BaseRaw, t.QuoteRaw = uint64(baseRaw), uint64(quoteRaw)
	t.VirtualSolReserves, t.VirtualTokenReserves = uint64(vSol), uint64(vTk)
	return t, nil
}

func (s *Store) Prune(ctx context.Context, before time.Time) (int64, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tokens, err := tx.Exec(ctx, `DELETE FROM tokens WHERE ts < $1`, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("prune tokens: %w", err)
	}
	trades, err := tx.Exec(ctx, `DELETE FROM trades WHERE ts < $1`, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("prune trades: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit tx: %w", err)
	}
	return tokens.RowsAffected() + trades.RowsAffected(), nil
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func since(q storage.Query) time.Time {
	if q.Since.IsZero() {
		return time.Unix(0, 0).UTC()
	}
	return q.Since.UTC()
}
