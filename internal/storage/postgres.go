package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mirko1075/in-one-button-be/internal/config"
	"github.com/mirko1075/in-one-button-be/internal/core"
	"github.com/mirko1075/in-one-button-be/internal/domain"
)

// Store backs transcript persistence and session ownership lookups with
// postgres. It implements core.TranscriptStore and core.OwnershipLookup.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, cfg config.DatabaseConfig) (*Store, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = int32(cfg.MaxConns)
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = int32(cfg.MinConns)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Store{pool: pool}, nil
}

func (s *Store) Persist(ctx context.Context, id domain.SessionID, transcript string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO transcripts (session_id, transcript, created_at)
		VALUES ($1, $2, now())
		ON CONFLICT (session_id)
		DO UPDATE SET transcript = EXCLUDED.transcript, created_at = now()`,
		string(id), transcript)
	if err != nil {
		return fmt.Errorf("persist transcript: %w", err)
	}
	return nil
}

func (s *Store) OwnerOf(ctx context.Context, id domain.SessionID) (domain.Identity, error) {
	var owner string
	err := s.pool.QueryRow(ctx,
		`SELECT owner_identity FROM recordings WHERE id = $1`,
		string(id)).Scan(&owner)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", core.ErrOwnerNotFound
	}
	if err != nil {
		return "", fmt.Errorf("lookup session owner: %w", err)
	}
	return domain.Identity(owner), nil
}

func (s *Store) Close() {
	s.pool.Close()
}
