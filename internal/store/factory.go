package store

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"docbase/internal/config"
	"docbase/internal/kberrors"
)

// New constructs the Store backend selected by cfg.Backend.
func New(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch cfg.Backend {
	case "", "memory":
		return NewMemory(), nil
	case "postgres":
		pool, err := pgxpool.New(ctx, cfg.ConnectionString)
		if err != nil {
			return nil, kberrors.NewStorage("failed to connect to postgres", true, err)
		}
		return NewPostgres(ctx, pool)
	case "qdrant":
		return NewQdrant(ctx, cfg.QdrantAddr, cfg.Collection, cfg.Dimension)
	default:
		return nil, kberrors.NewValidation("unknown store backend %q", cfg.Backend)
	}
}
