package migrations

import (
	"context"
	"fmt"
	"io/fs"

	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/sirupsen/logrus"

	"defi-risk-lab/internal/storage/postgres"
)

// RunPostgresMigrations applies pending embedded migrations with goose.
// Applied versions are tracked in goose_db_version, so reruns are no-ops.
func RunPostgresMigrations(ctx context.Context, pool *postgres.Pool, logger logrus.FieldLogger) error {
	sub, err := fs.Sub(PostgresFS, "postgres")
	if err != nil {
		return fmt.Errorf("read embedded postgres migrations: %w", err)
	}

	db := stdlib.OpenDBFromPool(pool.Pool)
	defer db.Close()

	provider, err := goose.NewProvider(goose.DialectPostgres, db, sub)
	if err != nil {
		return fmt.Errorf("create migration provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("apply postgres migrations: %w", err)
	}

	for _, r := range results {
		if logger != nil {
			logger.WithFields(logrus.Fields{
				"version":  r.Source.Version,
				"file":     r.Source.Path,
				"duration": r.Duration.String(),
			}).Info("applied postgres migration")
		}
	}
	return nil
}
