package migrations

import (
	"context"
	"fmt"
	"io/fs"
	"regexp"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/pressly/goose/v3"
	"github.com/sirupsen/logrus"
)

var databaseName = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// RunClickhouseMigrations creates the database named in dsn if needed and applies
// pending embedded migrations with goose. Applied versions are tracked in
// goose_db_version inside that database.
func RunClickhouseMigrations(ctx context.Context, dsn string, logger logrus.FieldLogger) error {
	opts, err := clickhouse.ParseDSN(dsn)
	if err != nil {
		return fmt.Errorf("parse clickhouse dsn: %w", err)
	}
	dbName := opts.Auth.Database
	if err := validateDatabaseName(dbName); err != nil {
		return err
	}

	if err := ensureDatabase(ctx, *opts, dbName); err != nil {
		return err
	}

	sub, err := fs.Sub(ClickhouseFS, "clickhouse")
	if err != nil {
		return fmt.Errorf("read embedded clickhouse migrations: %w", err)
	}

	db := clickhouse.OpenDB(opts)
	defer db.Close()

	provider, err := goose.NewProvider(goose.DialectClickHouse, db, sub)
	if err != nil {
		return fmt.Errorf("create migration provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("apply clickhouse migrations: %w", err)
	}

	for _, r := range results {
		if logger != nil {
			logger.WithFields(logrus.Fields{
				"version":  r.Source.Version,
				"file":     r.Source.Path,
				"duration": r.Duration.String(),
			}).Info("applied clickhouse migration")
		}
	}
	return nil
}

// ensureDatabase connects to the server default database to create dbName.
func ensureDatabase(ctx context.Context, opts clickhouse.Options, dbName string) error {
	opts.Auth.Database = ""
	admin := clickhouse.OpenDB(&opts)
	defer admin.Close()

	if _, err := admin.ExecContext(ctx, createDatabaseSQL(dbName)); err != nil {
		return fmt.Errorf("create database %s: %w", dbName, err)
	}
	return nil
}

func createDatabaseSQL(dbName string) string {
	return fmt.Sprintf("CREATE DATABASE IF NOT EXISTS `%s`", dbName)
}

func validateDatabaseName(name string) error {
	if name == "" {
		return fmt.Errorf("clickhouse dsn missing database")
	}
	if !databaseName.MatchString(name) {
		return fmt.Errorf("invalid clickhouse database name %q", name)
	}
	return nil
}

