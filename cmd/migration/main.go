package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/golang-migrate/migrate/v4"
	migratepostgres "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/joho/godotenv/autoload"
	"github.com/luikyv/franchise-checkout/cmd/cmdutil"
	"gorm.io/gorm"
)

var (
	Env                = cmdutil.EnvValue("ENV", cmdutil.LocalEnvironment)
	AWSEndpoint        = cmdutil.EnvValue("AWS_ENDPOINT_URL", "http://localhost:4566")
	DBSecretName       = cmdutil.EnvValue("DB_SECRET_NAME", "checkout/db-credentials")
	DBConnectionString = cmdutil.EnvValue("DB_CONNECTION_STRING", "")
	MigrationsPath     = cmdutil.EnvValue("MIGRATIONS_PATH", "file://db/migrations")
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	slog.SetDefault(cmdutil.Logger())
	slog.Info("setting up db migration and seeding", "env", Env)

	db, err := database(ctx)
	if err != nil {
		slog.Error("failed connecting to database", "error", err)
		os.Exit(1)
	}

	slog.Info("running database migrations")
	if err := runMigrations(db, MigrationsPath); err != nil {
		slog.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	if !Env.IsLocal() {
		return
	}

	slog.Info("seeding database")
	if err := seedDatabase(ctx, db); err != nil {
		slog.Error("failed to seed database", "error", err)
		os.Exit(1)
	}
	slog.Info("database seeding completed successfully")
}

func database(ctx context.Context) (*gorm.DB, error) {
	if DBConnectionString != "" {
		return cmdutil.DB(DBConnectionString)
	}

	awsConfig, err := cmdutil.AWSConfig(ctx, Env, AWSEndpoint)
	if err != nil {
		return nil, err
	}
	dsn, err := cmdutil.DSNFromSecret(ctx, secretsmanager.NewFromConfig(*awsConfig), DBSecretName)
	if err != nil {
		return nil, err
	}
	return cmdutil.DB(dsn)
}

func runMigrations(db *gorm.DB, migrationsPath string) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	driver, err := migratepostgres.WithInstance(sqlDB, &migratepostgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create postgres driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(migrationsPath, "postgres", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			slog.Info("no migrations to run")
			return nil
		}
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	slog.Info("migrations completed successfully")
	return nil
}
