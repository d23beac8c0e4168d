package main

import (
	"context"
	"database/sql"
	"flag"
	"os"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"

	"github.com/XOOChatx/Chat-X/internal/migrations"
	"github.com/XOOChatx/Chat-X/internal/security"
)

func main() {
	dbPath := flag.String("db", "./chatx.db", "Path to the database file")
	dryRun := flag.Bool("dry-run", false, "List pending migrations without applying them")
	flag.Parse()

	logger := logrus.New()

	if err := security.ValidateDatabasePath(*dbPath); err != nil {
		logger.Fatalf("Invalid database path: %v", err)
	}
	if _, err := os.Stat(*dbPath); os.IsNotExist(err) {
		logger.Fatalf("Database file not found: %s", *dbPath)
	}

	db, err := sql.Open("sqlite3", "file:"+*dbPath+"?_busy_timeout=5000")
	if err != nil {
		logger.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	if *dryRun {
		pending, err := pendingMigrations(ctx, db)
		if err != nil {
			logger.Fatalf("Failed to check migration status: %v", err)
		}
		if len(pending) == 0 {
			logger.Info("Schema is up to date")
			return
		}
		for _, m := range pending {
			logger.WithField("version", m.Version).Infof("Pending migration %s", m.Name)
		}
		return
	}

	before, err := currentVersion(ctx, db)
	if err != nil {
		logger.Fatalf("Failed to check migration status: %v", err)
	}
	after, err := migrations.Apply(ctx, db)
	if err != nil {
		logger.Fatalf("Failed to apply migrations: %v", err)
	}

	logger.WithFields(logrus.Fields{
		"from_version": before,
		"to_version":   after,
	}).Info("Database schema updated. You can now restart Chat-X.")
}

// currentVersion tolerates databases that predate schema_migrations
func currentVersion(ctx context.Context, db *sql.DB) (int, error) {
	var exists int
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'schema_migrations'`).Scan(&exists)
	if err != nil || exists == 0 {
		return 0, err
	}
	return migrations.CurrentVersion(ctx, db)
}

func pendingMigrations(ctx context.Context, db *sql.DB) ([]migrations.Migration, error) {
	current, err := currentVersion(ctx, db)
	if err != nil {
		return nil, err
	}
	all, err := migrations.Load()
	if err != nil {
		return nil, err
	}
	var pending []migrations.Migration
	for _, m := range all {
		if m.Version > current {
			pending = append(pending, m)
		}
	}
	return pending, nil
}
