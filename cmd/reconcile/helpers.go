package main

import (
	"context"
	"fmt"

	"github.com/quillbooks/reconcile/internal/config"
	"github.com/quillbooks/reconcile/internal/engine"
	"github.com/quillbooks/reconcile/internal/match"
	"github.com/quillbooks/reconcile/internal/service"
	"github.com/quillbooks/reconcile/internal/storage"
	"github.com/spf13/viper"
)

// initStorage opens the ledger database and brings the schema up to date.
func initStorage(ctx context.Context) (service.Storage, error) {
	dbPath := viper.GetString("database.path")
	if dbPath == "" {
		dbPath = config.DefaultDatabasePath()
	}
	dbPath = config.ExpandPath(dbPath)

	store, err := storage.NewSQLiteStorage(dbPath)
	if err != nil {
		return nil, err
	}

	if err := store.Migrate(ctx); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, nil
}

// initEngine wires storage and the matching configuration into an engine.
func initEngine(ctx context.Context) (*engine.MatchEngine, service.Storage, error) {
	store, err := initStorage(ctx)
	if err != nil {
		return nil, nil, err
	}

	cfg, err := match.FromViper(viper.GetViper())
	if err != nil {
		_ = store.Close()
		return nil, nil, err
	}

	eng, err := engine.New(store, cfg)
	if err != nil {
		_ = store.Close()
		return nil, nil, err
	}
	return eng, store, nil
}
