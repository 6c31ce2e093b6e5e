// Package surrealstore provides a SurrealDB-backed raw-snapshot store.
package surrealstore

import (
	"context"
	"fmt"

	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"

	"github.com/bobmcallan/ledgerd/internal/common"
	"github.com/bobmcallan/ledgerd/internal/models"
)

const rawTable = "raw_snapshot"

// RawStore persists verbatim provider payloads in SurrealDB. It is the
// optional backend behind storage.raw.backend = "surrealdb".
type RawStore struct {
	db     *surrealdb.DB
	logger *common.Logger
}

// NewRawStore connects, signs in and ensures the snapshot table exists.
func NewRawStore(logger *common.Logger, config *common.SurrealDBConfig) (*RawStore, error) {
	ctx := context.Background()

	db, err := surrealdb.New(config.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to SurrealDB: %w", err)
	}

	if _, err := db.SignIn(ctx, map[string]interface{}{
		"user": config.Username,
		"pass": config.Password,
	}); err != nil {
		return nil, fmt.Errorf("failed to sign in to SurrealDB: %w", err)
	}

	if err := db.Use(ctx, config.Namespace, config.Database); err != nil {
		return nil, fmt.Errorf("failed to select namespace/database: %w", err)
	}

	sql := fmt.Sprintf("DEFINE TABLE IF NOT EXISTS %s SCHEMALESS", rawTable)
	if _, err := surrealdb.Query[any](ctx, db, sql, nil); err != nil {
		return nil, fmt.Errorf("failed to define table %s: %w", rawTable, err)
	}

	return &RawStore{db: db, logger: logger}, nil
}

func (s *RawStore) Put(ctx context.Context, snapshot *models.RawSnapshot) error {
	rid := surrealmodels.NewRecordID(rawTable, snapshot.ConnectionID+"_"+snapshot.SyncID)
	sql := "UPSERT $rid CONTENT $snapshot"
	vars := map[string]any{"rid": rid, "snapshot": snapshot}

	var lastErr error
	for attempt := 1; attempt <= 3; attempt++ {
		_, err := surrealdb.Query[[]models.RawSnapshot](ctx, s.db, sql, vars)
		if err == nil {
			return nil
		}
		lastErr = err
	}
	return fmt.Errorf("failed to put raw snapshot after retries: %w", lastErr)
}

func (s *RawStore) List(ctx context.Context, connectionID string) ([]*models.RawSnapshot, error) {
	sql := fmt.Sprintf("SELECT * FROM %s WHERE connection_id = $connection ORDER BY fetched_at ASC", rawTable)
	vars := map[string]any{"connection": connectionID}

	res, err := surrealdb.Query[[]models.RawSnapshot](ctx, s.db, sql, vars)
	if err != nil {
		return nil, fmt.Errorf("failed to list raw snapshots: %w", err)
	}

	var snapshots []*models.RawSnapshot
	if res != nil {
		for _, result := range *res {
			for i := range result.Result {
				snap := result.Result[i]
				snapshots = append(snapshots, &snap)
			}
		}
	}
	return snapshots, nil
}

func (s *RawStore) Close() error {
	if s.db != nil {
		return s.db.Close(context.Background())
	}
	return nil
}
