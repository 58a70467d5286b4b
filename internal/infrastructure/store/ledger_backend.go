package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/example/ec-stock-reservation/internal/config"
	"github.com/example/ec-stock-reservation/internal/domain/ledger"
	"github.com/jmoiron/sqlx"
)

// NewLedgerStore builds the ledger store selected by LEDGER_BACKEND. db is
// only used by the Postgres backend and may be nil otherwise.
func NewLedgerStore(ctx context.Context, cfg *config.Config, db *sqlx.DB) (ledger.Store, error) {
	switch cfg.Ledger.Backend {
	case config.LedgerBackendDynamoDB:
		client, err := NewDynamoClient(ctx, cfg.Dynamo)
		if err != nil {
			return nil, err
		}
		return NewDynamoLedgerStore(client, cfg.Dynamo.LedgerTable, cfg.Dynamo.AppliedTable), nil
	case config.LedgerBackendPostgres:
		if db == nil {
			return nil, errors.New("postgres ledger backend requires a database connection")
		}
		return NewPostgresLedgerStore(db), nil
	default:
		return nil, fmt.Errorf("unknown ledger backend %q", cfg.Ledger.Backend)
	}
}
