package state

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/josepita/shopify-sync/internal/db"
)

type FactoryConfig struct {
	Backend  string // memory | mysql
	MySQLDSN string
}

type FactoryResult struct {
	Store Store
	DB    *sql.DB // nil for the memory backend
}

func NewStore(ctx context.Context, cfg FactoryConfig) (FactoryResult, error) {
	switch cfg.Backend {
	case "", "memory":
		return FactoryResult{Store: NewMemoryStore()}, nil

	case "mysql":
		if cfg.MySQLDSN == "" {
			return FactoryResult{}, fmt.Errorf("mysql backend requires a DSN")
		}
		conn, err := db.Open(db.Config{DSN: cfg.MySQLDSN})
		if err != nil {
			return FactoryResult{}, fmt.Errorf("open mysql: %w", err)
		}
		if err := db.Ping(ctx, conn); err != nil {
			return FactoryResult{}, fmt.Errorf("ping mysql: %w", err)
		}
		return FactoryResult{Store: NewMySQLStore(conn), DB: conn}, nil

	default:
		return FactoryResult{}, fmt.Errorf("unknown state backend %q", cfg.Backend)
	}
}
