package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/opentelemetry-go-extra/otelsql"
	"go.opentelemetry.io/otel/attribute"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver
)

// Config is only required when the postgres audit sink is enabled.
type Config struct {
	DSN             string        `envconfig:"DB_DSN" yaml:"dsn"`
	MaxOpenConns    int           `envconfig:"DB_MAX_OPEN_CONNS" default:"25" yaml:"max_open_conns" validate:"gte=0"`
	MaxIdleConns    int           `envconfig:"DB_MAX_IDLE_CONNS" default:"5" yaml:"max_idle_conns" validate:"gte=0"`
	ConnMaxLifetime time.Duration `envconfig:"DB_CONN_MAX_LIFETIME" default:"15m" yaml:"conn_max_lifetime"`
	// MigrateOnStart creates the audit tables on startup.
	MigrateOnStart bool `envconfig:"DB_MIGRATE_ON_START" default:"true" yaml:"migrate_on_start"`
}

var ErrNoDSN = errors.New("database: DB_DSN is not set")

// NewPostgres opens an otelsql-instrumented pgx pool and pings it.
func NewPostgres(ctx context.Context, cfg Config, serviceName string) (*sql.DB, error) {
	if cfg.DSN == "" {
		return nil, ErrNoDSN
	}

	db, err := otelsql.Open("pgx", cfg.DSN,
		otelsql.WithAttributes(attribute.String("service.name", serviceName)),
		otelsql.WithDBName("postgres"),
	)
	if err != nil {
		return nil, fmt.Errorf("database: failed to open connection: %w", err)
	}
	otelsql.ReportDBStatsMetrics(db)

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("database: failed to ping database: %w", err)
	}

	return db, nil
}
