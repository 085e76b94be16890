//go:build integration

package containers

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"eventpay/migrations"
)

// serviceTables is every table the migrations create, children first.
var serviceTables = []string{"outbox", "registration_payments", "registrations"}

type Postgres struct {
	DSN string
	DB  *sql.DB
}

func startPostgres(ctx context.Context) (*Postgres, error) {
	container, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("eventpay_test"),
		postgres.WithUsername("eventpay"),
		postgres.WithPassword("eventpay"),
		postgres.BasicWaitStrategies(),
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = testcontainers.TerminateContainer(container)
		return nil, fmt.Errorf("postgres dsn: %w", err)
	}
	db, err := sql.Open("pgx", dsn)
	if err == nil {
		err = migrations.Up(ctx, db)
	}
	if err != nil {
		if db != nil {
			_ = db.Close()
		}
		_ = testcontainers.TerminateContainer(container)
		return nil, fmt.Errorf("postgres migrate: %w", err)
	}
	return &Postgres{DSN: dsn, DB: db}, nil
}

// Reset empties every service table so each test starts from a blank store.
func (p *Postgres) Reset(ctx context.Context) error {
	_, err := p.DB.ExecContext(ctx, "TRUNCATE TABLE "+strings.Join(serviceTables, ", ")+" CASCADE")
	return err
}
