package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/GetStream/party-engagement/engagement"
	"github.com/GetStream/party-engagement/feed"
	"github.com/GetStream/party-engagement/party"
	"github.com/GetStream/party-engagement/status"
	"github.com/GetStream/party-engagement/votes"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
)

var (
	_ votes.Store              = (*Postgres)(nil)
	_ status.Store             = (*Postgres)(nil)
	_ feed.Store               = (*Postgres)(nil)
	_ engagement.ReactionStore = (*Postgres)(nil)
	_ engagement.CountSource   = (*Postgres)(nil)
	_ engagement.Loader        = (*Postgres)(nil)
)

// Postgres provides storage in PostgreSQL.
type Postgres struct {
	bun *bun.DB
}

// Connect connects to the database and ping the DB to ensure the connection is
// working.
func Connect(ctx context.Context, connStr string) (*Postgres, error) {
	sqlDB := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(connStr)))
	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	db := bun.NewDB(sqlDB, pgdialect.New())
	return &Postgres{
		bun: db,
	}, nil
}

// Close closes the database connection pool.
func (pg *Postgres) Close() error {
	return pg.bun.Close()
}

// CreateSchema creates the tables used by the store if they do not exist.
func (pg *Postgres) CreateSchema(ctx context.Context) error {
	models := []any{
		(*subject)(nil),
		(*vote)(nil),
		(*statusUpdate)(nil),
		(*feedItem)(nil),
		(*reaction)(nil),
		(*guest)(nil),
	}
	for _, m := range models {
		if _, err := pg.bun.NewCreateTable().Model(m).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}

	indexes := []struct {
		model   any
		name    string
		columns []string
	}{
		{(*subject)(nil), "subjects_party_idx", []string{"party_id", "group_id"}},
		{(*feedItem)(nil), "feed_items_page_idx", []string{"party_id", "timestamp DESC", "id DESC"}},
	}
	for _, ix := range indexes {
		q := pg.bun.NewCreateIndex().Model(ix.model).Index(ix.name).IfNotExists()
		for _, c := range ix.columns {
			q = q.ColumnExpr(c)
		}
		if _, err := q.Exec(ctx); err != nil {
			return fmt.Errorf("create index %s: %w", ix.name, err)
		}
	}
	return nil
}

// uniqueViolation is the SQLSTATE of unique constraint violations.
const uniqueViolation = "23505"

func conflictError(err error) error {
	var pgErr pgdriver.Error
	if errors.As(err, &pgErr) && pgErr.Field('C') == uniqueViolation {
		return fmt.Errorf("%s: %w", pgErr.Field('M'), party.ErrConflict)
	}
	return err
}
