package relational

import (
	"context"
	"io"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ajitpratap0/edgesql/pkg/config"
	"github.com/ajitpratap0/edgesql/pkg/errors"
	"github.com/ajitpratap0/edgesql/pkg/source"
)

func openPostgres(ctx context.Context, dsn string, cfg *config.Config, tableName, query string) (*table, error) {
	pc, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to parse connection string")
	}
	// one connection streams the rows, one answers metadata
	pc.MaxConns = 2
	pc.MinConns = 0
	if cfg.Timeouts.Idle > 0 {
		pc.MaxConnIdleTime = cfg.Timeouts.Idle
	}
	if cfg.Timeouts.KeepAlive > 0 {
		pc.HealthCheckPeriod = cfg.Timeouts.KeepAlive
	}
	if cfg.Timeouts.Connection > 0 {
		pc.ConnConfig.ConnectTimeout = cfg.Timeouts.Connection
	}

	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, err
	}

	info, err := informationSchema(ctx, pool, tableName)
	if err != nil {
		pool.Close()
		return nil, err
	}

	rows, err := pool.Query(ctx, query)
	if err != nil {
		pool.Close()
		return nil, err
	}

	typeMap := pgtype.NewMap()
	fields := rows.FieldDescriptions()
	t := &table{
		names:   make([]string, len(fields)),
		columns: make([]column, len(fields)),
	}
	for i, fd := range fields {
		c, ok := info[fd.Name]
		if !ok {
			c = column{name: fd.Name, nullable: true}
			if pt, found := typeMap.TypeForOID(fd.DataTypeOID); found {
				c.dbType = pt.Name
			}
		}
		t.names[i] = fd.Name
		t.columns[i] = c
	}
	t.rows = &pgSequence{rows: rows, pool: pool}
	return t, nil
}

// informationSchema loads declared types keyed by column name. A missing
// entry leaves the column to the wire type.
func informationSchema(ctx context.Context, pool *pgxpool.Pool, tableName string) (map[string]column, error) {
	schemaName, name := "public", tableName
	if before, after, ok := strings.Cut(tableName, "."); ok {
		schemaName, name = before, after
	}

	rows, err := pool.Query(ctx, `
		SELECT column_name, data_type, is_nullable
		FROM information_schema.columns
		WHERE table_schema = $1 AND table_name = $2
		ORDER BY ordinal_position`, schemaName, name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]column)
	for rows.Next() {
		var c column
		var nullable string
		if err := rows.Scan(&c.name, &c.dbType, &nullable); err != nil {
			return nil, err
		}
		c.nullable = nullable == "YES"
		out[c.name] = c
	}
	return out, rows.Err()
}

type pgSequence struct {
	rows pgx.Rows
	pool *pgxpool.Pool
}

func (s *pgSequence) Next(ctx context.Context) (source.Row, error) {
	if !s.rows.Next() {
		if err := s.rows.Err(); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeSourceUnavailable, "failed to read postgres row")
		}
		return nil, io.EOF
	}
	values, err := s.rows.Values()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeSourceUnavailable, "failed to decode postgres row")
	}
	row := make(source.Row, len(values))
	for i, v := range values {
		row[i] = pgValue(v)
	}
	return row, nil
}

func (s *pgSequence) Close() error {
	s.rows.Close()
	s.pool.Close()
	return nil
}
