package relational

import (
	"context"
	"database/sql"
	"io"

	_ "modernc.org/sqlite"

	"github.com/ajitpratap0/edgesql/pkg/errors"
	"github.com/ajitpratap0/edgesql/pkg/schema"
	"github.com/ajitpratap0/edgesql/pkg/source"
)

// openSQL runs query through database/sql. The driver names registered by
// go-sql-driver/mysql, modernc.org/sqlite and gosnowflake match the
// package's driver constants.
func openSQL(ctx context.Context, driver, dsn, query string) (*table, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid "+driver+" connection string")
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		db.Close()
		return nil, err
	}

	cts, err := rows.ColumnTypes()
	if err != nil {
		rows.Close()
		db.Close()
		return nil, err
	}

	t := &table{
		names:   make([]string, len(cts)),
		columns: make([]column, len(cts)),
	}
	seq := &sqlSequence{
		rows:  rows,
		db:    db,
		types: make([]schema.ColumnType, len(cts)),
		known: make([]bool, len(cts)),
	}
	for i, ct := range cts {
		nullable, ok := ct.Nullable()
		t.names[i] = ct.Name()
		t.columns[i] = column{name: ct.Name(), dbType: ct.DatabaseTypeName(), nullable: nullable || !ok}
		seq.types[i], seq.known[i] = schema.MapSourceType(ct.DatabaseTypeName())
	}
	t.rows = seq
	return t, nil
}

type sqlSequence struct {
	rows  *sql.Rows
	db    *sql.DB
	types []schema.ColumnType
	known []bool
}

func (s *sqlSequence) Next(ctx context.Context) (source.Row, error) {
	if !s.rows.Next() {
		if err := s.rows.Err(); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeSourceUnavailable, "failed to read row")
		}
		return nil, io.EOF
	}

	dest := make([]any, len(s.types))
	ptrs := make([]any, len(dest))
	for i := range dest {
		ptrs[i] = &dest[i]
	}
	if err := s.rows.Scan(ptrs...); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeSourceUnavailable, "failed to scan row")
	}

	row := make(source.Row, len(dest))
	for i, v := range dest {
		row[i] = sqlValue(v, s.types[i], s.known[i])
	}
	return row, nil
}

func (s *sqlSequence) Close() error {
	err := s.rows.Close()
	if cerr := s.db.Close(); err == nil {
		err = cerr
	}
	return err
}
