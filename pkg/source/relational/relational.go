// Package relational reads a whole table from a relational database.
//
// Location names the driver: postgres, mysql, sqlite or snowflake. The
// connection string comes from the dsn option or is built from the
// matching credentials in config. Declared column types are mapped with
// schema.MapSourceType; columns the mapping does not know fall back to
// sample inference.
package relational

import (
	"context"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/ajitpratap0/edgesql/pkg/config"
	"github.com/ajitpratap0/edgesql/pkg/errors"
	"github.com/ajitpratap0/edgesql/pkg/logger"
	"github.com/ajitpratap0/edgesql/pkg/schema"
	"github.com/ajitpratap0/edgesql/pkg/source"
)

// Driver names accepted in Spec.Location.
const (
	Postgres  = "postgres"
	MySQL     = "mysql"
	SQLite    = "sqlite"
	Snowflake = "snowflake"
)

func init() {
	source.Register(source.KindRelational, New)
}

// Reader streams SELECT * FROM the table named by the source.Spec.
type Reader struct {
	spec   source.Spec
	cfg    *config.Config
	driver string
	logger *zap.Logger
}

// New validates the driver and table name.
func New(spec source.Spec, cfg *config.Config) (source.Reader, error) {
	driver := normalizeDriver(spec.Location)
	switch driver {
	case Postgres, MySQL, SQLite, Snowflake:
	default:
		return nil, errors.Newf(errors.ErrorTypeConfig, "unsupported relational driver %q", spec.Location).
			WithDetail("drivers", []string{Postgres, MySQL, SQLite, Snowflake})
	}
	if strings.TrimSpace(spec.Table) == "" {
		return nil, errors.New(errors.ErrorTypeConfig, "relational source needs a table name")
	}
	return &Reader{
		spec:   spec,
		cfg:    cfg,
		driver: driver,
		logger: logger.With(zap.String("source", "relational"), zap.String("driver", driver)),
	}, nil
}

func normalizeDriver(name string) string {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "postgres", "postgresql", "pg", "pgx":
		return Postgres
	case "mysql", "mariadb":
		return MySQL
	case "sqlite", "sqlite3":
		return SQLite
	case "snowflake", "sf":
		return Snowflake
	}
	return name
}

// Open connects, issues the query and infers the schema from the declared
// column types plus a sample of rows.
func (r *Reader) Open(ctx context.Context) (*schema.SourceSchema, source.RowSequence, error) {
	dsn, err := r.dsn()
	if err != nil {
		return nil, nil, err
	}
	query := "SELECT * FROM " + QuoteTable(r.driver, r.spec.Table)
	r.logger.Debug("opening relational source", zap.String("table", r.spec.Table))

	var t *table
	if r.driver == Postgres {
		t, err = openPostgres(ctx, dsn, r.cfg, r.spec.Table, query)
	} else {
		t, err = openSQL(ctx, r.driver, dsn, query)
	}
	if err != nil {
		if errors.GetType(err) == "" {
			err = source.Unavailable(err, r.spec, "failed to query "+r.driver+" table")
		}
		return nil, nil, err
	}

	in := schema.NewInferrer(t.names)
	for i, c := range t.columns {
		if ct, ok := schema.MapSourceType(c.dbType); ok {
			in.Declare(i, ct, c.nullable, c.dbType)
		}
	}
	return source.InferSchema(ctx, in, r.spec, t.rows, r.cfg.Import.SampleRows)
}

func (r *Reader) dsn() (string, error) {
	if dsn := r.spec.Option(source.OptionDSN, ""); dsn != "" {
		return dsn, nil
	}
	database := r.spec.Option(source.OptionDatabase, "")
	switch r.driver {
	case Postgres:
		return postgresDSN(&r.cfg.Sources.Postgres, database)
	case MySQL:
		return mysqlDSN(&r.cfg.Sources.MySQL, database)
	case Snowflake:
		return snowflakeDSN(&r.cfg.Sources.Snowflake, database)
	}
	return "", errors.New(errors.ErrorTypeConfig, "sqlite source needs a dsn option naming the database file")
}

type column struct {
	name     string
	dbType   string
	nullable bool
}

// table is an executed query before inference.
type table struct {
	names   []string
	columns []column
	rows    source.RowSequence
}

var plainIdent = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_$]*$`)

// QuoteTable quotes a possibly schema-qualified table name for driver.
// Snowflake folds unquoted names to upper case, so plain identifiers are
// left bare there.
func QuoteTable(driver, name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		switch driver {
		case MySQL:
			parts[i] = "`" + strings.ReplaceAll(p, "`", "``") + "`"
		case Snowflake:
			if !plainIdent.MatchString(p) {
				parts[i] = schema.QuoteIdent(p)
			}
		default:
			parts[i] = schema.QuoteIdent(p)
		}
	}
	return strings.Join(parts, ".")
}
