package relational

import (
	"crypto/tls"
	"crypto/x509"
	"net"
	"net/url"
	"os"
	"strconv"
	"sync"

	"github.com/go-sql-driver/mysql"
	sf "github.com/snowflakedb/gosnowflake"

	"github.com/ajitpratap0/edgesql/pkg/config"
	"github.com/ajitpratap0/edgesql/pkg/errors"
)

const mysqlTLSName = "edgesql"

var registerOnce sync.Once

func missing(kind string) error {
	return errors.Newf(errors.ErrorTypeConfig,
		"%s credentials are incomplete: set username, password and host or pass a dsn", kind)
}

func postgresDSN(rc *config.RelationalConfig, database string) (string, error) {
	if !rc.Complete() {
		return "", missing("postgres")
	}
	port := rc.Port
	if port == 0 {
		port = 5432
	}
	if database == "" {
		database = "postgres"
	}

	q := url.Values{}
	if rc.UseTLS() {
		mode := "require"
		if rc.SSLVerifyCert {
			mode = "verify-full"
		}
		q.Set("sslmode", mode)
		q.Set("sslrootcert", rc.SSLCA)
		q.Set("sslcert", rc.SSLCert)
		q.Set("sslkey", rc.SSLKey)
	} else if !config.IsRemoteHost(rc.Host) {
		q.Set("sslmode", "disable")
	}

	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(rc.Username, rc.Password),
		Host:     net.JoinHostPort(rc.Host, strconv.Itoa(port)),
		Path:     "/" + database,
		RawQuery: q.Encode(),
	}
	return u.String(), nil
}

func mysqlDSN(rc *config.RelationalConfig, database string) (string, error) {
	if !rc.Complete() {
		return "", missing("mysql")
	}
	port := rc.Port
	if port == 0 {
		port = 3306
	}

	mc := mysql.NewConfig()
	mc.User = rc.Username
	mc.Passwd = rc.Password
	mc.Net = "tcp"
	mc.Addr = net.JoinHostPort(rc.Host, strconv.Itoa(port))
	mc.DBName = database
	mc.ParseTime = true

	if rc.UseTLS() {
		var regErr error
		registerOnce.Do(func() {
			var tc *tls.Config
			tc, regErr = tlsConfig(rc)
			if regErr == nil {
				regErr = mysql.RegisterTLSConfig(mysqlTLSName, tc)
			}
		})
		if regErr != nil {
			return "", errors.Wrap(regErr, errors.ErrorTypeConfig, "failed to load mysql TLS certificates")
		}
		mc.TLSConfig = mysqlTLSName
	}
	return mc.FormatDSN(), nil
}

func tlsConfig(rc *config.RelationalConfig) (*tls.Config, error) {
	ca, err := os.ReadFile(rc.SSLCA) //nolint:gosec // G304: path comes from configuration
	if err != nil {
		return nil, err
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(ca) {
		return nil, errors.Newf(errors.ErrorTypeConfig, "no certificates found in %s", rc.SSLCA)
	}
	cert, err := tls.LoadX509KeyPair(rc.SSLCert, rc.SSLKey)
	if err != nil {
		return nil, err
	}
	return &tls.Config{
		RootCAs:            pool,
		Certificates:       []tls.Certificate{cert},
		ServerName:         rc.Host,
		InsecureSkipVerify: !rc.SSLVerifyCert, //nolint:gosec // G402: opt-in via ssl_verify_cert
		MinVersion:         tls.VersionTLS12,
	}, nil
}

func snowflakeDSN(sc *config.SnowflakeConfig, database string) (string, error) {
	if sc.Account == "" || sc.User == "" || sc.Password == "" {
		return "", errors.New(errors.ErrorTypeConfig,
			"snowflake credentials are incomplete: set account, user and password or pass a dsn")
	}
	dsn, err := sf.DSN(&sf.Config{
		Account:   sc.Account,
		User:      sc.User,
		Password:  sc.Password,
		Database:  database,
		Warehouse: sc.Warehouse,
		Role:      sc.Role,
	})
	if err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeConfig, "invalid snowflake configuration")
	}
	return dsn, nil
}
