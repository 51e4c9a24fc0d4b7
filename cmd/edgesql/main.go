package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/ajitpratap0/edgesql/pkg/config"
	"github.com/ajitpratap0/edgesql/pkg/edgesql"
	"github.com/ajitpratap0/edgesql/pkg/errors"
	"github.com/ajitpratap0/edgesql/pkg/logger"
	"github.com/ajitpratap0/edgesql/pkg/metrics"
	"github.com/ajitpratap0/edgesql/pkg/observability"

	// Register every source kind
	_ "github.com/ajitpratap0/edgesql/pkg/source/file"
	_ "github.com/ajitpratap0/edgesql/pkg/source/kaggle"
	_ "github.com/ajitpratap0/edgesql/pkg/source/relational"
	_ "github.com/ajitpratap0/edgesql/pkg/source/replica"
)

var version = "0.1.0"

// app carries state shared by every subcommand once flags are parsed.
type app struct {
	v          *viper.Viper
	configFile string
	cfg        *config.Config
	log        *zap.Logger

	shutdownTracing observability.ShutdownFunc
	metricsServer   *http.Server
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := &app{v: config.NewViper()}
	if err := a.rootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func (a *app) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "edgesql",
		Short: "EdgeSQL - import data into Azion Edge SQL databases",
		Long: `edgesql loads tabular data from files, relational databases, Kaggle datasets
and libSQL replicas into an Edge SQL database, sizing each request to fit the
service's payload limit and committing every chunk in its own transaction.`,
		SilenceUsage:       true,
		SilenceErrors:      true,
		PersistentPreRunE:  a.setup,
		PersistentPostRunE: a.teardown,
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&a.configFile, "config", "c", "", "Path to a YAML configuration file")
	pf.String("token", "", "Azion personal token (env AZION_TOKEN)")
	pf.String("url", "", "Edge SQL API base URL (env AZION_BASE_URL)")
	pf.StringP("database", "d", "", "Database name or id (env EDGESQL_DATABASE)")
	pf.String("log-level", "", "Log level (debug, info, warn, error)")
	pf.Bool("trace", false, "Write trace spans to stderr")
	pf.String("metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :9090")

	for key, flag := range map[string]string{
		"token":        "token",
		"url":          "url",
		"database":     "database",
		"log_level":    "log-level",
		"trace":        "trace",
		"metrics_addr": "metrics-addr",
	} {
		_ = a.v.BindPFlag(key, pf.Lookup(flag))
	}

	root.AddCommand(
		a.versionCommand(),
		a.databasesCommand(),
		a.importCommand(),
		a.readCommand(),
		a.queryCommand(),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command, _ []string) error {
	cfg := config.NewConfig()
	if a.configFile != "" {
		loaded, err := config.Load(a.configFile)
		if err != nil {
			return errors.Wrap(err, errors.ErrorTypeConfig, "configuration error")
		}
		cfg = loaded
	}
	cfg.ApplyEnv(a.v)
	if err := cfg.Validate(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "invalid configuration")
	}
	a.cfg = cfg

	if err := logger.Init(logger.Config{
		Level:    cfg.Observability.LogLevel,
		Encoding: cfg.Observability.LogFormat,
	}); err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "invalid logging configuration")
	}
	a.log = logger.With(zap.String("component", "edgesql-cli"))

	if cfg.Observability.EnableTracing {
		tc := observability.DefaultTracingConfig()
		tc.ServiceVersion = version
		shutdown, err := observability.InitTracing(tc)
		if err != nil {
			return err
		}
		a.shutdownTracing = shutdown
	}

	if addr := cfg.Observability.MetricsAddr; addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		a.metricsServer = &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := a.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				a.log.Warn("metrics server stopped", zap.Error(err))
			}
		}()
		a.log.Info("serving metrics", zap.String("addr", addr))
	}
	return nil
}

func (a *app) teardown(cmd *cobra.Command, _ []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if a.metricsServer != nil {
		_ = a.metricsServer.Shutdown(ctx)
	}
	if a.shutdownTracing != nil {
		if err := a.shutdownTracing(ctx); err != nil {
			a.log.Warn("failed to flush traces", zap.Error(err))
		}
	}
	_ = logger.Sync()
	return nil
}

// client returns an API client bound to the selected database. Names are
// resolved to ids through the listing.
func (a *app) client(ctx context.Context, needDatabase bool) (*edgesql.Client, error) {
	if !a.cfg.Endpoint.HasToken() {
		return nil, errors.New(errors.ErrorTypeAuthentication,
			"no API token: pass --token or set AZION_TOKEN")
	}
	c := edgesql.NewClient(a.cfg, a.log)
	if !needDatabase {
		return c, nil
	}

	db := a.cfg.Endpoint.Database
	if db == "" {
		return nil, errors.New(errors.ErrorTypeConfig, "no database selected: pass --database or set EDGESQL_DATABASE")
	}
	id, err := c.Resolve(ctx, db)
	if err != nil {
		return nil, err
	}
	return c.WithDatabase(id), nil
}

func (a *app) versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		// no configuration needed
		PersistentPreRunE:  func(*cobra.Command, []string) error { return nil },
		PersistentPostRunE: func(*cobra.Command, []string) error { return nil },
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "edgesql v%s\n", version)
			fmt.Fprintf(out, "Go version: %s\n", runtime.Version())
			fmt.Fprintf(out, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}
}
