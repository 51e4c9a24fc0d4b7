package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/ajitpratap0/edgesql/internal/importer"
	"github.com/ajitpratap0/edgesql/pkg/chunk"
	"github.com/ajitpratap0/edgesql/pkg/source"
	"github.com/ajitpratap0/edgesql/pkg/source/file"
)

// importFlags are shared by every import subcommand.
type importFlags struct {
	vector    string
	chunkRows int
	multiRow  bool
	into      string
}

func (f *importFlags) register(fs *pflag.FlagSet) {
	fs.StringVar(&f.vector, "vector", "", "Vector columns with their dimension, e.g. embedding:1536,title_vec:384")
	fs.IntVar(&f.chunkRows, "chunk-rows", 0, "Rows in the first chunk before adaptive sizing")
	fs.BoolVar(&f.multiRow, "multi-row", false, "Send one multi-row INSERT per chunk")
}

func (f *importFlags) options(extra map[string]string) map[string]string {
	opts := map[string]string{}
	if f.vector != "" {
		opts[source.OptionVector] = f.vector
	}
	for k, v := range extra {
		if v != "" {
			opts[k] = v
		}
	}
	return opts
}

func (a *app) importCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import data into a table",
	}

	var fileFlags importFlags
	var delimiter, sheet, format string
	fileCmd := &cobra.Command{
		Use:   "file <path> <table>",
		Short: "Import a CSV, TSV, XLSX, Avro or Parquet file (local, s3:// or gs://)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			spec := source.Spec{
				Kind:     source.KindFile,
				Location: args[0],
				Options: fileFlags.options(map[string]string{
					source.OptionDelimiter: delimiter,
					source.OptionSheet:     sheet,
					file.OptionFormat:      format,
				}),
			}
			return a.runImport(cmd, spec, args[1], &fileFlags)
		},
	}
	fileFlags.register(fileCmd.Flags())
	fileCmd.Flags().StringVar(&delimiter, "delimiter", "", "CSV field delimiter (character, tab, semicolon, pipe)")
	fileCmd.Flags().StringVar(&sheet, "sheet", "", "Spreadsheet sheet name (default: first sheet)")
	fileCmd.Flags().StringVar(&format, "format", "", "Force the file format (csv, tsv, xlsx, avro, parquet)")

	var relFlags importFlags
	var dsn, dbName string
	relCmd := &cobra.Command{
		Use:   "relational <driver> <table>",
		Short: "Import a table from postgres, mysql, sqlite or snowflake",
		Long: `Import a whole table from a relational database. Credentials come from --dsn or
from the MYSQL_*, POSTGRES_* and SNOWFLAKE_* environment variables. The target
table has the same name unless --into is given.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			spec := source.Spec{
				Kind:     source.KindRelational,
				Location: args[0],
				Table:    args[1],
				Options: relFlags.options(map[string]string{
					source.OptionDSN:      dsn,
					source.OptionDatabase: dbName,
				}),
			}
			return a.runImport(cmd, spec, targetName(relFlags.into, args[1]), &relFlags)
		},
	}
	relFlags.register(relCmd.Flags())
	relCmd.Flags().StringVar(&relFlags.into, "into", "", "Target table name")
	relCmd.Flags().StringVar(&dsn, "dsn", "", "Driver connection string")
	relCmd.Flags().StringVar(&dbName, "source-database", "", "Source database name")

	var kaggleFlags importFlags
	kaggleCmd := &cobra.Command{
		Use:   "kaggle <owner/dataset> <file> <table>",
		Short: "Import one file of a Kaggle dataset",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			spec := source.Spec{
				Kind:     source.KindDataset,
				Location: args[0],
				Table:    args[1],
				Options:  kaggleFlags.options(nil),
			}
			return a.runImport(cmd, spec, args[2], &kaggleFlags)
		},
	}
	kaggleFlags.register(kaggleCmd.Flags())

	var replicaFlags importFlags
	var url, token, encKey string
	replicaCmd := &cobra.Command{
		Use:   "replica <table>",
		Short: "Import a table from a libSQL or Turso database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			spec := source.Spec{
				Kind:  source.KindReplica,
				Table: args[0],
				Options: replicaFlags.options(map[string]string{
					source.OptionURL:           url,
					source.OptionToken:         token,
					source.OptionEncryptionKey: encKey,
				}),
			}
			return a.runImport(cmd, spec, targetName(replicaFlags.into, args[0]), &replicaFlags)
		},
	}
	replicaFlags.register(replicaCmd.Flags())
	replicaCmd.Flags().StringVar(&replicaFlags.into, "into", "", "Target table name")
	replicaCmd.Flags().StringVar(&url, "replica-url", "", "Replica URL (env TURSO_DATABASE_URL)")
	replicaCmd.Flags().StringVar(&token, "replica-token", "", "Replica auth token (env TURSO_AUTH_TOKEN)")
	replicaCmd.Flags().StringVar(&encKey, "encryption-key", "", "Replica encryption key (env TURSO_ENCRYPTION_KEY)")

	cmd.AddCommand(fileCmd, relCmd, kaggleCmd, replicaCmd)
	return cmd
}

func targetName(into, fallback string) string {
	if into != "" {
		return into
	}
	return fallback
}

func (a *app) runImport(cmd *cobra.Command, spec source.Spec, table string, flags *importFlags) error {
	c, err := a.client(cmd.Context(), true)
	if err != nil {
		return err
	}
	defer c.Close()

	cfg := *a.cfg
	if flags.multiRow {
		cfg.Import.MultiRowInsert = true
	}
	im, err := importer.New(&cfg, c, a.log)
	if err != nil {
		return err
	}

	req := importer.Request{Source: spec, Table: table}
	if flags.chunkRows > 0 {
		p := chunk.PolicyFromConfig(cfg.Import)
		p.DefaultRows = flags.chunkRows
		req.Policy = &p
	}

	res, err := im.Run(cmd.Context(), req)
	printSummary(cmd.OutOrStdout(), res)
	return err
}

func printSummary(w io.Writer, res *importer.Result) {
	if res == nil {
		return
	}
	status := "completed"
	if res.Err != nil {
		status = "failed"
	}
	fmt.Fprintf(w, "Import %s: %d rows committed in %d chunks (%d failed, %d retries), %d bytes sent in %s.\n",
		status, res.RowsCommitted, res.ChunksCommitted, res.ChunksFailed, res.Retries,
		res.BytesSent, res.Elapsed.Round(time.Millisecond))
}
