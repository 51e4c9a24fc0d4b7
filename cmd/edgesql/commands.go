package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ajitpratap0/edgesql/pkg/edgesql"
	"github.com/ajitpratap0/edgesql/pkg/errors"
	"github.com/ajitpratap0/edgesql/pkg/retry"
	"github.com/ajitpratap0/edgesql/pkg/script"
)

func (a *app) databasesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "databases",
		Aliases: []string{"dbs"},
		Short:   "List the databases visible to the token",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.client(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer c.Close()

			dbs, err := c.ListDatabases(cmd.Context())
			if err != nil {
				return err
			}
			printDatabases(cmd.OutOrStdout(), dbs)
			return nil
		},
	}
	cmd.AddCommand(a.createDatabaseCommand(), a.destroyDatabaseCommand())
	return cmd
}

func (a *app) createDatabaseCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "create <name>",
		Short: "Create a database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.client(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer c.Close()

			db, err := c.CreateDatabase(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "New database created. ID: %d, Name: %s\n", db.ID, db.Name)
			return nil
		},
	}
}

func (a *app) destroyDatabaseCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "destroy <name-or-id>",
		Short: "Destroy a database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.client(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer c.Close()

			id, err := c.Resolve(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if err := c.DeleteDatabase(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Database deleted successfully.")
			return nil
		},
	}
}

func printDatabases(w io.Writer, dbs []edgesql.Database) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tSTATUS\tCREATED")
	for _, db := range dbs {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", db.ID, db.Name, db.Status, db.CreatedAt)
	}
	_ = tw.Flush()
}

func (a *app) queryCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "query <sql>...",
		Short: "Execute SQL statements and print their rows",
		Long: `Execute one or more SQL statements in a single request. Each argument is a
statement; results are printed as tab-separated rows under a header.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.client(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer c.Close()

			results, err := c.Execute(cmd.Context(), args)
			if err != nil {
				return err
			}
			printResults(cmd.OutOrStdout(), results)
			return nil
		},
	}
}

func printResults(w io.Writer, results []edgesql.StatementResult) {
	printed := 0
	for _, res := range results {
		if len(res.Columns) == 0 {
			continue
		}
		if printed > 0 {
			fmt.Fprintln(w)
		}
		printed++
		fmt.Fprintln(w, strings.Join(res.Columns, "\t"))
		for _, row := range res.Rows {
			cells := make([]string, len(row))
			for j, v := range row {
				cells[j] = cell(v)
			}
			fmt.Fprintln(w, strings.Join(cells, "\t"))
		}
	}
}

func cell(v any) string {
	switch val := v.(type) {
	case nil:
		return "NULL"
	case float64:
		if val == float64(int64(val)) {
			return fmt.Sprintf("%d", int64(val))
		}
	}
	return fmt.Sprint(v)
}

func (a *app) readCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "read <script.sql>",
		Short: "Execute the statements of a SQL script file",
		Long: `Execute a SQL script, for example a dump, in groups sized to fit the service's
payload limit. BEGIN TRANSACTION and COMMIT lines are ignored. Execution stops
at the first failing statement.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return errors.Wrap(err, errors.ErrorTypeSourceUnavailable, "cannot open script")
			}
			statements, err := script.Split(f)
			f.Close()
			if err != nil {
				return err
			}
			if len(statements) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No statements found.")
				return nil
			}

			c, err := a.client(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer c.Close()

			runner, err := script.NewRunner(c, a.cfg.Import.MaxPayloadBytes, retry.FromConfig(a.cfg.Reliability), a.log)
			if err != nil {
				return err
			}
			res, err := runner.Run(cmd.Context(), statements)
			a.log.Info("script finished",
				zap.String("file", args[0]),
				zap.Int("statements", res.Statements),
				zap.Int("groups", res.Groups),
				zap.Duration("elapsed", res.Elapsed))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Executed %d statements from %s in %d requests.\n",
				res.Statements, args[0], res.Groups)
			return nil
		},
	}
}
