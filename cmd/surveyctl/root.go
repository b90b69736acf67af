package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/eteeap-survey/internal/core"
	"github.com/JonMunkholm/eteeap-survey/internal/database"
	"github.com/JonMunkholm/eteeap-survey/internal/logging"
)

var (
	flagJSON        bool
	flagDatabaseURL string
	flagLogLevel    string
)

var rootCmd = &cobra.Command{
	Use:   "surveyctl",
	Short: "Manage the ETEEAP survey database from the terminal",
	Long: `surveyctl applies the schema, imports and exports survey responses,
prints reports and creates admin accounts.

Get started:
  surveyctl migrate                      Apply the database schema
  surveyctl template > template.csv      Write the import template
  surveyctl import responses.csv         Import a filled-in template
  surveyctl create-admin --email X       Create an admin account`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_ = godotenv.Load()
		// Logs go to stderr so CSV written to stdout stays clean.
		slog.SetDefault(logging.New(os.Stderr, flagLogLevel, "text"))
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "Output as JSON")
	rootCmd.PersistentFlags().StringVar(&flagDatabaseURL, "database-url", "", "PostgreSQL URL (default: $DATABASE_URL or $DB_URL)")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "warn", "Log level: debug, info, warn, error")
}

// Execute runs the root command.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return err
	}
	return nil
}

func databaseURL() (string, error) {
	for _, v := range []string{flagDatabaseURL, os.Getenv("DATABASE_URL"), os.Getenv("DB_URL")} {
		if v != "" {
			return v, nil
		}
	}
	return "", errors.New("no database configured: pass --database-url or set DATABASE_URL")
}

func connect(ctx context.Context) (*pgxpool.Pool, error) {
	url, err := databaseURL()
	if err != nil {
		return nil, err
	}
	return database.Connect(ctx, url, database.PoolOptions{MaxConns: 4})
}

// newService builds a service without email verification; the CLI never
// issues one-time codes.
func newService(pool *pgxpool.Pool) *core.Service {
	return core.NewService(database.NewFromPool(pool).Stores(), nil, core.Config{})
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
