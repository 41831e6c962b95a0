package cmd

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pressly/goose/v3"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/vibast-solutions/ms-go-wallet-payments/app/repository"
	"github.com/vibast-solutions/ms-go-wallet-payments/migrations"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply or inspect database schema migrations",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	Run: func(_ *cobra.Command, _ []string) {
		runMigration("up", goose.UpContext)
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back the most recent migration",
	Run: func(_ *cobra.Command, _ []string) {
		runMigration("down", goose.DownContext)
	},
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the applied state of every migration",
	Run: func(_ *cobra.Command, _ []string) {
		runMigration("status", goose.StatusContext)
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.AddCommand(migrateUpCmd)
	migrateCmd.AddCommand(migrateDownCmd)
	migrateCmd.AddCommand(migrateStatusCmd)
}

func runMigration(name string, fn func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error) {
	cfg := mustLoadConfig()
	db, dialect := mustOpenDatabase(cfg)
	defer db.Close()

	dir, err := configureGoose(dialect)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to configure migrations")
	}

	if err := fn(context.Background(), db, dir); err != nil {
		logrus.WithError(err).WithField("command", name).Fatal("Migration failed")
	}
	logrus.WithField("command", name).Info("Migration completed")
}

// configureGoose points goose at the embedded migrations and returns the directory for the dialect.
func configureGoose(dialect repository.Dialect) (string, error) {
	goose.SetBaseFS(migrations.FS)
	goose.SetLogger(logrus.StandardLogger())

	switch dialect {
	case repository.DialectPostgres:
		return "postgres", goose.SetDialect("postgres")
	case repository.DialectMySQL:
		return "mysql", goose.SetDialect("mysql")
	default:
		return "", fmt.Errorf("unsupported database dialect %q", dialect)
	}
}
