package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"xitem.org/internal/migrate"
	"xitem.org/ops/migrations"
)

var (
	dsn     string
	timeout time.Duration
)

var rootCmd = &cobra.Command{
	Use:           "migrate",
	Short:         "Apply the embedded Xitem schema migrations and seeds",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if dsn == "" {
			dsn = os.Getenv("XITEM_PG_DSN")
		}
		if dsn == "" {
			return errors.New("missing DSN: provide via --dsn or XITEM_PG_DSN")
		}
		return nil
	},
}

var upCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	RunE: withManager(func(ctx context.Context, cmd *cobra.Command, mgr *migrate.Manager) error {
		return mgr.Up(ctx)
	}),
}

var downCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back the latest applied migration",
	RunE: withManager(func(ctx context.Context, cmd *cobra.Command, mgr *migrate.Manager) error {
		err := mgr.Down(ctx)
		if errors.Is(err, migrate.ErrNothingApplied) {
			fmt.Fprintln(cmd.OutOrStdout(), "nothing to roll back")
			return nil
		}
		return err
	}),
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Apply seed files that have not run yet",
	RunE: withManager(func(ctx context.Context, cmd *cobra.Command, mgr *migrate.Manager) error {
		return mgr.Seed(ctx)
	}),
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "List applied and pending migrations",
	RunE: withManager(func(ctx context.Context, cmd *cobra.Command, mgr *migrate.Manager) error {
		history, err := mgr.Status(ctx)
		if err != nil {
			return err
		}
		pending, err := mgr.Pending(ctx)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, item := range history {
			fmt.Fprintln(out, item)
		}
		for _, name := range pending {
			fmt.Fprintf(out, "%s\tpending\n", name)
		}
		return nil
	}),
}

func withManager(fn func(context.Context, *cobra.Command, *migrate.Manager) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()

		db, err := sql.Open("pgx", dsn)
		if err != nil {
			return fmt.Errorf("open db: %w", err)
		}
		defer db.Close()

		mgr := migrate.NewManager(db, migrations.FS, migrations.SQLDir, migrations.SeedsDir)
		if err := fn(ctx, cmd, mgr); err != nil {
			return fmt.Errorf("migrate %s: %w", cmd.Name(), err)
		}
		return nil
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dsn, "dsn", "", "PostgreSQL DSN (default $XITEM_PG_DSN)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "overall deadline")
	rootCmd.AddCommand(upCmd, downCmd, seedCmd, statusCmd)
}

func main() {
	log.SetFlags(0)
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("load .env: %v", err)
	}
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
