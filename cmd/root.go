// Package cmd holds the blog command line: the API server, schema
// migrations and development tokens.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/go-extras/cobraflags"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"academic-blog-api/config"
)

const envFileFlag = "env-file"

func newEnvFileFlag() cobraflags.Flag {
	return &cobraflags.StringFlag{
		Name:  envFileFlag,
		Value: ".env",
		Usage: "Path to a .env file; variables already in the environment take precedence",
	}
}

func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "blog",
		Short:         "Academic blog API",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(NewServeCommand())
	root.AddCommand(NewMigrateCommand())
	root.AddCommand(NewTokenCommand())
	return root
}

func loadConfig(flags map[string]cobraflags.Flag, required ...string) (*config.Config, error) {
	cfg, err := config.Load(flags[envFileFlag].GetString())
	if err != nil {
		return nil, err
	}
	if err := cfg.Require(required...); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func openPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	pc, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", config.KeyDatabaseURL, err)
	}
	pc.MaxConns = cfg.DBMaxConns

	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("db open: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return pool, nil
}
