// Package main provides a tool that resets the catalog to the sample authors and books.
//
// Usage:
//
//	go run ./cmd/seed
//	go run ./cmd/seed --data-path ./data --user alice --genre refactoring
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/librarycatalog/library-server/internal/config"
	"github.com/librarycatalog/library-server/internal/logger"
	"github.com/librarycatalog/library-server/internal/seed"
	"github.com/librarycatalog/library-server/internal/store"
)

type seedOptions struct {
	dataPath string
	envFile  string
	username string
	genre    string
	logLevel string
}

func newRootCmd() *cobra.Command {
	opts := &seedOptions{}

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Reset the catalog to the sample data",
		Long: `Deletes every author and book, then stores the sample catalog of five
authors and seven books. Users are kept. With --user, a user is created
unless one with that name already exists.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSeed(cmd.Context(), cmd, opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.dataPath, "data-path", "", "Store directory (env: DATA_PATH, default: ~/.library-server/data)")
	flags.StringVar(&opts.envFile, "env-file", ".env", "Optional .env file")
	flags.StringVar(&opts.username, "user", "", "Also create this user")
	flags.StringVar(&opts.genre, "genre", "refactoring", "Favorite genre for --user")
	flags.StringVar(&opts.logLevel, "log-level", "warn", "Log level")

	return cmd
}

func runSeed(ctx context.Context, cmd *cobra.Command, opts *seedOptions) error {
	if err := godotenv.Load(opts.envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load %s: %w", opts.envFile, err)
	}

	dataPath := opts.dataPath
	if dataPath == "" {
		dataPath = os.Getenv("DATA_PATH")
	}
	dataPath, err := config.ResolveDataPath(dataPath)
	if err != nil {
		return err
	}

	log := logger.New(logger.Config{
		Level:  logger.ParseLevel(opts.logLevel),
		Writer: cmd.ErrOrStderr(),
	})

	s, err := store.New(dataPath, log.Logger)
	if err != nil {
		return fmt.Errorf("open store at %s: %w", dataPath, err)
	}
	defer func() {
		if err := s.Close(); err != nil {
			log.Error("Failed to close store", "error", err)
		}
	}()

	result, err := seed.Load(ctx, s, log.Logger)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Seeded %d authors and %d books into %s\n", result.Authors, result.Books, dataPath)

	if opts.username == "" {
		return nil
	}

	user, created, err := seed.EnsureUser(ctx, s, opts.username, opts.genre)
	if err != nil {
		return err
	}
	if created {
		fmt.Fprintf(out, "Created user %s (%s)\n", user.Username, user.ID)
	} else {
		fmt.Fprintf(out, "User %s already exists (%s)\n", user.Username, user.ID)
	}
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "seed: %v\n", err)
		stop()
		os.Exit(1)
	}
}
