// Package cli implements the attendo command line client.
package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"attendo/internal/app"
	"attendo/internal/attendance"
	"attendo/internal/auth"
	"attendo/internal/config"
	"attendo/internal/logging"
	"attendo/internal/store"
)

// Env is what the commands operate on: the persisted session and the attendance service.
type Env struct {
	Session *auth.Session
	Service *attendance.Service
	Close   func() error
}

// Opener builds an Env for one command invocation.
type Opener func(ctx context.Context) (*Env, error)

var version = "dev"

// SetVersion sets the version string reported by the root command.
func SetVersion(v string) { version = v }

// NewRootCmd builds the command tree. open is called lazily by commands that need an Env.
func NewRootCmd(open Opener) *cobra.Command {
	var env *Env

	root := &cobra.Command{
		Use:   "attendo",
		Short: "Geofenced attendance from the command line",
		Long: `attendo records check-ins and check-outs against a site geofence.

Example usage:
  attendo register --email ada@example.com --password s3cret --name Ada
  attendo mark check-in --lat 40.7128 --lon -74.0060
  attendo records
  attendo stats`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if env == nil || env.Close == nil {
				return nil
			}
			err := env.Close()
			env = nil
			return err
		},
	}

	load := func(cmd *cobra.Command) (*Env, error) {
		if env != nil {
			return env, nil
		}
		e, err := open(cmd.Context())
		if err != nil {
			return nil, err
		}
		env = e
		return env, nil
	}

	root.AddCommand(
		newRegisterCmd(load),
		newLoginCmd(load),
		newLogoutCmd(load),
		newWhoamiCmd(load),
		newMarkCmd(load),
		newRecordsCmd(load),
		newTodayCmd(load),
		newStatsCmd(load),
	)
	return root
}

type loader func(cmd *cobra.Command) (*Env, error)

// Execute runs the CLI against the configured store.
func Execute(ctx context.Context) error {
	return NewRootCmd(DefaultOpener).ExecuteContext(ctx)
}

// DefaultOpener opens the store named by the environment configuration.
func DefaultOpener(ctx context.Context) (*Env, error) {
	cfg := config.Load()
	logger, err := logging.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	openCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	kv, err := app.Open(openCtx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	env, err := NewEnv(ctx, cfg, kv, logger)
	if err != nil {
		_ = kv.Close()
		return nil, err
	}
	env.Close = func() error {
		_ = logger.Sync()
		return kv.Close()
	}
	return env, nil
}

// NewEnv wires an Env over an already opened store.
func NewEnv(ctx context.Context, cfg config.App, kv store.KV, logger *zap.Logger) (*Env, error) {
	dir, err := app.Directory(cfg.Auth, kv)
	if err != nil {
		return nil, err
	}
	sess, err := auth.OpenSession(ctx, kv, dir, logger)
	if err != nil {
		return nil, err
	}
	svc, err := app.Service(cfg, kv, logger)
	if err != nil {
		return nil, err
	}
	return &Env{Session: sess, Service: svc, Close: kv.Close}, nil
}
