package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/syntrixbase/inkwell/internal/config"
	"github.com/syntrixbase/inkwell/internal/logging"
	"github.com/syntrixbase/inkwell/internal/secrets"
	"github.com/syntrixbase/inkwell/internal/services"
)

// ServeOptions selects the roles to run.
type ServeOptions struct {
	API    bool
	Puller bool
	Syncer bool
	Upsert bool
	All    bool

	InitTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// Options maps the flags to manager roles. No role flag means all roles.
func (o ServeOptions) Options() services.Options {
	if o.All || (!o.API && !o.Puller && !o.Syncer && !o.Upsert) {
		return services.AllRoles()
	}
	return services.Options{RunAPI: o.API, RunPuller: o.Puller, RunSyncer: o.Syncer, RunUpsert: o.Upsert}
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the service",
		Long: `Run one or more roles of the service. Standalone deployments always run
every role in this process.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, rootOpts, opts)
		},
	}

	f := cmd.Flags()
	f.BoolVar(&opts.API, "api", false, "run the HTTP API")
	f.BoolVar(&opts.Puller, "puller", false, "run the change-stream puller")
	f.BoolVar(&opts.Syncer, "syncer", false, "run the search sync worker")
	f.BoolVar(&opts.Upsert, "upsert", false, "run the upsert consumer")
	f.BoolVar(&opts.All, "all", false, "run every role")
	f.DurationVar(&opts.InitTimeout, "init-timeout", 10*time.Second, "time allowed for connecting backends")
	f.DurationVar(&opts.ShutdownTimeout, "shutdown-timeout", 30*time.Second, "time allowed for draining on shutdown")

	return cmd
}

func runServe(ctx context.Context, rootOpts *RootOptions, opts *ServeOptions) error {
	defer secrets.Purge()

	cfg, err := config.LoadConfig(rootOpts.ConfigDir)
	if err != nil {
		return err
	}
	if err := logging.Initialize(cfg.Logging); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer func() { _ = logging.Shutdown() }()

	roles := opts.Options()
	slog.Info("Starting Inkwell services", "mode", cfg.Deployment.Mode,
		"api", roles.RunAPI, "puller", roles.RunPuller, "syncer", roles.RunSyncer, "upsert", roles.RunUpsert)

	mgr := services.NewManager(cfg, roles, slog.Default())

	initCtx, cancel := context.WithTimeout(ctx, opts.InitTimeout)
	defer cancel()
	if err := mgr.Init(initCtx); err != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), opts.ShutdownTimeout)
		defer shutdownCancel()
		mgr.Shutdown(shutdownCtx)
		return fmt.Errorf("failed to initialize services: %w", err)
	}

	bgCtx, bgCancel := context.WithCancel(context.Background())
	defer bgCancel()
	mgr.Start(bgCtx)

	<-ctx.Done()
	slog.Info("Shutting down services...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), opts.ShutdownTimeout)
	defer shutdownCancel()

	// Cancel background tasks first
	bgCancel()
	mgr.Shutdown(shutdownCtx)

	slog.Info("All services stopped")
	return nil
}
