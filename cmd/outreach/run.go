package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"linkedin-outreach/internal/api"
	"linkedin-outreach/internal/scheduler"
)

func newRunCommand(opts *options) *cobra.Command {
	var (
		apiAddr   string
		noAPI     bool
		skipFirst bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the scheduler and action pipeline until interrupted",
		Long: `Starts the action service, the worker pool and the periodic ticks
(execution, enrollment, health, stats). The status API is served when enabled
in the config or when --api is given.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(opts, func(app *App) error {
				if apiAddr != "" {
					app.config.API.Addr = apiAddr
					app.config.API.Enabled = true
				}
				if noAPI {
					app.config.API.Enabled = false
				}
				return app.run(cmd.Context(), !skipFirst)
			})
		},
	}

	cmd.Flags().StringVar(&apiAddr, "api", "", "Serve the status API on this address")
	cmd.Flags().BoolVar(&noAPI, "no-api", false, "Do not serve the status API")
	cmd.Flags().BoolVar(&skipFirst, "skip-initial-tick", false, "Wait for the first execution interval instead of dispatching at startup")
	return cmd
}

// run blocks until SIGINT/SIGTERM, then drains the pipeline
func (app *App) run(ctx context.Context, initialTick bool) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	engine, err := NewEngine(app)
	if err != nil {
		return err
	}
	defer engine.Close()

	if err := engine.service.Start(); err != nil {
		return err
	}

	sched := scheduler.New(app.config.Engine, scheduler.Deps{
		Service:   engine.service,
		Campaigns: app.campaigns,
		Actions:   app.actions,
		Leads:     app.leads,
		Stats:     app.stats,
	}, app.logger)

	g, ctx := errgroup.WithContext(ctx)

	sched.Start(ctx)
	defer sched.Stop()

	if initialTick {
		if err := sched.RunExecution(ctx); err != nil {
			app.logger.Warn().Err(err).Msg("Initial execution tick failed")
		}
	}

	if app.config.API.Enabled {
		server := api.New(api.Deps{
			Status:    engine.service,
			Proxies:   engine.allocator,
			Campaigns: app.campaigns,
			Stats:     app.stats,
		}, app.logger)
		g.Go(func() error {
			return server.Run(ctx, app.config.API.Addr)
		})
	}

	app.logger.Info().
		Str("version", AppVersion).
		Bool("api", app.config.API.Enabled).
		Int("maxWorkers", app.config.Workers.MaxWorkers).
		Msg("Outreach engine running")

	g.Go(func() error {
		<-ctx.Done()
		app.logger.Info().Msg("Shutting down")
		return nil
	})

	return g.Wait()
}
