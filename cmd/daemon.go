// cmd/daemon.go
package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/sendlater/internal/api"
	"github.com/xkilldash9x/sendlater/internal/channel"
	"github.com/xkilldash9x/sendlater/internal/config"
	"github.com/xkilldash9x/sendlater/internal/kv"
	"github.com/xkilldash9x/sendlater/internal/observability"
	"github.com/xkilldash9x/sendlater/internal/scheduler"
	"github.com/xkilldash9x/sendlater/internal/store"
	"github.com/xkilldash9x/sendlater/internal/timer"
)

func newDaemonCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run the scheduler, the HTTP API and the execution context",
		Long: `Runs the scheduler together with the HTTP API producers talk to.

In local mode (the default) the daemon drives its own browser. In hub mode it
accepts remote runners on /ws/runner and dispatches through them instead.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := getConfig(cmd)
			if err != nil {
				return err
			}
			err = runDaemon(cmd.Context(), cfg, observability.GetLogger())
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
	cmd.Flags().String("mode", "", "execution context: local or hub (overrides channel.mode)")
	cmd.Flags().String("listen", "", "API listen address (overrides api.listen)")
	cmd.Flags().Bool("headless", false, "run the local browser headless (overrides browser.headless)")
	overrides(cmd.Flags(), "mode", "channel.mode")
	overrides(cmd.Flags(), "listen", "api.listen")
	overrides(cmd.Flags(), "headless", "browser.headless")
	return cmd
}

// runDaemon wires every component and blocks until ctx is done or a component fails.
func runDaemon(ctx context.Context, cfg config.Interface, logger *zap.Logger) error {
	backend, err := kv.Open(ctx, cfg.Store(), logger)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer func() {
		if err := backend.Close(); err != nil {
			logger.Warn("Store close error", zap.Error(err))
		}
	}()
	records := store.New(backend, logger, store.WithKey(cfg.Store().Key))

	var (
		endpoint channel.Endpoint
		apiOpts  []api.Option
	)
	switch cfg.Channel().Mode {
	case "hub":
		hub := channel.NewHub(logger, cfg.Channel().RequestTimeout)
		defer hub.Close()
		endpoint = hub
		apiOpts = append(apiOpts, api.WithRunnerEndpoint(hub))
		logger.Info("Dispatching through remote runners.")
	default:
		w, manager, err := newBrowserWorker(cfg, logger)
		if err != nil {
			return err
		}
		defer closeManager(manager, logger)
		endpoint = channel.NewLocal(w)
		logger.Info("Dispatching through the local browser.")
	}

	sc := cfg.Scheduler()
	wake := timer.New(logger)
	sched := scheduler.New(records, wake, endpoint, logger,
		scheduler.WithDeferral(sc.Deferral),
		scheduler.WithDispatchTimeout(sc.DispatchTimeout))
	server := api.NewServer(cfg.API(), sched, logger, apiOpts...)

	wake.Start()
	defer func() {
		<-wake.Stop().Done()
		sched.Wait()
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return sched.Run(gctx) })
	g.Go(func() error { return server.ListenAndServe(gctx) })

	if sc.RecoverOnStart {
		if _, err := sched.Recover(gctx); err != nil {
			logger.Error("Recovery failed; pending messages are not armed.", zap.Error(err))
		}
	}

	logger.Info("Daemon running.", zap.String("api", cfg.API().Listen), zap.String("store", cfg.Store().Driver))
	err = g.Wait()
	logger.Info("Daemon stopped.")
	return err
}
