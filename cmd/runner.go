// cmd/runner.go
package cmd

import (
	"context"
	"errors"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/sendlater/internal/channel"
	"github.com/xkilldash9x/sendlater/internal/observability"
)

func newRunnerCmd() *cobra.Command {
	var openFirst bool
	cmd := &cobra.Command{
		Use:   "runner",
		Short: "Drive a browser on behalf of a daemon running in hub mode",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := getConfig(cmd)
			if err != nil {
				return err
			}
			logger := observability.GetLogger()
			ctx := cmd.Context()

			w, manager, err := newBrowserWorker(cfg, logger)
			if err != nil {
				return err
			}
			defer closeManager(manager, logger)

			if openFirst {
				if err := manager.Open(ctx); err != nil {
					logger.Warn("Could not open the chat application; it will be opened on demand.", zap.Error(err))
				}
			}

			cc := cfg.Channel()
			client := channel.NewClient(cc.HubURL, w, logger,
				channel.WithHeaderFunc(runnerHeader(cfg.API().AuthSecret)),
				channel.WithMaxReconnectInterval(cc.MaxReconnect))
			err = client.Run(ctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
	cmd.Flags().BoolVar(&openFirst, "open", true, "open the chat application right away so you can log in")
	cmd.Flags().String("hub", "", "hub websocket URL (overrides channel.hub_url)")
	cmd.Flags().Bool("headless", false, "run the browser headless (overrides browser.headless)")
	overrides(cmd.Flags(), "hub", "channel.hub_url")
	overrides(cmd.Flags(), "headless", "browser.headless")
	return cmd
}
