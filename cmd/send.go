// cmd/send.go
package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/sendlater/api/schemas"
	"github.com/xkilldash9x/sendlater/internal/observability"
)

func newSendCmd() *cobra.Command {
	var (
		to, message string
		settle      time.Duration
	)
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send a message right away through a local browser",
		Long: `Opens the chat application in the configured browser profile and sends one
message immediately, without involving the daemon. Useful to check that the
profile is logged in and that the automation still matches the application.`,
		Args: cobra.NoArgs,
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

			if !manager.Available(ctx) {
				if err := manager.Open(ctx); err != nil {
					return fmt.Errorf("failed to open the chat application: %w", err)
				}
				logger.Info("Waiting for the chat application to settle.", zap.Duration("settle", settle))
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(settle):
				}
			}

			resp := w.Handle(ctx, schemas.DispatchRequest{
				Action:    schemas.ActionDispatch,
				Recipient: to,
				Payload:   message,
			})
			if !resp.OK {
				return fmt.Errorf("send failed: %s", resp.Reason)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Sent to %s.\n", to)
			return nil
		},
	}
	cmd.Flags().StringVar(&to, "to", "", "recipient as shown in the chat list")
	cmd.Flags().StringVarP(&message, "message", "m", "", "message text")
	cmd.Flags().DurationVar(&settle, "settle", 10*time.Second, "delay between opening the application and sending")
	_ = cmd.MarkFlagRequired("to")
	_ = cmd.MarkFlagRequired("message")
	return cmd
}
