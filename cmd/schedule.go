// cmd/schedule.go
package cmd

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	json "github.com/json-iterator/go"
	"github.com/spf13/cobra"

	"github.com/xkilldash9x/sendlater/api/schemas"
)

// resolveTime turns the --at or --in flag into an absolute time.
func resolveTime(at string, in time.Duration, now time.Time) (time.Time, error) {
	switch {
	case at != "" && in != 0:
		return time.Time{}, errors.New("use either --at or --in, not both")
	case at != "":
		t, err := time.Parse(time.RFC3339, at)
		if err != nil {
			return time.Time{}, fmt.Errorf("--at must be RFC3339 (e.g. 2026-01-02T15:04:05+01:00): %w", err)
		}
		return t, nil
	case in > 0:
		return now.Add(in), nil
	case in < 0:
		return time.Time{}, errors.New("--in must be positive")
	default:
		return time.Time{}, errors.New("one of --at or --in is required")
	}
}

func newScheduleCmd() *cobra.Command {
	var (
		to, message, at string
		in              time.Duration
	)
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Schedule a message through the running daemon",
		Example: `  sendlater schedule --to "Alice" --message "Happy birthday!" --at 2026-05-01T09:00:00+02:00
  sendlater schedule --to "Alice" --message "Leaving now" --in 45m`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := getConfig(cmd)
			if err != nil {
				return err
			}
			when, err := resolveTime(at, in, time.Now())
			if err != nil {
				return err
			}
			c, err := newAPIClient(cfg)
			if err != nil {
				return err
			}
			rec, err := c.Schedule(cmd.Context(), to, message, when)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Scheduled %s for %s.\n", rec.ID, rec.At().Local().Format(time.RFC1123))
			return nil
		},
	}
	cmd.Flags().StringVar(&to, "to", "", "recipient as shown in the chat list")
	cmd.Flags().StringVarP(&message, "message", "m", "", "message text")
	cmd.Flags().StringVar(&at, "at", "", "delivery time (RFC3339)")
	cmd.Flags().DurationVar(&in, "in", 0, "delivery delay from now (e.g. 90m)")
	_ = cmd.MarkFlagRequired("to")
	_ = cmd.MarkFlagRequired("message")
	return cmd
}

func newListCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List scheduled messages",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := getConfig(cmd)
			if err != nil {
				return err
			}
			c, err := newAPIClient(cfg)
			if err != nil {
				return err
			}
			records, err := c.List(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				out, err := json.MarshalIndent(records, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(out))
				return nil
			}
			return printRecords(cmd.OutOrStdout(), records)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	return cmd
}

// printRecords renders records as an aligned table.
func printRecords(w io.Writer, records []schemas.ScheduledAction) error {
	if len(records) == 0 {
		_, err := fmt.Fprintln(w, "No scheduled messages.")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tSCHEDULED\tRECIPIENT\tMESSAGE\tREASON")
	for _, r := range records {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ID, r.Status, r.At().Local().Format("2006-01-02 15:04"), r.Recipient, abbreviate(r.Payload, 32), r.Reason)
	}
	return tw.Flush()
}

func abbreviate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > n {
		return string(r[:n-1]) + "…"
	}
	return s
}

func newCancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <id>",
		Short: "Cancel a scheduled message",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := getConfig(cmd)
			if err != nil {
				return err
			}
			c, err := newAPIClient(cfg)
			if err != nil {
				return err
			}
			if err := c.Cancel(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cancelled %s.\n", args[0])
			return nil
		},
	}
}

func newDispatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dispatch <id>",
		Short: "Dispatch a pending message now instead of at its scheduled time",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := getConfig(cmd)
			if err != nil {
				return err
			}
			c, err := newAPIClient(cfg)
			if err != nil {
				return err
			}
			if err := c.Dispatch(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Dispatch of %s started; check `sendlater list` for the outcome.\n", args[0])
			return nil
		},
	}
}
