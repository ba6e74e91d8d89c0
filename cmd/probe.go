// cmd/probe.go
package cmd

import (
	"errors"
	"fmt"

	json "github.com/json-iterator/go"
	"github.com/spf13/cobra"

	"github.com/xkilldash9x/sendlater/internal/automation"
	"github.com/xkilldash9x/sendlater/internal/browser/dom/htmltree"
	"github.com/xkilldash9x/sendlater/internal/browser/page"
	"github.com/xkilldash9x/sendlater/internal/observability"
)

func newProbeCmd() *cobra.Command {
	var htmlFile, to string
	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Check the selector fallback chains against a saved page",
		Long: `Loads an HTML snapshot of the chat application (for example saved with the
browser's "Save page as") and reports, for every step of a send, which candidate
locator currently matches. Nothing is clicked or typed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := getConfig(cmd)
			if err != nil {
				return err
			}
			logger := observability.GetLogger()

			doc, err := htmltree.ParseFile(htmlFile)
			if err != nil {
				return err
			}
			defer doc.Close()

			settings, err := automationSettings(cfg)
			if err != nil {
				return err
			}
			script := automation.New(page.New(doc, newEngine(cfg, logger)), logger, automation.WithSettings(settings))
			report := script.Probe(cmd.Context(), to)

			out, err := json.MarshalIndent(report, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			if !report.OK() {
				return errors.New("at least one chain has no matching candidate")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&htmlFile, "html", "", "HTML snapshot of the chat application")
	cmd.Flags().StringVar(&to, "to", "", "recipient to look up in the chat list")
	_ = cmd.MarkFlagRequired("html")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}
