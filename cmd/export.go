package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/grovetools/agentconsole/internal/session"
	grovelogging "github.com/grovetools/core/logging"
	"github.com/spf13/cobra"
)

var ulogExport = grovelogging.NewUnifiedLogger("agconsole.cmd.export")

func newExportCmd() *cobra.Command {
	var format string
	var output string

	cmd := &cobra.Command{
		Use:   "export [project] <session>",
		Short: "Export a session transcript to a file",
		Long: `Export a session transcript as markdown (default), json, or html.

The file is written to <session_id>.<ext> in the current directory unless
--output is given. Use --output - to write to stdout.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			detail, _, err := loadSession(args)
			if err != nil {
				return err
			}
			rendered, err := session.Export(detail, format)
			if err != nil {
				return err
			}

			if output == "-" {
				_, err := os.Stdout.Write(rendered.Body)
				return err
			}
			if output == "" {
				output = rendered.Filename(detail.ID)
			}
			if err := os.WriteFile(output, rendered.Body, 0644); err != nil {
				return fmt.Errorf("failed to write export: %w", err)
			}

			ulogExport.Info("Exported session").
				Field("session_id", detail.ID).
				Field("format", session.ParseFormat(format)).
				Field("output", output).
				Field("bytes", len(rendered.Body)).
				Pretty(fmt.Sprintf("Exported session %s to %s\n", detail.ID, output)).
				PrettyOnly().
				Log(ctx)
			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", session.FormatMarkdown, "Export format: markdown, json, or html")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file path, or - for stdout")

	return cmd
}
