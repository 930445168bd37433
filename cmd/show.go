package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/grovetools/agentconsole/internal/display"
	"github.com/grovetools/agentconsole/internal/formatters"
	"github.com/grovetools/agentconsole/internal/session"
	grovelogging "github.com/grovetools/core/logging"
	"github.com/spf13/cobra"
)

var ulogShow = grovelogging.NewUnifiedLogger("agconsole.cmd.show")

func newShowCmd() *cobra.Command {
	var format string
	var detailLevel string
	var role string
	var tail int

	cmd := &cobra.Command{
		Use:   "show [project] <session>",
		Short: "Print a session transcript",
		Long: `Print a session transcript. [project] is either the encoded project
directory name or the project's working directory path. Without it, <session>
may be a transcript path, a session ID, or a unique session-ID prefix.

Formats: text (default, for the terminal), markdown, json, html.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			detail, cfg, err := loadSession(args)
			if err != nil {
				return err
			}
			if detailLevel == "" {
				detailLevel = cfg.Display.DetailLevel
			}
			if detailLevel != "summary" && detailLevel != "full" {
				return fmt.Errorf("invalid detail level %q: must be 'summary' or 'full'", detailLevel)
			}

			shown := detail
			if role != "" || tail > 0 {
				shown = detail.Filter(role, tail)
			}

			var out string
			switch strings.ToLower(format) {
			case "", "text":
				out = display.RenderTranscript(shown, display.Options{
					Full:  detailLevel == "full",
					Tools: formatters.Default(cfg.Display.MaxDiffLines),
				})
			case "markdown", "md", session.FormatJSON, session.FormatHTML:
				rendered, err := session.Export(shown, format)
				if err != nil {
					return err
				}
				out = string(rendered.Body)
				if !strings.HasSuffix(out, "\n") {
					out += "\n"
				}
			default:
				return fmt.Errorf("unknown format %q: must be text, markdown, json, or html", format)
			}

			ulogShow.Info("Session transcript").
				Field("session_id", detail.ID).
				Field("project", detail.ProjectPath).
				Field("message_count", len(shown.Messages)).
				Field("format", format).
				Pretty(out).
				PrettyOnly().
				Log(ctx)
			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "text", "Output format: text, markdown, json, or html")
	cmd.Flags().StringVar(&detailLevel, "detail", "", "Set detail level for text output ('summary' or 'full'). Overrides config.")
	cmd.Flags().StringVar(&role, "role", "", "Only show messages with this role (user or assistant)")
	cmd.Flags().IntVarP(&tail, "tail", "n", 0, "Only show the last N messages")

	return cmd
}
