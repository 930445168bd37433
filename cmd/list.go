package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/grovetools/agentconsole/internal/display"
	"github.com/grovetools/agentconsole/internal/session"
	"github.com/spf13/cobra"
)

func newListCmd() *cobra.Command {
	var jsonOutput bool
	var projectFilter string

	cmd := &cobra.Command{
		Use:   "list [flags]",
		Short: "List available session transcripts",
		Long:  "List available session transcripts grouped by project, optionally filtered by project path",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			projects := openCache(cfg).ListProjects()

			if projectFilter != "" {
				filter := strings.ToLower(projectFilter)
				var filtered []session.Project
				for _, p := range projects {
					if strings.Contains(strings.ToLower(p.Path), filter) ||
						strings.Contains(strings.ToLower(p.EncodedPath), filter) {
						filtered = append(filtered, p)
					}
				}
				projects = filtered
			}

			if jsonOutput {
				if projects == nil {
					projects = []session.Project{}
				}
				data, err := json.MarshalIndent(projects, "", "  ")
				if err != nil {
					return fmt.Errorf("failed to marshal projects to JSON: %w", err)
				}
				fmt.Println(string(data))
				return nil
			}

			if len(projects) == 0 {
				if projectFilter != "" {
					fmt.Printf("No session transcripts found for project matching '%s'\n", projectFilter)
				} else {
					fmt.Println("No session transcripts found.")
				}
				return nil
			}

			display.PrintProjectsTable(projects, os.Stdout)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	cmd.Flags().StringVarP(&projectFilter, "project", "p", "", "Filter by project path (case-insensitive substring match)")

	return cmd
}
