package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/grovetools/tend/pkg/assert"
	"github.com/grovetools/tend/pkg/command"
	"github.com/grovetools/tend/pkg/fs"
	"github.com/grovetools/tend/pkg/harness"
)

const (
	alphaSession = "3c1f6a2e-7b84-4d1a-9e55-0a2b3c4d5e6f"
	betaSession  = "8d2e4f60-1a3b-4c5d-8e7f-9a0b1c2d3e4f"
)

// setupMockClaudeDir creates a mock ~/.claude tree with two projects.
func setupMockClaudeDir(ctx *harness.Context) error {
	homeDir := ctx.NewDir("home")
	projectsDir := filepath.Join(homeDir, ".claude", "projects")

	alphaDir := filepath.Join(projectsDir, "-tmp-project-alpha")
	if err := fs.CreateDir(alphaDir); err != nil {
		return err
	}
	alpha := `{"cwd":"/tmp/project-alpha","sessionId":"` + alphaSession + `","uuid":"1","parentUuid":null,"type":"user","message":{"role":"user","content":"Hello"},"timestamp":"2025-01-01T12:00:00.000Z"}
{"uuid":"2","parentUuid":"1","type":"assistant","message":{"role":"assistant","content":[{"type":"text","text":"Hi there!"}]},"timestamp":"2025-01-01T12:00:01.000Z"}
{"uuid":"3","parentUuid":"2","type":"user","message":{"role":"user","content":"How are you?"},"timestamp":"2025-01-01T12:00:02.000Z"}
{"uuid":"4","parentUuid":"3","type":"assistant","message":{"role":"assistant","content":[{"type":"text","text":"I'm doing well, thank you!"}]},"timestamp":"2025-01-01T12:00:03.000Z"}
`
	if err := fs.WriteString(filepath.Join(alphaDir, alphaSession+".jsonl"), alpha); err != nil {
		return fmt.Errorf("failed to write alpha transcript: %w", err)
	}

	betaDir := filepath.Join(projectsDir, "-tmp-project-beta")
	if err := fs.CreateDir(betaDir); err != nil {
		return err
	}
	beta := `{"cwd":"/tmp/project-beta","sessionId":"` + betaSession + `","uuid":"1","parentUuid":null,"type":"user","message":{"role":"user","content":"Test message"},"timestamp":"2025-01-02T10:00:00.000Z"}
`
	if err := fs.WriteString(filepath.Join(betaDir, betaSession+".jsonl"), beta); err != nil {
		return fmt.Errorf("failed to write beta transcript: %w", err)
	}

	ctx.Set("mock_home", homeDir)
	return nil
}

type runResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// runAgconsole runs the binary against the mock home directory.
func runAgconsole(ctx *harness.Context, args ...string) (*runResult, error) {
	bin, err := FindProjectBinary()
	if err != nil {
		return nil, err
	}
	homeDir := ctx.GetString("mock_home")
	cmd := command.New(bin, args...).
		Env("HOME=" + homeDir).
		Env("CLAUDE_HOME=" + filepath.Join(homeDir, ".claude"))
	result := cmd.Run()
	ctx.ShowCommandOutput(cmd.String(), result.Stdout, result.Stderr)
	return &runResult{Stdout: result.Stdout, Stderr: result.Stderr, ExitCode: result.ExitCode}, nil
}

// ListScenario tests the 'agconsole list' command
func ListScenario() *harness.Scenario {
	return &harness.Scenario{
		Name: "agconsole-list-command",
		Steps: []harness.Step{
			harness.NewStep("Setup mock Claude directory", setupMockClaudeDir),
			harness.NewStep("Run 'agconsole list'", func(ctx *harness.Context) error {
				result, err := runAgconsole(ctx, "list")
				if err != nil {
					return err
				}
				if result.ExitCode != 0 {
					return fmt.Errorf("agconsole list failed: %s", result.Stderr)
				}
				if err := assert.Contains(result.Stdout, "SESSION ID", "Should print table header"); err != nil {
					return err
				}
				if err := assert.Contains(result.Stdout, alphaSession, "Should list the alpha session"); err != nil {
					return err
				}
				return assert.Contains(result.Stdout, "/tmp/project-beta", "Should list project-beta")
			}),
			harness.NewStep("Run 'agconsole list --json'", func(ctx *harness.Context) error {
				result, err := runAgconsole(ctx, "list", "--json")
				if err != nil {
					return err
				}
				if result.ExitCode != 0 {
					return fmt.Errorf("agconsole list --json failed: %s", result.Stderr)
				}

				var projects []map[string]interface{}
				if err := json.Unmarshal([]byte(result.Stdout), &projects); err != nil {
					return fmt.Errorf("failed to parse JSON output: %w", err)
				}
				if err := assert.Equal(2, len(projects), "Should list two projects"); err != nil {
					return err
				}
				for _, project := range projects {
					for _, field := range []string{"path", "encodedPath", "sessions"} {
						if _, ok := project[field]; !ok {
							return fmt.Errorf("missing %s field in JSON output", field)
						}
					}
				}
				return nil
			}),
			harness.NewStep("Run 'agconsole list --project alpha'", func(ctx *harness.Context) error {
				result, err := runAgconsole(ctx, "list", "--project", "alpha")
				if err != nil {
					return err
				}
				if result.ExitCode != 0 {
					return fmt.Errorf("agconsole list --project alpha failed: %s", result.Stderr)
				}
				if err := assert.Contains(result.Stdout, alphaSession, "Should list the alpha session"); err != nil {
					return err
				}
				return assert.NotContains(result.Stdout, "project-beta", "Should not list project-beta")
			}),
		},
	}
}

// ShowScenario tests the 'agconsole show' command
func ShowScenario() *harness.Scenario {
	return &harness.Scenario{
		Name: "agconsole-show-command",
		Steps: []harness.Step{
			harness.NewStep("Setup mock Claude directory", setupMockClaudeDir),
			harness.NewStep("Run 'agconsole show'", func(ctx *harness.Context) error {
				result, err := runAgconsole(ctx, "show", "-tmp-project-alpha", alphaSession)
				if err != nil {
					return err
				}
				if err := assert.Equal(0, result.ExitCode, "agconsole show should exit successfully"); err != nil {
					return err
				}
				if err := assert.Contains(result.Stdout, "How are you?", "Should show user messages"); err != nil {
					return err
				}
				return assert.Contains(result.Stdout, "Hi there!", "Should show assistant messages")
			}),
			harness.NewStep("Run 'agconsole show' by project path with role filter", func(ctx *harness.Context) error {
				result, err := runAgconsole(ctx, "show", "/tmp/project-alpha", alphaSession, "--role", "user", "--tail", "1")
				if err != nil {
					return err
				}
				if err := assert.Equal(0, result.ExitCode, "agconsole show should exit successfully"); err != nil {
					return err
				}
				if err := assert.Contains(result.Stdout, "How are you?", "Should show the last user message"); err != nil {
					return err
				}
				if err := assert.NotContains(result.Stdout, "Hello", "Should drop earlier messages"); err != nil {
					return err
				}
				return assert.NotContains(result.Stdout, "Hi there!", "Should drop assistant messages")
			}),
			harness.NewStep("Run 'agconsole show' by session-ID prefix", func(ctx *harness.Context) error {
				result, err := runAgconsole(ctx, "show", alphaSession[:8], "--format", "markdown")
				if err != nil {
					return err
				}
				if err := assert.Equal(0, result.ExitCode, "agconsole show should exit successfully"); err != nil {
					return err
				}
				return assert.Contains(result.Stdout, alphaSession, "Should resolve the prefix to the alpha session")
			}),
			harness.NewStep("Run 'agconsole show' for a missing session", func(ctx *harness.Context) error {
				result, err := runAgconsole(ctx, "show", "-tmp-project-alpha", betaSession)
				if err != nil {
					return err
				}
				if result.ExitCode == 0 {
					return fmt.Errorf("expected agconsole show to fail for a missing session")
				}
				return nil
			}),
		},
	}
}

// ExportScenario tests the 'agconsole export' command
func ExportScenario() *harness.Scenario {
	return &harness.Scenario{
		Name: "agconsole-export-command",
		Steps: []harness.Step{
			harness.NewStep("Setup mock Claude directory", setupMockClaudeDir),
			harness.NewStep("Export as markdown", func(ctx *harness.Context) error {
				out := filepath.Join(ctx.NewDir("export"), "alpha.md")
				result, err := runAgconsole(ctx, "export", "-tmp-project-alpha", alphaSession, "--output", out)
				if err != nil {
					return err
				}
				if err := assert.Equal(0, result.ExitCode, "agconsole export should exit successfully"); err != nil {
					return err
				}
				data, err := os.ReadFile(out)
				if err != nil {
					return fmt.Errorf("export file not written: %w", err)
				}
				if err := assert.Contains(string(data), "# Claude Session", "Should write a markdown heading"); err != nil {
					return err
				}
				return assert.Contains(string(data), "I'm doing well, thank you!", "Should include assistant text")
			}),
			harness.NewStep("Export as json to stdout", func(ctx *harness.Context) error {
				result, err := runAgconsole(ctx, "export", "-tmp-project-alpha", alphaSession, "--format", "json", "--output", "-")
				if err != nil {
					return err
				}
				if err := assert.Equal(0, result.ExitCode, "agconsole export should exit successfully"); err != nil {
					return err
				}
				var detail struct {
					ID       string            `json:"id"`
					Messages []json.RawMessage `json:"messages"`
				}
				if err := json.Unmarshal([]byte(result.Stdout), &detail); err != nil {
					return fmt.Errorf("failed to parse JSON export: %w", err)
				}
				if err := assert.Equal(alphaSession, detail.ID, "Should export the requested session"); err != nil {
					return err
				}
				return assert.Equal(4, len(detail.Messages), "Should export every record")
			}),
		},
	}
}

// DeleteScenario tests the 'agconsole delete' command
func DeleteScenario() *harness.Scenario {
	return &harness.Scenario{
		Name: "agconsole-delete-command",
		Steps: []harness.Step{
			harness.NewStep("Setup mock Claude directory", setupMockClaudeDir),
			harness.NewStep("Delete the beta session", func(ctx *harness.Context) error {
				result, err := runAgconsole(ctx, "delete", "-tmp-project-beta", betaSession)
				if err != nil {
					return err
				}
				if err := assert.Equal(0, result.ExitCode, "agconsole delete should exit successfully"); err != nil {
					return err
				}
				transcript := filepath.Join(ctx.GetString("mock_home"), ".claude", "projects", "-tmp-project-beta", betaSession+".jsonl")
				if _, err := os.Stat(transcript); !os.IsNotExist(err) {
					return fmt.Errorf("transcript still exists after delete")
				}
				return nil
			}),
			harness.NewStep("Deleted session is no longer listed", func(ctx *harness.Context) error {
				result, err := runAgconsole(ctx, "list")
				if err != nil {
					return err
				}
				if err := assert.Contains(result.Stdout, alphaSession, "Should still list alpha"); err != nil {
					return err
				}
				return assert.NotContains(result.Stdout, betaSession, "Should not list the deleted session")
			}),
			harness.NewStep("Deleting again fails", func(ctx *harness.Context) error {
				result, err := runAgconsole(ctx, "delete", "-tmp-project-beta", betaSession)
				if err != nil {
					return err
				}
				if result.ExitCode == 0 {
					return fmt.Errorf("expected second delete to fail")
				}
				return nil
			}),
		},
	}
}
