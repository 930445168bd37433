package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/grovetools/agentconsole/config"
	"github.com/grovetools/agentconsole/internal/session"
	"github.com/grovetools/core/cli"
	"github.com/spf13/cobra"
)

var (
	configFile  string
	claudeHome  string
	groveConfig string
)

// NewRootCmd creates the root command for agconsole.
func NewRootCmd() *cobra.Command {
	rootCmd := cli.NewStandardCommand(
		"agconsole",
		"Browse, export, and serve agent session transcripts",
	)

	rootCmd.PersistentFlags().StringVar(&configFile, "config-file", "", "Path to a standalone agconsole YAML config file (applied over grove.yml)")
	rootCmd.PersistentFlags().StringVar(&claudeHome, "claude-home", "", "Agent home directory (overrides CLAUDE_HOME)")
	rootCmd.PersistentPreRunE = applyStandardFlags

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newListCmd())
	rootCmd.AddCommand(newShowCmd())
	rootCmd.AddCommand(newExportCmd())
	rootCmd.AddCommand(newDeleteCmd())
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

// applyStandardFlags reads the grove standard flags registered by
// cli.NewStandardCommand. It runs before the cache, watcher and server create
// their loggers, so --verbose reaches them through GROVE_LOG_LEVEL.
func applyStandardFlags(cmd *cobra.Command, args []string) error {
	var err error
	if groveConfig, err = cmd.Flags().GetString("config"); err != nil {
		return err
	}
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		return err
	}
	if verbose && os.Getenv("GROVE_LOG_LEVEL") == "" {
		return os.Setenv("GROVE_LOG_LEVEL", "debug")
	}
	return nil
}

func loadConfig() (config.Config, error) {
	cfg, err := config.Load(groveConfig, configFile)
	if err != nil {
		return cfg, fmt.Errorf("failed to load config: %w", err)
	}
	if claudeHome != "" {
		cfg.ClaudeHome = claudeHome
	}
	return cfg, nil
}

func openCache(cfg config.Config) *session.Cache {
	return session.NewCache(cfg.ProjectsDir(), session.Options{
		TTL:        cfg.Cache.TTL,
		MaxEntries: cfg.Cache.MaxEntries,
	})
}

// resolveProject accepts either an encoded project directory name or the
// project's working-directory path.
func resolveProject(cache *session.Cache, arg string) string {
	if !strings.ContainsRune(arg, filepath.Separator) {
		return arg
	}
	for _, p := range cache.ListProjects() {
		if p.Path == arg {
			return p.EncodedPath
		}
	}
	return arg
}

// sessionRef reads "<project> <session_id>" or a single session spec: a
// transcript path, a session ID, or a unique session-ID prefix.
func sessionRef(cache *session.Cache, args []string) (session.Ref, error) {
	if len(args) == 2 {
		return session.Ref{Project: resolveProject(cache, args[0]), SessionID: args[1]}, nil
	}
	ref, err := cache.Resolve(args[0])
	if err != nil {
		return ref, fmt.Errorf("failed to resolve session: %w", err)
	}
	return ref, nil
}

// loadSession opens the cache and reads one transcript.
func loadSession(args []string) (*session.SessionDetail, config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, cfg, err
	}
	cache := openCache(cfg)
	ref, err := sessionRef(cache, args)
	if err != nil {
		return nil, cfg, err
	}
	detail, err := cache.GetSessionDetail(ref.Project, ref.SessionID)
	if err != nil {
		return nil, cfg, fmt.Errorf("failed to load session %s/%s: %w", ref.Project, ref.SessionID, err)
	}
	return detail, cfg, nil
}
