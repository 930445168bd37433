package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/grovetools/agentconsole/internal/session"
	grovelogging "github.com/grovetools/core/logging"
	"github.com/spf13/cobra"
)

var ulogDelete = grovelogging.NewUnifiedLogger("agconsole.cmd.delete")

func newDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete [project] <session>",
		Short: "Delete a session transcript",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			cache := openCache(cfg)
			ref, err := sessionRef(cache, args)
			if err != nil {
				return err
			}

			if err := cache.DeleteSession(ref.Project, ref.SessionID); err != nil {
				if errors.Is(err, session.ErrNotFound) {
					return fmt.Errorf("session %s/%s not found", ref.Project, ref.SessionID)
				}
				return err
			}

			ulogDelete.Info("Deleted session").
				Field("project", ref.Project).
				Field("session_id", ref.SessionID).
				Pretty(fmt.Sprintf("Deleted session %s\n", ref.SessionID)).
				PrettyOnly().
				Log(ctx)
			return nil
		},
	}

	return cmd
}
