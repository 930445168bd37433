package display

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/grovetools/agentconsole/internal/session"
)

// PrintProjectsTable prints one row per session, grouped by project in the
// order given.
func PrintProjectsTable(projects []session.Project, writer io.Writer) {
	w := tabwriter.NewWriter(writer, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "SESSION ID\tPROJECT\tMESSAGES\tCREATED\tUPDATED")
	for _, p := range projects {
		for _, s := range p.Sessions {
			messages := "-"
			if s.MessageCount > 0 {
				messages = fmt.Sprintf("%d", s.MessageCount)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				s.ID, p.Path, messages, shortTime(s.CreatedAt), shortTime(s.UpdatedAt))
		}
	}
	w.Flush()
}

// shortTime trims an ISO timestamp to minute precision for display.
func shortTime(ts string) string {
	if len(ts) >= 16 {
		return ts[:10] + " " + ts[11:16]
	}
	return ts
}
