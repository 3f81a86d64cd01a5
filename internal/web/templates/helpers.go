// Package templates renders the HTML views of the ingestion portal.
//
// Views live in .templ files; the _templ.go files next to them are generated
// with `templ generate` and must not be edited by hand.
package templates

import (
	"fmt"
	"strings"

	"github.com/JonMunkholm/labingest/internal/core"
)

const timeLayout = "2006-01-02 15:04:05"

func statusLabel(s core.JobStatus) string {
	if s == "" {
		return "Unknown"
	}
	return strings.ToUpper(string(s[:1])) + string(s[1:])
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func counters(snap core.Snapshot) string {
	return fmt.Sprintf("%d of %d files · %d succeeded · %d failed · %d rows inserted · %d rows updated",
		snap.CurrentIndex, snap.TotalFiles, snap.SucceededCount, snap.FailedCount, snap.RowsInserted, snap.RowsUpdated)
}

// refreshSeconds keeps a job page reloading until the job is terminal.
func refreshSeconds(snap core.Snapshot) int {
	if snap.Status.Terminal() {
		return 0
	}
	return 2
}
