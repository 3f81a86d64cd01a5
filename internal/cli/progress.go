package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/JonMunkholm/labingest/internal/core"
)

// progressPrinter writes one line per file as snapshots arrive.
// Subscribers may miss intermediate snapshots, so lines are derived from the
// difference to the last printed snapshot rather than from each event.
type progressPrinter struct {
	out  io.Writer
	prev core.Snapshot
	seen bool
}

func (p *progressPrinter) print(snap core.Snapshot) {
	if !p.seen {
		fmt.Fprintf(p.out, "Job %s: %d file(s) in %s\n", snap.JobID, snap.TotalFiles, snap.SourceDir)
		p.seen = true
	}

	for _, f := range snap.Failures[min(len(p.prev.Failures), len(snap.Failures)):] {
		fmt.Fprintf(p.out, "  FAIL %s (%s): %s\n", f.FileName, f.Stage, f.Reason)
	}

	if snap.CurrentIndex > p.prev.CurrentIndex {
		fmt.Fprintf(p.out, "  [%3d%%] %d/%d files, %d ok, %d failed\n",
			snap.Percent(), snap.CurrentIndex, snap.TotalFiles, snap.SucceededCount, snap.FailedCount)
	}

	p.prev = snap
}

// printSummary writes the final counters of a job.
func printSummary(out io.Writer, snap core.Snapshot) {
	fmt.Fprintln(out)
	fmt.Fprintf(out, "Status:        %s\n", snap.Status)
	fmt.Fprintf(out, "Files:         %d succeeded, %d failed, %d total\n", snap.SucceededCount, snap.FailedCount, snap.TotalFiles)
	fmt.Fprintf(out, "Rows:          %d inserted, %d updated\n", snap.RowsInserted, snap.RowsUpdated)
	if snap.FinishedAt != nil {
		fmt.Fprintf(out, "Duration:      %s\n", snap.FinishedAt.Sub(snap.StartedAt).Round(time.Millisecond))
	}
	if snap.LastError != "" {
		fmt.Fprintf(out, "Last error:    %s\n", snap.LastError)
	}
}

// printJobs writes a job table like 'labingest history'.
func printJobs(out io.Writer, jobs []core.Snapshot) {
	if len(jobs) == 0 {
		fmt.Fprintln(out, "No jobs found")
		return
	}

	fmt.Fprintf(out, "%-10s %-10s %-11s %-9s %-7s %-19s %s\n", "ID", "ADAPTER", "STATUS", "FILES", "FAILED", "STARTED", "INBOX")
	fmt.Fprintln(out, strings.Repeat("-", 90))
	for _, j := range jobs {
		id := j.JobID
		if len(id) > 8 {
			id = id[:8]
		}
		fmt.Fprintf(out, "%-10s %-10s %-11s %-9s %-7d %-19s %s\n",
			id, j.AdapterID, j.Status,
			fmt.Sprintf("%d/%d", j.SucceededCount, j.TotalFiles),
			j.FailedCount,
			j.StartedAt.Local().Format("2006-01-02 15:04:05"),
			j.SourceDir)
	}
}
