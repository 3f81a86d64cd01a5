package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/labingest/internal/config"
	"github.com/JonMunkholm/labingest/internal/core"
)

var runFlags struct {
	adapter string
	source  string
	dest    string
	policy  string
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Ingest every pending file in an inbox",
	Long: `Run one ingestion job in this process and print its progress.

Ctrl+C cancels after the file being processed; press it again to exit
immediately (the open transaction is rolled back).

The command exits non-zero when the job fails, is cancelled, or any file
was skipped.

Examples:
  labingest run --adapter vicell --source /mnt/vicell/inbox --dest /mnt/vicell/archive
  labingest run --adapter cesds --source ./inbox --dest ./archive --policy halt`,
	Args: cobra.NoArgs,
	RunE: runIngest,
}

func init() {
	runCmd.Flags().StringVarP(&runFlags.adapter, "adapter", "a", "", "instrument adapter key (see 'labingest adapters')")
	runCmd.Flags().StringVarP(&runFlags.source, "source", "s", "", "inbox directory")
	runCmd.Flags().StringVarP(&runFlags.dest, "dest", "d", "", "archive directory")
	runCmd.Flags().StringVar(&runFlags.policy, "policy", "", "error policy: skip or halt (default from INGEST_ERROR_POLICY)")
	for _, name := range []string{"adapter", "source", "dest"} {
		_ = runCmd.MarkFlagRequired(name)
	}
}

func runIngest(cmd *cobra.Command, args []string) error {
	if p := runFlags.policy; p != "" && p != string(core.PolicySkip) && p != string(core.PolicyHalt) {
		return fmt.Errorf("invalid --policy %q: must be skip or halt", p)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := loadApp(ctx, func(cfg *config.Config) {
		if runFlags.policy != "" {
			cfg.Ingest.ErrorPolicy = runFlags.policy
		}
	})
	if err != nil {
		return err
	}
	defer closeApp(cmd, app)

	jobID, err := app.Service.Start(core.ContextWithTrigger(ctx, core.TriggerCLI), core.StartRequest{
		SourceDir: runFlags.source,
		DestDir:   runFlags.dest,
		AdapterID: runFlags.adapter,
	})
	if err != nil {
		return describe(err)
	}

	out := cmd.OutOrStdout()
	snap, err := follow(ctx, out, app.Service, jobID, stop)
	if err != nil {
		return err
	}
	printSummary(out, snap)
	return jobOutcome(snap)
}

// follow prints progress until the job is terminal. The first interrupt
// cancels the job and restores default signal handling via release.
func follow(ctx context.Context, out io.Writer, svc *core.Service, jobID string, release func()) (core.Snapshot, error) {
	updates, unsubscribe, err := svc.Subscribe(jobID)
	if err != nil {
		return core.Snapshot{}, err
	}
	defer unsubscribe()

	p := &progressPrinter{out: out}
	done := ctx.Done()
	var last core.Snapshot

	for {
		select {
		case snap, ok := <-updates:
			if !ok {
				return last, nil
			}
			p.print(snap)
			last = snap

		case <-done:
			done = nil
			release()
			fmt.Fprintln(out, "Cancelling after the current file... (Ctrl+C again to abort)")
			if err := svc.Cancel(jobID); err != nil {
				return last, err
			}
		}
	}
}

// describe adds the user-facing guidance to a start error.
func describe(err error) error {
	msg := core.MapError(err)
	return fmt.Errorf("%w\n  %s (code %s)", err, msg.Action, msg.Code)
}

// jobOutcome turns a terminal snapshot into the command's exit error.
func jobOutcome(snap core.Snapshot) error {
	switch {
	case snap.Status == core.StatusFailed:
		return fmt.Errorf("job failed: %s", snap.LastError)
	case snap.Status == core.StatusCancelled:
		return fmt.Errorf("job cancelled after %d of %d files", snap.CurrentIndex, snap.TotalFiles)
	case snap.FailedCount > 0:
		return fmt.Errorf("%d of %d files failed and remain in the inbox", snap.FailedCount, snap.TotalFiles)
	}
	return nil
}
