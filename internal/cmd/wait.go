package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/flo-mic/vmdeck/internal/view"
	"github.com/flo-mic/vmdeck/internal/vmlist"
)

// Wait polls the VM list until every given VM reaches a terminal status.
// A VM that disappears from the list counts as done.
func (h Handler) Wait(cmd *cobra.Command, args []string) error {
	ids := make([]int, 0, len(args))
	for _, a := range args {
		id, err := parseID(a)
		if err != nil {
			return err
		}
		ids = append(ids, id)
	}
	timeout, _ := cmd.Flags().GetDuration("timeout")
	poll, _ := cmd.Flags().GetDuration("interval")
	if poll <= 0 {
		return fmt.Errorf("--interval must be positive")
	}

	ctx, e, err := h.load(cmd)
	if err != nil {
		return err
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	bar := progressbar.NewOptions(len(ids),
		progressbar.OptionSetWriter(h.Err),
		progressbar.OptionSetDescription("waiting for VMs"),
		progressbar.OptionShowCount(),
		progressbar.OptionSetElapsedTime(true),
		progressbar.OptionClearOnFinish(),
	)

	done := map[int]view.Row{}
	for {
		for _, id := range ids {
			if _, ok := done[id]; ok {
				continue
			}
			row, ok := e.dash.Find(id)
			if !ok {
				row.Status = view.StatusDeleted
				row.VM.ID = id
			}
			if !row.Status.IsTerminal() {
				continue
			}
			done[id] = row
			_ = bar.Add(1)
		}
		if len(done) == len(ids) {
			break
		}

		select {
		case <-ctx.Done():
			_ = bar.Exit()
			return fmt.Errorf("waiting for %d VM(s): %w", len(ids)-len(done), ctx.Err())
		case <-time.After(poll):
		}

		if _, err := e.dash.List().Refresh(ctx, true); err != nil && !errors.Is(err, vmlist.ErrSuperseded) {
			e.log.Warn("refresh failed, retrying", "error", err)
		}
	}
	_ = bar.Finish()

	rows := make([]view.Row, 0, len(ids))
	failed := 0
	for _, id := range ids {
		rows = append(rows, done[id])
		if done[id].Status == view.StatusError {
			failed++
		}
	}
	if err := view.RenderTable(h.Out, rows, view.TableOptions{Color: h.color()}); err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d VM(s) failed", failed, len(ids))
	}
	return e.close()
}
