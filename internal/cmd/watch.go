package cmd

import (
	"bytes"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/flo-mic/vmdeck/internal/dashboard"
	"github.com/flo-mic/vmdeck/internal/notify"
	"github.com/flo-mic/vmdeck/internal/view"
	"github.com/flo-mic/vmdeck/internal/vmlist"
)

const (
	clearScreen = "\033[H\033[2J"
	// header, banner, table header, footer and the toast area
	watchChrome = 12
	feedSize    = 3
)

// Watch shows the dashboard until interrupted. On a terminal the screen is
// redrawn on every list change; otherwise each change prints the table and
// notifications go to the log.
func (h Handler) Watch(cmd *cobra.Command, _ []string) error {
	tty := isTerminal(h.Out)

	var (
		feed     *notify.Feed
		notifier notify.Notifier
	)
	if tty {
		feed = notify.NewFeed(feedSize)
		notifier = feed
	} else {
		notifier = notify.Logger{Log: h.logger()}
	}

	e, err := h.open(notifier)
	if err != nil {
		return err
	}
	changed := make(chan struct{}, 1)
	poke := func() {
		select {
		case changed <- struct{}{}:
		default:
		}
	}
	unsubscribe := e.dash.List().Subscribe(func(vmlist.Snapshot) { poke() })
	defer unsubscribe()

	ctx := commandContext(cmd)
	if !e.dash.Start(ctx) {
		return fmt.Errorf("%w to %s, run 'vmdeck login' first", dashboard.ErrNotLoggedIn, e.conf.Server)
	}
	defer e.dash.Stop()

	page, _ := cmd.Flags().GetInt("page")
	size := e.conf.PageSize
	if tty {
		if rows := terminalHeight(h.Out) - watchChrome; rows > 0 {
			size = rows
		}
	}

	w := watchScreen{
		out:    h.Out,
		tty:    tty,
		color:  h.color(),
		server: e.conf.Server,
		user:   e.dash.Session().User().Username,
		page:   page,
		size:   size,
		feed:   feed,
	}

	poke()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-changed:
				if err := w.draw(e.dash.List().Snapshot()); err != nil {
					return err
				}
			}
		}
	})
	g.Go(func() error {
		<-gctx.Done()
		e.dash.Stop()
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}
	return e.close()
}

type watchScreen struct {
	out    io.Writer
	tty    bool
	color  bool
	server string
	user   string
	page   int
	size   int
	feed   *notify.Feed
}

// draw renders one frame into a buffer and writes it at once.
func (w watchScreen) draw(snap vmlist.Snapshot) error {
	var buf bytes.Buffer
	if w.tty {
		buf.WriteString(clearScreen)
		fmt.Fprintf(&buf, "vmdeck  %s  user %s", w.server, w.user)
		if !snap.UpdatedAt.IsZero() {
			fmt.Fprintf(&buf, "  updated %s", snap.UpdatedAt.Format("15:04:05"))
		}
		buf.WriteString("\n\n")
	}
	if err := view.RenderBanner(&buf, snap.Banner, w.color); err != nil {
		return err
	}

	if !snap.Loaded {
		buf.WriteString("Loading VMs...\n")
	} else {
		rows := view.Rows(snap)
		page := view.ClampPage(w.page, len(rows), w.size)
		if err := view.RenderTable(&buf, view.Page(rows, page, w.size), view.TableOptions{Color: w.color}); err != nil {
			return err
		}
		if len(rows) > w.size {
			fmt.Fprintf(&buf, "\nPage %d/%d (%d VMs)\n", page, view.PageCount(len(rows), w.size), len(rows))
		}
	}

	if w.feed != nil {
		if toasts := w.feed.Toasts(); len(toasts) > 0 {
			buf.WriteString("\n")
			for _, t := range toasts {
				buf.WriteString(notify.FormatLine(t))
				buf.WriteString("\n")
			}
		}
	}
	if !w.tty {
		buf.WriteString("\n")
	}
	_, err := w.out.Write(buf.Bytes())
	return err
}
