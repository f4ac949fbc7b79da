package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/flo-mic/vmdeck/internal/client"
	"github.com/flo-mic/vmdeck/internal/config"
	"github.com/flo-mic/vmdeck/internal/dashboard"
	"github.com/flo-mic/vmdeck/internal/notify"
	"github.com/flo-mic/vmdeck/internal/session"
	"github.com/flo-mic/vmdeck/internal/vmlist"
)

// errReported marks an error the user has already seen as a notification.
type errReported struct{ error }

func (e errReported) Unwrap() error { return e.error }

// IsReported reports whether err was already shown to the user, so main
// only needs to set the exit code.
func IsReported(err error) bool {
	var r errReported
	return errors.As(err, &r)
}

func reported(err error) error {
	if err == nil {
		return nil
	}
	return errReported{err}
}

// Streams are the standard streams of a command run.
type Streams struct {
	In  io.Reader
	Out io.Writer
	Err io.Writer
}

// StdStreams returns the process streams.
func StdStreams() Streams {
	return Streams{In: os.Stdin, Out: os.Stdout, Err: os.Stderr}
}

// Handler provides shared state for all command handlers.
type Handler struct {
	Streams
	ConfProvider   func() *config.Config
	LoggerProvider func() *slog.Logger
	// Interactive is true when forms may be shown.
	Interactive func() bool
	// Color is true when output goes to a terminal.
	Color func() bool
}

// env is everything a command needs to talk to the backend.
type env struct {
	conf     *config.Config
	log      *slog.Logger
	jar      *client.FileJar
	client   *client.Client
	list     *vmlist.Store
	notifier notify.Notifier
	dash     *dashboard.Dashboard
}

func (h Handler) conf() (*config.Config, error) {
	if h.ConfProvider == nil {
		return nil, fmt.Errorf("config provider is nil")
	}
	conf := h.ConfProvider()
	if conf == nil {
		return nil, fmt.Errorf("config not initialized")
	}
	return conf, nil
}

func (h Handler) logger() *slog.Logger {
	if h.LoggerProvider != nil {
		if l := h.LoggerProvider(); l != nil {
			return l
		}
	}
	return slog.Default()
}

func (h Handler) interactive() bool {
	return h.Interactive != nil && h.Interactive()
}

func (h Handler) color() bool {
	return h.Color != nil && h.Color()
}

// open builds the client stack without touching the network. Toasts go
// to the command's stdout unless notifier is given.
func (h Handler) open(notifier notify.Notifier, opts ...dashboard.Option) (*env, error) {
	conf, err := h.conf()
	if err != nil {
		return nil, err
	}
	sessionPath, err := config.SessionPath()
	if err != nil {
		return nil, err
	}
	jar, err := client.NewFileJar(sessionPath, conf.Server)
	if err != nil {
		return nil, fmt.Errorf("loading session: %w", err)
	}
	c, err := client.New(conf.Server, client.WithJar(jar))
	if err != nil {
		return nil, fmt.Errorf("invalid server %q: %w", conf.Server, err)
	}
	actionsPath, err := config.ActionsPath()
	if err != nil {
		return nil, err
	}
	ledger := vmlist.NewFileLedger(actionsPath, c.BaseURL())
	recorded, err := ledger.Load()
	if err != nil {
		return nil, fmt.Errorf("loading recorded actions: %w", err)
	}

	if notifier == nil {
		notifier = &notify.Printer{W: h.Out}
	}
	log := h.logger()
	list := vmlist.New(c,
		vmlist.WithNotifier(notifier),
		vmlist.WithActions(recorded),
		vmlist.WithLedger(ledger),
	)
	opts = append([]dashboard.Option{
		dashboard.WithNotifier(notifier),
		dashboard.WithLogger(log),
		dashboard.WithInterval(conf.RefreshInterval),
	}, opts...)

	return &env{
		conf:     conf,
		log:      log,
		jar:      jar,
		client:   c,
		list:     list,
		notifier: notifier,
		dash:     dashboard.New(session.New(c), list, opts...),
	}, nil
}

// connect opens the stack and requires a live backend session.
func (h Handler) connect(cmd *cobra.Command) (context.Context, *env, error) {
	e, err := h.open(nil)
	if err != nil {
		return nil, nil, err
	}
	ctx := commandContext(cmd)
	e.dash.Session().Probe(ctx)
	if !e.dash.Session().IsAuthenticated() {
		return nil, nil, fmt.Errorf("%w to %s, run 'vmdeck login' first", dashboard.ErrNotLoggedIn, e.conf.Server)
	}
	return ctx, e, nil
}

// load connects and fetches the VM list once.
func (h Handler) load(cmd *cobra.Command) (context.Context, *env, error) {
	ctx, e, err := h.connect(cmd)
	if err != nil {
		return nil, nil, err
	}
	if _, err := e.dash.List().Refresh(ctx, true); err != nil {
		return nil, nil, fmt.Errorf("loading VMs: %s", client.Message(err))
	}
	return ctx, e, nil
}

func (e *env) close() error {
	return errors.Join(e.jar.Err(), e.list.Err())
}

// commandContext returns command context, falling back to Background.
func commandContext(cmd *cobra.Command) context.Context {
	if cmd != nil && cmd.Context() != nil {
		return cmd.Context()
	}
	return context.Background()
}

func isTerminal(v interface{}) bool {
	f, ok := v.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func terminalHeight(v interface{}) int {
	f, ok := v.(*os.File)
	if !ok {
		return 0
	}
	_, h, err := term.GetSize(int(f.Fd()))
	if err != nil {
		return 0
	}
	return h
}
