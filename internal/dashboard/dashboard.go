// Package dashboard implements the user actions of the VM dashboard on top
// of the session and list stores. Every failure is turned into exactly one
// notification and returned; none of them is fatal.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/flo-mic/vmdeck/internal/api"
	"github.com/flo-mic/vmdeck/internal/batch"
	"github.com/flo-mic/vmdeck/internal/client"
	"github.com/flo-mic/vmdeck/internal/notify"
	"github.com/flo-mic/vmdeck/internal/session"
	"github.com/flo-mic/vmdeck/internal/view"
	"github.com/flo-mic/vmdeck/internal/vmlist"
)

var (
	// ErrNotLoggedIn is returned by actions that need a session.
	ErrNotLoggedIn = errors.New("not logged in")
	// ErrVMNotFound is returned when an id is not in the current list.
	ErrVMNotFound = errors.New("VM not found")
)

// Option configures a Dashboard.
type Option func(*Dashboard)

// WithNotifier sets where toasts go. Defaults to notify.Discard.
func WithNotifier(n notify.Notifier) Option {
	return func(d *Dashboard) { d.notifier = n }
}

// WithLogger sets the logger for action traces. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(d *Dashboard) { d.log = l }
}

// WithInterval sets the auto-refresh period. Defaults to vmlist.DefaultInterval.
func WithInterval(interval time.Duration) Option {
	return func(d *Dashboard) {
		if interval > 0 {
			d.interval = interval
		}
	}
}

// Dashboard owns the auto-refresh loop: it runs while a user is logged in
// and the dashboard is started, and stops on logout or Stop.
type Dashboard struct {
	session  *session.Session
	list     *vmlist.Store
	notifier notify.Notifier
	log      *slog.Logger
	interval time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New wires a dashboard to its stores.
func New(sess *session.Session, list *vmlist.Store, opts ...Option) *Dashboard {
	d := &Dashboard{
		session:  sess,
		list:     list,
		notifier: notify.Discard,
		log:      slog.Default(),
		interval: vmlist.DefaultInterval,
	}
	for _, opt := range opts {
		opt(d)
	}
	// Auto refresh only runs for a logged-in user, however the session ended.
	sess.Subscribe(func(u *api.User) {
		if u == nil {
			d.stopRefresh()
		}
	})
	return d
}

// Session returns the session the dashboard acts for.
func (d *Dashboard) Session() *session.Session { return d.session }

// List returns the list store the dashboard refreshes.
func (d *Dashboard) List() *vmlist.Store { return d.list }

// Start probes the backend session and, when it is live, starts auto
// refresh bound to ctx. It returns whether a user is logged in.
func (d *Dashboard) Start(ctx context.Context) bool {
	d.session.Probe(ctx)
	if !d.session.IsAuthenticated() {
		d.log.Debug("session probe: not authenticated")
		return false
	}
	d.log.Debug("session probe: authenticated", "user", d.session.User().Username)
	d.startRefresh(ctx)
	return true
}

// Stop ends auto refresh and drops the responses of refreshes in flight.
func (d *Dashboard) Stop() {
	d.stopRefresh()
	d.list.Invalidate()
}

// Running reports whether auto refresh is active.
func (d *Dashboard) Running() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cancel != nil
}

// Wait blocks until the auto-refresh loop has exited.
func (d *Dashboard) Wait() {
	d.mu.Lock()
	done := d.done
	d.mu.Unlock()
	if done != nil {
		<-done
	}
}

func (d *Dashboard) startRefresh(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	d.cancel, d.done = cancel, done
	go func() {
		defer close(done)
		d.list.Run(ctx, d.interval)
	}()
}

func (d *Dashboard) stopRefresh() {
	d.mu.Lock()
	cancel, done := d.cancel, d.done
	d.cancel = nil
	d.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Login authenticates and starts auto refresh bound to ctx.
func (d *Dashboard) Login(ctx context.Context, username, password string) error {
	if strings.TrimSpace(username) == "" || password == "" {
		err := invalid("username", "Username and password are required")
		d.notifier.Notify(notify.Error("Login failed", err.Message))
		return err
	}

	u, err := d.session.Login(ctx, username, password)
	if err != nil {
		d.log.Debug("login failed", "user", username, "error", err)
		d.notifier.Notify(notify.Error("Login failed", client.Message(err)))
		return err
	}
	d.notifier.Notify(notify.Success("Login successful", fmt.Sprintf("Welcome, %s", u.Username)))
	d.startRefresh(ctx)
	return nil
}

// Logout stops auto refresh, forgets the list and ends the session. Local
// state is cleared even if the backend call fails; that error is logged
// and returned but not shown as a failure.
func (d *Dashboard) Logout(ctx context.Context) error {
	d.stopRefresh()
	d.list.Reset()
	err := d.session.Logout(ctx)
	if err != nil {
		d.log.Warn("logout request failed", "error", err)
	}
	d.notifier.Notify(notify.Success("Logged out", "You have been successfully logged out"))
	return err
}

// Refresh reloads the list and reports the outcome.
func (d *Dashboard) Refresh(ctx context.Context) (int, error) {
	if err := d.requireSession(); err != nil {
		d.notifier.Notify(notify.Error("Failed to load VMs", err.Error()))
		return 0, err
	}
	n, err := d.list.Refresh(ctx, false)
	if errors.Is(err, vmlist.ErrSuperseded) {
		// A later refresh already put a newer list on display.
		n = len(d.list.VMs())
		d.notifier.Notify(notify.Success("VMs refreshed", fmt.Sprintf("Loaded %d virtual machines", n)))
		return n, nil
	}
	if errors.Is(err, vmlist.ErrInvalidated) {
		// Stop or logout dropped the response on purpose.
		d.log.Debug("refresh dropped", "error", err)
		return 0, nil
	}
	return n, err
}

// CreateVM validates form and starts provisioning.
func (d *Dashboard) CreateVM(ctx context.Context, form api.VMForm) error {
	const failed = "Failed to create VM"
	form.VMName = strings.TrimSpace(form.VMName)
	if err := d.precheck(failed, ValidateForm(form)); err != nil {
		return err
	}

	if _, err := d.list.Create(ctx, form); err != nil {
		return d.fail(failed, err)
	}
	d.log.Debug("VM creation requested", "name", form.VMName)
	d.notifier.Notify(notify.Success("VM Creation Started",
		fmt.Sprintf("VM %q is being created. This may take several minutes.", form.VMName)))
	d.reconcile(ctx)
	return nil
}

// CreateBatch validates the template and names and starts provisioning of
// one VM per name. Blank names are dropped; duplicates are sent as is.
func (d *Dashboard) CreateBatch(ctx context.Context, tmpl api.Template, names []string) (*api.BatchResponse, error) {
	const failed = "Failed to create VMs"
	valid := batch.ParseNames(strings.Join(names, "\n"))
	if len(valid) == 0 {
		err := invalid("vmNames", "Please add at least one VM name.")
		d.notifier.Notify(notify.Error("No VM names provided", err.Message))
		return nil, err
	}
	if err := d.precheck(failed, ValidateTemplate(tmpl)); err != nil {
		return nil, err
	}

	resp, err := d.list.CreateBatch(ctx, api.BatchRequest{Template: tmpl, VMNames: valid})
	if err != nil {
		return nil, d.fail(failed, err)
	}
	d.log.Debug("batch creation requested", "count", len(valid), "ids", resp.VMIDs)
	d.notifier.Notify(notify.Success("Batch VM Creation Started",
		fmt.Sprintf("%d VMs are being created. This may take several minutes.", len(valid))))
	d.reconcile(ctx)
	return resp, nil
}

// CopyName is the default name of a copy of name.
func CopyName(name string) string {
	return name + "-copy"
}

// CopyVM provisions a new VM with the configuration of id. An empty name
// becomes CopyName of the source.
func (d *Dashboard) CopyVM(ctx context.Context, id int, name string) error {
	const failed = "Failed to copy VM"
	src, err := d.actionable(failed, id, view.ActionCopy)
	if err != nil {
		return err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = CopyName(src.VMName)
	}

	if _, err := d.list.Copy(ctx, src, name); err != nil {
		return d.fail(failed, err)
	}
	d.notifier.Notify(notify.Success("VM Copy Started",
		fmt.Sprintf("VM %q is being created from %q.", name, src.VMName)))
	d.reconcile(ctx)
	return nil
}

// DeleteVM asks the backend to remove id. The record shows as deleting
// until a refresh reports it deleted.
func (d *Dashboard) DeleteVM(ctx context.Context, id int) error {
	const failed = "Failed to delete VM"
	vm, err := d.actionable(failed, id, view.ActionDelete)
	if err != nil {
		return err
	}

	if _, err := d.list.Delete(ctx, id); err != nil {
		return d.fail(failed, err)
	}
	d.notifier.Notify(notify.Success("VM Deletion Started",
		fmt.Sprintf("VM %q is being deleted.", vm.VMName)))
	d.reconcile(ctx)
	return nil
}

// Rows returns the current list with display state.
func (d *Dashboard) Rows() []view.Row {
	return view.Rows(d.list.Snapshot())
}

// Find returns the row for id from the current list.
func (d *Dashboard) Find(id int) (view.Row, bool) {
	vm, ok := d.list.Get(id)
	if !ok {
		return view.Row{}, false
	}
	return view.Row{VM: vm, Status: view.StatusOf(vm, d.list.LastAction(id))}, true
}

// actionable returns the VM with id if action is offered for it.
func (d *Dashboard) actionable(failed string, id int, action view.Action) (api.VM, error) {
	if err := d.precheck(failed, nil); err != nil {
		return api.VM{}, err
	}
	row, ok := d.Find(id)
	if !ok {
		err := fmt.Errorf("%w: %d", ErrVMNotFound, id)
		d.notifier.Notify(notify.Error(failed, err.Error()))
		return api.VM{}, err
	}
	if !view.Allows(row.Status, action) {
		err := invalid("id", "cannot %s VM %q while it is %s", action, row.VM.VMName, row.Status)
		d.notifier.Notify(notify.Error(failed, err.Message))
		return api.VM{}, err
	}
	return row.VM, nil
}

// precheck reports a missing session or a validation error.
func (d *Dashboard) precheck(failed string, verr error) error {
	if err := d.requireSession(); err != nil {
		d.notifier.Notify(notify.Error(failed, err.Error()))
		return err
	}
	if verr != nil {
		d.notifier.Notify(notify.Error(failed, verr.Error()))
		return verr
	}
	return nil
}

func (d *Dashboard) requireSession() error {
	if !d.session.IsAuthenticated() {
		return ErrNotLoggedIn
	}
	return nil
}

func (d *Dashboard) fail(title string, err error) error {
	d.log.Debug(strings.ToLower(title), "error", err)
	d.notifier.Notify(notify.Error(title, client.Message(err)))
	return err
}

// reconcile is the single silent refresh after a successful mutation.
func (d *Dashboard) reconcile(ctx context.Context) {
	if _, err := d.list.Refresh(ctx, true); err != nil {
		d.log.Debug("refresh after action failed", "error", err)
	}
}
