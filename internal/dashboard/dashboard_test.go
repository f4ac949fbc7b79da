package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flo-mic/vmdeck/internal/api"
	"github.com/flo-mic/vmdeck/internal/backendtest"
	"github.com/flo-mic/vmdeck/internal/client"
	"github.com/flo-mic/vmdeck/internal/notify"
	"github.com/flo-mic/vmdeck/internal/session"
	"github.com/flo-mic/vmdeck/internal/view"
	"github.com/flo-mic/vmdeck/internal/vmlist"
)

type fixture struct {
	d    *Dashboard
	srv  *backendtest.Server
	feed *notify.Feed
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	srv := backendtest.New()
	t.Cleanup(srv.Close)
	c, err := client.New(srv.URL)
	require.NoError(t, err)

	feed := notify.NewFeed(0)
	list := vmlist.New(c, vmlist.WithNotifier(feed))
	opts = append([]Option{WithNotifier(feed), WithInterval(time.Hour)}, opts...)
	d := New(session.New(c), list, opts...)
	t.Cleanup(d.Stop)
	return &fixture{d: d, srv: srv, feed: feed}
}

func (f *fixture) login(t *testing.T) {
	t.Helper()
	require.NoError(t, f.d.Login(context.Background(), "admin", "admin"))
}

// loginQuiet logs in through the session only, so no auto refresh runs
// and request counts stay exact.
func (f *fixture) loginQuiet(t *testing.T) {
	t.Helper()
	_, err := f.d.Session().Login(context.Background(), "admin", "admin")
	require.NoError(t, err)
}

func (f *fixture) lastToast(t *testing.T) notify.Toast {
	t.Helper()
	toasts := f.feed.Toasts()
	require.NotEmpty(t, toasts)
	return toasts[len(toasts)-1]
}

func validTemplate() api.Template {
	return api.Template{
		ESXiHost:  "esx01.lab",
		Datastore: "ds1",
		Network:   "VM Network",
		CPUCount:  2,
		MemoryGB:  4,
		DiskGB:    40,
		ISOPath:   "[ds1] iso/win2022.iso",
		GuestOS:   "windows9Server64Guest",
		VCenter:   "vc.lab",
	}
}

func TestStart_UnauthenticatedIsSilent(t *testing.T) {
	f := newFixture(t)

	assert.False(t, f.d.Start(context.Background()))
	assert.Equal(t, session.StateUnauthenticated, f.d.Session().State())
	assert.False(t, f.d.Running())
	assert.Empty(t, f.feed.Toasts())
	assert.Equal(t, 0, f.srv.Count(http.MethodGet, "/vms"))
}

func TestStart_AuthenticatedStartsRefresh(t *testing.T) {
	f := newFixture(t)
	f.loginQuiet(t)
	require.False(t, f.d.Running())

	assert.True(t, f.d.Start(context.Background()))
	assert.True(t, f.d.Running())
	require.Eventually(t, func() bool {
		return f.srv.Count(http.MethodGet, "/vms") >= 1
	}, 2*time.Second, 5*time.Millisecond)
}

func TestLogin_InvalidCredentials(t *testing.T) {
	f := newFixture(t)

	err := f.d.Login(context.Background(), "admin", "wrong")
	require.Error(t, err)
	assert.False(t, f.d.Session().IsAuthenticated())
	assert.False(t, f.d.Running())

	toast := f.lastToast(t)
	assert.Equal(t, notify.LevelError, toast.Level)
	assert.Equal(t, "Login failed", toast.Title)
	assert.Equal(t, "Invalid credentials", toast.Description)
}

func TestLogin_EmptyCredentialsNeverReachBackend(t *testing.T) {
	f := newFixture(t)

	err := f.d.Login(context.Background(), " ", "")
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, 0, f.srv.Count(http.MethodPost, "/login"))
}

func TestLogin_StartsRefresh(t *testing.T) {
	f := newFixture(t)
	f.login(t)

	assert.True(t, f.d.Running())
	assert.Equal(t, "Login successful", f.lastToast(t).Title)
	require.Eventually(t, func() bool {
		return f.srv.Count(http.MethodGet, "/vms") >= 1
	}, 2*time.Second, 5*time.Millisecond)
}

func TestLogout_ClearsStateWhenBackendFails(t *testing.T) {
	f := newFixture(t)
	f.login(t)
	f.srv.SetVMs([]api.VM{{ID: 1, VMName: "a", Status: api.StatusSuccess}})
	_, err := f.d.Refresh(context.Background())
	require.NoError(t, err)

	f.srv.Fail(http.MethodPost, "/logout", backendtest.Failure{Status: http.StatusInternalServerError})
	err = f.d.Logout(context.Background())
	assert.Error(t, err)

	assert.False(t, f.d.Session().IsAuthenticated())
	assert.False(t, f.d.Running())
	assert.Empty(t, f.d.List().VMs())
	assert.Equal(t, "Logged out", f.lastToast(t).Title)
}

func TestCreateBatch_SendsDuplicatesAndRefreshesOnce(t *testing.T) {
	f := newFixture(t)
	f.loginQuiet(t)
	before := f.srv.Count(http.MethodGet, "/vms")

	resp, err := f.d.CreateBatch(context.Background(), validTemplate(), []string{"a", "a", "b"})
	require.NoError(t, err)
	assert.Len(t, resp.VMIDs, 3)

	var sent api.BatchRequest
	for _, r := range f.srv.Requests() {
		if r.Path == "/vms/batch" {
			require.NoError(t, json.Unmarshal(r.Body, &sent))
		}
	}
	assert.Equal(t, []string{"a", "a", "b"}, sent.VMNames)
	assert.Equal(t, 1, f.srv.Count(http.MethodGet, "/vms")-before)
	assert.Len(t, f.d.List().VMs(), 3)

	toast := f.lastToast(t)
	assert.Equal(t, "Batch VM Creation Started", toast.Title)
	assert.Equal(t, "3 VMs are being created. This may take several minutes.", toast.Description)

	for _, row := range f.d.Rows() {
		assert.Equal(t, view.StatusCreating, row.Status)
	}
}

func TestCreateBatch_NoNames(t *testing.T) {
	f := newFixture(t)
	f.login(t)

	_, err := f.d.CreateBatch(context.Background(), validTemplate(), []string{"", "  "})
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, 0, f.srv.Count(http.MethodPost, "/vms/batch"))

	toast := f.lastToast(t)
	assert.Equal(t, "No VM names provided", toast.Title)
	assert.Equal(t, "Please add at least one VM name.", toast.Description)
}

func TestCreateBatch_BackendErrorDoesNotRefresh(t *testing.T) {
	f := newFixture(t)
	f.loginQuiet(t)
	before := f.srv.Count(http.MethodGet, "/vms")

	f.srv.Fail(http.MethodPost, "/vms/batch", backendtest.Failure{Status: http.StatusBadRequest, Body: `{"error":"datastore full"}`})
	_, err := f.d.CreateBatch(context.Background(), validTemplate(), []string{"a"})
	require.Error(t, err)

	assert.Equal(t, before, f.srv.Count(http.MethodGet, "/vms"))
	toast := f.lastToast(t)
	assert.Equal(t, "Failed to create VMs", toast.Title)
	assert.Equal(t, "datastore full", toast.Description)
}

func TestCreateVM(t *testing.T) {
	f := newFixture(t)
	f.loginQuiet(t)

	err := f.d.CreateVM(context.Background(), api.VMForm{VMName: " web-01 ", Template: validTemplate()})
	require.NoError(t, err)

	rows := f.d.Rows()
	require.Len(t, rows, 1)
	assert.Equal(t, "web-01", rows[0].VM.VMName)
	assert.Equal(t, view.StatusCreating, rows[0].Status)
	assert.Equal(t, "VM Creation Started", f.lastToast(t).Title)
}

func TestCreateVM_Validation(t *testing.T) {
	cases := []struct {
		name  string
		edit  func(*api.VMForm)
		field string
	}{
		{"missing name", func(f *api.VMForm) { f.VMName = "" }, "vmName"},
		{"missing host", func(f *api.VMForm) { f.ESXiHost = "" }, "esxiHost"},
		{"missing vcenter", func(f *api.VMForm) { f.VCenter = " " }, "vcenter"},
		{"cpu too high", func(f *api.VMForm) { f.CPUCount = 33 }, "cpuCount"},
		{"no memory", func(f *api.VMForm) { f.MemoryGB = 0 }, "memoryGB"},
		{"disk too big", func(f *api.VMForm) { f.DiskGB = 1001 }, "diskGB"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			f := newFixture(t)
			f.login(t)

			form := api.VMForm{VMName: "web-01", Template: validTemplate()}
			c.edit(&form)
			err := f.d.CreateVM(context.Background(), form)

			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, c.field, verr.Field)
			assert.Equal(t, 0, f.srv.Count(http.MethodPost, "/vms"))
			assert.Equal(t, "Failed to create VM", f.lastToast(t).Title)
		})
	}
}

func TestValidateTemplate_AllowsLargerBatchDisks(t *testing.T) {
	tmpl := validTemplate()
	tmpl.DiskGB = 1500
	assert.NoError(t, ValidateTemplate(tmpl))
	assert.Error(t, ValidateForm(api.VMForm{VMName: "x", Template: tmpl}))
}

func TestActions_RequireSession(t *testing.T) {
	f := newFixture(t)

	err := f.d.CreateVM(context.Background(), api.VMForm{VMName: "x", Template: validTemplate()})
	assert.ErrorIs(t, err, ErrNotLoggedIn)
	_, err = f.d.Refresh(context.Background())
	assert.ErrorIs(t, err, ErrNotLoggedIn)
	assert.Empty(t, f.srv.Requests())
}

func TestDeleteVM_ShowsDeletingUntilBackendFinishes(t *testing.T) {
	f := newFixture(t)
	f.loginQuiet(t)
	ctx := context.Background()

	f.srv.SetVMs([]api.VM{{ID: 5, VMName: "old", Status: api.StatusSuccess}})
	_, err := f.d.Refresh(ctx)
	require.NoError(t, err)

	require.NoError(t, f.d.DeleteVM(ctx, 5))
	row, ok := f.d.Find(5)
	require.True(t, ok)
	assert.Equal(t, view.StatusDeleting, row.Status)
	assert.Empty(t, view.Actions(row.Status))

	f.srv.MarkDeleted(5)
	_, err = f.d.Refresh(ctx)
	require.NoError(t, err)
	row, _ = f.d.Find(5)
	assert.Equal(t, view.StatusDeleted, row.Status)

	err = f.d.DeleteVM(ctx, 5)
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, 1, f.srv.Count(http.MethodDelete, "/vms/5"))
}

func TestDeleteVM_Unknown(t *testing.T) {
	f := newFixture(t)
	f.login(t)

	err := f.d.DeleteVM(context.Background(), 404)
	assert.ErrorIs(t, err, ErrVMNotFound)
	assert.Equal(t, "Failed to delete VM", f.lastToast(t).Title)
}

func TestCopyVM(t *testing.T) {
	f := newFixture(t)
	f.loginQuiet(t)
	ctx := context.Background()

	src := api.VM{ID: 9, VMName: "web", Status: api.StatusError, Result: "ERROR: iso missing"}
	src.ESXiHost, src.Datastore, src.CPUCount, src.MemoryGB, src.DiskGB = "esx01", "ds1", 4, 8, 60
	f.srv.SetVMs([]api.VM{src})
	_, err := f.d.Refresh(ctx)
	require.NoError(t, err)

	require.NoError(t, f.d.CopyVM(ctx, 9, ""))

	var created api.VM
	for _, vm := range f.srv.VMs() {
		if vm.ID != 9 {
			created = vm
		}
	}
	assert.Equal(t, "web-copy", created.VMName)
	assert.Equal(t, src.Template(), created.Template())
	assert.Equal(t, "VM Copy Started", f.lastToast(t).Title)

	row, ok := f.d.Find(created.ID)
	require.True(t, ok)
	assert.Equal(t, view.StatusCreating, row.Status)
}

func TestCopyVM_PendingIsRejected(t *testing.T) {
	f := newFixture(t)
	f.loginQuiet(t)
	ctx := context.Background()

	f.srv.SetVMs([]api.VM{{ID: 1, VMName: "busy", Status: api.StatusPending}})
	_, err := f.d.Refresh(ctx)
	require.NoError(t, err)

	err = f.d.CopyVM(ctx, 1, "x")
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, 0, f.srv.Count(http.MethodPost, "/vms"))
}

func TestRefresh_IdempotentForUnchangedBackend(t *testing.T) {
	f := newFixture(t)
	f.loginQuiet(t)
	ctx := context.Background()

	f.srv.SetVMs([]api.VM{
		{ID: 2, VMName: "b", Status: api.StatusPending},
		{ID: 1, VMName: "a", Status: api.StatusSuccess, Result: "SUCCESS: ok"},
	})
	_, err := f.d.Refresh(ctx)
	require.NoError(t, err)
	first := f.d.Rows()

	n, err := f.d.Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, first, f.d.Rows())
}

func TestStop_DropsInFlightRefresh(t *testing.T) {
	f := newFixture(t, WithInterval(5*time.Millisecond))
	f.login(t)
	require.Eventually(t, func() bool {
		return f.srv.Count(http.MethodGet, "/vms") >= 2
	}, 2*time.Second, 5*time.Millisecond)

	f.d.Stop()
	assert.False(t, f.d.Running())
	count := f.srv.Count(http.MethodGet, "/vms")
	time.Sleep(30 * time.Millisecond)
	// A request cancelled by Stop may still reach the server.
	assert.LessOrEqual(t, f.srv.Count(http.MethodGet, "/vms"), count+1)
}

func TestSessionLoss_StopsAutoRefresh(t *testing.T) {
	f := newFixture(t)
	f.login(t)
	require.True(t, f.d.Running())

	f.srv.Fail(http.MethodGet, "/check-auth", backendtest.Failure{Status: http.StatusInternalServerError, Body: "oops"})
	f.d.Session().Probe(context.Background())

	assert.False(t, f.d.Session().IsAuthenticated())
	assert.False(t, f.d.Running())
}

// blockingLister holds ListVMs until released.
type blockingLister struct {
	*client.Client
	entered chan struct{}
	release chan struct{}
}

func (b *blockingLister) ListVMs(ctx context.Context) ([]api.VM, error) {
	close(b.entered)
	<-b.release
	return b.Client.ListVMs(ctx)
}

func TestRefresh_DroppedByStopIsSilent(t *testing.T) {
	srv := backendtest.New()
	t.Cleanup(srv.Close)
	c, err := client.New(srv.URL)
	require.NoError(t, err)
	backend := &blockingLister{Client: c, entered: make(chan struct{}), release: make(chan struct{})}

	feed := notify.NewFeed(0)
	d := New(session.New(c), vmlist.New(backend, vmlist.WithNotifier(feed)), WithNotifier(feed), WithInterval(time.Hour))
	t.Cleanup(d.Stop)
	ctx := context.Background()
	_, err = d.Session().Login(ctx, "admin", "admin")
	require.NoError(t, err)

	type result struct {
		n   int
		err error
	}
	done := make(chan result, 1)
	go func() {
		n, err := d.Refresh(ctx)
		done <- result{n, err}
	}()
	<-backend.entered
	d.Stop()
	close(backend.release)

	r := <-done
	require.NoError(t, r.err)
	assert.Zero(t, r.n)
	assert.Empty(t, feed.Toasts())
	assert.False(t, d.List().Snapshot().Loaded)
}
