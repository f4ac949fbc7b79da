package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flo-mic/vmdeck/internal/api"
	"github.com/flo-mic/vmdeck/internal/backendtest"
)

func newTestClient(t *testing.T, url string, opts ...Option) *Client {
	t.Helper()
	c, err := New(url, opts...)
	require.NoError(t, err)
	return c
}

func TestNew_RejectsBadURL(t *testing.T) {
	cases := []string{"", "localhost:5000", "ftp://host", "http://"}
	for _, raw := range cases {
		t.Run(raw, func(t *testing.T) {
			_, err := New(raw)
			assert.Error(t, err)
		})
	}
}

func TestNew_TrimsTrailingSlash(t *testing.T) {
	c := newTestClient(t, "http://localhost:5000/")
	assert.Equal(t, "http://localhost:5000", c.BaseURL())
}

func TestDo_APIErrorUsesBodyMessage(t *testing.T) {
	srv := backendtest.New()
	defer srv.Close()
	c := newTestClient(t, srv.URL)

	_, err := c.Login(context.Background(), "admin", "wrong")
	require.Error(t, err)

	var ae *APIError
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, http.StatusUnauthorized, ae.Status)
	assert.Equal(t, "Invalid credentials", err.Error())
	assert.True(t, IsUnauthorized(err))
}

func TestDo_UnparseableErrorBody(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"html", "<html>Bad Gateway</html>"},
		{"empty", ""},
		{"json without error field", `{"detail":"nope"}`},
		{"empty error field", `{"error":""}`},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			srv := backendtest.New()
			defer srv.Close()
			srv.Fail(http.MethodGet, "/check-auth", backendtest.Failure{Status: http.StatusBadGateway, Body: c.body})

			_, err := newTestClient(t, srv.URL).CheckAuth(context.Background())
			require.Error(t, err)
			assert.Equal(t, "HTTP 502: Bad Gateway", err.Error())
		})
	}
}

func TestDo_ServerUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := newTestClient(t, url).ListVMs(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrServerUnavailable))
	assert.Equal(t, ErrServerUnavailable.Error(), Message(err))

	var ue *UnavailableError
	require.True(t, errors.As(err, &ue))
	assert.Equal(t, "GET /vms", ue.Op)
}

func TestDo_CancelledContextIsNotUnavailable(t *testing.T) {
	srv := backendtest.New()
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestClient(t, srv.URL).CheckAuth(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.False(t, errors.Is(err, ErrServerUnavailable))
}

func TestDo_SingleAttempt(t *testing.T) {
	srv := backendtest.New()
	defer srv.Close()
	srv.Fail(http.MethodGet, "/check-auth", backendtest.Failure{Status: http.StatusServiceUnavailable})

	_, err := newTestClient(t, srv.URL).CheckAuth(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1, srv.Count(http.MethodGet, "/check-auth"))
}

func TestDo_SendsHeaders(t *testing.T) {
	var got http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		w.Write([]byte(`{"message":"ok"}`))
	}))
	defer srv.Close()

	var out api.MessageResponse
	require.NoError(t, newTestClient(t, srv.URL).Do(context.Background(), http.MethodPost, "/x", map[string]string{"a": "b"}, &out))
	assert.Equal(t, "ok", out.Message)
	assert.Equal(t, "application/json", got.Get("Content-Type"))
	assert.NotEmpty(t, got.Get(RequestIDHeader))
}

func TestDo_InvalidSuccessBodyFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL).ListVMs(context.Background())
	assert.Error(t, err)
}

func TestSessionCookieIsSentAfterLogin(t *testing.T) {
	srv := backendtest.New()
	defer srv.Close()
	c := newTestClient(t, srv.URL)
	ctx := context.Background()

	_, err := c.ListVMs(ctx)
	require.True(t, IsUnauthorized(err))

	resp, err := c.Login(ctx, "admin", "admin")
	require.NoError(t, err)
	require.NotNil(t, resp.User)
	assert.Equal(t, "admin", resp.User.Username)

	status, err := c.CheckAuth(ctx)
	require.NoError(t, err)
	assert.True(t, status.Authenticated)

	vms, err := c.ListVMs(ctx)
	require.NoError(t, err)
	assert.NotNil(t, vms)
	assert.Empty(t, vms)

	require.NoError(t, c.Logout(ctx))
	status, err = c.CheckAuth(ctx)
	require.NoError(t, err)
	assert.False(t, status.Authenticated)
}

func TestEndpoints_CreateBatchDelete(t *testing.T) {
	srv := backendtest.New()
	defer srv.Close()
	c := newTestClient(t, srv.URL)
	ctx := context.Background()
	_, err := c.Login(ctx, "admin", "admin")
	require.NoError(t, err)

	tmpl := api.Template{ESXiHost: "esx01", Datastore: "ds1", Network: "VM Network", CPUCount: 2, MemoryGB: 4, DiskGB: 40}
	_, err = c.CreateVM(ctx, api.VMForm{VMName: "web-01", Template: tmpl})
	require.NoError(t, err)

	batch, err := c.CreateBatch(ctx, api.BatchRequest{Template: tmpl, VMNames: []string{"a", "a", "b"}})
	require.NoError(t, err)
	assert.Len(t, batch.VMIDs, 3)

	var sent api.BatchRequest
	for _, r := range srv.Requests() {
		if r.Path == "/vms/batch" {
			require.NoError(t, json.Unmarshal(r.Body, &sent))
		}
	}
	assert.Equal(t, []string{"a", "a", "b"}, sent.VMNames)

	_, err = c.DeleteVM(ctx, batch.VMIDs[0])
	require.NoError(t, err)
	assert.Equal(t, 1, srv.Count(http.MethodDelete, "/vms/2"))

	_, err = c.DeleteVM(ctx, 999)
	assert.EqualError(t, err, "VM not found")
}

func TestFileJar_PersistsSessionAcrossClients(t *testing.T) {
	srv := backendtest.New()
	defer srv.Close()
	path := filepath.Join(t.TempDir(), "vmdeck", "session.json")
	ctx := context.Background()

	jar, err := NewFileJar(path, srv.URL)
	require.NoError(t, err)
	_, err = newTestClient(t, srv.URL, WithJar(jar)).Login(ctx, "admin", "admin")
	require.NoError(t, err)
	require.NoError(t, jar.Err())
	assert.FileExists(t, path)

	jar2, err := NewFileJar(path, srv.URL)
	require.NoError(t, err)
	status, err := newTestClient(t, srv.URL, WithJar(jar2)).CheckAuth(ctx)
	require.NoError(t, err)
	assert.True(t, status.Authenticated)

	require.NoError(t, jar2.Clear())
	assert.NoFileExists(t, path)
}

func TestFileJar_IgnoresOtherServer(t *testing.T) {
	srv := backendtest.New()
	defer srv.Close()
	path := filepath.Join(t.TempDir(), "session.json")
	ctx := context.Background()

	jar, err := NewFileJar(path, srv.URL)
	require.NoError(t, err)
	_, err = newTestClient(t, srv.URL, WithJar(jar)).Login(ctx, "admin", "admin")
	require.NoError(t, err)

	other, err := NewFileJar(path, "http://other.example:5000")
	require.NoError(t, err)
	assert.Empty(t, other.Cookies(jar.base))
}

func TestMessage(t *testing.T) {
	assert.Equal(t, "", Message(nil))
	assert.Equal(t, "boom", Message(errors.New("boom")))
	wrapped := errors.Join(errors.New("creating VM"), &APIError{Status: 400, Message: "name taken"})
	assert.Equal(t, "name taken", Message(wrapped))
}
