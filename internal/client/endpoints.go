package client

import (
	"context"
	"fmt"
	"net/http"

	"github.com/flo-mic/vmdeck/internal/api"
)

// Login posts credentials; on success the backend sets its session cookie.
func (c *Client) Login(ctx context.Context, username, password string) (*api.LoginResponse, error) {
	var resp api.LoginResponse
	req := api.LoginRequest{Username: username, Password: password}
	if err := c.Do(ctx, http.MethodPost, "/login", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Logout clears the backend session.
func (c *Client) Logout(ctx context.Context) error {
	return c.Do(ctx, http.MethodPost, "/logout", nil, nil)
}

// CheckAuth asks whether the current cookie belongs to a live session.
func (c *Client) CheckAuth(ctx context.Context) (*api.AuthStatus, error) {
	var status api.AuthStatus
	if err := c.Do(ctx, http.MethodGet, "/check-auth", nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// ListVMs returns the full VM collection, newest first as sent by the backend.
func (c *Client) ListVMs(ctx context.Context) ([]api.VM, error) {
	var vms []api.VM
	if err := c.Do(ctx, http.MethodGet, "/vms", nil, &vms); err != nil {
		return nil, err
	}
	if vms == nil {
		vms = []api.VM{}
	}
	return vms, nil
}

// CreateVM starts provisioning of a single VM.
func (c *Client) CreateVM(ctx context.Context, form api.VMForm) (*api.MessageResponse, error) {
	var resp api.MessageResponse
	if err := c.Do(ctx, http.MethodPost, "/vms", form, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CreateBatch starts provisioning of one VM per name in req.
func (c *Client) CreateBatch(ctx context.Context, req api.BatchRequest) (*api.BatchResponse, error) {
	var resp api.BatchResponse
	if err := c.Do(ctx, http.MethodPost, "/vms/batch", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// DeleteVM asks the backend to remove a VM. Removal is asynchronous: the
// record goes to pending and later shows deleted=true.
func (c *Client) DeleteVM(ctx context.Context, id int) (*api.MessageResponse, error) {
	var resp api.MessageResponse
	if err := c.Do(ctx, http.MethodDelete, fmt.Sprintf("/vms/%d", id), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
