package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/flo-mic/vmdeck/internal/api"
)

// ErrServerUnavailable is matched by every connection-level failure so the
// UI can show one offline message.
var ErrServerUnavailable = errors.New("server unavailable, please try again later")

// APIError is a non-2xx backend response. Message is the backend's
// {"error": ...} text, or "HTTP <status>: <status text>" when the body has none.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string { return e.Message }

// UnavailableError wraps the network error behind ErrServerUnavailable.
type UnavailableError struct {
	Op  string // e.g. "GET /vms"
	Err error
}

func (e *UnavailableError) Error() string { return ErrServerUnavailable.Error() }

func (e *UnavailableError) Unwrap() []error { return []error{ErrServerUnavailable, e.Err} }

func newAPIError(resp *http.Response, body []byte) *APIError {
	var errBody api.ErrorResponse
	if json.Unmarshal(body, &errBody) == nil && strings.TrimSpace(errBody.Error) != "" {
		return &APIError{Status: resp.StatusCode, Message: errBody.Error}
	}
	return &APIError{Status: resp.StatusCode, Message: genericMessage(resp)}
}

func genericMessage(resp *http.Response) string {
	text := strings.TrimSpace(strings.TrimPrefix(resp.Status, strconv.Itoa(resp.StatusCode)))
	if text == "" {
		text = http.StatusText(resp.StatusCode)
	}
	if text == "" {
		return fmt.Sprintf("HTTP %d", resp.StatusCode)
	}
	return fmt.Sprintf("HTTP %d: %s", resp.StatusCode, text)
}

// IsUnauthorized reports whether err is a 401 from the backend.
func IsUnauthorized(err error) bool {
	var ae *APIError
	return errors.As(err, &ae) && ae.Status == http.StatusUnauthorized
}

// Message returns the text to show a user for err, dropping any wrapping
// added on the way up.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var ae *APIError
	if errors.As(err, &ae) {
		return ae.Message
	}
	if errors.Is(err, ErrServerUnavailable) {
		return ErrServerUnavailable.Error()
	}
	return err.Error()
}
