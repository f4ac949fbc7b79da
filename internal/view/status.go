// Package view derives everything the dashboard shows from a VM record:
// display status, allowed actions, result text, pages and tables. Nothing
// here is stored; it is recomputed from the record on every render.
package view

import (
	"strings"

	"github.com/flo-mic/vmdeck/internal/api"
	"github.com/flo-mic/vmdeck/internal/vmlist"
)

// Status is the display status of a VM.
type Status string

const (
	StatusCreating Status = "creating"
	StatusDeleting Status = "deleting"
	StatusSuccess  Status = "success"
	StatusError    Status = "error"
	StatusDeleted  Status = "deleted"
	StatusUnknown  Status = "unknown"
)

// IsTerminal reports whether the backend is done with the record.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusSuccess, StatusError, StatusDeleted:
		return true
	}
	return false
}

// StatusOf derives the display status of vm. A deleted record is deleted
// whatever its status says. A pending record is "deleting" only when the
// last action recorded for it was a delete.
func StatusOf(vm api.VM, last vmlist.Action) Status {
	if vm.IsDeleted() {
		return StatusDeleted
	}
	switch vm.Status {
	case api.StatusSuccess:
		return StatusSuccess
	case api.StatusError:
		return StatusError
	case api.StatusPending:
		if last == vmlist.ActionDelete {
			return StatusDeleting
		}
		return StatusCreating
	default:
		return StatusUnknown
	}
}

// Action is something the user can do with a VM.
type Action string

const (
	ActionCopy    Action = "copy"
	ActionDelete  Action = "delete"
	ActionDetails Action = "details"
)

// Actions returns the actions offered for a VM in status s.
func Actions(s Status) []Action {
	switch s {
	case StatusSuccess:
		return []Action{ActionCopy, ActionDelete, ActionDetails}
	case StatusError:
		return []Action{ActionCopy, ActionDelete}
	default:
		return nil
	}
}

// Allows reports whether a is offered in status s.
func Allows(s Status, a Action) bool {
	for _, x := range Actions(s) {
		if x == a {
			return true
		}
	}
	return false
}

// ResultKind classifies the provisioning result text.
type ResultKind string

const (
	ResultNone    ResultKind = "none"
	ResultSuccess ResultKind = "success"
	ResultError   ResultKind = "error"
	ResultUnknown ResultKind = "unknown"
)

const (
	successPrefix = "SUCCESS:"
	errorPrefix   = "ERROR:"

	// NoResult is shown when the backend has not reported a result.
	NoResult = "No execution result available"
)

// KindOf classifies result by its prefix.
func KindOf(result string) ResultKind {
	switch {
	case result == "":
		return ResultNone
	case strings.HasPrefix(result, successPrefix):
		return ResultSuccess
	case strings.HasPrefix(result, errorPrefix):
		return ResultError
	default:
		return ResultUnknown
	}
}

// ResultDetail returns result without its SUCCESS:/ERROR: prefix. Text
// without a known prefix is returned as is.
func ResultDetail(result string) string {
	switch KindOf(result) {
	case ResultNone:
		return NoResult
	case ResultSuccess:
		return strings.TrimSpace(strings.TrimPrefix(result, successPrefix))
	case ResultError:
		return strings.TrimSpace(strings.TrimPrefix(result, errorPrefix))
	default:
		return result
	}
}
