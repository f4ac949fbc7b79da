package dashboard

import (
	"fmt"
	"strings"

	"github.com/flo-mic/vmdeck/internal/api"
)

// Limits of the VM form.
const (
	MinCPU         = 1
	MaxCPU         = 32
	MinMemoryGB    = 1
	MaxMemoryGB    = 128
	MinDiskGB      = 1
	MaxDiskGB      = 1000
	MaxBatchDiskGB = 2000
)

// ValidationError is raised before any request is sent.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func invalid(field, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// ValidateForm checks a single VM form and returns the first problem found.
func ValidateForm(form api.VMForm) error {
	if strings.TrimSpace(form.VMName) == "" {
		return invalid("vmName", "VM name is required")
	}
	return validateTemplate(form.Template, MaxDiskGB)
}

// ValidateTemplate checks the shared configuration of a batch.
func ValidateTemplate(t api.Template) error {
	return validateTemplate(t, MaxBatchDiskGB)
}

func validateTemplate(t api.Template, maxDisk int) error {
	required := []struct {
		field, label, value string
	}{
		{"esxiHost", "ESXi host", t.ESXiHost},
		{"datastore", "Datastore", t.Datastore},
		{"network", "Network", t.Network},
		{"isoPath", "ISO path", t.ISOPath},
		{"guestOS", "Guest OS", t.GuestOS},
		{"vcenter", "vCenter server", t.VCenter},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return invalid(r.field, "%s is required", r.label)
		}
	}

	switch {
	case t.CPUCount < MinCPU || t.CPUCount > MaxCPU:
		return invalid("cpuCount", "CPU count must be between %d and %d", MinCPU, MaxCPU)
	case t.MemoryGB < MinMemoryGB || t.MemoryGB > MaxMemoryGB:
		return invalid("memoryGB", "Memory must be between %d and %d GB", MinMemoryGB, MaxMemoryGB)
	case t.DiskGB < MinDiskGB || t.DiskGB > maxDisk:
		return invalid("diskGB", "Disk size must be between %d and %d GB", MinDiskGB, maxDisk)
	}
	return nil
}
