package batch

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/flo-mic/vmdeck/internal/api"
)

// Template defaults used for new batches.
const (
	DefaultNetwork  = "VM Network"
	DefaultCPUCount = 2
	DefaultMemoryGB = 4
	DefaultDiskGB   = 40
	DefaultGuestOS  = "windows9Server64Guest"
)

// templateFile mirrors a batch template YAML file. Names are optional; they
// can also come from flags or a names file.
type templateFile struct {
	api.Template `yaml:",inline"`
	Names        []string `yaml:"names"`
}

// DefaultTemplate returns the template a new batch starts from.
func DefaultTemplate() api.Template {
	return api.Template{
		Network:  DefaultNetwork,
		CPUCount: DefaultCPUCount,
		MemoryGB: DefaultMemoryGB,
		DiskGB:   DefaultDiskGB,
		GuestOS:  DefaultGuestOS,
	}
}

// ApplyDefaults fills the unset fields of t from DefaultTemplate.
func ApplyDefaults(t api.Template) api.Template {
	d := DefaultTemplate()
	if t.Network == "" {
		t.Network = d.Network
	}
	if t.CPUCount == 0 {
		t.CPUCount = d.CPUCount
	}
	if t.MemoryGB == 0 {
		t.MemoryGB = d.MemoryGB
	}
	if t.DiskGB == 0 {
		t.DiskGB = d.DiskGB
	}
	if t.GuestOS == "" {
		t.GuestOS = d.GuestOS
	}
	return t
}

// LoadTemplate reads a batch template from path. Unset fields get the
// defaults; blank names are dropped.
func LoadTemplate(path string) (api.BatchRequest, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return api.BatchRequest{}, fmt.Errorf("batch template %s not found", path)
	}
	if err != nil {
		return api.BatchRequest{}, err
	}

	var f templateFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return api.BatchRequest{}, fmt.Errorf("parsing batch template %s: %w", path, err)
	}

	req := api.BatchRequest{Template: ApplyDefaults(f.Template)}
	for _, n := range f.Names {
		req.VMNames = append(req.VMNames, ParseNames(n)...)
	}
	return req, nil
}

// WriteTemplate writes req as a template file that LoadTemplate accepts.
func WriteTemplate(path string, req api.BatchRequest) error {
	data, err := yaml.Marshal(templateFile{Template: req.Template, Names: req.VMNames})
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
