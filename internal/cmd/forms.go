package cmd

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/huh"

	"github.com/flo-mic/vmdeck/internal/api"
	"github.com/flo-mic/vmdeck/internal/batch"
	"github.com/flo-mic/vmdeck/internal/dashboard"
)

func notEmpty(what string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s cannot be empty", what)
		}
		return nil
	}
}

func intBetween(lo, hi int) func(string) error {
	return func(s string) error {
		n, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil {
			return fmt.Errorf("must be a number")
		}
		if n < lo || n > hi {
			return fmt.Errorf("must be between %d and %d", lo, hi)
		}
		return nil
	}
}

func atoi(s string) int {
	n, _ := strconv.Atoi(strings.TrimSpace(s))
	return n
}

func guestOptions() []huh.Option[string] {
	var opts []huh.Option[string]
	for _, g := range batch.GuestOptions() {
		opts = append(opts, huh.NewOption(g.Label+" ("+g.ID+")", g.ID))
	}
	return opts
}

// loginForm asks for credentials. username may be prefilled.
func loginForm(username, password *string) error {
	return huh.NewForm(huh.NewGroup(
		huh.NewInput().
			Title("Username").
			Value(username).
			Validate(notEmpty("username")),
		huh.NewInput().
			Title("Password").
			EchoMode(huh.EchoModePassword).
			Value(password).
			Validate(notEmpty("password")),
	)).Run()
}

// initForm edits the user config in place.
func initForm(server *string, pageSize *int, interval *time.Duration) error {
	pageStr := strconv.Itoa(*pageSize)
	intervalStr := interval.String()

	if err := huh.NewForm(huh.NewGroup(
		huh.NewInput().
			Title("Backend URL").
			Description("Base URL of the VM provisioning service, e.g. http://vmapi.lab:5000").
			Value(server).
			Validate(func(s string) error {
				s = strings.TrimSpace(s)
				if !strings.HasPrefix(s, "http://") && !strings.HasPrefix(s, "https://") {
					return fmt.Errorf("must start with http:// or https://")
				}
				return nil
			}),
		huh.NewInput().
			Title("VMs per page").
			Value(&pageStr).
			Validate(intBetween(1, 500)),
		huh.NewInput().
			Title("Dashboard refresh interval").
			Description("Go duration, e.g. 30s or 1m").
			Value(&intervalStr).
			Validate(func(s string) error {
				d, err := time.ParseDuration(strings.TrimSpace(s))
				if err != nil || d < time.Second {
					return fmt.Errorf("must be a duration of at least 1s")
				}
				return nil
			}),
	)).Run(); err != nil {
		return err
	}

	*server = strings.TrimSpace(*server)
	*pageSize = atoi(pageStr)
	*interval, _ = time.ParseDuration(strings.TrimSpace(intervalStr))
	return nil
}

// templateGroups returns the form groups for the shared VM configuration.
// The string fields are bound to t directly; numbers go through strs.
type templateStrings struct {
	cpu, memory, disk string
}

func newTemplateStrings(t api.Template) *templateStrings {
	return &templateStrings{
		cpu:    strconv.Itoa(t.CPUCount),
		memory: strconv.Itoa(t.MemoryGB),
		disk:   strconv.Itoa(t.DiskGB),
	}
}

func (s *templateStrings) apply(t *api.Template) {
	t.CPUCount = atoi(s.cpu)
	t.MemoryGB = atoi(s.memory)
	t.DiskGB = atoi(s.disk)
}

func templateGroups(t *api.Template, s *templateStrings, maxDisk int) []*huh.Group {
	if t.GuestOS == "" {
		t.GuestOS = batch.DefaultGuestOS
	}
	return []*huh.Group{
		huh.NewGroup(
			huh.NewInput().
				Title("ESXi host").
				Placeholder("esxi01.domain.com").
				Value(&t.ESXiHost).
				Validate(notEmpty("ESXi host")),
			huh.NewInput().
				Title("vCenter server").
				Placeholder("vcenter.domain.com").
				Value(&t.VCenter).
				Validate(notEmpty("vCenter server")),
			huh.NewInput().
				Title("Datastore").
				Placeholder("datastore1").
				Value(&t.Datastore).
				Validate(notEmpty("datastore")),
			huh.NewInput().
				Title("Network").
				Placeholder(batch.DefaultNetwork).
				Value(&t.Network).
				Validate(notEmpty("network")),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("CPU count").
				Value(&s.cpu).
				Validate(intBetween(dashboard.MinCPU, dashboard.MaxCPU)),
			huh.NewInput().
				Title("Memory (GB)").
				Value(&s.memory).
				Validate(intBetween(dashboard.MinMemoryGB, dashboard.MaxMemoryGB)),
			huh.NewInput().
				Title("Disk size (GB)").
				Value(&s.disk).
				Validate(intBetween(dashboard.MinDiskGB, maxDisk)),
		),
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Guest OS").
				Options(guestOptions()...).
				Value(&t.GuestOS),
			huh.NewInput().
				Title("ISO path").
				Placeholder("[datastore1] iso/windows-server-2019.iso").
				Value(&t.ISOPath).
				Validate(notEmpty("ISO path")),
		),
	}
}

// vmForm asks for a single VM, starting from the values already in form.
func vmForm(form *api.VMForm) error {
	strs := newTemplateStrings(form.Template)
	groups := append([]*huh.Group{
		huh.NewGroup(
			huh.NewInput().
				Title("VM name").
				Placeholder("web-server-01").
				Value(&form.VMName).
				Validate(notEmpty("VM name")),
		),
	}, templateGroups(&form.Template, strs, dashboard.MaxDiskGB)...)

	if err := huh.NewForm(groups...).Run(); err != nil {
		return err
	}
	strs.apply(&form.Template)
	return nil
}

// batchForm asks for the names (one per line) and the shared template.
func batchForm(req *api.BatchRequest) error {
	namesText := strings.Join(req.VMNames, "\n")
	strs := newTemplateStrings(req.Template)
	groups := append([]*huh.Group{
		huh.NewGroup(
			huh.NewText().
				Title("VM names").
				Description("One name per line. Blank lines are ignored.").
				Value(&namesText).
				Validate(func(s string) error {
					if len(batch.ParseNames(s)) == 0 {
						return fmt.Errorf("add at least one VM name")
					}
					return nil
				}),
		),
	}, templateGroups(&req.Template, strs, dashboard.MaxBatchDiskGB)...)

	if err := huh.NewForm(groups...).Run(); err != nil {
		return err
	}
	req.VMNames = batch.ParseNames(namesText)
	strs.apply(&req.Template)
	return nil
}

func confirm(title, description string) (bool, error) {
	var ok bool
	err := huh.NewForm(huh.NewGroup(
		huh.NewConfirm().
			Title(title).
			Description(description).
			Value(&ok),
	)).Run()
	return ok, err
}
