package cmd

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	units "github.com/docker/go-units"
	"github.com/spf13/cobra"

	"github.com/flo-mic/vmdeck/internal/api"
	"github.com/flo-mic/vmdeck/internal/batch"
	"github.com/flo-mic/vmdeck/internal/dashboard"
	"github.com/flo-mic/vmdeck/internal/view"
)

func (h Handler) List(cmd *cobra.Command, _ []string) error {
	_, e, err := h.load(cmd)
	if err != nil {
		return err
	}
	rows := e.dash.Rows()

	all, _ := cmd.Flags().GetBool("all")
	page, _ := cmd.Flags().GetInt("page")
	size, _ := cmd.Flags().GetInt("page-size")
	if size <= 0 {
		size = e.conf.PageSize
	}
	if all {
		size = max(len(rows), 1)
		page = 1
	}
	page = view.ClampPage(page, len(rows), size)

	format := outputFormat(cmd)
	if err := render(h.Out, format, view.Page(rows, page, size), h.color()); err != nil {
		return err
	}
	if format == OutputTable && len(rows) > size {
		fmt.Fprintf(h.Out, "\nPage %d/%d (%d VMs)\n", page, view.PageCount(len(rows), size), len(rows))
	}
	return e.close()
}

func (h Handler) Show(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	_, e, err := h.load(cmd)
	if err != nil {
		return err
	}
	row, ok := e.dash.Find(id)
	if !ok {
		return fmt.Errorf("%w: %d", dashboard.ErrVMNotFound, id)
	}

	switch format := outputFormat(cmd); format {
	case OutputTable:
		err = view.RenderDetails(h.Out, row, view.TableOptions{Color: h.color()})
	default:
		err = render(h.Out, format, []view.Row{row}, false)
	}
	if err != nil {
		return err
	}
	return e.close()
}

func (h Handler) Create(cmd *cobra.Command, _ []string) error {
	tmpl, err := templateFromFlags(cmd, batch.DefaultTemplate())
	if err != nil {
		return err
	}
	name, _ := cmd.Flags().GetString("name")
	form := api.VMForm{VMName: name, Template: tmpl}

	if h.interactive() && strings.TrimSpace(name) == "" {
		if err := vmForm(&form); err != nil {
			return err
		}
	}

	ctx, e, err := h.connect(cmd)
	if err != nil {
		return err
	}
	warnGuest(e, form.GuestOS)
	if err := e.dash.CreateVM(ctx, form); err != nil {
		return reported(err)
	}
	return e.close()
}

func (h Handler) Batch(cmd *cobra.Command, _ []string) error {
	req := api.BatchRequest{Template: batch.DefaultTemplate()}
	fromTemplate := false
	if path, _ := cmd.Flags().GetString("template"); path != "" {
		loaded, err := batch.LoadTemplate(path)
		if err != nil {
			return err
		}
		req, fromTemplate = loaded, true
	}

	tmpl, err := templateFromFlags(cmd, req.Template)
	if err != nil {
		return err
	}
	req.Template = tmpl

	names, _ := cmd.Flags().GetStringArray("name")
	req.VMNames = append(req.VMNames, names...)
	if path, _ := cmd.Flags().GetString("names-file"); path != "" {
		fileNames, err := batch.ReadNamesFile(path, h.In)
		if err != nil {
			return err
		}
		req.VMNames = append(req.VMNames, fileNames...)
	}

	if h.interactive() && !fromTemplate && len(batch.ParseNames(strings.Join(req.VMNames, "\n"))) == 0 {
		if err := batchForm(&req); err != nil {
			return err
		}
	}

	if path, _ := cmd.Flags().GetString("export-csv"); path != "" {
		return h.exportCSV(path, req)
	}
	if path, _ := cmd.Flags().GetString("write-template"); path != "" {
		if err := batch.WriteTemplate(path, req); err != nil {
			return fmt.Errorf("writing batch template: %w", err)
		}
		fmt.Fprintf(h.Out, "Batch template written to %s\n", path)
		return nil
	}

	ctx, e, err := h.connect(cmd)
	if err != nil {
		return err
	}
	warnGuest(e, req.GuestOS)
	resp, err := e.dash.CreateBatch(ctx, req.Template, req.VMNames)
	if err != nil {
		return reported(err)
	}
	if len(resp.VMIDs) > 0 {
		ids := make([]string, len(resp.VMIDs))
		for i, id := range resp.VMIDs {
			ids[i] = strconv.Itoa(id)
		}
		fmt.Fprintf(h.Out, "VM IDs: %s\n", strings.Join(ids, ", "))
	}
	return e.close()
}

func (h Handler) exportCSV(path string, req api.BatchRequest) error {
	if path == "-" {
		return batch.WriteCSV(h.Out, req)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := batch.WriteCSV(f, req); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Fprintf(h.Out, "Batch exported to %s\n", path)
	return nil
}

func (h Handler) Copy(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	ctx, e, err := h.load(cmd)
	if err != nil {
		return err
	}
	name, _ := cmd.Flags().GetString("name")
	if err := e.dash.CopyVM(ctx, id, name); err != nil {
		return reported(err)
	}
	return e.close()
}

func (h Handler) RM(cmd *cobra.Command, args []string) error {
	ids := make([]int, 0, len(args))
	for _, a := range args {
		id, err := parseID(a)
		if err != nil {
			return err
		}
		ids = append(ids, id)
	}

	ctx, e, err := h.load(cmd)
	if err != nil {
		return err
	}

	if yes, _ := cmd.Flags().GetBool("yes"); !yes {
		if !h.interactive() {
			return fmt.Errorf("refusing to delete without confirmation, pass --yes")
		}
		var names []string
		for _, id := range ids {
			if row, ok := e.dash.Find(id); ok {
				names = append(names, fmt.Sprintf("%s (%d)", row.VM.VMName, id))
			}
		}
		ok, err := confirm(fmt.Sprintf("Delete %d VM(s)?", len(ids)), strings.Join(names, ", "))
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(h.Out, "Aborted.")
			return nil
		}
	}

	var errs []error
	for _, id := range ids {
		if err := e.dash.DeleteVM(ctx, id); err != nil {
			errs = append(errs, fmt.Errorf("VM %d: %w", id, err))
		}
	}
	if len(errs) > 0 {
		return reported(errors.Join(errs...))
	}
	return e.close()
}

func warnGuest(e *env, guestOS string) {
	if guestOS != "" && !batch.IsKnownGuest(guestOS) {
		e.log.Warn("guest OS is not one of the presets, the backend decides whether it is valid", "guestOS", guestOS)
	}
}

func parseID(s string) (int, error) {
	id, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || id < 1 {
		return 0, fmt.Errorf("invalid VM id %q", s)
	}
	return id, nil
}

// parseGB reads a size flag. Plain numbers are gigabytes; anything else goes
// through units.RAMInBytes and must be a whole number of GiB.
func parseGB(s string) (int, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		return n, nil
	}
	b, err := units.RAMInBytes(s)
	if err != nil {
		return 0, err
	}
	if b%units.GiB != 0 {
		return 0, fmt.Errorf("%s is not a whole number of GB", s)
	}
	return int(b / units.GiB), nil
}

// templateFromFlags overrides base with every template flag the user set.
func templateFromFlags(cmd *cobra.Command, base api.Template) (api.Template, error) {
	fs := cmd.Flags()
	str := func(flag string, dst *string) {
		if fs.Changed(flag) {
			*dst, _ = fs.GetString(flag)
		}
	}
	str("esxi-host", &base.ESXiHost)
	str("vcenter", &base.VCenter)
	str("datastore", &base.Datastore)
	str("network", &base.Network)
	str("iso", &base.ISOPath)
	str("guest-os", &base.GuestOS)
	if fs.Changed("cpu") {
		base.CPUCount, _ = fs.GetInt("cpu")
	}

	for flag, dst := range map[string]*int{"memory": &base.MemoryGB, "disk": &base.DiskGB} {
		if !fs.Changed(flag) {
			continue
		}
		v, _ := fs.GetString(flag)
		n, err := parseGB(v)
		if err != nil {
			return api.Template{}, fmt.Errorf("invalid --%s: %w", flag, err)
		}
		*dst = n
	}
	return base, nil
}
