package view

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/charmbracelet/lipgloss"
	"github.com/docker/go-units"
	"gopkg.in/yaml.v3"

	"github.com/flo-mic/vmdeck/internal/api"
	"github.com/flo-mic/vmdeck/internal/vmlist"
)

// Row is a VM with its derived display state.
type Row struct {
	VM     api.VM
	Status Status
}

// Rows derives a Row for every VM in snap, keeping the backend order.
func Rows(snap vmlist.Snapshot) []Row {
	rows := make([]Row, 0, len(snap.VMs))
	for _, vm := range snap.VMs {
		rows = append(rows, Row{VM: vm, Status: StatusOf(vm, snap.LastAction(vm.ID))})
	}
	return rows
}

// Record is the machine-readable form of a Row for json and yaml output.
type Record struct {
	api.VM        `yaml:",inline"`
	DisplayStatus Status   `json:"displayStatus" yaml:"displayStatus"`
	ResultDetail  string   `json:"resultDetail" yaml:"resultDetail"`
	Actions       []Action `json:"actions" yaml:"actions"`
}

// Records converts rows for encoding.
func Records(rows []Row) []Record {
	out := make([]Record, 0, len(rows))
	for _, r := range rows {
		actions := Actions(r.Status)
		if actions == nil {
			actions = []Action{}
		}
		out = append(out, Record{
			VM:            r.VM,
			DisplayStatus: r.Status,
			ResultDetail:  ResultDetail(r.VM.Result),
			Actions:       actions,
		})
	}
	return out
}

var (
	statusStyles = map[Status]lipgloss.Style{
		StatusSuccess:  lipgloss.NewStyle().Foreground(lipgloss.Color("2")),
		StatusError:    lipgloss.NewStyle().Foreground(lipgloss.Color("1")),
		StatusCreating: lipgloss.NewStyle().Foreground(lipgloss.Color("3")),
		StatusDeleting: lipgloss.NewStyle().Foreground(lipgloss.Color("3")),
		StatusDeleted:  lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
	}
	bannerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15")).Background(lipgloss.Color("1")).Padding(0, 1)
	headerStyle = lipgloss.NewStyle().Bold(true)
)

// maxResultWidth truncates the result column of the table.
const maxResultWidth = 40

// TableOptions controls RenderTable.
type TableOptions struct {
	Color bool
}

// RenderTable writes rows as an aligned table. The status column is last so
// colour escapes do not disturb the alignment.
func RenderTable(w io.Writer, rows []Row, opts TableOptions) error {
	if len(rows) == 0 {
		_, err := fmt.Fprintln(w, "No virtual machines found. Create your first VM to get started.")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tNAME\tHOST\tCPU\tMEMORY\tDISK\tDATASTORE\tNETWORK\tCREATED\tRESULT\tSTATUS")
	for _, r := range rows {
		_, _ = fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.VM.ID,
			r.VM.VMName,
			r.VM.ESXiHost,
			r.VM.CPUCount,
			GiB(r.VM.MemoryGB),
			GiB(r.VM.DiskGB),
			r.VM.Datastore,
			r.VM.Network,
			r.VM.CreatedAt,
			truncate(resultCell(r.VM.Result), maxResultWidth),
			statusCell(r.Status, opts.Color),
		)
	}
	return tw.Flush()
}

// RenderDetails writes every attribute of one VM, one per line.
func RenderDetails(w io.Writer, r Row, opts TableOptions) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	lines := [][2]string{
		{"ID", fmt.Sprint(r.VM.ID)},
		{"Name", r.VM.VMName},
		{"Status", statusCell(r.Status, opts.Color)},
		{"ESXi host", r.VM.ESXiHost},
		{"vCenter", r.VM.VCenter},
		{"Datastore", r.VM.Datastore},
		{"Network", r.VM.Network},
		{"CPU", fmt.Sprint(r.VM.CPUCount)},
		{"Memory", GiB(r.VM.MemoryGB)},
		{"Disk", GiB(r.VM.DiskGB)},
		{"ISO", r.VM.ISOPath},
		{"Guest OS", r.VM.GuestOS},
		{"Created", r.VM.CreatedAt.String()},
		{"Actions", actionList(Actions(r.Status))},
	}
	for _, l := range lines {
		_, _ = fmt.Fprintf(tw, "%s:\t%s\n", l[0], l[1])
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	title := "Result"
	if opts.Color {
		title = headerStyle.Render(title)
	}
	_, err := fmt.Fprintf(w, "\n%s (%s):\n%s\n", title, KindOf(r.VM.Result), ResultDetail(r.VM.Result))
	return err
}

// RenderBanner writes the persistent refresh error, if any.
func RenderBanner(w io.Writer, banner string, color bool) error {
	if banner == "" {
		return nil
	}
	if color {
		banner = bannerStyle.Render(banner)
	}
	_, err := fmt.Fprintln(w, banner)
	return err
}

// RenderJSON writes rows as an indented JSON array.
func RenderJSON(w io.Writer, rows []Row) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(Records(rows))
}

// RenderYAML writes rows as a YAML sequence.
func RenderYAML(w io.Writer, rows []Row) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(Records(rows)); err != nil {
		return err
	}
	return enc.Close()
}

// GiB formats a whole number of gigabytes the way the rest of the CLI
// prints sizes.
func GiB(n int) string {
	return units.BytesSize(float64(n) * units.GiB)
}

func statusCell(s Status, color bool) string {
	if !color {
		return string(s)
	}
	if style, ok := statusStyles[s]; ok {
		return style.Render(string(s))
	}
	return string(s)
}

func resultCell(result string) string {
	if result == "" {
		return "-"
	}
	return ResultDetail(result)
}

func actionList(actions []Action) string {
	if len(actions) == 0 {
		return "none"
	}
	parts := make([]string, 0, len(actions))
	for _, a := range actions {
		parts = append(parts, string(a))
	}
	return strings.Join(parts, ", ")
}

func truncate(s string, n int) string {
	r := []rune(strings.ReplaceAll(s, "\n", " "))
	if len(r) <= n {
		return string(r)
	}
	return string(r[:n-1]) + "…"
}
