package batch

import (
	"encoding/csv"
	"io"
	"strconv"
	"strings"

	"github.com/flo-mic/vmdeck/internal/api"
)

// DefaultCSVName is the file name used when exporting without a path.
const DefaultCSVName = "vm-batch-template.csv"

var csvHeader = []string{
	"vmName", "esxiHost", "datastore", "network", "cpuCount",
	"memoryGB", "diskGB", "isoPath", "guestOS", "vcenter",
}

// WriteCSV writes one row per non-blank name of req, each carrying the
// shared template.
func WriteCSV(w io.Writer, req api.BatchRequest) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	t := req.Template
	for _, name := range req.VMNames {
		if strings.TrimSpace(name) == "" {
			continue
		}
		row := []string{
			name, t.ESXiHost, t.Datastore, t.Network,
			strconv.Itoa(t.CPUCount), strconv.Itoa(t.MemoryGB), strconv.Itoa(t.DiskGB),
			t.ISOPath, t.GuestOS, t.VCenter,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
