package batch

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flo-mic/vmdeck/internal/api"
)

func TestParseNames(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want []string
	}{
		{"empty", "", nil},
		{"blank lines only", "\n  \n\t\n", nil},
		{"trims and drops blanks", "  web-01 \n\nweb-02\r\n", []string{"web-01", "web-02"}},
		{"keeps duplicates", "a\na\nb", []string{"a", "a", "b"}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, ParseNames(c.in))
		})
	}
}

func TestReadNames_SkipsComments(t *testing.T) {
	names, err := ReadNames(strings.NewReader("# fleet\nweb-01\n\n  # spare\nweb-02\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"web-01", "web-02"}, names)
}

func TestReadNamesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "names.txt")
	require.NoError(t, os.WriteFile(path, []byte("a\nb\n"), 0o644))

	names, err := ReadNamesFile(path, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, names)

	names, err = ReadNamesFile("-", strings.NewReader("c\n# skipped\nd\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "d"}, names)

	_, err = ReadNamesFile(filepath.Join(t.TempDir(), "missing.txt"), nil)
	assert.Error(t, err)
}

func TestLoadTemplate_AppliesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "batch.yaml")
	content := `esxiHost: esx01.lab
datastore: ds-ssd
vcenter: vc.lab
isoPath: "[ds-iso] win2022.iso"
memoryGB: 16
names:
  - web-01
  - "  "
  - web-02
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	req, err := LoadTemplate(path)
	require.NoError(t, err)
	assert.Equal(t, "esx01.lab", req.ESXiHost)
	assert.Equal(t, "ds-ssd", req.Datastore)
	assert.Equal(t, 16, req.MemoryGB)
	assert.Equal(t, DefaultNetwork, req.Network)
	assert.Equal(t, DefaultCPUCount, req.CPUCount)
	assert.Equal(t, DefaultDiskGB, req.DiskGB)
	assert.Equal(t, DefaultGuestOS, req.GuestOS)
	assert.Equal(t, []string{"web-01", "web-02"}, req.VMNames)
}

func TestLoadTemplate_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadTemplate(filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("cpuCount: [1, 2"), 0o644))
	_, err = LoadTemplate(bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing batch template")
}

func TestWriteTemplate_RoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "batch.yaml")
	req := api.BatchRequest{
		Template: api.Template{ESXiHost: "esx02", Datastore: "ds2", Network: "Prod", CPUCount: 8, MemoryGB: 32, DiskGB: 200, GuestOS: "rhel9_64Guest", VCenter: "vc"},
		VMNames:  []string{"db-01", "db-02"},
	}
	require.NoError(t, WriteTemplate(path, req))

	got, err := LoadTemplate(path)
	require.NoError(t, err)
	assert.Equal(t, req, got)
}

func TestWriteCSV(t *testing.T) {
	req := api.BatchRequest{
		Template: api.Template{ESXiHost: "esx01", Datastore: "ds1", Network: "VM Network", CPUCount: 2, MemoryGB: 4, DiskGB: 40, ISOPath: "[ds1] iso/win.iso", GuestOS: DefaultGuestOS, VCenter: "vc.lab"},
		VMNames:  []string{"a", " ", "b"},
	}
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, req))

	want := "vmName,esxiHost,datastore,network,cpuCount,memoryGB,diskGB,isoPath,guestOS,vcenter\n" +
		"a,esx01,ds1,VM Network,2,4,40,[ds1] iso/win.iso,windows9Server64Guest,vc.lab\n" +
		"b,esx01,ds1,VM Network,2,4,40,[ds1] iso/win.iso,windows9Server64Guest,vc.lab\n"
	assert.Equal(t, want, buf.String())
}

func TestWriteCSV_QuotesCommas(t *testing.T) {
	req := api.BatchRequest{Template: api.Template{Network: "a,b"}, VMNames: []string{"x"}}
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, req))
	assert.Contains(t, buf.String(), `"a,b"`)
}

func TestGuestOptions(t *testing.T) {
	opts := GuestOptions()
	require.NotEmpty(t, opts)
	assert.Equal(t, DefaultGuestOS, opts[0].ID)
	assert.True(t, IsKnownGuest("ubuntu64Guest"))
	assert.False(t, IsKnownGuest("beos5Guest"))
}
