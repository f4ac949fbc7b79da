package batch

import "sort"

// guestPreset is a vSphere guest identifier offered in forms.
type guestPreset struct {
	label string
	order int
}

// guestPresets holds the guest OS identifiers offered by the forms, keyed
// by the vSphere GuestId the backend passes to New-VM.
var guestPresets = map[string]guestPreset{
	"windows9Server64Guest":      {label: "Windows Server 2016 or later", order: 0},
	"windows2019srv_64Guest":     {label: "Windows Server 2019", order: 1},
	"windows2019srvNext_64Guest": {label: "Windows Server 2022", order: 2},
	"windows9_64Guest":           {label: "Windows 10 / 11", order: 3},
	"rhel9_64Guest":              {label: "Red Hat Enterprise Linux 9", order: 4},
	"ubuntu64Guest":              {label: "Ubuntu Linux (64-bit)", order: 5},
	"debian12_64Guest":           {label: "Debian 12", order: 6},
	"otherLinux64Guest":          {label: "Other Linux (64-bit)", order: 7},
}

// GuestOption is one entry of the guest OS picker.
type GuestOption struct {
	ID    string
	Label string
}

// GuestOptions returns the presets in display order.
func GuestOptions() []GuestOption {
	out := make([]GuestOption, 0, len(guestPresets))
	for id, p := range guestPresets {
		out = append(out, GuestOption{ID: id, Label: p.label})
	}
	sort.Slice(out, func(i, j int) bool {
		return guestPresets[out[i].ID].order < guestPresets[out[j].ID].order
	})
	return out
}

// IsKnownGuest reports whether id is one of the presets. Other ids are
// still accepted; the backend validates them.
func IsKnownGuest(id string) bool {
	_, ok := guestPresets[id]
	return ok
}
