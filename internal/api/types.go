package api

// VM status values reported by the backend.
const (
	StatusPending = "pending"
	StatusSuccess = "success"
	StatusError   = "error"
)

// VM is one provisioned (or provisioning) guest as returned by GET /vms.
type VM struct {
	ID        int       `json:"id" yaml:"id"`
	VMName    string    `json:"vmName" yaml:"vmName"`
	ESXiHost  string    `json:"esxiHost" yaml:"esxiHost"`
	Datastore string    `json:"datastore" yaml:"datastore"`
	Network   string    `json:"network" yaml:"network"`
	CPUCount  int       `json:"cpuCount" yaml:"cpuCount"`
	MemoryGB  int       `json:"memoryGB" yaml:"memoryGB"`
	DiskGB    int       `json:"diskGB" yaml:"diskGB"`
	ISOPath   string    `json:"isoPath" yaml:"isoPath"`
	GuestOS   string    `json:"guestOS" yaml:"guestOS"`
	VCenter   string    `json:"vcenter" yaml:"vcenter"`
	Status    string    `json:"status" yaml:"status"`
	Result    string    `json:"result,omitempty" yaml:"result,omitempty"`   // "SUCCESS: ..." or "ERROR: ..."
	Deleted   *bool     `json:"deleted,omitempty" yaml:"deleted,omitempty"` // nil and false both mean present
	CreatedAt Timestamp `json:"created_at" yaml:"created_at"`
}

// IsDeleted reports whether the backend marked the record as removed.
func (v VM) IsDeleted() bool {
	return v.Deleted != nil && *v.Deleted
}

// Form returns the configuration attributes of v, e.g. to copy it.
func (v VM) Form() VMForm {
	return VMForm{
		VMName:   v.VMName,
		Template: v.Template(),
	}
}

// Template returns v's configuration without the name.
func (v VM) Template() Template {
	return Template{
		ESXiHost:  v.ESXiHost,
		Datastore: v.Datastore,
		Network:   v.Network,
		CPUCount:  v.CPUCount,
		MemoryGB:  v.MemoryGB,
		DiskGB:    v.DiskGB,
		ISOPath:   v.ISOPath,
		GuestOS:   v.GuestOS,
		VCenter:   v.VCenter,
	}
}

// Template holds every VM configuration attribute except the name.
// It is shared by single creation and batch creation.
type Template struct {
	ESXiHost  string `json:"esxiHost" yaml:"esxiHost"`
	Datastore string `json:"datastore" yaml:"datastore"`
	Network   string `json:"network" yaml:"network"`
	CPUCount  int    `json:"cpuCount" yaml:"cpuCount"`
	MemoryGB  int    `json:"memoryGB" yaml:"memoryGB"`
	DiskGB    int    `json:"diskGB" yaml:"diskGB"`
	ISOPath   string `json:"isoPath" yaml:"isoPath"`
	GuestOS   string `json:"guestOS" yaml:"guestOS"`
	VCenter   string `json:"vcenter" yaml:"vcenter"`
}

// VMForm is the body of POST /vms.
type VMForm struct {
	VMName string `json:"vmName" yaml:"vmName"`
	Template
}

// BatchRequest is the body of POST /vms/batch: one template, many names.
type BatchRequest struct {
	Template
	VMNames []string `json:"vmNames" yaml:"vmNames"`
}

// BatchResponse is returned by POST /vms/batch.
type BatchResponse struct {
	Message string `json:"message"`
	VMIDs   []int  `json:"vm_ids"`
}

// LoginRequest is the body of POST /login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// User identifies the authenticated principal.
type User struct {
	Username string `json:"username"`
}

// LoginResponse is returned by POST /login. Older backends omit User.
type LoginResponse struct {
	Message string `json:"message"`
	User    *User  `json:"user,omitempty"`
}

// AuthStatus is returned by GET /check-auth.
type AuthStatus struct {
	Authenticated bool  `json:"authenticated"`
	User          *User `json:"user,omitempty"`
}

// MessageResponse is the generic success body.
type MessageResponse struct {
	Message string `json:"message"`
}

// ErrorResponse is the error body of any non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}
