package vmlist

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"github.com/flo-mic/vmdeck/internal/api"
)

// Record holds the actions recorded for one backend.
type Record struct {
	Actions map[int]Entry `json:"actions,omitempty"`
	// Pending are single creates whose id is not known yet. They are bound
	// to a pending record of the same name on the next refresh.
	Pending []PendingCreate `json:"pending,omitempty"`
}

// Entry is the last action issued for one VM id.
type Entry struct {
	Action Action    `json:"action"`
	At     time.Time `json:"at"`
}

// PendingCreate is a create request identified by name only.
type PendingCreate struct {
	Name string    `json:"name"`
	At   time.Time `json:"at"`
}

func (r Record) empty() bool {
	return len(r.Actions) == 0 && len(r.Pending) == 0
}

func (r Record) clone() Record {
	out := Record{Pending: append([]PendingCreate(nil), r.Pending...)}
	if len(r.Actions) > 0 {
		out.Actions = make(map[int]Entry, len(r.Actions))
		for id, e := range r.Actions {
			out.Actions[id] = e
		}
	}
	return out
}

func (r *Record) set(id int, a Action, at time.Time) {
	if r.Actions == nil {
		r.Actions = map[int]Entry{}
	}
	r.Actions[id] = Entry{Action: a, At: at}
}

// Last returns the action recorded for id.
func (r Record) Last(id int) Action {
	return r.Actions[id].Action
}

// reconcile binds pending creates to the records in vms and forgets every
// id that left the pending state. started is when the request for vms was
// issued. The backend applies a mutation before answering it, so anything
// recorded before started is already reflected in vms: a create that
// matched nothing is dropped, as is an id that is gone or no longer
// pending. Later entries are kept until a newer list confirms them.
func (r *Record) reconcile(vms []api.VM, started time.Time) {
	var keep []PendingCreate
	for _, p := range r.Pending {
		if id, ok := r.match(vms, p.Name); ok {
			r.set(id, ActionCreate, p.At)
			continue
		}
		if p.At.Before(started) {
			continue
		}
		keep = append(keep, p)
	}
	r.Pending = keep

	byID := make(map[int]api.VM, len(vms))
	for _, vm := range vms {
		byID[vm.ID] = vm
	}
	for id, e := range r.Actions {
		if !e.At.Before(started) {
			continue
		}
		vm, ok := byID[id]
		if !ok || vm.Status != api.StatusPending || vm.IsDeleted() {
			delete(r.Actions, id)
		}
	}
}

func (r *Record) match(vms []api.VM, name string) (int, bool) {
	for _, vm := range vms {
		if vm.VMName != name || vm.Status != api.StatusPending || vm.IsDeleted() {
			continue
		}
		if _, ok := r.Actions[vm.ID]; ok {
			continue
		}
		return vm.ID, true
	}
	return 0, false
}

// Ledger stores the Record outside the process, so that separate vmdeck
// invocations agree on what was last asked of each VM.
type Ledger interface {
	Load() (Record, error)
	// Update applies fn to the stored record and returns the result.
	Update(fn func(*Record)) (Record, error)
}

// FileLedger keeps the records of all backends in one JSON file, keyed by
// backend URL. The file is written with 0600 and guarded by a lock file.
type FileLedger struct {
	path   string
	server string
	lock   *flock.Flock
}

// NewFileLedger returns the ledger for server at path. Nothing is read
// until Load or Update.
func NewFileLedger(path, server string) *FileLedger {
	return &FileLedger{path: path, server: server, lock: flock.New(path + ".lock")}
}

// Load returns the record of the ledger's backend.
func (l *FileLedger) Load() (Record, error) {
	if _, err := os.Stat(l.path); os.IsNotExist(err) {
		return Record{}, nil
	}
	if err := l.lock.RLock(); err != nil {
		return Record{}, fmt.Errorf("locking %s: %w", l.path, err)
	}
	defer l.lock.Unlock()

	all, err := l.read()
	if err != nil {
		return Record{}, err
	}
	return all[l.server], nil
}

// Update reads, modifies and writes the file under an exclusive lock. The
// file is removed once no backend has anything recorded.
func (l *FileLedger) Update(fn func(*Record)) (Record, error) {
	if err := os.MkdirAll(filepath.Dir(l.path), 0700); err != nil {
		return Record{}, fmt.Errorf("creating actions dir: %w", err)
	}
	if err := l.lock.Lock(); err != nil {
		return Record{}, fmt.Errorf("locking %s: %w", l.path, err)
	}
	defer l.lock.Unlock()

	all, err := l.read()
	if err != nil {
		return Record{}, err
	}
	rec := all[l.server].clone()
	fn(&rec)
	if rec.empty() {
		delete(all, l.server)
	} else {
		all[l.server] = rec
	}

	if len(all) == 0 {
		if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
			return rec, fmt.Errorf("removing %s: %w", l.path, err)
		}
		return rec, nil
	}
	data, err := json.MarshalIndent(all, "", "  ")
	if err != nil {
		return rec, err
	}
	if err := os.WriteFile(l.path, data, 0600); err != nil {
		return rec, fmt.Errorf("writing %s: %w", l.path, err)
	}
	return rec, nil
}

func (l *FileLedger) read() (map[string]Record, error) {
	all := map[string]Record{}
	data, err := os.ReadFile(l.path)
	if os.IsNotExist(err) {
		return all, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading actions file: %w", err)
	}
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, fmt.Errorf("parsing actions file %s: %w", l.path, err)
	}
	if all == nil {
		all = map[string]Record{}
	}
	return all, nil
}
