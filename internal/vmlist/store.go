// Package vmlist holds the client's read replica of the backend VM
// collection. The replica is replaced wholesale on every refresh; mutations
// go to the backend and show up on the next refresh.
package vmlist

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/flo-mic/vmdeck/internal/api"
	"github.com/flo-mic/vmdeck/internal/client"
	"github.com/flo-mic/vmdeck/internal/notify"
)

// DefaultInterval is the auto-refresh period of the dashboard.
const DefaultInterval = 30 * time.Second

var (
	// ErrSuperseded is returned by Refresh when a refresh issued later has
	// already been applied; the response was dropped.
	ErrSuperseded = errors.New("refresh superseded by a newer one")
	// ErrInvalidated is returned by Refresh when the store was invalidated
	// while the request was in flight; the response was dropped.
	ErrInvalidated = errors.New("refresh dropped after invalidation")
)

// Backend is the part of the transport client the store needs.
type Backend interface {
	ListVMs(ctx context.Context) ([]api.VM, error)
	CreateVM(ctx context.Context, form api.VMForm) (*api.MessageResponse, error)
	CreateBatch(ctx context.Context, req api.BatchRequest) (*api.BatchResponse, error)
	DeleteVM(ctx context.Context, id int) (*api.MessageResponse, error)
}

// Action is the last mutating request this client issued for a VM.
type Action int

const (
	ActionNone Action = iota
	ActionCreate
	ActionDelete
)

// ParseAction is the inverse of Action.String.
func ParseAction(s string) (Action, error) {
	switch s {
	case "create":
		return ActionCreate, nil
	case "delete":
		return ActionDelete, nil
	case "none", "":
		return ActionNone, nil
	}
	return ActionNone, fmt.Errorf("unknown action %q", s)
}

func (a Action) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *Action) UnmarshalText(text []byte) error {
	parsed, err := ParseAction(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

func (a Action) String() string {
	switch a {
	case ActionCreate:
		return "create"
	case ActionDelete:
		return "delete"
	default:
		return "none"
	}
}

// Snapshot is a consistent view of the store.
type Snapshot struct {
	VMs       []api.VM
	Actions   map[int]Action
	Banner    string // set while silent refreshes keep failing
	Loaded    bool   // at least one refresh was applied
	UpdatedAt time.Time
}

// LastAction returns the recorded action for id.
func (s Snapshot) LastAction(id int) Action {
	return s.Actions[id]
}

// Option configures a Store.
type Option func(*Store)

// WithNotifier sets where refresh toasts go. Defaults to notify.Discard.
func WithNotifier(n notify.Notifier) Option {
	return func(s *Store) { s.notifier = n }
}

// WithLedger persists recorded actions through l. The store still starts
// from the record given with WithActions; l is read again on every applied
// refresh and written after every mutation.
func WithLedger(l Ledger) Option {
	return func(s *Store) { s.ledger = l }
}

// WithActions seeds the recorded actions, e.g. from Ledger.Load.
func WithActions(rec Record) Option {
	return func(s *Store) { s.record = rec.clone() }
}

// WithBannerThreshold sets how many consecutive silent failures raise the
// banner. Defaults to 1.
func WithBannerThreshold(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.bannerThreshold = n
		}
	}
}

// Store is safe for concurrent use. Overlapping refreshes are allowed; each
// takes a ticket and only a response newer than the one on display is
// applied, so a slow early response cannot overwrite a later one.
type Store struct {
	backend         Backend
	notifier        notify.Notifier
	bannerThreshold int
	now             func() time.Time

	emitMu sync.Mutex // serializes listener delivery

	mu             sync.Mutex
	vms            []api.VM
	loaded         bool
	updatedAt      time.Time
	issued         uint64 // last ticket handed out
	applied        uint64 // ticket of the list on display
	epoch          uint64
	silentFailures int
	banner         string
	record         Record
	ledger         Ledger
	ledgerErr      error
	listeners      map[int]func(Snapshot)
	nextListener   int
}

// New returns an empty store.
func New(backend Backend, opts ...Option) *Store {
	s := &Store{
		backend:         backend,
		notifier:        notify.Discard,
		bannerThreshold: 1,
		now:             time.Now,
		listeners:       map[int]func(Snapshot){},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Refresh fetches the full collection and replaces the local list. It
// returns the number of VMs applied.
//
// When silent is false the outcome is reported as a toast. When silent is
// true nothing is reported, but consecutive failures raise the banner and a
// success clears it. On failure the previous list is kept.
func (s *Store) Refresh(ctx context.Context, silent bool) (int, error) {
	s.mu.Lock()
	s.issued++
	ticket, epoch := s.issued, s.epoch
	started := s.now()
	s.mu.Unlock()

	vms, err := s.backend.ListVMs(ctx)

	s.mu.Lock()
	if epoch != s.epoch {
		s.mu.Unlock()
		return 0, ErrInvalidated
	}

	if err != nil {
		changed := false
		if silent && ticket > s.applied {
			s.silentFailures++
			if s.silentFailures >= s.bannerThreshold {
				banner := "Unable to refresh VMs: " + client.Message(err)
				changed = banner != s.banner
				s.banner = banner
			}
		}
		s.mu.Unlock()

		if changed {
			s.publish()
		}
		if !silent {
			s.notifier.Notify(notify.Error("Failed to load VMs", client.Message(err)))
		}
		return 0, fmt.Errorf("refreshing VMs: %w", err)
	}

	if ticket <= s.applied {
		s.mu.Unlock()
		return 0, ErrSuperseded
	}

	s.vms = vms
	s.recordLocked(func(r *Record) { r.reconcile(vms, started) })
	s.applied = ticket
	s.loaded = true
	s.updatedAt = s.now()
	s.silentFailures = 0
	s.banner = ""
	s.mu.Unlock()

	s.publish()
	if !silent {
		s.notifier.Notify(notify.Success("VMs refreshed", fmt.Sprintf("Loaded %d virtual machines", len(vms))))
	}
	return len(vms), nil
}

// Run refreshes silently right away and then every interval until ctx is
// done. It is the store's only background activity.
func (s *Store) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	_, _ = s.Refresh(ctx, true)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = s.Refresh(ctx, true)
		}
	}
}

// Invalidate drops the responses of every refresh currently in flight.
func (s *Store) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.epoch++
}

// Reset invalidates in-flight refreshes and forgets the list, the banner
// and the recorded actions, e.g. after logout.
func (s *Store) Reset() {
	s.mu.Lock()
	s.epoch++
	s.vms = nil
	s.loaded = false
	s.updatedAt = time.Time{}
	s.applied = s.issued
	s.silentFailures = 0
	s.banner = ""
	s.recordLocked(func(r *Record) { *r = Record{} })
	s.mu.Unlock()

	s.publish()
}

// Create asks the backend to provision one VM. The list is not touched; the
// new record is matched by name on the next refresh.
func (s *Store) Create(ctx context.Context, form api.VMForm) (*api.MessageResponse, error) {
	resp, err := s.backend.CreateVM(ctx, form)
	if err != nil {
		return nil, fmt.Errorf("creating VM %q: %w", form.VMName, err)
	}
	s.noteCreate(form.VMName)
	return resp, nil
}

// CreateBatch asks the backend to provision one VM per name. Returned ids
// are recorded as being created.
func (s *Store) CreateBatch(ctx context.Context, req api.BatchRequest) (*api.BatchResponse, error) {
	resp, err := s.backend.CreateBatch(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("creating %d VMs: %w", len(req.VMNames), err)
	}
	s.mu.Lock()
	at := s.now()
	s.recordLocked(func(r *Record) {
		for _, id := range resp.VMIDs {
			r.set(id, ActionCreate, at)
		}
	})
	s.mu.Unlock()
	return resp, nil
}

// Copy provisions a new VM with the configuration of src under name.
func (s *Store) Copy(ctx context.Context, src api.VM, name string) (*api.MessageResponse, error) {
	form := src.Form()
	form.VMName = name
	resp, err := s.backend.CreateVM(ctx, form)
	if err != nil {
		return nil, fmt.Errorf("copying VM %q: %w", src.VMName, err)
	}
	s.noteCreate(name)
	return resp, nil
}

// Delete asks the backend to remove id and records the deletion so a
// pending status can be shown as "deleting".
func (s *Store) Delete(ctx context.Context, id int) (*api.MessageResponse, error) {
	resp, err := s.backend.DeleteVM(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("deleting VM %d: %w", id, err)
	}
	s.mu.Lock()
	at := s.now()
	s.recordLocked(func(r *Record) { r.set(id, ActionDelete, at) })
	s.mu.Unlock()
	return resp, nil
}

// VMs returns a copy of the current list.
func (s *Store) VMs() []api.VM {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]api.VM(nil), s.vms...)
}

// Get returns the VM with id from the current list.
func (s *Store) Get(id int) (api.VM, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, vm := range s.vms {
		if vm.ID == id {
			return vm, true
		}
	}
	return api.VM{}, false
}

// LastAction returns the last mutating action issued for id.
func (s *Store) LastAction(id int) Action {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.record.Last(id)
}

// Err returns the last error of the ledger, if any. The in-memory record
// stays current when the ledger fails.
func (s *Store) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledgerErr
}

// Banner returns the persistent refresh error, or "".
func (s *Store) Banner() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.banner
}

// Snapshot returns the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Subscribe registers fn to receive a Snapshot whenever the list or the
// banner changes. fn runs on the refreshing goroutine, one delivery at a
// time, and must not refresh or reset the store itself. The last snapshot
// delivered is always the current one.
func (s *Store) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextListener
	s.nextListener++
	s.listeners[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}

func (s *Store) noteCreate(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := PendingCreate{Name: name, At: s.now()}
	s.recordLocked(func(r *Record) { r.Pending = append(r.Pending, p) })
}

// recordLocked applies fn to the recorded actions. With a ledger the
// stored record is modified and becomes the in-memory one, which also
// picks up what other processes recorded.
func (s *Store) recordLocked(fn func(*Record)) {
	if s.ledger != nil {
		rec, err := s.ledger.Update(fn)
		if err == nil {
			s.record = rec
			return
		}
		s.ledgerErr = err
	}
	rec := s.record.clone()
	fn(&rec)
	s.record = rec
}

func (s *Store) snapshotLocked() Snapshot {
	actions := make(map[int]Action, len(s.record.Actions))
	for id, e := range s.record.Actions {
		actions[id] = e.Action
	}
	return Snapshot{
		VMs:       append([]api.VM(nil), s.vms...),
		Actions:   actions,
		Banner:    s.banner,
		Loaded:    s.loaded,
		UpdatedAt: s.updatedAt,
	}
}

func (s *Store) listenersLocked() []func(Snapshot) {
	out := make([]func(Snapshot), 0, len(s.listeners))
	for _, fn := range s.listeners {
		out = append(out, fn)
	}
	return out
}

// publish hands the current state to every listener. Each delivery reads
// the state when it starts, so a slow listener never receives an older
// snapshot after a newer one.
func (s *Store) publish() {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()

	s.mu.Lock()
	snap, listeners := s.snapshotLocked(), s.listenersLocked()
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(snap)
	}
}
