// Package backendtest runs an in-memory stand-in for the provisioning backend.
// It speaks the same REST surface (cookie sessions, /vms, /vms/batch) so the
// client, stores and commands can be tested end to end over real HTTP.
package backendtest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/flo-mic/vmdeck/internal/api"
)

// SessionCookie is the name of the cookie the fake backend issues.
const SessionCookie = "session"

// Request is one recorded call.
type Request struct {
	Method string
	Path   string
	Body   []byte
}

// Failure is a canned response returned instead of the normal handler.
type Failure struct {
	Status int
	Body   string // raw body; may be non-JSON
}

// Server is the fake backend. The zero value is not usable; call New.
type Server struct {
	*httptest.Server

	mu       sync.Mutex
	users    map[string]string // username -> password
	sessions map[string]string // cookie value -> username
	vms      []api.VM
	nextID   int
	requests []Request
	failures map[string][]Failure
	now      func() time.Time
}

// New starts a fake backend with one user, admin/admin.
func New() *Server {
	s := &Server{
		users:    map[string]string{"admin": "admin"},
		sessions: map[string]string{},
		nextID:   1,
		failures: map[string][]Failure{},
		now:      time.Now,
	}

	r := mux.NewRouter()
	r.Use(s.record, s.inject)
	r.HandleFunc("/login", s.handleLogin).Methods(http.MethodPost)
	r.HandleFunc("/logout", s.handleLogout).Methods(http.MethodPost)
	r.HandleFunc("/check-auth", s.handleCheckAuth).Methods(http.MethodGet)

	authed := r.NewRoute().Subrouter()
	authed.Use(s.requireSession)
	authed.HandleFunc("/vms", s.handleListVMs).Methods(http.MethodGet)
	authed.HandleFunc("/vms", s.handleCreateVM).Methods(http.MethodPost)
	authed.HandleFunc("/vms/batch", s.handleBatch).Methods(http.MethodPost)
	authed.HandleFunc("/vms/{id:[0-9]+}", s.handleDelete).Methods(http.MethodDelete)

	s.Server = httptest.NewServer(r)
	return s
}

// AddUser registers credentials accepted by /login.
func (s *Server) AddUser(username, password string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[username] = password
}

// SetVMs replaces the backend's VM collection. IDs are kept as given.
func (s *Server) SetVMs(vms []api.VM) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vms = append([]api.VM(nil), vms...)
	for _, vm := range vms {
		if vm.ID >= s.nextID {
			s.nextID = vm.ID + 1
		}
	}
}

// VMs returns a copy of the backend's VM collection.
func (s *Server) VMs() []api.VM {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]api.VM(nil), s.vms...)
}

// Complete finishes provisioning of id with status and result.
func (s *Server) Complete(id int, status, result string) {
	s.update(id, func(vm *api.VM) {
		vm.Status = status
		vm.Result = result
	})
}

// MarkDeleted finishes a deletion.
func (s *Server) MarkDeleted(id int) {
	deleted := true
	s.update(id, func(vm *api.VM) {
		vm.Status = api.StatusSuccess
		vm.Deleted = &deleted
	})
}

func (s *Server) update(id int, fn func(*api.VM)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.vms {
		if s.vms[i].ID == id {
			fn(&s.vms[i])
		}
	}
}

// Fail makes the next call to method+path return f instead of being served.
// Several failures for one route are returned in order.
func (s *Server) Fail(method, path string, f Failure) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := method + " " + path
	s.failures[key] = append(s.failures[key], f)
}

// Requests returns every recorded call.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

// Count returns how many calls hit method+path.
func (s *Server) Count(method, path string) int {
	n := 0
	for _, r := range s.Requests() {
		if r.Method == method && r.Path == path {
			n++
		}
	}
	return n
}

func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := readBody(r)
		s.mu.Lock()
		s.requests = append(s.requests, Request{Method: r.Method, Path: r.URL.Path, Body: body})
		s.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) inject(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Method + " " + r.URL.Path
		s.mu.Lock()
		queue := s.failures[key]
		var f *Failure
		if len(queue) > 0 {
			f = &queue[0]
			s.failures[key] = queue[1:]
		}
		s.mu.Unlock()

		if f != nil {
			w.WriteHeader(f.Status)
			fmt.Fprint(w, f.Body)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requireSession rejects calls without a live session cookie.
func (s *Server) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.sessionUser(r) == "" {
			writeJSON(w, http.StatusUnauthorized, api.ErrorResponse{Error: "Unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) sessionUser(r *http.Request) string {
	c, err := r.Cookie(SessionCookie)
	if err != nil {
		return ""
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions[c.Value]
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req api.LoginRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, api.ErrorResponse{Error: "Invalid request body"})
		return
	}

	s.mu.Lock()
	pass, ok := s.users[req.Username]
	if !ok || pass != req.Password {
		s.mu.Unlock()
		writeJSON(w, http.StatusUnauthorized, api.ErrorResponse{Error: "Invalid credentials"})
		return
	}
	token := uuid.NewString()
	s.sessions[token] = req.Username
	s.mu.Unlock()

	http.SetCookie(w, &http.Cookie{Name: SessionCookie, Value: token, Path: "/", HttpOnly: true})
	writeJSON(w, http.StatusOK, api.LoginResponse{
		Message: "Login successful",
		User:    &api.User{Username: req.Username},
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(SessionCookie); err == nil {
		s.mu.Lock()
		delete(s.sessions, c.Value)
		s.mu.Unlock()
	}
	http.SetCookie(w, &http.Cookie{Name: SessionCookie, Value: "", Path: "/", MaxAge: -1})
	writeJSON(w, http.StatusOK, api.MessageResponse{Message: "Logged out"})
}

func (s *Server) handleCheckAuth(w http.ResponseWriter, r *http.Request) {
	user := s.sessionUser(r)
	if user == "" {
		writeJSON(w, http.StatusOK, api.AuthStatus{Authenticated: false})
		return
	}
	writeJSON(w, http.StatusOK, api.AuthStatus{Authenticated: true, User: &api.User{Username: user}})
}

func (s *Server) handleListVMs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.VMs())
}

func (s *Server) handleCreateVM(w http.ResponseWriter, r *http.Request) {
	var form api.VMForm
	if err := decodeBody(r, &form); err != nil || form.VMName == "" {
		writeJSON(w, http.StatusBadRequest, api.ErrorResponse{Error: "vmName is required"})
		return
	}
	s.addVM(form.VMName, form.Template)
	writeJSON(w, http.StatusCreated, api.MessageResponse{Message: "VM creation started"})
}

func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	var req api.BatchRequest
	if err := decodeBody(r, &req); err != nil || len(req.VMNames) == 0 {
		writeJSON(w, http.StatusBadRequest, api.ErrorResponse{Error: "vmNames is required"})
		return
	}
	ids := make([]int, 0, len(req.VMNames))
	for _, name := range req.VMNames {
		ids = append(ids, s.addVM(name, req.Template))
	}
	writeJSON(w, http.StatusCreated, api.BatchResponse{
		Message: fmt.Sprintf("Batch creation started for %d VMs", len(ids)),
		VMIDs:   ids,
	})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.Atoi(mux.Vars(r)["id"])

	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.vms {
		if s.vms[i].ID == id {
			s.vms[i].Status = api.StatusPending
			writeJSON(w, http.StatusOK, api.MessageResponse{Message: "VM deletion started"})
			return
		}
	}
	writeJSON(w, http.StatusNotFound, api.ErrorResponse{Error: "VM not found"})
}

func (s *Server) addVM(name string, tmpl api.Template) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	// Newest first, like the backend's ORDER BY created_at DESC.
	vm := api.VM{
		ID:        id,
		VMName:    name,
		ESXiHost:  tmpl.ESXiHost,
		Datastore: tmpl.Datastore,
		Network:   tmpl.Network,
		CPUCount:  tmpl.CPUCount,
		MemoryGB:  tmpl.MemoryGB,
		DiskGB:    tmpl.DiskGB,
		ISOPath:   tmpl.ISOPath,
		GuestOS:   tmpl.GuestOS,
		VCenter:   tmpl.VCenter,
		Status:    api.StatusPending,
		CreatedAt: api.Timestamp{Time: s.now().UTC()},
	}
	s.vms = append([]api.VM{vm}, s.vms...)
	return id
}

func decodeBody(r *http.Request, v interface{}) error {
	return json.Unmarshal(readBody(r), v)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func readBody(r *http.Request) []byte {
	if r.Body == nil {
		return nil
	}
	data, _ := io.ReadAll(r.Body)
	r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(data))
	return data
}
