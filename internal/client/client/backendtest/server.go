// Package backendtest runs an in-process fake of the hosted backend: a REST
// gateway over in-memory tables, remote procedures, and an auth server that
// mints HS256 tokens. It speaks the same wire format the client package
// expects and is meant for tests only.
package backendtest

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
)

// DefaultAPIKey is the anonymous key the server accepts unless overridden.
const DefaultAPIKey = "test-anon-key"

// Row is one table row as decoded from JSON.
type Row map[string]any

func (r Row) clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// String returns the column as a string, or "" when absent or not a string.
func (r Row) String(col string) string {
	s, _ := r[col].(string)
	return s
}

// Float returns the column as a number, or 0.
func (r Row) Float(col string) float64 {
	f, _ := r[col].(float64)
	return f
}

// Procedure implements a remote procedure. params are the decoded JSON body.
// Returning an *Error sends that status and code to the caller.
type Procedure func(s *Server, params map[string]any) (any, error)

// Error is a backend error answer.
type Error struct {
	Status  int
	Code    string
	Message string
	Details string
}

func (e *Error) Error() string { return e.Code + ": " + e.Message }

// Request is a recorded inbound request.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Header http.Header
	Body   []byte
}

type table struct {
	unique []string
	rows   []Row
}

// Server is an in-process backend for tests: REST tables, remote
// procedures and an auth server minting signed tokens.
type Server struct {
	*httptest.Server
	APIKey string

	secret []byte
	now    func() time.Time

	mu          sync.Mutex
	tables      map[string]*table
	procs       map[string]Procedure
	users       map[string]*user
	revoked     map[string]bool
	requests    []Request
	audit       []AuditEntry
	logoutFails bool
	autoConfirm bool
	failures    map[string]int
}

// AuditEntry records a soft delete performed through SoftDeleteProcedure.
type AuditEntry struct {
	Table  string
	ID     string
	Reason string
}

// New starts a server and registers its shutdown with t.
func New(t testing.TB) *Server {
	t.Helper()
	s := &Server{
		APIKey:      DefaultAPIKey,
		secret:      []byte("backendtest-jwt-secret"),
		now:         time.Now,
		tables:      map[string]*table{},
		procs:       map[string]Procedure{},
		users:       map[string]*user{},
		revoked:     map[string]bool{},
		autoConfirm: true,
		failures:    map[string]int{},
	}
	s.Server = httptest.NewServer(s.routes())
	t.Cleanup(s.Close)
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(s.record, s.injectFailures)

	r.Route("/rest/v1", func(r chi.Router) {
		r.Use(s.requireKey)
		r.Post("/rpc/{name}", s.handleRPC)
		r.Get("/{table}", s.handleSelect)
		r.Head("/{table}", s.handleSelect)
		r.Post("/{table}", s.handleInsert)
		r.Patch("/{table}", s.handleUpdate)
	})
	r.Route("/auth/v1", func(r chi.Router) {
		r.Use(s.requireKey)
		r.Post("/token", s.handleToken)
		r.Post("/signup", s.handleSignUp)
		r.Post("/logout", s.handleLogout)
		r.Get("/user", s.handleGetUser)
		r.Put("/user", s.handleUpdateUser)
	})
	return r
}

func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body []byte
		if r.Body != nil {
			body, _ = io.ReadAll(r.Body)
			r.Body = io.NopCloser(bytes.NewReader(body))
		}
		s.mu.Lock()
		s.requests = append(s.requests, Request{
			Method: r.Method,
			Path:   r.URL.Path,
			Query:  r.URL.Query(),
			Header: r.Header.Clone(),
			Body:   body,
		})
		s.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) injectFailures(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		n := s.failures[r.URL.Path]
		if n > 0 {
			s.failures[r.URL.Path] = n - 1
		}
		s.mu.Unlock()
		if n > 0 {
			writeError(w, &Error{Status: http.StatusServiceUnavailable, Code: "503", Message: "injected failure"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requireKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("apikey") != s.APIKey {
			writeError(w, &Error{Status: http.StatusUnauthorized, Message: "Invalid API key"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Requests returns every request received so far.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

// RequestsTo returns the recorded requests with the given method and path.
func (s *Server) RequestsTo(method, path string) []Request {
	var out []Request
	for _, r := range s.Requests() {
		if r.Method == method && r.Path == path {
			out = append(out, r)
		}
	}
	return out
}

func (s *Server) ResetRequests() {
	s.mu.Lock()
	s.requests = nil
	s.mu.Unlock()
}

// FailNext makes the next n requests to path answer 503.
func (s *Server) FailNext(path string, n int) {
	s.mu.Lock()
	s.failures[path] = n
	s.mu.Unlock()
}

// SetClock replaces the server clock used for defaults and token expiry.
func (s *Server) SetClock(now func() time.Time) {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, e *Error) {
	body := map[string]any{"message": e.Message}
	if e.Code != "" {
		body["code"] = e.Code
	}
	if e.Details != "" {
		body["details"] = e.Details
	}
	writeJSON(w, e.Status, body)
}

func decodeBody(r *http.Request, v any) error {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		return err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	return json.Unmarshal(data, v)
}
