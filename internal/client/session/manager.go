package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/healthkeeper/internal/client/client"
	"github.com/dmitrijs2005/healthkeeper/internal/client/sessionstore"
	"github.com/dmitrijs2005/healthkeeper/internal/common"
	"github.com/dmitrijs2005/healthkeeper/internal/logging"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

// ErrStale is returned when an operation resolved after a newer one had
// already changed the session; its result was discarded.
var ErrStale = errors.New("session: superseded by a newer operation")

// Listener observes session changes. Each listener receives states in the
// order they were applied, one call at a time. A call normally runs on the
// goroutine that changed the state; a change made while the listener is
// already running is delivered by that running call once it returns.
type Listener func(State)

type subscriber struct {
	id uuid.UUID
	fn Listener

	// guarded by Manager.mu
	queue    []State
	draining bool
	removed  bool
}

// storedUser is the serialized user object in the persisted store.
type storedUser struct {
	User
	SessionCreatedAt time.Time `json:"session_created_at"`
}

// Option configures a Manager.
type Option func(*Manager)

func WithLogger(l logging.Logger) Option {
	return func(m *Manager) { m.log = l }
}

// WithClock sets the clock used to stamp new sessions.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// Manager is the single owner of the current session.
//
// Every mutating operation takes a generation number when it starts. A
// result is applied only if no operation with a newer generation has been
// applied in the meantime.
type Manager struct {
	auth  client.Auth
	store sessionstore.Store
	log   logging.Logger
	now   func() time.Time

	mu      sync.Mutex
	current *Session
	issued  uint64
	applied uint64
	subs    []*subscriber
}

// NewManager returns an anonymous Manager. Call Restore to load the
// persisted session.
func NewManager(auth client.Auth, store sessionstore.Store, opts ...Option) *Manager {
	m := &Manager{
		auth:  auth,
		store: store,
		log:   logging.Discard(),
		now:   time.Now,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

func (m *Manager) begin() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.issued++
	return m.issued
}

// apply installs s (nil for anonymous) as the current session if gen is not
// older than the last applied generation, persists it when save is set and
// notifies subscribers. force skips the staleness check.
func (m *Manager) apply(ctx context.Context, gen uint64, s *Session, save, force bool) error {
	m.mu.Lock()
	if !force && gen < m.applied {
		m.mu.Unlock()
		return ErrStale
	}
	if gen > m.applied {
		m.applied = gen
	}
	m.current = cloneSession(s)
	if save {
		m.persist(ctx, s)
	}
	state := State{Session: cloneSession(s)}
	for _, sub := range m.subs {
		sub.queue = append(sub.queue, state)
	}
	subs := append([]*subscriber(nil), m.subs...)
	m.mu.Unlock()

	for _, sub := range subs {
		m.drain(sub)
	}
	return nil
}

// drain delivers the queued states of sub unless another call is already
// doing so. The lock is released around every listener call.
func (m *Manager) drain(sub *subscriber) {
	m.mu.Lock()
	if sub.draining {
		m.mu.Unlock()
		return
	}
	sub.draining = true
	for len(sub.queue) > 0 && !sub.removed {
		state := sub.queue[0]
		sub.queue = sub.queue[1:]
		m.mu.Unlock()
		sub.fn(state)
		m.mu.Lock()
	}
	sub.draining = false
	if sub.removed {
		sub.queue = nil
	}
	m.mu.Unlock()
}

func (m *Manager) persist(ctx context.Context, s *Session) {
	if s == nil {
		if err := m.store.Clear(ctx); err != nil {
			m.log.Error(ctx, "clear persisted session", "error", err)
		}
		return
	}
	user, err := json.Marshal(storedUser{User: s.User, SessionCreatedAt: s.CreatedAt})
	if err != nil {
		m.log.Error(ctx, "encode session user", "error", err)
		return
	}
	err = m.store.Save(ctx, sessionstore.Snapshot{
		User:         user,
		AccessToken:  s.AccessToken,
		RefreshToken: s.RefreshToken,
	})
	if err != nil {
		m.log.Warn(ctx, "persist session", "error", err)
	}
}

// Restore loads the persisted session without contacting the backend. An
// unreadable or corrupt store is cleared and the manager starts anonymous.
func (m *Manager) Restore(ctx context.Context) State {
	gen := m.begin()
	s, err := m.load(ctx)
	if err != nil {
		m.log.Warn(ctx, "discarding persisted session", "error", err)
		s = nil
	}
	if s == nil {
		_ = m.apply(ctx, gen, nil, true, false)
		return m.Current()
	}
	// already persisted; install without rewriting the store
	if err := m.apply(ctx, gen, s, false, false); err == nil {
		m.log.Info(ctx, "session restored", "user_id", s.User.ID, "role", s.User.Role)
	}
	return m.Current()
}

func (m *Manager) load(ctx context.Context) (*Session, error) {
	snap, ok, err := m.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	var su storedUser
	if err := json.Unmarshal(snap.User, &su); err != nil {
		return nil, fmt.Errorf("%w: %v", sessionstore.ErrCorrupt, err)
	}
	if su.ID == "" || snap.AccessToken == "" {
		return nil, sessionstore.ErrCorrupt
	}
	su.User.Role = ParseRole(string(su.User.Role))
	return &Session{
		User:         su.User,
		AccessToken:  snap.AccessToken,
		RefreshToken: snap.RefreshToken,
		CreatedAt:    su.SessionCreatedAt,
	}, nil
}

// SignIn exchanges email and password for a session. Any failed exchange
// leaves the current session untouched and returns an error matching
// common.ErrInvalidCredentials, wrapping the transport cause.
func (m *Manager) SignIn(ctx context.Context, email, password string) (Session, error) {
	gen := m.begin()
	return m.signIn(ctx, gen, email, password)
}

func (m *Manager) signIn(ctx context.Context, gen uint64, email, password string) (Session, error) {
	resp, err := m.auth.SignInWithPassword(ctx, strings.TrimSpace(email), password)
	if err != nil {
		// the cause stays matchable, so an outage is still ErrUnavailable
		return Session{}, fmt.Errorf("%w: %w", common.ErrInvalidCredentials, err)
	}
	if resp == nil || resp.AccessToken == "" {
		return Session{}, common.ErrInvalidCredentials
	}
	return m.establish(ctx, gen, resp.User, resp.AccessToken, resp.RefreshToken, "signed in")
}

// SignUp registers an account and signs it in. A taken email returns
// common.ErrAccountExists.
func (m *Manager) SignUp(ctx context.Context, email, password string, p Profile) (Session, error) {
	gen := m.begin()
	email = strings.TrimSpace(email)
	resp, err := m.auth.SignUp(ctx, email, password, p.data())
	if err != nil {
		if isAccountExists(err) {
			return Session{}, common.ErrAccountExists
		}
		return Session{}, fmt.Errorf("sign up: %w", err)
	}
	if resp != nil && resp.AccessToken != "" {
		return m.establish(ctx, gen, resp.User, resp.AccessToken, resp.RefreshToken, "signed up")
	}
	return m.signIn(ctx, gen, email, password)
}

// Adopt builds a session from a token pair obtained outside the password
// flow, such as an emailed access link. A token the backend rejects returns
// common.ErrUnauthorized.
func (m *Manager) Adopt(ctx context.Context, accessToken, refreshToken string) (Session, error) {
	gen := m.begin()
	if accessToken == "" {
		return Session{}, common.ErrUnauthorized
	}
	u, err := m.auth.GetUser(ctx, accessToken)
	if err != nil {
		if errors.Is(err, common.ErrUnauthorized) {
			return Session{}, common.ErrUnauthorized
		}
		return Session{}, fmt.Errorf("adopt session: %w", err)
	}
	return m.establish(ctx, gen, u, accessToken, refreshToken, "session adopted")
}

func (m *Manager) establish(ctx context.Context, gen uint64, u *client.User, access, refresh, event string) (Session, error) {
	if u == nil {
		fetched, err := m.auth.GetUser(ctx, access)
		if err != nil {
			return Session{}, fmt.Errorf("fetch user: %w", err)
		}
		u = fetched
	}
	s := Session{
		User:         userFrom(u, access),
		AccessToken:  access,
		RefreshToken: refresh,
		CreatedAt:    m.now().UTC(),
	}
	if err := m.apply(ctx, gen, &s, true, false); err != nil {
		m.log.Debug(ctx, "discarding stale session result", "event", event, "generation", gen)
		m.revokeDiscarded(ctx, access)
		return Session{}, err
	}
	m.log.Info(ctx, event, "user_id", s.User.ID, "role", s.User.Role)
	return s, nil
}

// revokeDiscarded logs out a token whose session lost to a newer operation,
// unless it is the token now in use.
func (m *Manager) revokeDiscarded(ctx context.Context, access string) {
	if access == m.AccessToken() {
		return
	}
	if err := m.auth.Logout(ctx, access); err != nil {
		m.log.Warn(ctx, "revoke discarded session", "error", err)
	}
}

// UpdateUser changes the signed-in account and refreshes the session's user
// from the answer.
func (m *Manager) UpdateUser(ctx context.Context, upd client.UserUpdate) (User, error) {
	gen := m.begin()
	cur := m.currentSession()
	if cur == nil {
		return User{}, common.ErrUnauthorized
	}
	u, err := m.auth.UpdateUser(ctx, cur.AccessToken, upd)
	if err != nil {
		return User{}, fmt.Errorf("update user: %w", err)
	}
	cur.User = userFrom(u, cur.AccessToken)
	if err := m.apply(ctx, gen, cur, true, false); err != nil {
		return User{}, err
	}
	return cur.User, nil
}

// SignOut clears the local session first, then revokes the token remotely.
// A failed revocation is logged; SignOut always ends anonymous.
func (m *Manager) SignOut(ctx context.Context) {
	gen := m.begin()
	prev := m.currentSession()
	_ = m.apply(ctx, gen, nil, true, true)
	if prev == nil {
		return
	}
	if err := m.auth.Logout(ctx, prev.AccessToken); err != nil {
		m.log.Warn(ctx, "remote logout failed", "user_id", prev.User.ID, "error", err)
		return
	}
	m.log.Info(ctx, "signed out", "user_id", prev.User.ID)
}

// Subscribe registers fn, calls it once with the current state and returns
// a function that removes it. Calling the returned function again is a
// no-op.
func (m *Manager) Subscribe(fn Listener) (unsubscribe func()) {
	sub := &subscriber{id: uuid.New(), fn: fn}
	m.mu.Lock()
	// queued under the lock, so no later change can overtake it
	sub.queue = []State{{Session: cloneSession(m.current)}}
	m.subs = append(m.subs, sub)
	m.mu.Unlock()

	m.drain(sub)

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		for i, s := range m.subs {
			if s.id == sub.id {
				s.removed = true
				m.subs = append(m.subs[:i:i], m.subs[i+1:]...)
				return
			}
		}
	}
}

// Current returns a copy of the current state.
func (m *Manager) Current() State {
	return State{Session: m.currentSession()}
}

// CurrentUser returns the signed-in user, or nil when anonymous.
func (m *Manager) CurrentUser() *User {
	return m.Current().User()
}

// AccessToken returns the current access token, or "" when anonymous. It
// makes the Manager a client.TokenSource.
func (m *Manager) AccessToken() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return ""
	}
	return m.current.AccessToken
}

var _ client.TokenSource = (*Manager)(nil)

func (m *Manager) currentSession() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneSession(m.current)
}

func cloneSession(s *Session) *Session {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}

func isAccountExists(err error) bool {
	var ae *client.APIError
	if !errors.As(err, &ae) {
		return false
	}
	switch ae.Code {
	case "user_already_exists", "email_exists":
		return true
	}
	if ae.Status == http.StatusConflict {
		return true
	}
	msg := strings.ToLower(ae.Message)
	return (ae.Status == http.StatusUnprocessableEntity || ae.Status == http.StatusBadRequest) &&
		(strings.Contains(msg, "already registered") || strings.Contains(msg, "already exists"))
}
