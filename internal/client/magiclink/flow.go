// Package magiclink drives the emailed access-link flow: the link's token
// is adopted as a session, first-access users must choose a password, and
// once it is set they are signed out and sent to the sign-in screen.
package magiclink

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/healthkeeper/internal/client/client"
	"github.com/dmitrijs2005/healthkeeper/internal/client/session"
	"github.com/dmitrijs2005/healthkeeper/internal/common"
	"github.com/dmitrijs2005/healthkeeper/internal/logging"
)

var (
	// ErrInvalidTransition is returned by a step the current state does not
	// allow.
	ErrInvalidTransition = errors.New("magiclink: invalid transition")
	// ErrBusy is returned while another step of the same flow is talking to
	// the backend.
	ErrBusy = errors.New("magiclink: another step is in progress")
)

// State is a position in the access-link flow. The zero value is
// StateAnonymous.
type State int

const (
	StateAnonymous State = iota
	StateLinkConsumed
	StateFirstAccess
	StateReturningSession
	StatePasswordSet
	StateLoggedOutPendingRedirect
	StateInvalidLink
)

func (s State) String() string {
	switch s {
	case StateAnonymous:
		return "anonymous"
	case StateLinkConsumed:
		return "link_consumed"
	case StateFirstAccess:
		return "first_access"
	case StateReturningSession:
		return "returning_session"
	case StatePasswordSet:
		return "password_set"
	case StateLoggedOutPendingRedirect:
		return "logged_out_pending_redirect"
	case StateInvalidLink:
		return "invalid_link"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal reports whether no further transition leaves s.
func (s State) Terminal() bool {
	switch s {
	case StateReturningSession, StateLoggedOutPendingRedirect, StateInvalidLink:
		return true
	}
	return false
}

// Sessions is the part of session.Manager the flow drives.
type Sessions interface {
	Adopt(ctx context.Context, accessToken, refreshToken string) (session.Session, error)
	UpdateUser(ctx context.Context, upd client.UserUpdate) (session.User, error)
	SignOut(ctx context.Context)
}

var _ Sessions = (*session.Manager)(nil)

// TransitionFunc observes every state change. It runs after the flow's lock
// is released, so it may call back into the Flow.
type TransitionFunc func(from, to State)

// Option configures a Flow.
type Option func(*Flow)

func WithLogger(l logging.Logger) Option {
	return func(f *Flow) { f.log = l }
}

// OnTransition adds fn to the observers of state changes.
func OnTransition(fn TransitionFunc) Option {
	return func(f *Flow) { f.hooks = append(f.hooks, fn) }
}

type transition struct{ from, to State }

// Flow is one pass through an access link. It is not reusable; start a new
// Flow for every link.
//
// The lock is never held while the session manager runs, so session
// listeners may read the Flow. A step in progress marks the flow busy and
// concurrent steps fail with ErrBusy.
type Flow struct {
	sessions Sessions
	log      logging.Logger
	hooks    []TransitionFunc

	mu      sync.Mutex
	state   State
	busy    bool
	pending []transition
}

// NewFlow returns a Flow in StateAnonymous driving sessions.
func NewFlow(sessions Sessions, opts ...Option) *Flow {
	f := &Flow{sessions: sessions, log: logging.Discard()}
	for _, o := range opts {
		o(f)
	}
	return f
}

func (f *Flow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// RedirectToSignIn reports whether the flow finished by signing the user out.
func (f *Flow) RedirectToSignIn() bool {
	return f.State() == StateLoggedOutPendingRedirect
}

// ConsumeURL parses the callback URL and consumes its token. The returned
// URL has the token parameters removed and should replace the visible one,
// whatever the outcome.
func (f *Flow) ConsumeURL(ctx context.Context, rawURL string) (State, string, error) {
	tok, scrubbed, err := ParseCallback(rawURL)
	if err != nil {
		if st, serr := f.start(StateAnonymous); serr != nil {
			return st, scrubbed, serr
		}
		f.finish(StateInvalidLink)
		f.log.Warn(ctx, "access link rejected", "error", err)
		return StateInvalidLink, scrubbed, err
	}
	st, err := f.Consume(ctx, tok)
	return st, scrubbed, err
}

// Consume adopts the link token as the current session. A token the backend
// rejects ends the flow in StateInvalidLink; a transport failure leaves it
// anonymous so the link can be retried.
func (f *Flow) Consume(ctx context.Context, tok Token) (State, error) {
	if st, err := f.start(StateAnonymous); err != nil {
		return st, err
	}
	if tok.AccessToken == "" {
		f.finish(StateInvalidLink)
		return StateInvalidLink, common.ErrInvalidOrExpiredLink
	}

	s, err := f.sessions.Adopt(ctx, tok.AccessToken, tok.RefreshToken)
	if err != nil {
		if errors.Is(err, common.ErrUnauthorized) {
			f.finish(StateInvalidLink)
			f.log.Warn(ctx, "access link token rejected")
			return StateInvalidLink, fmt.Errorf("%w: %v", common.ErrInvalidOrExpiredLink, err)
		}
		f.finish()
		return StateAnonymous, err
	}

	next := StateReturningSession
	if tok.FirstAccess || s.User.FirstAccess {
		next = StateFirstAccess
	}
	f.finish(StateLinkConsumed, next)
	f.log.Info(ctx, "access link consumed", "user_id", s.User.ID, "state", next.String())
	return next, nil
}

// SetPassword stores the first-access password, clears the first-access
// flag and signs the user out. A password failing the policy returns a
// *common.ValidationError before anything is sent.
func (f *Flow) SetPassword(ctx context.Context, password string) error {
	if _, err := f.start(StateFirstAccess); err != nil {
		return err
	}
	if err := ValidatePassword(password); err != nil {
		f.finish()
		return err
	}

	_, err := f.sessions.UpdateUser(ctx, client.UserUpdate{
		Password: password,
		Data:     map[string]any{"first_access": false},
	})
	if err != nil {
		f.finish()
		return fmt.Errorf("set password: %w", err)
	}
	f.advance(StatePasswordSet)

	// the new password must be used for the next sign-in
	f.sessions.SignOut(ctx)
	f.finish(StateLoggedOutPendingRedirect)
	f.log.Info(ctx, "first access completed")
	return nil
}

// start marks the flow busy if it is in want and idle.
func (f *Flow) start(want State) (State, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch {
	case f.busy:
		return f.state, ErrBusy
	case f.state != want:
		return f.state, ErrInvalidTransition
	}
	f.busy = true
	return f.state, nil
}

// advance moves through states while the step stays in progress.
func (f *Flow) advance(to ...State) {
	f.mu.Lock()
	for _, st := range to {
		f.moveLocked(st)
	}
	f.unlockAndNotify()
}

// finish moves through states and ends the step in progress.
func (f *Flow) finish(to ...State) {
	f.mu.Lock()
	f.busy = false
	for _, st := range to {
		f.moveLocked(st)
	}
	f.unlockAndNotify()
}

func (f *Flow) moveLocked(to State) {
	f.pending = append(f.pending, transition{from: f.state, to: to})
	f.state = to
}

func (f *Flow) unlockAndNotify() {
	pending := f.pending
	f.pending = nil
	f.mu.Unlock()
	for _, t := range pending {
		for _, h := range f.hooks {
			h(t.from, t.to)
		}
	}
}
