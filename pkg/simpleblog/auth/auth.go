// Package auth issues, validates and expires session tokens on top of a
// storage provider's credential store, and answers permission checks for
// the current session.
package auth

import (
	"context"
	"time"

	"github.com/tendant/simple-blog/pkg/simpleblog"
	"github.com/tendant/simple-blog/pkg/simpleblog/id"
)

// SessionTokenKey is the session-store key the current token lives under.
const SessionTokenKey = "simpleblog-token"

// TokenTTL is the lifetime of an issued session token.
const TokenTTL = 30 * time.Minute

// SessionStore is the externally supplied per-caller key/value store the
// manager keeps the session token in. Unavailability is a soft failure:
// manager operations report false or no-user, never an error.
type SessionStore interface {
	Get(key string) (string, bool)
	Set(key, value string)
	Remove(key string)
	Available() bool
}

// Manager drives the session lifecycle for one storage provider and one
// session store. It references credential records only through the
// provider; it never owns them.
type Manager struct {
	provider simpleblog.StorageProvider
	sessions SessionStore
	now      func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock overrides the time source. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// NewManager creates a session manager bound to the given provider and
// session store.
func NewManager(provider simpleblog.StorageProvider, sessions SessionStore, opts ...Option) *Manager {
	m := &Manager{
		provider: provider,
		sessions: sessions,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// CurrentUser resolves the session's stored token to a credential record.
// An absent token, an unknown token or a token past its expiry all resolve
// to no user.
func (m *Manager) CurrentUser(ctx context.Context) (*simpleblog.Login, bool) {
	if m.sessions == nil || !m.sessions.Available() {
		return nil, false
	}
	token, ok := m.sessions.Get(SessionTokenKey)
	if !ok || token == "" {
		return nil, false
	}
	user, ok := m.provider.UserByToken(ctx, token)
	if !ok {
		return nil, false
	}
	if m.now().After(user.TokenExpiry) {
		return nil, false
	}
	return user, true
}

// ValidateLogin checks a username/password pair against the provider and,
// when andLogIn is set, establishes a session for the matched record.
func (m *Manager) ValidateLogin(ctx context.Context, username, password string, andLogIn bool) (*simpleblog.Login, bool) {
	user, ok := m.provider.AuthenticateUser(ctx, username, password)
	if !ok {
		return nil, false
	}
	if andLogIn && !m.LoginUser(ctx, user) {
		return nil, false
	}
	return user, true
}

// LoginUser issues a fresh token for the record, stamps its expiry,
// replaces any prior record under the same username (a re-login invalidates
// earlier sessions) and writes the token into the session store. Any
// failure along the way reports false; nothing is raised.
func (m *Manager) LoginUser(ctx context.Context, user *simpleblog.Login) bool {
	if user == nil || m.sessions == nil || !m.sessions.Available() {
		return false
	}
	user.Token = id.New()
	user.TokenExpiry = m.now().Add(TokenTTL)
	if _, err := m.provider.RemoveUser(ctx, user.Username); err != nil {
		return false
	}
	if err := m.provider.PutUser(ctx, *user); err != nil {
		return false
	}
	m.sessions.Set(SessionTokenKey, user.Token)
	return true
}

// LogOutUser revokes the current session. It only proceeds when the given
// record is the session's own user: a caller cannot log out an arbitrary
// other session through this entry point. The token is cleared from both
// the credential record and the session store.
func (m *Manager) LogOutUser(ctx context.Context, user *simpleblog.Login) bool {
	if user == nil {
		return false
	}
	current, ok := m.CurrentUser(ctx)
	if !ok {
		return false
	}
	if simpleblog.NormalizeUsername(current.Username) != simpleblog.NormalizeUsername(user.Username) {
		return false
	}

	user.Token = ""
	user.TokenExpiry = m.now().Add(-time.Minute)
	if err := m.provider.PutUser(ctx, *user); err != nil {
		return false
	}
	m.sessions.Remove(SessionTokenKey)
	return true
}

// HandleTokens invalidates every credential record whose token expiry has
// passed. Intended to run once per request scope.
func (m *Manager) HandleTokens(ctx context.Context) error {
	users, err := m.provider.Users(ctx)
	if err != nil {
		return err
	}
	now := m.now()
	for _, user := range users {
		if user.Token == "" || now.Before(user.TokenExpiry) {
			continue
		}
		user.Token = ""
		user.TokenExpiry = time.Time{}
		if err := m.provider.PutUser(ctx, user); err != nil {
			return err
		}
	}
	return nil
}

// HasPermission reports whether the current session's user holds the
// required permission. No session, an expired session or a missing
// permission all deny.
func (m *Manager) HasPermission(ctx context.Context, required simpleblog.Permission) bool {
	user, ok := m.CurrentUser(ctx)
	if !ok {
		return false
	}
	return user.HasPermission(required)
}
