// Package clevertouch is a client for the CleverTouch cloud that monitors
// and controls networked electric radiators (LVI/Purmo "e3" deployments and
// rebrands on other hosts).
//
// Session is the low level: authenticated calls returning loosely-typed
// envelope data. Account and the types it hands out (User, Home, Device)
// are the typed object model on top. Snapshots are value-replaced on
// Refresh and mutation helpers never write local state: after a successful
// SetTemperature or SetHeatMode the caller refreshes the owning Home to
// observe the confirmed state.
package clevertouch

import "context"

// Account is the entry point of the typed object model. It owns one Session
// and caches the User and Home objects it hands out; the objects themselves
// are refreshed explicitly.
type Account struct {
	session *Session
	user    *User
	homes   map[string]*Home
}

// NewAccount creates an account against the configured cloud deployment.
func NewAccount(cfg Config) *Account {
	return &Account{
		session: NewSession(cfg),
		homes:   map[string]*Home{},
	}
}

// Session exposes the underlying session, e.g. for token persistence.
func (a *Account) Session() *Session { return a.session }

// Email returns the account email, or "" before authentication.
func (a *Account) Email() string { return a.session.Email() }

// Authenticate delegates to the session's password grant.
func (a *Account) Authenticate(ctx context.Context, email, password string) error {
	return a.session.Authenticate(ctx, email, password)
}

// Resume seeds the session with a stored refresh token; RefreshSession must
// be called before any data access.
func (a *Account) Resume(email, refreshToken string) {
	a.session.Resume(email, refreshToken)
}

// RefreshSession delegates to the session's explicit token refresh.
func (a *Account) RefreshSession(ctx context.Context) error {
	return a.session.RefreshSession(ctx)
}

// GetUser returns the account's user data, fetching it on first access.
// Subsequent calls return the cached object; call User.Refresh to re-fetch.
func (a *Account) GetUser(ctx context.Context) (*User, error) {
	if a.user != nil {
		return a.user, nil
	}
	if a.session.Email() == "" {
		return nil, &AuthError{Reason: "no authenticated user"}
	}
	user := newUser(a.session)
	if err := user.Refresh(ctx); err != nil {
		return nil, err
	}
	a.user = user
	return user, nil
}

// GetHome returns one home, fetching it on first access. Subsequent calls
// return the cached object; call Home.Refresh to re-fetch.
func (a *Account) GetHome(ctx context.Context, homeID string) (*Home, error) {
	if home, ok := a.homes[homeID]; ok {
		return home, nil
	}
	home := newHome(a.session, homeID)
	if err := home.Refresh(ctx); err != nil {
		return nil, err
	}
	a.homes[homeID] = home
	return home, nil
}

// GetHomes returns all homes belonging to the account.
func (a *Account) GetHomes(ctx context.Context) ([]*Home, error) {
	user, err := a.GetUser(ctx)
	if err != nil {
		return nil, err
	}
	homes := make([]*Home, 0, len(user.Homes))
	for homeID := range user.Homes {
		home, err := a.GetHome(ctx, homeID)
		if err != nil {
			return nil, err
		}
		homes = append(homes, home)
	}
	return homes, nil
}
