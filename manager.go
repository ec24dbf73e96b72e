package session

import (
	"context"
	"sync"

	goerrors "github.com/goliatone/go-errors"
)

// Snapshot is the derived view of the session the host application renders
// from. It is never stored; state, user, and error always travel together so
// impossible combinations cannot be observed.
type Snapshot struct {
	State State
	User  *User
	Err   error
}

// IsAuthenticated is true only when a token pair is stored and the cached
// user passed email verification.
func (s Snapshot) IsAuthenticated() bool {
	return s.State == StateAuthenticated
}

func (s Snapshot) IsAnonymous() bool {
	return s.State == StateAnonymous
}

// Manager owns the process-wide session state. UI actions call into it, it
// calls the identity service through IdentityAPI, and it is the sole
// subscriber of the transport's session events.
type Manager struct {
	mu        sync.Mutex
	api       IdentityAPI
	store     Store
	logger    Logger
	machine   stateMachine
	user      *User
	lastErr   error
	started   bool
	listeners []func(Snapshot)
}

var _ EventSink = (*Manager)(nil)

type ManagerOption func(*Manager)

// WithManagerLogger overrides the logger used for lifecycle noise.
func WithManagerLogger(logger Logger) ManagerOption {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

func NewManager(api IdentityAPI, store Store, opts ...ManagerOption) *Manager {
	m := &Manager{
		api:     api,
		store:   store,
		logger:  defLogger{},
		machine: newStateMachine(),
	}

	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}

	return m
}

// OnChange subscribes fn to state changes. Listeners run synchronously after
// each transition, outside the manager lock.
func (m *Manager) OnChange(fn func(Snapshot)) {
	if fn == nil {
		return
	}
	m.mu.Lock()
	m.listeners = append(m.listeners, fn)
	m.mu.Unlock()
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.machine.current()
}

// Snapshot returns the current derived view.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

// Start exits the initializing state exactly once. A cached verified user
// enters authenticated optimistically, with the authoritative profile
// re-fetched in the background; anything else lands in anonymous.
func (m *Manager) Start(ctx context.Context) Snapshot {
	m.mu.Lock()
	if m.started {
		snap := m.snapshotLocked()
		m.mu.Unlock()
		return snap
	}
	m.started = true
	m.mu.Unlock()

	user := m.store.User()
	_, hasToken := m.store.AccessToken()

	if user != nil && user.EmailVerified && hasToken {
		m.applyState(StateAuthenticated, user, nil)
		go func() {
			if err := m.RefreshUser(context.WithoutCancel(ctx)); err != nil {
				m.logger.Warn("background profile refresh failed: %v", err)
			}
		}()
		return m.Snapshot()
	}

	if user != nil || hasToken {
		// Stale unverified or partial session. Back to anonymous, never to
		// unverified: a returning visitor re-authenticates, they do not
		// resume a stale unverified session.
		if err := m.store.Clear(); err != nil {
			m.logger.Error("unable to reset session storage: %v", err)
			m.applyState(StateError, nil, err)
			return m.Snapshot()
		}
	}

	m.applyState(StateAnonymous, nil, nil)
	return m.Snapshot()
}

// Register creates an account. When the service requires verification no
// tokens exist yet, the state stays anonymous, and the structured result
// lets the UI route into the "check your email" flow.
func (m *Manager) Register(ctx context.Context, req RegisterRequest) (*AuthResult, error) {
	res, err := m.api.Register(ctx, req)
	if err != nil {
		m.recordError(err)
		return nil, err
	}

	if res.RequiresVerification {
		return m.verificationPending(res), nil
	}

	// Legacy path: registration issued a session directly.
	return m.establish(res.User, res.Tokens(), req.Remember)
}

// Login authenticates. The remember flag is recorded here and controls the
// storage tier for the whole session.
func (m *Manager) Login(ctx context.Context, req LoginRequest) (*AuthResult, error) {
	res, err := m.api.Login(ctx, req)
	if err != nil {
		m.recordError(err)
		return nil, err
	}

	if res.RequiresVerification {
		return m.verificationPending(res), nil
	}

	return m.establish(res.User, res.Tokens(), req.Remember)
}

// VerifyEmail redeems an emailed verification token and promotes the
// resulting session.
func (m *Manager) VerifyEmail(ctx context.Context, token string) (*AuthResult, error) {
	res, err := m.api.VerifyEmail(ctx, token)
	if err != nil {
		m.recordError(err)
		return nil, err
	}

	var pair *TokenPair
	if tokens := res.Tokens(); tokens.Valid() {
		pair = &tokens
	}
	return m.HandleEmailVerified(ctx, res.User, pair)
}

// HandleEmailVerified transitions to authenticated, storing any tokens
// supplied. This is how a user who verified from an emailed link on a device
// that never logged in gains a session.
func (m *Manager) HandleEmailVerified(_ context.Context, user *User, pair *TokenPair) (*AuthResult, error) {
	if pair != nil && pair.Valid() {
		return m.establish(user, *pair, m.store.Remember())
	}

	if _, ok := m.store.AccessToken(); !ok {
		// Verified, but no credentials on this device: the visitor stays
		// anonymous and logs in normally.
		return &AuthResult{State: m.State(), User: user}, nil
	}

	if user != nil {
		if err := m.store.SaveUser(user); err != nil {
			m.logger.Warn("unable to cache verified user: %v", err)
		}
	}
	m.applyState(StateAuthenticated, user, nil)
	return &AuthResult{State: StateAuthenticated, User: user}, nil
}

// Logout invalidates the remote session best-effort, then unconditionally
// tears down local state. It never fails from the caller's point of view.
func (m *Manager) Logout(ctx context.Context) {
	if err := m.api.Logout(ctx); err != nil {
		m.logger.Warn("remote logout failed: %v", err)
	}
	if err := m.store.Clear(); err != nil {
		m.logger.Error("token store clear on logout failed: %v", err)
	}
	m.forceState(StateAnonymous, nil, nil)
}

// RefreshUser re-fetches the authoritative profile. It is a no-op unless
// authenticated; a revoked verification forces a full logout; a network
// failure during this background refresh never disturbs the current state.
func (m *Manager) RefreshUser(ctx context.Context) error {
	if m.State() != StateAuthenticated {
		return nil
	}

	user, err := m.api.Me(ctx)
	if err != nil {
		if RequiresVerification(err) || IsSessionExpired(err) {
			// The transport already cleared the store and broadcast the
			// event; the event handler does the demotion.
			return nil
		}
		m.logger.Warn("profile refresh failed: %v", err)
		return nil
	}

	if !user.EmailVerified {
		m.Logout(ctx)
		return nil
	}

	if err := m.store.SaveUser(user); err != nil {
		m.logger.Warn("unable to cache refreshed user: %v", err)
	}
	m.applyState(StateAuthenticated, user, nil)
	return nil
}

// UpdateProfile edits the profile and refreshes the cached record.
func (m *Manager) UpdateProfile(ctx context.Context, req UpdateProfileRequest) (*User, error) {
	user, err := m.api.UpdateProfile(ctx, req)
	if err != nil {
		m.recordError(err)
		return nil, err
	}

	if _, ok := m.store.AccessToken(); ok {
		if err := m.store.SaveUser(user); err != nil {
			m.logger.Warn("unable to cache updated user: %v", err)
		}
		m.applyState(m.State(), user, nil)
	}
	return user, nil
}

// ChangeEmail points the account at a new address. The new address starts
// unverified, so an authenticated session drops behind the gate.
func (m *Manager) ChangeEmail(ctx context.Context, newEmail string) (*User, error) {
	user, err := m.api.ChangeEmail(ctx, newEmail)
	if err != nil {
		m.recordError(err)
		return nil, err
	}

	if err := m.store.SaveUser(user); err != nil {
		m.logger.Warn("unable to cache user after email change: %v", err)
	}

	target := m.State()
	if target == StateAuthenticated {
		target = StateUnverified
	}
	m.applyState(target, user, nil)
	return user, nil
}

// DeleteAccount removes the account remotely, then tears down local state.
func (m *Manager) DeleteAccount(ctx context.Context, confirmationText string) error {
	if err := m.api.DeleteAccount(ctx, confirmationText); err != nil {
		m.recordError(err)
		return err
	}
	if err := m.store.Clear(); err != nil {
		m.logger.Error("token store clear after account deletion failed: %v", err)
	}
	m.forceState(StateAnonymous, nil, nil)
	return nil
}

// ResendVerification asks for another verification email. Rate-limit
// rejections surface verbatim so the UI can show the remaining window.
func (m *Manager) ResendVerification(ctx context.Context, email string) error {
	return m.api.ResendVerification(ctx, email)
}

func (m *Manager) ForgotPassword(ctx context.Context, email string) error {
	return m.api.ForgotPassword(ctx, email)
}

func (m *Manager) ResetPassword(ctx context.Context, token string, req ResetPasswordRequest) error {
	return m.api.ResetPassword(ctx, token, req)
}

func (m *Manager) ChangePassword(ctx context.Context, req ChangePasswordRequest) error {
	return m.api.ChangePassword(ctx, req)
}

// Record implements EventSink. A token-expired broadcast models an
// asynchronous, externally-triggered cancellation: the session demotes to
// anonymous no matter which state it was in. The transport has already
// cleared the store in both cases.
func (m *Manager) Record(_ context.Context, event Event) error {
	switch event.Type {
	case EventTokenExpired:
		m.logger.Info("session expired, demoting to anonymous")
		m.forceState(StateAnonymous, nil, nil)
	case EventVerificationRequired:
		m.logger.Info("verification required, demoting to anonymous")
		m.forceState(StateAnonymous, nil, nil)
	}
	return nil
}

func (m *Manager) verificationPending(res *AuthResponse) *AuthResult {
	email := res.Email
	if email == "" && res.User != nil {
		email = res.User.Email
	}
	return &AuthResult{
		State:                m.State(),
		RequiresVerification: true,
		Email:                email,
	}
}

// establish persists a freshly issued session and enters authenticated, or
// unverified when the service handed out tokens for an unverified account.
func (m *Manager) establish(user *User, pair TokenPair, remember bool) (*AuthResult, error) {
	if user == nil || !pair.Valid() {
		err := goerrors.New("identity service returned an incomplete session", goerrors.CategoryInternal).
			WithTextCode(TextCodeServerError)
		m.recordError(err)
		return nil, err
	}

	if err := m.store.SaveTokens(pair, remember); err != nil {
		m.recordError(err)
		return nil, err
	}
	if err := m.store.SaveUser(user); err != nil {
		m.recordError(err)
		return nil, err
	}

	target := StateAuthenticated
	if !user.EmailVerified {
		target = StateUnverified
	}
	m.applyState(target, user, nil)
	return &AuthResult{State: target, User: user}, nil
}

func (m *Manager) applyState(target State, user *User, err error) {
	m.mu.Lock()
	if terr := m.machine.transition(target); terr != nil {
		m.mu.Unlock()
		m.logger.Error("state transition rejected: %v", terr)
		return
	}
	m.user = user
	m.lastErr = err
	snap := m.snapshotLocked()
	listeners := append([]func(Snapshot){}, m.listeners...)
	m.mu.Unlock()

	for _, fn := range listeners {
		fn(snap)
	}
}

func (m *Manager) forceState(target State, user *User, err error) {
	m.mu.Lock()
	m.machine.force(target)
	m.user = user
	m.lastErr = err
	snap := m.snapshotLocked()
	listeners := append([]func(Snapshot){}, m.listeners...)
	m.mu.Unlock()

	for _, fn := range listeners {
		fn(snap)
	}
}

func (m *Manager) recordError(err error) {
	m.mu.Lock()
	m.lastErr = err
	snap := m.snapshotLocked()
	listeners := append([]func(Snapshot){}, m.listeners...)
	m.mu.Unlock()

	for _, fn := range listeners {
		fn(snap)
	}
}

func (m *Manager) snapshotLocked() Snapshot {
	return Snapshot{
		State: m.machine.current(),
		User:  m.user,
		Err:   m.lastErr,
	}
}
