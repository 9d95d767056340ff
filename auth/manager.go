package auth

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/synofs/auth/sessions"
	apperrors "github.com/jrsteele09/synofs/internal/errors"
	"github.com/jrsteele09/synofs/metrics"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

const defaultLoginTimeout = 30 * time.Second

// Ownership of a login flight as seen by the caller that created it.
const (
	flightPending int32 = iota
	flightRunning
	flightAbandoned
)

// loginFlights coalesces concurrent logins for the same (endpoint, user) pair,
// including logins started from different Manager instances.
var loginFlights singleflight.Group

// LoginOptions are the per-attempt login settings.
type LoginOptions struct {
	// RequestDevicePairing asks the remote to issue a device pairing id so later
	// logins can skip the one-time code.
	RequestDevicePairing bool
	// OneTimeCode overrides the code carried by the credential, if any.
	OneTimeCode string
	// Timeout bounds the attempt. Zero means the manager default.
	Timeout time.Duration
}

// LogoutResult reports what happened remotely. The local session is always
// scrubbed when Logout returns a nil error; RemoteErr is a warning only.
type LogoutResult struct {
	RemoteErr error
}

// Manager owns the session state of one (endpoint, user) pair.
type Manager struct {
	endpoint  string
	user      string
	store     sessions.Repo
	transport Transport
	identity  ClientIdentity
	metrics   metrics.Recorder

	loginTimeout         time.Duration
	forgetDeviceOnLogout bool

	mu    sync.Mutex // guards state
	state State

	opMu sync.Mutex // serializes Logout and Invalidate
}

// ManagerOption defines a function type to modify the Manager instance.
type ManagerOption func(*Manager)

// WithLoginTimeout sets the timeout used when LoginOptions.Timeout is zero.
func WithLoginTimeout(d time.Duration) ManagerOption {
	return func(m *Manager) {
		if d > 0 {
			m.loginTimeout = d
		}
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(r metrics.Recorder) ManagerOption {
	return func(m *Manager) {
		if r != nil {
			m.metrics = r
		}
	}
}

// WithForgetDeviceOnLogout makes Logout delete the device pairing id together
// with the session, so the next login needs a one-time code again.
func WithForgetDeviceOnLogout() ManagerOption {
	return func(m *Manager) {
		m.forgetDeviceOnLogout = true
	}
}

// NewManager creates a manager for the given pair. The initial state comes from
// the store; a store failure aborts construction.
func NewManager(
	endpoint, user string,
	store sessions.Repo,
	transport Transport,
	identity ClientIdentity,
	options ...ManagerOption,
) (*Manager, error) {
	endpoint = strings.TrimRight(strings.TrimSpace(endpoint), "/")
	if endpoint == "" {
		return nil, errors.New("[NewManager] endpoint is required")
	}
	if user == "" {
		return nil, errors.New("[NewManager] user is required")
	}
	if store == nil {
		return nil, errors.Wrap(apperrors.ErrNotInitialized, "[NewManager] session store is required")
	}
	if transport == nil {
		return nil, errors.New("[NewManager] transport is required")
	}

	m := &Manager{
		endpoint:     endpoint,
		user:         user,
		store:        store,
		transport:    transport,
		identity:     identity,
		metrics:      metrics.NewNoopRecorder(),
		loginTimeout: defaultLoginTimeout,
		state:        StateUnauthenticated,
	}

	for _, opt := range options {
		opt(m)
	}

	loggedIn, err := store.IsLoggedIn(m.endpoint, m.user)
	if err != nil {
		return nil, errors.Wrap(err, "[NewManager] store.IsLoggedIn")
	}
	if loggedIn {
		m.state = StateAuthenticated
	}

	m.logger().Debug().Stringer("state", m.state).Msg("Authentication manager created")
	return m, nil
}

func (m *Manager) Endpoint() string { return m.endpoint }

func (m *Manager) User() string { return m.user }

// State returns the current state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// IsAuthenticated reports whether the manager currently holds a session.
func (m *Manager) IsAuthenticated() bool {
	return m.State() == StateAuthenticated
}

// Check re-reads the store without touching the remote and syncs the state.
// A login in progress is left alone.
func (m *Manager) Check() (bool, error) {
	loggedIn, err := m.store.IsLoggedIn(m.endpoint, m.user)
	if err != nil {
		return false, errors.Wrap(err, "[Manager.Check] store.IsLoggedIn")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	switch {
	case m.state == StateAuthenticating:
	case loggedIn:
		m.transitionLocked(StateAuthenticated)
	case m.state == StateAuthenticated:
		m.transitionLocked(StateUnauthenticated)
	}
	return loggedIn, nil
}

// SessionToken returns the stored session token for use by file operations.
func (m *Manager) SessionToken() (string, error) {
	if m.State() != StateAuthenticated {
		return "", errors.Wrap(ErrInvalidState, "[Manager.SessionToken] not authenticated")
	}
	rec, err := m.store.GetSession(m.endpoint, m.user)
	if err != nil {
		return "", errors.Wrap(err, "[Manager.SessionToken] store.GetSession")
	}
	if !rec.Active() {
		return "", errors.Wrap(ErrSessionInvalid, "[Manager.SessionToken] stored session is not active")
	}
	return rec.SessionToken, nil
}

// Login authenticates against the remote and persists the session. Concurrent
// calls for the same pair share a single remote attempt. Every caller is bounded
// by its own context and timeout; a caller that gives up leaves the shared
// attempt running for the others. Nothing is written unless the attempt
// succeeds before its deadline.
func (m *Manager) Login(ctx context.Context, cred Credential, opts LoginOptions) error {
	if opts.OneTimeCode != "" {
		cred = cred.WithOneTimeCode(opts.OneTimeCode)
	}

	if state := m.State(); state == StateAuthenticated {
		return errors.Wrapf(ErrInvalidState, "[Manager.Login] cannot log in from state %s", state)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = m.loginTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// An attempt abandoned before it started never reaches the remote.
	var owner atomic.Int32
	flight := loginFlights.DoChan(flightKey(m.endpoint, m.user), func() (interface{}, error) {
		if !owner.CompareAndSwap(flightPending, flightRunning) {
			return nil, errors.Wrap(contextErr(ctx), "[Manager.Login] attempt abandoned before it started")
		}
		return nil, m.login(ctx, cred, opts, timeout)
	})

	select {
	case res := <-flight:
		return m.finishLogin(res)
	case <-ctx.Done():
		if !owner.CompareAndSwap(flightPending, flightAbandoned) {
			// This caller's attempt is bounded by the same ctx and returns promptly.
			return m.finishLogin(<-flight)
		}
		m.abandonLogin()
		return errors.Wrap(contextErr(ctx), "[Manager.Login] waiting for in-flight login")
	}
}

func (m *Manager) finishLogin(res singleflight.Result) error {
	if res.Shared {
		m.syncAfterSharedLogin(res.Err)
	}
	return res.Err
}

// abandonLogin marks a caller that stopped waiting on another caller's attempt.
// A manager whose own attempt is still running keeps its state.
func (m *Manager) abandonLogin() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.canLogin() {
		m.transitionLocked(StateLoginFailed)
	}
	m.logger().Warn().Msg("Gave up waiting for an in-flight login")
}

func (m *Manager) login(ctx context.Context, cred Credential, opts LoginOptions, timeout time.Duration) (err error) {
	m.mu.Lock()
	if !m.state.canLogin() {
		state := m.state
		m.mu.Unlock()
		return errors.Wrapf(ErrInvalidState, "[Manager.Login] cannot log in from state %s", state)
	}
	m.transitionLocked(StateAuthenticating)
	m.mu.Unlock()

	logger := m.logger().With().Str("attempt_id", uuid.NewString()).Logger()

	adopted := false
	defer func() {
		if !adopted {
			m.metrics.RecordLoginAttempt(resultLabel(err))
		}
		m.mu.Lock()
		defer m.mu.Unlock()
		if err != nil {
			logger.Warn().Err(err).Msg("Login failed")
			m.transitionLocked(StateLoginFailed)
			return
		}
		logger.Info().Bool("adopted", adopted).Msg("Login succeeded")
		m.transitionLocked(StateAuthenticated)
	}()

	// Another manager for the pair may have logged in since this one last looked.
	loggedIn, err := m.store.IsLoggedIn(m.endpoint, m.user)
	if err != nil {
		return errors.Wrap(err, "[Manager.Login] store.IsLoggedIn")
	}
	if loggedIn {
		adopted = true
		logger.Info().Msg("Session already stored for this pair, skipping remote login")
		return nil
	}

	deviceID, _, err := m.store.GetDeviceID(m.endpoint, m.user)
	if err != nil {
		return errors.Wrap(err, "[Manager.Login] store.GetDeviceID")
	}

	req := BuildLoginRequest(cred, m.endpoint, m.identity, deviceID, opts.RequestDevicePairing)
	logger.Info().
		Object("credential", cred).
		Bool("request_pairing", opts.RequestDevicePairing).
		Bool("has_device_id", deviceID != "").
		Dur("timeout", timeout).
		Msg("Logging in")

	result, err := m.transport.Login(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return errors.Wrap(contextErr(ctx), "[Manager.Login] transport.Login")
		}
		return errors.Wrap(err, "[Manager.Login] transport.Login")
	}
	if result == nil || result.SessionToken == "" {
		return errors.Wrap(apperrors.ErrMalformedResponse, "[Manager.Login] no session token in response")
	}

	// A cancelled or expired attempt must leave the store untouched even if the
	// remote answered.
	if ctx.Err() != nil {
		return errors.Wrap(contextErr(ctx), "[Manager.Login] before persisting session")
	}

	newDeviceID := ""
	if result.DeviceID != "" && result.DeviceID != deviceID {
		newDeviceID = result.DeviceID
		logger.Info().Msg("Remote issued a new device pairing id")
	}
	if err := m.store.SaveSession(m.endpoint, m.user, newDeviceID, result.SessionToken); err != nil {
		return errors.Wrap(err, "[Manager.Login] store.SaveSession")
	}
	return nil
}

// syncAfterSharedLogin aligns this manager with a login another caller ran.
func (m *Manager) syncAfterSharedLogin(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == StateAuthenticating {
		return
	}
	if err == nil {
		m.transitionLocked(StateAuthenticated)
	} else if !apperrors.Is(err, ErrInvalidState) {
		m.transitionLocked(StateLoginFailed)
	}
}

// Logout ends the remote session and scrubs the local one. The local scrub
// happens even if the remote call fails; that failure is reported in
// LogoutResult.RemoteErr. A non-nil error means the local scrub itself failed.
func (m *Manager) Logout(ctx context.Context) (LogoutResult, error) {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	var result LogoutResult
	if state := m.State(); state != StateAuthenticated {
		return result, errors.Wrapf(ErrInvalidState, "[Manager.Logout] cannot log out from state %s", state)
	}

	logger := m.logger()

	rec, err := m.store.GetSession(m.endpoint, m.user)
	switch {
	case apperrors.Is(err, apperrors.ErrSessionNotFound):
		logger.Warn().Msg("Logout requested but no stored session was found")
	case err != nil:
		return result, errors.Wrap(err, "[Manager.Logout] store.GetSession")
	case rec.SessionToken != "":
		err := m.transport.Logout(ctx, BuildLogoutRequest(m.endpoint, rec.SessionToken))
		switch {
		case err == nil:
		case apperrors.Is(err, ErrSessionInvalid):
			// The remote had already ended the session.
			m.metrics.RecordSessionInvalidated()
			logger.Info().Err(err).Msg("Remote session was already invalid")
		default:
			result.RemoteErr = errors.Wrap(err, "[Manager.Logout] transport.Logout")
			logger.Warn().Err(err).Msg("Remote logout failed, clearing local session anyway")
		}
	}

	if m.forgetDeviceOnLogout {
		err = m.store.ClearSession(m.endpoint, m.user)
	} else {
		err = m.store.RevokeSession(m.endpoint, m.user)
	}
	if err != nil {
		return result, errors.Wrap(err, "[Manager.Logout] scrub local session")
	}

	m.metrics.RecordLogout(result.RemoteErr == nil)
	m.mu.Lock()
	m.transitionLocked(StateUnauthenticated)
	m.mu.Unlock()

	logger.Info().Bool("remote_confirmed", result.RemoteErr == nil).Bool("device_forgotten", m.forgetDeviceOnLogout).Msg("Logged out")
	return result, nil
}

// Invalidate drops the local session after the remote rejected its token. The
// device pairing id is kept so the next login can skip the one-time code.
func (m *Manager) Invalidate() error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	if err := m.store.RevokeSession(m.endpoint, m.user); err != nil {
		return errors.Wrap(err, "[Manager.Invalidate] store.RevokeSession")
	}
	m.metrics.RecordSessionInvalidated()

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == StateAuthenticated {
		m.transitionLocked(StateUnauthenticated)
	}
	m.logger().Warn().Msg("Session invalidated by remote")
	return nil
}

func (m *Manager) transitionLocked(to State) {
	if m.state == to {
		return
	}
	m.metrics.RecordStateTransition(m.state.String(), to.String())
	m.state = to
}

func (m *Manager) logger() *zerolog.Logger {
	l := log.With().Str("endpoint", m.endpoint).Str("user", m.user).Logger()
	return &l
}

func flightKey(endpoint, user string) string {
	return endpoint + "\x00" + user
}

// contextErr maps a finished context to the package error taxonomy. Deadline
// expiry is a network timeout; cancellation is passed through.
func contextErr(ctx context.Context) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return apperrors.Join(ErrTimeout, ctx.Err())
	}
	return ctx.Err()
}
