package auth_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jrsteele09/synofs/auth"
	fakesessionrepo "github.com/jrsteele09/synofs/auth/sessions/repofakes"
	"github.com/jrsteele09/synofs/auth/transportfake"
	apperrors "github.com/jrsteele09/synofs/internal/errors"
	"github.com/jrsteele09/synofs/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

const (
	testUser     = "bob@example.com"
	testPassword = "p@ss word!"
	testToken    = "sid-123"
	testDeviceID = "dev-abc"
)

// testFixture holds all test dependencies
type testFixture struct {
	store     *fakesessionrepo.FakeSessionRepo
	transport *transportfake.FakeTransport
	registry  *prometheus.Registry
	manager   *auth.Manager
}

func setupTestFixture(t *testing.T, options ...auth.ManagerOption) *testFixture {
	t.Helper()

	store := fakesessionrepo.NewFakeSessionRepo()
	transport := transportfake.NewFakeTransport(testToken, testDeviceID)
	return newFixture(t, store, transport, options...)
}

func newFixture(t *testing.T, store *fakesessionrepo.FakeSessionRepo, transport *transportfake.FakeTransport, options ...auth.ManagerOption) *testFixture {
	t.Helper()

	registry := prometheus.NewRegistry()
	options = append([]auth.ManagerOption{auth.WithMetrics(metrics.NewPrometheusRecorderWithRegistry(registry))}, options...)

	m, err := auth.NewManager(testEndpoint, testUser, store, transport, testIdentity, options...)
	require.NoError(t, err)

	return &testFixture{
		store:     store,
		transport: transport,
		registry:  registry,
		manager:   m,
	}
}

func (f *testFixture) loginAttempts(t *testing.T, result string) float64 {
	t.Helper()

	families, err := f.registry.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != "synofs_login_attempts_total" {
			continue
		}
		for _, metric := range mf.GetMetric() {
			for _, label := range metric.GetLabel() {
				if label.GetName() == "result" && label.GetValue() == result {
					return metric.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func (f *testFixture) invalidations(t *testing.T) float64 {
	t.Helper()

	families, err := f.registry.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() == "synofs_session_invalidations_total" && len(mf.GetMetric()) == 1 {
			return mf.GetMetric()[0].GetCounter().GetValue()
		}
	}
	return 0
}

func defaultCredential() auth.Credential {
	return auth.NewCredential(testUser, testPassword)
}

func TestNewManager_Validation(t *testing.T) {
	store := fakesessionrepo.NewFakeSessionRepo()
	transport := transportfake.NewFakeTransport(testToken, "")

	_, err := auth.NewManager("", testUser, store, transport, testIdentity)
	require.Error(t, err)

	_, err = auth.NewManager(testEndpoint, "", store, transport, testIdentity)
	require.Error(t, err)

	_, err = auth.NewManager(testEndpoint, testUser, nil, transport, testIdentity)
	require.ErrorIs(t, err, apperrors.ErrStorage)

	_, err = auth.NewManager(testEndpoint, testUser, store, nil, testIdentity)
	require.Error(t, err)
}

func TestNewManager_InitialState(t *testing.T) {
	t.Run("no stored session", func(t *testing.T) {
		f := setupTestFixture(t)
		require.Equal(t, auth.StateUnauthenticated, f.manager.State())
		require.False(t, f.manager.IsAuthenticated())
	})

	t.Run("stored session", func(t *testing.T) {
		store := fakesessionrepo.NewFakeSessionRepo()
		require.NoError(t, store.SaveSession(testEndpoint, testUser, "", testToken))

		f := newFixture(t, store, transportfake.NewFakeTransport(testToken, ""))
		require.Equal(t, auth.StateAuthenticated, f.manager.State())
	})

	t.Run("trailing slash on endpoint", func(t *testing.T) {
		store := fakesessionrepo.NewFakeSessionRepo()
		require.NoError(t, store.SaveSession(testEndpoint, testUser, "", testToken))

		m, err := auth.NewManager(testEndpoint+"/", testUser, store, transportfake.NewFakeTransport("", ""), testIdentity)
		require.NoError(t, err)
		require.Equal(t, testEndpoint, m.Endpoint())
		require.True(t, m.IsAuthenticated())
	})

	t.Run("store failure aborts construction", func(t *testing.T) {
		store := fakesessionrepo.NewFakeSessionRepo()
		store.FailWith(apperrors.ErrIOFailure)

		_, err := auth.NewManager(testEndpoint, testUser, store, transportfake.NewFakeTransport("", ""), testIdentity)
		require.ErrorIs(t, err, apperrors.ErrStorage)
	})
}

func TestLogin_Success(t *testing.T) {
	f := setupTestFixture(t)

	err := f.manager.Login(context.Background(), defaultCredential(), auth.LoginOptions{RequestDevicePairing: true})
	require.NoError(t, err)
	require.Equal(t, auth.StateAuthenticated, f.manager.State())

	ok, err := f.store.IsLoggedIn(testEndpoint, testUser)
	require.NoError(t, err)
	require.True(t, ok)

	deviceID, found, err := f.store.GetDeviceID(testEndpoint, testUser)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, testDeviceID, deviceID)

	token, err := f.manager.SessionToken()
	require.NoError(t, err)
	require.Equal(t, testToken, token)

	logins := f.transport.Logins()
	require.Len(t, logins, 1)
	v, ok := logins[0].Get("enable_device_token")
	require.True(t, ok)
	require.Equal(t, "yes", v)
	require.Equal(t, float64(1), f.loginAttempts(t, auth.ResultSuccess))
}

func TestLogin_UsesStoredDeviceID(t *testing.T) {
	store := fakesessionrepo.NewFakeSessionRepo()
	require.NoError(t, store.SaveSession(testEndpoint, testUser, testDeviceID, testToken))
	require.NoError(t, store.RevokeSession(testEndpoint, testUser))

	// The remote does not issue a new pairing id on this login.
	f := newFixture(t, store, transportfake.NewFakeTransport("sid-2", ""))
	require.Equal(t, auth.StateUnauthenticated, f.manager.State())

	require.NoError(t, f.manager.Login(context.Background(), defaultCredential(), auth.LoginOptions{}))

	logins := f.transport.Logins()
	require.Len(t, logins, 1)
	v, ok := logins[0].Get("device_id")
	require.True(t, ok)
	require.Equal(t, testDeviceID, v)
	_, ok = logins[0].Get("otp_code")
	require.False(t, ok)

	rec, err := store.GetSession(testEndpoint, testUser)
	require.NoError(t, err)
	require.Equal(t, "sid-2", rec.SessionToken)
	require.Equal(t, testDeviceID, rec.DeviceID)
}

func TestLogin_OneTimeCodeOption(t *testing.T) {
	f := setupTestFixture(t)

	require.NoError(t, f.manager.Login(context.Background(), defaultCredential(), auth.LoginOptions{OneTimeCode: "654321"}))

	v, ok := f.transport.Logins()[0].Get("otp_code")
	require.True(t, ok)
	require.Equal(t, "654321", v)
}

func TestLogin_InvalidFromAuthenticated(t *testing.T) {
	f := setupTestFixture(t)
	require.NoError(t, f.manager.Login(context.Background(), defaultCredential(), auth.LoginOptions{}))

	err := f.manager.Login(context.Background(), defaultCredential(), auth.LoginOptions{})
	require.ErrorIs(t, err, auth.ErrInvalidState)
	require.Len(t, f.transport.Logins(), 1)
	require.Equal(t, auth.StateAuthenticated, f.manager.State())
}

func TestLogin_Failures(t *testing.T) {
	tests := []struct {
		name      string
		remoteErr error
		wantErr   error
		wantKind  error
		result    string
	}{
		{"invalid credentials", apperrors.ErrInvalidCredentials, auth.ErrInvalidCredentials, apperrors.ErrAuth, auth.ResultInvalidCredentials},
		{"one-time code required", apperrors.ErrOneTimeCodeRequired, auth.ErrOneTimeCodeRequired, apperrors.ErrAuth, auth.ResultOneTimeCodeNeeded},
		{"one-time code rejected", apperrors.ErrOneTimeCodeRejected, auth.ErrOneTimeCodeRejected, apperrors.ErrAuth, auth.ResultOneTimeCodeBad},
		{"unreachable", apperrors.ErrUnreachable, apperrors.ErrUnreachable, apperrors.ErrNetwork, auth.ResultNetwork},
		{"malformed response", apperrors.ErrMalformedResponse, apperrors.ErrMalformedResponse, apperrors.ErrNetwork, auth.ResultNetwork},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setupTestFixture(t)
			f.transport.OnLogin = func(context.Context, auth.Request) (*auth.LoginResult, error) {
				return nil, tt.remoteErr
			}

			err := f.manager.Login(context.Background(), defaultCredential(), auth.LoginOptions{})
			require.ErrorIs(t, err, tt.wantErr)
			require.ErrorIs(t, err, tt.wantKind)
			require.True(t, apperrors.IsRecoverable(err))
			require.Equal(t, auth.StateLoginFailed, f.manager.State())
			require.Equal(t, 0, f.store.Writes())
			require.Equal(t, float64(1), f.loginAttempts(t, tt.result))

			// The caller may retry from LoginFailed.
			f.transport.OnLogin = func(context.Context, auth.Request) (*auth.LoginResult, error) {
				return &auth.LoginResult{SessionToken: testToken}, nil
			}
			require.NoError(t, f.manager.Login(context.Background(), defaultCredential(), auth.LoginOptions{}))
			require.Equal(t, auth.StateAuthenticated, f.manager.State())
		})
	}
}

func TestLogin_EmptyTokenIsMalformed(t *testing.T) {
	f := setupTestFixture(t)
	f.transport.OnLogin = func(context.Context, auth.Request) (*auth.LoginResult, error) {
		return &auth.LoginResult{}, nil
	}

	err := f.manager.Login(context.Background(), defaultCredential(), auth.LoginOptions{})
	require.ErrorIs(t, err, apperrors.ErrMalformedResponse)
	require.Equal(t, auth.StateLoginFailed, f.manager.State())
	require.Equal(t, 0, f.store.Writes())
}

func TestLogin_StoreFailure(t *testing.T) {
	f := setupTestFixture(t)
	f.store.FailWith(apperrors.ErrIOFailure)

	err := f.manager.Login(context.Background(), defaultCredential(), auth.LoginOptions{})
	require.ErrorIs(t, err, apperrors.ErrStorage)
	require.Equal(t, auth.StateLoginFailed, f.manager.State())
	require.Empty(t, f.transport.Logins())
}

func TestLogin_Timeout(t *testing.T) {
	f := setupTestFixture(t)
	f.transport.OnLogin = func(ctx context.Context, _ auth.Request) (*auth.LoginResult, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	err := f.manager.Login(context.Background(), defaultCredential(), auth.LoginOptions{Timeout: 20 * time.Millisecond})
	require.ErrorIs(t, err, auth.ErrTimeout)
	require.ErrorIs(t, err, apperrors.ErrNetwork)
	require.Equal(t, auth.StateLoginFailed, f.manager.State())

	ok, err := f.store.IsLoggedIn(testEndpoint, testUser)
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, 0, f.store.Writes())
	require.Equal(t, float64(1), f.loginAttempts(t, auth.ResultTimeout))
}

func TestLogin_DefaultTimeoutOption(t *testing.T) {
	f := setupTestFixture(t, auth.WithLoginTimeout(20*time.Millisecond))
	f.transport.OnLogin = func(ctx context.Context, _ auth.Request) (*auth.LoginResult, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	err := f.manager.Login(context.Background(), defaultCredential(), auth.LoginOptions{})
	require.ErrorIs(t, err, auth.ErrTimeout)
}

func TestLogin_CancelledAfterRemoteSuccessDoesNotPersist(t *testing.T) {
	f := setupTestFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f.transport.OnLogin = func(context.Context, auth.Request) (*auth.LoginResult, error) {
		cancel()
		return &auth.LoginResult{SessionToken: testToken, DeviceID: testDeviceID}, nil
	}

	err := f.manager.Login(ctx, defaultCredential(), auth.LoginOptions{})
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, auth.StateLoginFailed, f.manager.State())
	require.Equal(t, 0, f.store.Writes())

	_, found, err := f.store.GetDeviceID(testEndpoint, testUser)
	require.NoError(t, err)
	require.False(t, found)
}

func TestLogin_ConcurrentSamePairSharesOneAttempt(t *testing.T) {
	f := setupTestFixture(t)
	release := make(chan struct{})
	f.transport.OnLogin = func(context.Context, auth.Request) (*auth.LoginResult, error) {
		<-release
		return &auth.LoginResult{SessionToken: testToken, DeviceID: testDeviceID}, nil
	}

	// A second manager for the same pair shares the in-flight attempt too.
	other, err := auth.NewManager(testEndpoint, testUser, f.store, f.transport, testIdentity)
	require.NoError(t, err)

	errs := make([]error, 3)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		errs[0] = f.manager.Login(context.Background(), defaultCredential(), auth.LoginOptions{})
	}()

	select {
	case <-f.transport.Started():
	case <-time.After(2 * time.Second):
		t.Fatal("first login never reached the transport")
	}
	require.Equal(t, auth.StateAuthenticating, f.manager.State())

	wg.Add(2)
	go func() {
		defer wg.Done()
		errs[1] = f.manager.Login(context.Background(), defaultCredential(), auth.LoginOptions{})
	}()
	go func() {
		defer wg.Done()
		errs[2] = other.Login(context.Background(), defaultCredential(), auth.LoginOptions{})
	}()

	// Give the followers time to join the flight before the remote answers.
	time.Sleep(100 * time.Millisecond)
	close(release)
	wg.Wait()

	require.NoError(t, errs[0])
	for _, err := range errs[1:] {
		// A follower that arrived after the flight finished is rejected instead.
		if err != nil {
			require.ErrorIs(t, err, auth.ErrInvalidState)
		}
	}
	require.Len(t, f.transport.Logins(), 1)
	require.Equal(t, 1, f.store.Writes())

	records, err := f.store.List()
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, auth.StateAuthenticated, f.manager.State())
	require.Equal(t, auth.StateAuthenticated, other.State())
}

func TestLogin_JoinedCallerHonoursOwnTimeout(t *testing.T) {
	f := setupTestFixture(t)
	release := make(chan struct{})
	f.transport.OnLogin = func(context.Context, auth.Request) (*auth.LoginResult, error) {
		<-release
		return &auth.LoginResult{SessionToken: testToken, DeviceID: testDeviceID}, nil
	}

	other, err := auth.NewManager(testEndpoint, testUser, f.store, f.transport, testIdentity)
	require.NoError(t, err)

	first := make(chan error, 1)
	go func() {
		first <- f.manager.Login(context.Background(), defaultCredential(), auth.LoginOptions{Timeout: 5 * time.Second})
	}()
	<-f.transport.Started()

	t.Run("timeout", func(t *testing.T) {
		start := time.Now()
		err := other.Login(context.Background(), defaultCredential(), auth.LoginOptions{Timeout: 20 * time.Millisecond})
		require.ErrorIs(t, err, auth.ErrTimeout)
		require.Less(t, time.Since(start), time.Second)
		require.Equal(t, auth.StateLoginFailed, other.State())
	})

	t.Run("cancel", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			time.Sleep(20 * time.Millisecond)
			cancel()
		}()
		err := other.Login(ctx, defaultCredential(), auth.LoginOptions{})
		require.ErrorIs(t, err, context.Canceled)
	})

	// Giving up wrote nothing and left the first attempt running.
	require.Equal(t, 0, f.store.Writes())
	require.Equal(t, auth.StateAuthenticating, f.manager.State())

	close(release)
	require.NoError(t, <-first)
	require.Equal(t, auth.StateAuthenticated, f.manager.State())
	require.Len(t, f.transport.Logins(), 1)
	require.Equal(t, 1, f.store.Writes())
}

func TestLogin_StaleManagerAdoptsStoredSession(t *testing.T) {
	f := setupTestFixture(t)

	// Built before the first manager logged in, so it still thinks it is logged out.
	stale, err := auth.NewManager(testEndpoint, testUser, f.store, f.transport, testIdentity)
	require.NoError(t, err)
	require.NoError(t, f.manager.Login(context.Background(), defaultCredential(), auth.LoginOptions{RequestDevicePairing: true}))
	require.Equal(t, auth.StateUnauthenticated, stale.State())

	require.NoError(t, stale.Login(context.Background(), defaultCredential(), auth.LoginOptions{RequestDevicePairing: true}))
	require.Equal(t, auth.StateAuthenticated, stale.State())
	require.Len(t, f.transport.Logins(), 1)
	require.Equal(t, 1, f.store.Writes())

	token, err := stale.SessionToken()
	require.NoError(t, err)
	require.Equal(t, testToken, token)
}

func TestLogin_DifferentPairsAreIndependent(t *testing.T) {
	store := fakesessionrepo.NewFakeSessionRepo()
	release := make(chan struct{})
	blocking := transportfake.NewFakeTransport(testToken, "")
	blocking.OnLogin = func(context.Context, auth.Request) (*auth.LoginResult, error) {
		<-release
		return &auth.LoginResult{SessionToken: "sid-a"}, nil
	}

	alice, err := auth.NewManager(testEndpoint, "alice", store, blocking, testIdentity)
	require.NoError(t, err)
	bob, err := auth.NewManager(testEndpoint, testUser, store, transportfake.NewFakeTransport("sid-b", ""), testIdentity)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		done <- alice.Login(context.Background(), auth.NewCredential("alice", "pw"), auth.LoginOptions{})
	}()
	<-blocking.Started()

	// Bob's login completes while Alice's is still waiting on the remote.
	require.NoError(t, bob.Login(context.Background(), defaultCredential(), auth.LoginOptions{}))
	require.Equal(t, auth.StateAuthenticating, alice.State())

	close(release)
	require.NoError(t, <-done)
	require.Equal(t, auth.StateAuthenticated, alice.State())
}

func TestLogout(t *testing.T) {
	t.Run("keeps device pairing by default", func(t *testing.T) {
		f := setupTestFixture(t)
		require.NoError(t, f.manager.Login(context.Background(), defaultCredential(), auth.LoginOptions{RequestDevicePairing: true}))

		result, err := f.manager.Logout(context.Background())
		require.NoError(t, err)
		require.NoError(t, result.RemoteErr)
		require.Equal(t, auth.StateUnauthenticated, f.manager.State())

		logouts := f.transport.Logouts()
		require.Len(t, logouts, 1)
		sid, _ := logouts[0].Get("_sid")
		require.Equal(t, testToken, sid)

		ok, err := f.store.IsLoggedIn(testEndpoint, testUser)
		require.NoError(t, err)
		require.False(t, ok)
		deviceID, found, err := f.store.GetDeviceID(testEndpoint, testUser)
		require.NoError(t, err)
		require.True(t, found)
		require.Equal(t, testDeviceID, deviceID)
	})

	t.Run("forget device", func(t *testing.T) {
		f := setupTestFixture(t, auth.WithForgetDeviceOnLogout())
		require.NoError(t, f.manager.Login(context.Background(), defaultCredential(), auth.LoginOptions{RequestDevicePairing: true}))

		_, err := f.manager.Logout(context.Background())
		require.NoError(t, err)

		_, err = f.store.GetSession(testEndpoint, testUser)
		require.ErrorIs(t, err, apperrors.ErrSessionNotFound)
	})

	t.Run("remote failure is a warning", func(t *testing.T) {
		f := setupTestFixture(t)
		require.NoError(t, f.manager.Login(context.Background(), defaultCredential(), auth.LoginOptions{}))
		f.transport.LogoutErr = apperrors.ErrUnreachable

		result, err := f.manager.Logout(context.Background())
		require.NoError(t, err)
		require.ErrorIs(t, result.RemoteErr, apperrors.ErrUnreachable)
		require.Zero(t, f.invalidations(t))
		require.Equal(t, auth.StateUnauthenticated, f.manager.State())

		ok, err := f.store.IsLoggedIn(testEndpoint, testUser)
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("session already ended remotely", func(t *testing.T) {
		f := setupTestFixture(t)
		require.NoError(t, f.manager.Login(context.Background(), defaultCredential(), auth.LoginOptions{}))
		f.transport.LogoutErr = apperrors.ErrSessionInvalid

		result, err := f.manager.Logout(context.Background())
		require.NoError(t, err)
		require.NoError(t, result.RemoteErr)
		require.Equal(t, auth.StateUnauthenticated, f.manager.State())

		require.Equal(t, float64(1), f.invalidations(t))
	})

	t.Run("invalid when not authenticated", func(t *testing.T) {
		f := setupTestFixture(t)

		_, err := f.manager.Logout(context.Background())
		require.ErrorIs(t, err, auth.ErrInvalidState)
		require.Empty(t, f.transport.Logouts())
	})

	t.Run("local failure is an error", func(t *testing.T) {
		f := setupTestFixture(t)
		require.NoError(t, f.manager.Login(context.Background(), defaultCredential(), auth.LoginOptions{}))
		f.store.FailWith(apperrors.ErrIOFailure)

		_, err := f.manager.Logout(context.Background())
		require.ErrorIs(t, err, apperrors.ErrStorage)
	})
}

func TestCheck(t *testing.T) {
	f := setupTestFixture(t)

	ok, err := f.manager.Check()
	require.NoError(t, err)
	require.False(t, ok)

	// Another process logged in for the same pair.
	require.NoError(t, f.store.SaveSession(testEndpoint, testUser, "", testToken))
	ok, err = f.manager.Check()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, auth.StateAuthenticated, f.manager.State())

	// And logged out again.
	require.NoError(t, f.store.ClearSession(testEndpoint, testUser))
	ok, err = f.manager.Check()
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, auth.StateUnauthenticated, f.manager.State())

	require.Empty(t, f.transport.Logins())
	require.Empty(t, f.transport.Logouts())
}

func TestInvalidate(t *testing.T) {
	f := setupTestFixture(t)
	require.NoError(t, f.manager.Login(context.Background(), defaultCredential(), auth.LoginOptions{RequestDevicePairing: true}))

	require.NoError(t, f.manager.Invalidate())
	require.Equal(t, auth.StateUnauthenticated, f.manager.State())

	_, err := f.manager.SessionToken()
	require.ErrorIs(t, err, auth.ErrInvalidState)

	_, found, err := f.store.GetDeviceID(testEndpoint, testUser)
	require.NoError(t, err)
	require.True(t, found)

	require.Equal(t, float64(1), f.invalidations(t))
}
