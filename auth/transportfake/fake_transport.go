package transportfake

import (
	"context"
	"sync"

	"github.com/jrsteele09/synofs/auth"
)

var _ auth.Transport = (*FakeTransport)(nil)

// LoginFunc decides the outcome of a fake login call.
type LoginFunc func(ctx context.Context, req auth.Request) (*auth.LoginResult, error)

// FakeTransport records every request it receives. Login and logout outcomes
// are scripted through OnLogin and LogoutErr.
type FakeTransport struct {
	OnLogin   LoginFunc
	LogoutErr error

	lock    sync.Mutex
	logins  []auth.Request
	logouts []auth.Request
	started chan struct{}
}

// NewFakeTransport returns a transport whose logins succeed with the given token.
func NewFakeTransport(token, deviceID string) *FakeTransport {
	return &FakeTransport{
		OnLogin: func(context.Context, auth.Request) (*auth.LoginResult, error) {
			return &auth.LoginResult{SessionToken: token, DeviceID: deviceID}, nil
		},
		started: make(chan struct{}, 64),
	}
}

func (ft *FakeTransport) Login(ctx context.Context, req auth.Request) (*auth.LoginResult, error) {
	ft.lock.Lock()
	ft.logins = append(ft.logins, req)
	onLogin := ft.OnLogin
	ft.lock.Unlock()

	select {
	case ft.started <- struct{}{}:
	default:
	}
	return onLogin(ctx, req)
}

func (ft *FakeTransport) Logout(_ context.Context, req auth.Request) error {
	ft.lock.Lock()
	defer ft.lock.Unlock()
	ft.logouts = append(ft.logouts, req)
	return ft.LogoutErr
}

// Started is signalled each time a login call reaches the transport.
func (ft *FakeTransport) Started() <-chan struct{} {
	return ft.started
}

func (ft *FakeTransport) Logins() []auth.Request {
	ft.lock.Lock()
	defer ft.lock.Unlock()
	return append([]auth.Request(nil), ft.logins...)
}

func (ft *FakeTransport) Logouts() []auth.Request {
	ft.lock.Lock()
	defer ft.lock.Unlock()
	return append([]auth.Request(nil), ft.logouts...)
}
