// Package synoapi talks to the Synology web API authentication endpoint.
package synoapi

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/jrsteele09/synofs/auth"
	"github.com/jrsteele09/synofs/internal/config"
	apperrors "github.com/jrsteele09/synofs/internal/errors"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const maxResponseBytes = 1 << 20

var _ auth.Transport = (*Client)(nil)

// envelope is the common response shape of every web API call.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   *struct {
		Code int `json:"code"`
	} `json:"error,omitempty"`
}

type loginData struct {
	SID      string `json:"sid"`
	DID      string `json:"did"`
	DeviceID string `json:"device_id"`
}

// Client performs web API calls over HTTP GET.
type Client struct {
	httpClient *http.Client
}

// ClientOption defines a function type to modify the Client instance.
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(cl *Client) {
		if c != nil {
			cl.httpClient = c
		}
	}
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) ClientOption {
	return func(cl *Client) {
		cl.httpClient.Timeout = d
	}
}

// WithInsecureSkipVerify accepts self-signed certificates, which home NAS
// devices commonly use.
func WithInsecureSkipVerify(skip bool) ClientOption {
	return func(cl *Client) {
		if !skip {
			return
		}
		transport := http.DefaultTransport.(*http.Transport).Clone()
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in for self-signed NAS certificates
		cl.httpClient.Transport = transport
	}
}

func NewClient(options ...ClientOption) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: 20 * time.Second},
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

// NewClientFromConfig builds a client from the transport settings.
func NewClientFromConfig(cfg config.TransportConfig) *Client {
	return NewClient(
		WithTimeout(cfg.GetHTTPTimeout()),
		WithInsecureSkipVerify(cfg.GetInsecureSkipVerify()),
	)
}

// Login performs the login call and returns the issued session.
func (c *Client) Login(ctx context.Context, req auth.Request) (*auth.LoginResult, error) {
	env, err := c.call(ctx, req)
	if err != nil {
		return nil, errors.Wrap(err, "[Client.Login]")
	}

	var data loginData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return nil, apperrors.Join(apperrors.ErrMalformedResponse, errors.Wrap(err, "[Client.Login] decode data"))
	}
	if data.SID == "" {
		return nil, errors.Wrap(apperrors.ErrMalformedResponse, "[Client.Login] response has no sid")
	}

	deviceID := data.DID
	if deviceID == "" {
		deviceID = data.DeviceID
	}
	return &auth.LoginResult{SessionToken: data.SID, DeviceID: deviceID}, nil
}

// Logout ends the remote session named by the request's _sid parameter.
func (c *Client) Logout(ctx context.Context, req auth.Request) error {
	if _, err := c.call(ctx, req); err != nil {
		return errors.Wrap(err, "[Client.Logout]")
	}
	return nil
}

func (c *Client) call(ctx context.Context, req auth.Request) (*envelope, error) {
	method, _ := req.Get("method")
	logger := log.With().Str("method", method).Logger()
	logger.Debug().Str("url", req.String()).Msg("Calling web API")

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL(), nil)
	if err != nil {
		return nil, apperrors.Join(apperrors.ErrUnreachable, errors.Wrap(err, "build request"))
	}
	httpReq.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, transportErr(ctx, err)
	}
	defer resp.Body.Close()

	logger.Debug().Int("status", resp.StatusCode).Dur("elapsed", time.Since(start)).Msg("Web API responded")

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		return nil, errors.Wrapf(apperrors.ErrRemote, "unexpected HTTP status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, transportErr(ctx, err)
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, apperrors.Join(apperrors.ErrMalformedResponse, errors.Wrap(err, "decode envelope"))
	}
	if !env.Success {
		if env.Error == nil {
			return nil, errors.Wrap(apperrors.ErrMalformedResponse, "failure without error code")
		}
		apiErr := NewAPIError(env.Error.Code)
		logger.Debug().Int("code", apiErr.Code).Str("description", apiErr.Description).Msg("Web API returned an error")
		return nil, apiErr
	}
	return &env, nil
}

// transportErr classifies a failed round trip as a timeout or an unreachable endpoint.
func transportErr(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return apperrors.Join(apperrors.ErrTimeout, err)
	}
	if errors.Is(ctx.Err(), context.Canceled) {
		return errors.Wrap(ctx.Err(), err.Error())
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return apperrors.Join(apperrors.ErrTimeout, err)
	}
	return apperrors.Join(apperrors.ErrUnreachable, err)
}
