package auth

import (
	"net/url"
	"strconv"
	"strings"
)

const (
	authAPI        = "SYNO.API.Auth"
	authAPIVersion = 6
	sessionLabel   = "FileStation"
	entryPath      = "/webapi/entry.cgi"
)

// Parameter is one query parameter of a remote API call.
type Parameter struct {
	Key   string
	Value string
}

// Request is the ordered parameter set of a remote API call.
type Request struct {
	Endpoint   string
	Parameters []Parameter
}

// BuildLoginRequest maps a credential and login options onto the parameters the
// remote login endpoint expects. Optional parameters are appended only when they
// apply, in the order enable_device_token, device_id, otp_code.
func BuildLoginRequest(cred Credential, endpoint string, identity ClientIdentity, deviceID string, requestPairing bool) Request {
	params := []Parameter{
		{Key: "api", Value: authAPI},
		{Key: "version", Value: strconv.Itoa(authAPIVersion)},
		{Key: "method", Value: "login"},
		{Key: "account", Value: cred.Username()},
		{Key: "passwd", Value: cred.Secret()},
		{Key: "device_name", Value: identity.DeviceName()},
		{Key: "session", Value: sessionLabel},
	}
	if requestPairing {
		params = append(params, Parameter{Key: "enable_device_token", Value: "yes"})
	}
	if deviceID != "" {
		params = append(params, Parameter{Key: "device_id", Value: deviceID})
	}
	if cred.HasOneTimeCode() {
		params = append(params, Parameter{Key: "otp_code", Value: cred.OneTimeCode()})
	}

	return Request{
		Endpoint:   strings.TrimRight(endpoint, "/"),
		Parameters: params,
	}
}

// BuildLogoutRequest returns the parameters that end the remote session.
func BuildLogoutRequest(endpoint, sessionToken string) Request {
	return Request{
		Endpoint: strings.TrimRight(endpoint, "/"),
		Parameters: []Parameter{
			{Key: "api", Value: authAPI},
			{Key: "version", Value: strconv.Itoa(authAPIVersion)},
			{Key: "method", Value: "logout"},
			{Key: "session", Value: sessionLabel},
			{Key: "_sid", Value: sessionToken},
		},
	}
}

// Get returns the value of key and whether it is present.
func (r Request) Get(key string) (string, bool) {
	for _, p := range r.Parameters {
		if p.Key == key {
			return p.Value, true
		}
	}
	return "", false
}

// Query renders the parameters in order, percent-encoding every value.
func (r Request) Query() string {
	var b strings.Builder
	for i, p := range r.Parameters {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(p.Key)
		b.WriteByte('=')
		b.WriteString(PercentEncode(p.Value))
	}
	return b.String()
}

// URL is the full request URL including the secret. Never log it; use String.
func (r Request) URL() string {
	return r.Endpoint + entryPath + "?" + r.Query()
}

// String renders the URL with the password and session id masked.
func (r Request) String() string {
	masked := Request{Endpoint: r.Endpoint, Parameters: make([]Parameter, len(r.Parameters))}
	for i, p := range r.Parameters {
		if p.Key == "passwd" || p.Key == "_sid" {
			p.Value = redacted
		}
		masked.Parameters[i] = p
	}
	return masked.URL()
}

// PercentEncode escapes everything outside the RFC 3986 unreserved set, so a
// space becomes %20 rather than '+'.
func PercentEncode(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}
