package synoapi

import (
	"fmt"

	apperrors "github.com/jrsteele09/synofs/internal/errors"
)

// APIError is an error code returned in the response envelope.
type APIError struct {
	Code        int
	Description string
	kind        error
}

func (e *APIError) Error() string {
	return fmt.Sprintf("remote error %d: %s", e.Code, e.Description)
}

// Unwrap exposes the mapped package error, e.g. ErrInvalidCredentials for 400.
func (e *APIError) Unwrap() error {
	return e.kind
}

type codeInfo struct {
	description string
	kind        error
}

// Common codes apply to every API; auth codes only to SYNO.API.Auth.
var (
	commonCodes = map[int]codeInfo{
		100: {"unknown error", apperrors.ErrRemote},
		101: {"no parameter of API, method or version", apperrors.ErrRemote},
		102: {"the requested API does not exist", apperrors.ErrRemote},
		103: {"the requested method does not exist", apperrors.ErrRemote},
		104: {"the requested version does not support the functionality", apperrors.ErrRemote},
		105: {"the logged in session does not have permission", apperrors.ErrSessionInvalid},
		106: {"session timeout", apperrors.ErrSessionInvalid},
		107: {"session interrupted by duplicate login", apperrors.ErrSessionInvalid},
		119: {"SID not found", apperrors.ErrSessionInvalid},
	}

	authCodes = map[int]codeInfo{
		400: {"no such account or incorrect password", apperrors.ErrInvalidCredentials},
		401: {"disabled account", apperrors.ErrInvalidCredentials},
		402: {"denied permission", apperrors.ErrInvalidCredentials},
		403: {"2-factor authentication code required", apperrors.ErrOneTimeCodeRequired},
		404: {"failed to authenticate 2-factor authentication code", apperrors.ErrOneTimeCodeRejected},
		406: {"enforce to authenticate with 2-factor authentication code", apperrors.ErrOneTimeCodeRequired},
		407: {"blocked IP source", apperrors.ErrInvalidCredentials},
		408: {"expired password cannot change", apperrors.ErrInvalidCredentials},
		409: {"expired password", apperrors.ErrInvalidCredentials},
		410: {"password must be changed", apperrors.ErrInvalidCredentials},
	}
)

// NewAPIError maps a response error code to an APIError.
func NewAPIError(code int) *APIError {
	if info, ok := authCodes[code]; ok {
		return &APIError{Code: code, Description: info.description, kind: info.kind}
	}
	if info, ok := commonCodes[code]; ok {
		return &APIError{Code: code, Description: info.description, kind: info.kind}
	}
	return &APIError{Code: code, Description: "unrecognised error code", kind: apperrors.ErrRemote}
}
