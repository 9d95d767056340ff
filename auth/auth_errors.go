package auth

import (
	"context"

	apperrors "github.com/jrsteele09/synofs/internal/errors"
)

// Errors returned by Manager. All of them match one of the kinds in internal/errors.
var (
	ErrInvalidCredentials  = apperrors.ErrInvalidCredentials
	ErrOneTimeCodeRequired = apperrors.ErrOneTimeCodeRequired
	ErrOneTimeCodeRejected = apperrors.ErrOneTimeCodeRejected
	ErrSessionInvalid      = apperrors.ErrSessionInvalid
	ErrTimeout             = apperrors.ErrTimeout
	ErrInvalidState        = apperrors.ErrInvalidState
)

// Result labels used for metrics and logs.
const (
	ResultSuccess            = "success"
	ResultInvalidCredentials = "invalid_credentials"
	ResultOneTimeCodeNeeded  = "otp_required"
	ResultOneTimeCodeBad     = "otp_rejected"
	ResultTimeout            = "timeout"
	ResultCanceled           = "canceled"
	ResultNetwork            = "network"
	ResultStorage            = "storage"
	ResultOther              = "error"
)

// resultLabel classifies a login error for metrics.
func resultLabel(err error) string {
	switch {
	case err == nil:
		return ResultSuccess
	case apperrors.Is(err, apperrors.ErrInvalidCredentials):
		return ResultInvalidCredentials
	case apperrors.Is(err, apperrors.ErrOneTimeCodeRequired):
		return ResultOneTimeCodeNeeded
	case apperrors.Is(err, apperrors.ErrOneTimeCodeRejected):
		return ResultOneTimeCodeBad
	case apperrors.Is(err, apperrors.ErrTimeout):
		return ResultTimeout
	case apperrors.Is(err, context.Canceled):
		return ResultCanceled
	case apperrors.Is(err, apperrors.ErrNetwork):
		return ResultNetwork
	case apperrors.Is(err, apperrors.ErrStorage):
		return ResultStorage
	default:
		return ResultOther
	}
}
