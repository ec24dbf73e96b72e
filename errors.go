package session

import (
	"errors"
	"net/http"

	goerrors "github.com/goliatone/go-errors"
)

// Text codes mirror the wire codes of the remote identity service so callers
// can match on either side of the boundary.
const (
	TextCodeTokenExpired        = "TOKEN_EXPIRED"
	TextCodeRefreshTokenExpired = "REFRESH_TOKEN_EXPIRED"
	TextCodeNoRefreshToken      = "NO_REFRESH_TOKEN"
	TextCodeEmailNotVerified    = "EMAIL_NOT_VERIFIED"
	TextCodeRateLimited         = "RATE_LIMIT_EXCEEDED"
	TextCodeValidation          = "VALIDATION_ERROR"
	TextCodeSessionRequired     = "SESSION_REQUIRED"
	TextCodeServerError         = "SERVER_ERROR"
	TextCodeNetworkError        = "NETWORK_ERROR"
)

// ErrTokenExpired is the recoverable access-token failure. The transport
// handles it by refreshing and retrying; callers should never observe it
// unless the retry itself failed.
var ErrTokenExpired = goerrors.New("access token expired", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenExpired).
	WithCode(goerrors.CodeUnauthorized)

// ErrRefreshTokenExpired is fatal: the stored refresh token was rejected and
// the session cannot be recovered without re-authenticating.
var ErrRefreshTokenExpired = goerrors.New("refresh token expired", goerrors.CategoryAuth).
	WithTextCode(TextCodeRefreshTokenExpired).
	WithCode(goerrors.CodeUnauthorized)

// ErrNoRefreshToken is fatal: a refresh was required but no refresh token is
// stored in either tier.
var ErrNoRefreshToken = goerrors.New("no refresh token available", goerrors.CategoryAuth).
	WithTextCode(TextCodeNoRefreshToken).
	WithCode(goerrors.CodeUnauthorized)

// ErrEmailNotVerified blocks session establishment until the out-of-band
// verification step completes. It is not fatal to the account.
var ErrEmailNotVerified = goerrors.New("email not verified", goerrors.CategoryAuth).
	WithTextCode(TextCodeEmailNotVerified).
	WithCode(goerrors.CodeForbidden)

// ErrRateLimited carries the retry-after window in its metadata under
// "remaining_seconds"; use RetryAfterSeconds to read it.
var ErrRateLimited = goerrors.New("too many requests", goerrors.CategoryRateLimit).
	WithTextCode(TextCodeRateLimited)

// ErrValidation carries field-level details in its metadata under "details".
var ErrValidation = goerrors.New("validation failed", goerrors.CategoryValidation).
	WithTextCode(TextCodeValidation).
	WithCode(goerrors.CodeBadRequest)

// ErrSessionRequired is what the verification gate returns for requests that
// reach a protected route without an authenticated, verified session.
var ErrSessionRequired = goerrors.New("authenticated session required", goerrors.CategoryAuth).
	WithTextCode(TextCodeSessionRequired).
	WithCode(goerrors.CodeUnauthorized)

// wireError is the error envelope the identity service uses for non-2xx
// responses: {"error": {"message": ..., "code": ..., "details": {...}}}.
type wireError struct {
	Message          string         `json:"message"`
	Code             string         `json:"code"`
	Details          map[string]any `json:"details,omitempty"`
	RemainingSeconds int            `json:"remainingSeconds,omitempty"`
}

type wireEnvelope struct {
	Error *wireError `json:"error"`
}

// normalizeWireError maps a decoded failure response onto the package
// taxonomy. Unknown shapes degrade to a generic server error that keeps the
// remote message intact.
func normalizeWireError(status int, we *wireError) error {
	if we == nil {
		we = &wireError{}
	}
	if we.Message == "" {
		we.Message = http.StatusText(status)
	}

	switch {
	case status == http.StatusUnauthorized && we.Code == TextCodeTokenExpired:
		return ErrTokenExpired
	case we.Code == TextCodeRefreshTokenExpired:
		return ErrRefreshTokenExpired
	case status == http.StatusForbidden && we.Code == TextCodeEmailNotVerified:
		return ErrEmailNotVerified
	case status == http.StatusTooManyRequests || we.Code == TextCodeRateLimited:
		return cloneWithMetadata(ErrRateLimited, map[string]any{
			"remaining_seconds": we.RemainingSeconds,
		})
	case we.Code == TextCodeValidation:
		return cloneWithMetadata(ErrValidation, map[string]any{
			"details": we.Details,
		})
	}

	code := we.Code
	if code == "" {
		code = TextCodeServerError
	}
	return goerrors.New(we.Message, goerrors.CategoryInternal).
		WithTextCode(code).
		WithMetadata(map[string]any{"status": status})
}

// cloneWithMetadata attaches metadata to a copy of sentinel. WithMetadata
// mutates its receiver, so calling it on the sentinel directly would leak
// one response's metadata into every error matched against it.
func cloneWithMetadata(sentinel *goerrors.Error, meta map[string]any) error {
	clone := sentinel.Clone()
	if clone == nil {
		return sentinel
	}
	clone.Source = sentinel
	return clone.WithMetadata(meta)
}

// RequiresVerification reports whether err means the session is blocked on
// the email-verification step.
func RequiresVerification(err error) bool {
	return errors.Is(err, ErrEmailNotVerified)
}

// IsSessionExpired reports whether err is one of the fatal session failures
// that force a logout.
func IsSessionExpired(err error) bool {
	return errors.Is(err, ErrRefreshTokenExpired) || errors.Is(err, ErrNoRefreshToken)
}

// RetryAfterSeconds extracts the rate-limit window from err, or 0 when err
// is not a rate-limit rejection.
func RetryAfterSeconds(err error) int {
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		return 0
	}
	if rich.TextCode != TextCodeRateLimited {
		return 0
	}
	switch v := rich.Metadata["remaining_seconds"].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return 0
}

// ValidationDetails extracts the field-level detail map from a validation
// rejection, or nil for any other error.
func ValidationDetails(err error) map[string]any {
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		return nil
	}
	if rich.TextCode != TextCodeValidation {
		return nil
	}
	details, _ := rich.Metadata["details"].(map[string]any)
	return details
}
