package session

import (
	"context"
	"fmt"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// Storage is a flat key-value tier. Missing keys are not an error.
type Storage interface {
	Get(key string) (string, bool)
	Set(key, value string) error
	Delete(key string) error
}

// Store is the single source of truth for "is there a usable session",
// independent of network state.
type Store interface {
	SaveTokens(pair TokenPair, remember bool) error
	SaveUser(user *User) error
	AccessToken() (string, bool)
	RefreshToken() (string, bool)
	User() *User
	Remember() bool
	Clear() error
	Epoch() uint64
}

// IdentityAPI is the remote identity service surface the Manager drives.
// *Client is the production implementation.
type IdentityAPI interface {
	Register(ctx context.Context, req RegisterRequest) (*AuthResponse, error)
	Login(ctx context.Context, req LoginRequest) (*AuthResponse, error)
	Me(ctx context.Context) (*User, error)
	UpdateProfile(ctx context.Context, req UpdateProfileRequest) (*User, error)
	Logout(ctx context.Context) error
	VerifyEmail(ctx context.Context, token string) (*AuthResponse, error)
	ResendVerification(ctx context.Context, email string) error
	ForgotPassword(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token string, req ResetPasswordRequest) error
	ChangeEmail(ctx context.Context, newEmail string) (*User, error)
	ChangePassword(ctx context.Context, req ChangePasswordRequest) error
	DeleteAccount(ctx context.Context, confirmationText string) error
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] SESSION "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] SESSION "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] SESSION "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] SESSION "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}
