package session_test

import (
	"context"

	session "github.com/localista/go-session"
	"github.com/stretchr/testify/mock"
)

// MockIdentityAPI implements session.IdentityAPI
type MockIdentityAPI struct {
	mock.Mock
}

func (m *MockIdentityAPI) Register(ctx context.Context, req session.RegisterRequest) (*session.AuthResponse, error) {
	args := m.Called(ctx, req)
	return authResponseArg(args.Get(0)), args.Error(1)
}

func (m *MockIdentityAPI) Login(ctx context.Context, req session.LoginRequest) (*session.AuthResponse, error) {
	args := m.Called(ctx, req)
	return authResponseArg(args.Get(0)), args.Error(1)
}

func (m *MockIdentityAPI) Me(ctx context.Context) (*session.User, error) {
	args := m.Called(ctx)
	return userArg(args.Get(0)), args.Error(1)
}

func (m *MockIdentityAPI) UpdateProfile(ctx context.Context, req session.UpdateProfileRequest) (*session.User, error) {
	args := m.Called(ctx, req)
	return userArg(args.Get(0)), args.Error(1)
}

func (m *MockIdentityAPI) Logout(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockIdentityAPI) VerifyEmail(ctx context.Context, token string) (*session.AuthResponse, error) {
	args := m.Called(ctx, token)
	return authResponseArg(args.Get(0)), args.Error(1)
}

func (m *MockIdentityAPI) ResendVerification(ctx context.Context, email string) error {
	args := m.Called(ctx, email)
	return args.Error(0)
}

func (m *MockIdentityAPI) ForgotPassword(ctx context.Context, email string) error {
	args := m.Called(ctx, email)
	return args.Error(0)
}

func (m *MockIdentityAPI) ResetPassword(ctx context.Context, token string, req session.ResetPasswordRequest) error {
	args := m.Called(ctx, token, req)
	return args.Error(0)
}

func (m *MockIdentityAPI) ChangeEmail(ctx context.Context, newEmail string) (*session.User, error) {
	args := m.Called(ctx, newEmail)
	return userArg(args.Get(0)), args.Error(1)
}

func (m *MockIdentityAPI) ChangePassword(ctx context.Context, req session.ChangePasswordRequest) error {
	args := m.Called(ctx, req)
	return args.Error(0)
}

func (m *MockIdentityAPI) DeleteAccount(ctx context.Context, confirmationText string) error {
	args := m.Called(ctx, confirmationText)
	return args.Error(0)
}

// MockStore implements session.Store for failure-injection tests.
type MockStore struct {
	mock.Mock
}

func (m *MockStore) SaveTokens(pair session.TokenPair, remember bool) error {
	args := m.Called(pair, remember)
	return args.Error(0)
}

func (m *MockStore) SaveUser(user *session.User) error {
	args := m.Called(user)
	return args.Error(0)
}

func (m *MockStore) AccessToken() (string, bool) {
	args := m.Called()
	return args.String(0), args.Bool(1)
}

func (m *MockStore) RefreshToken() (string, bool) {
	args := m.Called()
	return args.String(0), args.Bool(1)
}

func (m *MockStore) User() *session.User {
	args := m.Called()
	return userArg(args.Get(0))
}

func (m *MockStore) Remember() bool {
	args := m.Called()
	return args.Bool(0)
}

func (m *MockStore) Clear() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockStore) Epoch() uint64 {
	args := m.Called()
	return args.Get(0).(uint64)
}

func authResponseArg(v any) *session.AuthResponse {
	if v == nil {
		return nil
	}
	return v.(*session.AuthResponse)
}

func userArg(v any) *session.User {
	if v == nil {
		return nil
	}
	return v.(*session.User)
}
