package session_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	session "github.com/localista/go-session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func gateApp(t *testing.T, m *session.Manager, cfg ...session.GateConfig) *fiber.App {
	t.Helper()

	app := fiber.New()
	app.Get("/account", session.RequireVerified(m, cfg...), func(c *fiber.Ctx) error {
		user, ok := session.UserFromCtx(c)
		if !ok {
			return c.SendStatus(fiber.StatusInternalServerError)
		}
		return c.SendString(user.Email)
	})
	return app
}

func TestGateAuthenticatedPassesThrough(t *testing.T) {
	api := &MockIdentityAPI{}
	m, _ := authenticatedManager(t, api)

	app := gateApp(t, m)

	res, err := app.Test(httptest.NewRequest(http.MethodGet, "/account", nil))
	require.NoError(t, err)
	defer res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode)
}

func TestGateAnonymousRedirectsToLogin(t *testing.T) {
	api := &MockIdentityAPI{}
	m, _ := newManager(t, api)
	m.Start(context.Background())

	app := gateApp(t, m)

	res, err := app.Test(httptest.NewRequest(http.MethodGet, "/account", nil))
	require.NoError(t, err)
	defer res.Body.Close()

	assert.Equal(t, http.StatusFound, res.StatusCode)
	assert.Equal(t, "/login", res.Header.Get("Location"))

	// the rejected route is remembered so login can bounce back
	cookies := res.Cookies()
	var found bool
	for _, c := range cookies {
		if c.Name == "rejected_route" {
			found = true
			assert.Equal(t, "/account", c.Value)
		}
	}
	assert.True(t, found, "rejected_route cookie must be set")
}

func TestGateUnverifiedRedirectsToVerification(t *testing.T) {
	api := &MockIdentityAPI{}
	api.On("Login", mock.Anything, mock.Anything).Return(&session.AuthResponse{
		User:         unverifiedUser(),
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
	}, nil)

	m, _ := newManager(t, api)
	m.Start(context.Background())
	_, err := m.Login(context.Background(), session.LoginRequest{
		Email:    "test@example.com",
		Password: "secret123",
	})
	require.NoError(t, err)
	require.Equal(t, session.StateUnverified, m.State())

	app := gateApp(t, m)

	res, err := app.Test(httptest.NewRequest(http.MethodGet, "/account", nil))
	require.NoError(t, err)
	defer res.Body.Close()

	assert.Equal(t, http.StatusFound, res.StatusCode)
	assert.Equal(t, "/verify-email", res.Header.Get("Location"))
}

func TestGateJSONMode(t *testing.T) {
	api := &MockIdentityAPI{}
	m, _ := newManager(t, api)
	m.Start(context.Background())

	app := gateApp(t, m, session.GateConfig{JSON: true})

	res, err := app.Test(httptest.NewRequest(http.MethodGet, "/account", nil))
	require.NoError(t, err)
	defer res.Body.Close()

	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
	assert.Contains(t, res.Header.Get("Content-Type"), "application/json")
}

func TestGateJSONModeUnverified(t *testing.T) {
	api := &MockIdentityAPI{}
	api.On("Login", mock.Anything, mock.Anything).Return(&session.AuthResponse{
		User:         unverifiedUser(),
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
	}, nil)

	m, _ := newManager(t, api)
	m.Start(context.Background())
	_, err := m.Login(context.Background(), session.LoginRequest{
		Email:    "test@example.com",
		Password: "secret123",
	})
	require.NoError(t, err)

	app := gateApp(t, m, session.GateConfig{JSON: true})

	res, err := app.Test(httptest.NewRequest(http.MethodGet, "/account", nil))
	require.NoError(t, err)
	defer res.Body.Close()

	assert.Equal(t, http.StatusForbidden, res.StatusCode)
}

func TestGateOptionalLetsAnonymousThrough(t *testing.T) {
	api := &MockIdentityAPI{}
	m, _ := newManager(t, api)
	m.Start(context.Background())

	app := fiber.New()
	app.Get("/feed", session.RequireVerified(m, session.GateConfig{Optional: true}), func(c *fiber.Ctx) error {
		if _, ok := session.UserFromCtx(c); ok {
			return c.SendString("personalized")
		}
		return c.SendString("generic")
	})

	res, err := app.Test(httptest.NewRequest(http.MethodGet, "/feed", nil))
	require.NoError(t, err)
	defer res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode)
}

func TestGateCustomPaths(t *testing.T) {
	api := &MockIdentityAPI{}
	m, _ := newManager(t, api)
	m.Start(context.Background())

	app := gateApp(t, m, session.GateConfig{LoginPath: "/signin"})

	res, err := app.Test(httptest.NewRequest(http.MethodGet, "/account", nil))
	require.NoError(t, err)
	defer res.Body.Close()
	assert.Equal(t, "/signin", res.Header.Get("Location"))
}

func TestGateNonGETRedirectUsesSeeOther(t *testing.T) {
	api := &MockIdentityAPI{}
	m, _ := newManager(t, api)
	m.Start(context.Background())

	app := fiber.New()
	app.Post("/account", session.RequireVerified(m), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	res, err := app.Test(httptest.NewRequest(http.MethodPost, "/account", nil))
	require.NoError(t, err)
	defer res.Body.Close()
	assert.Equal(t, http.StatusSeeOther, res.StatusCode)
}

func TestRejectedRouteReadsAndClearsCookie(t *testing.T) {
	app := fiber.New()
	app.Get("/login", func(c *fiber.Ctx) error {
		return c.SendString(session.RejectedRoute(c, "rejected_route", "/"))
	})

	req := httptest.NewRequest(http.MethodGet, "/login", nil)
	req.AddCookie(&http.Cookie{Name: "rejected_route", Value: "/account"})

	res, err := app.Test(req)
	require.NoError(t, err)
	defer res.Body.Close()

	buf := make([]byte, 32)
	n, _ := res.Body.Read(buf)
	assert.Equal(t, "/account", string(buf[:n]))

	// fallback when no cookie is present
	res2, err := app.Test(httptest.NewRequest(http.MethodGet, "/login", nil))
	require.NoError(t, err)
	defer res2.Body.Close()
	n2, _ := res2.Body.Read(buf)
	assert.Equal(t, "/", string(buf[:n2]))
}
