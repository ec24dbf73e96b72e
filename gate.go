package session

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-print"
)

// ContextKey is where the gate stores the current user for downstream
// handlers.
const ContextKey = "session_user"

// GateConfig controls how the verification gate holds back requests.
type GateConfig struct {
	// LoginPath receives anonymous visitors (HTML mode).
	LoginPath string
	// VerifyPath receives sessions stuck behind email verification.
	VerifyPath string
	// RejectedRouteKey names the cookie capturing the route a visitor was
	// bounced from, so login can send them back.
	RejectedRouteKey string
	// JSON rejects with an error envelope instead of redirecting.
	JSON bool
	// Optional lets unauthenticated requests through; the route handles the
	// missing user itself.
	Optional bool
	Logger   Logger
}

func (g GateConfig) withDefaults() GateConfig {
	if g.LoginPath == "" {
		g.LoginPath = "/login"
	}
	if g.VerifyPath == "" {
		g.VerifyPath = "/verify-email"
	}
	if g.RejectedRouteKey == "" {
		g.RejectedRouteKey = "rejected_route"
	}
	if g.Logger == nil {
		g.Logger = defLogger{}
	}
	return g
}

// RequireVerified guards protected views. Only an authenticated session with
// a verified email passes; an unverified session is parked at the
// verification flow, everyone else goes to login.
func RequireVerified(m *Manager, cfg ...GateConfig) fiber.Handler {
	conf := GateConfig{}
	if len(cfg) > 0 {
		conf = cfg[0]
	}
	conf = conf.withDefaults()

	return func(c *fiber.Ctx) error {
		snap := m.Snapshot()

		switch snap.State {
		case StateAuthenticated:
			c.Locals(ContextKey, snap.User)
			return c.Next()

		case StateUnverified:
			if conf.Optional {
				return c.Next()
			}
			conf.Logger.Debug("gate held unverified session: %s", print.MaybePrettyJSON(map[string]any{
				"path": c.OriginalURL(),
			}))
			if conf.JSON {
				return rejectJSON(c, fiber.StatusForbidden, TextCodeEmailNotVerified, ErrEmailNotVerified.Message)
			}
			return c.Redirect(conf.VerifyPath, redirectStatus(c))

		default:
			if conf.Optional {
				return c.Next()
			}
			conf.Logger.Debug("gate rejected request: %s", print.MaybePrettyJSON(map[string]any{
				"path":  c.OriginalURL(),
				"state": string(snap.State),
			}))
			if conf.JSON {
				return rejectJSON(c, fiber.StatusUnauthorized, TextCodeSessionRequired, ErrSessionRequired.Message)
			}
			setRejectedRoute(c, conf.RejectedRouteKey)
			return c.Redirect(conf.LoginPath, redirectStatus(c))
		}
	}
}

// UserFromCtx retrieves the user the gate stored for this request.
func UserFromCtx(c *fiber.Ctx) (*User, bool) {
	user, ok := c.Locals(ContextKey).(*User)
	if !ok || user == nil {
		return nil, false
	}
	return user, true
}

// RejectedRoute returns (and clears) the route the visitor was bounced from,
// or def when none was captured.
func RejectedRoute(c *fiber.Ctx, key, def string) string {
	r := c.Cookies(key)
	if r == "" {
		return def
	}
	expireCookie(c, key)
	return r
}

func setRejectedRoute(c *fiber.Ctx, key string) {
	c.Cookie(&fiber.Cookie{
		Name:     key,
		Value:    c.OriginalURL(),
		Expires:  time.Now().Add(5 * time.Minute),
		HTTPOnly: true,
		Secure:   true,
		SameSite: "Lax",
	})
}

func expireCookie(c *fiber.Ctx, name string) {
	c.Cookie(&fiber.Cookie{
		Name:     name,
		Value:    "",
		Expires:  time.Now().Add(-time.Hour * 24 * 365),
		HTTPOnly: true,
		Secure:   true,
		SameSite: "Lax",
	})
}

func rejectJSON(c *fiber.Ctx, status int, code, message string) error {
	return c.Status(status).JSON(fiber.Map{
		"error": fiber.Map{
			"message": message,
			"code":    code,
		},
	})
}

func redirectStatus(c *fiber.Ctx) int {
	if c.Method() == fiber.MethodGet {
		return http.StatusFound
	}
	return http.StatusSeeOther
}
