package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"golang.org/x/sync/singleflight"
)

// Client talks to the remote identity service. Every outgoing call carries
// the current access token; the three failure shapes (verification required,
// access token expired, everything else) are translated into recovery
// actions so callers only ever see a success or a normalized error.
type Client struct {
	baseURL string
	http    *http.Client
	store   Store
	sink    EventSink
	logger  Logger
	now     func() time.Time
	refresh singleflight.Group
}

var _ IdentityAPI = (*Client)(nil)

type ClientOption func(*Client)

// WithHTTPClient overrides the underlying HTTP client (useful for timeouts
// and tests).
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithClientLogger overrides the logger used for transport noise.
func WithClientLogger(logger Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithClientClock overrides the clock used to stamp published events.
func WithClientClock(now func() time.Time) ClientOption {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

func NewClient(baseURL string, store Store, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
		store:   store,
		sink:    noopEventSink{},
		logger:  defLogger{},
		now:     time.Now,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}

	return c
}

// WithEventSink subscribes sink to the session events this transport
// publishes. The Manager registers itself here.
func (c *Client) WithEventSink(sink EventSink) *Client {
	c.sink = normalizeEventSink(sink)
	return c
}

// callOpts tweaks the failure handling for individual endpoints.
type callOpts struct {
	// login marks the login call, whose verification failure is reported
	// in-band rather than through the broadcast side-channel. Signaling it
	// both ways would double-report the same condition.
	login bool
	// noRetry disables the refresh-and-retry branch (set for the refresh
	// call itself and for the single allowed retry).
	noRetry bool
}

func (c *Client) do(ctx context.Context, method, path string, body, out any, opts callOpts) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "unable to encode request payload")
		}
	}

	status, wire, err := c.roundTrip(ctx, method, path, payload, out)
	if err != nil {
		return err
	}
	if status < http.StatusBadRequest {
		return nil
	}

	werr := normalizeWireError(status, wire)

	if RequiresVerification(werr) && !opts.login {
		if cerr := c.store.Clear(); cerr != nil {
			c.logger.Warn("store clear after verification rejection failed: %v", cerr)
		}
		c.publish(ctx, EventVerificationRequired, "")
		return werr
	}

	if errors.Is(werr, ErrTokenExpired) && !opts.noRetry {
		if rerr := c.refreshTokens(ctx); rerr != nil {
			return rerr
		}
		status, wire, err = c.roundTrip(ctx, method, path, payload, out)
		if err != nil {
			return err
		}
		if status < http.StatusBadRequest {
			return nil
		}
		// Retried at most once; a second rejection is terminal.
		return normalizeWireError(status, wire)
	}

	return werr
}

// roundTrip issues one HTTP exchange: bearer attachment, send, decode.
// A missing access token is not an error at this layer; the call proceeds
// unauthenticated and fails at the server if it must.
func (c *Client) roundTrip(ctx context.Context, method, path string, payload []byte, out any) (int, *wireError, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return 0, nil, goerrors.Wrap(err, goerrors.CategoryInternal, "unable to build request")
	}

	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token, ok := c.store.AccessToken(); ok {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	res, err := c.http.Do(req)
	if err != nil {
		return 0, nil, goerrors.Wrap(err, goerrors.CategoryInternal, "identity service unreachable").
			WithTextCode(TextCodeNetworkError)
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return 0, nil, goerrors.Wrap(err, goerrors.CategoryInternal, "unable to read response").
			WithTextCode(TextCodeNetworkError)
	}

	if res.StatusCode < http.StatusBadRequest {
		if out != nil && len(raw) > 0 {
			if err := json.Unmarshal(raw, out); err != nil {
				return 0, nil, goerrors.Wrap(err, goerrors.CategoryInternal, "unable to decode response")
			}
		}
		return res.StatusCode, nil, nil
	}

	env := &wireEnvelope{}
	if err := json.Unmarshal(raw, env); err != nil || env.Error == nil {
		// Non-JSON failure bodies still normalize; the status is enough.
		return res.StatusCode, nil, nil
	}
	return res.StatusCode, env.Error, nil
}

func (c *Client) publish(ctx context.Context, eventType EventType, email string) {
	event := Event{
		Type:       eventType,
		Email:      email,
		OccurredAt: c.now(),
	}
	if err := c.sink.Record(ctx, event); err != nil {
		c.logger.Warn("event sink record error: %v", err)
	}
}

type userEnvelope struct {
	User *User `json:"user"`
}

type emailRequest struct {
	Email string `json:"email"`
}

// Register creates an account. The response either carries a token pair or
// flags that the email-verification step is pending.
func (c *Client) Register(ctx context.Context, req RegisterRequest) (*AuthResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, invalidPayload(err)
	}
	out := &AuthResponse{}
	if err := c.do(ctx, http.MethodPost, "/auth/register", req, out, callOpts{}); err != nil {
		return nil, err
	}
	return out, nil
}

// Login authenticates with credentials. A verification-required outcome is
// part of the response payload, not an error.
func (c *Client) Login(ctx context.Context, req LoginRequest) (*AuthResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, invalidPayload(err)
	}
	out := &AuthResponse{}
	if err := c.do(ctx, http.MethodPost, "/auth/login", req, out, callOpts{login: true}); err != nil {
		return nil, err
	}
	return out, nil
}

// Me fetches the authoritative profile.
func (c *Client) Me(ctx context.Context) (*User, error) {
	out := &userEnvelope{}
	if err := c.do(ctx, http.MethodGet, "/auth/me", nil, out, callOpts{}); err != nil {
		return nil, err
	}
	if out.User == nil {
		return nil, goerrors.New("identity service returned no user", goerrors.CategoryInternal)
	}
	return out.User, nil
}

func (c *Client) UpdateProfile(ctx context.Context, req UpdateProfileRequest) (*User, error) {
	if err := req.Validate(); err != nil {
		return nil, invalidPayload(err)
	}
	out := &userEnvelope{}
	if err := c.do(ctx, http.MethodPut, "/auth/profile", req, out, callOpts{}); err != nil {
		return nil, err
	}
	if out.User == nil {
		return nil, goerrors.New("identity service returned no user", goerrors.CategoryInternal)
	}
	return out.User, nil
}

func (c *Client) Logout(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/auth/logout", nil, nil, callOpts{})
}

// VerifyEmail redeems an emailed verification token. The service returns a
// fresh session so a user verifying on a new device is logged in directly.
func (c *Client) VerifyEmail(ctx context.Context, token string) (*AuthResponse, error) {
	out := &AuthResponse{}
	path := "/auth/verify-email/" + url.PathEscape(token)
	if err := c.do(ctx, http.MethodGet, path, nil, out, callOpts{}); err != nil {
		return nil, err
	}
	return out, nil
}

// ResendVerification asks for another verification email. The service rate
// limits this; rejections carry the remaining window (RetryAfterSeconds).
func (c *Client) ResendVerification(ctx context.Context, email string) error {
	return c.do(ctx, http.MethodPost, "/auth/resend-verification", emailRequest{Email: email}, nil, callOpts{})
}

func (c *Client) ForgotPassword(ctx context.Context, email string) error {
	return c.do(ctx, http.MethodPost, "/auth/forgot-password", emailRequest{Email: email}, nil, callOpts{})
}

func (c *Client) ResetPassword(ctx context.Context, token string, req ResetPasswordRequest) error {
	if err := req.Validate(); err != nil {
		return invalidPayload(err)
	}
	path := "/auth/reset-password/" + url.PathEscape(token)
	return c.do(ctx, http.MethodPost, path, req, nil, callOpts{})
}

// ChangeEmail points the account at a new address, which starts unverified.
func (c *Client) ChangeEmail(ctx context.Context, newEmail string) (*User, error) {
	body := struct {
		NewEmail string `json:"newEmail"`
	}{NewEmail: newEmail}

	out := &userEnvelope{}
	if err := c.do(ctx, http.MethodPost, "/auth/change-email", body, out, callOpts{}); err != nil {
		return nil, err
	}
	if out.User == nil {
		return nil, goerrors.New("identity service returned no user", goerrors.CategoryInternal)
	}
	return out.User, nil
}

func (c *Client) ChangePassword(ctx context.Context, req ChangePasswordRequest) error {
	if err := req.Validate(); err != nil {
		return invalidPayload(err)
	}
	return c.do(ctx, http.MethodPost, "/auth/change-password", req, nil, callOpts{})
}

func (c *Client) DeleteAccount(ctx context.Context, confirmationText string) error {
	body := struct {
		ConfirmationText string `json:"confirmationText"`
	}{ConfirmationText: confirmationText}
	return c.do(ctx, http.MethodDelete, "/auth/account", body, nil, callOpts{})
}
