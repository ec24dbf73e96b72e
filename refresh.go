package session

import (
	"context"
	"net/http"
)

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// Refresh forces a token rotation outside the automatic retry path. Hosts
// rarely need this; the transport rotates on its own when a call fails.
func (c *Client) Refresh(ctx context.Context) error {
	return c.refreshTokens(ctx)
}

// refreshTokens mints a new token pair using the stored refresh token.
// Concurrent callers share a single in-flight refresh instead of storming
// the identity service with one refresh per failing call.
func (c *Client) refreshTokens(ctx context.Context) error {
	_, err, _ := c.refresh.Do("refresh", func() (any, error) {
		return nil, c.doRefresh(ctx)
	})
	return err
}

func (c *Client) doRefresh(ctx context.Context) error {
	refreshToken, ok := c.store.RefreshToken()
	if !ok {
		c.clearStore()
		c.publish(ctx, EventTokenExpired, "")
		return ErrNoRefreshToken
	}

	// The new pair must land in the same tier the session was established
	// with, and only if no logout advanced the epoch while we were away.
	epoch := c.store.Epoch()
	remember := c.store.Remember()

	out := &AuthResponse{}
	err := c.do(ctx, http.MethodPost, "/auth/refresh", refreshRequest{RefreshToken: refreshToken}, out, callOpts{noRetry: true})
	if err != nil {
		c.logger.Warn("token refresh failed: %v", err)
		c.clearStore()
		c.publish(ctx, EventTokenExpired, "")
		return ErrRefreshTokenExpired
	}

	if c.store.Epoch() != epoch {
		// A logout raced the refresh; the minted pair belongs to a session
		// that no longer exists. Discard the completion.
		return ErrNoRefreshToken
	}

	if err := c.store.SaveTokens(out.Tokens(), remember); err != nil {
		return err
	}
	if out.User != nil {
		if err := c.store.SaveUser(out.User); err != nil {
			c.logger.Warn("unable to cache refreshed user record: %v", err)
		}
	}
	return nil
}

func (c *Client) clearStore() {
	if err := c.store.Clear(); err != nil {
		c.logger.Warn("token store clear failed: %v", err)
	}
}
