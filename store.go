package session

import (
	"encoding/json"
	"sync"

	goerrors "github.com/goliatone/go-errors"
)

// The four logical keys of the persisted session state. Each may live in
// either tier; the remember flag is always durable so it stays legible after
// a restart even when the tokens themselves were ephemeral.
const (
	keyAccessToken  = "access_token"
	keyRefreshToken = "refresh_token"
	keyUser         = "user"
	keyRemember     = "remember"
)

// TokenStore persists the token pair and cached user across a durable and an
// ephemeral tier, selected by the remember-me decision recorded at login.
type TokenStore struct {
	mu        sync.Mutex
	durable   Storage
	ephemeral Storage
	epoch     uint64
}

var _ Store = (*TokenStore)(nil)

func NewTokenStore(durable, ephemeral Storage) *TokenStore {
	return &TokenStore{durable: durable, ephemeral: ephemeral}
}

// SaveTokens writes the pair as a unit to the tier selected by remember and
// records the remember decision durably. Token keys in the other tier are
// removed so a later read-through can never stitch together halves of two
// different sessions.
func (s *TokenStore) SaveTokens(pair TokenPair, remember bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tier, other := s.tiersLocked(remember)

	if err := s.rememberLocked(remember); err != nil {
		return err
	}
	if err := tier.Set(keyAccessToken, pair.AccessToken); err != nil {
		return err
	}
	if err := tier.Set(keyRefreshToken, pair.RefreshToken); err != nil {
		return err
	}
	if err := other.Delete(keyAccessToken); err != nil {
		return err
	}
	return other.Delete(keyRefreshToken)
}

// SaveUser caches the user record in whichever tier the last remember
// decision selected.
func (s *TokenStore) SaveUser(user *User) error {
	if user == nil {
		return goerrors.New("user must not be nil", goerrors.CategoryBadInput)
	}

	raw, err := json.Marshal(user)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "unable to encode user record")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tier, other := s.tiersLocked(s.rememberedLocked())
	if err := tier.Set(keyUser, string(raw)); err != nil {
		return err
	}
	return other.Delete(keyUser)
}

// AccessToken reads through both tiers, durable first.
func (s *TokenStore) AccessToken() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readThroughLocked(keyAccessToken)
}

// RefreshToken reads through both tiers, durable first.
func (s *TokenStore) RefreshToken() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readThroughLocked(keyRefreshToken)
}

// User returns the cached record, or nil when it is missing or corrupt.
// Corrupt data is treated as absence, never surfaced.
func (s *TokenStore) User() *User {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, ok := s.readThroughLocked(keyUser)
	if !ok || raw == "" {
		return nil
	}

	user := &User{}
	if err := json.Unmarshal([]byte(raw), user); err != nil {
		return nil
	}
	return user
}

// Remember reports the durably recorded remember-me decision.
func (s *TokenStore) Remember() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rememberedLocked()
}

// Clear removes all four keys from both tiers unconditionally and advances
// the epoch so in-flight writes from the previous session generation can be
// discarded. Logout must never leave residue in either tier.
func (s *TokenStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.epoch++

	var first error
	for _, tier := range []Storage{s.durable, s.ephemeral} {
		for _, key := range []string{keyAccessToken, keyRefreshToken, keyUser, keyRemember} {
			if err := tier.Delete(key); err != nil && first == nil {
				first = err
			}
		}
	}
	return first
}

// Epoch identifies the current session generation; Clear advances it.
func (s *TokenStore) Epoch() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.epoch
}

func (s *TokenStore) tiersLocked(remember bool) (tier, other Storage) {
	if remember {
		return s.durable, s.ephemeral
	}
	return s.ephemeral, s.durable
}

func (s *TokenStore) rememberedLocked() bool {
	v, ok := s.durable.Get(keyRemember)
	return ok && v == "true"
}

func (s *TokenStore) rememberLocked(remember bool) error {
	if remember {
		return s.durable.Set(keyRemember, "true")
	}
	return s.durable.Set(keyRemember, "false")
}

func (s *TokenStore) readThroughLocked(key string) (string, bool) {
	if v, ok := s.durable.Get(key); ok && v != "" {
		return v, true
	}
	if v, ok := s.ephemeral.Get(key); ok && v != "" {
		return v, true
	}
	return "", false
}
