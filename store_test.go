package session_test

import (
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	session "github.com/localista/go-session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMemoryStore(t *testing.T) (*session.TokenStore, *session.MemoryStorage, *session.MemoryStorage) {
	t.Helper()
	durable := session.NewMemoryStorage()
	ephemeral := session.NewMemoryStorage()
	return session.NewTokenStore(durable, ephemeral), durable, ephemeral
}

func TestTokenStoreSaveTokensRemembered(t *testing.T) {
	store, durable, ephemeral := newMemoryStore(t)

	pair := session.TokenPair{AccessToken: "access-1", RefreshToken: "refresh-1"}
	require.NoError(t, store.SaveTokens(pair, true))

	access, ok := durable.Get("access_token")
	assert.True(t, ok)
	assert.Equal(t, "access-1", access)

	refresh, ok := durable.Get("refresh_token")
	assert.True(t, ok)
	assert.Equal(t, "refresh-1", refresh)

	_, ok = ephemeral.Get("access_token")
	assert.False(t, ok)
	_, ok = ephemeral.Get("refresh_token")
	assert.False(t, ok)

	assert.True(t, store.Remember())
}

func TestTokenStoreSaveTokensEphemeral(t *testing.T) {
	store, durable, ephemeral := newMemoryStore(t)

	pair := session.TokenPair{AccessToken: "access-1", RefreshToken: "refresh-1"}
	require.NoError(t, store.SaveTokens(pair, false))

	access, ok := ephemeral.Get("access_token")
	assert.True(t, ok)
	assert.Equal(t, "access-1", access)

	_, ok = durable.Get("access_token")
	assert.False(t, ok)

	// the remember decision itself is always durable
	flag, ok := durable.Get("remember")
	assert.True(t, ok)
	assert.Equal(t, "false", flag)
	assert.False(t, store.Remember())
}

func TestTokenStoreSaveTokensSwitchesTiers(t *testing.T) {
	store, durable, ephemeral := newMemoryStore(t)

	require.NoError(t, store.SaveTokens(session.TokenPair{AccessToken: "a1", RefreshToken: "r1"}, true))
	require.NoError(t, store.SaveTokens(session.TokenPair{AccessToken: "a2", RefreshToken: "r2"}, false))

	// a later read must never stitch together halves of two sessions
	_, ok := durable.Get("access_token")
	assert.False(t, ok)
	_, ok = durable.Get("refresh_token")
	assert.False(t, ok)

	access, _ := store.AccessToken()
	refresh, _ := store.RefreshToken()
	assert.Equal(t, "a2", access)
	assert.Equal(t, "r2", refresh)

	_, ok = ephemeral.Get("access_token")
	assert.True(t, ok)
}

func TestTokenStoreUserRoundTrip(t *testing.T) {
	store, _, _ := newMemoryStore(t)

	require.NoError(t, store.SaveTokens(session.TokenPair{AccessToken: "a", RefreshToken: "r"}, true))

	user := &session.User{
		ID:            uuid.New(),
		Email:         "test@example.com",
		Name:          "Test User",
		EmailVerified: true,
	}
	require.NoError(t, store.SaveUser(user))

	got := store.User()
	require.NotNil(t, got)
	assert.Equal(t, user.ID, got.ID)
	assert.Equal(t, user.Email, got.Email)
	assert.True(t, got.EmailVerified)
}

func TestTokenStoreUserFollowsRememberTier(t *testing.T) {
	store, durable, ephemeral := newMemoryStore(t)

	require.NoError(t, store.SaveTokens(session.TokenPair{AccessToken: "a", RefreshToken: "r"}, false))
	require.NoError(t, store.SaveUser(&session.User{Email: "test@example.com"}))

	_, ok := durable.Get("user")
	assert.False(t, ok)
	_, ok = ephemeral.Get("user")
	assert.True(t, ok)
}

func TestTokenStoreSaveUserNil(t *testing.T) {
	store, _, _ := newMemoryStore(t)
	assert.Error(t, store.SaveUser(nil))
}

func TestTokenStoreCorruptUserTreatedAsMissing(t *testing.T) {
	store, durable, _ := newMemoryStore(t)

	require.NoError(t, durable.Set("user", "{not json"))
	assert.Nil(t, store.User())
}

func TestTokenStoreClearLeavesNoResidue(t *testing.T) {
	store, durable, ephemeral := newMemoryStore(t)

	require.NoError(t, store.SaveTokens(session.TokenPair{AccessToken: "a", RefreshToken: "r"}, true))
	require.NoError(t, store.SaveUser(&session.User{Email: "test@example.com"}))

	before := store.Epoch()
	require.NoError(t, store.Clear())
	assert.Equal(t, before+1, store.Epoch())

	_, ok := store.AccessToken()
	assert.False(t, ok)
	_, ok = store.RefreshToken()
	assert.False(t, ok)
	assert.Nil(t, store.User())
	assert.False(t, store.Remember())

	for _, key := range []string{"access_token", "refresh_token", "user", "remember"} {
		_, ok := durable.Get(key)
		assert.False(t, ok, "durable residue for %s", key)
		_, ok = ephemeral.Get(key)
		assert.False(t, ok, "ephemeral residue for %s", key)
	}
}

func TestTokenStoreReadThroughPrefersDurable(t *testing.T) {
	store, durable, ephemeral := newMemoryStore(t)

	require.NoError(t, durable.Set("access_token", "durable-token"))
	require.NoError(t, ephemeral.Set("access_token", "ephemeral-token"))

	access, ok := store.AccessToken()
	assert.True(t, ok)
	assert.Equal(t, "durable-token", access)
}

func TestTokenStoreEmptyValueTreatedAsMissing(t *testing.T) {
	store, durable, _ := newMemoryStore(t)

	require.NoError(t, durable.Set("access_token", ""))

	_, ok := store.AccessToken()
	assert.False(t, ok)
}

func TestTokenStoreWithFileStorage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")

	durable, err := session.NewFileStorage(path)
	require.NoError(t, err)

	store := session.NewTokenStore(durable, session.NewMemoryStorage())
	require.NoError(t, store.SaveTokens(session.TokenPair{AccessToken: "a", RefreshToken: "r"}, true))
	require.NoError(t, store.SaveUser(&session.User{Email: "test@example.com", EmailVerified: true}))

	// a fresh storage over the same file sees the persisted session
	reloaded, err := session.NewFileStorage(path)
	require.NoError(t, err)

	restored := session.NewTokenStore(reloaded, session.NewMemoryStorage())
	access, ok := restored.AccessToken()
	assert.True(t, ok)
	assert.Equal(t, "a", access)
	assert.True(t, restored.Remember())

	user := restored.User()
	require.NotNil(t, user)
	assert.Equal(t, "test@example.com", user.Email)
}
