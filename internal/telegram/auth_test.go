package telegram

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"copytrader/internal/secure"
	"copytrader/internal/store"
)

func newTestAuth(t *testing.T, allowed []int64) *Auth {
	t.Helper()
	fileStore, err := store.NewFileStore(t.TempDir(), nil)
	require.NoError(t, err)

	auth, err := NewAuth(fileStore, secure.NewRateLimiter(), allowed)
	require.NoError(t, err)
	return auth
}

func TestEnvChatIDsAreAdmins(t *testing.T) {
	auth := newTestAuth(t, []int64{100})

	require.True(t, auth.IsAuthorized(100))
	require.True(t, auth.IsAdmin(100))
	require.True(t, auth.HasPermission(100, PermTradeNotifications))

	require.False(t, auth.IsAuthorized(200))
	require.False(t, auth.IsAdmin(200))
}

func TestAddRemoveUser(t *testing.T) {
	auth := newTestAuth(t, nil)

	require.NoError(t, auth.AddUser(200, "bob", RoleUser, nil))
	require.True(t, auth.IsAuthorized(200))
	require.False(t, auth.IsAdmin(200))

	require.NoError(t, auth.RemoveUser(200))
	require.False(t, auth.IsAuthorized(200))

	require.Error(t, auth.RemoveUser(200), "removing twice must fail")
}

func TestAddUserRejectsBadRole(t *testing.T) {
	auth := newTestAuth(t, nil)
	require.Error(t, auth.AddUser(200, "bob", "owner", nil))
}

func TestPermissions(t *testing.T) {
	auth := newTestAuth(t, nil)

	require.NoError(t, auth.AddUser(200, "bob", RoleUser, []string{PermTradeNotifications}))
	require.NoError(t, auth.AddUser(300, "carol", RoleUser, nil))
	require.NoError(t, auth.AddUser(400, "dave", RoleAdmin, nil))

	require.True(t, auth.HasPermission(200, PermTradeNotifications))
	require.False(t, auth.HasPermission(300, PermTradeNotifications))
	require.True(t, auth.HasPermission(400, PermTradeNotifications), "admins carry every permission")
}

func TestUsersPersistAcrossRestart(t *testing.T) {
	dir := t.TempDir()
	fileStore, err := store.NewFileStore(dir, nil)
	require.NoError(t, err)

	auth, err := NewAuth(fileStore, secure.NewRateLimiter(), nil)
	require.NoError(t, err)
	require.NoError(t, auth.AddUser(200, "bob", RoleUser, nil))

	reloaded, err := NewAuth(fileStore, secure.NewRateLimiter(), nil)
	require.NoError(t, err)
	require.True(t, reloaded.IsAuthorized(200))
}

func TestRecipients(t *testing.T) {
	auth := newTestAuth(t, []int64{100})

	require.NoError(t, auth.AddUser(200, "bob", RoleUser, []string{PermTradeNotifications}))
	require.NoError(t, auth.AddUser(300, "carol", RoleUser, nil))
	require.NoError(t, auth.AddUser(400, "dave", RoleAdmin, nil))

	adminsOnly := auth.Recipients("")
	require.ElementsMatch(t, []int64{100, 400}, adminsOnly)

	withTrades := auth.Recipients(PermTradeNotifications)
	require.ElementsMatch(t, []int64{100, 200, 400}, withTrades)
}

func TestCheckCommandRateLimits(t *testing.T) {
	auth := newTestAuth(t, []int64{100})

	var err error
	for i := 0; i < 30; i++ {
		err = auth.CheckCommand(100)
		if err != nil {
			break
		}
	}
	require.True(t, errors.Is(err, secure.ErrRateLimited))
}
