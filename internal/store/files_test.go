package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"copytrader/internal/secure"
	"copytrader/models"
)

func testAccount(nickname, role string) *models.Account {
	return &models.Account{
		Nickname:       nickname,
		APIKey:         "abcdefghij1234567890",
		APISecret:      "abcdefghij1234567890abcdefghij",
		URL:            "https://api.bybit.com",
		AccountType:    models.AccountDemo,
		Role:           role,
		CopyMultiplier: 1.5,
		Enabled:        true,
	}
}

func TestNewFileStoreCreatesTree(t *testing.T) {
	dir := t.TempDir()
	_, err := NewFileStore(dir, nil)
	require.NoError(t, err)

	for _, sub := range []string{"accounts", "logs", "reports", "history", "sync_state", "backups"} {
		info, err := os.Stat(filepath.Join(dir, sub))
		require.NoError(t, err, sub)
		require.True(t, info.IsDir())
	}
}

func TestSaveLoadAccountPlain(t *testing.T) {
	s, err := NewFileStore(t.TempDir(), nil)
	require.NoError(t, err)

	account := testAccount("main", models.RoleMaster)
	require.NoError(t, s.SaveAccount(account))

	loaded, err := s.LoadAccount("main")
	require.NoError(t, err)
	require.Equal(t, account.APIKey, loaded.APIKey)
	require.Equal(t, account.CopyMultiplier, loaded.CopyMultiplier)
}

func TestSaveLoadAccountEncrypted(t *testing.T) {
	key, err := secure.GenerateKey()
	require.NoError(t, err)
	enc, err := secure.NewEncryptor(key)
	require.NoError(t, err)

	dir := t.TempDir()
	s, err := NewFileStore(dir, enc)
	require.NoError(t, err)

	account := testAccount("main", models.RoleMaster)
	require.NoError(t, s.SaveAccount(account))

	// Credentials on disk must be sealed.
	raw, err := os.ReadFile(filepath.Join(dir, "accounts", "main.json"))
	require.NoError(t, err)
	var onDisk models.Account
	require.NoError(t, json.Unmarshal(raw, &onDisk))
	require.True(t, strings.HasPrefix(onDisk.APIKey, "enc:v1:"))
	require.NotContains(t, string(raw), account.APISecret)

	loaded, err := s.LoadAccount("main")
	require.NoError(t, err)
	require.Equal(t, account.APIKey, loaded.APIKey)
	require.Equal(t, account.APISecret, loaded.APISecret)
}

func TestLoadAccountEncryptedWithoutKey(t *testing.T) {
	key, _ := secure.GenerateKey()
	enc, _ := secure.NewEncryptor(key)

	dir := t.TempDir()
	s, err := NewFileStore(dir, enc)
	require.NoError(t, err)
	require.NoError(t, s.SaveAccount(testAccount("main", models.RoleMaster)))

	noKey, err := NewFileStore(dir, nil)
	require.NoError(t, err)
	_, err = noKey.LoadAccount("main")
	require.Error(t, err)
}

func TestLoadAccountsSkipsBackups(t *testing.T) {
	s, err := NewFileStore(t.TempDir(), nil)
	require.NoError(t, err)

	require.NoError(t, s.SaveAccount(testAccount("master1", models.RoleMaster)))
	require.NoError(t, s.SaveAccount(testAccount("slave1", models.RoleSlave)))
	// A second save leaves a timestamped backup behind.
	require.NoError(t, s.SaveAccount(testAccount("master1", models.RoleMaster)))

	accounts, err := s.LoadAccounts()
	require.NoError(t, err)
	require.Len(t, accounts, 2)
	require.Contains(t, accounts, "master1")
	require.Contains(t, accounts, "slave1")
}

func TestLoadAccountNotFound(t *testing.T) {
	s, err := NewFileStore(t.TempDir(), nil)
	require.NoError(t, err)

	_, err = s.LoadAccount("missing")
	require.ErrorIs(t, err, ErrAccountNotFound)
}

func TestResetDaily(t *testing.T) {
	s, err := NewFileStore(t.TempDir(), nil)
	require.NoError(t, err)

	account := testAccount("slave1", models.RoleSlave)
	peak := 1500.0
	start := 1400.0
	account.MaxBalanceToday = &peak
	account.DayStartBalance = &start
	account.PnLToday = 42
	account.DrawdownAlertedLevels = []float64{5, 10}
	require.NoError(t, s.SaveAccount(account))

	require.NoError(t, s.ResetDaily("slave1"))

	loaded, err := s.LoadAccount("slave1")
	require.NoError(t, err)
	require.Nil(t, loaded.MaxBalanceToday)
	require.Nil(t, loaded.DayStartBalance)
	require.Zero(t, loaded.PnLToday)
	require.Empty(t, loaded.DrawdownAlertedLevels)
}

func TestSyncStateRoundtrip(t *testing.T) {
	s, err := NewFileStore(t.TempDir(), nil)
	require.NoError(t, err)

	// Unknown pair yields a zero state, not an error.
	state, err := s.LoadSyncState("m", "s")
	require.NoError(t, err)
	require.Equal(t, "m", state.Master)
	require.True(t, state.LastSync.IsZero())

	state.SyncedPositions = 7
	state.LastSync = time.Now().UTC()
	require.NoError(t, s.SaveSyncState(state))

	loaded, err := s.LoadSyncState("m", "s")
	require.NoError(t, err)
	require.Equal(t, 7, loaded.SyncedPositions)
	require.False(t, loaded.LastUpdated.IsZero())
}

func TestBalanceHistoryRoundtrip(t *testing.T) {
	s, err := NewFileStore(t.TempDir(), nil)
	require.NoError(t, err)

	empty, err := s.LoadBalanceHistory("slave1")
	require.NoError(t, err)
	require.Empty(t, empty)

	entries := []models.BalanceEntry{
		{Timestamp: time.Now().UTC(), Balance: 1000, Equity: 1001},
	}
	require.NoError(t, s.SaveBalanceHistory("slave1", entries))

	loaded, err := s.LoadBalanceHistory("slave1")
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	require.Equal(t, 1000.0, loaded[0].Balance)
}

func TestAuthUsersRoundtrip(t *testing.T) {
	s, err := NewFileStore(t.TempDir(), nil)
	require.NoError(t, err)

	users, err := s.LoadAuthUsers()
	require.NoError(t, err)
	require.Empty(t, users)

	saved := []AuthUser{NewAuthUser(42, "alice", "admin", nil)}
	require.NoError(t, s.SaveAuthUsers(saved))

	users, err = s.LoadAuthUsers()
	require.NoError(t, err)
	require.Len(t, users, 1)
	require.Equal(t, int64(42), users[0].UserID)
	require.Equal(t, "admin", users[0].Role)
}

func TestBackupAndRestore(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir, nil)
	require.NoError(t, err)

	account := testAccount("main", models.RoleMaster)
	require.NoError(t, s.SaveAccount(account))

	path, err := s.Backup("snap")
	require.NoError(t, err)
	require.FileExists(t, filepath.Join(path, "manifest.json"))
	require.FileExists(t, filepath.Join(path, "accounts", "main.json"))

	// Wipe the live config, then restore.
	require.NoError(t, os.Remove(filepath.Join(dir, "accounts", "main.json")))
	_, err = s.LoadAccount("main")
	require.Error(t, err)

	require.NoError(t, s.Restore("snap"))
	loaded, err := s.LoadAccount("main")
	require.NoError(t, err)
	require.Equal(t, "main", loaded.Nickname)
}
