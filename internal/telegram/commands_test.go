package telegram

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"copytrader/internal/store"
	"copytrader/models"
)

func newTestBot(t *testing.T, accounts map[string]*models.Account) *Bot {
	t.Helper()
	fileStore, err := store.NewFileStore(t.TempDir(), nil)
	require.NoError(t, err)

	for _, account := range accounts {
		require.NoError(t, fileStore.SaveAccount(account))
	}

	return &Bot{
		store:    fileStore,
		accounts: accounts,
		logger:   zerolog.Nop(),
	}
}

func TestSetStopLossTiers(t *testing.T) {
	account := &models.Account{
		Nickname:    "slave1",
		Role:        models.RoleSlave,
		AccountType: models.AccountDemo,
		Enabled:     true,
	}
	b := newTestBot(t, map[string]*models.Account{"slave1": account})

	reply := b.setStopLossTiers("slave1", []string{"900", "800.5"})
	require.Contains(t, reply, "✅")
	require.Equal(t, []float64{900, 800.5}, account.SLLossTiersUSD)

	reloaded, err := b.store.LoadAccount("slave1")
	require.NoError(t, err)
	require.Equal(t, []float64{900, 800.5}, reloaded.SLLossTiersUSD, "tiers must be persisted")
}

func TestSetStopLossTiersClears(t *testing.T) {
	account := &models.Account{
		Nickname:       "slave1",
		Role:           models.RoleSlave,
		AccountType:    models.AccountDemo,
		SLLossTiersUSD: []float64{900},
		Enabled:        true,
	}
	b := newTestBot(t, map[string]*models.Account{"slave1": account})

	reply := b.setStopLossTiers("slave1", nil)
	require.Contains(t, reply, "cleared")
	require.Empty(t, account.SLLossTiersUSD)

	reloaded, err := b.store.LoadAccount("slave1")
	require.NoError(t, err)
	require.Empty(t, reloaded.SLLossTiersUSD)
}

func TestSetStopLossTiersRejectsBadInput(t *testing.T) {
	account := &models.Account{
		Nickname:       "slave1",
		Role:           models.RoleSlave,
		AccountType:    models.AccountDemo,
		SLLossTiersUSD: []float64{900},
		Enabled:        true,
	}
	b := newTestBot(t, map[string]*models.Account{"slave1": account})

	require.Contains(t, b.setStopLossTiers("ghost", []string{"100"}), "Unknown account")
	require.Contains(t, b.setStopLossTiers("slave1", []string{"abc"}), "Invalid tier")
	require.Contains(t, b.setStopLossTiers("slave1", []string{"-5"}), "Invalid tier")
	require.Contains(t, b.setStopLossTiers("slave1", []string{"900", "0"}), "Invalid tier")

	require.Equal(t, []float64{900}, account.SLLossTiersUSD, "rejected input must not change tiers")
}
