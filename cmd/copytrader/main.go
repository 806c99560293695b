package main

import (
	"context"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"copytrader/internal/bybit"
	"copytrader/internal/config"
	"copytrader/internal/database"
	"copytrader/internal/logging"
	"copytrader/internal/report"
	"copytrader/internal/secure"
	"copytrader/internal/store"
	"copytrader/internal/sync"
	"copytrader/internal/telegram"
	"copytrader/models"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logManager, err := logging.New(cfg.DataDir, cfg.LogLevel)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize logging")
	}
	defer logManager.Close()
	logger := logManager.Component("main")

	var encryptor *secure.Encryptor
	if cfg.EncryptionKey != "" {
		encryptor, err = secure.NewEncryptor(cfg.EncryptionKey)
		if err != nil {
			logger.Fatal().Err(err).Msg("Invalid encryption key")
		}
	} else {
		logger.Warn().Msg("COPYTRADER_ENCRYPTION_KEY not set, credentials are stored in plain text")
	}

	fileStore, err := store.NewFileStore(cfg.DataDir, encryptor)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize data directory")
	}

	var db *database.DB
	if cfg.DatabaseConfigured() {
		db, err = database.New(database.ConnectionParams{
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			DBName:   cfg.Database.Name,
			SSLMode:  cfg.Database.SSLMode,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to connect to database")
		}
		defer db.Close()
		logger.Info().Msg("Connected to Postgres")
	}

	accounts, err := fileStore.LoadAccounts()
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load accounts")
	}
	if len(accounts) == 0 {
		logger.Fatal().Str("dir", cfg.DataDir).Msg("No account configs found under accounts/")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	clients := connectClients(ctx, cfg, accounts, logger)

	engines := buildEngines(cfg, accounts, clients, fileStore, db, logger)
	if len(engines) == 0 {
		logger.Fatal().Msg("No master/slave pairs could be built")
	}

	reports := report.NewManager(fileStore, db)

	var bot *telegram.Bot
	if cfg.Telegram.BotToken != "" {
		auth, err := telegram.NewAuth(fileStore, secure.NewRateLimiter(), cfg.Telegram.AllowedChatIDs)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to initialize Telegram auth")
		}
		bot, err = telegram.New(cfg.Telegram.BotToken, auth, fileStore, reports, clients, accounts, engines)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to start Telegram bot")
		}
		for _, engine := range engines {
			engine.Notify = bot.NotifyTrades
		}
		go func() {
			if err := bot.Run(ctx); err != nil && ctx.Err() == nil {
				logger.Error().Err(err).Msg("Telegram bot stopped unexpectedly")
			}
		}()
	} else {
		logger.Warn().Msg("TELEGRAM_BOT_TOKEN not set, running without the control bot")
	}

	logger.Info().
		Int("accounts", len(accounts)).
		Int("pairs", len(engines)).
		Dur("interval", cfg.SyncInterval).
		Msg("Copy trader started")
	if bot != nil {
		bot.NotifyAdmins("🚀 Copy trader started")
	}

	runLoop(ctx, cfg, accounts, clients, engines, fileStore, reports, bot, logger)

	logger.Info().Msg("Copy trader stopped")
	if bot != nil {
		bot.NotifyAdmins("🔻 Copy trader stopped")
	}
}

// connectClients builds an API client per enabled account and drops accounts
// whose credentials fail the health check.
func connectClients(ctx context.Context, cfg *config.Config, accounts map[string]*models.Account, logger zerolog.Logger) map[string]*bybit.Client {
	clients := make(map[string]*bybit.Client, len(accounts))

	for _, nickname := range sortedNicknames(accounts) {
		account := accounts[nickname]
		if !account.Enabled {
			logger.Info().Str("account", account.Nickname).Msg("Account disabled, skipping")
			continue
		}

		client := bybit.NewClient(account, bybit.ClientOptions{
			RequestTimeout: cfg.RequestTimeout,
			RequestsPerSec: cfg.RequestsPerSec,
		})

		checkCtx, cancel := context.WithTimeout(ctx, cfg.RequestTimeout)
		err := client.HealthCheck(checkCtx)
		cancel()
		if err != nil {
			logger.Error().Err(err).Str("account", account.Nickname).Msg("Health check failed, account excluded")
			continue
		}

		clients[account.Nickname] = client
	}

	return clients
}

// buildEngines pairs every healthy slave with the master account. Exactly
// one enabled master is expected; with several, the first by nickname wins.
func buildEngines(cfg *config.Config, accounts map[string]*models.Account, clients map[string]*bybit.Client, fileStore *store.FileStore, db *database.DB, logger zerolog.Logger) []*sync.Engine {
	var masters []string
	for nickname, account := range accounts {
		if account.IsMaster() && clients[nickname] != nil {
			masters = append(masters, nickname)
		}
	}
	if len(masters) == 0 {
		logger.Error().Msg("No healthy master account")
		return nil
	}
	sort.Strings(masters)
	if len(masters) > 1 {
		logger.Warn().Strs("masters", masters).Msg("Multiple master accounts, using the first")
	}
	master := masters[0]

	risk := sync.NewRiskManager(sync.RiskOptions{
		MaxPositionSize: cfg.MaxPositionSize,
		RiskPercentage:  cfg.RiskPercentage,
		MaxDrawdownPct:  cfg.MaxDrawdown,
	})

	var engines []*sync.Engine
	for _, nickname := range sortedNicknames(accounts) {
		account := accounts[nickname]
		if !account.IsSlave() || clients[nickname] == nil {
			continue
		}
		engine, err := sync.NewEngine(clients[master], clients[nickname], account, fileStore, db, risk)
		if err != nil {
			logger.Error().Err(err).Str("slave", account.Nickname).Msg("Failed to build sync engine")
			continue
		}
		engines = append(engines, engine)
		logger.Info().Str("master", master).Str("slave", account.Nickname).Msg("Sync pair ready")
	}

	return engines
}

// runLoop drives sync cycles until the context is cancelled, pausing after
// failures and rolling the day over at UTC midnight.
func runLoop(ctx context.Context, cfg *config.Config, accounts map[string]*models.Account, clients map[string]*bybit.Client, engines []*sync.Engine, fileStore *store.FileStore, reports *report.Manager, bot *telegram.Bot, logger zerolog.Logger) {
	ticker := time.NewTicker(cfg.SyncInterval)
	defer ticker.Stop()

	day := time.Now().UTC().Format(time.DateOnly)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if today := time.Now().UTC().Format(time.DateOnly); today != day {
			day = today
			rollOverDay(accounts, engines, fileStore, reports, logger)
		}

		for _, engine := range engines {
			result, err := engine.RunCycle(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				logger.Error().Err(err).
					Str("master", engine.Master()).
					Str("slave", engine.Slave()).
					Msg("Sync cycle failed")
				if bot != nil {
					bot.NotifyAdmins("❌ Sync " + engine.Master() + " → " + engine.Slave() + " failed: " + err.Error())
				}
				pause(ctx, cfg.ErrorPause)
				continue
			}

			if err := reports.RecordBalance(engine.Slave(), result.SlaveBalance, result.SlaveBalance); err != nil {
				logger.Warn().Err(err).Str("account", engine.Slave()).Msg("Failed to record balance")
			}
		}

		recordMasterBalances(ctx, accounts, clients, reports, logger)
	}
}

// rollOverDay resets per-day tracking, generates the daily reports and takes
// a backup.
func rollOverDay(accounts map[string]*models.Account, engines []*sync.Engine, fileStore *store.FileStore, reports *report.Manager, logger zerolog.Logger) {
	logger.Info().Msg("UTC day rollover")

	for _, account := range accounts {
		daily, err := reports.DailyReport(account.Nickname)
		if err == nil {
			if err := reports.SaveDaily(daily); err != nil {
				logger.Warn().Err(err).Str("account", account.Nickname).Msg("Failed to save daily report")
			}
		}

		account.MaxBalanceToday = nil
		account.MinBalanceToday = nil
		account.DayStartBalance = nil
		account.PnLToday = 0
		account.DrawdownAlertedLevels = nil
		if err := fileStore.SaveAccount(account); err != nil {
			logger.Warn().Err(err).Str("account", account.Nickname).Msg("Failed to reset daily tracking")
		}
	}

	if summary, err := reports.Summary(accounts); err == nil {
		if err := reports.SaveSummary(summary); err != nil {
			logger.Warn().Err(err).Msg("Failed to save summary report")
		}
	}

	for _, engine := range engines {
		engine.ResetDaily()
	}

	if _, err := fileStore.Backup(""); err != nil {
		logger.Warn().Err(err).Msg("Daily backup failed")
	}
	fileStore.CleanupOld(90 * 24 * time.Hour)
}

func recordMasterBalances(ctx context.Context, accounts map[string]*models.Account, clients map[string]*bybit.Client, reports *report.Manager, logger zerolog.Logger) {
	for nickname, account := range accounts {
		if !account.IsMaster() || clients[nickname] == nil {
			continue
		}
		balance, err := clients[nickname].GetWalletBalance(ctx)
		if err != nil {
			logger.Warn().Err(err).Str("account", nickname).Msg("Failed to fetch master balance")
			continue
		}
		usdt, _ := balance.CoinAmount("USDT").Float64()
		account.UpdatePnLToday(usdt)
		if err := reports.RecordBalance(nickname, usdt, usdt); err != nil {
			logger.Warn().Err(err).Str("account", nickname).Msg("Failed to record balance")
		}
	}
}

func pause(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func sortedNicknames(accounts map[string]*models.Account) []string {
	names := make([]string, 0, len(accounts))
	for name := range accounts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
