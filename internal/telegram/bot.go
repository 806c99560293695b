package telegram

import (
	"context"
	"errors"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"copytrader/internal/bybit"
	"copytrader/internal/report"
	"copytrader/internal/secure"
	"copytrader/internal/store"
	"copytrader/internal/sync"
	"copytrader/models"
)

// Bot serves the Telegram control surface for the copier.
type Bot struct {
	api      *tgbotapi.BotAPI
	auth     *Auth
	store    *store.FileStore
	reports  *report.Manager
	accounts map[string]*models.Account
	clients  map[string]*bybit.Client
	engines  []*sync.Engine
	logger   zerolog.Logger
}

// New creates the bot and verifies the token against the Telegram API.
func New(token string, auth *Auth, fileStore *store.FileStore, reports *report.Manager,
	clients map[string]*bybit.Client, accounts map[string]*models.Account, engines []*sync.Engine) (*Bot, error) {

	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("connecting to Telegram: %w", err)
	}

	return &Bot{
		api:      api,
		auth:     auth,
		store:    fileStore,
		reports:  reports,
		accounts: accounts,
		clients:  clients,
		engines:  engines,
		logger:   log.With().Str("component", "telegram").Logger(),
	}, nil
}

// Run long-polls for updates until the context is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	b.logger.Info().Str("bot", b.api.Self.UserName).Msg("Telegram bot started")

	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 60
	updates := b.api.GetUpdatesChan(updateConfig)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			b.logger.Info().Msg("Telegram bot stopped")
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Message == nil || !update.Message.IsCommand() {
				continue
			}
			b.handleCommand(ctx, update.Message)
		}
	}
}

func (b *Bot) handleCommand(ctx context.Context, message *tgbotapi.Message) {
	userID := message.From.ID
	chatID := message.Chat.ID

	if !b.auth.IsAuthorized(userID) {
		b.logger.Warn().
			Int64("user_id", userID).
			Str("command", message.Command()).
			Msg("Unauthorized command attempt")
		b.send(chatID, "⛔ You are not authorized to use this bot.")
		return
	}

	if err := b.auth.CheckCommand(userID); err != nil {
		if errors.Is(err, secure.ErrRateLimited) {
			b.send(chatID, "⏳ Too many commands, try again later.")
			return
		}
		b.logger.Error().Err(err).Int64("user_id", userID).Msg("Command check failed")
		return
	}

	b.logger.Info().
		Int64("user_id", userID).
		Str("command", message.Command()).
		Msg("Command received")

	switch message.Command() {
	case "start":
		b.handleStart(chatID)
	case "help":
		b.handleHelp(chatID, userID)
	case "status":
		b.handleStatus(chatID)
	case "balance":
		b.handleBalance(ctx, chatID)
	case "positions":
		b.handlePositions(ctx, chatID)
	case "sync_status":
		b.handleSyncStatus(chatID)
	case "reports":
		b.handleReports(chatID)
	case "stop_loss":
		b.handleStopLoss(chatID, userID, message.CommandArguments())
	case "admin":
		if !b.auth.IsAdmin(userID) {
			b.send(chatID, "⛔ Admin access required.")
			return
		}
		b.handleAdmin(chatID, message.CommandArguments())
	default:
		b.send(chatID, "Unknown command. Use /help for the command list.")
	}
}

// NotifyAdmins sends a message to every admin chat.
func (b *Bot) NotifyAdmins(text string) {
	b.broadcast(b.auth.Recipients(""), text)
}

// NotifyTrades sends a message to admins and to users subscribed to trade
// notifications.
func (b *Bot) NotifyTrades(text string) {
	b.broadcast(b.auth.Recipients(PermTradeNotifications), text)
}

func (b *Bot) broadcast(chatIDs []int64, text string) {
	for _, chatID := range chatIDs {
		b.send(chatID, text)
	}
}

func (b *Bot) send(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Error().Err(err).Int64("chat_id", chatID).Msg("Failed to send message")
	}
}
