package telegram

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

const commandTimeout = 30 * time.Second

func (b *Bot) handleStart(chatID int64) {
	b.send(chatID, "👋 Welcome to the copy trading bot.\n"+
		"Positions on master accounts are mirrored to their slaves automatically.\n"+
		"Use /help for the command list.")
}

func (b *Bot) handleHelp(chatID, userID int64) {
	var sb strings.Builder
	sb.WriteString("Available commands:\n")
	sb.WriteString("/status - account overview\n")
	sb.WriteString("/balance - wallet balances\n")
	sb.WriteString("/positions - open positions\n")
	sb.WriteString("/sync_status - pair sync state\n")
	sb.WriteString("/reports - performance summary\n")
	sb.WriteString("/stop_loss - stop loss tiers\n")

	if b.auth.IsAdmin(userID) {
		sb.WriteString("\nAdmin commands:\n")
		sb.WriteString("/admin add_user <id> [username] [role]\n")
		sb.WriteString("/admin remove_user <id>\n")
		sb.WriteString("/admin list_users\n")
		sb.WriteString("/admin logs [component] [n]\n")
		sb.WriteString("/admin backup\n")
		sb.WriteString("/stop_loss <account> <tier...> - set balance tiers\n")
	}

	b.send(chatID, sb.String())
}

func (b *Bot) handleStatus(chatID int64) {
	var sb strings.Builder
	sb.WriteString("📊 Accounts:\n")

	for _, nickname := range b.sortedAccounts() {
		account := b.accounts[nickname]
		state := "disabled"
		if account.Enabled {
			state = "enabled"
		}
		sb.WriteString(fmt.Sprintf("• %s: %s %s, %s\n",
			nickname, account.AccountType, account.Role, state))
	}

	b.send(chatID, sb.String())
}

func (b *Bot) handleBalance(ctx context.Context, chatID int64) {
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	var sb strings.Builder
	sb.WriteString("💰 Balances:\n")

	for _, nickname := range b.sortedAccounts() {
		client, ok := b.clients[nickname]
		if !ok {
			continue
		}
		balance, err := client.GetWalletBalance(ctx)
		if err != nil {
			b.logger.Error().Err(err).Str("account", nickname).Msg("Balance fetch failed")
			sb.WriteString(fmt.Sprintf("• %s: unavailable\n", nickname))
			continue
		}
		sb.WriteString(fmt.Sprintf("• %s: %s USDT\n",
			nickname, balance.CoinAmount("USDT").StringFixed(2)))
	}

	b.send(chatID, sb.String())
}

func (b *Bot) handlePositions(ctx context.Context, chatID int64) {
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	var sb strings.Builder
	sb.WriteString("📈 Open positions:\n")

	for _, nickname := range b.sortedAccounts() {
		client, ok := b.clients[nickname]
		if !ok {
			continue
		}
		positions, err := client.GetPositions(ctx, "")
		if err != nil {
			b.logger.Error().Err(err).Str("account", nickname).Msg("Positions fetch failed")
			sb.WriteString(fmt.Sprintf("%s: unavailable\n", nickname))
			continue
		}

		open := 0
		for _, pos := range positions {
			if !pos.IsOpen() {
				continue
			}
			if open == 0 {
				sb.WriteString(fmt.Sprintf("%s:\n", nickname))
			}
			open++
			sb.WriteString(fmt.Sprintf("  %s %s %s @ %s (PnL %s)\n",
				pos.Side, pos.Size.String(), pos.Symbol,
				pos.EntryPrice.String(), pos.UnrealizedPnL.StringFixed(2)))
		}
		if open == 0 {
			sb.WriteString(fmt.Sprintf("%s: no open positions\n", nickname))
		}
	}

	b.send(chatID, sb.String())
}

func (b *Bot) handleSyncStatus(chatID int64) {
	if len(b.engines) == 0 {
		b.send(chatID, "No sync pairs configured.")
		return
	}

	var sb strings.Builder
	sb.WriteString("🔄 Sync pairs:\n")

	for _, engine := range b.engines {
		state := engine.State()
		last := "never"
		if !state.LastSync.IsZero() {
			last = time.Since(state.LastSync).Round(time.Second).String() + " ago"
		}
		sb.WriteString(fmt.Sprintf("• %s → %s: last sync %s, %d positions synced, %d orders cancelled\n",
			engine.Master(), engine.Slave(), last,
			state.SyncedPositions, state.CancelledOrders))
	}

	b.send(chatID, sb.String())
}

func (b *Bot) handleReports(chatID int64) {
	summary, err := b.reports.Summary(b.accounts)
	if err != nil {
		b.logger.Error().Err(err).Msg("Summary generation failed")
		b.send(chatID, "Failed to generate report.")
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("📑 Summary (%d accounts, %d active)\n",
		summary.TotalAccounts, summary.ActiveAccounts))
	sb.WriteString(fmt.Sprintf("Total balance: %.2f USDT\n", summary.TotalBalance))
	sb.WriteString(fmt.Sprintf("24h PnL: %+.2f USDT (%+.2f%%)\n\n",
		summary.TotalPnL24h, summary.TotalPnL24hPct))

	names := make([]string, 0, len(summary.Accounts))
	for name := range summary.Accounts {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		r := summary.Accounts[name]
		sb.WriteString(fmt.Sprintf("%s: %.2f USDT, return %+.2f%%, max DD %.2f%%, Sharpe %.2f\n",
			name, r.CurrentBalance, r.TotalReturnPct, r.MaxDrawdownPct, r.SharpeRatio))
	}

	b.send(chatID, sb.String())
}

// handleStopLoss shows the configured tiers, or replaces an account's tiers
// when an admin passes them: /stop_loss <account> <tier1> [tier2 ...]
// Passing an account with no tiers clears them.
func (b *Bot) handleStopLoss(chatID, userID int64, args string) {
	fields := strings.Fields(args)
	if len(fields) == 0 {
		b.send(chatID, b.formatStopLoss())
		return
	}
	if !b.auth.IsAdmin(userID) {
		b.send(chatID, "⛔ Admin access required to change tiers.")
		return
	}
	b.send(chatID, b.setStopLossTiers(fields[0], fields[1:]))
}

// setStopLossTiers replaces an account's stop loss tiers and persists the
// account. The reply text is what the bot sends back.
func (b *Bot) setStopLossTiers(nickname string, args []string) string {
	account, ok := b.accounts[nickname]
	if !ok {
		return fmt.Sprintf("Unknown account %q.", nickname)
	}

	tiers := make([]float64, 0, len(args))
	for _, arg := range args {
		tier, err := strconv.ParseFloat(arg, 64)
		if err != nil || tier <= 0 {
			return fmt.Sprintf("Invalid tier %q, tiers are positive USDT balances.", arg)
		}
		tiers = append(tiers, tier)
	}

	account.SLLossTiersUSD = tiers
	if err := b.store.SaveAccount(account); err != nil {
		b.logger.Error().Err(err).Str("account", nickname).Msg("Failed to persist stop loss tiers")
		return fmt.Sprintf("Failed to save tiers: %v", err)
	}
	b.logger.Info().Str("account", nickname).Floats64("tiers_usd", tiers).Msg("Stop loss tiers updated")

	if len(tiers) == 0 {
		return fmt.Sprintf("✅ Stop loss tiers cleared for %s.", nickname)
	}
	parts := make([]string, len(tiers))
	for i, t := range tiers {
		parts[i] = fmt.Sprintf("%.0f", t)
	}
	return fmt.Sprintf("✅ Stop loss tiers for %s: %s USDT.", nickname, strings.Join(parts, ", "))
}

func (b *Bot) formatStopLoss() string {
	var sb strings.Builder
	sb.WriteString("🛑 Stop loss tiers:\n")

	found := false
	for _, nickname := range b.sortedAccounts() {
		account := b.accounts[nickname]
		if !account.IsSlave() || len(account.SLLossTiersUSD) == 0 {
			continue
		}
		found = true

		tiers := make([]string, 0, len(account.SLLossTiersUSD))
		for _, t := range account.SLLossTiersUSD {
			tiers = append(tiers, fmt.Sprintf("%.0f", t))
		}
		sb.WriteString(fmt.Sprintf("• %s: %s USDT", nickname, strings.Join(tiers, ", ")))
		if account.MaxBalanceToday != nil {
			sb.WriteString(fmt.Sprintf(" (today's peak %.2f)", *account.MaxBalanceToday))
		}
		sb.WriteString("\n")
	}
	if !found {
		sb.WriteString("No tiers configured.\n")
	}

	return sb.String()
}

func (b *Bot) handleAdmin(chatID int64, args string) {
	fields := strings.Fields(args)
	if len(fields) == 0 {
		b.send(chatID, "Usage: /admin <add_user|remove_user|list_users|logs|backup>")
		return
	}

	switch fields[0] {
	case "add_user":
		b.adminAddUser(chatID, fields[1:])
	case "remove_user":
		b.adminRemoveUser(chatID, fields[1:])
	case "list_users":
		b.adminListUsers(chatID)
	case "logs":
		// Accepts /admin logs [component] [n] in either order.
		component, n := "main", 20
		for _, arg := range fields[1:] {
			if count, err := strconv.Atoi(arg); err == nil && count > 0 {
				n = count
				continue
			}
			component = arg
		}
		b.adminLogs(chatID, component, n)
	case "backup":
		b.adminBackup(chatID)
	default:
		b.send(chatID, fmt.Sprintf("Unknown admin command %q.", fields[0]))
	}
}

func (b *Bot) adminAddUser(chatID int64, args []string) {
	if len(args) == 0 {
		b.send(chatID, "Usage: /admin add_user <id> [username] [role]")
		return
	}

	userID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		b.send(chatID, "Invalid user ID.")
		return
	}

	username := ""
	if len(args) > 1 {
		username = args[1]
	}
	role := RoleUser
	if len(args) > 2 {
		role = args[2]
	}

	if err := b.auth.AddUser(userID, username, role, []string{PermTradeNotifications}); err != nil {
		b.send(chatID, fmt.Sprintf("Failed to add user: %v", err))
		return
	}
	b.logger.Info().Int64("user_id", userID).Str("role", role).Msg("User authorized")
	b.send(chatID, fmt.Sprintf("✅ User %d added as %s.", userID, role))
}

func (b *Bot) adminRemoveUser(chatID int64, args []string) {
	if len(args) == 0 {
		b.send(chatID, "Usage: /admin remove_user <id>")
		return
	}

	userID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		b.send(chatID, "Invalid user ID.")
		return
	}

	if err := b.auth.RemoveUser(userID); err != nil {
		b.send(chatID, fmt.Sprintf("Failed to remove user: %v", err))
		return
	}
	b.logger.Info().Int64("user_id", userID).Msg("User access revoked")
	b.send(chatID, fmt.Sprintf("✅ User %d removed.", userID))
}

func (b *Bot) adminListUsers(chatID int64) {
	users := b.auth.ListUsers()
	if len(users) == 0 {
		b.send(chatID, "No persisted users. Chat IDs from the environment are always admins.")
		return
	}

	sort.Slice(users, func(i, j int) bool { return users[i].UserID < users[j].UserID })

	var sb strings.Builder
	sb.WriteString("👥 Authorized users:\n")
	for _, u := range users {
		sb.WriteString(fmt.Sprintf("• %d %s (%s)\n", u.UserID, u.Username, u.Role))
	}
	b.send(chatID, sb.String())
}

// adminLogs sends the tail of a component log file.
func (b *Bot) adminLogs(chatID int64, component string, n int) {
	path := filepath.Join(b.store.DataDir(), "logs", component+".log")
	data, err := os.ReadFile(path)
	if err != nil {
		b.send(chatID, fmt.Sprintf("No log file for %q.", component))
		return
	}

	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}

	text := strings.Join(lines, "\n")
	if len(text) > 3500 {
		text = text[len(text)-3500:]
	}
	b.send(chatID, fmt.Sprintf("📄 %s.log (last %d lines):\n%s", component, len(lines), text))
}

func (b *Bot) adminBackup(chatID int64) {
	path, err := b.store.Backup("")
	if err != nil {
		b.logger.Error().Err(err).Msg("Backup failed")
		b.send(chatID, fmt.Sprintf("Backup failed: %v", err))
		return
	}
	b.send(chatID, fmt.Sprintf("✅ Backup created: %s", filepath.Base(path)))
}

func (b *Bot) sortedAccounts() []string {
	names := make([]string, 0, len(b.accounts))
	for name := range b.accounts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
