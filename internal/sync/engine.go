package sync

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"copytrader/internal/bybit"
	"copytrader/internal/database"
	"copytrader/internal/store"
	"copytrader/models"
)

// qtyTolerance is the relative size difference below which a slave position
// is considered in sync with its target.
const qtyTolerance = 0.05

// aggregationWindow is how long an open or increase must stay in the plan
// before it is placed, so master positions that flicker between cycles are
// never copied.
const aggregationWindow = 2 * time.Second

// Action kinds produced by a sync plan.
const (
	ActionOpen     = "open"
	ActionIncrease = "increase"
	ActionReduce   = "reduce"
	ActionClose    = "close"
)

// Action is a single order the engine will place on the slave account.
type Action struct {
	Type        string
	Symbol      string
	OrderSide   string
	Qty         decimal.Decimal
	ReduceOnly  bool
	PositionIdx int
	Leverage    string // master's leverage, applied before opening
}

// CycleResult summarizes one sync cycle.
type CycleResult struct {
	Actions         []Action
	Discrepancies   []models.Discrepancy
	CancelledOrders int
	StopLossTier    float64 // triggered balance tier in USDT, zero when none
	SlaveBalance    float64
	Duration        time.Duration
}

type posKey struct {
	symbol string
	side   string
}

// instrumentSource yields contract sizing metadata for a symbol.
type instrumentSource interface {
	GetInstrument(ctx context.Context, symbol string) (*models.Instrument, error)
}

// Engine synchronizes one slave account against its master.
type Engine struct {
	master *bybit.Client
	slave  *bybit.Client

	slaveAccount *models.Account
	store        *store.FileStore
	db           *database.DB // nil when Postgres is not configured
	risk         *RiskManager
	aggregator   *OrderAggregator
	instruments  instrumentSource

	multiplier decimal.Decimal
	symbols    map[string]bool // nil copies every symbol

	state          *models.SyncState
	triggeredTiers map[float64]bool

	// Notify, when set, receives human-readable alerts for the admins.
	Notify func(string)

	logger   zerolog.Logger
	tradeLog zerolog.Logger
}

// NewEngine creates a sync engine for a master→slave pair, restoring any
// previously persisted pair state.
func NewEngine(master, slave *bybit.Client, slaveAccount *models.Account, fileStore *store.FileStore, db *database.DB, risk *RiskManager) (*Engine, error) {
	state, err := fileStore.LoadSyncState(master.Nickname(), slave.Nickname())
	if err != nil {
		return nil, fmt.Errorf("loading sync state: %w", err)
	}

	multiplier := decimal.NewFromFloat(slaveAccount.CopyMultiplier)
	if !multiplier.IsPositive() {
		multiplier = decimal.NewFromInt(1)
	}

	var symbols map[string]bool
	if len(slaveAccount.SymbolsToCopy) > 0 {
		symbols = make(map[string]bool, len(slaveAccount.SymbolsToCopy))
		for _, s := range slaveAccount.SymbolsToCopy {
			symbols[s] = true
		}
	}

	return &Engine{
		master:         master,
		slave:          slave,
		slaveAccount:   slaveAccount,
		store:          fileStore,
		db:             db,
		risk:           risk,
		aggregator:     NewOrderAggregator(aggregationWindow),
		instruments:    slave,
		multiplier:     multiplier,
		symbols:        symbols,
		state:          state,
		triggeredTiers: make(map[float64]bool),
		logger: log.With().
			Str("component", "sync").
			Str("master", master.Nickname()).
			Str("slave", slave.Nickname()).
			Logger(),
		tradeLog: log.With().
			Str("component", "trading").
			Str("slave", slave.Nickname()).
			Logger(),
	}, nil
}

// Master returns the master account nickname.
func (e *Engine) Master() string { return e.master.Nickname() }

// Slave returns the slave account nickname.
func (e *Engine) Slave() string { return e.slave.Nickname() }

// State returns the persisted pair state.
func (e *Engine) State() *models.SyncState { return e.state }

// ResetDaily clears per-day tracking. Called at UTC midnight.
func (e *Engine) ResetDaily() {
	e.triggeredTiers = make(map[float64]bool)
}

// RunCycle performs one full synchronization pass: risk checks, stop loss
// tiers, position diffing, order placement and working-order cleanup.
func (e *Engine) RunCycle(ctx context.Context) (*CycleResult, error) {
	start := time.Now()

	balance, err := e.slave.GetWalletBalance(ctx)
	if err != nil {
		return nil, fmt.Errorf("slave balance: %w", err)
	}
	usdt, _ := balance.CoinAmount("USDT").Float64()

	result := &CycleResult{SlaveBalance: usdt}

	e.slaveAccount.UpdatePnLToday(usdt)
	for _, level := range e.risk.DrawdownAlerts(e.slaveAccount, usdt) {
		e.notify(fmt.Sprintf("⚠️ %s drawdown crossed %.1f%% (balance %.2f USDT)",
			e.Slave(), level, usdt))
	}
	if err := e.store.SaveAccount(e.slaveAccount); err != nil {
		e.logger.Warn().Err(err).Msg("Failed to persist account tracking")
	}

	if tier, hit := e.stopLossTier(usdt); hit {
		result.StopLossTier = tier
		if err := e.triggerStopLoss(ctx, tier, usdt); err != nil {
			return result, err
		}
		result.Duration = time.Since(start)
		return result, e.saveState(result)
	}

	masterPositions, err := e.master.GetPositions(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("master positions: %w", err)
	}
	slavePositions, err := e.slave.GetPositions(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("slave positions: %w", err)
	}

	result.Discrepancies = FindDiscrepancies(masterPositions, slavePositions, e.multiplier, e.symbols)
	for _, d := range result.Discrepancies {
		e.logger.Info().
			Str("type", d.Type).
			Str("symbol", d.Symbol).
			Str("side", d.Side).
			Str("expected", d.ExpectedQty.String()).
			Str("actual", d.ActualQty.String()).
			Msg("Position discrepancy")
	}

	actions, err := e.plan(ctx, masterPositions, slavePositions)
	if err != nil {
		return nil, err
	}

	placed, err := e.execute(ctx, actions)
	result.Actions = placed
	if err != nil {
		return result, err
	}

	cancelled, err := e.cancelWorkingOrders(ctx)
	if err != nil {
		return result, err
	}
	result.CancelledOrders = cancelled

	result.Duration = time.Since(start)
	e.logger.Info().
		Int("actions", len(placed)).
		Int("cancelled_orders", cancelled).
		Int("discrepancies", len(result.Discrepancies)).
		Dur("duration", result.Duration).
		Msg("Sync cycle complete")

	return result, e.saveState(result)
}

// inScope reports whether a symbol is copied for this pair.
func (e *Engine) inScope(symbol string) bool {
	return e.symbols == nil || e.symbols[symbol]
}

// plan computes the orders needed to bring the slave's book in line with the
// scaled master book.
func (e *Engine) plan(ctx context.Context, masterPositions, slavePositions []models.Position) ([]Action, error) {
	actual := make(map[posKey]models.Position)
	for _, pos := range slavePositions {
		if pos.IsOpen() && e.inScope(pos.Symbol) {
			actual[posKey{pos.Symbol, pos.Side}] = pos
		}
	}

	var actions []Action
	matched := make(map[posKey]bool)

	for _, pos := range masterPositions {
		if !pos.IsOpen() || !e.inScope(pos.Symbol) {
			continue
		}
		key := posKey{pos.Symbol, pos.Side}
		matched[key] = true

		inst, err := e.instruments.GetInstrument(ctx, pos.Symbol)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			// One bad symbol must not stall the rest of the book.
			e.logger.Error().Err(err).Str("symbol", pos.Symbol).Msg("Instrument lookup failed, symbol skipped")
			continue
		}

		raw := e.risk.AdjustQty(pos.Size.Mul(e.multiplier), pos.MarkPrice)
		target := roundToStep(raw, inst.QtyStep)
		if target.LessThan(inst.MinOrderQty) {
			target = decimal.Zero
		}

		slavePos, exists := actual[key]
		switch {
		case !exists && target.IsPositive():
			actions = append(actions, Action{
				Type:        ActionOpen,
				Symbol:      pos.Symbol,
				OrderSide:   pos.Side,
				Qty:         target,
				PositionIdx: pos.PositionIdx,
				Leverage:    pos.Leverage,
			})

		case exists && target.IsZero():
			actions = append(actions, Action{
				Type:        ActionClose,
				Symbol:      pos.Symbol,
				OrderSide:   models.OppositeSide(pos.Side),
				Qty:         slavePos.Size,
				ReduceOnly:  true,
				PositionIdx: slavePos.PositionIdx,
			})

		case exists && !withinTolerance(target, slavePos.Size):
			diff := roundToStep(target.Sub(slavePos.Size).Abs(), inst.QtyStep)
			if diff.LessThan(inst.MinOrderQty) {
				continue
			}
			if target.GreaterThan(slavePos.Size) {
				actions = append(actions, Action{
					Type:        ActionIncrease,
					Symbol:      pos.Symbol,
					OrderSide:   pos.Side,
					Qty:         diff,
					PositionIdx: pos.PositionIdx,
				})
			} else {
				actions = append(actions, Action{
					Type:        ActionReduce,
					Symbol:      pos.Symbol,
					OrderSide:   models.OppositeSide(pos.Side),
					Qty:         diff,
					ReduceOnly:  true,
					PositionIdx: slavePos.PositionIdx,
				})
			}
		}
	}

	// Positions the slave holds that the master no longer does.
	for key, pos := range actual {
		if matched[key] {
			continue
		}
		actions = append(actions, Action{
			Type:        ActionClose,
			Symbol:      pos.Symbol,
			OrderSide:   models.OppositeSide(pos.Side),
			Qty:         pos.Size,
			ReduceOnly:  true,
			PositionIdx: pos.PositionIdx,
		})
	}

	return actions, nil
}

// actionRank orders execution so margin is released before it is spent.
var actionRank = map[string]int{
	ActionClose:    0,
	ActionReduce:   1,
	ActionOpen:     2,
	ActionIncrease: 3,
}

// dueActions applies the coalescing window: closes and reductions release
// margin and go out immediately, opens and increases are held until they
// have stayed in the plan for a full window. The result is ordered so margin
// is released before it is spent.
func (e *Engine) dueActions(actions []Action) []Action {
	e.aggregator.BeginCycle()

	due := make([]Action, 0, len(actions))
	pending := make(map[string]Action)

	for _, action := range actions {
		switch action.Type {
		case ActionClose, ActionReduce:
			due = append(due, action)
		default:
			e.aggregator.Observe(action.Symbol, action.OrderSide, action.Type, action.Qty)
			pending[orderKey(action.Symbol, action.OrderSide, action.Type)] = action
		}
	}

	for _, batch := range e.aggregator.Ready() {
		action, ok := pending[orderKey(batch.Symbol, batch.Side, batch.Action)]
		if !ok {
			continue
		}
		action.Qty = batch.Qty
		due = append(due, action)
	}

	sort.SliceStable(due, func(i, j int) bool {
		return actionRank[due[i].Type] < actionRank[due[j].Type]
	})
	return due
}

// execute places the due actions as market orders and returns the ones that
// were placed. A failed order is logged and the rest of the plan proceeds.
func (e *Engine) execute(ctx context.Context, actions []Action) ([]Action, error) {
	var placed []Action

	for _, action := range e.dueActions(actions) {
		if action.Type == ActionOpen && action.Leverage != "" {
			// Mirror the master's leverage. The exchange rejects a no-op
			// change, so failures are not fatal.
			if err := e.slave.SetLeverage(ctx, action.Symbol, action.Leverage, action.Leverage); err != nil {
				e.logger.Debug().Err(err).
					Str("symbol", action.Symbol).
					Str("leverage", action.Leverage).
					Msg("Leverage not changed")
			}
		}

		e.tradeLog.Info().
			Str("action", action.Type).
			Str("symbol", action.Symbol).
			Str("side", action.OrderSide).
			Str("qty", action.Qty.String()).
			Bool("reduce_only", action.ReduceOnly).
			Msg("Placing order")

		_, err := e.slave.PlaceOrder(ctx, bybit.OrderRequest{
			Symbol:      action.Symbol,
			Side:        action.OrderSide,
			OrderType:   "Market",
			Qty:         action.Qty,
			ReduceOnly:  action.ReduceOnly,
			PositionIdx: action.PositionIdx,
		})
		if err != nil {
			if ctx.Err() != nil {
				return placed, ctx.Err()
			}
			e.tradeLog.Error().Err(err).
				Str("action", action.Type).
				Str("symbol", action.Symbol).
				Msg("Order placement failed")
			continue
		}

		placed = append(placed, action)
		e.recordEvent(action.Type, action.Symbol, action.OrderSide, action.Qty.String(), "")
		e.notify(fmt.Sprintf("📋 %s → %s: %s %s %s %s",
			e.Master(), e.Slave(), action.Type, action.OrderSide, action.Qty.String(), action.Symbol))
	}

	return placed, nil
}

// cancelWorkingOrders removes the slave's open orders for copied symbols.
// Working orders are not mirrored, only positions are.
func (e *Engine) cancelWorkingOrders(ctx context.Context) (int, error) {
	orders, err := e.slave.GetOpenOrders(ctx, "")
	if err != nil {
		return 0, fmt.Errorf("slave open orders: %w", err)
	}

	cancelled := 0
	for _, order := range orders {
		if !order.IsActive() || !e.inScope(order.Symbol) {
			continue
		}
		if err := e.slave.CancelOrder(ctx, order.Symbol, order.OrderID); err != nil {
			e.logger.Warn().Err(err).
				Str("symbol", order.Symbol).
				Str("order_id", order.OrderID).
				Msg("Failed to cancel order")
			continue
		}
		cancelled++
		e.recordEvent("cancel_order", order.Symbol, order.Side, order.Qty.String(), order.OrderID)
	}

	return cancelled, nil
}

// stopLossTier returns the highest untriggered balance tier the slave's
// USDT balance has fallen to, if any.
func (e *Engine) stopLossTier(balance float64) (float64, bool) {
	tier, hit := 0.0, false
	for _, t := range e.slaveAccount.SLLossTiersUSD {
		if balance <= t && !e.triggeredTiers[t] && t > tier {
			tier, hit = t, true
		}
	}
	return tier, hit
}

// triggerStopLoss flattens the slave account after the balance falls to a
// tier. Every tier the balance is at or below is marked so each fires once
// per day.
func (e *Engine) triggerStopLoss(ctx context.Context, tier, balance float64) error {
	e.logger.Warn().
		Float64("tier_usd", tier).
		Float64("balance", balance).
		Msg("Stop loss tier triggered, closing all positions")

	for _, t := range e.slaveAccount.SLLossTiersUSD {
		if balance <= t {
			e.triggeredTiers[t] = true
		}
	}

	if err := e.slave.CancelAllOrders(ctx, ""); err != nil {
		return fmt.Errorf("cancelling orders after stop loss: %w", err)
	}

	positions, err := e.slave.GetPositions(ctx, "")
	if err != nil {
		return fmt.Errorf("slave positions after stop loss: %w", err)
	}
	for _, pos := range positions {
		if !pos.IsOpen() {
			continue
		}
		_, err := e.slave.PlaceOrder(ctx, bybit.OrderRequest{
			Symbol:      pos.Symbol,
			Side:        models.OppositeSide(pos.Side),
			OrderType:   "Market",
			Qty:         pos.Size,
			ReduceOnly:  true,
			PositionIdx: pos.PositionIdx,
		})
		if err != nil {
			return fmt.Errorf("closing %s after stop loss: %w", pos.Symbol, err)
		}
	}

	e.recordEvent("stop_loss", "", "", "", fmt.Sprintf("tier %.2f USDT, balance %.2f", tier, balance))
	e.notify(fmt.Sprintf("🛑 %s stop loss tier %.2f USDT triggered, all positions closed (balance %.2f USDT)",
		e.Slave(), tier, balance))
	return nil
}

func (e *Engine) saveState(result *CycleResult) error {
	e.state.LastSync = time.Now().UTC()
	e.state.CopyMultiplier, _ = e.multiplier.Float64()
	e.state.SymbolsToCopy = e.slaveAccount.SymbolsToCopy
	e.state.SyncedPositions += len(result.Actions)
	e.state.CancelledOrders += result.CancelledOrders
	return e.store.SaveSyncState(e.state)
}

func (e *Engine) recordEvent(event, symbol, side, qty, detail string) {
	if e.db == nil {
		return
	}
	err := e.db.AddSyncEvent(database.SyncEvent{
		Master: e.Master(),
		Slave:  e.Slave(),
		Event:  event,
		Symbol: symbol,
		Side:   side,
		Qty:    qty,
		Detail: detail,
	})
	if err != nil {
		e.logger.Warn().Err(err).Str("event", event).Msg("Failed to record sync event")
	}
}

func (e *Engine) notify(msg string) {
	if e.Notify != nil {
		e.Notify(msg)
	}
}

// roundToStep rounds a quantity down to a multiple of the instrument step.
func roundToStep(qty, step decimal.Decimal) decimal.Decimal {
	if !step.IsPositive() {
		return qty
	}
	return qty.Div(step).Floor().Mul(step)
}

// withinTolerance reports whether actual is within the relative tolerance of
// target.
func withinTolerance(target, actual decimal.Decimal) bool {
	if target.IsZero() {
		return actual.IsZero()
	}
	diff := target.Sub(actual).Abs()
	return diff.Div(target).LessThanOrEqual(decimal.NewFromFloat(qtyTolerance))
}

// FindDiscrepancies compares the master and slave books and reports every
// divergence beyond the size tolerance. Instrument rounding is ignored here,
// the report is informational.
func FindDiscrepancies(masterPositions, slavePositions []models.Position, multiplier decimal.Decimal, symbols map[string]bool) []models.Discrepancy {
	inScope := func(symbol string) bool {
		return symbols == nil || symbols[symbol]
	}

	actual := make(map[posKey]decimal.Decimal)
	for _, pos := range slavePositions {
		if pos.IsOpen() && inScope(pos.Symbol) {
			actual[posKey{pos.Symbol, pos.Side}] = pos.Size
		}
	}

	var discrepancies []models.Discrepancy
	matched := make(map[posKey]bool)

	for _, pos := range masterPositions {
		if !pos.IsOpen() || !inScope(pos.Symbol) {
			continue
		}
		key := posKey{pos.Symbol, pos.Side}
		matched[key] = true

		expected := pos.Size.Mul(multiplier)
		size, exists := actual[key]

		switch {
		case !exists:
			discrepancies = append(discrepancies, models.Discrepancy{
				Type:        models.DiscrepancyMissingOnSlave,
				Symbol:      pos.Symbol,
				Side:        pos.Side,
				ExpectedQty: expected,
			})
		case !withinTolerance(expected, size):
			discrepancies = append(discrepancies, models.Discrepancy{
				Type:        models.DiscrepancySizeMismatch,
				Symbol:      pos.Symbol,
				Side:        pos.Side,
				ExpectedQty: expected,
				ActualQty:   size,
			})
		}
	}

	for key, size := range actual {
		if matched[key] {
			continue
		}
		discrepancies = append(discrepancies, models.Discrepancy{
			Type:      models.DiscrepancyExtraOnSlave,
			Symbol:    key.symbol,
			Side:      key.side,
			ActualQty: size,
		})
	}

	return discrepancies
}
