package simulator

import (
	"fmt"
	"math"
	"time"

	"github.com/atlas-desktop/backtest-engine/internal/marketcache"
	"github.com/atlas-desktop/backtest-engine/pkg/types"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ArithmeticError reports a non-finite or invalid value computed during a
// simulation, with the bar date that triggered it. It aborts only the
// affected instrument's task.
type ArithmeticError struct {
	Symbol  string
	Date    time.Time
	Message string
}

func (e *ArithmeticError) Error() string {
	return fmt.Sprintf("arithmetic error for %s at %s: %s",
		e.Symbol, e.Date.Format("2006-01-02"), e.Message)
}

// Simulator replays one instrument's bars chronologically against strategy
// signals. All mutable state lives in a per-run portfolio, so one Simulator
// value is safe to share across worker tasks.
type Simulator struct {
	logger *zap.Logger
	cost   types.CostModel
}

// New creates a simulator using the given cost model.
func New(logger *zap.Logger, cost types.CostModel) *Simulator {
	return &Simulator{logger: logger, cost: cost}
}

const dateKeyLayout = "2006-01-02"

// Run simulates the instrument over the cached series view. The loop never
// reads future bars, transaction costs apply at both open and close, and at
// most one position is open at any time. Insufficient cash degrades an
// order to the largest affordable size instead of failing the run.
func (s *Simulator) Run(
	instr types.Instrument,
	view marketcache.View,
	signals []types.Signal,
	initialCapital decimal.Decimal,
	sourceTag string,
) (*types.BacktestResult, error) {
	byDate := make(map[string]types.Signal, len(signals))
	for _, sig := range signals {
		byDate[sig.Date.UTC().Format(dateKeyLayout)] = sig
	}

	port := newPortfolio(initialCapital)

	for i := 0; i < view.Rows(); i++ {
		closePx := view.Close(i)
		if math.IsNaN(closePx) || math.IsInf(closePx, 0) || closePx <= 0 {
			return nil, &ArithmeticError{
				Symbol:  instr.Symbol,
				Date:    view.Date(i),
				Message: "non-finite close price",
			}
		}
		date := view.Date(i)
		price := decimal.NewFromFloat(closePx)

		// Step 1: mark to market at the bar close.
		port.recordEquity(date, price)

		// Step 2: forced liquidation pre-empts any signal on the same bar.
		if pos := port.position; pos != nil && pos.MarginUsed.IsPositive() {
			notional := notionalValue(pos, price)
			if notional.IsPositive() {
				coverage := pos.MarginUsed.Add(unrealizedPnL(pos, price)).Div(notional)
				if coverage.LessThan(s.cost.ForcedLiquidationThreshold) {
					s.closePosition(port, date, price, types.ExitForcedLiquidation)
					continue
				}
			}
		}

		// Step 3: option expiry resolution.
		if pos := port.position; pos != nil &&
			pos.Instrument.AssetClass == types.AssetClassOption &&
			!pos.Instrument.Expiry.IsZero() &&
			!date.Before(pos.Instrument.Expiry) {
			s.settleExpiry(port, date, price)
			continue
		}

		// Step 4: consult the signal; absent dates are implicit HOLD.
		sig, ok := byDate[date.UTC().Format(dateKeyLayout)]
		if !ok || sig.Action == types.ActionHold {
			continue
		}
		s.applySignal(port, instr, date, price, sig)
	}

	final := port.totalValue(decimal.Zero)
	if len(port.equityCurve) > 0 {
		final = port.equityCurve[len(port.equityCurve)-1].TotalValue
	}
	s.logger.Debug("simulation complete",
		zap.String("symbol", instr.Symbol),
		zap.Int("bars", view.Rows()),
		zap.Int("trades", len(port.trades)),
		zap.String("finalEquity", final.StringFixed(2)),
	)

	return &types.BacktestResult{
		Instrument:    instr,
		TradeLog:      port.trades,
		EquityCurve:   port.equityCurve,
		DataSourceTag: sourceTag,
	}, nil
}

func (s *Simulator) applySignal(port *portfolio, instr types.Instrument, date time.Time, price decimal.Decimal, sig types.Signal) {
	pos := port.position

	switch sig.Action {
	case types.ActionBuy:
		if pos == nil {
			s.openPosition(port, instr, date, price, types.DirectionLong, sig.SuggestedSizePct)
		} else if pos.Direction == types.DirectionShort {
			s.closePosition(port, date, price, types.ExitSignalClose)
		}
		// BUY on an existing long is a no-op: no stacking.

	case types.ActionSell:
		if pos != nil && pos.Direction == types.DirectionLong {
			s.closePosition(port, date, price, types.ExitSignalClose)
			return
		}
		if pos == nil && instr.AssetClass == types.AssetClassFuture {
			// Shorts are margin-financed and only supported for futures.
			s.openPosition(port, instr, date, price, types.DirectionShort, sig.SuggestedSizePct)
		}
	}
}

// fillPrice applies the slippage model: buys fill above the bar price,
// sells below it.
func (s *Simulator) fillPrice(price decimal.Decimal, buying bool) decimal.Decimal {
	one := decimal.NewFromInt(1)
	if buying {
		return price.Mul(one.Add(s.cost.SlippageRate))
	}
	return price.Mul(one.Sub(s.cost.SlippageRate))
}

func (s *Simulator) openPosition(port *portfolio, instr types.Instrument, date time.Time, price decimal.Decimal, dir types.Direction, sizePct decimal.Decimal) {
	if !sizePct.IsPositive() {
		return
	}

	fill := s.fillPrice(price, dir == types.DirectionLong)
	equity := port.totalValue(price)
	budget := sizePct.Mul(equity)
	if !budget.IsPositive() || !fill.IsPositive() {
		return
	}

	mult := instr.Multiplier
	if !mult.IsPositive() {
		mult = decimal.NewFromInt(1)
	}
	// Store the effective multiplier so marking, liquidation checks, and
	// PnL all see the same value the sizing used.
	instr.Multiplier = mult
	one := decimal.NewFromInt(1)

	var qty, margin, cost decimal.Decimal

	switch instr.AssetClass {
	case types.AssetClassFuture:
		marginRate := s.cost.MarginRate(instr.AssetClass)
		if marginRate.IsZero() {
			// Unconfigured margin rate means cash-covered.
			marginRate = one
		}
		unit := fill.Mul(mult)
		qty = budget.Div(unit)
		perUnitCash := unit.Mul(marginRate.Add(s.cost.CommissionRate))
		if need := qty.Mul(perUnitCash); need.GreaterThan(port.cash) {
			qty = port.cash.Div(perUnitCash).Truncate(8)
			s.warnDegraded(instr.Symbol, date)
		}
		if !qty.IsPositive() {
			return
		}
		notional := qty.Mul(unit)
		margin = notional.Mul(marginRate)
		cost = margin.Add(notional.Mul(s.cost.CommissionRate))

	case types.AssetClassOption:
		if dir == types.DirectionShort || !s.cost.OptionPremiumRate.IsPositive() {
			return
		}
		premium := fill.Mul(s.cost.OptionPremiumRate)
		unit := premium.Mul(mult)
		qty = budget.Div(unit)
		perUnitCash := unit.Mul(one.Add(s.cost.CommissionRate))
		if need := qty.Mul(perUnitCash); need.GreaterThan(port.cash) {
			qty = port.cash.Div(perUnitCash).Truncate(8)
			s.warnDegraded(instr.Symbol, date)
		}
		if !qty.IsPositive() {
			return
		}
		outlay := qty.Mul(unit)
		cost = outlay.Add(outlay.Mul(s.cost.CommissionRate))
		// Entry price is the premium paid per unit of underlying.
		fill = premium

	default:
		qty = budget.Div(fill)
		perUnitCash := fill.Mul(one.Add(s.cost.CommissionRate))
		if need := qty.Mul(perUnitCash); need.GreaterThan(port.cash) {
			qty = port.cash.Div(perUnitCash).Truncate(8)
			s.warnDegraded(instr.Symbol, date)
		}
		if !qty.IsPositive() {
			return
		}
		notional := qty.Mul(fill)
		cost = notional.Add(notional.Mul(s.cost.CommissionRate))
	}

	port.cash = port.cash.Sub(cost)
	port.position = &types.Position{
		Instrument: instr,
		Direction:  dir,
		Quantity:   qty,
		EntryDate:  date,
		EntryPrice: fill,
		MarginUsed: margin,
	}

	s.logger.Debug("position opened",
		zap.String("symbol", instr.Symbol),
		zap.String("direction", string(dir)),
		zap.Time("date", date),
		zap.String("qty", qty.StringFixed(4)),
		zap.String("fill", fill.StringFixed(4)),
	)
}

func (s *Simulator) closePosition(port *portfolio, date time.Time, price decimal.Decimal, reason types.ExitReason) {
	pos := port.position
	if pos == nil {
		return
	}

	mult := pos.Instrument.Multiplier
	if !mult.IsPositive() {
		mult = decimal.NewFromInt(1)
	}

	// The commission charged at open was entryNotional x rate against the
	// stored entry fill, so it is exactly recomputable here. Folding it
	// into realized PnL makes the trade log reconcile with cash moves.
	entryCommission := pos.Quantity.Mul(mult).Mul(pos.EntryPrice).Mul(s.cost.CommissionRate)

	var exitPx, pnl decimal.Decimal

	switch pos.Instrument.AssetClass {
	case types.AssetClassFuture:
		exitPx = s.fillPrice(price, pos.Direction == types.DirectionShort)
		pricePnL := unrealizedPnL(pos, exitPx)
		commission := pos.Quantity.Mul(mult).Mul(exitPx).Mul(s.cost.CommissionRate)
		port.cash = port.cash.Add(pos.MarginUsed).Add(pricePnL).Sub(commission)
		pnl = pricePnL.Sub(commission).Sub(entryCommission)

	case types.AssetClassOption:
		// Options settle at intrinsic value against the underlying.
		exitPx = intrinsicValue(pos.Instrument, price)
		proceeds := pos.Quantity.Mul(mult).Mul(exitPx)
		commission := proceeds.Mul(s.cost.CommissionRate)
		costBasis := pos.Quantity.Mul(mult).Mul(pos.EntryPrice)
		port.cash = port.cash.Add(proceeds).Sub(commission)
		pnl = proceeds.Sub(commission).Sub(costBasis).Sub(entryCommission)

	default:
		exitPx = s.fillPrice(price, false)
		proceeds := pos.Quantity.Mul(exitPx)
		commission := proceeds.Mul(s.cost.CommissionRate)
		port.cash = port.cash.Add(proceeds).Sub(commission)
		pnl = proceeds.Sub(pos.Quantity.Mul(pos.EntryPrice)).Sub(commission).Sub(entryCommission)
	}

	s.recordTrade(port, pos, date, exitPx, pnl, reason)
}

// settleExpiry resolves an option position on its expiry bar: exercised at
// intrinsic value when in the money, expired worthless otherwise.
func (s *Simulator) settleExpiry(port *portfolio, date time.Time, price decimal.Decimal) {
	pos := port.position
	if pos == nil {
		return
	}
	mult := pos.Instrument.Multiplier
	if !mult.IsPositive() {
		mult = decimal.NewFromInt(1)
	}
	costBasis := pos.Quantity.Mul(mult).Mul(pos.EntryPrice)
	entryCommission := costBasis.Mul(s.cost.CommissionRate)

	iv := intrinsicValue(pos.Instrument, price)
	if iv.IsPositive() {
		proceeds := pos.Quantity.Mul(mult).Mul(iv)
		commission := proceeds.Mul(s.cost.CommissionRate)
		port.cash = port.cash.Add(proceeds).Sub(commission)
		pnl := proceeds.Sub(commission).Sub(costBasis).Sub(entryCommission)
		s.recordTrade(port, pos, date, iv, pnl, types.ExitExpiryITM)
		return
	}
	s.recordTrade(port, pos, date, decimal.Zero, costBasis.Add(entryCommission).Neg(), types.ExitExpiryOTM)
}

func (s *Simulator) recordTrade(port *portfolio, pos *types.Position, date time.Time, exitPx, pnl decimal.Decimal, reason types.ExitReason) {
	// IDs are content-derived so identical runs produce identical logs
	// regardless of worker count.
	seed := fmt.Sprintf("%s|%s|%s|%d",
		pos.Instrument.Symbol,
		pos.EntryDate.Format(dateKeyLayout),
		date.Format(dateKeyLayout),
		len(port.trades),
	)
	port.trades = append(port.trades, types.Trade{
		ID:          uuid.NewSHA1(uuid.NameSpaceOID, []byte(seed)).String(),
		Symbol:      pos.Instrument.Symbol,
		AssetClass:  pos.Instrument.AssetClass,
		Direction:   pos.Direction,
		EntryDate:   pos.EntryDate,
		EntryPrice:  pos.EntryPrice,
		ExitDate:    date,
		ExitPrice:   exitPx,
		Quantity:    pos.Quantity,
		RealizedPnL: pnl,
		ExitReason:  reason,
	})
	port.position = nil

	s.logger.Debug("position closed",
		zap.String("symbol", pos.Instrument.Symbol),
		zap.Time("date", date),
		zap.String("reason", string(reason)),
		zap.String("pnl", pnl.StringFixed(2)),
	)
}

func (s *Simulator) warnDegraded(symbol string, date time.Time) {
	s.logger.Warn("insufficient capital, order degraded to affordable size",
		zap.String("symbol", symbol),
		zap.Time("date", date),
	)
}
