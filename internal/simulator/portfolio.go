// Package simulator replays one instrument's validated series day by day
// against strategy signals.
package simulator

import (
	"time"

	"github.com/atlas-desktop/backtest-engine/pkg/types"
	"github.com/shopspring/decimal"
)

// portfolio is the mutable per-task state machine. It is owned exclusively
// by one simulation task and never shared, so it carries no locks.
type portfolio struct {
	cash        decimal.Decimal
	position    *types.Position
	equityCurve []types.EquityCurvePoint
	trades      []types.Trade
}

func newPortfolio(initialCapital decimal.Decimal) *portfolio {
	return &portfolio{
		cash:        initialCapital,
		equityCurve: make([]types.EquityCurvePoint, 0, 1024),
		trades:      make([]types.Trade, 0, 64),
	}
}

// markValue is the mark-to-market value of the open position at price.
// Equities carry full notional, futures carry margin plus unrealized PnL,
// options carry intrinsic value. With cash this makes
// totalValue = cash + markValue reconcile exactly against the trade log.
func (p *portfolio) markValue(price decimal.Decimal) decimal.Decimal {
	pos := p.position
	if pos == nil {
		return decimal.Zero
	}

	switch pos.Instrument.AssetClass {
	case types.AssetClassFuture:
		return pos.MarginUsed.Add(unrealizedPnL(pos, price))
	case types.AssetClassOption:
		iv := intrinsicValue(pos.Instrument, price)
		return pos.Quantity.Mul(pos.Instrument.Multiplier).Mul(iv)
	default:
		return pos.Quantity.Mul(price)
	}
}

func (p *portfolio) totalValue(price decimal.Decimal) decimal.Decimal {
	return p.cash.Add(p.markValue(price))
}

func (p *portfolio) recordEquity(date time.Time, price decimal.Decimal) {
	p.equityCurve = append(p.equityCurve, types.EquityCurvePoint{
		Date:       date,
		TotalValue: p.totalValue(price),
		Cash:       p.cash,
	})
}

// unrealizedPnL is the direction-signed price PnL of a position at price.
func unrealizedPnL(pos *types.Position, price decimal.Decimal) decimal.Decimal {
	diff := price.Sub(pos.EntryPrice)
	if pos.Direction == types.DirectionShort {
		diff = diff.Neg()
	}
	return diff.Mul(pos.Quantity).Mul(pos.Instrument.Multiplier)
}

// notionalValue is quantity x multiplier x price, the full economic
// exposure of the position at price.
func notionalValue(pos *types.Position, price decimal.Decimal) decimal.Decimal {
	return pos.Quantity.Mul(pos.Instrument.Multiplier).Mul(price)
}

// intrinsicValue is the per-unit exercise value of an option against the
// underlying price.
func intrinsicValue(instr types.Instrument, underlying decimal.Decimal) decimal.Decimal {
	var iv decimal.Decimal
	if instr.Right == types.OptionPut {
		iv = instr.Strike.Sub(underlying)
	} else {
		iv = underlying.Sub(instr.Strike)
	}
	if iv.IsNegative() {
		return decimal.Zero
	}
	return iv
}
