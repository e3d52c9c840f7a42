// Package amm implements a Logarithmic Market Scoring Rule (LMSR) market maker.
//
// Prices follow P(i) = exp(q_i/b) / Σ exp(q_j/b) where q are outstanding shares
// per outcome and b is the liquidity parameter: higher b means more stable
// prices and less capital efficiency. Share and money quantities are decimals
// at the API boundary; the transcendental math runs in float64.
package amm

import (
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

var (
	// ErrNoOutcomes is returned when a market is created without outcomes.
	ErrNoOutcomes = errors.New("outcomes must not be empty")
	// ErrInvalidLiquidity is returned for a non-positive liquidity parameter.
	ErrInvalidLiquidity = errors.New("liquidity parameter must be positive")
	// ErrUnknownOutcome is returned when an operation names an outcome the
	// market does not have.
	ErrUnknownOutcome = errors.New("unknown outcome")
	// ErrInvalidAmount is returned for non-positive trade amounts.
	ErrInvalidAmount = errors.New("amount must be positive")
)

// Price band applied after the softmax; no outcome is ever quoted at 0 or 1.
var (
	minPrice = decimal.NewFromFloat(0.01)
	maxPrice = decimal.NewFromFloat(0.99)
)

// minShares is the floor on shares received, so dust-sized buys still move state.
var minShares = decimal.New(1, -6) // 0.000001

// Buy solver knobs: iterative cost matching within a USDC tolerance.
const (
	maxBuyIterations = 10
	buyToleranceUSDC = 0.0001
)

// Market is an LMSR automated market maker over a fixed outcome set.
type Market struct {
	b      decimal.Decimal
	shares map[string]decimal.Decimal
}

// New creates a market with zero outstanding shares for every outcome.
func New(liquidity decimal.Decimal, outcomes []string) (*Market, error) {
	if len(outcomes) == 0 {
		return nil, ErrNoOutcomes
	}
	if liquidity.LessThanOrEqual(decimal.Zero) {
		return nil, ErrInvalidLiquidity
	}

	shares := make(map[string]decimal.Decimal, len(outcomes))
	for _, outcome := range outcomes {
		shares[outcome] = decimal.Zero
	}
	return &Market{b: liquidity, shares: shares}, nil
}

// Liquidity returns the liquidity parameter (b).
func (m *Market) Liquidity() decimal.Decimal { return m.b }

// Prices returns the current price per outcome. With no shares outstanding all
// outcomes are priced equally; otherwise softmax over shares/b, clamped to
// [0.01, 0.99] and renormalized to sum to 1.
func (m *Market) Prices() map[string]decimal.Decimal {
	prices := make(map[string]decimal.Decimal, len(m.shares))

	allZero := true
	for _, q := range m.shares {
		if !q.IsZero() {
			allZero = false
			break
		}
	}
	if allZero {
		equal := decimal.NewFromInt(1).Div(decimal.NewFromInt(int64(len(m.shares))))
		for outcome := range m.shares {
			prices[outcome] = equal
		}
		return prices
	}

	b := m.b.InexactFloat64()

	// Shift by the max exponent for numerical stability.
	maxExp := math.Inf(-1)
	for _, q := range m.shares {
		if e := q.InexactFloat64() / b; e > maxExp {
			maxExp = e
		}
	}

	var sumExp float64
	exps := make(map[string]float64, len(m.shares))
	for outcome, q := range m.shares {
		e := math.Exp(q.InexactFloat64()/b - maxExp)
		exps[outcome] = e
		sumExp += e
	}

	var sum decimal.Decimal
	for outcome, e := range exps {
		p := decimal.NewFromFloat(e / sumExp)
		if p.LessThan(minPrice) {
			p = minPrice
		}
		if p.GreaterThan(maxPrice) {
			p = maxPrice
		}
		prices[outcome] = p
		sum = sum.Add(p)
	}

	if sum.IsPositive() {
		for outcome := range prices {
			prices[outcome] = prices[outcome].Div(sum)
		}
	}
	return prices
}

// Cost evaluates the LMSR cost function C(q) = b·ln Σ exp(q_i/b) for the
// current share vector.
func (m *Market) Cost() decimal.Decimal {
	return decimal.NewFromFloat(cost(m.b.InexactFloat64(), m.floatShares()))
}

// Buy computes the shares received for spending amount USDC on an outcome,
// solving the cost function iteratively: start from amount/price, then refine
// until the implied cost difference is within tolerance. Returns the shares
// received, the outcome's post-trade price, and the full post-trade price map.
// Buy does not mutate the market; call AddShares to commit the trade.
func (m *Market) Buy(outcome string, amount decimal.Decimal) (decimal.Decimal, decimal.Decimal, map[string]decimal.Decimal, error) {
	if _, ok := m.shares[outcome]; !ok {
		return decimal.Zero, decimal.Zero, nil, fmt.Errorf("%w: %s", ErrUnknownOutcome, outcome)
	}
	if amount.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, decimal.Zero, nil, ErrInvalidAmount
	}

	b := m.b.InexactFloat64()
	amt := amount.InexactFloat64()
	currentPrice := m.Prices()[outcome].InexactFloat64()
	costBefore := cost(b, m.floatShares())

	sharesReceived := amt / currentPrice
	for i := 0; i < maxBuyIterations; i++ {
		test := m.floatShares()
		test[outcome] += sharesReceived

		costDiff := cost(b, test) - costBefore
		if math.Abs(costDiff-amt) < buyToleranceUSDC {
			break
		}

		sharesReceived += (amt - costDiff) / currentPrice
		if sharesReceived <= 0 {
			sharesReceived = minShares.InexactFloat64()
		}
	}

	shares := decimal.NewFromFloat(sharesReceived)
	if shares.LessThan(minShares) {
		shares = minShares
	}

	after := &Market{b: m.b, shares: make(map[string]decimal.Decimal, len(m.shares))}
	for o, q := range m.shares {
		after.shares[o] = q
	}
	after.shares[outcome] = after.shares[outcome].Add(shares)

	newPrices := after.Prices()
	return shares, newPrices[outcome], newPrices, nil
}

// AddShares commits purchased (or negative, sold) shares to an outcome.
func (m *Market) AddShares(outcome string, qty decimal.Decimal) error {
	q, ok := m.shares[outcome]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownOutcome, outcome)
	}
	m.shares[outcome] = q.Add(qty)
	return nil
}

// Shares returns the outstanding shares for an outcome.
func (m *Market) Shares(outcome string) (decimal.Decimal, bool) {
	q, ok := m.shares[outcome]
	return q, ok
}

// TotalShares returns the sum of outstanding shares across outcomes.
func (m *Market) TotalShares() decimal.Decimal {
	total := decimal.Zero
	for _, q := range m.shares {
		total = total.Add(q)
	}
	return total
}

// floatShares copies the share vector into float64 space for the solver.
func (m *Market) floatShares() map[string]float64 {
	out := make(map[string]float64, len(m.shares))
	for outcome, q := range m.shares {
		out[outcome] = q.InexactFloat64()
	}
	return out
}

// cost evaluates b·ln Σ exp(q_i/b) using the log-sum-exp shift.
func cost(b float64, shares map[string]float64) float64 {
	maxExp := math.Inf(-1)
	for _, q := range shares {
		if e := q / b; e > maxExp {
			maxExp = e
		}
	}

	var sumExp float64
	for _, q := range shares {
		sumExp += math.Exp(q/b - maxExp)
	}
	return b * (maxExp + math.Log(sumExp))
}
