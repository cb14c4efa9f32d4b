package models

import (
	"errors"
	"fmt"
)

// Budget errors returned by transition methods
var (
	ErrBudgetExhausted       = errors.New("budget exhausted")
	ErrInsufficientTokens    = errors.New("insufficient tokens available")
	ErrInsufficientReserved  = errors.New("release exceeds reserved tokens")
	ErrBudgetCostLimitBreach = errors.New("cost limit would be exceeded")
)

// TokenBudget is a caller-scoped allocation of tokens and spend.
// It is an immutable value object: Reserve, Consume and Release return a
// new budget reflecting the transition and never mutate in place. The
// caller owns persisting the returned successor; concurrent updates
// against the same budget id must be serialized by the caller.
//
// Invariants held after every successful transition:
//
//	Consumed + Reserved <= Allocated
//	AccumulatedCost <= CostLimit (when CostLimit > 0)
type TokenBudget struct {
	ID              string
	Allocated       int
	Consumed        int
	Reserved        int
	CostLimit       float64
	AccumulatedCost float64
	Priority        int
}

// NewTokenBudget creates a validated TokenBudget. A costLimit of zero
// means the budget is unlimited in spend.
func NewTokenBudget(id string, allocated int, costLimit float64, priority int) (TokenBudget, error) {
	if id == "" {
		return TokenBudget{}, errors.New("budget id cannot be empty")
	}
	if allocated < 0 {
		return TokenBudget{}, fmt.Errorf("allocated tokens cannot be negative, got %d", allocated)
	}
	if costLimit < 0 {
		return TokenBudget{}, fmt.Errorf("cost limit cannot be negative, got %f", costLimit)
	}
	if priority < 1 || priority > 10 {
		return TokenBudget{}, fmt.Errorf("priority must be between 1 and 10, got %d", priority)
	}

	return TokenBudget{
		ID:        id,
		Allocated: allocated,
		CostLimit: costLimit,
		Priority:  priority,
	}, nil
}

// Available returns the tokens that are neither consumed nor reserved
func (b TokenBudget) Available() int {
	return b.Allocated - b.Consumed - b.Reserved
}

// IsExhausted reports whether the budget has no tokens left or its
// accumulated cost has reached the limit
func (b TokenBudget) IsExhausted() bool {
	if b.Available() <= 0 {
		return true
	}
	return b.CostLimit > 0 && b.AccumulatedCost >= b.CostLimit
}

// Utilization returns the fraction of allocated tokens already consumed
// or reserved, in [0, 1]
func (b TokenBudget) Utilization() float64 {
	if b.Allocated == 0 {
		return 1
	}
	return float64(b.Consumed+b.Reserved) / float64(b.Allocated)
}

// IsNearExhaustion reports whether utilization has crossed the given
// threshold (e.g. 0.9 for 90%)
func (b TokenBudget) IsNearExhaustion(threshold float64) bool {
	return b.Utilization() >= threshold
}

// Reserve returns a successor budget with n additional tokens reserved.
// It fails without producing a successor when fewer than n tokens are
// available.
func (b TokenBudget) Reserve(n int) (TokenBudget, error) {
	if n < 0 {
		return b, fmt.Errorf("cannot reserve a negative token count: %d", n)
	}
	if b.IsExhausted() {
		return b, ErrBudgetExhausted
	}
	if n > b.Available() {
		return b, fmt.Errorf("%w: requested %d, available %d", ErrInsufficientTokens, n, b.Available())
	}

	next := b
	next.Reserved += n
	return next, nil
}

// Consume returns a successor budget with n tokens consumed and cost
// accumulated. Tokens are drawn from the reserved pool first, then from
// available capacity. It fails, leaving the budget unchanged, when n
// exceeds reserved + available or the cost would breach the limit.
func (b TokenBudget) Consume(n int, cost float64) (TokenBudget, error) {
	if n < 0 {
		return b, fmt.Errorf("cannot consume a negative token count: %d", n)
	}
	if cost < 0 {
		return b, fmt.Errorf("cannot consume a negative cost: %f", cost)
	}
	if n > b.Reserved+b.Available() {
		return b, fmt.Errorf("%w: requested %d, reserved %d, available %d",
			ErrInsufficientTokens, n, b.Reserved, b.Available())
	}
	if b.CostLimit > 0 && b.AccumulatedCost+cost > b.CostLimit {
		return b, fmt.Errorf("%w: accumulated %.4f + %.4f > limit %.4f",
			ErrBudgetCostLimitBreach, b.AccumulatedCost, cost, b.CostLimit)
	}

	next := b
	fromReserved := n
	if fromReserved > next.Reserved {
		fromReserved = next.Reserved
	}
	next.Reserved -= fromReserved
	next.Consumed += n
	next.AccumulatedCost += cost
	return next, nil
}

// Release returns a successor budget with n reserved tokens returned to
// the available pool, for reservations that went unused.
func (b TokenBudget) Release(n int) (TokenBudget, error) {
	if n < 0 {
		return b, fmt.Errorf("cannot release a negative token count: %d", n)
	}
	if n > b.Reserved {
		return b, fmt.Errorf("%w: requested %d, reserved %d", ErrInsufficientReserved, n, b.Reserved)
	}

	next := b
	next.Reserved -= n
	return next, nil
}

// RemainingCost returns the spend remaining under the cost limit, or -1
// when the budget is unlimited
func (b TokenBudget) RemainingCost() float64 {
	if b.CostLimit == 0 {
		return -1
	}
	remaining := b.CostLimit - b.AccumulatedCost
	if remaining < 0 {
		return 0
	}
	return remaining
}
