package staking

import (
	"math"

	"github.com/holiman/uint256"
)

// Scale is the fixed-point multiplier applied to the reward-per-share
// accumulator and the stored emission rate. Every division truncates, so rounding always favours the pool.
var Scale = uint256.NewInt(1_000_000_000_000_000_000)

// lastApplicable clamps now to the end of the emission period.
func lastApplicable(p *Pool, now uint64) uint64 {
	if now < p.PeriodFinish {
		return now
	}
	return p.PeriodFinish
}

// CurrentRewardPerShare returns the accumulator value at now without mutating
// the pool. Nothing accrues while the pool is empty.
func CurrentRewardPerShare(p *Pool, now uint64) (*uint256.Int, error) {
	stored := copyInt(p.RewardPerShareStored)
	if p.TotalStaked == nil || p.TotalStaked.IsZero() {
		return stored, nil
	}
	until := lastApplicable(p, now)
	if until <= p.LastUpdate {
		return stored, nil
	}
	// RewardRateScaled already carries Scale, so the quotient is per-share.
	increment, overflow := new(uint256.Int).MulDivOverflow(uint256.NewInt(until-p.LastUpdate), zeroIfNil(p.RewardRateScaled), p.TotalStaked)
	if overflow {
		return nil, ErrOverflow
	}
	if _, overflow := stored.AddOverflow(stored, increment); overflow {
		return nil, ErrOverflow
	}
	return stored, nil
}

// touchPool commits the accumulator at now. LastUpdate only advances while
// somebody is staked; the emission of an empty span stays owed to the pool.
func touchPool(p *Pool, now uint64) error {
	if p.TotalStaked == nil || p.TotalStaked.IsZero() {
		return nil
	}
	current, err := CurrentRewardPerShare(p, now)
	if err != nil {
		return err
	}
	p.RewardPerShareStored = current
	if until := lastApplicable(p, now); until > p.LastUpdate {
		p.LastUpdate = until
	}
	return nil
}

// accountDelta is the reward accrued by amount between two accumulator values.
func accountDelta(amount, current, paid *uint256.Int) (*uint256.Int, error) {
	if amount == nil || amount.IsZero() || current.Cmp(paid) <= 0 {
		return new(uint256.Int), nil
	}
	diff := new(uint256.Int).Sub(current, paid)
	delta, overflow := new(uint256.Int).MulDivOverflow(amount, diff, Scale)
	if overflow {
		return nil, ErrOverflow
	}
	return delta, nil
}

// touchAccount folds the accrual since the last checkpoint into Pending. The
// pool must already be touched and pos must still hold the pre-mutation stake.
func touchAccount(p *Pool, pos *Position, cp *Checkpoint) error {
	delta, err := accountDelta(pos.Amount, p.RewardPerShareStored, zeroIfNil(cp.RewardPerSharePaid))
	if err != nil {
		return err
	}
	pending, overflow := new(uint256.Int).AddOverflow(zeroIfNil(cp.Pending), delta)
	if overflow {
		return ErrOverflow
	}
	cp.Pending = pending
	cp.RewardPerSharePaid = copyInt(p.RewardPerShareStored)
	return nil
}

// earned computes the claimable reward at now on copies of the inputs.
func earned(p *Pool, pos *Position, cp *Checkpoint, now uint64) (*uint256.Int, error) {
	current, err := CurrentRewardPerShare(p, now)
	if err != nil {
		return nil, err
	}
	delta, err := accountDelta(pos.Amount, current, zeroIfNil(cp.RewardPerSharePaid))
	if err != nil {
		return nil, err
	}
	total, overflow := new(uint256.Int).AddOverflow(zeroIfNil(cp.Pending), delta)
	if overflow {
		return nil, ErrOverflow
	}
	return total, nil
}

// leftover is the reward funded but not yet folded into the accumulator. For
// a staked pool touched at now this is (finish-now)*rate, or zero once the
// period has ended. For an empty pool it also covers the idle span.
func leftover(p *Pool) (*uint256.Int, error) {
	if p.PeriodFinish <= p.LastUpdate || p.RewardRateScaled == nil || p.RewardRateScaled.IsZero() {
		return new(uint256.Int), nil
	}
	remaining, overflow := new(uint256.Int).MulDivOverflow(uint256.NewInt(p.PeriodFinish-p.LastUpdate), p.RewardRateScaled, Scale)
	if overflow {
		return nil, ErrOverflow
	}
	return remaining, nil
}

// nextRate computes the Scale-multiplied emission rate after funding amount
// for duration seconds, rolling the unemitted balance of the current period
// forward.
func nextRate(p *Pool, amount *uint256.Int, duration uint64) (*uint256.Int, error) {
	rest, err := leftover(p)
	if err != nil {
		return nil, err
	}
	total, overflow := new(uint256.Int).AddOverflow(amount, rest)
	if overflow {
		return nil, ErrOverflow
	}
	rate, overflow := new(uint256.Int).MulDivOverflow(total, Scale, uint256.NewInt(duration))
	if overflow {
		return nil, ErrOverflow
	}
	return rate, nil
}

// periodEnd returns now+duration, refusing to wrap.
func periodEnd(now, duration uint64) (uint64, error) {
	if duration > math.MaxUint64-now {
		return 0, ErrOverflow
	}
	return now + duration, nil
}
