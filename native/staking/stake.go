package staking

import (
	"github.com/holiman/uint256"

	"farmstake/core/types"
)

// Stake moves amount of the pool's asset class from addr into custody and
// credits the position.
func (e *Engine) Stake(addr [20]byte, id PoolID, amount *uint256.Int) (*Position, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if amount == nil || amount.IsZero() {
		return nil, ErrInvalidAmount
	}
	now := e.now()
	var (
		result *Position
		evts   []*types.Event
	)
	err := e.atomic(func() error {
		acc, err := e.load(id, addr, now)
		if err != nil {
			return err
		}
		if acc.pool.Paused {
			return ErrPoolSuspended
		}
		staked, overflow := new(uint256.Int).AddOverflow(acc.position.Amount, amount)
		if overflow {
			return ErrOverflow
		}
		total, overflow := new(uint256.Int).AddOverflow(acc.pool.TotalStaked, amount)
		if overflow {
			return ErrOverflow
		}
		if err := e.custody.TransferIn(e.StakeAsset(id), addr, amount); err != nil {
			return transferError(err)
		}
		acc.position.Amount = staked
		acc.pool.TotalStaked = total
		if err := e.store(acc); err != nil {
			return err
		}
		result = acc.position.Clone()
		evts = append(evts, StakedEvent(id, addr, amount, staked, total))
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.emitAll(evts)
	return result, nil
}

// Unstake returns amount of the pool's asset class from custody to addr.
func (e *Engine) Unstake(addr [20]byte, id PoolID, amount *uint256.Int) (*Position, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if amount == nil || amount.IsZero() {
		return nil, ErrInvalidAmount
	}
	now := e.now()
	var (
		result *Position
		evts   []*types.Event
	)
	err := e.atomic(func() error {
		acc, err := e.load(id, addr, now)
		if err != nil {
			return err
		}
		evt, err := e.withdraw(acc, amount)
		if err != nil {
			return err
		}
		if err := e.store(acc); err != nil {
			return err
		}
		result = acc.position.Clone()
		evts = append(evts, evt)
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.emitAll(evts)
	return result, nil
}

// withdraw debits a touched account and hands the stake back through custody.
func (e *Engine) withdraw(acc *account, amount *uint256.Int) (*types.Event, error) {
	if amount.Cmp(acc.position.Amount) > 0 {
		return nil, ErrInsufficientStake
	}
	if amount.Cmp(acc.pool.TotalStaked) > 0 {
		// Positions never exceed the pool total; reaching this means corrupted state.
		return nil, ErrInsufficientStake
	}
	id, addr := acc.pool.ID, acc.position.Account
	if err := e.custody.TransferOut(e.StakeAsset(id), addr, amount); err != nil {
		return nil, transferError(err)
	}
	acc.position.Amount = new(uint256.Int).Sub(acc.position.Amount, amount)
	acc.pool.TotalStaked = new(uint256.Int).Sub(acc.pool.TotalStaked, amount)
	return UnstakedEvent(id, addr, amount, acc.position.Amount, acc.pool.TotalStaked), nil
}

// payout transfers the pending reward of a touched account. A zero balance is
// not an error and performs no transfer.
func (e *Engine) payout(acc *account) (*uint256.Int, *types.Event, error) {
	pending := copyInt(acc.checkpoint.Pending)
	if pending.IsZero() {
		return pending, nil, nil
	}
	claimed, overflow := new(uint256.Int).AddOverflow(acc.pool.TotalClaimed, pending)
	if overflow {
		return nil, nil, ErrOverflow
	}
	if err := e.custody.TransferOut(e.rewardAsset, acc.position.Account, pending); err != nil {
		return nil, nil, transferError(err)
	}
	acc.checkpoint.Pending = new(uint256.Int)
	acc.pool.TotalClaimed = claimed
	return pending, RewardClaimedEvent(acc.pool.ID, acc.position.Account, pending), nil
}

// ClaimReward pays out everything addr has earned in the pool and returns the amount.
func (e *Engine) ClaimReward(addr [20]byte, id PoolID) (*uint256.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	now := e.now()
	var (
		paid *uint256.Int
		evts []*types.Event
	)
	err := e.atomic(func() error {
		acc, err := e.load(id, addr, now)
		if err != nil {
			return err
		}
		amount, evt, err := e.payout(acc)
		if err != nil {
			return err
		}
		if err := e.store(acc); err != nil {
			return err
		}
		paid = amount
		if evt != nil {
			evts = append(evts, evt)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.emitAll(evts)
	return paid, nil
}

// ExitResult summarises the effect of Exit.
type ExitResult struct {
	Claimed  *uint256.Int
	Unstaked *uint256.Int
}

// Exit claims the pending reward and unstakes the full position in one step.
// Either both transfers happen or neither does.
func (e *Engine) Exit(addr [20]byte, id PoolID) (*ExitResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	now := e.now()
	var (
		result *ExitResult
		evts   []*types.Event
	)
	err := e.atomic(func() error {
		acc, err := e.load(id, addr, now)
		if err != nil {
			return err
		}
		claimed, claimEvt, err := e.payout(acc)
		if err != nil {
			return err
		}
		if claimEvt != nil {
			evts = append(evts, claimEvt)
		}
		unstaked := copyInt(acc.position.Amount)
		if !unstaked.IsZero() {
			evt, err := e.withdraw(acc, unstaked)
			if err != nil {
				return err
			}
			evts = append(evts, evt)
		}
		if err := e.store(acc); err != nil {
			return err
		}
		result = &ExitResult{Claimed: claimed, Unstaked: unstaked}
		evts = append(evts, ExitedEvent(id, addr, claimed, unstaked))
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.emitAll(evts)
	return result, nil
}
