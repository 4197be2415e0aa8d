package staking

import (
	"strings"

	"github.com/holiman/uint256"

	"farmstake/core/types"
)

// AddReward funds the pool with amount of the reward asset taken from funder
// and restarts the emission window. Reward not yet emitted from the current
// period rolls into the new rate.
func (e *Engine) AddReward(auth Authorization, funder [20]byte, id PoolID, amount *uint256.Int) (*Pool, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := e.authorize(auth, ActionAddReward); err != nil {
		return nil, err
	}
	if amount == nil || amount.IsZero() {
		return nil, ErrInvalidAmount
	}
	now := e.now()
	var (
		result *Pool
		evts   []*types.Event
	)
	err := e.atomic(func() error {
		pool, err := e.loadPool(id)
		if err != nil {
			return err
		}
		if pool.Paused {
			return ErrPoolSuspended
		}
		if err := touchPool(pool, now); err != nil {
			return err
		}
		if pool.RewardDuration == 0 {
			return ErrInvalidDuration
		}
		rate, err := nextRate(pool, amount, pool.RewardDuration)
		if err != nil {
			return err
		}
		if rate.IsZero() {
			return ErrRewardTooSmall
		}
		finish, err := periodEnd(now, pool.RewardDuration)
		if err != nil {
			return err
		}
		funded, overflow := new(uint256.Int).AddOverflow(pool.TotalFunded, amount)
		if overflow {
			return ErrOverflow
		}
		if err := e.custody.TransferIn(e.rewardAsset, funder, amount); err != nil {
			return transferError(err)
		}
		pool.RewardRateScaled = rate
		pool.LastUpdate = now
		pool.PeriodFinish = finish
		pool.TotalFunded = funded
		if err := e.state.StakingPoolPut(pool); err != nil {
			return err
		}
		result = pool.Clone()
		evts = append(evts, RewardAddedEvent(id, funder, amount, rate, pool.PeriodFinish))
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.emitAll(evts)
	return result, nil
}

// SetRewardDuration changes the emission window used by the next AddReward.
// It is rejected while an emission period is running.
func (e *Engine) SetRewardDuration(auth Authorization, id PoolID, duration uint64) (*Pool, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	if err := e.authorize(auth, ActionSetRewardDuration); err != nil {
		return nil, err
	}
	if duration == 0 {
		return nil, ErrInvalidDuration
	}
	now := e.now()
	// A window that cannot end in uint64 time could never be funded.
	if _, err := periodEnd(now, duration); err != nil {
		return nil, err
	}
	var (
		result *Pool
		evts   []*types.Event
	)
	err := e.atomic(func() error {
		pool, err := e.loadPool(id)
		if err != nil {
			return err
		}
		if now < pool.PeriodFinish {
			return ErrPeriodActive
		}
		pool.RewardDuration = duration
		if err := e.state.StakingPoolPut(pool); err != nil {
			return err
		}
		result = pool.Clone()
		evts = append(evts, RewardDurationUpdatedEvent(id, duration))
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.emitAll(evts)
	return result, nil
}

// Pause suspends staking and funding on the pool. Withdrawals stay open.
func (e *Engine) Pause(auth Authorization, id PoolID) (*Pool, error) {
	return e.setPaused(auth, id, true)
}

// Unpause lifts a suspension placed by Pause.
func (e *Engine) Unpause(auth Authorization, id PoolID) (*Pool, error) {
	return e.setPaused(auth, id, false)
}

func (e *Engine) setPaused(auth Authorization, id PoolID, paused bool) (*Pool, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	action := ActionUnpause
	if paused {
		action = ActionPause
	}
	if err := e.authorize(auth, action); err != nil {
		return nil, err
	}
	var (
		result *Pool
		evts   []*types.Event
	)
	err := e.atomic(func() error {
		pool, err := e.loadPool(id)
		if err != nil {
			return err
		}
		if pool.Paused == paused {
			result = pool.Clone()
			return nil
		}
		pool.Paused = paused
		if err := e.state.StakingPoolPut(pool); err != nil {
			return err
		}
		result = pool.Clone()
		evts = append(evts, PauseToggledEvent(id, paused))
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.emitAll(evts)
	return result, nil
}

// IsReserved reports whether asset is owed to stakers: the reward asset or any
// class of the staked collection.
func (e *Engine) IsReserved(asset string) bool {
	asset = types.NormalizeAssetID(asset)
	if asset == "" {
		return false
	}
	if asset == e.rewardAsset {
		return true
	}
	if e.stakeCollection == "" {
		return false
	}
	return asset == e.stakeCollection || strings.HasPrefix(asset, e.stakeCollection+"/")
}

// RecoverStrayAsset sends assets mistakenly transferred into custody to the
// given recipient. Assets owed to stakers can never be recovered.
func (e *Engine) RecoverStrayAsset(auth Authorization, asset string, amount *uint256.Int, to [20]byte) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := e.authorize(auth, ActionRecoverAsset); err != nil {
		return err
	}
	asset = types.NormalizeAssetID(asset)
	if e.IsReserved(asset) {
		return ErrReservedAsset
	}
	if amount == nil || amount.IsZero() {
		return ErrInvalidAmount
	}
	err := e.atomic(func() error {
		if err := e.custody.TransferOut(asset, to, amount); err != nil {
			return transferError(err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	e.emitAll([]*types.Event{AssetRecoveredEvent(asset, to, amount)})
	return nil
}
