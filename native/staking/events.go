package staking

import (
	"encoding/hex"
	"strconv"

	"github.com/holiman/uint256"

	"farmstake/core/events"
	"farmstake/core/types"
)

const (
	// EventTypeStaked is emitted when an account stakes into a pool.
	EventTypeStaked = "staking.staked"
	// EventTypeUnstaked is emitted when an account withdraws stake.
	EventTypeUnstaked = "staking.unstaked"
	// EventTypeRewardClaimed is emitted when pending reward is paid out.
	EventTypeRewardClaimed = "staking.reward.claimed"
	// EventTypeExited is emitted after a combined claim and full unstake.
	EventTypeExited = "staking.exited"
	// EventTypeRewardAdded is emitted when a pool is funded.
	EventTypeRewardAdded = "staking.reward.added"
	// EventTypeRewardDurationUpdated is emitted when the emission window changes.
	EventTypeRewardDurationUpdated = "staking.duration.updated"
	// EventTypePoolPaused is emitted when a pool is suspended.
	EventTypePoolPaused = "staking.pool.paused"
	// EventTypePoolUnpaused is emitted when a suspension is lifted.
	EventTypePoolUnpaused = "staking.pool.unpaused"
	// EventTypeAssetRecovered is emitted when a stray asset leaves custody.
	EventTypeAssetRecovered = "staking.asset.recovered"
)

type eventEnvelope struct {
	evt *types.Event
}

func (e eventEnvelope) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e eventEnvelope) Event() *types.Event { return e.evt }

// WrapEvent converts a raw event payload into the emitter-friendly envelope.
func WrapEvent(evt *types.Event) events.Event { return eventEnvelope{evt: evt} }

// HexAddr renders an account in 0x-prefixed lowercase hex.
func HexAddr(addr [20]byte) string {
	return "0x" + hex.EncodeToString(addr[:])
}

func decimal(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	return v.Dec()
}

// StakedEvent captures a stake deposit and the resulting balances.
func StakedEvent(pool PoolID, account [20]byte, amount, position, total *uint256.Int) *types.Event {
	return &types.Event{
		Type: EventTypeStaked,
		Attributes: map[string]string{
			"pool":        pool.String(),
			"account":     HexAddr(account),
			"amount":      decimal(amount),
			"position":    decimal(position),
			"totalStaked": decimal(total),
		},
	}
}

// UnstakedEvent captures a stake withdrawal and the resulting balances.
func UnstakedEvent(pool PoolID, account [20]byte, amount, position, total *uint256.Int) *types.Event {
	return &types.Event{
		Type: EventTypeUnstaked,
		Attributes: map[string]string{
			"pool":        pool.String(),
			"account":     HexAddr(account),
			"amount":      decimal(amount),
			"position":    decimal(position),
			"totalStaked": decimal(total),
		},
	}
}

// RewardClaimedEvent captures a reward payout.
func RewardClaimedEvent(pool PoolID, account [20]byte, amount *uint256.Int) *types.Event {
	return &types.Event{
		Type: EventTypeRewardClaimed,
		Attributes: map[string]string{
			"pool":    pool.String(),
			"account": HexAddr(account),
			"amount":  decimal(amount),
		},
	}
}

// ExitedEvent summarises an exit.
func ExitedEvent(pool PoolID, account [20]byte, claimed, unstaked *uint256.Int) *types.Event {
	return &types.Event{
		Type: EventTypeExited,
		Attributes: map[string]string{
			"pool":     pool.String(),
			"account":  HexAddr(account),
			"claimed":  decimal(claimed),
			"unstaked": decimal(unstaked),
		},
	}
}

// RewardAddedEvent captures pool funding and the resulting schedule. The
// rate is the Scale-multiplied value stored on the pool.
func RewardAddedEvent(pool PoolID, funder [20]byte, amount, rateScaled *uint256.Int, finish uint64) *types.Event {
	whole := new(uint256.Int)
	if rateScaled != nil {
		whole.Div(rateScaled, Scale)
	}
	return &types.Event{
		Type: EventTypeRewardAdded,
		Attributes: map[string]string{
			"pool":             pool.String(),
			"funder":           HexAddr(funder),
			"amount":           decimal(amount),
			"rewardRate":       decimal(whole),
			"rewardRateScaled": decimal(rateScaled),
			"periodFinish":     strconv.FormatUint(finish, 10),
		},
	}
}

// RewardDurationUpdatedEvent captures a new emission window.
func RewardDurationUpdatedEvent(pool PoolID, duration uint64) *types.Event {
	return &types.Event{
		Type: EventTypeRewardDurationUpdated,
		Attributes: map[string]string{
			"pool":     pool.String(),
			"duration": strconv.FormatUint(duration, 10),
		},
	}
}

// PauseToggledEvent captures a suspension change.
func PauseToggledEvent(pool PoolID, paused bool) *types.Event {
	kind := EventTypePoolUnpaused
	if paused {
		kind = EventTypePoolPaused
	}
	return &types.Event{
		Type:       kind,
		Attributes: map[string]string{"pool": pool.String()},
	}
}

// AssetRecoveredEvent captures the removal of a stray asset from custody.
func AssetRecoveredEvent(asset string, to [20]byte, amount *uint256.Int) *types.Event {
	return &types.Event{
		Type: EventTypeAssetRecovered,
		Attributes: map[string]string{
			"asset":  asset,
			"to":     HexAddr(to),
			"amount": decimal(amount),
		},
	}
}
