package staking

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// PoolID identifies a reward pool. It doubles as the class id of the staked asset.
type PoolID uint64

// String renders the pool id in decimal form.
func (id PoolID) String() string { return strconv.FormatUint(uint64(id), 10) }

// ParsePoolID parses a decimal pool identifier.
func ParsePoolID(raw string) (PoolID, error) {
	value, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("staking: invalid pool id %q", raw)
	}
	return PoolID(value), nil
}

// ParseAccount parses a 0x-prefixed 20-byte hex account identifier.
func ParseAccount(raw string) ([20]byte, error) {
	trimmed := strings.TrimSpace(raw)
	if !common.IsHexAddress(trimmed) {
		return [20]byte{}, fmt.Errorf("staking: invalid account %q", raw)
	}
	return common.HexToAddress(trimmed), nil
}

// Pool holds the per-pool reward accumulator and emission schedule.
//
// Timestamps are unix seconds. RewardRateScaled and RewardPerShareStored are
// scaled by Scale.
type Pool struct {
	ID                   PoolID       `json:"id"`
	TotalStaked          *uint256.Int `json:"totalStaked"`
	RewardRateScaled     *uint256.Int `json:"rewardRateScaled"`
	PeriodFinish         uint64       `json:"periodFinish"`
	LastUpdate           uint64       `json:"lastUpdate"`
	RewardPerShareStored *uint256.Int `json:"rewardPerShareStored"`
	RewardDuration       uint64       `json:"rewardDuration"`
	Paused               bool         `json:"paused"`
	TotalFunded          *uint256.Int `json:"totalFunded"`
	TotalClaimed         *uint256.Int `json:"totalClaimed"`
}

// Clone returns a deep copy of the pool.
func (p *Pool) Clone() *Pool {
	if p == nil {
		return nil
	}
	clone := *p
	clone.TotalStaked = copyInt(p.TotalStaked)
	clone.RewardRateScaled = copyInt(p.RewardRateScaled)
	clone.RewardPerShareStored = copyInt(p.RewardPerShareStored)
	clone.TotalFunded = copyInt(p.TotalFunded)
	clone.TotalClaimed = copyInt(p.TotalClaimed)
	return &clone
}

// Rate returns the whole reward units emitted per second, rounded down.
func (p *Pool) Rate() *uint256.Int {
	if p == nil || p.RewardRateScaled == nil {
		return new(uint256.Int)
	}
	return new(uint256.Int).Div(p.RewardRateScaled, Scale)
}

func newPool(id PoolID, duration uint64) *Pool {
	return &Pool{
		ID:                   id,
		TotalStaked:          new(uint256.Int),
		RewardRateScaled:     new(uint256.Int),
		RewardPerShareStored: new(uint256.Int),
		RewardDuration:       duration,
		TotalFunded:          new(uint256.Int),
		TotalClaimed:         new(uint256.Int),
	}
}

func (p *Pool) ensureDefaults(duration uint64) {
	p.TotalStaked = zeroIfNil(p.TotalStaked)
	p.RewardRateScaled = zeroIfNil(p.RewardRateScaled)
	p.RewardPerShareStored = zeroIfNil(p.RewardPerShareStored)
	p.TotalFunded = zeroIfNil(p.TotalFunded)
	p.TotalClaimed = zeroIfNil(p.TotalClaimed)
	if p.RewardDuration == 0 {
		p.RewardDuration = duration
	}
}

// Position records the quantity an account has staked into a pool.
type Position struct {
	Pool    PoolID       `json:"pool"`
	Account [20]byte     `json:"account"`
	Amount  *uint256.Int `json:"amount"`
}

// Clone returns a deep copy of the position.
func (p *Position) Clone() *Position {
	if p == nil {
		return nil
	}
	clone := *p
	clone.Amount = copyInt(p.Amount)
	return &clone
}

// Checkpoint is the account's accrual snapshot for a pool.
type Checkpoint struct {
	Pool               PoolID       `json:"pool"`
	Account            [20]byte     `json:"account"`
	RewardPerSharePaid *uint256.Int `json:"rewardPerSharePaid"`
	Pending            *uint256.Int `json:"pending"`
}

// Clone returns a deep copy of the checkpoint.
func (c *Checkpoint) Clone() *Checkpoint {
	if c == nil {
		return nil
	}
	clone := *c
	clone.RewardPerSharePaid = copyInt(c.RewardPerSharePaid)
	clone.Pending = copyInt(c.Pending)
	return &clone
}

// PoolStatus names the emission state of a pool.
type PoolStatus string

const (
	StatusUninitialized PoolStatus = "uninitialized"
	StatusFunded        PoolStatus = "funded"
	StatusExpired       PoolStatus = "expired"
)

// Status reports the emission state of the pool at now. Suspension is tracked
// separately through Pool.Paused.
func (p *Pool) Status(now uint64) PoolStatus {
	if p == nil || p.PeriodFinish == 0 {
		return StatusUninitialized
	}
	if now < p.PeriodFinish {
		return StatusFunded
	}
	return StatusExpired
}

func copyInt(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return new(uint256.Int).Set(v)
}

func zeroIfNil(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return v
}
