package state

import (
	"encoding/binary"
	"fmt"
	"math/big"
	"sort"

	"github.com/holiman/uint256"

	"farmstake/native/staking"
)

// StakingPoolKey returns the state key of a pool record.
func StakingPoolKey(id staking.PoolID) []byte {
	buf := make([]byte, len(stakingPoolPrefix)+8)
	copy(buf, stakingPoolPrefix)
	binary.BigEndian.PutUint64(buf[len(stakingPoolPrefix):], uint64(id))
	return buf
}

func accountScopedKey(prefix []byte, id staking.PoolID, account [20]byte) []byte {
	buf := make([]byte, len(prefix)+8+1+len(account))
	copy(buf, prefix)
	binary.BigEndian.PutUint64(buf[len(prefix):], uint64(id))
	buf[len(prefix)+8] = '/'
	copy(buf[len(prefix)+9:], account[:])
	return buf
}

// StakingPositionKey returns the state key of a stake position.
func StakingPositionKey(id staking.PoolID, account [20]byte) []byte {
	return accountScopedKey(stakingPositionPrefix, id, account)
}

// StakingCheckpointKey returns the state key of an earnings checkpoint.
func StakingCheckpointKey(id staking.PoolID, account [20]byte) []byte {
	return accountScopedKey(stakingCheckpointPrefix, id, account)
}

type storedPool struct {
	TotalStaked          *big.Int
	RewardRateScaled     *big.Int
	PeriodFinish         uint64
	LastUpdate           uint64
	RewardPerShareStored *big.Int
	RewardDuration       uint64
	Paused               bool
	TotalFunded          *big.Int
	TotalClaimed         *big.Int
}

func newStoredPool(p *staking.Pool) *storedPool {
	return &storedPool{
		TotalStaked:          toBig(p.TotalStaked),
		RewardRateScaled:     toBig(p.RewardRateScaled),
		PeriodFinish:         p.PeriodFinish,
		LastUpdate:           p.LastUpdate,
		RewardPerShareStored: toBig(p.RewardPerShareStored),
		RewardDuration:       p.RewardDuration,
		Paused:               p.Paused,
		TotalFunded:          toBig(p.TotalFunded),
		TotalClaimed:         toBig(p.TotalClaimed),
	}
}

func (s *storedPool) toPool(id staking.PoolID) (*staking.Pool, error) {
	pool := &staking.Pool{
		ID:             id,
		PeriodFinish:   s.PeriodFinish,
		LastUpdate:     s.LastUpdate,
		RewardDuration: s.RewardDuration,
		Paused:         s.Paused,
	}
	var err error
	if pool.TotalStaked, err = fromBig(s.TotalStaked); err != nil {
		return nil, err
	}
	if pool.RewardRateScaled, err = fromBig(s.RewardRateScaled); err != nil {
		return nil, err
	}
	if pool.RewardPerShareStored, err = fromBig(s.RewardPerShareStored); err != nil {
		return nil, err
	}
	if pool.TotalFunded, err = fromBig(s.TotalFunded); err != nil {
		return nil, err
	}
	if pool.TotalClaimed, err = fromBig(s.TotalClaimed); err != nil {
		return nil, err
	}
	return pool, nil
}

type storedCheckpoint struct {
	RewardPerSharePaid *big.Int
	Pending            *big.Int
}

func toBig(v *uint256.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return v.ToBig()
}

func fromBig(v *big.Int) (*uint256.Int, error) {
	if v == nil {
		return new(uint256.Int), nil
	}
	out, overflow := uint256.FromBig(v)
	if overflow {
		return nil, fmt.Errorf("state: stored value %s exceeds 256 bits", v)
	}
	return out, nil
}

// StakingPoolGet loads a pool record.
func (m *Manager) StakingPoolGet(id staking.PoolID) (*staking.Pool, bool, error) {
	var stored storedPool
	ok, err := m.KVGet(StakingPoolKey(id), &stored)
	if err != nil || !ok {
		return nil, ok, err
	}
	pool, err := stored.toPool(id)
	if err != nil {
		return nil, false, err
	}
	return pool, true, nil
}

// StakingPoolPut stores a pool record and indexes its id.
func (m *Manager) StakingPoolPut(pool *staking.Pool) error {
	if pool == nil {
		return fmt.Errorf("state: nil pool")
	}
	exists, err := m.KVGet(StakingPoolKey(pool.ID), nil)
	if err != nil {
		return err
	}
	if err := m.KVPut(StakingPoolKey(pool.ID), newStoredPool(pool)); err != nil {
		return err
	}
	if exists {
		return nil
	}
	ids, err := m.StakingPoolIDs()
	if err != nil {
		return err
	}
	raw := make([]uint64, 0, len(ids)+1)
	for _, id := range ids {
		raw = append(raw, uint64(id))
	}
	raw = append(raw, uint64(pool.ID))
	sort.Slice(raw, func(i, j int) bool { return raw[i] < raw[j] })
	return m.KVPut(stakingPoolIndexKey, raw)
}

// StakingPoolIDs returns the ids of every stored pool in ascending order.
func (m *Manager) StakingPoolIDs() ([]staking.PoolID, error) {
	var raw []uint64
	if _, err := m.KVGet(stakingPoolIndexKey, &raw); err != nil {
		return nil, err
	}
	ids := make([]staking.PoolID, 0, len(raw))
	for _, id := range raw {
		ids = append(ids, staking.PoolID(id))
	}
	return ids, nil
}

// StakingPositionGet loads an account's stake position.
func (m *Manager) StakingPositionGet(id staking.PoolID, account [20]byte) (*staking.Position, bool, error) {
	amount := new(big.Int)
	ok, err := m.KVGet(StakingPositionKey(id, account), amount)
	if err != nil || !ok {
		return nil, ok, err
	}
	value, err := fromBig(amount)
	if err != nil {
		return nil, false, err
	}
	return &staking.Position{Pool: id, Account: account, Amount: value}, true, nil
}

// StakingPositionPut stores an account's stake position. Empty positions are
// removed from state.
func (m *Manager) StakingPositionPut(pos *staking.Position) error {
	if pos == nil {
		return fmt.Errorf("state: nil position")
	}
	key := StakingPositionKey(pos.Pool, pos.Account)
	if pos.Amount == nil || pos.Amount.IsZero() {
		return m.KVDelete(key)
	}
	return m.KVPut(key, pos.Amount.ToBig())
}

// StakingCheckpointGet loads an account's earnings checkpoint.
func (m *Manager) StakingCheckpointGet(id staking.PoolID, account [20]byte) (*staking.Checkpoint, bool, error) {
	var stored storedCheckpoint
	ok, err := m.KVGet(StakingCheckpointKey(id, account), &stored)
	if err != nil || !ok {
		return nil, ok, err
	}
	paid, err := fromBig(stored.RewardPerSharePaid)
	if err != nil {
		return nil, false, err
	}
	pending, err := fromBig(stored.Pending)
	if err != nil {
		return nil, false, err
	}
	return &staking.Checkpoint{Pool: id, Account: account, RewardPerSharePaid: paid, Pending: pending}, true, nil
}

// StakingCheckpointPut stores an account's earnings checkpoint.
func (m *Manager) StakingCheckpointPut(cp *staking.Checkpoint) error {
	if cp == nil {
		return fmt.Errorf("state: nil checkpoint")
	}
	return m.KVPut(StakingCheckpointKey(cp.Pool, cp.Account), &storedCheckpoint{
		RewardPerSharePaid: toBig(cp.RewardPerSharePaid),
		Pending:            toBig(cp.Pending),
	})
}
