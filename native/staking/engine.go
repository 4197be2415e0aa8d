package staking

import (
	"fmt"
	"strings"
	"time"

	"github.com/holiman/uint256"

	"farmstake/core/events"
	"farmstake/core/types"
)

// DefaultRewardDuration is the emission window applied to pools that were never configured.
const DefaultRewardDuration uint64 = 7 * 24 * 60 * 60

type engineState interface {
	StakingPoolGet(id PoolID) (*Pool, bool, error)
	StakingPoolPut(pool *Pool) error
	StakingPositionGet(id PoolID, account [20]byte) (*Position, bool, error)
	StakingPositionPut(pos *Position) error
	StakingCheckpointGet(id PoolID, account [20]byte) (*Checkpoint, bool, error)
	StakingCheckpointPut(cp *Checkpoint) error
	Snapshot() int
	RevertToSnapshot(id int)
}

// Custody moves staked and reward assets between accounts and pool custody.
// Implementations must apply each transfer atomically.
type Custody interface {
	TransferIn(asset string, from [20]byte, amount *uint256.Int) error
	TransferOut(asset string, to [20]byte, amount *uint256.Int) error
	BalanceOf(asset string, account [20]byte) (*uint256.Int, error)
}

// Config names the assets the engine is responsible for.
type Config struct {
	// RewardAsset is the asset paid out to stakers.
	RewardAsset string
	// StakeCollection is the multi-class asset whose class ids key the pools.
	StakeCollection string
	// DefaultDuration seeds RewardDuration for pools seen for the first time.
	DefaultDuration uint64
}

// Engine implements reward accrual, staking and claiming across pools.
//
// The engine performs no locking. Callers must serialise operations that touch
// the same pool.
type Engine struct {
	state           engineState
	custody         Custody
	authorizer      Authorizer
	emitter         events.Emitter
	nowFn           func() int64
	rewardAsset     string
	stakeCollection string
	defaultDuration uint64
}

// NewEngine constructs a staking engine with default dependencies.
func NewEngine(cfg Config) *Engine {
	duration := cfg.DefaultDuration
	if duration == 0 {
		duration = DefaultRewardDuration
	}
	return &Engine{
		emitter:         events.NoopEmitter{},
		authorizer:      denyAll{},
		nowFn:           func() int64 { return time.Now().Unix() },
		rewardAsset:     types.NormalizeAssetID(cfg.RewardAsset),
		stakeCollection: types.NormalizeAssetID(cfg.StakeCollection),
		defaultDuration: duration,
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetCustody configures the asset custody adapter.
func (e *Engine) SetCustody(custody Custody) { e.custody = custody }

// SetAuthorizer configures the access-control collaborator for privileged calls.
func (e *Engine) SetAuthorizer(authorizer Authorizer) {
	if authorizer == nil {
		e.authorizer = denyAll{}
		return
	}
	e.authorizer = authorizer
}

// SetEmitter configures the event emitter used by the engine.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source used for deterministic testing.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// RewardAsset returns the asset paid to stakers.
func (e *Engine) RewardAsset() string { return e.rewardAsset }

// StakeAsset returns the asset identifier staked into the given pool.
func (e *Engine) StakeAsset(id PoolID) string {
	return StakeAssetID(e.stakeCollection, id)
}

// StakeAssetID formats the identifier of a class within a multi-class collection.
func StakeAssetID(collection string, id PoolID) string {
	return fmt.Sprintf("%s/%d", collection, uint64(id))
}

func (e *Engine) now() uint64 {
	var ts int64
	if e == nil || e.nowFn == nil {
		ts = time.Now().Unix()
	} else {
		ts = e.nowFn()
	}
	if ts < 0 {
		return 0
	}
	return uint64(ts)
}

func (e *Engine) ready() error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	if e.custody == nil {
		return ErrNilCustody
	}
	return e.validateAssets()
}

// validateAssets rejects configurations under which the reward asset could be
// staked or staked classes would escape IsReserved.
func (e *Engine) validateAssets() error {
	switch {
	case e.rewardAsset == "":
		return fmt.Errorf("%w: reward asset required", ErrInvalidConfig)
	case e.stakeCollection == "":
		return fmt.Errorf("%w: stake collection required", ErrInvalidConfig)
	case e.rewardAsset == e.stakeCollection || strings.HasPrefix(e.rewardAsset, e.stakeCollection+"/"):
		return fmt.Errorf("%w: reward asset %q belongs to stake collection %q", ErrInvalidConfig, e.rewardAsset, e.stakeCollection)
	}
	return nil
}

func (e *Engine) emitAll(evts []*types.Event) {
	if e == nil || e.emitter == nil {
		return
	}
	for _, evt := range evts {
		if evt != nil {
			e.emitter.Emit(WrapEvent(evt))
		}
	}
}

// atomic runs fn against a state snapshot and reverts every write, including
// custody transfers routed through the same state, when fn fails.
func (e *Engine) atomic(fn func() error) error {
	snap := e.state.Snapshot()
	if err := fn(); err != nil {
		e.state.RevertToSnapshot(snap)
		return err
	}
	return nil
}

func (e *Engine) loadPool(id PoolID) (*Pool, error) {
	pool, ok, err := e.state.StakingPoolGet(id)
	if err != nil {
		return nil, err
	}
	if !ok || pool == nil {
		return newPool(id, e.defaultDuration), nil
	}
	pool.ID = id
	pool.ensureDefaults(e.defaultDuration)
	return pool, nil
}

func (e *Engine) loadPosition(id PoolID, account [20]byte) (*Position, error) {
	pos, ok, err := e.state.StakingPositionGet(id, account)
	if err != nil {
		return nil, err
	}
	if !ok || pos == nil {
		return &Position{Pool: id, Account: account, Amount: new(uint256.Int)}, nil
	}
	pos.Pool, pos.Account = id, account
	pos.Amount = zeroIfNil(pos.Amount)
	return pos, nil
}

func (e *Engine) loadCheckpoint(id PoolID, account [20]byte) (*Checkpoint, error) {
	cp, ok, err := e.state.StakingCheckpointGet(id, account)
	if err != nil {
		return nil, err
	}
	if !ok || cp == nil {
		return &Checkpoint{Pool: id, Account: account, RewardPerSharePaid: new(uint256.Int), Pending: new(uint256.Int)}, nil
	}
	cp.Pool, cp.Account = id, account
	cp.RewardPerSharePaid = zeroIfNil(cp.RewardPerSharePaid)
	cp.Pending = zeroIfNil(cp.Pending)
	return cp, nil
}

// account bundles the records touched by an account-level operation.
type account struct {
	pool       *Pool
	position   *Position
	checkpoint *Checkpoint
}

// load reads the pool and account records and brings both up to date at now.
func (e *Engine) load(id PoolID, addr [20]byte, now uint64) (*account, error) {
	pool, err := e.loadPool(id)
	if err != nil {
		return nil, err
	}
	pos, err := e.loadPosition(id, addr)
	if err != nil {
		return nil, err
	}
	cp, err := e.loadCheckpoint(id, addr)
	if err != nil {
		return nil, err
	}
	if err := touchPool(pool, now); err != nil {
		return nil, err
	}
	if err := touchAccount(pool, pos, cp); err != nil {
		return nil, err
	}
	return &account{pool: pool, position: pos, checkpoint: cp}, nil
}

func (e *Engine) store(acc *account) error {
	if err := e.state.StakingPoolPut(acc.pool); err != nil {
		return err
	}
	if err := e.state.StakingPositionPut(acc.position); err != nil {
		return err
	}
	return e.state.StakingCheckpointPut(acc.checkpoint)
}

// Pool returns a copy of the pool record. Unknown pools return their default state.
func (e *Engine) Pool(id PoolID) (*Pool, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	pool, err := e.loadPool(id)
	if err != nil {
		return nil, err
	}
	return pool.Clone(), nil
}

// PoolStatus reports the emission state of the pool at the engine clock.
func (e *Engine) PoolStatus(id PoolID) (PoolStatus, error) {
	pool, err := e.Pool(id)
	if err != nil {
		return "", err
	}
	return pool.Status(e.now()), nil
}

// TotalStaked returns the pool-wide staked quantity.
func (e *Engine) TotalStaked(id PoolID) (*uint256.Int, error) {
	pool, err := e.Pool(id)
	if err != nil {
		return nil, err
	}
	return pool.TotalStaked, nil
}

// RewardRate returns the whole reward units emitted per second. Accrual runs on
// the Scale-multiplied rate kept in the pool record.
func (e *Engine) RewardRate(id PoolID) (*uint256.Int, error) {
	pool, err := e.Pool(id)
	if err != nil {
		return nil, err
	}
	return pool.Rate(), nil
}

// PeriodFinish returns the unix time at which the current emission ends.
func (e *Engine) PeriodFinish(id PoolID) (uint64, error) {
	pool, err := e.Pool(id)
	if err != nil {
		return 0, err
	}
	return pool.PeriodFinish, nil
}

// RewardDuration returns the emission window applied by the next AddReward.
func (e *Engine) RewardDuration(id PoolID) (uint64, error) {
	pool, err := e.Pool(id)
	if err != nil {
		return 0, err
	}
	return pool.RewardDuration, nil
}

// Paused reports whether staking and funding are suspended on the pool.
func (e *Engine) Paused(id PoolID) (bool, error) {
	pool, err := e.Pool(id)
	if err != nil {
		return false, err
	}
	return pool.Paused, nil
}

// StakedAmount returns the quantity addr has staked into the pool.
func (e *Engine) StakedAmount(addr [20]byte, id PoolID) (*uint256.Int, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	pos, err := e.loadPosition(id, addr)
	if err != nil {
		return nil, err
	}
	return copyInt(pos.Amount), nil
}

// Earned returns the reward addr could claim right now. It never writes state.
func (e *Engine) Earned(addr [20]byte, id PoolID) (*uint256.Int, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	pool, err := e.loadPool(id)
	if err != nil {
		return nil, err
	}
	pos, err := e.loadPosition(id, addr)
	if err != nil {
		return nil, err
	}
	cp, err := e.loadCheckpoint(id, addr)
	if err != nil {
		return nil, err
	}
	return earned(pool, pos, cp, e.now())
}

// BalanceOf proxies a balance query to the custody adapter.
func (e *Engine) BalanceOf(asset string, addr [20]byte) (*uint256.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	return e.custody.BalanceOf(asset, addr)
}
