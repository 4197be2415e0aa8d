package staking

import (
	"errors"
	"fmt"
	"testing"

	"github.com/holiman/uint256"

	"farmstake/core/events"
	"farmstake/core/types"
)

type accountKey struct {
	pool    PoolID
	account [20]byte
}

type balanceKey struct {
	asset   string
	account [20]byte
}

type mockData struct {
	pools       map[PoolID]*Pool
	positions   map[accountKey]*Position
	checkpoints map[accountKey]*Checkpoint
	balances    map[balanceKey]*uint256.Int
}

func (d mockData) clone() mockData {
	out := mockData{
		pools:       make(map[PoolID]*Pool, len(d.pools)),
		positions:   make(map[accountKey]*Position, len(d.positions)),
		checkpoints: make(map[accountKey]*Checkpoint, len(d.checkpoints)),
		balances:    make(map[balanceKey]*uint256.Int, len(d.balances)),
	}
	for k, v := range d.pools {
		out.pools[k] = v.Clone()
	}
	for k, v := range d.positions {
		out.positions[k] = v.Clone()
	}
	for k, v := range d.checkpoints {
		out.checkpoints[k] = v.Clone()
	}
	for k, v := range d.balances {
		out.balances[k] = copyInt(v)
	}
	return out
}

type mockState struct {
	mockData
	snapshots []mockData
}

func newMockState() *mockState {
	return &mockState{mockData: mockData{
		pools:       make(map[PoolID]*Pool),
		positions:   make(map[accountKey]*Position),
		checkpoints: make(map[accountKey]*Checkpoint),
		balances:    make(map[balanceKey]*uint256.Int),
	}}
}

func (m *mockState) StakingPoolGet(id PoolID) (*Pool, bool, error) {
	pool, ok := m.pools[id]
	if !ok {
		return nil, false, nil
	}
	return pool.Clone(), true, nil
}

func (m *mockState) StakingPoolPut(pool *Pool) error {
	m.pools[pool.ID] = pool.Clone()
	return nil
}

func (m *mockState) StakingPositionGet(id PoolID, account [20]byte) (*Position, bool, error) {
	pos, ok := m.positions[accountKey{id, account}]
	if !ok {
		return nil, false, nil
	}
	return pos.Clone(), true, nil
}

func (m *mockState) StakingPositionPut(pos *Position) error {
	m.positions[accountKey{pos.Pool, pos.Account}] = pos.Clone()
	return nil
}

func (m *mockState) StakingCheckpointGet(id PoolID, account [20]byte) (*Checkpoint, bool, error) {
	cp, ok := m.checkpoints[accountKey{id, account}]
	if !ok {
		return nil, false, nil
	}
	return cp.Clone(), true, nil
}

func (m *mockState) StakingCheckpointPut(cp *Checkpoint) error {
	m.checkpoints[accountKey{cp.Pool, cp.Account}] = cp.Clone()
	return nil
}

func (m *mockState) Snapshot() int {
	m.snapshots = append(m.snapshots, m.mockData.clone())
	return len(m.snapshots) - 1
}

func (m *mockState) RevertToSnapshot(id int) {
	if id < 0 || id >= len(m.snapshots) {
		return
	}
	m.mockData = m.snapshots[id]
	m.snapshots = m.snapshots[:id]
}

func (m *mockState) balance(asset string, account [20]byte) *uint256.Int {
	return copyInt(m.balances[balanceKey{asset, account}])
}

func (m *mockState) setBalance(asset string, account [20]byte, amount *uint256.Int) {
	m.balances[balanceKey{asset, account}] = copyInt(amount)
}

// mockCustody keeps balances inside mockState so snapshots cover transfers.
type mockCustody struct {
	state  *mockState
	module [20]byte
	fail   map[string]error
}

var errMockTransfer = errors.New("mock custody: transfer rejected")

func (c *mockCustody) move(asset string, from, to [20]byte, amount *uint256.Int) error {
	have := c.state.balance(asset, from)
	if have.Cmp(amount) < 0 {
		return fmt.Errorf("mock custody: %x holds %s of %s, needs %s", from[:2], have.Dec(), asset, amount.Dec())
	}
	c.state.setBalance(asset, from, new(uint256.Int).Sub(have, amount))
	c.state.setBalance(asset, to, new(uint256.Int).Add(c.state.balance(asset, to), amount))
	return nil
}

func (c *mockCustody) TransferIn(asset string, from [20]byte, amount *uint256.Int) error {
	if err := c.fail["in:"+asset]; err != nil {
		return err
	}
	return c.move(asset, from, c.module, amount)
}

func (c *mockCustody) TransferOut(asset string, to [20]byte, amount *uint256.Int) error {
	if err := c.fail["out:"+asset]; err != nil {
		return err
	}
	return c.move(asset, c.module, to, amount)
}

func (c *mockCustody) BalanceOf(asset string, account [20]byte) (*uint256.Int, error) {
	return c.state.balance(asset, account), nil
}

type captureEmitter struct {
	events []*types.Event
}

func (c *captureEmitter) Emit(evt events.Event) {
	if payload, ok := evt.(interface{ Event() *types.Event }); ok {
		c.events = append(c.events, payload.Event())
	}
}

func (c *captureEmitter) typesSeen() []string {
	out := make([]string, 0, len(c.events))
	for _, evt := range c.events {
		out = append(out, evt.Type)
	}
	return out
}

const adminScope = "staking:admin"

var (
	moduleAccount = [20]byte{0xee}
	funderAccount = [20]byte{0xf0}
	accountA      = [20]byte{0xa1}
	accountB      = [20]byte{0xb2}
	accountC      = [20]byte{0xc3}
	admin         = Authorization{Subject: "ops", Scopes: []string{adminScope}}
)

type harness struct {
	t       *testing.T
	engine  *Engine
	state   *mockState
	custody *mockCustody
	emitter *captureEmitter
	now     int64
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{t: t, state: newMockState(), emitter: &captureEmitter{}}
	h.custody = &mockCustody{state: h.state, module: moduleAccount, fail: map[string]error{}}
	h.engine = NewEngine(Config{RewardAsset: "reward", StakeCollection: "stake"})
	h.engine.SetState(h.state)
	h.engine.SetCustody(h.custody)
	h.engine.SetEmitter(h.emitter)
	h.engine.SetAuthorizer(NewScopeAuthorizer(adminScope))
	h.engine.SetNowFunc(func() int64 { return h.now })
	return h
}

func units(n uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(n), Scale)
}

func (h *harness) credit(asset string, account [20]byte, amount *uint256.Int) {
	h.state.setBalance(asset, account, new(uint256.Int).Add(h.state.balance(asset, account), amount))
}

func (h *harness) fund(id PoolID, amount *uint256.Int) *Pool {
	h.t.Helper()
	h.credit("reward", funderAccount, amount)
	pool, err := h.engine.AddReward(admin, funderAccount, id, amount)
	if err != nil {
		h.t.Fatalf("add reward: %v", err)
	}
	return pool
}

func (h *harness) stake(account [20]byte, id PoolID, amount uint64) {
	h.t.Helper()
	value := uint256.NewInt(amount)
	h.credit(h.engine.StakeAsset(id), account, value)
	if _, err := h.engine.Stake(account, id, value); err != nil {
		h.t.Fatalf("stake: %v", err)
	}
}

func (h *harness) earned(account [20]byte, id PoolID) *uint256.Int {
	h.t.Helper()
	value, err := h.engine.Earned(account, id)
	if err != nil {
		h.t.Fatalf("earned: %v", err)
	}
	return value
}

func within(got, want, tolerance *uint256.Int) bool {
	diff := new(uint256.Int)
	if got.Cmp(want) >= 0 {
		diff.Sub(got, want)
	} else {
		diff.Sub(want, got)
	}
	return diff.Cmp(tolerance) <= 0
}
