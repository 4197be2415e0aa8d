package staking

import (
	"errors"
	"reflect"
	"testing"

	"github.com/holiman/uint256"
)

const week = 604800

func TestOneDayScenario(t *testing.T) {
	h := newHarness(t)
	h.stake(accountA, 1, 100)
	h.fund(1, uint256.NewInt(1_000_000))

	h.now = 86_400
	if got := h.earned(accountA, 1); got.Uint64() != 142_857 {
		t.Fatalf("expected 142857 units after one day, got %s", got.Dec())
	}
	h.now = week
	if got := h.earned(accountA, 1); !within(got, uint256.NewInt(1_000_000), uint256.NewInt(1)) {
		t.Fatalf("expected the whole funding by period end, got %s", got.Dec())
	}
}

func TestOneDayScenarioEighteenDecimals(t *testing.T) {
	h := newHarness(t)
	h.stake(accountA, 1, 100)
	h.fund(1, units(1_000_000))

	h.now = 86_400
	got := h.earned(accountA, 1)
	want, _ := uint256.FromDecimal("142857142857142857142857")
	if got.Cmp(want) != 0 {
		t.Fatalf("unexpected earned: got %s want %s", got.Dec(), want.Dec())
	}
}

func TestLateJoinerSplit(t *testing.T) {
	h := newHarness(t)
	h.stake(accountA, 1, 100)
	h.fund(1, units(1_000_000))

	h.now = week / 2
	h.stake(accountB, 1, 100)

	h.now = week
	funded := units(1_000_000)
	quarter := new(uint256.Int).Div(funded, uint256.NewInt(4))
	threeQuarters := new(uint256.Int).Mul(quarter, uint256.NewInt(3))
	tolerance := uint256.NewInt(week)

	if got := h.earned(accountA, 1); !within(got, threeQuarters, tolerance) {
		t.Fatalf("A expected ~75%%, got %s", got.Dec())
	}
	if got := h.earned(accountB, 1); !within(got, quarter, tolerance) {
		t.Fatalf("B expected ~25%%, got %s", got.Dec())
	}
}

func TestProportionalSplit(t *testing.T) {
	h := newHarness(t)
	h.stake(accountA, 2, 500)
	h.stake(accountB, 2, 500)
	funded := units(70_000)
	h.fund(2, funded)

	h.now = week + 10
	half := new(uint256.Int).Div(funded, uint256.NewInt(2))
	a, b := h.earned(accountA, 2), h.earned(accountB, 2)
	if a.Cmp(b) != 0 {
		t.Fatalf("equal stakes must earn equally: %s vs %s", a.Dec(), b.Dec())
	}
	if !within(a, half, uint256.NewInt(week)) {
		t.Fatalf("expected half of funding, got %s", a.Dec())
	}
}

func TestNoLeakWhileEmpty(t *testing.T) {
	h := newHarness(t)
	funded := units(1_000_000)
	h.fund(1, funded)

	h.now = 300_000
	h.stake(accountA, 1, 100)

	h.now = 2 * week
	claimed, err := h.engine.ClaimReward(accountA, 1)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if !within(claimed, funded, uint256.NewInt(week)) {
		t.Fatalf("expected full funding to be claimable, got %s", claimed.Dec())
	}
	if bal := h.state.balance("reward", accountA); bal.Cmp(claimed) != 0 {
		t.Fatalf("claim did not reach the account: %s", bal.Dec())
	}
}

func TestNoLeakAcrossEmptyGap(t *testing.T) {
	h := newHarness(t)
	funded := units(604_800)
	h.stake(accountA, 1, 10)
	h.fund(1, funded)

	h.now = 100_000
	if _, err := h.engine.Exit(accountA, 1); err != nil {
		t.Fatalf("exit: %v", err)
	}
	h.now = 200_000
	h.stake(accountB, 1, 10)
	h.now = week

	a := h.state.balance("reward", accountA)
	b := h.earned(accountB, 1)
	total := new(uint256.Int).Add(a, b)
	if !within(total, funded, uint256.NewInt(week)) {
		t.Fatalf("empty gap leaked reward: a=%s b=%s", a.Dec(), b.Dec())
	}
	if !within(a, units(100_000), uint256.NewInt(10)) {
		t.Fatalf("unexpected reward for A: %s", a.Dec())
	}
}

func TestNoLeakSixDecimals(t *testing.T) {
	const usdt = 1_000_000
	h := newHarness(t)
	funded := uint256.NewInt(250 * usdt)
	h.fund(1, funded)

	h.now = 123_457
	h.stake(accountA, 1, 3)
	h.now = 200_001
	h.stake(accountB, 1, 7)
	h.now = 400_000
	if _, err := h.engine.Exit(accountA, 1); err != nil {
		t.Fatalf("exit: %v", err)
	}
	h.now = 2 * week
	if _, err := h.engine.ClaimReward(accountB, 1); err != nil {
		t.Fatalf("claim: %v", err)
	}

	paid := new(uint256.Int).Add(h.state.balance("reward", accountA), h.state.balance("reward", accountB))
	if paid.Cmp(funded) > 0 {
		t.Fatalf("paid %s exceeds funding %s", paid.Dec(), funded.Dec())
	}
	// One base unit of rounding per accrual step at most.
	if !within(paid, funded, uint256.NewInt(4)) {
		t.Fatalf("empty span leaked reward: paid %s of %s", paid.Dec(), funded.Dec())
	}
	if held := h.state.balance("reward", moduleAccount); new(uint256.Int).Add(held, paid).Cmp(funded) != 0 {
		t.Fatalf("custody %s does not cover the unpaid remainder", held.Dec())
	}
}

func TestEarnedIsIdempotent(t *testing.T) {
	h := newHarness(t)
	h.stake(accountA, 1, 42)
	h.fund(1, units(1_000))
	h.now = 12_345

	before := h.state.mockData.clone()
	first := h.earned(accountA, 1)
	second := h.earned(accountA, 1)
	if first.Cmp(second) != 0 {
		t.Fatalf("earned changed between reads: %s vs %s", first.Dec(), second.Dec())
	}
	if !reflect.DeepEqual(before, h.state.mockData) {
		t.Fatalf("earned must not write state")
	}
}

func TestUnstakeInsufficientLeavesStateUnchanged(t *testing.T) {
	h := newHarness(t)
	h.stake(accountA, 1, 100)
	h.fund(1, units(1_000))
	h.now = 1_000

	before := h.state.mockData.clone()
	emitted := len(h.emitter.events)
	_, err := h.engine.Unstake(accountA, 1, uint256.NewInt(101))
	if !errors.Is(err, ErrInsufficientStake) {
		t.Fatalf("expected ErrInsufficientStake, got %v", err)
	}
	if !reflect.DeepEqual(before, h.state.mockData) {
		t.Fatalf("failed unstake mutated state")
	}
	if len(h.emitter.events) != emitted {
		t.Fatalf("failed unstake emitted events")
	}
}

func TestStakeAndUnstake(t *testing.T) {
	h := newHarness(t)
	h.stake(accountA, 3, 60)
	h.stake(accountB, 3, 40)

	total, err := h.engine.TotalStaked(3)
	if err != nil || total.Uint64() != 100 {
		t.Fatalf("unexpected total staked %v (%v)", total, err)
	}
	pos, err := h.engine.Unstake(accountA, 3, uint256.NewInt(25))
	if err != nil {
		t.Fatalf("unstake: %v", err)
	}
	if pos.Amount.Uint64() != 35 {
		t.Fatalf("unexpected remaining stake %s", pos.Amount.Dec())
	}
	if staked, _ := h.engine.StakedAmount(accountA, 3); staked.Uint64() != 35 {
		t.Fatalf("unexpected staked amount %s", staked.Dec())
	}
	if bal := h.state.balance("stake/3", accountA); bal.Uint64() != 25 {
		t.Fatalf("unstaked units not returned: %s", bal.Dec())
	}
	if bal := h.state.balance("stake/3", moduleAccount); bal.Uint64() != 75 {
		t.Fatalf("unexpected custody balance %s", bal.Dec())
	}
	want := []string{EventTypeStaked, EventTypeStaked, EventTypeUnstaked}
	if got := h.emitter.typesSeen(); !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected events %v", got)
	}
	if attrs := h.emitter.events[2].Attributes; attrs["position"] != "35" || attrs["totalStaked"] != "75" || attrs["pool"] != "3" {
		t.Fatalf("unexpected unstake attributes %v", attrs)
	}
}

func TestZeroAmountsRejected(t *testing.T) {
	h := newHarness(t)
	if _, err := h.engine.Stake(accountA, 1, new(uint256.Int)); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount for stake, got %v", err)
	}
	if _, err := h.engine.Unstake(accountA, 1, nil); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount for unstake, got %v", err)
	}
	if _, err := h.engine.AddReward(admin, funderAccount, 1, new(uint256.Int)); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount for reward, got %v", err)
	}
}

func TestStakeTransferFailureIsAtomic(t *testing.T) {
	h := newHarness(t)
	h.stake(accountA, 1, 10)
	h.fund(1, units(100))
	h.now = 5_000

	before := h.state.mockData.clone()
	h.custody.fail["in:stake/1"] = errMockTransfer
	_, err := h.engine.Stake(accountA, 1, uint256.NewInt(1))
	if !errors.Is(err, ErrTransferFailed) || !errors.Is(err, errMockTransfer) {
		t.Fatalf("expected wrapped transfer failure, got %v", err)
	}
	if !reflect.DeepEqual(before, h.state.mockData) {
		t.Fatalf("failed stake mutated state")
	}

	// Insufficient owner balance surfaces the same way.
	delete(h.custody.fail, "in:stake/1")
	if _, err := h.engine.Stake(accountB, 1, uint256.NewInt(1)); !errors.Is(err, ErrTransferFailed) {
		t.Fatalf("expected transfer failure for unfunded account, got %v", err)
	}
}

func TestClaimReward(t *testing.T) {
	h := newHarness(t)
	h.stake(accountA, 1, 100)
	h.fund(1, units(604_800))

	h.now = 1_000
	claimed, err := h.engine.ClaimReward(accountA, 1)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if claimed.Cmp(units(1_000)) != 0 {
		t.Fatalf("unexpected claim %s", claimed.Dec())
	}
	if got := h.earned(accountA, 1); !got.IsZero() {
		t.Fatalf("earned must reset after claim, got %s", got.Dec())
	}
	pool, _ := h.engine.Pool(1)
	if pool.TotalClaimed.Cmp(claimed) != 0 {
		t.Fatalf("pool did not track claimed total")
	}

	emitted := len(h.emitter.events)
	again, err := h.engine.ClaimReward(accountA, 1)
	if err != nil || !again.IsZero() {
		t.Fatalf("second claim in same instant: %v %v", again, err)
	}
	if len(h.emitter.events) != emitted {
		t.Fatalf("zero claim must not emit")
	}
}

func TestClaimTransferFailureKeepsPending(t *testing.T) {
	h := newHarness(t)
	h.stake(accountA, 1, 100)
	h.fund(1, units(604_800))
	h.now = 500

	pending := h.earned(accountA, 1)
	h.custody.fail["out:reward"] = errMockTransfer
	if _, err := h.engine.ClaimReward(accountA, 1); !errors.Is(err, ErrTransferFailed) {
		t.Fatalf("expected ErrTransferFailed, got %v", err)
	}
	if got := h.earned(accountA, 1); got.Cmp(pending) != 0 {
		t.Fatalf("pending changed after failed claim: %s vs %s", got.Dec(), pending.Dec())
	}
}

func TestExit(t *testing.T) {
	h := newHarness(t)
	h.stake(accountA, 1, 100)
	h.fund(1, units(604_800))
	h.now = 2_000

	res, err := h.engine.Exit(accountA, 1)
	if err != nil {
		t.Fatalf("exit: %v", err)
	}
	if res.Claimed.Cmp(units(2_000)) != 0 || res.Unstaked.Uint64() != 100 {
		t.Fatalf("unexpected exit result %+v", res)
	}
	if staked, _ := h.engine.StakedAmount(accountA, 1); !staked.IsZero() {
		t.Fatalf("expected empty position")
	}
	if bal := h.state.balance("stake/1", accountA); bal.Uint64() != 100 {
		t.Fatalf("stake not returned")
	}
	want := []string{EventTypeStaked, EventTypeRewardAdded, EventTypeRewardClaimed, EventTypeUnstaked, EventTypeExited}
	if got := h.emitter.typesSeen(); !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected events %v", got)
	}

	// Nothing left: exit is a successful no-op.
	res, err = h.engine.Exit(accountA, 1)
	if err != nil || !res.Claimed.IsZero() || !res.Unstaked.IsZero() {
		t.Fatalf("expected empty exit, got %+v (%v)", res, err)
	}
}

func TestExitIsAllOrNothing(t *testing.T) {
	h := newHarness(t)
	h.stake(accountA, 1, 100)
	h.fund(1, units(604_800))
	h.now = 2_000

	before := h.state.mockData.clone()
	h.custody.fail["out:stake/1"] = errMockTransfer
	if _, err := h.engine.Exit(accountA, 1); !errors.Is(err, ErrTransferFailed) {
		t.Fatalf("expected ErrTransferFailed, got %v", err)
	}
	if !reflect.DeepEqual(before, h.state.mockData) {
		t.Fatalf("failed exit must not pay the claim half")
	}
}

func TestEngineWithoutCollaborators(t *testing.T) {
	engine := NewEngine(Config{RewardAsset: "reward"})
	if _, err := engine.Stake(accountA, 1, uint256.NewInt(1)); !errors.Is(err, ErrNilState) {
		t.Fatalf("expected ErrNilState, got %v", err)
	}
	engine.SetState(newMockState())
	if _, err := engine.Stake(accountA, 1, uint256.NewInt(1)); !errors.Is(err, ErrNilCustody) {
		t.Fatalf("expected ErrNilCustody, got %v", err)
	}
	engine.SetCustody(&mockCustody{state: newMockState(), fail: map[string]error{}})
	if _, err := engine.Stake(accountA, 1, uint256.NewInt(1)); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig without a stake collection, got %v", err)
	}
	if err := engine.RecoverStrayAsset(admin, "/1", uint256.NewInt(1), accountA); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("staked classes must stay unrecoverable, got %v", err)
	}
	pool, err := engine.Pool(9)
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	if pool.RewardDuration != DefaultRewardDuration || !pool.TotalStaked.IsZero() {
		t.Fatalf("unexpected default pool %+v", pool)
	}
	if status, _ := engine.PoolStatus(9); status != StatusUninitialized {
		t.Fatalf("unexpected status %s", status)
	}
}

func TestEngineRejectsOverlappingAssets(t *testing.T) {
	for _, cfg := range []Config{
		{RewardAsset: "farm", StakeCollection: "farm"},
		{RewardAsset: "farm/1", StakeCollection: "farm"},
		{RewardAsset: " ", StakeCollection: "farm"},
	} {
		engine := NewEngine(cfg)
		state := newMockState()
		engine.SetState(state)
		engine.SetCustody(&mockCustody{state: state, fail: map[string]error{}})
		if _, err := engine.Stake(accountA, 1, uint256.NewInt(1)); !errors.Is(err, ErrInvalidConfig) {
			t.Fatalf("%+v: expected ErrInvalidConfig, got %v", cfg, err)
		}
	}
}

func TestStakeAssetID(t *testing.T) {
	if got := StakeAssetID("farm", 12); got != "farm/12" {
		t.Fatalf("unexpected asset id %s", got)
	}
	id, err := ParsePoolID(" 42 ")
	if err != nil || id != 42 {
		t.Fatalf("unexpected pool id %d (%v)", id, err)
	}
	if _, err := ParsePoolID("-1"); err == nil {
		t.Fatalf("expected error for negative pool id")
	}
	addr, err := ParseAccount("0x00000000000000000000000000000000000000a1")
	if err != nil || addr[19] != 0xa1 {
		t.Fatalf("unexpected account %x (%v)", addr, err)
	}
	if _, err := ParseAccount("0x1234"); err == nil {
		t.Fatalf("expected error for short account")
	}
}
