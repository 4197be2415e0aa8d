package staking

import (
	"errors"
	"math"
	"reflect"
	"testing"

	"github.com/holiman/uint256"
)

func TestAddRewardRollsOverLeftover(t *testing.T) {
	h := newHarness(t)
	h.stake(accountA, 1, 100)
	pool := h.fund(1, units(604_800))
	if pool.Rate().Cmp(units(1)) != 0 || pool.PeriodFinish != week {
		t.Fatalf("unexpected schedule: rate=%s finish=%d", pool.Rate().Dec(), pool.PeriodFinish)
	}

	h.now = week / 2
	pool = h.fund(1, units(302_400))
	// Half the first funding is left and joins the new amount.
	if pool.Rate().Cmp(units(1)) != 0 {
		t.Fatalf("expected rolled-over rate of 1 unit/s, got %s", pool.Rate().Dec())
	}
	if pool.PeriodFinish != week/2+week || pool.LastUpdate != week/2 {
		t.Fatalf("unexpected window: last=%d finish=%d", pool.LastUpdate, pool.PeriodFinish)
	}
	if pool.TotalFunded.Cmp(units(907_200)) != 0 {
		t.Fatalf("unexpected funded total %s", pool.TotalFunded.Dec())
	}

	h.now = 10 * week
	if got := h.earned(accountA, 1); got.Cmp(units(907_200)) != 0 {
		t.Fatalf("expected all funding to be earned, got %s", got.Dec())
	}
}

func TestAddRewardAfterExpiry(t *testing.T) {
	h := newHarness(t)
	h.stake(accountA, 1, 1)
	h.fund(1, units(604_800))

	h.now = week + 100
	if status, _ := h.engine.PoolStatus(1); status != StatusExpired {
		t.Fatalf("expected expired pool, got %s", status)
	}
	pool := h.fund(1, units(1_209_600))
	if pool.Rate().Cmp(units(2)) != 0 {
		t.Fatalf("expected fresh rate of 2 units/s, got %s", pool.Rate().Dec())
	}
	if status, _ := h.engine.PoolStatus(1); status != StatusFunded {
		t.Fatalf("expected funded pool, got %s", status)
	}
}

func TestAddRewardTooSmall(t *testing.T) {
	h := newHarness(t)
	if _, err := h.engine.SetRewardDuration(admin, 1, 2_000_000_000_000_000_000); err != nil {
		t.Fatalf("set duration: %v", err)
	}
	h.credit("reward", funderAccount, uint256.NewInt(1))
	_, err := h.engine.AddReward(admin, funderAccount, 1, uint256.NewInt(1))
	if !errors.Is(err, ErrRewardTooSmall) {
		t.Fatalf("expected ErrRewardTooSmall, got %v", err)
	}
	if bal := h.state.balance("reward", funderAccount); bal.Uint64() != 1 {
		t.Fatalf("funder must keep the reward, has %s", bal.Dec())
	}

	// Small raw amounts over the default window still emit.
	h.stake(accountA, 2, 1)
	pool := h.fund(2, uint256.NewInt(10))
	if pool.RewardRateScaled.IsZero() || !pool.Rate().IsZero() {
		t.Fatalf("expected a sub-unit rate, got scaled=%s", pool.RewardRateScaled.Dec())
	}
	h.now = week
	if got := h.earned(accountA, 2); !within(got, uint256.NewInt(10), uint256.NewInt(1)) {
		t.Fatalf("expected the 10 funded units to emit, got %s", got.Dec())
	}
}

func TestAddRewardRefundsEmptyExpiredPool(t *testing.T) {
	h := newHarness(t)
	h.fund(1, uint256.NewInt(604_800))

	// Nobody staked during the whole first period.
	h.now = week + 100
	if status, _ := h.engine.PoolStatus(1); status != StatusExpired {
		t.Fatalf("expected expired pool, got %s", status)
	}
	pool := h.fund(1, uint256.NewInt(604_800))
	if pool.Rate().Uint64() != 2 || pool.LastUpdate != week+100 || pool.PeriodFinish != 2*week+100 {
		t.Fatalf("idle funding did not roll over: rate=%s last=%d finish=%d", pool.Rate().Dec(), pool.LastUpdate, pool.PeriodFinish)
	}

	h.stake(accountA, 1, 10)
	h.now = 3 * week
	claimed, err := h.engine.ClaimReward(accountA, 1)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if claimed.Uint64() != 1_209_600 {
		t.Fatalf("expected both fundings to be claimable, got %s", claimed.Dec())
	}
	if held := h.state.balance("reward", moduleAccount); !held.IsZero() {
		t.Fatalf("custody kept %s after the final claim", held.Dec())
	}
}

func TestRewardDurationOverflow(t *testing.T) {
	h := newHarness(t)
	h.now = 1_000
	if _, err := h.engine.SetRewardDuration(admin, 1, math.MaxUint64-10); !errors.Is(err, ErrOverflow) {
		t.Fatalf("expected ErrOverflow for an unreachable window, got %v", err)
	}

	// Accepted now, but the clock moves past the last fundable instant.
	if _, err := h.engine.SetRewardDuration(admin, 1, math.MaxUint64-2_000); err != nil {
		t.Fatalf("set duration: %v", err)
	}
	h.stake(accountA, 1, 100)
	h.now = 5_000
	amount := new(uint256.Int).Lsh(uint256.NewInt(1), 80)
	h.credit("reward", funderAccount, amount)
	before := h.state.mockData.clone()
	if _, err := h.engine.AddReward(admin, funderAccount, 1, amount); !errors.Is(err, ErrOverflow) {
		t.Fatalf("expected ErrOverflow, got %v", err)
	}
	if !reflect.DeepEqual(before, h.state.mockData) {
		t.Fatalf("overflowing funding mutated state")
	}
	pool, _ := h.engine.Pool(1)
	if !pool.RewardRateScaled.IsZero() || pool.PeriodFinish != 0 {
		t.Fatalf("pool scheduled despite overflow: %+v", pool)
	}
}

func TestAddRewardTransferFailure(t *testing.T) {
	h := newHarness(t)
	_, err := h.engine.AddReward(admin, funderAccount, 1, units(10))
	if !errors.Is(err, ErrTransferFailed) {
		t.Fatalf("expected ErrTransferFailed, got %v", err)
	}
	pool, _ := h.engine.Pool(1)
	if pool.PeriodFinish != 0 || !pool.RewardRateScaled.IsZero() || !pool.TotalFunded.IsZero() {
		t.Fatalf("failed funding changed the pool: %+v", pool)
	}
}

func TestSetRewardDuration(t *testing.T) {
	h := newHarness(t)
	if _, err := h.engine.SetRewardDuration(admin, 1, 0); !errors.Is(err, ErrInvalidDuration) {
		t.Fatalf("expected ErrInvalidDuration, got %v", err)
	}
	pool, err := h.engine.SetRewardDuration(admin, 1, 86_400)
	if err != nil {
		t.Fatalf("set duration: %v", err)
	}
	if pool.RewardDuration != 86_400 {
		t.Fatalf("unexpected duration %d", pool.RewardDuration)
	}

	h.stake(accountA, 1, 1)
	pool = h.fund(1, units(86_400))
	if pool.PeriodFinish != 86_400 || pool.Rate().Cmp(units(1)) != 0 {
		t.Fatalf("funding ignored the new duration: %+v", pool)
	}

	h.now = 86_399
	if _, err := h.engine.SetRewardDuration(admin, 1, week); !errors.Is(err, ErrPeriodActive) {
		t.Fatalf("expected ErrPeriodActive, got %v", err)
	}
	h.now = 86_400
	if _, err := h.engine.SetRewardDuration(admin, 1, week); err != nil {
		t.Fatalf("set duration after finish: %v", err)
	}
	if d, _ := h.engine.RewardDuration(1); d != week {
		t.Fatalf("unexpected duration %d", d)
	}
}

func TestPauseRules(t *testing.T) {
	h := newHarness(t)
	h.stake(accountA, 1, 100)
	h.fund(1, units(604_800))

	if _, err := h.engine.Pause(admin, 1); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if _, err := h.engine.Pause(admin, 1); err != nil {
		t.Fatalf("pause must be idempotent: %v", err)
	}
	h.now = 100

	h.credit("stake/1", accountB, uint256.NewInt(5))
	if _, err := h.engine.Stake(accountB, 1, uint256.NewInt(5)); !errors.Is(err, ErrPoolSuspended) {
		t.Fatalf("expected ErrPoolSuspended for stake, got %v", err)
	}
	h.credit("reward", funderAccount, units(1))
	if _, err := h.engine.AddReward(admin, funderAccount, 1, units(1)); !errors.Is(err, ErrPoolSuspended) {
		t.Fatalf("expected ErrPoolSuspended for funding, got %v", err)
	}
	// Other pools are unaffected.
	h.stake(accountB, 2, 5)

	if _, err := h.engine.Unstake(accountA, 1, uint256.NewInt(10)); err != nil {
		t.Fatalf("unstake while paused: %v", err)
	}
	if _, err := h.engine.ClaimReward(accountA, 1); err != nil {
		t.Fatalf("claim while paused: %v", err)
	}
	if _, err := h.engine.Exit(accountA, 1); err != nil {
		t.Fatalf("exit while paused: %v", err)
	}

	pool, err := h.engine.Unpause(admin, 1)
	if err != nil || pool.Paused {
		t.Fatalf("unpause: %+v (%v)", pool, err)
	}
	if _, err := h.engine.Stake(accountB, 1, uint256.NewInt(5)); err != nil {
		t.Fatalf("stake after unpause: %v", err)
	}

	paused, unpaused := 0, 0
	for _, typ := range h.emitter.typesSeen() {
		switch typ {
		case EventTypePoolPaused:
			paused++
		case EventTypePoolUnpaused:
			unpaused++
		}
	}
	if paused != 1 || unpaused != 1 {
		t.Fatalf("expected one pause and one unpause event, got %d/%d", paused, unpaused)
	}
}

func TestAdminRequiresAuthorization(t *testing.T) {
	h := newHarness(t)
	cases := []struct {
		name string
		auth Authorization
	}{
		{"anonymous", Authorization{}},
		{"missing scope", Authorization{Subject: "ops", Scopes: []string{"staking:read"}}},
		{"scope without subject", Authorization{Scopes: []string{adminScope}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := h.engine.AddReward(tc.auth, funderAccount, 1, units(1)); !errors.Is(err, ErrUnauthorized) {
				t.Fatalf("add reward: expected ErrUnauthorized, got %v", err)
			}
			if _, err := h.engine.SetRewardDuration(tc.auth, 1, 10); !errors.Is(err, ErrUnauthorized) {
				t.Fatalf("set duration: expected ErrUnauthorized, got %v", err)
			}
			if _, err := h.engine.Pause(tc.auth, 1); !errors.Is(err, ErrUnauthorized) {
				t.Fatalf("pause: expected ErrUnauthorized, got %v", err)
			}
			if _, err := h.engine.Unpause(tc.auth, 1); !errors.Is(err, ErrUnauthorized) {
				t.Fatalf("unpause: expected ErrUnauthorized, got %v", err)
			}
			if err := h.engine.RecoverStrayAsset(tc.auth, "junk", uint256.NewInt(1), accountA); !errors.Is(err, ErrUnauthorized) {
				t.Fatalf("recover: expected ErrUnauthorized, got %v", err)
			}
		})
	}

	h.engine.SetAuthorizer(nil)
	if _, err := h.engine.Pause(admin, 1); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected deny-all without authorizer, got %v", err)
	}
}

func TestScopeAuthorizerOverrides(t *testing.T) {
	authz := NewScopeAuthorizer(adminScope).Require(ActionPause, "staking:guardian")
	guardian := Authorization{Subject: "guard", Scopes: []string{"staking:guardian"}}
	if err := authz.Authorize(guardian, ActionPause); err != nil {
		t.Fatalf("guardian should pause: %v", err)
	}
	if err := authz.Authorize(guardian, ActionUnpause); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("guardian must not unpause, got %v", err)
	}
	if err := authz.Authorize(admin, ActionPause); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("override replaces the default scope, got %v", err)
	}
}

func TestRecoverStrayAsset(t *testing.T) {
	h := newHarness(t)
	for _, asset := range []string{"reward", " reward ", "stake", "stake/1", "stake/99", "ｓｔａｋｅ／１"} {
		if err := h.engine.RecoverStrayAsset(admin, asset, uint256.NewInt(1), accountA); !errors.Is(err, ErrReservedAsset) {
			t.Fatalf("%q: expected ErrReservedAsset, got %v", asset, err)
		}
	}
	if h.engine.IsReserved("stakeholder") {
		t.Fatalf("prefix match must respect the class separator")
	}

	h.credit("junk", moduleAccount, uint256.NewInt(50))
	if err := h.engine.RecoverStrayAsset(admin, "junk", new(uint256.Int), accountC); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	if err := h.engine.RecoverStrayAsset(admin, "junk", uint256.NewInt(60), accountC); !errors.Is(err, ErrTransferFailed) {
		t.Fatalf("expected ErrTransferFailed, got %v", err)
	}
	if err := h.engine.RecoverStrayAsset(admin, "junk", uint256.NewInt(50), accountC); err != nil {
		t.Fatalf("recover: %v", err)
	}
	if bal := h.state.balance("junk", accountC); bal.Uint64() != 50 {
		t.Fatalf("recovered asset not delivered: %s", bal.Dec())
	}
	last := h.emitter.events[len(h.emitter.events)-1]
	if last.Type != EventTypeAssetRecovered || last.Attributes["asset"] != "junk" || last.Attributes["amount"] != "50" {
		t.Fatalf("unexpected event %+v", last)
	}
}
