package stakingd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/holiman/uint256"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"farmstake/config"
	"farmstake/core/events"
	"farmstake/core/state"
	"farmstake/native/assets"
	"farmstake/native/staking"
	"farmstake/observability"
	"farmstake/observability/journal"
	"farmstake/storage"
)

// systemSubject identifies privileged calls the daemon makes on its own behalf.
const systemSubject = "stakingd"

// Options carries the collaborators of a Service.
type Options struct {
	Config  *config.Config
	DB      storage.Database
	Journal *journal.Journal
	Logger  *slog.Logger
	// Now overrides the engine clock. Unix seconds.
	Now func() int64
}

// Service owns the engine and its state and orders every mutation through a
// single writer. Each successful operation is committed to storage before its
// events are published.
type Service struct {
	cfg     *config.Config
	mu      sync.RWMutex
	state   *state.Manager
	ledger  *assets.Ledger
	custody *assets.Custodian
	engine  *staking.Engine
	buffer  *events.Buffer
	feed    *events.Feed
	journal *journal.Journal
	sink    events.Emitter
	metrics *observability.StakingMetrics
	tracer  trace.Tracer
	logger  *slog.Logger
}

// NewService wires the engine, ledger, state and event pipeline.
func NewService(ctx context.Context, opts Options) (*Service, error) {
	cfg := opts.Config
	if cfg == nil {
		return nil, errors.New("stakingd: config required")
	}
	if opts.DB == nil {
		return nil, errors.New("stakingd: storage required")
	}
	module, err := staking.ParseAccount(cfg.ModuleAccount)
	if err != nil {
		return nil, fmt.Errorf("stakingd: module account: %w", err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	st := state.NewManager(opts.DB)
	buffer := &events.Buffer{}
	ledger := assets.NewLedger(st)
	ledger.SetEmitter(buffer)
	custody := assets.NewCustodian(ledger, module)

	engine := staking.NewEngine(staking.Config{
		RewardAsset:     cfg.RewardAsset,
		StakeCollection: cfg.StakeCollection,
		DefaultDuration: cfg.DefaultDuration,
	})
	engine.SetState(st)
	engine.SetCustody(custody)
	engine.SetAuthorizer(staking.NewScopeAuthorizer(cfg.Admin.Scope))
	engine.SetEmitter(buffer)
	engine.SetNowFunc(opts.Now)

	feed := events.NewFeed(cfg.EventHistory)
	if opts.Journal != nil {
		last, err := opts.Journal.LastSequence(ctx)
		if err != nil {
			return nil, err
		}
		feed.Resume(last)
		feed.AddSink(opts.Journal, func(rec events.Record, err error) {
			logger.Error("journal write failed",
				slog.Uint64("sequence", rec.Sequence),
				slog.String("type", rec.Type),
				slog.Any("error", err))
		})
	}

	svc := &Service{
		cfg:     cfg,
		state:   st,
		ledger:  ledger,
		custody: custody,
		engine:  engine,
		buffer:  buffer,
		feed:    feed,
		journal: opts.Journal,
		sink:    events.MultiEmitter{feed, observability.Events()},
		metrics: observability.Staking(),
		tracer:  otel.Tracer("farmstake/stakingd"),
		logger:  logger,
	}
	if err := svc.applyPoolConfig(); err != nil {
		return nil, err
	}
	if err := svc.refreshAllPools(); err != nil {
		return nil, err
	}
	return svc, nil
}

// Engine exposes the underlying engine for read-only callers.
func (s *Service) Engine() *staking.Engine { return s.engine }

// Feed exposes the live event feed.
func (s *Service) Feed() *events.Feed { return s.feed }

// ModuleAccount returns the custody account stakers must approve.
func (s *Service) ModuleAccount() [20]byte { return s.custody.Account() }

func (s *Service) systemAuth() staking.Authorization {
	return staking.Authorization{Subject: systemSubject, Scopes: []string{s.cfg.Admin.Scope}}
}

// applyPoolConfig seeds the emission window of configured pools that were
// never funded. Funded pools keep their stored duration.
func (s *Service) applyPoolConfig() error {
	for _, pc := range s.cfg.Pools {
		id := staking.PoolID(pc.ID)
		pool, err := s.engine.Pool(id)
		if err != nil {
			return err
		}
		if pool.PeriodFinish != 0 || pool.RewardDuration == pc.DurationSeconds {
			continue
		}
		err = s.run("configure", func() error {
			_, err := s.engine.SetRewardDuration(s.systemAuth(), id, pc.DurationSeconds)
			return err
		}, id)
		if err != nil {
			return fmt.Errorf("stakingd: configure pool %d: %w", pc.ID, err)
		}
		s.logger.Info("pool duration configured", slog.String("pool", id.String()), slog.Uint64("duration", pc.DurationSeconds))
	}
	return nil
}

// run executes fn as a single atomic operation. On success pending state is
// committed and buffered events are published; on failure both are dropped.
func (s *Service) run(op string, fn func() error, pools ...staking.PoolID) error {
	start := time.Now()
	_, span := s.tracer.Start(context.Background(), "staking."+op,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.String("staking.operation", op)))
	defer span.End()
	s.mu.Lock()
	defer s.mu.Unlock()

	err := fn()
	if err == nil {
		if cerr := s.state.Commit(); cerr != nil {
			s.metrics.RecordCommitError()
			err = cerr
		}
	}
	if err != nil {
		s.state.Discard()
		s.buffer.Discard()
		reason := errorReason(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, reason)
		s.metrics.ObserveOperation(op, reason, time.Since(start))
		return err
	}
	span.SetAttributes(attribute.Int("staking.events", s.buffer.Len()))
	s.buffer.Flush(s.sink)
	for _, id := range pools {
		s.recordPool(id)
	}
	s.metrics.ObserveOperation(op, "", time.Since(start))
	return nil
}

func (s *Service) recordPool(id staking.PoolID) {
	pool, err := s.engine.Pool(id)
	if err != nil {
		s.logger.Warn("pool gauge refresh failed", slog.String("pool", id.String()), slog.Any("error", err))
		return
	}
	s.metrics.RecordPool(observability.PoolSnapshot{
		Pool:         id.String(),
		TotalStaked:  pool.TotalStaked,
		RewardRate:   pool.Rate(),
		Funded:       pool.TotalFunded,
		Claimed:      pool.TotalClaimed,
		PeriodFinish: pool.PeriodFinish,
		Paused:       pool.Paused,
	})
}

func (s *Service) refreshAllPools() error {
	ids, err := s.state.StakingPoolIDs()
	if err != nil {
		return err
	}
	for _, id := range ids {
		s.recordPool(id)
	}
	return nil
}

// Stake deposits amount into the pool on behalf of account.
func (s *Service) Stake(account [20]byte, id staking.PoolID, amount *uint256.Int) (*staking.Position, error) {
	var pos *staking.Position
	err := s.run("stake", func() error {
		var err error
		pos, err = s.engine.Stake(account, id, amount)
		return err
	}, id)
	return pos, err
}

// Unstake withdraws amount from the pool back to account.
func (s *Service) Unstake(account [20]byte, id staking.PoolID, amount *uint256.Int) (*staking.Position, error) {
	var pos *staking.Position
	err := s.run("unstake", func() error {
		var err error
		pos, err = s.engine.Unstake(account, id, amount)
		return err
	}, id)
	return pos, err
}

// Claim pays out the pending reward of account.
func (s *Service) Claim(account [20]byte, id staking.PoolID) (*uint256.Int, error) {
	var paid *uint256.Int
	err := s.run("claim", func() error {
		var err error
		paid, err = s.engine.ClaimReward(account, id)
		return err
	}, id)
	return paid, err
}

// Exit claims and withdraws the full position of account.
func (s *Service) Exit(account [20]byte, id staking.PoolID) (*staking.ExitResult, error) {
	var res *staking.ExitResult
	err := s.run("exit", func() error {
		var err error
		res, err = s.engine.Exit(account, id)
		return err
	}, id)
	return res, err
}

// AddReward funds the pool from funder.
func (s *Service) AddReward(auth staking.Authorization, funder [20]byte, id staking.PoolID, amount *uint256.Int) (*staking.Pool, error) {
	var pool *staking.Pool
	err := s.run("add_reward", func() error {
		var err error
		pool, err = s.engine.AddReward(auth, funder, id, amount)
		return err
	}, id)
	return pool, err
}

// SetRewardDuration changes the emission window of an idle pool.
func (s *Service) SetRewardDuration(auth staking.Authorization, id staking.PoolID, duration uint64) (*staking.Pool, error) {
	var pool *staking.Pool
	err := s.run("set_duration", func() error {
		var err error
		pool, err = s.engine.SetRewardDuration(auth, id, duration)
		return err
	}, id)
	return pool, err
}

// SetPaused suspends or resumes the pool.
func (s *Service) SetPaused(auth staking.Authorization, id staking.PoolID, paused bool) (*staking.Pool, error) {
	op := "unpause"
	if paused {
		op = "pause"
	}
	var pool *staking.Pool
	err := s.run(op, func() error {
		var err error
		if paused {
			pool, err = s.engine.Pause(auth, id)
		} else {
			pool, err = s.engine.Unpause(auth, id)
		}
		return err
	}, id)
	return pool, err
}

// Recover sends a stray asset out of custody.
func (s *Service) Recover(auth staking.Authorization, asset string, amount *uint256.Int, to [20]byte) error {
	return s.run("recover", func() error {
		return s.engine.RecoverStrayAsset(auth, asset, amount, to)
	})
}

// Mint issues amount of asset to the recipient on the reference ledger.
func (s *Service) Mint(asset string, to [20]byte, amount *uint256.Int) (*uint256.Int, error) {
	var balance *uint256.Int
	err := s.run("mint", func() error {
		if err := s.ledger.Mint(asset, to, amount); err != nil {
			return err
		}
		var err error
		balance, err = s.ledger.BalanceOf(asset, to)
		return err
	})
	return balance, err
}

// SetApproval grants or revokes operator's right to move owner's assets.
func (s *Service) SetApproval(owner, operator [20]byte, approved bool) error {
	return s.run("approval", func() error {
		return s.ledger.SetApproval(owner, operator, approved)
	})
}

// PoolView is a consistent read of a pool.
type PoolView struct {
	Pool       *staking.Pool
	Status     staking.PoolStatus
	StakeAsset string
}

// Pool returns the pool state at the engine clock.
func (s *Service) Pool(id staking.PoolID) (*PoolView, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pool, err := s.engine.Pool(id)
	if err != nil {
		return nil, err
	}
	status, err := s.engine.PoolStatus(id)
	if err != nil {
		return nil, err
	}
	return &PoolView{Pool: pool, Status: status, StakeAsset: s.engine.StakeAsset(id)}, nil
}

// Pools lists every pool that has been written at least once.
func (s *Service) Pools() ([]*PoolView, error) {
	s.mu.RLock()
	ids, err := s.state.StakingPoolIDs()
	s.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	out := make([]*PoolView, 0, len(ids))
	for _, id := range ids {
		view, err := s.Pool(id)
		if err != nil {
			return nil, err
		}
		out = append(out, view)
	}
	return out, nil
}

// PositionView is a consistent read of an account's position in a pool.
type PositionView struct {
	Pool          staking.PoolID
	Account       [20]byte
	Staked        *uint256.Int
	Earned        *uint256.Int
	StakeBalance  *uint256.Int
	RewardBalance *uint256.Int
	Approved      bool
}

// Position returns the account's stake, claimable reward and wallet balances.
func (s *Service) Position(id staking.PoolID, account [20]byte) (*PositionView, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	staked, err := s.engine.StakedAmount(account, id)
	if err != nil {
		return nil, err
	}
	earned, err := s.engine.Earned(account, id)
	if err != nil {
		return nil, err
	}
	stakeBal, err := s.engine.BalanceOf(s.engine.StakeAsset(id), account)
	if err != nil {
		return nil, err
	}
	rewardBal, err := s.engine.BalanceOf(s.engine.RewardAsset(), account)
	if err != nil {
		return nil, err
	}
	approved, err := s.ledger.IsApproved(account, s.custody.Account())
	if err != nil {
		return nil, err
	}
	return &PositionView{
		Pool:          id,
		Account:       account,
		Staked:        staked,
		Earned:        earned,
		StakeBalance:  stakeBal,
		RewardBalance: rewardBal,
		Approved:      approved,
	}, nil
}

// Balance returns account's balance of asset on the reference ledger.
func (s *Service) Balance(asset string, account [20]byte) (*uint256.Int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ledger.BalanceOf(asset, account)
}

// EventFilter selects historical events.
type EventFilter = journal.Filter

// Events returns historical events from the journal, or from the in-memory
// feed history when no journal is configured.
func (s *Service) Events(ctx context.Context, filter EventFilter) ([]events.Record, error) {
	if s.journal != nil {
		return s.journal.Query(ctx, filter)
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = journal.DefaultLimit
	}
	if limit > journal.MaxLimit {
		limit = journal.MaxLimit
	}
	account := strings.ToLower(strings.TrimSpace(filter.Account))
	pool := strings.TrimSpace(filter.Pool)
	out := make([]events.Record, 0)
	for _, rec := range s.feed.Since(filter.After, strings.TrimSpace(filter.Type), 0) {
		if pool != "" && rec.Attributes["pool"] != pool {
			continue
		}
		if account != "" && rec.Attributes["account"] != account {
			continue
		}
		out = append(out, rec)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

// Close releases the journal. Storage is owned by the caller.
func (s *Service) Close() error {
	if s.journal == nil {
		return nil
	}
	return s.journal.Close()
}
