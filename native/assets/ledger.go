package assets

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"

	"farmstake/core/events"
	"farmstake/core/types"
)

var (
	ErrNilState            = errors.New("assets: state not configured")
	ErrInvalidAsset        = errors.New("assets: asset must not be empty")
	ErrInvalidAmount       = errors.New("assets: amount must be positive")
	ErrInsufficientBalance = errors.New("assets: insufficient balance")
	ErrNotApproved         = errors.New("assets: operator not approved")
	ErrSupplyOverflow      = errors.New("assets: supply overflow")
)

type ledgerState interface {
	AssetBalance(asset string, account [20]byte) (*uint256.Int, error)
	SetAssetBalance(asset string, account [20]byte, amount *uint256.Int) error
	AssetSupply(asset string) (*uint256.Int, error)
	SetAssetSupply(asset string, amount *uint256.Int) error
	AssetApproval(owner, operator [20]byte) (bool, error)
	SetAssetApproval(owner, operator [20]byte, approved bool) error
}

// Ledger tracks balances of fungible multi-class assets. Asset identifiers are
// opaque strings; classes of a collection are addressed as "collection/id".
// Owners may approve operators to move any of their assets.
type Ledger struct {
	state   ledgerState
	emitter events.Emitter
}

// NewLedger constructs a ledger over the provided state.
func NewLedger(state ledgerState) *Ledger {
	return &Ledger{state: state, emitter: events.NoopEmitter{}}
}

// SetEmitter configures the event emitter used by the ledger.
func (l *Ledger) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		l.emitter = events.NoopEmitter{}
		return
	}
	l.emitter = emitter
}

func (l *Ledger) check(asset string, amount *uint256.Int) (string, error) {
	if l == nil || l.state == nil {
		return "", ErrNilState
	}
	asset = types.NormalizeAssetID(asset)
	if asset == "" {
		return "", ErrInvalidAsset
	}
	if amount == nil || amount.IsZero() {
		return "", ErrInvalidAmount
	}
	return asset, nil
}

// BalanceOf returns the balance account holds of asset.
func (l *Ledger) BalanceOf(asset string, account [20]byte) (*uint256.Int, error) {
	if l == nil || l.state == nil {
		return nil, ErrNilState
	}
	return l.state.AssetBalance(types.NormalizeAssetID(asset), account)
}

// Supply returns the amount of asset issued so far.
func (l *Ledger) Supply(asset string) (*uint256.Int, error) {
	if l == nil || l.state == nil {
		return nil, ErrNilState
	}
	return l.state.AssetSupply(types.NormalizeAssetID(asset))
}

// Mint issues amount of asset to the recipient.
func (l *Ledger) Mint(asset string, to [20]byte, amount *uint256.Int) error {
	asset, err := l.check(asset, amount)
	if err != nil {
		return err
	}
	supply, err := l.state.AssetSupply(asset)
	if err != nil {
		return err
	}
	nextSupply, overflow := new(uint256.Int).AddOverflow(supply, amount)
	if overflow {
		return ErrSupplyOverflow
	}
	balance, err := l.state.AssetBalance(asset, to)
	if err != nil {
		return err
	}
	// Balances never exceed supply, so this cannot overflow once supply did not.
	nextBalance := new(uint256.Int).Add(balance, amount)
	if err := l.state.SetAssetSupply(asset, nextSupply); err != nil {
		return err
	}
	if err := l.state.SetAssetBalance(asset, to, nextBalance); err != nil {
		return err
	}
	l.emitter.Emit(events.AssetMinted{Asset: asset, To: to, Amount: new(uint256.Int).Set(amount), Supply: nextSupply})
	return nil
}

// Transfer moves amount of asset between two accounts.
func (l *Ledger) Transfer(asset string, from, to [20]byte, amount *uint256.Int) error {
	asset, err := l.check(asset, amount)
	if err != nil {
		return err
	}
	fromBalance, err := l.state.AssetBalance(asset, from)
	if err != nil {
		return err
	}
	if fromBalance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s has %s of %s, needs %s", ErrInsufficientBalance, hexAccount(from), fromBalance.Dec(), asset, amount.Dec())
	}
	if from != to {
		toBalance, err := l.state.AssetBalance(asset, to)
		if err != nil {
			return err
		}
		if err := l.state.SetAssetBalance(asset, from, new(uint256.Int).Sub(fromBalance, amount)); err != nil {
			return err
		}
		if err := l.state.SetAssetBalance(asset, to, new(uint256.Int).Add(toBalance, amount)); err != nil {
			return err
		}
	}
	l.emitter.Emit(events.AssetTransfer{Asset: asset, From: from, To: to, Amount: new(uint256.Int).Set(amount)})
	return nil
}

// TransferFrom moves assets on behalf of from. The operator must be the owner
// or hold the owner's approval.
func (l *Ledger) TransferFrom(operator [20]byte, asset string, from, to [20]byte, amount *uint256.Int) error {
	if operator != from {
		approved, err := l.IsApproved(from, operator)
		if err != nil {
			return err
		}
		if !approved {
			return fmt.Errorf("%w: %s for %s", ErrNotApproved, hexAccount(operator), hexAccount(from))
		}
	}
	return l.Transfer(asset, from, to, amount)
}

// SetApproval grants or revokes operator's right to move owner's assets.
func (l *Ledger) SetApproval(owner, operator [20]byte, approved bool) error {
	if l == nil || l.state == nil {
		return ErrNilState
	}
	if err := l.state.SetAssetApproval(owner, operator, approved); err != nil {
		return err
	}
	l.emitter.Emit(events.AssetApproval{Owner: owner, Operator: operator, Approved: approved})
	return nil
}

// IsApproved reports whether operator may move owner's assets.
func (l *Ledger) IsApproved(owner, operator [20]byte) (bool, error) {
	if l == nil || l.state == nil {
		return false, ErrNilState
	}
	return l.state.AssetApproval(owner, operator)
}
