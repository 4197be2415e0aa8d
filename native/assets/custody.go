package assets

import (
	"encoding/hex"

	"github.com/holiman/uint256"
)

// Custodian holds staked and reward assets in a single module account on a
// Ledger. Deposits require the depositor to have approved that account.
type Custodian struct {
	ledger  *Ledger
	account [20]byte
}

// NewCustodian binds a custodian to the module account on ledger.
func NewCustodian(ledger *Ledger, account [20]byte) *Custodian {
	return &Custodian{ledger: ledger, account: account}
}

// Account returns the module account holding custody balances.
func (c *Custodian) Account() [20]byte { return c.account }

// TransferIn pulls amount of asset from the owner into custody.
func (c *Custodian) TransferIn(asset string, from [20]byte, amount *uint256.Int) error {
	return c.ledger.TransferFrom(c.account, asset, from, c.account, amount)
}

// TransferOut releases amount of asset from custody to the recipient.
func (c *Custodian) TransferOut(asset string, to [20]byte, amount *uint256.Int) error {
	return c.ledger.Transfer(asset, c.account, to, amount)
}

// BalanceOf reports account's balance of asset on the underlying ledger.
func (c *Custodian) BalanceOf(asset string, account [20]byte) (*uint256.Int, error) {
	return c.ledger.BalanceOf(asset, account)
}

func hexAccount(addr [20]byte) string {
	return "0x" + hex.EncodeToString(addr[:])
}
