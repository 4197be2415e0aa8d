package state

import (
	"fmt"
	"math/big"

	"github.com/holiman/uint256"

	"farmstake/core/types"
)

// AssetBalanceKey returns the state key of an account balance for an asset.
func AssetBalanceKey(asset string, account [20]byte) []byte {
	asset = types.NormalizeAssetID(asset)
	buf := make([]byte, 0, len(assetBalancePrefix)+len(asset)+1+len(account))
	buf = append(buf, assetBalancePrefix...)
	buf = append(buf, asset...)
	buf = append(buf, ':')
	return append(buf, account[:]...)
}

// AssetSupplyKey returns the state key of an asset's issued supply.
func AssetSupplyKey(asset string) []byte {
	return append(append([]byte(nil), assetSupplyPrefix...), types.NormalizeAssetID(asset)...)
}

// AssetApprovalKey returns the state key of an operator approval.
func AssetApprovalKey(owner, operator [20]byte) []byte {
	buf := make([]byte, 0, len(assetApprovalPrefix)+41)
	buf = append(buf, assetApprovalPrefix...)
	buf = append(buf, owner[:]...)
	buf = append(buf, ':')
	return append(buf, operator[:]...)
}

func (m *Manager) getAmount(key []byte) (*uint256.Int, error) {
	amount := new(big.Int)
	ok, err := m.KVGet(key, amount)
	if err != nil {
		return nil, err
	}
	if !ok {
		return new(uint256.Int), nil
	}
	return fromBig(amount)
}

func (m *Manager) putAmount(key []byte, amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return m.KVDelete(key)
	}
	return m.KVPut(key, amount.ToBig())
}

// AssetBalance retrieves the balance of account for asset.
func (m *Manager) AssetBalance(asset string, account [20]byte) (*uint256.Int, error) {
	return m.getAmount(AssetBalanceKey(asset, account))
}

// SetAssetBalance stores the balance of account for asset.
func (m *Manager) SetAssetBalance(asset string, account [20]byte, amount *uint256.Int) error {
	if types.NormalizeAssetID(asset) == "" {
		return fmt.Errorf("asset must not be empty")
	}
	return m.putAmount(AssetBalanceKey(asset, account), amount)
}

// AssetSupply retrieves the issued supply of asset.
func (m *Manager) AssetSupply(asset string) (*uint256.Int, error) {
	return m.getAmount(AssetSupplyKey(asset))
}

// SetAssetSupply stores the issued supply of asset.
func (m *Manager) SetAssetSupply(asset string, amount *uint256.Int) error {
	if types.NormalizeAssetID(asset) == "" {
		return fmt.Errorf("asset must not be empty")
	}
	return m.putAmount(AssetSupplyKey(asset), amount)
}

// AssetApproval reports whether operator may move assets owned by owner.
func (m *Manager) AssetApproval(owner, operator [20]byte) (bool, error) {
	var approved bool
	ok, err := m.KVGet(AssetApprovalKey(owner, operator), &approved)
	if err != nil || !ok {
		return false, err
	}
	return approved, nil
}

// SetAssetApproval records an operator approval. Revocations delete the key.
func (m *Manager) SetAssetApproval(owner, operator [20]byte, approved bool) error {
	key := AssetApprovalKey(owner, operator)
	if !approved {
		return m.KVDelete(key)
	}
	return m.KVPut(key, true)
}
