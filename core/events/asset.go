package events

import (
	"strconv"

	"github.com/holiman/uint256"

	"farmstake/core/types"
)

const (
	// TypeAssetTransfer is emitted for every balance movement in the asset ledger.
	TypeAssetTransfer = "asset.transfer"
	// TypeAssetMinted is emitted when new units of an asset are issued.
	TypeAssetMinted = "asset.minted"
	// TypeAssetApproval is emitted when an owner grants or revokes an operator.
	TypeAssetApproval = "asset.approval"
)

// AssetTransfer captures a ledger balance movement.
type AssetTransfer struct {
	Asset  string
	From   [20]byte
	To     [20]byte
	Amount *uint256.Int
}

// EventType satisfies the Event interface.
func (AssetTransfer) EventType() string { return TypeAssetTransfer }

// Event converts the transfer into a broadcastable event.
func (e AssetTransfer) Event() *types.Event {
	attrs := map[string]string{}
	if asset := normalizeAsset(e.Asset); asset != "" {
		attrs["asset"] = asset
	}
	attrs["from"] = formatAddr(e.From)
	attrs["to"] = formatAddr(e.To)
	attrs["amount"] = formatAmount(e.Amount)
	return &types.Event{Type: TypeAssetTransfer, Attributes: attrs}
}

// AssetMinted captures issuance of new units.
type AssetMinted struct {
	Asset  string
	To     [20]byte
	Amount *uint256.Int
	Supply *uint256.Int
}

// EventType satisfies the Event interface.
func (AssetMinted) EventType() string { return TypeAssetMinted }

// Event converts the mint into a broadcastable event.
func (e AssetMinted) Event() *types.Event {
	return &types.Event{
		Type: TypeAssetMinted,
		Attributes: map[string]string{
			"asset":  normalizeAsset(e.Asset),
			"to":     formatAddr(e.To),
			"amount": formatAmount(e.Amount),
			"supply": formatAmount(e.Supply),
		},
	}
}

// AssetApproval captures an operator approval change.
type AssetApproval struct {
	Owner    [20]byte
	Operator [20]byte
	Approved bool
}

// EventType satisfies the Event interface.
func (AssetApproval) EventType() string { return TypeAssetApproval }

// Event converts the approval into a broadcastable event.
func (e AssetApproval) Event() *types.Event {
	return &types.Event{
		Type: TypeAssetApproval,
		Attributes: map[string]string{
			"owner":    formatAddr(e.Owner),
			"operator": formatAddr(e.Operator),
			"approved": strconv.FormatBool(e.Approved),
		},
	}
}
