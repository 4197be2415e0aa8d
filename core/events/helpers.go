package events

import (
	"encoding/hex"

	"github.com/holiman/uint256"

	"farmstake/core/types"
)

func normalizeAsset(asset string) string {
	return types.NormalizeAssetID(asset)
}

func formatAmount(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	return v.Dec()
}

func formatAddr(addr [20]byte) string {
	return "0x" + hex.EncodeToString(addr[:])
}
