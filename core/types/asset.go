package types

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// NormalizeAssetID returns the canonical form of an asset identifier. NFKC
// folds compatibility characters such as fullwidth letters and slashes, so two
// ids that render the same address the same balances.
func NormalizeAssetID(id string) string {
	return strings.TrimSpace(norm.NFKC.String(id))
}
