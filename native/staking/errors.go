package staking

import (
	"errors"
	"fmt"
)

var (
	ErrNilState          = errors.New("staking: state not configured")
	ErrNilCustody        = errors.New("staking: custody not configured")
	ErrInvalidAmount     = errors.New("staking: amount must be positive")
	ErrInsufficientStake = errors.New("staking: amount exceeds staked balance")
	ErrPoolSuspended     = errors.New("staking: pool suspended")
	ErrPeriodActive      = errors.New("staking: reward period still active")
	ErrReservedAsset     = errors.New("staking: asset is reserved for stakers")
	ErrTransferFailed    = errors.New("staking: asset transfer failed")
	ErrUnauthorized      = errors.New("staking: unauthorized")
	ErrInvalidDuration   = errors.New("staking: duration must be positive")
	ErrRewardTooSmall    = errors.New("staking: reward too small for duration")
	ErrOverflow          = errors.New("staking: arithmetic overflow")
	ErrInvalidConfig     = errors.New("staking: invalid asset configuration")
)

// transferError tags a custody failure so callers can match both the
// ErrTransferFailed class and the adapter's own error.
func transferError(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrTransferFailed, err)
}
