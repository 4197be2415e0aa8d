package stakingd

import (
	"encoding/json"
	"errors"
	"net/http"

	"farmstake/native/assets"
	"farmstake/native/staking"
)

var (
	errBadRequest      = errors.New("bad request")
	errAccountMismatch = errors.New("token subject does not own the account")
)

type errorClass struct {
	err    error
	status int
	reason string
}

// Order matters: custody failures wrap ledger errors and must match first.
var errorClasses = []errorClass{
	{staking.ErrTransferFailed, http.StatusPaymentRequired, "transfer_failed"},
	{staking.ErrInvalidAmount, http.StatusBadRequest, "invalid_amount"},
	{staking.ErrInvalidDuration, http.StatusBadRequest, "invalid_duration"},
	{staking.ErrRewardTooSmall, http.StatusBadRequest, "reward_too_small"},
	{staking.ErrInsufficientStake, http.StatusConflict, "insufficient_stake"},
	{staking.ErrPeriodActive, http.StatusConflict, "period_active"},
	{staking.ErrPoolSuspended, http.StatusLocked, "pool_suspended"},
	{staking.ErrReservedAsset, http.StatusForbidden, "reserved_asset"},
	{staking.ErrUnauthorized, http.StatusForbidden, "unauthorized"},
	{staking.ErrOverflow, http.StatusUnprocessableEntity, "overflow"},
	{staking.ErrInvalidConfig, http.StatusInternalServerError, "invalid_config"},
	{assets.ErrInvalidAmount, http.StatusBadRequest, "invalid_amount"},
	{assets.ErrInvalidAsset, http.StatusBadRequest, "invalid_asset"},
	{assets.ErrSupplyOverflow, http.StatusUnprocessableEntity, "overflow"},
	{assets.ErrInsufficientBalance, http.StatusPaymentRequired, "insufficient_balance"},
	{assets.ErrNotApproved, http.StatusPaymentRequired, "not_approved"},
	{errBadRequest, http.StatusBadRequest, "bad_request"},
	{errAccountMismatch, http.StatusForbidden, "account_mismatch"},
}

func classify(err error) (int, string) {
	for _, class := range errorClasses {
		if errors.Is(err, class.err) {
			return class.status, class.reason
		}
	}
	return http.StatusInternalServerError, "internal"
}

func errorReason(err error) string {
	if err == nil {
		return ""
	}
	_, reason := classify(err)
	return reason
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status, reason := classify(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = http.StatusText(status)
	}
	writeJSON(w, status, errorResponse{Error: msg, Code: reason})
}
