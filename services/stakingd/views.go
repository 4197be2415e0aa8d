package stakingd

import (
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/holiman/uint256"
	"lukechampine.com/blake3"

	"farmstake/core/events"
	"farmstake/native/staking"
)

type poolResponse struct {
	ID                   string `json:"id"`
	StakeAsset           string `json:"stakeAsset"`
	Status               string `json:"status"`
	TotalStaked          string `json:"totalStaked"`
	RewardRate           string `json:"rewardRate"`
	RewardRateScaled     string `json:"rewardRateScaled"`
	PeriodFinish         uint64 `json:"periodFinish"`
	LastUpdate           uint64 `json:"lastUpdate"`
	RewardPerShareStored string `json:"rewardPerShareStored"`
	RewardDuration       uint64 `json:"rewardDuration"`
	Paused               bool   `json:"paused"`
	TotalFunded          string `json:"totalFunded"`
	TotalClaimed         string `json:"totalClaimed"`
	Digest               string `json:"digest"`
}

type positionResponse struct {
	Pool            string `json:"pool"`
	Account         string `json:"account"`
	Staked          string `json:"staked"`
	Earned          string `json:"earned"`
	StakeBalance    string `json:"stakeBalance"`
	RewardBalance   string `json:"rewardBalance"`
	CustodyApproved bool   `json:"custodyApproved"`
}

type exitResponse struct {
	Pool     string `json:"pool"`
	Account  string `json:"account"`
	Claimed  string `json:"claimed"`
	Unstaked string `json:"unstaked"`
}

type claimResponse struct {
	Pool    string `json:"pool"`
	Account string `json:"account"`
	Claimed string `json:"claimed"`
}

type balanceResponse struct {
	Asset   string `json:"asset"`
	Account string `json:"account"`
	Balance string `json:"balance"`
}

type eventsResponse struct {
	Events []events.Record `json:"events"`
	Next   uint64          `json:"next"`
}

func decimalString(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	return v.Dec()
}

// poolDigest fingerprints the accounting fields of a pool so clients can
// detect that two reads observed the same state.
func poolDigest(p *staking.Pool) string {
	fields := []string{
		p.ID.String(),
		decimalString(p.TotalStaked),
		decimalString(p.RewardRateScaled),
		strconv.FormatUint(p.PeriodFinish, 10),
		strconv.FormatUint(p.LastUpdate, 10),
		decimalString(p.RewardPerShareStored),
		strconv.FormatUint(p.RewardDuration, 10),
		strconv.FormatBool(p.Paused),
		decimalString(p.TotalFunded),
		decimalString(p.TotalClaimed),
	}
	sum := blake3.Sum256([]byte(strings.Join(fields, "|")))
	return hex.EncodeToString(sum[:])
}

func newPoolResponse(view *PoolView) poolResponse {
	p := view.Pool
	return poolResponse{
		ID:                   p.ID.String(),
		StakeAsset:           view.StakeAsset,
		Status:               string(view.Status),
		TotalStaked:          decimalString(p.TotalStaked),
		RewardRate:           decimalString(p.Rate()),
		RewardRateScaled:     decimalString(p.RewardRateScaled),
		PeriodFinish:         p.PeriodFinish,
		LastUpdate:           p.LastUpdate,
		RewardPerShareStored: decimalString(p.RewardPerShareStored),
		RewardDuration:       p.RewardDuration,
		Paused:               p.Paused,
		TotalFunded:          decimalString(p.TotalFunded),
		TotalClaimed:         decimalString(p.TotalClaimed),
		Digest:               poolDigest(p),
	}
}

func newPositionResponse(view *PositionView) positionResponse {
	return positionResponse{
		Pool:            view.Pool.String(),
		Account:         staking.HexAddr(view.Account),
		Staked:          decimalString(view.Staked),
		Earned:          decimalString(view.Earned),
		StakeBalance:    decimalString(view.StakeBalance),
		RewardBalance:   decimalString(view.RewardBalance),
		CustodyApproved: view.Approved,
	}
}
