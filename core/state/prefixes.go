package state

var (
	stakingPoolPrefix       = []byte("staking/pool/")
	stakingPoolIndexKey     = []byte("staking/pools")
	stakingPositionPrefix   = []byte("staking/position/")
	stakingCheckpointPrefix = []byte("staking/checkpoint/")
	assetBalancePrefix      = []byte("assets/balance/")
	assetSupplyPrefix       = []byte("assets/supply/")
	assetApprovalPrefix     = []byte("assets/approval/")
)
