package config

import "time"

const (
	DefaultTickIntervalMs = 1000
	DefaultMempoolMaxTxs  = 5000
)

// DefaultNetworkConfig returns the mainnet-like constants used when network.yml leaves them out.
func DefaultNetworkConfig() NetworkConfig {
	return NetworkConfig{
		Nethash:                "da3ed6a45429278bac2666961289ca17ad86595d33b31037615d4b8e8f158bba",
		MinVersion:             "1.0.0",
		Epoch:                  time.Date(2016, 5, 24, 17, 0, 0, 0, time.UTC),
		BlockTime:              30,
		ActiveDelegates:        101,
		MaxTxsPerBlock:         25,
		MaxPayloadLength:       1024 * 1024,
		BlockSlotWindow:        5,
		ValidBlockVersions:     []int32{0},
		MaxVotesPerTransaction: 33,
		MaxVotesPerAccount:     101,
		MinBroadhashConsensus:  51,
		DposFeesSwitchHeight:   0,
		DposV2Height:           0,
		Rewards: RewardsConfig{
			Milestones: []int64{500000000, 400000000, 300000000, 200000000, 100000000},
			Offset:     10,
			Distance:   3000000,
		},
		Fees: []FeeSchedule{{
			Height:          1,
			Send:            10000000,
			Vote:            100000000,
			SecondSignature: 500000000,
			Delegate:        2500000000,
		}},
	}
}
