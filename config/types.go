package config

import "time"

// RewardsConfig describes the block reward schedule: no reward before Offset, then one
// milestone per Distance blocks, staying on the last milestone afterwards.
type RewardsConfig struct {
	Milestones []int64 `yaml:"milestones"`
	Offset     int64   `yaml:"offset"`
	Distance   int64   `yaml:"distance"`
}

// FeeSchedule gives minimum fees per transaction type from Height onward.
type FeeSchedule struct {
	Height          int64 `yaml:"height"`
	Send            int64 `yaml:"send"`
	Vote            int64 `yaml:"vote"`
	SecondSignature int64 `yaml:"secondsignature"`
	Delegate        int64 `yaml:"delegate"`
}

// NetworkConfig holds the consensus constants every node of a network must share.
type NetworkConfig struct {
	Nethash                string        `yaml:"nethash"`
	MinVersion             string        `yaml:"min_version"`
	Epoch                  time.Time     `yaml:"epoch"`
	BlockTime              int64         `yaml:"block_time"`
	ActiveDelegates        int64         `yaml:"active_delegates"`
	MaxTxsPerBlock         int           `yaml:"max_txs_per_block"`
	MaxPayloadLength       int           `yaml:"max_payload_length"`
	BlockSlotWindow        int           `yaml:"block_slot_window"`
	ValidBlockVersions     []int32       `yaml:"valid_block_versions"`
	MaxVotesPerTransaction int           `yaml:"max_votes_per_transaction"`
	MaxVotesPerAccount     int           `yaml:"max_votes_per_account"`
	MinBroadhashConsensus  int           `yaml:"min_broadhash_consensus"`
	DposFeesSwitchHeight   int64         `yaml:"dpos_fees_switch_height"`
	DposV2Height           int64         `yaml:"dpos_v2_height"`
	Rewards                RewardsConfig `yaml:"rewards"`
	Fees                   []FeeSchedule `yaml:"fees"`
}

// GenesisDelegate is a delegate registered, funded and self-voted in the genesis block.
type GenesisDelegate struct {
	Username string `yaml:"username"`
	Secret   string `yaml:"secret"`
	Balance  int64  `yaml:"balance"`
}

type GenesisAllocation struct {
	Address string `yaml:"address"`
	Amount  int64  `yaml:"amount"`
}

// GenesisConfig drives the genesis block builder.
type GenesisConfig struct {
	Secret      string              `yaml:"secret"`
	Timestamp   int32               `yaml:"timestamp"`
	Delegates   []GenesisDelegate   `yaml:"delegates"`
	Allocations []GenesisAllocation `yaml:"allocations"`
}

// ConfigFile is the top-level structure for network.yml
type ConfigFile struct {
	Network NetworkConfig `yaml:"network"`
	Genesis GenesisConfig `yaml:"genesis"`
}

type NodeConfig struct {
	DataDir       string `ini:"data_dir"`
	DBType        string `ini:"db_type"`
	NetworkConfig string `ini:"network_config"`
	GenesisBlock  string `ini:"genesis_block"`
	MetricsAddr   string `ini:"metrics_addr"`
	Debug         bool   `ini:"debug"`
}

type ForgingConfig struct {
	Secrets        []string `ini:"secrets" delim:","`
	Force          bool     `ini:"force"`
	TickIntervalMs int      `ini:"tick_interval_ms"`
}

type MempoolConfig struct {
	MaxTxs int `ini:"max_txs"`
}
