package config

import (
	"fmt"
	"log"
	"os"
	"sort"

	"gopkg.in/ini.v1"
	"gopkg.in/yaml.v3"
)

// LoadNetworkConfig reads network.yml. Values missing from the file keep their defaults.
func LoadNetworkConfig(path string) (*ConfigFile, error) {
	log.Printf("[config] LoadNetworkConfig called with path: %s", path)
	file, err := os.Open(path)
	if err != nil {
		log.Printf("[config] Failed to open file: %v", err)
		return nil, err
	}
	defer file.Close()

	cfgFile := ConfigFile{Network: DefaultNetworkConfig()}
	decoder := yaml.NewDecoder(file)
	if err := decoder.Decode(&cfgFile); err != nil {
		log.Printf("[config] Failed to decode YAML: %v", err)
		return nil, err
	}
	if err := cfgFile.Network.Validate(); err != nil {
		return nil, err
	}
	log.Printf("[config] Successfully loaded network config: nethash=%s, activeDelegates=%d, genesisDelegates=%d",
		cfgFile.Network.Nethash, cfgFile.Network.ActiveDelegates, len(cfgFile.Genesis.Delegates))
	return &cfgFile, nil
}

func (c *NetworkConfig) Validate() error {
	if c.ActiveDelegates <= 0 {
		return fmt.Errorf("active_delegates must be positive")
	}
	if c.BlockTime <= 0 {
		return fmt.Errorf("block_time must be positive")
	}
	if c.MaxTxsPerBlock <= 0 || c.MaxPayloadLength <= 0 {
		return fmt.Errorf("max_txs_per_block and max_payload_length must be positive")
	}
	if c.BlockSlotWindow <= 0 {
		return fmt.Errorf("block_slot_window must be positive")
	}
	if len(c.ValidBlockVersions) == 0 {
		return fmt.Errorf("valid_block_versions must not be empty")
	}
	if len(c.Fees) == 0 {
		return fmt.Errorf("at least one fee schedule is required")
	}
	sort.Slice(c.Fees, func(i, j int) bool { return c.Fees[i].Height < c.Fees[j].Height })
	if c.Fees[0].Height > 1 {
		return fmt.Errorf("first fee schedule must start at height 1")
	}
	if len(c.Rewards.Milestones) > 0 && c.Rewards.Distance <= 0 {
		return fmt.Errorf("rewards.distance must be positive")
	}
	return nil
}

func loadSection(path, section string, v interface{}) error {
	cfg, err := ini.Load(path)
	if err != nil {
		return err
	}
	return cfg.Section(section).MapTo(v)
}

// LoadNodeConfig reads the [node] section of the node .ini file
func LoadNodeConfig(path string) (*NodeConfig, error) {
	nodeCfg := &NodeConfig{DataDir: "./data", DBType: "leveldb"}
	if err := loadSection(path, "node", nodeCfg); err != nil {
		return nil, err
	}
	return nodeCfg, nil
}

// LoadForgingConfig reads the [forging] section of the node .ini file
func LoadForgingConfig(path string) (*ForgingConfig, error) {
	forgingCfg := &ForgingConfig{TickIntervalMs: DefaultTickIntervalMs}
	if err := loadSection(path, "forging", forgingCfg); err != nil {
		return nil, err
	}
	return forgingCfg, nil
}

func LoadMempoolConfig(path string) (*MempoolConfig, error) {
	mempoolCfg := &MempoolConfig{MaxTxs: DefaultMempoolMaxTxs}
	if err := loadSection(path, "mempool", mempoolCfg); err != nil {
		return nil, err
	}
	return mempoolCfg, nil
}
