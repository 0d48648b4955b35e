package mempool

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/mezonai/dpos/ids"
	"github.com/mezonai/dpos/jsonx"
	"github.com/mezonai/dpos/logx"
	"github.com/pkg/errors"
)

const blacklistFile = "blacklist.json"

type BlacklistEntry struct {
	Address string `json:"address"`
	Reason  string `json:"reason"`
}

type BlacklistData struct {
	Senders []BlacklistEntry `json:"senders"`
}

// BlacklistManager persists the sender addresses the pool refuses transactions from, keyed by
// address with the reason they were banned.
type BlacklistManager struct {
	mu       sync.RWMutex
	filePath string
}

func NewBlacklistManager(dataDir string) *BlacklistManager {
	return &BlacklistManager{filePath: filepath.Join(dataDir, blacklistFile)}
}

func (bm *BlacklistManager) Path() string { return bm.filePath }

// SaveBlacklistToFile replaces the stored list. The file is swapped in whole, so a crash leaves
// either the old list or the new one.
func (bm *BlacklistManager) SaveBlacklistToFile(blacklist map[string]string) error {
	senders := make([]BlacklistEntry, 0, len(blacklist))
	for addr, reason := range blacklist {
		if !ids.IsAddress(addr) {
			return fmt.Errorf("%w: cannot blacklist %q", ids.ErrInvalidAddress, addr)
		}
		senders = append(senders, BlacklistEntry{Address: addr, Reason: reason})
	}
	sort.Slice(senders, func(i, j int) bool { return senders[i].Address < senders[j].Address })

	raw, err := jsonx.MarshalIndent(BlacklistData{Senders: senders})
	if err != nil {
		return errors.Wrap(err, "failed to encode blacklist data")
	}

	bm.mu.Lock()
	defer bm.mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(bm.filePath), 0o755); err != nil {
		return errors.Wrap(err, "failed to create blacklist directory")
	}
	tempPath := bm.filePath + ".tmp"
	if err := os.WriteFile(tempPath, raw, 0o644); err != nil {
		return errors.Wrap(err, "failed to write temporary blacklist file")
	}
	if err := os.Rename(tempPath, bm.filePath); err != nil {
		_ = os.Remove(tempPath)
		return errors.Wrap(err, "failed to replace blacklist file")
	}
	logx.Info("BLACKLIST", fmt.Sprintf("Saved %d blacklisted senders to %s", len(senders), bm.filePath))
	return nil
}

// LoadBlacklistFromFile reads the stored list. A missing file is an empty list. Entries that are
// not addresses are skipped.
func (bm *BlacklistManager) LoadBlacklistFromFile() (map[string]string, error) {
	bm.mu.RLock()
	raw, err := os.ReadFile(bm.filePath)
	bm.mu.RUnlock()
	if errors.Is(err, os.ErrNotExist) {
		logx.Info("BLACKLIST", "Blacklist file does not exist, starting with empty blacklist")
		return make(map[string]string), nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to read blacklist file")
	}

	var data BlacklistData
	if err := jsonx.Unmarshal(raw, &data); err != nil {
		return nil, errors.Wrap(err, "failed to decode blacklist data")
	}
	blacklist := make(map[string]string, len(data.Senders))
	for _, entry := range data.Senders {
		if !ids.IsAddress(entry.Address) {
			logx.Warn("BLACKLIST", "Skipping invalid address ", entry.Address)
			continue
		}
		blacklist[entry.Address] = entry.Reason
	}
	logx.Info("BLACKLIST", fmt.Sprintf("Loaded %d blacklisted senders from %s", len(blacklist), bm.filePath))
	return blacklist, nil
}
