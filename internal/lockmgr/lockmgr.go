// Package lockmgr protects UTXOs the wallet must never auto-select: domain
// ownership outputs, token allocations, and anything a user manually pins
// (§4.4 "UTXO lock manager"). State is a JSON file written atomically via
// rename, loaded once at startup and kept in memory behind a RWMutex.
package lockmgr

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rawblock/anchor-engine/internal/walletlog"
	"github.com/rawblock/anchor-engine/pkg/models"
)

var log = walletlog.New("lockmgr")

// state is the on-disk shape of locked_utxos.json.
type state struct {
	LockedUTXOs     []models.LockEntry `json:"locked_utxos"`
	AutoLockEnabled bool               `json:"auto_lock_enabled"`
	LastSync        *time.Time         `json:"last_sync,omitempty"`
}

// Manager guards a set of locked UTXOs, persisted to disk on every mutation.
type Manager struct {
	mu        sync.RWMutex
	statePath string
	state     state
}

// New loads (or creates) locked_utxos.json under dataDir.
func New(dataDir string) (*Manager, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("lockmgr: create data dir: %w", err)
	}
	statePath := filepath.Join(dataDir, "locked_utxos.json")

	m := &Manager{statePath: statePath}

	raw, err := os.ReadFile(statePath)
	switch {
	case os.IsNotExist(err):
		log.Println("[lockmgr] no existing lock state file, starting fresh")
	case err != nil:
		return nil, fmt.Errorf("lockmgr: read state: %w", err)
	default:
		if err := json.Unmarshal(raw, &m.state); err != nil {
			log.Printf("[lockmgr] failed to parse lock state, starting fresh: %v", err)
			m.state = state{}
		} else {
			log.Printf("[lockmgr] loaded %d locked UTXOs from disk", len(m.state.LockedUTXOs))
		}
	}

	if err := m.save(); err != nil {
		return nil, err
	}
	return m, nil
}

// save must be called with mu held (read or write — json.Marshal only reads).
func (m *Manager) save() error {
	content, err := json.MarshalIndent(m.state, "", "  ")
	if err != nil {
		return fmt.Errorf("lockmgr: marshal state: %w", err)
	}
	tmp := m.statePath + ".tmp"
	if err := os.WriteFile(tmp, content, 0o644); err != nil {
		return fmt.Errorf("lockmgr: write temp state: %w", err)
	}
	if err := os.Rename(tmp, m.statePath); err != nil {
		return fmt.Errorf("lockmgr: rename state: %w", err)
	}
	return nil
}

func findIndex(entries []models.LockEntry, txid string, vout uint32) int {
	for i, e := range entries {
		if e.TxID == txid && e.Vout == vout {
			return i
		}
	}
	return -1
}

// Lock records a new protected UTXO. Returns false if it was already locked.
func (m *Manager) Lock(txid string, vout uint32, reason models.LockReason) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if findIndex(m.state.LockedUTXOs, txid, vout) >= 0 {
		return false, nil
	}

	entry := models.LockEntry{TxID: txid, Vout: vout, Reason: reason, LockedAt: time.Now().UTC()}
	m.state.LockedUTXOs = append(m.state.LockedUTXOs, entry)

	if err := m.save(); err != nil {
		return false, err
	}
	log.Printf("[lockmgr] locked UTXO %s:%d - %s", txid, vout, reason.Description())
	return true, nil
}

// Unlock removes a lock unconditionally. Returns false if it wasn't locked.
func (m *Manager) Unlock(txid string, vout uint32) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx := findIndex(m.state.LockedUTXOs, txid, vout)
	if idx < 0 {
		return false, nil
	}
	m.state.LockedUTXOs = append(m.state.LockedUTXOs[:idx], m.state.LockedUTXOs[idx+1:]...)

	if err := m.save(); err != nil {
		return false, err
	}
	log.Printf("[lockmgr] unlocked UTXO %s:%d", txid, vout)
	return true, nil
}

// UnlockIfReason removes a lock only when its reason has the same
// LockReasonType as expected — matching the discriminant, not the inner
// value, so a Domain lock for "x.btc" matches any expected Domain{...}.
func (m *Manager) UnlockIfReason(txid string, vout uint32, expected models.LockReasonType) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx := findIndex(m.state.LockedUTXOs, txid, vout)
	if idx < 0 || m.state.LockedUTXOs[idx].Reason.Type != expected {
		return false, nil
	}
	m.state.LockedUTXOs = append(m.state.LockedUTXOs[:idx], m.state.LockedUTXOs[idx+1:]...)

	if err := m.save(); err != nil {
		return false, err
	}
	log.Printf("[lockmgr] unlocked UTXO %s:%d (reason matched)", txid, vout)
	return true, nil
}

// BulkLock locks many UTXOs in one save, returning the count newly locked.
func (m *Manager) BulkLock(entries []struct {
	TxID   string
	Vout   uint32
	Reason models.LockReason
}) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	newlyLocked := 0
	for _, e := range entries {
		if findIndex(m.state.LockedUTXOs, e.TxID, e.Vout) >= 0 {
			continue
		}
		m.state.LockedUTXOs = append(m.state.LockedUTXOs, models.LockEntry{
			TxID: e.TxID, Vout: e.Vout, Reason: e.Reason, LockedAt: time.Now().UTC(),
		})
		newlyLocked++
	}

	if newlyLocked > 0 {
		if err := m.save(); err != nil {
			return 0, err
		}
		log.Printf("[lockmgr] bulk locked %d new UTXOs", newlyLocked)
	}
	return newlyLocked, nil
}

// PruneStaleLocks drops any lock whose (txid, vout) is absent from
// currentUTXOs, returning the count removed.
func (m *Manager) PruneStaleLocks(currentUTXOs map[models.OutPointKey]bool) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.state.LockedUTXOs[:0:0]
	removed := 0
	for _, e := range m.state.LockedUTXOs {
		if currentUTXOs[e.Key()] {
			kept = append(kept, e)
		} else {
			removed++
		}
	}
	m.state.LockedUTXOs = kept

	if removed > 0 {
		if err := m.save(); err != nil {
			return 0, err
		}
		log.Printf("[lockmgr] pruned %d stale locks", removed)
	}
	return removed, nil
}

// GetLockedSet returns every locked (txid, vout) for quick membership tests.
func (m *Manager) GetLockedSet() map[models.OutPointKey]bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	set := make(map[models.OutPointKey]bool, len(m.state.LockedUTXOs))
	for _, e := range m.state.LockedUTXOs {
		set[e.Key()] = true
	}
	return set
}

// ListLocked returns a copy of every locked UTXO entry.
func (m *Manager) ListLocked() []models.LockEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.LockEntry, len(m.state.LockedUTXOs))
	copy(out, m.state.LockedUTXOs)
	return out
}

// IsLocked reports whether a UTXO is currently locked.
func (m *Manager) IsLocked(txid string, vout uint32) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return findIndex(m.state.LockedUTXOs, txid, vout) >= 0
}

// GetLockReason returns the lock reason for a UTXO, if locked.
func (m *Manager) GetLockReason(txid string, vout uint32) (models.LockReason, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	idx := findIndex(m.state.LockedUTXOs, txid, vout)
	if idx < 0 {
		return models.LockReason{}, false
	}
	return m.state.LockedUTXOs[idx].Reason, true
}

// IsAutoLockEnabled reports the auto-lock setting.
func (m *Manager) IsAutoLockEnabled() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.AutoLockEnabled
}

// SetAutoLock toggles the auto-lock setting and persists it.
func (m *Manager) SetAutoLock(enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.AutoLockEnabled = enabled
	if err := m.save(); err != nil {
		return err
	}
	log.Printf("[lockmgr] auto-lock set to: %v", enabled)
	return nil
}

// GetLastSync returns the last recorded sync timestamp, if any.
func (m *Manager) GetLastSync() *time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.LastSync
}

// UpdateLastSync stamps the current time as the last sync and persists it.
func (m *Manager) UpdateLastSync() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	m.state.LastSync = &now
	return m.save()
}

// GetDomainLocks returns every lock whose reason is a domain lock.
func (m *Manager) GetDomainLocks() []models.LockEntry {
	return m.filterByReason(models.LockDomain)
}

// GetTokenLocks returns every lock whose reason is a token lock.
func (m *Manager) GetTokenLocks() []models.LockEntry {
	return m.filterByReason(models.LockToken)
}

func (m *Manager) filterByReason(t models.LockReasonType) []models.LockEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.LockEntry
	for _, e := range m.state.LockedUTXOs {
		if e.Reason.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// FindDomainLock returns the lock entry for a domain name, if any.
func (m *Manager) FindDomainLock(domainName string) (models.LockEntry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, e := range m.state.LockedUTXOs {
		if e.Reason.Type == models.LockDomain && e.Reason.Name == domainName {
			return e, true
		}
	}
	return models.LockEntry{}, false
}

// TransferDomainLock moves a domain's lock from its old outpoint to its new
// one, used when a domain is updated or transferred. Returns false if no
// matching old lock was found.
func (m *Manager) TransferDomainLock(domainName, oldTxID string, oldVout uint32, newTxID string, newVout uint32) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx := -1
	for i, e := range m.state.LockedUTXOs {
		if e.TxID == oldTxID && e.Vout == oldVout && e.Reason.Type == models.LockDomain && e.Reason.Name == domainName {
			idx = i
			break
		}
	}
	if idx < 0 {
		log.Printf("[lockmgr] no existing domain lock found for %s at %s:%d", domainName, oldTxID, oldVout)
		return false, nil
	}

	m.state.LockedUTXOs = append(m.state.LockedUTXOs[:idx], m.state.LockedUTXOs[idx+1:]...)
	m.state.LockedUTXOs = append(m.state.LockedUTXOs, models.LockEntry{
		TxID: newTxID, Vout: newVout,
		Reason:   models.LockReason{Type: models.LockDomain, Name: domainName},
		LockedAt: time.Now().UTC(),
	})

	if err := m.save(); err != nil {
		return false, err
	}
	log.Printf("[lockmgr] transferred domain lock for %s from %s:%d to %s:%d", domainName, oldTxID, oldVout, newTxID, newVout)
	return true, nil
}
