package db

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/rawblock/anchor-engine/pkg/models"
)

// GetActive satisfies domain.Store: the current owning row for a
// case-folded name, if one has ever been registered.
func (s *Store) GetActive(foldedName string) (models.Domain, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var d models.Domain
	var recordsJSON, historyJSON string
	err := s.db.QueryRow(`
		SELECT name, current_txid, current_vout, owner_txid, owner_vout, records, history
		FROM domains WHERE name = ?
	`, foldedName).Scan(&d.Name, &d.CurrentTxID, &d.CurrentVout, &d.OwnerTxID, &d.OwnerVout, &recordsJSON, &historyJSON)
	if err == sql.ErrNoRows {
		return models.Domain{}, false, nil
	}
	if err != nil {
		return models.Domain{}, false, fmt.Errorf("db: get active domain: %w", err)
	}
	if err := json.Unmarshal([]byte(recordsJSON), &d.Records); err != nil {
		return models.Domain{}, false, fmt.Errorf("db: decode domain records: %w", err)
	}
	if err := json.Unmarshal([]byte(historyJSON), &d.History); err != nil {
		return models.Domain{}, false, fmt.Errorf("db: decode domain history: %w", err)
	}
	return d, true, nil
}

// Insert writes a brand-new domain row (first Register of a name).
func (s *Store) Insert(d models.Domain) error {
	return s.upsertDomain(d)
}

// Replace overwrites an existing domain row (Update/Transfer).
func (s *Store) Replace(d models.Domain) error {
	return s.upsertDomain(d)
}

func (s *Store) upsertDomain(d models.Domain) error {
	recordsJSON, err := json.Marshal(d.Records)
	if err != nil {
		return fmt.Errorf("db: encode domain records: %w", err)
	}
	historyJSON, err := json.Marshal(d.History)
	if err != nil {
		return fmt.Errorf("db: encode domain history: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.Exec(`
		INSERT INTO domains (name, current_txid, current_vout, owner_txid, owner_vout, records, history)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (name) DO UPDATE SET
			current_txid = excluded.current_txid,
			current_vout = excluded.current_vout,
			owner_txid   = excluded.owner_txid,
			owner_vout   = excluded.owner_vout,
			records      = excluded.records,
			history      = excluded.history
	`, d.Name, d.CurrentTxID, d.CurrentVout, d.OwnerTxID, d.OwnerVout, string(recordsJSON), string(historyJSON))
	if err != nil {
		return fmt.Errorf("db: upsert domain: %w", err)
	}
	return nil
}
