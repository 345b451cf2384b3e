package db

import (
	"database/sql"
	"fmt"

	"github.com/rawblock/anchor-engine/internal/graph"
	"github.com/rawblock/anchor-engine/pkg/models"
)

// InsertMessage persists a decoded carrier message and returns its row id,
// satisfying graph.Store for the block ingester (§4.1-4.2).
func (s *Store) InsertMessage(m graph.StoredMessage) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prefix := models.TxIDPrefix([]byte(m.TxID))
	_, err := s.db.Exec(`
		INSERT INTO messages (txid, txid_prefix, vout, block_height, kind, carrier, body)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (txid, vout) DO UPDATE SET block_height = excluded.block_height
	`, m.TxID, prefix[:], m.Vout, m.BlockHeight, m.Kind, m.Carrier, m.Body)
	if err != nil {
		return 0, fmt.Errorf("db: insert message: %w", err)
	}

	// ON CONFLICT may have updated rather than inserted, so LastInsertId
	// isn't reliable here; read the id back by its unique key instead.
	var id int64
	if err := s.db.QueryRow(`SELECT id FROM messages WHERE txid = ? AND vout = ?`, m.TxID, m.Vout).Scan(&id); err != nil {
		return 0, fmt.Errorf("db: insert message: read back id: %w", err)
	}
	return id, nil
}

// InsertEdge persists one anchor slot's resolution outcome (§4.2).
func (s *Store) InsertEdge(e models.AnchorEdge) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var resolved *string
	if e.ResolvedTxID != "" {
		resolved = &e.ResolvedTxID
	}
	_, err := s.db.Exec(`
		INSERT INTO anchors (message_id, anchor_index, prefix, vout, resolved_txid, ambiguous, orphan)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (message_id, anchor_index) DO UPDATE SET
			resolved_txid = excluded.resolved_txid,
			ambiguous = excluded.ambiguous,
			orphan = excluded.orphan
	`, e.MessageID, e.Index, e.Prefix[:], e.Vout, resolved, e.Ambiguous, e.Orphan)
	if err != nil {
		return fmt.Errorf("db: insert edge: %w", err)
	}
	return nil
}

// MatchingTxIDsForPrefix finds candidate parent transactions for an anchor
// slot: messages whose own txid starts with prefix and whose carrier vout
// matches, confirmed strictly before beforeHeight (§4.2 resolution rule).
func (s *Store) MatchingTxIDsForPrefix(prefix [8]byte, vout uint16, beforeHeight int64) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT DISTINCT txid FROM messages
		WHERE txid_prefix = ? AND vout = ? AND block_height < ?
	`, prefix[:], vout, beforeHeight)
	if err != nil {
		return nil, fmt.Errorf("db: matching txids: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var txid string
		if err := rows.Scan(&txid); err != nil {
			return nil, err
		}
		out = append(out, txid)
	}
	return out, rows.Err()
}

// RepliesTo returns every message whose first anchor slot resolved,
// unambiguously, to parentTxID/parentVout (§4.2 "Thread reconstruction").
func (s *Store) RepliesTo(parentTxID string, parentVout uint16) ([]graph.StoredMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT m.id, m.txid, m.vout, m.block_height, m.kind, m.carrier, m.body
		FROM messages m
		JOIN anchors a ON a.message_id = m.id
		WHERE a.anchor_index = 0 AND a.resolved_txid = ? AND a.vout = ?
		  AND a.ambiguous = 0 AND a.orphan = 0
		ORDER BY m.block_height ASC
	`, parentTxID, parentVout)
	if err != nil {
		return nil, fmt.Errorf("db: replies to: %w", err)
	}
	defer rows.Close()

	var out []graph.StoredMessage
	for rows.Next() {
		var m graph.StoredMessage
		if err := rows.Scan(&m.ID, &m.TxID, &m.Vout, &m.BlockHeight, &m.Kind, &m.Carrier, &m.Body); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// MessageByTxVout looks up one message by its own location.
func (s *Store) MessageByTxVout(txid string, vout uint16) (graph.StoredMessage, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var m graph.StoredMessage
	err := s.db.QueryRow(`
		SELECT id, txid, vout, block_height, kind, carrier, body
		FROM messages WHERE txid = ? AND vout = ?
	`, txid, vout).Scan(&m.ID, &m.TxID, &m.Vout, &m.BlockHeight, &m.Kind, &m.Carrier, &m.Body)
	if err == sql.ErrNoRows {
		return graph.StoredMessage{}, false, nil
	}
	if err != nil {
		return graph.StoredMessage{}, false, fmt.Errorf("db: message by tx vout: %w", err)
	}
	return m, true, nil
}

// DeleteAbove discards every message (and its anchors, via the FK cascade)
// confirmed above height, for reorg handling (§4.4).
func (s *Store) DeleteAbove(height int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`DELETE FROM messages WHERE block_height > ?`, height)
	if err != nil {
		return fmt.Errorf("db: delete above: %w", err)
	}
	return nil
}

// LoadState returns the single-row indexer cursor, satisfying
// graph.CursorStore.
func (s *Store) LoadState() (models.IndexerState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var st models.IndexerState
	err := s.db.QueryRow(`
		SELECT last_block_hash, last_block_height FROM indexer_state WHERE id = 1
	`).Scan(&st.LastBlockHash, &st.LastBlockHeight)
	if err != nil {
		return models.IndexerState{}, fmt.Errorf("db: load indexer state: %w", err)
	}
	return st, nil
}

// SaveState persists the indexer cursor after each processed block.
func (s *Store) SaveState(st models.IndexerState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		UPDATE indexer_state SET last_block_hash = ?, last_block_height = ? WHERE id = 1
	`, st.LastBlockHash, st.LastBlockHeight)
	if err != nil {
		return fmt.Errorf("db: save indexer state: %w", err)
	}
	return nil
}
