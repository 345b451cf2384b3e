package graph

import (
	"sync"

	"github.com/rawblock/anchor-engine/pkg/models"
)

// memStore is a minimal in-process Store for unit tests.
type memStore struct {
	mu       sync.Mutex
	nextID   int64
	messages map[int64]StoredMessage
	edges    []models.AnchorEdge
}

func newMemStore() *memStore {
	return &memStore{messages: make(map[int64]StoredMessage)}
}

func (s *memStore) InsertMessage(m StoredMessage) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	m.ID = s.nextID
	s.messages[m.ID] = m
	return m.ID, nil
}

func (s *memStore) InsertEdge(e models.AnchorEdge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.edges = append(s.edges, e)
	return nil
}

func (s *memStore) MatchingTxIDsForPrefix(prefix [8]byte, vout uint16, beforeHeight int64) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[string]bool)
	var out []string
	for _, m := range s.messages {
		if m.BlockHeight >= beforeHeight {
			continue
		}
		if m.Vout != vout {
			continue
		}
		if models.TxIDPrefix([]byte(m.TxID)) != prefix {
			continue
		}
		if !seen[m.TxID] {
			seen[m.TxID] = true
			out = append(out, m.TxID)
		}
	}
	return out, nil
}

func (s *memStore) RepliesTo(parentTxID string, parentVout uint16) ([]StoredMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	parentPrefix := models.TxIDPrefix([]byte(parentTxID))

	var out []StoredMessage
	for _, e := range s.edges {
		if e.Index != 0 || e.Ambiguous {
			continue
		}
		if e.Prefix != parentPrefix || e.Vout != parentVout {
			continue
		}
		if m, ok := s.messages[e.MessageID]; ok {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *memStore) MessageByTxVout(txid string, vout uint16) (StoredMessage, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.messages {
		if m.TxID == txid && m.Vout == vout {
			return m, true, nil
		}
	}
	return StoredMessage{}, false, nil
}

func (s *memStore) DeleteAbove(height int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, m := range s.messages {
		if m.BlockHeight > height {
			delete(s.messages, id)
		}
	}
	kept := s.edges[:0]
	for _, e := range s.edges {
		if m, ok := s.messages[e.MessageID]; ok {
			_ = m
			kept = append(kept, e)
		}
	}
	s.edges = kept
	return nil
}
