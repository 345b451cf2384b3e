// Package graph implements the anchor-graph model (§3/§4.2): the block
// ingester that walks the chain in order and detects reorgs, and the
// anchor resolver that turns an 8-byte txid prefix reference into a
// resolved/orphan/ambiguous edge. Grounded on the teacher's
// `internal/scanner` block-walking idiom and, for thread reconstruction,
// `original_source/apps/anchor-threads/backend/src/db.rs`'s recursive
// reply walk.
package graph

import (
	"github.com/rawblock/anchor-engine/pkg/models"
)

// StoredMessage is a confirmed message as the graph store holds it.
type StoredMessage struct {
	ID          int64
	TxID        string
	Vout        uint16
	BlockHeight int64
	Kind        uint8
	Carrier     uint8
	Body        []byte
}

// Store is everything the resolver and thread-reconstruction code need
// from the persistence layer. `internal/db` provides the SQLite-backed
// implementation; tests use an in-memory one.
type Store interface {
	// InsertMessage persists a newly confirmed message, returning its ID.
	InsertMessage(m StoredMessage) (int64, error)
	// InsertEdge persists one resolved/orphan/ambiguous anchor edge.
	InsertEdge(e models.AnchorEdge) error
	// MatchingTxIDsForPrefix returns every distinct txid of a message
	// confirmed strictly before `beforeHeight` whose first 8 bytes equal
	// prefix, at the given vout's carrier.
	MatchingTxIDsForPrefix(prefix [8]byte, vout uint16, beforeHeight int64) ([]string, error)
	// RepliesTo returns every message whose anchor index 0 resolves
	// unambiguously to (parentTxID, parentVout).
	RepliesTo(parentTxID string, parentVout uint16) ([]StoredMessage, error)
	// MessageByTxVout looks up a confirmed message by its carrier location.
	MessageByTxVout(txid string, vout uint16) (StoredMessage, bool, error)
	// DeleteAbove removes every message, and its anchor edges, with
	// block_height > height, used by reorg handling (§4.2). Kind-engine
	// side effects are not touched.
	DeleteAbove(height int64) error
}

// Resolver turns a Message's raw anchor references into persisted
// AnchorEdge rows, applying the resolution rule from §4.2:
//   - zero matches  -> orphan
//   - one match     -> resolved
//   - >one matches  -> ambiguous, final forever (never retried)
type Resolver struct {
	store Store
}

// NewResolver constructs a Resolver over store.
func NewResolver(store Store) *Resolver {
	return &Resolver{store: store}
}

// ResolveAnchors resolves every anchor of a message confirmed at
// blockHeight, in index order, and persists the resulting edges.
func (r *Resolver) ResolveAnchors(messageID int64, anchors []models.Anchor, blockHeight int64) ([]models.AnchorEdge, error) {
	edges := make([]models.AnchorEdge, 0, len(anchors))
	for i, a := range anchors {
		edge, err := r.resolveOne(messageID, i, a, blockHeight)
		if err != nil {
			return nil, err
		}
		edges = append(edges, edge)
		if err := r.store.InsertEdge(edge); err != nil {
			return nil, err
		}
	}
	return edges, nil
}

func (r *Resolver) resolveOne(messageID int64, index int, a models.Anchor, blockHeight int64) (models.AnchorEdge, error) {
	edge := models.AnchorEdge{MessageID: messageID, Index: index, Prefix: a.Prefix, Vout: a.Vout}

	matches, err := r.store.MatchingTxIDsForPrefix(a.Prefix, a.Vout, blockHeight)
	if err != nil {
		return models.AnchorEdge{}, err
	}

	switch len(matches) {
	case 0:
		edge.Orphan = true
	case 1:
		edge.ResolvedTxID = matches[0]
	default:
		// Ambiguity is final: a later message never gets to retroactively
		// pick a winner among colliding prefixes (§4.2 "Ambiguity is final").
		edge.Ambiguous = true
	}
	return edge, nil
}
