package graph

import "fmt"

// DefaultMaxDepth bounds recursive descendant expansion, protecting against
// adversarial deep reply chains at query time (§4.2 "thread reconstruction").
const DefaultMaxDepth = 64

// ErrDepthExceeded is returned by Descendants when a thread is deeper than
// maxDepth allows.
var ErrDepthExceeded = fmt.Errorf("graph: thread exceeds max depth")

// ThreadReader answers thread-shaped queries over the resolved anchor graph,
// grounded on the recursive reply walk in
// original_source/apps/anchor-threads/backend/src/db.rs (get_thread_replies,
// count_thread_messages).
//
// A root is a message with no canonical parent (anchor index 0 absent, or
// orphan/ambiguous). Replies to m are messages whose anchor index 0 resolves
// unambiguously to (m.TxID, m.Vout).
type ThreadReader struct {
	store Store
}

// NewThreadReader constructs a ThreadReader over store.
func NewThreadReader(store Store) *ThreadReader {
	return &ThreadReader{store: store}
}

// Replies returns the direct replies to (txid, vout), ordered as the store
// returns them (internal/db orders them by ascending block height).
func (t *ThreadReader) Replies(txid string, vout uint16) ([]StoredMessage, error) {
	return t.store.RepliesTo(txid, vout)
}

// Descendants walks the reply tree rooted at (txid, vout) breadth-first,
// bounded by maxDepth. It returns every descendant found, in breadth-first
// discovery order. A tree deeper than maxDepth returns ErrDepthExceeded
// along with whatever was collected up to the limit.
func (t *ThreadReader) Descendants(txid string, vout uint16, maxDepth int) ([]StoredMessage, error) {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}

	type frontierEntry struct {
		txid string
		vout uint16
	}

	var all []StoredMessage
	frontier := []frontierEntry{{txid, vout}}

	for depth := 0; len(frontier) > 0; depth++ {
		var next []frontierEntry
		for _, f := range frontier {
			replies, err := t.store.RepliesTo(f.txid, f.vout)
			if err != nil {
				return all, err
			}
			if depth >= maxDepth && len(replies) > 0 {
				return all, ErrDepthExceeded
			}
			for _, r := range replies {
				all = append(all, r)
				next = append(next, frontierEntry{r.TxID, r.Vout})
			}
		}
		frontier = next
	}

	return all, nil
}

// CountDescendants is Descendants without materialising the tree, mirroring
// the reference's count_thread_messages recursive count. It still enforces
// maxDepth so an adversarial chain can't force an unbounded walk.
func (t *ThreadReader) CountDescendants(txid string, vout uint16, maxDepth int) (int, error) {
	descendants, err := t.Descendants(txid, vout, maxDepth)
	return len(descendants), err
}
