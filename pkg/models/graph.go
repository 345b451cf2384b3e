package models

// AnchorEdge is the indexer's materialised view of one Message.Anchors entry
// after resolution (§3 "Anchor edge").
type AnchorEdge struct {
	MessageID     int64
	Index         int
	Prefix        [8]byte
	Vout          uint16
	ResolvedTxID  string // empty unless resolved
	Ambiguous     bool
	Orphan        bool
}

// Resolved reports whether exactly one prior message matched the prefix.
func (e AnchorEdge) Resolved() bool {
	return !e.Ambiguous && !e.Orphan && e.ResolvedTxID != ""
}

// IndexerState is the single-row cursor advanced atomically after every
// confirmed block (§3 "Indexer state").
type IndexerState struct {
	LastBlockHash   string
	LastBlockHeight int64
}
