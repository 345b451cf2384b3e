package models

import "time"

// LockReasonType tags the kind of protection a LockEntry carries.
type LockReasonType string

const (
	LockManual LockReasonType = "manual"
	LockDomain LockReasonType = "domain"
	LockToken  LockReasonType = "token"
	LockAsset  LockReasonType = "asset"
)

// LockReason is one of {Manual, Domain{name}, Token{ticker,amount}, Asset{type,id}}
// (§3 "Lock entry").
type LockReason struct {
	Type      LockReasonType `json:"type"`
	Name      string         `json:"name,omitempty"`
	Ticker    string         `json:"ticker,omitempty"`
	Amount    string         `json:"amount,omitempty"`
	AssetType string         `json:"asset_type,omitempty"`
	AssetID   string         `json:"asset_id,omitempty"`
}

// Description renders a human-readable label, mirroring the teacher engine's
// preference for terse operator-facing log lines.
func (r LockReason) Description() string {
	switch r.Type {
	case LockDomain:
		return "domain: " + r.Name
	case LockToken:
		return "token: " + r.Amount + " " + r.Ticker
	case LockAsset:
		return "asset: " + r.AssetID + " (" + r.AssetType + ")"
	default:
		return "manually locked"
	}
}

// LockEntry is one protected (txid, vout) that must never be auto-selected
// by the wallet's UTXO selection rule.
type LockEntry struct {
	TxID     string     `json:"txid"`
	Vout     uint32     `json:"vout"`
	Reason   LockReason `json:"reason"`
	LockedAt time.Time  `json:"locked_at"`
}

// Key returns the (txid, vout) lookup key.
func (l LockEntry) Key() OutPointKey {
	return OutPointKey{TxID: l.TxID, Vout: l.Vout}
}

// OutPointKey is a hashable (txid, vout) pair used for set lookups.
type OutPointKey struct {
	TxID string
	Vout uint32
}
