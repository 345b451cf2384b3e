// Package domain implements the domain state machine (§4.5, "C8"):
// first-writer-wins name registration with an update chain secured by
// spending the prior ownership UTXO. Grounded on
// original_source/apps/anchor-domains (register/update/transfer
// semantics) and kindspec.DNSSpec for wire decoding.
package domain

import (
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/rawblock/anchor-engine/internal/kindspec"
	"github.com/rawblock/anchor-engine/internal/lockmgr"
	"github.com/rawblock/anchor-engine/pkg/models"
)

// ErrNameTaken is returned by Register when a case-folded name already has
// an active row (§4.5 "first-writer-wins").
var ErrNameTaken = errors.New("domain: name already registered")

// ErrDomainNotFound is returned when Update/Transfer target a name with no
// active row.
var ErrDomainNotFound = errors.New("domain: not found")

// Store is the persistence seam for domain rows. internal/db provides the
// SQLite-backed implementation.
type Store interface {
	GetActive(foldedName string) (models.Domain, bool, error)
	Insert(d models.Domain) error
	Replace(d models.Domain) error
}

// ConfirmedMessage is what the indexer hands the engine for one confirmed
// Kind 10 message: the decoded spec, its own location, the anchors it
// carried, and the set of outpoints its reveal transaction actually spent.
type ConfirmedMessage struct {
	Spec        kindspec.DNSSpec
	TxID        string
	BlockHeight int64
	Anchors     []models.Anchor
	SpentInputs []models.OutPointKey
}

// Engine applies confirmed DNS messages to domain rows, keeping the lock
// manager's domain-ownership lock in sync.
type Engine struct {
	store Store
	locks *lockmgr.Manager
}

// New constructs an Engine.
func New(store Store, locks *lockmgr.Manager) *Engine {
	return &Engine{store: store, locks: locks}
}

func foldName(name string) string {
	return strings.ToLower(name)
}

// Apply dispatches a confirmed message to Register/Update/Transfer. Per
// §4.5, a message that fails its invariant checks is silently discarded
// (not an error): Apply returns (false, nil) in that case, and the caller
// must not retry it.
func (e *Engine) Apply(msg ConfirmedMessage) (applied bool, err error) {
	switch msg.Spec.Operation {
	case kindspec.DNSRegister:
		return e.register(msg)
	case kindspec.DNSUpdate:
		return e.update(msg, true)
	case kindspec.DNSTransfer:
		return e.update(msg, false)
	default:
		return false, fmt.Errorf("domain: unknown operation %v", msg.Spec.Operation)
	}
}

// register implements §4.5 "Register": insert a fresh row at vout 0,
// aborting on name clash.
func (e *Engine) register(msg ConfirmedMessage) (bool, error) {
	folded := foldName(msg.Spec.Name)
	if _, ok, err := e.store.GetActive(folded); err != nil {
		return false, err
	} else if ok {
		log.Printf("[domain] register %s refused: name already taken", folded)
		return false, nil
	}

	row := models.Domain{
		Name:        folded,
		CurrentTxID: msg.TxID,
		CurrentVout: 0,
		OwnerTxID:   msg.TxID,
		OwnerVout:   0,
		Records:     msg.Spec.Records,
		History: []models.DomainHistoryEntry{{
			TxID:        msg.TxID,
			Vout:        0,
			BlockHeight: msg.BlockHeight,
			Operation:   "register",
		}},
	}
	if err := e.store.Insert(row); err != nil {
		return false, err
	}

	if _, err := e.locks.Lock(msg.TxID, 0, models.LockReason{Type: models.LockDomain, Name: folded}); err != nil {
		return false, fmt.Errorf("domain: lock new ownership utxo: %w", err)
	}

	return true, nil
}

// update implements §4.5 "Update"/"Transfer". Both require: the message
// carries an anchor (index ≥ 1) equal to the row's current
// (owner_txid, owner_vout), AND the reveal transaction actually spends
// that outpoint as an input. Missing either check silently discards the
// message (§4.5: "Both checks are required; missing either, the update is
// silently ignored"). replaceRecords distinguishes Update (records change)
// from Transfer (records carry over, only ownership moves).
func (e *Engine) update(msg ConfirmedMessage, replaceRecords bool) (bool, error) {
	folded := foldName(msg.Spec.Name)
	row, ok, err := e.store.GetActive(folded)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}

	if !e.anchorsCurrentOwner(msg.Anchors, row) {
		log.Printf("[domain] update %s refused: anchor does not reference current owner utxo", folded)
		return false, nil
	}
	if !e.spendsCurrentOwner(msg.SpentInputs, row) {
		log.Printf("[domain] update %s refused: reveal tx does not spend current owner utxo", folded)
		return false, nil
	}

	oldTxID, oldVout := row.OwnerTxID, row.OwnerVout

	row.CurrentTxID = msg.TxID
	row.CurrentVout = 0
	row.OwnerTxID = msg.TxID
	row.OwnerVout = 0
	if replaceRecords {
		row.Records = msg.Spec.Records
	}
	op := "update"
	if !replaceRecords {
		op = "transfer"
	}
	row.History = append(row.History, models.DomainHistoryEntry{
		TxID:        msg.TxID,
		Vout:        0,
		BlockHeight: msg.BlockHeight,
		Operation:   op,
	})

	if err := e.store.Replace(row); err != nil {
		return false, err
	}

	// The wallet calls TransferDomainLock itself right after broadcast to
	// avoid a window where the new UTXO is unprotected; the indexer repeats
	// it here (idempotently) so a cold-started indexer reconciling history
	// converges to the same lock state without depending on broadcast-time
	// bookkeeping having happened at all.
	if ok, err := e.locks.TransferDomainLock(folded, oldTxID, uint32(oldVout), msg.TxID, 0); err != nil {
		return false, fmt.Errorf("domain: transfer lock: %w", err)
	} else if !ok {
		log.Printf("[domain] transfer lock for %s found no prior entry at (%s,%d); locking new utxo directly", folded, oldTxID, oldVout)
		if _, err := e.locks.Lock(msg.TxID, 0, models.LockReason{Type: models.LockDomain, Name: folded}); err != nil {
			return false, fmt.Errorf("domain: lock new ownership utxo: %w", err)
		}
	}

	return true, nil
}

func (e *Engine) anchorsCurrentOwner(anchors []models.Anchor, row models.Domain) bool {
	if len(anchors) < 2 {
		return false
	}
	ownerPrefix := models.TxIDPrefix([]byte(row.OwnerTxID))
	for _, a := range anchors[1:] {
		if a.Prefix == ownerPrefix && a.Vout == row.OwnerVout {
			return true
		}
	}
	return false
}

func (e *Engine) spendsCurrentOwner(spent []models.OutPointKey, row models.Domain) bool {
	for _, k := range spent {
		if k.TxID == row.OwnerTxID && k.Vout == uint32(row.OwnerVout) {
			return true
		}
	}
	return false
}

// ResolveByName looks up the active row for a case-folded name.
func (e *Engine) ResolveByName(name string) (models.Domain, bool, error) {
	return e.store.GetActive(foldName(name))
}
