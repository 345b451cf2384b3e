// Package token implements the token state machine (§4.6, "C9"):
// UTXO-set accounting for fungible tokens with deploy/mint/transfer/burn/
// split. Grounded on
// original_source/apps/anchor-tokens/backend/src/{indexer,db}.rs.
package token

import (
	"errors"
	"fmt"
	"log"

	"github.com/rawblock/anchor-engine/internal/kindspec"
	"github.com/rawblock/anchor-engine/pkg/models"
)

// Store is the persistence seam for token rows and token UTXOs.
// internal/db provides the SQLite-backed implementation, mirroring the
// reference's `tokens`/`token_utxos` tables.
type Store interface {
	GetTokenByTicker(ticker string) (models.Token, bool, error)
	InsertToken(t models.Token) error
	UpdateSupply(ticker string, minted, burned uint64) error

	// LiveUTXOsForAnchors returns the still-unspent token UTXOs referenced
	// by a Transfer/Split message's anchors, matched by txid prefix+vout
	// (mirroring `find_utxo_by_prefix`).
	LiveUTXOsForAnchors(ticker string, anchors []models.Anchor) ([]models.TokenUTXO, error)
	InsertUTXO(u models.TokenUTXO) error
	MarkSpent(tokenID int64, txid string, vout uint16, spentByTxID string, spentByVout uint16) error
}

// ConfirmedMessage is what the indexer hands the engine for one confirmed
// Kind 20 message.
type ConfirmedMessage struct {
	Spec        kindspec.TokenSpec
	TxID        string
	BlockHeight int64
	Anchors     []models.Anchor
	// OutputOwner resolves a vout to the address that owns it, used to
	// stamp OwnerAddress on newly created token UTXOs.
	OutputOwner func(vout uint16) string
}

// Engine applies confirmed token messages to token/token-UTXO rows.
type Engine struct {
	store Store
}

// New constructs an Engine.
func New(store Store) *Engine {
	return &Engine{store: store}
}

// ErrTickerTaken is returned by Deploy when the ticker already has an
// active row (mirrors `is_ticker_available`).
var ErrTickerTaken = errors.New("token: ticker already deployed")

// Apply dispatches a confirmed message to its operation handler. As with
// the domain engine, an invariant violation is a silent discard
// (applied=false, err=nil), never an error — matching the reference's
// `continue` control flow on every rejected operation.
func (e *Engine) Apply(msg ConfirmedMessage) (applied bool, err error) {
	switch msg.Spec.Operation {
	case kindspec.TokenDeploy:
		return e.deploy(msg)
	case kindspec.TokenMint:
		return e.mint(msg)
	case kindspec.TokenTransfer, kindspec.TokenSplit:
		return e.transferLike(msg)
	case kindspec.TokenBurn:
		return e.burn(msg)
	default:
		return false, fmt.Errorf("token: unknown operation %v", msg.Spec.Operation)
	}
}

func (e *Engine) deploy(msg ConfirmedMessage) (bool, error) {
	if _, ok, err := e.store.GetTokenByTicker(msg.Spec.Ticker); err != nil {
		return false, err
	} else if ok {
		log.Printf("[token] deploy %s refused: ticker already registered", msg.Spec.Ticker)
		return false, nil
	}

	t := models.Token{
		Ticker:     msg.Spec.Ticker,
		Decimals:   msg.Spec.Decimals,
		MaxSupply:  msg.Spec.MaxSupply,
		MintLimit:  msg.Spec.MintLimit,
		Flags:      msg.Spec.Flags,
		DeployTxID: msg.TxID,
		DeployVout: 0,
	}
	if err := e.store.InsertToken(t); err != nil {
		return false, err
	}
	log.Printf("[token] deployed %s (max_supply=%d)", t.Ticker, t.MaxSupply)
	return true, nil
}

// mint implements §4.6's mint rule verbatim: "allowed only if flags &
// open_mint ≠ 0 AND minted + amount ≤ max_supply AND (if mint_limit set)
// amount ≤ mint_limit. Violating mints are discarded."
func (e *Engine) mint(msg ConfirmedMessage) (bool, error) {
	t, ok, err := e.store.GetTokenByTicker(msg.Spec.Ticker)
	if err != nil {
		return false, err
	}
	if !ok {
		log.Printf("[token] mint refused: %s not found", msg.Spec.Ticker)
		return false, nil
	}

	if !t.OpenMint() {
		log.Printf("[token] mint refused: %s does not allow open mint", t.Ticker)
		return false, nil
	}
	if t.Minted+msg.Spec.Amount > t.MaxSupply {
		log.Printf("[token] mint refused: %s would exceed max supply", t.Ticker)
		return false, nil
	}
	if t.MintLimit != nil && msg.Spec.Amount > *t.MintLimit {
		log.Printf("[token] mint refused: %s amount exceeds mint_limit", t.Ticker)
		return false, nil
	}

	owner := ""
	if msg.OutputOwner != nil {
		owner = msg.OutputOwner(uint16(msg.Spec.OutputIndex))
	}

	utxo := models.TokenUTXO{
		TokenID:      t.ID,
		TxID:         msg.TxID,
		Vout:         uint16(msg.Spec.OutputIndex),
		Amount:       msg.Spec.Amount,
		OwnerAddress: owner,
	}
	if err := e.store.InsertUTXO(utxo); err != nil {
		return false, err
	}
	if err := e.store.UpdateSupply(t.Ticker, t.Minted+msg.Spec.Amount, t.Burned); err != nil {
		return false, err
	}
	return true, nil
}

// transferLike implements §4.6's Transfer/Split rule: "the message's
// anchors identify the source token UTXOs; each must be alive and sum of
// allocations ≤ sum of source amounts (excess is implicit burn only if
// burnable, otherwise the transfer is invalid and discarded). Spent source
// UTXOs are marked with spent_by = (this_tx, vout)."
func (e *Engine) transferLike(msg ConfirmedMessage) (bool, error) {
	t, ok, err := e.store.GetTokenByTicker(msg.Spec.Ticker)
	if err != nil {
		return false, err
	}
	if !ok {
		log.Printf("[token] transfer refused: %s not found", msg.Spec.Ticker)
		return false, nil
	}
	if len(msg.Anchors) == 0 {
		log.Printf("[token] transfer refused: %s without anchors", t.Ticker)
		return false, nil
	}

	sources, err := e.store.LiveUTXOsForAnchors(t.Ticker, msg.Anchors)
	if err != nil {
		return false, err
	}
	if len(sources) == 0 {
		log.Printf("[token] transfer refused: %s no live source utxo found", t.Ticker)
		return false, nil
	}

	var sourceTotal uint64
	for _, s := range sources {
		sourceTotal += s.Amount
	}

	var allocTotal uint64
	for _, a := range msg.Spec.SplitAmounts {
		allocTotal += a
	}

	if allocTotal > sourceTotal {
		log.Printf("[token] transfer refused: %s allocations %d exceed source total %d", t.Ticker, allocTotal, sourceTotal)
		return false, nil
	}
	if allocTotal < sourceTotal && !t.Burnable() {
		log.Printf("[token] transfer refused: %s leaves %d unaccounted for and ticker is not burnable", t.Ticker, sourceTotal-allocTotal)
		return false, nil
	}

	for i, amount := range msg.Spec.SplitAmounts {
		vout := uint16(i + 1) // vout 0 is the carrier/anchor output
		owner := ""
		if msg.OutputOwner != nil {
			owner = msg.OutputOwner(vout)
		}
		utxo := models.TokenUTXO{
			TokenID:      t.ID,
			TxID:         msg.TxID,
			Vout:         vout,
			Amount:       amount,
			OwnerAddress: owner,
		}
		if err := e.store.InsertUTXO(utxo); err != nil {
			return false, err
		}
	}

	for i, s := range sources {
		if err := e.store.MarkSpent(t.ID, s.TxID, s.Vout, msg.TxID, uint16(i)); err != nil {
			return false, err
		}
	}

	implicitBurn := sourceTotal - allocTotal
	if implicitBurn > 0 {
		if err := e.store.UpdateSupply(t.Ticker, t.Minted, t.Burned+implicitBurn); err != nil {
			return false, err
		}
	}

	return true, nil
}

// burn implements §4.6's burn rule: reduces circulating supply; requires
// the burnable flag.
func (e *Engine) burn(msg ConfirmedMessage) (bool, error) {
	t, ok, err := e.store.GetTokenByTicker(msg.Spec.Ticker)
	if err != nil {
		return false, err
	}
	if !ok {
		log.Printf("[token] burn refused: %s not found", msg.Spec.Ticker)
		return false, nil
	}
	if !t.Burnable() {
		log.Printf("[token] burn refused: %s is not burnable", t.Ticker)
		return false, nil
	}

	if err := e.store.UpdateSupply(t.Ticker, t.Minted, t.Burned+msg.Spec.Amount); err != nil {
		return false, err
	}
	return true, nil
}

// Balance computes a live balance the same way the reference's
// `update_address_balance` trigger does: a sum over unspent UTXOs, not a
// cached counter (§4.6 "Balance materialisation").
func Balance(utxos []models.TokenUTXO, address string) uint64 {
	var total uint64
	for _, u := range utxos {
		if !u.Spent && u.OwnerAddress == address {
			total += u.Amount
		}
	}
	return total
}

// HolderCount returns the number of distinct addresses with a positive
// live balance.
func HolderCount(utxos []models.TokenUTXO) int {
	holders := make(map[string]bool)
	for _, u := range utxos {
		if !u.Spent && u.Amount > 0 {
			holders[u.OwnerAddress] = true
		}
	}
	return len(holders)
}
