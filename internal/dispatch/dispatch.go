// Package dispatch wires the block ingester's confirmed-message stream to
// the three kind-specific state machines (domain, token, market). It exists
// so internal/graph never imports the engines it drives — each confirmed
// message is decoded once here via the kindspec registry and routed by
// Kind, the way the reference indexer's per-kind handler table dispatches
// apps/anchor-{domains,tokens,predictions}/backend/src/indexer.rs.
package dispatch

import (
	"fmt"
	"log"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/rawblock/anchor-engine/internal/domain"
	"github.com/rawblock/anchor-engine/internal/graph"
	"github.com/rawblock/anchor-engine/internal/kindspec"
	"github.com/rawblock/anchor-engine/internal/market"
	"github.com/rawblock/anchor-engine/internal/token"
	"github.com/rawblock/anchor-engine/pkg/models"
)

// Router implements graph.Handler, decoding each confirmed message's body
// via the kind registry and applying it to the matching engine.
type Router struct {
	registry *kindspec.Registry
	domain   *domain.Engine
	token    *token.Engine
	market   *market.Engine
	params   *chaincfg.Params

	// OnApplied, if set, is called after every engine Apply that returns no
	// error, with applied reporting whether the message took effect — the
	// API layer uses this to push websocket notifications for applied ones.
	OnApplied func(kind uint8, txid string, applied bool)
}

// New constructs a Router over the three kind engines.
func New(domainEngine *domain.Engine, tokenEngine *token.Engine, marketEngine *market.Engine, params *chaincfg.Params) *Router {
	return &Router{
		registry: kindspec.NewRegistry(),
		domain:   domainEngine,
		token:    tokenEngine,
		market:   marketEngine,
		params:   params,
	}
}

// HandleMessage satisfies graph.Handler.
func (r *Router) HandleMessage(tx *wire.MsgTx, msg graph.StoredMessage, anchors []models.Anchor, edges []models.AnchorEdge) error {
	spec, err := r.registry.Decode(msg.Kind, msg.Body)
	if err != nil {
		log.Printf("[dispatch] kind %d body decode failed for %s: %v", msg.Kind, msg.TxID, err)
		return nil
	}

	var applied bool
	switch s := spec.(type) {
	case kindspec.DNSSpec:
		applied, err = r.domain.Apply(domain.ConfirmedMessage{
			Spec:        s,
			TxID:        msg.TxID,
			BlockHeight: msg.BlockHeight,
			Anchors:     anchors,
			SpentInputs: spentInputs(tx),
		})
	case kindspec.TokenSpec:
		applied, err = r.token.Apply(token.ConfirmedMessage{
			Spec:        s,
			TxID:        msg.TxID,
			BlockHeight: msg.BlockHeight,
			Anchors:     anchors,
			OutputOwner: func(vout uint16) string { return outputOwner(tx, vout, r.params) },
		})
	case kindspec.MarketSpec:
		marketID, ok := marketIDFor(s, msg.TxID, edges)
		if !ok {
			log.Printf("[dispatch] market op %v for %s has no resolved anchor to a market", s.Operation, msg.TxID)
			return nil
		}
		bettor := outputOwner(tx, 0, r.params)
		applied, err = r.market.Apply(market.ConfirmedMessage{
			Spec:        s,
			MarketID:    marketID,
			TxID:        msg.TxID,
			BlockHeight: msg.BlockHeight,
			UserPubKey:  bettor,
			ClaimTo:     msg.TxID,
		})
	default:
		return nil // generic/text/state/vote/image/geo/proof kinds have no state machine
	}
	if err != nil {
		return fmt.Errorf("dispatch: apply kind %d for %s: %w", msg.Kind, msg.TxID, err)
	}

	if r.OnApplied != nil {
		r.OnApplied(msg.Kind, msg.TxID, applied)
	}
	return nil
}

// marketIDFor derives the market_id Create seeds (its own txid) versus the
// id Bet/Settle/Claim reference: their first anchor resolves to the
// market's Create transaction, whose txid is the market_id.
func marketIDFor(s kindspec.MarketSpec, txid string, edges []models.AnchorEdge) (string, bool) {
	if s.Operation == kindspec.MarketCreate {
		return txid, true
	}
	for _, e := range edges {
		if e.Index == 0 && e.Resolved() {
			return e.ResolvedTxID, true
		}
	}
	return "", false
}

// spentInputs converts a transaction's inputs into outpoint keys, the set
// domain.Engine checks a Transfer/Update's reveal tx against to confirm it
// actually spent the domain's prior ownership output.
func spentInputs(tx *wire.MsgTx) []models.OutPointKey {
	out := make([]models.OutPointKey, 0, len(tx.TxIn))
	for _, in := range tx.TxIn {
		out = append(out, models.OutPointKey{
			TxID: in.PreviousOutPoint.Hash.String(),
			Vout: in.PreviousOutPoint.Index,
		})
	}
	return out
}

// outputOwner extracts the address a transaction output pays to, used to
// stamp newly created token UTXOs with their owner.
func outputOwner(tx *wire.MsgTx, vout uint16, params *chaincfg.Params) string {
	if int(vout) >= len(tx.TxOut) {
		return ""
	}
	_, addrs, _, err := txscript.ExtractPkScriptAddrs(tx.TxOut[vout].PkScript, params)
	if err != nil || len(addrs) == 0 {
		return ""
	}
	return addrs[0].EncodeAddress()
}
