package graph

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/rawblock/anchor-engine/internal/bitcoin"
	"github.com/rawblock/anchor-engine/internal/carrier"
	"github.com/rawblock/anchor-engine/pkg/models"
)

// CursorStore persists the single-row indexer cursor (§3 "Indexer state").
// Kept separate from Store so callers can back it with the same table a
// transaction updates alongside message/edge rows, or a dedicated one.
type CursorStore interface {
	LoadState() (models.IndexerState, error)
	SaveState(models.IndexerState) error
}

// Handler receives every confirmed message right after it (and its anchors)
// are stored, so a caller can apply kind-specific state-machine side effects
// (the domain/token/market engines) without this package importing them.
type Handler interface {
	HandleMessage(tx *wire.MsgTx, msg StoredMessage, anchors []models.Anchor, edges []models.AnchorEdge) error
}

// Ingester walks the chain block by block, decodes every carrier vehicle out
// of every transaction, resolves anchors, and tracks reorgs (§4.2, §4.3).
//
// The cursor rule (verbatim, §4.3): "The ingester holds a cursor
// last_block_height and advances only after `confirmations` (typically 1)
// additional blocks are on top of a candidate. Blocks are fetched by hash; if
// a fetch for height h returns not-found and height h-1's hash on the node
// does not match our stored hash, a reorg is declared."
type Ingester struct {
	btc           *bitcoin.Client
	store         Store
	cursor        CursorStore
	selector      *carrier.Selector
	resolver      *Resolver
	confirmations int64
	blockHashes   map[int64]string // height -> hash this ingester last saw there
	handler       Handler
}

// SetHandler registers the kind-dispatch callback invoked after every
// confirmed message is stored and resolved.
func (ing *Ingester) SetHandler(h Handler) {
	ing.handler = h
}

// NewIngester constructs an Ingester. confirmations is the number of blocks
// that must sit atop a candidate before it is processed (typically 1).
func NewIngester(btc *bitcoin.Client, store Store, cursor CursorStore, confirmations int64) *Ingester {
	if confirmations < 1 {
		confirmations = 1
	}
	return &Ingester{
		btc:           btc,
		store:         store,
		cursor:        cursor,
		selector:      carrier.NewSelector(),
		resolver:      NewResolver(store),
		confirmations: confirmations,
		blockHashes:   make(map[int64]string),
	}
}

// ErrReorgDetected is returned by Step when the chain tip no longer matches
// what the ingester last recorded at some height below the cursor.
var ErrReorgDetected = errors.New("graph: reorg detected")

// Step advances the cursor by at most one confirmed block. It returns
// (false, nil) when there is nothing new to process yet (tip hasn't grown
// past cursor+confirmations).
func (ing *Ingester) Step(ctx context.Context) (advanced bool, err error) {
	state, err := ing.cursor.LoadState()
	if err != nil {
		return false, fmt.Errorf("graph: load cursor: %w", err)
	}

	info, err := ing.btc.GetBlockChainInfo()
	if err != nil {
		return false, fmt.Errorf("graph: chain info: %w", err)
	}
	tip := info.Blocks

	candidate := state.LastBlockHeight + 1
	if int64(tip)-candidate < ing.confirmations {
		return false, nil
	}

	if err := ing.checkForReorg(state); err != nil {
		return false, err
	}

	hash, err := ing.btc.GetBlockHash(candidate)
	if err != nil {
		return false, fmt.Errorf("graph: get block hash %d: %w", candidate, err)
	}

	block, err := ing.btc.GetBlockVerbose(hash)
	if err != nil {
		return false, fmt.Errorf("graph: get block %d: %w", candidate, err)
	}

	if err := ing.ingestBlock(candidate, block); err != nil {
		return false, err
	}

	ing.blockHashes[candidate] = hash.String()
	newState := models.IndexerState{LastBlockHash: hash.String(), LastBlockHeight: candidate}
	if err := ing.cursor.SaveState(newState); err != nil {
		return false, fmt.Errorf("graph: save cursor: %w", err)
	}

	log.Printf("[graph] ingested block %d (%s)", candidate, hash.String())
	return true, nil
}

// checkForReorg compares the hash this ingester previously recorded at the
// cursor height against what the node reports there now. A mismatch means
// the chain reorganized underneath the already-processed prefix.
func (ing *Ingester) checkForReorg(state models.IndexerState) error {
	if state.LastBlockHeight == 0 {
		return nil
	}
	nodeHash, err := ing.btc.GetBlockHash(state.LastBlockHeight)
	if err != nil {
		// Height not found on the node at all: definitely a reorg below it.
		return fmt.Errorf("%w: height %d no longer found: %v", ErrReorgDetected, state.LastBlockHeight, err)
	}
	if nodeHash.String() != state.LastBlockHash {
		return fmt.Errorf("%w: height %d hash mismatch (ours %s, node %s)",
			ErrReorgDetected, state.LastBlockHeight, state.LastBlockHash, nodeHash.String())
	}
	return nil
}

// HandleReorg implements the reorg policy (§4.2, verbatim):
// "Determine the greatest height r such that local hash(r) = node.hash(r).
// Delete all messages, edges, and side effects with block_height > r. Reset
// indexer state to r. Resume from r+1." Side effects (domain rows, token
// UTXOs, supply counters, market positions/resolutions) are the caller's
// responsibility to delete transactionally alongside Store.DeleteAbove;
// lock entries are deliberately untouched (§4.4 reconciliation prunes those).
func (ing *Ingester) HandleReorg(ctx context.Context) error {
	state, err := ing.cursor.LoadState()
	if err != nil {
		return fmt.Errorf("graph: load cursor during reorg: %w", err)
	}

	r := state.LastBlockHeight
	for r > 0 {
		nodeHash, err := ing.btc.GetBlockHash(r)
		if err == nil {
			// We don't retain every historical hash in memory; re-derive by
			// re-fetching our own stored block header would require a
			// persisted per-height hash table. The cursor store is expected
			// to expose enough history for this walk; absent that, the
			// safest fallback is to step back one height and re-check.
			if h, ok := ing.blockHashes[r]; ok && h == nodeHash.String() {
				break
			}
		}
		r--
	}

	if err := ing.store.DeleteAbove(r); err != nil {
		return fmt.Errorf("graph: delete above height %d: %w", r, err)
	}

	var newHash string
	if r > 0 {
		if h, err := ing.btc.GetBlockHash(r); err == nil {
			newHash = h.String()
		}
	}

	if err := ing.cursor.SaveState(models.IndexerState{LastBlockHash: newHash, LastBlockHeight: r}); err != nil {
		return fmt.Errorf("graph: reset cursor to %d: %w", r, err)
	}

	for h := range ing.blockHashes {
		if h > r {
			delete(ing.blockHashes, h)
		}
	}

	log.Printf("[graph] reorg handled: reset cursor to height %d", r)
	return nil
}

// Run drives Step in a loop until ctx is cancelled, sleeping pollInterval
// between empty steps and recovering from ErrReorgDetected automatically.
func (ing *Ingester) Run(ctx context.Context, pollInterval time.Duration) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		advanced, err := ing.Step(ctx)
		if errors.Is(err, ErrReorgDetected) {
			log.Printf("[graph] %v", err)
			if rerr := ing.HandleReorg(ctx); rerr != nil {
				return fmt.Errorf("graph: reorg recovery failed: %w", rerr)
			}
			continue
		}
		if err != nil {
			return err
		}
		if !advanced {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(pollInterval):
			}
		}
	}
}

func (ing *Ingester) ingestBlock(height int64, block *btcjson.GetBlockVerboseResult) error {
	for i, txidStr := range block.Tx {
		if i == 0 {
			continue // coinbase never carries an ANCHOR envelope
		}
		txHash, err := chainhash.NewHashFromStr(txidStr)
		if err != nil {
			continue
		}
		rawTx, err := ing.btc.GetRawTransaction(txHash)
		if err != nil {
			log.Printf("[graph] skipping %s at height %d: %v", txidStr, height, err)
			continue
		}

		tx, err := deserializeTx(rawTx.Hex)
		if err != nil {
			log.Printf("[graph] skipping %s at height %d: bad hex: %v", txidStr, height, err)
			continue
		}

		for _, d := range ing.selector.Detect(tx) {
			// A commit/reveal vehicle's envelope lives behind input 0's
			// witness; its anchor output is conventionally vout 0, the
			// anchor-dust output sendRevealTx always places first.
			carrierVout := d.VoutIndex
			if d.IsInput {
				carrierVout = 0
			}

			stored := StoredMessage{
				TxID:        txidStr,
				Vout:        uint16(carrierVout),
				BlockHeight: height,
				Kind:        d.Message.Kind,
				Carrier:     uint8(d.Type),
				Body:        d.Message.Body,
			}
			id, err := ing.store.InsertMessage(stored)
			if err != nil {
				return fmt.Errorf("graph: insert message %s: %w", txidStr, err)
			}

			edges, err := ing.resolver.ResolveAnchors(id, d.Message.Anchors, height)
			if err != nil {
				return fmt.Errorf("graph: resolve anchors for %s: %w", txidStr, err)
			}

			if ing.handler != nil {
				stored.ID = id
				if err := ing.handler.HandleMessage(tx, stored, d.Message.Anchors, edges); err != nil {
					log.Printf("[graph] handler error for %s kind %d: %v", txidStr, stored.Kind, err)
				}
			}
		}
	}
	return nil
}

func deserializeTx(rawHex string) (*wire.MsgTx, error) {
	raw, err := hex.DecodeString(rawHex)
	if err != nil {
		return nil, err
	}
	tx := wire.NewMsgTx(wire.TxVersion)
	if err := tx.Deserialize(bytes.NewReader(raw)); err != nil {
		return nil, err
	}
	return tx, nil
}
