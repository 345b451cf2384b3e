// Package wallet implements the ANCHOR transaction engine (§4.5 "Wallet
// transaction engine"): two broadcast paths (OP_RETURN and commit/reveal
// WitnessData), a process-wide mutex serializing UTXO selection across
// concurrent commit+reveal pairs, and encrypted mnemonic storage. Grounded
// on the reference wallet's WalletService/advanced transaction builder.
package wallet

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/rawblock/anchor-engine/internal/bitcoin"
	"github.com/rawblock/anchor-engine/internal/carrier"
	"github.com/rawblock/anchor-engine/internal/lockmgr"
	"github.com/rawblock/anchor-engine/internal/walletlog"
	"github.com/rawblock/anchor-engine/pkg/models"
)

var log = walletlog.New("wallet")

// Fee/size constants mirrored exactly from the reference implementation's
// advanced transaction builder.
const (
	commitVSize    = 150
	reveralBaseVSz = 200
	perRequiredIn  = 68
	perCustomOut   = 34
	anchorDust     = 546
	safetyMargin   = 1000
)

// Balance mirrors the reference WalletService's balance summary.
type Balance struct {
	Confirmed   float64
	Unconfirmed float64
	Total       float64
}

// Service wraps the bitcoin RPC client with the wallet-specific write
// operations needed to build and broadcast ANCHOR transactions.
type Service struct {
	btc    *bitcoin.Client
	locks  *lockmgr.Manager
	params *chaincfg.Params

	// txCreationMu serializes UTXO selection across commit+reveal pairs so
	// two concurrent calls never pick the same input (§4.5).
	txCreationMu sync.Mutex

	stateMu   sync.Mutex
	statePath string
	state     walletState

	cache *broadcastCache
}

// walletState is the small amount of wallet bookkeeping persisted outside
// Bitcoin Core itself (its own RPC wallet already tracks keys/UTXOs).
type walletState struct {
	LastAddress string     `json:"last_address,omitempty"`
	LastUsed    *time.Time `json:"last_used,omitempty"`
}

// CustomOutput is a non-anchor, non-change output a caller wants included
// (e.g. a token recipient or market payout).
type CustomOutput struct {
	Address string
	Sats    int64
}

// New constructs a wallet Service, persisting its small state file under
// dataDir.
func New(btc *bitcoin.Client, locks *lockmgr.Manager, params *chaincfg.Params, dataDir string) (*Service, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("wallet: create data dir: %w", err)
	}
	s := &Service{
		btc:       btc,
		locks:     locks,
		params:    params,
		statePath: filepath.Join(dataDir, "wallet_state.json"),
	}
	if raw, err := os.ReadFile(s.statePath); err == nil {
		if err := json.Unmarshal(raw, &s.state); err != nil {
			log.Printf("[wallet] failed to parse wallet state, starting fresh: %v", err)
			s.state = walletState{}
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("wallet: read state: %w", err)
	}

	cache, err := openBroadcastCache(dataDir)
	if err != nil {
		return nil, err
	}
	s.cache = cache

	return s, nil
}

// Close releases the wallet's local broadcast cache.
func (s *Service) Close() error {
	return s.cache.close()
}

// RecentBroadcasts returns this wallet's own most recent txids of a given
// message kind, newest first, from the local cache rather than the
// internal/db graph store — useful for a caller polling its own
// not-yet-confirmed message.
func (s *Service) RecentBroadcasts(kind uint8, limit int) ([]string, error) {
	return s.cache.recentByKind(kind, limit)
}

func (s *Service) saveState() error {
	content, err := json.MarshalIndent(s.state, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.statePath + ".tmp"
	if err := os.WriteFile(tmp, content, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.statePath)
}

// Balance returns the wallet's confirmed/unconfirmed BTC balance.
func (s *Service) Balance() (Balance, error) {
	confirmed, unconfirmed, err := s.btc.GetWalletBalances()
	if err != nil {
		return Balance{}, fmt.Errorf("wallet: get balances: %w", err)
	}
	return Balance{Confirmed: confirmed, Unconfirmed: unconfirmed, Total: confirmed + unconfirmed}, nil
}

// NewAddress requests a fresh receiving address and remembers it.
func (s *Service) NewAddress() (string, error) {
	addr, err := s.btc.GetNewAddress()
	if err != nil {
		return "", fmt.Errorf("wallet: get new address: %w", err)
	}
	s.stateMu.Lock()
	s.state.LastAddress = addr
	now := time.Now().UTC()
	s.state.LastUsed = &now
	err = s.saveState()
	s.stateMu.Unlock()
	if err != nil {
		log.Printf("[wallet] failed to persist wallet state: %v", err)
	}
	return addr, nil
}

// unlockedUTXOs lists every wallet UTXO not currently held by the lock
// manager, sorted by descending confirmations (the reference selection
// order — prefer the oldest, least reorg-sensitive coins first).
func (s *Service) unlockedUTXOs(minConf int) ([]bitcoin.UnspentUTXO, error) {
	all, err := s.btc.ListUnspentAll(minConf)
	if err != nil {
		return nil, fmt.Errorf("wallet: list unspent: %w", err)
	}
	locked := s.locks.GetLockedSet()

	out := make([]bitcoin.UnspentUTXO, 0, len(all))
	for _, u := range all {
		if !u.Spendable {
			continue
		}
		if locked[models.OutPointKey{TxID: u.TxID, Vout: u.Vout}] {
			continue
		}
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Confirmations > out[j].Confirmations })
	return out, nil
}

// selectUTXOs accumulates unlocked UTXOs, oldest-confirmed first, until
// their total satoshi value is at least requiredSats.
func selectUTXOs(candidates []bitcoin.UnspentUTXO, requiredSats int64) ([]bitcoin.UnspentUTXO, int64, error) {
	var total int64
	var picked []bitcoin.UnspentUTXO
	for _, u := range candidates {
		if total >= requiredSats {
			break
		}
		picked = append(picked, u)
		total += btcToSats(u.Amount)
	}
	if total < requiredSats {
		return nil, 0, fmt.Errorf("wallet: insufficient funds: have %d sats, need %d", total, requiredSats)
	}
	return picked, total, nil
}

func btcToSats(btc float64) int64 {
	return int64(btc*1e8 + 0.5)
}

func satsToBTC(sats int64) float64 {
	return float64(sats) / 1e8
}

// ErrCarrierMismatch is returned when a caller asks for a broadcast path
// that does not match the carrier the selector chose.
var ErrCarrierMismatch = errors.New("wallet: chosen carrier does not match requested broadcast path")

// anchorExplicitCarrier narrows msg encoding to the two carriers this
// engine can actually broadcast end-to-end: OpReturn (single-tx) and
// WitnessData (commit/reveal). Callers needing Inscription/Stamps/Annex
// construct those transactions through the carrier package directly for
// manual broadcast; this engine automates only the two most common paths.
func pickBroadcastCarrier(kind uint8, envelopeSize int, explicit *carrier.Type) (carrier.Type, error) {
	sel := carrier.NewSelector()
	chosen, err := sel.Choose(kind, envelopeSize, explicit)
	if err != nil {
		return 0, err
	}
	if chosen != carrier.OpReturn && chosen != carrier.WitnessData {
		return 0, fmt.Errorf("%w: selector chose %s, wallet only automates op_return and witness_data", ErrCarrierMismatch, chosen)
	}
	return chosen, nil
}
