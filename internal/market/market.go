// Package market implements the prediction-market AMM state machine
// (§4.7, "C10"): constant-product (x*y=k) binary markets settled by
// oracle attestation. Grounded on
// original_source/apps/anchor-predictions/backend/src/db.rs
// (update_market_after_bet, resolve_market, get_market_winners).
package market

import (
	"errors"
	"fmt"
	"log"

	"github.com/rawblock/anchor-engine/internal/kindspec"
	"github.com/rawblock/anchor-engine/pkg/models"
)

// ErrMarketExists is returned by Create when market_id already has a row.
var ErrMarketExists = errors.New("market: already exists")

// Store is the persistence seam for market and position rows.
type Store interface {
	GetMarket(marketID string) (models.Market, bool, error)
	InsertMarket(m models.Market) error
	UpdateMarket(m models.Market) error
	InsertPosition(p models.Position) error
	PositionsFor(marketID string) ([]models.Position, error)
	UpdatePosition(p models.Position) error
}

// ConfirmedMessage is what the indexer hands the engine for one confirmed
// Kind 40 message.
type ConfirmedMessage struct {
	Spec        kindspec.MarketSpec
	MarketID    string // resolved from the create message's txid, or the anchor chain for bet/settle/claim
	TxID        string
	BlockHeight int64
	UserPubKey  string
	ClaimTo     string
}

// Engine applies confirmed market messages to market/position rows.
type Engine struct {
	store Store
}

// New constructs an Engine.
func New(store Store) *Engine {
	return &Engine{store: store}
}

// Apply dispatches a confirmed message to its operation handler.
func (e *Engine) Apply(msg ConfirmedMessage) (applied bool, err error) {
	switch msg.Spec.Operation {
	case kindspec.MarketCreate:
		return e.create(msg)
	case kindspec.MarketBet:
		return e.bet(msg)
	case kindspec.MarketSettle:
		return e.settle(msg)
	case kindspec.MarketClaim:
		return e.claim(msg)
	default:
		return false, fmt.Errorf("market: unknown operation %v", msg.Spec.Operation)
	}
}

// create implements §4.7: "On market creation the pools yes_pool = no_pool
// = initial_liquidity; k = yes_pool · no_pool."
func (e *Engine) create(msg ConfirmedMessage) (bool, error) {
	if _, ok, err := e.store.GetMarket(msg.MarketID); err != nil {
		return false, err
	} else if ok {
		log.Printf("[market] create %s refused: already exists", msg.MarketID)
		return false, nil
	}

	liquidity := msg.Spec.InitialLiquidity
	m := models.Market{
		MarketID:        msg.MarketID,
		Question:        msg.Spec.Question,
		ResolutionBlock: msg.Spec.ResolutionBlock,
		OraclePubKey:    string(msg.Spec.OraclePubKey),
		YesPool:         liquidity,
		NoPool:          liquidity,
		KConstant:       liquidity * liquidity,
		Status:          models.MarketOpen,
	}
	if err := e.store.InsertMarket(m); err != nil {
		return false, err
	}
	return true, nil
}

// Quote is the result of pricing a bet before it is applied, exposed so
// callers (e.g. an API handler building a transaction) can show the user
// the price they are about to lock in.
type Quote struct {
	Shares      uint64
	AvgPrice    float64
	NewYesPool  uint64
	NewNoPool   uint64
	NewYesPrice float64 // basis of 1.0, not bps
}

// QuoteBet computes the constant-product swap for betting amount sats on
// outcome, without mutating the market (§4.7 "Quoting a bet", verbatim
// formulas):
//
//	new_same_side = same_side_before + amount
//	new_opposite_side = k / new_same_side          (k held from market creation)
//	shares = same_side_before - new_opposite_side
//	avg_price = amount / shares
//	new_yes_price = no_pool / (yes_pool + no_pool)  [after the swap]
func QuoteBet(m models.Market, outcome models.Outcome, amount uint64) (Quote, error) {
	sameBefore, _ := poolsFor(m, outcome)
	if sameBefore == 0 {
		return Quote{}, errors.New("market: zero-liquidity pool cannot be quoted")
	}

	newSame := sameBefore + amount
	newOpp := m.KConstant / newSame
	if newOpp > sameBefore {
		// When the same-side pool is the smaller one, k / new_same_side can
		// exceed the pre-bet same-side balance; treat that as "no shares
		// available" rather than an underflow.
		return Quote{}, errors.New("market: bet too small to produce any shares at current pool depth")
	}
	shares := sameBefore - newOpp
	if shares == 0 {
		return Quote{}, errors.New("market: bet too small to produce any shares at current pool depth")
	}
	avgPrice := float64(amount) / float64(shares)

	newYes, newNo := newSame, newOpp
	if outcome == models.OutcomeNo {
		newYes, newNo = newOpp, newSame
	}

	total := newYes + newNo
	var newYesPrice float64
	if total > 0 {
		newYesPrice = float64(newNo) / float64(total)
	}

	return Quote{
		Shares:      shares,
		AvgPrice:    avgPrice,
		NewYesPool:  newYes,
		NewNoPool:   newNo,
		NewYesPrice: newYesPrice,
	}, nil
}

func poolsFor(m models.Market, outcome models.Outcome) (same, opposite uint64) {
	if outcome == models.OutcomeYes {
		return m.YesPool, m.NoPool
	}
	return m.NoPool, m.YesPool
}

// bet applies QuoteBet's swap to the market and records the resulting
// position.
func (e *Engine) bet(msg ConfirmedMessage) (bool, error) {
	m, ok, err := e.store.GetMarket(msg.MarketID)
	if err != nil {
		return false, err
	}
	if !ok || m.Status != models.MarketOpen {
		log.Printf("[market] bet refused: %s not open", msg.MarketID)
		return false, nil
	}

	quote, err := QuoteBet(m, msg.Spec.Outcome, msg.Spec.Amount)
	if err != nil {
		log.Printf("[market] bet refused: %s %v", msg.MarketID, err)
		return false, nil
	}

	m.YesPool = quote.NewYesPool
	m.NoPool = quote.NewNoPool
	m.TotalVolumeSats += msg.Spec.Amount
	if msg.Spec.Outcome == models.OutcomeYes {
		m.TotalYesSats += msg.Spec.Amount
	} else {
		m.TotalNoSats += msg.Spec.Amount
	}
	if err := e.store.UpdateMarket(m); err != nil {
		return false, err
	}

	position := models.Position{
		MarketID:    msg.MarketID,
		OwnerPubKey: msg.UserPubKey,
		Outcome:     msg.Spec.Outcome,
		Amount:      msg.Spec.Amount,
		Shares:      quote.Shares,
		AvgPrice:    quote.AvgPrice,
	}
	if err := e.store.InsertPosition(position); err != nil {
		return false, err
	}

	return true, nil
}

// settle implements §4.7 "Settlement": the indexer sets resolution and
// marks every winning position's payout as
// amount + (share_of_loser_pool × losing_side_total), where
// share_of_loser_pool is the position's share of the total winning shares.
func (e *Engine) settle(msg ConfirmedMessage) (bool, error) {
	m, ok, err := e.store.GetMarket(msg.MarketID)
	if err != nil {
		return false, err
	}
	if !ok || m.Status != models.MarketOpen {
		log.Printf("[market] settle refused: %s not open", msg.MarketID)
		return false, nil
	}

	resolution := msg.Spec.WinningOutcome
	positions, err := e.store.PositionsFor(msg.MarketID)
	if err != nil {
		return false, err
	}

	var losingSideTotal uint64
	var winningSharesTotal uint64
	for _, p := range positions {
		if p.Outcome == resolution {
			winningSharesTotal += p.Shares
		} else {
			losingSideTotal += p.Amount
		}
	}

	for _, p := range positions {
		if p.Outcome != resolution {
			continue
		}
		var shareOfLoserPool float64
		if winningSharesTotal > 0 {
			shareOfLoserPool = float64(p.Shares) / float64(winningSharesTotal)
		}
		payout := p.Amount + uint64(shareOfLoserPool*float64(losingSideTotal))
		p.IsWinner = true
		p.Payout = payout
		if err := e.store.UpdatePosition(p); err != nil {
			return false, err
		}
	}

	m.Status = models.MarketResolved
	m.Resolution = &resolution
	if err := e.store.UpdateMarket(m); err != nil {
		return false, err
	}

	return true, nil
}

// claim implements §4.7 "Claim": a winning position is redeemed; the
// wallet pays payout_sats to the declared address (outside this package —
// see internal/wallet) and the indexer flips claimed=true with claim_txid.
// This method only performs the indexer-side bookkeeping; callers are
// responsible for having already broadcast the payout.
func (e *Engine) claim(msg ConfirmedMessage) (bool, error) {
	positions, err := e.store.PositionsFor(msg.MarketID)
	if err != nil {
		return false, err
	}
	for _, p := range positions {
		if p.OwnerPubKey != msg.UserPubKey || !p.IsWinner || p.Claimed {
			continue
		}
		p.Claimed = true
		p.ClaimTxID = msg.TxID
		if err := e.store.UpdatePosition(p); err != nil {
			return false, err
		}
		return true, nil
	}
	log.Printf("[market] claim refused: %s no unclaimed winning position for %s", msg.MarketID, msg.UserPubKey)
	return false, nil
}
