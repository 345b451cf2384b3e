package market

import (
	"testing"

	"github.com/rawblock/anchor-engine/internal/kindspec"
	"github.com/rawblock/anchor-engine/pkg/models"
)

type memStore struct {
	markets   map[string]models.Market
	positions map[string][]models.Position
	nextID    int64
}

func newMemStore() *memStore {
	return &memStore{
		markets:   make(map[string]models.Market),
		positions: make(map[string][]models.Position),
	}
}

func (s *memStore) GetMarket(marketID string) (models.Market, bool, error) {
	m, ok := s.markets[marketID]
	return m, ok, nil
}

func (s *memStore) InsertMarket(m models.Market) error {
	s.markets[m.MarketID] = m
	return nil
}

func (s *memStore) UpdateMarket(m models.Market) error {
	s.markets[m.MarketID] = m
	return nil
}

func (s *memStore) InsertPosition(p models.Position) error {
	s.nextID++
	p.ID = s.nextID
	s.positions[p.MarketID] = append(s.positions[p.MarketID], p)
	return nil
}

func (s *memStore) PositionsFor(marketID string) ([]models.Position, error) {
	return s.positions[marketID], nil
}

func (s *memStore) UpdatePosition(p models.Position) error {
	rows := s.positions[p.MarketID]
	for i := range rows {
		if rows[i].ID == p.ID {
			rows[i] = p
			return nil
		}
	}
	return nil
}

func TestCreateSeedsEqualPoolsAndK(t *testing.T) {
	store := newMemStore()
	eng := New(store)

	applied, err := eng.Apply(ConfirmedMessage{
		Spec: kindspec.MarketSpec{
			Operation:        kindspec.MarketCreate,
			Question:         "Will it rain tomorrow?",
			ResolutionBlock:  900000,
			OraclePubKey:     make([]byte, 33),
			InitialLiquidity: 10000,
		},
		MarketID: "market-1",
	})
	if err != nil || !applied {
		t.Fatalf("expected create to apply: applied=%v err=%v", applied, err)
	}

	m, ok, _ := store.GetMarket("market-1")
	if !ok {
		t.Fatal("expected market row to exist")
	}
	if m.YesPool != 10000 || m.NoPool != 10000 {
		t.Fatalf("expected equal seeded pools, got yes=%d no=%d", m.YesPool, m.NoPool)
	}
	if m.KConstant != 10000*10000 {
		t.Fatalf("expected k=initial_liquidity^2, got %d", m.KConstant)
	}
	if m.Status != models.MarketOpen {
		t.Fatalf("expected market open, got %s", m.Status)
	}
}

func TestCreateRefusesDuplicateMarketID(t *testing.T) {
	store := newMemStore()
	eng := New(store)
	spec := kindspec.MarketSpec{Operation: kindspec.MarketCreate, Question: "q", OraclePubKey: make([]byte, 33), InitialLiquidity: 1000}

	eng.Apply(ConfirmedMessage{Spec: spec, MarketID: "dup"})
	applied, err := eng.Apply(ConfirmedMessage{Spec: spec, MarketID: "dup"})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if applied {
		t.Fatal("expected duplicate create to be refused")
	}
}

func TestBetMovesPoolsAndPreservesK(t *testing.T) {
	store := newMemStore()
	eng := New(store)
	eng.Apply(ConfirmedMessage{
		Spec:     kindspec.MarketSpec{Operation: kindspec.MarketCreate, Question: "q", OraclePubKey: make([]byte, 33), InitialLiquidity: 10000},
		MarketID: "m1",
	})

	applied, err := eng.Apply(ConfirmedMessage{
		Spec:       kindspec.MarketSpec{Operation: kindspec.MarketBet, Outcome: models.OutcomeYes, Amount: 1000},
		MarketID:   "m1",
		UserPubKey: "alice",
	})
	if err != nil || !applied {
		t.Fatalf("expected bet to apply: applied=%v err=%v", applied, err)
	}

	m, _, _ := store.GetMarket("m1")
	if m.YesPool != 11000 {
		t.Fatalf("expected yes_pool to grow by bet amount, got %d", m.YesPool)
	}
	if m.KConstant != 10000*10000 || m.NoPool != m.KConstant/m.YesPool {
		t.Fatalf("expected k preserved and no_pool = k / yes_pool after bet, got no_pool %d k %d", m.NoPool, m.KConstant)
	}
	if m.TotalVolumeSats != 1000 || m.TotalYesSats != 1000 {
		t.Fatalf("expected volume tallies updated, got volume=%d yes=%d", m.TotalVolumeSats, m.TotalYesSats)
	}

	positions, _ := store.PositionsFor("m1")
	if len(positions) != 1 {
		t.Fatalf("expected one position recorded, got %d", len(positions))
	}
	if positions[0].Shares == 0 {
		t.Fatal("expected non-zero shares for bet")
	}
}

func TestBetRefusedOnClosedMarket(t *testing.T) {
	store := newMemStore()
	eng := New(store)
	eng.Apply(ConfirmedMessage{
		Spec:     kindspec.MarketSpec{Operation: kindspec.MarketCreate, Question: "q", OraclePubKey: make([]byte, 33), InitialLiquidity: 10000},
		MarketID: "m1",
	})
	yes := models.OutcomeYes
	m, _, _ := store.GetMarket("m1")
	m.Status = models.MarketResolved
	m.Resolution = &yes
	store.UpdateMarket(m)

	applied, err := eng.Apply(ConfirmedMessage{
		Spec:     kindspec.MarketSpec{Operation: kindspec.MarketBet, Outcome: models.OutcomeNo, Amount: 500},
		MarketID: "m1",
	})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if applied {
		t.Fatal("expected bet on resolved market to be refused")
	}
}

func TestSettlePaysWinnersFromLoserPool(t *testing.T) {
	store := newMemStore()
	eng := New(store)
	eng.Apply(ConfirmedMessage{
		Spec:     kindspec.MarketSpec{Operation: kindspec.MarketCreate, Question: "q", OraclePubKey: make([]byte, 33), InitialLiquidity: 10000},
		MarketID: "m1",
	})
	eng.Apply(ConfirmedMessage{
		Spec:       kindspec.MarketSpec{Operation: kindspec.MarketBet, Outcome: models.OutcomeYes, Amount: 2000},
		MarketID:   "m1",
		UserPubKey: "alice",
	})
	// After alice's bet the pools are yes=12000, no=8333; a NO bet yields
	// shares only once k / (8333 + amount) <= 8333, so bob stakes 4000.
	eng.Apply(ConfirmedMessage{
		Spec:       kindspec.MarketSpec{Operation: kindspec.MarketBet, Outcome: models.OutcomeNo, Amount: 4000},
		MarketID:   "m1",
		UserPubKey: "bob",
	})

	applied, err := eng.Apply(ConfirmedMessage{
		Spec:     kindspec.MarketSpec{Operation: kindspec.MarketSettle, WinningOutcome: models.OutcomeYes},
		MarketID: "m1",
	})
	if err != nil || !applied {
		t.Fatalf("expected settle to apply: applied=%v err=%v", applied, err)
	}

	m, _, _ := store.GetMarket("m1")
	if m.Status != models.MarketResolved {
		t.Fatalf("expected market resolved, got %s", m.Status)
	}
	if m.Resolution == nil || *m.Resolution != models.OutcomeYes {
		t.Fatal("expected resolution recorded as YES")
	}

	positions, _ := store.PositionsFor("m1")
	for _, p := range positions {
		if p.OwnerPubKey == "alice" {
			if !p.IsWinner {
				t.Fatal("expected alice to win")
			}
			if p.Payout <= p.Amount {
				t.Fatalf("expected winner payout to exceed stake, got %d vs stake %d", p.Payout, p.Amount)
			}
		}
		if p.OwnerPubKey == "bob" && p.IsWinner {
			t.Fatal("expected bob to lose")
		}
	}
}

func TestClaimFlipsClaimedOnce(t *testing.T) {
	store := newMemStore()
	eng := New(store)
	eng.Apply(ConfirmedMessage{
		Spec:     kindspec.MarketSpec{Operation: kindspec.MarketCreate, Question: "q", OraclePubKey: make([]byte, 33), InitialLiquidity: 10000},
		MarketID: "m1",
	})
	eng.Apply(ConfirmedMessage{
		Spec:       kindspec.MarketSpec{Operation: kindspec.MarketBet, Outcome: models.OutcomeYes, Amount: 2000},
		MarketID:   "m1",
		UserPubKey: "alice",
	})
	eng.Apply(ConfirmedMessage{
		Spec:     kindspec.MarketSpec{Operation: kindspec.MarketSettle, WinningOutcome: models.OutcomeYes},
		MarketID: "m1",
	})

	applied, err := eng.Apply(ConfirmedMessage{
		Spec:       kindspec.MarketSpec{Operation: kindspec.MarketClaim},
		MarketID:   "m1",
		UserPubKey: "alice",
		TxID:       "claim-tx",
	})
	if err != nil || !applied {
		t.Fatalf("expected claim to apply: applied=%v err=%v", applied, err)
	}

	positions, _ := store.PositionsFor("m1")
	if !positions[0].Claimed || positions[0].ClaimTxID != "claim-tx" {
		t.Fatalf("expected position claimed with claim txid recorded, got %+v", positions[0])
	}

	applied, err = eng.Apply(ConfirmedMessage{
		Spec:       kindspec.MarketSpec{Operation: kindspec.MarketClaim},
		MarketID:   "m1",
		UserPubKey: "alice",
		TxID:       "claim-tx-2",
	})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if applied {
		t.Fatal("expected second claim to be refused")
	}
}

func TestQuoteBetMatchesConstantProductFormula(t *testing.T) {
	m := models.Market{YesPool: 10000, NoPool: 10000, KConstant: 100000000}
	q, err := QuoteBet(m, models.OutcomeYes, 1000)
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	wantNewYes := uint64(11000)
	wantNewNo := m.KConstant / wantNewYes
	wantShares := uint64(10000) - wantNewNo
	if q.NewYesPool != wantNewYes || q.NewNoPool != wantNewNo {
		t.Fatalf("pool mismatch: got yes=%d no=%d want yes=%d no=%d", q.NewYesPool, q.NewNoPool, wantNewYes, wantNewNo)
	}
	if q.Shares != wantShares {
		t.Fatalf("shares mismatch: got %d want %d", q.Shares, wantShares)
	}
}
