package dispatch

import (
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/rawblock/anchor-engine/internal/domain"
	"github.com/rawblock/anchor-engine/internal/graph"
	"github.com/rawblock/anchor-engine/internal/kindspec"
	"github.com/rawblock/anchor-engine/internal/lockmgr"
	"github.com/rawblock/anchor-engine/internal/market"
	"github.com/rawblock/anchor-engine/internal/token"
	"github.com/rawblock/anchor-engine/pkg/models"
)

func TestMarketIDForCreateUsesOwnTxID(t *testing.T) {
	s := kindspec.MarketSpec{Operation: kindspec.MarketCreate}
	id, ok := marketIDFor(s, "createtx", nil)
	if !ok || id != "createtx" {
		t.Fatalf("expected createtx, got %q ok=%v", id, ok)
	}
}

func TestMarketIDForBetResolvesFirstAnchor(t *testing.T) {
	s := kindspec.MarketSpec{Operation: kindspec.MarketBet}
	edges := []models.AnchorEdge{
		{Index: 0, ResolvedTxID: "createtx"},
		{Index: 1, ResolvedTxID: "othertx"},
	}
	id, ok := marketIDFor(s, "bettx", edges)
	if !ok || id != "createtx" {
		t.Fatalf("expected createtx, got %q ok=%v", id, ok)
	}
}

func TestMarketIDForBetWithNoResolvedAnchorFails(t *testing.T) {
	s := kindspec.MarketSpec{Operation: kindspec.MarketBet}
	edges := []models.AnchorEdge{
		{Index: 0, Orphan: true},
	}
	if _, ok := marketIDFor(s, "bettx", edges); ok {
		t.Fatal("expected no resolved market id")
	}
}

func TestSpentInputsConvertsPreviousOutpoints(t *testing.T) {
	hash, err := chainhash.NewHashFromStr("00000000000000000000000000000000000000000000000000000000000abc")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	tx := wire.NewMsgTx(wire.TxVersion)
	tx.AddTxIn(&wire.TxIn{PreviousOutPoint: wire.OutPoint{Hash: *hash, Index: 2}})

	keys := spentInputs(tx)
	if len(keys) != 1 || keys[0].Vout != 2 || keys[0].TxID != hash.String() {
		t.Fatalf("unexpected spent inputs: %+v", keys)
	}
}

// --- fake stores for a HandleMessage integration test ---

type fakeDomainStore struct {
	rows map[string]models.Domain
}

func (s *fakeDomainStore) GetActive(name string) (models.Domain, bool, error) {
	d, ok := s.rows[name]
	return d, ok, nil
}
func (s *fakeDomainStore) Insert(d models.Domain) error {
	if s.rows == nil {
		s.rows = make(map[string]models.Domain)
	}
	s.rows[d.Name] = d
	return nil
}
func (s *fakeDomainStore) Replace(d models.Domain) error {
	s.rows[d.Name] = d
	return nil
}

type fakeTokenStore struct{}

func (s *fakeTokenStore) GetTokenByTicker(ticker string) (models.Token, bool, error) {
	return models.Token{}, false, nil
}
func (s *fakeTokenStore) InsertToken(t models.Token) error                  { return nil }
func (s *fakeTokenStore) UpdateSupply(ticker string, minted, burned uint64) error { return nil }
func (s *fakeTokenStore) LiveUTXOsForAnchors(ticker string, anchors []models.Anchor) ([]models.TokenUTXO, error) {
	return nil, nil
}
func (s *fakeTokenStore) InsertUTXO(u models.TokenUTXO) error { return nil }
func (s *fakeTokenStore) MarkSpent(tokenID int64, txid string, vout uint16, spentByTxID string, spentByVout uint16) error {
	return nil
}

type fakeMarketStore struct {
	markets map[string]models.Market
}

func (s *fakeMarketStore) GetMarket(marketID string) (models.Market, bool, error) {
	m, ok := s.markets[marketID]
	return m, ok, nil
}
func (s *fakeMarketStore) InsertMarket(m models.Market) error {
	if s.markets == nil {
		s.markets = make(map[string]models.Market)
	}
	s.markets[m.MarketID] = m
	return nil
}
func (s *fakeMarketStore) UpdateMarket(m models.Market) error {
	s.markets[m.MarketID] = m
	return nil
}
func (s *fakeMarketStore) InsertPosition(p models.Position) error             { return nil }
func (s *fakeMarketStore) PositionsFor(marketID string) ([]models.Position, error) { return nil, nil }
func (s *fakeMarketStore) UpdatePosition(p models.Position) error             { return nil }

func TestHandleMessageRoutesDNSSpecToRegister(t *testing.T) {
	domainStore := &fakeDomainStore{}
	locks, err := lockmgr.New(t.TempDir())
	if err != nil {
		t.Fatalf("lockmgr.New: %v", err)
	}
	r := New(domain.New(domainStore, locks), token.New(&fakeTokenStore{}), market.New(&fakeMarketStore{}), nil)

	spec := kindspec.DNSSpec{Operation: kindspec.DNSRegister, Name: "example"}
	msg := graph.StoredMessage{TxID: "regtx", Kind: spec.KindID(), Body: spec.ToBytes()}
	tx := wire.NewMsgTx(wire.TxVersion)

	if err := r.HandleMessage(tx, msg, nil, nil); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if _, ok, _ := domainStore.GetActive("example"); !ok {
		t.Fatal("expected domain to be registered")
	}
}

func TestHandleMessageIgnoresUnresolvedMarketOp(t *testing.T) {
	marketStore := &fakeMarketStore{}
	r := New(domain.New(&fakeDomainStore{}, nil), token.New(&fakeTokenStore{}), market.New(marketStore), nil)

	spec := kindspec.MarketSpec{Operation: kindspec.MarketBet, Outcome: models.OutcomeYes, Amount: 1000}
	msg := graph.StoredMessage{TxID: "bettx", Kind: spec.KindID(), Body: spec.ToBytes()}
	tx := wire.NewMsgTx(wire.TxVersion)

	if err := r.HandleMessage(tx, msg, nil, nil); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if len(marketStore.markets) != 0 {
		t.Fatal("expected no market mutation for an unresolved bet")
	}
}
