package token

import (
	"testing"

	"github.com/rawblock/anchor-engine/internal/kindspec"
	"github.com/rawblock/anchor-engine/pkg/models"
)

type memStore struct {
	nextID int64
	tokens map[string]*models.Token
	utxos  []models.TokenUTXO
}

func newMemStore() *memStore {
	return &memStore{tokens: make(map[string]*models.Token)}
}

func (s *memStore) GetTokenByTicker(ticker string) (models.Token, bool, error) {
	t, ok := s.tokens[ticker]
	if !ok {
		return models.Token{}, false, nil
	}
	return *t, true, nil
}

func (s *memStore) InsertToken(t models.Token) error {
	s.nextID++
	t.ID = s.nextID
	s.tokens[t.Ticker] = &t
	return nil
}

func (s *memStore) UpdateSupply(ticker string, minted, burned uint64) error {
	t, ok := s.tokens[ticker]
	if !ok {
		return ErrTickerTaken
	}
	t.Minted = minted
	t.Burned = burned
	return nil
}

func (s *memStore) LiveUTXOsForAnchors(ticker string, anchors []models.Anchor) ([]models.TokenUTXO, error) {
	t := s.tokens[ticker]
	var out []models.TokenUTXO
	for i, u := range s.utxos {
		if u.TokenID != t.ID || u.Spent {
			continue
		}
		prefix := models.TxIDPrefix([]byte(u.TxID))
		for _, a := range anchors {
			if a.Prefix == prefix && a.Vout == u.Vout {
				out = append(out, s.utxos[i])
			}
		}
	}
	return out, nil
}

func (s *memStore) InsertUTXO(u models.TokenUTXO) error {
	s.utxos = append(s.utxos, u)
	return nil
}

func (s *memStore) MarkSpent(tokenID int64, txid string, vout uint16, spentByTxID string, spentByVout uint16) error {
	for i := range s.utxos {
		if s.utxos[i].TokenID == tokenID && s.utxos[i].TxID == txid && s.utxos[i].Vout == vout {
			s.utxos[i].Spent = true
			s.utxos[i].SpentByTxID = spentByTxID
			s.utxos[i].SpentByVout = spentByVout
		}
	}
	return nil
}

func TestDeployRegistersTicker(t *testing.T) {
	store := newMemStore()
	eng := New(store)

	applied, err := eng.Apply(ConfirmedMessage{
		Spec: kindspec.TokenSpec{Operation: kindspec.TokenDeploy, Ticker: "ANCH", MaxSupply: 1000, Flags: models.TokenFlagOpenMint},
		TxID: "deploy-tx",
	})
	if err != nil || !applied {
		t.Fatalf("expected deploy to apply: applied=%v err=%v", applied, err)
	}

	if applied, err := eng.Apply(ConfirmedMessage{
		Spec: kindspec.TokenSpec{Operation: kindspec.TokenDeploy, Ticker: "ANCH", MaxSupply: 1},
		TxID: "deploy-tx-2",
	}); err != nil || applied {
		t.Fatalf("expected second deploy of same ticker to be discarded: applied=%v err=%v", applied, err)
	}
}

func TestMintRespectsOpenMintAndMaxSupply(t *testing.T) {
	store := newMemStore()
	eng := New(store)
	eng.Apply(ConfirmedMessage{
		Spec: kindspec.TokenSpec{Operation: kindspec.TokenDeploy, Ticker: "ANCH", MaxSupply: 100, Flags: models.TokenFlagOpenMint},
		TxID: "deploy-tx",
	})

	applied, err := eng.Apply(ConfirmedMessage{
		Spec: kindspec.TokenSpec{Operation: kindspec.TokenMint, Ticker: "ANCH", Amount: 50, OutputIndex: 1},
		TxID: "mint-tx",
	})
	if err != nil || !applied {
		t.Fatalf("expected mint to apply: applied=%v err=%v", applied, err)
	}

	tok, _, _ := store.GetTokenByTicker("ANCH")
	if tok.Minted != 50 {
		t.Fatalf("expected minted=50, got %d", tok.Minted)
	}

	applied, err = eng.Apply(ConfirmedMessage{
		Spec: kindspec.TokenSpec{Operation: kindspec.TokenMint, Ticker: "ANCH", Amount: 100, OutputIndex: 1},
		TxID: "mint-tx-2",
	})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if applied {
		t.Fatalf("expected mint exceeding max_supply to be discarded")
	}
}

func TestMintRejectedWithoutOpenMintFlag(t *testing.T) {
	store := newMemStore()
	eng := New(store)
	eng.Apply(ConfirmedMessage{
		Spec: kindspec.TokenSpec{Operation: kindspec.TokenDeploy, Ticker: "FIX", MaxSupply: 1000},
		TxID: "deploy-tx",
	})

	applied, err := eng.Apply(ConfirmedMessage{
		Spec: kindspec.TokenSpec{Operation: kindspec.TokenMint, Ticker: "FIX", Amount: 10, OutputIndex: 1},
		TxID: "mint-tx",
	})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if applied {
		t.Fatalf("expected mint without open_mint flag to be discarded")
	}
}

func TestTransferRedistributesAndMarksSourceSpent(t *testing.T) {
	store := newMemStore()
	eng := New(store)
	eng.Apply(ConfirmedMessage{
		Spec: kindspec.TokenSpec{Operation: kindspec.TokenDeploy, Ticker: "ANCH", MaxSupply: 1000, Flags: models.TokenFlagOpenMint},
		TxID: "deploy-tx",
	})
	eng.Apply(ConfirmedMessage{
		Spec: kindspec.TokenSpec{Operation: kindspec.TokenMint, Ticker: "ANCH", Amount: 100, OutputIndex: 1},
		TxID: "mint-tx",
	})

	sourcePrefix := models.TxIDPrefix([]byte("mint-tx"))
	transfer := ConfirmedMessage{
		Spec: kindspec.TokenSpec{Operation: kindspec.TokenTransfer, Ticker: "ANCH", SplitAmounts: []uint64{40, 60}},
		TxID: "transfer-tx",
		Anchors: []models.Anchor{
			{Prefix: sourcePrefix, Vout: 1},
		},
	}
	applied, err := eng.Apply(transfer)
	if err != nil || !applied {
		t.Fatalf("expected transfer to apply: applied=%v err=%v", applied, err)
	}

	tok, _, _ := store.GetTokenByTicker("ANCH")
	if tok.Burned != 0 {
		t.Fatalf("expected no implicit burn for exact allocation, got burned=%d", tok.Burned)
	}

	var liveCount int
	for _, u := range store.utxos {
		if !u.Spent {
			liveCount++
		}
	}
	if liveCount != 2 {
		t.Fatalf("expected 2 live utxos after transfer, got %d", liveCount)
	}
}

func TestTransferExcessWithoutBurnableIsDiscarded(t *testing.T) {
	store := newMemStore()
	eng := New(store)
	eng.Apply(ConfirmedMessage{
		Spec: kindspec.TokenSpec{Operation: kindspec.TokenDeploy, Ticker: "ANCH", MaxSupply: 1000, Flags: models.TokenFlagOpenMint},
		TxID: "deploy-tx",
	})
	eng.Apply(ConfirmedMessage{
		Spec: kindspec.TokenSpec{Operation: kindspec.TokenMint, Ticker: "ANCH", Amount: 100, OutputIndex: 1},
		TxID: "mint-tx",
	})

	sourcePrefix := models.TxIDPrefix([]byte("mint-tx"))
	transfer := ConfirmedMessage{
		Spec:    kindspec.TokenSpec{Operation: kindspec.TokenTransfer, Ticker: "ANCH", SplitAmounts: []uint64{40, 80}},
		TxID:    "transfer-tx",
		Anchors: []models.Anchor{{Prefix: sourcePrefix, Vout: 1}},
	}
	applied, err := eng.Apply(transfer)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if applied {
		t.Fatalf("expected over-allocated transfer to be discarded")
	}
}

func TestBurnRequiresFlag(t *testing.T) {
	store := newMemStore()
	eng := New(store)
	eng.Apply(ConfirmedMessage{
		Spec: kindspec.TokenSpec{Operation: kindspec.TokenDeploy, Ticker: "ANCH", MaxSupply: 1000, Flags: models.TokenFlagBurnable},
		TxID: "deploy-tx",
	})

	applied, err := eng.Apply(ConfirmedMessage{
		Spec: kindspec.TokenSpec{Operation: kindspec.TokenBurn, Ticker: "ANCH", Amount: 10},
		TxID: "burn-tx",
	})
	if err != nil || !applied {
		t.Fatalf("expected burn to apply: applied=%v err=%v", applied, err)
	}

	tok, _, _ := store.GetTokenByTicker("ANCH")
	if tok.Burned != 10 {
		t.Fatalf("expected burned=10, got %d", tok.Burned)
	}
}
