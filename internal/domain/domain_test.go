package domain

import (
	"testing"

	"github.com/rawblock/anchor-engine/internal/kindspec"
	"github.com/rawblock/anchor-engine/internal/lockmgr"
	"github.com/rawblock/anchor-engine/pkg/models"
)

type memStore struct {
	rows map[string]models.Domain
}

func newMemStore() *memStore {
	return &memStore{rows: make(map[string]models.Domain)}
}

func (s *memStore) GetActive(folded string) (models.Domain, bool, error) {
	row, ok := s.rows[folded]
	return row, ok, nil
}

func (s *memStore) Insert(d models.Domain) error {
	if _, exists := s.rows[d.Name]; exists {
		return ErrNameTaken
	}
	s.rows[d.Name] = d
	return nil
}

func (s *memStore) Replace(d models.Domain) error {
	s.rows[d.Name] = d
	return nil
}

func newTestEngine(t *testing.T) (*Engine, *memStore, *lockmgr.Manager) {
	t.Helper()
	locks, err := lockmgr.New(t.TempDir())
	if err != nil {
		t.Fatalf("lockmgr.New: %v", err)
	}
	store := newMemStore()
	return New(store, locks), store, locks
}

func TestRegisterInsertsRowAndLocksOwnershipUTXO(t *testing.T) {
	eng, store, locks := newTestEngine(t)

	msg := ConfirmedMessage{
		Spec:        kindspec.DNSSpec{Operation: kindspec.DNSRegister, Name: "Alice.btc"},
		TxID:        "tx1",
		BlockHeight: 100,
	}
	applied, err := eng.Apply(msg)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if !applied {
		t.Fatalf("expected register to apply")
	}

	row, ok, err := store.GetActive("alice.btc")
	if err != nil || !ok {
		t.Fatalf("expected case-folded row to exist: ok=%v err=%v", ok, err)
	}
	if row.OwnerTxID != "tx1" || row.OwnerVout != 0 {
		t.Fatalf("unexpected ownership: %+v", row)
	}
	if !locks.IsLocked("tx1", 0) {
		t.Fatalf("expected new ownership utxo to be locked")
	}
}

func TestRegisterRefusesNameClash(t *testing.T) {
	eng, _, _ := newTestEngine(t)

	first := ConfirmedMessage{
		Spec: kindspec.DNSSpec{Operation: kindspec.DNSRegister, Name: "bob.btc"},
		TxID: "tx1", BlockHeight: 10,
	}
	second := ConfirmedMessage{
		Spec: kindspec.DNSSpec{Operation: kindspec.DNSRegister, Name: "BOB.btc"},
		TxID: "tx2", BlockHeight: 11,
	}

	if applied, err := eng.Apply(first); err != nil || !applied {
		t.Fatalf("expected first register to apply: applied=%v err=%v", applied, err)
	}
	applied, err := eng.Apply(second)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if applied {
		t.Fatalf("expected case-folded name clash to be silently discarded")
	}
}

func TestUpdateRequiresBothAnchorAndSpentInput(t *testing.T) {
	eng, _, _ := newTestEngine(t)

	register := ConfirmedMessage{
		Spec: kindspec.DNSSpec{Operation: kindspec.DNSRegister, Name: "carol.btc"},
		TxID: "tx1", BlockHeight: 10,
	}
	if _, err := eng.Apply(register); err != nil {
		t.Fatalf("register: %v", err)
	}

	ownerPrefix := models.TxIDPrefix([]byte("tx1"))

	// Anchor present, but reveal tx does not spend the owner outpoint.
	updateMissingSpend := ConfirmedMessage{
		Spec:        kindspec.DNSSpec{Operation: kindspec.DNSUpdate, Name: "carol.btc"},
		TxID:        "tx2",
		BlockHeight: 11,
		Anchors:     []models.Anchor{{}, {Prefix: ownerPrefix, Vout: 0}},
		SpentInputs: nil,
	}
	applied, err := eng.Apply(updateMissingSpend)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if applied {
		t.Fatalf("expected update without spent-input proof to be discarded")
	}

	// Spend present, but no anchor reference.
	updateMissingAnchor := ConfirmedMessage{
		Spec:        kindspec.DNSSpec{Operation: kindspec.DNSUpdate, Name: "carol.btc"},
		TxID:        "tx3",
		BlockHeight: 12,
		Anchors:     nil,
		SpentInputs: []models.OutPointKey{{TxID: "tx1", Vout: 0}},
	}
	applied, err = eng.Apply(updateMissingAnchor)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if applied {
		t.Fatalf("expected update without anchor reference to be discarded")
	}
}

func TestUpdateSucceedsAndMovesLock(t *testing.T) {
	eng, store, locks := newTestEngine(t)

	register := ConfirmedMessage{
		Spec: kindspec.DNSSpec{Operation: kindspec.DNSRegister, Name: "dave.btc"},
		TxID: "tx1", BlockHeight: 10,
	}
	if _, err := eng.Apply(register); err != nil {
		t.Fatalf("register: %v", err)
	}

	ownerPrefix := models.TxIDPrefix([]byte("tx1"))
	update := ConfirmedMessage{
		Spec: kindspec.DNSSpec{
			Operation: kindspec.DNSUpdate,
			Name:      "dave.btc",
			Records:   []models.DNSRecord{{Type: models.RecordTXT, Value: "hello"}},
		},
		TxID:        "tx2",
		BlockHeight: 11,
		Anchors:     []models.Anchor{{}, {Prefix: ownerPrefix, Vout: 0}},
		SpentInputs: []models.OutPointKey{{TxID: "tx1", Vout: 0}},
	}
	applied, err := eng.Apply(update)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if !applied {
		t.Fatalf("expected update to apply")
	}

	row, ok, err := store.GetActive("dave.btc")
	if err != nil || !ok {
		t.Fatalf("expected row to exist: ok=%v err=%v", ok, err)
	}
	if row.OwnerTxID != "tx2" {
		t.Fatalf("expected ownership to move to tx2, got %+v", row)
	}
	if len(row.Records) != 1 || row.Records[0].Value != "hello" {
		t.Fatalf("expected records replaced, got %+v", row.Records)
	}
	if locks.IsLocked("tx1", 0) {
		t.Fatalf("expected old ownership utxo to be unlocked")
	}
	if !locks.IsLocked("tx2", 0) {
		t.Fatalf("expected new ownership utxo to be locked")
	}
}

func TestTransferMovesOwnershipButKeepsRecords(t *testing.T) {
	eng, store, _ := newTestEngine(t)

	register := ConfirmedMessage{
		Spec: kindspec.DNSSpec{
			Operation: kindspec.DNSRegister,
			Name:      "erin.btc",
			Records:   []models.DNSRecord{{Type: models.RecordTXT, Value: "original"}},
		},
		TxID: "tx1", BlockHeight: 10,
	}
	if _, err := eng.Apply(register); err != nil {
		t.Fatalf("register: %v", err)
	}

	ownerPrefix := models.TxIDPrefix([]byte("tx1"))
	transfer := ConfirmedMessage{
		Spec:        kindspec.DNSSpec{Operation: kindspec.DNSTransfer, Name: "erin.btc"},
		TxID:        "tx2",
		BlockHeight: 11,
		Anchors:     []models.Anchor{{}, {Prefix: ownerPrefix, Vout: 0}},
		SpentInputs: []models.OutPointKey{{TxID: "tx1", Vout: 0}},
	}
	applied, err := eng.Apply(transfer)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if !applied {
		t.Fatalf("expected transfer to apply")
	}

	row, _, _ := store.GetActive("erin.btc")
	if row.OwnerTxID != "tx2" {
		t.Fatalf("expected ownership to move, got %+v", row)
	}
	if len(row.Records) != 1 || row.Records[0].Value != "original" {
		t.Fatalf("expected records to carry over unchanged, got %+v", row.Records)
	}
}
