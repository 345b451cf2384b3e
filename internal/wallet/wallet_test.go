package wallet

import (
	"testing"

	"github.com/rawblock/anchor-engine/internal/bitcoin"
	"github.com/rawblock/anchor-engine/internal/carrier"
	"github.com/rawblock/anchor-engine/pkg/models"
)

func TestSelectUTXOsAccumulatesUntilRequiredMet(t *testing.T) {
	candidates := []bitcoin.UnspentUTXO{
		{TxID: "a", Vout: 0, Amount: 0.0001, Confirmations: 10}, // 10000 sats
		{TxID: "b", Vout: 0, Amount: 0.0002, Confirmations: 5},  // 20000 sats
		{TxID: "c", Vout: 0, Amount: 0.0005, Confirmations: 1},  // 50000 sats
	}

	picked, total, err := selectUTXOs(candidates, 25000)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if len(picked) != 2 {
		t.Fatalf("expected 2 UTXOs picked, got %d", len(picked))
	}
	if total != 30000 {
		t.Fatalf("expected total 30000, got %d", total)
	}
}

func TestSelectUTXOsInsufficientFundsFails(t *testing.T) {
	candidates := []bitcoin.UnspentUTXO{{TxID: "a", Vout: 0, Amount: 0.0001, Confirmations: 1}}
	if _, _, err := selectUTXOs(candidates, 1_000_000); err == nil {
		t.Fatalf("expected insufficient funds error")
	}
}

func TestBTCSatsRoundTrip(t *testing.T) {
	sats := btcToSats(0.00012345)
	if sats != 12345 {
		t.Fatalf("expected 12345 sats, got %d", sats)
	}
	if satsToBTC(12345) != 0.00012345 {
		t.Fatalf("expected round trip back to BTC, got %v", satsToBTC(12345))
	}
}

func TestRevealVSizeFormulaMatchesReference(t *testing.T) {
	revealScript := make([]byte, 100)
	requiredInputs := 2
	customOutputs := 1

	vsize := reveralBaseVSz + len(revealScript) + requiredInputs*perRequiredIn + customOutputs*perCustomOut
	// 200 + 100 + 2*68 + 1*34 = 200+100+136+34 = 470
	if vsize != 470 {
		t.Fatalf("expected vsize 470, got %d", vsize)
	}
}

func TestPickBroadcastCarrierRejectsManualOnlyVehicles(t *testing.T) {
	annex := carrier.TaprootAnnex
	if _, err := pickBroadcastCarrier(models.KindText, 10, &annex); err == nil {
		t.Fatalf("expected taproot_annex to be rejected as a wallet-automated carrier")
	}
}

func TestPickBroadcastCarrierAcceptsOpReturnForText(t *testing.T) {
	chosen, err := pickBroadcastCarrier(models.KindText, 10, nil)
	if err != nil {
		t.Fatalf("pick: %v", err)
	}
	if chosen != carrier.OpReturn {
		t.Fatalf("expected op_return for a small text envelope, got %s", chosen)
	}
}

func TestPickBroadcastCarrierRejectsOpReturnForDNS(t *testing.T) {
	opret := carrier.OpReturn
	if _, err := pickBroadcastCarrier(models.KindDNS, 10, &opret); err == nil {
		t.Fatalf("expected op_return to be rejected for DNS kind")
	}
}
