package kindspec

import (
	"bytes"
	"testing"

	"github.com/rawblock/anchor-engine/pkg/models"
)

func TestMarketCreateRoundTrip(t *testing.T) {
	spec := MarketSpec{
		Operation:        MarketCreate,
		Question:         "Will it rain tomorrow?",
		ResolutionBlock:  900000,
		OraclePubKey:     bytes.Repeat([]byte{0x02}, 33),
		InitialLiquidity: 100000,
	}
	if err := spec.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}

	body := spec.ToBytes()
	parsed, err := MarketFromBytes(body)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if parsed.Question != spec.Question || parsed.ResolutionBlock != spec.ResolutionBlock {
		t.Fatalf("round trip mismatch: %+v", parsed)
	}
	if !bytes.Equal(parsed.OraclePubKey, spec.OraclePubKey) {
		t.Fatalf("oracle pubkey round trip mismatch")
	}
}

func TestMarketBetRoundTrip(t *testing.T) {
	spec := MarketSpec{Operation: MarketBet, Outcome: models.OutcomeYes, Amount: 50000}
	body := spec.ToBytes()
	parsed, err := MarketFromBytes(body)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if parsed.Outcome != models.OutcomeYes || parsed.Amount != 50000 {
		t.Fatalf("round trip mismatch: %+v", parsed)
	}
}

func TestMarketBetZeroAmountInvalid(t *testing.T) {
	spec := MarketSpec{Operation: MarketBet, Outcome: models.OutcomeNo, Amount: 0}
	if err := spec.Validate(); err == nil {
		t.Fatalf("expected zero-amount bet to fail validation")
	}
}

func TestMarketClaimRequiresAnchor(t *testing.T) {
	if !(MarketSpec{Operation: MarketClaim}).RequiresAnchor() {
		t.Fatalf("claim must require an anchor")
	}
	if (MarketSpec{Operation: MarketCreate}).RequiresAnchor() {
		t.Fatalf("create must not require an anchor")
	}
}
