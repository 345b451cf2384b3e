package kindspec

import "testing"

func TestTokenDeployRoundTrip(t *testing.T) {
	limit := uint64(1000)
	spec := TokenSpec{
		Operation: TokenDeploy,
		Ticker:    "ANCH",
		Decimals:  8,
		MaxSupply: 21_000_000,
		MintLimit: &limit,
		Flags:     0x01 | 0x04,
	}
	if err := spec.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}

	body := spec.ToBytes()
	parsed, err := TokenFromBytes(body)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if parsed.Ticker != "ANCH" || parsed.MaxSupply != 21_000_000 {
		t.Fatalf("round trip mismatch: %+v", parsed)
	}
	if parsed.MintLimit == nil || *parsed.MintLimit != 1000 {
		t.Fatalf("mint limit round trip mismatch: %+v", parsed.MintLimit)
	}
}

func TestTokenTransferRequiresAnchor(t *testing.T) {
	if !(TokenSpec{Operation: TokenTransfer}).RequiresAnchor() {
		t.Fatalf("transfer must require an anchor")
	}
	if (TokenSpec{Operation: TokenDeploy}).RequiresAnchor() {
		t.Fatalf("deploy must not require an anchor")
	}
	if (TokenSpec{Operation: TokenMint}).RequiresAnchor() {
		t.Fatalf("mint must not require an anchor")
	}
}

func TestTokenRejectsOversizedTicker(t *testing.T) {
	spec := TokenSpec{Operation: TokenDeploy, Ticker: "THIS_TICKER_IS_WAY_TOO_LONG", MaxSupply: 1}
	if err := spec.Validate(); err == nil {
		t.Fatalf("expected oversized ticker to fail validation")
	}
}

func TestTokenSplitRoundTrip(t *testing.T) {
	spec := TokenSpec{Operation: TokenSplit, Ticker: "ANCH", SplitAmounts: []uint64{10, 20, 30}}
	body := spec.ToBytes()
	parsed, err := TokenFromBytes(body)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(parsed.SplitAmounts) != 3 || parsed.SplitAmounts[1] != 20 {
		t.Fatalf("split amounts round trip mismatch: %+v", parsed.SplitAmounts)
	}
}
