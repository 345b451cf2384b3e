package kindspec

import (
	"testing"

	"github.com/rawblock/anchor-engine/pkg/models"
)

func TestDNSRoundTripRegisterWithRecords(t *testing.T) {
	spec := DNSSpec{
		Operation: DNSRegister,
		Name:      "satoshi.btc",
		Records: []models.DNSRecord{
			{Type: models.RecordA, TTL: 300, Value: "127.0.0.1"},
			{Type: models.RecordTXT, TTL: 60, Value: "hello"},
		},
	}
	if err := spec.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}

	body := spec.ToBytes()
	parsed, err := DNSFromBytes(body)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if parsed.Name != spec.Name || len(parsed.Records) != 2 {
		t.Fatalf("round trip mismatch: %+v", parsed)
	}
	if parsed.Records[0].Value != "127.0.0.1" {
		t.Fatalf("A record value mismatch: %q", parsed.Records[0].Value)
	}
}

func TestDNSRejectsUnsupportedTLD(t *testing.T) {
	spec := DNSSpec{Operation: DNSRegister, Name: "satoshi.com"}
	if err := spec.Validate(); err == nil {
		t.Fatalf("expected unsupported TLD to fail validation")
	}
}

func TestDNSUpdateAndTransferRequireAnchor(t *testing.T) {
	if (DNSSpec{Operation: DNSRegister}).RequiresAnchor() {
		t.Fatalf("register must not require an anchor")
	}
	if !(DNSSpec{Operation: DNSUpdate}).RequiresAnchor() {
		t.Fatalf("update must require an anchor")
	}
	if !(DNSSpec{Operation: DNSTransfer}).RequiresAnchor() {
		t.Fatalf("transfer must require an anchor")
	}
}

func TestDNSExcludesOpReturnCarrier(t *testing.T) {
	spec := DNSSpec{Operation: DNSRegister, Name: "x.btc"}
	for _, c := range spec.SupportedCarriers() {
		if c.String() == "op_return" {
			t.Fatalf("DNS must never list op_return as a supported carrier")
		}
	}
}

func TestDNSMXRequiresPriority(t *testing.T) {
	spec := DNSSpec{
		Operation: DNSRegister,
		Name:      "mail.btc",
		Records:   []models.DNSRecord{{Type: models.RecordMX, Value: "mx.example"}},
	}
	if err := spec.Validate(); err == nil {
		t.Fatalf("expected MX record without priority to fail validation")
	}
}
