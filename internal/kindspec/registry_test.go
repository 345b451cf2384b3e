package kindspec

import (
	"testing"

	"github.com/rawblock/anchor-engine/pkg/models"
)

func TestRegistryDecodesEachKind(t *testing.T) {
	reg := NewRegistry()

	textBody := TextSpec{Text: "hi"}.ToBytes()
	spec, err := reg.Decode(models.KindText, textBody)
	if err != nil {
		t.Fatalf("decode text: %v", err)
	}
	if spec.KindID() != models.KindText {
		t.Fatalf("expected KindText, got %d", spec.KindID())
	}

	dnsBody := DNSSpec{Operation: DNSRegister, Name: "x.sat"}.ToBytes()
	spec, err = reg.Decode(models.KindDNS, dnsBody)
	if err != nil {
		t.Fatalf("decode dns: %v", err)
	}
	if spec.KindID() != models.KindDNS {
		t.Fatalf("expected KindDNS, got %d", spec.KindID())
	}
}

func TestRegistryFallsBackToGenericForUnknownKind(t *testing.T) {
	reg := NewRegistry()
	spec, err := reg.Decode(99, []byte("raw"))
	if err != nil {
		t.Fatalf("decode unknown kind: %v", err)
	}
	if string(spec.ToBytes()) != "raw" {
		t.Fatalf("expected generic passthrough, got %q", spec.ToBytes())
	}
}
