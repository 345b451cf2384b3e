package carrier

import (
	"testing"

	"github.com/rawblock/anchor-engine/pkg/models"
)

func TestSelectorChooseRespectsKindAllowList(t *testing.T) {
	sel := NewSelector()

	explicitOpReturn := OpReturn
	_, err := sel.Choose(models.KindDNS, 40, &explicitOpReturn)
	if err != ErrCarrierNotAllowedForKind {
		t.Fatalf("expected OpReturn to be disallowed for DNS kind, got %v", err)
	}

	explicitWitness := WitnessData
	got, err := sel.Choose(models.KindDNS, 40, &explicitWitness)
	if err != nil {
		t.Fatalf("expected WitnessData to be allowed for DNS kind: %v", err)
	}
	if got != WitnessData {
		t.Fatalf("expected WitnessData, got %v", got)
	}
}

func TestSelectorChoosePicksSmallestFootprint(t *testing.T) {
	sel := NewSelector()

	got, err := sel.Choose(models.KindText, 40, nil)
	if err != nil {
		t.Fatalf("choose: %v", err)
	}
	if got != OpReturn {
		t.Fatalf("expected smallest-footprint OpReturn for a tiny body, got %v", got)
	}
}

func TestSelectorEncodeEndToEnd(t *testing.T) {
	sel := NewSelector()
	msg := models.Message{Kind: models.KindText, Body: []byte("hi")}

	out, err := sel.Encode(msg, nil)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if out.Type != OpReturn {
		t.Fatalf("expected OpReturn selection, got %v", out.Type)
	}
}

func TestSelectorDetectUnionsAcrossCarriers(t *testing.T) {
	sel := NewSelector()

	opMsg := models.Message{Kind: models.KindGeneric, Body: []byte("op")}
	opOut, err := OpReturnCarrier{}.Encode(opMsg)
	if err != nil {
		t.Fatalf("encode op_return: %v", err)
	}

	witnessMsg := models.Message{Kind: models.KindGeneric, Body: []byte("witness")}
	witnessOut, err := WitnessDataCarrier{}.Encode(witnessMsg)
	if err != nil {
		t.Fatalf("encode witness: %v", err)
	}

	tx := txWithOutputScripts(opOut.OpReturnScript)
	in := txWithInputWitness(revealWitness(witnessOut.RevealScript)).TxIn[0]
	tx.AddTxIn(in)

	decoded := sel.Detect(tx)
	if len(decoded) != 2 {
		t.Fatalf("expected 2 decoded messages across carriers, got %d", len(decoded))
	}
	// decodePriority puts WitnessData ahead of OpReturn.
	if decoded[0].Type != WitnessData || decoded[1].Type != OpReturn {
		t.Fatalf("expected WitnessData before OpReturn per decode priority, got %v then %v", decoded[0].Type, decoded[1].Type)
	}
}
