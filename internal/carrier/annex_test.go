package carrier

import (
	"bytes"
	"testing"

	"github.com/btcsuite/btcd/wire"
	"github.com/rawblock/anchor-engine/pkg/models"
)

func TestAnnexRoundTrip(t *testing.T) {
	msg := models.Message{Kind: models.KindGeo, Body: []byte("geo-tag")}

	out, err := TaprootAnnexCarrier{}.Encode(msg)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	tx := wire.NewMsgTx(2)
	in := wire.NewTxIn(&wire.OutPoint{}, nil, nil)
	in.Witness = wire.TxWitness{{0x01, 0x02}, {0x01, 0x02, 0x03}, BuildAnnexWitnessItem(out.AnnexBytes)}
	tx.AddTxIn(in)

	decoded := TaprootAnnexCarrier{}.Decode(tx)
	if len(decoded) != 1 {
		t.Fatalf("expected 1 decoded message, got %d", len(decoded))
	}
	if !bytes.Equal(decoded[0].Message.Body, msg.Body) {
		t.Fatalf("round trip body mismatch")
	}
}

func TestAnnexIgnoresNonAnnexWitness(t *testing.T) {
	tx := wire.NewMsgTx(2)
	in := wire.NewTxIn(&wire.OutPoint{}, nil, nil)
	in.Witness = wire.TxWitness{{0x01}, {0x02}}
	tx.AddTxIn(in)

	if decoded := TaprootAnnexCarrier{}.Decode(tx); len(decoded) != 0 {
		t.Fatalf("expected no annex to be detected, got %d", len(decoded))
	}
}
