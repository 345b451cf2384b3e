package carrier

import (
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/rawblock/anchor-engine/pkg/models"
)

// inscriptionTag is the envelope tag this protocol recognises. Matching is
// case-sensitive (§4.1 "Inscription-style 'anchor' tagging is case-sensitive").
var inscriptionTag = []byte("anchor")

// inscriptionMaxPayload mirrors WitnessData's budget; the envelope framing
// costs a handful of extra bytes (the tag push) which callers should leave
// headroom for.
const inscriptionMaxPayload = witnessDataMaxPayload - 16

// InscriptionCarrier implements the ordinal-style reveal envelope:
// `OP_FALSE OP_IF "anchor" <chunks...> OP_ENDIF`.
type InscriptionCarrier struct{}

func (InscriptionCarrier) Type() Type      { return Inscription }
func (InscriptionCarrier) MaxPayload() int { return inscriptionMaxPayload }

func (InscriptionCarrier) Encode(msg models.Message) (Output, error) {
	env, err := models.EncodeEnvelope(msg)
	if err != nil {
		return Output{}, err
	}
	if len(env) > inscriptionMaxPayload {
		return Output{}, errPayloadTooLarge(len(env), inscriptionMaxPayload)
	}

	chunks := chunkBytes(env, maxScriptElementSize)

	builder := txscript.NewScriptBuilder().
		AddOp(txscript.OP_FALSE).
		AddOp(txscript.OP_IF).
		AddData(inscriptionTag)
	for _, c := range chunks {
		builder.AddData(c)
	}
	builder.AddOp(txscript.OP_ENDIF)

	script, err := builder.Script()
	if err != nil {
		return Output{}, err
	}

	return Output{Type: Inscription, RevealScript: script, Chunks: chunks}, nil
}

func (InscriptionCarrier) Decode(tx *wire.MsgTx) []Decoded {
	var out []Decoded
	for i, in := range tx.TxIn {
		script, ok := revealScriptFromWitness(in.Witness)
		if !ok {
			continue
		}
		data, ok := concatDropPushes(script, inscriptionTag)
		if !ok {
			continue
		}
		msg, err := models.DecodeEnvelope(data)
		if err != nil {
			continue
		}
		out = append(out, Decoded{Type: Inscription, IsInput: true, InputIndex: i, Message: msg})
	}
	return out
}
