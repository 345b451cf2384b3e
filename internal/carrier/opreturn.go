package carrier

import (
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/rawblock/anchor-engine/pkg/models"
)

// opReturnMaxPayload matches the standard relay policy most Bitcoin Core
// nodes enforce for a single OP_RETURN data push.
const opReturnMaxPayload = 80

// OpReturnCarrier packs the envelope into a single `OP_RETURN <data>` output.
type OpReturnCarrier struct{}

func (OpReturnCarrier) Type() Type        { return OpReturn }
func (OpReturnCarrier) MaxPayload() int   { return opReturnMaxPayload }

func (OpReturnCarrier) Encode(msg models.Message) (Output, error) {
	env, err := models.EncodeEnvelope(msg)
	if err != nil {
		return Output{}, err
	}
	if len(env) > opReturnMaxPayload {
		return Output{}, errPayloadTooLarge(len(env), opReturnMaxPayload)
	}

	script, err := txscript.NewScriptBuilder().
		AddOp(txscript.OP_RETURN).
		AddData(env).
		Script()
	if err != nil {
		return Output{}, err
	}

	return Output{Type: OpReturn, OpReturnScript: script}, nil
}

func (OpReturnCarrier) Decode(tx *wire.MsgTx) []Decoded {
	var out []Decoded
	for i, txOut := range tx.TxOut {
		data, ok := extractOpReturnData(txOut.PkScript)
		if !ok {
			continue
		}
		msg, err := models.DecodeEnvelope(data)
		if err != nil {
			continue
		}
		out = append(out, Decoded{Type: OpReturn, VoutIndex: i, Message: msg})
	}
	return out
}

// extractOpReturnData returns the single data push of an OP_RETURN script,
// or ok=false if the script isn't a bare `OP_RETURN <push>`.
func extractOpReturnData(script []byte) ([]byte, bool) {
	if len(script) < 1 || script[0] != txscript.OP_RETURN {
		return nil, false
	}
	tokenizer := txscript.MakeScriptTokenizer(0, script[1:])
	if !tokenizer.Next() {
		return nil, false
	}
	data := tokenizer.Data()
	if tokenizer.Next() {
		// A second push means this isn't the bare single-push form we emit.
		return nil, false
	}
	if tokenizer.Err() != nil {
		return nil, false
	}
	return data, true
}
