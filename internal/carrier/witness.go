package carrier

import (
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/rawblock/anchor-engine/pkg/models"
)

// maxScriptElementSize is the largest single data push a script can contain
// (consensus rule, mirrored from btcsuite/txscript).
const maxScriptElementSize = 520

// witnessDataMaxPayload bounds how much envelope data a single reveal
// script can carry across chunked pushes; generous enough for any kind spec
// in this system while staying well inside standard tapscript size limits.
const witnessDataMaxPayload = 4000

// WitnessDataCarrier implements the commit-then-reveal taproot script-path
// vehicle (§4.1 "WitnessData"): the reveal script is a plain sequence of
// data pushes each followed by OP_DROP, terminated by OP_TRUE so the script
// itself authorises the spend with no signature.
type WitnessDataCarrier struct{}

func (WitnessDataCarrier) Type() Type      { return WitnessData }
func (WitnessDataCarrier) MaxPayload() int { return witnessDataMaxPayload }

func (WitnessDataCarrier) Encode(msg models.Message) (Output, error) {
	env, err := models.EncodeEnvelope(msg)
	if err != nil {
		return Output{}, err
	}
	if len(env) > witnessDataMaxPayload {
		return Output{}, errPayloadTooLarge(len(env), witnessDataMaxPayload)
	}

	chunks := chunkBytes(env, maxScriptElementSize)

	builder := txscript.NewScriptBuilder()
	for _, c := range chunks {
		builder.AddData(c).AddOp(txscript.OP_DROP)
	}
	builder.AddOp(txscript.OP_TRUE)

	script, err := builder.Script()
	if err != nil {
		return Output{}, err
	}

	return Output{Type: WitnessData, RevealScript: script, Chunks: chunks}, nil
}

func (WitnessDataCarrier) Decode(tx *wire.MsgTx) []Decoded {
	var out []Decoded
	for i, in := range tx.TxIn {
		script, ok := revealScriptFromWitness(in.Witness)
		if !ok {
			continue
		}
		data, ok := concatDropPushes(script, nil)
		if !ok {
			continue
		}
		msg, err := models.DecodeEnvelope(data)
		if err != nil {
			continue
		}
		out = append(out, Decoded{Type: WitnessData, IsInput: true, InputIndex: i, Message: msg})
	}
	return out
}

// chunkBytes splits data into chunks of at most size bytes each. An empty
// input still yields one (empty) chunk so zero-length bodies round-trip.
func chunkBytes(data []byte, size int) [][]byte {
	if len(data) == 0 {
		return [][]byte{{}}
	}
	var chunks [][]byte
	for len(data) > 0 {
		n := size
		if n > len(data) {
			n = len(data)
		}
		chunks = append(chunks, append([]byte(nil), data[:n]...))
		data = data[n:]
	}
	return chunks
}

// revealScriptFromWitness extracts the tapscript leaf from a script-path
// spend witness stack [..., script, control_block]. The control block's
// first byte always has the top bit pattern 0xc0/0xc1 (leaf version | parity)
// and a length of 33 + 32*m.
func revealScriptFromWitness(witness wire.TxWitness) ([]byte, bool) {
	if len(witness) < 2 {
		return nil, false
	}
	controlBlock := witness[len(witness)-1]
	script := witness[len(witness)-2]

	if len(controlBlock) < 33 || (len(controlBlock)-33)%32 != 0 {
		return nil, false
	}
	leafVersion := controlBlock[0] &^ 0x01
	if leafVersion != txscript.BaseLeafVersion {
		return nil, false
	}
	return script, true
}

// concatDropPushes walks a script of the shape (<push> OP_DROP)* OP_TRUE (or
// the Inscription envelope OP_FALSE OP_IF <tag> (<push> ...)? OP_ENDIF form
// when tag is non-nil) and concatenates every data push's bytes in order.
func concatDropPushes(script []byte, tag []byte) ([]byte, bool) {
	tokenizer := txscript.MakeScriptTokenizer(0, script)

	if tag != nil {
		// Expect OP_FALSE OP_IF <tag>
		if !tokenizer.Next() || tokenizer.Opcode() != txscript.OP_FALSE {
			return nil, false
		}
		if !tokenizer.Next() || tokenizer.Opcode() != txscript.OP_IF {
			return nil, false
		}
		if !tokenizer.Next() {
			return nil, false
		}
		if string(tokenizer.Data()) != string(tag) {
			return nil, false
		}
	}

	var data []byte
	for tokenizer.Next() {
		op := tokenizer.Opcode()
		switch {
		case tag != nil && op == txscript.OP_ENDIF:
			return data, tokenizer.Err() == nil
		case tag == nil && op == txscript.OP_TRUE:
			return data, tokenizer.Err() == nil
		case tag == nil && op == txscript.OP_DROP:
			continue
		default:
			if d := tokenizer.Data(); d != nil || op == txscript.OP_0 {
				data = append(data, tokenizer.Data()...)
			}
		}
	}
	if tokenizer.Err() != nil {
		return nil, false
	}
	// Ran off the end without hitting the terminator we expected.
	if tag != nil {
		return nil, false
	}
	return data, true
}
