package carrier

import (
	"encoding/binary"

	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/rawblock/anchor-engine/pkg/models"
)

// stampChunkSize is the payload capacity of one unspendable output-key
// chunk (a bare witness-v0 32-byte program).
const stampChunkSize = 32

// stampsMaxPayload bounds the number of chunk-outputs a single tx is
// expected to carry for one message.
const stampsMaxPayload = 32 * stampChunkSize

// StampsCarrier distributes payload bytes across a run of unspendable
// P2WSH-shaped outputs (`OP_0 <32 bytes>`), where the "witness program" is
// the raw data itself rather than an actual script hash (§4.1 "Stamps").
// The first two bytes of the concatenated stream are a big-endian length
// prefix so a partial/truncated run is detectable as undecodable.
type StampsCarrier struct{}

func (StampsCarrier) Type() Type      { return Stamps }
func (StampsCarrier) MaxPayload() int { return stampsMaxPayload - 2 }

func (StampsCarrier) Encode(msg models.Message) (Output, error) {
	env, err := models.EncodeEnvelope(msg)
	if err != nil {
		return Output{}, err
	}
	if len(env) > stampsMaxPayload-2 {
		return Output{}, errPayloadTooLarge(len(env), stampsMaxPayload-2)
	}

	stream := make([]byte, 2, 2+len(env))
	binary.BigEndian.PutUint16(stream, uint16(len(env)))
	stream = append(stream, env...)

	chunks := chunkBytes(stream, stampChunkSize)
	outputs := make([][]byte, len(chunks))
	for i, c := range chunks {
		padded := make([]byte, stampChunkSize)
		copy(padded, c)
		outputs[i] = append([]byte{txscript.OP_0, txscript.OP_DATA_32}, padded...)
	}

	return Output{Type: Stamps, StampOutputs: outputs}, nil
}

func (StampsCarrier) Decode(tx *wire.MsgTx) []Decoded {
	var stream []byte
	var foundAny bool
	for _, txOut := range tx.TxOut {
		chunk, ok := extractStampChunk(txOut.PkScript)
		if !ok {
			if foundAny {
				// The run of stamp outputs ended; stop collecting.
				break
			}
			continue
		}
		foundAny = true
		stream = append(stream, chunk...)
	}

	if len(stream) < 2 {
		return nil
	}
	declared := int(binary.BigEndian.Uint16(stream[:2]))
	if len(stream)-2 < declared {
		// Partial stamps: not all expected outputs are present. Undecodable.
		return nil
	}

	msg, err := models.DecodeEnvelope(stream[2 : 2+declared])
	if err != nil {
		return nil
	}
	return []Decoded{{Type: Stamps, VoutIndex: 0, Message: msg}}
}

// extractStampChunk recognises a bare `OP_0 <32 bytes>` script and returns
// its 32-byte payload chunk.
func extractStampChunk(script []byte) ([]byte, bool) {
	if len(script) != 2+stampChunkSize {
		return nil, false
	}
	if script[0] != txscript.OP_0 || script[1] != txscript.OP_DATA_32 {
		return nil, false
	}
	return script[2:], true
}
