package carrier

import (
	"github.com/btcsuite/btcd/wire"
	"github.com/rawblock/anchor-engine/pkg/models"
)

// annexFlag is the BIP341 annex marker byte: the last witness element
// belongs to the annex iff it is present and its first byte equals this.
const annexFlag = 0x50

// annexMaxPayload is generous since the annex rides free on an existing
// taproot input and isn't consensus-limited the way a tapscript push is.
const annexMaxPayload = 4000

// TaprootAnnexCarrier embeds the envelope directly as BIP341 annex bytes on
// a taproot input's witness (§4.1 "TaprootAnnex").
type TaprootAnnexCarrier struct{}

func (TaprootAnnexCarrier) Type() Type      { return TaprootAnnex }
func (TaprootAnnexCarrier) MaxPayload() int { return annexMaxPayload }

func (TaprootAnnexCarrier) Encode(msg models.Message) (Output, error) {
	env, err := models.EncodeEnvelope(msg)
	if err != nil {
		return Output{}, err
	}
	if len(env) > annexMaxPayload {
		return Output{}, errPayloadTooLarge(len(env), annexMaxPayload)
	}
	return Output{Type: TaprootAnnex, AnnexBytes: env}, nil
}

func (TaprootAnnexCarrier) Decode(tx *wire.MsgTx) []Decoded {
	var out []Decoded
	for i, in := range tx.TxIn {
		if len(in.Witness) < 2 {
			continue
		}
		last := in.Witness[len(in.Witness)-1]
		if len(last) < 1 || last[0] != annexFlag {
			continue
		}
		msg, err := models.DecodeEnvelope(last[1:])
		if err != nil {
			continue
		}
		out = append(out, Decoded{Type: TaprootAnnex, IsInput: true, InputIndex: i, Message: msg})
	}
	return out
}

// BuildAnnexWitnessItem prepends the BIP341 flag byte to annex bytes so the
// wallet can append it as the final witness stack item.
func BuildAnnexWitnessItem(annex []byte) []byte {
	return append([]byte{annexFlag}, annex...)
}
