// Package carrier implements the five ANCHOR carrier vehicles (§4.1): the
// strategies for packing a Message into a Bitcoin transaction's data-bearing
// fields and recovering it back out of one. The teacher's bitcoin package
// supplies the btcsuite stack this leans on; this package generalizes the
// teacher's read-only transaction parsing into a bidirectional codec set.
package carrier

import (
	"errors"

	"github.com/btcsuite/btcd/wire"
	"github.com/rawblock/anchor-engine/pkg/models"
)

// Type identifies which of the five carriers produced or should parse a
// payload.
type Type uint8

const (
	OpReturn     Type = 0
	Inscription  Type = 1
	Stamps       Type = 2
	TaprootAnnex Type = 3
	WitnessData  Type = 4
)

func (t Type) String() string {
	switch t {
	case OpReturn:
		return "op_return"
	case Inscription:
		return "inscription"
	case Stamps:
		return "stamps"
	case TaprootAnnex:
		return "taproot_annex"
	case WitnessData:
		return "witness_data"
	default:
		return "unknown"
	}
}

// decodePriority is the fixed order decoders run in, so that a commit/reveal
// reveal tx does not also surface its OP_RETURN "marker" as a duplicate
// (§4.1 "Decoder contract per carrier").
var decodePriority = []Type{WitnessData, Inscription, TaprootAnnex, Stamps, OpReturn}

// ErrCarrierNotAllowedForKind is returned when a caller names a carrier
// explicitly that the kind's allowed set forbids.
var ErrCarrierNotAllowedForKind = errors.New("carrier: not allowed for this kind")

// Output is the encoded form produced by a carrier, tagged by which fields
// are populated.
type Output struct {
	Type Type

	// OpReturn: a single OP_RETURN scriptPubKey.
	OpReturnScript []byte

	// Inscription / WitnessData: the taproot leaf (reveal) script to embed
	// in the reveal input's witness, plus the raw chunks it was built from
	// (useful to callers sizing a commit output).
	RevealScript []byte
	Chunks       [][]byte

	// Stamps: an ordered list of P2WSH-shaped output scripts.
	StampOutputs [][]byte

	// TaprootAnnex: raw annex payload bytes (caller prepends the 0x50 flag
	// byte when attaching to the witness).
	AnnexBytes []byte
}

// Decoded is one message recovered from a transaction, with the location it
// was found at.
type Decoded struct {
	Type        Type
	VoutIndex   int // valid when !IsInput
	InputIndex  int // valid when IsInput
	IsInput     bool
	Message     models.Message
}

// Carrier is a pluggable strategy for packing/unpacking a Message.
type Carrier interface {
	Type() Type
	// MaxPayload returns the largest envelope size (bytes) this carrier can
	// hold, used by the Selector to pick the smallest-footprint carrier.
	MaxPayload() int
	Encode(msg models.Message) (Output, error)
	// Decode scans every input and output of tx for this carrier's vehicle
	// and returns every message found, in discovery order.
	Decode(tx *wire.MsgTx) []Decoded
}
