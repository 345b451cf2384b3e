// Package kindspec implements the per-kind payload codecs of §4.1's "kind
// spec registry" (C3): how the raw Message.Body of each reserved kind tag
// is structured, validated, and which carriers it may ride.
package kindspec

import (
	"errors"

	"github.com/rawblock/anchor-engine/internal/carrier"
	"github.com/rawblock/anchor-engine/pkg/models"
)

// ErrEmptyContent is returned by kinds that reject a zero-length body.
var ErrEmptyContent = errors.New("kindspec: empty content")

// ErrPayloadTooShort mirrors models.ErrPayloadTooShort for kind-level framing.
type ErrPayloadTooShort struct {
	Expected, Actual int
}

func (e ErrPayloadTooShort) Error() string {
	return "kindspec: payload too short"
}

// Spec is implemented by every kind's payload type: the body codec plus the
// validation and carrier-affinity rules the registry enforces around it.
type Spec interface {
	KindID() uint8
	ToBytes() []byte
	Validate() error
	SupportedCarriers() []carrier.Type
	RecommendedCarrier() carrier.Type
}

// Owned is implemented by kinds whose operations are state-machine driven
// and therefore require an anchor to a prior message before taking effect
// (DNS Update/Transfer, Token Transfer/Burn, etc).
type Owned interface {
	Spec
	RequiresAnchor() bool
}

// Registry maps a kind tag to the decoder that parses a raw body into a Spec.
type Registry struct {
	decoders map[uint8]func([]byte) (Spec, error)
}

// NewRegistry constructs the registry with every kind this engine knows
// about pre-registered.
func NewRegistry() *Registry {
	r := &Registry{decoders: make(map[uint8]func([]byte) (Spec, error))}
	r.Register(models.KindText, func(b []byte) (Spec, error) { return TextFromBytes(b) })
	r.Register(models.KindState, func(b []byte) (Spec, error) { return StateFromBytes(b) })
	r.Register(models.KindVote, func(b []byte) (Spec, error) { return VoteFromBytes(b) })
	r.Register(models.KindImage, func(b []byte) (Spec, error) { return ImageFromBytes(b) })
	r.Register(models.KindGeo, func(b []byte) (Spec, error) { return GeoFromBytes(b) })
	r.Register(models.KindDNS, func(b []byte) (Spec, error) { return DNSFromBytes(b) })
	r.Register(models.KindProof, func(b []byte) (Spec, error) { return ProofFromBytes(b) })
	r.Register(models.KindToken, func(b []byte) (Spec, error) { return TokenFromBytes(b) })
	r.Register(models.KindMarket, func(b []byte) (Spec, error) { return MarketFromBytes(b) })
	return r
}

// Register adds or replaces the decoder for a kind tag.
func (r *Registry) Register(kind uint8, decode func([]byte) (Spec, error)) {
	r.decoders[kind] = decode
}

// Decode parses body according to kind's registered decoder. Kind 0
// (generic) and any unregistered kind pass the body through unparsed.
func (r *Registry) Decode(kind uint8, body []byte) (Spec, error) {
	decode, ok := r.decoders[kind]
	if !ok {
		return genericSpec{body: body}, nil
	}
	return decode(body)
}

// genericSpec is the identity codec used for Kind 0 and any kind the
// registry has no dedicated decoder for.
type genericSpec struct{ body []byte }

func (g genericSpec) KindID() uint8             { return models.KindGeneric }
func (g genericSpec) ToBytes() []byte           { return g.body }
func (g genericSpec) Validate() error           { return nil }
func (g genericSpec) SupportedCarriers() []carrier.Type {
	return []carrier.Type{carrier.OpReturn, carrier.Inscription, carrier.Stamps, carrier.TaprootAnnex, carrier.WitnessData}
}
func (g genericSpec) RecommendedCarrier() carrier.Type { return carrier.OpReturn }
