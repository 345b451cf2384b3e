package carrier

import (
	"github.com/btcsuite/btcd/wire"
	"github.com/rawblock/anchor-engine/pkg/models"
)

// allowedCarriers is the per-kind table of carriers the kind spec permits.
// Kind 10 (DNS) forbids OpReturn because DNS needs a spendable ownership
// output at vout 0 (§4.1). Unlisted kinds default to "all five".
var allowedCarriers = map[uint8][]Type{
	// DNS is UTXO-ownership based: an OP_RETURN output is unspendable and
	// cannot become the ownership UTXO at vout 0, so it is excluded.
	models.KindDNS: {WitnessData, Inscription, Stamps},
}

// Selector picks a carrier for a kind/body-size pair and fans decode
// requests out across all five carriers in priority order.
type Selector struct {
	carriers map[Type]Carrier
	order    []Type
}

// NewSelector constructs a Selector with all five carriers registered.
func NewSelector() *Selector {
	s := &Selector{carriers: make(map[Type]Carrier)}
	for _, c := range []Carrier{
		OpReturnCarrier{},
		InscriptionCarrier{},
		StampsCarrier{},
		TaprootAnnexCarrier{},
		WitnessDataCarrier{},
	} {
		s.carriers[c.Type()] = c
	}
	s.order = decodePriority
	return s
}

// Get returns the carrier implementation for a type, if registered.
func (s *Selector) Get(t Type) (Carrier, bool) {
	c, ok := s.carriers[t]
	return c, ok
}

// allowedSet returns the carriers permitted for a kind, defaulting to all
// five when the kind has no explicit entry.
func allowedSet(kind uint8) map[Type]bool {
	allowed, ok := allowedCarriers[kind]
	set := make(map[Type]bool)
	if !ok {
		set[OpReturn] = true
		set[Inscription] = true
		set[Stamps] = true
		set[TaprootAnnex] = true
		set[WitnessData] = true
		return set
	}
	for _, t := range allowed {
		set[t] = true
	}
	return set
}

// Choose selects the smallest-footprint carrier whose max payload covers
// bodySize and whose tag is in kind's allowed set (§4.1 "Carrier selector").
// If explicit is non-nil, that carrier is used (or rejected with
// ErrCarrierNotAllowedForKind).
func (s *Selector) Choose(kind uint8, envelopeSize int, explicit *Type) (Type, error) {
	allowed := allowedSet(kind)

	if explicit != nil {
		if !allowed[*explicit] {
			return 0, ErrCarrierNotAllowedForKind
		}
		return *explicit, nil
	}

	// Smallest-footprint first: OpReturn, Stamps, TaprootAnnex, Inscription,
	// WitnessData. This follows ascending max payload except that
	// TaprootAnnex (4000) is tried before Inscription (3984).
	bySize := []Type{OpReturn, Stamps, TaprootAnnex, Inscription, WitnessData}
	for _, t := range bySize {
		if !allowed[t] {
			continue
		}
		c, ok := s.carriers[t]
		if !ok {
			continue
		}
		if c.MaxPayload() >= envelopeSize {
			return t, nil
		}
	}

	return 0, ErrCarrierNotAllowedForKind
}

// Encode encodes msg with the carrier chosen by Choose (or explicit, if set).
func (s *Selector) Encode(msg models.Message, explicit *Type) (Output, error) {
	env, err := models.EncodeEnvelope(msg)
	if err != nil {
		return Output{}, err
	}
	t, err := s.Choose(msg.Kind, len(env), explicit)
	if err != nil {
		return Output{}, err
	}
	return s.carriers[t].Encode(msg)
}

// Detect runs every carrier's decoder over tx in priority order and returns
// the union of every message found, in discovery order (§4.1 "detect(tx)").
func (s *Selector) Detect(tx *wire.MsgTx) []Decoded {
	var all []Decoded
	for _, t := range s.order {
		c, ok := s.carriers[t]
		if !ok {
			continue
		}
		all = append(all, c.Decode(tx)...)
	}
	return all
}
