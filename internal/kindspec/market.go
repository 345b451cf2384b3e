package kindspec

import (
	"encoding/binary"
	"fmt"

	"github.com/rawblock/anchor-engine/internal/carrier"
	"github.com/rawblock/anchor-engine/pkg/models"
)

// MarketOperation is the first byte of a Kind 40 body.
type MarketOperation uint8

const (
	MarketCreate MarketOperation = 0x01
	MarketBet    MarketOperation = 0x02
	MarketSettle MarketOperation = 0x03
	MarketClaim  MarketOperation = 0x04
)

var errInvalidMarketOperation = fmt.Errorf("kindspec: invalid market operation")

// MarketSpec is Kind 40: constant-product (x*y=k) binary prediction market
// create/bet/settle/claim (§4.7 "Market state machine").
type MarketSpec struct {
	Operation MarketOperation

	// Create
	Question        string
	ResolutionBlock int64
	OraclePubKey    []byte
	InitialLiquidity uint64

	// Bet
	Outcome models.Outcome
	Amount  uint64

	// Settle
	WinningOutcome models.Outcome
	OracleSig      []byte
}

func (m MarketSpec) KindID() uint8 { return models.KindMarket }

func (m MarketSpec) ToBytes() []byte {
	buf := []byte{byte(m.Operation)}
	switch m.Operation {
	case MarketCreate:
		q := []byte(m.Question)
		var qLen [2]byte
		binary.BigEndian.PutUint16(qLen[:], uint16(len(q)))
		buf = append(buf, qLen[:]...)
		buf = append(buf, q...)
		buf = appendI64(buf, m.ResolutionBlock)
		buf = append(buf, byte(len(m.OraclePubKey)))
		buf = append(buf, m.OraclePubKey...)
		buf = appendU64(buf, m.InitialLiquidity)
	case MarketBet:
		buf = append(buf, byte(m.Outcome))
		buf = appendU64(buf, m.Amount)
	case MarketSettle:
		buf = append(buf, byte(m.WinningOutcome))
		buf = append(buf, byte(len(m.OracleSig)))
		buf = append(buf, m.OracleSig...)
	case MarketClaim:
		// No additional fields: claim resolves from the anchor chain alone.
	}
	return buf
}

// MarketFromBytes parses a Kind 40 body.
func MarketFromBytes(body []byte) (MarketSpec, error) {
	if len(body) < 1 {
		return MarketSpec{}, ErrPayloadTooShort{Expected: 1, Actual: len(body)}
	}
	op := MarketOperation(body[0])
	offset := 1
	spec := MarketSpec{Operation: op}

	switch op {
	case MarketCreate:
		if len(body) < offset+2 {
			return MarketSpec{}, ErrPayloadTooShort{Expected: offset + 2, Actual: len(body)}
		}
		qLen := int(binary.BigEndian.Uint16(body[offset : offset+2]))
		offset += 2
		if len(body) < offset+qLen {
			return MarketSpec{}, ErrPayloadTooShort{Expected: offset + qLen, Actual: len(body)}
		}
		spec.Question = string(body[offset : offset+qLen])
		offset += qLen
		if len(body) < offset+8 {
			return MarketSpec{}, ErrPayloadTooShort{Expected: offset + 8, Actual: len(body)}
		}
		spec.ResolutionBlock = int64(binary.BigEndian.Uint64(body[offset : offset+8]))
		offset += 8
		if len(body) < offset+1 {
			return MarketSpec{}, ErrPayloadTooShort{Expected: offset + 1, Actual: len(body)}
		}
		pkLen := int(body[offset])
		offset++
		if len(body) < offset+pkLen {
			return MarketSpec{}, ErrPayloadTooShort{Expected: offset + pkLen, Actual: len(body)}
		}
		spec.OraclePubKey = append([]byte(nil), body[offset:offset+pkLen]...)
		offset += pkLen
		if len(body) < offset+8 {
			return MarketSpec{}, ErrPayloadTooShort{Expected: offset + 8, Actual: len(body)}
		}
		spec.InitialLiquidity = binary.BigEndian.Uint64(body[offset : offset+8])
	case MarketBet:
		if len(body) < offset+9 {
			return MarketSpec{}, ErrPayloadTooShort{Expected: offset + 9, Actual: len(body)}
		}
		spec.Outcome = models.Outcome(body[offset])
		offset++
		spec.Amount = binary.BigEndian.Uint64(body[offset : offset+8])
	case MarketSettle:
		if len(body) < offset+2 {
			return MarketSpec{}, ErrPayloadTooShort{Expected: offset + 2, Actual: len(body)}
		}
		spec.WinningOutcome = models.Outcome(body[offset])
		offset++
		sigLen := int(body[offset])
		offset++
		if len(body) < offset+sigLen {
			return MarketSpec{}, ErrPayloadTooShort{Expected: offset + sigLen, Actual: len(body)}
		}
		spec.OracleSig = append([]byte(nil), body[offset:offset+sigLen]...)
	case MarketClaim:
		// no body
	default:
		return MarketSpec{}, errInvalidMarketOperation
	}

	return spec, nil
}

func (m MarketSpec) Validate() error {
	switch m.Operation {
	case MarketCreate:
		if len(m.Question) == 0 {
			return ErrEmptyContent
		}
		if len(m.OraclePubKey) != 33 && len(m.OraclePubKey) != 32 {
			return fmt.Errorf("kindspec: oracle pubkey must be 32 or 33 bytes")
		}
	case MarketBet:
		if m.Amount == 0 {
			return fmt.Errorf("kindspec: bet amount must be non-zero")
		}
	case MarketSettle, MarketClaim:
	default:
		return errInvalidMarketOperation
	}
	return nil
}

func (m MarketSpec) RequiresAnchor() bool {
	return m.Operation == MarketBet || m.Operation == MarketSettle || m.Operation == MarketClaim
}

func (m MarketSpec) SupportedCarriers() []carrier.Type {
	return []carrier.Type{carrier.OpReturn, carrier.Inscription, carrier.Stamps, carrier.TaprootAnnex, carrier.WitnessData}
}

func (m MarketSpec) RecommendedCarrier() carrier.Type { return carrier.OpReturn }

func appendI64(buf []byte, v int64) []byte {
	return appendU64(buf, uint64(v))
}
