package kindspec

import (
	"encoding/binary"
	"fmt"

	"github.com/rawblock/anchor-engine/internal/carrier"
	"github.com/rawblock/anchor-engine/pkg/models"
)

// TokenOperation is the first byte of a Kind 20 body.
type TokenOperation uint8

const (
	TokenDeploy   TokenOperation = 0x01
	TokenMint     TokenOperation = 0x02
	TokenTransfer TokenOperation = 0x03
	TokenBurn     TokenOperation = 0x04
	TokenSplit    TokenOperation = 0x05
)

var errInvalidTokenOperation = fmt.Errorf("kindspec: invalid token operation")
var errTickerTooLong = fmt.Errorf("kindspec: ticker exceeds 16 bytes")

// TokenSpec is Kind 20: fungible token deploy/mint/transfer/burn/split
// (§4.6 "Token state machine"), grounded on the teacher pack's
// anchor-tokens indexer.
type TokenSpec struct {
	Operation TokenOperation
	Ticker    string

	// Deploy
	Decimals  uint8
	MaxSupply uint64
	MintLimit *uint64
	Flags     uint8

	// Mint / Burn
	Amount uint64
	// Mint only: the output carrying the newly minted token UTXO (§4.6
	// "Mint: token_id, amount, output_index").
	OutputIndex uint8

	// Transfer / Split: allocations to the tx's successive outputs starting
	// at vout 1, in order (§4.6 "Transfer: token_id, allocations[{vout,
	// amount}]"). Vout is implicit from list position since ANCHOR outputs
	// are always consecutive starting right after the anchor/carrier vout.
	SplitAmounts []uint64
}

func (t TokenSpec) KindID() uint8 { return models.KindToken }

func (t TokenSpec) ToBytes() []byte {
	ticker := []byte(t.Ticker)
	buf := []byte{byte(t.Operation), byte(len(ticker))}
	buf = append(buf, ticker...)

	switch t.Operation {
	case TokenDeploy:
		buf = append(buf, t.Decimals)
		buf = appendU64(buf, t.MaxSupply)
		if t.MintLimit != nil {
			buf = append(buf, 1)
			buf = appendU64(buf, *t.MintLimit)
		} else {
			buf = append(buf, 0)
		}
		buf = append(buf, t.Flags)
	case TokenMint:
		buf = appendU64(buf, t.Amount)
		buf = append(buf, t.OutputIndex)
	case TokenBurn:
		buf = appendU64(buf, t.Amount)
	case TokenTransfer, TokenSplit:
		buf = append(buf, byte(len(t.SplitAmounts)))
		for _, a := range t.SplitAmounts {
			buf = appendU64(buf, a)
		}
	}
	return buf
}

// TokenFromBytes parses a Kind 20 body.
func TokenFromBytes(body []byte) (TokenSpec, error) {
	if len(body) < 2 {
		return TokenSpec{}, ErrPayloadTooShort{Expected: 2, Actual: len(body)}
	}
	op := TokenOperation(body[0])
	switch op {
	case TokenDeploy, TokenMint, TokenTransfer, TokenBurn, TokenSplit:
	default:
		return TokenSpec{}, errInvalidTokenOperation
	}
	tickerLen := int(body[1])
	if len(body) < 2+tickerLen {
		return TokenSpec{}, ErrPayloadTooShort{Expected: 2 + tickerLen, Actual: len(body)}
	}
	ticker := string(body[2 : 2+tickerLen])
	offset := 2 + tickerLen

	spec := TokenSpec{Operation: op, Ticker: ticker}

	switch op {
	case TokenDeploy:
		if len(body) < offset+1+8+1 {
			return TokenSpec{}, ErrPayloadTooShort{Expected: offset + 10, Actual: len(body)}
		}
		spec.Decimals = body[offset]
		offset++
		spec.MaxSupply = binary.BigEndian.Uint64(body[offset : offset+8])
		offset += 8
		hasMintLimit := body[offset]
		offset++
		if hasMintLimit == 1 {
			if len(body) < offset+8+1 {
				return TokenSpec{}, ErrPayloadTooShort{Expected: offset + 9, Actual: len(body)}
			}
			limit := binary.BigEndian.Uint64(body[offset : offset+8])
			spec.MintLimit = &limit
			offset += 8
		}
		if len(body) < offset+1 {
			return TokenSpec{}, ErrPayloadTooShort{Expected: offset + 1, Actual: len(body)}
		}
		spec.Flags = body[offset]
	case TokenMint:
		if len(body) < offset+8+1 {
			return TokenSpec{}, ErrPayloadTooShort{Expected: offset + 9, Actual: len(body)}
		}
		spec.Amount = binary.BigEndian.Uint64(body[offset : offset+8])
		spec.OutputIndex = body[offset+8]
	case TokenBurn:
		if len(body) < offset+8 {
			return TokenSpec{}, ErrPayloadTooShort{Expected: offset + 8, Actual: len(body)}
		}
		spec.Amount = binary.BigEndian.Uint64(body[offset : offset+8])
	case TokenTransfer, TokenSplit:
		if len(body) < offset+1 {
			return TokenSpec{}, ErrPayloadTooShort{Expected: offset + 1, Actual: len(body)}
		}
		count := int(body[offset])
		offset++
		amounts := make([]uint64, 0, count)
		for i := 0; i < count; i++ {
			if len(body) < offset+8 {
				return TokenSpec{}, ErrPayloadTooShort{Expected: offset + 8, Actual: len(body)}
			}
			amounts = append(amounts, binary.BigEndian.Uint64(body[offset:offset+8]))
			offset += 8
		}
		spec.SplitAmounts = amounts
	}

	return spec, nil
}

func (t TokenSpec) Validate() error {
	if len(t.Ticker) == 0 || len(t.Ticker) > 16 {
		return errTickerTooLong
	}
	if t.Operation == TokenDeploy && t.MaxSupply == 0 {
		return fmt.Errorf("kindspec: deploy max_supply must be non-zero")
	}
	return nil
}

func (t TokenSpec) RequiresAnchor() bool {
	return t.Operation == TokenTransfer || t.Operation == TokenBurn || t.Operation == TokenSplit
}

func (t TokenSpec) SupportedCarriers() []carrier.Type {
	return []carrier.Type{carrier.OpReturn, carrier.Inscription, carrier.Stamps, carrier.TaprootAnnex, carrier.WitnessData}
}

func (t TokenSpec) RecommendedCarrier() carrier.Type { return carrier.OpReturn }

func appendU64(buf []byte, v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return append(buf, b[:]...)
}
