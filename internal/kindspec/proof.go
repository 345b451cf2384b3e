package kindspec

import (
	"fmt"

	"github.com/rawblock/anchor-engine/internal/carrier"
	"github.com/rawblock/anchor-engine/pkg/models"
)

// ProofOperation is the first byte of a Kind 11 body.
type ProofOperation uint8

const (
	ProofStamp  ProofOperation = 0x01
	ProofRevoke ProofOperation = 0x02
	ProofBatch  ProofOperation = 0x03
)

// HashAlgorithm identifies the digest algorithm a proof entry commits to.
type HashAlgorithm uint8

const (
	HashSHA256 HashAlgorithm = 0x01
	HashSHA512 HashAlgorithm = 0x02
)

func (a HashAlgorithm) hashSize() int {
	if a == HashSHA512 {
		return 64
	}
	return 32
}

var errInvalidProofOperation = fmt.Errorf("kindspec: invalid proof operation")
var errInvalidHashAlgorithm = fmt.Errorf("kindspec: invalid hash algorithm")
var errHashSizeMismatch = fmt.Errorf("kindspec: hash size does not match algorithm")

// ProofMetadata is optional descriptive data attached to a proof entry.
type ProofMetadata struct {
	Filename    string
	MimeType    string
	FileSize    uint64
	Description string
}

func (m ProofMetadata) toBytes() []byte {
	var buf []byte
	buf = appendLenPrefixedString(buf, m.Filename)
	buf = appendLenPrefixedString(buf, m.MimeType)
	buf = appendU64(buf, m.FileSize)
	buf = appendLenPrefixedString(buf, m.Description)
	return buf
}

func appendLenPrefixedString(buf []byte, s string) []byte {
	b := []byte(s)
	if len(b) > 255 {
		b = b[:255]
	}
	buf = append(buf, byte(len(b)))
	return append(buf, b...)
}

func proofMetadataFromBytes(body []byte, offset int) (ProofMetadata, int, error) {
	start := offset
	filename, offset, err := readLenPrefixedString(body, offset)
	if err != nil {
		return ProofMetadata{}, 0, err
	}
	mime, offset, err := readLenPrefixedString(body, offset)
	if err != nil {
		return ProofMetadata{}, 0, err
	}
	if len(body) < offset+8 {
		return ProofMetadata{}, 0, ErrPayloadTooShort{Expected: offset + 8, Actual: len(body)}
	}
	fileSize := beUint64(body[offset : offset+8])
	offset += 8
	description, offset, err := readLenPrefixedString(body, offset)
	if err != nil {
		return ProofMetadata{}, 0, err
	}
	return ProofMetadata{Filename: filename, MimeType: mime, FileSize: fileSize, Description: description}, offset - start, nil
}

func readLenPrefixedString(body []byte, offset int) (string, int, error) {
	if len(body) < offset+1 {
		return "", 0, ErrPayloadTooShort{Expected: offset + 1, Actual: len(body)}
	}
	n := int(body[offset])
	offset++
	if len(body) < offset+n {
		return "", 0, ErrPayloadTooShort{Expected: offset + n, Actual: len(body)}
	}
	s := string(body[offset : offset+n])
	return s, offset + n, nil
}

func beUint64(b []byte) uint64 {
	var v uint64
	for _, x := range b {
		v = v<<8 | uint64(x)
	}
	return v
}

// ProofEntry is one timestamped hash commitment.
type ProofEntry struct {
	Algorithm HashAlgorithm
	Hash      []byte
	Metadata  ProofMetadata
}

// ProofSpec is Kind 11: proof-of-existence stamp/revoke/batch
// (§ Supplemented features — hash timestamping).
type ProofSpec struct {
	Operation ProofOperation
	Entries   []ProofEntry
}

func (p ProofSpec) KindID() uint8 { return models.KindProof }

func (p ProofSpec) ToBytes() []byte {
	var buf []byte
	if p.Operation == ProofBatch {
		buf = append(buf, byte(ProofBatch), byte(len(p.Entries)))
		for _, e := range p.Entries {
			buf = append(buf, byte(e.Algorithm))
			buf = append(buf, e.Hash...)
			buf = append(buf, e.Metadata.toBytes()...)
		}
		return buf
	}
	buf = append(buf, byte(p.Operation))
	if len(p.Entries) > 0 {
		e := p.Entries[0]
		buf = append(buf, byte(e.Algorithm))
		buf = append(buf, e.Hash...)
		buf = append(buf, e.Metadata.toBytes()...)
	}
	return buf
}

// ProofFromBytes parses a Kind 11 body.
func ProofFromBytes(body []byte) (ProofSpec, error) {
	if len(body) < 2 {
		return ProofSpec{}, ErrPayloadTooShort{Expected: 2, Actual: len(body)}
	}
	op := ProofOperation(body[0])

	if op == ProofBatch {
		count := int(body[1])
		offset := 2
		entries := make([]ProofEntry, 0, count)
		for i := 0; i < count; i++ {
			if len(body) < offset+1 {
				return ProofSpec{}, ErrPayloadTooShort{Expected: offset + 1, Actual: len(body)}
			}
			algo := HashAlgorithm(body[offset])
			if algo != HashSHA256 && algo != HashSHA512 {
				return ProofSpec{}, errInvalidHashAlgorithm
			}
			offset++
			hashSize := algo.hashSize()
			if len(body) < offset+hashSize {
				return ProofSpec{}, ErrPayloadTooShort{Expected: offset + hashSize, Actual: len(body)}
			}
			hash := append([]byte(nil), body[offset:offset+hashSize]...)
			offset += hashSize

			meta, consumed, err := proofMetadataFromBytes(body, offset)
			if err != nil {
				return ProofSpec{}, err
			}
			offset += consumed

			entries = append(entries, ProofEntry{Algorithm: algo, Hash: hash, Metadata: meta})
		}
		return ProofSpec{Operation: op, Entries: entries}, nil
	}

	if op != ProofStamp && op != ProofRevoke {
		return ProofSpec{}, errInvalidProofOperation
	}

	offset := 1
	if len(body) < offset+1 {
		return ProofSpec{}, ErrPayloadTooShort{Expected: offset + 1, Actual: len(body)}
	}
	algo := HashAlgorithm(body[offset])
	if algo != HashSHA256 && algo != HashSHA512 {
		return ProofSpec{}, errInvalidHashAlgorithm
	}
	offset++
	hashSize := algo.hashSize()
	if len(body) < offset+hashSize {
		return ProofSpec{}, ErrPayloadTooShort{Expected: offset + hashSize, Actual: len(body)}
	}
	hash := append([]byte(nil), body[offset:offset+hashSize]...)
	offset += hashSize

	meta, _, err := proofMetadataFromBytes(body, offset)
	if err != nil {
		return ProofSpec{}, err
	}

	return ProofSpec{Operation: op, Entries: []ProofEntry{{Algorithm: algo, Hash: hash, Metadata: meta}}}, nil
}

func (p ProofSpec) Validate() error {
	if len(p.Entries) == 0 {
		return ErrEmptyContent
	}
	for _, e := range p.Entries {
		if len(e.Hash) != e.Algorithm.hashSize() {
			return errHashSizeMismatch
		}
	}
	return nil
}

func (p ProofSpec) SupportedCarriers() []carrier.Type {
	return []carrier.Type{carrier.OpReturn, carrier.Inscription, carrier.Stamps, carrier.TaprootAnnex, carrier.WitnessData}
}

func (p ProofSpec) RecommendedCarrier() carrier.Type { return carrier.OpReturn }
