package kindspec

import (
	"encoding/binary"
	"fmt"

	"github.com/rawblock/anchor-engine/internal/carrier"
	"github.com/rawblock/anchor-engine/pkg/models"
)

// StateSpec is Kind 2: an opaque key/value state update, anchored to the
// prior state message for the same key (§3 "reserved kind tags").
type StateSpec struct {
	Key   string
	Value []byte
}

func (s StateSpec) KindID() uint8 { return models.KindState }

func (s StateSpec) ToBytes() []byte {
	keyBytes := []byte(s.Key)
	buf := make([]byte, 0, 1+len(keyBytes)+len(s.Value))
	buf = append(buf, byte(len(keyBytes)))
	buf = append(buf, keyBytes...)
	buf = append(buf, s.Value...)
	return buf
}

// StateFromBytes parses a Kind 2 body: key_len(1)|key|value.
func StateFromBytes(body []byte) (StateSpec, error) {
	if len(body) < 1 {
		return StateSpec{}, ErrPayloadTooShort{Expected: 1, Actual: len(body)}
	}
	keyLen := int(body[0])
	if len(body) < 1+keyLen {
		return StateSpec{}, ErrPayloadTooShort{Expected: 1 + keyLen, Actual: len(body)}
	}
	return StateSpec{
		Key:   string(body[1 : 1+keyLen]),
		Value: append([]byte(nil), body[1+keyLen:]...),
	}, nil
}

func (s StateSpec) Validate() error {
	if len(s.Key) == 0 {
		return ErrEmptyContent
	}
	return nil
}

func (s StateSpec) RequiresAnchor() bool { return true }

func (s StateSpec) SupportedCarriers() []carrier.Type {
	return []carrier.Type{carrier.OpReturn, carrier.Inscription, carrier.Stamps, carrier.TaprootAnnex, carrier.WitnessData}
}

func (s StateSpec) RecommendedCarrier() carrier.Type { return carrier.OpReturn }

// VoteSpec is Kind 3: a single-choice ballot anchored to the poll it votes
// in.
type VoteSpec struct {
	Choice uint8
}

func (v VoteSpec) KindID() uint8        { return models.KindVote }
func (v VoteSpec) ToBytes() []byte      { return []byte{v.Choice} }
func (v VoteSpec) Validate() error      { return nil }
func (v VoteSpec) RequiresAnchor() bool { return true }

// VoteFromBytes parses a Kind 3 body: a single choice byte.
func VoteFromBytes(body []byte) (VoteSpec, error) {
	if len(body) < 1 {
		return VoteSpec{}, ErrPayloadTooShort{Expected: 1, Actual: len(body)}
	}
	return VoteSpec{Choice: body[0]}, nil
}

func (v VoteSpec) SupportedCarriers() []carrier.Type {
	return []carrier.Type{carrier.OpReturn, carrier.Inscription, carrier.Stamps, carrier.TaprootAnnex, carrier.WitnessData}
}

func (v VoteSpec) RecommendedCarrier() carrier.Type { return carrier.OpReturn }

// ImageSpec is Kind 4: a small raster image, mime_len(1)|mime|pixels.
type ImageSpec struct {
	MimeType string
	Data     []byte
}

var errImageTooLarge = fmt.Errorf("kindspec: image exceeds maximum embedded size")

const maxImageBytes = 4000

func (i ImageSpec) KindID() uint8 { return models.KindImage }

func (i ImageSpec) ToBytes() []byte {
	mimeBytes := []byte(i.MimeType)
	buf := make([]byte, 0, 1+len(mimeBytes)+len(i.Data))
	buf = append(buf, byte(len(mimeBytes)))
	buf = append(buf, mimeBytes...)
	buf = append(buf, i.Data...)
	return buf
}

// ImageFromBytes parses a Kind 4 body.
func ImageFromBytes(body []byte) (ImageSpec, error) {
	if len(body) < 1 {
		return ImageSpec{}, ErrPayloadTooShort{Expected: 1, Actual: len(body)}
	}
	mimeLen := int(body[0])
	if len(body) < 1+mimeLen {
		return ImageSpec{}, ErrPayloadTooShort{Expected: 1 + mimeLen, Actual: len(body)}
	}
	return ImageSpec{
		MimeType: string(body[1 : 1+mimeLen]),
		Data:     append([]byte(nil), body[1+mimeLen:]...),
	}, nil
}

func (i ImageSpec) Validate() error {
	if len(i.Data) == 0 {
		return ErrEmptyContent
	}
	if len(i.Data) > maxImageBytes {
		return errImageTooLarge
	}
	return nil
}

func (i ImageSpec) SupportedCarriers() []carrier.Type {
	return []carrier.Type{carrier.Inscription, carrier.WitnessData, carrier.Stamps}
}

func (i ImageSpec) RecommendedCarrier() carrier.Type { return carrier.Inscription }

// GeoSpec is Kind 5: a fixed-point lat/lon location tag, scaled by 1e7
// (equivalent precision to a standard GPS fix).
type GeoSpec struct {
	LatE7 int32
	LonE7 int32
	Label string
}

func (g GeoSpec) KindID() uint8 { return models.KindGeo }

func (g GeoSpec) ToBytes() []byte {
	buf := make([]byte, 8, 8+len(g.Label))
	binary.BigEndian.PutUint32(buf[0:4], uint32(g.LatE7))
	binary.BigEndian.PutUint32(buf[4:8], uint32(g.LonE7))
	return append(buf, g.Label...)
}

// GeoFromBytes parses a Kind 5 body: lat(4)|lon(4)|label.
func GeoFromBytes(body []byte) (GeoSpec, error) {
	if len(body) < 8 {
		return GeoSpec{}, ErrPayloadTooShort{Expected: 8, Actual: len(body)}
	}
	return GeoSpec{
		LatE7: int32(binary.BigEndian.Uint32(body[0:4])),
		LonE7: int32(binary.BigEndian.Uint32(body[4:8])),
		Label: string(body[8:]),
	}, nil
}

func (g GeoSpec) Validate() error {
	const maxE7 = 180 * 10_000_000
	if g.LatE7 > 90*10_000_000 || g.LatE7 < -90*10_000_000 {
		return fmt.Errorf("kindspec: latitude out of range")
	}
	if g.LonE7 > maxE7 || g.LonE7 < -maxE7 {
		return fmt.Errorf("kindspec: longitude out of range")
	}
	return nil
}

func (g GeoSpec) SupportedCarriers() []carrier.Type {
	return []carrier.Type{carrier.OpReturn, carrier.Inscription, carrier.Stamps, carrier.TaprootAnnex, carrier.WitnessData}
}

func (g GeoSpec) RecommendedCarrier() carrier.Type { return carrier.OpReturn }
