package kindspec

import (
	"github.com/rawblock/anchor-engine/internal/carrier"
	"github.com/rawblock/anchor-engine/pkg/models"
)

// maxOpReturnText leaves headroom under a standard 80-byte OP_RETURN push
// once the envelope header and anchors are subtracted; longer text is still
// valid, it simply can't ride OpReturn.
const maxOpReturnText = 70

// maxTextLength is the practical ceiling for any carrier.
const maxTextLength = 100_000

// TextSpec is Kind 1: plain UTF-8 text.
type TextSpec struct {
	Text string
}

// NewText constructs a TextSpec.
func NewText(text string) TextSpec { return TextSpec{Text: text} }

// TextFromBytes parses a Kind 1 body (the raw UTF-8 bytes, unframed).
func TextFromBytes(body []byte) (TextSpec, error) {
	return TextSpec{Text: string(body)}, nil
}

func (t TextSpec) KindID() uint8   { return models.KindText }
func (t TextSpec) ToBytes() []byte { return []byte(t.Text) }

func (t TextSpec) Validate() error {
	if len(t.Text) == 0 {
		return ErrEmptyContent
	}
	if len(t.Text) > maxTextLength {
		return errTextTooLong(len(t.Text))
	}
	return nil
}

func (t TextSpec) FitsOpReturn() bool { return len(t.Text) <= maxOpReturnText }

func (t TextSpec) SupportedCarriers() []carrier.Type {
	return []carrier.Type{carrier.OpReturn, carrier.Inscription, carrier.Stamps, carrier.TaprootAnnex, carrier.WitnessData}
}

func (t TextSpec) RecommendedCarrier() carrier.Type {
	if t.FitsOpReturn() {
		return carrier.OpReturn
	}
	return carrier.WitnessData
}

func errTextTooLong(actual int) error {
	return &textTooLongError{max: maxTextLength, actual: actual}
}

type textTooLongError struct{ max, actual int }

func (e *textTooLongError) Error() string {
	return "kindspec: text exceeds maximum length"
}
