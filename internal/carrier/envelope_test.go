package carrier

import (
	"bytes"
	"testing"

	"github.com/rawblock/anchor-engine/pkg/models"
)

// TestFifthAnchorTruncation covers the §8 boundary behaviour: a message
// carrying more than MaxAnchors anchors is decoded with only the first
// MaxAnchors kept, rather than rejected outright.
func TestFifthAnchorTruncation(t *testing.T) {
	anchors := make([]models.Anchor, models.MaxAnchors)
	for i := range anchors {
		anchors[i] = models.Anchor{Vout: uint16(i)}
	}

	env, err := models.EncodeEnvelope(models.Message{Kind: models.KindText, Anchors: anchors, Body: []byte("x")})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	// Hand-craft a 5th anchor onto the wire form: bump anchor_count and
	// append one more 10-byte anchor before the body.
	env[4] = byte(models.MaxAnchors + 1)
	fifth := make([]byte, 10)
	fifth[9] = 0xFF
	body := env[5+10*models.MaxAnchors:]
	raw := append(append(env[:5+10*models.MaxAnchors], fifth...), body...)

	msg, err := models.DecodeEnvelope(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(msg.Anchors) != models.MaxAnchors {
		t.Fatalf("expected truncation to %d anchors, got %d", models.MaxAnchors, len(msg.Anchors))
	}
	if !bytes.Equal(msg.Body, []byte("x")) {
		t.Fatalf("body corrupted by truncation: %q", msg.Body)
	}
}

func TestEncodeEnvelopeRejectsTooManyAnchors(t *testing.T) {
	anchors := make([]models.Anchor, models.MaxAnchors+1)
	_, err := models.EncodeEnvelope(models.Message{Kind: models.KindText, Anchors: anchors})
	if err != models.ErrTooManyAnchors {
		t.Fatalf("expected ErrTooManyAnchors, got %v", err)
	}
}

func TestDecodeEnvelopeUnknownVersion(t *testing.T) {
	env, err := models.EncodeEnvelope(models.Message{Kind: models.KindText})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	env[2] = 0xFF // corrupt version byte
	if _, err := models.DecodeEnvelope(env); err != models.ErrUnknownVersion {
		t.Fatalf("expected ErrUnknownVersion, got %v", err)
	}
}
