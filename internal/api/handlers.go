package api

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rawblock/anchor-engine/internal/wallet"
	"github.com/rawblock/anchor-engine/pkg/models"
)

// healthResult mirrors the reference node's nodeStatus result shape.
type healthResult struct {
	Status    string `json:"status"`
	Version   string `json:"version"`
	Timestamp string `json:"timestamp"`
}

func (s *Server) health(ctx context.Context, params json.RawMessage) (interface{}, error) {
	return healthResult{
		Status:    "ok",
		Version:   "anchor-engine/1",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}, nil
}

// messageCreateParams is the caller-supplied request to build and broadcast
// one ANCHOR message.
type messageCreateParams struct {
	Kind         uint8    `json:"kind"`
	AnchorTxIDs  []string `json:"anchor_txids,omitempty"`
	AnchorVouts  []uint16 `json:"anchor_vouts,omitempty"`
	BodyHex      string   `json:"body_hex"`
	Carrier      string   `json:"carrier,omitempty"`
	FeeRateSatVB float64  `json:"fee_rate_sat_vb,omitempty"`
}

type messageCreateResult struct {
	TxID        string `json:"txid"`
	AnchorVout  int    `json:"anchor_vout"`
	CarrierType string `json:"carrier_type"`
	CommitTxID  string `json:"commit_txid,omitempty"`
}

// messageCreate is the wallet's single write path: encode a Message from
// the caller's kind/anchors/body and broadcast it via whichever carrier the
// selector picks (§4.5).
func (s *Server) messageCreate(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p messageCreateParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}
	if len(p.AnchorTxIDs) != len(p.AnchorVouts) {
		return nil, fmt.Errorf("anchor_txids and anchor_vouts must have the same length")
	}
	if len(p.AnchorTxIDs) > models.MaxAnchors {
		return nil, fmt.Errorf("more than %d anchors", models.MaxAnchors)
	}

	body, err := hex.DecodeString(p.BodyHex)
	if err != nil {
		return nil, fmt.Errorf("invalid body_hex: %w", err)
	}

	anchors := make([]models.Anchor, 0, len(p.AnchorTxIDs))
	for i, txid := range p.AnchorTxIDs {
		raw, err := hex.DecodeString(txid)
		if err != nil {
			return nil, fmt.Errorf("invalid anchor txid %q: %w", txid, err)
		}
		anchors = append(anchors, models.Anchor{Prefix: models.TxIDPrefix(raw), Vout: p.AnchorVouts[i]})
	}

	req := wallet.BroadcastRequest{
		Message:      models.Message{Kind: p.Kind, Anchors: anchors, Body: body},
		FeeRateSatVB: p.FeeRateSatVB,
	}
	result, err := s.wallet.Broadcast(req)
	if err != nil {
		return nil, err
	}

	return messageCreateResult{
		TxID:        result.TxID,
		AnchorVout:  result.AnchorVout,
		CarrierType: result.CarrierType.String(),
		CommitTxID:  result.CommitTxID,
	}, nil
}

type domainGetParams struct {
	Name string `json:"name"`
}

func (s *Server) domainGet(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p domainGetParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}
	name := strings.ToLower(strings.TrimSpace(p.Name))
	domain, found, err := s.store.GetActive(name)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("domain %q not found", name)
	}
	return domain, nil
}

type tokenGetParams struct {
	Ticker string `json:"ticker"`
}

func (s *Server) tokenGet(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p tokenGetParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}
	ticker := strings.ToUpper(strings.TrimSpace(p.Ticker))
	token, found, err := s.store.GetTokenByTicker(ticker)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("token %q not found", ticker)
	}
	return token, nil
}

type marketGetParams struct {
	MarketID string `json:"market_id"`
}

func (s *Server) marketGet(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p marketGetParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}
	market, found, err := s.store.GetMarket(p.MarketID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("market %q not found", p.MarketID)
	}
	return market, nil
}

func (s *Server) marketPositions(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p marketGetParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}
	positions, err := s.store.PositionsFor(p.MarketID)
	if err != nil {
		return nil, err
	}
	return positions, nil
}

func (s *Server) lockList(ctx context.Context, params json.RawMessage) (interface{}, error) {
	return s.locks.ListLocked(), nil
}

type lockCreateParams struct {
	TxID   string            `json:"txid"`
	Vout   uint32            `json:"vout"`
	Reason models.LockReason `json:"reason"`
}

type lockMutationResult struct {
	Changed bool `json:"changed"`
}

func (s *Server) lockCreate(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p lockCreateParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}
	changed, err := s.locks.Lock(p.TxID, p.Vout, p.Reason)
	if err != nil {
		return nil, err
	}
	return lockMutationResult{Changed: changed}, nil
}

type lockDeleteParams struct {
	TxID string `json:"txid"`
	Vout uint32 `json:"vout"`
}

func (s *Server) lockDelete(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p lockDeleteParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}
	changed, err := s.locks.Unlock(p.TxID, p.Vout)
	if err != nil {
		return nil, err
	}
	return lockMutationResult{Changed: changed}, nil
}
