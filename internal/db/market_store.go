package db

import (
	"database/sql"
	"fmt"

	"github.com/rawblock/anchor-engine/pkg/models"
)

// GetMarket satisfies market.Store.
func (s *Store) GetMarket(marketID string) (models.Market, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var m models.Market
	var resolution *models.Outcome
	err := s.db.QueryRow(`
		SELECT market_id, question, resolution_block, oracle_pubkey, yes_pool, no_pool, k_constant,
		       status, resolution, total_volume_sats, total_yes_sats, total_no_sats
		FROM markets WHERE market_id = ?
	`, marketID).Scan(&m.MarketID, &m.Question, &m.ResolutionBlock, &m.OraclePubKey, &m.YesPool, &m.NoPool, &m.KConstant,
		&m.Status, &resolution, &m.TotalVolumeSats, &m.TotalYesSats, &m.TotalNoSats)
	if err == sql.ErrNoRows {
		return models.Market{}, false, nil
	}
	if err != nil {
		return models.Market{}, false, fmt.Errorf("db: get market: %w", err)
	}
	m.Resolution = resolution
	return m, true, nil
}

// InsertMarket writes a newly created prediction market (§4.7 Create).
func (s *Store) InsertMarket(m models.Market) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO markets (market_id, question, resolution_block, oracle_pubkey, yes_pool, no_pool, k_constant,
		                      status, resolution, total_volume_sats, total_yes_sats, total_no_sats)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, m.MarketID, m.Question, m.ResolutionBlock, m.OraclePubKey, m.YesPool, m.NoPool, m.KConstant,
		m.Status, m.Resolution, m.TotalVolumeSats, m.TotalYesSats, m.TotalNoSats)
	if err != nil {
		return fmt.Errorf("db: insert market: %w", err)
	}
	return nil
}

// UpdateMarket persists pool/volume/status changes after a Bet or Settle.
func (s *Store) UpdateMarket(m models.Market) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		UPDATE markets SET yes_pool = ?, no_pool = ?, k_constant = ?, status = ?, resolution = ?,
		       total_volume_sats = ?, total_yes_sats = ?, total_no_sats = ?
		WHERE market_id = ?
	`, m.YesPool, m.NoPool, m.KConstant, m.Status, m.Resolution, m.TotalVolumeSats, m.TotalYesSats, m.TotalNoSats, m.MarketID)
	if err != nil {
		return fmt.Errorf("db: update market: %w", err)
	}
	return nil
}

// InsertPosition records a bettor's stake in a market (§4.7 Bet).
func (s *Store) InsertPosition(p models.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO positions (market_id, owner_pubkey, outcome, amount, shares, avg_price, is_winner, payout, claimed, claim_txid)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, p.MarketID, p.OwnerPubKey, p.Outcome, p.Amount, p.Shares, p.AvgPrice, p.IsWinner, p.Payout, p.Claimed, p.ClaimTxID)
	if err != nil {
		return fmt.Errorf("db: insert position: %w", err)
	}
	return nil
}

// PositionsFor returns every position staked against a market, for
// settlement and claim lookups.
func (s *Store) PositionsFor(marketID string) ([]models.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT id, market_id, owner_pubkey, outcome, amount, shares, avg_price, is_winner, payout, claimed, claim_txid
		FROM positions WHERE market_id = ?
	`, marketID)
	if err != nil {
		return nil, fmt.Errorf("db: positions for: %w", err)
	}
	defer rows.Close()

	var out []models.Position
	for rows.Next() {
		var p models.Position
		if err := rows.Scan(&p.ID, &p.MarketID, &p.OwnerPubKey, &p.Outcome, &p.Amount, &p.Shares, &p.AvgPrice,
			&p.IsWinner, &p.Payout, &p.Claimed, &p.ClaimTxID); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// UpdatePosition persists a position's settlement or claim outcome.
func (s *Store) UpdatePosition(p models.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		UPDATE positions SET is_winner = ?, payout = ?, claimed = ?, claim_txid = ? WHERE id = ?
	`, p.IsWinner, p.Payout, p.Claimed, p.ClaimTxID, p.ID)
	if err != nil {
		return fmt.Errorf("db: update position: %w", err)
	}
	return nil
}
