package db

import (
	"database/sql"
	"fmt"

	"github.com/rawblock/anchor-engine/pkg/models"
)

// GetTokenByTicker satisfies token.Store.
func (s *Store) GetTokenByTicker(ticker string) (models.Token, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var t models.Token
	err := s.db.QueryRow(`
		SELECT id, ticker, decimals, max_supply, mint_limit, minted, burned, flags, deploy_txid, deploy_vout
		FROM tokens WHERE ticker = ?
	`, ticker).Scan(&t.ID, &t.Ticker, &t.Decimals, &t.MaxSupply, &t.MintLimit, &t.Minted, &t.Burned, &t.Flags, &t.DeployTxID, &t.DeployVout)
	if err == sql.ErrNoRows {
		return models.Token{}, false, nil
	}
	if err != nil {
		return models.Token{}, false, fmt.Errorf("db: get token by ticker: %w", err)
	}
	return t, true, nil
}

// InsertToken writes a newly deployed token's parameters (§3 "Token deploy").
func (s *Store) InsertToken(t models.Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO tokens (ticker, decimals, max_supply, mint_limit, minted, burned, flags, deploy_txid, deploy_vout)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, t.Ticker, t.Decimals, t.MaxSupply, t.MintLimit, t.Minted, t.Burned, t.Flags, t.DeployTxID, t.DeployVout)
	if err != nil {
		return fmt.Errorf("db: insert token: %w", err)
	}
	return nil
}

// UpdateSupply persists the running minted/burned counters after a Mint or
// Burn operation.
func (s *Store) UpdateSupply(ticker string, minted, burned uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		UPDATE tokens SET minted = ?, burned = ? WHERE ticker = ?
	`, minted, burned, ticker)
	if err != nil {
		return fmt.Errorf("db: update token supply: %w", err)
	}
	return nil
}

// LiveUTXOsForAnchors resolves a Transfer/Split message's input anchors to
// their still-unspent token UTXOs, matched by txid prefix and vout
// (mirroring the original's find_utxo_by_prefix).
func (s *Store) LiveUTXOsForAnchors(ticker string, anchors []models.Anchor) ([]models.TokenUTXO, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.TokenUTXO
	for _, a := range anchors {
		rows, err := s.db.Query(`
			SELECT u.token_id, u.txid, u.vout, u.amount, u.owner_address, u.spent_by_txid, u.spent_by_vout, u.spent
			FROM token_utxos u
			JOIN tokens t ON t.id = u.token_id
			WHERE t.ticker = ? AND u.txid_prefix = ? AND u.vout = ? AND u.spent = 0
		`, ticker, a.Prefix[:], a.Vout)
		if err != nil {
			return nil, fmt.Errorf("db: live utxos for anchors: %w", err)
		}
		for rows.Next() {
			var u models.TokenUTXO
			if err := rows.Scan(&u.TokenID, &u.TxID, &u.Vout, &u.Amount, &u.OwnerAddress, &u.SpentByTxID, &u.SpentByVout, &u.Spent); err != nil {
				rows.Close()
				return nil, err
			}
			out = append(out, u)
		}
		rows.Close()
	}
	return out, nil
}

// InsertUTXO records a newly created token allocation.
func (s *Store) InsertUTXO(u models.TokenUTXO) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prefix := models.TxIDPrefix([]byte(u.TxID))
	_, err := s.db.Exec(`
		INSERT INTO token_utxos (token_id, txid, txid_prefix, vout, amount, owner_address, spent, spent_by_txid, spent_by_vout)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (token_id, txid, vout) DO NOTHING
	`, u.TokenID, u.TxID, prefix[:], u.Vout, u.Amount, u.OwnerAddress, u.Spent, u.SpentByTxID, u.SpentByVout)
	if err != nil {
		return fmt.Errorf("db: insert token utxo: %w", err)
	}
	return nil
}

// MarkSpent flags a token UTXO as consumed by a later Transfer/Split/Burn.
func (s *Store) MarkSpent(tokenID int64, txid string, vout uint16, spentByTxID string, spentByVout uint16) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		UPDATE token_utxos SET spent = 1, spent_by_txid = ?, spent_by_vout = ?
		WHERE token_id = ? AND txid = ? AND vout = ?
	`, spentByTxID, spentByVout, tokenID, txid, vout)
	if err != nil {
		return fmt.Errorf("db: mark token utxo spent: %w", err)
	}
	return nil
}
