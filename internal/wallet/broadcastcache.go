package wallet

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// broadcastCache is a local SQLite index of every ANCHOR message this
// wallet has broadcast, kept alongside (not instead of) the internal/db graph
// store: that store indexes confirmed chain state for every node's messages,
// this cache answers "what have I sent and is it still unconfirmed" without
// a round trip, the way the reference node keeps wallet_utxos.db separate
// from its peer-shared ledger. Grounded on
// Klingon-tech-klingdex/internal/storage's sqlite schema/migration idiom.
type broadcastCache struct {
	db *sql.DB
}

func openBroadcastCache(dataDir string) (*broadcastCache, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("wallet: create data dir: %w", err)
	}
	dbPath := filepath.Join(dataDir, "wallet_broadcasts.db")

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("wallet: open broadcast cache: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("wallet: ping broadcast cache: %w", err)
	}
	db.SetMaxOpenConns(1)

	const schema = `
	CREATE TABLE IF NOT EXISTS broadcasts (
		txid TEXT PRIMARY KEY,
		kind INTEGER NOT NULL,
		anchor_vout INTEGER NOT NULL,
		carrier_type TEXT NOT NULL,
		commit_txid TEXT,
		fee_rate_sat_vb REAL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_broadcasts_kind ON broadcasts(kind);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("wallet: init broadcast cache schema: %w", err)
	}
	return &broadcastCache{db: db}, nil
}

// record stores a completed broadcast. Failures are logged, not returned —
// the cache is a convenience index, never a requirement for the broadcast
// itself to have succeeded.
func (c *broadcastCache) record(result BroadcastResult, kind uint8, feeRateSatVB float64) {
	if c == nil {
		return
	}
	_, err := c.db.Exec(
		`INSERT INTO broadcasts (txid, kind, anchor_vout, carrier_type, commit_txid, fee_rate_sat_vb, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(txid) DO NOTHING`,
		result.TxID, kind, result.AnchorVout, result.CarrierType.String(), result.CommitTxID, feeRateSatVB, time.Now().Unix(),
	)
	if err != nil {
		log.Warnf("failed to record broadcast %s in local cache: %v", result.TxID, err)
	}
}

// recentByKind lists the most recently broadcast txids of a given kind,
// newest first — used to let a caller resume polling its own message's
// confirmation status without needing the anchor graph to have resolved it
// yet.
func (c *broadcastCache) recentByKind(kind uint8, limit int) ([]string, error) {
	if c == nil {
		return nil, nil
	}
	rows, err := c.db.Query(
		`SELECT txid FROM broadcasts WHERE kind = ? ORDER BY created_at DESC LIMIT ?`, kind, limit)
	if err != nil {
		return nil, fmt.Errorf("wallet: query broadcast cache: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var txid string
		if err := rows.Scan(&txid); err != nil {
			return nil, err
		}
		out = append(out, txid)
	}
	return out, rows.Err()
}

func (c *broadcastCache) close() error {
	if c == nil {
		return nil
	}
	return c.db.Close()
}
