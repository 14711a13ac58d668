// Package store persists verification decisions and accepted proofs to
// SQLite for audit. The engine runs fully in memory; this store is an
// optional append-only decision sink behind it.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"lineaged/internal/engine"
	"lineaged/internal/lineage"
)

const schema = `
CREATE TABLE IF NOT EXISTS decisions (
    seq             INTEGER PRIMARY KEY,
    model_id        TEXT NOT NULL,
    reason          TEXT NOT NULL,
    accepted        INTEGER NOT NULL,
    trust_weight    REAL NOT NULL,
    trust_theta     REAL NOT NULL,
    ref_time        INTEGER NOT NULL,
    recorded_at_ns  INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_decisions_model ON decisions(model_id, seq);

CREATE TABLE IF NOT EXISTS accepted_proofs (
    seq          INTEGER PRIMARY KEY REFERENCES decisions(seq),
    model_id     TEXT NOT NULL,
    event_index  INTEGER NOT NULL,
    timestamp    INTEGER NOT NULL,
    payload      BLOB NOT NULL,
    prev_hash    TEXT NOT NULL,
    event_hash   TEXT NOT NULL,
    signature    BLOB NOT NULL,
    anchor_ref   TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_proofs_model ON accepted_proofs(model_id, event_index);
`

// Store is a SQLite-backed decision sink.
type Store struct {
	db    *sql.DB
	nowNs func() int64
}

// Open opens or creates the audit database at the given path.
func Open(path string, nowNs func() int64) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{db: db, nowNs: nowNs}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// RecordDecision implements engine.DecisionSink. Accepted proofs are
// stored alongside their decision in one transaction.
func (s *Store) RecordDecision(d engine.Decision, p lineage.Proof) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO decisions (seq, model_id, reason, accepted, trust_weight, trust_theta, ref_time, recorded_at_ns)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		d.Seq, d.ModelID, string(d.Reason), boolToInt(d.Accepted),
		d.Trust.Weight, d.Trust.Theta, d.RefTime, s.nowNs(),
	)
	if err != nil {
		return fmt.Errorf("insert decision: %w", err)
	}

	if d.Accepted {
		_, err = tx.Exec(
			`INSERT INTO accepted_proofs (seq, model_id, event_index, timestamp, payload, prev_hash, event_hash, signature, anchor_ref)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			d.Seq, p.Event.ModelID, p.Event.Index, p.Event.Timestamp,
			p.Event.Payload, p.Event.PrevHash, p.EventHash, p.Signature, p.AnchorRef,
		)
		if err != nil {
			return fmt.Errorf("insert proof: %w", err)
		}
	}

	return tx.Commit()
}

// Decisions returns an identity's decisions in sequence order.
func (s *Store) Decisions(modelID string) ([]engine.Decision, error) {
	rows, err := s.db.Query(
		`SELECT seq, model_id, reason, accepted, trust_weight, trust_theta, ref_time
		 FROM decisions WHERE model_id = ? ORDER BY seq`,
		modelID,
	)
	if err != nil {
		return nil, fmt.Errorf("query decisions: %w", err)
	}
	defer rows.Close()

	var out []engine.Decision
	for rows.Next() {
		var d engine.Decision
		var reason string
		var accepted int
		if err := rows.Scan(&d.Seq, &d.ModelID, &reason, &accepted,
			&d.Trust.Weight, &d.Trust.Theta, &d.RefTime); err != nil {
			return nil, fmt.Errorf("scan decision: %w", err)
		}
		d.Reason = engine.Reason(reason)
		d.Accepted = accepted != 0
		out = append(out, d)
	}
	return out, rows.Err()
}

// Chain returns an identity's accepted proofs in event order.
func (s *Store) Chain(modelID string) ([]lineage.Proof, error) {
	rows, err := s.db.Query(
		`SELECT event_index, timestamp, payload, prev_hash, event_hash, signature, anchor_ref
		 FROM accepted_proofs WHERE model_id = ? ORDER BY event_index`,
		modelID,
	)
	if err != nil {
		return nil, fmt.Errorf("query proofs: %w", err)
	}
	defer rows.Close()

	var out []lineage.Proof
	for rows.Next() {
		var p lineage.Proof
		p.Event.ModelID = modelID
		if err := rows.Scan(&p.Event.Index, &p.Event.Timestamp, &p.Event.Payload,
			&p.Event.PrevHash, &p.EventHash, &p.Signature, &p.AnchorRef); err != nil {
			return nil, fmt.Errorf("scan proof: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Counts returns per-reason decision counts for an identity.
func (s *Store) Counts(modelID string) (map[engine.Reason]int, error) {
	rows, err := s.db.Query(
		`SELECT reason, COUNT(*) FROM decisions WHERE model_id = ? GROUP BY reason`,
		modelID,
	)
	if err != nil {
		return nil, fmt.Errorf("query counts: %w", err)
	}
	defer rows.Close()

	out := make(map[engine.Reason]int)
	for rows.Next() {
		var reason string
		var n int
		if err := rows.Scan(&reason, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		out[engine.Reason(reason)] = n
	}
	return out, rows.Err()
}

// DumpJSON writes every decision as a JSON array, for offline audit.
func (s *Store) DumpJSON(modelID string) ([]byte, error) {
	decs, err := s.Decisions(modelID)
	if err != nil {
		return nil, err
	}
	return json.MarshalIndent(decs, "", "  ")
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
