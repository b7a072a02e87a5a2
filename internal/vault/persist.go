package vault

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // pure-Go driver, registered as "sqlite"

	"caleon/internal/types"
)

// SQLitePersister mirrors shards and the audit log to an embedded SQLite
// database. The audit table is append-only; reload reproduces the logical
// sequence in timestamp order.
type SQLitePersister struct {
	db *sql.DB
}

const persistSchema = `
CREATE TABLE IF NOT EXISTS shards (
	memory_id      TEXT PRIMARY KEY,
	payload        TEXT NOT NULL,
	resonance      TEXT NOT NULL,
	created_at     INTEGER NOT NULL,
	last_modified  INTEGER NOT NULL,
	hash_signature TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS audit_log (
	seq        INTEGER PRIMARY KEY AUTOINCREMENT,
	ts         INTEGER NOT NULL,
	action     TEXT NOT NULL,
	memory_id  TEXT NOT NULL,
	verdict    TEXT NOT NULL,
	mode       TEXT,
	resonance  TEXT,
	drift      REAL NOT NULL,
	adj_moral  REAL NOT NULL
);
`

// OpenSQLitePersister opens (creating if needed) the vault database at path.
func OpenSQLitePersister(path string) (*SQLitePersister, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create vault dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open vault db: %w", err)
	}
	// Single writer; serialized access keeps the append-only discipline simple.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(persistSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("vault schema: %w", err)
	}

	return &SQLitePersister{db: db}, nil
}

// AppendAudit appends one entry to the audit table.
func (p *SQLitePersister) AppendAudit(entry types.AuditEntry) error {
	var resJSON any
	if entry.Resonance != nil {
		data, err := json.Marshal(entry.Resonance)
		if err != nil {
			return fmt.Errorf("marshal resonance: %w", err)
		}
		resJSON = string(data)
	}

	_, err := p.db.Exec(
		`INSERT INTO audit_log (ts, action, memory_id, verdict, mode, resonance, drift, adj_moral)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.Timestamp.UnixNano(),
		string(entry.Action),
		entry.MemoryID,
		string(entry.Verdict),
		entry.Mode,
		resJSON,
		entry.EthicalDrift,
		entry.AdjustedMoralCharge,
	)
	return err
}

// SaveShard upserts a shard row.
func (p *SQLitePersister) SaveShard(shard types.MemoryShard) error {
	payload, err := types.CanonicalJSON(shard.Payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	resonance, err := json.Marshal(shard.Resonance)
	if err != nil {
		return fmt.Errorf("marshal resonance: %w", err)
	}

	_, err = p.db.Exec(
		`INSERT INTO shards (memory_id, payload, resonance, created_at, last_modified, hash_signature)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(memory_id) DO UPDATE SET
			payload = excluded.payload,
			resonance = excluded.resonance,
			last_modified = excluded.last_modified,
			hash_signature = excluded.hash_signature`,
		shard.MemoryID,
		string(payload),
		string(resonance),
		shard.CreatedAt.UnixNano(),
		shard.LastModified.UnixNano(),
		shard.HashSignature,
	)
	return err
}

// DeleteShard removes a shard row. The audit trail of the deletion stays.
func (p *SQLitePersister) DeleteShard(memoryID string) error {
	_, err := p.db.Exec(`DELETE FROM shards WHERE memory_id = ?`, memoryID)
	return err
}

// Load reads every shard and the full audit sequence in insertion order.
func (p *SQLitePersister) Load() ([]types.MemoryShard, []types.AuditEntry, error) {
	shards, err := p.loadShards()
	if err != nil {
		return nil, nil, err
	}
	audit, err := p.loadAudit()
	if err != nil {
		return nil, nil, err
	}
	return shards, audit, nil
}

func (p *SQLitePersister) loadShards() ([]types.MemoryShard, error) {
	rows, err := p.db.Query(
		`SELECT memory_id, payload, resonance, created_at, last_modified, hash_signature FROM shards`)
	if err != nil {
		return nil, fmt.Errorf("load shards: %w", err)
	}
	defer rows.Close()

	var out []types.MemoryShard
	for rows.Next() {
		var (
			shard                  types.MemoryShard
			payloadJSON, resJSON   string
			createdNS, modifiedNS  int64
		)
		if err := rows.Scan(&shard.MemoryID, &payloadJSON, &resJSON, &createdNS, &modifiedNS, &shard.HashSignature); err != nil {
			return nil, fmt.Errorf("scan shard: %w", err)
		}
		if err := json.Unmarshal([]byte(payloadJSON), &shard.Payload); err != nil {
			return nil, fmt.Errorf("decode payload for %q: %w", shard.MemoryID, err)
		}
		if err := json.Unmarshal([]byte(resJSON), &shard.Resonance); err != nil {
			return nil, fmt.Errorf("decode resonance for %q: %w", shard.MemoryID, err)
		}
		shard.CreatedAt = time.Unix(0, createdNS)
		shard.LastModified = time.Unix(0, modifiedNS)
		out = append(out, shard)
	}
	return out, rows.Err()
}

func (p *SQLitePersister) loadAudit() ([]types.AuditEntry, error) {
	rows, err := p.db.Query(
		`SELECT ts, action, memory_id, verdict, mode, resonance, drift, adj_moral
		 FROM audit_log ORDER BY seq ASC`)
	if err != nil {
		return nil, fmt.Errorf("load audit: %w", err)
	}
	defer rows.Close()

	var out []types.AuditEntry
	for rows.Next() {
		var (
			entry   types.AuditEntry
			ts      int64
			mode    sql.NullString
			resJSON sql.NullString
			action  string
			verdict string
		)
		if err := rows.Scan(&ts, &action, &entry.MemoryID, &verdict, &mode, &resJSON, &entry.EthicalDrift, &entry.AdjustedMoralCharge); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		entry.Timestamp = time.Unix(0, ts)
		entry.Action = types.AuditAction(action)
		entry.Verdict = types.AuditVerdict(verdict)
		entry.Mode = mode.String
		if resJSON.Valid && resJSON.String != "" {
			var tag types.ResonanceTag
			if err := json.Unmarshal([]byte(resJSON.String), &tag); err != nil {
				return nil, fmt.Errorf("decode audit resonance: %w", err)
			}
			entry.Resonance = &tag
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

// Close releases the database handle.
func (p *SQLitePersister) Close() error {
	return p.db.Close()
}
