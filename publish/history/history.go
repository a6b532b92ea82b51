// Package history keeps an audit log of deployment sessions in SQLite. It is
// never consulted to decide what to deploy.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/cosmo-local-credit/doug/publish/deploy"
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id TEXT PRIMARY KEY,
	mode TEXT NOT NULL,
	registry_name TEXT NOT NULL,
	registry_address TEXT NOT NULL,
	registry_created INTEGER NOT NULL,
	registry_block INTEGER,
	completed INTEGER NOT NULL,
	failed INTEGER NOT NULL,
	started_at TEXT NOT NULL,
	finished_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS contracts (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT NOT NULL,
	name TEXT NOT NULL,
	role TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	address TEXT NOT NULL DEFAULT '',
	block INTEGER,
	tx_hash TEXT NOT NULL DEFAULT '',
	error_kind TEXT NOT NULL DEFAULT '',
	error TEXT NOT NULL DEFAULT '',
	FOREIGN KEY (session_id) REFERENCES sessions(id)
);

CREATE INDEX IF NOT EXISTS contracts_session ON contracts(session_id);
`

const (
	StatusDeployed = "deployed"
	StatusFailed   = "failed"
)

type (
	Store struct {
		db *sql.DB
	}

	SessionSummary struct {
		ID              uuid.UUID
		Mode            string
		RegistryName    string
		RegistryAddress string
		RegistryCreated bool
		RegistryBlock   *uint64
		Completed       int
		Failed          int
		StartedAt       time.Time
		FinishedAt      time.Time
	}

	ContractRecord struct {
		Name      string
		Role      string
		Status    string
		Address   string
		Block     *uint64
		TxHash    string
		ErrorKind string
		Error     string
	}
)

var _ deploy.Recorder = (*Store)(nil)

// Open opens or creates the database at path and applies the schema.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("open history %s: %w", path, err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping history %s: %w", path, err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply history schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Record stores a finished session with one row per child.
func (s *Store) Record(ctx context.Context, session *deploy.Session) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin history tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	mode := ""
	if session.Mode != nil {
		mode = session.Mode.String()
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO sessions (
			id, mode, registry_name, registry_address, registry_created,
			registry_block, completed, failed, started_at, finished_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		session.ID.String(), mode, session.Registry.Name, session.Registry.Address.Hex(),
		session.RegistryCreated, nullBlock(session.RegistryBlock),
		len(session.Completed), len(session.Failures),
		formatTime(session.StartedAt), formatTime(session.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("insert session %s: %w", session.ID, err)
	}

	for _, name := range session.Pending {
		var args []any
		if c, ok := session.Completed[name]; ok {
			args = []any{
				session.ID.String(), name, c.Role.String(), StatusDeployed,
				c.Address.Hex(), nullBlock(c.DeployedAtBlock), c.TxHash.Hex(), "", "",
			}
		} else if f, ok := session.Failures[name]; ok {
			role := ""
			if r, ok := session.Roles[name]; ok {
				role = r.String()
			}
			args = []any{
				session.ID.String(), name, role, StatusFailed,
				"", nil, "", f.Kind.String(), f.Error(),
			}
		} else {
			continue
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO contracts (
				session_id, name, role, status, address, block, tx_hash, error_kind, error
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`, args...)
		if err != nil {
			return fmt.Errorf("insert contract %s: %w", name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit history tx: %w", err)
	}
	return nil
}

// ListSessions returns the most recent sessions first. A limit of zero or
// less returns every session.
func (s *Store) ListSessions(ctx context.Context, limit int) ([]SessionSummary, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, mode, registry_name, registry_address, registry_created,
			registry_block, completed, failed, started_at, finished_at
		FROM sessions
		ORDER BY rowid DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []SessionSummary
	for rows.Next() {
		var (
			sum      SessionSummary
			id       string
			block    sql.NullInt64
			started  string
			finished string
		)
		if err := rows.Scan(&id, &sum.Mode, &sum.RegistryName, &sum.RegistryAddress,
			&sum.RegistryCreated, &block, &sum.Completed, &sum.Failed, &started, &finished); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		if sum.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("parse session id %q: %w", id, err)
		}
		sum.RegistryBlock = blockPtr(block)
		if sum.StartedAt, err = parseTime(started); err != nil {
			return nil, err
		}
		if sum.FinishedAt, err = parseTime(finished); err != nil {
			return nil, err
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}

// Contracts returns the child rows of one session ordered by name.
func (s *Store) Contracts(ctx context.Context, sessionID uuid.UUID) ([]ContractRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, role, status, address, block, tx_hash, error_kind, error
		FROM contracts
		WHERE session_id = ?
		ORDER BY name`, sessionID.String())
	if err != nil {
		return nil, fmt.Errorf("list contracts for %s: %w", sessionID, err)
	}
	defer func() { _ = rows.Close() }()

	var out []ContractRecord
	for rows.Next() {
		var (
			rec   ContractRecord
			block sql.NullInt64
		)
		if err := rows.Scan(&rec.Name, &rec.Role, &rec.Status, &rec.Address, &block,
			&rec.TxHash, &rec.ErrorKind, &rec.Error); err != nil {
			return nil, fmt.Errorf("scan contract: %w", err)
		}
		rec.Block = blockPtr(block)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func nullBlock(b *uint64) sql.NullInt64 {
	if b == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*b), Valid: true}
}

func blockPtr(n sql.NullInt64) *uint64 {
	if !n.Valid {
		return nil
	}
	v := uint64(n.Int64)
	return &v
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t, nil
}
