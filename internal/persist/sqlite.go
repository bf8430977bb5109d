package persist

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/quarryhq/quarry/internal/model"
)

// ErrNotFound is returned when a session id has no persisted snapshot
var ErrNotFound = errors.New("session not persisted")

// Store persists session snapshots to SQLite. Each save replaces the
// session's previous snapshot wholesale, so saving is idempotent and a
// load always reflects the last completed round.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// SessionInfo is one row in the session listing
type SessionInfo struct {
	ID        string    `json:"id"`
	Query     string    `json:"query"`
	Stage     string    `json:"stage"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewStore opens (or creates) the database at path
func NewStore(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Store{db: db}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// initialize creates the required tables
func (s *Store) initialize() error {
	sessionTable := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		query TEXT NOT NULL,
		stage TEXT NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`

	claimTable := `
	CREATE TABLE IF NOT EXISTS claims (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		text TEXT NOT NULL,
		topic_key TEXT NOT NULL,
		reporting_backends TEXT NOT NULL,
		confidence REAL NOT NULL,
		superseded_by TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_claims_session ON claims(session_id, seq);
	`

	citationTable := `
	CREATE TABLE IF NOT EXISTS citations (
		session_id TEXT NOT NULL,
		claim_id TEXT NOT NULL,
		position INTEGER NOT NULL,
		backend TEXT NOT NULL,
		url TEXT NOT NULL DEFAULT '',
		source_id TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_citations_claim ON citations(session_id, claim_id, position);
	`

	conflictTable := `
	CREATE TABLE IF NOT EXISTS conflicts (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		position INTEGER NOT NULL,
		topic_key TEXT NOT NULL,
		resolution TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_conflicts_session ON conflicts(session_id, position);
	`

	memberTable := `
	CREATE TABLE IF NOT EXISTS conflict_members (
		session_id TEXT NOT NULL,
		conflict_id TEXT NOT NULL,
		position INTEGER NOT NULL,
		claim_id TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_conflict_members ON conflict_members(session_id, conflict_id, position);
	`

	sourceTable := `
	CREATE TABLE IF NOT EXISTS sources (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		position INTEGER NOT NULL,
		kind TEXT NOT NULL,
		origin TEXT NOT NULL,
		text TEXT NOT NULL DEFAULT '',
		metadata TEXT NOT NULL DEFAULT '{}'
	);
	CREATE INDEX IF NOT EXISTS idx_sources_session ON sources(session_id, position);
	`

	summaryTable := `
	CREATE TABLE IF NOT EXISTS summaries (
		session_id TEXT NOT NULL,
		backend TEXT NOT NULL,
		text TEXT NOT NULL,
		PRIMARY KEY (session_id, backend)
	);
	`

	for _, table := range []string{sessionTable, claimTable, citationTable, conflictTable, memberTable, sourceTable, summaryTable} {
		if _, err := s.db.Exec(table); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}
	return nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveSnapshot writes one session's full snapshot, replacing any previous
// rows for that session. Satisfies session.Saver.
func (s *Store) SaveSnapshot(ctx context.Context, snap model.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"INSERT OR REPLACE INTO sessions (id, query, stage, updated_at) VALUES (?, ?, ?, CURRENT_TIMESTAMP)",
		snap.SessionID, snap.Query, string(snap.Stage),
	); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}

	for _, table := range []string{"claims", "citations", "conflicts", "conflict_members", "sources", "summaries"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE session_id = ?", snap.SessionID); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	for _, c := range snap.Claims {
		backends, err := json.Marshal(c.ReportingBackends)
		if err != nil {
			return fmt.Errorf("failed to encode backends for claim %s: %w", c.ID, err)
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO claims (id, session_id, seq, text, topic_key, reporting_backends, confidence, superseded_by) VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
			c.ID, snap.SessionID, c.Seq, c.Text, c.TopicKey, string(backends), c.Confidence, c.SupersededBy,
		); err != nil {
			return fmt.Errorf("failed to save claim %s: %w", c.ID, err)
		}
		for i, cit := range c.Citations {
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO citations (session_id, claim_id, position, backend, url, source_id) VALUES (?, ?, ?, ?, ?, ?)",
				snap.SessionID, c.ID, i, cit.Backend, cit.URL, cit.SourceID,
			); err != nil {
				return fmt.Errorf("failed to save citation for claim %s: %w", c.ID, err)
			}
		}
	}

	for i, cf := range snap.Conflicts {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO conflicts (id, session_id, position, topic_key, resolution) VALUES (?, ?, ?, ?, ?)",
			cf.ID, snap.SessionID, i, cf.TopicKey, cf.Resolution,
		); err != nil {
			return fmt.Errorf("failed to save conflict %s: %w", cf.ID, err)
		}
		for j, member := range cf.MemberClaimIDs {
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO conflict_members (session_id, conflict_id, position, claim_id) VALUES (?, ?, ?, ?)",
				snap.SessionID, cf.ID, j, member,
			); err != nil {
				return fmt.Errorf("failed to save conflict member: %w", err)
			}
		}
	}

	for i, src := range snap.Sources {
		metadata, err := json.Marshal(src.Metadata)
		if err != nil {
			return fmt.Errorf("failed to encode metadata for source %s: %w", src.ID, err)
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO sources (id, session_id, position, kind, origin, text, metadata) VALUES (?, ?, ?, ?, ?, ?, ?)",
			src.ID, snap.SessionID, i, string(src.Kind), string(src.Origin), src.Text, string(metadata),
		); err != nil {
			return fmt.Errorf("failed to save source %s: %w", src.ID, err)
		}
	}

	for _, sum := range snap.Summaries {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO summaries (session_id, backend, text) VALUES (?, ?, ?)",
			snap.SessionID, sum.Backend, sum.Text,
		); err != nil {
			return fmt.Errorf("failed to save summary for %s: %w", sum.Backend, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit snapshot: %w", err)
	}
	return nil
}

// LoadSnapshot reconstructs a session's last saved snapshot
func (s *Store) LoadSnapshot(ctx context.Context, sessionID string) (model.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := model.Snapshot{SessionID: sessionID}

	var stage string
	err := s.db.QueryRowContext(ctx,
		"SELECT query, stage FROM sessions WHERE id = ?", sessionID,
	).Scan(&snap.Query, &stage)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Snapshot{}, ErrNotFound
	}
	if err != nil {
		return model.Snapshot{}, fmt.Errorf("failed to load session: %w", err)
	}
	snap.Stage = model.Stage(stage)

	citations, err := s.loadCitations(ctx, sessionID)
	if err != nil {
		return model.Snapshot{}, err
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, seq, text, topic_key, reporting_backends, confidence, superseded_by FROM claims WHERE session_id = ? ORDER BY seq",
		sessionID,
	)
	if err != nil {
		return model.Snapshot{}, fmt.Errorf("failed to load claims: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var c model.Claim
		var backends string
		if err := rows.Scan(&c.ID, &c.Seq, &c.Text, &c.TopicKey, &backends, &c.Confidence, &c.SupersededBy); err != nil {
			return model.Snapshot{}, fmt.Errorf("failed to scan claim: %w", err)
		}
		if err := json.Unmarshal([]byte(backends), &c.ReportingBackends); err != nil {
			return model.Snapshot{}, fmt.Errorf("failed to decode backends for claim %s: %w", c.ID, err)
		}
		c.Citations = citations[c.ID]
		snap.Claims = append(snap.Claims, c)
	}
	if err := rows.Err(); err != nil {
		return model.Snapshot{}, fmt.Errorf("failed to read claims: %w", err)
	}

	if snap.Conflicts, err = s.loadConflicts(ctx, sessionID); err != nil {
		return model.Snapshot{}, err
	}
	if snap.Sources, err = s.loadSources(ctx, sessionID); err != nil {
		return model.Snapshot{}, err
	}
	if snap.Summaries, err = s.loadSummaries(ctx, sessionID); err != nil {
		return model.Snapshot{}, err
	}

	return snap, nil
}

func (s *Store) loadCitations(ctx context.Context, sessionID string) (map[string][]model.Citation, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT claim_id, backend, url, source_id FROM citations WHERE session_id = ? ORDER BY claim_id, position",
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load citations: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]model.Citation)
	for rows.Next() {
		var cit model.Citation
		if err := rows.Scan(&cit.ClaimID, &cit.Backend, &cit.URL, &cit.SourceID); err != nil {
			return nil, fmt.Errorf("failed to scan citation: %w", err)
		}
		out[cit.ClaimID] = append(out[cit.ClaimID], cit)
	}
	return out, rows.Err()
}

func (s *Store) loadConflicts(ctx context.Context, sessionID string) ([]model.Conflict, error) {
	memberRows, err := s.db.QueryContext(ctx,
		"SELECT conflict_id, claim_id FROM conflict_members WHERE session_id = ? ORDER BY conflict_id, position",
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load conflict members: %w", err)
	}
	defer memberRows.Close()

	members := make(map[string][]string)
	for memberRows.Next() {
		var conflictID, claimID string
		if err := memberRows.Scan(&conflictID, &claimID); err != nil {
			return nil, fmt.Errorf("failed to scan conflict member: %w", err)
		}
		members[conflictID] = append(members[conflictID], claimID)
	}
	if err := memberRows.Err(); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, topic_key, resolution FROM conflicts WHERE session_id = ? ORDER BY position",
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load conflicts: %w", err)
	}
	defer rows.Close()

	var out []model.Conflict
	for rows.Next() {
		var cf model.Conflict
		if err := rows.Scan(&cf.ID, &cf.TopicKey, &cf.Resolution); err != nil {
			return nil, fmt.Errorf("failed to scan conflict: %w", err)
		}
		cf.MemberClaimIDs = members[cf.ID]
		out = append(out, cf)
	}
	return out, rows.Err()
}

func (s *Store) loadSources(ctx context.Context, sessionID string) ([]model.Source, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, kind, origin, text, metadata FROM sources WHERE session_id = ? ORDER BY position",
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load sources: %w", err)
	}
	defer rows.Close()

	var out []model.Source
	for rows.Next() {
		var src model.Source
		var kind, origin, metadata string
		if err := rows.Scan(&src.ID, &kind, &origin, &src.Text, &metadata); err != nil {
			return nil, fmt.Errorf("failed to scan source: %w", err)
		}
		src.Kind = model.SourceKind(kind)
		src.Origin = model.SourceOrigin(origin)
		if metadata != "" && metadata != "null" {
			if err := json.Unmarshal([]byte(metadata), &src.Metadata); err != nil {
				return nil, fmt.Errorf("failed to decode metadata for source %s: %w", src.ID, err)
			}
		}
		out = append(out, src)
	}
	return out, rows.Err()
}

func (s *Store) loadSummaries(ctx context.Context, sessionID string) ([]model.BackendSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT backend, text FROM summaries WHERE session_id = ? ORDER BY backend",
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load summaries: %w", err)
	}
	defer rows.Close()

	var out []model.BackendSummary
	for rows.Next() {
		var sum model.BackendSummary
		if err := rows.Scan(&sum.Backend, &sum.Text); err != nil {
			return nil, fmt.Errorf("failed to scan summary: %w", err)
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}

// ListSessions returns persisted sessions, most recently updated first
func (s *Store) ListSessions(ctx context.Context) ([]SessionInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, query, stage, updated_at FROM sessions ORDER BY updated_at DESC, id",
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionInfo
	for rows.Next() {
		var info SessionInfo
		if err := rows.Scan(&info.ID, &info.Query, &info.Stage, &info.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		out = append(out, info)
	}
	return out, rows.Err()
}
