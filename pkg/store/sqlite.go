package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/SolLabsHQ/solserver-sub002/pkg/contracts"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists the control plane state in a single sqlite file.
// Trace sequence assignment is guarded by seqMu so appends stay monotonic
// per transmission even when the driver serializes writes differently.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string

	seqMu sync.Mutex
}

// OpenSQLite opens (or creates) the database at path and runs migrations.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}
	// Single writer: sqlite locks at the connection level anyway.
	db.SetMaxOpenConns(1)
	s := &SQLiteStore{db: db, dbPath: path}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQLiteStore wraps an existing *sql.DB (tests use sqlmock here).
func NewSQLiteStore(db *sql.DB, dbPath string) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db, dbPath: dbPath}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS transmissions (
			transmission_id TEXT PRIMARY KEY,
			thread_id TEXT NOT NULL,
			client_request_id TEXT,
			forced_persona TEXT,
			notification_policy TEXT NOT NULL,
			status TEXT NOT NULL,
			status_code INTEGER NOT NULL DEFAULT 0,
			retryable INTEGER NOT NULL DEFAULT 0,
			error_code TEXT,
			error_detail TEXT,
			output_envelope JSON,
			envelope_hash TEXT,
			chat_result TEXT,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS delivery_attempts (
			transmission_id TEXT NOT NULL,
			attempt INTEGER NOT NULL,
			provider TEXT,
			model TEXT,
			status TEXT NOT NULL,
			error_code TEXT,
			latency_ms INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS usage (
			transmission_id TEXT NOT NULL,
			provider TEXT,
			model TEXT,
			prompt_chars INTEGER NOT NULL DEFAULT 0,
			completion_chars INTEGER NOT NULL DEFAULT 0,
			attempts INTEGER NOT NULL DEFAULT 0,
			recorded_at DATETIME NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS trace_events (
			id TEXT PRIMARY KEY,
			trace_run_id TEXT NOT NULL,
			transmission_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			actor TEXT,
			phase TEXT NOT NULL,
			status TEXT NOT NULL,
			summary TEXT,
			metadata JSON,
			timestamp DATETIME NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_trace_events_txn
			ON trace_events (transmission_id, seq);`,
		`CREATE TABLE IF NOT EXISTS evidence (
			transmission_id TEXT PRIMARY KEY,
			payload JSON NOT NULL,
			created_at DATETIME NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS thread_memento_latest (
			thread_id TEXT PRIMARY KEY,
			payload JSON NOT NULL,
			updated_at DATETIME NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS memory_artifacts (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			title TEXT,
			text TEXT,
			tags JSON,
			lifecycle TEXT NOT NULL,
			embedding JSON
		);`,
		`CREATE INDEX IF NOT EXISTS idx_memory_artifacts_user
			ON memory_artifacts (user_id, lifecycle);`,
		`CREATE TABLE IF NOT EXISTS topology_key (
			singleton INTEGER PRIMARY KEY CHECK (singleton = 1),
			topology_key TEXT NOT NULL,
			created_at_ms INTEGER NOT NULL,
			created_by TEXT NOT NULL,
			db_path TEXT NOT NULL
		);`,
	}
	for _, q := range stmts {
		if _, err := s.db.ExecContext(context.Background(), q); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) CreateTransmission(ctx context.Context, t *contracts.Transmission) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO transmissions (
			transmission_id, thread_id, client_request_id, forced_persona,
			notification_policy, status, status_code, retryable,
			error_code, error_detail, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.ThreadID, t.ClientRequestID, t.ForcedPersona,
		string(t.NotificationPolicy), string(t.Status), t.StatusCode, boolInt(t.Retryable),
		t.ErrorCode, t.ErrorDetail, fmtTime(t.CreatedAt), fmtTime(t.UpdatedAt))
	return err
}

func (s *SQLiteStore) GetTransmission(ctx context.Context, id string) (*contracts.Transmission, error) {
	row := s.db.QueryRowContext(ctx, `SELECT transmission_id, thread_id, client_request_id,
			forced_persona, notification_policy, status, status_code, retryable,
			error_code, error_detail, envelope_hash, created_at, updated_at
		FROM transmissions WHERE transmission_id = ?`, id)

	var t contracts.Transmission
	var policy, status, createdAt, updatedAt string
	var clientReq, persona, errCode, errDetail, envHash sql.NullString
	var retryable int
	err := row.Scan(&t.ID, &t.ThreadID, &clientReq, &persona, &policy, &status,
		&t.StatusCode, &retryable, &errCode, &errDetail, &envHash, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	t.ClientRequestID = clientReq.String
	t.ForcedPersona = persona.String
	t.ErrorCode = errCode.String
	t.ErrorDetail = errDetail.String
	t.EnvelopeHash = envHash.String
	t.NotificationPolicy = contracts.NotificationPolicy(policy)
	t.Status = contracts.TransmissionStatus(status)
	t.Retryable = retryable != 0
	t.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	t.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return &t, nil
}

func (s *SQLiteStore) UpdateTransmissionStatus(ctx context.Context, id string, status contracts.TransmissionStatus, statusCode int, retryable bool, errorCode, errorDetail string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE transmissions
		SET status = ?, status_code = ?, retryable = ?, error_code = ?, error_detail = ?, updated_at = ?
		WHERE transmission_id = ?`,
		string(status), statusCode, boolInt(retryable), errorCode, errorDetail, fmtTime(time.Now()), id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *SQLiteStore) UpdateTransmissionPolicy(ctx context.Context, id string, policy contracts.NotificationPolicy) error {
	res, err := s.db.ExecContext(ctx, `UPDATE transmissions
		SET notification_policy = ?, updated_at = ? WHERE transmission_id = ?`,
		string(policy), fmtTime(time.Now()), id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *SQLiteStore) SetTransmissionOutputEnvelope(ctx context.Context, id string, envelopeJSON []byte, envelopeHash string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE transmissions
		SET output_envelope = ?, envelope_hash = ?, updated_at = ? WHERE transmission_id = ?`,
		string(envelopeJSON), envelopeHash, fmtTime(time.Now()), id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *SQLiteStore) SetChatResult(ctx context.Context, id string, assistantText string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE transmissions
		SET chat_result = ?, updated_at = ? WHERE transmission_id = ?`,
		assistantText, fmtTime(time.Now()), id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *SQLiteStore) AppendDeliveryAttempt(ctx context.Context, a *contracts.DeliveryAttempt) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO delivery_attempts (
			transmission_id, attempt, provider, model, status, error_code, latency_ms, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.TransmissionID, a.Attempt, a.Provider, a.Model, a.Status, a.ErrorCode, a.LatencyMs, fmtTime(a.CreatedAt))
	return err
}

func (s *SQLiteStore) RecordUsage(ctx context.Context, u *contracts.UsageRecord) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO usage (
			transmission_id, provider, model, prompt_chars, completion_chars, attempts, recorded_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		u.TransmissionID, u.Provider, u.Model, u.PromptChars, u.CompletionChars, u.Attempts, fmtTime(u.RecordedAt))
	return err
}

func (s *SQLiteStore) AppendTraceEvent(ctx context.Context, ev *contracts.TraceEvent) error {
	s.seqMu.Lock()
	defer s.seqMu.Unlock()

	var maxSeq sql.NullInt64
	row := s.db.QueryRowContext(ctx,
		`SELECT MAX(seq) FROM trace_events WHERE transmission_id = ?`, ev.TransmissionID)
	if err := row.Scan(&maxSeq); err != nil {
		return err
	}
	ev.Seq = uint64(maxSeq.Int64) + 1
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	metaJSON, _ := json.Marshal(ev.Metadata)

	_, err := s.db.ExecContext(ctx, `INSERT INTO trace_events (
			id, trace_run_id, transmission_id, seq, actor, phase, status, summary, metadata, timestamp
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.TraceRunID, ev.TransmissionID, ev.Seq, ev.Actor,
		string(ev.Phase), ev.Status, ev.Summary, string(metaJSON), fmtTime(ev.Timestamp))
	return err
}

func (s *SQLiteStore) GetTraceEvents(ctx context.Context, transmissionID string, limit int) ([]contracts.TraceEvent, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id, trace_run_id, transmission_id, seq,
			actor, phase, status, summary, metadata, timestamp
		FROM trace_events WHERE transmission_id = ? ORDER BY seq ASC LIMIT ?`,
		transmissionID, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var events []contracts.TraceEvent
	for rows.Next() {
		var ev contracts.TraceEvent
		var phase, ts string
		var metaJSON sql.NullString
		if err := rows.Scan(&ev.ID, &ev.TraceRunID, &ev.TransmissionID, &ev.Seq,
			&ev.Actor, &phase, &ev.Status, &ev.Summary, &metaJSON, &ts); err != nil {
			return nil, err
		}
		ev.Phase = contracts.Phase(phase)
		if metaJSON.Valid && metaJSON.String != "" && metaJSON.String != "null" {
			_ = json.Unmarshal([]byte(metaJSON.String), &ev.Metadata)
		}
		ev.Timestamp, _ = time.Parse(time.RFC3339Nano, ts)
		events = append(events, ev)
	}
	return events, rows.Err()
}

func (s *SQLiteStore) GetTraceSummary(ctx context.Context, transmissionID string) (*contracts.TraceSummary, error) {
	events, err := s.GetTraceEvents(ctx, transmissionID, 0)
	if err != nil {
		return nil, err
	}
	sum := &contracts.TraceSummary{}
	seen := make(map[string]bool)
	for _, ev := range events {
		if sum.TraceRunID == "" {
			sum.TraceRunID = ev.TraceRunID
		}
		sum.Events++
		if !seen[string(ev.Phase)] {
			seen[string(ev.Phase)] = true
			sum.Phases = append(sum.Phases, string(ev.Phase))
		}
		if ev.Status == "failed" {
			sum.Failed = true
		}
	}
	return sum, nil
}

func (s *SQLiteStore) SaveEvidence(ctx context.Context, transmissionID string, ev *contracts.Evidence) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO evidence (transmission_id, payload, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT (transmission_id) DO UPDATE SET payload = excluded.payload`,
		transmissionID, string(payload), fmtTime(time.Now()))
	return err
}

func (s *SQLiteStore) SearchMemoryArtifactsLexical(ctx context.Context, userID string, terms []string, lifecycle string, limit int) ([]MemoryArtifact, error) {
	candidates, err := s.loadArtifacts(ctx, userID, lifecycle)
	if err != nil {
		return nil, err
	}
	return rankLexical(terms, candidates, limit), nil
}

func (s *SQLiteStore) SearchMemoryArtifactsVector(ctx context.Context, userID string, vector []float32, lifecycle string, limit int, maxDistance float64) ([]MemoryArtifact, error) {
	candidates, err := s.loadArtifacts(ctx, userID, lifecycle)
	if err != nil {
		return nil, err
	}
	var hits []MemoryArtifact
	for _, a := range candidates {
		if len(a.Embedding) == 0 {
			continue
		}
		d := cosineDistance(vector, a.Embedding)
		if maxDistance > 0 && d > maxDistance {
			continue
		}
		a.Distance = d
		hits = append(hits, a)
	}
	// Nearest first.
	for i := 1; i < len(hits); i++ {
		for j := i; j > 0 && hits[j].Distance < hits[j-1].Distance; j-- {
			hits[j], hits[j-1] = hits[j-1], hits[j]
		}
	}
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// UpsertMemoryArtifact writes a searchable memory row.
func (s *SQLiteStore) UpsertMemoryArtifact(ctx context.Context, a *MemoryArtifact) error {
	tags, _ := json.Marshal(a.Tags)
	emb, _ := json.Marshal(a.Embedding)
	_, err := s.db.ExecContext(ctx, `INSERT INTO memory_artifacts (id, user_id, title, text, tags, lifecycle, embedding)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			title = excluded.title, text = excluded.text, tags = excluded.tags,
			lifecycle = excluded.lifecycle, embedding = excluded.embedding`,
		a.ID, a.UserID, a.Title, a.Text, string(tags), a.Lifecycle, string(emb))
	return err
}

func (s *SQLiteStore) loadArtifacts(ctx context.Context, userID, lifecycle string) ([]MemoryArtifact, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, user_id, title, text, tags, lifecycle, embedding
		FROM memory_artifacts WHERE user_id = ? AND lifecycle = ?`, userID, lifecycle)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []MemoryArtifact
	for rows.Next() {
		var a MemoryArtifact
		var tags, emb sql.NullString
		if err := rows.Scan(&a.ID, &a.UserID, &a.Title, &a.Text, &tags, &a.Lifecycle, &emb); err != nil {
			return nil, err
		}
		if tags.Valid {
			_ = json.Unmarshal([]byte(tags.String), &a.Tags)
		}
		if emb.Valid {
			_ = json.Unmarshal([]byte(emb.String), &a.Embedding)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) GetThreadMementoLatest(ctx context.Context, threadID string) (*contracts.ThreadMementoLatest, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT payload FROM thread_memento_latest WHERE thread_id = ?`, threadID)
	var payload string
	err := row.Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var m contracts.ThreadMementoLatest
	if err := json.Unmarshal([]byte(payload), &m); err != nil {
		return nil, fmt.Errorf("decode memento for thread %s: %w", threadID, err)
	}
	return &m, nil
}

func (s *SQLiteStore) UpsertThreadMementoLatest(ctx context.Context, m *contracts.ThreadMementoLatest) error {
	payload, err := json.Marshal(m)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO thread_memento_latest (thread_id, payload, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (thread_id) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`,
		m.ThreadID, string(payload), fmtTime(time.Now()))
	return err
}

func (s *SQLiteStore) EnsureTopologyKeyPrimary(ctx context.Context, createdBy, dbPath string) (*TopologyKey, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT topology_key, created_at_ms, created_by, db_path FROM topology_key WHERE singleton = 1`)
	var tk TopologyKey
	err := row.Scan(&tk.TopologyKey, &tk.CreatedAtMs, &tk.CreatedBy, &tk.DBPath)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		tk = TopologyKey{
			TopologyKey: uuid.NewString(),
			CreatedAtMs: time.Now().UnixMilli(),
			CreatedBy:   createdBy,
			DBPath:      dbPath,
		}
		_, err = s.db.ExecContext(ctx, `INSERT INTO topology_key (singleton, topology_key, created_at_ms, created_by, db_path)
			VALUES (1, ?, ?, ?, ?)`, tk.TopologyKey, tk.CreatedAtMs, tk.CreatedBy, tk.DBPath)
		if err != nil {
			return nil, err
		}
		return &tk, nil
	case err != nil:
		return nil, err
	}
	if tk.DBPath != dbPath {
		return nil, fmt.Errorf("%w: key owns %q, process expects %q", ErrTopologyMismatch, tk.DBPath, dbPath)
	}
	return &tk, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return nil // driver without RowsAffected support
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func fmtTime(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(time.RFC3339Nano)
}
