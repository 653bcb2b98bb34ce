package escalation

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore persists escalations across restarts. Conversation history
// and metadata are stored as JSON columns.
type SQLiteStore struct {
	db        *sql.DB
	notifiers []Notifier
	logger    zerolog.Logger
	now       func() time.Time
	updateMu  sync.Mutex
}

// NewSQLiteStore opens (or creates) the database at path and ensures the
// schema exists.
func NewSQLiteStore(path string, logger zerolog.Logger, notifiers ...Notifier) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	s := &SQLiteStore{
		db:        db,
		notifiers: notifiers,
		logger:    logger,
		now:       time.Now,
	}

	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS escalations (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			channel TEXT,
			thread_id TEXT,
			reason TEXT NOT NULL,
			priority TEXT NOT NULL,
			summary TEXT,
			history TEXT,
			metadata TEXT,
			status TEXT NOT NULL,
			created_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_escalations_user ON escalations(user_id);
		CREATE INDEX IF NOT EXISTS idx_escalations_status ON escalations(status);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Create inserts a new escalation row. Like the in-memory store, failures
// degrade to Success=false rather than an error.
func (s *SQLiteStore) Create(ctx context.Context, params CreateParams) CreateResult {
	if params.UserID == "" {
		return CreateResult{Success: false, Message: "user_id is required"}
	}

	esc := Escalation{
		ID:                  uuid.NewString(),
		UserID:              params.UserID,
		Channel:             params.Channel,
		ThreadID:            params.ThreadID,
		Reason:              ParseReason(params.Reason),
		Priority:            ParsePriority(params.Priority),
		Summary:             params.Summary,
		ConversationHistory: params.History,
		Metadata:            params.Metadata,
		Status:              StatusPending,
		CreatedAt:           s.now(),
	}
	if esc.Metadata == nil {
		esc.Metadata = make(map[string]interface{})
	}

	history, err := json.Marshal(esc.ConversationHistory)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to encode conversation history")
		return CreateResult{Success: false, Message: "failed to record escalation"}
	}
	metadata, err := json.Marshal(esc.Metadata)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to encode escalation metadata")
		return CreateResult{Success: false, Message: "failed to record escalation"}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO escalations (id, user_id, channel, thread_id, reason, priority, summary, history, metadata, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		esc.ID, esc.UserID, esc.Channel, esc.ThreadID, string(esc.Reason), string(esc.Priority),
		esc.Summary, string(history), string(metadata), string(esc.Status), esc.CreatedAt.Unix())
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to insert escalation")
		return CreateResult{Success: false, Message: "failed to record escalation"}
	}

	s.logger.Info().
		Str("escalation_id", esc.ID).
		Str("user_id", esc.UserID).
		Str("reason", string(esc.Reason)).
		Str("priority", string(esc.Priority)).
		Msg("Escalation created")

	for _, n := range s.notifiers {
		n := n
		go func() {
			defer func() {
				if r := recover(); r != nil {
					s.logger.Error().Interface("panic", r).Msg("Escalation notifier panicked")
				}
			}()
			n.EscalationCreated(esc)
		}()
	}

	return CreateResult{
		Success:       true,
		EscalationID:  esc.ID,
		Message:       fmt.Sprintf("Your request has been escalated to our support team. Reference ID: %s", esc.ID),
		EstimatedWait: esc.Priority.EstimatedWait(),
	}
}

// Get returns the escalation with the given id.
func (s *SQLiteStore) Get(id string) (*Escalation, bool) {
	row := s.db.QueryRow(`
		SELECT id, user_id, channel, thread_id, reason, priority, summary, history, metadata, status, created_at
		FROM escalations WHERE id = ?`, id)

	esc, err := scanEscalation(row)
	if err != nil {
		if err != sql.ErrNoRows {
			s.logger.Error().Err(err).Str("escalation_id", id).Msg("Failed to load escalation")
		}
		return nil, false
	}
	return esc, true
}

// ListByUser returns all escalations for a user in insertion order.
func (s *SQLiteStore) ListByUser(userID string) []Escalation {
	return s.query(`
		SELECT id, user_id, channel, thread_id, reason, priority, summary, history, metadata, status, created_at
		FROM escalations WHERE user_id = ? ORDER BY rowid`, userID)
}

// ListPending returns all escalations still awaiting an operator.
func (s *SQLiteStore) ListPending() []Escalation {
	return s.query(`
		SELECT id, user_id, channel, thread_id, reason, priority, summary, history, metadata, status, created_at
		FROM escalations WHERE status = ? ORDER BY rowid`, string(StatusPending))
}

func (s *SQLiteStore) query(q string, args ...interface{}) []Escalation {
	rows, err := s.db.Query(q, args...)
	if err != nil {
		s.logger.Error().Err(err).Msg("Escalation query failed")
		return nil
	}
	defer rows.Close()

	var out []Escalation
	for rows.Next() {
		esc, err := scanEscalation(rows)
		if err != nil {
			s.logger.Error().Err(err).Msg("Failed to scan escalation row")
			continue
		}
		out = append(out, *esc)
	}
	return out
}

// UpdateStatus overwrites the status of an escalation and stamps assignedTo
// into the metadata when non-empty. Returns false for an unknown id or a
// non-canonical status. The metadata column is read back and rewritten, so
// updates are serialized under updateMu to keep concurrent assignments
// from clobbering each other.
func (s *SQLiteStore) UpdateStatus(id string, status Status, assignedTo string) bool {
	if !status.Valid() {
		s.logger.Warn().Str("escalation_id", id).Str("status", string(status)).Msg("Rejected invalid escalation status")
		return false
	}

	s.updateMu.Lock()
	defer s.updateMu.Unlock()

	esc, ok := s.Get(id)
	if !ok {
		return false
	}

	esc.Status = status
	if assignedTo != "" {
		if esc.Metadata == nil {
			esc.Metadata = make(map[string]interface{})
		}
		esc.Metadata["assigned_to"] = assignedTo
	}

	metadata, err := json.Marshal(esc.Metadata)
	if err != nil {
		s.logger.Error().Err(err).Str("escalation_id", id).Msg("Failed to encode escalation metadata")
		return false
	}

	res, err := s.db.Exec(`UPDATE escalations SET status = ?, metadata = ? WHERE id = ?`,
		string(status), string(metadata), id)
	if err != nil {
		s.logger.Error().Err(err).Str("escalation_id", id).Msg("Failed to update escalation")
		return false
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return false
	}

	s.logger.Info().Str("escalation_id", id).Str("status", string(status)).Msg("Escalation status updated")
	return true
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEscalation(row rowScanner) (*Escalation, error) {
	var (
		esc       Escalation
		reason    string
		priority  string
		status    string
		history   string
		metadata  string
		createdAt int64
	)
	err := row.Scan(&esc.ID, &esc.UserID, &esc.Channel, &esc.ThreadID, &reason, &priority,
		&esc.Summary, &history, &metadata, &status, &createdAt)
	if err != nil {
		return nil, err
	}

	esc.Reason = Reason(reason)
	esc.Priority = Priority(priority)
	esc.Status = Status(status)
	esc.CreatedAt = time.Unix(createdAt, 0)

	if history != "" && history != "null" {
		if err := json.Unmarshal([]byte(history), &esc.ConversationHistory); err != nil {
			return nil, fmt.Errorf("corrupt history for %s: %w", esc.ID, err)
		}
	}
	if metadata != "" && metadata != "null" {
		if err := json.Unmarshal([]byte(metadata), &esc.Metadata); err != nil {
			return nil, fmt.Errorf("corrupt metadata for %s: %w", esc.ID, err)
		}
	}
	return &esc, nil
}
