package escalation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// MemoryStore is the in-process escalation store. Concurrent creates and
// updates are serialized against the internal map.
type MemoryStore struct {
	mu          sync.RWMutex
	escalations map[string]*Escalation
	order       []string // insertion order for per-user listing
	notifiers   []Notifier
	logger      zerolog.Logger
	now         func() time.Time
}

// NewMemoryStore creates an empty store.
func NewMemoryStore(logger zerolog.Logger, notifiers ...Notifier) *MemoryStore {
	return &MemoryStore{
		escalations: make(map[string]*Escalation),
		notifiers:   notifiers,
		logger:      logger,
		now:         time.Now,
	}
}

// Create records a new escalation. Unknown reason or priority strings fall
// back to their defaults rather than failing, and any internal failure
// degrades to Success=false: escalation creation must never crash the
// calling tool.
func (s *MemoryStore) Create(ctx context.Context, params CreateParams) CreateResult {
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

	s.mu.Lock()
	s.escalations[esc.ID] = &esc
	s.order = append(s.order, esc.ID)
	s.mu.Unlock()

	s.logger.Info().
		Str("escalation_id", esc.ID).
		Str("user_id", esc.UserID).
		Str("channel", esc.Channel).
		Str("reason", string(esc.Reason)).
		Str("priority", string(esc.Priority)).
		Msg("Escalation created")

	s.notify(esc)

	return CreateResult{
		Success:       true,
		EscalationID:  esc.ID,
		Message:       fmt.Sprintf("Your request has been escalated to our support team. Reference ID: %s", esc.ID),
		EstimatedWait: esc.Priority.EstimatedWait(),
	}
}

// notify fans out to notifiers without waiting for them.
func (s *MemoryStore) notify(esc Escalation) {
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
}

// Get returns the escalation with the given id.
func (s *MemoryStore) Get(id string) (*Escalation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	esc, ok := s.escalations[id]
	if !ok {
		return nil, false
	}
	out := *esc
	return &out, true
}

// ListByUser returns all escalations for a user in insertion order.
func (s *MemoryStore) ListByUser(userID string) []Escalation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Escalation
	for _, id := range s.order {
		if esc := s.escalations[id]; esc.UserID == userID {
			out = append(out, *esc)
		}
	}
	return out
}

// ListPending returns all escalations still awaiting an operator.
func (s *MemoryStore) ListPending() []Escalation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Escalation
	for _, id := range s.order {
		if esc := s.escalations[id]; esc.Status == StatusPending {
			out = append(out, *esc)
		}
	}
	return out
}

// UpdateStatus overwrites the status of an escalation and, when assignedTo
// is non-empty, stamps it into the metadata. Returns false for an unknown
// id or a non-canonical status.
func (s *MemoryStore) UpdateStatus(id string, status Status, assignedTo string) bool {
	if !status.Valid() {
		s.logger.Warn().Str("escalation_id", id).Str("status", string(status)).Msg("Rejected invalid escalation status")
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	esc, ok := s.escalations[id]
	if !ok {
		return false
	}

	esc.Status = status
	if assignedTo != "" {
		esc.Metadata["assigned_to"] = assignedTo
	}

	s.logger.Info().Str("escalation_id", id).Str("status", string(status)).Msg("Escalation status updated")
	return true
}
