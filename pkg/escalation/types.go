// Package escalation tracks human-handoff requests: creation, status
// transitions, and priority-ordered retrieval for the operator dashboard.
package escalation

import (
	"context"
	"sort"
	"time"
)

// Reason is why a conversation was handed off to a human.
type Reason string

const (
	ReasonComplexIssue        Reason = "complex_issue"
	ReasonCustomerRequest     Reason = "customer_request"
	ReasonSentimentNegative   Reason = "sentiment_negative"
	ReasonTechnicalLimitation Reason = "technical_limitation"
	ReasonBillingIssue        Reason = "billing_issue"
	ReasonComplaint           Reason = "complaint"
	ReasonOther               Reason = "other"
)

// ParseReason maps a string to a Reason, falling back to ReasonOther for
// anything unrecognized. The agent supplies these strings; a typo should
// never block a handoff.
func ParseReason(s string) Reason {
	switch Reason(s) {
	case ReasonComplexIssue, ReasonCustomerRequest, ReasonSentimentNegative,
		ReasonTechnicalLimitation, ReasonBillingIssue, ReasonComplaint, ReasonOther:
		return Reason(s)
	default:
		return ReasonOther
	}
}

// Priority is the urgency of an escalation.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// ParsePriority maps a string to a Priority, falling back to PriorityMedium
// for anything unrecognized.
func ParsePriority(s string) Priority {
	switch Priority(s) {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return Priority(s)
	default:
		return PriorityMedium
	}
}

// Rank orders priorities for the pending queue: urgent first. Unknown values
// sort with medium.
func (p Priority) Rank() int {
	switch p {
	case PriorityUrgent:
		return 0
	case PriorityHigh:
		return 1
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 3
	default:
		return 2
	}
}

// EstimatedWait returns the operator-facing wait estimate for a priority.
func (p Priority) EstimatedWait() string {
	switch p {
	case PriorityUrgent:
		return "5-10 minutes"
	case PriorityHigh:
		return "15-30 minutes"
	case PriorityLow:
		return "4-8 hours"
	default:
		return "1-2 hours"
	}
}

// Status is the lifecycle state of an escalation. Pending is initial,
// resolved is terminal; assigned and in_progress are reachable from each
// other and from pending.
type Status string

const (
	StatusPending    Status = "pending"
	StatusAssigned   Status = "assigned"
	StatusInProgress Status = "in_progress"
	StatusResolved   Status = "resolved"
)

// Valid reports whether s is one of the four canonical statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusAssigned, StatusInProgress, StatusResolved:
		return true
	}
	return false
}

// Escalation is a recorded human-handoff request. The id is unique and
// assigned at creation, never reused. Mutated only through status updates.
type Escalation struct {
	ID                  string                   `json:"id"`
	UserID              string                   `json:"user_id"`
	Channel             string                   `json:"channel"`
	ThreadID            string                   `json:"thread_id"`
	Reason              Reason                   `json:"reason"`
	Priority            Priority                 `json:"priority"`
	Summary             string                   `json:"summary"`
	ConversationHistory []map[string]interface{} `json:"conversation_history,omitempty"`
	Metadata            map[string]interface{}   `json:"metadata,omitempty"`
	Status              Status                   `json:"status"`
	CreatedAt           time.Time                `json:"created_at"`
}

// CreateParams are the inputs to Store.Create. Reason and Priority are raw
// strings from the agent's tool call.
type CreateParams struct {
	UserID   string
	Channel  string
	ThreadID string
	Reason   string
	Summary  string
	Priority string
	History  []map[string]interface{}
	Metadata map[string]interface{}
}

// CreateResult is the outcome of a creation attempt. Creation never
// propagates an error to the calling tool; failures come back as
// Success=false.
type CreateResult struct {
	Success       bool   `json:"success"`
	EscalationID  string `json:"escalation_id"`
	Message       string `json:"message"`
	EstimatedWait string `json:"estimated_wait_time,omitempty"`
}

// Store is the escalation persistence contract.
type Store interface {
	Create(ctx context.Context, params CreateParams) CreateResult
	Get(id string) (*Escalation, bool)
	ListByUser(userID string) []Escalation
	ListPending() []Escalation
	UpdateStatus(id string, status Status, assignedTo string) bool
}

// Notifier receives a copy of every successfully created escalation.
// Implementations must be best-effort; the store fires and forgets.
type Notifier interface {
	EscalationCreated(e Escalation)
}

// SortPending orders escalations for the operator-facing pending list:
// priority rank first, creation time ascending within the same priority.
func SortPending(escalations []Escalation) {
	sort.SliceStable(escalations, func(i, j int) bool {
		ri, rj := escalations[i].Priority.Rank(), escalations[j].Priority.Rank()
		if ri != rj {
			return ri < rj
		}
		return escalations[i].CreatedAt.Before(escalations[j].CreatedAt)
	})
}
