package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/danang/arunika/pkg/escalation"
)

// RegisterEscalationTools registers the human-handoff tools backed by the
// given store.
func RegisterEscalationTools(registry *Registry, store escalation.Store) error {
	defs := []Definition{
		escalateToHumanTool(store),
		checkEscalationStatusTool(store),
	}
	for _, def := range defs {
		if err := registry.Register(def); err != nil {
			return fmt.Errorf("failed to register tool %s: %w", def.Name, err)
		}
	}
	return nil
}

func escalateToHumanTool(store escalation.Store) Definition {
	return Definition{
		Name: "escalate_to_human",
		Description: "Transfer the conversation to a human support agent. Use this when the issue is too complex, " +
			"the customer explicitly asks for a human, the customer appears upset, or the issue involves billing, " +
			"complaints, or other sensitive matters.",
		Parameters: []Parameter{
			{
				Name: "reason", Type: "string", Required: true,
				Description: "Reason for escalation.",
				Enum: []string{
					"complex_issue", "customer_request", "sentiment_negative",
					"technical_limitation", "billing_issue", "complaint", "other",
				},
			},
			{
				Name: "summary", Type: "string", Required: true,
				Description: "Brief summary of the issue and conversation context for the human agent.",
			},
			{
				Name: "priority", Type: "string", Required: true,
				Description: "Priority level: low for general inquiries, medium for standard issues, high for urgent issues, urgent for critical ones.",
				Enum:        []string{"low", "medium", "high", "urgent"},
			},
		},
		Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
			id := IdentityFromContext(ctx)
			if id == nil || id.UserID == "" {
				return nil, fmt.Errorf("no user_id found in context")
			}

			channel := id.Channel
			if channel == "" {
				channel = "web"
			}
			threadID := id.ThreadID
			if threadID == "" {
				threadID = id.UserID
			}

			reason, _ := params["reason"].(string)
			summary, _ := params["summary"].(string)
			priority, _ := params["priority"].(string)

			result := store.Create(ctx, escalation.CreateParams{
				UserID:   id.UserID,
				Channel:  channel,
				ThreadID: threadID,
				Reason:   reason,
				Summary:  summary,
				Priority: priority,
				History:  id.History,
			})
			if !result.Success {
				return fmt.Sprintf("Sorry, something went wrong while processing the request: %s", result.Message), nil
			}

			return fmt.Sprintf(
				"Your conversation has been handed off to our support team. "+
					"Reference number: %s. Estimated wait time: %s. "+
					"Our team will reach out to you on this same channel.",
				result.EscalationID, result.EstimatedWait,
			), nil
		},
	}
}

func checkEscalationStatusTool(store escalation.Store) Definition {
	return Definition{
		Name:        "check_escalation_status",
		Description: "Check whether the customer has any escalations on file and report their status.",
		Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
			id := IdentityFromContext(ctx)
			if id == nil || id.UserID == "" {
				return nil, fmt.Errorf("no user_id found in context")
			}

			escalations := store.ListByUser(id.UserID)
			if len(escalations) == 0 {
				return "You have no active escalation requests.", nil
			}

			var lines []string
			for _, esc := range escalations {
				shortID := esc.ID
				if len(shortID) > 8 {
					shortID = shortID[:8] + "..."
				}
				lines = append(lines, fmt.Sprintf("- ID: %s | Status: %s | Priority: %s", shortID, esc.Status, esc.Priority))
			}
			return "Your escalations:\n" + strings.Join(lines, "\n"), nil
		},
	}
}
