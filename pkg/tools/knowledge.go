package tools

import (
	"context"
	"fmt"

	"github.com/danang/arunika/pkg/knowledge"
)

// RegisterKnowledgeTools registers the knowledge base search tool backed
// by the given client.
func RegisterKnowledgeTools(registry *Registry, client *knowledge.Client) error {
	def := Definition{
		Name: "search_knowledge_base",
		Description: "Search the knowledge base covering FAQs, shop policies, and company profiles. " +
			"Does not cover live store data such as orders or product stock.",
		Parameters: []Parameter{
			{
				Name: "query", Type: "string", Required: true,
				Description: "The user's question or search text.",
			},
		},
		Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
			query, _ := params["query"].(string)
			answer, err := client.Query(ctx, query, knowledge.ModeHybrid)
			if err != nil {
				return nil, fmt.Errorf("knowledge base search failed, tell the user the system is having problems and apologize: %w", err)
			}
			return answer, nil
		},
	}
	if err := registry.Register(def); err != nil {
		return fmt.Errorf("failed to register tool %s: %w", def.Name, err)
	}
	return nil
}
