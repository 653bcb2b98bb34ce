package tools

import (
	"context"
	"fmt"

	"github.com/danang/arunika/pkg/memorystore"
)

// RegisterMemoryTools registers the user memory tools backed by the given
// client.
func RegisterMemoryTools(registry *Registry, client *memorystore.Client) error {
	defs := []Definition{
		readProfileTool(client),
		savePreferenceTool(client),
		saveMemoryTool(client),
		deleteMemoryTool(client),
		clearMemoryTool(client),
	}
	for _, def := range defs {
		if err := registry.Register(def); err != nil {
			return fmt.Errorf("failed to register tool %s: %w", def.Name, err)
		}
	}
	return nil
}

func requireUserID(ctx context.Context) (string, error) {
	id := IdentityFromContext(ctx)
	if id == nil || id.UserID == "" {
		return "", fmt.Errorf("no user_id found in context")
	}
	return id.UserID, nil
}

func readProfileTool(client *memorystore.Client) Definition {
	return Definition{
		Name: "read_profile",
		Description: "Retrieve summarized context for the customer: past interactions, preferences, " +
			"and other remembered details. Call this before responding when history matters.",
		Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
			userID, err := requireUserID(ctx)
			if err != nil {
				return nil, err
			}
			return client.SummarizeUserContext(ctx, userID)
		},
	}
}

func savePreferenceTool(client *memorystore.Client) Definition {
	return Definition{
		Name: "save_preference",
		Description: "Save a customer preference, such as a favorite product type or communication style, " +
			"to personalize future responses.",
		Parameters: []Parameter{
			{Name: "preference", Type: "string", Required: true, Description: "The preference to save."},
		},
		Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
			userID, err := requireUserID(ctx)
			if err != nil {
				return nil, err
			}
			preference, _ := params["preference"].(string)
			if _, err := client.Add(ctx, userID, preference, "preference"); err != nil {
				return nil, err
			}
			return "Preference saved successfully.", nil
		},
	}
}

func saveMemoryTool(client *memorystore.Client) Definition {
	return Definition{
		Name:        "save_memory",
		Description: "Store a fact or note about the customer for future conversations.",
		Parameters: []Parameter{
			{Name: "memory", Type: "string", Required: true, Description: "The memory or fact to store."},
		},
		Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
			userID, err := requireUserID(ctx)
			if err != nil {
				return nil, err
			}
			memory, _ := params["memory"].(string)
			if _, err := client.Add(ctx, userID, memory, "memory"); err != nil {
				return nil, err
			}
			return "Memory saved successfully.", nil
		},
	}
}

func deleteMemoryTool(client *memorystore.Client) Definition {
	return Definition{
		Name:        "delete_memory",
		Description: "Delete one remembered item from the customer's context by its id.",
		Parameters: []Parameter{
			{Name: "memory_id", Type: "string", Required: true, Description: "The id of the memory to delete."},
		},
		Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
			if _, err := requireUserID(ctx); err != nil {
				return nil, err
			}
			memoryID, _ := params["memory_id"].(string)
			if err := client.Delete(ctx, memoryID); err != nil {
				return nil, err
			}
			return "Memory deleted successfully.", nil
		},
	}
}

func clearMemoryTool(client *memorystore.Client) Definition {
	return Definition{
		Name:        "clear_memory",
		Description: "Delete everything remembered about the customer. Use for reset or privacy requests.",
		Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
			userID, err := requireUserID(ctx)
			if err != nil {
				return nil, err
			}
			if err := client.Clear(ctx, userID); err != nil {
				return nil, err
			}
			return "Memory cleared successfully.", nil
		},
	}
}
