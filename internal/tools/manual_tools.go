package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aviara/copilot/internal/manuals"
)

func (r *Registry) registerManuals() {
	r.Register(&Tool{
		Name:        "search_manuals",
		Description: "Search one aviation reference manual for relevant passages. Exactly one manual per call; issue separate calls to search multiple manuals.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "What to look for",
				},
				"manual": map[string]any{
					"type":        "string",
					"description": "Which manual to search",
					"enum":        []string{"far_aim", "phak", "afh", "poh"},
				},
				"limit": map[string]any{
					"type":        "integer",
					"description": "Maximum passages to return (default 5)",
				},
			},
			"required": []string{"query", "manual"},
		},
		Handler: r.handleSearchManuals,
	})
}

func (r *Registry) handleSearchManuals(ctx context.Context, args map[string]any) (string, error) {
	if r.manuals == nil {
		return "", fmt.Errorf("manual library not configured")
	}

	query := stringArg(args, "query")
	if query == "" {
		return "", fmt.Errorf("query is required")
	}

	manual, err := manuals.ParseManual(stringArg(args, "manual"))
	if err != nil {
		return "", err
	}

	limit := 5
	if f, ok := args["limit"].(float64); ok && f > 0 {
		limit = int(f)
	}

	excerpts, err := r.manuals.Search(ctx, manual, query, limit)
	if err != nil {
		return "", fmt.Errorf("search %s: %w", manual, err)
	}

	out, err := json.Marshal(map[string]any{
		"manual":   manual,
		"query":    query,
		"excerpts": excerpts,
	})
	if err != nil {
		return "", fmt.Errorf("marshal result: %w", err)
	}
	return string(out), nil
}
