package tools

import (
	"context"
	"encoding/json"
	"fmt"
)

// NextActionContinue and NextActionFinal are the two values the model
// may set for a reasoning step's next action.
const (
	NextActionContinue = "continue"
	NextActionFinal    = "finalAnswer"
)

func (r *Registry) registerReasoning() {
	r.Register(&Tool{
		Name:        "reasoning_step",
		Description: "Record one step of your reasoning before answering. Use a short title, the reasoning content, and whether you will continue reasoning or give the final answer next.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"title": map[string]any{
					"type":        "string",
					"description": "Short label for this reasoning step",
				},
				"content": map[string]any{
					"type":        "string",
					"description": "The reasoning performed in this step",
				},
				"nextAction": map[string]any{
					"type":        "string",
					"description": "Whether another step follows or the final answer comes next",
					"enum":        []string{NextActionContinue, NextActionFinal},
				},
			},
			"required": []string{"title", "content", "nextAction"},
		},
		Handler: handleReasoningStep,
	})
}

// handleReasoningStep echoes the step back. The tool exists so the
// model's intermediate reasoning is captured as a structured
// invocation; there is nothing to compute.
func handleReasoningStep(_ context.Context, args map[string]any) (string, error) {
	out, err := json.Marshal(map[string]any{
		"title":      stringArg(args, "title"),
		"content":    stringArg(args, "content"),
		"nextAction": stringArg(args, "nextAction"),
	})
	if err != nil {
		return "", fmt.Errorf("marshal step: %w", err)
	}
	return string(out), nil
}
