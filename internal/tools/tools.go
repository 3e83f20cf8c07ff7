// Package tools defines the tools available to the assistant.
package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aviara/copilot/internal/manuals"
	"github.com/aviara/copilot/internal/weather"
)

// Tool represents a callable tool.
type Tool struct {
	Name        string                                                         `json:"name"`
	Description string                                                         `json:"description"`
	Parameters  map[string]any                                                 `json:"parameters"`
	Handler     func(ctx context.Context, args map[string]any) (string, error) `json:"-"`
}

// AviationWeather fetches aviation weather products.
type AviationWeather interface {
	FetchMETAR(ctx context.Context, airport string) (*weather.METAR, error)
	FetchTAF(ctx context.Context, airport string) (*weather.TAF, error)
}

// PointWeather fetches general surface conditions for a location.
type PointWeather interface {
	Current(ctx context.Context, city, region, country string) (*weather.Conditions, error)
}

// ManualSearcher searches one reference manual per call.
type ManualSearcher interface {
	Search(ctx context.Context, manual manuals.Manual, query string, limit int) ([]manuals.Excerpt, error)
}

// Registry holds available tools.
type Registry struct {
	tools    map[string]*Tool
	aviation AviationWeather
	point    PointWeather
	manuals  ManualSearcher
}

// RegistryConfig carries the service clients tools delegate to. A nil
// client leaves its tools registered but failing with a configuration
// error at execution time.
type RegistryConfig struct {
	Aviation AviationWeather
	Point    PointWeather
	Manuals  ManualSearcher
}

// NewRegistry creates the tool registry with all built-in tools.
func NewRegistry(cfg RegistryConfig) *Registry {
	r := &Registry{
		tools:    make(map[string]*Tool),
		aviation: cfg.Aviation,
		point:    cfg.Point,
		manuals:  cfg.Manuals,
	}
	r.registerBuiltins()
	return r
}

func (r *Registry) registerBuiltins() {
	r.registerReasoning()
	r.registerWeather()
	r.registerManuals()
}

// Register adds a tool to the registry.
func (r *Registry) Register(t *Tool) {
	r.tools[t.Name] = t
}

// Get retrieves a tool by name.
func (r *Registry) Get(name string) *Tool {
	return r.tools[name]
}

// List returns all tools in the wire format the LLM expects.
func (r *Registry) List() []map[string]any {
	var result []map[string]any
	for _, t := range r.tools {
		result = append(result, map[string]any{
			"type": "function",
			"function": map[string]any{
				"name":        t.Name,
				"description": t.Description,
				"parameters":  t.Parameters,
			},
		})
	}
	return result
}

// Execute runs a tool by name with given arguments. Arguments are
// validated against the tool's parameter schema before the handler
// runs; a call that fails validation returns ErrInvalidArguments
// without side effects, so retrying it yields the same rejection.
func (r *Registry) Execute(ctx context.Context, name string, argsJSON string) (string, error) {
	tool := r.tools[name]
	if tool == nil {
		return "", &ErrToolUnavailable{ToolName: name}
	}

	var args map[string]any
	if argsJSON != "" {
		if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
			return "", &ErrInvalidArguments{ToolName: name, Reason: fmt.Sprintf("malformed JSON: %v", err)}
		}
	}

	if err := validateArgs(name, tool.Parameters, args); err != nil {
		return "", err
	}

	return tool.Handler(ctx, args)
}

// validateArgs checks args against a JSON-schema-shaped parameter map:
// required fields must be present and each property's declared type and
// enum must hold.
func validateArgs(toolName string, params map[string]any, args map[string]any) error {
	if params == nil {
		return nil
	}

	if required, ok := params["required"].([]string); ok {
		for _, field := range required {
			if _, present := args[field]; !present {
				return &ErrInvalidArguments{ToolName: toolName, Reason: fmt.Sprintf("missing required field %q", field)}
			}
		}
	}

	properties, ok := params["properties"].(map[string]any)
	if !ok {
		return nil
	}

	for field, value := range args {
		spec, ok := properties[field].(map[string]any)
		if !ok {
			continue // tolerate extra fields the model invents
		}

		if typeName, ok := spec["type"].(string); ok {
			if reason := checkType(typeName, value); reason != "" {
				return &ErrInvalidArguments{ToolName: toolName, Reason: fmt.Sprintf("field %q %s", field, reason)}
			}
		}

		if enum, ok := spec["enum"].([]string); ok {
			s, isStr := value.(string)
			if !isStr || !contains(enum, s) {
				return &ErrInvalidArguments{ToolName: toolName, Reason: fmt.Sprintf("field %q must be one of %v", field, enum)}
			}
		}
	}

	return nil
}

// checkType validates a decoded JSON value against a schema type name.
// JSON numbers decode as float64; integers additionally require a whole
// value.
func checkType(typeName string, value any) string {
	switch typeName {
	case "string":
		if _, ok := value.(string); !ok {
			return "must be a string"
		}
	case "boolean":
		if _, ok := value.(bool); !ok {
			return "must be a boolean"
		}
	case "number":
		if _, ok := value.(float64); !ok {
			return "must be a number"
		}
	case "integer":
		f, ok := value.(float64)
		if !ok || f != float64(int64(f)) {
			return "must be an integer"
		}
	case "object":
		if _, ok := value.(map[string]any); !ok {
			return "must be an object"
		}
	case "array":
		if _, ok := value.([]any); !ok {
			return "must be an array"
		}
	}
	return ""
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

// stringArg extracts an optional string argument.
func stringArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}

// boolArg extracts a boolean argument, defaulting when absent.
func boolArg(args map[string]any, key string, def bool) bool {
	v, ok := args[key].(bool)
	if !ok {
		return def
	}
	return v
}
