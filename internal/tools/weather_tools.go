package tools

import (
	"context"
	"encoding/json"
	"fmt"
)

func (r *Registry) registerWeather() {
	r.Register(&Tool{
		Name:        "fetch_taf_and_metar",
		Description: "Fetch the current METAR observation and/or TAF forecast for an airport. Use the ICAO identifier (e.g., KJFK, EGLL).",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"airport": map[string]any{
					"type":        "string",
					"description": "ICAO airport identifier",
				},
				"metar": map[string]any{
					"type":        "boolean",
					"description": "Include the METAR observation (default true)",
				},
				"taf": map[string]any{
					"type":        "boolean",
					"description": "Include the TAF forecast (default true)",
				},
			},
			"required": []string{"airport"},
		},
		Handler: r.handleFetchTAFAndMETAR,
	})

	r.Register(&Tool{
		Name:        "fetch_weather",
		Description: "Fetch current surface weather conditions for a city. Use for general weather questions not tied to an airport.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"city": map[string]any{
					"type":        "string",
					"description": "City name",
				},
				"region": map[string]any{
					"type":        "string",
					"description": "State, province, or region (optional)",
				},
				"country": map[string]any{
					"type":        "string",
					"description": "Country (optional)",
				},
			},
			"required": []string{"city"},
		},
		Handler: r.handleFetchWeather,
	})
}

func (r *Registry) handleFetchTAFAndMETAR(ctx context.Context, args map[string]any) (string, error) {
	if r.aviation == nil {
		return "", fmt.Errorf("aviation weather not configured")
	}

	airport := stringArg(args, "airport")
	if airport == "" {
		return "", fmt.Errorf("airport is required")
	}

	wantMETAR := boolArg(args, "metar", true)
	wantTAF := boolArg(args, "taf", true)
	if !wantMETAR && !wantTAF {
		// Both flags off makes the call pointless; fall back to both.
		wantMETAR, wantTAF = true, true
	}

	result := map[string]any{"airport": airport}

	if wantMETAR {
		metar, err := r.aviation.FetchMETAR(ctx, airport)
		if err != nil {
			return "", fmt.Errorf("fetch METAR: %w", err)
		}
		result["metar"] = metar
	}

	if wantTAF {
		taf, err := r.aviation.FetchTAF(ctx, airport)
		if err != nil {
			return "", fmt.Errorf("fetch TAF: %w", err)
		}
		result["taf"] = taf
	}

	out, err := json.Marshal(result)
	if err != nil {
		return "", fmt.Errorf("marshal result: %w", err)
	}
	return string(out), nil
}

func (r *Registry) handleFetchWeather(ctx context.Context, args map[string]any) (string, error) {
	if r.point == nil {
		return "", fmt.Errorf("point weather not configured")
	}

	city := stringArg(args, "city")
	if city == "" {
		return "", fmt.Errorf("city is required")
	}

	conditions, err := r.point.Current(ctx, city, stringArg(args, "region"), stringArg(args, "country"))
	if err != nil {
		return "", fmt.Errorf("fetch conditions: %w", err)
	}

	out, err := json.Marshal(conditions)
	if err != nil {
		return "", fmt.Errorf("marshal result: %w", err)
	}
	return string(out), nil
}
