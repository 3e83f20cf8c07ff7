package tools

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/aviara/copilot/internal/manuals"
	"github.com/aviara/copilot/internal/weather"
)

type fakeAviation struct {
	metarCalls int
	tafCalls   int
	err        error
}

func (f *fakeAviation) FetchMETAR(_ context.Context, airport string) (*weather.METAR, error) {
	f.metarCalls++
	if f.err != nil {
		return nil, f.err
	}
	return &weather.METAR{StationID: airport, Raw: airport + " 251751Z 18010KT 10SM FEW250 24/12 A3012"}, nil
}

func (f *fakeAviation) FetchTAF(_ context.Context, airport string) (*weather.TAF, error) {
	f.tafCalls++
	if f.err != nil {
		return nil, f.err
	}
	return &weather.TAF{StationID: airport, Raw: "TAF " + airport + " 251720Z 2518/2624 18012KT P6SM SCT040"}, nil
}

type fakePoint struct {
	calls int
}

func (f *fakePoint) Current(_ context.Context, city, region, country string) (*weather.Conditions, error) {
	f.calls++
	return &weather.Conditions{City: city, Region: region, Country: country, TempC: 21, Condition: "Clear"}, nil
}

type fakeManuals struct {
	lastManual manuals.Manual
	lastLimit  int
}

func (f *fakeManuals) Search(_ context.Context, manual manuals.Manual, query string, limit int) ([]manuals.Excerpt, error) {
	f.lastManual = manual
	f.lastLimit = limit
	return []manuals.Excerpt{
		{Manual: manual, Section: "Traffic Patterns", Content: "Standard pattern turns are to the left.", Score: 0.91},
	}, nil
}

func newTestRegistry() (*Registry, *fakeAviation, *fakePoint, *fakeManuals) {
	av := &fakeAviation{}
	pt := &fakePoint{}
	ml := &fakeManuals{}
	return NewRegistry(RegistryConfig{Aviation: av, Point: pt, Manuals: ml}), av, pt, ml
}

func TestRegistryList(t *testing.T) {
	r, _, _, _ := newTestRegistry()

	list := r.List()
	if len(list) != 4 {
		t.Fatalf("got %d tools, want 4", len(list))
	}

	names := make(map[string]bool)
	for _, entry := range list {
		if entry["type"] != "function" {
			t.Errorf("entry type = %v, want function", entry["type"])
		}
		fn, ok := entry["function"].(map[string]any)
		if !ok {
			t.Fatalf("entry missing function object: %v", entry)
		}
		names[fn["name"].(string)] = true
	}

	for _, want := range []string{"reasoning_step", "fetch_taf_and_metar", "fetch_weather", "search_manuals"} {
		if !names[want] {
			t.Errorf("tool %q not listed", want)
		}
	}
}

func TestExecuteUnknownTool(t *testing.T) {
	r, _, _, _ := newTestRegistry()

	_, err := r.Execute(context.Background(), "open_flight_plan", `{}`)
	if err == nil {
		t.Fatal("expected error for unknown tool")
	}

	var unavailable *ErrToolUnavailable
	if !errors.As(err, &unavailable) {
		t.Fatalf("error type = %T, want *ErrToolUnavailable", err)
	}
	if unavailable.ToolName != "open_flight_plan" {
		t.Errorf("ToolName = %q", unavailable.ToolName)
	}
}

func TestExecuteSchemaRejection(t *testing.T) {
	tests := []struct {
		name string
		tool string
		args string
	}{
		{"missing required field", "fetch_taf_and_metar", `{}`},
		{"wrong type", "fetch_taf_and_metar", `{"airport": 42}`},
		{"bad enum", "reasoning_step", `{"title": "t", "content": "c", "nextAction": "maybe"}`},
		{"bad manual enum", "search_manuals", `{"query": "flaps", "manual": "sectional"}`},
		{"non-integer limit", "search_manuals", `{"query": "flaps", "manual": "phak", "limit": 2.5}`},
		{"malformed json", "fetch_weather", `{"city":`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, av, pt, _ := newTestRegistry()

			// Rejection is idempotent: repeating the call yields the
			// same error and never reaches a handler.
			for i := 0; i < 2; i++ {
				_, err := r.Execute(context.Background(), tt.tool, tt.args)
				if err == nil {
					t.Fatal("expected validation error")
				}
				var invalid *ErrInvalidArguments
				if !errors.As(err, &invalid) {
					t.Fatalf("error type = %T, want *ErrInvalidArguments (%v)", err, err)
				}
			}

			if av.metarCalls+av.tafCalls+pt.calls != 0 {
				t.Error("handler was reached despite validation failure")
			}
		})
	}
}

func TestReasoningStepPassThrough(t *testing.T) {
	r, _, _, _ := newTestRegistry()

	out, err := r.Execute(context.Background(), "reasoning_step",
		`{"title": "Check winds", "content": "Crosswind component exceeds demonstrated limit.", "nextAction": "continue"}`)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	var step map[string]string
	if err := json.Unmarshal([]byte(out), &step); err != nil {
		t.Fatalf("result not JSON: %v", err)
	}
	if step["title"] != "Check winds" {
		t.Errorf("title = %q", step["title"])
	}
	if step["nextAction"] != NextActionContinue {
		t.Errorf("nextAction = %q", step["nextAction"])
	}
}

func TestFetchTAFAndMETARDefaults(t *testing.T) {
	r, av, _, _ := newTestRegistry()

	out, err := r.Execute(context.Background(), "fetch_taf_and_metar", `{"airport": "KJFK"}`)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if av.metarCalls != 1 || av.tafCalls != 1 {
		t.Errorf("calls = %d METAR, %d TAF; want 1 each", av.metarCalls, av.tafCalls)
	}

	var result map[string]any
	if err := json.Unmarshal([]byte(out), &result); err != nil {
		t.Fatalf("result not JSON: %v", err)
	}
	if result["airport"] != "KJFK" {
		t.Errorf("airport = %v", result["airport"])
	}
	if _, ok := result["metar"]; !ok {
		t.Error("result missing metar")
	}
	if _, ok := result["taf"]; !ok {
		t.Error("result missing taf")
	}
}

func TestFetchTAFAndMETARSelective(t *testing.T) {
	r, av, _, _ := newTestRegistry()

	out, err := r.Execute(context.Background(), "fetch_taf_and_metar", `{"airport": "KLAX", "taf": false}`)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if av.metarCalls != 1 || av.tafCalls != 0 {
		t.Errorf("calls = %d METAR, %d TAF; want 1, 0", av.metarCalls, av.tafCalls)
	}
	if strings.Contains(out, `"taf"`) {
		t.Errorf("result should not contain taf: %s", out)
	}
}

func TestFetchTAFAndMETARBothDisabled(t *testing.T) {
	r, av, _, _ := newTestRegistry()

	// Disabling both products falls back to fetching both.
	_, err := r.Execute(context.Background(), "fetch_taf_and_metar", `{"airport": "KSEA", "metar": false, "taf": false}`)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if av.metarCalls != 1 || av.tafCalls != 1 {
		t.Errorf("calls = %d METAR, %d TAF; want 1 each", av.metarCalls, av.tafCalls)
	}
}

func TestFetchWeather(t *testing.T) {
	r, _, pt, _ := newTestRegistry()

	out, err := r.Execute(context.Background(), "fetch_weather", `{"city": "Wichita", "region": "Kansas"}`)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if pt.calls != 1 {
		t.Errorf("point calls = %d", pt.calls)
	}

	var conditions weather.Conditions
	if err := json.Unmarshal([]byte(out), &conditions); err != nil {
		t.Fatalf("result not JSON: %v", err)
	}
	if conditions.City != "Wichita" || conditions.Region != "Kansas" {
		t.Errorf("conditions = %+v", conditions)
	}
}

func TestSearchManuals(t *testing.T) {
	r, _, _, ml := newTestRegistry()

	out, err := r.Execute(context.Background(), "search_manuals", `{"query": "traffic pattern", "manual": "phak", "limit": 3}`)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if ml.lastManual != manuals.ManualPHAK {
		t.Errorf("searched manual = %q", ml.lastManual)
	}
	if ml.lastLimit != 3 {
		t.Errorf("limit = %d", ml.lastLimit)
	}

	var result struct {
		Manual   string            `json:"manual"`
		Excerpts []manuals.Excerpt `json:"excerpts"`
	}
	if err := json.Unmarshal([]byte(out), &result); err != nil {
		t.Fatalf("result not JSON: %v", err)
	}
	if result.Manual != "phak" {
		t.Errorf("result manual = %q", result.Manual)
	}
	if len(result.Excerpts) != 1 || result.Excerpts[0].Score != 0.91 {
		t.Errorf("excerpts = %+v", result.Excerpts)
	}
}

func TestExecuteUnconfiguredService(t *testing.T) {
	r := NewRegistry(RegistryConfig{})

	_, err := r.Execute(context.Background(), "fetch_taf_and_metar", `{"airport": "KJFK"}`)
	if err == nil || !strings.Contains(err.Error(), "not configured") {
		t.Errorf("err = %v, want not-configured error", err)
	}
}
