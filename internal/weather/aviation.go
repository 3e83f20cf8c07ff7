// Package weather provides the aviation weather (METAR/TAF) and point
// weather clients behind the assistant's weather tools.
package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aviara/copilot/internal/buildinfo"
	"github.com/aviara/copilot/internal/httpkit"
)

// AviationClient fetches METAR and TAF reports from an
// aviationweather.gov-compatible data API.
type AviationClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewAviationClient creates a METAR/TAF client. baseURL is the API data
// root (e.g. "https://aviationweather.gov/api/data").
func NewAviationClient(baseURL string, logger *slog.Logger) *AviationClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &AviationClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger.With("component", "aviation-weather"),
		httpClient: httpkit.NewClient(
			httpkit.WithTimeout(15*time.Second),
			// aviationweather.gov asks API consumers for an identifying agent.
			httpkit.WithUserAgent(buildinfo.UserAgent()+" (aviation-weather)"),
		),
	}
}

// METAR is one decoded surface observation.
type METAR struct {
	StationID   string  `json:"icaoId"`
	Raw         string  `json:"rawOb"`
	Name        string  `json:"name,omitempty"`
	TempC       float64 `json:"temp"`
	DewpointC   float64 `json:"dewp"`
	WindDirDeg  int     `json:"wdir"`
	WindSpeedKt int     `json:"wspd"`
	Visibility  string  `json:"visib"`
	Altimeter   float64 `json:"altim"`
	ReportTime  string  `json:"reportTime,omitempty"`
}

// TAF is one terminal aerodrome forecast, raw text only. Decoding the
// forecast groups is left to the model.
type TAF struct {
	StationID string `json:"icaoId"`
	Raw       string `json:"rawTAF"`
	IssueTime string `json:"issueTime,omitempty"`
}

// FetchMETAR returns the most recent METAR for the airport identifier.
func (c *AviationClient) FetchMETAR(ctx context.Context, airport string) (*METAR, error) {
	var reports []METAR
	if err := c.fetch(ctx, "metar", airport, &reports); err != nil {
		return nil, err
	}
	if len(reports) == 0 {
		return nil, fmt.Errorf("no METAR available for %s", airport)
	}
	return &reports[0], nil
}

// FetchTAF returns the current TAF for the airport identifier.
func (c *AviationClient) FetchTAF(ctx context.Context, airport string) (*TAF, error) {
	var reports []TAF
	if err := c.fetch(ctx, "taf", airport, &reports); err != nil {
		return nil, err
	}
	if len(reports) == 0 {
		return nil, fmt.Errorf("no TAF available for %s", airport)
	}
	return &reports[0], nil
}

func (c *AviationClient) fetch(ctx context.Context, product, airport string, out any) error {
	airport = strings.ToUpper(strings.TrimSpace(airport))
	if airport == "" {
		return fmt.Errorf("airport identifier is required")
	}

	u := fmt.Sprintf("%s/%s?ids=%s&format=json", c.baseURL, product, url.QueryEscape(airport))
	req, err := http.NewRequestWithContext(ctx, "GET", u, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errBody := httpkit.ReadErrorBody(resp.Body, 512)
		return fmt.Errorf("weather API error %d: %s", resp.StatusCode, errBody)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", product, err)
	}

	c.logger.Debug("fetched aviation weather", "product", product, "airport", airport)
	return nil
}
