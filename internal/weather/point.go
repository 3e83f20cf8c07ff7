package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aviara/copilot/internal/cache"
	"github.com/aviara/copilot/internal/httpkit"
)

// DefaultPointTTL is how long point conditions stay cached. Weather data
// is approximate and short-lived; a burst of tool calls for the same
// place should hit upstream once.
const DefaultPointTTL = 5 * time.Minute

// Conditions are current surface conditions for a populated place.
type Conditions struct {
	City       string  `json:"city"`
	Region     string  `json:"region,omitempty"`
	Country    string  `json:"country,omitempty"`
	TempC      float64 `json:"temp_c"`
	Condition  string  `json:"condition"`
	WindKph    float64 `json:"wind_kph"`
	Humidity   int     `json:"humidity"`
	ObservedAt string  `json:"observed_at,omitempty"`
}

// PointClient fetches current conditions for a city, caching results per
// unique (city, region, country) key.
type PointClient struct {
	baseURL    string
	httpClient *http.Client
	cache      cache.Cache
	ttl        time.Duration
	logger     *slog.Logger
}

// NewPointClient creates a point weather client. The cache is required;
// pass cache.NewMemory() when no shared backend is configured.
func NewPointClient(baseURL string, c cache.Cache, ttl time.Duration, logger *slog.Logger) *PointClient {
	if ttl <= 0 {
		ttl = DefaultPointTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PointClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		cache:   c,
		ttl:     ttl,
		logger:  logger.With("component", "point-weather"),
		httpClient: httpkit.NewClient(
			httpkit.WithTimeout(15 * time.Second),
		),
	}
}

// Current returns conditions for the place, consulting the cache first.
func (c *PointClient) Current(ctx context.Context, city, region, country string) (*Conditions, error) {
	city = strings.TrimSpace(city)
	if city == "" {
		return nil, fmt.Errorf("city is required")
	}

	key := cacheKey(city, region, country)
	if cached, err := c.cache.Get(ctx, key); err == nil {
		var cond Conditions
		if err := json.Unmarshal([]byte(cached), &cond); err == nil {
			c.logger.Debug("point weather cache hit", "key", key)
			return &cond, nil
		}
		// Unreadable cache entries fall through to a fresh fetch.
	} else if !errors.Is(err, cache.ErrMiss) {
		// A broken cache backend must not take the tool down.
		c.logger.Warn("point weather cache read failed", "key", key, "error", err)
	}

	cond, err := c.fetch(ctx, city, region, country)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(cond); err == nil {
		if err := c.cache.Set(ctx, key, string(data), c.ttl); err != nil {
			c.logger.Warn("point weather cache write failed", "key", key, "error", err)
		}
	}

	return cond, nil
}

func (c *PointClient) fetch(ctx context.Context, city, region, country string) (*Conditions, error) {
	q := url.Values{}
	q.Set("city", city)
	if region != "" {
		q.Set("region", region)
	}
	if country != "" {
		q.Set("country", country)
	}

	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/current?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errBody := httpkit.ReadErrorBody(resp.Body, 512)
		return nil, fmt.Errorf("weather API error %d: %s", resp.StatusCode, errBody)
	}

	var cond Conditions
	if err := json.NewDecoder(resp.Body).Decode(&cond); err != nil {
		return nil, fmt.Errorf("decode conditions: %w", err)
	}
	if cond.City == "" {
		cond.City = city
	}

	return &cond, nil
}

// cacheKey normalizes the place triple into one cache key.
func cacheKey(city, region, country string) string {
	norm := func(s string) string { return strings.ToLower(strings.TrimSpace(s)) }
	return fmt.Sprintf("wx:point:%s|%s|%s", norm(city), norm(region), norm(country))
}
