package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/fyrsmithlabs/tripagent/internal/config"
	"golang.org/x/time/rate"
)

const (
	defaultRapidAPIHost = "sky-scrapper.p.rapidapi.com"
	maxResponseBytes    = 4 << 20
	maxCarriers         = 3
)

// UpstreamError reports a failed call to a third-party API.
type UpstreamError struct {
	Service    string
	StatusCode int
	Body       string
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s request error: %v", e.Service, e.Err)
	}
	return fmt.Sprintf("%s returned status %d: %s", e.Service, e.StatusCode, e.Body)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// Retryable reports whether the same request may succeed later.
func (e *UpstreamError) Retryable() bool {
	return e.Err != nil || e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// RapidAPIConfig configures the sky-scrapper client.
type RapidAPIConfig struct {
	APIKey  config.Secret
	Host    string
	BaseURL string // defaults to https://<Host>
	Timeout time.Duration
	Rate    rate.Limit
	Burst   int
}

// RapidAPIClient calls the sky-scrapper flight API on RapidAPI.
type RapidAPIClient struct {
	apiKey     config.Secret
	host       string
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewRapidAPIClient returns a client, or an error when no key is set.
func NewRapidAPIClient(cfg RapidAPIConfig) (*RapidAPIClient, error) {
	if !cfg.APIKey.IsSet() {
		return nil, fmt.Errorf("rapidapi key required")
	}
	host := cfg.Host
	if host == "" {
		host = defaultRapidAPIHost
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://" + host
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	limit, burst := cfg.Rate, cfg.Burst
	if limit <= 0 {
		limit = 2
	}
	if burst <= 0 {
		burst = 4
	}
	return &RapidAPIClient{
		apiKey:     cfg.APIKey,
		host:       host,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(limit, burst),
	}, nil
}

// FlightQuery is a return-trip search.
type FlightQuery struct {
	Origin      string
	Destination string
	DateDepart  string
	DateReturn  string
}

type flightParams struct {
	SkyID    string `json:"skyId"`
	EntityID string `json:"entityId"`
}

type airportResponse struct {
	Data []struct {
		Navigation struct {
			RelevantFlightParams flightParams `json:"relevantFlightParams"`
		} `json:"navigation"`
	} `json:"data"`
}

type segment struct {
	FlightNumber     string `json:"flightNumber"`
	OperatingCarrier struct {
		Name        string `json:"name"`
		AlternateID string `json:"alternateId"`
	} `json:"operatingCarrier"`
}

type itinerary struct {
	Price struct {
		Raw float64 `json:"raw"`
	} `json:"price"`
	Legs []struct {
		Segments []segment `json:"segments"`
	} `json:"legs"`
}

type flightsResponse struct {
	Data struct {
		Itineraries []itinerary `json:"itineraries"`
	} `json:"data"`
}

// SearchFlights resolves both places to sky ids, then searches economy
// return flights and keeps the first offer from each of up to three
// carriers.
func (c *RapidAPIClient) SearchFlights(ctx context.Context, q FlightQuery) (map[string]any, error) {
	origin, err := c.searchAirport(ctx, q.Origin)
	if err != nil {
		return nil, err
	}
	dest, err := c.searchAirport(ctx, q.Destination)
	if err != nil {
		return nil, err
	}
	if origin == nil || dest == nil {
		return nil, argumentError(SearchFlightsTool, "No matches found for origin/destination")
	}

	params := url.Values{
		"originSkyId":         {origin.SkyID},
		"destinationSkyId":    {dest.SkyID},
		"originEntityId":      {origin.EntityID},
		"destinationEntityId": {dest.EntityID},
		"date":                {q.DateDepart},
		"returnDate":          {q.DateReturn},
		"cabinClass":          {"economy"},
		"adults":              {"1"},
		"sortBy":              {"best"},
		"currency":            {"USD"},
		"market":              {"en-US"},
		"countryCode":         {"US"},
	}
	body, err := c.get(ctx, "/api/v2/flights/searchFlights", params)
	if err != nil {
		return nil, err
	}

	var resp flightsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decoding flight search response: %w", err)
	}
	if len(resp.Data.Itineraries) == 0 {
		// Pass the raw payload through so the planner can explain it.
		var raw map[string]any
		if err := json.Unmarshal(body, &raw); err != nil {
			return nil, fmt.Errorf("decoding flight search response: %w", err)
		}
		return raw, nil
	}

	results := []map[string]any{}
	seen := make(map[string]bool)
	for _, it := range resp.Data.Itineraries {
		if len(it.Legs) < 2 {
			continue
		}
		out, ret := firstSegment(it.Legs[0].Segments), firstSegment(it.Legs[1].Segments)
		carrier := carrierName(out)
		if seen[carrier] {
			continue
		}
		seen[carrier] = true
		results = append(results, map[string]any{
			"outbound_flight_code":     flightCode(out),
			"operating_carrier":        carrier,
			"return_flight_code":       flightCode(ret),
			"return_operating_carrier": carrierName(ret),
			"price":                    it.Price.Raw,
		})
		if len(results) >= maxCarriers {
			break
		}
	}

	return map[string]any{
		"origin":      q.Origin,
		"destination": q.Destination,
		"currency":    "USD",
		"results":     results,
	}, nil
}

func firstSegment(segs []segment) segment {
	if len(segs) == 0 {
		return segment{}
	}
	return segs[0]
}

func carrierName(s segment) string {
	if s.OperatingCarrier.Name == "" {
		return "N/A"
	}
	return s.OperatingCarrier.Name
}

func flightCode(s segment) string {
	number := s.FlightNumber
	if number == "" {
		number = "N/A"
	}
	return s.OperatingCarrier.AlternateID + number
}

// searchAirport returns the first match for query, or nil when there is none.
func (c *RapidAPIClient) searchAirport(ctx context.Context, query string) (*flightParams, error) {
	body, err := c.get(ctx, "/api/v1/flights/searchAirport", url.Values{
		"query":  {query},
		"locale": {"en-US"},
	})
	if err != nil {
		return nil, err
	}
	var resp airportResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decoding airport search response: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, nil
	}
	p := resp.Data[0].Navigation.RelevantFlightParams
	return &p, nil
}

func (c *RapidAPIClient) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter error: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("x-rapidapi-key", c.apiKey.Value())
	req.Header.Set("x-rapidapi-host", c.host)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &UpstreamError{Service: "rapidapi", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &UpstreamError{Service: "rapidapi", Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &UpstreamError{Service: "rapidapi", StatusCode: resp.StatusCode, Body: truncate(string(body), 200)}
	}
	return body, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
