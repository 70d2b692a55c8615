package tools

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/fyrsmithlabs/tripagent/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const itinerariesJSON = `{"data":{"itineraries":[
 {"price":{"raw":850.5},"legs":[
   {"segments":[{"flightNumber":"101","operatingCarrier":{"name":"Cathay Pacific","alternateId":"CX"}}]},
   {"segments":[{"flightNumber":"102","operatingCarrier":{"name":"Cathay Pacific","alternateId":"CX"}}]}]},
 {"price":{"raw":900},"legs":[
   {"segments":[{"flightNumber":"7","operatingCarrier":{"name":"Cathay Pacific","alternateId":"CX"}}]},
   {"segments":[{"flightNumber":"8","operatingCarrier":{"name":"Cathay Pacific","alternateId":"CX"}}]}]},
 {"price":{"raw":910},"legs":[
   {"segments":[{"flightNumber":"33","operatingCarrier":{"name":"Qantas","alternateId":"QF"}}]}]},
 {"price":{"raw":920},"legs":[
   {"segments":[{"flightNumber":"74","operatingCarrier":{"name":"Qantas","alternateId":"QF"}}]},
   {"segments":[{"flightNumber":"73","operatingCarrier":{"name":"Qantas","alternateId":"QF"}}]}]},
 {"price":{"raw":990},"legs":[
   {"segments":[{"flightNumber":"871","operatingCarrier":{"name":"United","alternateId":"UA"}}]},
   {"segments":[{"flightNumber":"870","operatingCarrier":{"name":"United","alternateId":"UA"}}]}]},
 {"price":{"raw":1000},"legs":[
   {"segments":[{"flightNumber":"1","operatingCarrier":{"name":"Air New Zealand","alternateId":"NZ"}}]},
   {"segments":[{"flightNumber":"2","operatingCarrier":{"name":"Air New Zealand","alternateId":"NZ"}}]}]}
]}}`

func newRapidAPITestClient(t *testing.T, handler http.HandlerFunc) *RapidAPIClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewRapidAPIClient(RapidAPIConfig{
		APIKey:  config.Secret("test-key"),
		BaseURL: srv.URL,
		Rate:    1000,
		Burst:   10,
	})
	require.NoError(t, err)
	return c
}

func TestRapidAPI_SearchFlights(t *testing.T) {
	var searchQuery map[string]string
	c := newRapidAPITestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("x-rapidapi-key"))
		assert.Equal(t, defaultRapidAPIHost, r.Header.Get("x-rapidapi-host"))

		switch r.URL.Path {
		case "/api/v1/flights/searchAirport":
			if r.URL.Query().Get("query") == "San Francisco" {
				w.Write([]byte(`{"data":[{"navigation":{"relevantFlightParams":{"skyId":"SFO","entityId":"1"}}}]}`))
				return
			}
			w.Write([]byte(`{"data":[{"navigation":{"relevantFlightParams":{"skyId":"SYD","entityId":"2"}}}]}`))
		case "/api/v2/flights/searchFlights":
			searchQuery = map[string]string{}
			for k := range r.URL.Query() {
				searchQuery[k] = r.URL.Query().Get(k)
			}
			w.Write([]byte(itinerariesJSON))
		default:
			http.NotFound(w, r)
		}
	})

	s := NewFlightSearcher(c)
	out, err := s.Search(context.Background(), map[string]any{
		"origin":      "San Francisco",
		"destination": "Sydney",
		"dateDepart":  "2025-05-20",
		"dateReturn":  "2025-06-02",
	})
	require.NoError(t, err)

	assert.Equal(t, "SFO", searchQuery["originSkyId"])
	assert.Equal(t, "2", searchQuery["destinationEntityId"])
	assert.Equal(t, "2025-05-20", searchQuery["date"])
	assert.Equal(t, "2025-06-02", searchQuery["returnDate"])
	assert.Equal(t, "economy", searchQuery["cabinClass"])

	results := out["results"].([]map[string]any)
	require.Len(t, results, 3)
	assert.Equal(t, "CX101", results[0]["outbound_flight_code"])
	assert.Equal(t, "CX102", results[0]["return_flight_code"])
	assert.Equal(t, 850.5, results[0]["price"])
	assert.Equal(t, "Qantas", results[1]["operating_carrier"])
	assert.Equal(t, "QF74", results[1]["outbound_flight_code"])
	assert.Equal(t, "United", results[2]["operating_carrier"])
	assert.Equal(t, "USD", out["currency"])
}

func TestRapidAPI_NoAirportMatch(t *testing.T) {
	c := newRapidAPITestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[]}`))
	})

	_, err := c.SearchFlights(context.Background(), FlightQuery{Origin: "Atlantis", Destination: "Sydney"})
	var argErr *ArgumentError
	require.True(t, errors.As(err, &argErr))
	assert.Equal(t, "No matches found for origin/destination", argErr.Message)
}

func TestRapidAPI_EmptyItinerariesPassThrough(t *testing.T) {
	c := newRapidAPITestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/v1/flights/searchAirport" {
			w.Write([]byte(`{"data":[{"navigation":{"relevantFlightParams":{"skyId":"X","entityId":"1"}}}]}`))
			return
		}
		w.Write([]byte(`{"status":false,"message":"no flights"}`))
	})

	out, err := c.SearchFlights(context.Background(), FlightQuery{Origin: "A", Destination: "B"})
	require.NoError(t, err)
	assert.Equal(t, "no flights", out["message"])
}

func TestRapidAPI_UpstreamErrors(t *testing.T) {
	tests := []struct {
		status    int
		retryable bool
	}{
		{http.StatusTooManyRequests, true},
		{http.StatusBadGateway, true},
		{http.StatusForbidden, false},
	}
	for _, tt := range tests {
		c := newRapidAPITestClient(t, func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "nope", tt.status)
		})

		_, err := c.SearchFlights(context.Background(), FlightQuery{Origin: "A", Destination: "B"})
		var upErr *UpstreamError
		require.True(t, errors.As(err, &upErr))
		assert.Equal(t, tt.status, upErr.StatusCode)
		assert.Equal(t, tt.retryable, upErr.Retryable())
	}
}

func TestNewRapidAPIClient_RequiresKey(t *testing.T) {
	_, err := NewRapidAPIClient(RapidAPIConfig{})
	assert.Error(t, err)
}
