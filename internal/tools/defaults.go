package tools

import (
	"fmt"

	"github.com/fyrsmithlabs/tripagent/internal/config"
)

// NewDefaultRegistry wires the built-in tools. Live flight search and
// Stripe invoicing are used when their keys are configured.
func NewDefaultRegistry(cfg config.ToolsConfig) (*Registry, error) {
	events, err := NewEventFinder(cfg.EventsFile)
	if err != nil {
		return nil, fmt.Errorf("loading events: %w", err)
	}

	var api *RapidAPIClient
	if cfg.RapidAPIKey.IsSet() {
		api, err = NewRapidAPIClient(RapidAPIConfig{
			APIKey:  cfg.RapidAPIKey,
			Host:    cfg.RapidAPIHost,
			Timeout: cfg.HTTPTimeout.Duration(),
		})
		if err != nil {
			return nil, err
		}
	}

	invoicer := NewInvoicer(nil)
	if cfg.StripeAPIKey.IsSet() {
		invoicer = NewInvoicer(NewStripeClient(cfg.StripeAPIKey, ""))
	}

	return NewRegistry(map[string]Handler{
		FindEventsTool:    events.Find,
		SearchFlightsTool: NewFlightSearcher(api).Search,
		CreateInvoiceTool: invoicer.Create,
	}), nil
}
