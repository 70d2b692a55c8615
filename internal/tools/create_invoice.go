package tools

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/fyrsmithlabs/tripagent/internal/config"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
)

// CreateInvoiceTool is the tool name for CreateInvoice.
const CreateInvoiceTool = "CreateInvoice"

const (
	defaultInvoiceEmail = "default@example.com"
	defaultDaysUntilDue = 7
)

// NewStripeClient returns a Stripe API client. backendURL overrides the
// Stripe API endpoint and is empty in production.
func NewStripeClient(key config.Secret, backendURL string) *client.API {
	var backends *stripe.Backends
	if backendURL != "" {
		backend := stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
			URL:               stripe.String(backendURL),
			MaxNetworkRetries: stripe.Int64(0),
			LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelNull},
		})
		backends = &stripe.Backends{API: backend, Connect: backend, Uploads: backend}
	}
	return client.New(key.Value(), backends)
}

// Invoicer creates invoices through Stripe, or returns a placeholder
// invoice when no Stripe client is configured.
type Invoicer struct {
	stripe *client.API
}

// NewInvoicer returns an invoicer; sc may be nil.
func NewInvoicer(sc *client.API) *Invoicer {
	return &Invoicer{stripe: sc}
}

// Create handles the CreateInvoice tool. Stripe requests carry idempotency
// keys derived from IdempotencyKey(ctx) when one is set.
func (i *Invoicer) Create(ctx context.Context, args map[string]any) (map[string]any, error) {
	amount, ok := floatArg(args, "amount")
	if !ok || amount <= 0 {
		return nil, argumentError(CreateInvoiceTool, "Invalid amount provided. Please confirm the amount.")
	}

	if i.stripe == nil {
		return map[string]any{
			"invoiceStatus": "generated",
			"invoiceURL":    "https://pay.example.com/invoice/12345",
			"reference":     "INV-12345",
		}, nil
	}

	email := stringArg(args, "email")
	if email == "" {
		email = defaultInvoiceEmail
	}
	key := IdempotencyKey(ctx)
	customerID, err := i.ensureCustomer(ctx, key, stringArg(args, "customer_id"), email)
	if err != nil {
		return nil, err
	}

	description := stringArg(args, "tripDetails")
	if description == "" {
		description = "Service Invoice"
	}
	itemParams := &stripe.InvoiceItemParams{
		Customer:    stripe.String(customerID),
		Amount:      stripe.Int64(int64(math.Round(amount * 100))),
		Currency:    stripe.String(string(stripe.CurrencyUSD)),
		Description: stripe.String(description),
	}
	itemParams.Context = ctx
	setIdempotencyKey(&itemParams.Params, key, "invoiceitem")
	if _, err := i.stripe.InvoiceItems.New(itemParams); err != nil {
		return nil, stripeError("creating invoice item", err)
	}

	days := int64(defaultDaysUntilDue)
	if d, ok := floatArg(args, "days_until_due"); ok && d > 0 {
		days = int64(d)
	}
	invoiceParams := &stripe.InvoiceParams{
		Customer:                    stripe.String(customerID),
		CollectionMethod:            stripe.String(string(stripe.InvoiceCollectionMethodSendInvoice)),
		DaysUntilDue:                stripe.Int64(days),
		PendingInvoiceItemsBehavior: stripe.String("include"),
	}
	invoiceParams.Context = ctx
	setIdempotencyKey(&invoiceParams.Params, key, "invoice")
	invoice, err := i.stripe.Invoices.New(invoiceParams)
	if err != nil {
		return nil, stripeError("creating invoice", err)
	}

	finalizeParams := &stripe.InvoiceFinalizeInvoiceParams{}
	finalizeParams.Context = ctx
	setIdempotencyKey(&finalizeParams.Params, key, "finalize")
	finalized, err := i.stripe.Invoices.FinalizeInvoice(invoice.ID, finalizeParams)
	if err != nil {
		return nil, stripeError("finalizing invoice", err)
	}

	return map[string]any{
		"invoiceStatus": string(finalized.Status),
		"invoiceURL":    finalized.HostedInvoiceURL,
		"reference":     finalized.Number,
	}, nil
}

// ensureCustomer returns customerID if Stripe knows it, otherwise creates
// a customer for email.
func (i *Invoicer) ensureCustomer(ctx context.Context, key, customerID, email string) (string, error) {
	if customerID != "" {
		params := &stripe.CustomerParams{}
		params.Context = ctx
		_, err := i.stripe.Customers.Get(customerID, params)
		if err == nil {
			return customerID, nil
		}
		var serr *stripe.Error
		if !errors.As(err, &serr) || serr.Type != stripe.ErrorTypeInvalidRequest {
			return "", stripeError("retrieving customer", err)
		}
	}

	params := &stripe.CustomerParams{Email: stripe.String(email)}
	params.Context = ctx
	setIdempotencyKey(&params.Params, key, "customer")
	customer, err := i.stripe.Customers.New(params)
	if err != nil {
		return "", stripeError("creating customer", err)
	}
	return customer.ID, nil
}

// setIdempotencyKey scopes key to one Stripe request so a retried tool call
// replays the requests of the earlier attempt instead of creating new
// objects.
func setIdempotencyKey(p *stripe.Params, key, request string) {
	if key == "" {
		return
	}
	p.SetIdempotencyKey(key + "/" + request)
}

func stripeError(op string, err error) error {
	var serr *stripe.Error
	if errors.As(err, &serr) && serr.HTTPStatusCode != 0 {
		return &UpstreamError{Service: "stripe", StatusCode: serr.HTTPStatusCode, Body: op + ": " + serr.Msg}
	}
	return &UpstreamError{Service: "stripe", Err: fmt.Errorf("%s: %w", op, err)}
}
