package stripe

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v84"

	pkgerrors "github.com/angelmondragon/commerce-core/pkg/errors"
	"github.com/angelmondragon/commerce-core/pkg/logger"
)

const defaultCallTimeout = 10 * time.Second

// RefundRequest is the provider-neutral refund call.
type RefundRequest struct {
	PaymentRef     string
	AmountCents    int64
	IdempotencyKey string
	Metadata       map[string]string
}

// RefundResult carries the provider reference of an accepted refund.
type RefundResult struct {
	ProviderRefundRef string
	Status            string
}

// Settled reports whether the provider finished moving the money. Pending and
// requires_action refunds can still fail.
func (r RefundResult) Settled() bool {
	return r.Status == string(stripe.RefundStatusSucceeded)
}

type refundCreator func(ctx context.Context, params *stripe.RefundCreateParams) (*stripe.Refund, error)

type refundRetriever func(ctx context.Context, id string, params *stripe.RefundRetrieveParams) (*stripe.Refund, error)

type intentCapturer func(ctx context.Context, id string, params *stripe.PaymentIntentCaptureParams) (*stripe.PaymentIntent, error)

// Gateway exposes capture and refund with a bounded timeout. Transient failures
// surface as GATEWAY_TIMEOUT so callers retry with the same idempotency key;
// definitive rejections surface as GATEWAY_ERROR.
type Gateway struct {
	timeout time.Duration
	logg    *logger.Logger
	refund  refundCreator
	lookup  refundRetriever
	capture intentCapturer
}

// NewGateway builds a gateway on top of an initialized client.
func NewGateway(client *Client, timeout time.Duration, logg *logger.Logger) (*Gateway, error) {
	if client == nil || client.API() == nil {
		return nil, errors.New("stripe client required")
	}
	if timeout <= 0 {
		timeout = defaultCallTimeout
	}
	return &Gateway{
		timeout: timeout,
		logg:    logg,
		refund:  client.API().V1Refunds.Create,
		lookup:  client.API().V1Refunds.Retrieve,
		capture: client.API().V1PaymentIntents.Capture,
	}, nil
}

// RefundPayment refunds amount against the payment intent.
func (g *Gateway) RefundPayment(ctx context.Context, req RefundRequest) (RefundResult, error) {
	if strings.TrimSpace(req.PaymentRef) == "" {
		return RefundResult{}, pkgerrors.New(pkgerrors.CodeValidation, "payment reference is required")
	}
	if req.AmountCents <= 0 {
		return RefundResult{}, pkgerrors.New(pkgerrors.CodeValidation, "refund amount must be positive")
	}
	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	params := &stripe.RefundCreateParams{
		PaymentIntent: stripe.String(req.PaymentRef),
		Amount:        stripe.Int64(req.AmountCents),
	}
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}
	for key, value := range req.Metadata {
		params.AddMetadata(key, value)
	}

	result, err := g.refund(callCtx, params)
	if err != nil {
		return RefundResult{}, classify(callCtx, err, "refund payment")
	}
	return refundResult(result)
}

// RefundStatus looks up a refund the provider accepted but had not settled.
// A later failure or cancellation surfaces as GATEWAY_ERROR.
func (g *Gateway) RefundStatus(ctx context.Context, providerRefundRef string) (RefundResult, error) {
	if strings.TrimSpace(providerRefundRef) == "" {
		return RefundResult{}, pkgerrors.New(pkgerrors.CodeValidation, "provider refund reference is required")
	}
	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	result, err := g.lookup(callCtx, providerRefundRef, &stripe.RefundRetrieveParams{})
	if err != nil {
		return RefundResult{}, classify(callCtx, err, "retrieve refund")
	}
	return refundResult(result)
}

func refundResult(refund *stripe.Refund) (RefundResult, error) {
	status := string(refund.Status)
	switch refund.Status {
	case stripe.RefundStatusFailed, stripe.RefundStatusCanceled:
		return RefundResult{}, pkgerrors.New(pkgerrors.CodeGatewayError, "refund rejected by provider").
			WithDetails(map[string]any{"provider_refund_ref": refund.ID, "status": status})
	}
	return RefundResult{ProviderRefundRef: refund.ID, Status: status}, nil
}

// CapturePayment asks the provider to capture an authorized payment intent.
// The resulting webhook drives the order transition.
func (g *Gateway) CapturePayment(ctx context.Context, paymentRef, idempotencyKey string) error {
	if strings.TrimSpace(paymentRef) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "payment reference is required")
	}
	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	params := &stripe.PaymentIntentCaptureParams{}
	if idempotencyKey != "" {
		params.SetIdempotencyKey(idempotencyKey)
	}
	if _, err := g.capture(callCtx, paymentRef, params); err != nil {
		return classify(callCtx, err, "capture payment")
	}
	return nil
}

func classify(ctx context.Context, err error, op string) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return pkgerrors.Wrap(pkgerrors.CodeGatewayTimeout, err, op+" timed out")
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return pkgerrors.Wrap(pkgerrors.CodeGatewayTimeout, err, op+" transport failure")
	}
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		details := map[string]any{
			"http_status": stripeErr.HTTPStatusCode,
			"type":        string(stripeErr.Type),
			"code":        string(stripeErr.Code),
		}
		if isTransientStatus(stripeErr.HTTPStatusCode) {
			return pkgerrors.Wrap(pkgerrors.CodeGatewayTimeout, err, op+" transient provider failure").WithDetails(details)
		}
		return pkgerrors.Wrap(pkgerrors.CodeGatewayError, err, op+" rejected by provider").WithDetails(details)
	}
	return pkgerrors.Wrap(pkgerrors.CodeGatewayTimeout, err, op+" failed")
}

func isTransientStatus(status int) bool {
	return status == 0 ||
		status == http.StatusConflict ||
		status == http.StatusTooManyRequests ||
		status >= http.StatusInternalServerError
}
