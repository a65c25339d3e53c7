// Package directdebit orchestrates mandate acquisition and payment initiation
// against a redirect-based direct-debit gateway. A customer with no standing
// authorisation is sent through the gateway-hosted redirect flow; the mandate
// granted there is persisted as a reusable payment source and charged
// immediately. Later charges against a stored source skip the redirect leg.
//
// The orchestrator holds no state between invocations. The only cross-request
// coordination is the single-use session token owned by the Sessions
// collaborator. Concurrent charges against the same mandate are NOT
// deduplicated here: two concurrent calls create two gateway payments, and
// callers needing idempotency must serialise at a higher layer.
package directdebit

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/billforge/backend-billing/internal/common"
	"github.com/billforge/backend-billing/internal/gateway"
	"github.com/billforge/backend-billing/internal/invoice"
	"github.com/billforge/backend-billing/internal/obs"
	"github.com/billforge/backend-billing/internal/source"
)

// ErrMissingMandate signals a caller bug: a source was supplied whose payload
// has no mandate id. This is never folded into a failed result — retrying
// without fixing the input cannot succeed.
var ErrMissingMandate = errors.New("directdebit: supplied source has no mandate id")

// Customer-facing failure text. Internal diagnostics never reach the payer.
const (
	userMsgGatewayRejected = "The payment gateway rejected the request. Please try again later."
	userMsgTryAgain        = "The payment could not be processed. Please try again later."
	userMsgSessionExpired  = "Your authorisation session has expired. Please restart the payment."
)

// Gateway is the slice of the remote client the orchestrator invokes.
type Gateway interface {
	CreateRedirectFlow(ctx context.Context, req gateway.RedirectFlowRequest) (*gateway.RedirectFlow, error)
	CompleteRedirectFlow(ctx context.Context, flowID, sessionToken string) (*gateway.CompletedRedirectFlow, error)
	CreatePayment(ctx context.Context, req gateway.PaymentRequest) (*gateway.Payment, error)
}

// Sessions issues and consumes the single-use anti-forgery token spanning the
// redirect round trip.
type Sessions interface {
	Issue(ctx context.Context, scope string) (string, error)
	Consume(ctx context.Context, scope string) (string, error)
	Clear(ctx context.Context, scope string) error
}

// Sources persists reusable payment sources.
type Sources interface {
	Create(ctx context.Context, params source.CreateParams) (source.Source, error)
}

// Service is the mandate/charge orchestrator.
type Service struct {
	Gateway  Gateway
	Sessions Sessions
	Sources  Sources
	// SuccessURL is where the gateway sends the payer after granting a
	// mandate; the invoice id is appended so the callback can resume.
	SuccessURL string
	Logger     zerolog.Logger
}

// Charge initiates collection of pay against inv. With no source the payer is
// redirected to the gateway to grant a mandate; with a stored source the
// mandate is charged directly. Gateway failures come back as a failed Result;
// the only non-nil error is ErrMissingMandate for an unusable source.
func (s *Service) Charge(ctx context.Context, inv invoice.Invoice, pay invoice.Payment, src *source.Source) (Result, error) {
	ctx, span := otel.Tracer("directdebit.Service").Start(ctx, "DirectDebit.Charge")
	defer span.End()
	span.SetAttributes(
		attribute.String("invoice.id", inv.ID.String()),
		attribute.Bool("charge.has_source", src != nil),
	)

	var res Result
	var err error
	if src == nil {
		res = s.beginRedirect(ctx, inv)
	} else {
		res, err = s.chargeSource(ctx, inv, pay, *src)
	}

	if obs.ChargeTotal != nil {
		obs.ChargeTotal.WithLabelValues(source.DriverDirectDebit, chargeOutcome(res, err)).Inc()
	}
	span.SetAttributes(attribute.String("charge.result", chargeOutcome(res, err)))
	return res, err
}

func (s *Service) beginRedirect(ctx context.Context, inv invoice.Invoice) Result {
	token, err := s.Sessions.Issue(ctx, inv.ID.String())
	if err != nil {
		return s.failed(FailureSessionStore, fmt.Sprintf("issue session token: %v", err), userMsgTryAgain)
	}

	flow, err := s.Gateway.CreateRedirectFlow(ctx, gateway.RedirectFlowRequest{
		SessionToken:       token,
		SuccessRedirectURL: s.successURL(inv),
		Description:        "Invoice " + inv.Ref,
		PrefilledCustomer: &gateway.PrefilledCustomer{
			GivenName:    inv.Customer.GivenName,
			FamilyName:   inv.Customer.FamilyName,
			CompanyName:  inv.Customer.CompanyName,
			Email:        inv.Customer.Email,
			AddressLine1: inv.Billing.Line1,
			City:         inv.Billing.City,
			PostalCode:   inv.Billing.PostalCode,
			CountryCode:  inv.Billing.CountryCode,
		},
	})
	if err != nil {
		// the stored token would dangle until TTL; drop it so a retry starts clean
		_ = s.Sessions.Clear(ctx, inv.ID.String())
		return s.gatewayFailure(err, userMsgGatewayRejected)
	}
	return Redirecting(flow.RedirectURL)
}

func (s *Service) chargeSource(ctx context.Context, inv invoice.Invoice, pay invoice.Payment, src source.Source) (Result, error) {
	mandateID, err := src.MandateID()
	if err != nil {
		// caller bug, not a gateway failure: surfaced as a hard error so the
		// caller fixes the input instead of retrying
		return Result{}, fmt.Errorf("%w: source %s", ErrMissingMandate, src.ID)
	}
	return s.createPayment(ctx, inv, pay, mandateID), nil
}

// Complete finalises the redirect round trip. The stored session token is
// consumed no matter how the completion turns out: the handshake is
// single-use. A fresh payment source is created unconditionally — two
// completions mean two sources, deduplication is the caller's concern.
func (s *Service) Complete(ctx context.Context, params url.Values, inv invoice.Invoice, pay invoice.Payment) Result {
	ctx, span := otel.Tracer("directdebit.Service").Start(ctx, "DirectDebit.Complete")
	defer span.End()
	span.SetAttributes(attribute.String("invoice.id", inv.ID.String()))

	res := s.complete(ctx, params, inv, pay)
	if obs.CompleteTotal != nil {
		obs.CompleteTotal.WithLabelValues(source.DriverDirectDebit, string(res.State)).Inc()
	}
	span.SetAttributes(attribute.String("complete.result", string(res.State)))
	return res
}

func (s *Service) complete(ctx context.Context, params url.Values, inv invoice.Invoice, pay invoice.Payment) Result {
	flowID := params.Get("redirect_flow_id")
	if flowID == "" {
		// nothing to finalise; the stored token, if any, stays put
		return s.failed(FailureMissingFlowID, "callback missing redirect_flow_id parameter", userMsgTryAgain)
	}

	token, err := s.Sessions.Consume(ctx, inv.ID.String())
	if err != nil {
		return s.failed(FailureMissingToken, fmt.Sprintf("consume session token: %v", err), userMsgSessionExpired)
	}

	completed, err := s.Gateway.CompleteRedirectFlow(ctx, flowID, token)
	if err != nil {
		return s.gatewayFailure(err, userMsgTryAgain)
	}

	if _, err := s.Sources.Create(ctx, source.CreateParams{
		CustomerID: inv.Customer.ID,
		Driver:     source.DriverDirectDebit,
		MandateID:  completed.MandateID,
	}); err != nil {
		return s.failed(FailureSourceStore, fmt.Sprintf("persist source for mandate %s: %v", completed.MandateID, err), userMsgTryAgain)
	}

	return s.createPayment(ctx, inv, pay, completed.MandateID)
}

// Refund is intentionally unsupported.
func (s *Service) Refund(context.Context, invoice.Payment) (Result, error) {
	return Result{}, fmt.Errorf("refund: %w", common.ErrNotImplemented)
}

func (s *Service) createPayment(ctx context.Context, inv invoice.Invoice, pay invoice.Payment, mandateID string) Result {
	payment, err := s.Gateway.CreatePayment(ctx, gateway.PaymentRequest{
		MandateID:   mandateID,
		Amount:      pay.Amount,
		Currency:    pay.Currency,
		Description: pay.Description,
		Metadata:    paymentMetadata(inv, pay.Metadata),
	})
	if err != nil {
		return s.gatewayFailure(err, userMsgTryAgain)
	}
	return Processing(payment.ID, Fee(pay.Amount))
}

// gatewayFailure folds a gateway client error into a terminal failed result,
// keeping a distinct internal code per failure category.
func (s *Service) gatewayFailure(err error, userMessage string) Result {
	code := FailureInternal
	if gwErr, ok := gateway.AsError(err); ok {
		switch gwErr.Kind {
		case gateway.KindConnectivity:
			code = FailureGatewayUnreachable
		case gateway.KindRejected:
			code = FailureGatewayRejected
		case gateway.KindMalformed:
			code = FailureGatewayBadResponse
		}
	}
	return s.failed(code, err.Error(), userMessage)
}

func (s *Service) failed(code, internalMessage, userMessage string) Result {
	s.Logger.Error().
		Str("failure_code", code).
		Str("detail", internalMessage).
		Msg("direct debit flow failed")
	return Failure(code, internalMessage, userMessage)
}

func (s *Service) successURL(inv invoice.Invoice) string {
	u, err := url.Parse(s.SuccessURL)
	if err != nil || s.SuccessURL == "" {
		return s.SuccessURL
	}
	q := u.Query()
	q.Set("invoice_id", inv.ID.String())
	u.RawQuery = q.Encode()
	return u.String()
}

func chargeOutcome(res Result, err error) string {
	if err != nil {
		return "invalid_source"
	}
	return string(res.State)
}
