package directdebit_test

import (
	"context"
	"fmt"
	"net/url"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/billforge/backend-billing/internal/directdebit"
	"github.com/billforge/backend-billing/internal/gateway"
	"github.com/billforge/backend-billing/internal/invoice"
	"github.com/billforge/backend-billing/internal/session"
	"github.com/billforge/backend-billing/internal/source"
)

type fakeGateway struct {
	flowResp    *gateway.RedirectFlow
	flowErr     error
	completeResp *gateway.CompletedRedirectFlow
	completeErr  error
	paymentResp *gateway.Payment
	paymentErr  error

	flowCalls     int
	completeCalls int
	paymentCalls  int

	lastFlowReq       gateway.RedirectFlowRequest
	lastCompleteFlow  string
	lastCompleteToken string
	lastPaymentReq    gateway.PaymentRequest
}

func (f *fakeGateway) CreateRedirectFlow(_ context.Context, req gateway.RedirectFlowRequest) (*gateway.RedirectFlow, error) {
	f.flowCalls++
	f.lastFlowReq = req
	if f.flowErr != nil {
		return nil, f.flowErr
	}
	return f.flowResp, nil
}

func (f *fakeGateway) CompleteRedirectFlow(_ context.Context, flowID, token string) (*gateway.CompletedRedirectFlow, error) {
	f.completeCalls++
	f.lastCompleteFlow = flowID
	f.lastCompleteToken = token
	if f.completeErr != nil {
		return nil, f.completeErr
	}
	return f.completeResp, nil
}

func (f *fakeGateway) CreatePayment(_ context.Context, req gateway.PaymentRequest) (*gateway.Payment, error) {
	f.paymentCalls++
	f.lastPaymentReq = req
	if f.paymentErr != nil {
		return nil, f.paymentErr
	}
	return f.paymentResp, nil
}

type fakeSessions struct {
	tokens   map[string]string
	issued   int
	consumed int
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{tokens: map[string]string{}}
}

func (f *fakeSessions) Issue(_ context.Context, scope string) (string, error) {
	f.issued++
	token := fmt.Sprintf("tok-%d", f.issued)
	f.tokens[scope] = token
	return token, nil
}

func (f *fakeSessions) Consume(_ context.Context, scope string) (string, error) {
	f.consumed++
	token, ok := f.tokens[scope]
	if !ok {
		return "", session.ErrNoToken
	}
	delete(f.tokens, scope)
	return token, nil
}

func (f *fakeSessions) Clear(_ context.Context, scope string) error {
	delete(f.tokens, scope)
	return nil
}

type fakeSources struct {
	created []source.CreateParams
	err     error
}

func (f *fakeSources) Create(_ context.Context, params source.CreateParams) (source.Source, error) {
	if f.err != nil {
		return source.Source{}, f.err
	}
	f.created = append(f.created, params)
	return source.Source{
		ID:         uuid.New(),
		CustomerID: params.CustomerID,
		Driver:     params.Driver,
		Payload:    map[string]string{"mandate_id": params.MandateID},
	}, nil
}

func testInvoice() invoice.Invoice {
	return invoice.Invoice{
		ID:  uuid.New(),
		Ref: "INV-7",
		Customer: invoice.Customer{
			ID:         uuid.New(),
			GivenName:  "Jane",
			FamilyName: "Doe",
			Email:      "jane@example.com",
		},
		Billing: invoice.Address{Line1: "1 High St", City: "London", PostalCode: "N1 9GU", CountryCode: "GB"},
	}
}

func testPayment(inv invoice.Invoice, amount int64) invoice.Payment {
	return invoice.Payment{
		ID:          uuid.New(),
		InvoiceID:   inv.ID,
		Amount:      amount,
		Currency:    "GBP",
		Description: "Invoice " + inv.Ref,
		Status:      invoice.PaymentStatusPending,
	}
}

func newService(gw *fakeGateway, sessions *fakeSessions, sources *fakeSources) *directdebit.Service {
	return &directdebit.Service{
		Gateway:    gw,
		Sessions:   sessions,
		Sources:    sources,
		SuccessURL: "https://shop.example/v1/directdebit/callback",
		Logger:     zerolog.Nop(),
	}
}

func TestChargeWithoutSourceRedirects(t *testing.T) {
	gw := &fakeGateway{flowResp: &gateway.RedirectFlow{ID: "RE123", RedirectURL: "https://pay.example/flow/RE123"}}
	sessions := newFakeSessions()
	svc := newService(gw, sessions, &fakeSources{})
	inv := testInvoice()

	res, err := svc.Charge(context.Background(), inv, testPayment(inv, 1000), nil)
	require.NoError(t, err)
	require.Equal(t, directdebit.StateRedirecting, res.State)
	require.Equal(t, "https://pay.example/flow/RE123", res.RedirectURL)

	// exactly one token stored before the gateway was called, and it travelled
	// on the redirect-flow request
	require.Equal(t, 1, sessions.issued)
	require.Equal(t, sessions.tokens[inv.ID.String()], gw.lastFlowReq.SessionToken)
	require.Equal(t, "jane@example.com", gw.lastFlowReq.PrefilledCustomer.Email)
	require.Contains(t, gw.lastFlowReq.SuccessRedirectURL, "invoice_id="+inv.ID.String())
	require.Zero(t, gw.paymentCalls)
}

func TestChargeWithoutSourceGatewayRejection(t *testing.T) {
	gw := &fakeGateway{flowErr: &gateway.Error{Kind: gateway.KindRejected, Op: "create_redirect_flow", StatusCode: 422, Body: "bad address"}}
	sessions := newFakeSessions()
	svc := newService(gw, sessions, &fakeSources{})
	inv := testInvoice()

	res, err := svc.Charge(context.Background(), inv, testPayment(inv, 1000), nil)
	require.NoError(t, err)
	require.Equal(t, directdebit.StateFailed, res.State)
	require.Equal(t, directdebit.FailureGatewayRejected, res.FailureCode)
	// operator diagnostics keep the detail, the customer never sees it
	require.Contains(t, res.FailureMessage, "bad address")
	require.NotContains(t, res.UserMessage, "bad address")
	require.NotEmpty(t, res.UserMessage)
	// no dangling token for a redirect that never opened
	require.NotContains(t, sessions.tokens, inv.ID.String())
}

func TestChargeFailureCodesPerGatewayKind(t *testing.T) {
	cases := []struct {
		kind gateway.Kind
		code string
	}{
		{gateway.KindConnectivity, directdebit.FailureGatewayUnreachable},
		{gateway.KindRejected, directdebit.FailureGatewayRejected},
		{gateway.KindMalformed, directdebit.FailureGatewayBadResponse},
	}
	for _, tc := range cases {
		t.Run(tc.code, func(t *testing.T) {
			gw := &fakeGateway{flowErr: &gateway.Error{Kind: tc.kind, Op: "create_redirect_flow"}}
			svc := newService(gw, newFakeSessions(), &fakeSources{})
			inv := testInvoice()

			res, err := svc.Charge(context.Background(), inv, testPayment(inv, 1000), nil)
			require.NoError(t, err)
			require.Equal(t, directdebit.StateFailed, res.State)
			require.Equal(t, tc.code, res.FailureCode)
		})
	}
}

func TestChargeWithSourceChargesMandateDirectly(t *testing.T) {
	gw := &fakeGateway{paymentResp: &gateway.Payment{ID: "PM1", Status: "pending_submission"}}
	sessions := newFakeSessions()
	svc := newService(gw, sessions, &fakeSources{})
	inv := testInvoice()
	src := source.Source{
		ID:         uuid.New(),
		CustomerID: inv.Customer.ID,
		Driver:     source.DriverDirectDebit,
		Payload:    map[string]string{"mandate_id": "MD123"},
	}

	res, err := svc.Charge(context.Background(), inv, testPayment(inv, 1000), &src)
	require.NoError(t, err)
	require.Equal(t, directdebit.StateProcessing, res.State)
	require.Equal(t, "PM1", res.TransactionID)
	require.Equal(t, int64(10), res.Fee)

	// no redirect leg: no token issued, no flow created
	require.Zero(t, sessions.issued)
	require.Zero(t, gw.flowCalls)
	require.Equal(t, "MD123", gw.lastPaymentReq.MandateID)
	require.Equal(t, inv.ID.String(), gw.lastPaymentReq.Metadata["invoiceId"])
	require.Equal(t, "INV-7", gw.lastPaymentReq.Metadata["invoiceRef"])
}

func TestChargeWithSourceMissingMandateIsCallerError(t *testing.T) {
	gw := &fakeGateway{paymentResp: &gateway.Payment{ID: "PM1"}}
	svc := newService(gw, newFakeSessions(), &fakeSources{})
	inv := testInvoice()
	src := source.Source{ID: uuid.New(), CustomerID: inv.Customer.ID, Payload: map[string]string{}}

	_, err := svc.Charge(context.Background(), inv, testPayment(inv, 1000), &src)
	require.ErrorIs(t, err, directdebit.ErrMissingMandate)
	require.Zero(t, gw.paymentCalls)
}

func TestCompleteMissingFlowIDMakesNoRemoteCall(t *testing.T) {
	gw := &fakeGateway{}
	sessions := newFakeSessions()
	svc := newService(gw, sessions, &fakeSources{})
	inv := testInvoice()

	_, err := sessions.Issue(context.Background(), inv.ID.String())
	require.NoError(t, err)

	res := svc.Complete(context.Background(), url.Values{}, inv, testPayment(inv, 1000))
	require.Equal(t, directdebit.StateFailed, res.State)
	require.Equal(t, directdebit.FailureMissingFlowID, res.FailureCode)
	require.Zero(t, gw.completeCalls)
	require.Zero(t, gw.paymentCalls)
	// token untouched: nothing was consumed
	require.Contains(t, sessions.tokens, inv.ID.String())
}

func TestCompleteMissingTokenFailsBeforeRemoteCall(t *testing.T) {
	gw := &fakeGateway{}
	svc := newService(gw, newFakeSessions(), &fakeSources{})
	inv := testInvoice()

	params := url.Values{"redirect_flow_id": {"RE123"}}
	res := svc.Complete(context.Background(), params, inv, testPayment(inv, 1000))
	require.Equal(t, directdebit.StateFailed, res.State)
	require.Equal(t, directdebit.FailureMissingToken, res.FailureCode)
	require.Zero(t, gw.completeCalls)
}

func TestCompleteHappyPath(t *testing.T) {
	gw := &fakeGateway{
		completeResp: &gateway.CompletedRedirectFlow{ID: "RE123", MandateID: "MD123"},
		paymentResp:  &gateway.Payment{ID: "PM1", Status: "pending_submission"},
	}
	sessions := newFakeSessions()
	sources := &fakeSources{}
	svc := newService(gw, sessions, sources)
	inv := testInvoice()
	pay := testPayment(inv, 25000)

	token, err := sessions.Issue(context.Background(), inv.ID.String())
	require.NoError(t, err)

	params := url.Values{"redirect_flow_id": {"RE123"}}
	res := svc.Complete(context.Background(), params, inv, pay)

	require.Equal(t, directdebit.StateProcessing, res.State)
	require.Equal(t, "PM1", res.TransactionID)
	require.Equal(t, int64(200), res.Fee) // 1% of 25000 capped at 200

	require.Equal(t, "RE123", gw.lastCompleteFlow)
	require.Equal(t, token, gw.lastCompleteToken)
	require.Len(t, sources.created, 1)
	require.Equal(t, "MD123", sources.created[0].MandateID)
	require.Equal(t, inv.Customer.ID, sources.created[0].CustomerID)
	// the round trip is single-use
	require.NotContains(t, sessions.tokens, inv.ID.String())
}

func TestCompleteGatewayFailureStillConsumesToken(t *testing.T) {
	gw := &fakeGateway{completeErr: &gateway.Error{Kind: gateway.KindRejected, Op: "complete_redirect_flow", StatusCode: 422}}
	sessions := newFakeSessions()
	svc := newService(gw, sessions, &fakeSources{})
	inv := testInvoice()

	_, err := sessions.Issue(context.Background(), inv.ID.String())
	require.NoError(t, err)

	params := url.Values{"redirect_flow_id": {"RE123"}}
	res := svc.Complete(context.Background(), params, inv, testPayment(inv, 1000))
	require.Equal(t, directdebit.StateFailed, res.State)
	require.Equal(t, directdebit.FailureGatewayRejected, res.FailureCode)
	require.NotContains(t, sessions.tokens, inv.ID.String())
}

func TestCompletePaymentFailureAfterSourceCreation(t *testing.T) {
	gw := &fakeGateway{
		completeResp: &gateway.CompletedRedirectFlow{ID: "RE123", MandateID: "MD123"},
		paymentErr:   &gateway.Error{Kind: gateway.KindConnectivity, Op: "create_payment"},
	}
	sessions := newFakeSessions()
	sources := &fakeSources{}
	svc := newService(gw, sessions, sources)
	inv := testInvoice()

	_, err := sessions.Issue(context.Background(), inv.ID.String())
	require.NoError(t, err)

	params := url.Values{"redirect_flow_id": {"RE123"}}
	res := svc.Complete(context.Background(), params, inv, testPayment(inv, 1000))
	require.Equal(t, directdebit.StateFailed, res.State)
	require.Equal(t, directdebit.FailureGatewayUnreachable, res.FailureCode)
	// the mandate was captured before the charge attempt failed
	require.Len(t, sources.created, 1)
}

func TestSequentialCompletionsCreateDistinctSources(t *testing.T) {
	gw := &fakeGateway{
		completeResp: &gateway.CompletedRedirectFlow{ID: "RE123", MandateID: "MD123"},
		paymentResp:  &gateway.Payment{ID: "PM1"},
	}
	sessions := newFakeSessions()
	sources := &fakeSources{}
	svc := newService(gw, sessions, sources)
	inv := testInvoice()
	pay := testPayment(inv, 1000)
	params := url.Values{"redirect_flow_id": {"RE123"}}

	for i := 0; i < 2; i++ {
		_, err := sessions.Issue(context.Background(), inv.ID.String())
		require.NoError(t, err)
		res := svc.Complete(context.Background(), params, inv, pay)
		require.Equal(t, directdebit.StateProcessing, res.State)
	}

	// no deduplication by design: serialising retries is the caller's job
	require.Len(t, sources.created, 2)
}

func TestRefundNotImplemented(t *testing.T) {
	svc := newService(&fakeGateway{}, newFakeSessions(), &fakeSources{})
	inv := testInvoice()
	_, err := svc.Refund(context.Background(), testPayment(inv, 1000))
	require.Error(t, err)
	require.Contains(t, err.Error(), "not implemented")
}
