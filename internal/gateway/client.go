package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/billforge/backend-billing/internal/obs"
)

const (
	liveBaseURL    = "https://api.gocardless.com"
	sandboxBaseURL = "https://api-sandbox.gocardless.com"
	apiVersion     = "2015-07-06"

	// responses are small; cap what we keep of a rejection body for diagnostics
	maxErrorBodyBytes = 2048
)

// Config carries the settings required to construct a Client.
type Config struct {
	AccessToken string
	Environment string
	BaseURL     string
	Timeout     time.Duration
	Logger      zerolog.Logger
}

// Client talks to the direct-debit gateway's REST API. All calls are blocking;
// the configured timeout is the only cancellation mechanism the client owns.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     zerolog.Logger
}

// New validates the configuration and returns a ready client. A missing access
// token or unknown environment is a hard construction failure.
func New(cfg Config) (*Client, error) {
	token := strings.TrimSpace(cfg.AccessToken)
	if token == "" {
		return nil, errors.New("gateway: access token is required")
	}
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		switch strings.ToLower(strings.TrimSpace(cfg.Environment)) {
		case "live":
			base = liveBaseURL
		case "sandbox", "":
			base = sandboxBaseURL
		default:
			return nil, errors.New("gateway: environment must be live or sandbox")
		}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    base,
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
		logger:     cfg.Logger.With().Str("component", "gateway").Logger(),
	}, nil
}

type completedFlowBody struct {
	ID    string `json:"id"`
	Links struct {
		Mandate string `json:"mandate"`
	} `json:"links"`
}

type mandateBody struct {
	ID    string `json:"id"`
	Links struct {
		CustomerBankAccount string `json:"customer_bank_account"`
	} `json:"links"`
}

// CreateRedirectFlow opens a hosted authorisation flow and returns the URL the
// payer must be redirected to. The gateway signals success with 201.
func (c *Client) CreateRedirectFlow(ctx context.Context, req RedirectFlowRequest) (*RedirectFlow, error) {
	body := map[string]any{"redirect_flows": req}
	var resp struct {
		RedirectFlows RedirectFlow `json:"redirect_flows"`
	}
	if err := c.do(ctx, "create_redirect_flow", http.MethodPost, "/redirect_flows", body, http.StatusCreated, &resp); err != nil {
		return nil, err
	}
	return &resp.RedirectFlows, nil
}

// CompleteRedirectFlow finalises an authorisation flow using the anti-forgery
// token stored at initiation. Success is 200 and yields the new mandate id.
func (c *Client) CompleteRedirectFlow(ctx context.Context, flowID, sessionToken string) (*CompletedRedirectFlow, error) {
	body := map[string]any{"data": map[string]string{"session_token": sessionToken}}
	var resp struct {
		RedirectFlows completedFlowBody `json:"redirect_flows"`
	}
	path := "/redirect_flows/" + flowID + "/actions/complete"
	if err := c.do(ctx, "complete_redirect_flow", http.MethodPost, path, body, http.StatusOK, &resp); err != nil {
		return nil, err
	}
	return &CompletedRedirectFlow{
		ID:        resp.RedirectFlows.ID,
		MandateID: resp.RedirectFlows.Links.Mandate,
	}, nil
}

// CreatePayment requests a debit against a mandate. The gateway signals
// success with 201; any other status means no transaction id exists.
func (c *Client) CreatePayment(ctx context.Context, req PaymentRequest) (*Payment, error) {
	payment := map[string]any{
		"amount":      req.Amount,
		"currency":    req.Currency,
		"description": req.Description,
		"links":       map[string]string{"mandate": req.MandateID},
	}
	if len(req.Metadata) > 0 {
		payment["metadata"] = req.Metadata
	}
	body := map[string]any{"payments": payment}
	var resp struct {
		Payments Payment `json:"payments"`
	}
	if err := c.do(ctx, "create_payment", http.MethodPost, "/payments", body, http.StatusCreated, &resp); err != nil {
		return nil, err
	}
	return &resp.Payments, nil
}

// GetMandate fetches a mandate and its linked bank account id.
func (c *Client) GetMandate(ctx context.Context, mandateID string) (*Mandate, error) {
	var resp struct {
		Mandates mandateBody `json:"mandates"`
	}
	if err := c.do(ctx, "get_mandate", http.MethodGet, "/mandates/"+mandateID, nil, http.StatusOK, &resp); err != nil {
		return nil, err
	}
	return &Mandate{
		ID:            resp.Mandates.ID,
		BankAccountID: resp.Mandates.Links.CustomerBankAccount,
	}, nil
}

// GetBankAccount fetches the bank metadata backing a mandate.
func (c *Client) GetBankAccount(ctx context.Context, bankAccountID string) (*BankAccount, error) {
	var resp struct {
		CustomerBankAccounts BankAccount `json:"customer_bank_accounts"`
	}
	if err := c.do(ctx, "get_bank_account", http.MethodGet, "/customer_bank_accounts/"+bankAccountID, nil, http.StatusOK, &resp); err != nil {
		return nil, err
	}
	return &resp.CustomerBankAccounts, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, body any, wantStatus int, dst any) error {
	start := time.Now()
	err := c.doOnce(ctx, op, method, path, body, wantStatus, dst)
	result := "success"
	if err != nil {
		if gwErr, ok := AsError(err); ok {
			result = gwErr.Kind.String()
		} else {
			result = "error"
		}
	}
	if obs.GatewayRequestTotal != nil {
		obs.GatewayRequestTotal.WithLabelValues(op, result).Inc()
	}
	if obs.GatewayRequestLatency != nil {
		obs.GatewayRequestLatency.WithLabelValues(op).Observe(obs.DurationMillis(time.Since(start)))
	}
	return err
}

func (c *Client) doOnce(ctx context.Context, op, method, path string, body any, wantStatus int, dst any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return &Error{Kind: KindMalformed, Op: op, Err: err}
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return &Error{Kind: KindConnectivity, Op: op, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("GoCardless-Version", apiVersion)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error().Err(err).Str("op", op).Msg("gateway request failed")
		return &Error{Kind: KindConnectivity, Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != wantStatus {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		c.logger.Error().
			Str("op", op).
			Int("status", resp.StatusCode).
			Str("body", string(snippet)).
			Msg("gateway rejected request")
		return &Error{Kind: KindRejected, Op: op, StatusCode: resp.StatusCode, Body: string(snippet)}
	}

	if dst == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		c.logger.Error().Err(err).Str("op", op).Msg("gateway response undecodable")
		return &Error{Kind: KindMalformed, Op: op, StatusCode: resp.StatusCode, Err: err}
	}
	return nil
}
