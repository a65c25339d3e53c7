package directdebit

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	validator "github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/billforge/backend-billing/internal/common"
	"github.com/billforge/backend-billing/internal/invoice"
	"github.com/billforge/backend-billing/internal/source"
)

// Handler exposes the charge/callback workflow and source management over HTTP.
type Handler struct {
	Svc       *Service
	Invoices  invoice.Store
	Sources   source.Store
	SourceSvc *source.Service
	Validate  *validator.Validate
	Logger    zerolog.Logger
}

type chargeReq struct {
	SourceID string `json:"sourceId" validate:"omitempty,uuid4"`
}

type resultResp struct {
	State         string            `json:"state"`
	RedirectURL   string            `json:"redirectUrl,omitempty"`
	TransactionID string            `json:"transactionId,omitempty"`
	Fee           int64             `json:"fee,omitempty"`
	Error         *common.ErrorBody `json:"error,omitempty"`
}

func resultView(res Result) resultResp {
	view := resultResp{
		State:         string(res.State),
		RedirectURL:   res.RedirectURL,
		TransactionID: res.TransactionID,
		Fee:           res.Fee,
	}
	if res.State == StateFailed {
		view.Error = &common.ErrorBody{Code: "PAYMENT_FAILED", Message: res.UserMessage}
	}
	return view
}

// Charge starts collection for the invoice's pending payment, optionally
// against a stored source.
func (h *Handler) Charge(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Svc == nil || h.Invoices == nil {
		common.JSONError(w, http.StatusInternalServerError, "NOT_CONFIGURED", "direct debit handler unavailable", nil)
		return
	}
	invoiceID, err := uuid.Parse(strings.TrimSpace(chi.URLParam(r, "invoiceID")))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid invoice id", nil)
		return
	}

	var req chargeReq
	if r.ContentLength != 0 {
		if err := common.DecodeJSON(r, &req); err != nil {
			common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid body", nil)
			return
		}
		if h.Validate != nil {
			if err := h.Validate.Struct(req); err != nil {
				common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "sourceId must be a UUID", nil)
				return
			}
		}
	}

	inv, err := h.Invoices.GetInvoice(r.Context(), invoiceID)
	if err != nil {
		h.invoiceLookupError(w, err)
		return
	}
	pay, err := h.Invoices.PendingPaymentForInvoice(r.Context(), invoiceID)
	if err != nil {
		if errors.Is(err, invoice.ErrNotFound) {
			common.JSONError(w, http.StatusConflict, "NO_PENDING_PAYMENT", "invoice has no pending payment", nil)
			return
		}
		common.JSONError(w, http.StatusInternalServerError, "STORE_ERROR", "payment lookup failed", nil)
		return
	}

	var src *source.Source
	if strings.TrimSpace(req.SourceID) != "" {
		sourceID, err := uuid.Parse(req.SourceID)
		if err != nil {
			common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid sourceId", nil)
			return
		}
		stored, err := h.Sources.GetByID(r.Context(), sourceID)
		if err != nil || stored.CustomerID != inv.Customer.ID {
			common.JSONError(w, http.StatusNotFound, "SOURCE_NOT_FOUND", "source not found", nil)
			return
		}
		src = &stored
	}

	res, err := h.Svc.Charge(r.Context(), inv, pay, src)
	if err != nil {
		if errors.Is(err, ErrMissingMandate) {
			common.JSONError(w, http.StatusUnprocessableEntity, "INVALID_SOURCE", "source has no mandate attached", nil)
			return
		}
		common.JSONError(w, http.StatusInternalServerError, "CHARGE_ERROR", "charge could not be started", nil)
		return
	}

	h.recordOutcome(r, pay, res)
	common.JSON(w, http.StatusOK, resultView(res))
}

// Callback is the redirect-flow completion leg: the gateway sends the payer
// back here after granting (or abandoning) a mandate.
func (h *Handler) Callback(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Svc == nil || h.Invoices == nil {
		common.JSONError(w, http.StatusInternalServerError, "NOT_CONFIGURED", "direct debit handler unavailable", nil)
		return
	}
	invoiceID, err := uuid.Parse(strings.TrimSpace(r.URL.Query().Get("invoice_id")))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid invoice_id", nil)
		return
	}
	inv, err := h.Invoices.GetInvoice(r.Context(), invoiceID)
	if err != nil {
		h.invoiceLookupError(w, err)
		return
	}
	pay, err := h.Invoices.PendingPaymentForInvoice(r.Context(), invoiceID)
	if err != nil {
		if errors.Is(err, invoice.ErrNotFound) {
			common.JSONError(w, http.StatusConflict, "NO_PENDING_PAYMENT", "invoice has no pending payment", nil)
			return
		}
		common.JSONError(w, http.StatusInternalServerError, "STORE_ERROR", "payment lookup failed", nil)
		return
	}

	res := h.Svc.Complete(r.Context(), r.URL.Query(), inv, pay)
	h.recordOutcome(r, pay, res)
	common.JSON(w, http.StatusOK, resultView(res))
}

type createSourceReq struct {
	MandateID string `json:"mandateId" validate:"required"`
	Label     string `json:"label"`
}

type sourceResp struct {
	ID         string `json:"id"`
	CustomerID string `json:"customerId"`
	Driver     string `json:"driver"`
	Label      string `json:"label,omitempty"`
}

func sourceView(src source.Source) sourceResp {
	return sourceResp{
		ID:         src.ID.String(),
		CustomerID: src.CustomerID.String(),
		Driver:     src.Driver,
		Label:      src.Label,
	}
}

// CreateSource registers a source from a caller-supplied mandate id.
func (h *Handler) CreateSource(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.SourceSvc == nil {
		common.JSONError(w, http.StatusInternalServerError, "NOT_CONFIGURED", "source handler unavailable", nil)
		return
	}
	customerID, err := uuid.Parse(strings.TrimSpace(chi.URLParam(r, "customerID")))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid customer id", nil)
		return
	}
	var req createSourceReq
	if err := common.DecodeJSON(r, &req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid body", nil)
		return
	}
	if h.Validate != nil {
		if err := h.Validate.Struct(req); err != nil {
			common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "mandateId is required", nil)
			return
		}
	}

	src, err := h.SourceSvc.CreateFromMandate(r.Context(), customerID, strings.TrimSpace(req.MandateID), strings.TrimSpace(req.Label))
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, sourceView(src))
}

// ListSources returns the customer's stored sources.
func (h *Handler) ListSources(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Sources == nil {
		common.JSONError(w, http.StatusInternalServerError, "NOT_CONFIGURED", "source handler unavailable", nil)
		return
	}
	customerID, err := uuid.Parse(strings.TrimSpace(chi.URLParam(r, "customerID")))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid customer id", nil)
		return
	}
	sources, err := h.Sources.ListByCustomer(r.Context(), customerID)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "STORE_ERROR", "source lookup failed", nil)
		return
	}
	views := make([]sourceResp, 0, len(sources))
	for _, src := range sources {
		views = append(views, sourceView(src))
	}
	common.JSON(w, http.StatusOK, map[string]any{"sources": views})
}

// Refund is exposed for API symmetry but intentionally unsupported.
func (h *Handler) Refund(w http.ResponseWriter, _ *http.Request) {
	h.writeError(w, common.NewAppError("NOT_IMPLEMENTED", "refunds are not supported for direct debit",
		http.StatusNotImplemented, common.ErrNotImplemented))
}

// DeleteSource is exposed for API symmetry but intentionally unsupported.
func (h *Handler) DeleteSource(w http.ResponseWriter, _ *http.Request) {
	h.writeError(w, common.NewAppError("NOT_IMPLEMENTED", "sources cannot be removed",
		http.StatusNotImplemented, common.ErrNotImplemented))
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var appErr *common.AppError
	if errors.As(err, &appErr) {
		status := appErr.HTTPStatus
		if status == 0 {
			status = http.StatusInternalServerError
		}
		code := appErr.Code
		if code == "" {
			code = "INTERNAL"
		}
		message := appErr.Message
		if message == "" {
			message = "internal error"
		}
		common.JSONError(w, status, code, message, appErr.Details)
		return
	}
	common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "internal error", nil)
}

func (h *Handler) invoiceLookupError(w http.ResponseWriter, err error) {
	if errors.Is(err, invoice.ErrNotFound) {
		common.JSONError(w, http.StatusNotFound, "INVOICE_NOT_FOUND", "invoice not found", nil)
		return
	}
	common.JSONError(w, http.StatusInternalServerError, "STORE_ERROR", "invoice lookup failed", nil)
}

// recordOutcome persists the terminal outcome onto the payment record. Storage
// errors are logged, not surfaced: the charge outcome already happened.
func (h *Handler) recordOutcome(r *http.Request, pay invoice.Payment, res Result) {
	var err error
	switch res.State {
	case StateProcessing:
		err = h.Invoices.MarkPaymentProcessing(r.Context(), pay.ID, res.TransactionID, res.Fee)
	case StateFailed:
		err = h.Invoices.MarkPaymentFailed(r.Context(), pay.ID, res.FailureCode)
	}
	if err != nil {
		h.Logger.Error().Err(err).Str("payment_id", pay.ID.String()).Msg("record payment outcome")
	}
}
