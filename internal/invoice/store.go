package invoice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrStoreUnavailable indicates the store dependency is not configured.
var ErrStoreUnavailable = errors.New("invoice: store unavailable")

// ErrNotFound indicates the requested invoice or payment does not exist.
var ErrNotFound = errors.New("invoice: not found")

// Store provides read access to invoices and payments plus terminal-status
// bookkeeping for payments.
type Store interface {
	GetInvoice(ctx context.Context, id uuid.UUID) (Invoice, error)
	GetPayment(ctx context.Context, id uuid.UUID) (Payment, error)
	PendingPaymentForInvoice(ctx context.Context, invoiceID uuid.UUID) (Payment, error)
	MarkPaymentProcessing(ctx context.Context, id uuid.UUID, transactionID string, fee int64) error
	MarkPaymentFailed(ctx context.Context, id uuid.UUID, failureCode string) error
}

// NewStore constructs a Store backed by a pgx connection pool.
func NewStore(pool *pgxpool.Pool) Store {
	return &pgStore{pool: pool}
}

type pgStore struct {
	pool *pgxpool.Pool
}

// GetInvoice fetches an invoice with its customer and billing address.
func (s *pgStore) GetInvoice(ctx context.Context, id uuid.UUID) (Invoice, error) {
	if s == nil || s.pool == nil {
		return Invoice{}, ErrStoreUnavailable
	}
	row := s.pool.QueryRow(ctx, `SELECT i.id, i.ref,
       c.id, c.given_name, c.family_name, COALESCE(c.company_name, ''), c.email,
       COALESCE(i.address_line1, ''), COALESCE(i.city, ''), COALESCE(i.postal_code, ''), COALESCE(i.country_code, '')
FROM invoices i
JOIN customers c ON c.id = i.customer_id
WHERE i.id = $1`, id)
	var inv Invoice
	err := row.Scan(
		&inv.ID, &inv.Ref,
		&inv.Customer.ID, &inv.Customer.GivenName, &inv.Customer.FamilyName, &inv.Customer.CompanyName, &inv.Customer.Email,
		&inv.Billing.Line1, &inv.Billing.City, &inv.Billing.PostalCode, &inv.Billing.CountryCode,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Invoice{}, ErrNotFound
	}
	if err != nil {
		return Invoice{}, err
	}
	return inv, nil
}

// GetPayment fetches a payment by id.
func (s *pgStore) GetPayment(ctx context.Context, id uuid.UUID) (Payment, error) {
	if s == nil || s.pool == nil {
		return Payment{}, ErrStoreUnavailable
	}
	return s.scanPayment(s.pool.QueryRow(ctx, paymentSelect+` WHERE id = $1`, id))
}

// PendingPaymentForInvoice returns the most recent pending payment for the invoice.
func (s *pgStore) PendingPaymentForInvoice(ctx context.Context, invoiceID uuid.UUID) (Payment, error) {
	if s == nil || s.pool == nil {
		return Payment{}, ErrStoreUnavailable
	}
	return s.scanPayment(s.pool.QueryRow(ctx,
		paymentSelect+` WHERE invoice_id = $1 AND status = $2 ORDER BY created_at DESC LIMIT 1`,
		invoiceID, PaymentStatusPending))
}

// MarkPaymentProcessing records a successful charge initiation.
func (s *pgStore) MarkPaymentProcessing(ctx context.Context, id uuid.UUID, transactionID string, fee int64) error {
	if s == nil || s.pool == nil {
		return ErrStoreUnavailable
	}
	_, err := s.pool.Exec(ctx, `UPDATE payments
SET status = $2, transaction_id = $3, fee = $4, updated_at = now()
WHERE id = $1`, id, PaymentStatusProcessing, transactionID, fee)
	return err
}

// MarkPaymentFailed records a terminal failure with its internal code.
func (s *pgStore) MarkPaymentFailed(ctx context.Context, id uuid.UUID, failureCode string) error {
	if s == nil || s.pool == nil {
		return ErrStoreUnavailable
	}
	_, err := s.pool.Exec(ctx, `UPDATE payments
SET status = $2, failure_code = $3, updated_at = now()
WHERE id = $1`, id, PaymentStatusFailed, failureCode)
	return err
}

const paymentSelect = `SELECT id, invoice_id, amount, currency, COALESCE(description, ''), metadata, status,
       COALESCE(transaction_id, ''), COALESCE(fee, 0), COALESCE(failure_code, '')
FROM payments`

func (s *pgStore) scanPayment(row pgx.Row) (Payment, error) {
	var p Payment
	var metadata []byte
	err := row.Scan(&p.ID, &p.InvoiceID, &p.Amount, &p.Currency, &p.Description, &metadata, &p.Status,
		&p.TransactionID, &p.Fee, &p.FailureCode)
	if errors.Is(err, pgx.ErrNoRows) {
		return Payment{}, ErrNotFound
	}
	if err != nil {
		return Payment{}, err
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &p.Metadata); err != nil {
			return Payment{}, fmt.Errorf("decode payment metadata: %w", err)
		}
	}
	return p, nil
}
