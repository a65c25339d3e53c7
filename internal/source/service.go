package source

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/billforge/backend-billing/internal/common"
	"github.com/billforge/backend-billing/internal/gateway"
)

// BankLookup is the slice of the gateway the enrichment path needs.
type BankLookup interface {
	GetMandate(ctx context.Context, mandateID string) (*gateway.Mandate, error)
	GetBankAccount(ctx context.Context, bankAccountID string) (*gateway.BankAccount, error)
}

// Service creates sources from caller-supplied mandate identifiers,
// synthesizing a human-readable label from bank metadata when none is given.
type Service struct {
	Store   Store
	Gateway BankLookup
}

// CreateFromMandate persists a source for the customer's mandate. When label
// is empty the mandate's bank account is looked up to derive one; any lookup
// failure means the mandate id cannot be trusted and the source is not created.
func (s *Service) CreateFromMandate(ctx context.Context, customerID uuid.UUID, mandateID, label string) (Source, error) {
	if mandateID == "" {
		return Source{}, common.NewAppError("BAD_REQUEST", "mandateId is required", http.StatusBadRequest, ErrMissingMandateID)
	}
	if label == "" {
		derived, err := s.deriveLabel(ctx, mandateID)
		if err != nil {
			return Source{}, common.NewAppError("INVALID_MANDATE", "mandate id is not valid",
				http.StatusUnprocessableEntity, fmt.Errorf("mandate id is not valid: %w", err))
		}
		label = derived
	}
	return s.Store.Create(ctx, CreateParams{
		CustomerID: customerID,
		Driver:     DriverDirectDebit,
		MandateID:  mandateID,
		Label:      label,
	})
}

func (s *Service) deriveLabel(ctx context.Context, mandateID string) (string, error) {
	mandate, err := s.Gateway.GetMandate(ctx, mandateID)
	if err != nil {
		return "", err
	}
	account, err := s.Gateway.GetBankAccount(ctx, mandate.BankAccountID)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Direct Debit (%s account ending %s)", account.BankName, account.AccountNumberEnding), nil
}
