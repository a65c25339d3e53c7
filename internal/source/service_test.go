package source_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/billforge/backend-billing/internal/common"
	"github.com/billforge/backend-billing/internal/gateway"
	"github.com/billforge/backend-billing/internal/source"
)

type fakeStore struct {
	created []source.CreateParams
}

func (f *fakeStore) Create(_ context.Context, params source.CreateParams) (source.Source, error) {
	if params.MandateID == "" {
		return source.Source{}, source.ErrMissingMandateID
	}
	f.created = append(f.created, params)
	return source.Source{
		ID:         uuid.New(),
		CustomerID: params.CustomerID,
		Driver:     params.Driver,
		Payload:    map[string]string{"mandate_id": params.MandateID},
		Label:      params.Label,
	}, nil
}

func (f *fakeStore) GetByID(context.Context, uuid.UUID) (source.Source, error) {
	return source.Source{}, source.ErrNotFound
}

func (f *fakeStore) ListByCustomer(context.Context, uuid.UUID) ([]source.Source, error) {
	return nil, nil
}

func (f *fakeStore) Update(context.Context, uuid.UUID, string) error { return nil }
func (f *fakeStore) Delete(context.Context, uuid.UUID) error         { return nil }

type fakeLookup struct {
	mandateErr error
	accountErr error
}

func (f fakeLookup) GetMandate(_ context.Context, mandateID string) (*gateway.Mandate, error) {
	if f.mandateErr != nil {
		return nil, f.mandateErr
	}
	return &gateway.Mandate{ID: mandateID, BankAccountID: "BA9"}, nil
}

func (f fakeLookup) GetBankAccount(_ context.Context, bankAccountID string) (*gateway.BankAccount, error) {
	if f.accountErr != nil {
		return nil, f.accountErr
	}
	return &gateway.BankAccount{ID: bankAccountID, BankName: "Monzo", AccountNumberEnding: "4242"}, nil
}

func TestCreateFromMandateDerivesLabel(t *testing.T) {
	store := &fakeStore{}
	svc := &source.Service{Store: store, Gateway: fakeLookup{}}

	src, err := svc.CreateFromMandate(context.Background(), uuid.New(), "MD123", "")
	require.NoError(t, err)
	require.Equal(t, "Direct Debit (Monzo account ending 4242)", src.Label)
	require.Len(t, store.created, 1)

	mandateID, err := src.MandateID()
	require.NoError(t, err)
	require.Equal(t, "MD123", mandateID)
}

func TestCreateFromMandateKeepsCallerLabel(t *testing.T) {
	store := &fakeStore{}
	// lookups would fail, but no lookup should happen when a label is supplied
	svc := &source.Service{Store: store, Gateway: fakeLookup{mandateErr: errors.New("down")}}

	src, err := svc.CreateFromMandate(context.Background(), uuid.New(), "MD123", "My account")
	require.NoError(t, err)
	require.Equal(t, "My account", src.Label)
}

func TestCreateFromMandateInvalidMandate(t *testing.T) {
	lookupErr := &gateway.Error{Kind: gateway.KindRejected, Op: "get_mandate", StatusCode: 404}
	svc := &source.Service{Store: &fakeStore{}, Gateway: fakeLookup{mandateErr: lookupErr}}

	_, err := svc.CreateFromMandate(context.Background(), uuid.New(), "MD404", "")
	require.Error(t, err)
	require.Contains(t, err.Error(), "mandate id is not valid")
	require.ErrorIs(t, err, error(lookupErr))
	require.True(t, common.IsAppError(err))
}

func TestCreateFromMandateRequiresMandateID(t *testing.T) {
	svc := &source.Service{Store: &fakeStore{}, Gateway: fakeLookup{}}
	_, err := svc.CreateFromMandate(context.Background(), uuid.New(), "", "")
	require.ErrorIs(t, err, source.ErrMissingMandateID)
}

func TestMissingMandateIDInPayload(t *testing.T) {
	src := source.Source{Payload: map[string]string{}}
	_, err := src.MandateID()
	require.ErrorIs(t, err, source.ErrMissingMandateID)
}
