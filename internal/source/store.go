package source

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/billforge/backend-billing/internal/common"
	"github.com/billforge/backend-billing/internal/obs"
)

// DriverDirectDebit tags sources issued by the direct-debit gateway.
const DriverDirectDebit = "gocardless"

const payloadMandateKey = "mandate_id"

// ErrStoreUnavailable indicates the store dependency is not configured.
var ErrStoreUnavailable = errors.New("source: store unavailable")

// ErrNotFound indicates the requested source does not exist.
var ErrNotFound = errors.New("source: not found")

// ErrMissingMandateID marks a source whose payload carries no mandate
// identifier. A persisted source always has one; hitting this error means the
// caller constructed bad input, not that the gateway failed.
var ErrMissingMandateID = errors.New("source: payload has no mandate id")

// Source is a reusable authorisation record. Created exactly once at redirect
// completion (or from a caller-supplied mandate); never mutated by charges.
type Source struct {
	ID         uuid.UUID
	CustomerID uuid.UUID
	Driver     string
	Payload    map[string]string
	Label      string
	CreatedAt  time.Time
}

// MandateID extracts the gateway mandate identifier from the payload.
func (s Source) MandateID() (string, error) {
	id := s.Payload[payloadMandateKey]
	if id == "" {
		return "", ErrMissingMandateID
	}
	return id, nil
}

// CreateParams describes a source to persist.
type CreateParams struct {
	CustomerID uuid.UUID
	Driver     string
	MandateID  string
	Label      string
}

// Store persists reusable payment sources. Updates and deletes are
// intentionally unsupported.
type Store interface {
	Create(ctx context.Context, params CreateParams) (Source, error)
	GetByID(ctx context.Context, id uuid.UUID) (Source, error)
	ListByCustomer(ctx context.Context, customerID uuid.UUID) ([]Source, error)
	Update(ctx context.Context, id uuid.UUID, label string) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// NewStore constructs a Store backed by a pgx connection pool.
func NewStore(pool *pgxpool.Pool) Store {
	return &pgStore{pool: pool}
}

type pgStore struct {
	pool *pgxpool.Pool
}

// Create persists a new source. An empty mandate id is rejected before any
// write: a stored source always carries one.
func (s *pgStore) Create(ctx context.Context, params CreateParams) (Source, error) {
	if s == nil || s.pool == nil {
		return Source{}, ErrStoreUnavailable
	}
	if params.MandateID == "" {
		return Source{}, ErrMissingMandateID
	}
	driver := params.Driver
	if driver == "" {
		driver = DriverDirectDebit
	}
	payload := map[string]string{payloadMandateKey: params.MandateID}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return Source{}, err
	}
	src := Source{
		CustomerID: params.CustomerID,
		Driver:     driver,
		Payload:    payload,
		Label:      params.Label,
	}
	err = s.pool.QueryRow(ctx, `INSERT INTO payment_sources (customer_id, driver, payload, label)
VALUES ($1, $2, $3, $4) RETURNING id, created_at`,
		params.CustomerID, driver, encoded, params.Label).Scan(&src.ID, &src.CreatedAt)
	if err != nil {
		return Source{}, err
	}
	if obs.SourceCreatedTotal != nil {
		obs.SourceCreatedTotal.WithLabelValues(driver).Inc()
	}
	return src, nil
}

// GetByID fetches a single source.
func (s *pgStore) GetByID(ctx context.Context, id uuid.UUID) (Source, error) {
	if s == nil || s.pool == nil {
		return Source{}, ErrStoreUnavailable
	}
	row := s.pool.QueryRow(ctx, `SELECT id, customer_id, driver, payload, COALESCE(label, ''), created_at
FROM payment_sources WHERE id = $1`, id)
	return scanSource(row)
}

// ListByCustomer returns the customer's sources, newest first.
func (s *pgStore) ListByCustomer(ctx context.Context, customerID uuid.UUID) ([]Source, error) {
	if s == nil || s.pool == nil {
		return nil, ErrStoreUnavailable
	}
	rows, err := s.pool.Query(ctx, `SELECT id, customer_id, driver, payload, COALESCE(label, ''), created_at
FROM payment_sources WHERE customer_id = $1 ORDER BY created_at DESC`, customerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Source
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, src)
	}
	return out, rows.Err()
}

// Update is not supported: sources are immutable once created.
func (s *pgStore) Update(context.Context, uuid.UUID, string) error {
	return common.ErrNotImplemented
}

// Delete is not supported: charge history must keep resolving its source.
func (s *pgStore) Delete(context.Context, uuid.UUID) error {
	return common.ErrNotImplemented
}

func scanSource(row pgx.Row) (Source, error) {
	var src Source
	var payload []byte
	err := row.Scan(&src.ID, &src.CustomerID, &src.Driver, &payload, &src.Label, &src.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Source{}, ErrNotFound
	}
	if err != nil {
		return Source{}, err
	}
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &src.Payload); err != nil {
			return Source{}, err
		}
	}
	return src, nil
}
