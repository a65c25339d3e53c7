package directdebit

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/billforge/backend-billing/internal/invoice"
)

func TestPaymentMetadataTruncatesToThreeEntries(t *testing.T) {
	inv := invoice.Invoice{ID: uuid.New(), Ref: "INV-7"}
	custom := []invoice.MetadataEntry{
		{Key: "a", Value: "x"},
		{Key: "b", Value: "y"},
		{Key: "c", Value: "z"},
		{Key: "d", Value: "w"},
	}

	got := paymentMetadata(inv, custom)

	require.Len(t, got, 3)
	require.Equal(t, inv.ID.String(), got["invoiceId"])
	require.Equal(t, "INV-7", got["invoiceRef"])
	// only the first caller entry fits; later ones are dropped, not reordered
	require.Equal(t, "x", got["a"])
	require.NotContains(t, got, "b")
	require.NotContains(t, got, "c")
	require.NotContains(t, got, "d")
}

func TestPaymentMetadataCapsKeyAndValueLength(t *testing.T) {
	inv := invoice.Invoice{ID: uuid.New(), Ref: "INV-8"}
	longKey := strings.Repeat("k", 80)
	longValue := strings.Repeat("v", 600)

	got := paymentMetadata(inv, []invoice.MetadataEntry{{Key: longKey, Value: longValue}})

	require.Len(t, got, 3)
	wantKey := strings.Repeat("k", 50)
	require.Contains(t, got, wantKey)
	require.Len(t, got[wantKey], 500)
}

func TestPaymentMetadataNoCustomEntries(t *testing.T) {
	inv := invoice.Invoice{ID: uuid.New(), Ref: "INV-9"}
	got := paymentMetadata(inv, nil)
	require.Len(t, got, 2)
	require.Equal(t, "INV-9", got["invoiceRef"])
}
