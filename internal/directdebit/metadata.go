package directdebit

import (
	"github.com/billforge/backend-billing/internal/invoice"
)

// Gateway metadata limits: at most three entries, keys up to 50 characters,
// values up to 500.
const (
	maxMetadataEntries = 3
	maxMetadataKeyLen  = 50
	maxMetadataValLen  = 500
)

// paymentMetadata merges the fixed invoice pair with caller-supplied entries,
// keeping insertion order and cutting off at the entry limit. No
// prioritisation beyond first-wins.
func paymentMetadata(inv invoice.Invoice, custom []invoice.MetadataEntry) map[string]string {
	out := make(map[string]string, maxMetadataEntries)
	add := func(key, value string) bool {
		if len(out) >= maxMetadataEntries {
			return false
		}
		key = truncate(key, maxMetadataKeyLen)
		if key == "" {
			return true
		}
		if _, exists := out[key]; exists {
			return true
		}
		out[key] = truncate(value, maxMetadataValLen)
		return true
	}

	add("invoiceId", inv.ID.String())
	add("invoiceRef", inv.Ref)
	for _, entry := range custom {
		if !add(entry.Key, entry.Value) {
			break
		}
	}
	return out
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
