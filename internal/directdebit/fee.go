package directdebit

// feeCap is the gateway's maximum per-transaction fee in minor units.
const feeCap = 200

// Fee estimates the gateway's transaction fee for an amount in minor units:
// 1% rounded up, capped at 200. Purely informational; it never alters how a
// charge proceeds.
func Fee(amount int64) int64 {
	if amount <= 0 {
		return 0
	}
	fee := (amount + 99) / 100
	if fee > feeCap {
		return feeCap
	}
	return fee
}
