package orders

// Take rates are carried in basis points (600 = 6%) so fee rounding is exact
// integer arithmetic instead of float math.

// PlatformFee returns the marketplace commission in cents, rounded half-up.
func PlatformFee(subtotalCents, takeRateBps int) int {
	return (subtotalCents*takeRateBps + 5_000) / 10_000
}

// Total is the amount the buyer pays. The platform fee is carved out of this
// on the seller side, not added on top.
func Total(subtotalCents, shippingCents, taxCents int) int {
	return subtotalCents + shippingCents + taxCents
}

// SellerPayout is derived, never stored: the payout job recomputes it from
// the order at disbursement time.
func SellerPayout(o *Order) int {
	return o.TotalCents - o.PlatformFeeCents
}
