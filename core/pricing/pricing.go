// Package pricing computes cart discounts. All amounts are integer minor
// currency units (cents); the external payment gateway requires integer
// per-line amounts, so rounding happens per item before summation and the
// sum of line amounts is exactly what gets charged.
package pricing

// ItemPrice is the priced form of one cart item.
type ItemPrice struct {
	UnitPrice       int64 `json:"unitPrice"`       // cents, before discount
	DiscountedPrice int64 `json:"discountedPrice"` // cents, after per-item rounding
}

// Quote aggregates the priced cart.
type Quote struct {
	Items           []ItemPrice `json:"items"`
	Subtotal        int64       `json:"subtotal"` // sum of undiscounted prices
	DiscountPercent int         `json:"discountPercent"`
	DiscountAmount  int64       `json:"discountAmount"`
	Total           int64       `json:"total"`
}

// DiscountPercent returns the bundle discount tier for a cart of n items.
func DiscountPercent(n int) int {
	switch {
	case n >= 3:
		return 20
	case n == 2:
		return 10
	default:
		return 0
	}
}

// roundDiv divides a by b rounding half up. Both must be non-negative.
func roundDiv(a, b int64) int64 {
	return (a + b/2) / b
}

// DiscountedPrice applies a percent discount to a unit price, rounded half
// up to the nearest cent.
func DiscountedPrice(unitPrice int64, discountPercent int) int64 {
	return roundDiv(unitPrice*int64(100-discountPercent), 100)
}

// Calculate prices a cart. Pure and deterministic: no I/O, no side effects.
func Calculate(unitPrices []int64) Quote {
	discount := DiscountPercent(len(unitPrices))

	quote := Quote{
		Items:           make([]ItemPrice, 0, len(unitPrices)),
		DiscountPercent: discount,
	}

	var discountedSum int64
	for _, price := range unitPrices {
		discounted := DiscountedPrice(price, discount)
		quote.Items = append(quote.Items, ItemPrice{UnitPrice: price, DiscountedPrice: discounted})
		quote.Subtotal += price
		discountedSum += discounted
	}

	quote.DiscountAmount = quote.Subtotal - discountedSum
	quote.Total = quote.Subtotal - quote.DiscountAmount
	return quote
}

// CreatorEarnings computes the creator's share of a sale price, rounded
// half up to the nearest cent. split is the creator's revenue fraction in
// (0,1].
func CreatorEarnings(price int64, split float64) int64 {
	if split <= 0 {
		return 0
	}
	// work in hundredths of a cent to keep the rounding integral
	scaled := int64(split*10000 + 0.5)
	return roundDiv(price*scaled, 10000)
}
