package pricing

import "testing"

func TestDiscountPercent(t *testing.T) {
	cases := []struct {
		n        int
		expected int
	}{
		{0, 0},
		{1, 0},
		{2, 10},
		{3, 20},
		{4, 20},
		{10, 20},
	}

	for _, c := range cases {
		if got := DiscountPercent(c.n); got != c.expected {
			t.Errorf("DiscountPercent(%d) = %d, expected %d", c.n, got, c.expected)
		}
	}
}

func TestCalculate_TwoItemScenario(t *testing.T) {
	// cart = [$50.00 non-exclusive, $200.00 exclusive] -> 10% discount,
	// subtotal $250.00, discountAmount $25.00, total $225.00
	quote := Calculate([]int64{5000, 20000})

	if quote.DiscountPercent != 10 {
		t.Errorf("Expected discount 10, got %d", quote.DiscountPercent)
	}
	if quote.Subtotal != 25000 {
		t.Errorf("Expected subtotal 25000, got %d", quote.Subtotal)
	}
	if quote.DiscountAmount != 2500 {
		t.Errorf("Expected discountAmount 2500, got %d", quote.DiscountAmount)
	}
	if quote.Total != 22500 {
		t.Errorf("Expected total 22500, got %d", quote.Total)
	}
	if quote.Items[0].DiscountedPrice != 4500 {
		t.Errorf("Expected first item discounted to 4500, got %d", quote.Items[0].DiscountedPrice)
	}
	if quote.Items[1].DiscountedPrice != 18000 {
		t.Errorf("Expected second item discounted to 18000, got %d", quote.Items[1].DiscountedPrice)
	}
}

func TestCalculate_SingleItemNoDiscount(t *testing.T) {
	quote := Calculate([]int64{9999})

	if quote.DiscountPercent != 0 {
		t.Errorf("Expected no discount, got %d", quote.DiscountPercent)
	}
	if quote.Total != 9999 {
		t.Errorf("Expected total 9999, got %d", quote.Total)
	}
	if quote.DiscountAmount != 0 {
		t.Errorf("Expected discountAmount 0, got %d", quote.DiscountAmount)
	}
}

func TestCalculate_PerItemRounding(t *testing.T) {
	// Three items at odd prices: each line must round individually so the
	// total equals the sum of the (integer) line amounts the gateway
	// charges.
	prices := []int64{999, 1001, 3333}
	quote := Calculate(prices)

	if quote.DiscountPercent != 20 {
		t.Fatalf("Expected discount 20, got %d", quote.DiscountPercent)
	}

	var lineSum int64
	for i, item := range quote.Items {
		expected := DiscountedPrice(prices[i], 20)
		if item.DiscountedPrice != expected {
			t.Errorf("Item %d: expected discounted %d, got %d", i, expected, item.DiscountedPrice)
		}
		lineSum += item.DiscountedPrice
	}

	if quote.Total != lineSum {
		t.Errorf("Total %d does not equal sum of line amounts %d", quote.Total, lineSum)
	}
	if quote.Subtotal-quote.DiscountAmount != quote.Total {
		t.Errorf("subtotal - discountAmount = %d, expected total %d",
			quote.Subtotal-quote.DiscountAmount, quote.Total)
	}
}

func TestDiscountedPrice_RoundsHalfUp(t *testing.T) {
	// 999 * 0.9 = 899.1 -> 899; 995 * 0.9 = 895.5 -> 896
	if got := DiscountedPrice(999, 10); got != 899 {
		t.Errorf("DiscountedPrice(999, 10) = %d, expected 899", got)
	}
	if got := DiscountedPrice(995, 10); got != 896 {
		t.Errorf("DiscountedPrice(995, 10) = %d, expected 896", got)
	}
}

func TestCreatorEarnings(t *testing.T) {
	cases := []struct {
		price    int64
		split    float64
		expected int64
	}{
		{10000, 0.70, 7000},
		{9999, 0.70, 6999},  // 6999.3 rounds down
		{9995, 0.705, 7046}, // 7046.475 rounds down to 7046
		{100, 1.0, 100},
		{100, 0, 0},
	}

	for _, c := range cases {
		if got := CreatorEarnings(c.price, c.split); got != c.expected {
			t.Errorf("CreatorEarnings(%d, %v) = %d, expected %d", c.price, c.split, got, c.expected)
		}
	}
}

func TestCalculate_EmptyCart(t *testing.T) {
	quote := Calculate(nil)
	if quote.Subtotal != 0 || quote.Total != 0 || quote.DiscountAmount != 0 {
		t.Errorf("Expected zero quote for empty cart, got %+v", quote)
	}
}
