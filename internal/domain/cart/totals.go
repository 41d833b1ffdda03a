package cart

import "math"

// Totals is the recomputed money summary for a cart.
type Totals struct {
	Subtotal             float64 `json:"subtotal"`
	Tax                  float64 `json:"tax"`
	Shipping             float64 `json:"shipping"`
	Total                float64 `json:"total"`
	RequiresVerification bool    `json:"requires_verification"`
}

// Sales tax rates by shipping state. States absent from the table fall back
// to the configured default rate.
var stateTaxRates = map[string]float64{
	"AK": 0, "DE": 0, "MT": 0, "NH": 0, "OR": 0,
	"CA": 0.0725,
	"CO": 0.029,
	"FL": 0.06,
	"IL": 0.0625,
	"NY": 0.04,
	"OH": 0.0575,
	"PA": 0.06,
	"TX": 0.0625,
	"WA": 0.065,
}

// Flat shipping rates by method. Standard shipping is free at or above the
// threshold.
var shippingRates = map[string]float64{
	ShippingStandard:  5.99,
	ShippingExpedited: 14.99,
	ShippingOvernight: 24.99,
}

const freeShippingThreshold = 75.00

// TotalsInput is one line item's contribution to the totals computation,
// with the prescription gate already resolved.
type TotalsInput struct {
	UnitPrice            float64
	Quantity             int
	RequiresPrescription bool
	PrescriptionUsable   bool
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// ComputeTotals derives the cart money summary from its lines. The
// computation is pure and deterministic: the same lines, method, state and
// default rate always produce the same Totals. RequiresVerification is true
// when any prescription-required line lacks a currently usable
// prescription.
func ComputeTotals(lines []TotalsInput, shippingMethod, shippingState string, defaultTaxRate float64) Totals {
	var t Totals
	for _, l := range lines {
		t.Subtotal += l.UnitPrice * float64(l.Quantity)
		if l.RequiresPrescription && !l.PrescriptionUsable {
			t.RequiresVerification = true
		}
	}
	t.Subtotal = round2(t.Subtotal)

	rate, ok := stateTaxRates[shippingState]
	if !ok {
		rate = defaultTaxRate
	}
	t.Tax = round2(t.Subtotal * rate)

	if len(lines) > 0 {
		t.Shipping = shippingRates[shippingMethod]
		if shippingMethod == ShippingStandard && t.Subtotal >= freeShippingThreshold {
			t.Shipping = 0
		}
	}

	t.Total = round2(t.Subtotal + t.Tax + t.Shipping)
	return t
}

// ValidShippingMethod reports whether the method has a rate-table entry.
func ValidShippingMethod(method string) bool {
	_, ok := shippingRates[method]
	return ok
}
