// Package pricing owns the billing vocabulary for demand assignments and the
// free-plan resolution rule: sponsors and free-plan suppliers always receive
// demands pre-paid at zero cost.
package pricing

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
)

type BillingType string

const (
	BillingFree BillingType = "free"
	BillingPaid BillingType = "paid"
)

// CurrencyBRL is the only currency the marketplace charges in.
const CurrencyBRL = "BRL"

// MinSendAmountCents is the smallest accepted base price for a paid send
// (one whole unit of currency).
const MinSendAmountCents int64 = 100

// Quote is the computed charge for one (demand, supplier) pairing.
type Quote struct {
	AmountCents   int64
	Currency      string
	PaymentStatus PaymentStatus
	BillingType   BillingType
}

// FreePlanHolder is the slice of the supplier record the resolver needs.
type FreePlanHolder interface {
	IsFreeDemand() bool
}

// Resolve computes the quote for a supplier at the given base price.
// Free-plan suppliers (sponsors included) are charged zero and marked
// pre-paid regardless of the requested base amount.
func Resolve(s FreePlanHolder, baseCents int64) Quote {
	return QuoteFor(s != nil && s.IsFreeDemand(), baseCents)
}

// QuoteFor is Resolve with the free-plan flag already derived.
func QuoteFor(free bool, baseCents int64) Quote {
	if free {
		return Quote{
			AmountCents:   0,
			Currency:      CurrencyBRL,
			PaymentStatus: PaymentPaid,
			BillingType:   BillingFree,
		}
	}
	return Quote{
		AmountCents:   baseCents,
		Currency:      CurrencyBRL,
		PaymentStatus: PaymentPending,
		BillingType:   BillingPaid,
	}
}

// CentsToReais renders a minor-unit amount as a decimal string with the
// Brazilian comma decimal separator: 1990 -> "19,90".
func CentsToReais(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d,%02d", sign, cents/100, cents%100)
}

// FormatBRL is CentsToReais with the currency symbol: 1990 -> "R$ 19,90".
func FormatBRL(cents int64) string {
	return "R$ " + CentsToReais(cents)
}

// ReaisToCents parses a Brazilian-formatted decimal amount ("19,90",
// "1.234,50") into minor units, rounding to the nearest cent. Unparseable
// input yields 0.
func ReaisToCents(val string) int64 {
	s := strings.ReplaceAll(strings.TrimSpace(val), ".", "")
	s = strings.ReplaceAll(s, ",", ".")
	if s == "" {
		return 0
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return int64(math.Round(n * 100))
}
