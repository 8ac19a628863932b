package parking

import (
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"
)

const (
	DefaultStandardCap   = 20.0
	DefaultSurchargedCap = 45.5
)

// Pricing bills a stay at the vehicle's per-minute rate for every started
// minute, capped per class. Surcharged kinds (Bus, Van) use SurchargedCap.
type Pricing struct {
	StandardCap   float64
	SurchargedCap float64
}

func DefaultPricing() Pricing {
	return Pricing{
		StandardCap:   DefaultStandardCap,
		SurchargedCap: DefaultSurchargedCap,
	}
}

func (p Pricing) Validate() error {
	if p.StandardCap < 0 || p.SurchargedCap < 0 {
		return fmt.Errorf("%w: price caps must not be negative", ErrInvalidArgument)
	}
	return nil
}

// Cap returns the maximum charge for one stay of kind.
func (p Pricing) Cap(kind Kind) float64 {
	if kind.Surcharged() {
		return p.SurchargedCap
	}
	return p.StandardCap
}

// Price returns the charge, rounded to cents, for staying elapsed.
func (p Pricing) Price(v Vehicle, elapsed time.Duration) float64 {
	if elapsed <= 0 {
		return 0
	}

	minutes := int64(math.Ceil(elapsed.Minutes()))
	total := decimal.NewFromFloat(v.RatePerMinute).
		Mul(decimal.NewFromInt(minutes)).
		Round(2)

	limit := decimal.NewFromFloat(p.Cap(v.Kind))
	if total.GreaterThan(limit) {
		total = limit
	}

	f, _ := total.Float64()
	return f
}
