package negotiation

import (
	"errors"
	"fmt"
	"math"
)

// Side tells which direction of the price a party prefers.
type Side uint8

const (
	// Buyer prefers lower prices.
	Buyer Side = iota
	// Seller prefers higher prices.
	Seller
)

func (s Side) String() string {
	switch s {
	case Buyer:
		return "buyer"
	case Seller:
		return "seller"
	default:
		return fmt.Sprintf("side(%d)", uint8(s))
	}
}

// Utility maps a (price, quantity) pair onto a satisfaction score.
type Utility struct {
	Side        Side
	PriceMin    float64
	PriceMax    float64
	QuantityMin float64
	QuantityMax float64
	// PriceWeight is the share of the score driven by price, 0.5 when zero.
	PriceWeight float64
}

// Validate reports inverted ranges and out of range weights.
func (u Utility) Validate() error {
	var err error
	if u.PriceMin > u.PriceMax {
		err = errors.Join(err, fmt.Errorf("price range [%g, %g] is inverted", u.PriceMin, u.PriceMax))
	}
	if u.QuantityMin > u.QuantityMax {
		err = errors.Join(err, fmt.Errorf("quantity range [%g, %g] is inverted", u.QuantityMin, u.QuantityMax))
	}
	if u.PriceWeight < 0 || u.PriceWeight > 1 {
		err = errors.Join(err, fmt.Errorf("price weight %g is outside [0, 1]", u.PriceWeight))
	}
	return err
}

// Acceptable reports whether the pair lies inside both ranges.
func (u Utility) Acceptable(price, quantity float64) bool {
	return price >= u.PriceMin && price <= u.PriceMax &&
		quantity >= u.QuantityMin && quantity <= u.QuantityMax
}

// Score returns the utility of the pair: 0 outside the acceptable ranges,
// otherwise a weighted mix of the normalized price and quantity positions.
// Buyers score lower prices higher, sellers higher prices; both score larger
// quantities higher.
func (u Utility) Score(price, quantity float64) float64 {
	if !u.Acceptable(price, quantity) || math.IsNaN(price) || math.IsNaN(quantity) {
		return 0
	}

	priceScore := position(price, u.PriceMin, u.PriceMax)
	if u.Side == Buyer {
		priceScore = position(price, u.PriceMax, u.PriceMin)
	}
	quantityScore := position(quantity, u.QuantityMin, u.QuantityMax)

	w := u.weight()
	return w*priceScore + (1-w)*quantityScore
}

func (u Utility) weight() float64 {
	if u.PriceWeight == 0 {
		return 0.5
	}
	return u.PriceWeight
}

// Clamp moves the pair onto the closest point inside the acceptable ranges.
func (u Utility) Clamp(price, quantity float64) (float64, float64) {
	return clamp(price, u.PriceMin, u.PriceMax), clamp(quantity, u.QuantityMin, u.QuantityMax)
}

// position is where v sits between worst and best, in [0, 1].
func position(v, worst, best float64) float64 {
	if worst == best {
		return 1
	}
	return (v - worst) / (best - worst)
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}
