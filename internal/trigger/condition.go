package trigger

import "fmt"

// Condition is one of PriceAbove, PriceBelow or PriceCross.
type Condition interface {
	// Target returns the price the condition compares against.
	Target() float64
	// Kind returns the condition's name for logs and metrics.
	Kind() string

	condition()
}

// PriceAbove is met when the price is at or above Price.
type PriceAbove struct{ Price float64 }

// PriceBelow is met when the price is at or below Price.
type PriceBelow struct{ Price float64 }

// PriceCross is met when the price moves from one side of Price to the
// other between two polls. It never fires on the first observation.
type PriceCross struct{ Price float64 }

func (c PriceAbove) Target() float64 { return c.Price }
func (c PriceBelow) Target() float64 { return c.Price }
func (c PriceCross) Target() float64 { return c.Price }

func (PriceAbove) Kind() string { return "price_above" }
func (PriceBelow) Kind() string { return "price_below" }
func (PriceCross) Kind() string { return "price_cross" }

func (PriceAbove) condition() {}
func (PriceBelow) condition() {}
func (PriceCross) condition() {}

// ParseCondition builds a condition from its kind name.
func ParseCondition(kind string, target float64) (Condition, error) {
	switch kind {
	case "price_above":
		return PriceAbove{Price: target}, nil
	case "price_below":
		return PriceBelow{Price: target}, nil
	case "price_cross":
		return PriceCross{Price: target}, nil
	}
	return nil, fmt.Errorf("unknown condition %q", kind)
}

// Evaluate reports whether c is met at cur given the previous observation.
func Evaluate(c Condition, prev *float64, cur float64) bool {
	switch c := c.(type) {
	case PriceAbove:
		return cur >= c.Price
	case PriceBelow:
		return cur <= c.Price
	case PriceCross:
		if prev == nil {
			return false
		}
		p := *prev
		return (p < c.Price && cur >= c.Price) || (p > c.Price && cur <= c.Price)
	}
	return false
}
