package escrow

import (
	"context"
	"fmt"
	"slices"
	"strings"
)

// ReleasePredicate decides whether custody may end given the current price
// and the escrow's unlock price.
type ReleasePredicate func(current, threshold float64) bool

// AtOrAbove releases once the price has risen to the threshold.
func AtOrAbove(current, threshold float64) bool { return current >= threshold }

// Above releases only strictly above the threshold.
func Above(current, threshold float64) bool { return current > threshold }

// AtOrBelow releases once the price has fallen to the threshold.
func AtOrBelow(current, threshold float64) bool { return current <= threshold }

// Below releases only strictly below the threshold.
func Below(current, threshold float64) bool { return current < threshold }

// DefaultPredicate is the predicate name used when none is configured.
const DefaultPredicate = "at_or_above"

var predicates = map[string]ReleasePredicate{
	"at_or_above": AtOrAbove,
	"above":       Above,
	"at_or_below": AtOrBelow,
	"below":       Below,
}

// PredicateByName resolves a configured predicate name.
func PredicateByName(name string) (ReleasePredicate, error) {
	if name == "" {
		name = DefaultPredicate
	}
	p, ok := predicates[name]
	if !ok {
		names := make([]string, 0, len(predicates))
		for n := range predicates {
			names = append(names, n)
		}
		slices.Sort(names)
		return nil, fmt.Errorf("unknown release predicate %q (want one of %s)", name, strings.Join(names, ", "))
	}
	return p, nil
}

// PriceSource supplies the current reference price.
type PriceSource interface {
	CurrentPrice(ctx context.Context) (float64, error)
}

// StaticPrice is a PriceSource that always reports the same price.
type StaticPrice float64

// CurrentPrice implements PriceSource.
func (p StaticPrice) CurrentPrice(context.Context) (float64, error) {
	return float64(p), nil
}
