package feed

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/slotstore/internal/ir"
)

// Source reads one feed as a price source.
type Source struct {
	publisher *Publisher
	name      string
	maxAge    time.Duration
}

// Source returns a price source over feed name. Prices older than maxAge
// are rejected as STALE_PRICE; zero disables the check.
func (p *Publisher) Source(name string, maxAge time.Duration) *Source {
	return &Source{publisher: p, name: name, maxAge: maxAge}
}

// CurrentPrice returns the feed's latest price.
func (s *Source) CurrentPrice(ctx context.Context) (float64, error) {
	f, err := s.publisher.Get(ctx, s.name)
	if err != nil {
		return 0, fmt.Errorf("feed %q: %w", s.name, err)
	}
	if s.maxAge > 0 {
		age := s.publisher.now().Sub(f.UpdatedAt)
		if age > s.maxAge {
			return 0, &ir.Error{
				Code:    ir.CodeStalePrice,
				Address: f.Address,
				Message: fmt.Sprintf("feed %q is %s old, limit %s", s.name, age.Round(time.Second), s.maxAge),
			}
		}
	}
	return f.Price, nil
}
