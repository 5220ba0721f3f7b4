package domain

import "context"

// Publisher receives registry change events. Delivery is best-effort.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

type Publishers []Publisher

// Publish delivers to every publisher and returns the first error.
func (ps Publishers) Publish(ctx context.Context, event Event) error {
	var first error
	for _, p := range ps {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, event); err != nil && first == nil {
			first = err
		}
	}
	return first
}
