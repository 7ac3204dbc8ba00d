package health

import "context"

// IndexChecker reports whether the search index holds any content.
type IndexChecker interface {
	Size() int
}

// ProviderChecker checks an upstream provider's availability.
type ProviderChecker interface {
	HealthCheck(ctx context.Context) error
}
