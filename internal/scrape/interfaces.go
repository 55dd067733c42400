package scrape

import (
	"context"
	"time"
)

// Backend is the remote scraping/crawling collaborator. One call per job;
// it either returns the opaque result payload or an error. Rate limiting
// is signaled through an error that IsRateLimited recognizes.
type Backend interface {
	Run(ctx context.Context, req BackendRequest) (BackendResult, error)
}

// Publisher pushes job completion events to a topic (Pub/Sub or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}
