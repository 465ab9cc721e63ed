package cache

import "context"

// Recorder receives cache outcome counts. observability.SignedURLMetrics
// satisfies it.
type Recorder interface {
	Hit(ctx context.Context)
	Miss(ctx context.Context)
	Fallback(ctx context.Context)
}

type nopRecorder struct{}

func (nopRecorder) Hit(context.Context)      {}
func (nopRecorder) Miss(context.Context)     {}
func (nopRecorder) Fallback(context.Context) {}
