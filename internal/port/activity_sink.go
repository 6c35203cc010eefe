package port

import (
	"context"

	"github.com/adi0301/item-lending/internal/core/domain"
)

type ActivitySink interface {
	// Record appends one activity event. Sinks are best-effort: errors are
	// logged by the caller and never reach the serving path.
	Record(ctx context.Context, ev domain.Event) error
}
