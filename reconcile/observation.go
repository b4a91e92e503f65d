package reconcile

import (
	"context"
	"log/slog"

	"github.com/tompro/payday/domain/model"
)

// ObservationRecorder persists payment sightings that no aggregate owns.
// Implemented by the postgres observation store.
type ObservationRecorder interface {
	RecordObservation(ctx context.Context, o model.PaymentObservation) error
}

// recordObservation stores a sighting, logging instead of failing the
// caller when the write does not go through.
func recordObservation(ctx context.Context, rec ObservationRecorder, o model.PaymentObservation) {
	if err := rec.RecordObservation(ctx, o); err != nil {
		slog.ErrorContext(ctx, "Failed to record payment observation",
			"kind", o.Kind, "reference", o.Reference, "error", err)
	}
}
