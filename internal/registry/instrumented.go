package registry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"

	"github.com/MrWong99/quillmate/internal/observe"
	"github.com/MrWong99/quillmate/pkg/types"
)

var _ Store = (*Instrumented)(nil)

// Instrumented wraps a [Store] with spans and error metrics labelled with the
// backend name.
type Instrumented struct {
	store   Store
	backend string
	metrics *observe.Metrics
}

// Instrument wraps store. A nil m disables metrics but keeps tracing.
func Instrument(store Store, backend string, m *observe.Metrics) *Instrumented {
	return &Instrumented{store: store, backend: backend, metrics: m}
}

// Backend returns the backend label.
func (s *Instrumented) Backend() string { return s.backend }

// Load implements [Store.Load].
func (s *Instrumented) Load(ctx context.Context, authorID string) ([]types.TrackedName, error) {
	ctx, done := s.start(ctx, "load")
	names, err := s.store.Load(ctx, authorID)
	done(err)
	return names, err
}

// Save implements [Store.Save].
func (s *Instrumented) Save(ctx context.Context, authorID string, names []types.TrackedName) error {
	ctx, done := s.start(ctx, "save")
	err := s.store.Save(ctx, authorID, names)
	done(err)
	return err
}

// Ping implements [Store.Ping].
func (s *Instrumented) Ping(ctx context.Context) error {
	ctx, done := s.start(ctx, "ping")
	err := s.store.Ping(ctx)
	done(err)
	return err
}

func (s *Instrumented) start(ctx context.Context, op string) (context.Context, func(error)) {
	ctx, span := observe.StartSpan(ctx, "registry."+op)
	span.SetAttributes(attribute.String("registry.backend", s.backend))
	return ctx, func(err error) {
		defer span.End()
		if err == nil {
			return
		}
		span.RecordError(err)
		observe.Logger(ctx).Warn("registry operation failed", "backend", s.backend, "op", op, "err", err)
		if s.metrics != nil {
			s.metrics.RecordRegistryError(ctx, s.backend, op)
		}
	}
}
