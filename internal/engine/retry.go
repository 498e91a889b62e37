package engine

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/wolfeidau/governor/internal/telemetry"
)

const defaultConflictRetries = 4

// retryOnConflict runs fn until it succeeds, fails with anything other than
// a concurrent modification, or the attempt budget is spent. Every attempt
// must re-read the entity it writes.
func retryOnConflict[T any](ctx context.Context, tries uint, op string, fn func() (T, error)) (T, error) {
	if tries == 0 {
		tries = defaultConflictRetries
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 5 * time.Millisecond
	b.MaxInterval = 100 * time.Millisecond

	return backoff.Retry(ctx, func() (T, error) {
		v, err := fn()
		if err == nil {
			return v, nil
		}
		if !errors.Is(err, ErrConcurrentModification) {
			return v, backoff.Permanent(err)
		}
		return v, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(tries),
		backoff.WithNotify(func(err error, next time.Duration) {
			telemetry.GetMetrics().ConflictRetriesTotal.Add(ctx, 1,
				metric.WithAttributes(attribute.String("op", op)))
			log.Warn().Err(err).Str("op", op).Dur("next", next).Msg("Retrying after concurrent modification")
		}),
	)
}
