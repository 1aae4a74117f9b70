package cardpool

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"cardvault/internal/core/numerator"
	"cardvault/pkg/logger"
)

var tracer = otel.Tracer("cardvault/cardpool")

// Generator produces new numbers and stores them encrypted. The batch and
// its checkpoint commit in one ledger unit, so a suffix is never reused and
// never recorded without the numbers it covers.
type Generator struct {
	ledger  *Ledger
	numbers *numerator.Generator
	cards   GeneratedCardRepository
	enc     Encryptor
	metrics *Metrics
	log     *logger.Logger
}

// NewGenerator creates a generator.
func NewGenerator(
	ledger *Ledger,
	numbers *numerator.Generator,
	cards GeneratedCardRepository,
	enc Encryptor,
	opts ...Option,
) *Generator {
	o := newOptions(opts)
	return &Generator{
		ledger:  ledger,
		numbers: numbers,
		cards:   cards,
		enc:     enc,
		metrics: o.metrics,
		log:     o.log.WithComponent("card-generator"),
	}
}

// Replenish generates count numbers and stores them. It returns the number
// of records inserted.
func (g *Generator) Replenish(ctx context.Context, count int) (int, error) {
	ctx, span := tracer.Start(ctx, "cardpool.replenish")
	defer span.End()
	span.SetAttributes(attribute.Int("cardpool.count", count))

	var inserted int
	err := g.ledger.Advance(ctx, func(ctx context.Context, last uint64) (uint64, error) {
		batch, err := g.numbers.Generate(last, count)
		if err != nil {
			return 0, err
		}
		g.metrics.attempts.Add(float64(batch.Attempts))

		encrypted := make([]string, len(batch.Numbers))
		for i, n := range batch.Numbers {
			if encrypted[i], err = g.enc.Encrypt(n.String()); err != nil {
				return 0, fmt.Errorf("encrypt generated number: %w", err)
			}
		}

		if inserted, err = g.cards.InsertBatch(ctx, encrypted); err != nil {
			return 0, fmt.Errorf("store generated numbers: %w", err)
		}

		g.log.WithContext(ctx).Infow("card numbers generated",
			"count", inserted,
			"attempts", batch.Attempts,
			"last_suffix", batch.LastSuffix,
		)
		return batch.LastSuffix, nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, err
	}

	g.metrics.generated.Add(float64(inserted))
	return inserted, nil
}
