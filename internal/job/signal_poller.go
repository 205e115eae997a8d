package job

import (
	"context"
	"log"
	"time"

	"stock-signals/internal/domain"

	"go.opentelemetry.io/otel/trace"
)

type BatchScorer interface {
	ScoreBatch(ctx context.Context, symbols []string) (map[string]domain.CombinedSignal, map[string]error)
}

// SignalPoller periodically rescores the watchlist so stored signals and the
// cache stay fresh between on-demand requests.
type SignalPoller struct {
	tracer   trace.Tracer
	scorer   BatchScorer
	symbols  []string
	interval time.Duration
}

func NewSignalPoller(tracer trace.Tracer, scorer BatchScorer, symbols []string, interval time.Duration) *SignalPoller {
	if len(symbols) == 0 {
		symbols = domain.DefaultSymbols
	}
	if interval <= 0 {
		interval = 30 * time.Minute
	}
	return &SignalPoller{
		tracer:   tracer,
		scorer:   scorer,
		symbols:  symbols,
		interval: interval,
	}
}

// Start runs one immediate pass and then rescans on the ticker. Blocks until
// ctx is cancelled.
func (p *SignalPoller) Start(ctx context.Context) {
	if p.scorer == nil {
		log.Println("Signal poller disabled: no scorer")
		<-ctx.Done()
		return
	}

	log.Println("Signal poller starting...")
	p.scoreOnce(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Signal poller stopped")
			return
		case <-ticker.C:
			p.scoreOnce(ctx)
		}
	}
}

func (p *SignalPoller) scoreOnce(ctx context.Context) {
	ctx, span := p.tracer.Start(ctx, "signal-poller.score-once")
	defer span.End()

	results, failures := p.scorer.ScoreBatch(ctx, p.symbols)
	for symbol, err := range failures {
		log.Printf("signal scoring error for %s: %v", symbol, err)
	}
	if len(results) > 0 {
		log.Printf("signal poller scored %d/%d symbols", len(results), len(p.symbols))
	}
}
