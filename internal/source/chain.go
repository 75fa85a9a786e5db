package source

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/journal-tracker/internal/metrics"
	"github.com/JakeFAU/journal-tracker/internal/tracker"
)

// Strategy is one way of retrieving a journal's listing.
type Strategy interface {
	Name() string
	Fetch(ctx context.Context) ([]tracker.Fragment, error)
}

// Attempt records the outcome of one strategy in a chain run.
type Attempt struct {
	Strategy  string
	Fragments int
	Err       error
	Duration  time.Duration
}

// Result is what a chain run produced.
type Result struct {
	// Strategy is the name of the strategy that succeeded.
	Strategy  string
	Fragments []tracker.Fragment
	Attempts  []Attempt
}

// Chain tries strategies in order until one yields fragments.
type Chain struct {
	journal    string
	strategies []Strategy
	logger     *zap.Logger
}

// NewChain builds a Chain for journal.
func NewChain(journal string, logger *zap.Logger, strategies ...Strategy) *Chain {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Chain{journal: journal, strategies: strategies, logger: logger}
}

// Strategies lists the strategy names in fallback order.
func (c *Chain) Strategies() []string {
	names := make([]string, 0, len(c.strategies))
	for _, s := range c.strategies {
		names = append(names, s.Name())
	}
	return names
}

// Fetch runs the chain. The error joins every strategy failure and is nil
// whenever a strategy produced at least one fragment.
func (c *Chain) Fetch(ctx context.Context) (Result, error) {
	var (
		res  Result
		errs []error
	)
	for _, s := range c.strategies {
		if err := ctx.Err(); err != nil {
			errs = append(errs, tracker.NewSourceError(c.journal, s.Name(), err))
			break
		}
		start := time.Now()
		fragments, err := s.Fetch(ctx)
		if err == nil && len(fragments) == 0 {
			err = tracker.NewSourceError(c.journal, s.Name(), tracker.ErrEmptyResult)
		}
		var srcErr *tracker.SourceError
		if err != nil && !errors.As(err, &srcErr) {
			err = tracker.NewSourceError(c.journal, s.Name(), err)
		}
		attempt := Attempt{Strategy: s.Name(), Fragments: len(fragments), Err: err, Duration: time.Since(start)}
		res.Attempts = append(res.Attempts, attempt)

		if err != nil {
			metrics.ObserveStrategy(c.journal, s.Name(), resultLabel(err))
			c.logger.Warn("strategy failed",
				zap.String("journal", c.journal),
				zap.String("strategy", s.Name()),
				zap.Duration("duration", attempt.Duration),
				zap.Error(err),
			)
			errs = append(errs, err)
			continue
		}
		metrics.ObserveStrategy(c.journal, s.Name(), "success")
		c.logger.Info("strategy succeeded",
			zap.String("journal", c.journal),
			zap.String("strategy", s.Name()),
			zap.Int("fragments", len(fragments)),
			zap.Duration("duration", attempt.Duration),
		)
		res.Strategy = s.Name()
		res.Fragments = fragments
		return res, nil
	}
	if len(errs) == 0 {
		return res, fmt.Errorf("%s: no strategies configured: %w", c.journal, tracker.ErrEmptyResult)
	}
	return res, errors.Join(errs...)
}

func resultLabel(err error) string {
	switch tracker.Classify(err) {
	case tracker.ErrSourceBlocked:
		return "blocked"
	case tracker.ErrTimeout:
		return "timeout"
	case tracker.ErrEmptyResult:
		return "empty"
	default:
		return "unreachable"
	}
}
