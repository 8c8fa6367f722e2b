package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/welldanyogia/webrana-infinimail-backend/internal/logger"
	"github.com/welldanyogia/webrana-infinimail-backend/internal/mailerrors"
	"github.com/welldanyogia/webrana-infinimail-backend/internal/repository"
)

const sweepBatchSize = 100

// Sweeper periodically retries work the pipeline deferred: index writes
// that exhausted their budget and records flagged for reclassification.
type Sweeper struct {
	pipeline *Pipeline
	messages repository.MessageRepository
	events   *logger.EventLogger
	interval time.Duration

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

func NewSweeper(p *Pipeline, messages repository.MessageRepository, events *logger.EventLogger, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Sweeper{
		pipeline: p,
		messages: messages,
		events:   events,
		interval: interval,
	}
}

func (s *Sweeper) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				s.Sweep(runCtx)
			}
		}
	}()
}

func (s *Sweeper) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

// Sweep runs one pass over deferred work. Errors on individual records are
// logged and left for the next pass.
func (s *Sweeper) Sweep(ctx context.Context) {
	pending, err := s.messages.ListIndexPending(ctx, sweepBatchSize)
	if err != nil {
		s.events.Error("sweep: list index-pending", "error", err)
	} else {
		for i := range pending {
			if ctx.Err() != nil {
				return
			}
			if err := s.pipeline.Reindex(ctx, &pending[i]); err != nil {
				s.events.StageFailure(pending[i].Key(), "index", err.Error())
			}
		}
	}

	flagged, err := s.messages.ListNeedsReclassify(ctx, sweepBatchSize)
	if err != nil {
		s.events.Error("sweep: list needs-reclassify", "error", err)
		return
	}
	for i := range flagged {
		if ctx.Err() != nil {
			return
		}
		if err := s.pipeline.Reclassify(ctx, &flagged[i]); err != nil {
			if errors.Is(err, mailerrors.ErrClassifierRejected) {
				// The model refused the input; the same bytes would be
				// resubmitted every pass, so drop the flag.
				if markErr := s.messages.MarkNeedsReclassify(ctx, flagged[i].ID, false); markErr != nil {
					s.events.StageFailure(flagged[i].Key(), "reclassify", markErr.Error())
				}
				s.events.StageTransition(flagged[i].Key(), "reclassify", "rejected")
				continue
			}
			s.events.StageFailure(flagged[i].Key(), "reclassify", err.Error())
		}
	}
}
