package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/welldanyogia/webrana-infinimail-backend/internal/imapsync"
	"github.com/welldanyogia/webrana-infinimail-backend/internal/logger"
	"github.com/welldanyogia/webrana-infinimail-backend/internal/mailerrors"
	"github.com/welldanyogia/webrana-infinimail-backend/internal/mailparse"
	"github.com/welldanyogia/webrana-infinimail-backend/internal/models"
	"github.com/welldanyogia/webrana-infinimail-backend/internal/repository"
)

// Classification is the outcome of one classifier call.
type Classification struct {
	Label        string
	Confidence   float64
	ModelVersion string
}

// Classifier labels a normalized message. Implementations own their retry
// policy; an error here means the retry budget is spent.
type Classifier interface {
	Classify(ctx context.Context, msg *models.EmailMessage) (*Classification, error)
}

// Indexer writes a message into the search index, idempotently.
type Indexer interface {
	Index(ctx context.Context, msg *models.EmailMessage) error
}

// Notifier fans a classified message out to notification channels. It owns
// actionability rules, dedup, and retries.
type Notifier interface {
	Dispatch(ctx context.Context, msg *models.EmailMessage) error
}

// Archiver persists raw message bytes keyed by message key.
type Archiver interface {
	Store(key string, raw []byte) error
}

// VectorWriter embeds a message for similarity retrieval.
type VectorWriter interface {
	AddMessage(ctx context.Context, msg *models.EmailMessage) error
}

// Broadcaster pushes an enriched message to live subscribers.
type Broadcaster interface {
	MessageEnriched(msg *models.EmailMessage)
}

// Options configures pipeline construction. Broadcast and Vectors are
// optional; all other fields are required.
type Options struct {
	Messages   repository.MessageRepository
	Classifier Classifier
	Indexer    Indexer
	Notifier   Notifier
	Archive    Archiver
	Vectors    VectorWriter
	Broadcast  Broadcaster
	Events     *logger.EventLogger

	QueueSize        int
	Workers          int
	ClassifyInFlight int
	IndexInFlight    int
	NotifyInFlight   int
}

// Pipeline drains raw mailbox events through normalize, persist, classify,
// index, and notify. Stage order is fixed; failures in one stage degrade
// that record without blocking the rest of the flow.
type Pipeline struct {
	opts  Options
	queue chan imapsync.RawEvent
	locks *keyLock

	classifySem chan struct{}
	indexSem    chan struct{}
	notifySem   chan struct{}

	intakeMu sync.RWMutex
	closed   bool

	wg sync.WaitGroup
}

// ErrStopped is returned by Submit once Stop has closed intake.
var ErrStopped = errors.New("pipeline stopped")

func New(opts Options) *Pipeline {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.ClassifyInFlight <= 0 {
		opts.ClassifyInFlight = 4
	}
	if opts.IndexInFlight <= 0 {
		opts.IndexInFlight = 4
	}
	if opts.NotifyInFlight <= 0 {
		opts.NotifyInFlight = 4
	}
	return &Pipeline{
		opts:        opts,
		queue:       make(chan imapsync.RawEvent, opts.QueueSize),
		locks:       newKeyLock(),
		classifySem: make(chan struct{}, opts.ClassifyInFlight),
		indexSem:    make(chan struct{}, opts.IndexInFlight),
		notifySem:   make(chan struct{}, opts.NotifyInFlight),
	}
}

// Start launches the worker pool. The workers run on a context detached
// from the parent's cancellation: once an event is accepted into the queue
// the sync tier's watermark already covers it, so its writes must complete
// even while the process is shutting down.
func (p *Pipeline) Start(ctx context.Context) {
	runCtx := context.WithoutCancel(ctx)
	for i := 0; i < p.opts.Workers; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.loop(runCtx)
		}()
	}
}

// Stop closes intake and drains the queue before returning. Every event
// accepted by Submit is processed; nothing below the watermark is abandoned.
func (p *Pipeline) Stop() {
	p.intakeMu.Lock()
	if !p.closed {
		p.closed = true
		close(p.queue)
	}
	p.intakeMu.Unlock()
	p.wg.Wait()
}

// Submit enqueues a raw event. Blocks when the queue is full; that
// backpressure is what throttles the sync tier. Returns ErrStopped once
// Stop has closed intake.
func (p *Pipeline) Submit(ctx context.Context, event imapsync.RawEvent) error {
	p.intakeMu.RLock()
	defer p.intakeMu.RUnlock()
	if p.closed {
		return ErrStopped
	}
	select {
	case p.queue <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// QueueDepth reports the number of events waiting for a worker.
func (p *Pipeline) QueueDepth() int {
	return len(p.queue)
}

func (p *Pipeline) loop(ctx context.Context) {
	for ev := range p.queue {
		p.process(ctx, ev)
	}
}

// process runs one raw event through every stage. The key lock serializes
// replayed duplicates of the same message.
func (p *Pipeline) process(ctx context.Context, ev imapsync.RawEvent) {
	key := ev.Key()
	p.locks.lock(key)
	defer p.locks.unlock(key)

	events := p.opts.Events

	if p.opts.Archive != nil {
		if err := p.opts.Archive.Store(key, ev.Raw); err != nil {
			events.StageFailure(key, "archive", err.Error())
		}
	}

	msg, err := mailparse.Normalize(ev.Raw)
	if err != nil {
		// A message that cannot be parsed is logged and dropped; it must
		// never take the worker down.
		events.StageFailure(key, "normalize", err.Error())
		return
	}
	msg.AccountID = ev.AccountID
	msg.Folder = ev.Folder
	msg.UID = ev.UID
	msg.RawSize = int64(len(ev.Raw))

	created, err := p.opts.Messages.UpsertByKey(ctx, msg)
	if err != nil {
		events.StageFailure(key, "persist", err.Error())
		return
	}
	events.StageTransition(key, "persist", upsertOutcome(created))

	p.classifyStage(ctx, msg)
	p.indexStage(ctx, msg)

	if p.opts.Vectors != nil {
		if err := p.opts.Vectors.AddMessage(ctx, msg); err != nil {
			events.StageFailure(key, "embed", err.Error())
		}
	}

	p.notifyStage(ctx, msg)

	if p.opts.Broadcast != nil {
		p.opts.Broadcast.MessageEnriched(msg)
	}
}

func upsertOutcome(created bool) string {
	if created {
		return "created"
	}
	return "replayed"
}

// classifyStage labels the message, degrading to unclassified on failure.
func (p *Pipeline) classifyStage(ctx context.Context, msg *models.EmailMessage) {
	key := msg.Key()
	events := p.opts.Events

	select {
	case p.classifySem <- struct{}{}:
	case <-ctx.Done():
		return
	}
	result, err := p.opts.Classifier.Classify(ctx, msg)
	<-p.classifySem

	if err != nil {
		// The record continues through the pipeline unclassified.
		msg.Label = models.LabelUnclassified
		events.StageFailure(key, "classify", err.Error())
		if errors.Is(err, mailerrors.ErrClassifierRejected) {
			// The model refused the input; retrying the same bytes will
			// not help, so leave the record out of the sweep.
			events.StageTransition(key, "classify", "rejected")
			return
		}
		if markErr := p.opts.Messages.MarkNeedsReclassify(ctx, msg.ID, true); markErr != nil {
			events.StageFailure(key, "classify", markErr.Error())
		}
		msg.NeedsReclassify = true
		events.StageTransition(key, "classify", "deferred")
		return
	}

	if err := p.opts.Messages.SetClassification(ctx, msg.ID, result.Label, result.Confidence, result.ModelVersion); err != nil {
		events.StageFailure(key, "classify", err.Error())
		return
	}
	now := time.Now().UTC()
	msg.Label = result.Label
	msg.Confidence = result.Confidence
	msg.ModelVersion = result.ModelVersion
	msg.ClassifiedAt = &now
	msg.NeedsReclassify = false
	events.StageTransition(key, "classify", result.Label)
}

// notifyStage fans the message out to notification channels. Replayed
// duplicates reach here too; the dispatcher's ledger keeps them from
// producing a second notification.
func (p *Pipeline) notifyStage(ctx context.Context, msg *models.EmailMessage) {
	key := msg.Key()
	events := p.opts.Events

	select {
	case p.notifySem <- struct{}{}:
	case <-ctx.Done():
		return
	}
	err := p.opts.Notifier.Dispatch(ctx, msg)
	<-p.notifySem

	if err != nil {
		events.StageFailure(key, "notify", err.Error())
		return
	}
	events.StageTransition(key, "notify", "dispatched")
}

// indexStage writes the record to the search index, deferring on failure.
func (p *Pipeline) indexStage(ctx context.Context, msg *models.EmailMessage) {
	key := msg.Key()
	events := p.opts.Events

	select {
	case p.indexSem <- struct{}{}:
	case <-ctx.Done():
		return
	}
	err := p.opts.Indexer.Index(ctx, msg)
	<-p.indexSem

	if err != nil {
		if markErr := p.opts.Messages.MarkIndexPending(ctx, msg.ID, true); markErr != nil {
			events.StageFailure(key, "index", markErr.Error())
		}
		msg.IndexPending = true
		events.StageFailure(key, "index", err.Error())
		events.StageTransition(key, "index", "deferred")
		return
	}

	if msg.IndexPending {
		if err := p.opts.Messages.MarkIndexPending(ctx, msg.ID, false); err != nil {
			events.StageFailure(key, "index", err.Error())
		}
		msg.IndexPending = false
	}
	events.StageTransition(key, "index", "written")
}

// Reclassify re-runs classification and indexing for an already persisted
// message. Used by the sweep and the reclassify API. Notifications are not
// re-dispatched: a label change after the fact does not page anyone again.
func (p *Pipeline) Reclassify(ctx context.Context, msg *models.EmailMessage) error {
	key := msg.Key()
	p.locks.lock(key)
	defer p.locks.unlock(key)

	result, err := p.opts.Classifier.Classify(ctx, msg)
	if err != nil {
		return err
	}
	if err := p.opts.Messages.SetClassification(ctx, msg.ID, result.Label, result.Confidence, result.ModelVersion); err != nil {
		return err
	}
	now := time.Now().UTC()
	msg.Label = result.Label
	msg.Confidence = result.Confidence
	msg.ModelVersion = result.ModelVersion
	msg.ClassifiedAt = &now
	msg.NeedsReclassify = false
	p.opts.Events.StageTransition(key, "reclassify", result.Label)

	p.indexStage(ctx, msg)
	if p.opts.Broadcast != nil {
		p.opts.Broadcast.MessageEnriched(msg)
	}
	return nil
}

// Reindex retries a deferred index write for one message.
func (p *Pipeline) Reindex(ctx context.Context, msg *models.EmailMessage) error {
	key := msg.Key()
	p.locks.lock(key)
	defer p.locks.unlock(key)

	if err := p.opts.Indexer.Index(ctx, msg); err != nil {
		return err
	}
	if err := p.opts.Messages.MarkIndexPending(ctx, msg.ID, false); err != nil {
		return err
	}
	msg.IndexPending = false
	p.opts.Events.StageTransition(key, "index", "written")
	return nil
}
