package imapsync

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/welldanyogia/webrana-infinimail-backend/internal/logger"
	"github.com/welldanyogia/webrana-infinimail-backend/internal/models"
	"github.com/welldanyogia/webrana-infinimail-backend/internal/repository"
)

// WorkerState is the externally visible lifecycle state of a mailbox worker.
type WorkerState string

const (
	StateConnecting WorkerState = "connecting"
	StateResyncing  WorkerState = "resyncing"
	StateWaiting    WorkerState = "waiting"
	StateFetching   WorkerState = "fetching"
	StateBackingOff WorkerState = "backing_off"
	StateStopped    WorkerState = "stopped"
)

// Worker owns one (account, folder) pair: a single connection, a single
// watermark, and a single goroutine. Failures here never touch any other
// worker.
type Worker struct {
	account *models.Account
	folder  string

	dialer     Dialer
	states     repository.FolderStateRepository
	sink       EventSink
	events     *logger.EventLogger
	backoff    *Backoff
	fetchBatch int

	mu    sync.Mutex
	state WorkerState

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// WorkerOptions bundles worker dependencies.
type WorkerOptions struct {
	Dialer      Dialer
	FolderState repository.FolderStateRepository
	Sink        EventSink
	Events      *logger.EventLogger
	BackoffBase time.Duration
	BackoffCap  time.Duration

	// FetchBatch caps how many messages are fetched between watermark
	// writes during a resync.
	FetchBatch int
}

func NewWorker(account *models.Account, folder string, opts WorkerOptions) *Worker {
	batch := opts.FetchBatch
	if batch <= 0 {
		batch = 50
	}
	return &Worker{
		account:    account,
		folder:     folder,
		dialer:     opts.Dialer,
		states:     opts.FolderState,
		sink:       opts.Sink,
		events:     opts.Events,
		backoff:    NewBackoff(opts.BackoffBase, opts.BackoffCap),
		fetchBatch: batch,
		state:      StateConnecting,
	}
}

// Start launches the worker loop. Stop cancels it and waits for exit.
func (w *Worker) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.run(runCtx)
	}()
}

func (w *Worker) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}

// State reports the worker's current lifecycle state.
func (w *Worker) State() WorkerState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

func (w *Worker) setState(s WorkerState) {
	w.mu.Lock()
	prev := w.state
	w.state = s
	w.mu.Unlock()
	if prev != s {
		w.events.WorkerState(w.account.ID, w.folder, string(prev), string(s))
	}
}

func (w *Worker) run(ctx context.Context) {
	defer w.setState(StateStopped)

	for {
		if ctx.Err() != nil {
			return
		}
		err := w.cycle(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			if !w.sleepBackoff(ctx, err) {
				return
			}
		}
	}
}

// cycle runs one connect-resync-serve pass. A panic anywhere in the pass is
// converted into an error so the loop restarts this worker without taking
// down the rest of the process.
func (w *Worker) cycle(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("mailbox worker panic: %v", r)
		}
	}()

	session, err := w.connectAndResync(ctx)
	if err != nil {
		return err
	}
	defer session.Close()
	return w.serve(ctx, session)
}

// connectAndResync dials, selects the folder, reconciles UIDVALIDITY, and
// drains every UID above the stored watermark before the worker starts
// waiting for pushes.
func (w *Worker) connectAndResync(ctx context.Context) (Session, error) {
	w.setState(StateConnecting)

	session, err := w.dialer.Dial(ctx, w.account)
	if err != nil {
		return nil, err
	}

	if err := w.resync(ctx, session); err != nil {
		_ = session.Close()
		return nil, err
	}

	w.backoff.Reset()
	return session, nil
}

// resync selects the folder and catches up past the watermark.
func (w *Worker) resync(ctx context.Context, session Session) error {
	w.setState(StateResyncing)

	status, err := session.Select(ctx, w.folder)
	if err != nil {
		return err
	}

	state, err := w.states.GetOrCreate(ctx, w.account.ID, w.folder)
	if err != nil {
		return fmt.Errorf("load folder state: %w", err)
	}

	if state.UIDValidity != 0 && state.UIDValidity != status.UIDValidity {
		// The server renumbered the folder. Every stored UID is now
		// meaningless, so restart from zero; the content-level upsert
		// keeps the re-fetch from producing duplicate rows.
		w.events.SyncEvent("uidvalidity_changed", w.account.ID, map[string]string{
			"folder":  w.folder,
			"stored":  fmt.Sprintf("%d", state.UIDValidity),
			"current": fmt.Sprintf("%d", status.UIDValidity),
		})
		if err := w.states.ResetValidity(ctx, w.account.ID, w.folder, status.UIDValidity); err != nil {
			return fmt.Errorf("reset folder state: %w", err)
		}
		state.LastUID = 0
	} else if state.UIDValidity == 0 {
		if err := w.states.SetValidity(ctx, w.account.ID, w.folder, status.UIDValidity); err != nil {
			return fmt.Errorf("record uidvalidity: %w", err)
		}
	}

	return w.drain(ctx, session, state.LastUID)
}

// drain fetches and emits every UID above the watermark, advancing the
// watermark after each delivered batch.
func (w *Worker) drain(ctx context.Context, session Session, watermark uint32) error {
	for {
		uids, err := session.UIDsAbove(ctx, watermark)
		if err != nil {
			return err
		}
		if len(uids) == 0 {
			return nil
		}

		w.setState(StateFetching)
		for len(uids) > 0 {
			n := w.fetchBatch
			if n > len(uids) {
				n = len(uids)
			}
			batch := uids[:n]
			uids = uids[n:]

			var batchMax uint32
			for _, uid := range batch {
				raw, err := session.FetchRaw(ctx, uid)
				if err != nil {
					// Persist progress up to the last delivered UID before
					// surfacing the error; the next resync resumes there.
					if batchMax > 0 {
						_ = w.states.Advance(ctx, w.account.ID, w.folder, batchMax)
					}
					return err
				}
				if err := w.sink.Submit(ctx, RawEvent{
					AccountID: w.account.ID,
					Folder:    w.folder,
					UID:       uid,
					Raw:       raw,
				}); err != nil {
					if batchMax > 0 {
						_ = w.states.Advance(ctx, w.account.ID, w.folder, batchMax)
					}
					return err
				}
				batchMax = uid
			}

			if err := w.states.Advance(ctx, w.account.ID, w.folder, batchMax); err != nil {
				return fmt.Errorf("advance watermark: %w", err)
			}
			w.events.BatchEmitted(w.account.ID, w.folder, len(batch), batchMax)
			watermark = batchMax
		}
	}
}

// serve is the steady-state loop: wait for a push or refresh timeout, then
// drain whatever arrived.
func (w *Worker) serve(ctx context.Context, session Session) error {
	for {
		w.setState(StateWaiting)
		_, err := session.Wait(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		// Drain on refresh timeouts too, not just pushes. Pushes can be
		// lost on flaky servers and a search against the watermark is cheap.
		state, err := w.states.GetOrCreate(ctx, w.account.ID, w.folder)
		if err != nil {
			return fmt.Errorf("load folder state: %w", err)
		}
		if err := w.drain(ctx, session, state.LastUID); err != nil {
			return err
		}
	}
}

// sleepBackoff waits out the next backoff delay. Returns false when the
// context was cancelled during the wait.
func (w *Worker) sleepBackoff(ctx context.Context, cause error) bool {
	w.setState(StateBackingOff)
	delay := w.backoff.Next()
	slog.Warn("mailbox worker backing off",
		"account_id", w.account.ID,
		"folder", w.folder,
		"attempt", w.backoff.Attempts(),
		"delay", delay.String(),
		"error", cause.Error(),
	)

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
