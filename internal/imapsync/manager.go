package imapsync

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/welldanyogia/webrana-infinimail-backend/internal/logger"
	"github.com/welldanyogia/webrana-infinimail-backend/internal/models"
	"github.com/welldanyogia/webrana-infinimail-backend/internal/repository"
)

// Manager supervises one worker per (account, folder). Workers are fully
// isolated from each other; the manager only starts, stops, and reports on
// them.
type Manager struct {
	opts    WorkerOptions
	accRepo repository.AccountRepository

	mu      sync.Mutex
	workers map[string]*Worker
	ctx     context.Context
	cancel  context.CancelFunc
	started bool
}

// ManagerConfig holds manager construction parameters.
type ManagerConfig struct {
	Dialer      Dialer
	Accounts    repository.AccountRepository
	FolderState repository.FolderStateRepository
	Sink        EventSink
	Events      *logger.EventLogger
	BackoffBase time.Duration
	BackoffCap  time.Duration
	FetchBatch  int
}

func NewManager(cfg ManagerConfig) *Manager {
	return &Manager{
		accRepo: cfg.Accounts,
		opts: WorkerOptions{
			Dialer:      cfg.Dialer,
			FolderState: cfg.FolderState,
			Sink:        cfg.Sink,
			Events:      cfg.Events,
			BackoffBase: cfg.BackoffBase,
			BackoffCap:  cfg.BackoffCap,
			FetchBatch:  cfg.FetchBatch,
		},
		workers: make(map[string]*Worker),
	}
}

func workerKey(accountID uint, folder string) string {
	return fmt.Sprintf("%d:%s", accountID, folder)
}

// Start loads every active account and spawns its folder workers.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return fmt.Errorf("sync manager already started")
	}
	m.ctx, m.cancel = context.WithCancel(ctx)
	m.started = true
	m.mu.Unlock()

	accounts, err := m.accRepo.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("list active accounts: %w", err)
	}
	for i := range accounts {
		m.AddAccount(&accounts[i])
	}
	return nil
}

// AddAccount spawns workers for each of the account's folders. Folders that
// already have a worker are left alone.
func (m *Manager) AddAccount(account *models.Account) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.started {
		return
	}
	for _, folder := range account.FolderList() {
		key := workerKey(account.ID, folder)
		if _, ok := m.workers[key]; ok {
			continue
		}
		w := NewWorker(account, folder, m.opts)
		m.workers[key] = w
		w.Start(m.ctx)
	}
}

// RemoveAccount stops and discards every worker belonging to the account.
func (m *Manager) RemoveAccount(accountID uint) {
	m.mu.Lock()
	prefix := fmt.Sprintf("%d:", accountID)
	var stopping []*Worker
	for key, w := range m.workers {
		if len(key) > len(prefix) && key[:len(prefix)] == prefix {
			stopping = append(stopping, w)
			delete(m.workers, key)
		}
	}
	m.mu.Unlock()

	for _, w := range stopping {
		w.Stop()
	}
}

// WorkerStatus is one row of the manager's status report.
type WorkerStatus struct {
	AccountID uint        `json:"account_id"`
	Folder    string      `json:"folder"`
	State     WorkerState `json:"state"`
}

// Status snapshots the state of every worker.
func (m *Manager) Status() []WorkerStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]WorkerStatus, 0, len(m.workers))
	for _, w := range m.workers {
		out = append(out, WorkerStatus{
			AccountID: w.account.ID,
			Folder:    w.folder,
			State:     w.State(),
		})
	}
	return out
}

// Stop cancels and waits for every worker.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return
	}
	m.cancel()
	workers := make([]*Worker, 0, len(m.workers))
	for _, w := range m.workers {
		workers = append(workers, w)
	}
	m.workers = make(map[string]*Worker)
	m.started = false
	m.mu.Unlock()

	for _, w := range workers {
		w.Stop()
	}
}
