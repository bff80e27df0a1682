package migrate

import (
	"fmt"
	"sync"

	"taskbridge/internal/backup"
	"taskbridge/internal/domain"
	"taskbridge/internal/localstore"
	"taskbridge/internal/progress"
	"taskbridge/internal/scanner"
	"taskbridge/internal/store"
)

// ManagerDeps wires the per-user collaborators a Manager hands to runs.
type ManagerDeps struct {
	// OpenLocal returns the client-side store for a user.
	OpenLocal func(userID string) localstore.Store
	// Backups returns the backup manager for a user.
	Backups func(userID string) *backup.Manager

	Registry *scanner.Registry
	Dest     *store.Store

	// OnEvent, when set, is subscribed to every run's reporter. This is how
	// callers persist an event trail or dispatch notifications.
	OnEvent func(userID string, ev domain.MigrationEvent)
}

// Manager owns at most one migration run per user and enforces the
// one-non-terminal-run-per-owner invariant. Different users' runs are
// independent workers sharing only the destination store.
type Manager struct {
	mu   sync.Mutex
	runs map[string]*Run
	deps ManagerDeps
}

// NewManager creates a Manager.
func NewManager(deps ManagerDeps) *Manager {
	return &Manager{
		runs: make(map[string]*Run),
		deps: deps,
	}
}

// Start begins a migration for cfg.UserID and drives it until it completes,
// pauses, or fails. A second start while a run is non-terminal fails with
// AlreadyInProgressError and leaves the first run untouched.
func (m *Manager) Start(cfg Config) (*domain.MigrationState, error) {
	if cfg.UserID == "" {
		return nil, fmt.Errorf("user id is required")
	}

	m.mu.Lock()
	if existing, ok := m.runs[cfg.UserID]; ok {
		if !existing.State().Status.Terminal() {
			m.mu.Unlock()
			return nil, &domain.AlreadyInProgressError{UserID: cfg.UserID}
		}
	}

	reporter := progress.NewReporter()
	if m.deps.OnEvent != nil {
		userID := cfg.UserID
		reporter.Subscribe(func(ev domain.MigrationEvent) {
			m.deps.OnEvent(userID, ev)
		})
	}

	run := NewRun(cfg, Deps{
		Local:    m.deps.OpenLocal(cfg.UserID),
		Registry: m.deps.Registry,
		Backups:  m.deps.Backups(cfg.UserID),
		Dest:     m.deps.Dest,
		Reporter: reporter,
	})
	m.runs[cfg.UserID] = run
	m.mu.Unlock()

	return run.Start()
}

// Get returns the user's current run, or nil.
func (m *Manager) Get(userID string) *Run {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.runs[userID]
}

// State returns a copy of the user's current migration state, or nil when the
// user has none.
func (m *Manager) State(userID string) *domain.MigrationState {
	run := m.Get(userID)
	if run == nil {
		return nil
	}
	return run.State()
}

// Resolve applies resolutions to the user's paused run.
func (m *Manager) Resolve(userID string, resolutions []domain.ConflictResolution) (*domain.MigrationState, error) {
	run := m.Get(userID)
	if run == nil {
		return nil, fmt.Errorf("no migration found for user %s", userID)
	}
	return run.Resolve(resolutions)
}

// Cancel cancels the user's active run.
func (m *Manager) Cancel(userID string) error {
	run := m.Get(userID)
	if run == nil {
		return fmt.Errorf("no migration found for user %s", userID)
	}
	return run.Cancel()
}

// ClearCompleted removes the user's run once it is terminal, making room for
// a fresh start. Clearing a non-terminal run is refused.
func (m *Manager) ClearCompleted(userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	run, ok := m.runs[userID]
	if !ok {
		return fmt.Errorf("no migration found for user %s", userID)
	}
	if !run.State().Status.Terminal() {
		return fmt.Errorf("migration for user %s is still active", userID)
	}
	delete(m.runs, userID)
	return nil
}
