// Package migrate drives the client-to-server data migration state machine:
// scan, backup, validate, per-record conflict check, write. Runs pause on
// unresolved conflicts and resume once resolutions are supplied.
package migrate

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"taskbridge/internal/backup"
	"taskbridge/internal/conflict"
	"taskbridge/internal/domain"
	"taskbridge/internal/localstore"
	"taskbridge/internal/progress"
	"taskbridge/internal/scanner"
	"taskbridge/internal/store"
)

// etaWindow is the number of recent per-item samples the moving average uses.
const etaWindow = 10

// Config contains the recognized options for one migration run.
type Config struct {
	UserID string
	// DryRun performs every stage, including the backup, but suppresses
	// destination writes.
	DryRun bool
	// ItemTimeout fails the run when a single record takes longer than this
	// to process. Zero disables the check.
	ItemTimeout time.Duration
}

// Deps are the collaborators a run operates on. The run owns its
// MigrationState exclusively; callers only see copies.
type Deps struct {
	Local    localstore.Store
	Registry *scanner.Registry
	Backups  *backup.Manager
	Dest     *store.Store
	Reporter *progress.Reporter
}

type item struct {
	schema  string
	key     string
	payload json.RawMessage
}

// Run is a single migration run for one owner.
type Run struct {
	mu   sync.Mutex
	cfg  Config
	deps Deps

	state         *domain.MigrationState
	pending       []item
	conflictItems map[string]item
	manifest      *domain.BackupManifest
	samples       []time.Duration
	resolved      int
	cancelled     bool
	resolving     bool
}

// NewRun creates a run in PENDING status.
func NewRun(cfg Config, deps Deps) *Run {
	now := time.Now()
	return &Run{
		cfg:  cfg,
		deps: deps,
		state: &domain.MigrationState{
			ID:        uuid.NewString(),
			UserID:    cfg.UserID,
			Status:    domain.StatusPending,
			Progress:  domain.MigrationProgress{Stage: domain.StageScanning},
			Conflicts: []domain.DataConflict{},
			StartedAt: now,
			UpdatedAt: now,
		},
		conflictItems: make(map[string]item),
	}
}

// State returns a copy of the current migration state.
func (r *Run) State() *domain.MigrationState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.Clone()
}

// Manifest returns the backup manifest taken for this run, if any.
func (r *Run) Manifest() *domain.BackupManifest {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.manifest
}

// Start executes the run through its stages and returns the resulting state:
// completed, paused on conflicts, or failed. The returned error is non-nil
// only for engine faults (the run is then FAILED and inspectable).
func (r *Run) Start() (*domain.MigrationState, error) {
	r.mu.Lock()
	if r.state.Status != domain.StatusPending {
		status := r.state.Status
		r.mu.Unlock()
		return nil, fmt.Errorf("migration %s already started (status %s)", r.state.ID, status)
	}
	r.state.Status = domain.StatusRunning
	r.state.StartedAt = time.Now()
	r.touch()
	r.mu.Unlock()

	r.emit(domain.EventStarted, "migration started", map[string]interface{}{
		"migration_id": r.state.ID,
		"dry_run":      r.cfg.DryRun,
	})

	// SCANNING
	r.setStage(domain.StageScanning, "")
	inv, err := scanner.Scan(r.deps.Local, r.deps.Registry)
	if err != nil {
		return r.fail(err)
	}
	r.mu.Lock()
	r.state.Progress.TotalItems = inv.KnownKeys
	r.touch()
	r.mu.Unlock()

	// BACKING_UP: taken even in dry-run so the same code path is exercised
	// and a backup always exists before the first destructive write.
	r.setStage(domain.StageBackingUp, "")
	manifest, err := r.deps.Backups.Create(r.deps.Local, r.deps.Registry)
	if err != nil {
		return r.fail(err)
	}
	r.mu.Lock()
	r.manifest = manifest
	r.mu.Unlock()

	// VALIDATING
	r.setStage(domain.StageValidating, "")
	if err := r.loadItems(inv); err != nil {
		return r.fail(err)
	}

	// WRITING
	r.setStage(domain.StageWriting, "")
	return r.processBatch()
}

// loadItems reads every known record in deterministic key order and validates
// that it parses as a JSON object.
func (r *Run) loadItems(inv *domain.Inventory) error {
	keys := make([]string, 0, len(inv.KeySizes))
	for key := range inv.KeySizes {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		schema, known := r.deps.Registry.Classify(key)
		if !known {
			continue
		}
		payload, err := r.deps.Local.Get(key)
		if err != nil {
			return err
		}
		var fields map[string]interface{}
		if err := json.Unmarshal(payload, &fields); err != nil {
			return fmt.Errorf("record %s is not a valid JSON object: %w", key, err)
		}
		r.pending = append(r.pending, item{schema: schema, key: key, payload: payload})
	}
	return nil
}

// processBatch drains the pending records. Non-conflicting records are
// written (or counted, under dry-run) immediately; conflicts are collected in
// scan order and the run pauses after the batch when any remain.
func (r *Run) processBatch() (*domain.MigrationState, error) {
	var detected []domain.DataConflict

	for len(r.pending) > 0 {
		if r.isCancelled() {
			return r.fail(domain.ErrCancelled)
		}

		it := r.pending[0]
		r.pending = r.pending[1:]

		r.setCurrentItem(it.key)
		started := time.Now()

		remote, err := r.deps.Dest.Get(it.schema, it.key)
		if err != nil {
			return r.fail(err)
		}

		det, err := conflict.Detect(it.schema, it.key, it.payload, remote)
		if err != nil {
			return r.fail(err)
		}

		switch det.Outcome {
		case conflict.OutcomeNew:
			if !r.cfg.DryRun {
				if _, err := r.deps.Dest.Put(it.schema, it.key, it.payload); err != nil {
					return r.fail(&domain.WriteFailedError{Schema: it.schema, Key: it.key, Err: err})
				}
			}
			r.advance(1)
		case conflict.OutcomeIdentical:
			r.advance(1)
		case conflict.OutcomeConflict:
			c := *det.Conflict
			detected = append(detected, c)
			r.mu.Lock()
			r.conflictItems[c.ID] = it
			r.mu.Unlock()
		}

		elapsed := time.Since(started)
		if r.cfg.ItemTimeout > 0 && elapsed > r.cfg.ItemTimeout {
			return r.fail(fmt.Errorf("record %s exceeded per-item timeout (%s)", it.key, r.cfg.ItemTimeout))
		}
		r.addSample(elapsed)
		r.emitProgress()
	}

	if len(detected) > 0 {
		r.mu.Lock()
		r.state.Conflicts = append(r.state.Conflicts, detected...)
		r.state.Status = domain.StatusPaused
		r.touch()
		r.mu.Unlock()

		for i := range detected {
			r.emit(domain.EventConflictDetected, fmt.Sprintf("conflict on %s", detected[i].Key), detected[i])
		}
		r.emit(domain.EventPaused, fmt.Sprintf("paused with %d unresolved conflict(s)", len(detected)), nil)
		return r.State(), nil
	}

	return r.complete()
}

// Resolve applies caller-supplied resolutions to the paused run. Unknown
// conflict ids fail the whole call before any state is mutated. Once every
// known conflict is resolved the run resumes and completes.
func (r *Run) Resolve(resolutions []domain.ConflictResolution) (*domain.MigrationState, error) {
	r.mu.Lock()
	if r.state.Status != domain.StatusPaused {
		status := r.state.Status
		r.mu.Unlock()
		return nil, fmt.Errorf("migration %s is not paused (status %s)", r.state.ID, status)
	}
	if r.resolving {
		r.mu.Unlock()
		return nil, fmt.Errorf("migration %s is already applying resolutions", r.state.ID)
	}
	r.resolving = true
	defer func() {
		r.mu.Lock()
		r.resolving = false
		r.mu.Unlock()
	}()

	// Validate everything up front so a bad id mutates nothing.
	known := make(map[string]*domain.DataConflict, len(r.state.Conflicts))
	for i := range r.state.Conflicts {
		known[r.state.Conflicts[i].ID] = &r.state.Conflicts[i]
	}
	seen := make(map[string]bool, len(resolutions))
	for _, res := range resolutions {
		if err := domain.ValidateResolution(string(res.Resolution)); err != nil {
			r.mu.Unlock()
			return nil, err
		}
		if _, ok := known[res.ConflictID]; !ok || seen[res.ConflictID] {
			id := res.ConflictID
			r.mu.Unlock()
			return nil, &domain.ConflictNotFoundError{ID: id}
		}
		seen[res.ConflictID] = true
	}
	r.state.Progress.Stage = domain.StageResolving
	r.touch()
	r.mu.Unlock()

	for _, res := range resolutions {
		if r.isCancelled() {
			state, err := r.fail(domain.ErrCancelled)
			return state, err
		}
		if err := r.applyResolution(res); err != nil {
			state, ferr := r.fail(err)
			return state, ferr
		}
	}

	r.mu.Lock()
	remaining := len(r.state.Conflicts)
	if remaining > 0 {
		// Partial resolution: stay paused awaiting the rest.
		r.touch()
		r.mu.Unlock()
		return r.State(), nil
	}
	r.state.Status = domain.StatusRunning
	r.state.Progress.Stage = domain.StageWriting
	// Pause time is not processing time; the average restarts on resume.
	r.samples = nil
	r.touch()
	r.mu.Unlock()

	return r.processBatch()
}

func (r *Run) applyResolution(res domain.ConflictResolution) error {
	r.mu.Lock()
	var c *domain.DataConflict
	idx := -1
	for i := range r.state.Conflicts {
		if r.state.Conflicts[i].ID == res.ConflictID {
			c = &r.state.Conflicts[i]
			idx = i
			break
		}
	}
	if c == nil {
		r.mu.Unlock()
		return &domain.ConflictNotFoundError{ID: res.ConflictID}
	}
	cc := *c
	r.mu.Unlock()

	remote, err := r.deps.Dest.Get(cc.Schema, cc.Key)
	if err != nil {
		return err
	}

	op, err := conflict.Resolve(&cc, res.Resolution, remote, r.deps.Dest.Exists)
	if err != nil {
		return err
	}

	if op.Kind == conflict.OpPut && !r.cfg.DryRun {
		if _, err := r.deps.Dest.Put(op.Schema, op.Key, op.Payload); err != nil {
			return &domain.WriteFailedError{Schema: op.Schema, Key: op.Key, Err: err}
		}
	}

	r.mu.Lock()
	// Re-find by id; the slice may have shifted since the snapshot above.
	idx = -1
	for i := range r.state.Conflicts {
		if r.state.Conflicts[i].ID == res.ConflictID {
			idx = i
			break
		}
	}
	if idx >= 0 {
		r.state.Conflicts = append(r.state.Conflicts[:idx], r.state.Conflicts[idx+1:]...)
	}
	delete(r.conflictItems, res.ConflictID)
	r.resolved++
	r.bumpProcessed(1)
	r.touch()
	r.mu.Unlock()

	r.emit(domain.EventResolved, fmt.Sprintf("conflict on %s resolved via %s", cc.Key, res.Resolution), map[string]interface{}{
		"conflict_id": res.ConflictID,
		"resolution":  res.Resolution,
		"key":         cc.Key,
	})
	return nil
}

// Cancel transitions a RUNNING or PAUSED run to FAILED. Already-written
// records stay committed; the backup manifest remains available.
func (r *Run) Cancel() error {
	r.mu.Lock()
	status := r.state.Status
	if status.Terminal() || status == domain.StatusPending {
		r.mu.Unlock()
		return fmt.Errorf("migration %s cannot be cancelled (status %s)", r.state.ID, status)
	}
	r.cancelled = true
	if status == domain.StatusPaused {
		// No processing loop is active; fail in place.
		r.state.Status = domain.StatusFailed
		r.state.Error = domain.ErrCancelled.Error()
		r.touch()
		r.mu.Unlock()
		r.emit(domain.EventError, domain.ErrCancelled.Error(), nil)
		return nil
	}
	r.mu.Unlock()
	return nil
}

func (r *Run) complete() (*domain.MigrationState, error) {
	r.mu.Lock()
	r.state.Status = domain.StatusCompleted
	r.state.Progress.Stage = domain.StageDone
	r.state.Progress.CurrentItem = ""
	r.state.Progress.EstimatedRemainingMS = nil
	duration := time.Since(r.state.StartedAt)
	summary := domain.MigrationSummary{
		Success:           true,
		ItemsMigrated:     r.state.Progress.ProcessedItems,
		ConflictsResolved: r.resolved,
		DurationMS:        duration.Milliseconds(),
	}
	r.touch()
	r.mu.Unlock()

	r.emit(domain.EventCompleted, "migration completed", summary)
	return r.State(), nil
}

// fail marks the run FAILED and reports the fault via an ERROR event. Nothing
// is deleted or restored automatically; partial state stays inspectable.
func (r *Run) fail(err error) (*domain.MigrationState, error) {
	r.mu.Lock()
	r.state.Status = domain.StatusFailed
	r.state.Error = err.Error()
	r.touch()
	r.mu.Unlock()

	r.emit(domain.EventError, err.Error(), nil)
	return r.State(), err
}

func (r *Run) setStage(stage domain.MigrationStage, current string) {
	r.mu.Lock()
	r.state.Progress.Stage = stage
	r.state.Progress.CurrentItem = current
	r.touch()
	r.mu.Unlock()
	r.emitProgress()
}

func (r *Run) setCurrentItem(key string) {
	r.mu.Lock()
	r.state.Progress.CurrentItem = key
	r.touch()
	r.mu.Unlock()
}

func (r *Run) advance(n int) {
	r.mu.Lock()
	r.bumpProcessed(n)
	r.touch()
	r.mu.Unlock()
}

// bumpProcessed advances the monotone counter; callers hold the lock.
func (r *Run) bumpProcessed(n int) {
	p := r.state.Progress.ProcessedItems + n
	if p > r.state.Progress.TotalItems {
		p = r.state.Progress.TotalItems
	}
	if p > r.state.Progress.ProcessedItems {
		r.state.Progress.ProcessedItems = p
	}
}

func (r *Run) addSample(d time.Duration) {
	r.mu.Lock()
	r.samples = append(r.samples, d)
	if len(r.samples) > etaWindow {
		r.samples = r.samples[len(r.samples)-etaWindow:]
	}
	remaining := r.state.Progress.TotalItems - r.state.Progress.ProcessedItems - len(r.conflictItems)
	if len(r.samples) > 0 && remaining >= 0 {
		var total time.Duration
		for _, s := range r.samples {
			total += s
		}
		avg := total / time.Duration(len(r.samples))
		ms := (avg * time.Duration(remaining)).Milliseconds()
		r.state.Progress.EstimatedRemainingMS = &ms
	}
	r.mu.Unlock()
}

func (r *Run) isCancelled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cancelled
}

func (r *Run) touch() {
	r.state.UpdatedAt = time.Now()
}

func (r *Run) emit(t domain.EventType, message string, data interface{}) {
	if r.deps.Reporter == nil {
		return
	}
	r.deps.Reporter.Emit(domain.MigrationEvent{
		Type:      t,
		Timestamp: time.Now(),
		Message:   message,
		Data:      data,
	})
}

func (r *Run) emitProgress() {
	r.mu.Lock()
	progressCopy := r.state.Progress
	r.mu.Unlock()
	r.emit(domain.EventProgress, "", progressCopy)
}
