// Package server exposes the migration control surface over HTTP, in the
// shape the web UI panel consumes.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"taskbridge/internal/backup"
	"taskbridge/internal/config"
	"taskbridge/internal/db"
	"taskbridge/internal/domain"
	"taskbridge/internal/events"
	"taskbridge/internal/localstore"
	"taskbridge/internal/migrate"
	"taskbridge/internal/scanner"
	"taskbridge/internal/store"
	"taskbridge/internal/webhooks"
)

// Options configures the taskbridged daemon.
type Options struct {
	Addr   string
	Unix   string
	Token  string
	DBPath string
}

// Serve starts the taskbridged daemon.
func Serve(opts Options) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if opts.DBPath != "" {
		cfg.DBPath = opts.DBPath
	}

	database, err := db.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	if err := database.Migrate(); err != nil {
		database.Close()
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	server, err := New(cfg, database, opts.Token)
	if err != nil {
		database.Close()
		return err
	}

	mux := http.NewServeMux()
	server.RegisterRoutes(mux)

	httpServer := &http.Server{
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	if opts.Unix != "" {
		_ = os.Remove(opts.Unix)
		listener, err := net.Listen("unix", opts.Unix)
		if err != nil {
			database.Close()
			return fmt.Errorf("failed to listen on unix socket: %w", err)
		}
		defer listener.Close()
		return httpServer.Serve(listener)
	}

	addr := opts.Addr
	if addr == "" {
		addr = "127.0.0.1:7272"
	}
	httpServer.Addr = addr

	return httpServer.ListenAndServe()
}

// Server holds the daemon's collaborators.
type Server struct {
	cfg      *config.Config
	db       *db.DB
	dest     *store.Store
	registry *scanner.Registry
	manager  *migrate.Manager
	events   *events.Writer
	token    string
}

// New builds a Server over an open, migrated database.
func New(cfg *config.Config, database *db.DB, token string) (*Server, error) {
	registry := scanner.NewRegistry(cfg.Schemas)
	if err := registry.Validate(); err != nil {
		return nil, err
	}

	s := &Server{
		cfg:      cfg,
		db:       database,
		dest:     store.New(database),
		registry: registry,
		events:   events.NewWriter(database.DB),
		token:    token,
	}

	s.manager = migrate.NewManager(migrate.ManagerDeps{
		OpenLocal: func(userID string) localstore.Store {
			return localstore.NewDirStore(cfg.UserLocalDir(userID))
		},
		Backups: func(userID string) *backup.Manager {
			return backup.NewManager(cfg.UserBackupDir(userID))
		},
		Registry: registry,
		Dest:     s.dest,
		OnEvent:  s.onEvent,
	})

	return s, nil
}

// Manager returns the run manager (for tests and embedding callers).
func (s *Server) Manager() *migrate.Manager {
	return s.manager
}

// onEvent persists every run event and dispatches webhooks on terminal ones.
// The engine itself stays free of both concerns.
func (s *Server) onEvent(userID string, ev domain.MigrationEvent) {
	state := s.manager.State(userID)
	migrationID := ""
	if state != nil {
		migrationID = state.ID
	}

	if err := s.events.Log(userID, migrationID, ev); err != nil {
		fmt.Fprintf(os.Stderr, "event log: %v\n", err)
	}

	if len(s.cfg.WebhookURLs) == 0 || state == nil {
		return
	}

	switch ev.Type {
	case domain.EventCompleted:
		payload := webhooks.Payload{
			UserID:      userID,
			MigrationID: migrationID,
			Status:      string(domain.StatusCompleted),
			Timestamp:   ev.Timestamp.UTC().Format(time.RFC3339),
		}
		if summary, ok := ev.Data.(domain.MigrationSummary); ok {
			payload.ItemsMigrated = summary.ItemsMigrated
			payload.ConflictsResolved = summary.ConflictsResolved
			payload.DurationMS = summary.DurationMS
		}
		go webhooks.Dispatch(s.cfg.WebhookURLs, payload)
	case domain.EventError:
		go webhooks.Dispatch(s.cfg.WebhookURLs, webhooks.Payload{
			UserID:      userID,
			MigrationID: migrationID,
			Status:      string(domain.StatusFailed),
			Error:       ev.Message,
			Timestamp:   ev.Timestamp.UTC().Format(time.RFC3339),
		})
	}
}

// RegisterRoutes attaches all handlers to the mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/health", s.withAuth(s.handleHealth))
	mux.HandleFunc("/v1/migration", s.withAuth(s.handleMigration))
	mux.HandleFunc("/v1/migration/events", s.withAuth(s.handleEvents))
	mux.HandleFunc("/v1/restore", s.withAuth(s.handleRestore))
}

func (s *Server) withAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.token != "" {
			token := r.Header.Get("Authorization")
			if strings.HasPrefix(token, "Bearer ") {
				token = strings.TrimPrefix(token, "Bearer ")
			}
			if token != s.token {
				s.writeError(w, http.StatusUnauthorized, fmt.Errorf("unauthorized"))
				return
			}
		}

		next(w, r)
	}
}

func (s *Server) decodeJSON(r *http.Request, dst interface{}) error {
	decoder := json.NewDecoder(r.Body)
	return decoder.Decode(dst)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, map[string]interface{}{
		"message": err.Error(),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":   true,
		"time": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleMigration(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleMigrationGet(w, r)
	case http.MethodPost:
		s.handleMigrationStart(w, r)
	case http.MethodPut:
		s.handleMigrationResolve(w, r)
	case http.MethodDelete:
		s.handleMigrationCancel(w, r)
	default:
		s.writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
	}
}

type statistics struct {
	LocalStorageStats *domain.Inventory `json:"local_storage_stats"`
	DatabaseStats     databaseStats     `json:"database_stats"`
	CanMigrate        bool              `json:"can_migrate"`
}

type databaseStats struct {
	TotalRecords int            `json:"total_records"`
	BySchema     map[string]int `json:"by_schema,omitempty"`
}

func (s *Server) handleMigrationGet(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("userId is required"))
		return
	}

	state := s.manager.State(userID)

	local := localstore.NewDirStore(s.cfg.UserLocalDir(userID))
	inv, err := scanner.Scan(local, s.registry)
	if err != nil {
		var unavailable *domain.StorageUnavailableError
		if !errors.As(err, &unavailable) {
			s.writeError(w, http.StatusInternalServerError, err)
			return
		}
		// A never-used local store is not an error for the status view.
		inv = &domain.Inventory{}
	}

	total, err := s.dest.Count()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	bySchema, err := s.dest.Stats()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}

	manifests, err := backup.NewManager(s.cfg.UserBackupDir(userID)).List()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	if manifests == nil {
		manifests = []domain.BackupManifest{}
	}

	canMigrate := inv.KnownKeys > 0 && (state == nil || state.Status.Terminal())

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"current_migration": state,
		"statistics": statistics{
			LocalStorageStats: inv,
			DatabaseStats:     databaseStats{TotalRecords: total, BySchema: bySchema},
			CanMigrate:        canMigrate,
		},
		"backups": manifests,
	})
}

type startRequest struct {
	UserID string `json:"user_id"`
	Config struct {
		DryRun bool `json:"dry_run,omitempty"`
	} `json:"config"`
}

func (s *Server) handleMigrationStart(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := s.decodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.UserID == "" {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("user_id is required"))
		return
	}

	state, err := s.manager.Start(migrate.Config{
		UserID:      req.UserID,
		DryRun:      req.Config.DryRun,
		ItemTimeout: time.Duration(s.cfg.ItemTimeoutMS) * time.Millisecond,
	})
	if err != nil {
		var inProgress *domain.AlreadyInProgressError
		if errors.As(err, &inProgress) {
			s.writeError(w, http.StatusConflict, err)
			return
		}
		// Engine fault: the run is FAILED but remains queryable.
		s.writeJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"success":   false,
			"message":   err.Error(),
			"migration": state,
		})
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":   true,
		"migration": state,
	})
}

type resolveRequest struct {
	UserID      string                      `json:"user_id"`
	Resolutions []domain.ConflictResolution `json:"resolutions"`
}

func (s *Server) handleMigrationResolve(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if err := s.decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.UserID == "" {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("user_id is required"))
		return
	}
	if len(req.Resolutions) == 0 {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("resolutions are required"))
		return
	}

	state, err := s.manager.Resolve(req.UserID, req.Resolutions)
	if err != nil {
		var notFound *domain.ConflictNotFoundError
		if errors.As(err, &notFound) {
			s.writeError(w, http.StatusNotFound, err)
			return
		}
		if state == nil {
			s.writeError(w, http.StatusBadRequest, err)
			return
		}
		s.writeJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"success":   false,
			"message":   err.Error(),
			"migration": state,
		})
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":   true,
		"migration": state,
	})
}

func (s *Server) handleMigrationCancel(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("userId is required"))
		return
	}

	// clear=true removes a terminal run instead of cancelling an active one.
	if r.URL.Query().Get("clear") == "true" {
		if err := s.manager.ClearCompleted(userID); err != nil {
			s.writeError(w, http.StatusBadRequest, err)
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
		return
	}

	if err := s.manager.Cancel(userID); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":   true,
		"migration": s.manager.State(userID),
	})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}

	migrationID := r.URL.Query().Get("migrationId")
	if migrationID == "" {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("migrationId is required"))
		return
	}

	entries, err := s.events.Recent(migrationID, 100)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	if entries == nil {
		entries = []events.LogEntry{}
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{"events": entries})
}

type restoreRequest struct {
	UserID     string `json:"user_id"`
	ManifestID string `json:"manifest_id"`
}

func (s *Server) handleRestore(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}

	var req restoreRequest
	if err := s.decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.UserID == "" || req.ManifestID == "" {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("user_id and manifest_id are required"))
		return
	}

	backups := backup.NewManager(s.cfg.UserBackupDir(req.UserID))
	local := localstore.NewDirStore(s.cfg.UserLocalDir(req.UserID))

	result, err := backups.Restore(req.ManifestID, local)
	if err != nil {
		var notFound *domain.ManifestNotFoundError
		if errors.As(err, &notFound) {
			s.writeError(w, http.StatusNotFound, err)
			return
		}
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}

	s.writeJSON(w, http.StatusOK, result)
}
