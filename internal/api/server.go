// Package api exposes the stageline pipeline over REST.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/stageline-io/stageline/internal/expander"
	"github.com/stageline-io/stageline/internal/logbuf"
	"github.com/stageline-io/stageline/internal/session"
	"github.com/stageline-io/stageline/internal/tracker"
	"github.com/stageline-io/stageline/pkg/protocol"
)

// maxGenerationBody caps request bodies on the generation endpoints, which
// carry base64 screenshots.
const maxGenerationBody = 50 << 20

// PlanGenerator produces a raw stage plan for a project description.
type PlanGenerator interface {
	Plan(ctx context.Context, description string, images []protocol.ImageAttachment) (string, error)
}

// TicketGenerator produces a raw ticket set for one stage.
type TicketGenerator interface {
	Expand(ctx context.Context, ec expander.ExpansionContext) (string, error)
}

// IssueProjector submits tickets to the tracker as a sequential batch.
type IssueProjector interface {
	Project(ctx context.Context, tickets []protocol.Ticket, teamID string, opts tracker.Options) []tracker.IssueResult
}

// TrackerDirectory lists tracker teams and projects.
type TrackerDirectory interface {
	Teams(ctx context.Context) ([]tracker.Team, error)
	Projects(ctx context.Context, teamID string) ([]tracker.Project, error)
}

// SessionStore persists session snapshots.
type SessionStore interface {
	Save(snap *session.Snapshot) error
	Get(id string) (*session.Snapshot, error)
	List() ([]*session.Snapshot, error)
	Delete(id string) error
	PutTicketSet(sessionID, stageID string, set *protocol.TicketSet) error
}

// ProjectionNotifier announces completed projection batches.
type ProjectionNotifier interface {
	ProjectionDone(ctx context.Context, teamID string, sum tracker.Summary)
}

// LogQuerier abstracts log entry querying to avoid coupling to logbuf
// directly.
type LogQuerier interface {
	Query(since time.Time, minLevel slog.Level, limit int) []logbuf.Entry
}

// Config holds API server configuration.
type Config struct {
	Host string
	Port int
	Key  string // API key for Bearer auth; empty disables auth

	DefaultTeamID    string // fallback team for projection requests
	DefaultProjectID string // fallback project for projection requests
}

// Server is the stageline REST API server. The tracker directory,
// projector, session store, notifier, and log querier may each be nil;
// their endpoints degrade gracefully.
type Server struct {
	planner   PlanGenerator
	expander  TicketGenerator
	projector IssueProjector
	directory TrackerDirectory
	sessions  SessionStore
	notifier  ProjectionNotifier
	logs      LogQuerier

	cfg    Config
	logger *slog.Logger
	srv    *http.Server
}

// NewServer creates the API server.
func NewServer(planner PlanGenerator, exp TicketGenerator, projector IssueProjector,
	directory TrackerDirectory, sessions SessionStore, notifier ProjectionNotifier,
	cfg Config, logger *slog.Logger, logs LogQuerier) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		planner:   planner,
		expander:  exp,
		projector: projector,
		directory: directory,
		sessions:  sessions,
		notifier:  notifier,
		logs:      logs,
		cfg:       cfg,
		logger:    logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("POST /api/stages", s.requireAuth(s.handleCreateStages))
	mux.HandleFunc("POST /api/tickets", s.requireAuth(s.handleCreateTickets))
	mux.HandleFunc("POST /api/tracker/issues", s.requireAuth(s.handleProjectIssues))
	mux.HandleFunc("GET /api/tracker/teams", s.requireAuth(s.handleListTeams))
	mux.HandleFunc("GET /api/tracker/projects", s.requireAuth(s.handleListProjects))
	mux.HandleFunc("POST /api/sessions", s.requireAuth(s.handleCreateSession))
	mux.HandleFunc("GET /api/sessions", s.requireAuth(s.handleListSessions))
	mux.HandleFunc("GET /api/sessions/{id}", s.requireAuth(s.handleGetSession))
	mux.HandleFunc("PUT /api/sessions/{id}", s.requireAuth(s.handleUpdateSession))
	mux.HandleFunc("DELETE /api/sessions/{id}", s.requireAuth(s.handleDeleteSession))
	mux.HandleFunc("POST /api/sessions/{id}/tickets/{stage}", s.requireAuth(s.handleExpandSessionStage))
	mux.HandleFunc("GET /api/logs", s.requireAuth(s.handleGetLogs))

	s.srv = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:           s.corsMiddleware(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Start begins listening. Blocks until the context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.srv.Shutdown(shutCtx)
	}()

	s.logger.Info("api server starting", "addr", s.srv.Addr)
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api server: %w", err)
	}
	return nil
}

// Handler returns the underlying http.Handler for testing.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// --- Middleware ---

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.Key == "" {
			next(w, r)
			return
		}
		auth := r.Header.Get("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") || strings.TrimPrefix(auth, "Bearer ") != s.cfg.Key {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		next(w, r)
	}
}
