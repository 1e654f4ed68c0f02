package api

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"io/fs"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/GBSLIT/FairForm/internal/config"
	"github.com/GBSLIT/FairForm/internal/model"
	"github.com/GBSLIT/FairForm/internal/pipeline"
	"github.com/GBSLIT/FairForm/internal/storage"
)

//go:embed static
var staticFiles embed.FS

// Submitter runs one submission end to end.
type Submitter interface {
	Submit(ctx context.Context, sub *model.Submission) (*pipeline.Result, error)
}

// AuditReader looks up recorded submission outcomes.
type AuditReader interface {
	Get(ctx context.Context, id string) (*model.AuditEntry, error)
}

// Server exposes the registration form and its submission endpoint.
type Server struct {
	cfg    *config.Config
	submit Submitter
	audit  AuditReader
	server *http.Server
	once   sync.Once
}

// New constructs a Server. audit may be nil, which disables the lookup
// endpoint.
func New(cfg *config.Config, submit Submitter, audit AuditReader) *Server {
	return &Server{
		cfg:    cfg,
		submit: submit,
		audit:  audit,
	}
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestID)
	r.Use(loggingMiddleware)
	r.Use(corsMiddleware)

	r.Get("/health", s.handleHealth)
	r.Post("/api/submit", s.handleSubmit)
	r.Get("/api/submissions/{id}", s.handleSubmission)

	static, _ := fs.Sub(staticFiles, "static")
	r.Handle("/*", http.FileServer(http.FS(static)))
	return r
}

// Run starts the HTTP server and blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	s.once.Do(func() {
		s.server = &http.Server{
			Addr:              s.cfg.Address,
			Handler:           s.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
	})
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()
	log.Printf("api listening on %s", s.cfg.Address)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

type submitResponse struct {
	OK       bool          `json:"ok"`
	ID       string        `json:"id,omitempty"`
	Folder   string        `json:"folder,omitempty"`
	Counts   *model.Counts `json:"counts,omitempty"`
	Warnings []string      `json:"warnings,omitempty"`
	Error    any           `json:"error,omitempty"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	sub, err := readSubmission(w, r, s.cfg.MaxFileSize)
	if err != nil {
		log.Printf("[%s] rejected submission: %v", RequestID(r.Context()), err)
		respondJSON(w, http.StatusBadRequest, submitResponse{Error: err.Error()})
		return
	}
	res, err := s.submit.Submit(r.Context(), sub)
	if err != nil {
		log.Printf("[%s] submission failed: %v", RequestID(r.Context()), err)
		respondJSON(w, http.StatusInternalServerError, submitResponse{Error: errorPayload(err)})
		return
	}
	log.Printf("[%s] submission %s stored in %s", RequestID(r.Context()), res.ID, res.FolderName)
	counts := res.Counts
	respondJSON(w, http.StatusOK, submitResponse{
		OK:       true,
		ID:       res.ID,
		Folder:   res.FolderLink,
		Counts:   &counts,
		Warnings: res.Warnings,
	})
}

// errorPayload forwards the remote structured error when there is one.
func errorPayload(err error) any {
	var perr *pipeline.Error
	if errors.As(err, &perr) && perr.Remote != nil && len(perr.Remote.Body) > 0 {
		return perr.Remote.Body
	}
	return err.Error()
}

func (s *Server) handleSubmission(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		http.Error(w, "audit log disabled", http.StatusNotFound)
		return
	}
	entry, err := s.audit.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			http.Error(w, "submission not found", http.StatusNotFound)
			return
		}
		log.Printf("[%s] audit lookup: %v", RequestID(r.Context()), err)
		http.Error(w, "lookup failed", http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, entry)
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("encode response: %v", err)
	}
}
