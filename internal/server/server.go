// Package server exposes the scan intake API: POST /process queues a scan,
// GET /api/report/{id} returns its report.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/egoscan/egoscan/internal/httputil"
)

// Server serves the intake API over a TaskQueue.
type Server struct {
	listen string
	queue  *TaskQueue
	log    logrus.FieldLogger
}

func New(listen string, queue *TaskQueue, log logrus.FieldLogger) *Server {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Server{
		listen: listen,
		queue:  queue,
		log:    log.WithField("component", "server"),
	}
}

// Router builds the chi router. Split out so tests can drive the handlers
// without a listening socket.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)

	r.Get("/health", s.handleHealth)
	r.Post("/process", s.handleProcess)
	r.Get("/api/report/{reportID}", s.handleReport)
	return r
}

// Run starts the HTTP server and the queue worker, blocking until the
// context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	if err := checkPortAvailable(s.listen); err != nil {
		return fmt.Errorf("listen address %s is already in use: %w", s.listen, err)
	}

	go s.queue.Run(ctx)

	httpServer := &http.Server{
		Addr:        s.listen,
		Handler:     s.Router(),
		IdleTimeout: 120 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.log.WithField("listen", s.listen).Info("server ready")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errc <- err
		}
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	s.log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.BadRequest(w, "invalid request body")
		return
	}
	if req.CompanyName == "" {
		httputil.BadRequest(w, "company_name is required")
		return
	}

	id, err := s.queue.Enqueue(req)
	if err != nil {
		s.log.WithError(err).Error("enqueue failed")
		httputil.InternalError(w, "failed to start processing")
		return
	}

	httputil.WriteJSON(w, http.StatusAccepted, map[string]string{
		"message":   "Search started",
		"report_id": id.String(),
	})
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "reportID"))
	if err != nil {
		httputil.BadRequest(w, "invalid report id")
		return
	}

	rep, ok := s.queue.Report(id)
	if !ok {
		httputil.NotFound(w, "report not found")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, rep)
}

func checkPortAvailable(listen string) error {
	ln, err := net.Listen("tcp", listen)
	if err != nil {
		return err
	}
	ln.Close()
	return nil
}
