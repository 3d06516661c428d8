package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"github.com/histoforge/boundary-measure/core"
	"github.com/histoforge/boundary-measure/internal/logging"
	"github.com/histoforge/boundary-measure/kb"
	"github.com/histoforge/boundary-measure/model"
)

// Server is the HTTP surface of the measurement engine: submit a study,
// fetch the latest records, health and metrics. It deliberately exposes only
// the core's records; rendering overlays and persisting into a host object
// model stay with the caller.
type Server struct {
	server *http.Server
	router *mux.Router

	svc *core.MeasurementService
	log logging.Logger

	// runMu serialises measure requests: each one replaces the study in the
	// shared store before running.
	runMu sync.Mutex
}

// NewServer wires the router and handlers. metricsHandler may be nil, in
// which case /metrics is not registered.
func NewServer(addr string, svc *core.MeasurementService, metricsHandler http.Handler, log logging.Logger) *Server {
	if log == nil {
		log = logging.Noop()
	}

	router := mux.NewRouter()
	s := &Server{
		server: &http.Server{
			Addr:         addr,
			WriteTimeout: 15 * time.Second,
			ReadTimeout:  15 * time.Second,
			IdleTimeout:  60 * time.Second,
			Handler:      router,
		},
		router: router,
		svc:    svc,
		log:    log,
	}

	router.HandleFunc("/v1/measure", s.handleMeasure).Methods(http.MethodPost)
	router.HandleFunc("/v1/measurements", s.handleMeasurements).Methods(http.MethodGet)
	router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	if metricsHandler != nil {
		router.Handle("/metrics", metricsHandler).Methods(http.MethodGet)
	}

	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.router }

// Start runs the HTTP server in a separate goroutine.
func (s *Server) Start() {
	go func() {
		s.log.Info(context.Background(), "http server starting",
			logging.String("addr", s.server.Addr))
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Error(context.Background(), "http server error",
				logging.String("error", err.Error()))
		}
	}()
}

// Stop shuts the server down gracefully with a bounded timeout.
func (s *Server) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		s.log.Warn(ctx, "http server shutdown error",
			logging.String("error", err.Error()))
	}
	s.log.Info(ctx, "http server stopped")
}

type measureResponse struct {
	RunID   string              `json:"run_id"`
	Records []model.Measurement `json:"records"`
}

type measurementsResponse struct {
	Count   int                 `json:"count"`
	Records []model.Measurement `json:"records"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// handleMeasure replaces the current study with the posted document and runs
// one measurement pass, returning the emitted records.
func (s *Server) handleMeasure(w http.ResponseWriter, r *http.Request) {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	// The document is loaded into a staging store first; the live study is
	// only replaced once the whole document has been accepted, so a rejected
	// POST leaves the previous study and its measurements intact.
	staging := kb.NewStudyStore()
	summary, err := core.LoadStudy(staging, r.Body)
	if err != nil {
		s.log.Warn(r.Context(), "study rejected", logging.String("error", err.Error()))
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	s.svc.Store.Replace(staging)

	runID, records, err := s.svc.Run(r.Context())
	if err != nil {
		s.log.Error(r.Context(), "measurement run failed", logging.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}

	s.log.Info(r.Context(), "study measured",
		logging.String("run_id", runID),
		logging.Int("detections", len(summary.DetectionIDs)),
		logging.Int("groups", len(summary.GroupLabels)),
		logging.Int("records", len(records)),
	)
	writeJSON(w, http.StatusOK, measureResponse{RunID: runID, Records: records})
}

// handleMeasurements returns the latest stored measurement set.
func (s *Server) handleMeasurements(w http.ResponseWriter, r *http.Request) {
	records := s.svc.Store.Measurements()
	writeJSON(w, http.StatusOK, measurementsResponse{Count: len(records), Records: records})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
