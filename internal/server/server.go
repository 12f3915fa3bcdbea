// Package server exposes the RSA key engine over HTTP and WebSocket.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/user/rsalab/internal/benchmark"
	"github.com/user/rsalab/internal/config"
	"github.com/user/rsalab/internal/engine"
	"github.com/user/rsalab/internal/keygen"
	"github.com/user/rsalab/internal/logger"
	"github.com/user/rsalab/pkg/sysinfo"
)

const maxBodyBytes = 1 << 20

type Server struct {
	router     *mux.Router
	engine     *engine.Engine
	jobStore   *JobStore
	workerPool *WorkerPool
	sysInfo    *sysinfo.SystemInfo
	upgrader   websocket.Upgrader
	port       int
	log        *zap.Logger
}

func NewServer(cfg *config.Config, eng *engine.Engine, log *zap.Logger) (*Server, error) {
	if log == nil {
		log = zap.NewNop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	sysInfo, err := sysinfo.Collect(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to collect system info: %w", err)
	}

	jobStore := NewJobStore()
	s := &Server{
		router:     mux.NewRouter(),
		engine:     eng,
		jobStore:   jobStore,
		workerPool: NewWorkerPool(cfg.Server.Workers, jobStore, eng, log.Named("workers")),
		sysInfo:    sysInfo,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		port: cfg.Server.Port,
		log:  log,
	}

	s.setupRoutes()
	return s, nil
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/system-info", s.handleSystemInfo).Methods("GET")
	api.HandleFunc("/rsa/presets", s.handlePresets).Methods("GET")
	api.HandleFunc("/rsa/generate", s.handleGenerate).Methods("POST")
	api.HandleFunc("/rsa/generate/ws", s.handleGenerateStream).Methods("GET")
	api.HandleFunc("/rsa/analyze", s.handleAnalyze).Methods("POST")
	api.HandleFunc("/commands", s.handleCommand).Methods("POST")
	api.HandleFunc("/benchmarks", s.handleCreateBenchmark).Methods("POST")
	api.HandleFunc("/benchmarks", s.handleListBenchmarks).Methods("GET")
	api.HandleFunc("/benchmarks/{id}", s.handleGetBenchmark).Methods("GET")
	api.HandleFunc("/benchmarks/{id}/progress", s.handleBenchmarkProgress).Methods("GET")
	api.HandleFunc("/benchmarks/{id}/terminate", s.handleTerminateBenchmark).Methods("POST")
}

// Handler is the router wrapped in request logging.
func (s *Server) Handler() http.Handler {
	return logger.WithLogging(s.log.Named("http"), s.router)
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.workerPool.Start()
	defer s.workerPool.Stop()

	srv := &http.Server{
		Addr:              ":" + strconv.Itoa(s.port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("rsalab server starting", zap.String("addr", "http://localhost"+srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeBadRequest(w, fmt.Sprintf("invalid request body: %v", err))
		return false
	}
	return true
}

func (s *Server) handleSystemInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.sysInfo)
}

func (s *Server) handlePresets(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"presets":                    keygen.Presets(),
		"min_bits":                   s.engine.MinBits(),
		"max_bits":                   s.engine.MaxBits(),
		"max_concurrent_generations": s.engine.MaxConcurrent(),
	})
}

type generateRequest struct {
	Bits int `json:"bits"`
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if !decodeBody(w, r, &req) {
		return
	}

	pair, err := s.engine.GenerateRSAKey(r.Context(), req.Bits)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pair)
}

type analyzeRequest struct {
	Key string `json:"key"`
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if !decodeBody(w, r, &req) {
		return
	}

	analysis, err := s.engine.AnalyzeRSAKey(r.Context(), req.Key)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, analysis)
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	var req engine.Request
	if !decodeBody(w, r, &req) {
		return
	}

	resp := s.engine.Dispatch(r.Context(), req)
	status := http.StatusOK
	if !resp.OK {
		status = statusForKind(resp.ErrorKind)
	}
	writeJSON(w, status, resp)
}

func (s *Server) handleCreateBenchmark(w http.ResponseWriter, r *http.Request) {
	var cfg benchmark.Config
	if !decodeBody(w, r, &cfg) {
		return
	}

	if cfg.Parallel == 0 {
		cfg.Parallel = 1
	}
	if cfg.Iterations == 0 {
		cfg.Iterations = 1
	}
	// the server has no terminal to draw on
	cfg.ShowProgress = false
	if err := cfg.Validate(s.engine.MinBits(), s.engine.MaxBits()); err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	now := time.Now()
	job := &BenchmarkJob{
		ID:        uuid.New().String(),
		Config:    cfg,
		Status:    StatusQueued,
		StartedAt: now,
		UpdatedAt: now,
		Progress:  make(chan benchmark.ProgressUpdate, 100),
	}
	s.jobStore.Add(job)

	if err := s.workerPool.Submit(job); err != nil {
		s.jobStore.Remove(job.ID)
		writeJSON(w, http.StatusServiceUnavailable, errorBody{
			Error:     "server is busy, please try again later",
			ErrorKind: "Busy",
		})
		return
	}

	s.log.Info("benchmark job queued",
		zap.String("job_id", job.ID),
		zap.Ints("key_sizes", cfg.KeySizes),
		zap.Int("iterations", cfg.Iterations),
		zap.Int("parallel", cfg.Parallel),
	)

	writeJSON(w, http.StatusAccepted, map[string]string{
		"job_id": job.ID,
		"status": StatusQueued,
	})
}

func (s *Server) handleListBenchmarks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.jobStore.List())
}

func (s *Server) handleGetBenchmark(w http.ResponseWriter, r *http.Request) {
	job, exists := s.jobStore.Get(mux.Vars(r)["id"])
	if !exists {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "benchmark not found", ErrorKind: "NotFound"})
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleTerminateBenchmark(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	found, changed := s.jobStore.Terminate(id)
	if !found {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "benchmark not found", ErrorKind: "NotFound"})
		return
	}
	if !changed {
		writeJSON(w, http.StatusConflict, errorBody{Error: "benchmark already finished", ErrorKind: "Conflict"})
		return
	}

	s.workerPool.TerminateJob(id)

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  StatusTerminated,
		"message": "Benchmark termination initiated",
	})
}
