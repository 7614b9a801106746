package api

import (
	"context"
	"net/http"
	"time"

	"paperhands/internal/worker/config"
	"paperhands/internal/worker/queue"
	"paperhands/pkg/utils"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"
)

// Server 面向前端的分析API：提交、轮询、队列水位
// 入队调用只做准入裁决后立即返回，长管线在Runner里跑
type Server struct {
	cfg       config.APIConfig
	tl        *zap.Logger
	admission *queue.Admission
	server    *http.Server
}

type analyzeRequest struct {
	Address      string `json:"address"`
	LookbackDays int    `json:"lookback_days"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func NewServer(cfg config.APIConfig, tl *zap.Logger, admission *queue.Admission) *Server {
	s := &Server{
		cfg:       cfg,
		tl:        tl,
		admission: admission,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/analyses", s.handleEnqueue)
	mux.HandleFunc("GET /api/v1/analyses/{id}", s.handleStatus)
	mux.HandleFunc("GET /api/v1/queue/metrics", s.handleQueueMetrics)

	s.server = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s
}

func (s *Server) Run() {
	go func() {
		s.tl.Info("API server listening", zap.String("addr", s.cfg.ListenAddr))
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.tl.Error("API server stopped", zap.Error(err))
		}
	}()
}

func (s *Server) Stop(ctx context.Context) error {
	s.server.SetKeepAlivesEnabled(false)
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.server.Shutdown(shutdownCtx)
}

func (s *Server) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if err := sonic.ConfigDefault.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	// 地址非法直接4xx，不创建作业
	if !utils.IsValidSolanaAddress(req.Address) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid wallet address"})
		return
	}

	outcome, err := s.admission.Enqueue(r.Context(), req.Address, req.LookbackDays)
	if err != nil {
		s.tl.Error("enqueue failed", zap.String("wallet", req.Address), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal scheduling failure"})
		return
	}

	status := http.StatusOK
	if outcome.Status == queue.OUTCOME_RATE_LIMITED {
		status = http.StatusTooManyRequests
	}
	writeJSON(w, status, outcome)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")

	outcome, err := s.admission.Status(r.Context(), jobID)
	if err != nil {
		s.tl.Error("status query failed", zap.String("job_id", jobID), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
		return
	}
	if outcome == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "job not found"})
		return
	}

	writeJSON(w, http.StatusOK, outcome)
}

func (s *Server) handleQueueMetrics(w http.ResponseWriter, r *http.Request) {
	metrics, err := s.admission.Metrics(r.Context())
	if err != nil {
		s.tl.Error("queue metrics failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
		return
	}
	writeJSON(w, http.StatusOK, metrics)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	data, err := sonic.Marshal(payload)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
}
