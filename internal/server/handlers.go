package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/aristath/sentinel/internal/backtest"
)

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// handleHealth reports a liveness check. It never depends on any other
// component, so it always answers even if everything else failed to wire.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// handleMetrics returns the current observability snapshot.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Metrics == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "metrics collector not configured"})
		return
	}
	writeJSON(w, http.StatusOK, s.cfg.Metrics.Snapshot())
}

// backtestRunRequest is the JSON body for POST /api/backtest/run.
type backtestRunRequest struct {
	RunID           string   `json:"run_id"`
	UserID          string   `json:"user_id"`
	Symbols         []string `json:"symbols"`
	StartDate       string   `json:"start_date"`
	EndDate         string   `json:"end_date"`
	InitialCapital  float64  `json:"initial_capital"`
	BuyThreshold    int      `json:"buy_threshold"`
	SellThreshold   int      `json:"sell_threshold"`
	StopLossPct     float64  `json:"stop_loss_pct"`
	MaxPositionSize float64  `json:"max_position_size"`
}

// handleBacktestRun runs a backtest synchronously and returns once it
// completes or the request context is cancelled. A production dashboard
// would queue this; this thin adapter keeps it simple since the backtest
// engine itself is the thing under test here, not request concurrency.
func (s *Server) handleBacktestRun(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Backtest == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "backtest engine not configured"})
		return
	}

	var req backtestRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	startDate, err := time.Parse("2006-01-02", req.StartDate)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid start_date, expected YYYY-MM-DD"})
		return
	}
	endDate, err := time.Parse("2006-01-02", req.EndDate)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid end_date, expected YYYY-MM-DD"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Minute)
	defer cancel()

	backtestReq := backtest.Request{
		RunID:           req.RunID,
		UserID:          req.UserID,
		Symbols:         req.Symbols,
		StartDate:       startDate,
		EndDate:         endDate,
		InitialCapital:  req.InitialCapital,
		BuyThreshold:    req.BuyThreshold,
		SellThreshold:   req.SellThreshold,
		StopLossPct:     req.StopLossPct,
		MaxPositionSize: req.MaxPositionSize,
	}

	if err := s.cfg.Backtest.Run(ctx, backtestReq); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"run_id": req.RunID, "status": "completed"})
}

// handleBackupRun triggers an immediate snapshot-and-upload cycle rather
// than waiting for the scheduled job, useful for pre-deploy safety backups.
func (s *Server) handleBackupRun(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Backups == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "backup service not configured"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Minute)
	defer cancel()

	if err := s.cfg.Backups.CreateAndUpload(ctx); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "backup completed"})
}
