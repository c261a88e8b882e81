// ABOUTME: Minimal in-memory reputation + token service for local development and E2E testing.
// ABOUTME: Usage: reputation-sim [-addr localhost:8090] [-balance 1000]

package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"time"
)

// taskReward and taskPenalty mirror how a real reputation service would score
// outcomes. Reputation never goes below zero.
const (
	taskReward  = 10
	taskPenalty = 5
)

type taskResult struct {
	TaskID    string `json:"task_id"`
	Success   bool   `json:"success"`
	Timestamp uint64 `json:"timestamp"`
	Details   string `json:"details"`
}

type reputationPoint struct {
	Timestamp  uint64 `json:"timestamp"`
	Reputation uint64 `json:"reputation"`
}

type record struct {
	Reputation        uint64            `json:"reputation"`
	TaskHistory       []taskResult      `json:"task_history"`
	ReputationHistory []reputationPoint `json:"reputation_history"`
}

type sim struct {
	mu      sync.Mutex
	records map[string]*record
	balance uint64
}

func main() {
	addr := flag.String("addr", "localhost:8090", "HTTP listen address")
	balance := flag.Uint64("balance", 1000, "Balance reported for every identity")
	flag.Parse()

	if err := run(*addr, *balance); err != nil {
		log.Fatal(err)
	}
}

func run(addr string, balance uint64) error {
	s := &sim{
		records: make(map[string]*record),
		balance: balance,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/agents/{id}/initialize", s.handleInitialize)
	mux.HandleFunc("GET /v1/agents/{id}/info", s.handleInfo)
	mux.HandleFunc("POST /v1/agents/{id}/tasks", s.handleTaskReport)
	mux.HandleFunc("GET /v1/balances/{id}", s.handleBalance)

	srv := &http.Server{Addr: addr, Handler: mux}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "reputation-sim listening on %s\n", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func now() uint64 {
	return uint64(time.Now().UnixNano())
}

// handleInitialize creates a zeroed record. Idempotent: re-initializing an
// existing agent leaves its record alone, matching the lazy-init behavior the
// registry tolerates.
func (s *sim) handleInitialize(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	s.mu.Lock()
	if _, ok := s.records[id]; !ok {
		s.records[id] = &record{
			TaskHistory:       []taskResult{},
			ReputationHistory: []reputationPoint{{Timestamp: now()}},
		}
	}
	s.mu.Unlock()

	fmt.Fprintf(os.Stderr, "initialized %s\n", id)
	w.WriteHeader(http.StatusOK)
}

func (s *sim) handleInfo(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	s.mu.Lock()
	rec, ok := s.records[id]
	var snapshot record
	if ok {
		snapshot = *rec
	}
	s.mu.Unlock()

	if !ok {
		http.Error(w, `{"error":"unknown agent"}`, http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(snapshot)
}

// handleTaskReport scores a task outcome and appends it to the agent's
// history, lazily initializing unknown agents.
func (s *sim) handleTaskReport(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var report struct {
		TaskID  string `json:"task_id"`
		Success bool   `json:"success"`
		Details string `json:"details"`
	}
	if err := json.NewDecoder(r.Body).Decode(&report); err != nil {
		http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
		return
	}

	ts := now()

	s.mu.Lock()
	rec, ok := s.records[id]
	if !ok {
		rec = &record{
			TaskHistory:       []taskResult{},
			ReputationHistory: []reputationPoint{{Timestamp: ts}},
		}
		s.records[id] = rec
	}

	if report.Success {
		rec.Reputation += taskReward
	} else if rec.Reputation > taskPenalty {
		rec.Reputation -= taskPenalty
	} else {
		rec.Reputation = 0
	}

	rec.TaskHistory = append(rec.TaskHistory, taskResult{
		TaskID:    report.TaskID,
		Success:   report.Success,
		Timestamp: ts,
		Details:   report.Details,
	})
	rec.ReputationHistory = append(rec.ReputationHistory, reputationPoint{
		Timestamp:  ts,
		Reputation: rec.Reputation,
	})
	reputation := rec.Reputation
	s.mu.Unlock()

	fmt.Fprintf(os.Stderr, "task %s for %s: success=%t reputation=%d\n",
		report.TaskID, id, report.Success, reputation)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]uint64{"reputation": reputation})
}

func (s *sim) handleBalance(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	balance := s.balance
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]uint64{"balance": balance})
}
