package reputation

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/intellex/agent-registry/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestClient_FetchAgentInfo(t *testing.T) {
	snap := store.Snapshot{
		Reputation: 42,
		TaskHistory: []store.TaskResult{
			{TaskID: "task-1", Success: true, Timestamp: 100, Details: "ok"},
		},
		ReputationHistory: []store.ReputationPoint{
			{Timestamp: 50, Reputation: 0},
			{Timestamp: 100, Reputation: 42},
		},
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/v1/agents/alice.agents/info", r.URL.Path)
		json.NewEncoder(w).Encode(snap)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, time.Second, testLogger())

	got, err := client.FetchAgentInfo(context.Background(), "alice.agents")
	require.NoError(t, err)
	assert.Equal(t, uint64(42), got.Reputation)
	require.Len(t, got.TaskHistory, 1)
	assert.Equal(t, "task-1", got.TaskHistory[0].TaskID)
	assert.Len(t, got.ReputationHistory, 2)
}

func TestClient_FetchAgentInfo_Unknown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"unknown agent"}`, http.StatusNotFound)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, time.Second, testLogger())

	_, err := client.FetchAgentInfo(context.Background(), "nobody.agents")
	assert.ErrorIs(t, err, ErrUnknownAgent)
}

func TestClient_FetchAgentInfo_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, time.Second, testLogger())

	_, err := client.FetchAgentInfo(context.Background(), "alice.agents")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnknownAgent)
}

func TestClient_InitializeAgent(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		assert.Equal(t, http.MethodPost, r.Method)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, time.Second, testLogger())

	err := client.InitializeAgent(context.Background(), "alice.agents")
	require.NoError(t, err)
	assert.Equal(t, "/v1/agents/alice.agents/initialize", gotPath)
}

func TestClient_InitializeAgent_Unreachable(t *testing.T) {
	client := NewClient("http://127.0.0.1:1", 100*time.Millisecond, testLogger())

	err := client.InitializeAgent(context.Background(), "alice.agents")
	assert.Error(t, err)
}

func TestTokenClient_BalanceOf(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/balances/alice.agents", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]uint64{"balance": 250})
	}))
	defer srv.Close()

	client := NewTokenClient(srv.URL, time.Second, testLogger())

	balance, err := client.BalanceOf(context.Background(), "alice.agents")
	require.NoError(t, err)
	assert.Equal(t, uint64(250), balance)
}

func TestTokenClient_BalanceOf_Error(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := NewTokenClient(srv.URL, time.Second, testLogger())

	_, err := client.BalanceOf(context.Background(), "alice.agents")
	assert.Error(t, err)
}
