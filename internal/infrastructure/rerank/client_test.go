package rerank

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"homepage-chat-api/internal/config"
	"homepage-chat-api/internal/domain/service"
)

func testConfig(endpoint string) *config.RerankConfig {
	return &config.RerankConfig{
		Endpoint: endpoint,
		APIKey:   "test-key",
		Model:    "gte-rerank",
		Timeout:  time.Second,
		Retry: config.RetryConfig{
			Attempts: 3,
			Initial:  time.Millisecond,
			Max:      2 * time.Millisecond,
		},
	}
}

func TestClientRerank(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req struct {
			Model string `json:"model"`
			Input struct {
				Query     string   `json:"query"`
				Documents []string `json:"documents"`
			} `json:"input"`
			Parameters struct {
				TopN            int  `json:"top_n"`
				ReturnDocuments bool `json:"return_documents"`
			} `json:"parameters"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gte-rerank", req.Model)
		assert.Equal(t, "go?", req.Input.Query)
		assert.Equal(t, []string{"A", "B", "C"}, req.Input.Documents)
		assert.Equal(t, 2, req.Parameters.TopN)
		assert.True(t, req.Parameters.ReturnDocuments)

		_, _ = w.Write([]byte(`{"output":{"results":[
			{"index":2,"relevance_score":0.9,"document":{"text":"C"}},
			{"index":0,"relevance_score":0.4,"document":{"text":"A"}}
		]}}`))
	}))
	defer srv.Close()

	results, err := NewClient(testConfig(srv.URL)).Rerank(context.Background(), "go?", []string{"A", "B", "C"}, 2)
	require.NoError(t, err)
	assert.Equal(t, []service.RerankResult{
		{Index: 2, RelevanceScore: 0.9},
		{Index: 0, RelevanceScore: 0.4},
	}, results)
}

func TestClientRerankRetriesThreeTimes(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := NewClient(testConfig(srv.URL)).Rerank(context.Background(), "q", []string{"A", "B"}, 2)
	require.Error(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClientRerankMalformed(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing output", `{"request_id":"x"}`},
		{"index out of range", `{"output":{"results":[{"index":7,"relevance_score":0.3}]}}`},
		{"negative index", `{"output":{"results":[{"index":-1,"relevance_score":0.3}]}}`},
		{"missing score", `{"output":{"results":[{"index":0}]}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewClient(testConfig(srv.URL)).Rerank(context.Background(), "q", []string{"A", "B"}, 2)
			require.Error(t, err)
			assert.Equal(t, int32(1), calls.Load())
		})
	}
}

func TestClientRerankEmptyDocuments(t *testing.T) {
	results, err := NewClient(testConfig("http://unused")).Rerank(context.Background(), "q", nil, 3)
	require.NoError(t, err)
	assert.Empty(t, results)
}
