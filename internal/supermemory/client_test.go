package supermemory

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/studybuddy-ai/backend/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, url string) *Client {
	t.Helper()
	client, err := NewClient(ClientConfig{APIKey: "sm-test", BaseURL: url})
	require.NoError(t, err)
	client.retryDelay = time.Millisecond
	return client
}

func TestNewClient_RequiresAPIKey(t *testing.T) {
	_, err := NewClient(ClientConfig{})
	assert.ErrorIs(t, err, ErrNoAPIKey)
}

func TestIngestDocument_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v3/documents", r.URL.Path)
		assert.Equal(t, "Bearer sm-test", r.Header.Get("Authorization"))

		var req ingestRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "lecture notes text", req.Content)
		assert.Equal(t, ContainerUploadedDocuments, req.ContainerTag)
		assert.Equal(t, "Week-1-Lecture", req.CustomID)
		assert.Equal(t, "application/pdf", req.Metadata["content_type"])

		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]string{"id": "mem-1", "status": "queued"})
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	result, err := client.IngestDocument(context.Background(), IngestInput{
		Content:  "lecture notes text",
		Filename: "Week 1 Lecture.pdf",
		Metadata: map[string]any{"content_type": "application/pdf"},
	})
	require.NoError(t, err)
	assert.Equal(t, "mem-1", result.ID)
	assert.Equal(t, StatusQueued, result.Status)
	assert.False(t, result.Searchable())
}

func TestSearch_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v3/search", r.URL.Path)

		var req searchRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "what is a stack", req.Query)
		assert.Equal(t, 5, req.Limit)
		assert.Equal(t, ContainerUploadedDocuments, req.ContainerTag)

		json.NewEncoder(w).Encode(map[string]any{
			"results": []map[string]any{
				{"id": "r1", "content": "A stack is a LIFO structure.", "score": 0.91},
				{"documentId": "r2", "text": "Push and pop are O(1).", "score": 0.72},
			},
		})
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	results, err := client.Search(context.Background(), "what is a stack", ContainerUploadedDocuments, 0)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "r1", results[0].ID)
	assert.Equal(t, "A stack is a LIFO structure.", results[0].Content)
	assert.Equal(t, "r2", results[1].ID)
	assert.Equal(t, "Push and pop are O(1).", results[1].Content)
}

func TestSearch_RetriesNotFoundThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"results": []map[string]any{{"id": "r1", "content": "ready now"}},
		})
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	results, err := client.Search(context.Background(), "q", ContainerUploadedDocuments, 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, int32(3), calls.Load())
}

func TestSearch_GivesUpAfterMaxAttempts(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	_, err := client.Search(context.Background(), "q", ContainerUploadedDocuments, 5)
	require.Error(t, err)
	assert.Equal(t, int32(searchMaxAttempts), calls.Load())
}

func TestSearch_UnrecognizedShapeFails(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"data": []string{"wrong shape"}})
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	_, err := client.Search(context.Background(), "q", ContainerUploadedDocuments, 5)
	assert.ErrorIs(t, err, domain.ErrRetrievalBadResponse)
}

func TestSearch_ServerErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	_, err := client.Search(context.Background(), "q", ContainerUploadedDocuments, 5)
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestJoinContext(t *testing.T) {
	joined := JoinContext([]SearchResult{
		{Content: "first"},
		{Content: "   "},
		{Content: "second"},
	})
	assert.Equal(t, "first\n\nsecond", joined)

	assert.Equal(t, "", JoinContext(nil))
}

func TestCustomID(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		metadata map[string]any
		want     string
	}{
		{"plain", "notes.txt", nil, "notes"},
		{"spaces and symbols", "Week 1 (Intro)!.pdf", nil, "Week-1-Intro"},
		{"all symbols falls back to file id", "!!!.pdf", map[string]any{"file_id": "abcdef1234"}, "document-abcdef12"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, customID(tt.filename, tt.metadata))
		})
	}
}

func TestFilterMetadata_StringifiesNonPrimitives(t *testing.T) {
	filtered := filterMetadata(map[string]any{
		"name":  "x",
		"count": 3,
		"ok":    true,
		"tags":  []string{"a", "b"},
	})
	assert.Equal(t, "x", filtered["name"])
	assert.Equal(t, 3, filtered["count"])
	assert.Equal(t, true, filtered["ok"])
	assert.Equal(t, "[a b]", filtered["tags"])
}
