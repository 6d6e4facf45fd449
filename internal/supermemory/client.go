// Package supermemory is a client for the Supermemory hosted retrieval index.
// Documents ingest asynchronously on the remote side: a freshly ingested
// document may report status "queued" and not be searchable yet.
package supermemory

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/studybuddy-ai/backend/internal/domain"
)

const (
	defaultBaseURL = "https://api.supermemory.ai"

	// Container tags scope ingestion and search to logical document sets.
	ContainerUploadedDocuments = "uploaded-documents"
	ContainerCourseMaterials   = "course-materials"
	ContainerConversations     = "conversations"

	// Ingest statuses reported by the API.
	StatusQueued    = "queued"
	StatusCompleted = "completed"

	searchTimeout = 30 * time.Second

	// Search retry policy for HTTP 404 ("not ready yet").
	searchMaxAttempts       = 5
	searchInitialRetryDelay = time.Second
)

// ErrNoAPIKey is returned at construction time when the API key is missing.
var ErrNoAPIKey = errors.New("supermemory API key is required")

// Client calls the Supermemory v3 API.
type Client struct {
	apiKey  string
	baseURL string
	client  *http.Client

	// Overridable in tests.
	maxAttempts int
	retryDelay  time.Duration
}

// ClientConfig holds construction options for Client.
type ClientConfig struct {
	APIKey  string
	BaseURL string
}

// NewClient creates a Client, failing fast when no API key is configured.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, ErrNoAPIKey
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	return &Client{
		apiKey:      cfg.APIKey,
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		client:      &http.Client{Timeout: 60 * time.Second},
		maxAttempts: searchMaxAttempts,
		retryDelay:  searchInitialRetryDelay,
	}, nil
}

// IngestInput describes a document to add to the index.
type IngestInput struct {
	Content      string
	Filename     string
	ContainerTag string
	// Metadata values must be strings, numbers, or booleans.
	Metadata map[string]any
}

// IngestResult is the remote side's acknowledgement of an ingest.
type IngestResult struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// Searchable reports whether the ingested document can already be searched.
func (r *IngestResult) Searchable() bool {
	return r.Status == StatusCompleted
}

type ingestRequest struct {
	Content      string         `json:"content"`
	ContainerTag string         `json:"containerTag"`
	CustomID     string         `json:"customId,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// IngestDocument submits text plus metadata for indexing under the given
// container tag.
func (c *Client) IngestDocument(ctx context.Context, input IngestInput) (*IngestResult, error) {
	if input.ContainerTag == "" {
		input.ContainerTag = ContainerUploadedDocuments
	}

	body := ingestRequest{
		Content:      input.Content,
		ContainerTag: input.ContainerTag,
		CustomID:     customID(input.Filename, input.Metadata),
		Metadata:     filterMetadata(input.Metadata),
	}

	var result IngestResult
	if err := c.post(ctx, "/v3/documents", body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// SearchResult is one ranked snippet returned by Search.
type SearchResult struct {
	ID       string
	Content  string
	Score    float64
	Metadata map[string]any
}

type searchRequest struct {
	Query        string `json:"q"`
	Limit        int    `json:"limit"`
	ContainerTag string `json:"containerTag,omitempty"`
}

// searchResponse declares the accepted response schema. Anything without a
// "results" array is rejected as unrecognized instead of being sniffed for
// alternative keys.
type searchResponse struct {
	Results *[]searchResultItem `json:"results"`
}

type searchResultItem struct {
	ID       string         `json:"id"`
	DocID    string         `json:"documentId"`
	Content  string         `json:"content"`
	Text     string         `json:"text"`
	Score    float64        `json:"score"`
	Metadata map[string]any `json:"metadata"`
}

// notReadyError marks an HTTP 404 from search, meaning the index has not
// caught up yet. Retried with exponential backoff.
type notReadyError struct{}

func (notReadyError) Error() string { return "retrieval index not ready" }

// Search queries the container and returns ranked snippets. A 404 response is
// retried up to 5 times with doubling delay before giving up.
func (c *Client) Search(ctx context.Context, query, containerTag string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 5
	}
	body := searchRequest{Query: query, Limit: limit, ContainerTag: containerTag}

	delay := c.retryDelay
	var lastErr error
	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			delay *= 2
		}

		results, err := c.searchOnce(ctx, body)
		if err == nil {
			return results, nil
		}
		lastErr = err
		if !errors.Is(err, notReadyError{}) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("supermemory search: %w", lastErr)
}

func (c *Client) searchOnce(ctx context.Context, body searchRequest) ([]SearchResult, error) {
	ctx, cancel := context.WithTimeout(ctx, searchTimeout)
	defer cancel()

	var parsed searchResponse
	if err := c.postRaw(ctx, "/v3/search", body, func(resp *http.Response) error {
		if resp.StatusCode == http.StatusNotFound {
			return notReadyError{}
		}
		if resp.StatusCode != http.StatusOK {
			return apiError(resp)
		}
		if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
			return domain.NewDomainErrorWithCause(domain.ErrCodeUpstreamFailed, "decoding retrieval response", err)
		}
		return nil
	}); err != nil {
		return nil, err
	}

	if parsed.Results == nil {
		return nil, domain.ErrRetrievalBadResponse
	}

	results := make([]SearchResult, 0, len(*parsed.Results))
	for _, item := range *parsed.Results {
		content := item.Content
		if content == "" {
			content = item.Text
		}
		id := item.ID
		if id == "" {
			id = item.DocID
		}
		results = append(results, SearchResult{
			ID:       id,
			Content:  content,
			Score:    item.Score,
			Metadata: item.Metadata,
		})
	}
	return results, nil
}

// JoinContext concatenates result snippets into one context string, skipping
// empty snippets. An empty return means "no usable context".
func JoinContext(results []SearchResult) string {
	parts := make([]string, 0, len(results))
	for _, r := range results {
		if strings.TrimSpace(r.Content) == "" {
			continue
		}
		parts = append(parts, r.Content)
	}
	return strings.Join(parts, "\n\n")
}

func (c *Client) post(ctx context.Context, endpoint string, body, out any) error {
	return c.postRaw(ctx, endpoint, body, func(resp *http.Response) error {
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return apiError(resp)
		}
		return json.NewDecoder(resp.Body).Decode(out)
	})
}

func (c *Client) postRaw(ctx context.Context, endpoint string, body any, handle func(*http.Response) error) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("calling supermemory: %w", err)
	}
	defer resp.Body.Close()

	return handle(resp)
}

func apiError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return fmt.Errorf("supermemory returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
}

var (
	invalidIDChars = regexp.MustCompile(`[^a-zA-Z0-9_-]`)
	dashRuns       = regexp.MustCompile(`-+`)
)

// customID derives a stable document identifier from the filename. Falls back
// to the file_id metadata or a timestamp when sanitization leaves nothing.
func customID(filename string, metadata map[string]any) string {
	base := strings.TrimSuffix(path.Base(filename), path.Ext(filename))
	sanitized := invalidIDChars.ReplaceAllString(base, "-")
	sanitized = dashRuns.ReplaceAllString(sanitized, "-")
	sanitized = strings.Trim(sanitized, "-")

	if sanitized == "" {
		if fileID, ok := metadata["file_id"].(string); ok && len(fileID) >= 8 {
			sanitized = "document-" + fileID[:8]
		} else {
			sanitized = fmt.Sprintf("document-%d", time.Now().Unix())
		}
	}

	if len(sanitized) > 255 {
		sanitized = sanitized[:252] + "..."
	}
	return sanitized
}

// filterMetadata keeps only primitive values, stringifying everything else per
// the API contract.
func filterMetadata(metadata map[string]any) map[string]any {
	if len(metadata) == 0 {
		return nil
	}
	filtered := make(map[string]any, len(metadata))
	for key, value := range metadata {
		switch value.(type) {
		case string, bool, int, int32, int64, float32, float64:
			filtered[key] = value
		default:
			filtered[key] = fmt.Sprintf("%v", value)
		}
	}
	return filtered
}
