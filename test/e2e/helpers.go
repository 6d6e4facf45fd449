//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/studybuddy-ai/backend/internal/anthropic"
	"github.com/studybuddy-ai/backend/internal/api/handlers"
	"github.com/studybuddy-ai/backend/internal/canvas"
	"github.com/studybuddy-ai/backend/internal/jobs"
	"github.com/studybuddy-ai/backend/internal/repository"
	"github.com/studybuddy-ai/backend/internal/server"
	"github.com/studybuddy-ai/backend/internal/service"
	"github.com/studybuddy-ai/backend/internal/storage"
	"github.com/studybuddy-ai/backend/internal/supermemory"
	"github.com/studybuddy-ai/backend/internal/testutil"
)

// TestEnv holds all resources for an end-to-end test: a real Postgres
// container, fake upstream APIs, and the fully wired HTTP server.
type TestEnv struct {
	T          *testing.T
	Ctx        context.Context
	PostgresC  *testutil.PostgresContainer
	Pool       *pgxpool.Pool
	ServerURL  string
	HTTPClient *http.Client

	Anthropic   *fakeAnthropic
	Supermemory *fakeSupermemory
	Canvas      *fakeCanvas

	CourseRepo *repository.CourseRepository
	ModuleRepo *repository.ModuleRepository
	Ingestion  *jobs.IngestionWorker

	apiServer *httptest.Server
}

// SetupTestEnv wires the full application against fake upstream services:
// real HTTP clients, real repositories, real router. Only the external APIs
// are replaced.
func SetupTestEnv(t *testing.T) *TestEnv {
	ctx := context.Background()

	pgC := testutil.NewPostgresContainer(ctx, t)
	pool := testutil.NewTestPool(ctx, t, pgC, "../../migrations")

	fakeLLM := newFakeAnthropic()
	fakeMemory := newFakeSupermemory()
	fakeLMS := newFakeCanvas()

	llmClient, err := anthropic.NewClient(anthropic.ClientConfig{
		APIKey:  "test-key",
		Model:   "test-model",
		BaseURL: fakeLLM.Server.URL,
	})
	if err != nil {
		t.Fatalf("failed to create anthropic client: %v", err)
	}

	memoryClient, err := supermemory.NewClient(supermemory.ClientConfig{
		APIKey:  "test-key",
		BaseURL: fakeMemory.Server.URL,
	})
	if err != nil {
		t.Fatalf("failed to create supermemory client: %v", err)
	}

	canvasClient, err := canvas.NewClient(canvas.ClientConfig{
		Token:   "test-token",
		BaseURL: fakeLMS.Server.URL,
	})
	if err != nil {
		t.Fatalf("failed to create canvas client: %v", err)
	}

	diskStore, err := storage.NewDiskStore(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create disk store: %v", err)
	}

	courseRepo := repository.NewCourseRepository(pool)
	moduleRepo := repository.NewModuleRepository(pool)

	scorer := service.NewRelevanceScorer(llmClient)
	resolver := service.NewSourceResolver(scorer, service.StubWebSearch)
	chatSvc := service.NewChatService(llmClient, resolver, memoryClient)
	topicSvc := service.NewTopicService(llmClient, memoryClient)
	materialSvc := service.NewMaterialService(diskStore, memoryClient, topicSvc)
	courseSvc := service.NewCourseService(courseRepo, moduleRepo, canvasClient)

	router := server.NewRouter(server.RouterConfig{
		ChatHandler:     handlers.NewChatHandler(chatSvc),
		MaterialHandler: handlers.NewMaterialHandler(materialSvc),
		CourseHandler:   handlers.NewCourseHandler(courseSvc),
		CORSOrigins:     []string{"http://localhost:5173"},
		Health: server.HealthStatus{
			AnthropicConfigured: true,
			RetrievalConfigured: true,
			CanvasConfigured:    true,
		},
	})
	apiServer := httptest.NewServer(router)

	return &TestEnv{
		T:           t,
		Ctx:         ctx,
		PostgresC:   pgC,
		Pool:        pool,
		ServerURL:   apiServer.URL,
		HTTPClient:  &http.Client{Timeout: 30 * time.Second},
		Anthropic:   fakeLLM,
		Supermemory: fakeMemory,
		Canvas:      fakeLMS,
		CourseRepo:  courseRepo,
		ModuleRepo:  moduleRepo,
		Ingestion:   jobs.NewIngestionWorker(moduleRepo, canvasClient, memoryClient, courseSvc),
		apiServer:   apiServer,
	}
}

// Cleanup releases all resources.
func (e *TestEnv) Cleanup() {
	if e.apiServer != nil {
		e.apiServer.Close()
	}
	if e.Anthropic != nil {
		e.Anthropic.Server.Close()
	}
	if e.Supermemory != nil {
		e.Supermemory.Server.Close()
	}
	if e.Canvas != nil {
		e.Canvas.Server.Close()
	}
	if e.Pool != nil {
		e.Pool.Close()
	}
	if e.PostgresC != nil {
		e.PostgresC.Terminate(e.Ctx)
	}
}

// PostJSON sends a JSON POST and returns the status code and raw body.
func (e *TestEnv) PostJSON(path string, body interface{}) (int, []byte) {
	payload, err := json.Marshal(body)
	if err != nil {
		e.T.Fatalf("failed to marshal request: %v", err)
	}
	resp, err := e.HTTPClient.Post(e.ServerURL+path, "application/json", bytes.NewReader(payload))
	if err != nil {
		e.T.Fatalf("POST %s failed: %v", path, err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, raw
}

// Get sends a GET and returns the status code and raw body.
func (e *TestEnv) Get(path string) (int, []byte) {
	resp, err := e.HTTPClient.Get(e.ServerURL + path)
	if err != nil {
		e.T.Fatalf("GET %s failed: %v", path, err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, raw
}

// UnwrapData decodes an enveloped success response into out.
func (e *TestEnv) UnwrapData(raw []byte, out interface{}) {
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		e.T.Fatalf("failed to parse response envelope: %v\n%s", err, raw)
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		e.T.Fatalf("failed to parse response data: %v\n%s", err, envelope.Data)
	}
}

// UploadMaterial posts a file to /api/upload-material as multipart form data.
func (e *TestEnv) UploadMaterial(filename, contentType string, content []byte) (int, []byte) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, filename))
	header.Set("Content-Type", contentType)
	part, err := writer.CreatePart(header)
	if err != nil {
		e.T.Fatalf("failed to create multipart part: %v", err)
	}
	if _, err := part.Write(content); err != nil {
		e.T.Fatalf("failed to write multipart content: %v", err)
	}
	writer.Close()

	resp, err := e.HTTPClient.Post(e.ServerURL+"/api/upload-material", writer.FormDataContentType(), &buf)
	if err != nil {
		e.T.Fatalf("upload failed: %v", err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, raw
}

// fakeAnthropic imitates the Messages API. Relevance-scoring requests are
// recognized by their prompt prefix and answered with Score; everything else
// gets Answer, streamed as SSE deltas when the request asks for streaming.
type fakeAnthropic struct {
	Server *httptest.Server

	mu     sync.Mutex
	answer string
	score  string
}

func newFakeAnthropic() *fakeAnthropic {
	f := &fakeAnthropic{
		answer: "Photosynthesis converts light energy into chemical energy stored in glucose.",
		score:  "0.9",
	}
	f.Server = httptest.NewServer(http.HandlerFunc(f.handle))
	return f
}

// SetAnswer changes the text returned for answer requests.
func (f *fakeAnthropic) SetAnswer(text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answer = text
}

// SetScore changes the text returned for relevance-scoring requests.
func (f *fakeAnthropic) SetScore(text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.score = text
}

func (f *fakeAnthropic) handle(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/v1/messages" {
		http.NotFound(w, r)
		return
	}

	var req struct {
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
		Stream bool `json:"stream"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	text := f.answer
	if len(req.Messages) > 0 && strings.HasPrefix(req.Messages[len(req.Messages)-1].Content, "Rate the relevance") {
		text = f.score
	}
	f.mu.Unlock()

	if req.Stream {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, chunk := range splitText(text, 16) {
			payload, _ := json.Marshal(map[string]interface{}{
				"type":  "content_block_delta",
				"delta": map[string]string{"type": "text_delta", "text": chunk},
			})
			fmt.Fprintf(w, "data: %s\n\n", payload)
		}
		fmt.Fprint(w, "data: {\"type\":\"message_stop\"}\n\n")
		return
	}

	json.NewEncoder(w).Encode(map[string]interface{}{
		"content": []map[string]string{{"type": "text", "text": text}},
	})
}

func splitText(s string, size int) []string {
	var parts []string
	for len(s) > size {
		parts = append(parts, s[:size])
		s = s[size:]
	}
	if s != "" {
		parts = append(parts, s)
	}
	return parts
}

type storedDoc struct {
	ID        string
	Content   string
	Container string
	Metadata  map[string]interface{}
}

// fakeSupermemory imitates the document API with an in-memory store. Search
// returns every document in the requested container, newest last.
type fakeSupermemory struct {
	Server *httptest.Server

	mu     sync.Mutex
	docs   []storedDoc
	nextID int
}

func newFakeSupermemory() *fakeSupermemory {
	f := &fakeSupermemory{}
	f.Server = httptest.NewServer(http.HandlerFunc(f.handle))
	return f
}

// Docs returns the stored documents in a container.
func (f *fakeSupermemory) Docs(container string) []storedDoc {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []storedDoc
	for _, d := range f.docs {
		if d.Container == container {
			out = append(out, d)
		}
	}
	return out
}

func (f *fakeSupermemory) handle(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/v3/documents":
		var req struct {
			Content      string                 `json:"content"`
			ContainerTag string                 `json:"containerTag"`
			Metadata     map[string]interface{} `json:"metadata"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}

		f.mu.Lock()
		f.nextID++
		id := fmt.Sprintf("mem-%d", f.nextID)
		f.docs = append(f.docs, storedDoc{
			ID:        id,
			Content:   req.Content,
			Container: req.ContainerTag,
			Metadata:  req.Metadata,
		})
		f.mu.Unlock()

		json.NewEncoder(w).Encode(map[string]string{"id": id, "status": "completed"})

	case "/v3/search":
		var req struct {
			Query        string `json:"q"`
			Limit        int    `json:"limit"`
			ContainerTag string `json:"containerTag"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}

		results := []map[string]interface{}{}
		for _, d := range f.Docs(req.ContainerTag) {
			if req.Limit > 0 && len(results) >= req.Limit {
				break
			}
			results = append(results, map[string]interface{}{
				"id":       d.ID,
				"content":  d.Content,
				"score":    0.92,
				"metadata": d.Metadata,
			})
		}
		json.NewEncoder(w).Encode(map[string]interface{}{"results": results})

	default:
		http.NotFound(w, r)
	}
}

type fakeCourse struct {
	ID   int64
	Name string
}

type fakeFile struct {
	ID          int64
	DisplayName string
	ContentType string
	Content     string
}

// fakeCanvas imitates the LMS API: course listing, per-course files, and
// file downloads served from the same fake host.
type fakeCanvas struct {
	Server *httptest.Server

	mu      sync.Mutex
	courses []fakeCourse
	files   map[int64][]fakeFile
}

func newFakeCanvas() *fakeCanvas {
	f := &fakeCanvas{files: make(map[int64][]fakeFile)}
	f.Server = httptest.NewServer(http.HandlerFunc(f.handle))
	return f
}

// AddCourse registers a course with its files.
func (f *fakeCanvas) AddCourse(course fakeCourse, files ...fakeFile) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.courses = append(f.courses, course)
	f.files[course.ID] = files
}

func (f *fakeCanvas) handle(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	switch {
	case r.URL.Path == "/courses":
		out := []map[string]interface{}{}
		for _, c := range f.courses {
			out = append(out, map[string]interface{}{"id": c.ID, "name": c.Name})
		}
		json.NewEncoder(w).Encode(out)

	case len(parts) == 3 && parts[0] == "courses" && parts[2] == "files":
		courseID, _ := strconv.ParseInt(parts[1], 10, 64)
		out := []map[string]interface{}{}
		for _, file := range f.files[courseID] {
			out = append(out, map[string]interface{}{
				"id":           file.ID,
				"display_name": file.DisplayName,
				"url":          fmt.Sprintf("%s/files/%d/download", f.Server.URL, file.ID),
				"content-type": file.ContentType,
				"size":         len(file.Content),
			})
		}
		json.NewEncoder(w).Encode(out)

	case len(parts) == 3 && parts[0] == "files" && parts[2] == "download":
		fileID, _ := strconv.ParseInt(parts[1], 10, 64)
		for _, files := range f.files {
			for _, file := range files {
				if file.ID == fileID {
					w.Header().Set("Content-Type", file.ContentType)
					io.WriteString(w, file.Content)
					return
				}
			}
		}
		http.NotFound(w, r)

	default:
		http.NotFound(w, r)
	}
}
