//go:build e2e

package e2e

import (
	"bufio"
	"bytes"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"testing"

	"github.com/studybuddy-ai/backend/internal/supermemory"
)

type chatResponse struct {
	Success        bool   `json:"success"`
	Response       string `json:"response"`
	ContextUsed    bool   `json:"context_used"`
	WebSearchUsed  bool   `json:"web_search_used"`
	StoredInMemory bool   `json:"stored_in_memory"`
}

type uploadResponse struct {
	Success             bool   `json:"success"`
	FileID              string `json:"file_id"`
	TextLength          int    `json:"text_length"`
	SupermemoryIngested bool   `json:"supermemory_ingested"`
	MemoryID            string `json:"memory_id"`
	MemoryStatus        string `json:"memory_status"`
	TopicsExtracted     bool   `json:"topics_extracted"`
	Topics              string `json:"topics"`
}

type courseResponse struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	CanvasID     string `json:"canvas_id"`
	Progress     int    `json:"progress"`
	TotalModules int    `json:"total_modules"`
}

type moduleResponse struct {
	ID           int64  `json:"id"`
	CourseID     int64  `json:"course_id"`
	Name         string `json:"name"`
	Completed    bool   `json:"completed"`
	CanvasFileID string `json:"canvas_file_id"`
	Downloaded   bool   `json:"downloaded"`
	Ingested     bool   `json:"ingested"`
	StudyPath    string `json:"study_path"`
}

const studyNotes = "Photosynthesis is the process by which green plants use sunlight, " +
	"water, and carbon dioxide to synthesize glucose, releasing oxygen as a byproduct. " +
	"The light-dependent reactions occur in the thylakoid membranes."

func TestE2E_HealthAndChatFallback(t *testing.T) {
	env := SetupTestEnv(t)
	defer env.Cleanup()

	status, raw := env.Get("/health")
	if status != http.StatusOK {
		t.Fatalf("health returned %d: %s", status, raw)
	}
	var health struct {
		Status              string `json:"status"`
		AnthropicConfigured bool   `json:"anthropic_configured"`
		RetrievalConfigured bool   `json:"supermemory_configured"`
		CanvasConfigured    bool   `json:"canvas_configured"`
	}
	if err := json.Unmarshal(raw, &health); err != nil {
		t.Fatalf("failed to parse health: %v", err)
	}
	if health.Status != "ok" || !health.AnthropicConfigured || !health.RetrievalConfigured || !health.CanvasConfigured {
		t.Fatalf("unexpected health payload: %+v", health)
	}

	// No documents ingested yet: retrieval finds nothing, so the answer
	// falls back to the stub web search.
	status, raw = env.PostJSON("/api/chat", map[string]interface{}{
		"message": "What is the capital of France?",
	})
	if status != http.StatusOK {
		t.Fatalf("chat returned %d: %s", status, raw)
	}
	var chat chatResponse
	if err := json.Unmarshal(raw, &chat); err != nil {
		t.Fatalf("failed to parse chat response: %v", err)
	}
	if !chat.Success || chat.Response == "" {
		t.Fatalf("expected a successful answer, got %+v", chat)
	}
	if chat.ContextUsed {
		t.Fatal("no material was ingested, context_used should be false")
	}
	if !chat.WebSearchUsed {
		t.Fatal("expected fallback to web search with no ingested material")
	}
}

func TestE2E_UploadAndChat(t *testing.T) {
	env := SetupTestEnv(t)
	defer env.Cleanup()

	status, raw := env.UploadMaterial("notes.txt", "text/plain", []byte(studyNotes))
	if status != http.StatusOK {
		t.Fatalf("upload returned %d: %s", status, raw)
	}
	var upload uploadResponse
	if err := json.Unmarshal(raw, &upload); err != nil {
		t.Fatalf("failed to parse upload response: %v", err)
	}
	if !upload.Success || upload.FileID == "" {
		t.Fatalf("unexpected upload response: %+v", upload)
	}
	if !upload.SupermemoryIngested || upload.MemoryID == "" || upload.MemoryStatus != "completed" {
		t.Fatalf("expected document to be ingested: %+v", upload)
	}
	if !upload.TopicsExtracted || upload.Topics == "" {
		t.Fatalf("expected topics to be extracted: %+v", upload)
	}
	if upload.TextLength != len(studyNotes) {
		t.Fatalf("text_length = %d, want %d", upload.TextLength, len(studyNotes))
	}

	docs := env.Supermemory.Docs(supermemory.ContainerUploadedDocuments)
	if len(docs) != 1 {
		t.Fatalf("expected 1 uploaded document in the index, got %d", len(docs))
	}
	if docs[0].Content != studyNotes {
		t.Fatal("ingested content does not match the uploaded file")
	}

	// The ingested notes are long and scored relevant, so the answer is
	// grounded in study material.
	status, raw = env.PostJSON("/api/chat", map[string]interface{}{
		"message": "How do plants produce glucose?",
	})
	if status != http.StatusOK {
		t.Fatalf("chat returned %d: %s", status, raw)
	}
	var chat chatResponse
	if err := json.Unmarshal(raw, &chat); err != nil {
		t.Fatalf("failed to parse chat response: %v", err)
	}
	if !chat.ContextUsed || chat.WebSearchUsed {
		t.Fatalf("expected a study-material answer, got %+v", chat)
	}
	if !strings.Contains(chat.Response, "Photosynthesis") {
		t.Fatalf("unexpected answer text: %q", chat.Response)
	}
	if !chat.StoredInMemory {
		t.Fatal("expected the conversation to be stored")
	}

	conversations := env.Supermemory.Docs(supermemory.ContainerConversations)
	if len(conversations) != 1 {
		t.Fatalf("expected 1 stored conversation, got %d", len(conversations))
	}
	if !strings.HasPrefix(conversations[0].Content, "Q: How do plants produce glucose?") {
		t.Fatalf("unexpected conversation record: %q", conversations[0].Content)
	}

	// An irrelevant context falls back to web search.
	env.Anthropic.SetScore("0.1")
	status, raw = env.PostJSON("/api/chat", map[string]interface{}{
		"message": "Who won the World Cup in 2022?",
	})
	if status != http.StatusOK {
		t.Fatalf("chat returned %d: %s", status, raw)
	}
	if err := json.Unmarshal(raw, &chat); err != nil {
		t.Fatalf("failed to parse chat response: %v", err)
	}
	if chat.ContextUsed || !chat.WebSearchUsed {
		t.Fatalf("expected web-search fallback for irrelevant context, got %+v", chat)
	}
}

func TestE2E_ChatStreaming(t *testing.T) {
	env := SetupTestEnv(t)
	defer env.Cleanup()

	payload, _ := json.Marshal(map[string]interface{}{
		"message": "Explain the thylakoid membrane.",
		"stream":  true,
	})
	resp, err := env.HTTPClient.Post(env.ServerURL+"/api/chat", "application/json", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("streaming chat failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("streaming chat returned %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/x-ndjson" {
		t.Fatalf("Content-Type = %q, want application/x-ndjson", ct)
	}

	type chunk struct {
		Metadata *struct {
			ContextUsed   bool `json:"context_used"`
			WebSearchUsed bool `json:"web_search_used"`
		} `json:"metadata"`
		Text  string `json:"text"`
		Done  bool   `json:"done"`
		Error string `json:"error"`
	}

	var chunks []chunk
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		if strings.TrimSpace(scanner.Text()) == "" {
			continue
		}
		var c chunk
		if err := json.Unmarshal(scanner.Bytes(), &c); err != nil {
			t.Fatalf("failed to parse NDJSON line %q: %v", scanner.Text(), err)
		}
		chunks = append(chunks, c)
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("reading stream: %v", err)
	}

	if len(chunks) < 3 {
		t.Fatalf("expected metadata, text, and done chunks, got %d chunks", len(chunks))
	}
	if chunks[0].Metadata == nil {
		t.Fatal("first chunk must carry metadata")
	}
	last := chunks[len(chunks)-1]
	if !last.Done || last.Error != "" {
		t.Fatalf("expected a clean terminal chunk, got %+v", last)
	}

	var answer strings.Builder
	for _, c := range chunks[1 : len(chunks)-1] {
		answer.WriteString(c.Text)
	}
	if !strings.Contains(answer.String(), "Photosynthesis") {
		t.Fatalf("assembled answer %q does not match the model output", answer.String())
	}
}

func TestE2E_CanvasCourseLifecycle(t *testing.T) {
	env := SetupTestEnv(t)
	defer env.Cleanup()

	env.Canvas.AddCourse(
		fakeCourse{ID: 301, Name: "Cell Biology"},
		fakeFile{ID: 9001, DisplayName: "lecture-01.txt", ContentType: "text/plain", Content: studyNotes},
		fakeFile{ID: 9002, DisplayName: "lecture-02.txt", ContentType: "text/plain", Content: "Mitochondria produce ATP through cellular respiration."},
	)

	status, raw := env.PostJSON("/api/canvas/sync", nil)
	if status != http.StatusOK {
		t.Fatalf("canvas sync returned %d: %s", status, raw)
	}
	var syncResult map[string]int
	env.UnwrapData(raw, &syncResult)
	if syncResult["courses_created"] != 1 {
		t.Fatalf("courses_created = %d, want 1", syncResult["courses_created"])
	}

	status, raw = env.Get("/api/courses")
	if status != http.StatusOK {
		t.Fatalf("list courses returned %d: %s", status, raw)
	}
	var courses []courseResponse
	env.UnwrapData(raw, &courses)
	if len(courses) != 1 || courses[0].Name != "Cell Biology" || courses[0].CanvasID != "301" {
		t.Fatalf("unexpected course list: %+v", courses)
	}
	courseID := courses[0].ID

	status, raw = env.PostJSON("/api/courses/"+itoa(courseID)+"/files/sync", nil)
	if status != http.StatusOK {
		t.Fatalf("file sync returned %d: %s", status, raw)
	}
	var fileSync map[string]int
	env.UnwrapData(raw, &fileSync)
	if fileSync["modules_synced"] != 2 {
		t.Fatalf("modules_synced = %d, want 2", fileSync["modules_synced"])
	}

	// One worker pass downloads and ingests every pending module.
	if err := env.Ingestion.ProcessJobs(env.Ctx); err != nil {
		t.Fatalf("ingestion pass failed: %v", err)
	}

	status, raw = env.Get("/api/courses/" + itoa(courseID) + "/modules")
	if status != http.StatusOK {
		t.Fatalf("list modules returned %d: %s", status, raw)
	}
	var modules []moduleResponse
	env.UnwrapData(raw, &modules)
	if len(modules) != 2 {
		t.Fatalf("expected 2 modules, got %d", len(modules))
	}
	for _, m := range modules {
		if !m.Downloaded || !m.Ingested {
			t.Fatalf("module %q was not ingested: %+v", m.Name, m)
		}
	}

	materials := env.Supermemory.Docs(supermemory.ContainerCourseMaterials)
	if len(materials) != 2 {
		t.Fatalf("expected 2 course materials in the index, got %d", len(materials))
	}

	status, raw = env.Get("/api/courses")
	if status != http.StatusOK {
		t.Fatalf("list courses returned %d: %s", status, raw)
	}
	env.UnwrapData(raw, &courses)
	if courses[0].Progress != 100 || courses[0].TotalModules != 2 {
		t.Fatalf("expected 100%% progress over 2 modules, got %+v", courses[0])
	}

	// Completion and study paths round-trip through the API.
	moduleID := modules[0].ID
	status, raw = env.PostJSON("/api/modules/"+itoa(moduleID)+"/complete", map[string]bool{"completed": true})
	if status != http.StatusOK {
		t.Fatalf("complete module returned %d: %s", status, raw)
	}
	var completed moduleResponse
	env.UnwrapData(raw, &completed)
	if !completed.Completed {
		t.Fatalf("module not marked completed: %+v", completed)
	}

	studyPath := `[{"topic":"Photosynthesis","order":1},{"topic":"Respiration","order":2}]`
	req, err := http.NewRequest(http.MethodPut, env.ServerURL+"/api/modules/"+itoa(moduleID)+"/study-path",
		strings.NewReader(`{"study_path":`+studyPath+`}`))
	if err != nil {
		t.Fatalf("failed to build study path request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := env.HTTPClient.Do(req)
	if err != nil {
		t.Fatalf("set study path failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("set study path returned %d", resp.StatusCode)
	}

	stored, err := env.ModuleRepo.GetByID(env.Ctx, moduleID)
	if err != nil {
		t.Fatalf("failed to load module: %v", err)
	}
	if stored.StudyPathJSON != studyPath {
		t.Fatalf("study path not persisted: %q", stored.StudyPathJSON)
	}

	// Re-syncing unchanged files creates nothing new.
	status, raw = env.PostJSON("/api/courses/"+itoa(courseID)+"/files/sync", nil)
	if status != http.StatusOK {
		t.Fatalf("second file sync returned %d: %s", status, raw)
	}
	env.UnwrapData(raw, &fileSync)
	if fileSync["modules_synced"] != 2 {
		t.Fatalf("second sync modules_synced = %d, want 2", fileSync["modules_synced"])
	}
	status, raw = env.Get("/api/courses/" + itoa(courseID) + "/modules")
	if status != http.StatusOK {
		t.Fatalf("list modules returned %d: %s", status, raw)
	}
	env.UnwrapData(raw, &modules)
	if len(modules) != 2 {
		t.Fatalf("re-sync duplicated modules: got %d", len(modules))
	}
}

func itoa(v int64) string {
	return strconv.FormatInt(v, 10)
}
