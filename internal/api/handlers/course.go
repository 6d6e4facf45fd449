package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/studybuddy-ai/backend/internal/api"
	"github.com/studybuddy-ai/backend/internal/domain"
)

// CourseService is the course and module management boundary.
type CourseService interface {
	SyncCanvasCourses(ctx context.Context) (int, error)
	SyncCourseFiles(ctx context.Context, courseID int64) (int, error)
	ListCourses(ctx context.Context) ([]*domain.Course, error)
	ListModules(ctx context.Context, courseID int64) ([]*domain.Module, error)
	SetModuleCompleted(ctx context.Context, moduleID int64, completed bool) (*domain.Module, error)
	SetStudyPath(ctx context.Context, moduleID int64, studyPathJSON string) error
}

type CourseHandler struct {
	svc CourseService
}

func NewCourseHandler(svc CourseService) *CourseHandler {
	return &CourseHandler{svc: svc}
}

type CourseResponse struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	CanvasID     string `json:"canvas_id,omitempty"`
	Progress     int    `json:"progress"`
	TotalModules int    `json:"total_modules"`
	CreatedAt    string `json:"created_at"`
	UpdatedAt    string `json:"updated_at"`
}

type ModuleResponse struct {
	ID           int64  `json:"id"`
	CourseID     int64  `json:"course_id"`
	Name         string `json:"name"`
	Completed    bool   `json:"completed"`
	CanvasFileID string `json:"canvas_file_id,omitempty"`
	FileURL      string `json:"file_url,omitempty"`
	ContentType  string `json:"content_type,omitempty"`
	Downloaded   bool   `json:"downloaded"`
	Ingested     bool   `json:"ingested"`
	LastError    string `json:"last_error,omitempty"`
	StudyPath    string `json:"study_path,omitempty"`
	CreatedAt    string `json:"created_at"`
	UpdatedAt    string `json:"updated_at"`
}

func courseToResponse(c *domain.Course) *CourseResponse {
	return &CourseResponse{
		ID:           c.ID,
		Name:         c.Name,
		CanvasID:     c.CanvasID,
		Progress:     c.Progress,
		TotalModules: c.TotalModules,
		CreatedAt:    c.CreatedAt.Format(time.RFC3339),
		UpdatedAt:    c.UpdatedAt.Format(time.RFC3339),
	}
}

func moduleToResponse(m *domain.Module) *ModuleResponse {
	return &ModuleResponse{
		ID:           m.ID,
		CourseID:     m.CourseID,
		Name:         m.Name,
		Completed:    m.Completed,
		CanvasFileID: m.CanvasFileID,
		FileURL:      m.FileURL,
		ContentType:  m.ContentType,
		Downloaded:   m.Downloaded,
		Ingested:     m.Ingested,
		LastError:    m.LastError,
		StudyPath:    m.StudyPathJSON,
		CreatedAt:    m.CreatedAt.Format(time.RFC3339),
		UpdatedAt:    m.UpdatedAt.Format(time.RFC3339),
	}
}

// SyncCanvas upserts the user's active Canvas courses.
func (h *CourseHandler) SyncCanvas(w http.ResponseWriter, r *http.Request) {
	created, err := h.svc.SyncCanvasCourses(r.Context())
	if err != nil {
		api.HandleError(w, err)
		return
	}
	api.Success(w, http.StatusOK, map[string]int{"courses_created": created})
}

// SyncFiles syncs one course's module list from its Canvas files.
func (h *CourseHandler) SyncFiles(w http.ResponseWriter, r *http.Request) {
	courseID, ok := parseID(w, r, "id")
	if !ok {
		return
	}

	synced, err := h.svc.SyncCourseFiles(r.Context(), courseID)
	if err != nil {
		api.HandleError(w, err)
		return
	}
	api.Success(w, http.StatusOK, map[string]int{"modules_synced": synced})
}

func (h *CourseHandler) List(w http.ResponseWriter, r *http.Request) {
	courses, err := h.svc.ListCourses(r.Context())
	if err != nil {
		api.HandleError(w, err)
		return
	}

	resp := make([]*CourseResponse, 0, len(courses))
	for _, c := range courses {
		resp = append(resp, courseToResponse(c))
	}
	api.Success(w, http.StatusOK, resp)
}

func (h *CourseHandler) ListModules(w http.ResponseWriter, r *http.Request) {
	courseID, ok := parseID(w, r, "id")
	if !ok {
		return
	}

	modules, err := h.svc.ListModules(r.Context(), courseID)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	resp := make([]*ModuleResponse, 0, len(modules))
	for _, m := range modules {
		resp = append(resp, moduleToResponse(m))
	}
	api.Success(w, http.StatusOK, resp)
}

type CompleteModuleRequest struct {
	Completed *bool `json:"completed"`
}

// CompleteModule sets a module's completion flag. An empty body marks it done.
func (h *CourseHandler) CompleteModule(w http.ResponseWriter, r *http.Request) {
	moduleID, ok := parseID(w, r, "id")
	if !ok {
		return
	}

	completed := true
	var req CompleteModuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err == nil && req.Completed != nil {
		completed = *req.Completed
	}

	module, err := h.svc.SetModuleCompleted(r.Context(), moduleID, completed)
	if err != nil {
		api.HandleError(w, err)
		return
	}
	api.Success(w, http.StatusOK, moduleToResponse(module))
}

type StudyPathRequest struct {
	StudyPath json.RawMessage `json:"study_path"`
}

// SetStudyPath persists a generated study path for the module.
func (h *CourseHandler) SetStudyPath(w http.ResponseWriter, r *http.Request) {
	moduleID, ok := parseID(w, r, "id")
	if !ok {
		return
	}

	var req StudyPathRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.StudyPath) == 0 {
		api.Error(w, http.StatusBadRequest, "study_path is required")
		return
	}

	if err := h.svc.SetStudyPath(r.Context(), moduleID, string(req.StudyPath)); err != nil {
		api.HandleError(w, err)
		return
	}
	api.Success(w, http.StatusOK, map[string]bool{"updated": true})
}

func parseID(w http.ResponseWriter, r *http.Request, param string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, param), 10, 64)
	if err != nil || id <= 0 {
		api.Error(w, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return id, true
}
