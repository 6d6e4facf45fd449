package service

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/studybuddy-ai/backend/internal/canvas"
	"github.com/studybuddy-ai/backend/internal/domain"
	"github.com/studybuddy-ai/backend/internal/telemetry"
)

// CourseRepositoryInterface defines the repository interface for course persistence
type CourseRepositoryInterface interface {
	Create(ctx context.Context, c *domain.Course) error
	GetByID(ctx context.Context, id int64) (*domain.Course, error)
	GetByCanvasID(ctx context.Context, canvasID string) (*domain.Course, error)
	List(ctx context.Context) ([]*domain.Course, error)
	UpdateProgress(ctx context.Context, id int64, totalModules, progress int) error
}

// ModuleRepositoryInterface defines the repository interface for module persistence
type ModuleRepositoryInterface interface {
	Create(ctx context.Context, m *domain.Module) error
	GetByID(ctx context.Context, id int64) (*domain.Module, error)
	ListByCourse(ctx context.Context, courseID int64) ([]*domain.Module, error)
	Update(ctx context.Context, m *domain.Module) error
	SetCompleted(ctx context.Context, id int64, completed bool) error
	SetStudyPath(ctx context.Context, id int64, studyPathJSON string) error
	// CountCanvasProgress counts Canvas-file-backed modules and how many of
	// them have been ingested.
	CountCanvasProgress(ctx context.Context, courseID int64) (total, ingested int, err error)
}

// CanvasClient is the LMS boundary. Satisfied by canvas.Client.
type CanvasClient interface {
	ListActiveCourses(ctx context.Context) ([]canvas.Course, error)
	ListCourseFiles(ctx context.Context, courseID string) ([]canvas.File, error)
}

// CourseService syncs courses and modules from Canvas and tracks study
// progress.
type CourseService struct {
	courseRepo CourseRepositoryInterface
	moduleRepo ModuleRepositoryInterface
	canvas     CanvasClient
}

// NewCourseService creates a CourseService. canvasClient may be nil; then the
// sync operations report the service as not configured.
func NewCourseService(courseRepo CourseRepositoryInterface, moduleRepo ModuleRepositoryInterface, canvasClient CanvasClient) *CourseService {
	return &CourseService{
		courseRepo: courseRepo,
		moduleRepo: moduleRepo,
		canvas:     canvasClient,
	}
}

// SyncCanvasCourses upserts the user's active Canvas enrollments into the
// local store. Returns how many new courses were created.
func (s *CourseService) SyncCanvasCourses(ctx context.Context) (int, error) {
	if s.canvas == nil {
		return 0, domain.ErrCanvasNotConfigured
	}

	ctx, span := telemetry.StartSpan(ctx, "CourseService.SyncCanvasCourses", telemetry.SpanAttributes{
		Operation: "sync_courses",
	})
	defer span.End()

	courses, err := s.canvas.ListActiveCourses(ctx)
	if err != nil {
		return 0, domain.NewDomainErrorWithCause(domain.ErrCodeUpstreamFailed, "fetching canvas courses", err)
	}

	created := 0
	for _, c := range courses {
		if c.Name == "" {
			continue
		}
		canvasID := strconv.FormatInt(c.ID, 10)

		_, err := s.courseRepo.GetByCanvasID(ctx, canvasID)
		if err == nil {
			continue
		}
		if !errors.Is(err, domain.ErrCourseNotFound) {
			return created, err
		}

		now := time.Now().UTC()
		course := &domain.Course{
			Name:      c.Name,
			CanvasID:  canvasID,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := s.courseRepo.Create(ctx, course); err != nil {
			return created, err
		}
		created++
	}
	return created, nil
}

// SyncCourseFiles syncs the course's module rows against its Canvas files:
// new files become modules, renamed or re-uploaded files update in place. A
// changed file URL resets the download and ingestion state so the worker
// re-processes the new revision.
func (s *CourseService) SyncCourseFiles(ctx context.Context, courseID int64) (int, error) {
	if s.canvas == nil {
		return 0, domain.ErrCanvasNotConfigured
	}

	ctx, span := telemetry.StartSpan(ctx, "CourseService.SyncCourseFiles", telemetry.SpanAttributes{
		CourseID:  strconv.FormatInt(courseID, 10),
		Operation: "sync_files",
	})
	defer span.End()

	course, err := s.courseRepo.GetByID(ctx, courseID)
	if err != nil {
		return 0, err
	}
	if course.CanvasID == "" {
		return 0, domain.NewDomainError(domain.ErrCodeValidation, "course is not linked to Canvas")
	}

	files, err := s.canvas.ListCourseFiles(ctx, course.CanvasID)
	if err != nil {
		return 0, domain.NewDomainErrorWithCause(domain.ErrCodeUpstreamFailed, "fetching canvas files", err)
	}

	existing, err := s.moduleRepo.ListByCourse(ctx, courseID)
	if err != nil {
		return 0, err
	}
	byFileID := make(map[string]*domain.Module, len(existing))
	for _, m := range existing {
		if m.HasCanvasFile() {
			byFileID[m.CanvasFileID] = m
		}
	}

	synced := 0
	for _, f := range files {
		if f.ID == 0 || f.DisplayName == "" || f.URL == "" {
			continue
		}
		fileID := strconv.FormatInt(f.ID, 10)

		if module, ok := byFileID[fileID]; ok {
			if module.Name == f.DisplayName && module.FileURL == f.URL {
				synced++
				continue
			}
			module.Name = f.DisplayName
			if module.FileURL != f.URL {
				module.FileURL = f.URL
				module.ContentType = f.ContentType
				module.Downloaded = false
				module.Ingested = false
				module.IngestAttempts = 0
				module.LastError = ""
			}
			if err := s.moduleRepo.Update(ctx, module); err != nil {
				return synced, err
			}
			synced++
			continue
		}

		now := time.Now().UTC()
		module := &domain.Module{
			CourseID:     courseID,
			Name:         f.DisplayName,
			CanvasFileID: fileID,
			FileURL:      f.URL,
			ContentType:  f.ContentType,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := s.moduleRepo.Create(ctx, module); err != nil {
			return synced, err
		}
		synced++
	}

	if err := s.RecomputeProgress(ctx, courseID); err != nil {
		return synced, err
	}
	return synced, nil
}

// ListCourses returns all locally stored courses.
func (s *CourseService) ListCourses(ctx context.Context) ([]*domain.Course, error) {
	return s.courseRepo.List(ctx)
}

// ListModules returns the course's modules.
func (s *CourseService) ListModules(ctx context.Context, courseID int64) ([]*domain.Module, error) {
	if _, err := s.courseRepo.GetByID(ctx, courseID); err != nil {
		return nil, err
	}
	return s.moduleRepo.ListByCourse(ctx, courseID)
}

// SetModuleCompleted toggles a module's user-facing completion flag.
func (s *CourseService) SetModuleCompleted(ctx context.Context, moduleID int64, completed bool) (*domain.Module, error) {
	module, err := s.moduleRepo.GetByID(ctx, moduleID)
	if err != nil {
		return nil, err
	}
	if err := s.moduleRepo.SetCompleted(ctx, moduleID, completed); err != nil {
		return nil, err
	}
	module.Completed = completed
	return module, nil
}

// SetStudyPath persists a generated study path for the module.
func (s *CourseService) SetStudyPath(ctx context.Context, moduleID int64, studyPathJSON string) error {
	if !json.Valid([]byte(studyPathJSON)) {
		return domain.ErrInvalidStudyPathJSON
	}
	if _, err := s.moduleRepo.GetByID(ctx, moduleID); err != nil {
		return err
	}
	return s.moduleRepo.SetStudyPath(ctx, moduleID, studyPathJSON)
}

// RecomputeProgress recalculates course progress from module ingestion state:
// only Canvas-file-backed modules count, and a module counts as done once its
// text is in the retrieval index.
func (s *CourseService) RecomputeProgress(ctx context.Context, courseID int64) error {
	total, ingested, err := s.moduleRepo.CountCanvasProgress(ctx, courseID)
	if err != nil {
		return err
	}
	progress := 0
	if total > 0 {
		progress = ingested * 100 / total
	}
	return s.courseRepo.UpdateProgress(ctx, courseID, total, progress)
}
