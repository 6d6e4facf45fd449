package service

import (
	"context"
	"errors"
	"testing"

	"github.com/studybuddy-ai/backend/internal/canvas"
	"github.com/studybuddy-ai/backend/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockCourseRepository is a mock implementation of CourseRepositoryInterface
type MockCourseRepository struct {
	mock.Mock
}

func (m *MockCourseRepository) Create(ctx context.Context, c *domain.Course) error {
	args := m.Called(ctx, c)
	return args.Error(0)
}

func (m *MockCourseRepository) GetByID(ctx context.Context, id int64) (*domain.Course, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Course), args.Error(1)
}

func (m *MockCourseRepository) GetByCanvasID(ctx context.Context, canvasID string) (*domain.Course, error) {
	args := m.Called(ctx, canvasID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Course), args.Error(1)
}

func (m *MockCourseRepository) List(ctx context.Context) ([]*domain.Course, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Course), args.Error(1)
}

func (m *MockCourseRepository) UpdateProgress(ctx context.Context, id int64, totalModules, progress int) error {
	args := m.Called(ctx, id, totalModules, progress)
	return args.Error(0)
}

// MockModuleRepository is a mock implementation of ModuleRepositoryInterface
type MockModuleRepository struct {
	mock.Mock
}

func (m *MockModuleRepository) Create(ctx context.Context, mod *domain.Module) error {
	args := m.Called(ctx, mod)
	return args.Error(0)
}

func (m *MockModuleRepository) GetByID(ctx context.Context, id int64) (*domain.Module, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Module), args.Error(1)
}

func (m *MockModuleRepository) ListByCourse(ctx context.Context, courseID int64) ([]*domain.Module, error) {
	args := m.Called(ctx, courseID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Module), args.Error(1)
}

func (m *MockModuleRepository) Update(ctx context.Context, mod *domain.Module) error {
	args := m.Called(ctx, mod)
	return args.Error(0)
}

func (m *MockModuleRepository) SetCompleted(ctx context.Context, id int64, completed bool) error {
	args := m.Called(ctx, id, completed)
	return args.Error(0)
}

func (m *MockModuleRepository) SetStudyPath(ctx context.Context, id int64, studyPathJSON string) error {
	args := m.Called(ctx, id, studyPathJSON)
	return args.Error(0)
}

func (m *MockModuleRepository) CountCanvasProgress(ctx context.Context, courseID int64) (int, int, error) {
	args := m.Called(ctx, courseID)
	return args.Int(0), args.Int(1), args.Error(2)
}

// MockCanvasClient is a mock implementation of CanvasClient
type MockCanvasClient struct {
	mock.Mock
}

func (m *MockCanvasClient) ListActiveCourses(ctx context.Context) ([]canvas.Course, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]canvas.Course), args.Error(1)
}

func (m *MockCanvasClient) ListCourseFiles(ctx context.Context, courseID string) ([]canvas.File, error) {
	args := m.Called(ctx, courseID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]canvas.File), args.Error(1)
}

func TestSyncCanvasCourses_CreatesOnlyNewCourses(t *testing.T) {
	ctx := context.Background()
	courseRepo := new(MockCourseRepository)
	canvasClient := new(MockCanvasClient)
	svc := NewCourseService(courseRepo, new(MockModuleRepository), canvasClient)

	canvasClient.On("ListActiveCourses", ctx).Return([]canvas.Course{
		{ID: 101, Name: "Algorithms"},
		{ID: 102, Name: "Databases"},
		{ID: 103, Name: ""},
	}, nil)

	courseRepo.On("GetByCanvasID", ctx, "101").Return(&domain.Course{ID: 1, CanvasID: "101"}, nil)
	courseRepo.On("GetByCanvasID", ctx, "102").Return(nil, domain.ErrCourseNotFound)
	courseRepo.On("Create", ctx, mock.MatchedBy(func(c *domain.Course) bool {
		return c.Name == "Databases" && c.CanvasID == "102"
	})).Return(nil)

	created, err := svc.SyncCanvasCourses(ctx)

	require.NoError(t, err)
	assert.Equal(t, 1, created)
	courseRepo.AssertExpectations(t)
	canvasClient.AssertExpectations(t)
}

func TestSyncCanvasCourses_NilClientNotConfigured(t *testing.T) {
	svc := NewCourseService(new(MockCourseRepository), new(MockModuleRepository), nil)

	_, err := svc.SyncCanvasCourses(context.Background())

	var de *domain.DomainError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, domain.ErrCodeNotConfigured, de.Code)
}

func TestSyncCanvasCourses_CanvasFailureIsUpstreamError(t *testing.T) {
	ctx := context.Background()
	canvasClient := new(MockCanvasClient)
	canvasClient.On("ListActiveCourses", ctx).Return(nil, errors.New("401"))
	svc := NewCourseService(new(MockCourseRepository), new(MockModuleRepository), canvasClient)

	_, err := svc.SyncCanvasCourses(ctx)

	var de *domain.DomainError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, domain.ErrCodeUpstreamFailed, de.Code)
}

func TestSyncCourseFiles_CreatesAndUpdatesModules(t *testing.T) {
	ctx := context.Background()
	courseRepo := new(MockCourseRepository)
	moduleRepo := new(MockModuleRepository)
	canvasClient := new(MockCanvasClient)
	svc := NewCourseService(courseRepo, moduleRepo, canvasClient)

	courseRepo.On("GetByID", ctx, int64(1)).Return(&domain.Course{ID: 1, CanvasID: "101"}, nil)
	canvasClient.On("ListCourseFiles", ctx, "101").Return([]canvas.File{
		{ID: 7, DisplayName: "week1.pdf", URL: "https://canvas/f/7/v2", ContentType: "application/pdf"},
		{ID: 8, DisplayName: "week2.pdf", URL: "https://canvas/f/8", ContentType: "application/pdf"},
		{ID: 9, DisplayName: "", URL: "https://canvas/f/9"},
	}, nil)
	moduleRepo.On("ListByCourse", ctx, int64(1)).Return([]*domain.Module{
		{ID: 20, CourseID: 1, Name: "week1.pdf", CanvasFileID: "7", FileURL: "https://canvas/f/7/v1",
			Downloaded: true, Ingested: true, IngestAttempts: 2},
	}, nil)

	// re-uploaded file: new URL resets download and ingestion state
	moduleRepo.On("Update", ctx, mock.MatchedBy(func(m *domain.Module) bool {
		return m.ID == 20 && m.FileURL == "https://canvas/f/7/v2" &&
			!m.Downloaded && !m.Ingested && m.IngestAttempts == 0
	})).Return(nil)
	moduleRepo.On("Create", ctx, mock.MatchedBy(func(m *domain.Module) bool {
		return m.CourseID == 1 && m.CanvasFileID == "8" && m.Name == "week2.pdf"
	})).Return(nil)
	moduleRepo.On("CountCanvasProgress", ctx, int64(1)).Return(2, 0, nil)
	courseRepo.On("UpdateProgress", ctx, int64(1), 2, 0).Return(nil)

	synced, err := svc.SyncCourseFiles(ctx, 1)

	require.NoError(t, err)
	assert.Equal(t, 2, synced)
	moduleRepo.AssertExpectations(t)
}

func TestSyncCourseFiles_UnlinkedCourseRejected(t *testing.T) {
	ctx := context.Background()
	courseRepo := new(MockCourseRepository)
	courseRepo.On("GetByID", ctx, int64(3)).Return(&domain.Course{ID: 3}, nil)
	svc := NewCourseService(courseRepo, new(MockModuleRepository), new(MockCanvasClient))

	_, err := svc.SyncCourseFiles(ctx, 3)

	var de *domain.DomainError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, domain.ErrCodeValidation, de.Code)
}

func TestSetStudyPath_RejectsInvalidJSON(t *testing.T) {
	svc := NewCourseService(new(MockCourseRepository), new(MockModuleRepository), nil)

	err := svc.SetStudyPath(context.Background(), 1, "{not json")

	assert.ErrorIs(t, err, domain.ErrInvalidStudyPathJSON)
}

func TestSetStudyPath_Persists(t *testing.T) {
	ctx := context.Background()
	moduleRepo := new(MockModuleRepository)
	moduleRepo.On("GetByID", ctx, int64(5)).Return(&domain.Module{ID: 5}, nil)
	moduleRepo.On("SetStudyPath", ctx, int64(5), `[{"id":1}]`).Return(nil)
	svc := NewCourseService(new(MockCourseRepository), moduleRepo, nil)

	err := svc.SetStudyPath(ctx, 5, `[{"id":1}]`)

	require.NoError(t, err)
	moduleRepo.AssertExpectations(t)
}

func TestSetModuleCompleted(t *testing.T) {
	ctx := context.Background()
	moduleRepo := new(MockModuleRepository)
	moduleRepo.On("GetByID", ctx, int64(9)).Return(&domain.Module{ID: 9}, nil)
	moduleRepo.On("SetCompleted", ctx, int64(9), true).Return(nil)
	svc := NewCourseService(new(MockCourseRepository), moduleRepo, nil)

	module, err := svc.SetModuleCompleted(ctx, 9, true)

	require.NoError(t, err)
	assert.True(t, module.Completed)
}

func TestRecomputeProgress(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name             string
		total, ingested  int
		expectedProgress int
	}{
		{"no canvas modules", 0, 0, 0},
		{"half ingested", 4, 2, 50},
		{"all ingested", 3, 3, 100},
		{"rounds down", 3, 2, 66},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			courseRepo := new(MockCourseRepository)
			moduleRepo := new(MockModuleRepository)
			moduleRepo.On("CountCanvasProgress", ctx, int64(1)).Return(tt.total, tt.ingested, nil)
			courseRepo.On("UpdateProgress", ctx, int64(1), tt.total, tt.expectedProgress).Return(nil)

			svc := NewCourseService(courseRepo, moduleRepo, nil)
			require.NoError(t, svc.RecomputeProgress(ctx, 1))
			courseRepo.AssertExpectations(t)
		})
	}
}
