//go:build integration

package repository

import (
	"context"
	"testing"
	"time"

	"github.com/studybuddy-ai/backend/internal/domain"
	"github.com/studybuddy-ai/backend/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newModule(courseID int64, name, fileID string) *domain.Module {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &domain.Module{
		CourseID:     courseID,
		Name:         name,
		CanvasFileID: fileID,
		FileURL:      "https://canvas.example.com/files/" + fileID,
		ContentType:  "application/pdf",
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func TestModuleRepository_Lifecycle(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)
	pool := testutil.NewTestPool(ctx, t, pc, migrationsDir)
	defer pool.Close()

	courseRepo := NewCourseRepository(pool)
	repo := NewModuleRepository(pool)

	course := newCourse("Operating Systems", "301")
	require.NoError(t, courseRepo.Create(ctx, course))

	module := newModule(course.ID, "week1.pdf", "7001")
	require.NoError(t, repo.Create(ctx, module))
	require.NotZero(t, module.ID)

	got, err := repo.GetByID(ctx, module.ID)
	require.NoError(t, err)
	assert.Equal(t, "week1.pdf", got.Name)
	assert.Equal(t, "7001", got.CanvasFileID)
	assert.False(t, got.Ingested)

	got.Downloaded = true
	got.Ingested = true
	require.NoError(t, repo.Update(ctx, got))

	updated, err := repo.GetByID(ctx, module.ID)
	require.NoError(t, err)
	assert.True(t, updated.Downloaded)
	assert.True(t, updated.Ingested)

	require.NoError(t, repo.SetCompleted(ctx, module.ID, true))
	require.NoError(t, repo.SetStudyPath(ctx, module.ID, `[{"id":1,"title":"Processes"}]`))

	final, err := repo.GetByID(ctx, module.ID)
	require.NoError(t, err)
	assert.True(t, final.Completed)
	assert.Contains(t, final.StudyPathJSON, "Processes")
}

func TestModuleRepository_PendingIngestionAndProgress(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)
	pool := testutil.NewTestPool(ctx, t, pc, migrationsDir)
	defer pool.Close()

	courseRepo := NewCourseRepository(pool)
	repo := NewModuleRepository(pool)

	course := newCourse("Compilers", "401")
	require.NoError(t, courseRepo.Create(ctx, course))

	pending := newModule(course.ID, "lexing.pdf", "8001")
	require.NoError(t, repo.Create(ctx, pending))

	done := newModule(course.ID, "parsing.pdf", "8002")
	done.Ingested = true
	require.NoError(t, repo.Create(ctx, done))

	exhausted := newModule(course.ID, "codegen.pdf", "8003")
	exhausted.IngestAttempts = domain.MaxIngestAttempts
	require.NoError(t, repo.Create(ctx, exhausted))

	// no Canvas file attached, never eligible
	manual := &domain.Module{CourseID: course.ID, Name: "notes",
		CreatedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC()}
	require.NoError(t, repo.Create(ctx, manual))

	eligible, err := repo.ListPendingIngestion(ctx, 10)
	require.NoError(t, err)
	require.Len(t, eligible, 1)
	assert.Equal(t, pending.ID, eligible[0].ID)

	total, ingested, err := repo.CountCanvasProgress(ctx, course.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Equal(t, 1, ingested)
}

func TestModuleRepository_MissingRows(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)
	pool := testutil.NewTestPool(ctx, t, pc, migrationsDir)
	defer pool.Close()

	repo := NewModuleRepository(pool)

	_, err := repo.GetByID(ctx, 12345)
	assert.ErrorIs(t, err, domain.ErrModuleNotFound)
	assert.ErrorIs(t, repo.SetCompleted(ctx, 12345, true), domain.ErrModuleNotFound)
	assert.ErrorIs(t, repo.SetStudyPath(ctx, 12345, "[]"), domain.ErrModuleNotFound)
}
