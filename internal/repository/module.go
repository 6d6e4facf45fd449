package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/studybuddy-ai/backend/internal/domain"
)

type ModuleRepository struct {
	pool *pgxpool.Pool
}

func NewModuleRepository(pool *pgxpool.Pool) *ModuleRepository {
	return &ModuleRepository{pool: pool}
}

const moduleColumns = `id, course_id, name, completed, canvas_file_id, file_url, content_type,
	downloaded, ingested, ingest_attempts, last_error, study_path, created_at, updated_at`

func (r *ModuleRepository) Create(ctx context.Context, m *domain.Module) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO modules (course_id, name, completed, canvas_file_id, file_url, content_type,
		   downloaded, ingested, ingest_attempts, last_error, study_path, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		 RETURNING id`,
		m.CourseID, m.Name, m.Completed, nullableString(m.CanvasFileID), nullableString(m.FileURL),
		nullableString(m.ContentType), m.Downloaded, m.Ingested, m.IngestAttempts,
		nullableString(m.LastError), nullableString(m.StudyPathJSON), m.CreatedAt, m.UpdatedAt,
	).Scan(&m.ID)
}

func (r *ModuleRepository) GetByID(ctx context.Context, id int64) (*domain.Module, error) {
	return r.scanOne(r.pool.QueryRow(ctx,
		`SELECT `+moduleColumns+` FROM modules WHERE id = $1`, id))
}

func (r *ModuleRepository) ListByCourse(ctx context.Context, courseID int64) ([]*domain.Module, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+moduleColumns+` FROM modules WHERE course_id = $1 ORDER BY id`, courseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var modules []*domain.Module
	for rows.Next() {
		m, err := r.scanOne(rows)
		if err != nil {
			return nil, err
		}
		modules = append(modules, m)
	}
	return modules, rows.Err()
}

// ListPendingIngestion returns Canvas-backed modules whose files still need to
// be pulled into the retrieval index, oldest first.
func (r *ModuleRepository) ListPendingIngestion(ctx context.Context, limit int) ([]*domain.Module, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+moduleColumns+`
		 FROM modules
		 WHERE canvas_file_id IS NOT NULL
		   AND ingested = FALSE
		   AND ingest_attempts < $1
		 ORDER BY updated_at
		 LIMIT $2`,
		domain.MaxIngestAttempts, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var modules []*domain.Module
	for rows.Next() {
		m, err := r.scanOne(rows)
		if err != nil {
			return nil, err
		}
		modules = append(modules, m)
	}
	return modules, rows.Err()
}

func (r *ModuleRepository) Update(ctx context.Context, m *domain.Module) error {
	m.UpdatedAt = time.Now().UTC()
	tag, err := r.pool.Exec(ctx,
		`UPDATE modules SET
		   name = $1, completed = $2, canvas_file_id = $3, file_url = $4, content_type = $5,
		   downloaded = $6, ingested = $7, ingest_attempts = $8, last_error = $9,
		   study_path = $10, updated_at = $11
		 WHERE id = $12`,
		m.Name, m.Completed, nullableString(m.CanvasFileID), nullableString(m.FileURL),
		nullableString(m.ContentType), m.Downloaded, m.Ingested, m.IngestAttempts,
		nullableString(m.LastError), nullableString(m.StudyPathJSON), m.UpdatedAt, m.ID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrModuleNotFound
	}
	return nil
}

func (r *ModuleRepository) SetCompleted(ctx context.Context, id int64, completed bool) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE modules SET completed = $1, updated_at = $2 WHERE id = $3`,
		completed, time.Now().UTC(), id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrModuleNotFound
	}
	return nil
}

func (r *ModuleRepository) SetStudyPath(ctx context.Context, id int64, studyPathJSON string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE modules SET study_path = $1, updated_at = $2 WHERE id = $3`,
		studyPathJSON, time.Now().UTC(), id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrModuleNotFound
	}
	return nil
}

func (r *ModuleRepository) CountCanvasProgress(ctx context.Context, courseID int64) (int, int, error) {
	var total, ingested int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*), COUNT(*) FILTER (WHERE ingested)
		 FROM modules
		 WHERE course_id = $1 AND canvas_file_id IS NOT NULL`,
		courseID,
	).Scan(&total, &ingested)
	return total, ingested, err
}

func (r *ModuleRepository) scanOne(row pgx.Row) (*domain.Module, error) {
	var m domain.Module
	var canvasFileID, fileURL, contentType, lastError, studyPath *string
	err := row.Scan(&m.ID, &m.CourseID, &m.Name, &m.Completed, &canvasFileID, &fileURL, &contentType,
		&m.Downloaded, &m.Ingested, &m.IngestAttempts, &lastError, &studyPath, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrModuleNotFound
		}
		return nil, err
	}
	if canvasFileID != nil {
		m.CanvasFileID = *canvasFileID
	}
	if fileURL != nil {
		m.FileURL = *fileURL
	}
	if contentType != nil {
		m.ContentType = *contentType
	}
	if lastError != nil {
		m.LastError = *lastError
	}
	if studyPath != nil {
		m.StudyPathJSON = *studyPath
	}
	return &m, nil
}
