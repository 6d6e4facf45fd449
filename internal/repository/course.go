package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/studybuddy-ai/backend/internal/domain"
)

type CourseRepository struct {
	pool *pgxpool.Pool
}

func NewCourseRepository(pool *pgxpool.Pool) *CourseRepository {
	return &CourseRepository{pool: pool}
}

func (r *CourseRepository) Create(ctx context.Context, c *domain.Course) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO courses (name, canvas_id, progress, total_modules, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id`,
		c.Name, nullableString(c.CanvasID), c.Progress, c.TotalModules, c.CreatedAt, c.UpdatedAt,
	).Scan(&c.ID)
}

func (r *CourseRepository) GetByID(ctx context.Context, id int64) (*domain.Course, error) {
	return r.scanOne(r.pool.QueryRow(ctx,
		`SELECT id, name, canvas_id, progress, total_modules, created_at, updated_at
		 FROM courses WHERE id = $1`,
		id,
	))
}

func (r *CourseRepository) GetByCanvasID(ctx context.Context, canvasID string) (*domain.Course, error) {
	return r.scanOne(r.pool.QueryRow(ctx,
		`SELECT id, name, canvas_id, progress, total_modules, created_at, updated_at
		 FROM courses WHERE canvas_id = $1`,
		canvasID,
	))
}

func (r *CourseRepository) List(ctx context.Context) ([]*domain.Course, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, name, canvas_id, progress, total_modules, created_at, updated_at
		 FROM courses ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var courses []*domain.Course
	for rows.Next() {
		c, err := r.scanOne(rows)
		if err != nil {
			return nil, err
		}
		courses = append(courses, c)
	}
	return courses, rows.Err()
}

func (r *CourseRepository) UpdateProgress(ctx context.Context, id int64, totalModules, progress int) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE courses SET total_modules = $1, progress = $2, updated_at = $3 WHERE id = $4`,
		totalModules, progress, time.Now().UTC(), id,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrCourseNotFound
	}
	return nil
}

func (r *CourseRepository) scanOne(row pgx.Row) (*domain.Course, error) {
	var c domain.Course
	var canvasID *string
	err := row.Scan(&c.ID, &c.Name, &canvasID, &c.Progress, &c.TotalModules, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrCourseNotFound
		}
		return nil, err
	}
	if canvasID != nil {
		c.CanvasID = *canvasID
	}
	return &c, nil
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
