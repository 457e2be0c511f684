package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wallau/shop-api/internal/model"
)

// AiJobRepository persists ProductAiJob rows. All status-changing writes are
// guarded conditional updates (`WHERE status <> 'SUCCESS'`): a job that has
// reached SUCCESS is locked, and the affected-row count tells the caller
// whether the write took. The guard is atomic at the row level, so no
// additional locking is needed even when a retry races the original
// processing task.
type AiJobRepository interface {
	Create(ctx context.Context, job *model.ProductAiJob) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.ProductAiJob, error)
	ListOpen(ctx context.Context) ([]model.ProductAiJob, error)
	Delete(ctx context.Context, id uuid.UUID) error
	MarkProcessing(ctx context.Context, id uuid.UUID) (bool, error)
	MarkSuccess(ctx context.Context, id uuid.UUID, displayName, description string, tags []string) (bool, error)
	MarkFailed(ctx context.Context, id uuid.UUID, errorMessage string) (bool, error)
}

type pgAiJobRepo struct{ pool *pgxpool.Pool }

func NewAiJobRepository(pool *pgxpool.Pool) AiJobRepository {
	return &pgAiJobRepo{pool: pool}
}

const aiJobColumns = `id, product_id, image_paths, price, status,
	result_display_name, result_description, result_tags, error_message,
	created_at, updated_at`

func (r *pgAiJobRepo) Create(ctx context.Context, job *model.ProductAiJob) error {
	job.ID = uuid.New()
	err := r.pool.QueryRow(ctx,
		`INSERT INTO product_ai_jobs (id, product_id, image_paths, price, status,
			result_display_name, result_description, result_tags, error_message, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW())
		 RETURNING created_at, updated_at`,
		job.ID, job.ProductID, job.ImagePaths, job.Price, job.Status,
		job.ResultDisplayName, job.ResultDescription, job.ResultTags, job.ErrorMessage,
	).Scan(&job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert ai job: %w", err)
	}
	return nil
}

func (r *pgAiJobRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.ProductAiJob, error) {
	job := &model.ProductAiJob{}
	err := r.pool.QueryRow(ctx,
		`SELECT `+aiJobColumns+` FROM product_ai_jobs WHERE id = $1`, id,
	).Scan(&job.ID, &job.ProductID, &job.ImagePaths, &job.Price, &job.Status,
		&job.ResultDisplayName, &job.ResultDescription, &job.ResultTags, &job.ErrorMessage,
		&job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get ai job: %w", err)
	}
	return job, nil
}

// ListOpen returns jobs not yet attached to a product, oldest first, so the
// admin UI can restore its review queue after a reload.
func (r *pgAiJobRepo) ListOpen(ctx context.Context) ([]model.ProductAiJob, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+aiJobColumns+` FROM product_ai_jobs WHERE product_id IS NULL ORDER BY created_at ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list open ai jobs: %w", err)
	}
	defer rows.Close()

	var jobs []model.ProductAiJob
	for rows.Next() {
		var job model.ProductAiJob
		if err := rows.Scan(&job.ID, &job.ProductID, &job.ImagePaths, &job.Price, &job.Status,
			&job.ResultDisplayName, &job.ResultDescription, &job.ResultTags, &job.ErrorMessage,
			&job.CreatedAt, &job.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan ai job: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func (r *pgAiJobRepo) Delete(ctx context.Context, id uuid.UUID) error {
	ct, err := r.pool.Exec(ctx, `DELETE FROM product_ai_jobs WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete ai job: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *pgAiJobRepo) MarkProcessing(ctx context.Context, id uuid.UUID) (bool, error) {
	ct, err := r.pool.Exec(ctx,
		`UPDATE product_ai_jobs
		 SET status = $2, result_display_name = '', result_description = '',
		     result_tags = '{}', error_message = '', updated_at = NOW()
		 WHERE id = $1 AND status <> $3`,
		id, model.AiJobStatusProcessing, model.AiJobStatusSuccess,
	)
	if err != nil {
		return false, fmt.Errorf("mark processing: %w", err)
	}
	return ct.RowsAffected() > 0, nil
}

func (r *pgAiJobRepo) MarkSuccess(ctx context.Context, id uuid.UUID, displayName, description string, tags []string) (bool, error) {
	ct, err := r.pool.Exec(ctx,
		`UPDATE product_ai_jobs
		 SET status = $2, result_display_name = $3, result_description = $4,
		     result_tags = $5, error_message = '', updated_at = NOW()
		 WHERE id = $1 AND status <> $2`,
		id, model.AiJobStatusSuccess, displayName, description, tags,
	)
	if err != nil {
		return false, fmt.Errorf("mark success: %w", err)
	}
	return ct.RowsAffected() > 0, nil
}

func (r *pgAiJobRepo) MarkFailed(ctx context.Context, id uuid.UUID, errorMessage string) (bool, error) {
	ct, err := r.pool.Exec(ctx,
		`UPDATE product_ai_jobs
		 SET status = $2, error_message = $3, updated_at = NOW()
		 WHERE id = $1 AND status <> $4`,
		id, model.AiJobStatusFailed, errorMessage, model.AiJobStatusSuccess,
	)
	if err != nil {
		return false, fmt.Errorf("mark failed: %w", err)
	}
	return ct.RowsAffected() > 0, nil
}
