package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/hireman/internal/model"
)

// PostgresJobRepo はPostgreSQLを使用した求人リポジトリ。
type PostgresJobRepo struct {
	db *sql.DB
}

// NewPostgresJobRepo はPostgresJobRepoを生成する。
func NewPostgresJobRepo(db *sql.DB) *PostgresJobRepo {
	return &PostgresJobRepo{db: db}
}

// FindByID は指定IDの求人を取得する。見つからない場合はnilを返す。
func (r *PostgresJobRepo) FindByID(ctx context.Context, id string) (*model.Job, error) {
	job := &model.Job{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, title, description, location, accepting, created_at, updated_at
		 FROM jobs WHERE id = $1`,
		id,
	).Scan(
		&job.ID, &job.Title, &job.Description, &job.Location,
		&job.Accepting, &job.CreatedAt, &job.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("求人の取得に失敗しました: %w", err)
	}
	return job, nil
}

// Create は求人を作成する。
func (r *PostgresJobRepo) Create(ctx context.Context, job *model.Job) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO jobs (id, title, description, location, accepting, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		job.ID, job.Title, job.Description, job.Location,
		job.Accepting, job.CreatedAt, job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("求人の作成に失敗しました: %w", err)
	}
	return nil
}

// List は求人一覧をcreated_at降順で返す。
func (r *PostgresJobRepo) List(ctx context.Context, limit int) ([]*model.Job, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, title, description, location, accepting, created_at, updated_at
		 FROM jobs
		 ORDER BY created_at DESC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("求人一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var jobs []*model.Job
	for rows.Next() {
		job := &model.Job{}
		if err := rows.Scan(
			&job.ID, &job.Title, &job.Description, &job.Location,
			&job.Accepting, &job.CreatedAt, &job.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("求人行の読み取りに失敗しました: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("求人一覧の走査に失敗しました: %w", err)
	}

	return jobs, nil
}

// Deactivate は求人の応募受付フラグをfalseにする。
// すでに停止済みの場合も成功として扱う冪等な操作。
func (r *PostgresJobRepo) Deactivate(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE jobs SET accepting = FALSE, updated_at = $2
		 WHERE id = $1 AND accepting = TRUE`,
		id, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("求人の停止に失敗しました: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("更新行数の取得に失敗しました: %w", err)
	}

	if affected == 0 {
		// すでに停止済みなら冪等な成功、行自体がなければErrNotFound
		var exists bool
		if err := r.db.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM jobs WHERE id = $1)`,
			id,
		).Scan(&exists); err != nil {
			return fmt.Errorf("求人の存在確認に失敗しました: %w", err)
		}
		if !exists {
			return ErrNotFound
		}
	}

	return nil
}

// compile-time interface check
var _ JobRepository = (*PostgresJobRepo)(nil)
