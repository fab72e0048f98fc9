package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/hireman/internal/model"
)

// PostgresApplicationRepo はPostgreSQLを使用した応募リポジトリ。
type PostgresApplicationRepo struct {
	db *sql.DB
}

// NewPostgresApplicationRepo はPostgresApplicationRepoを生成する。
func NewPostgresApplicationRepo(db *sql.DB) *PostgresApplicationRepo {
	return &PostgresApplicationRepo{db: db}
}

const applicationColumns = `id, candidate_name, candidate_email, candidate_phone, position,
       job_id, status, notes, created_at, updated_at`

// scanApplication は1行分の応募レコードを読み取る。
func scanApplication(scan func(dest ...any) error) (*model.Application, error) {
	app := &model.Application{}
	var jobID sql.NullString
	var status string

	if err := scan(
		&app.ID, &app.CandidateName, &app.CandidateEmail, &app.CandidatePhone,
		&app.Position, &jobID, &status, &app.Notes,
		&app.CreatedAt, &app.UpdatedAt,
	); err != nil {
		return nil, err
	}

	app.JobID = nullStringValue(jobID)
	app.Status = model.ApplicationStatus(status)
	return app, nil
}

// FindByID は指定IDの応募を取得する。見つからない場合はnilを返す。
func (r *PostgresApplicationRepo) FindByID(ctx context.Context, id string) (*model.Application, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+applicationColumns+` FROM applications WHERE id = $1`,
		id,
	)

	app, err := scanApplication(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("応募の取得に失敗しました: %w", err)
	}
	return app, nil
}

// FindLatestByEmail は候補者メールアドレスが完全一致する応募のうち最新の1件を返す。
// マッチングは大文字小文字を区別する完全一致で、created_at降順の先頭行を採用する。
func (r *PostgresApplicationRepo) FindLatestByEmail(ctx context.Context, email string) (*model.Application, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+applicationColumns+` FROM applications
		 WHERE candidate_email = $1
		 ORDER BY created_at DESC
		 LIMIT 1`,
		email,
	)

	app, err := scanApplication(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("メールアドレスによる応募の検索に失敗しました: %w", err)
	}
	return app, nil
}

// Create は応募を作成する。
func (r *PostgresApplicationRepo) Create(ctx context.Context, app *model.Application) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO applications (id, candidate_name, candidate_email, candidate_phone,
		                           position, job_id, status, notes, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		app.ID, app.CandidateName, app.CandidateEmail, app.CandidatePhone,
		app.Position, nullString(app.JobID), string(app.Status), app.Notes,
		app.CreatedAt, app.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("応募の作成に失敗しました: %w", err)
	}
	return nil
}

// List は応募一覧をcreated_at降順で返す。
func (r *PostgresApplicationRepo) List(ctx context.Context, limit int) ([]*model.Application, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+applicationColumns+` FROM applications
		 ORDER BY created_at DESC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("応募一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var apps []*model.Application
	for rows.Next() {
		app, err := scanApplication(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("応募行の読み取りに失敗しました: %w", err)
		}
		apps = append(apps, app)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("応募一覧の走査に失敗しました: %w", err)
	}

	return apps, nil
}

// UpdateStatus はステータスをcompare-and-setで更新し、同一トランザクションで監査履歴を追記する。
// WHERE句に現在のステータスを含めることで単一行更新を直列化ポイントとし、
// 0行更新だった場合は行の存在を確認してErrConflictとErrNotFoundを区別する。
func (r *PostgresApplicationRepo) UpdateStatus(ctx context.Context, change *model.StatusChange) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("トランザクションの開始に失敗しました: %w", err)
	}
	defer tx.Rollback()

	now := time.Now()

	result, err := tx.ExecContext(ctx,
		`UPDATE applications SET status = $3, notes = $4, updated_at = $5
		 WHERE id = $1 AND status = $2`,
		change.ApplicationID, string(change.FromStatus), string(change.ToStatus),
		change.Note, now,
	)
	if err != nil {
		return fmt.Errorf("応募ステータスの更新に失敗しました: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("更新行数の取得に失敗しました: %w", err)
	}

	if affected == 0 {
		// 行が存在しないのか、ステータスがすでに変わっていたのかを区別する
		var exists bool
		if err := tx.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM applications WHERE id = $1)`,
			change.ApplicationID,
		).Scan(&exists); err != nil {
			return fmt.Errorf("応募の存在確認に失敗しました: %w", err)
		}
		if !exists {
			return ErrNotFound
		}
		return ErrConflict
	}

	historyID := change.ID
	if historyID == "" {
		historyID = uuid.New().String()
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO application_status_history (id, application_id, from_status, to_status, note, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		historyID, change.ApplicationID, string(change.FromStatus),
		string(change.ToStatus), change.Note, now,
	); err != nil {
		return fmt.Errorf("ステータス変更履歴の追記に失敗しました: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("トランザクションのコミットに失敗しました: %w", err)
	}

	return nil
}

// ListStatusHistory は応募のステータス変更履歴をcreated_at降順で返す。
func (r *PostgresApplicationRepo) ListStatusHistory(ctx context.Context, applicationID string) ([]*model.StatusChange, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, application_id, from_status, to_status, note, created_at
		 FROM application_status_history
		 WHERE application_id = $1
		 ORDER BY created_at DESC`,
		applicationID,
	)
	if err != nil {
		return nil, fmt.Errorf("ステータス変更履歴の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var changes []*model.StatusChange
	for rows.Next() {
		change := &model.StatusChange{}
		var from, to string
		if err := rows.Scan(
			&change.ID, &change.ApplicationID, &from, &to,
			&change.Note, &change.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("履歴行の読み取りに失敗しました: %w", err)
		}
		change.FromStatus = model.ApplicationStatus(from)
		change.ToStatus = model.ApplicationStatus(to)
		changes = append(changes, change)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("履歴一覧の走査に失敗しました: %w", err)
	}

	return changes, nil
}

// nullString は空文字列をNULLに変換する。
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// nullStringValue はsql.NullStringから文字列を取得する。
func nullStringValue(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}

// compile-time interface check
var _ ApplicationRepository = (*PostgresApplicationRepo)(nil)
