package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/hireman/internal/model"
)

// PostgresInterviewRepo はPostgreSQLを使用した面接リポジトリ。
type PostgresInterviewRepo struct {
	db *sql.DB
}

// NewPostgresInterviewRepo はPostgresInterviewRepoを生成する。
func NewPostgresInterviewRepo(db *sql.DB) *PostgresInterviewRepo {
	return &PostgresInterviewRepo{db: db}
}

const interviewColumns = `id, application_id, external_event_id, external_event_uri,
       candidate_email, scheduled_at, meeting_url, status, created_at, updated_at`

// scanInterview は1行分の面接レコードを読み取る。
func scanInterview(scan func(dest ...any) error) (*model.Interview, error) {
	iv := &model.Interview{}
	var applicationID sql.NullString
	var status string

	if err := scan(
		&iv.ID, &applicationID, &iv.ExternalEventID, &iv.ExternalEventURI,
		&iv.CandidateEmail, &iv.ScheduledAt, &iv.MeetingURL, &status,
		&iv.CreatedAt, &iv.UpdatedAt,
	); err != nil {
		return nil, err
	}

	iv.ApplicationID = nullStringValue(applicationID)
	iv.Status = model.InterviewStatus(status)
	return iv, nil
}

// FindByExternalEventID は外部イベントIDで面接を検索する。見つからない場合はnilを返す。
func (r *PostgresInterviewRepo) FindByExternalEventID(ctx context.Context, externalEventID string) (*model.Interview, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+interviewColumns+` FROM interviews WHERE external_event_id = $1`,
		externalEventID,
	)

	iv, err := scanInterview(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("外部イベントIDによる面接の検索に失敗しました: %w", err)
	}
	return iv, nil
}

// Create は面接を作成する。
func (r *PostgresInterviewRepo) Create(ctx context.Context, interview *model.Interview) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO interviews (id, application_id, external_event_id, external_event_uri,
		                         candidate_email, scheduled_at, meeting_url, status,
		                         created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		interview.ID, nullString(interview.ApplicationID), interview.ExternalEventID,
		interview.ExternalEventURI, interview.CandidateEmail, interview.ScheduledAt,
		interview.MeetingURL, string(interview.Status),
		interview.CreatedAt, interview.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("面接の作成に失敗しました: %w", err)
	}
	return nil
}

// ListRecent は面接一覧をscheduled_at降順で返す。
func (r *PostgresInterviewRepo) ListRecent(ctx context.Context, limit int) ([]*model.Interview, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+interviewColumns+` FROM interviews
		 ORDER BY scheduled_at DESC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("面接一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var interviews []*model.Interview
	for rows.Next() {
		iv, err := scanInterview(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("面接行の読み取りに失敗しました: %w", err)
		}
		interviews = append(interviews, iv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("面接一覧の走査に失敗しました: %w", err)
	}

	return interviews, nil
}

// compile-time interface check
var _ InterviewRepository = (*PostgresInterviewRepo)(nil)
