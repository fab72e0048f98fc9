package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/hireman/internal/model"
)

// PostgresSyncSettingsRepo はPostgreSQLを使用した同期設定リポジトリ。
type PostgresSyncSettingsRepo struct {
	db *sql.DB
}

// NewPostgresSyncSettingsRepo はPostgresSyncSettingsRepoを生成する。
func NewPostgresSyncSettingsRepo(db *sql.DB) *PostgresSyncSettingsRepo {
	return &PostgresSyncSettingsRepo{db: db}
}

// Get は同期設定を取得する。未設定の場合はnilを返す。
// 設定は単一行の想定であり、複数行あった場合は最後に更新された行を採用する。
func (r *PostgresSyncSettingsRepo) Get(ctx context.Context) (*model.SyncSettings, error) {
	settings := &model.SyncSettings{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, organization_uri, updated_at
		 FROM sync_settings
		 ORDER BY updated_at DESC
		 LIMIT 1`,
	).Scan(&settings.ID, &settings.OrganizationURI, &settings.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("同期設定の取得に失敗しました: %w", err)
	}
	return settings, nil
}

// compile-time interface check
var _ SyncSettingsRepository = (*PostgresSyncSettingsRepo)(nil)
