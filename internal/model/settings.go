package model

import "time"

// SyncSettings はスケジューリングプロバイダ同期の設定を表す。
// 管理画面で設定される単一行レコードで、このコアからは読み取り専用。
// 不完全な場合は同期機能全体が無効として扱われる。
type SyncSettings struct {
	ID              string
	OrganizationURI string // プロバイダ上の組織識別子。同期実行の必須パラメータ
	UpdatedAt       time.Time
}

// Complete は同期実行に必要な設定がすべて揃っているかを返す。
func (s *SyncSettings) Complete() bool {
	return s != nil && s.OrganizationURI != ""
}
