package model

import "time"

// InterviewStatus は面接予定のステータスを表す。
// スケジューリングプロバイダのイベントステータスをマッピングした値で、
// "scheduled"以外はプロバイダの値をそのまま透過する。
type InterviewStatus string

const (
	// InterviewStatusScheduled は予約済みの面接を表す。プロバイダの"active"に対応する。
	InterviewStatusScheduled InterviewStatus = "scheduled"
	// InterviewStatusCompleted は実施済みの面接を表す。
	InterviewStatusCompleted InterviewStatus = "completed"
	// InterviewStatusCancelled はキャンセルされた面接を表す。
	InterviewStatusCancelled InterviewStatus = "cancelled"
	// InterviewStatusNoShow は候補者が現れなかった面接を表す。
	InterviewStatusNoShow InterviewStatus = "no_show"
)

// MapProviderEventStatus はプロバイダのイベントステータスをInterviewStatusへ変換する。
// "active"のみ"scheduled"へ正規化し、それ以外は値をそのまま保持する。
func MapProviderEventStatus(providerStatus string) InterviewStatus {
	if providerStatus == "active" {
		return InterviewStatusScheduled
	}
	return InterviewStatus(providerStatus)
}

// Interview はローカルに保持する面接レコードを表す。
// ExternalEventIDがプロバイダイベントとの重複排除キーであり、
// 同一イベントに対して最大1行しか存在しない。
type Interview struct {
	ID               string
	ApplicationID    string
	ExternalEventID  string // プロバイダイベントURIの末尾セグメント。ユニーク。
	ExternalEventURI string
	CandidateEmail   string // マッチした応募から作成時に非正規化
	ScheduledAt      time.Time
	MeetingURL       string // 参加可能なミーティングURL。存在しない場合は空
	Status           InterviewStatus
	CreatedAt        time.Time
	UpdatedAt        time.Time
}
