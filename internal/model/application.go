// Package model はドメインモデルを定義する。
package model

import "time"

// ApplicationStatus は応募の選考ステータスを表す。
type ApplicationStatus string

const (
	// StatusSubmitted は応募フォームから提出された直後の状態。
	StatusSubmitted ApplicationStatus = "application_submitted"
	// StatusUnderReview は書類選考中の状態。
	StatusUnderReview ApplicationStatus = "under_review"
	// StatusShortlisted は書類選考を通過した状態。
	StatusShortlisted ApplicationStatus = "shortlisted"
	// StatusInterviewed は面接を実施済みの状態。
	StatusInterviewed ApplicationStatus = "interviewed"
	// StatusWaitingList は保留（ウェイティングリスト）の状態。
	StatusWaitingList ApplicationStatus = "waiting_list"
	// StatusHired は採用決定の状態。終端ステータス。
	StatusHired ApplicationStatus = "hired"
	// StatusRejected は不採用の状態。終端ステータス。
	StatusRejected ApplicationStatus = "rejected"
)

// allowedTransitions は選考ステータスの有向遷移グラフ。
// ここに列挙されていないエッジはすべて不正な遷移として扱う。
// 同一ステータスへの自己遷移は常に不正。
var allowedTransitions = map[ApplicationStatus][]ApplicationStatus{
	StatusSubmitted:   {StatusUnderReview, StatusRejected},
	StatusUnderReview: {StatusShortlisted, StatusRejected, StatusWaitingList},
	StatusShortlisted: {StatusInterviewed, StatusRejected, StatusWaitingList},
	StatusInterviewed: {StatusHired, StatusRejected, StatusWaitingList},
	StatusWaitingList: {StatusUnderReview, StatusShortlisted, StatusInterviewed, StatusHired, StatusRejected},
	StatusHired:       {},
	StatusRejected:    {},
}

// IsValidStatus はステータス値が定義済みの選考ステータスかを返す。
func IsValidStatus(s ApplicationStatus) bool {
	_, ok := allowedTransitions[s]
	return ok
}

// AllowedNextStatuses は指定ステータスから遷移可能なステータスの一覧を返す。
// 呼び出し元が変更しても安全なようにコピーを返す。
func AllowedNextStatuses(from ApplicationStatus) []ApplicationStatus {
	next, ok := allowedTransitions[from]
	if !ok {
		return nil
	}
	out := make([]ApplicationStatus, len(next))
	copy(out, next)
	return out
}

// CanTransition はfromからtoへの遷移が遷移グラフ上で許可されているかを返す。
// 自己遷移はグラフ定義に関わらず常にfalse。
func CanTransition(from, to ApplicationStatus) bool {
	if from == to {
		return false
	}
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminalStatus はそれ以上遷移できない終端ステータスかを返す。
func IsTerminalStatus(s ApplicationStatus) bool {
	return s == StatusHired || s == StatusRejected
}

// DisplayPhase は管理画面の簡易トラッカー表示用の4状態プロジェクション。
// 正本はあくまでApplicationStatusであり、DisplayPhaseは表示層の投影に過ぎない。
type DisplayPhase string

const (
	// PhaseWaiting は選考待ちの表示状態。
	PhaseWaiting DisplayPhase = "waiting"
	// PhaseInReview は選考進行中の表示状態。
	PhaseInReview DisplayPhase = "in_review"
	// PhaseApproved は採用決定の表示状態。
	PhaseApproved DisplayPhase = "approved"
	// PhaseRejected は不採用の表示状態。
	PhaseRejected DisplayPhase = "rejected"
)

// DisplayPhaseOf は選考ステータスをトラッカー表示用の4状態へ投影する。
func DisplayPhaseOf(s ApplicationStatus) DisplayPhase {
	switch s {
	case StatusHired:
		return PhaseApproved
	case StatusRejected:
		return PhaseRejected
	case StatusShortlisted, StatusInterviewed:
		return PhaseInReview
	default:
		return PhaseWaiting
	}
}

// Application は候補者の応募を表す。
// statusはワークフローエンジン経由でのみ変更される。
type Application struct {
	ID             string
	CandidateName  string
	CandidateEmail string
	CandidatePhone string
	Position       string // 応募時の職種ラベル（求人タイトルの非正規化）
	JobID          string
	Status         ApplicationStatus
	Notes          string // 直近のステータス変更時の理由メモ
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// StatusChange はステータス変更の監査履歴1件を表す。
// application_status_historyテーブルに追記専用で保存される。
type StatusChange struct {
	ID            string
	ApplicationID string
	FromStatus    ApplicationStatus
	ToStatus      ApplicationStatus
	Note          string
	CreatedAt     time.Time
}
