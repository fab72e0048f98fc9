package workflow

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hitoshi/hireman/internal/model"
)

// ErrNoOpTransition は現在と同じステータスへの遷移要求を表す。
var ErrNoOpTransition = errors.New("現在と同じステータスへは遷移できません")

// ErrMissingJustification は理由メモが空（空白のみを含む）である遷移要求を表す。
var ErrMissingJustification = errors.New("ステータス変更には理由メモが必須です")

// ErrConcurrentModification は楽観的排他制御による更新競合を表す。
// 呼び出し元は最新の状態を読み込み直して1回だけ再試行してよい。
var ErrConcurrentModification = errors.New("応募は他の操作により更新されています")

// ErrApplicationNotFound は対象の応募が存在しないことを表す。
var ErrApplicationNotFound = errors.New("応募が見つかりません")

// InvalidTransitionError は遷移グラフ上で許可されていない遷移要求を表す。
// 呼び出し元が選択肢を提示できるよう、遷移可能なステータス一覧を保持する。
type InvalidTransitionError struct {
	From    model.ApplicationStatus
	To      model.ApplicationStatus
	Allowed []model.ApplicationStatus
}

// Error はerrorインターフェースを実装する。
func (e *InvalidTransitionError) Error() string {
	names := make([]string, len(e.Allowed))
	for i, s := range e.Allowed {
		names[i] = string(s)
	}
	return fmt.Sprintf("%s から %s への遷移は許可されていません（遷移可能: [%s]）",
		e.From, e.To, strings.Join(names, ", "))
}
