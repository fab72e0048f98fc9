package security

import "github.com/microcosm-cc/bluemonday"

// TextSanitizerService は自由入力テキストのサニタイズ機能のインターフェースを定義する。
// 候補者が入力する応募フォームの各項目と、管理者が入力するステータス変更の
// 理由メモの保存前に使用される。
type TextSanitizerService interface {
	// Sanitize はテキストからHTMLタグをすべて除去して返す。
	// 応募メモや候補者名はプレーンテキストとして扱うため、許可タグはない。
	// 空文字列の入力には空文字列を返す。
	// 同一入力に対して常に同一出力を返す（冪等）。
	Sanitize(raw string) string
}

// textSanitizer はTextSanitizerServiceの実装。
// bluemondayのStrictPolicyを保持し、スレッドセーフにサニタイズ処理を行う。
type textSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はTextSanitizerServiceの新しいインスタンスを生成する。
// StrictPolicyは全タグを除去するため、管理画面・応募フォームの自由入力を
// プレーンテキストとして安全に保存できる。
func NewTextSanitizer() *textSanitizer {
	return &textSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// Sanitize はテキストからHTMLタグをすべて除去して返す。
func (s *textSanitizer) Sanitize(raw string) string {
	return s.policy.Sanitize(raw)
}
