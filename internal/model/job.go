package model

import "time"

// Job は求人票を表す。
// Acceptingがfalseの求人は応募フォームに表示されない。
type Job struct {
	ID          string
	Title       string
	Description string
	Location    string
	Accepting   bool // 応募受付中フラグ。採用決定時に自動でfalseになる
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
