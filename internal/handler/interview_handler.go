package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/hitoshi/hireman/internal/model"
	"github.com/hitoshi/hireman/internal/repository"
)

// InterviewHandler は面接一覧のHTTPハンドラー。
// 面接レコードは同期でのみ作成されるため、このハンドラーは読み取り専用。
type InterviewHandler struct {
	interviews repository.InterviewRepository
}

// NewInterviewHandler はInterviewHandlerを生成する。
func NewInterviewHandler(interviews repository.InterviewRepository) *InterviewHandler {
	return &InterviewHandler{interviews: interviews}
}

// interviewResponse は面接情報のAPIレスポンス。
type interviewResponse struct {
	ID             string    `json:"id"`
	ApplicationID  string    `json:"application_id"`
	CandidateEmail string    `json:"candidate_email"`
	ScheduledAt    time.Time `json:"scheduled_at"`
	MeetingURL     string    `json:"meeting_url,omitempty"`
	Status         string    `json:"status"`
	CreatedAt      time.Time `json:"created_at"`
}

// List は面接一覧を予定時刻の降順で取得する。
// GET /api/interviews
func (h *InterviewHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r, 100)

	interviews, err := h.interviews.ListRecent(r.Context(), limit)
	if err != nil {
		handleInternalError(w, err)
		return
	}

	responses := make([]interviewResponse, 0, len(interviews))
	for _, iv := range interviews {
		responses = append(responses, toInterviewResponse(iv))
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(responses)
}

// toInterviewResponse はmodel.InterviewからAPIレスポンスに変換する。
func toInterviewResponse(iv *model.Interview) interviewResponse {
	return interviewResponse{
		ID:             iv.ID,
		ApplicationID:  iv.ApplicationID,
		CandidateEmail: iv.CandidateEmail,
		ScheduledAt:    iv.ScheduledAt,
		MeetingURL:     iv.MeetingURL,
		Status:         string(iv.Status),
		CreatedAt:      iv.CreatedAt,
	}
}
