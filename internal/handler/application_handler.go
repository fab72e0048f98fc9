// Package handler はHTTP APIのハンドラーとルーティングを提供する。
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hitoshi/hireman/internal/middleware"
	"github.com/hitoshi/hireman/internal/model"
	"github.com/hitoshi/hireman/internal/repository"
	"github.com/hitoshi/hireman/internal/workflow"
)

// WorkflowEngineInterface は応募ハンドラーが必要とするワークフローエンジンの
// インターフェース。
type WorkflowEngineInterface interface {
	// UpdateStatus は応募のステータス遷移を検証して適用する。
	UpdateStatus(ctx context.Context, applicationID string, requested model.ApplicationStatus, note string) (*model.Application, error)
}

// TextSanitizer は自由入力テキストのサニタイズのインターフェース。
type TextSanitizer interface {
	Sanitize(raw string) string
}

// ApplicationHandler は応募管理のHTTPハンドラー。
type ApplicationHandler struct {
	apps      repository.ApplicationRepository
	jobs      repository.JobRepository
	engine    WorkflowEngineInterface
	sanitizer TextSanitizer
}

// NewApplicationHandler はApplicationHandlerを生成する。
func NewApplicationHandler(
	apps repository.ApplicationRepository,
	jobs repository.JobRepository,
	engine WorkflowEngineInterface,
	sanitizer TextSanitizer,
) *ApplicationHandler {
	return &ApplicationHandler{
		apps:      apps,
		jobs:      jobs,
		engine:    engine,
		sanitizer: sanitizer,
	}
}

// createApplicationRequest は応募提出リクエストのボディ。
type createApplicationRequest struct {
	CandidateName  string `json:"candidate_name"`
	CandidateEmail string `json:"candidate_email"`
	CandidatePhone string `json:"candidate_phone"`
	JobID          string `json:"job_id"`
}

// updateStatusRequest はステータス変更リクエストのボディ。
type updateStatusRequest struct {
	Status string `json:"status"`
	Note   string `json:"note"`
}

// applicationResponse は応募情報のAPIレスポンス。
type applicationResponse struct {
	ID             string    `json:"id"`
	CandidateName  string    `json:"candidate_name"`
	CandidateEmail string    `json:"candidate_email"`
	CandidatePhone string    `json:"candidate_phone,omitempty"`
	Position       string    `json:"position"`
	JobID          string    `json:"job_id,omitempty"`
	Status         string    `json:"status"`
	DisplayPhase   string    `json:"display_phase"`
	Notes          string    `json:"notes,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// statusChangeResponse はステータス変更履歴1件のAPIレスポンス。
type statusChangeResponse struct {
	FromStatus string    `json:"from_status"`
	ToStatus   string    `json:"to_status"`
	Note       string    `json:"note"`
	CreatedAt  time.Time `json:"created_at"`
}

// applicationDetailResponse は応募詳細（履歴付き）のAPIレスポンス。
type applicationDetailResponse struct {
	applicationResponse
	StatusHistory []statusChangeResponse `json:"status_history"`
}

// Create は応募フォームからの提出を処理する。
// POST /api/applications
func (h *ApplicationHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createApplicationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequestBody(w)
		return
	}

	// 自由入力項目はプレーンテキストとして保存する
	name := strings.TrimSpace(h.sanitizer.Sanitize(req.CandidateName))
	email := strings.TrimSpace(h.sanitizer.Sanitize(req.CandidateEmail))
	phone := strings.TrimSpace(h.sanitizer.Sanitize(req.CandidatePhone))

	if name == "" || email == "" || req.JobID == "" {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "MISSING_REQUIRED_FIELD",
			Message:  "候補者名、メールアドレス、求人IDは必須です。",
			Category: "validation",
			Action:   "必須項目をすべて入力してください。",
		})
		return
	}

	job, err := h.jobs.FindByID(r.Context(), req.JobID)
	if err != nil {
		handleInternalError(w, err)
		return
	}
	if job == nil {
		middleware.WriteErrorResponse(w, http.StatusNotFound, model.NewJobNotFoundError(req.JobID))
		return
	}
	if !job.Accepting {
		middleware.WriteErrorResponse(w, http.StatusConflict, &model.APIError{
			Code:     "JOB_NOT_ACCEPTING",
			Message:  "この求人は応募を受け付けていません。",
			Category: "validation",
			Action:   "募集中の求人に応募してください。",
		})
		return
	}

	now := time.Now()
	app := &model.Application{
		ID:             uuid.NewString(),
		CandidateName:  name,
		CandidateEmail: email,
		CandidatePhone: phone,
		Position:       job.Title, // 求人タイトルを応募時点の職種ラベルとして非正規化
		JobID:          job.ID,
		Status:         model.StatusSubmitted,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := h.apps.Create(r.Context(), app); err != nil {
		handleInternalError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(toApplicationResponse(app))
}

// List は応募一覧を取得する。
// GET /api/applications
func (h *ApplicationHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r, 100)

	apps, err := h.apps.List(r.Context(), limit)
	if err != nil {
		handleInternalError(w, err)
		return
	}

	responses := make([]applicationResponse, 0, len(apps))
	for _, app := range apps {
		responses = append(responses, toApplicationResponse(app))
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(responses)
}

// Get は応募詳細をステータス変更履歴付きで取得する。
// GET /api/applications/:id
func (h *ApplicationHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	app, err := h.apps.FindByID(r.Context(), id)
	if err != nil {
		handleInternalError(w, err)
		return
	}
	if app == nil {
		middleware.WriteErrorResponse(w, http.StatusNotFound, model.NewApplicationNotFoundError(id))
		return
	}

	history, err := h.apps.ListStatusHistory(r.Context(), id)
	if err != nil {
		handleInternalError(w, err)
		return
	}

	detail := applicationDetailResponse{
		applicationResponse: toApplicationResponse(app),
		StatusHistory:       make([]statusChangeResponse, 0, len(history)),
	}
	for _, change := range history {
		detail.StatusHistory = append(detail.StatusHistory, statusChangeResponse{
			FromStatus: string(change.FromStatus),
			ToStatus:   string(change.ToStatus),
			Note:       change.Note,
			CreatedAt:  change.CreatedAt,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(detail)
}

// UpdateStatus は応募の選考ステータス変更を処理する。
// POST /api/applications/:id/status
func (h *ApplicationHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequestBody(w)
		return
	}

	requested := model.ApplicationStatus(req.Status)
	if !model.IsValidStatus(requested) {
		middleware.WriteErrorResponse(w, http.StatusUnprocessableEntity, model.NewInvalidStatusError(req.Status))
		return
	}

	app, err := h.engine.UpdateStatus(r.Context(), id, requested, req.Note)
	if err != nil {
		handleWorkflowError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toApplicationResponse(app))
}

// --- ヘルパー関数 ---

// toApplicationResponse はmodel.ApplicationからAPIレスポンスに変換する。
func toApplicationResponse(app *model.Application) applicationResponse {
	return applicationResponse{
		ID:             app.ID,
		CandidateName:  app.CandidateName,
		CandidateEmail: app.CandidateEmail,
		CandidatePhone: app.CandidatePhone,
		Position:       app.Position,
		JobID:          app.JobID,
		Status:         string(app.Status),
		DisplayPhase:   string(model.DisplayPhaseOf(app.Status)),
		Notes:          app.Notes,
		CreatedAt:      app.CreatedAt,
		UpdatedAt:      app.UpdatedAt,
	}
}

// handleWorkflowError はワークフローエンジンのエラーをHTTPレスポンスに変換する。
func handleWorkflowError(w http.ResponseWriter, err error) {
	var invalidErr *workflow.InvalidTransitionError
	switch {
	case errors.Is(err, workflow.ErrApplicationNotFound):
		middleware.WriteErrorResponse(w, http.StatusNotFound, model.NewApplicationNotFoundError(""))
	case errors.Is(err, workflow.ErrNoOpTransition):
		middleware.WriteErrorResponse(w, http.StatusUnprocessableEntity, &model.APIError{
			Code:     model.ErrCodeNoOpTransition,
			Message:  "応募はすでに指定されたステータスです。",
			Category: "workflow",
			Action:   "現在と異なるステータスを指定してください。",
		})
	case errors.As(err, &invalidErr):
		middleware.WriteErrorResponse(w, http.StatusUnprocessableEntity,
			model.NewInvalidTransitionError(invalidErr.From, invalidErr.To, invalidErr.Allowed))
	case errors.Is(err, workflow.ErrMissingJustification):
		middleware.WriteErrorResponse(w, http.StatusUnprocessableEntity, model.NewMissingNoteError())
	case errors.Is(err, workflow.ErrConcurrentModification):
		middleware.WriteErrorResponse(w, http.StatusConflict, model.NewConflictError())
	default:
		handleInternalError(w, err)
	}
}

// handleInternalError は予期しないエラーをログに記録し、500レスポンスを書き込む。
func handleInternalError(w http.ResponseWriter, err error) {
	slog.Error("internal server error", slog.String("error", err.Error()))
	middleware.WriteInternalServerError(w)
}

// writeInvalidRequestBody はリクエストボディ解析エラーのレスポンスを書き込む。
func writeInvalidRequestBody(w http.ResponseWriter) {
	middleware.WriteErrorResponse(w, http.StatusBadRequest, &model.APIError{
		Code:     "INVALID_REQUEST",
		Message:  "リクエストボディの解析に失敗しました。",
		Category: "validation",
		Action:   "正しいJSON形式でリクエストしてください。",
	})
}

// parseLimit はクエリパラメータlimitを解析する。未指定または不正な場合はdefを返す。
func parseLimit(r *http.Request, def int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 || limit > 500 {
		return def
	}
	return limit
}
