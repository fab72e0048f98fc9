package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hitoshi/hireman/internal/middleware"
	"github.com/hitoshi/hireman/internal/model"
	"github.com/hitoshi/hireman/internal/repository"
)

// JobHandler は求人管理のHTTPハンドラー。
type JobHandler struct {
	jobs      repository.JobRepository
	sanitizer TextSanitizer
}

// NewJobHandler はJobHandlerを生成する。
func NewJobHandler(jobs repository.JobRepository, sanitizer TextSanitizer) *JobHandler {
	return &JobHandler{
		jobs:      jobs,
		sanitizer: sanitizer,
	}
}

// createJobRequest は求人作成リクエストのボディ。
type createJobRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Location    string `json:"location"`
}

// jobResponse は求人情報のAPIレスポンス。
type jobResponse struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Location    string    `json:"location"`
	Accepting   bool      `json:"accepting"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Create は求人の作成を処理する。
// POST /api/jobs
func (h *JobHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequestBody(w)
		return
	}

	title := strings.TrimSpace(h.sanitizer.Sanitize(req.Title))
	if title == "" {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "MISSING_REQUIRED_FIELD",
			Message:  "求人タイトルは必須です。",
			Category: "validation",
			Action:   "タイトルを入力してください。",
		})
		return
	}

	now := time.Now()
	job := &model.Job{
		ID:          uuid.NewString(),
		Title:       title,
		Description: h.sanitizer.Sanitize(req.Description),
		Location:    strings.TrimSpace(h.sanitizer.Sanitize(req.Location)),
		Accepting:   true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := h.jobs.Create(r.Context(), job); err != nil {
		handleInternalError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(toJobResponse(job))
}

// List は求人一覧を取得する。
// GET /api/jobs
func (h *JobHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r, 100)

	jobs, err := h.jobs.List(r.Context(), limit)
	if err != nil {
		handleInternalError(w, err)
		return
	}

	// 応募フォーム向けには募集中の求人のみを返す
	acceptingOnly := r.URL.Query().Get("accepting") == "true"

	responses := make([]jobResponse, 0, len(jobs))
	for _, job := range jobs {
		if acceptingOnly && !job.Accepting {
			continue
		}
		responses = append(responses, toJobResponse(job))
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(responses)
}

// Get は求人詳細を取得する。
// GET /api/jobs/:id
func (h *JobHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	job, err := h.jobs.FindByID(r.Context(), id)
	if err != nil {
		handleInternalError(w, err)
		return
	}
	if job == nil {
		middleware.WriteErrorResponse(w, http.StatusNotFound, model.NewJobNotFoundError(id))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toJobResponse(job))
}

// Deactivate は求人の応募受付を停止する。冪等であり、
// すでに停止済みの求人に対しても成功を返す。
// POST /api/jobs/:id/deactivate
func (h *JobHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.jobs.Deactivate(r.Context(), id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			middleware.WriteErrorResponse(w, http.StatusNotFound, model.NewJobNotFoundError(id))
			return
		}
		handleInternalError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// toJobResponse はmodel.JobからAPIレスポンスに変換する。
func toJobResponse(job *model.Job) jobResponse {
	return jobResponse{
		ID:          job.ID,
		Title:       job.Title,
		Description: job.Description,
		Location:    job.Location,
		Accepting:   job.Accepting,
		CreatedAt:   job.CreatedAt,
		UpdatedAt:   job.UpdatedAt,
	}
}
