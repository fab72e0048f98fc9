package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/hitoshi/hireman/internal/middleware"
	"github.com/hitoshi/hireman/internal/model"
	syncpkg "github.com/hitoshi/hireman/internal/sync"
)

// SyncOrchestratorInterface は同期ハンドラーが必要とするオーケストレータの
// インターフェース。
type SyncOrchestratorInterface interface {
	// TriggerNow は同期を即時実行し、実行結果のレポートを返す。
	TriggerNow(ctx context.Context) (*syncpkg.Report, error)
	// Status は同期ステータスのスナップショットを返す。
	Status(ctx context.Context) syncpkg.StatusView
}

// SyncHandler は面接同期のHTTPハンドラー。
type SyncHandler struct {
	orchestrator SyncOrchestratorInterface
}

// NewSyncHandler はSyncHandlerを生成する。
func NewSyncHandler(orchestrator SyncOrchestratorInterface) *SyncHandler {
	return &SyncHandler{orchestrator: orchestrator}
}

// Reconcile は管理画面からの手動同期トリガーを処理する。
// POST /api/sync/reconcile
func (h *SyncHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	report, err := h.orchestrator.TriggerNow(r.Context())
	if err != nil {
		switch {
		case errors.Is(err, syncpkg.ErrSyncInProgress):
			middleware.WriteErrorResponse(w, http.StatusConflict, model.NewSyncInProgressError())
		case errors.Is(err, syncpkg.ErrSyncDisabled):
			middleware.WriteErrorResponse(w, http.StatusServiceUnavailable, model.NewSyncDisabledError())
		default:
			middleware.WriteErrorResponse(w, http.StatusBadGateway, model.NewSyncFailedError(err.Error()))
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(report)
}

// Status は同期ステータスのスナップショットを返す。
// GET /api/sync/status
func (h *SyncHandler) Status(w http.ResponseWriter, r *http.Request) {
	view := h.orchestrator.Status(r.Context())

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(view)
}
