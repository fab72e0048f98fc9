package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/hireman/internal/model"
	syncpkg "github.com/hitoshi/hireman/internal/sync"
)

type mockOrchestrator struct {
	triggerNowFn func(ctx context.Context) (*syncpkg.Report, error)
	statusFn     func(ctx context.Context) syncpkg.StatusView
}

func (m *mockOrchestrator) TriggerNow(ctx context.Context) (*syncpkg.Report, error) {
	return m.triggerNowFn(ctx)
}
func (m *mockOrchestrator) Status(ctx context.Context) syncpkg.StatusView {
	if m.statusFn != nil {
		return m.statusFn(ctx)
	}
	return syncpkg.StatusView{}
}

func newSyncRouter(orchestrator SyncOrchestratorInterface) http.Handler {
	h := NewSyncHandler(orchestrator)
	r := chi.NewRouter()
	r.Post("/api/sync/reconcile", h.Reconcile)
	r.Get("/api/sync/status", h.Status)
	return r
}

// TestSyncHandler_Reconcile は手動トリガーが同期レポートを返すことを検証する。
func TestSyncHandler_Reconcile(t *testing.T) {
	orchestrator := &mockOrchestrator{
		triggerNowFn: func(ctx context.Context) (*syncpkg.Report, error) {
			return &syncpkg.Report{Created: 2, Skipped: 3}, nil
		},
	}
	router := newSyncRouter(orchestrator)

	req := httptest.NewRequest(http.MethodPost, "/api/sync/reconcile", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var report syncpkg.Report
	if err := json.NewDecoder(w.Body).Decode(&report); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if report.Created != 2 || report.Skipped != 3 {
		t.Errorf("unexpected report: %+v", report)
	}
}

// TestSyncHandler_Reconcile_InProgress は同期実行中のトリガーが409に
// なることを検証する。
func TestSyncHandler_Reconcile_InProgress(t *testing.T) {
	orchestrator := &mockOrchestrator{
		triggerNowFn: func(ctx context.Context) (*syncpkg.Report, error) {
			return nil, syncpkg.ErrSyncInProgress
		},
	}
	router := newSyncRouter(orchestrator)

	req := httptest.NewRequest(http.MethodPost, "/api/sync/reconcile", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", w.Code)
	}

	var resp struct {
		Code string `json:"code"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Code != model.ErrCodeSyncInProgress {
		t.Errorf("code = %q, want %q", resp.Code, model.ErrCodeSyncInProgress)
	}
}

// TestSyncHandler_Reconcile_Disabled は同期設定が未完了の場合に503に
// なることを検証する。
func TestSyncHandler_Reconcile_Disabled(t *testing.T) {
	orchestrator := &mockOrchestrator{
		triggerNowFn: func(ctx context.Context) (*syncpkg.Report, error) {
			return nil, syncpkg.ErrSyncDisabled
		},
	}
	router := newSyncRouter(orchestrator)

	req := httptest.NewRequest(http.MethodPost, "/api/sync/reconcile", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", w.Code)
	}
}

// TestSyncHandler_Reconcile_ProviderFailure はプロバイダ起因の同期失敗が
// 502になることを検証する。
func TestSyncHandler_Reconcile_ProviderFailure(t *testing.T) {
	orchestrator := &mockOrchestrator{
		triggerNowFn: func(ctx context.Context) (*syncpkg.Report, error) {
			return nil, errors.New("イベント一覧の取得に失敗しました")
		},
	}
	router := newSyncRouter(orchestrator)

	req := httptest.NewRequest(http.MethodPost, "/api/sync/reconcile", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", w.Code)
	}
}

// TestSyncHandler_Status はステータススナップショットが返ることを検証する。
func TestSyncHandler_Status(t *testing.T) {
	orchestrator := &mockOrchestrator{
		statusFn: func(ctx context.Context) syncpkg.StatusView {
			return syncpkg.StatusView{
				Syncing:          false,
				Enabled:          true,
				LastReport:       &syncpkg.Report{Created: 1},
				RecentInterviews: []*model.Interview{{ID: "iv-1"}},
			}
		},
	}
	router := newSyncRouter(orchestrator)

	req := httptest.NewRequest(http.MethodGet, "/api/sync/status", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var view syncpkg.StatusView
	if err := json.NewDecoder(w.Body).Decode(&view); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !view.Enabled {
		t.Error("enabled should be true")
	}
	if view.LastReport == nil || view.LastReport.Created != 1 {
		t.Errorf("unexpected last report: %+v", view.LastReport)
	}
	if len(view.RecentInterviews) != 1 {
		t.Errorf("recent interviews length = %d, want 1", len(view.RecentInterviews))
	}
}
