package workflow

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/hitoshi/hireman/internal/model"
	"github.com/hitoshi/hireman/internal/repository"
)

// --- モック ---

type mockAppStore struct {
	findByIDFn     func(ctx context.Context, id string) (*model.Application, error)
	updateStatusFn func(ctx context.Context, change *model.StatusChange) error
}

func (m *mockAppStore) FindByID(ctx context.Context, id string) (*model.Application, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}
func (m *mockAppStore) UpdateStatus(ctx context.Context, change *model.StatusChange) error {
	if m.updateStatusFn != nil {
		return m.updateStatusFn(ctx, change)
	}
	return nil
}

type mockJobDeactivator struct {
	deactivateFn func(ctx context.Context, id string) error
}

func (m *mockJobDeactivator) Deactivate(ctx context.Context, id string) error {
	if m.deactivateFn != nil {
		return m.deactivateFn(ctx, id)
	}
	return nil
}

type mockDispatcher struct {
	sendFn func(ctx context.Context, templateKey, recipient string, variables map[string]string) error
}

func (m *mockDispatcher) Send(ctx context.Context, templateKey, recipient string, variables map[string]string) error {
	if m.sendFn != nil {
		return m.sendFn(ctx, templateKey, recipient, variables)
	}
	return nil
}

type passthroughSanitizer struct{}

func (passthroughSanitizer) Sanitize(raw string) string { return raw }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEngine(apps *mockAppStore, jobs *mockJobDeactivator, dispatcher *mockDispatcher) *Engine {
	if jobs == nil {
		jobs = &mockJobDeactivator{}
	}
	if dispatcher == nil {
		dispatcher = &mockDispatcher{}
	}
	return NewEngine(apps, jobs, dispatcher, passthroughSanitizer{}, testLogger(), nil)
}

// --- テスト ---

// TestEngine_AttemptTransition_Valid は許可された遷移が永続化され、
// 応募の内容が更新されることを検証する。
func TestEngine_AttemptTransition_Valid(t *testing.T) {
	var saved *model.StatusChange
	apps := &mockAppStore{
		updateStatusFn: func(ctx context.Context, change *model.StatusChange) error {
			saved = change
			return nil
		},
	}
	engine := newTestEngine(apps, nil, nil)

	app := &model.Application{ID: "app-1", Status: model.StatusSubmitted}
	err := engine.AttemptTransition(context.Background(), app, model.StatusUnderReview, "書類確認開始")
	if err != nil {
		t.Fatalf("AttemptTransition returned error: %v", err)
	}
	if saved == nil {
		t.Fatal("expected UpdateStatus to be called")
	}
	if saved.FromStatus != model.StatusSubmitted || saved.ToStatus != model.StatusUnderReview {
		t.Errorf("unexpected status change: %s -> %s", saved.FromStatus, saved.ToStatus)
	}
	if app.Status != model.StatusUnderReview {
		t.Errorf("application status not updated: %s", app.Status)
	}
}

// TestEngine_AttemptTransition_NoOp は自己遷移がErrNoOpTransitionとして
// 拒否され、永続化が呼ばれないことを検証する。
func TestEngine_AttemptTransition_NoOp(t *testing.T) {
	updateCalled := false
	apps := &mockAppStore{
		updateStatusFn: func(ctx context.Context, change *model.StatusChange) error {
			updateCalled = true
			return nil
		},
	}
	engine := newTestEngine(apps, nil, nil)

	app := &model.Application{ID: "app-1", Status: model.StatusUnderReview}
	err := engine.AttemptTransition(context.Background(), app, model.StatusUnderReview, "変更なし")
	if !errors.Is(err, ErrNoOpTransition) {
		t.Fatalf("expected ErrNoOpTransition, got %v", err)
	}
	if updateCalled {
		t.Error("UpdateStatus should not be called for no-op transition")
	}
}

// TestEngine_AttemptTransition_GraphClosure は全ステータスの組み合わせに対して
// 遷移グラフ通りに許可・拒否されることを検証する。
func TestEngine_AttemptTransition_GraphClosure(t *testing.T) {
	all := []model.ApplicationStatus{
		model.StatusSubmitted,
		model.StatusUnderReview,
		model.StatusShortlisted,
		model.StatusInterviewed,
		model.StatusWaitingList,
		model.StatusHired,
		model.StatusRejected,
	}

	for _, from := range all {
		for _, to := range all {
			apps := &mockAppStore{}
			engine := newTestEngine(apps, nil, nil)
			app := &model.Application{ID: "app-1", Status: from}

			err := engine.AttemptTransition(context.Background(), app, to, "遷移テスト")

			if from == to {
				if !errors.Is(err, ErrNoOpTransition) {
					t.Errorf("%s -> %s: expected ErrNoOpTransition, got %v", from, to, err)
				}
				continue
			}
			if model.CanTransition(from, to) {
				if err != nil {
					t.Errorf("%s -> %s: expected success, got %v", from, to, err)
				}
				continue
			}

			var invalidErr *InvalidTransitionError
			if !errors.As(err, &invalidErr) {
				t.Errorf("%s -> %s: expected InvalidTransitionError, got %v", from, to, err)
				continue
			}
			if invalidErr.From != from || invalidErr.To != to {
				t.Errorf("%s -> %s: error carries wrong endpoints: %s -> %s",
					from, to, invalidErr.From, invalidErr.To)
			}
		}
	}
}

// TestEngine_AttemptTransition_TerminalStatuses は終端ステータスからの
// すべての遷移が拒否されることを検証する。
func TestEngine_AttemptTransition_TerminalStatuses(t *testing.T) {
	for _, terminal := range []model.ApplicationStatus{model.StatusHired, model.StatusRejected} {
		apps := &mockAppStore{}
		engine := newTestEngine(apps, nil, nil)
		app := &model.Application{ID: "app-1", Status: terminal}

		err := engine.AttemptTransition(context.Background(), app, model.StatusUnderReview, "復活させたい")

		var invalidErr *InvalidTransitionError
		if !errors.As(err, &invalidErr) {
			t.Errorf("%s: expected InvalidTransitionError, got %v", terminal, err)
			continue
		}
		if len(invalidErr.Allowed) != 0 {
			t.Errorf("%s: terminal status should have no allowed transitions, got %v",
				terminal, invalidErr.Allowed)
		}
	}
}

// TestEngine_AttemptTransition_MissingNote は理由メモが空または空白のみの場合に
// ErrMissingJustificationが返ることを検証する。
func TestEngine_AttemptTransition_MissingNote(t *testing.T) {
	for _, note := range []string{"", "   ", "\t\n"} {
		apps := &mockAppStore{}
		engine := newTestEngine(apps, nil, nil)
		app := &model.Application{ID: "app-1", Status: model.StatusSubmitted}

		err := engine.AttemptTransition(context.Background(), app, model.StatusUnderReview, note)
		if !errors.Is(err, ErrMissingJustification) {
			t.Errorf("note %q: expected ErrMissingJustification, got %v", note, err)
		}
	}
}

// TestEngine_AttemptTransition_NoteCheckedAfterGraph は検証の順序を確認する。
// 不正な遷移は理由メモが空でもInvalidTransitionErrorを優先する。
func TestEngine_AttemptTransition_NoteCheckedAfterGraph(t *testing.T) {
	apps := &mockAppStore{}
	engine := newTestEngine(apps, nil, nil)
	app := &model.Application{ID: "app-1", Status: model.StatusSubmitted}

	err := engine.AttemptTransition(context.Background(), app, model.StatusHired, "")

	var invalidErr *InvalidTransitionError
	if !errors.As(err, &invalidErr) {
		t.Fatalf("expected InvalidTransitionError to take precedence, got %v", err)
	}
}

// TestEngine_AttemptTransition_Conflict はリポジトリの更新競合が
// ErrConcurrentModificationへ変換されることを検証する。
func TestEngine_AttemptTransition_Conflict(t *testing.T) {
	apps := &mockAppStore{
		updateStatusFn: func(ctx context.Context, change *model.StatusChange) error {
			return repository.ErrConflict
		},
	}
	engine := newTestEngine(apps, nil, nil)
	app := &model.Application{ID: "app-1", Status: model.StatusSubmitted}

	err := engine.AttemptTransition(context.Background(), app, model.StatusUnderReview, "確認開始")
	if !errors.Is(err, ErrConcurrentModification) {
		t.Fatalf("expected ErrConcurrentModification, got %v", err)
	}
	if app.Status != model.StatusSubmitted {
		t.Errorf("application status should not change on conflict: %s", app.Status)
	}
}

// TestEngine_AttemptTransition_HiredSideEffects は採用決定時に通知送信と
// 求人の自動停止が行われることを検証する。
func TestEngine_AttemptTransition_HiredSideEffects(t *testing.T) {
	deactivatedJobID := ""
	sentTemplate := ""
	sentTo := ""

	apps := &mockAppStore{}
	jobs := &mockJobDeactivator{
		deactivateFn: func(ctx context.Context, id string) error {
			deactivatedJobID = id
			return nil
		},
	}
	dispatcher := &mockDispatcher{
		sendFn: func(ctx context.Context, templateKey, recipient string, variables map[string]string) error {
			sentTemplate = templateKey
			sentTo = recipient
			return nil
		},
	}
	engine := newTestEngine(apps, jobs, dispatcher)

	app := &model.Application{
		ID:             "app-1",
		CandidateEmail: "taro@example.com",
		JobID:          "job-1",
		Status:         model.StatusInterviewed,
	}
	err := engine.AttemptTransition(context.Background(), app, model.StatusHired, "最終面接合格")
	if err != nil {
		t.Fatalf("AttemptTransition returned error: %v", err)
	}
	if deactivatedJobID != "job-1" {
		t.Errorf("expected job-1 to be deactivated, got %q", deactivatedJobID)
	}
	if sentTemplate != "application_hired" {
		t.Errorf("unexpected notification template: %q", sentTemplate)
	}
	if sentTo != "taro@example.com" {
		t.Errorf("unexpected notification recipient: %q", sentTo)
	}
}

// TestEngine_AttemptTransition_SideEffectFailureIgnored は副作用の失敗が
// 遷移の成否に影響しないことを検証する。
func TestEngine_AttemptTransition_SideEffectFailureIgnored(t *testing.T) {
	apps := &mockAppStore{}
	jobs := &mockJobDeactivator{
		deactivateFn: func(ctx context.Context, id string) error {
			return errors.New("接続エラー")
		},
	}
	dispatcher := &mockDispatcher{
		sendFn: func(ctx context.Context, templateKey, recipient string, variables map[string]string) error {
			return errors.New("送信失敗")
		},
	}
	engine := newTestEngine(apps, jobs, dispatcher)

	app := &model.Application{ID: "app-1", JobID: "job-1", Status: model.StatusInterviewed}
	err := engine.AttemptTransition(context.Background(), app, model.StatusHired, "最終面接合格")
	if err != nil {
		t.Fatalf("side effect failures should not fail the transition: %v", err)
	}
	if app.Status != model.StatusHired {
		t.Errorf("application status should be committed: %s", app.Status)
	}
}

// TestEngine_AttemptTransition_NoNotificationForUnmappedStatus はテンプレートの
// マッピングがないステータスへの遷移で通知が送られないことを検証する。
func TestEngine_AttemptTransition_NoNotificationForUnmappedStatus(t *testing.T) {
	sendCalled := false
	dispatcher := &mockDispatcher{
		sendFn: func(ctx context.Context, templateKey, recipient string, variables map[string]string) error {
			sendCalled = true
			return nil
		},
	}
	engine := newTestEngine(&mockAppStore{}, nil, dispatcher)

	app := &model.Application{ID: "app-1", Status: model.StatusSubmitted}
	err := engine.AttemptTransition(context.Background(), app, model.StatusUnderReview, "確認開始")
	if err != nil {
		t.Fatalf("AttemptTransition returned error: %v", err)
	}
	if sendCalled {
		t.Error("no notification should be sent for under_review")
	}
}

// TestEngine_UpdateStatus_RetryOnConflict は更新競合時に1回だけ読み込み直して
// 再試行することを検証する。
func TestEngine_UpdateStatus_RetryOnConflict(t *testing.T) {
	findCount := 0
	updateCount := 0
	apps := &mockAppStore{
		findByIDFn: func(ctx context.Context, id string) (*model.Application, error) {
			findCount++
			// 1回目はsubmitted、競合後の読み込み直しではunder_review
			if findCount == 1 {
				return &model.Application{ID: id, Status: model.StatusSubmitted}, nil
			}
			return &model.Application{ID: id, Status: model.StatusUnderReview}, nil
		},
		updateStatusFn: func(ctx context.Context, change *model.StatusChange) error {
			updateCount++
			if updateCount == 1 {
				return repository.ErrConflict
			}
			return nil
		},
	}
	engine := newTestEngine(apps, nil, nil)

	app, err := engine.UpdateStatus(context.Background(), "app-1", model.StatusRejected, "条件不一致")
	if err != nil {
		t.Fatalf("UpdateStatus returned error: %v", err)
	}
	if findCount != 2 {
		t.Errorf("expected 2 loads, got %d", findCount)
	}
	if updateCount != 2 {
		t.Errorf("expected 2 update attempts, got %d", updateCount)
	}
	if app.Status != model.StatusRejected {
		t.Errorf("unexpected final status: %s", app.Status)
	}
}

// TestEngine_UpdateStatus_RetryOnlyOnce は2回連続で競合した場合に
// ErrConcurrentModificationが呼び出し元へ返ることを検証する。
func TestEngine_UpdateStatus_RetryOnlyOnce(t *testing.T) {
	updateCount := 0
	apps := &mockAppStore{
		findByIDFn: func(ctx context.Context, id string) (*model.Application, error) {
			return &model.Application{ID: id, Status: model.StatusSubmitted}, nil
		},
		updateStatusFn: func(ctx context.Context, change *model.StatusChange) error {
			updateCount++
			return repository.ErrConflict
		},
	}
	engine := newTestEngine(apps, nil, nil)

	_, err := engine.UpdateStatus(context.Background(), "app-1", model.StatusUnderReview, "確認開始")
	if !errors.Is(err, ErrConcurrentModification) {
		t.Fatalf("expected ErrConcurrentModification, got %v", err)
	}
	if updateCount != 2 {
		t.Errorf("expected exactly 2 update attempts, got %d", updateCount)
	}
}

// TestEngine_UpdateStatus_RetryHitsTerminal は再試行時に対象がすでに終端
// ステータスへ変更されていた場合、検証エラーがそのまま返ることを検証する。
func TestEngine_UpdateStatus_RetryHitsTerminal(t *testing.T) {
	findCount := 0
	apps := &mockAppStore{
		findByIDFn: func(ctx context.Context, id string) (*model.Application, error) {
			findCount++
			if findCount == 1 {
				return &model.Application{ID: id, Status: model.StatusInterviewed}, nil
			}
			return &model.Application{ID: id, Status: model.StatusRejected}, nil
		},
		updateStatusFn: func(ctx context.Context, change *model.StatusChange) error {
			return repository.ErrConflict
		},
	}
	engine := newTestEngine(apps, nil, nil)

	_, err := engine.UpdateStatus(context.Background(), "app-1", model.StatusHired, "最終面接合格")

	var invalidErr *InvalidTransitionError
	if !errors.As(err, &invalidErr) {
		t.Fatalf("expected InvalidTransitionError after retry, got %v", err)
	}
	if invalidErr.From != model.StatusRejected {
		t.Errorf("error should reflect reloaded status, got %s", invalidErr.From)
	}
}

// TestEngine_UpdateStatus_NotFound は存在しない応募の更新がErrApplicationNotFoundに
// なることを検証する。
func TestEngine_UpdateStatus_NotFound(t *testing.T) {
	apps := &mockAppStore{
		findByIDFn: func(ctx context.Context, id string) (*model.Application, error) {
			return nil, nil
		},
	}
	engine := newTestEngine(apps, nil, nil)

	_, err := engine.UpdateStatus(context.Background(), "nonexistent", model.StatusUnderReview, "確認開始")
	if !errors.Is(err, ErrApplicationNotFound) {
		t.Fatalf("expected ErrApplicationNotFound, got %v", err)
	}
}
