package sync

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/hitoshi/hireman/internal/model"
	"github.com/hitoshi/hireman/internal/scheduling"
)

// --- モック ---

type mockEventSource struct {
	listEventsFn   func(ctx context.Context, organizationURI string) ([]scheduling.Event, error)
	listInviteesFn func(ctx context.Context, eventURI string) ([]scheduling.Invitee, error)
}

func (m *mockEventSource) ListOrganizationEvents(ctx context.Context, organizationURI string) ([]scheduling.Event, error) {
	return m.listEventsFn(ctx, organizationURI)
}
func (m *mockEventSource) ListEventInvitees(ctx context.Context, eventURI string) ([]scheduling.Invitee, error) {
	if m.listInviteesFn != nil {
		return m.listInviteesFn(ctx, eventURI)
	}
	return nil, nil
}

type mockAppFinder struct {
	findLatestByEmailFn func(ctx context.Context, email string) (*model.Application, error)
}

func (m *mockAppFinder) FindLatestByEmail(ctx context.Context, email string) (*model.Application, error) {
	if m.findLatestByEmailFn != nil {
		return m.findLatestByEmailFn(ctx, email)
	}
	return nil, nil
}

// memInterviewStore は重複排除の検証に使うインメモリの面接ストア。
type memInterviewStore struct {
	byExternalID map[string]*model.Interview
	createErr    error
}

func newMemInterviewStore() *memInterviewStore {
	return &memInterviewStore{byExternalID: map[string]*model.Interview{}}
}

func (m *memInterviewStore) FindByExternalEventID(ctx context.Context, externalEventID string) (*model.Interview, error) {
	return m.byExternalID[externalEventID], nil
}
func (m *memInterviewStore) Create(ctx context.Context, interview *model.Interview) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.byExternalID[interview.ExternalEventID] = interview
	return nil
}

type mockURLValidator struct {
	validateFn func(rawURL string) error
}

func (m *mockURLValidator) ValidateURL(rawURL string) error {
	if m.validateFn != nil {
		return m.validateFn(rawURL)
	}
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testEvent(id string) scheduling.Event {
	return scheduling.Event{
		URI:       "https://api.example.com/scheduled_events/" + id,
		Name:      "一次面接",
		Status:    "active",
		StartTime: time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC),
		JoinURL:   "https://meet.example.com/" + id,
	}
}

func singleInvitee(email string) func(ctx context.Context, eventURI string) ([]scheduling.Invitee, error) {
	return func(ctx context.Context, eventURI string) ([]scheduling.Invitee, error) {
		return []scheduling.Invitee{{Email: email, Name: "招待者"}}, nil
	}
}

func matchingApp(id, email string) func(ctx context.Context, e string) (*model.Application, error) {
	return func(ctx context.Context, e string) (*model.Application, error) {
		if e == email {
			return &model.Application{ID: id, CandidateEmail: email}, nil
		}
		return nil, nil
	}
}

// --- テスト ---

// TestReconciler_CreatesInterview はマッチするイベントから面接レコードが
// 作成されることを検証する。
func TestReconciler_CreatesInterview(t *testing.T) {
	source := &mockEventSource{
		listEventsFn: func(ctx context.Context, organizationURI string) ([]scheduling.Event, error) {
			return []scheduling.Event{testEvent("EV1")}, nil
		},
		listInviteesFn: singleInvitee("taro@example.com"),
	}
	apps := &mockAppFinder{findLatestByEmailFn: matchingApp("app-1", "taro@example.com")}
	store := newMemInterviewStore()

	r := NewReconciler(source, apps, store, &mockURLValidator{}, discardLogger())
	report, err := r.Reconcile(context.Background(), "org-1")
	if err != nil {
		t.Fatalf("Reconcile returned error: %v", err)
	}
	if report.Created != 1 || report.Skipped != 0 || len(report.Errors) != 0 {
		t.Fatalf("unexpected report: %+v", report)
	}

	created := store.byExternalID["EV1"]
	if created == nil {
		t.Fatal("expected interview with external event ID EV1")
	}
	if created.ApplicationID != "app-1" {
		t.Errorf("unexpected application ID: %s", created.ApplicationID)
	}
	if created.CandidateEmail != "taro@example.com" {
		t.Errorf("unexpected candidate email: %s", created.CandidateEmail)
	}
	if created.Status != model.InterviewStatusScheduled {
		t.Errorf("provider status active should map to scheduled, got %s", created.Status)
	}
	if created.MeetingURL != "https://meet.example.com/EV1" {
		t.Errorf("unexpected meeting URL: %s", created.MeetingURL)
	}
	// リポジトリはタイムスタンプ列を明示的にINSERTするため、
	// ゼロ値のまま渡すとDBのDEFAULTが適用されない。
	if created.CreatedAt.IsZero() {
		t.Error("created_at should be set at reconcile time")
	}
	if created.UpdatedAt.IsZero() {
		t.Error("updated_at should be set at reconcile time")
	}
}

// TestReconciler_Idempotent は同じイベント一覧で2回実行しても
// 2回目は何も作成されないことを検証する。
func TestReconciler_Idempotent(t *testing.T) {
	events := []scheduling.Event{testEvent("EV1"), testEvent("EV2")}
	source := &mockEventSource{
		listEventsFn: func(ctx context.Context, organizationURI string) ([]scheduling.Event, error) {
			return events, nil
		},
		listInviteesFn: singleInvitee("taro@example.com"),
	}
	apps := &mockAppFinder{findLatestByEmailFn: matchingApp("app-1", "taro@example.com")}
	store := newMemInterviewStore()

	r := NewReconciler(source, apps, store, &mockURLValidator{}, discardLogger())

	first, err := r.Reconcile(context.Background(), "org-1")
	if err != nil {
		t.Fatalf("first Reconcile returned error: %v", err)
	}
	if first.Created != 2 {
		t.Fatalf("expected 2 created on first run, got %d", first.Created)
	}

	second, err := r.Reconcile(context.Background(), "org-1")
	if err != nil {
		t.Fatalf("second Reconcile returned error: %v", err)
	}
	if second.Created != 0 {
		t.Errorf("expected 0 created on second run, got %d", second.Created)
	}
	if second.Skipped != 2 {
		t.Errorf("expected 2 skipped on second run, got %d", second.Skipped)
	}
}

// TestReconciler_UnmatchedInviteeSkipped は応募とマッチしない招待者の
// イベントがエラーではなくスキップとして扱われることを検証する。
func TestReconciler_UnmatchedInviteeSkipped(t *testing.T) {
	source := &mockEventSource{
		listEventsFn: func(ctx context.Context, organizationURI string) ([]scheduling.Event, error) {
			return []scheduling.Event{testEvent("EV1")}, nil
		},
		listInviteesFn: singleInvitee("unknown@example.com"),
	}
	apps := &mockAppFinder{} // 常にnilを返す
	store := newMemInterviewStore()

	r := NewReconciler(source, apps, store, &mockURLValidator{}, discardLogger())
	report, err := r.Reconcile(context.Background(), "org-1")
	if err != nil {
		t.Fatalf("Reconcile returned error: %v", err)
	}
	if report.Created != 0 || report.Skipped != 1 || len(report.Errors) != 0 {
		t.Fatalf("unexpected report: %+v", report)
	}
}

// TestReconciler_NoInviteesSkipped は招待者のいないイベントが
// スキップされることを検証する。
func TestReconciler_NoInviteesSkipped(t *testing.T) {
	source := &mockEventSource{
		listEventsFn: func(ctx context.Context, organizationURI string) ([]scheduling.Event, error) {
			return []scheduling.Event{testEvent("EV1")}, nil
		},
		listInviteesFn: func(ctx context.Context, eventURI string) ([]scheduling.Invitee, error) {
			return nil, nil
		},
	}
	store := newMemInterviewStore()

	r := NewReconciler(source, &mockAppFinder{}, store, &mockURLValidator{}, discardLogger())
	report, err := r.Reconcile(context.Background(), "org-1")
	if err != nil {
		t.Fatalf("Reconcile returned error: %v", err)
	}
	if report.Skipped != 1 || report.Created != 0 {
		t.Fatalf("unexpected report: %+v", report)
	}
}

// TestReconciler_MalformedURIIsolated は不正なURIのイベントがエラーとして
// 記録され、残りのイベントの処理が継続されることを検証する。
func TestReconciler_MalformedURIIsolated(t *testing.T) {
	malformed := scheduling.Event{URI: "no-path-segments", Status: "active"}
	source := &mockEventSource{
		listEventsFn: func(ctx context.Context, organizationURI string) ([]scheduling.Event, error) {
			return []scheduling.Event{malformed, testEvent("EV1"), testEvent("EV2")}, nil
		},
		listInviteesFn: singleInvitee("taro@example.com"),
	}
	apps := &mockAppFinder{findLatestByEmailFn: matchingApp("app-1", "taro@example.com")}
	store := newMemInterviewStore()

	r := NewReconciler(source, apps, store, &mockURLValidator{}, discardLogger())
	report, err := r.Reconcile(context.Background(), "org-1")
	if err != nil {
		t.Fatalf("Reconcile returned error: %v", err)
	}
	if len(report.Errors) != 1 {
		t.Fatalf("expected 1 event error, got %d", len(report.Errors))
	}
	if report.Errors[0].EventURI != "no-path-segments" {
		t.Errorf("unexpected error event URI: %s", report.Errors[0].EventURI)
	}
	if report.Created != 2 {
		t.Errorf("expected remaining 2 events to be created, got %d", report.Created)
	}
}

// TestReconciler_InviteeFetchErrorIsolated は招待者取得の失敗が
// イベント単位のエラーとして回復されることを検証する。
func TestReconciler_InviteeFetchErrorIsolated(t *testing.T) {
	source := &mockEventSource{
		listEventsFn: func(ctx context.Context, organizationURI string) ([]scheduling.Event, error) {
			return []scheduling.Event{testEvent("EV1"), testEvent("EV2")}, nil
		},
		listInviteesFn: func(ctx context.Context, eventURI string) ([]scheduling.Invitee, error) {
			if eventURI == "https://api.example.com/scheduled_events/EV1" {
				return nil, errors.New("接続タイムアウト")
			}
			return []scheduling.Invitee{{Email: "taro@example.com"}}, nil
		},
	}
	apps := &mockAppFinder{findLatestByEmailFn: matchingApp("app-1", "taro@example.com")}
	store := newMemInterviewStore()

	r := NewReconciler(source, apps, store, &mockURLValidator{}, discardLogger())
	report, err := r.Reconcile(context.Background(), "org-1")
	if err != nil {
		t.Fatalf("Reconcile returned error: %v", err)
	}
	if len(report.Errors) != 1 || report.Created != 1 {
		t.Fatalf("unexpected report: %+v", report)
	}
}

// TestReconciler_EventListFailureAborts はイベント一覧の取得失敗が
// 実行全体のエラーになることを検証する。
func TestReconciler_EventListFailureAborts(t *testing.T) {
	source := &mockEventSource{
		listEventsFn: func(ctx context.Context, organizationURI string) ([]scheduling.Event, error) {
			return nil, errors.New("認証エラー")
		},
	}

	r := NewReconciler(source, &mockAppFinder{}, newMemInterviewStore(), &mockURLValidator{}, discardLogger())
	_, err := r.Reconcile(context.Background(), "org-1")
	if err == nil {
		t.Fatal("expected error when event list fetch fails")
	}
}

// TestReconciler_LatestApplicationWins は同一メールの応募が複数ある場合に
// 最新の応募へ面接が紐づくことを検証する。
func TestReconciler_LatestApplicationWins(t *testing.T) {
	source := &mockEventSource{
		listEventsFn: func(ctx context.Context, organizationURI string) ([]scheduling.Event, error) {
			return []scheduling.Event{testEvent("EV1")}, nil
		},
		listInviteesFn: singleInvitee("jane@example.com"),
	}
	// リポジトリの規約によりFindLatestByEmailはcreated_at最新の1件を返す
	apps := &mockAppFinder{
		findLatestByEmailFn: func(ctx context.Context, email string) (*model.Application, error) {
			return &model.Application{ID: "app-newer", CandidateEmail: email}, nil
		},
	}
	store := newMemInterviewStore()

	r := NewReconciler(source, apps, store, &mockURLValidator{}, discardLogger())
	if _, err := r.Reconcile(context.Background(), "org-1"); err != nil {
		t.Fatalf("Reconcile returned error: %v", err)
	}
	if store.byExternalID["EV1"].ApplicationID != "app-newer" {
		t.Errorf("interview should link to the latest application, got %s",
			store.byExternalID["EV1"].ApplicationID)
	}
}

// TestReconciler_InvalidMeetingURLStoredBlank は検証に失敗したミーティングURLが
// 空として保存され、取り込み自体は成功することを検証する。
func TestReconciler_InvalidMeetingURLStoredBlank(t *testing.T) {
	event := testEvent("EV1")
	event.JoinURL = "http://169.254.169.254/latest/meta-data"
	source := &mockEventSource{
		listEventsFn: func(ctx context.Context, organizationURI string) ([]scheduling.Event, error) {
			return []scheduling.Event{event}, nil
		},
		listInviteesFn: singleInvitee("taro@example.com"),
	}
	apps := &mockAppFinder{findLatestByEmailFn: matchingApp("app-1", "taro@example.com")}
	store := newMemInterviewStore()
	guard := &mockURLValidator{
		validateFn: func(rawURL string) error {
			return errors.New("blocked IP address")
		},
	}

	r := NewReconciler(source, apps, store, guard, discardLogger())
	report, err := r.Reconcile(context.Background(), "org-1")
	if err != nil {
		t.Fatalf("Reconcile returned error: %v", err)
	}
	if report.Created != 1 {
		t.Fatalf("expected interview to be created, got %+v", report)
	}
	if store.byExternalID["EV1"].MeetingURL != "" {
		t.Errorf("invalid meeting URL should be stored blank, got %q",
			store.byExternalID["EV1"].MeetingURL)
	}
}

// TestExternalEventID はイベントURIからの外部イベントID抽出を検証する。
func TestExternalEventID(t *testing.T) {
	tests := []struct {
		uri     string
		want    string
		wantErr bool
	}{
		{uri: "https://api.example.com/scheduled_events/ABC123", want: "ABC123"},
		{uri: "https://api.example.com/scheduled_events/ABC123/", want: "ABC123"},
		{uri: "no-path-segments", wantErr: true},
		{uri: "", wantErr: true},
		{uri: "////", wantErr: true},
	}

	for _, tt := range tests {
		got, err := externalEventID(tt.uri)
		if tt.wantErr {
			if err == nil {
				t.Errorf("uri %q: expected error, got %q", tt.uri, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("uri %q: unexpected error: %v", tt.uri, err)
			continue
		}
		if got != tt.want {
			t.Errorf("uri %q: got %q, want %q", tt.uri, got, tt.want)
		}
	}
}
