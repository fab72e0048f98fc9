// Package scheduling はスケジューリングプロバイダ連携機能を提供する。
// Calendly互換APIのクライアントを含む。
package scheduling

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Event はプロバイダ上の予約済みイベントを表す。
type Event struct {
	URI       string    // イベントの一意なURI。末尾セグメントが外部イベントID
	Name      string    // イベント種別名
	Status    string    // プロバイダのイベントステータス（"active"等）
	StartTime time.Time // 開始時刻
	EndTime   time.Time // 終了時刻
	JoinURL   string    // 参加可能なミーティングURL。存在しない場合は空
}

// Invitee はイベントの招待者を表す。
// メールアドレスが応募とのマッチングキーになる。
type Invitee struct {
	URI    string
	Name   string
	Email  string
	Status string
}

// User はプロバイダ上の認証済みユーザーを表す。
type User struct {
	URI             string
	Name            string
	Email           string
	OrganizationURI string
}

// EventType はプロバイダ上のイベント種別を表す。
type EventType struct {
	URI      string
	Name     string
	Duration int // 分単位
	Active   bool
}

// ClientConfig はClientの設定パラメータ。
type ClientConfig struct {
	// BaseURL はプロバイダAPIのベースURL。
	BaseURL string
	// Token はBearer認証トークン。
	Token string
	// PageSize は1ページあたりの取得件数。
	PageSize int
	// PaginateAll がtrueの場合、next_page_tokenを追ってすべてのページを取得する。
	// falseの場合は先頭ページのみを取得し、切り詰めが発生したことをログに残す。
	PaginateAll bool
}

// Client はスケジューリングプロバイダAPIのクライアント。
// すべての呼び出しはコンテキストを尊重し、失敗時は構造化されたエラーを返す。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	config     ClientConfig
}

// NewClient はClientの新しいインスタンスを生成する。
// PageSizeが0以下の場合はデフォルト値100を使用する。
func NewClient(httpClient *http.Client, logger *slog.Logger, config ClientConfig) *Client {
	if config.PageSize <= 0 {
		config.PageSize = 100
	}
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		config:     config,
	}
}

// --- APIレスポンス型 ---

type pagination struct {
	NextPageToken string `json:"next_page_token"`
}

type eventResource struct {
	URI       string    `json:"uri"`
	Name      string    `json:"name"`
	Status    string    `json:"status"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Location  struct {
		Type    string `json:"type"`
		JoinURL string `json:"join_url"`
	} `json:"location"`
}

type eventListResponse struct {
	Collection []eventResource `json:"collection"`
	Pagination pagination      `json:"pagination"`
}

type inviteeResource struct {
	URI    string `json:"uri"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Status string `json:"status"`
}

type inviteeListResponse struct {
	Collection []inviteeResource `json:"collection"`
}

type userResponse struct {
	Resource struct {
		URI                 string `json:"uri"`
		Name                string `json:"name"`
		Email               string `json:"email"`
		CurrentOrganization string `json:"current_organization"`
	} `json:"resource"`
}

type eventTypeResource struct {
	URI      string `json:"uri"`
	Name     string `json:"name"`
	Duration int    `json:"duration"`
	Active   bool   `json:"active"`
}

type eventTypeListResponse struct {
	Collection []eventTypeResource `json:"collection"`
	Pagination pagination          `json:"pagination"`
}

// ListOrganizationEvents は組織の予約済みイベント一覧を取得する。
// PaginateAllが有効な場合はnext_page_tokenを追ってすべてのページを取得し、
// 無効な場合は先頭ページのみを返す（続きがあればWARNログを残す）。
func (c *Client) ListOrganizationEvents(ctx context.Context, organizationURI string) ([]Event, error) {
	var events []Event
	pageToken := ""

	for {
		query := url.Values{}
		query.Set("organization", organizationURI)
		query.Set("count", strconv.Itoa(c.config.PageSize))
		if pageToken != "" {
			query.Set("page_token", pageToken)
		}

		var page eventListResponse
		if err := c.get(ctx, c.config.BaseURL+"/scheduled_events?"+query.Encode(), &page); err != nil {
			return nil, fmt.Errorf("イベント一覧の取得に失敗しました: %w", err)
		}

		for _, res := range page.Collection {
			events = append(events, Event{
				URI:       res.URI,
				Name:      res.Name,
				Status:    res.Status,
				StartTime: res.StartTime,
				EndTime:   res.EndTime,
				JoinURL:   res.Location.JoinURL,
			})
		}

		if page.Pagination.NextPageToken == "" {
			break
		}
		if !c.config.PaginateAll {
			c.logger.Warn("イベント一覧に続きのページがありますが、ページネーションが無効のため取得を打ち切ります",
				slog.Int("fetched_events", len(events)),
				slog.Int("page_size", c.config.PageSize),
			)
			break
		}
		pageToken = page.Pagination.NextPageToken
	}

	return events, nil
}

// ListEventInvitees はイベントの招待者一覧を取得する。
// eventURIはListOrganizationEventsが返したイベントURIをそのまま指定する。
func (c *Client) ListEventInvitees(ctx context.Context, eventURI string) ([]Invitee, error) {
	var page inviteeListResponse
	if err := c.get(ctx, eventURI+"/invitees", &page); err != nil {
		return nil, fmt.Errorf("招待者一覧の取得に失敗しました: %w", err)
	}

	invitees := make([]Invitee, 0, len(page.Collection))
	for _, res := range page.Collection {
		invitees = append(invitees, Invitee{
			URI:    res.URI,
			Name:   res.Name,
			Email:  res.Email,
			Status: res.Status,
		})
	}

	return invitees, nil
}

// GetCurrentUser は認証トークンに紐づくユーザー情報を取得する。
// 連携設定画面での疎通確認に使用する。
func (c *Client) GetCurrentUser(ctx context.Context) (*User, error) {
	var res userResponse
	if err := c.get(ctx, c.config.BaseURL+"/users/me", &res); err != nil {
		return nil, fmt.Errorf("ユーザー情報の取得に失敗しました: %w", err)
	}

	return &User{
		URI:             res.Resource.URI,
		Name:            res.Resource.Name,
		Email:           res.Resource.Email,
		OrganizationURI: res.Resource.CurrentOrganization,
	}, nil
}

// ListEventTypes は組織のイベント種別一覧を取得する。
func (c *Client) ListEventTypes(ctx context.Context, organizationURI string) ([]EventType, error) {
	query := url.Values{}
	query.Set("organization", organizationURI)
	query.Set("count", strconv.Itoa(c.config.PageSize))

	var page eventTypeListResponse
	if err := c.get(ctx, c.config.BaseURL+"/event_types?"+query.Encode(), &page); err != nil {
		return nil, fmt.Errorf("イベント種別一覧の取得に失敗しました: %w", err)
	}

	types := make([]EventType, 0, len(page.Collection))
	for _, res := range page.Collection {
		types = append(types, EventType{
			URI:      res.URI,
			Name:     res.Name,
			Duration: res.Duration,
			Active:   res.Active,
		})
	}

	return types, nil
}

// get は認証ヘッダー付きのGETリクエストを実行し、レスポンスJSONをoutへデコードする。
func (c *Client) get(ctx context.Context, rawURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.config.Token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("プロバイダAPIの呼び出しに失敗しました",
			slog.String("url", rawURL),
			slog.String("error", err.Error()),
		)
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Error("プロバイダAPIがエラーステータスを返しました",
			slog.String("url", rawURL),
			slog.Int("http_status", resp.StatusCode),
		)
		return fmt.Errorf("プロバイダAPIがステータス %d を返しました", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("レスポンスJSONのパースに失敗しました: %w", err)
	}

	return nil
}
