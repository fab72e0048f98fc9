// Package notify は候補者向けメール通知のディスパッチ機能を提供する。
// テンプレートの描画と実際の送信は外部のメール配信APIが担う。
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
)

// Dispatcher はメール通知ディスパッチのインターフェース。
// 呼び出し元（ワークフローエンジン）からはfire-and-forgetで扱われ、
// 送信失敗はログに記録されるだけで状態変更をロールバックしない。
type Dispatcher interface {
	// Send はテンプレートキーと変数を指定してメール送信を依頼する。
	Send(ctx context.Context, templateKey, recipient string, variables map[string]string) error
}

// Client はメール配信APIのクライアント。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	apiURL     string
	apiKey     string
}

// NewClient はClientの新しいインスタンスを生成する。
func NewClient(httpClient *http.Client, logger *slog.Logger, apiURL, apiKey string) *Client {
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		apiURL:     apiURL,
		apiKey:     apiKey,
	}
}

// sendRequest はメール配信APIへのリクエストボディ。
type sendRequest struct {
	Template  string            `json:"template"`
	To        string            `json:"to"`
	Variables map[string]string `json:"variables"`
}

// Send はテンプレートキーと変数を指定してメール送信を依頼する。
// 2xx以外のレスポンスはエラーとして返す（リトライ判断は呼び出し元に委ねる）。
func (c *Client) Send(ctx context.Context, templateKey, recipient string, variables map[string]string) error {
	payload, err := json.Marshal(sendRequest{
		Template:  templateKey,
		To:        recipient,
		Variables: variables,
	})
	if err != nil {
		return fmt.Errorf("送信リクエストの作成に失敗しました: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("メール配信APIの呼び出しに失敗しました",
			slog.String("template", templateKey),
			slog.String("error", err.Error()),
		)
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Error("メール配信APIがエラーステータスを返しました",
			slog.String("template", templateKey),
			slog.Int("http_status", resp.StatusCode),
		)
		return fmt.Errorf("メール配信APIがステータス %d を返しました", resp.StatusCode)
	}

	return nil
}

// compile-time interface check
var _ Dispatcher = (*Client)(nil)
