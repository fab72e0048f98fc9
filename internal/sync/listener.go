package sync

import (
	"context"
	"log/slog"
	"time"

	"github.com/lib/pq"
)

// interviewsChannel は面接テーブルの変更通知チャネル名。
// マイグレーションで定義されるトリガーがpg_notifyで発行する。
const interviewsChannel = "interviews_changed"

// ViewRefresher は変更通知を受けてビューを更新するインターフェース。
// Orchestratorが実装する。
type ViewRefresher interface {
	RefreshRecent(ctx context.Context)
}

// ChangeListener はPostgreSQLのLISTEN/NOTIFYで面接テーブルの変更を購読し、
// 通知のたびにステータスビューの直近面接一覧を更新させる。
// 同期以外の経路（将来の手動登録等）による変更も遅延なくビューへ反映される。
type ChangeListener struct {
	listener  *pq.Listener
	refresher ViewRefresher
	logger    *slog.Logger
}

// NewChangeListener はChangeListenerの新しいインスタンスを生成する。
// 接続断が発生してもpq.Listenerが自動的に再接続する。
func NewChangeListener(databaseURL string, refresher ViewRefresher, logger *slog.Logger) *ChangeListener {
	listener := pq.NewListener(databaseURL, 10*time.Second, time.Minute,
		func(event pq.ListenerEventType, err error) {
			if err != nil {
				logger.Error("変更通知リスナーで接続イベントが発生しました",
					slog.Int("event_type", int(event)),
					slog.String("error", err.Error()),
				)
			}
		})
	return &ChangeListener{
		listener:  listener,
		refresher: refresher,
		logger:    logger,
	}
}

// Start は変更通知の購読を開始し、コンテキストがキャンセルされるまで
// 通知を処理し続ける。終了時にリスナー接続を閉じる。
func (l *ChangeListener) Start(ctx context.Context) error {
	if err := l.listener.Listen(interviewsChannel); err != nil {
		return err
	}
	defer l.listener.Close()

	l.logger.Info("面接変更通知の購読を開始しました",
		slog.String("channel", interviewsChannel),
	)

	// 長時間通知がない場合でも定期的に接続の生存確認を行う
	pingTicker := time.NewTicker(90 * time.Second)
	defer pingTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("面接変更通知の購読を停止しました")
			return nil
		case notification := <-l.listener.Notify:
			// 再接続直後はnilが届くことがある
			if notification == nil {
				continue
			}
			l.logger.Debug("面接テーブルの変更通知を受信しました",
				slog.String("payload", notification.Extra),
			)
			l.refresher.RefreshRecent(ctx)
		case <-pingTicker.C:
			if err := l.listener.Ping(); err != nil {
				l.logger.Error("変更通知リスナーの生存確認に失敗しました",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}
