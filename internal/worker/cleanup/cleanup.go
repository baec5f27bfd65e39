// Package cleanup は期限切れセッションの自動削除ジョブを提供する。
// created_atがセッション有効期限（デフォルト5日）を超過したセッション行を
// 定期バッチで削除する。Cookieの期限切れでクライアント側からは参照されなく
// なった行を、サーバ側でも掃除するための仕組み。
package cleanup

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// Executor はSQLのExecContextを抽象化するインターフェース。
// *sql.DB や *sql.Tx を受け付けることができる。
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// SessionCleanupJob は期限切れセッションの自動削除ジョブ。
// 定期実行のバッチジョブとして設計されており、冪等な削除処理を保証する。
type SessionCleanupJob struct {
	db     Executor
	logger *slog.Logger
	MaxAge time.Duration // セッションの有効期間（デフォルト: 5日）
}

// NewSessionCleanupJob は新しいSessionCleanupJobを生成する。
// デフォルトの有効期間は5日で、セッションCookieのMax-Ageと揃える。
func NewSessionCleanupJob(db Executor, logger *slog.Logger) *SessionCleanupJob {
	return &SessionCleanupJob{
		db:     db,
		logger: logger,
		MaxAge: 5 * 24 * time.Hour,
	}
}

// Run は有効期限を超過したセッションを削除する。
// created_atがMaxAgeより古いセッションをDELETEする。
// 冪等: 削除対象がない場合でもエラーにならない。
func (j *SessionCleanupJob) Run(ctx context.Context) error {
	start := time.Now()

	interval := fmt.Sprintf("%d seconds", int64(j.MaxAge.Seconds()))

	query := `DELETE FROM sessions WHERE created_at < now() - $1::interval`
	result, err := j.db.ExecContext(ctx, query, interval)
	if err != nil {
		j.logger.Error("セッションクリーンアップジョブの実行に失敗しました",
			slog.String("error", err.Error()),
			slog.String("max_age", j.MaxAge.String()),
		)
		return fmt.Errorf("セッションクリーンアップの実行に失敗: %w", err)
	}

	deletedCount, err := result.RowsAffected()
	if err != nil {
		j.logger.Error("削除件数の取得に失敗しました",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("削除件数の取得に失敗: %w", err)
	}

	duration := time.Since(start)
	j.logger.Info("セッションクリーンアップジョブが完了しました",
		slog.Int64("deleted_count", deletedCount),
		slog.String("max_age", j.MaxAge.String()),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}

// RunPeriodic は指定間隔でRunを繰り返し実行する。
// 起動直後に1回実行し、以降はintervalごとに実行する。
// ctxのキャンセルで停止する。個々の実行の失敗はログに残して継続する。
func (j *SessionCleanupJob) RunPeriodic(ctx context.Context, interval time.Duration) {
	if err := j.Run(ctx); err != nil {
		j.logger.Error("初回セッションクリーンアップに失敗しました",
			slog.String("error", err.Error()),
		)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := j.Run(ctx); err != nil {
				j.logger.Error("定期セッションクリーンアップに失敗しました",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}
