package content

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watcher はコンテンツディレクトリのファイル変更を監視し、
// 変更されたドキュメントを同期的に再取り込みする。
// イベント処理は単一ゴルーチンで直列化され、ドキュメントテーブルとの
// 調停はStoreの書き込みロックのみで行う。
type Watcher struct {
	pipeline *Pipeline
	fsw      *fsnotify.Watcher
}

// NewWatcher はcontentRoot配下の全ディレクトリを監視するWatcherを生成する。
// fsnotifyの監視は再帰的でないため、サブディレクトリも1つずつ登録する。
func NewWatcher(pipeline *Pipeline, contentRoot string) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fs watcher: %w", err)
	}
	w := &Watcher{pipeline: pipeline, fsw: fsw}
	if err := w.watchTree(contentRoot); err != nil {
		fsw.Close()
		return nil, err
	}
	return w, nil
}

// watchTree はdirとその配下の全ディレクトリを監視対象に追加する。
func (w *Watcher) watchTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if err := w.fsw.Add(path); err != nil {
			return fmt.Errorf("failed to watch %s: %w", path, err)
		}
		return nil
	})
}

// Run はイベントループを実行する。ctxの取り消しで終了する。
// 再取り込みの失敗はログに残すだけで、テーブル上の既存バージョンは
// そのまま配信され続ける。
func (w *Watcher) Run(ctx context.Context) {
	defer w.fsw.Close()

	for {
		select {
		case <-ctx.Done():
			slog.Info("content watcher stopped")
			return

		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Create) {
				continue
			}
			if event.Op.Has(fsnotify.Create) && w.handleNewDir(ctx, event.Name) {
				continue
			}
			if filepath.Ext(event.Name) != ".md" {
				continue
			}
			w.handleChange(ctx, event.Name)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			slog.Error("content watcher error", slog.String("error", err.Error()))
		}
	}
}

// handleNewDir はCreateイベントのパスが新しいディレクトリだった場合に
// 監視ツリーへ追加し、移動で持ち込まれた可能性のある既存の*.mdを
// 取り込む。ディレクトリを処理した場合はtrueを返す。
func (w *Watcher) handleNewDir(ctx context.Context, name string) bool {
	info, err := os.Stat(name)
	if err != nil || !info.IsDir() {
		return false
	}

	slog.Info("new content directory detected", slog.String("path", name))
	if err := w.watchTree(name); err != nil {
		slog.Error("failed to watch new content directory",
			slog.String("path", name),
			slog.String("error", err.Error()),
		)
		return true
	}
	if err := w.pipeline.ScanAll(ctx, name); err != nil {
		slog.Error("failed to scan new content directory",
			slog.String("path", name),
			slog.String("error", err.Error()),
		)
	}
	return true
}

// handleChange は変更されたパスをロード済みドキュメントと突き合わせて
// 再取り込みする。未知のパス（新規ファイル）もそのまま取り込む。
func (w *Watcher) handleChange(ctx context.Context, name string) {
	path, err := filepath.Abs(name)
	if err != nil {
		path = name
	}

	// エディタによってはイベントのパス表記が揺れるため、
	// ロード済みドキュメント側のパスと正規化して比較する
	if _, loaded := w.pipeline.store.Paths()[path]; !loaded {
		slog.Info("new content file detected", slog.String("path", path))
	}

	if _, err := w.pipeline.IngestOne(ctx, path); err != nil {
		slog.Error("failed to re-ingest document, previous version kept",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
	}
}
