package config

import (
	"log"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher は設定ファイルの変更を監視して再読み込みする
type Watcher struct {
	path     string
	watcher  *fsnotify.Watcher
	debounce time.Duration
	onChange func(*Config)
	stopChan chan struct{}
	done     chan struct{}
}

// WatcherOption はWatcherのオプション
type WatcherOption func(*Watcher)

// WithDebounce は連続した変更をまとめる待ち時間を設定する
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d >= 0 {
			w.debounce = d
		}
	}
}

// NewWatcher は設定ファイルの監視を作成する
// onChangeには検証済みの新しい設定が渡される
func NewWatcher(path string, onChange func(*Config), opts ...WatcherOption) (*Watcher, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		path:     absPath,
		watcher:  fw,
		debounce: 200 * time.Millisecond,
		onChange: onChange,
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Start は監視を開始する
// エディタは一時ファイルの置き換えで保存することがあるのでディレクトリを監視する
func (w *Watcher) Start() error {
	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		return err
	}
	go w.run()
	return nil
}

// Stop は監視を停止する
func (w *Watcher) Stop() {
	close(w.stopChan)
	w.watcher.Close()
	<-w.done
}

func (w *Watcher) run() {
	defer close(w.done)

	timer := time.NewTimer(w.debounce)
	timer.Stop()

	for {
		select {
		case <-w.stopChan:
			timer.Stop()
			return

		case <-timer.C:
			w.reload()

		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			timer.Reset(w.debounce)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("設定ファイル監視エラー: %v", err)
		}
	}
}

// reload は設定を読み直し、正しければ通知する
func (w *Watcher) reload() {
	cfg := DefaultConfig()
	if err := decodeFile(w.path, cfg); err != nil {
		log.Printf("設定の再読み込みに失敗しました: %v", err)
		return
	}
	if err := cfg.Validate(); err != nil {
		log.Printf("設定が不正なため無視します: %v", err)
		return
	}
	log.Printf("設定を再読み込みしました: %s", w.path)
	w.onChange(cfg)
}
