// Package logging はプロセス全体のログ出力を初期化する
package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
)

// Options はログ出力の設定
type Options struct {
	ToFile bool
	File   string
	Stderr io.Writer // nilならos.Stderr
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Setup は標準のloggerの出力先とフラグを設定する
// ファイル出力時は標準エラーにも同じ内容を書く。返り値のCloseでファイルを閉じる
func Setup(opts Options) (io.Closer, error) {
	stderr := opts.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	if !opts.ToFile {
		log.SetOutput(stderr)
		return nopCloser{}, nil
	}

	if err := os.MkdirAll(filepath.Dir(opts.File), 0755); err != nil {
		return nil, fmt.Errorf("ログディレクトリの作成に失敗しました: %w", err)
	}
	f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("ログファイルを開けませんでした: %w", err)
	}
	log.SetOutput(io.MultiWriter(stderr, f))
	return f, nil
}
