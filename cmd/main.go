package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/browser"
	"github.com/spf13/cobra"

	"github.com/char5742/wheel-filter/internal/api"
	"github.com/char5742/wheel-filter/internal/config"
	"github.com/char5742/wheel-filter/internal/features"
	"github.com/char5742/wheel-filter/internal/logging"
)

var (
	configPath  string
	port        int
	openBrowser bool
)

var rootCmd = &cobra.Command{
	Use:          "wheel-filter",
	Short:        "マウスホイールのノイズを取り除くフィルター",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCLI()
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "マウスを専有してスクロールフィルターを実行します",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCLI()
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "APIサーバーモードで起動します",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAPIServer()
	},
}

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "検出されたマウスの一覧を表示します",
	RunE: func(cmd *cobra.Command, args []string) error {
		devices, err := features.ScanDevices()
		if err != nil {
			return fmt.Errorf("デバイス一覧の取得に失敗しました: %w", err)
		}
		for _, d := range devices {
			fmt.Printf("%s\t%s\n", d.Name, d.Path)
		}
		return nil
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "設定ファイルを操作します",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "デフォルト設定を書き込みます",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := resolveConfigPath()
		if err != nil {
			return err
		}
		if err := config.SaveConfig(path, config.DefaultConfig()); err != nil {
			return fmt.Errorf("設定の保存に失敗しました: %w", err)
		}
		fmt.Printf("デフォルト設定を書き込みました: %s\n", path)
		return nil
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "設定ファイルのパスを表示します",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := resolveConfigPath()
		if err != nil {
			return err
		}
		fmt.Println(path)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "設定ファイルのパス (指定しない場合はデフォルトパスを使用)")
	serveCmd.Flags().IntVar(&port, "port", 0, "APIサーバーのポート番号 (0なら設定ファイルの値)")
	serveCmd.Flags().BoolVar(&openBrowser, "open", false, "起動後にブラウザで状態を開きます")

	configCmd.AddCommand(configInitCmd, configPathCmd)
	rootCmd.AddCommand(runCmd, serveCmd, devicesCmd, configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// resolveConfigPath は設定ファイルのパスを決定する
func resolveConfigPath() (string, error) {
	if configPath != "" {
		return configPath, nil
	}
	return config.GetDefaultConfigPath()
}

// bootstrap は設定を読み込み、ログ出力を初期化する
func bootstrap() (*config.Config, string, io.Closer, error) {
	cfgPath, err := resolveConfigPath()
	if err != nil {
		return nil, "", nil, fmt.Errorf("設定ファイルのパスを決定できませんでした: %w", err)
	}

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		fmt.Printf("設定ファイルの読み込みに失敗しました: %v\nデフォルト設定を使用します\n", err)
		cfg = config.DefaultConfig()
	}
	// 読み込めた値が不正な場合は起動しない
	if err := cfg.Validate(); err != nil {
		return nil, "", nil, fmt.Errorf("設定が不正です: %w", err)
	}

	closer, err := logging.Setup(logging.Options{ToFile: cfg.Log.LogToFile, File: cfg.LogFile()})
	if err != nil {
		return nil, "", nil, err
	}
	log.Printf("設定ファイルを読み込みました: %s", cfgPath)
	return cfg, cfgPath, closer, nil
}

// startDeviceMonitor はマウスの抜き差しをサービスに伝える
func startDeviceMonitor(service *api.ScrollService) *features.DeviceMonitor {
	monitor, err := features.NewDeviceMonitor()
	if err != nil {
		log.Printf("デバイスモニターの初期化に失敗しました: %v", err)
		return nil
	}
	monitor.RegisterCallback(service.HandleDeviceEvent)
	if err := monitor.Start(); err != nil {
		log.Printf("デバイスモニターの起動に失敗しました: %v", err)
		return nil
	}
	return monitor
}

// startConfigWatcher は設定ファイルの変更をサービスに反映する
func startConfigWatcher(service *api.ScrollService, cfgPath string) *config.Watcher {
	watcher, err := config.NewWatcher(cfgPath, func(cfg *config.Config) {
		if err := service.UpdateConfig(cfg); err != nil {
			log.Printf("設定の反映に失敗しました: %v", err)
		}
	})
	if err != nil {
		log.Printf("設定ファイルの監視を開始できませんでした: %v", err)
		return nil
	}
	if err := watcher.Start(); err != nil {
		log.Printf("設定ファイルの監視を開始できませんでした: %v", err)
		return nil
	}
	return watcher
}

// startWatchers はデバイスと設定ファイルの監視を開始し、停止する関数を返す
// CLIモードとAPIサーバーモードの両方で使う
func startWatchers(service *api.ScrollService, cfgPath string) func() {
	monitor := startDeviceMonitor(service)
	watcher := startConfigWatcher(service, cfgPath)
	return func() {
		if watcher != nil {
			watcher.Stop()
		}
		if monitor != nil {
			monitor.Stop()
		}
	}
}

// CLIモードでの実行
func runCLI() error {
	cfg, cfgPath, closer, err := bootstrap()
	if err != nil {
		return err
	}
	defer closer.Close()

	service, err := api.NewScrollService(cfg)
	if err != nil {
		return err
	}
	if err := service.Start(); err != nil {
		return fmt.Errorf("スクロールフィルターの起動に失敗しました: %w", err)
	}

	defer startWatchers(service, cfgPath)()

	waitForSignal()
	if err := service.Stop(); err != nil {
		log.Printf("サービスの停止: %v", err)
	}
	return nil
}

// APIサーバーモードでの実行
func runAPIServer() error {
	cfg, cfgPath, closer, err := bootstrap()
	if err != nil {
		return err
	}
	defer closer.Close()

	service, err := api.NewScrollService(cfg)
	if err != nil {
		return err
	}
	defer startWatchers(service, cfgPath)()

	p := cfg.API.Port
	if port != 0 {
		p = port
	}
	server := api.NewServer(service, cfgPath, p)

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	if openBrowser {
		if err := browser.OpenURL(server.URL() + "/api/service/status"); err != nil {
			log.Printf("ブラウザを開けませんでした: %v", err)
		}
	}

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("APIサーバーの起動に失敗しました: %w", err)
		}
	case <-signalChan():
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Stop(ctx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		log.Printf("APIサーバーの停止に失敗しました: %v", err)
	}
	if service.IsRunning() {
		_ = service.Stop()
	}
	return nil
}

func signalChan() <-chan os.Signal {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	return sigChan
}

// シグナルが来るまで待機する
func waitForSignal() {
	<-signalChan()
	log.Println("シャットダウンします...")
}
