package api

import (
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/char5742/wheel-filter/internal/config"
	"github.com/char5742/wheel-filter/internal/features"
	"github.com/char5742/wheel-filter/internal/hook"
	"github.com/char5742/wheel-filter/internal/scroll"
)

// 仮想マウスのデバイス名
const virtualMouseName = "wheel-filter virtual mouse"

var (
	errAlreadyRunning = errors.New("サービスは既に実行中です")
	errNotRunning     = errors.New("サービスは実行されていません")
)

// ServiceStatus はサービスの状態と処理件数
type ServiceStatus struct {
	Running bool            `json:"running"`
	Device  features.Device `json:"device"`
	Filter  scroll.Stats    `json:"filter"`
	Hook    hook.Stats      `json:"hook"`
}

// ScrollService はスクロールフィルターサービスを管理する構造体
type ScrollService struct {
	cfg         *config.Config
	stopChan    chan struct{}
	done        chan struct{}
	running     bool
	wantRunning bool // 明示的に停止されるまで再接続時に再開する
	statusMutex sync.RWMutex

	mouse       features.Mouse
	virtual     features.VirtualMouse
	filter      *scroll.Filter
	interceptor *hook.Interceptor
	device      features.Device

	scanDevices   func() ([]features.Device, error)
	openMouse     func(path string) (features.Mouse, error)
	createVirtual func() (features.VirtualMouse, error)
}

// NewScrollService は新しいスクロールフィルターサービスを作成する
// 設定が不正な場合はエラーを返す
func NewScrollService(cfg *config.Config) (*ScrollService, error) {
	s := &ScrollService{
		cfg:         cfg,
		scanDevices: features.ScanDevices,
		openMouse:   features.OpenMouse,
		createVirtual: func() (features.VirtualMouse, error) {
			return features.CreateVirtualMouse("/dev/uinput", virtualMouseName)
		},
	}
	filter, err := newFilter(cfg)
	if err != nil {
		return nil, err
	}
	s.filter = filter
	return s, nil
}

// newFilter は設定からフィルターを作成し、時計の異常をログに出す
func newFilter(cfg *config.Config) (*scroll.Filter, error) {
	return scroll.New(cfg.ScrollConfig(), scroll.WithAnomalyHandler(func(a scroll.Anomaly) {
		log.Printf("イベント時刻が巻き戻りました: 前回=%s 今回=%s (差分 %v)",
			a.PreviousTime.Format("15:04:05.000000"), a.EventTime.Format("15:04:05.000000"), a.Elapsed)
	}))
}

// Start はスクロールフィルターサービスを開始する
func (s *ScrollService) Start() error {
	s.statusMutex.Lock()
	defer s.statusMutex.Unlock()

	if s.running {
		return errAlreadyRunning
	}

	devices, err := s.scanDevices()
	if err != nil {
		return fmt.Errorf("デバイス一覧の取得に失敗しました: %w", err)
	}
	dev, ok := features.SelectMouse(devices, s.cfg.DevicePrefs.PreferredMouseDevice)
	if !ok {
		return fmt.Errorf("マウスデバイスが見つかりませんでした")
	}
	log.Printf("使用するマウス: %s", dev.Name)

	mouse, err := s.openMouse(dev.Path)
	if err != nil {
		return fmt.Errorf("マウスデバイスのオープンに失敗しました[path=%s]: %w", dev.Path, err)
	}
	virtual, err := s.createVirtual()
	if err != nil {
		mouse.Close()
		return fmt.Errorf("仮想マウスの作成に失敗しました: %w", err)
	}
	if err := mouse.Grab(); err != nil {
		virtual.Close()
		mouse.Close()
		return err
	}

	s.mouse = mouse
	s.virtual = virtual
	s.device = dev
	s.interceptor = hook.NewInterceptor(mouse, virtual, s.filter)
	s.stopChan = make(chan struct{})
	s.done = make(chan struct{})
	s.running = true
	s.wantRunning = true

	go s.runFilterLoop(s.interceptor, mouse, virtual, s.stopChan, s.done)
	return nil
}

// runFilterLoop はインターセプターが終了するまで実行し、デバイスを閉じる
func (s *ScrollService) runFilterLoop(in *hook.Interceptor, mouse features.Mouse, virtual features.VirtualMouse, stop, done chan struct{}) {
	defer close(done)

	log.Println("スクロールフィルターを開始しました...")
	err := in.Run(stop)
	if err != nil {
		log.Printf("スクロールフィルターが異常終了しました: %v", err)
	}

	_ = mouse.Close()
	_ = virtual.Close()

	s.statusMutex.Lock()
	if s.stopChan == stop {
		s.running = false
	}
	s.statusMutex.Unlock()
	log.Println("スクロールフィルターを停止しました")
}

// Stop はスクロールフィルターサービスを停止する
func (s *ScrollService) Stop() error {
	s.statusMutex.Lock()
	if !s.running {
		s.wantRunning = false
		s.statusMutex.Unlock()
		return errNotRunning
	}
	close(s.stopChan)
	s.running = false
	s.wantRunning = false
	mouse, done := s.mouse, s.done
	s.statusMutex.Unlock()

	// 読み込み中のReadEventを解除する
	_ = mouse.Close()
	<-done
	return nil
}

// UpdateConfig は設定を更新し、フィルターを作り直す
// 実行中であれば次のフレームから新しいフィルターが使われる
func (s *ScrollService) UpdateConfig(cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	filter, err := newFilter(cfg)
	if err != nil {
		return err
	}

	s.statusMutex.Lock()
	defer s.statusMutex.Unlock()
	s.cfg = cfg
	s.filter = filter
	if s.interceptor != nil {
		s.interceptor.SetDecider(filter)
	}
	log.Println("設定を更新しました")
	return nil
}

// Config は現在の設定を返す
func (s *ScrollService) Config() *config.Config {
	s.statusMutex.RLock()
	defer s.statusMutex.RUnlock()
	return s.cfg
}

// IsRunning はサービスが実行中かどうかを返す
func (s *ScrollService) IsRunning() bool {
	s.statusMutex.RLock()
	defer s.statusMutex.RUnlock()
	return s.running
}

// Status はサービスの状態と処理件数を返す
func (s *ScrollService) Status() ServiceStatus {
	s.statusMutex.RLock()
	defer s.statusMutex.RUnlock()

	st := ServiceStatus{
		Running: s.running,
		Device:  s.device,
		Filter:  s.filter.Stats(),
	}
	if s.interceptor != nil {
		st.Hook = s.interceptor.Stats()
	}
	return st
}

// Devices は接続されているマウスの一覧を返す
func (s *ScrollService) Devices() ([]features.Device, error) {
	return s.scanDevices()
}

// HandleDeviceEvent はマウスの抜き差しに応じてサービスを再開する
func (s *ScrollService) HandleDeviceEvent(ev features.DeviceEvent) {
	s.statusMutex.RLock()
	active, running, want := s.device, s.running, s.wantRunning
	preferred := s.cfg.DevicePrefs.PreferredMouseDevice
	s.statusMutex.RUnlock()

	switch ev.Type {
	case features.DeviceRemoved:
		if running && ev.Device.Name == active.Name {
			log.Printf("使用中のマウスが切断されました: %s", ev.Device.Name)
		}
	case features.DeviceAdded, features.DeviceChanged:
		if running || !want {
			return
		}
		if preferred != "" && ev.Device.Name != preferred {
			return
		}
		log.Printf("マウスが接続されたのでサービスを再開します: %s", ev.Device.Name)
		if err := s.Start(); err != nil && !errors.Is(err, errAlreadyRunning) {
			log.Printf("サービスの再開に失敗しました: %v", err)
		}
	}
}
