package features

import (
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// 入力デバイスのシンボリックリンクがあるディレクトリ
var byIDDir = "/dev/input/by-id"

type Device struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

// DeviceEventType はデバイスイベントの種類を表す
type DeviceEventType int

const (
	DeviceAdded DeviceEventType = iota
	DeviceRemoved
	DeviceChanged
)

func (t DeviceEventType) String() string {
	switch t {
	case DeviceAdded:
		return "added"
	case DeviceRemoved:
		return "removed"
	case DeviceChanged:
		return "changed"
	default:
		return "unknown"
	}
}

// DeviceEvent はデバイスの変更イベントを表す
type DeviceEvent struct {
	Type   DeviceEventType
	Device Device
}

// DeviceCallback はデバイスイベント発生時に呼び出されるコールバック関数の型
type DeviceCallback func(event DeviceEvent)

// isMouseEntry はby-idのエントリ名がマウスのイベントノードかどうかを返す
func isMouseEntry(name string) bool {
	return strings.Contains(name, "event") && strings.Contains(name, "mouse")
}

// ScanDevices は現在接続されているマウスの一覧を名前順で返す
func ScanDevices() ([]Device, error) {
	entries, err := os.ReadDir(byIDDir)
	if err != nil {
		return nil, err
	}
	var devices []Device
	for _, entry := range entries {
		if !isMouseEntry(entry.Name()) {
			continue
		}
		fullPath := filepath.Join(byIDDir, entry.Name())
		realPath, err := os.Readlink(fullPath)
		if err != nil {
			continue
		}

		// 相対リンクは/dev/input基準で解決する
		absPath := realPath
		if !filepath.IsAbs(realPath) {
			absPath = filepath.Join(filepath.Dir(byIDDir), filepath.Base(realPath))
		}
		devices = append(devices, Device{Name: entry.Name(), Path: absPath})
	}
	sort.Slice(devices, func(i, j int) bool { return devices[i].Name < devices[j].Name })
	return devices, nil
}

// SelectMouse は優先デバイス名に一致するマウス、なければ最初のマウスを返す
func SelectMouse(devices []Device, preferred string) (Device, bool) {
	if preferred != "" {
		for _, d := range devices {
			if d.Name == preferred {
				return d, true
			}
		}
	}
	if len(devices) == 0 {
		return Device{}, false
	}
	return devices[0], true
}

// DeviceMonitor はマウスの接続状態を監視する構造体
type DeviceMonitor struct {
	watcher   *fsnotify.Watcher
	callbacks []DeviceCallback
	devices   map[string]Device // 名前をキーにしたデバイスマップ
	mutex     sync.RWMutex
	stopChan  chan struct{}
	debounce  time.Duration
	isRunning bool
}

// NewDeviceMonitor は新しいDeviceMonitorを作成する
func NewDeviceMonitor() (*DeviceMonitor, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &DeviceMonitor{
		watcher:  watcher,
		devices:  make(map[string]Device),
		stopChan: make(chan struct{}),
		debounce: 500 * time.Millisecond,
	}, nil
}

// Start はデバイスの監視を開始する
func (dm *DeviceMonitor) Start() error {
	if dm.isRunning {
		return nil
	}
	dm.isRunning = true

	for _, dir := range []string{filepath.Dir(byIDDir), byIDDir} {
		if _, err := os.Stat(dir); err != nil {
			continue
		}
		if err := dm.watcher.Add(dir); err != nil {
			log.Printf("ディレクトリの監視に失敗しました: %s - %v", dir, err)
		}
	}

	// 起動時の一覧は通知せずに記録だけする
	if devices, err := ScanDevices(); err == nil {
		dm.mutex.Lock()
		for _, d := range devices {
			dm.devices[d.Name] = d
		}
		dm.mutex.Unlock()
		log.Printf("初期デバイス検出: %d 個のマウスを検出", len(devices))
	} else {
		log.Printf("初期デバイス一覧の取得に失敗しました: %v", err)
	}

	go dm.watchEvents()
	return nil
}

// Stop はデバイスの監視を停止する
func (dm *DeviceMonitor) Stop() {
	if !dm.isRunning {
		return
	}
	close(dm.stopChan)
	dm.watcher.Close()
	dm.isRunning = false
}

// RegisterCallback はデバイスイベントのコールバック関数を登録する
func (dm *DeviceMonitor) RegisterCallback(callback DeviceCallback) {
	dm.mutex.Lock()
	defer dm.mutex.Unlock()
	dm.callbacks = append(dm.callbacks, callback)
}

// GetConnectedDevices は現在接続されているデバイスのスナップショットを返す
func (dm *DeviceMonitor) GetConnectedDevices() []Device {
	dm.mutex.RLock()
	defer dm.mutex.RUnlock()

	devices := make([]Device, 0, len(dm.devices))
	for _, d := range dm.devices {
		devices = append(devices, d)
	}
	sort.Slice(devices, func(i, j int) bool { return devices[i].Name < devices[j].Name })
	return devices
}

// RescanDevices はデバイス一覧を再スキャンして差分を通知する
func (dm *DeviceMonitor) RescanDevices() {
	devices, err := ScanDevices()
	if err != nil {
		log.Printf("デバイス再スキャンに失敗しました: %v", err)
		return
	}
	dm.updateDeviceList(devices)
}

// updateDeviceList は現在のデバイス一覧を更新し、変更があれば通知する
func (dm *DeviceMonitor) updateDeviceList(newDevices []Device) {
	var events []DeviceEvent

	dm.mutex.Lock()
	seen := make(map[string]bool, len(newDevices))
	for _, d := range newDevices {
		seen[d.Name] = true
		old, exists := dm.devices[d.Name]
		switch {
		case !exists:
			events = append(events, DeviceEvent{Type: DeviceAdded, Device: d})
		case old.Path != d.Path:
			events = append(events, DeviceEvent{Type: DeviceChanged, Device: d})
		}
		dm.devices[d.Name] = d
	}
	for name, d := range dm.devices {
		if !seen[name] {
			events = append(events, DeviceEvent{Type: DeviceRemoved, Device: d})
			delete(dm.devices, name)
		}
	}
	callbacks := append([]DeviceCallback(nil), dm.callbacks...)
	dm.mutex.Unlock()

	// コールバックはロックを解放してから順番に呼び出す
	for _, ev := range events {
		log.Printf("デバイスイベント: %s %s (%s)", ev.Type, ev.Device.Name, ev.Device.Path)
		for _, cb := range callbacks {
			cb(ev)
		}
	}
}

// watchEvents はfsnotifyのイベントを監視し、まとめて再スキャンする
func (dm *DeviceMonitor) watchEvents() {
	eventTimer := time.NewTimer(dm.debounce)
	eventTimer.Stop()
	pendingRescan := false

	for {
		select {
		case <-dm.stopChan:
			return

		case <-eventTimer.C:
			if pendingRescan {
				pendingRescan = false
				dm.RescanDevices()
			}

		case ev, ok := <-dm.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if !pendingRescan {
				pendingRescan = true
				eventTimer.Reset(dm.debounce)
			}

		case err, ok := <-dm.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("ファイルシステム監視エラー: %v", err)
		}
	}
}
