package features

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"syscall"

	"github.com/char5742/wheel-filter/internal/device"
	"github.com/char5742/wheel-filter/internal/event"
	"github.com/char5742/wheel-filter/internal/utils"
)

// 専有した実マウスの代わりにイベントを送出する仮想マウス
type VirtualMouse interface {
	WriteEvents(events []event.Event) error
	io.Closer
}

type uinputMouse struct {
	name       string
	deviceFile *os.File
}

// 仮想マウスが登録するボタン
var mouseButtons = []int{
	event.MouseBtnLeft,
	event.MouseBtnRight,
	event.MouseBtnMiddle,
	event.MouseBtnSide,
	event.MouseBtnExtra,
	event.MouseBtnForward,
	event.MouseBtnBack,
	event.MouseBtnTask,
}

// 仮想マウスが登録する相対軸
var mouseAxes = []int{
	event.RelX,
	event.RelY,
	event.RelHWheel,
	event.RelWheel,
	event.RelWheelHiRes,
	event.RelHWheelHiRes,
}

// 新しい仮想マウスデバイスを作成する
func CreateVirtualMouse(path string, name string) (VirtualMouse, error) {
	fd, err := createVirtualMouse(path, name)
	if err != nil {
		return nil, err
	}
	return &uinputMouse{name: name, deviceFile: fd}, nil
}

func (vm *uinputMouse) WriteEvents(events []event.Event) error {
	return event.WriteEvents(vm.deviceFile, events)
}

func (vm *uinputMouse) Close() error {
	_ = releaseDevice(vm.deviceFile)
	return vm.deviceFile.Close()
}

func createVirtualMouse(path string, name string) (*os.File, error) {
	deviceFile, err := createDeviceFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not create relative axis input device: %w", err)
	}

	// ボタン入力(EV_KEY)を登録する
	if err := registerDevice(deviceFile, uintptr(event.Key)); err != nil {
		return nil, fmt.Errorf("キー入力イベント(EV_KEY)の登録に失敗しました: %w", err)
	}
	for _, btn := range mouseButtons {
		if err := utils.IOCtl(deviceFile, device.SetKeyBit, uintptr(btn)); err != nil {
			_ = deviceFile.Close()
			return nil, fmt.Errorf("ボタンの登録に失敗しました %v: %w", btn, err)
		}
	}

	// 相対座標入力(EV_REL)を登録する
	if err := registerDevice(deviceFile, uintptr(event.Rel)); err != nil {
		return nil, fmt.Errorf("相対座標イベント(EV_REL)の登録に失敗しました: %w", err)
	}
	for _, axis := range mouseAxes {
		if err := utils.IOCtl(deviceFile, device.SetRelBit, uintptr(axis)); err != nil {
			_ = deviceFile.Close()
			return nil, fmt.Errorf("相対軸の登録に失敗しました %v: %v", axis, err)
		}
	}

	// スキャンコードはボタンと一緒に届くことがあるので通せるようにしておく
	if err := registerDevice(deviceFile, uintptr(event.Msc)); err != nil {
		return nil, fmt.Errorf("MSCイベントの登録に失敗しました: %w", err)
	}

	userDev := device.UserDev{
		Name: device.DeviceName(name),
		ID: device.InputID{
			Bustype: device.BusVirtual,
			Vendor:  0x4711,
			Product: 0x0818,
			Version: 1,
		},
	}

	fd, err := createUinputDevice(deviceFile, userDev)
	if err != nil {
		return nil, fmt.Errorf("仮想デバイスの作成に失敗しました: %w", err)
	}
	return fd, nil
}

// デバイスファイルを開く
func createDeviceFile(path string) (*os.File, error) {
	deviceFile, err := os.OpenFile(path, syscall.O_WRONLY|syscall.O_NONBLOCK, 0660)
	if err != nil {
		return nil, errors.New("デバイスファイルを開くのに失敗しました")
	}
	return deviceFile, nil
}

// デバイスを解放する
func releaseDevice(deviceFile *os.File) error {
	return utils.IOCtl(deviceFile, device.DevDestroy, uintptr(0))
}

// イベント種別を登録する。失敗したらファイルを閉じる
func registerDevice(deviceFile *os.File, evType uintptr) error {
	err := utils.IOCtl(deviceFile, device.SetEvBit, evType)
	if err != nil {
		defer deviceFile.Close()
		if rerr := releaseDevice(deviceFile); rerr != nil {
			return fmt.Errorf("デバイスを解放するのに失敗しました: %v", rerr)
		}
		return fmt.Errorf("無効なファイルハンドルがutils.IOCtlから返されました: %w", err)
	}
	return nil
}

// uinput_user_devを書き込んでデバイスを作成する
func createUinputDevice(deviceFile *os.File, dev device.UserDev) (*os.File, error) {
	buf := new(bytes.Buffer)
	if err := binary.Write(buf, binary.LittleEndian, dev); err != nil {
		_ = deviceFile.Close()
		return nil, fmt.Errorf("ユーザーデバイスバッファの書き込みに失敗しました: %w", err)
	}
	if _, err := deviceFile.Write(buf.Bytes()); err != nil {
		_ = deviceFile.Close()
		return nil, fmt.Errorf("デバイス構造体をデバイスファイルに書き込むのに失敗しました: %w", err)
	}
	if err := utils.IOCtl(deviceFile, device.DevCreate, uintptr(0)); err != nil {
		_ = deviceFile.Close()
		return nil, fmt.Errorf("デバイスの作成に失敗しました: %w", err)
	}
	return deviceFile, nil
}
