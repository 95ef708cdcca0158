package features

import (
	"fmt"
	"os"
	"syscall"

	"github.com/char5742/wheel-filter/internal/device"
	"github.com/char5742/wheel-filter/internal/event"
	"github.com/char5742/wheel-filter/internal/utils"
)

// マウス入力を扱うインターフェース
type Mouse interface {
	// 次のイベントを読み込む。イベントが来るまでブロックする
	ReadEvent() (event.Event, error)
	// マウス操作を専有する
	Grab() error
	// マウス操作の専有を解除する
	Release() error
	Close() error
}

type physicalMouse struct {
	file    *os.File
	grabbed bool
}

// 指定されたパスのevdevノードを開く
func OpenMouse(path string) (Mouse, error) {
	// O_NONBLOCKで開くとランタイムのポーラーに登録され、Closeで読み込みが解除される
	f, err := os.OpenFile(path, syscall.O_RDONLY|syscall.O_NONBLOCK, 0660)
	if err != nil {
		return nil, fmt.Errorf("failed to open device file: %w", err)
	}
	return &physicalMouse{file: f}, nil
}

func (m *physicalMouse) ReadEvent() (event.Event, error) {
	return event.ReadEvent(m.file)
}

func (m *physicalMouse) Grab() error {
	if m.grabbed {
		return nil
	}
	if err := utils.IOCtl(m.file, device.EVIOCGRAB, 1); err != nil {
		return fmt.Errorf("failed to grab device: %w", err)
	}
	m.grabbed = true
	return nil
}

func (m *physicalMouse) Release() error {
	if !m.grabbed {
		return nil
	}
	if err := utils.IOCtl(m.file, device.EVIOCGRAB, 0); err != nil {
		return fmt.Errorf("failed to release device: %w", err)
	}
	m.grabbed = false
	return nil
}

func (m *physicalMouse) Close() error {
	_ = m.Release()
	return m.file.Close()
}
