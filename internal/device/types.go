// Package device はuinput/evdevのioctl定数とデバイス構造体を定義する
package device

// uinputのioctl（linux/uinput.hより）
const (
	MaxNameSize = 80         // デバイス名の最大サイズ
	DevCreate   = 0x5501     // UI_DEV_CREATE
	DevDestroy  = 0x5502     // UI_DEV_DESTROY
	SetEvBit    = 0x40045564 // UI_SET_EVBIT
	SetKeyBit   = 0x40045565 // UI_SET_KEYBIT
	SetRelBit   = 0x40045566 // UI_SET_RELBIT
	BusUsb      = 0x03       // USBバスタイプ
	BusVirtual  = 0x06       // 仮想バスタイプ
)

// evdevのioctl（linux/input.hより）
const (
	AbsSize   = 64         // 絶対座標の配列サイズ
	EVIOCGRAB = 0x40044590 // デバイスの排他制御
)

// InputID はデバイス識別子を表す構造体
type InputID struct {
	Bustype uint16
	Vendor  uint16
	Product uint16
	Version uint16
}

// UserDev はuinput_user_dev構造体
// 相対座標デバイスなのでAbs系の配列は使わないが、カーネルが固定長を期待する
type UserDev struct {
	Name       [MaxNameSize]byte
	ID         InputID
	EffectsMax uint32
	Absmax     [AbsSize]int32
	Absmin     [AbsSize]int32
	Absfuzz    [AbsSize]int32
	Absflat    [AbsSize]int32
}

// DeviceName は名前をuinput用の固定長配列に変換する
func DeviceName(name string) [MaxNameSize]byte {
	var fixed [MaxNameSize]byte
	copy(fixed[:MaxNameSize-1], name)
	return fixed
}
