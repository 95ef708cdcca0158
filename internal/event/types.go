package event

import (
	"syscall"
	"time"
)

// イベントタイプの定数（input-event-codes.hより）
const (
	Syn = 0x00 // 同期イベント
	Key = 0x01 // キーイベント
	Rel = 0x02 // 相対座標イベント
	Abs = 0x03 // 絶対座標イベント
	Msc = 0x04 // その他のイベント

	RelX           = 0x00 // X軸の相対移動
	RelY           = 0x01 // Y軸の相対移動
	RelHWheel      = 0x06 // 水平ホイール
	RelWheel       = 0x08 // ホイールの相対移動
	RelWheelHiRes  = 0x0b // 高分解能ホイール（1ノッチ=120）
	RelHWheelHiRes = 0x0c // 高分解能水平ホイール
	RelMax         = 0x0f

	MscScan = 0x04 // スキャンコード

	SynReport  = 0 // イベント報告の同期
	SynDropped = 3 // カーネルのバッファあふれ

	MouseBtnLeft    = 0x110 // マウス左ボタン
	MouseBtnRight   = 0x111 // マウス右ボタン
	MouseBtnMiddle  = 0x112 // マウス中ボタン
	MouseBtnSide    = 0x113
	MouseBtnExtra   = 0x114
	MouseBtnForward = 0x115
	MouseBtnBack    = 0x116
	MouseBtnTask    = 0x117
)

// Event は入力イベントを表す構造体
type Event struct {
	Time  syscall.Timeval // イベント発生時刻
	Type  uint16          // イベントタイプ
	Code  uint16          // イベントコード
	Value int32           // イベント値
}

// Timestamp はイベント自身の発生時刻を返す
func (e Event) Timestamp() time.Time {
	return time.Unix(0, e.Time.Nano())
}

// IsReport はフレームの区切り（SYN_REPORT）かどうかを返す
func (e Event) IsReport() bool {
	return e.Type == Syn && e.Code == SynReport
}

// IsDropped はカーネルがイベントを取りこぼした通知かどうかを返す
func (e Event) IsDropped() bool {
	return e.Type == Syn && e.Code == SynDropped
}

// IsWheel はホイール関連の相対移動イベントかどうかを返す
func (e Event) IsWheel() bool {
	if e.Type != Rel {
		return false
	}
	switch e.Code {
	case RelWheel, RelHWheel, RelWheelHiRes, RelHWheelHiRes:
		return true
	}
	return false
}

// Report は指定時刻のSYN_REPORTイベントを作る
func Report(t time.Time) Event {
	return Event{Time: syscall.NsecToTimeval(t.UnixNano()), Type: Syn, Code: SynReport}
}
