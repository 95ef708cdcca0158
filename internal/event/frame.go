package event

import "time"

// 高分解能ホイールの1ノッチあたりの値
const HiResPerNotch = 120

// Frame はSYN_REPORTで区切られた1回分のイベント（区切り自身を含む）
type Frame []Event

// Wheel は1フレーム分のホイール移動量（ノッチ単位）
type Wheel struct {
	DeltaX float32   // 水平方向
	DeltaY float32   // 垂直方向
	Time   time.Time // イベント自身の時刻
}

// Wheel はフレームに含まれるホイール移動量を返す。ホイールイベントがなければfalse
//
// 高分解能の値があればそちらを優先し、なければ従来のノッチ値を使う。
func (f Frame) Wheel() (Wheel, bool) {
	var (
		w                    Wheel
		found                bool
		hiX, hiY             int32
		notchX, notchY       int32
		hasHiResX, hasHiResY bool
	)

	for _, e := range f {
		if !e.IsWheel() {
			continue
		}
		if !found {
			w.Time = e.Timestamp()
			found = true
		}
		switch e.Code {
		case RelWheelHiRes:
			hiY += e.Value
			hasHiResY = true
		case RelHWheelHiRes:
			hiX += e.Value
			hasHiResX = true
		case RelWheel:
			notchY += e.Value
		case RelHWheel:
			notchX += e.Value
		}
	}
	if !found {
		return w, false
	}

	w.DeltaX = float32(notchX)
	if hasHiResX {
		w.DeltaX = float32(hiX) / HiResPerNotch
	}
	w.DeltaY = float32(notchY)
	if hasHiResY {
		w.DeltaY = float32(hiY) / HiResPerNotch
	}
	return w, true
}

// WithoutWheel はホイールイベントを取り除いたフレームを返す
// 残るのがSYN_REPORTだけならnilを返す
func (f Frame) WithoutWheel() Frame {
	var out Frame
	payload := 0
	for _, e := range f {
		if e.IsWheel() {
			continue
		}
		if !e.IsReport() {
			payload++
		}
		out = append(out, e)
	}
	if payload == 0 {
		return nil
	}
	return out
}
