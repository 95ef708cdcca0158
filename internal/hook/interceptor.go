// Package hook は専有したマウスのイベントを読み込み、ホイールのフレームだけを
// フィルターにかけて仮想マウスへ転送する
package hook

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/char5742/wheel-filter/internal/event"
)

// Source はイベントを1つずつ供給する（専有した実マウス）
type Source interface {
	ReadEvent() (event.Event, error)
}

// Sink は転送するイベントを受け取る（仮想マウス）
type Sink interface {
	WriteEvents(events []event.Event) error
}

// Decider はホイールのフレームを転送するかどうかを判定する
type Decider interface {
	Decide(eventTime time.Time, dx, dy float32) bool
}

// Stats はインターセプターの処理件数
type Stats struct {
	Frames      uint64 `json:"frames"`
	WheelFrames uint64 `json:"wheel_frames"`
	Suppressed  uint64 `json:"suppressed"`
	Dropped     uint64 `json:"dropped"` // SYN_DROPPEDで捨てたフレーム
}

// Interceptor はイベントをフレーム単位で転送または抑制する
type Interceptor struct {
	source Source
	sink   Sink

	mu      sync.RWMutex
	decider Decider

	frames      atomic.Uint64
	wheelFrames atomic.Uint64
	suppressed  atomic.Uint64
	dropped     atomic.Uint64
}

// NewInterceptor は新しいInterceptorを作成する
func NewInterceptor(source Source, sink Sink, decider Decider) *Interceptor {
	return &Interceptor{source: source, sink: sink, decider: decider}
}

// SetDecider は判定に使うフィルターを差し替える
func (in *Interceptor) SetDecider(d Decider) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.decider = d
}

func (in *Interceptor) currentDecider() Decider {
	in.mu.RLock()
	defer in.mu.RUnlock()
	return in.decider
}

// Run は読み込みが失敗するまでイベントを処理する
// stopが閉じられた後の読み込みエラーは正常終了として扱う
func (in *Interceptor) Run(stop <-chan struct{}) error {
	var (
		frame    event.Frame
		dropping bool
	)

	for {
		ev, err := in.source.ReadEvent()
		if err != nil {
			select {
			case <-stop:
				return nil
			default:
			}
			return fmt.Errorf("イベントの読み込みに失敗しました: %w", err)
		}

		switch {
		case ev.IsDropped():
			// 次のSYN_REPORTまでのイベントはすべて捨てる
			frame = frame[:0]
			dropping = true
			in.dropped.Add(1)

		case ev.IsReport():
			if dropping {
				dropping = false
				frame = frame[:0]
				continue
			}
			frame = append(frame, ev)
			if err := in.handleFrame(frame); err != nil {
				return err
			}
			frame = frame[:0]

		case !dropping:
			frame = append(frame, ev)
		}
	}
}

// handleFrame は1フレームを転送または抑制する
func (in *Interceptor) handleFrame(frame event.Frame) error {
	in.frames.Add(1)

	w, ok := frame.Wheel()
	if !ok {
		return in.sink.WriteEvents(frame)
	}
	in.wheelFrames.Add(1)

	if in.currentDecider().Decide(w.Time, w.DeltaX, w.DeltaY) {
		return in.sink.WriteEvents(frame)
	}

	in.suppressed.Add(1)
	// 同じフレームの移動やボタンは通す
	if rest := frame.WithoutWheel(); rest != nil {
		return in.sink.WriteEvents(rest)
	}
	return nil
}

// Stats は処理件数を返す
func (in *Interceptor) Stats() Stats {
	return Stats{
		Frames:      in.frames.Load(),
		WheelFrames: in.wheelFrames.Load(),
		Suppressed:  in.suppressed.Load(),
		Dropped:     in.dropped.Load(),
	}
}
