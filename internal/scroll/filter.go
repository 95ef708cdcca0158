// Package scroll はホイールのスクロールイベントを転送するか抑制するかを判定する
//
// 指数平滑化したスクロール量と符号の反転を見て、ホイールのノイズやドライバの
// ゆらぎによる小さなティックだけを落とし、意図したスクロールや方向転換は
// 遅延なく通す。
package scroll

import (
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// 積算値は平滑化値より遅く減衰させる（時定数の倍率）
const accumulateTimeScale = 2

// Anomaly は経過時間が負になった（時計が巻き戻った）ことを表す
type Anomaly struct {
	EventTime    time.Time     // 受け取ったイベントの時刻
	PreviousTime time.Time     // 保持していた直前の時刻
	Elapsed      time.Duration // 計算された経過時間（負の値）
}

// Stats はフィルターの判定結果の集計
type Stats struct {
	Forwarded      uint64 `json:"forwarded"`
	Suppressed     uint64 `json:"suppressed"`
	Reversals      uint64 `json:"reversals"`
	ClockAnomalies uint64 `json:"clock_anomalies"`
}

// Option はフィルターのオプション
type Option func(*Filter)

// WithAnomalyHandler は時計の異常を通知する関数を設定する
// 関数はロックの外で呼ばれるが、判定を遅らせないよう短時間で返すこと
func WithAnomalyHandler(fn func(Anomaly)) Option {
	return func(f *Filter) {
		f.onAnomaly = fn
	}
}

// Filter はスクロールイベントごとに転送/抑制を判定する
// 複数のゴルーチンから同時に呼び出してよい
type Filter struct {
	cfg       Config
	onAnomaly func(Anomaly)

	mu    sync.Mutex
	state State

	forwarded  atomic.Uint64
	suppressed atomic.Uint64
	reversals  atomic.Uint64
	anomalies  atomic.Uint64
}

// New は新しいフィルターを作成する。不正な設定の場合はエラーを返す
func New(cfg Config, opts ...Option) (*Filter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	f := &Filter{cfg: cfg}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// Config はフィルターの設定を返す
func (f *Filter) Config() Config {
	return f.cfg
}

// Decide はスクロールイベントを転送すべきならtrueを返す
//
// eventTimeは処理時刻ではなくイベント自身の時刻を渡すこと。
// 呼び出し順がそのまま論理的な順序として扱われる。
func (f *Filter) Decide(eventTime time.Time, dx, dy float32) bool {
	forward, reversal, anomaly := f.observe(eventTime, dx, dy)

	switch {
	case forward:
		f.forwarded.Add(1)
	default:
		f.suppressed.Add(1)
	}
	if reversal {
		f.reversals.Add(1)
	}
	if anomaly != nil {
		f.anomalies.Add(1)
		if f.onAnomaly != nil {
			f.onAnomaly(*anomaly)
		}
	}
	return forward
}

// observe は状態を1回のロックで更新して判定する
func (f *Filter) observe(eventTime time.Time, dx, dy float32) (forward, reversal bool, anomaly *Anomaly) {
	f.mu.Lock()
	defer f.mu.Unlock()

	previous := f.state.LastRaw
	if eventTime.After(previous.Timestamp) {
		f.state.LastRaw = Sample{DeltaX: dx, DeltaY: dy, Timestamp: eventTime}
	}

	// 初回のイベントは方向転換ではなく大きさだけで判定する
	reversal = !previous.IsSentinel() && signChanged(previous, dx, dy)

	elapsed := eventTime.Sub(previous.Timestamp)
	if elapsed < 0 && !reversal {
		// 負の経過時間は平滑化に使わず、両軸とも大きい場合のみ通す
		anomaly = &Anomaly{EventTime: eventTime, PreviousTime: previous.Timestamp, Elapsed: elapsed}
		forward = abs32(dx) >= f.cfg.MinDeltaSize && abs32(dy) >= f.cfg.MinDeltaSize
		return forward, false, anomaly
	}

	alpha, decay := float32(1), float32(0)
	if !reversal {
		alpha = f.alpha(elapsed)
		decay = 1 - smoothingFactor(elapsed, f.cfg.TimeConstantMS*accumulateTimeScale)
	}

	prevSmoothed := f.state.LastSmoothed
	smoothed := Sample{
		DeltaX:    dx*alpha + prevSmoothed.DeltaX*(1-alpha),
		DeltaY:    dy*alpha + prevSmoothed.DeltaY*(1-alpha),
		Timestamp: eventTime,
	}
	f.state.LastSmoothed = smoothed

	// 同じ方向のティックの減衰付き合計。方向転換で今回の値から数え直す
	prevAcc := f.state.Accumulated
	acc := Sample{
		DeltaX:    dx + prevAcc.DeltaX*decay,
		DeltaY:    dy + prevAcc.DeltaY*decay,
		Timestamp: eventTime,
	}
	f.state.Accumulated = acc

	if reversal {
		return true, true, nil
	}

	threshold := f.cfg.MinSmoothedDeltaSize
	switch {
	case abs32(smoothed.DeltaX) >= threshold || abs32(smoothed.DeltaY) >= threshold:
		forward = true
	case f.cfg.Accumulate && (abs32(acc.DeltaX) >= threshold || abs32(acc.DeltaY) >= threshold):
		forward = true
	case abs32(dx) >= f.cfg.MinDeltaSize || abs32(dy) >= f.cfg.MinDeltaSize:
		forward = true
	}
	return forward, false, nil
}

// alpha は経過時間から平滑化係数を求める
func (f *Filter) alpha(elapsed time.Duration) float32 {
	return smoothingFactor(elapsed, f.cfg.TimeConstantMS)
}

// smoothingFactor は 1 - exp(-Δt/τ) を [0, 1] に収めて返す
func smoothingFactor(elapsed time.Duration, tauMS float32) float32 {
	ms := float64(elapsed) / float64(time.Millisecond)
	a := 1 - math.Exp(-ms/float64(tauMS))
	switch {
	case math.IsNaN(a):
		return 1
	case a < 0:
		return 0
	case a > 1:
		return 1
	}
	return float32(a)
}

// Snapshot は現在の状態のコピーを返す
func (f *Filter) Snapshot() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Reset は状態を初期値に戻す（集計はそのまま）
func (f *Filter) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = State{}
}

// Stats は判定結果の集計を返す
func (f *Filter) Stats() Stats {
	return Stats{
		Forwarded:      f.forwarded.Load(),
		Suppressed:     f.suppressed.Load(),
		Reversals:      f.reversals.Load(),
		ClockAnomalies: f.anomalies.Load(),
	}
}
