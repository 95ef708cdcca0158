package scroll

import "time"

// Sample はある時刻に観測（または算出）された2次元のスクロール量
type Sample struct {
	DeltaX    float32   // 水平方向のスクロール量（ノッチ単位）
	DeltaY    float32   // 垂直方向のスクロール量（ノッチ単位）
	Timestamp time.Time // 観測時刻
}

// IsSentinel は「まだスクロールがない」ことを表す初期値かどうかを返す
func (s Sample) IsSentinel() bool {
	return s.DeltaX == 0 && s.DeltaY == 0 && s.Timestamp.IsZero()
}

// State はフィルターがイベント間で保持する状態
type State struct {
	LastRaw      Sample // 最後に観測した生のスクロール量
	LastSmoothed Sample // 最後の平滑化済みスクロール量
	Accumulated  Sample // 減衰付きで積算したスクロール量
}

// sign は0を独立した値として扱う符号関数
func sign(v float32) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}

// signChanged はどちらかの軸で符号が変わったかを返す
func signChanged(prev Sample, dx, dy float32) bool {
	return sign(dx) != sign(prev.DeltaX) || sign(dy) != sign(prev.DeltaY)
}

func abs32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
