package scroll

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidConfig はフィルター設定が不正な場合に返される
var ErrInvalidConfig = errors.New("invalid scroll filter config")

// 1ノッチあたりの高分解能ホイール値
const NotchUnits = 120

// Config はフィルター作成時に固定される設定
type Config struct {
	// 単発でも転送する生のスクロール量の閾値
	MinDeltaSize float32
	// 平滑化後（または積算後）に転送とみなす閾値。MinDeltaSize以下であること
	MinSmoothedDeltaSize float32
	// 指数平滑化の時定数（ミリ秒）
	TimeConstantMS float32
	// 抑制された小さなティックを減衰付きで積算し、一定量に達したら転送する
	Accumulate bool
}

// DefaultConfig はデフォルト設定を返す
func DefaultConfig() Config {
	return Config{
		MinDeltaSize:         4.0 / NotchUnits,
		MinSmoothedDeltaSize: 2.0 / NotchUnits,
		TimeConstantMS:       80,
		Accumulate:           true,
	}
}

// Validate は設定の不変条件を検証する
func (c Config) Validate() error {
	// 閾値0は「常に転送」として許す
	fields := []struct {
		name     string
		value    float32
		positive bool
	}{
		{"min_delta_size", c.MinDeltaSize, false},
		{"min_smoothed_delta_size", c.MinSmoothedDeltaSize, false},
		{"time_constant_ms", c.TimeConstantMS, true},
	}
	for _, field := range fields {
		f := float64(field.value)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("%w: %s must be finite", ErrInvalidConfig, field.name)
		}
		if field.positive && field.value <= 0 {
			return fmt.Errorf("%w: %s must be positive, got %v", ErrInvalidConfig, field.name, field.value)
		}
		if field.value < 0 {
			return fmt.Errorf("%w: %s must not be negative, got %v", ErrInvalidConfig, field.name, field.value)
		}
	}
	if c.MinSmoothedDeltaSize > c.MinDeltaSize {
		return fmt.Errorf("%w: min_smoothed_delta_size (%v) exceeds min_delta_size (%v)",
			ErrInvalidConfig, c.MinSmoothedDeltaSize, c.MinDeltaSize)
	}
	return nil
}
