package capture

import "math"

// ScaleInt 缩放整数值
func ScaleInt(value int, factor float64) int {
	if factor <= 0 {
		return value
	}
	return int(math.Round(float64(value) * factor))
}
