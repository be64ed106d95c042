package rotation

import (
	"fmt"
	"math"
	"time"
)

// FormatMMSS 将剩余时间格式化为 mm:ss，负值显示为 00:00
func FormatMMSS(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(math.Ceil(d.Seconds()))
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}

// FormatOffset 将时间偏移格式化为 +1.2s / -0.3s
func FormatOffset(d time.Duration) string {
	s := d.Seconds()
	sign := "+"
	if s < 0 {
		sign = "-"
		s = -s
	}
	return fmt.Sprintf("%s%.1fs", sign, s)
}
