package vision

import (
	"context"
	"fmt"
	"image"
	"time"
)

// FrameSource 帧来源（屏幕截取或测试替身）
type FrameSource interface {
	Capture(ctx context.Context) (image.Image, error)
}

// Matcher 对一帧执行全部模板匹配
// 实现必须是纯函数：同一帧和模板库总得到同样的结果
type Matcher interface {
	Match(frame image.Image, at time.Time) MatchResult
}

// Detector 截取 + 匹配流水线
type Detector struct {
	source  FrameSource
	matcher Matcher
}

// NewDetector 创建检测器
func NewDetector(source FrameSource, matcher Matcher) *Detector {
	return &Detector{source: source, matcher: matcher}
}

// Detect 截取一帧并匹配，截取失败时返回错误且不产生结果
func (d *Detector) Detect(ctx context.Context, at time.Time) (MatchResult, error) {
	frame, err := d.source.Capture(ctx)
	if err != nil {
		return MatchResult{}, err
	}
	if frame == nil {
		return MatchResult{}, fmt.Errorf("截取结果为空")
	}
	return d.matcher.Match(frame, at), nil
}
