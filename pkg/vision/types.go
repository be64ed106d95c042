// Package vision 提供模板识别的数据类型与检测流水线
package vision

import (
	"errors"
	"fmt"
	"image"
	"sort"
	"time"
)

// Point 表示二维坐标点
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// NewPoint 创建新的 Point
func NewPoint(x, y int) Point {
	return Point{X: x, Y: y}
}

// Rectangle 表示矩形区域（四个角点）
type Rectangle struct {
	TopLeft     Point `json:"top_left"`
	BottomLeft  Point `json:"bottom_left"`
	BottomRight Point `json:"bottom_right"`
	TopRight    Point `json:"top_right"`
}

// NewRectangle 从左上角坐标和宽高创建矩形
func NewRectangle(x, y, w, h int) Rectangle {
	return Rectangle{
		TopLeft:     Point{X: x, Y: y},
		BottomLeft:  Point{X: x, Y: y + h},
		BottomRight: Point{X: x + w, Y: y + h},
		TopRight:    Point{X: x + w, Y: y},
	}
}

// Center 返回矩形中心点
func (r Rectangle) Center() Point {
	return Point{
		X: (r.TopLeft.X + r.BottomRight.X) / 2,
		Y: (r.TopLeft.Y + r.BottomRight.Y) / 2,
	}
}

// ToImageRect 转换为 image.Rectangle
func (r Rectangle) ToImageRect() image.Rectangle {
	return image.Rect(r.TopLeft.X, r.TopLeft.Y, r.BottomRight.X, r.BottomRight.Y)
}

// Match 单个模板的匹配结果
type Match struct {
	TemplateID string    `json:"template_id"`
	Confidence float64   `json:"confidence"`
	Location   Point     `json:"location"`
	Box        Rectangle `json:"box"`
	Matched    bool      `json:"matched"`
}

// MatchResult 一帧的匹配结果，按模板 ID 索引
type MatchResult struct {
	At      time.Time        `json:"at"`
	Matches map[string]Match `json:"matches"`
	// Skipped 帧尺寸与标定区域不一致，本帧未做匹配
	Skipped bool `json:"skipped,omitempty"`
}

// NewMatchResult 创建空结果
func NewMatchResult(at time.Time) MatchResult {
	return MatchResult{At: at, Matches: make(map[string]Match)}
}

// Add 记录一个模板的结果
func (r *MatchResult) Add(m Match) {
	if r.Matches == nil {
		r.Matches = make(map[string]Match)
	}
	r.Matches[m.TemplateID] = m
}

// Matched 模板是否达到阈值
func (r MatchResult) Matched(id string) bool {
	if id == "" {
		return false
	}
	m, ok := r.Matches[id]
	return ok && m.Matched
}

// Get 获取模板结果
func (r MatchResult) Get(id string) (Match, bool) {
	m, ok := r.Matches[id]
	return m, ok
}

// MatchedIDs 返回达到阈值的模板 ID（排序）
func (r MatchResult) MatchedIDs() []string {
	var ids []string
	for id, m := range r.Matches {
		if m.Matched {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// ErrTemplateMissing 模板文件缺失或无法读取
var ErrTemplateMissing = errors.New("模板不可用")

// TemplateError 模板加载错误
type TemplateError struct {
	ID   string
	Path string
	Err  error
}

func (e *TemplateError) Error() string {
	return fmt.Sprintf("模板 %s (%s) 加载失败: %v", e.ID, e.Path, e.Err)
}

func (e *TemplateError) Unwrap() error {
	return e.Err
}

// Is 使 errors.Is(err, ErrTemplateMissing) 成立
func (e *TemplateError) Is(target error) bool {
	return target == ErrTemplateMissing
}
