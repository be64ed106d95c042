package cv

import (
	"errors"
	"fmt"
	"image"
	"os"
	"sort"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/susalert/susalert/internal/logger"
	"github.com/susalert/susalert/pkg/vision"
)

// DefaultThreshold 默认匹配阈值
const DefaultThreshold = 0.62

// TemplateSpec 模板定义
type TemplateSpec struct {
	ID        string  `json:"id"`
	Path      string  `json:"path"`
	Threshold float64 `json:"threshold"`
	RGB       bool    `json:"rgb,omitempty"`
}

// Template 已加载的模板
type Template struct {
	TemplateSpec

	color gocv.Mat
	gray  gocv.Mat
}

// Close 释放模板图像
func (t *Template) Close() {
	t.color.Close()
	t.gray.Close()
}

// Size 模板尺寸
func (t *Template) Size() (int, int) {
	return t.gray.Cols(), t.gray.Rows()
}

// LoadTemplate 从文件加载模板
func LoadTemplate(spec TemplateSpec) (*Template, error) {
	if spec.ID == "" {
		return nil, fmt.Errorf("模板缺少 ID: %s", spec.Path)
	}
	if spec.Threshold <= 0 {
		spec.Threshold = DefaultThreshold
	}
	if _, err := os.Stat(spec.Path); err != nil {
		return nil, &vision.TemplateError{ID: spec.ID, Path: spec.Path, Err: err}
	}

	color, err := ReadImage(spec.Path)
	if err != nil {
		return nil, &vision.TemplateError{ID: spec.ID, Path: spec.Path, Err: err}
	}
	return &Template{
		TemplateSpec: spec,
		color:        color,
		gray:         NormalizedGray(color),
	}, nil
}

// NewTemplateFromImage 由内存图像创建模板
func NewTemplateFromImage(spec TemplateSpec, img image.Image) (*Template, error) {
	if spec.Threshold <= 0 {
		spec.Threshold = DefaultThreshold
	}
	color, err := ImageToMat(img)
	if err != nil {
		return nil, &vision.TemplateError{ID: spec.ID, Path: spec.Path, Err: err}
	}
	return &Template{
		TemplateSpec: spec,
		color:        color,
		gray:         NormalizedGray(color),
	}, nil
}

// LibraryOptions 模板库选项
type LibraryOptions struct {
	// FrameWidth/FrameHeight 标定区域尺寸，帧尺寸不一致时跳过匹配；0 表示不检查
	FrameWidth  int
	FrameHeight int
	Logger      *logger.Logger
}

// LibraryOption 选项函数
type LibraryOption func(*LibraryOptions)

// WithFrameSize 设置标定区域尺寸
func WithFrameSize(width, height int) LibraryOption {
	return func(o *LibraryOptions) {
		o.FrameWidth = width
		o.FrameHeight = height
	}
}

// WithLogger 设置日志
func WithLogger(l *logger.Logger) LibraryOption {
	return func(o *LibraryOptions) {
		o.Logger = l
	}
}

// Library 模板库，会话期间不可变
type Library struct {
	mu        sync.Mutex
	templates []*Template
	opts      LibraryOptions
}

// NewLibrary 由已加载的模板创建模板库
func NewLibrary(templates []*Template, opts ...LibraryOption) *Library {
	o := LibraryOptions{Logger: logger.Named("matcher")}
	for _, opt := range opts {
		opt(&o)
	}

	sorted := append([]*Template(nil), templates...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })
	return &Library{templates: sorted, opts: o}
}

// LoadLibrary 加载全部模板，任何一个缺失都返回错误
func LoadLibrary(specs []TemplateSpec, opts ...LibraryOption) (*Library, error) {
	var (
		loaded []*Template
		errs   []error
		seen   = make(map[string]bool)
	)
	for _, spec := range specs {
		if seen[spec.ID] {
			errs = append(errs, fmt.Errorf("模板 ID 重复: %s", spec.ID))
			continue
		}
		seen[spec.ID] = true

		tpl, err := LoadTemplate(spec)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		loaded = append(loaded, tpl)
	}

	if len(errs) > 0 {
		for _, t := range loaded {
			t.Close()
		}
		return nil, errors.Join(errs...)
	}
	return NewLibrary(loaded, opts...), nil
}

// IDs 返回模板 ID 列表
func (l *Library) IDs() []string {
	ids := make([]string, 0, len(l.templates))
	for _, t := range l.templates {
		ids = append(ids, t.ID)
	}
	return ids
}

// Match 实现 vision.Matcher
func (l *Library) Match(frame image.Image, at time.Time) vision.MatchResult {
	mat, err := ImageToMat(frame)
	if err != nil {
		l.opts.Logger.Warn("帧转换失败, 视为全部未匹配: %v", err)
		return l.noMatch(at, true)
	}
	defer mat.Close()
	return l.MatchMat(mat, at)
}

// MatchMat 对 BGR 帧执行全部模板匹配
func (l *Library) MatchMat(frame gocv.Mat, at time.Time) vision.MatchResult {
	l.mu.Lock()
	defer l.mu.Unlock()

	w, h := frame.Cols(), frame.Rows()
	if l.opts.FrameWidth > 0 && l.opts.FrameHeight > 0 &&
		(w != l.opts.FrameWidth || h != l.opts.FrameHeight) {
		l.opts.Logger.Debug("帧尺寸 %dx%d 与标定区域 %dx%d 不一致, 跳过匹配",
			w, h, l.opts.FrameWidth, l.opts.FrameHeight)
		return l.noMatch(at, true)
	}

	gray := NormalizedGray(frame)
	defer gray.Close()

	result := vision.NewMatchResult(at)
	for _, tpl := range l.templates {
		result.Add(l.matchOne(tpl, gray, frame))
	}
	return result
}

func (l *Library) matchOne(tpl *Template, gray, color gocv.Mat) vision.Match {
	m := vision.Match{TemplateID: tpl.ID}

	matcher := NewTemplateMatching(tpl.gray, gray)
	if tpl.RGB {
		matcher.WithRGB(tpl.color, color)
	}

	confidence, loc, err := matcher.BestMatch()
	if err != nil {
		var sizeErr *ImageSizeError
		if !errors.As(err, &sizeErr) {
			l.opts.Logger.Warn("模板 %s 匹配失败: %v", tpl.ID, err)
		}
		return m
	}

	tw, th := tpl.Size()
	m.Confidence = confidence
	m.Box = vision.NewRectangle(loc.X, loc.Y, tw, th)
	m.Location = m.Box.Center()
	m.Matched = confidence >= tpl.Threshold
	return m
}

func (l *Library) noMatch(at time.Time, skipped bool) vision.MatchResult {
	result := vision.NewMatchResult(at)
	result.Skipped = skipped
	for _, tpl := range l.templates {
		result.Add(vision.Match{TemplateID: tpl.ID})
	}
	return result
}

// Close 释放全部模板
func (l *Library) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, t := range l.templates {
		t.Close()
	}
	l.templates = nil
}
