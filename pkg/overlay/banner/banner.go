// Package banner 将横幅文字渲染为 PNG，供直播软件作为图片源使用
package banner

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"os"
	"path/filepath"

	"github.com/golang/freetype"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"

	"github.com/susalert/susalert/internal/logger"
	"github.com/susalert/susalert/pkg/monitor"
	"github.com/susalert/susalert/pkg/overlay"
)

const (
	DefaultWidth    = 640
	DefaultHeight   = 96
	DefaultFontSize = 40
)

var palette = map[overlay.Level]color.RGBA{
	overlay.LevelNone:      {0, 0, 0, 0},
	overlay.LevelInfo:      {0x44, 0x47, 0x5A, 0xE0},
	overlay.LevelCountdown: {0xF1, 0xFA, 0x8C, 0xF0},
	overlay.LevelNow:       {0xFF, 0x55, 0x55, 0xF0},
	overlay.LevelWaiting:   {0xFF, 0xB8, 0x6C, 0xF0},
}

// Renderer 横幅渲染器
type Renderer struct {
	font     *truetype.Font
	width    int
	height   int
	fontSize float64
}

// NewRenderer 创建渲染器，ttf 为空时使用内置 Go Bold 字体
func NewRenderer(ttf []byte, width, height int) (*Renderer, error) {
	if len(ttf) == 0 {
		ttf = gobold.TTF
	}
	f, err := freetype.ParseFont(ttf)
	if err != nil {
		return nil, fmt.Errorf("解析字体失败: %w", err)
	}
	if width <= 0 {
		width = DefaultWidth
	}
	if height <= 0 {
		height = DefaultHeight
	}
	return &Renderer{font: f, width: width, height: height, fontSize: DefaultFontSize}, nil
}

// Render 渲染横幅，文字水平居中
func (r *Renderer) Render(text string, level overlay.Level) (*image.RGBA, error) {
	img := image.NewRGBA(image.Rect(0, 0, r.width, r.height))
	bg := palette[level]
	draw.Draw(img, img.Bounds(), image.NewUniform(bg), image.Point{}, draw.Src)
	if text == "" {
		return img, nil
	}

	fg := image.White
	if level == overlay.LevelCountdown {
		fg = image.Black
	}

	size := r.fontSize
	face := truetype.NewFace(r.font, &truetype.Options{Size: size, DPI: 72, Hinting: font.HintingFull})
	width := font.MeasureString(face, text).Ceil()
	// 文字过长时按比例缩小
	if limit := r.width - 16; width > limit {
		size = size * float64(limit) / float64(width)
		face = truetype.NewFace(r.font, &truetype.Options{Size: size, DPI: 72, Hinting: font.HintingFull})
		width = font.MeasureString(face, text).Ceil()
	}

	c := freetype.NewContext()
	c.SetDPI(72)
	c.SetFont(r.font)
	c.SetFontSize(size)
	c.SetClip(img.Bounds())
	c.SetDst(img)
	c.SetSrc(fg)
	c.SetHinting(font.HintingFull)

	x := (r.width - width) / 2
	y := (r.height + int(c.PointToFixed(size*0.7)>>6)) / 2
	if _, err := c.DrawString(text, freetype.Pt(x, y)); err != nil {
		return nil, fmt.Errorf("绘制文字失败: %w", err)
	}
	return img, nil
}

// Encode 渲染并编码为 PNG
func (r *Renderer) Encode(text string, level overlay.Level) ([]byte, error) {
	img, err := r.Render(text, level)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("编码 PNG 失败: %w", err)
	}
	return buf.Bytes(), nil
}

// Sink 横幅文字变化时重写 PNG 文件
type Sink struct {
	renderer *Renderer
	path     string
	last     string
	written  bool
	log      *logger.Logger
}

// NewSink 创建横幅输出
func NewSink(renderer *Renderer, path string) *Sink {
	return &Sink{renderer: renderer, path: path, log: logger.Named("banner")}
}

// Run 处理通知直到 ctx 取消或通道关闭
func (s *Sink) Run(ctx context.Context, updates <-chan monitor.Update) {
	for {
		select {
		case <-ctx.Done():
			return
		case u, ok := <-updates:
			if !ok {
				return
			}
			if u.Kind != monitor.UpdateState || u.Snapshot == nil {
				continue
			}
			if err := s.Update(overlay.NewView(*u.Snapshot)); err != nil {
				s.log.Warn("更新横幅失败: %v", err)
			}
		}
	}
}

// Update 横幅内容变化时写入文件
func (s *Sink) Update(v overlay.View) error {
	key := string(v.Level) + "|" + v.Banner
	if s.written && key == s.last {
		return nil
	}

	data, err := s.renderer.Encode(v.Banner, v.Level)
	if err != nil {
		return err
	}
	if err := writeAtomic(s.path, data); err != nil {
		return err
	}
	s.last = key
	s.written = true
	return nil
}

func writeAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("创建目录失败: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("写入横幅失败: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("写入横幅失败: %w", err)
	}
	return nil
}
