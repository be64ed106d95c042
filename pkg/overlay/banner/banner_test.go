package banner

import (
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/susalert/susalert/pkg/overlay"
)

func TestRenderDrawsText(t *testing.T) {
	r, err := NewRenderer(nil, 320, 64)
	if err != nil {
		t.Fatalf("创建渲染器失败: %v", err)
	}

	blank, err := r.Render("", overlay.LevelNow)
	if err != nil {
		t.Fatalf("渲染失败: %v", err)
	}
	img, err := r.Render("Slimes NOW!", overlay.LevelNow)
	if err != nil {
		t.Fatalf("渲染失败: %v", err)
	}

	diff := 0
	for i := range img.Pix {
		if img.Pix[i] != blank.Pix[i] {
			diff++
		}
	}
	if diff == 0 {
		t.Error("渲染结果中没有文字")
	}
}

func TestRenderLongTextFits(t *testing.T) {
	r, _ := NewRenderer(nil, 200, 48)
	if _, err := r.Render("Sticky Fungi in 3… Sticky Fungi in 3…", overlay.LevelCountdown); err != nil {
		t.Fatalf("长文字渲染失败: %v", err)
	}
}

func TestSinkWritesOnChange(t *testing.T) {
	r, _ := NewRenderer(nil, 0, 0)
	path := filepath.Join(t.TempDir(), "out", "banner.png")
	s := NewSink(r, path)

	if err := s.Update(overlay.View{Banner: "Stun in 2…", Level: overlay.LevelCountdown}); err != nil {
		t.Fatalf("写入失败: %v", err)
	}
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("横幅文件不存在: %v", err)
	}
	cfg, err := png.DecodeConfig(f)
	f.Close()
	if err != nil {
		t.Fatalf("不是合法 PNG: %v", err)
	}
	if cfg.Width != DefaultWidth || cfg.Height != DefaultHeight {
		t.Errorf("尺寸 = %dx%d", cfg.Width, cfg.Height)
	}

	// 内容不变时不重写
	os.Remove(path)
	if err := s.Update(overlay.View{Banner: "Stun in 2…", Level: overlay.LevelCountdown}); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("内容未变化时不应重写")
	}

	if err := s.Update(overlay.View{Banner: "Stun NOW!", Level: overlay.LevelNow}); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Error("内容变化后应重写")
	}
}
