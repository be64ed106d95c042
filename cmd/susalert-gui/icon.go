package main

import (
	"github.com/susalert/susalert/pkg/overlay"
	"github.com/susalert/susalert/pkg/overlay/banner"
)

// renderIcon 用横幅渲染器生成图标，不需要随程序分发图片
func renderIcon(size int, level overlay.Level) []byte {
	r, err := banner.NewRenderer(nil, size, size)
	if err != nil {
		return nil
	}
	data, err := r.Encode("S", level)
	if err != nil {
		return nil
	}
	return data
}
