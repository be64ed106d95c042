package cv

import (
	"fmt"
	"image"
	"math"

	"gocv.io/x/gocv"
)

// TemplateMatching 单模板匹配器
// imSource 和 imSearch 应为已预处理的灰度图；colorSource/colorSearch 仅在 RGB 复核时使用
type TemplateMatching struct {
	imSearch    gocv.Mat
	imSource    gocv.Mat
	colorSearch gocv.Mat
	colorSource gocv.Mat
	rgb         bool
}

// NewTemplateMatching 创建模板匹配器
func NewTemplateMatching(search, source gocv.Mat) *TemplateMatching {
	return &TemplateMatching{
		imSearch: search,
		imSource: source,
	}
}

// WithRGB 启用 RGB 三通道复核
func (t *TemplateMatching) WithRGB(colorSearch, colorSource gocv.Mat) *TemplateMatching {
	t.rgb = true
	t.colorSearch = colorSearch
	t.colorSource = colorSource
	return t
}

// BestMatch 返回最高置信度及其左上角位置
func (t *TemplateMatching) BestMatch() (float64, image.Point, error) {
	// 检查图像尺寸
	if err := checkSourceLargerThanSearch(t.imSource, t.imSearch); err != nil {
		return 0, image.Point{}, err
	}

	result := gocv.NewMat()
	defer result.Close()
	mask := gocv.NewMat()
	defer mask.Close()

	gocv.MatchTemplate(t.imSource, t.imSearch, &result, gocv.TmCcoeffNormed, mask)
	if result.Empty() {
		return 0, image.Point{}, fmt.Errorf("模板匹配结果为空")
	}

	_, maxVal, _, maxLoc := gocv.MinMaxLoc(result)
	confidence := sanitize(float64(maxVal))

	if t.rgb {
		w, h := t.imSearch.Cols(), t.imSearch.Rows()
		crop := t.colorSource.Region(image.Rect(maxLoc.X, maxLoc.Y, maxLoc.X+w, maxLoc.Y+h))
		defer crop.Close()
		confidence = CalRGBConfidence(crop, t.colorSearch)
	}

	return confidence, maxLoc, nil
}

// sanitize 纯色图像会让 TM_CCOEFF_NORMED 产生 NaN/Inf，统一视为 0
func sanitize(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// checkSourceLargerThanSearch 检查源图像是否大于搜索图像
func checkSourceLargerThanSearch(source, search gocv.Mat) error {
	if source.Rows() < search.Rows() || source.Cols() < search.Cols() {
		return &ImageSizeError{
			SourceSize: [2]int{source.Cols(), source.Rows()},
			SearchSize: [2]int{search.Cols(), search.Rows()},
		}
	}
	return nil
}

// ImageSizeError 图像尺寸错误
type ImageSizeError struct {
	SourceSize [2]int
	SearchSize [2]int
}

func (e *ImageSizeError) Error() string {
	return fmt.Sprintf("模板尺寸 %dx%d 大于帧尺寸 %dx%d",
		e.SearchSize[0], e.SearchSize[1], e.SourceSize[0], e.SourceSize[1])
}
