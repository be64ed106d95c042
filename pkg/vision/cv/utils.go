package cv

import (
	"fmt"
	"image"
	"os"
	"path/filepath"

	"gocv.io/x/gocv"
)

// ReadImage 读取图像文件
func ReadImage(filename string) (gocv.Mat, error) {
	mat := gocv.IMRead(filename, gocv.IMReadColor)
	if mat.Empty() {
		return mat, fmt.Errorf("无法读取图像: %s", filename)
	}
	return mat, nil
}

// WriteImage 保存图像文件
func WriteImage(filename string, img gocv.Mat) error {
	// 确保目录存在
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("创建目录失败: %w", err)
	}

	if ok := gocv.IMWrite(filename, img); !ok {
		return fmt.Errorf("保存图像失败: %s", filename)
	}
	return nil
}

// ToGray 转换为灰度图
func ToGray(src gocv.Mat) gocv.Mat {
	if src.Channels() == 1 {
		return src.Clone()
	}
	dst := gocv.NewMat()
	gocv.CvtColor(src, &dst, gocv.ColorBGRToGray)
	return dst
}

// NormalizedGray 转灰度并做 MinMax 归一化到 [0, 255]
func NormalizedGray(src gocv.Mat) gocv.Mat {
	gray := ToGray(src)
	dst := gocv.NewMat()
	gocv.Normalize(gray, &dst, 0, 255, gocv.NormMinMax)
	gray.Close()
	return dst
}

// ImageToMat 将 image.Image 转换为 BGR gocv.Mat
func ImageToMat(img image.Image) (gocv.Mat, error) {
	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return gocv.Mat{}, fmt.Errorf("图像转换失败: %w", err)
	}
	// 转换为 BGR（OpenCV 默认格式）
	dst := gocv.NewMat()
	gocv.CvtColor(mat, &dst, gocv.ColorRGBToBGR)
	mat.Close()
	return dst, nil
}

// SaveImage 将 image.Image 保存为图像文件（用于从截图生成模板）
func SaveImage(filename string, img image.Image) error {
	mat, err := ImageToMat(img)
	if err != nil {
		return err
	}
	defer mat.Close()
	return WriteImage(filename, mat)
}
