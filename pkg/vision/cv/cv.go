// Package cv 基于 OpenCV 的模板匹配
//
// 匹配流程与标定时保存模板的流程一致：
//   - 转灰度并做 MinMax 归一化，降低亮度变化的影响
//   - TM_CCOEFF_NORMED 模板匹配，取最大响应作为置信度
//   - 可选 RGB 三通道复核，取最小通道置信度
//
// 基本用法:
//
//	lib, err := cv.LoadLibrary([]cv.TemplateSpec{
//	    {ID: "timer", Path: "assets/timer_template.png", Threshold: 0.62},
//	}, cv.WithFrameSize(220, 48))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer lib.Close()
//
//	result := lib.Match(frame, time.Now())
//	if result.Matched("timer") {
//	    fmt.Println("战斗计时器可见")
//	}
package cv
