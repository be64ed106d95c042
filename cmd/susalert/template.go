package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/susalert/susalert/internal/app"
	"github.com/susalert/susalert/pkg/capture"
	"github.com/susalert/susalert/pkg/config"
	"github.com/susalert/susalert/pkg/vision/cv"
)

// defaultTemplateDir 未配置模板目录时的保存位置（相对配置目录）
const defaultTemplateDir = "templates"

func newTemplateCmd(manager func() *config.Manager) *cobra.Command {
	tpl := &cobra.Command{Use: "template", Short: "管理识别模板"}

	var (
		region    capture.Region
		threshold float64
	)
	save := &cobra.Command{
		Use:   "save <id>",
		Short: "截取当前画面保存为模板 (默认截取已标定区域)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr := manager()
			s, err := mgr.Load()
			if err != nil {
				return err
			}
			if region.Empty() {
				if s.TimerRegion == nil {
					return fmt.Errorf("未标定区域, 请先运行 calibrate 或指定 --x --y --w --h")
				}
				region = *s.TimerRegion
			}
			if err := region.Validate(capture.Displays()); err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			img, err := capture.NewScreenSource(region).Capture(ctx)
			if err != nil {
				return err
			}

			dir := s.TemplateDir
			if dir == "" {
				dir = defaultTemplateDir
			}
			rel := filepath.Join(dir, args[0]+".png")
			path := mgr.ResolvePath(rel)
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return fmt.Errorf("创建模板目录失败: %w", err)
			}
			if err := cv.SaveImage(path, img); err != nil {
				return err
			}

			_, err = mgr.Update(func(s *config.Settings) {
				if s.TemplateDir == "" {
					s.TemplateDir = dir
				}
				for i := range s.Templates {
					if s.Templates[i].ID == args[0] {
						s.Templates[i].Path = rel
						s.Templates[i].Threshold = threshold
						return
					}
				}
				s.Templates = append(s.Templates, config.TemplateSetting{ID: args[0], Path: rel, Threshold: threshold})
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "已保存模板 %s → %s\n", args[0], path)
			return nil
		},
	}
	save.Flags().IntVar(&region.X, "x", 0, "左上角 X")
	save.Flags().IntVar(&region.Y, "y", 0, "左上角 Y")
	save.Flags().IntVar(&region.W, "w", 0, "宽度")
	save.Flags().IntVar(&region.H, "h", 0, "高度")
	save.Flags().Float64Var(&threshold, "threshold", 0, "匹配阈值 (0 使用默认值)")

	list := &cobra.Command{
		Use:   "list",
		Short: "列出模板",
		RunE: func(cmd *cobra.Command, _ []string) error {
			mgr := manager()
			s, err := mgr.Load()
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\t阈值\t路径\t")
			for _, spec := range app.TemplateSpecs(mgr, s) {
				status := ""
				if _, err := os.Stat(spec.Path); err != nil {
					status = " (缺失)"
				}
				fmt.Fprintf(w, "%s\t%.2f\t%s%s\t\n", spec.ID, spec.Threshold, spec.Path, status)
			}
			return w.Flush()
		},
	}

	tpl.AddCommand(save, list)
	return tpl
}
