package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/susalert/susalert/pkg/capture"
	"github.com/susalert/susalert/pkg/config"
	"github.com/susalert/susalert/pkg/permissions"
)

func newCalibrateCmd(manager func() *config.Manager) *cobra.Command {
	var (
		region   capture.Region
		relative bool
	)

	cmd := &cobra.Command{
		Use:   "calibrate",
		Short: "设置计时器所在的截取区域",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if ok, msg := permissions.EnsurePermissions(); !ok {
				return fmt.Errorf("缺少权限:\n%s", msg)
			}
			mgr := manager()
			if relative {
				s, err := mgr.Load()
				if err != nil {
					return err
				}
				if s.ClientProcess == "" {
					return fmt.Errorf("--window 需要先配置 client_process")
				}
				win, err := capture.FindWindow(s.ClientProcess)
				if err != nil {
					return err
				}
				region = win.Absolute(region)
				if !win.Contains(region) {
					return fmt.Errorf("区域 %s 超出游戏窗口 %s", region, win.Client)
				}
			}
			if err := region.Validate(capture.Displays()); err != nil {
				return err
			}
			if err := mgr.SaveRegion(region); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "已保存截取区域 %s\n", region)
			return nil
		},
	}
	cmd.Flags().IntVar(&region.X, "x", 0, "左上角 X")
	cmd.Flags().IntVar(&region.Y, "y", 0, "左上角 Y")
	cmd.Flags().IntVar(&region.W, "w", 0, "宽度")
	cmd.Flags().IntVar(&region.H, "h", 0, "高度")
	cmd.Flags().BoolVar(&relative, "window", false, "坐标相对游戏窗口客户区")
	cmd.MarkFlagRequired("w")
	cmd.MarkFlagRequired("h")

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "显示当前区域和显示器",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := manager().Load()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if s.TimerRegion == nil {
				fmt.Fprintln(out, "区域: 未标定")
			} else {
				fmt.Fprintf(out, "区域: %s\n", *s.TimerRegion)
			}
			if s.ClientProcess != "" {
				if win, err := capture.FindWindow(s.ClientProcess); err == nil {
					fmt.Fprintf(out, "游戏窗口: %s (pid %d) 客户区 %s\n", win.Title, win.PID, win.Client)
					if s.TimerRegion != nil {
						fmt.Fprintf(out, "相对窗口: %s\n", win.Relative(*s.TimerRegion))
					}
				} else {
					fmt.Fprintf(out, "游戏窗口: %v\n", err)
				}
			}
			for i, d := range capture.Displays() {
				fmt.Fprintf(out, "显示器 %d: %v\n", i, d)
			}
			fmt.Fprintf(out, "缩放: %.2f\n", capture.GetDPIScale())
			return nil
		},
	})
	return cmd
}
