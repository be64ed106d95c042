package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/susalert/susalert/internal/app"
	"github.com/susalert/susalert/pkg/config"
	"github.com/susalert/susalert/pkg/tui"
)

func newRunCmd(manager func() *config.Manager) *cobra.Command {
	var useTUI, demo bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "开始监控",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := app.New(manager(), app.Options{Demo: demo, Quiet: useTUI})
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			var ready func(context.Context) error
			if useTUI {
				ready = func(context.Context) error {
					updates, cancel := a.Monitor.Subscribe()
					defer cancel()
					return tui.Run(a.Monitor, updates)
				}
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "监控已启动, 按 Ctrl+C 退出")
			}
			return a.Run(ctx, ready)
		},
	}
	cmd.Flags().BoolVar(&useTUI, "tui", false, "显示终端仪表盘")
	cmd.Flags().BoolVar(&demo, "demo", false, "演示模式 (不截屏)")
	return cmd
}
