package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/susalert/susalert/pkg/config"
	"github.com/susalert/susalert/pkg/control"
	"github.com/susalert/susalert/pkg/monitor"
	"github.com/susalert/susalert/pkg/overlay"
)

func newCtlCmd(manager func() *config.Manager) *cobra.Command {
	var addr string

	ctl := &cobra.Command{Use: "ctl", Short: "控制正在运行的实例"}
	ctl.PersistentFlags().StringVar(&addr, "addr", "", "控制服务地址 (默认取配置)")

	// withClient 连接控制服务后执行 fn
	withClient := func(fn func(ctx context.Context, c *control.Client) error) error {
		target := addr
		if target == "" {
			s, err := manager().Load()
			if err != nil {
				return err
			}
			target = s.ControlAddr
		}
		if target == "" {
			target = control.DefaultAddr
		}
		c, err := control.Dial(target)
		if err != nil {
			return err
		}
		defer c.Close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()
		return fn(ctx, c)
	}

	simple := func(use, short string, call func(*control.Client, context.Context) error) *cobra.Command {
		return &cobra.Command{
			Use:   use,
			Short: short,
			Args:  cobra.NoArgs,
			RunE: func(_ *cobra.Command, _ []string) error {
				return withClient(func(ctx context.Context, c *control.Client) error {
					ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
					defer cancel()
					return call(c, ctx)
				})
			},
		}
	}

	ctl.AddCommand(
		simple("start", "开始监控", (*control.Client).Start),
		simple("stop", "停止监控", (*control.Client).Stop),
		simple("cleared", "确认清除", (*control.Client).Cleared),
		simple("reset-session", "结束当前会话", (*control.Client).ResetSession),
		simple("reset-offset", "偏移归零", (*control.Client).ResetOffset),
	)

	ctl.AddCommand(deltaCommand("nudge <delta>", "调整偏移，例如 +100ms、-1.5s",
		func(_ *cobra.Command, delta time.Duration) error {
			return withClient(func(ctx context.Context, c *control.Client) error {
				return c.Nudge(ctx, delta)
			})
		}))

	ctl.AddCommand(&cobra.Command{
		Use:       "demo <on|off>",
		Short:     "开关演示模式",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"on", "off"},
		RunE: func(_ *cobra.Command, args []string) error {
			var enabled bool
			switch args[0] {
			case "on":
				enabled = true
			case "off":
			default:
				return fmt.Errorf("参数应为 on 或 off")
			}
			return withClient(func(ctx context.Context, c *control.Client) error {
				return c.SetDemo(ctx, enabled)
			})
		},
	})

	var asJSON bool
	state := &cobra.Command{
		Use:   "state",
		Short: "显示当前状态",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withClient(func(ctx context.Context, c *control.Client) error {
				snap, err := c.GetState(ctx)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if asJSON {
					enc := json.NewEncoder(out)
					enc.SetIndent("", "  ")
					return enc.Encode(snap)
				}
				printView(cmd, overlay.NewView(snap))
				return nil
			})
		},
	}
	state.Flags().BoolVar(&asJSON, "json", false, "输出 JSON")
	ctl.AddCommand(state)

	ctl.AddCommand(&cobra.Command{
		Use:   "watch",
		Short: "持续显示提醒",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withClient(func(ctx context.Context, c *control.Client) error {
				return c.Watch(ctx, func(u monitor.Update) error {
					printUpdate(cmd, u)
					return nil
				})
			})
		},
	})
	return ctl
}

func printView(cmd *cobra.Command, v overlay.View) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "状态: %s  阶段: %s  时间: %s  偏移: %s", v.Status, v.State, v.Elapsed, v.Offset)
	if v.Demo {
		fmt.Fprint(out, "  [演示]")
	}
	fmt.Fprintln(out)
	if v.NextLabel != "" {
		fmt.Fprintf(out, "下一个: %s  %s\n", v.NextLabel, v.NextIn)
	}
	if v.Banner != "" {
		fmt.Fprintln(out, v.Banner)
	}
}

func printUpdate(cmd *cobra.Command, u monitor.Update) {
	out := cmd.OutOrStdout()
	switch u.Kind {
	case monitor.UpdateAlert:
		if u.Alert != nil {
			fmt.Fprintf(out, "%s  %s\n", u.Alert.FireAt.Local().Format("15:04:05"), u.Alert.Text())
		}
	case monitor.UpdateSession:
		if tr := u.Transition; tr != nil {
			fmt.Fprintf(out, "%s  [%s] %s\n", tr.At.Local().Format("15:04:05"), tr.Kind, tr.Reason)
		}
	case monitor.UpdateCancel:
		fmt.Fprintln(out, "-- 提醒已取消")
	}
}
