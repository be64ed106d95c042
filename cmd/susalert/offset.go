package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/susalert/susalert/pkg/config"
	"github.com/susalert/susalert/pkg/offset"
	"github.com/susalert/susalert/pkg/rotation"
)

// 离线修改保存的偏移；正在运行的实例请使用 ctl nudge
func newOffsetCmd(manager func() *config.Manager) *cobra.Command {
	off := &cobra.Command{Use: "offset", Short: "查看或修改保存的时间偏移"}

	// 校正器不挂存储，由命令自己保存，保存失败时返回错误
	load := func() (*offset.Corrector, *config.Manager, error) {
		mgr := manager()
		s, err := mgr.Load()
		if err != nil {
			return nil, nil, err
		}
		return offset.New(s.TimeOffset(), offset.WithLimit(s.OffsetLimit())), mgr, nil
	}

	off.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "显示偏移",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, _, err := load()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), rotation.FormatOffset(c.Offset()))
			return nil
		},
	})

	off.AddCommand(deltaCommand("nudge <delta>", "调整偏移，例如 +100ms、-1.5s",
		func(cmd *cobra.Command, delta time.Duration) error {
			c, mgr, err := load()
			if err != nil {
				return err
			}
			v := c.ApplyManualNudge(delta)
			if err := mgr.SaveOffset(v); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), rotation.FormatOffset(v))
			return nil
		}))

	off.AddCommand(&cobra.Command{
		Use:   "reset",
		Short: "偏移归零",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, mgr, err := load()
			if err != nil {
				return err
			}
			c.Reset()
			if err := mgr.SaveOffset(c.Offset()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), rotation.FormatOffset(c.Offset()))
			return nil
		},
	})
	return off
}
