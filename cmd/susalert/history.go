package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/susalert/susalert/pkg/config"
	"github.com/susalert/susalert/pkg/history"
	"github.com/susalert/susalert/pkg/rotation"
)

func newHistoryCmd(manager func() *config.Manager) *cobra.Command {
	var (
		limit int
		drift bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "查看最近的战斗记录",
		RunE: func(cmd *cobra.Command, _ []string) error {
			mgr := manager()
			s, err := mgr.Load()
			if err != nil {
				return err
			}
			if s.HistoryPath == "" {
				return fmt.Errorf("未启用历史记录 (配置 history_path)")
			}

			ctx := context.Background()
			store, err := history.Open(ctx, mgr.ResolvePath(s.HistoryPath))
			if err != nil {
				return err
			}
			defer store.Close()

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			if drift {
				rows, err := store.DriftSummary(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintln(w, "机制\t次数\t平均\t最早\t最晚\t")
				for _, d := range rows {
					fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\t\n", d.MechanicID, d.Count,
						rotation.FormatOffset(d.Mean), rotation.FormatOffset(d.Min), rotation.FormatOffset(d.Max))
				}
				return w.Flush()
			}

			sessions, err := store.Recent(ctx, limit)
			if err != nil {
				return err
			}
			fmt.Fprintln(w, "开始\t时长\t结束原因\t提醒\t确认\t")
			for _, sum := range sessions {
				reason := sum.EndReason
				if sum.Demo {
					reason += " (演示)"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t\n", sum.StartedAt.Local().Format("2006-01-02 15:04:05"),
					rotation.FormatMMSS(sum.Duration()), reason, sum.Alerts, sum.Observations)
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "显示条数")
	cmd.Flags().BoolVar(&drift, "drift", false, "按机制统计计时偏差")
	return cmd
}
