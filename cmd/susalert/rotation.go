package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/susalert/susalert/internal/app"
	"github.com/susalert/susalert/pkg/config"
	"github.com/susalert/susalert/pkg/rotation"
)

func newRotationCmd(manager func() *config.Manager) *cobra.Command {
	rot := &cobra.Command{Use: "rotation", Short: "查看或导出轮换表"}

	rot.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "显示当前轮换表",
		RunE: func(cmd *cobra.Command, _ []string) error {
			mgr := manager()
			s, err := mgr.Load()
			if err != nil {
				return err
			}
			t, err := app.LoadTable(mgr, s)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s  周期 %s  循环 %v\n", t.Name, rotation.FormatMMSS(t.CycleLength), t.Repeat)
			w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "#\t时间\tID\t名称\t模板\t清除\t")
			for i := 0; i < t.Len(); i++ {
				e := t.Entry(i)
				cleared := ""
				if e.RequiresClear {
					cleared = "是"
				}
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t\n", i, rotation.FormatMMSS(e.Offset), e.ID, e.Label, e.Template, cleared)
			}
			return w.Flush()
		},
	})

	var format string
	export := &cobra.Command{
		Use:   "export",
		Short: "导出内置轮换表，用于编写自定义表",
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := rotation.Marshal(rotation.Default(), rotation.Format(format))
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
	export.Flags().StringVar(&format, "format", "toml", "toml|yaml|json")

	rot.AddCommand(export)
	return rot
}
