package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/susalert/susalert/pkg/overlay/ws"
)

// 订阅另一台机器上的覆盖层推送，只需要网页覆盖层端口
func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch <overlay-addr>",
		Short: "通过覆盖层服务接收远程实例的提醒",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()

			out := cmd.OutOrStdout()
			w := ws.NewWatcher(args[0], ws.WithStatusCallback(func(s ws.WatchStatus) {
				fmt.Fprintf(cmd.ErrOrStderr(), "[%s]\n", s)
			}))
			return w.Run(ctx, func(m ws.Received) {
				switch m.Type {
				case ws.TypeAlert:
					var a ws.AlertPayload
					if err := json.Unmarshal(m.Payload, &a); err == nil {
						fmt.Fprintln(out, a.Text)
					}
				case ws.TypeCancel:
					fmt.Fprintln(out, "-- 提醒已取消")
				}
			})
		},
	}
}
