package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// deltaCommand 带一个时长参数的命令
// 负数时长（-1.5s）会被当成短参数，因此关闭 cobra 的参数解析，自行区分时长和继承的参数
func deltaCommand(use, short string, run func(cmd *cobra.Command, delta time.Duration) error) *cobra.Command {
	return &cobra.Command{
		Use:                use,
		Short:              short,
		DisableFlagParsing: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, a := range args {
				if a == "-h" || a == "--help" {
					return cmd.Help()
				}
			}
			delta, err := parseDeltaArgs(cmd, args)
			if err != nil {
				return err
			}
			return run(cmd, delta)
		},
	}
}

func parseDeltaArgs(cmd *cobra.Command, args []string) (time.Duration, error) {
	fs := cmd.InheritedFlags()

	var (
		raw  []string
		rest []string
	)
	for i := 0; i < len(args); i++ {
		a := args[i]
		if name, ok := strings.CutPrefix(a, "--"); ok && name != "" {
			rest = append(rest, a)
			// --flag value 形式的值不当作时长
			if f := fs.Lookup(name); f != nil && f.NoOptDefVal == "" && i+1 < len(args) {
				i++
				rest = append(rest, args[i])
			}
			continue
		}
		raw = append(raw, a)
	}

	if err := fs.Parse(rest); err != nil {
		return 0, err
	}
	raw = append(raw, fs.Args()...)
	if len(raw) != 1 {
		return 0, errors.New("需要一个时长参数，例如 +100ms 或 -1.5s")
	}
	delta, err := time.ParseDuration(raw[0])
	if err != nil {
		return 0, fmt.Errorf("无效的时长 %q: %w", raw[0], err)
	}
	return delta, nil
}
