package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/susalert/susalert/pkg/config"
)

// 版本信息 (可通过 ldflags 注入)
var (
	Version   = "1.0.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, "[ERROR]", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configDir string

	root := &cobra.Command{
		Use:           "susalert",
		Short:         "首领战机制提醒",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configDir, "config-dir", "", "配置目录 (默认 ~/.susalert)")

	manager := func() *config.Manager {
		if configDir != "" {
			return config.NewManagerWithDir(configDir)
		}
		return config.GetDefaultManager()
	}

	root.AddCommand(
		newRunCmd(manager),
		newCalibrateCmd(manager),
		newTemplateCmd(manager),
		newRotationCmd(manager),
		newOffsetCmd(manager),
		newHistoryCmd(manager),
		newCtlCmd(manager),
		newWatchCmd(),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "显示版本信息",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "SusAlert v%s\n", Version)
			fmt.Fprintf(cmd.OutOrStdout(), "  Build Time: %s\n", BuildTime)
			fmt.Fprintf(cmd.OutOrStdout(), "  Git Commit: %s\n", GitCommit)
		},
	}
}
